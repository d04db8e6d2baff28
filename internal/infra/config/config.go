package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию бота.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`

	BotToken string  `envconfig:"BOT_TOKEN" required:"true"`
	AdminIDs []int64 `envconfig:"ADMIN_IDS" required:"true"`

	DB struct {
		Host     string `envconfig:"DB_HOST" required:"true"`
		Port     int    `envconfig:"DB_PORT" required:"true"`
		Name     string `envconfig:"DB_NAME" required:"true"`
		User     string `envconfig:"DB_USER" required:"true"`
		Password string `envconfig:"DB_PASSWORD" required:"true"`
	} `envconfig:""`

	Timezone string `envconfig:"TIMEZONE" default:"Europe/Moscow"`

	MaxPostLength   int `envconfig:"MAX_POST_LENGTH" default:"4096"`
	MinTagsRequired int `envconfig:"MIN_TAGS_REQUIRED" default:"1"`

	Scheduler struct {
		Tick            time.Duration `envconfig:"SCHEDULER_TICK" default:"1m"`
		StalenessCutoff time.Duration `envconfig:"STALENESS_CUTOFF" default:"24h"`
		ClaimLimit      int           `envconfig:"CLAIM_LIMIT" default:"100"`
	} `envconfig:""`

	AI struct {
		APIKey   string `envconfig:"AI_API_KEY"`
		FolderID string `envconfig:"AI_FOLDER_ID"`
	} `envconfig:""`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	Log struct {
		Level     string `envconfig:"LOG_LEVEL"`
		File      string `envconfig:"LOG_FILE"`
		ErrorFile string `envconfig:"LOG_ERROR_FILE"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения; отсутствие обязательных ключей — фатально.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	if len(cfg.AdminIDs) == 0 {
		log.Fatalf("ADMIN_IDS не содержит ни одного идентификатора")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		log.Fatalf("некорректный TIMEZONE %q: %v", cfg.Timezone, err)
	}
	return cfg
}

// PGDSN собирает строку подключения к Postgres из частей DB_*.
func (c AppConfig) PGDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name)
}

// Location возвращает операторский часовой пояс.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsAdmin проверяет, входит ли идентификатор в белый список операторов.
func (c AppConfig) IsAdmin(tgUserID int64) bool {
	for _, id := range c.AdminIDs {
		if id == tgUserID {
			return true
		}
	}
	return false
}
