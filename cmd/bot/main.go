package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	aiadapter "tg-post-planner/internal/adapters/ai"
	"tg-post-planner/internal/adapters/bot"
	"tg-post-planner/internal/adapters/repo"
	"tg-post-planner/internal/adapters/telegram"
	"tg-post-planner/internal/domain"
	"tg-post-planner/internal/infra/ai"
	"tg-post-planner/internal/infra/cache"
	"tg-post-planner/internal/infra/config"
	"tg-post-planner/internal/infra/db"
	httpserver "tg-post-planner/internal/infra/http"
	"tg-post-planner/internal/infra/log"
	"tg-post-planner/internal/infra/metrics"
	"tg-post-planner/internal/usecase/posts"
	"tg-post-planner/internal/usecase/publish"
	"tg-post-planner/internal/usecase/scheduler"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	logger := log.NewLogger(log.Options{
		AppEnv:    cfg.AppEnv,
		Level:     cfg.Log.Level,
		File:      cfg.Log.File,
		ErrorFile: cfg.Log.ErrorFile,
	})
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN())
	if err != nil {
		logger.Error().Err(err).Msg("не удалось подключиться к БД")
		return 1
	}
	defer pool.Close()

	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error().Err(err).Msg("не удалось применить миграции")
		return 1
	}

	store := repo.NewPostgres(pool)

	botAPI, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, tgbotapi.APIEndpoint,
		&http.Client{Timeout: 30 * time.Second})
	if err != nil {
		logger.Error().Err(err).Msg("не удалось создать бота")
		return 1
	}

	gateway := telegram.NewGateway(botAPI, logger)
	postsService := posts.NewService(store, store, gateway, logger, cfg.MaxPostLength, cfg.MinTagsRequired)
	publisher := publish.NewPublisher(gateway, logger)

	var rewriter domain.Rewriter
	if cfg.AI.APIKey != "" && cfg.AI.FolderID != "" {
		client := ai.NewClient(cfg.AI.APIKey, cfg.AI.FolderID, "", 30*time.Second)
		rewriter = aiadapter.NewRewriter(client, 30*time.Second)
	}

	var onceGuard domain.Cache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("redis недоступен, работаем без него")
		} else {
			onceGuard = cache.NewRedis(rdb)
		}
	}

	loc := cfg.Location()
	configInfo := fmt.Sprintf(
		"Окружение: %s\nЧасовой пояс: %s\nЛимит текста: %d\nМинимум меток: %d\nТик планировщика: %s\nОкно актуальности: %s\nRedis: %v\nИИ: %v",
		cfg.AppEnv, cfg.Timezone, cfg.MaxPostLength, cfg.MinTagsRequired,
		cfg.Scheduler.Tick, cfg.Scheduler.StalenessCutoff, onceGuard != nil, rewriter != nil)
	handler := bot.NewHandler(botAPI, postsService, publisher, store, store, store, store,
		rewriter, cfg.IsAdmin, loc, cfg.MinTagsRequired, configInfo, logger)

	sched := scheduler.New(postsService, publisher, store, logger, scheduler.Options{
		Tick:            cfg.Scheduler.Tick,
		StalenessCutoff: cfg.Scheduler.StalenessCutoff,
		ClaimLimit:      cfg.Scheduler.ClaimLimit,
	})
	reminders := scheduler.NewReminders(store, onceGuard, gateway, loc, logger, time.Minute)

	srv := httpserver.NewServer(logger)
	go func() {
		if err := srv.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sched.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		reminders.Run(ctx)
	}()

	updCfg := tgbotapi.NewUpdate(0)
	updCfg.Timeout = 30
	updates := botAPI.GetUpdatesChan(updCfg)
	logger.Info().Str("bot", botAPI.Self.UserName).Msg("бот запущен")

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case upd, ok := <-updates:
			if !ok {
				break loop
			}
			handler.HandleUpdate(ctx, upd)
		}
	}

	logger.Info().Msg("остановка бота")
	botAPI.StopReceivingUpdates()
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP сервер не остановился вовремя")
	}

	if ctx.Err() != nil {
		// 130 — завершение по сигналу, как принято для интерактивных процессов.
		return 130
	}
	return 0
}

var _ domain.PostRepo = (*repo.Postgres)(nil)
var _ domain.ChannelRepo = (*repo.Postgres)(nil)
var _ domain.TagRepo = (*repo.Postgres)(nil)
var _ domain.SeriesRepo = (*repo.Postgres)(nil)
var _ domain.ReminderRepo = (*repo.Postgres)(nil)
var _ domain.Gateway = (*telegram.Gateway)(nil)
