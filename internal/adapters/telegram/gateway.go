package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"go.uber.org/ratelimit"

	"tg-post-planner/internal/domain"
	"tg-post-planner/internal/infra/metrics"
)

// Gateway — типизированный фасад над Telegram Bot API. Единственное место,
// где интерпретируются сырые коды ошибок платформы.
type Gateway struct {
	bot     *tgbotapi.BotAPI
	log     zerolog.Logger
	limiter ratelimit.Limiter
}

// NewGateway создаёт шлюз с токен-бакетом под лимиты Telegram (~20 сообщений в секунду).
func NewGateway(bot *tgbotapi.BotAPI, logger zerolog.Logger) *Gateway {
	return &Gateway{
		bot:     bot,
		log:     logger,
		limiter: ratelimit.New(20),
	}
}

// SendText отправляет текстовый пост. При наличии диапазонов используется
// entity-список (без потерь и экранирования); тело без диапазонов — наследие
// до-диапазонной эпохи и отправляется как Markdown-источник.
func (g *Gateway) SendText(ctx context.Context, tgChannelID int64, body string, ranges []domain.FormattingRange) (int64, error) {
	msg := tgbotapi.NewMessage(tgChannelID, body)
	if len(ranges) > 0 {
		msg.Entities = ToMessageEntities(ranges)
	} else {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	return g.send(ctx, "send_text", tgChannelID, msg)
}

// SendMedia отправляет медиа с подписью; диапазоны подписи — те же диапазоны тела.
func (g *Gateway) SendMedia(ctx context.Context, tgChannelID int64, media domain.MediaDescriptor, caption string, ranges []domain.FormattingRange) (int64, error) {
	file := tgbotapi.FileID(media.FileID)
	entities := ToMessageEntities(ranges)

	var chattable tgbotapi.Chattable
	switch media.Type {
	case domain.MediaPhoto:
		cfg := tgbotapi.NewPhoto(tgChannelID, file)
		cfg.Caption = caption
		cfg.CaptionEntities = entities
		chattable = cfg
	case domain.MediaVideo:
		cfg := tgbotapi.NewVideo(tgChannelID, file)
		cfg.Caption = caption
		cfg.CaptionEntities = entities
		chattable = cfg
	case domain.MediaDocument:
		cfg := tgbotapi.NewDocument(tgChannelID, file)
		cfg.Caption = caption
		cfg.CaptionEntities = entities
		chattable = cfg
	case domain.MediaVoice:
		cfg := tgbotapi.NewVoice(tgChannelID, file)
		cfg.Caption = caption
		cfg.CaptionEntities = entities
		chattable = cfg
	case domain.MediaAudio:
		cfg := tgbotapi.NewAudio(tgChannelID, file)
		cfg.Caption = caption
		cfg.CaptionEntities = entities
		chattable = cfg
	case domain.MediaVideoNote:
		// Кружки не несут подписи.
		cfg := tgbotapi.NewVideoNote(tgChannelID, media.Width, file)
		cfg.Duration = media.Duration
		chattable = cfg
	default:
		return 0, &domain.PlatformError{
			Class:   domain.ErrClassPermanentInput,
			Message: "неизвестный тип медиа " + string(media.Type),
		}
	}
	return g.send(ctx, "send_media", tgChannelID, chattable)
}

// SendPoll отправляет опрос.
func (g *Gateway) SendPoll(ctx context.Context, tgChannelID int64, poll domain.PollPayload) (int64, error) {
	cfg := tgbotapi.NewPoll(tgChannelID, poll.Question, poll.Options...)
	cfg.IsAnonymous = poll.Anonymous
	cfg.AllowsMultipleAnswers = poll.MultipleChoice
	if poll.Quiz {
		cfg.Type = "quiz"
		if poll.CorrectOption != nil {
			cfg.CorrectOptionID = int64(*poll.CorrectOption)
		}
	}
	return g.send(ctx, "send_poll", tgChannelID, cfg)
}

// CopyMessage копирует сообщение между каналами без ссылки на источник.
func (g *Gateway) CopyMessage(ctx context.Context, dstChannelID, srcChannelID, srcMessageID int64) (int64, error) {
	g.limiter.Take()
	cfg := tgbotapi.NewCopyMessage(dstChannelID, srcChannelID, int(srcMessageID))
	start := time.Now()
	res, err := g.bot.CopyMessage(cfg)
	metrics.ObserveNetworkRequest("telegram", "copy_message", strconv.FormatInt(dstChannelID, 10), start, err)
	if err != nil {
		return 0, g.classify(err)
	}
	return int64(res.MessageID), nil
}

// DeleteMessage удаляет сообщение в канале; отсутствие сообщения не считается ошибкой.
func (g *Gateway) DeleteMessage(ctx context.Context, tgChannelID, messageID int64) error {
	g.limiter.Take()
	cfg := tgbotapi.NewDeleteMessage(tgChannelID, int(messageID))
	start := time.Now()
	_, err := g.bot.Request(cfg)
	metrics.ObserveNetworkRequest("telegram", "delete_message", strconv.FormatInt(tgChannelID, 10), start, err)
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && strings.Contains(strings.ToLower(apiErr.Message), "not found") {
		return nil
	}
	return g.classify(err)
}

func (g *Gateway) send(ctx context.Context, operation string, tgChannelID int64, chattable tgbotapi.Chattable) (int64, error) {
	g.limiter.Take()
	start := time.Now()
	sent, err := g.bot.Send(chattable)
	metrics.ObserveNetworkRequest("telegram", operation, strconv.FormatInt(tgChannelID, 10), start, err)
	if err != nil {
		metrics.BotSendErrors.Inc()
		return 0, g.classify(err)
	}
	return int64(sent.MessageID), nil
}

// classify сводит любую ошибку платформы к одному из трёх классов:
// transient, permanent-for-input, permanent-for-target.
func (g *Gateway) classify(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		// Сеть или таймаут: имеет смысл повторить на следующем тике.
		return &domain.PlatformError{Class: domain.ErrClassTransient, Message: err.Error()}
	}

	class := domain.ErrClassPermanentInput
	lower := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Code == 429 || apiErr.Code >= 500:
		class = domain.ErrClassTransient
	case apiErr.Code == 403:
		// Бот исключён из канала или канал заблокирован.
		class = domain.ErrClassPermanentTarget
	case strings.Contains(lower, "chat not found"),
		strings.Contains(lower, "channel_private"),
		strings.Contains(lower, "kicked"):
		class = domain.ErrClassPermanentTarget
	}
	return &domain.PlatformError{Class: class, Code: apiErr.Code, Message: apiErr.Message}
}
