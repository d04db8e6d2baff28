package domain

import (
	"context"
	"time"
)

// NewPost — данные для создания поста.
type NewPost struct {
	ChannelID   int64
	Body        string
	Ranges      []FormattingRange
	Media       *MediaDescriptor
	Poll        *PollPayload
	TagIDs      []int64
	SeriesID    *int64
	ScheduledAt *time.Time
	CreatedBy   int64
}

// PostRepo управляет постами. Многострочные мутации выполняются в одной транзакции.
type PostRepo interface {
	CreatePost(ctx context.Context, np NewPost) (Post, error)
	GetPost(ctx context.Context, id int64) (Post, error)
	ListPostsByCreator(ctx context.Context, createdBy int64, limit, offset int) ([]Post, error)
	// ClaimDue выбирает посты к публикации через FOR UPDATE SKIP LOCKED:
	// scheduled, scheduled_at в (now-cutoff, now], не более limit, старые первыми.
	ClaimDue(ctx context.Context, now time.Time, cutoff time.Duration, limit int) ([]Post, error)
	MarkPublished(ctx context.Context, id, tgMessageID int64, at time.Time) error
	// MarkFailed пишет failed из scheduled или draft; терминальные статусы не трогает.
	MarkFailed(ctx context.Context, id int64, reason string) error
	// MarkStaleScheduled переводит просроченные scheduled-посты в failed/stale,
	// возвращает число затронутых строк.
	MarkStaleScheduled(ctx context.Context, before time.Time) (int64, error)
	// UpdateSchedule переводит пост в scheduled с новым временем; статус-гард в SQL.
	UpdateSchedule(ctx context.Context, id int64, at time.Time, allowed []PostStatus) (bool, error)
	CancelPost(ctx context.Context, id int64) (bool, error)
	SoftDeletePost(ctx context.Context, id int64) (bool, error)
}

// ChannelRepo управляет привязанными каналами.
type ChannelRepo interface {
	UpsertChannel(ctx context.Context, tgChannelID int64, title string) (Channel, error)
	GetChannel(ctx context.Context, id int64) (Channel, error)
	ListChannels(ctx context.Context, onlyEnabled bool) ([]Channel, error)
	DisableChannel(ctx context.Context, id int64) error
}

// TagRepo управляет метками каналов.
type TagRepo interface {
	EnsureTag(ctx context.Context, channelID int64, name string) (Tag, error)
	ListChannelTags(ctx context.Context, channelID int64) ([]Tag, error)
}

// SeriesRepo управляет сериями каналов.
type SeriesRepo interface {
	EnsureSeries(ctx context.Context, channelID int64, code, title string) (Series, error)
	ListChannelSeries(ctx context.Context, channelID int64) ([]Series, error)
}

// ReminderRepo управляет напоминаниями оператору.
type ReminderRepo interface {
	ListReminders(ctx context.Context) ([]Reminder, error)
	UpsertReminder(ctx context.Context, chatID int64, slot string) (Reminder, error)
	// AcquireReminderSlot идемпотентно резервирует слот на дату; false при конфликте.
	AcquireReminderSlot(ctx context.Context, reminderID int64, date time.Time) (bool, error)
}

// Gateway — типизированный фасад над Telegram Bot API. Все ошибки отправки
// возвращаются как *PlatformError с классификацией.
type Gateway interface {
	SendText(ctx context.Context, tgChannelID int64, body string, ranges []FormattingRange) (int64, error)
	SendMedia(ctx context.Context, tgChannelID int64, media MediaDescriptor, caption string, ranges []FormattingRange) (int64, error)
	SendPoll(ctx context.Context, tgChannelID int64, poll PollPayload) (int64, error)
	CopyMessage(ctx context.Context, dstChannelID, srcChannelID, srcMessageID int64) (int64, error)
	DeleteMessage(ctx context.Context, tgChannelID, messageID int64) error
}

// Cache используется для простых TTL-гардов (один раз за окно).
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Rewriter переписывает текст поста через внешнюю LLM.
type Rewriter interface {
	Shorten(ctx context.Context, text string) (string, error)
	Restyle(ctx context.Context, text, style string) (string, error)
	SuggestTags(ctx context.Context, text string) ([]string, error)
}
