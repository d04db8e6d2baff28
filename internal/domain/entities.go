package domain

import "time"

// PostStatus описывает состояние поста в жизненном цикле.
type PostStatus string

const (
	// StatusDraft — черновик без расписания.
	StatusDraft PostStatus = "draft"
	// StatusScheduled — пост ждёт публикации по расписанию.
	StatusScheduled PostStatus = "scheduled"
	// StatusPublished — пост опубликован в канале.
	StatusPublished PostStatus = "published"
	// StatusFailed — публикация не удалась: постоянная ошибка или просрочка.
	StatusFailed PostStatus = "failed"
	// StatusCancelled — отменён оператором до публикации.
	StatusCancelled PostStatus = "cancelled"
	// StatusDeleted — мягко удалён.
	StatusDeleted PostStatus = "deleted"
)

// Terminal сообщает, является ли статус конечным для планировщика.
func (s PostStatus) Terminal() bool {
	switch s {
	case StatusPublished, StatusFailed, StatusCancelled, StatusDeleted:
		return true
	}
	return false
}

// FailReasonStale записывается постам, просроченным дольше окна актуальности.
const FailReasonStale = "stale"

// Channel описывает целевой канал публикации.
type Channel struct {
	ID          int64
	TGChannelID int64
	Title       string
	Enabled     bool
	CreatedAt   time.Time
}

// RangeKind — тип форматирования участка текста.
type RangeKind string

const (
	RangeBold          RangeKind = "bold"
	RangeItalic        RangeKind = "italic"
	RangeUnderline     RangeKind = "underline"
	RangeStrikethrough RangeKind = "strikethrough"
	RangeCode          RangeKind = "code"
	RangePre           RangeKind = "pre"
	RangeTextLink      RangeKind = "text_link"
	RangeMention       RangeKind = "mention"
	RangeBlockquote    RangeKind = "blockquote"
	RangeSpoiler       RangeKind = "spoiler"
)

// FormattingRange — типизированная аннотация над участком тела поста.
// Смещение и длина считаются в UTF-16 code units, как в Telegram Bot API.
type FormattingRange struct {
	Kind     RangeKind
	Offset   int
	Length   int
	URL      string
	Language string
}

// MediaType — тип вложения.
type MediaType string

const (
	MediaPhoto     MediaType = "photo"
	MediaVideo     MediaType = "video"
	MediaDocument  MediaType = "document"
	MediaVoice     MediaType = "voice"
	MediaAudio     MediaType = "audio"
	MediaVideoNote MediaType = "video_note"
)

// MediaDescriptor — ссылка на файл, уже размещённый в Telegram.
type MediaDescriptor struct {
	Type     MediaType
	FileID   string
	Width    int
	Height   int
	Duration int
	MimeType string
	FileName string
}

// PollPayload описывает опрос.
type PollPayload struct {
	Question       string   `json:"question"`
	Options        []string `json:"options"`
	Anonymous      bool     `json:"anonymous"`
	MultipleChoice bool     `json:"multiple_choice"`
	Quiz           bool     `json:"quiz"`
	CorrectOption  *int     `json:"correct_option,omitempty"`
}

// Post — единица запланированного контента. У поста ровно один целевой канал;
// публикация в несколько каналов порождает независимые посты-близнецы.
type Post struct {
	ID           int64
	ChannelID    int64
	Body         string
	Ranges       []FormattingRange
	Media        *MediaDescriptor
	Poll         *PollPayload
	Status       PostStatus
	ScheduledAt  *time.Time
	PublishedAt  *time.Time
	TGMessageID  *int64
	SeriesID     *int64
	SeriesNumber *int
	Tags         []string
	FailReason   string
	CreatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Tag — метка в рамках канала, имя уникально на канал.
type Tag struct {
	ID        int64
	ChannelID int64
	Name      string
	CreatedAt time.Time
}

// Series — автоинкрементный счётчик в рамках канала, код уникален на канал.
type Series struct {
	ID         int64
	ChannelID  int64
	Code       string
	Title      string
	NextNumber int
	CreatedAt  time.Time
}

// Reminder — напоминание оператору в фиксированный слот локального времени.
type Reminder struct {
	ID        int64
	ChatID    int64
	Slot      string // "15:04"
	Enabled   bool
	CreatedAt time.Time
}

// PublishOutcome — результат отправки поста в один канал.
type PublishOutcome struct {
	ChannelID   int64
	TGMessageID int64
	Err         error
}
