package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"tg-post-planner/internal/domain"
)

// postView — проекция поста для выгрузки; чисто читающая сторона.
type postView struct {
	ID           int64                    `json:"id"`
	ChannelID    int64                    `json:"channel_id"`
	Body         string                   `json:"body"`
	Ranges       []domain.FormattingRange `json:"ranges,omitempty"`
	Media        *domain.MediaDescriptor  `json:"media,omitempty"`
	Poll         *domain.PollPayload      `json:"poll,omitempty"`
	Status       domain.PostStatus        `json:"status"`
	ScheduledAt  *time.Time               `json:"scheduled_at,omitempty"`
	PublishedAt  *time.Time               `json:"published_at,omitempty"`
	Tags         []string                 `json:"tags,omitempty"`
	SeriesNumber *int                     `json:"series_number,omitempty"`
	CreatedAt    time.Time                `json:"created_at"`
}

// ToJSON сериализует посты в JSON-выгрузку.
func ToJSON(posts []domain.Post) ([]byte, error) {
	views := make([]postView, 0, len(posts))
	for _, p := range posts {
		views = append(views, postView{
			ID:           p.ID,
			ChannelID:    p.ChannelID,
			Body:         p.Body,
			Ranges:       p.Ranges,
			Media:        p.Media,
			Poll:         p.Poll,
			Status:       p.Status,
			ScheduledAt:  p.ScheduledAt,
			PublishedAt:  p.PublishedAt,
			Tags:         p.Tags,
			SeriesNumber: p.SeriesNumber,
			CreatedAt:    p.CreatedAt,
		})
	}
	return json.MarshalIndent(views, "", "  ")
}

// ToMarkdown строит человекочитаемую Markdown-выгрузку.
func ToMarkdown(posts []domain.Post, loc *time.Location) []byte {
	var b strings.Builder
	b.WriteString("# Выгрузка постов\n\n")
	for _, p := range posts {
		fmt.Fprintf(&b, "## Пост %d — %s\n\n", p.ID, p.Status)
		if p.SeriesNumber != nil {
			fmt.Fprintf(&b, "Выпуск №%d\n\n", *p.SeriesNumber)
		}
		if p.ScheduledAt != nil {
			fmt.Fprintf(&b, "Запланирован: %s\n\n", p.ScheduledAt.In(loc).Format("02.01.2006 15:04"))
		}
		if p.PublishedAt != nil {
			fmt.Fprintf(&b, "Опубликован: %s\n\n", p.PublishedAt.In(loc).Format("02.01.2006 15:04"))
		}
		if len(p.Tags) > 0 {
			fmt.Fprintf(&b, "Метки: %s\n\n", strings.Join(p.Tags, ", "))
		}
		switch {
		case p.Poll != nil:
			fmt.Fprintf(&b, "Опрос: %s\n", p.Poll.Question)
			for _, opt := range p.Poll.Options {
				fmt.Fprintf(&b, "- %s\n", opt)
			}
			b.WriteString("\n")
		default:
			if p.Media != nil {
				fmt.Fprintf(&b, "Вложение: %s\n\n", p.Media.Type)
			}
			if p.Body != "" {
				b.WriteString(p.Body)
				b.WriteString("\n\n")
			}
		}
	}
	return []byte(b.String())
}
