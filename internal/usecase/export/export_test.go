package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"tg-post-planner/internal/domain"
)

func samplePosts() []domain.Post {
	at := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	num := 3
	return []domain.Post{
		{
			ID:           1,
			ChannelID:    1,
			Body:         "текст поста",
			Status:       domain.StatusScheduled,
			ScheduledAt:  &at,
			Tags:         []string{"новости"},
			SeriesNumber: &num,
			CreatedAt:    at,
		},
		{
			ID:        2,
			ChannelID: 1,
			Status:    domain.StatusDraft,
			Poll:      &domain.PollPayload{Question: "вопрос?", Options: []string{"да", "нет"}},
			CreatedAt: at,
		},
	}
}

func TestToJSON(t *testing.T) {
	data, err := ToJSON(samplePosts())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	var views []map[string]any
	if err := json.Unmarshal(data, &views); err != nil {
		t.Fatalf("выгрузка должна быть валидным JSON: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("ожидали 2 поста, получили %d", len(views))
	}
	if views[0]["status"] != "scheduled" {
		t.Fatalf("ожидали статус scheduled, получили %v", views[0]["status"])
	}
	if _, ok := views[1]["poll"]; !ok {
		t.Fatalf("опрос должен попасть в выгрузку")
	}
}

func TestToMarkdown(t *testing.T) {
	out := string(ToMarkdown(samplePosts(), time.UTC))
	for _, expected := range []string{"текст поста", "Выпуск №3", "вопрос?", "- да", "Метки: новости"} {
		if !strings.Contains(out, expected) {
			t.Fatalf("в выгрузке нет %q:\n%s", expected, out)
		}
	}
}
