package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tg-post-planner/internal/domain"
)

type stubReminderRepo struct {
	reminders []domain.Reminder
	acquired  map[string]bool
}

func (s *stubReminderRepo) ListReminders(context.Context) ([]domain.Reminder, error) {
	return s.reminders, nil
}

func (s *stubReminderRepo) UpsertReminder(_ context.Context, chatID int64, slot string) (domain.Reminder, error) {
	return domain.Reminder{ID: 1, ChatID: chatID, Slot: slot, Enabled: true}, nil
}

func (s *stubReminderRepo) AcquireReminderSlot(_ context.Context, reminderID int64, date time.Time) (bool, error) {
	if s.acquired == nil {
		s.acquired = make(map[string]bool)
	}
	key := date.Format("2006-01-02")
	if s.acquired[key] {
		return false, nil
	}
	s.acquired[key] = true
	return true, nil
}

type stubSender struct {
	sent []int64
}

func (s *stubSender) SendText(_ context.Context, chatID int64, _ string, _ []domain.FormattingRange) (int64, error) {
	s.sent = append(s.sent, chatID)
	return 1, nil
}

func TestReminderFiresAfterSlot(t *testing.T) {
	loc := time.UTC
	repo := &stubReminderRepo{reminders: []domain.Reminder{{ID: 1, ChatID: 42, Slot: "12:00", Enabled: true}}}
	snd := &stubSender{}
	r := NewReminders(repo, nil, snd, loc, zerolog.Nop(), time.Minute)

	now := time.Date(2026, 8, 30, 12, 1, 0, 0, loc)
	r.TickAt(context.Background(), now)

	if len(snd.sent) != 1 || snd.sent[0] != 42 {
		t.Fatalf("ожидали напоминание чату 42, получили %v", snd.sent)
	}
}

func TestReminderNotBeforeSlot(t *testing.T) {
	loc := time.UTC
	repo := &stubReminderRepo{reminders: []domain.Reminder{{ID: 1, ChatID: 42, Slot: "21:00", Enabled: true}}}
	snd := &stubSender{}
	r := NewReminders(repo, nil, snd, loc, zerolog.Nop(), time.Minute)

	now := time.Date(2026, 8, 30, 20, 59, 0, 0, loc)
	r.TickAt(context.Background(), now)

	if len(snd.sent) != 0 {
		t.Fatalf("до слота напоминаний быть не должно, получили %v", snd.sent)
	}
}

// Несколько тиков за один день дают ровно одну отправку, в том числе после
// рестарта процесса: дедупликация лежит в хранилище.
func TestReminderOncePerDay(t *testing.T) {
	loc := time.UTC
	repo := &stubReminderRepo{reminders: []domain.Reminder{{ID: 1, ChatID: 42, Slot: "12:00", Enabled: true}}}
	snd := &stubSender{}
	r := NewReminders(repo, nil, snd, loc, zerolog.Nop(), time.Minute)

	for minute := 0; minute < 5; minute++ {
		now := time.Date(2026, 8, 30, 12, minute, 0, 0, loc)
		r.TickAt(context.Background(), now)
	}
	if len(snd.sent) != 1 {
		t.Fatalf("ожидали 1 отправку за день, получили %d", len(snd.sent))
	}

	nextDay := time.Date(2026, 8, 31, 12, 0, 0, 0, loc)
	r.TickAt(context.Background(), nextDay)
	if len(snd.sent) != 2 {
		t.Fatalf("на следующий день напоминание должно повториться, получили %d", len(snd.sent))
	}
}
