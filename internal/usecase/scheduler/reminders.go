package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tg-post-planner/internal/domain"
)

// sender — минимальный срез шлюза, нужный напоминаниям.
type sender interface {
	SendText(ctx context.Context, chatID int64, body string, ranges []domain.FormattingRange) (int64, error)
}

// Reminders рассылает операторам напоминания в фиксированные слоты локального
// времени. Повторное срабатывание за день отсекается записью в БД; Redis,
// если настроен, служит быстрым передним фильтром.
type Reminders struct {
	repo   domain.ReminderRepo
	cache  domain.Cache // может быть nil
	sender sender
	loc    *time.Location
	log    zerolog.Logger
	tick   time.Duration
}

// NewReminders создаёт рассыльщик напоминаний.
func NewReminders(repo domain.ReminderRepo, cache domain.Cache, snd sender, loc *time.Location, logger zerolog.Logger, tick time.Duration) *Reminders {
	if tick <= 0 {
		tick = time.Minute
	}
	return &Reminders{repo: repo, cache: cache, sender: snd, loc: loc, log: logger, tick: tick}
}

// Run крутит тики напоминаний до отмены контекста.
func (r *Reminders) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.TickAt(ctx, time.Now())
		}
	}
}

// TickAt проверяет слоты на момент now и рассылает назревшие напоминания.
// Слот срабатывает, когда локальное время прошло его отметку и за сегодня
// он ещё не стрелял — в том числе после простоя процесса.
func (r *Reminders) TickAt(ctx context.Context, now time.Time) {
	local := now.In(r.loc)
	reminders, err := r.repo.ListReminders(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("не удалось получить напоминания")
		return
	}
	for _, reminder := range reminders {
		slot, err := time.ParseInLocation("15:04", reminder.Slot, r.loc)
		if err != nil {
			r.log.Error().Err(err).Int64("reminder", reminder.ID).Str("slot", reminder.Slot).
				Msg("слот напоминания нечитаем")
			continue
		}
		slotToday := time.Date(local.Year(), local.Month(), local.Day(),
			slot.Hour(), slot.Minute(), 0, 0, r.loc)
		if local.Before(slotToday) {
			continue
		}
		r.fire(ctx, reminder, slotToday)
	}
}

func (r *Reminders) fire(ctx context.Context, reminder domain.Reminder, slotToday time.Time) {
	date := time.Date(slotToday.Year(), slotToday.Month(), slotToday.Day(), 0, 0, 0, 0, time.UTC)
	deliver := func() error {
		acquired, err := r.repo.AcquireReminderSlot(ctx, reminder.ID, date)
		if err != nil {
			return fmt.Errorf("резервирование слота: %w", err)
		}
		if !acquired {
			return nil
		}
		text := fmt.Sprintf("⏰ Напоминание %s: проверьте запланированные посты.", reminder.Slot)
		if _, err := r.sender.SendText(ctx, reminder.ChatID, text, nil); err != nil {
			return fmt.Errorf("отправка напоминания: %w", err)
		}
		return nil
	}

	var err error
	if r.cache != nil {
		key := fmt.Sprintf("reminder:%d:%s", reminder.ID, date.Format("2006-01-02"))
		err = r.cache.Once(ctx, key, 26*time.Hour, deliver)
	} else {
		err = deliver()
	}
	if err != nil {
		r.log.Error().Err(err).Int64("reminder", reminder.ID).Msg("напоминание не доставлено")
	}
}
