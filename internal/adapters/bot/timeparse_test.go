package bot

import (
	"testing"
	"time"

	"tg-post-planner/internal/domain"
)

var msk = time.FixedZone("MSK", 3*60*60)

func TestParseScheduleTodayOrTomorrow(t *testing.T) {
	// 30.08.2026 14:00 по Москве.
	now := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)

	at, err := ParseSchedule("18:30", now, msk)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	expected := time.Date(2026, 8, 30, 15, 30, 0, 0, time.UTC)
	if !at.Equal(expected) {
		t.Fatalf("ожидали %v, получили %v", expected, at)
	}

	// Время уже прошло — переносится на завтра.
	at, err = ParseSchedule("10:00", now, msk)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	expected = time.Date(2026, 8, 31, 7, 0, 0, 0, time.UTC)
	if !at.Equal(expected) {
		t.Fatalf("ожидали %v, получили %v", expected, at)
	}
}

func TestParseScheduleTomorrowKeyword(t *testing.T) {
	now := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	at, err := ParseSchedule("завтра 09:15", now, msk)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	expected := time.Date(2026, 8, 31, 6, 15, 0, 0, time.UTC)
	if !at.Equal(expected) {
		t.Fatalf("ожидали %v, получили %v", expected, at)
	}
}

func TestParseScheduleExplicitDate(t *testing.T) {
	now := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	at, err := ParseSchedule("01.09.2026 08:00", now, msk)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	expected := time.Date(2026, 9, 1, 5, 0, 0, 0, time.UTC)
	if !at.Equal(expected) {
		t.Fatalf("ожидали %v, получили %v", expected, at)
	}
}

func TestParseScheduleRejectsPastExplicitDate(t *testing.T) {
	now := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	if _, err := ParseSchedule("01.01.2020 08:00", now, msk); !domain.IsValidation(err) {
		t.Fatalf("ожидали ошибку валидации, получили %v", err)
	}
}

func TestParseScheduleRejectsGarbage(t *testing.T) {
	now := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	for _, input := range []string{"", "скоро", "25:99", "завтра утром"} {
		if _, err := ParseSchedule(input, now, msk); !domain.IsValidation(err) {
			t.Fatalf("ожидали ошибку валидации для %q, получили %v", input, err)
		}
	}
}
