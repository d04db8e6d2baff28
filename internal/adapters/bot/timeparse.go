package bot

import (
	"strings"
	"time"

	"tg-post-planner/internal/domain"
)

// ParseSchedule разбирает время публикации, введённое оператором.
// Поддерживаемые формы:
//
//	"HH:MM"            — сегодня в указанное время; если оно уже прошло — завтра;
//	"завтра HH:MM"     — завтра в указанное время;
//	"DD.MM.YYYY HH:MM" — явная дата.
//
// Ввод интерпретируется в часовом поясе оператора loc, результат — UTC.
// Время в прошлом или равное now отклоняется.
func ParseSchedule(input string, now time.Time, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(strings.ToLower(input))
	if s == "" {
		return time.Time{}, domain.Validationf("пустое время публикации")
	}
	nowLocal := now.In(loc)

	if rest, ok := cutPrefixAny(s, "завтра ", "tomorrow "); ok {
		clock, err := time.ParseInLocation("15:04", strings.TrimSpace(rest), loc)
		if err != nil {
			return time.Time{}, domain.Validationf("не понял время %q, ожидаю формат ЧЧ:ММ", rest)
		}
		t := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day()+1,
			clock.Hour(), clock.Minute(), 0, 0, loc)
		return t.UTC(), nil
	}

	if t, err := time.ParseInLocation("02.01.2006 15:04", s, loc); err == nil {
		if !t.After(nowLocal) {
			return time.Time{}, domain.Validationf("время %s уже в прошлом", s)
		}
		return t.UTC(), nil
	}

	clock, err := time.ParseInLocation("15:04", s, loc)
	if err != nil {
		return time.Time{}, domain.Validationf("не понял время %q, ожидаю ЧЧ:ММ, «завтра ЧЧ:ММ» или ДД.ММ.ГГГГ ЧЧ:ММ", input)
	}
	t := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(),
		clock.Hour(), clock.Minute(), 0, 0, loc)
	if !t.After(nowLocal) {
		t = t.AddDate(0, 0, 1)
	}
	return t.UTC(), nil
}

func cutPrefixAny(s string, prefixes ...string) (string, bool) {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return s[len(p):], true
		}
	}
	return "", false
}
