package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound возвращается, когда запись отсутствует в хранилище.
var ErrNotFound = errors.New("запись не найдена")

// ErrIllegalTransition возвращается при недопустимом переходе статуса поста.
var ErrIllegalTransition = errors.New("недопустимый переход статуса")

// ValidationError — ошибка проверки входных данных; текст показывается оператору как есть.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf создаёт ValidationError с форматированием.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation сообщает, является ли ошибка ошибкой валидации.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ErrorClass — классификация ошибок платформы. Единственное место,
// где интерпретируются сырые коды Telegram, — шлюз.
type ErrorClass string

const (
	// ErrClassTransient — сеть, rate limit, 5xx; можно повторить на следующем тике.
	ErrClassTransient ErrorClass = "transient"
	// ErrClassPermanentInput — плохой формат или медиа; повтор с тем же телом бесполезен.
	ErrClassPermanentInput ErrorClass = "permanent_input"
	// ErrClassPermanentTarget — канал недоступен; цель следует считать мёртвой.
	ErrClassPermanentTarget ErrorClass = "permanent_target"
)

// PlatformError — типизированная ошибка шлюза Telegram.
type PlatformError struct {
	Class   ErrorClass
	Code    int
	Message string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("telegram: %s (код %d, класс %s)", e.Message, e.Code, e.Class)
}

// ClassifyPlatformError возвращает класс ошибки платформы; не-платформенные
// ошибки (сеть, таймаут) считаются временными.
func ClassifyPlatformError(err error) ErrorClass {
	var pe *PlatformError
	if errors.As(err, &pe) {
		return pe.Class
	}
	return ErrClassTransient
}
