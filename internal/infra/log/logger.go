package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options задают уровень и файлы вывода.
type Options struct {
	AppEnv    string
	Level     string
	File      string
	ErrorFile string
}

// NewLogger создаёт настроенный zerolog. LOG_LEVEL имеет приоритет над APP_ENV;
// LOG_FILE и LOG_ERROR_FILE добавляют файловые выводы к stdout.
func NewLogger(opts Options) zerolog.Logger {
	level := zerolog.InfoLevel
	if opts.AppEnv == "dev" {
		level = zerolog.DebugLevel
	}
	if opts.Level != "" {
		if parsed, err := zerolog.ParseLevel(opts.Level); err == nil {
			level = parsed
		}
	}

	writers := []io.Writer{os.Stdout}
	if opts.File != "" {
		if f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			writers = append(writers, f)
		}
	}
	if opts.ErrorFile != "" {
		if f, err := os.OpenFile(opts.ErrorFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			writers = append(writers, errorOnlyWriter{w: f})
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339
	out := io.Writer(os.Stdout)
	if len(writers) > 1 {
		out = zerolog.MultiLevelWriter(writers...)
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(level)
}

// errorOnlyWriter пропускает только записи уровня error и выше.
type errorOnlyWriter struct {
	w io.Writer
}

func (e errorOnlyWriter) Write(p []byte) (int, error) {
	// MultiLevelWriter вызывает WriteLevel; Write используется как запасной путь.
	return len(p), nil
}

// WriteLevel реализует zerolog.LevelWriter.
func (e errorOnlyWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	if level < zerolog.ErrorLevel {
		return len(p), nil
	}
	return e.w.Write(p)
}
