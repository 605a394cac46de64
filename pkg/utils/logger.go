package utils

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type ctxKey string

// RequestIDKey ключ контекста с идентификатором запроса
const RequestIDKey ctxKey = "request_id"

// Logger обертка над logrus с цепочечным добавлением полей
type Logger struct {
	*logrus.Entry
}

// NewLogger создает новый логгер.
// level: debug, info, warn, error, fatal; format: json или text
func NewLogger(level, format string) *Logger {
	return NewLoggerWithOutput(level, format, os.Stdout)
}

// NewLoggerWithOutput создает логгер, пишущий в заданный writer
func NewLoggerWithOutput(level, format string, out io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(out)

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	if strings.ToLower(format) == "json" {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return &Logger{Entry: logrus.NewEntry(base)}
}

// WithField добавляет поле к логгеру
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}

// WithFields добавляет несколько полей к логгеру
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithFields(logrus.Fields(fields))}
}

// WithError добавляет ошибку в поле "error"
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Entry: l.Entry.WithError(err)}
}

// WithContext добавляет request_id из контекста, если он есть
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}
	if id, ok := ctx.Value(RequestIDKey).(string); ok && id != "" {
		return l.WithField("request_id", id)
	}
	return l
}

// SetLevel меняет уровень логирования базового логгера
func (l *Logger) SetLevel(level logrus.Level) {
	l.Entry.Logger.SetLevel(level)
}

var defaultLogger = NewLogger("info", "text")

// SetDefaultLogger устанавливает логгер по умолчанию
func SetDefaultLogger(logger *Logger) {
	defaultLogger = logger
}

// Default возвращает логгер по умолчанию
func Default() *Logger {
	return defaultLogger
}

// NewNopLogger логгер для тестов, отбрасывающий вывод
func NewNopLogger() *Logger {
	return NewLoggerWithOutput("panic", "text", io.Discard)
}
