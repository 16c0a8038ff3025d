package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger defines the interface for logging messages.
type Logger interface {
	Error(msg string, err error)
	Warn(msg string)
	Info(msg string)
	Debug(msg string)
}

// Config selects the level and output format of the logger.
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // console or json
}

type zeroLogger struct {
	logger zerolog.Logger
}

// New creates a logger writing to stdout.
func New(cfg Config) Logger {
	return NewWithWriter(os.Stdout, cfg)
}

// NewWithWriter creates a logger writing to w.
func NewWithWriter(w io.Writer, cfg Config) Logger {
	zerolog.ErrorFieldName = "err"
	out := w
	if !strings.EqualFold(cfg.Format, "json") {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	zl := zerolog.New(out).
		Level(parseLevel(cfg.Level)).
		With().Timestamp().CallerWithSkipFrameCount(3).
		Logger()
	return &zeroLogger{logger: zl}
}

// Nop returns a logger that discards everything. Useful in tests.
func Nop() Logger {
	return &zeroLogger{logger: zerolog.Nop()}
}

func parseLevel(s string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Error logs an error message. err may be nil.
func (l *zeroLogger) Error(msg string, err error) {
	e := l.logger.Error()
	if err != nil {
		e = e.Err(err)
	}
	e.Msg(msg)
}

// Warn logs a warning message.
func (l *zeroLogger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Info logs an informational message.
func (l *zeroLogger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Debug logs a debug message.
func (l *zeroLogger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}
