package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is a named, leveled logger.
type Logger struct {
	name string
	zl   zerolog.Logger
}

// ParseLevel maps DEBUG/INFO/WARN/ERROR (any case) to a zerolog level; anything else is INFO.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a logger writing human-readable lines to w, or to stdout when w is nil.
func NewLogger(name string, level string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	out := zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime, NoColor: w != os.Stdout}
	zl := zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Str("logger", name).Logger()
	return &Logger{name: name, zl: zl}
}

// Name returns the name the logger was created with.
func (l *Logger) Name() string { return l.name }

func (l *Logger) Debugf(format string, args ...any) {
	l.zl.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.zl.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.zl.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.zl.Error().Msgf(format, args...)
}
