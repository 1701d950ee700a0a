package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// zlog wraps a component-scoped zerolog.Logger behind the core interface.
type zlog struct {
	z zerolog.Logger
}

// NewZerologLogger builds a logger tagged with the component name. Output is
// JSON by default; setting DISPATCH_ENV=dev switches to the console writer
// and enables debug-level logs.
func NewZerologLogger(component string) Logger {
	dev := strings.ToLower(os.Getenv("DISPATCH_ENV")) == "dev"

	var out zerolog.Logger
	level := zerolog.InfoLevel
	if dev {
		cw := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
		out = zerolog.New(cw)
		level = zerolog.DebugLevel
	} else {
		out = zerolog.New(os.Stdout)
	}
	z := out.Level(level).With().
		Timestamp().
		Str("component", component).
		Logger()
	return &zlog{z: z}
}

func (l *zlog) Debugf(format string, args ...any) { l.z.Debug().Msgf(format, args...) }
func (l *zlog) Infof(format string, args ...any)  { l.z.Info().Msgf(format, args...) }
func (l *zlog) Warnf(format string, args ...any)  { l.z.Warn().Msgf(format, args...) }
func (l *zlog) Errorf(format string, args ...any) { l.z.Error().Msgf(format, args...) }

func (l *zlog) Debugw(msg string, fields map[string]any) {
	l.z.Debug().Fields(fields).Msg(msg)
}
