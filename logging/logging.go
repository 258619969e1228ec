// Package logging builds the root zerolog logger of the CLIs.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options configures Setup.
type Options struct {
	Level  string
	Format string
	// File, when set, receives a JSON copy of every log line and is rotated.
	File string
	// Out defaults to os.Stderr.
	Out io.Writer
}

// Setup returns a logger tagged with a fresh run_id.
func Setup(opts Options) zerolog.Logger {
	zerolog.MessageFieldName = "message"
	zerolog.LevelFieldName = "level"
	zerolog.TimeFieldFormat = time.RFC3339

	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	var w io.Writer = out
	if opts.Format != FormatJSON {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	if opts.File != "" {
		w = zerolog.MultiLevelWriter(w, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
		})
	}

	level, known := ParseLevel(opts.Level)
	logger := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("run_id", uuid.NewString()).
		Logger()
	if !known {
		logger.Warn().Msgf("Unknown log level '%s', defaulting to debug", opts.Level)
	}
	return logger
}

// ParseLevel maps a level name to a zerolog level. "warning" is accepted for
// "warn" and the empty string means info. Unknown names give debug and false.
func ParseLevel(s string) (zerolog.Level, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return zerolog.InfoLevel, true
	case "warning":
		s = "warn"
	}
	var level zerolog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return zerolog.DebugLevel, false
	}
	return level, true
}
