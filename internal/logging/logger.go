// Package logging sets up the process logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

// LevelEnv selects the log level when no explicit level is given.
const LevelEnv = "TAURI_MCP_LOG_LEVEL"

// New builds a console logger on stderr. Stdout is left alone because the
// MCP stdio transport owns it.
func New(app, level string) zerolog.Logger {
	return NewWithWriter(os.Stderr, app, level)
}

// NewWithWriter is New with a custom destination.
func NewWithWriter(w io.Writer, app, level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal(w),
	}
	logger := zerolog.New(output).Level(ParseLevel(level)).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

// ParseLevel resolves level, falling back to $TAURI_MCP_LOG_LEVEL and then
// info. Unknown names also mean info.
func ParseLevel(level string) zerolog.Level {
	if level == "" {
		level = os.Getenv(LevelEnv)
	}
	if level == "" {
		return zerolog.InfoLevel
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
