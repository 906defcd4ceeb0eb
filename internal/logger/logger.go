// Package logger initializes and configures the global zerolog instance.
package logger

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds configuration options for the application logger.
type Config struct {
	Level  string `short:"l" long:"level" env:"LEVEL" description:"Log level (off, error, warn, info, debug, trace), a prefix of one or 0-5 (default: warn)" toml:"level" json:"level"`
	Format string `long:"format" env:"FORMAT" description:"Log format, console or json (default: console)" toml:"format" json:"format"`
	Output string `long:"output" env:"OUTPUT" description:"Log output, stdout, stderr or file path (default: stderr)" toml:"output" json:"output"`
}

// levels in verbosity order, so the numeric form indexes this slice
var levels = []struct {
	name  string
	level zerolog.Level
}{
	{"off", zerolog.Disabled},
	{"error", zerolog.ErrorLevel},
	{"warn", zerolog.WarnLevel},
	{"info", zerolog.InfoLevel},
	{"debug", zerolog.DebugLevel},
	{"trace", zerolog.TraceLevel},
}

// ParseLevel accepts a level name, any prefix of it ("w", "deb"), or its number
// from 0 (off) to 5 (trace). Prefixes are matched in the order off, error, warn, info,
// debug, trace.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))

	for _, l := range levels {
		if strings.HasPrefix(l.name, s) {
			return l.level, nil
		}
	}

	if n, err := strconv.ParseUint(s, 10, 8); err == nil && int(n) < len(levels) {
		return levels[n].level, nil
	}

	return zerolog.NoLevel, fmt.Errorf("invalid log level %q", s)
}

// Setup initializes the global logger based on the provided configuration options.
// It sets the log level, output destination (stdout, stderr, or file), and format (JSON or Console).
func Setup(cfg Config) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	// Output Writer
	var writer io.Writer
	switch cfg.Output {
	case "stdout":
		writer = os.Stdout
	case "stderr", "":
		writer = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			// Fallback to stderr if file fails
			tempLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
			tempLogger.Error().Err(err).Str("path", cfg.Output).Msg("Failed to open log file, falling back to stderr")
			writer = os.Stderr
		} else {
			writer = file
		}
	}

	log.Logger = New(writer, cfg.Format)
}

// New builds a logger writing to w in the given format ("json" or console).
func New(w io.Writer, format string) zerolog.Logger {
	if format == "json" {
		return zerolog.New(w).With().Timestamp().Logger()
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.RFC3339,
	}

	// Detect colors: check if writer is file/tty AND NO_COLOR is not set
	if f, ok := w.(*os.File); !ok || os.Getenv("NO_COLOR") != "" || !isTerminal(f) {
		consoleWriter.NoColor = true
	}

	return zerolog.New(consoleWriter).With().Timestamp().Logger()
}

// isTerminal checks if the provided file descriptor refers to a character device (terminal).
func isTerminal(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}

	return (stat.Mode() & os.ModeCharDevice) != 0
}
