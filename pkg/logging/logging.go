package logging

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level represents a log level.
type Level = slog.Level

// Log levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format represents the log output format.
type Format string

// Output formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level Level

	// Format is the output format (text or json).
	Format Format

	// Output is the writer to send logs to. Defaults to os.Stderr.
	Output io.Writer

	// NoColor disables ANSI colors on the level of text output.
	NoColor bool
}

// DefaultConfig returns the defaults: info level text on stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatText,
		Output: os.Stderr,
	}
}

// ANSI color sequences per level.
const (
	colorReset = "\x1b[0m"
	colorDebug = "\x1b[36m" // cyan
	colorInfo  = "\x1b[32m" // green
	colorWarn  = "\x1b[33m" // yellow
	colorError = "\x1b[31m" // red
)

// New creates a new slog.Logger with the given configuration.
func New(cfg Config) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(cfg.Output, opts)
	default:
		out := cfg.Output
		if !cfg.NoColor {
			out = &colorWriter{w: out}
		}
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}

// colorWriter colors the level value of each encoded text record. The
// text handler writes one record per Write call.
type colorWriter struct {
	w io.Writer
}

var levelKey = []byte("level=")

func (c *colorWriter) Write(p []byte) (int, error) {
	i := bytes.Index(p, levelKey)
	if i < 0 {
		return c.w.Write(p)
	}
	start := i + len(levelKey)
	n := bytes.IndexByte(p[start:], ' ')
	if n <= 0 {
		return c.w.Write(p)
	}
	end := start + n

	var level slog.Level
	if err := level.UnmarshalText(p[start:end]); err != nil {
		return c.w.Write(p)
	}

	line := make([]byte, 0, len(p)+len(colorError)+len(colorReset))
	line = append(line, p[:start]...)
	line = append(line, LevelColor(level)...)
	line = append(line, p[start:end]...)
	line = append(line, colorReset...)
	line = append(line, p[end:]...)
	if _, err := c.w.Write(line); err != nil {
		return 0, err
	}
	return len(p), nil
}

// LevelColor returns the ANSI color sequence used for level.
func LevelColor(level Level) string {
	switch {
	case level >= LevelError:
		return colorError
	case level >= LevelWarn:
		return colorWarn
	case level >= LevelInfo:
		return colorInfo
	default:
		return colorDebug
	}
}

// Nop returns a no-op logger that discards all output.
// Use this when a logger is required but logging is disabled.
func Nop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// ParseLevel parses a log level string, case-insensitively.
// Valid values: "debug", "info", "warn", "warning", "error".
// Returns LevelInfo if the string is not recognized.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// ParseFormat parses a log format string.
// Valid values: "text", "json".
// Returns FormatText if the string is not recognized.
func ParseFormat(s string) Format {
	if strings.EqualFold(s, "json") {
		return FormatJSON
	}
	return FormatText
}
