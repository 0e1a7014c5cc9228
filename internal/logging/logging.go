// Package logging builds the process-wide slog handler: colorized text for
// terminals, JSON otherwise.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"

	"llmdeepseek/config"
)

// Formats accepted by config.LogConfig.Format.
const (
	FormatAuto   = ""
	FormatPretty = "pretty"
	FormatJSON   = "json"
)

// ParseLevel accepts debug, info, warn/warning and error, case-insensitively.
// An empty string means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// NewHandler returns a tint handler when format is pretty, or when it is auto
// and out is a terminal; a JSON handler otherwise.
func NewHandler(out io.Writer, format string, level slog.Level) (slog.Handler, error) {
	switch format {
	case FormatAuto:
		if isTerminal(out) {
			return prettyHandler(out, level, false), nil
		}
		return jsonHandler(out, level), nil
	case FormatPretty:
		return prettyHandler(out, level, !isTerminal(out)), nil
	case FormatJSON:
		return jsonHandler(out, level), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// Setup installs the handler described by cfg as the slog default.
func Setup(cfg config.LogConfig, out io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	h, err := NewHandler(out, cfg.Format, level)
	if err != nil {
		return nil, err
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, nil
}

func prettyHandler(out io.Writer, level slog.Level, noColor bool) slog.Handler {
	return tint.NewHandler(out, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	})
}

func jsonHandler(out io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
