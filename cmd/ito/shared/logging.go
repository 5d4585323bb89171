package shared

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
)

var noColor bool

// SetupLogger builds a logger writing to stderr. format is "text" or "json".
func SetupLogger(level, format string) *log.Logger {
	return NewLogger(os.Stderr, level, format)
}

// NewLogger builds a logger writing to w.
func NewLogger(w io.Writer, level, format string) *log.Logger {
	opts := log.Options{
		ReportTimestamp: true,
		Level:           ParseLevel(level),
	}
	if strings.EqualFold(format, "json") {
		opts.Formatter = log.JSONFormatter
	}
	logger := log.NewWithOptions(w, opts)
	if noColor {
		logger.SetColorProfile(termenv.Ascii)
	}
	return logger
}

// ParseLevel maps a level name to a log level, defaulting to info.
func ParseLevel(level string) log.Level {
	parsed, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return log.InfoLevel
	}
	return parsed
}

// DisableColor strips ANSI styling from log output and rendered views.
func DisableColor() {
	noColor = true
	lipgloss.SetColorProfile(termenv.Ascii)
}
