// Package logger builds the zerolog loggers used by the client and its
// binaries.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dvcrn/authclient/internal/env"
	"github.com/rs/zerolog"
)

const (
	colorRed     = 31
	colorGreen   = 32
	colorYellow  = 33
	colorMagenta = 35

	colorBold = 1
)

func colorize(s interface{}, c int) string {
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

// New creates a logger based on the ENV and LOG_LEVEL environment variables
func New() zerolog.Logger {
	mode, _ := env.Get("ENV")
	level, _ := env.Get("LOG_LEVEL")

	var l zerolog.Logger
	if mode == "development" || mode == "dev" || mode == "" {
		l = NewDevelopment(os.Stderr)
	} else {
		l = NewProduction(os.Stderr)
	}
	return l.Level(ParseLevel(level))
}

// ParseLevel maps a level name to a zerolog level. Empty or unknown names
// fall back to info.
func ParseLevel(name string) zerolog.Level {
	if name == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// NewDevelopment creates a development logger with console output and colors
func NewDevelopment(w io.Writer) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:         w,
		TimeFormat:  "2006-01-02 15:04:05",
		FormatLevel: formatLevel,
	}
	return zerolog.New(output).With().Timestamp().Logger()
}

func formatLevel(i interface{}) string {
	ll, ok := i.(string)
	if !ok {
		return strings.ToUpper(fmt.Sprintf("%-3.3s", fmt.Sprint(i)))
	}
	switch ll {
	case "trace":
		return colorize("TRC", colorMagenta)
	case "debug":
		return colorize("DBG", colorYellow)
	case "info":
		return colorize("INF", colorGreen)
	case "warn":
		return colorize("WRN", colorRed)
	case "error":
		return colorize("ERR", colorRed)
	case "fatal":
		return colorize("FTL", colorRed)
	case "panic":
		return colorize("PNC", colorRed)
	default:
		return colorize(strings.ToUpper(fmt.Sprintf("%-3.3s", ll)), colorBold)
	}
}

// NewProduction creates a production logger with JSON output and UNIX timestamps
func NewProduction(w io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	return zerolog.New(w).With().Timestamp().Logger()
}
