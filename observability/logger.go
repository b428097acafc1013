// Package observability wires structured logging and Prometheus metrics.
package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger creates a structured JSON logger tagged with service and version.
// An empty level means "info".
func NewLogger(service, version string, output io.Writer, level string) (zerolog.Logger, error) {
	if output == nil {
		output = os.Stderr
	}
	lvl := zerolog.InfoLevel
	if strings.TrimSpace(level) != "" {
		var err error
		lvl, err = zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Nop(), err
		}
	}

	zerolog.TimeFieldFormat = time.RFC3339

	return zerolog.New(output).Level(lvl).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", hostname()).
		Logger(), nil
}

// NewConsoleLogger is NewLogger with human readable output, for CLIs.
func NewConsoleLogger(service, version string, output io.Writer, level string) (zerolog.Logger, error) {
	if output == nil {
		output = os.Stderr
	}
	return NewLogger(service, version, zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen}, level)
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
