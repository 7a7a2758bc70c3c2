// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"io"
	"log/slog"

	"github.com/charmbracelet/log"

	"github.com/hitbuild/hit/internal/config"
)

// newLogger returns a slog logger writing through a charmbracelet/log
// handler. Verbose forces debug level regardless of the configured one.
func newLogger(w io.Writer, level config.LogLevel, verbose bool) *slog.Logger {
	handler := log.NewWithOptions(w, log.Options{
		Prefix: "hit",
		Level:  logLevel(level, verbose),
	})
	return slog.New(handler)
}

func logLevel(level config.LogLevel, verbose bool) log.Level {
	if verbose {
		return log.DebugLevel
	}
	switch level {
	case config.LogLevelDebug:
		return log.DebugLevel
	case config.LogLevelWarn:
		return log.WarnLevel
	case config.LogLevelError:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}
