// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds a root logger. In debug mode it writes a human-readable
// console stream; otherwise it writes structured JSON, suitable for
// redirection to a file per chamber.
func New(debug bool, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// ForChamber returns a child logger tagged with the chamber index, the
// pattern used throughout to avoid passing a chamber id alongside every
// log call.
func ForChamber(base zerolog.Logger, chamberIndex int) zerolog.Logger {
	return base.With().Int("chamber", chamberIndex).Logger()
}
