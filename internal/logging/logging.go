// Package logging builds the structured loggers shared by both binaries.
package logging

import (
	"io"

	"github.com/charmbracelet/log"
)

// New returns a logger writing to w. Info and above are shown unless verbose
// is set, which enables debug output.
func New(w io.Writer, verbose bool, prefix string) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		Prefix: prefix,
		Level:  level,
	})
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
