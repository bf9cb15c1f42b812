// Package logging holds the process-wide structured logger.
package logging

import (
	"io"
	"os"
	"sync/atomic"

	charm "github.com/charmbracelet/log"
)

var defaultLogger atomic.Pointer[charm.Logger]

func init() {
	defaultLogger.Store(New(os.Stderr, false))
}

// Default returns the global logger
func Default() *charm.Logger {
	return defaultLogger.Load()
}

// SetDefault replaces the global logger; nil is ignored
func SetDefault(l *charm.Logger) {
	if l != nil {
		defaultLogger.Store(l)
	}
}

// New creates a logger writing to w. Verbose enables debug output.
func New(w io.Writer, verbose bool) *charm.Logger {
	l := charm.NewWithOptions(w, charm.Options{
		Prefix:          "covmatrix",
		ReportTimestamp: true,
	})
	if verbose {
		l.SetLevel(charm.DebugLevel)
	} else {
		l.SetLevel(charm.InfoLevel)
	}
	return l
}

// Or returns l, falling back to the global logger when l is nil
func Or(l *charm.Logger) *charm.Logger {
	if l != nil {
		return l
	}
	return Default()
}
