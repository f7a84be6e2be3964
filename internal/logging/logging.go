// Package logging wraps zerolog with the component-tagged convention the
// teacher expressed with raw log.Printf("[component] ...") calls
// throughout internal/webhook, internal/snapshot, and internal/client.
// Structured fields replace the bracketed prefix.
package logging

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	mu   sync.RWMutex
	base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
		With().Timestamp().Logger()
)

func root() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// SetOutput lets cmd/ binaries switch to JSON output for production use.
func SetOutput(w zerolog.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = w
}

// For returns a logger tagged with component=name, the structured
// successor to the teacher's "[component] message" prefix.
func For(component string) zerolog.Logger {
	return root().With().Str("component", component).Logger()
}
