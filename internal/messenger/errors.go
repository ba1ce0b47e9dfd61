package messenger

import (
	"errors"
	"strings"
)

// ErrUnavailable signals a retryable connect failure (spec.md §4.1).
var ErrUnavailable = errors.New("messenger: transport unavailable")

// ErrUnauthenticated signals a fatal connect failure (spec.md §4.1).
var ErrUnauthenticated = errors.New("messenger: transport unauthenticated")

// transientMarkers is the fixed, case-insensitive substring set used to
// classify a transport error as transient (eligible for auto-reconnect)
// versus fatal (spec.md §4.1).
var transientMarkers = []string{
	"websocket close 1006",
	"unexpected eof",
	"connection reset",
	"econnreset",
	"epipe",
	"etimedout",
	"econnrefused",
	"socket hang up",
	"network changed",
}

// classify returns CodeTransient if msg matches a known transient
// marker, otherwise CodeFatal.
func classify(msg string) ErrorCode {
	lower := strings.ToLower(msg)
	for _, marker := range transientMarkers {
		if strings.Contains(lower, marker) {
			return CodeTransient
		}
	}
	return CodeFatal
}
