package controlplane

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mesbot/dispatch/internal/events"
)

// sseSubscriberBuffer matches the teacher's WebSocket-consumer default
// in internal/events.Bus.Subscribe's doc comment.
const sseSubscriberBuffer = 64

// handleEventStream serves the live dashboard feed: a Server-Sent
// Events stream of operational events from every component wired to
// the shared bus. Grounded on internal/api/server.go's
// handleStreamingCompletion/writeSSE idiom, generalized from a single
// completion's token stream to the bus's broadcast events.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream not configured")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sub := s.cfg.Events.Subscribe(sseSubscriberBuffer)
	defer s.cfg.Events.Unsubscribe(sub)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			if !writeSSE(w, ev) {
				return
			}
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev events.Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		return true // skip a malformed event, keep the stream alive
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err == nil
}
