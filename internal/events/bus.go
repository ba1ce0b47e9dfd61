// Package events provides a publish/subscribe event bus for operational
// observability. Events flow from components (dispatcher, messenger
// adapter) to subscribers (the control plane's live
// dashboard feed). The bus is nil-safe: calling Publish on a nil *Bus is
// a no-op, so components do not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceDispatcher identifies events from the dispatcher's dispatch loop.
	SourceDispatcher = "dispatcher"
	// SourceMessenger identifies events from the messenger adapter.
	SourceMessenger = "messenger"
	// SourceAIPipeline identifies events from the AI reply pipeline.
	SourceAIPipeline = "aipipeline"
	// SourceControlPlane identifies events from the control plane HTTP server.
	SourceControlPlane = "controlplane"
)

// Kind constants describe the type of event within a source.
const (
	// KindMessageReceived signals an inbound message accepted for dispatch.
	// Data: thread_id, sender_id, handler.
	KindMessageReceived = "message_received"
	// KindMessageDropped signals an inbound message rejected before
	// reaching a handler (blocked sender, rate limit, dedup, backpressure).
	// Data: thread_id, sender_id, reason.
	KindMessageDropped = "message_dropped"
	// KindHandlerDone signals a handler finished running.
	// Data: handler, thread_id, ok, duration_ms.
	KindHandlerDone = "handler_done"

	// KindReady signals the messenger transport reached the ready state.
	KindReady = "ready"
	// KindFullyReady signals the messenger transport reached fully-ready
	// (post-queue-flush) state.
	KindFullyReady = "fully_ready"
	// KindDisconnected signals the messenger transport dropped its
	// connection. Data: reason.
	KindDisconnected = "disconnected"
	// KindReconnecting signals a reconnect attempt is underway.
	// Data: backoff_ms.
	KindReconnecting = "reconnecting"

	// KindReplyComposed signals the AI pipeline produced a candidate
	// reply. Data: thread_id, action.
	KindReplyComposed = "reply_composed"
	// KindSafetyBlocked signals the safety gate rejected a composed reply.
	// Data: thread_id, reason.
	KindSafetyBlocked = "safety_blocked"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs. This allows
	// Unsubscribe to accept <-chan Event (the caller's view) without
	// an illegal type conversion.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full — drop the event rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer; 64 is a reasonable default for
// WebSocket consumers.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
