// Package dispatcher implements the event dispatch and orchestration
// engine described in spec.md §4.2: dedup, backpressure, handler
// selection, per-handler timeout, and graceful drain on shutdown.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mesbot/dispatch/internal/events"
	"github.com/mesbot/dispatch/internal/messenger"
	"github.com/mesbot/dispatch/internal/metrics"
	"github.com/mesbot/dispatch/internal/store"
)

// Handler is the small capability contract from spec.md §4.5/§9: a
// name, a match predicate, and a handle function. Concrete handlers
// are values, not subclasses.
type Handler interface {
	Name() string
	Match(kind messenger.EventKind, msg *messenger.MessagePayload) bool
	Handle(ctx context.Context, kind messenger.EventKind, msg *messenger.MessagePayload, adapter *messenger.Adapter) error
}

// State is the dispatcher's lifecycle state machine (spec.md §4.2).
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

const (
	defaultMaxConcurrentHandlers = 10
	defaultHandlerTimeout        = 30 * time.Second
	defaultDedupCapacity         = 1000
	drainTimeout                 = 10 * time.Second
	drainPollInterval            = 200 * time.Millisecond
)

// Config configures a Dispatcher.
type Config struct {
	Store                  *store.Store
	Adapter                *messenger.Adapter
	Metrics                *metrics.Registry
	Events                 *events.Bus // optional; nil-safe
	Handlers               []Handler
	SelfID                 store.ID
	MaxConcurrentHandlers  int
	HandlerTimeout         time.Duration
	DedupCapacity          int
	InboundRateLimitPerMin int // 0 disables the inbound guard
	Logger                 *slog.Logger
}

// Dispatcher converts inbound adapter events into at most one handler
// invocation each, subject to dedup, concurrency backpressure, and
// per-handler timeout.
type Dispatcher struct {
	store          *store.Store
	adapter        *messenger.Adapter
	metrics        *metrics.Registry
	events         *events.Bus
	handlers       []Handler
	selfID         store.ID
	maxConcurrent  int
	handlerTimeout time.Duration
	logger         *slog.Logger

	dedup   *dedupRing
	limiter *inboundLimiter

	state         atomic.Int32
	activeMu      sync.Mutex
	activeCount   int
	shuttingDown  atomic.Bool
}

// New creates a Dispatcher from cfg, applying spec.md §6 defaults for
// any zero-valued tunable.
func New(cfg Config) *Dispatcher {
	if cfg.MaxConcurrentHandlers <= 0 {
		cfg.MaxConcurrentHandlers = defaultMaxConcurrentHandlers
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = defaultHandlerTimeout
	}
	if cfg.DedupCapacity <= 0 {
		cfg.DedupCapacity = defaultDedupCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	d := &Dispatcher{
		store:          cfg.Store,
		adapter:        cfg.Adapter,
		metrics:        cfg.Metrics,
		events:         cfg.Events,
		handlers:       cfg.Handlers,
		selfID:         cfg.SelfID,
		maxConcurrent:  cfg.MaxConcurrentHandlers,
		handlerTimeout: cfg.HandlerTimeout,
		logger:         cfg.Logger.With("component", "dispatcher"),
		dedup:          newDedupRing(cfg.DedupCapacity),
		limiter:        newInboundLimiter(cfg.InboundRateLimitPerMin),
	}
	d.state.Store(int32(StateIdle))
	return d
}

// State returns the dispatcher's current lifecycle state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// ActiveHandlers returns the current count of in-flight handler
// invocations, for the control plane's overview endpoint.
func (d *Dispatcher) ActiveHandlers() int {
	d.activeMu.Lock()
	defer d.activeMu.Unlock()
	return d.activeCount
}

// Run consumes events until ctx is cancelled or events closes, then
// returns. Call Shutdown concurrently (e.g. from a signal handler) to
// begin the drain sequence while Run is still consuming.
func (d *Dispatcher) Run(ctx context.Context, events <-chan messenger.Event) {
	d.state.Store(int32(StateRunning))
	d.logger.Info("dispatcher running")

	for {
		select {
		case <-ctx.Done():
			d.Shutdown()
			return
		case ev, ok := <-events:
			if !ok {
				d.Shutdown()
				return
			}
			d.dispatch(ctx, ev)
		}
	}
}

// dispatch runs the per-event algorithm of spec.md §4.2, steps 1-7.
func (d *Dispatcher) dispatch(ctx context.Context, ev messenger.Event) {
	if d.shuttingDown.Load() {
		return
	}

	msg := extractMessage(ev)
	if msg == nil {
		return
	}

	if d.selfID != "" && msg.SenderID == d.selfID {
		return
	}

	if err := d.store.EnsureUser(msg.SenderID, nil); err != nil {
		d.logger.Warn("ensure user failed", "error", err)
	}
	if err := d.store.EnsureThread(msg.ThreadID, nil, msg.IsGroup); err != nil {
		d.logger.Warn("ensure thread failed", "error", err)
	}

	blocked, err := d.store.IsBlocked(msg.SenderID)
	if err != nil {
		d.logger.Warn("blocked check failed", "error", err)
	}
	if blocked {
		d.count("events.blocked")
		d.publishDropped(msg, "blocked")
		return
	}

	if !d.limiter.allow(string(msg.SenderID)) {
		d.count("events.rate_limited")
		d.publishDropped(msg, "rate_limited")
		return
	}

	dedupKey := msg.ID
	if dedupKey == "" {
		return
	}
	if d.dedup.seenOrAdd(dedupKey) {
		d.count("events.deduplicated")
		d.publishDropped(msg, "deduplicated")
		return
	}

	d.activeMu.Lock()
	if d.activeCount >= d.maxConcurrent {
		d.activeMu.Unlock()
		d.count("events.dropped")
		d.logger.Warn("dropping event, at max concurrency", "sender", msg.SenderID, "thread", msg.ThreadID)
		d.publishDropped(msg, "backpressure")
		return
	}
	d.activeCount++
	d.activeMu.Unlock()
	d.gauge("handlers.active", float64(d.activeCount))

	if err := d.store.SaveMessage(store.Message{
		ID: msg.ID, ThreadID: msg.ThreadID, SenderID: msg.SenderID,
		Text: msg.Text, IsE2EE: msg.IsE2EE, TimestampMs: msg.TimestampMs,
	}); err != nil {
		d.logger.Warn("save message failed", "error", err)
	}
	d.count("messages.received")

	go d.runHandler(ctx, ev.Kind, msg)
}

func (d *Dispatcher) publishDropped(msg *messenger.MessagePayload, reason string) {
	if d.events == nil {
		return
	}
	d.events.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceDispatcher,
		Kind:      events.KindMessageDropped,
		Data: map[string]any{
			"thread_id": string(msg.ThreadID),
			"sender_id": string(msg.SenderID),
			"reason":    reason,
		},
	})
}

// runHandler selects the first matching handler and runs it under a
// timeout, always releasing the concurrency slot on completion.
func (d *Dispatcher) runHandler(parent context.Context, kind messenger.EventKind, msg *messenger.MessagePayload) {
	defer func() {
		d.activeMu.Lock()
		d.activeCount--
		active := d.activeCount
		d.activeMu.Unlock()
		d.gauge("handlers.active", float64(active))
	}()

	var handler Handler
	for _, h := range d.handlers {
		if h.Match(kind, msg) {
			handler = h
			break
		}
	}
	if handler == nil {
		return
	}

	if d.events != nil {
		d.events.Publish(events.Event{
			Timestamp: time.Now(),
			Source:    events.SourceDispatcher,
			Kind:      events.KindMessageReceived,
			Data: map[string]any{
				"thread_id": string(msg.ThreadID),
				"sender_id": string(msg.SenderID),
				"handler":   handler.Name(),
			},
		})
	}

	if user, err := d.store.GetUser(msg.SenderID); err == nil && user != nil {
		parent = withSenderName(parent, user.Name)
	}

	ctx, cancel := context.WithTimeout(parent, d.handlerTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- handler.Handle(ctx, kind, msg, d.adapter)
	}()

	var handleErr error
	select {
	case handleErr = <-done:
		if handleErr != nil {
			d.count("errors.handler")
			d.logger.Warn("handler error", "handler", handler.Name(), "error", handleErr)
		}
	case <-ctx.Done():
		handleErr = ctx.Err()
		d.count("errors.handler")
		d.logger.Warn("handler timeout", "handler", handler.Name())
		// The late result is not read: done has a buffer of 1, so the
		// goroutine above completes its send and exits without a
		// reader, and GC reclaims the channel.
	}

	if d.events != nil {
		d.events.Publish(events.Event{
			Timestamp: time.Now(),
			Source:    events.SourceDispatcher,
			Kind:      events.KindHandlerDone,
			Data: map[string]any{
				"handler":     handler.Name(),
				"thread_id":   string(msg.ThreadID),
				"ok":          handleErr == nil,
				"duration_ms": time.Since(start).Milliseconds(),
			},
		})
	}
}

// Shutdown transitions the dispatcher to draining, stops accepting new
// handler launches, and waits up to drainTimeout for in-flight handlers
// to finish before marking the dispatcher stopped (spec.md §4.2).
func (d *Dispatcher) Shutdown() {
	if !d.shuttingDown.CompareAndSwap(false, true) {
		return
	}
	d.state.Store(int32(StateDraining))
	d.logger.Info("dispatcher draining")

	deadline := time.Now().Add(drainTimeout)
	for time.Now().Before(deadline) {
		if d.ActiveHandlers() == 0 {
			break
		}
		time.Sleep(drainPollInterval)
	}

	d.state.Store(int32(StateStopped))
	d.logger.Info("dispatcher stopped", "active_handlers_remaining", d.ActiveHandlers())
}

func (d *Dispatcher) count(name string) {
	if d.metrics != nil {
		d.metrics.Inc(name, 1)
	}
}

func (d *Dispatcher) gauge(name string, v float64) {
	if d.metrics != nil {
		d.metrics.SetGauge(name, v)
	}
}

// extractMessage pulls the MessagePayload out of whichever event kind
// carries one; returns nil for event kinds the dispatcher does not
// route to handlers (ready/disconnected/etc).
func extractMessage(ev messenger.Event) *messenger.MessagePayload {
	switch ev.Kind {
	case messenger.KindMessage, messenger.KindE2EEMessage:
		return ev.Message
	default:
		return nil
	}
}
