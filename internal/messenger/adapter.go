// Package messenger wraps the native chat transport (out of scope; see
// Transport) with rate-limited sends, device-data persistence, event
// re-emission, and reconnect classification (spec.md §4.1).
package messenger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/mesbot/dispatch/internal/events"
	"github.com/mesbot/dispatch/internal/metrics"
	"github.com/mesbot/dispatch/internal/ratelimit"
	"github.com/mesbot/dispatch/internal/store"
)

// reconnectInitialDelay and reconnectMaxDelay bound the adapter's
// exponential backoff on transient transport errors, grounded on
// internal/connwatch's 2s→60s startup schedule.
const (
	reconnectInitialDelay = 2 * time.Second
	reconnectMaxDelay     = 60 * time.Second
	reconnectMultiplier   = 2.0
)

// Config configures an Adapter.
type Config struct {
	SendRatePerSec int
	E2EEEnabled    bool
	E2EEMemoryOnly bool
	DeviceDataPath string
	AutoReconnect  bool
	Events         *events.Bus       // optional; nil-safe
	Metrics        *metrics.Registry // optional; nil-safe
	Logger         *slog.Logger
}

// Adapter wraps a Transport, gating sends through a token bucket,
// persisting device-data blobs, reclassifying transport errors for
// reconnect, and re-emitting a queued event stream that only starts
// flowing once fullyReady has fired (spec.md §4.1 order contract).
type Adapter struct {
	transport Transport
	bucket    *ratelimit.Bucket
	cfg       Config
	logger    *slog.Logger

	out chan Event

	mu         sync.Mutex
	selfID     store.ID
	ready      bool
	e2eeReady  bool
	fullyReady bool
	queued     []Event
}

// New creates an Adapter around transport. Call Run to connect and
// begin the event loop.
func New(transport Transport, cfg Config) *Adapter {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SendRatePerSec <= 0 {
		cfg.SendRatePerSec = 5
	}
	return &Adapter{
		transport: transport,
		bucket:    ratelimit.New(cfg.SendRatePerSec),
		cfg:       cfg,
		logger:    cfg.Logger.With("component", "messenger"),
		out:       make(chan Event, 256),
	}
}

// Events returns the adapter's re-emitted event stream. Events of kind
// message/reaction/typing/readReceipt arriving before fullyReady are
// queued and flushed, in arrival order, immediately after fullyReady
// (spec.md §4.1 order contract, invariant 7).
func (a *Adapter) Events() <-chan Event { return a.out }

// Run connects the transport, loads any persisted device-data blob,
// and drives the event loop until ctx is cancelled or a fatal error is
// observed. AutoReconnect governs whether transient errors trigger a
// reconnect with exponential backoff, per spec.md §4.1.
func (a *Adapter) Run(ctx context.Context) error {
	a.loadDeviceData()

	delay := reconnectInitialDelay
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := a.transport.Connect(ctx)
		if err != nil {
			a.logger.Error("connect failed", "error", err)
			return fmt.Errorf("messenger connect: %w", err)
		}
		a.handleReady()
		delay = reconnectInitialDelay

		fatal := a.drainEvents(ctx)
		if fatal {
			return nil
		}
		if !a.cfg.AutoReconnect || ctx.Err() != nil {
			return nil
		}

		a.logger.Warn("reconnecting after transient error", "delay", delay)
		a.publishEvent(events.KindReconnecting, map[string]any{"backoff_ms": delay.Milliseconds()})
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * reconnectMultiplier)
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
		a.mu.Lock()
		a.ready, a.e2eeReady, a.fullyReady = false, false, false
		a.mu.Unlock()
		a.emitDirect(Event{Kind: KindReconnected})
	}
}

// drainEvents reads from the transport until its channel closes or a
// fatal error arrives. Returns true if a fatal error stopped the loop.
func (a *Adapter) drainEvents(ctx context.Context) (fatal bool) {
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-a.transport.Events():
			if !ok {
				return false
			}
			if ev.Kind == KindError && ev.Error != nil {
				ev.Error.Code = classify(ev.Error.Message)
				a.emit(ev)
				a.publishEvent(events.KindDisconnected, map[string]any{"reason": ev.Error.Message})
				if ev.Error.Code == CodeFatal {
					return true
				}
				return false
			}
			if ev.Kind == KindDeviceDataChanged {
				a.persistDeviceData(ev.DeviceData)
			}
			a.emit(ev)
		}
	}
}

func (a *Adapter) handleReady() {
	a.mu.Lock()
	a.ready = true
	needE2EE := a.cfg.E2EEEnabled
	a.mu.Unlock()

	a.emitDirect(Event{Kind: KindReady})
	a.publishEvent(events.KindReady, nil)

	if !needE2EE {
		a.markFullyReady()
		return
	}
	a.mu.Lock()
	a.e2eeReady = true
	a.mu.Unlock()
	a.emitDirect(Event{Kind: KindE2EEConnected})
	a.markFullyReady()
}

// markFullyReady emits fullyReady exactly once per connect and flushes
// any events queued while not yet ready, in arrival order.
func (a *Adapter) markFullyReady() {
	a.mu.Lock()
	if a.fullyReady {
		a.mu.Unlock()
		return
	}
	a.fullyReady = true
	queued := a.queued
	a.queued = nil
	a.mu.Unlock()

	a.emitDirect(Event{Kind: KindFullyReady})
	a.publishEvent(events.KindFullyReady, map[string]any{"queued": len(queued)})
	for _, ev := range queued {
		a.emitDirect(ev)
	}
}

// publishEvent forwards an operational event to the shared bus, if
// configured. Nil-safe: events.Bus already tolerates a nil receiver,
// but a.cfg.Events itself may also be nil.
func (a *Adapter) publishEvent(kind string, data map[string]any) {
	if a.cfg.Events == nil {
		return
	}
	a.cfg.Events.Publish(events.Event{
		Timestamp: time.Now(),
		Source:    events.SourceMessenger,
		Kind:      kind,
		Data:      data,
	})
}

// emit queues ev if not yet fullyReady, else forwards it directly. Only
// actionable event kinds are queued; connection-lifecycle kinds pass
// straight through via handleReady/markFullyReady.
func (a *Adapter) emit(ev Event) {
	switch ev.Kind {
	case KindMessage, KindE2EEMessage, KindReaction, KindE2EEReaction, KindTyping, KindReadReceipt, KindE2EEReceipt, KindMessageEdit, KindMessageUnsend:
		a.mu.Lock()
		if !a.fullyReady {
			a.queued = append(a.queued, ev)
			a.mu.Unlock()
			return
		}
		a.mu.Unlock()
	}
	a.emitDirect(ev)
}

func (a *Adapter) emitDirect(ev Event) {
	select {
	case a.out <- ev:
	default:
		a.logger.Warn("adapter event channel full, dropping event", "kind", ev.Kind)
	}
}

// count increments a metrics counter if a registry is configured.
func (a *Adapter) count(name string) {
	if a.cfg.Metrics != nil {
		a.cfg.Metrics.Inc(name, 1)
	}
}

// SendMessage sends text to threadID, suspending until the rate
// limiter grants a token.
func (a *Adapter) SendMessage(ctx context.Context, threadID store.ID, text string, opts SendOptions) (string, error) {
	if err := a.bucket.Acquire(ctx); err != nil {
		return "", err
	}
	id, err := a.transport.SendMessage(ctx, threadID, text, opts)
	if err == nil {
		a.count("messages.sent")
	}
	return id, err
}

// SendMessageDirect bypasses the rate limiter, for batch-media sends
// that must post atomically from the platform's perspective (spec.md
// §4.1: "*Direct" sends).
func (a *Adapter) SendMessageDirect(ctx context.Context, threadID store.ID, text string, opts SendOptions) (string, error) {
	id, err := a.transport.SendMessage(ctx, threadID, text, opts)
	if err == nil {
		a.count("messages.sent")
	}
	return id, err
}

// SendTyping starts or stops a typing indicator, rate-limited.
func (a *Adapter) SendTyping(ctx context.Context, threadID store.ID, stop bool) error {
	if err := a.bucket.Acquire(ctx); err != nil {
		return err
	}
	err := a.transport.SendTyping(ctx, threadID, stop)
	if err == nil {
		a.count("messages.sent")
	}
	return err
}

// SendReaction reacts to a message, rate-limited.
func (a *Adapter) SendReaction(ctx context.Context, threadID store.ID, messageID, emoji string) error {
	if err := a.bucket.Acquire(ctx); err != nil {
		return err
	}
	err := a.transport.SendReaction(ctx, threadID, messageID, emoji)
	if err == nil {
		a.count("messages.sent")
	}
	return err
}

// MarkAsRead marks a message read, rate-limited.
func (a *Adapter) MarkAsRead(ctx context.Context, threadID store.ID, messageID string) error {
	if err := a.bucket.Acquire(ctx); err != nil {
		return err
	}
	err := a.transport.MarkAsRead(ctx, threadID, messageID)
	if err == nil {
		a.count("messages.sent")
	}
	return err
}

// Disconnect idempotently tears down the transport.
func (a *Adapter) Disconnect() error {
	return a.transport.Disconnect()
}

// SetSendRate updates the outbound rate limiter's rate live, used when
// SEND_RATE_PER_SEC is edited via the control plane.
func (a *Adapter) SetSendRate(ratePerSec int) {
	a.bucket.SetRate(ratePerSec)
}

// SetSelfID records the bot's own platform identifier, known from
// config (the authenticated cookie's c_user) rather than the
// transport, so the dispatcher can drop self-authored events.
func (a *Adapter) SetSelfID(id store.ID) {
	a.mu.Lock()
	a.selfID = id
	a.mu.Unlock()
}

// SelfID returns the bot's own platform identifier.
func (a *Adapter) SelfID() store.ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selfID
}

func (a *Adapter) persistDeviceData(blob []byte) {
	if a.cfg.E2EEMemoryOnly || a.cfg.DeviceDataPath == "" {
		return
	}
	tmp := a.cfg.DeviceDataPath + ".tmp"
	if err := os.WriteFile(tmp, blob, 0600); err != nil {
		a.logger.Warn("device-data write failed", "error", err)
		return
	}
	if err := os.Rename(tmp, a.cfg.DeviceDataPath); err != nil {
		a.logger.Warn("device-data rename failed", "error", err)
	}
}

func (a *Adapter) loadDeviceData() []byte {
	if a.cfg.DeviceDataPath == "" {
		return nil
	}
	data, err := os.ReadFile(a.cfg.DeviceDataPath)
	if err != nil {
		if !os.IsNotExist(err) {
			a.logger.Warn("device-data read failed", "error", err)
		}
		return nil
	}
	var probe json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		a.logger.Warn("device-data file is not valid JSON, ignoring", "error", err)
		return nil
	}
	return data
}
