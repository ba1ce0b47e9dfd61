package dispatcher

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mesbot/dispatch/internal/messenger"
	"github.com/mesbot/dispatch/internal/metrics"
	"github.com/mesbot/dispatch/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir()+"/test.db", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// countingHandler matches every message and records how many times it
// ran, optionally blocking until release is closed (to exercise
// concurrency backpressure and timeouts).
type countingHandler struct {
	calls   atomic.Int64
	release chan struct{}
	delay   time.Duration
}

func (h *countingHandler) Name() string { return "counting" }
func (h *countingHandler) Match(kind messenger.EventKind, msg *messenger.MessagePayload) bool {
	return true
}
func (h *countingHandler) Handle(ctx context.Context, kind messenger.EventKind, msg *messenger.MessagePayload, adapter *messenger.Adapter) error {
	h.calls.Add(1)
	if h.release != nil {
		select {
		case <-h.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if h.delay > 0 {
		select {
		case <-time.After(h.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func textMessageEvent(id, threadID, senderID string) messenger.Event {
	text := "hello"
	return messenger.Event{
		Kind: messenger.KindMessage,
		Message: &messenger.MessagePayload{
			ID: id, ThreadID: store.ID(threadID), SenderID: store.ID(senderID),
			Text: &text, TimestampMs: time.Now().UnixMilli(),
		},
	}
}

func waitForCalls(t *testing.T, h *countingHandler, n int64, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		if h.calls.Load() >= n {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %d calls, got %d", n, h.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestDispatcher_DedupDropsSecondOccurrence(t *testing.T) {
	st := newTestStore(t)
	h := &countingHandler{}
	d := New(Config{Store: st, Handlers: []Handler{h}})

	ctx := context.Background()
	d.dispatch(ctx, textMessageEvent("m.5", "t1", "u1"))
	d.dispatch(ctx, textMessageEvent("m.5", "t1", "u1"))

	waitForCalls(t, h, 1, time.Second)
	time.Sleep(20 * time.Millisecond)
	if h.calls.Load() != 1 {
		t.Fatalf("expected exactly 1 handler call, got %d", h.calls.Load())
	}
}

func TestDispatcher_AcceptedMessageIncrementsMessagesReceived(t *testing.T) {
	st := newTestStore(t)
	h := &countingHandler{}
	reg := metrics.New(nil)
	d := New(Config{Store: st, Handlers: []Handler{h}, Metrics: reg})

	d.dispatch(context.Background(), textMessageEvent("m.1", "t1", "u1"))
	waitForCalls(t, h, 1, time.Second)

	if got := reg.Counter("messages.received"); got != 1 {
		t.Fatalf("expected messages.received to be 1, got %d", got)
	}
}

func TestDispatcher_DropsBlockedSender(t *testing.T) {
	st := newTestStore(t)
	if err := st.EnsureUser("u1", nil); err != nil {
		t.Fatal(err)
	}
	if err := st.SetBlocked("u1", true); err != nil {
		t.Fatal(err)
	}

	h := &countingHandler{}
	d := New(Config{Store: st, Handlers: []Handler{h}})

	d.dispatch(context.Background(), textMessageEvent("m.1", "t1", "u1"))
	time.Sleep(20 * time.Millisecond)
	if h.calls.Load() != 0 {
		t.Fatalf("expected blocked sender's message to never reach a handler, got %d calls", h.calls.Load())
	}
}

func TestDispatcher_DropsSelf(t *testing.T) {
	st := newTestStore(t)
	h := &countingHandler{}
	d := New(Config{Store: st, Handlers: []Handler{h}, SelfID: "u1"})

	d.dispatch(context.Background(), textMessageEvent("m.1", "t1", "u1"))
	time.Sleep(20 * time.Millisecond)
	if h.calls.Load() != 0 {
		t.Fatalf("expected self-authored message to be dropped, got %d calls", h.calls.Load())
	}
}

func TestDispatcher_BackpressureDropsOverCap(t *testing.T) {
	st := newTestStore(t)
	h := &countingHandler{release: make(chan struct{})}
	d := New(Config{Store: st, Handlers: []Handler{h}, MaxConcurrentHandlers: 1})

	ctx := context.Background()
	d.dispatch(ctx, textMessageEvent("m.1", "t1", "u1"))
	waitForCalls(t, h, 1, time.Second)

	// A second distinct message arrives while the first handler is
	// still running and the concurrency cap is 1: it must be dropped,
	// not queued (spec.md §4.2 step 5 / invariant 3).
	d.dispatch(ctx, textMessageEvent("m.2", "t1", "u2"))
	time.Sleep(20 * time.Millisecond)
	if d.ActiveHandlers() != 1 {
		t.Fatalf("expected activeHandlers to remain 1, got %d", d.ActiveHandlers())
	}

	close(h.release)
}

func TestDispatcher_HandlerTimeout(t *testing.T) {
	st := newTestStore(t)
	h := &countingHandler{delay: 200 * time.Millisecond}
	d := New(Config{Store: st, Handlers: []Handler{h}, HandlerTimeout: 20 * time.Millisecond})

	d.dispatch(context.Background(), textMessageEvent("m.1", "t1", "u1"))
	waitForCalls(t, h, 1, time.Second)

	// activeHandlers must be released promptly after the timeout fires,
	// not after the slow handler's real delay elapses.
	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		if d.ActiveHandlers() == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected activeHandlers to reach 0 shortly after handler timeout")
}

func TestDispatcher_ShutdownDrainsThenStops(t *testing.T) {
	st := newTestStore(t)
	h := &countingHandler{release: make(chan struct{})}
	d := New(Config{Store: st, Handlers: []Handler{h}})

	d.dispatch(context.Background(), textMessageEvent("m.1", "t1", "u1"))
	waitForCalls(t, h, 1, time.Second)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.Shutdown()
	}()

	time.Sleep(20 * time.Millisecond)
	if d.State() != StateDraining {
		t.Fatalf("expected state draining while handler still active, got %s", d.State())
	}

	close(h.release)
	wg.Wait()

	if d.State() != StateStopped {
		t.Fatalf("expected state stopped after drain, got %s", d.State())
	}

	// No new handler launch is accepted once shutting down.
	d.dispatch(context.Background(), textMessageEvent("m.2", "t1", "u2"))
	time.Sleep(20 * time.Millisecond)
	if h.calls.Load() != 1 {
		t.Fatalf("expected no new handler calls after shutdown, got %d", h.calls.Load())
	}
}
