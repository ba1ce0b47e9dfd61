package messenger

import (
	"context"
	"testing"
	"time"

	"github.com/mesbot/dispatch/internal/metrics"
	"github.com/mesbot/dispatch/internal/store"
)

// fakeTransport is an in-memory Transport double for adapter tests.
type fakeTransport struct {
	events    chan Event
	connected bool
	sent      []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan Event, 64)}
}

func (f *fakeTransport) Connect(ctx context.Context) error { f.connected = true; return nil }
func (f *fakeTransport) Disconnect() error                 { f.connected = false; close(f.events); return nil }
func (f *fakeTransport) Events() <-chan Event               { return f.events }
func (f *fakeTransport) SendMessage(ctx context.Context, threadID store.ID, text string, opts SendOptions) (string, error) {
	f.sent = append(f.sent, text)
	return "sent-1", nil
}
func (f *fakeTransport) SendTyping(ctx context.Context, threadID store.ID, stop bool) error { return nil }
func (f *fakeTransport) SendReaction(ctx context.Context, threadID store.ID, messageID, emoji string) error {
	return nil
}
func (f *fakeTransport) MarkAsRead(ctx context.Context, threadID store.ID, messageID string) error {
	return nil
}
func (f *fakeTransport) Ping(ctx context.Context) error { return nil }

func drain(t *testing.T, ch <-chan Event, n int, timeout time.Duration) []Event {
	t.Helper()
	var out []Event
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, got %d", n, len(out))
		}
	}
	return out
}

func TestAdapter_FullyReadyWithoutE2EE(t *testing.T) {
	ft := newFakeTransport()
	a := New(ft, Config{E2EEEnabled: false})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	events := drain(t, a.Events(), 2, time.Second)
	if events[0].Kind != KindReady {
		t.Fatalf("expected first event ready, got %s", events[0].Kind)
	}
	if events[1].Kind != KindFullyReady {
		t.Fatalf("expected second event fullyReady, got %s", events[1].Kind)
	}

	cancel()
	<-done
}

func TestAdapter_QueuesEventsUntilFullyReady(t *testing.T) {
	ft := newFakeTransport()
	a := New(ft, Config{E2EEEnabled: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Feed a message event before starting Run's connect sequence
	// completes fullyReady, by pre-seeding the transport channel.
	text := "hi"
	ft.events <- Event{Kind: KindMessage, Message: &MessagePayload{ID: "m1", Text: &text}}

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	events := drain(t, a.Events(), 4, time.Second)
	// Expect: ready, e2eeConnected, fullyReady, then the queued message,
	// in that order (spec.md §4.1 order contract, invariant 7).
	wantKinds := []EventKind{KindReady, KindE2EEConnected, KindFullyReady, KindMessage}
	for i, k := range wantKinds {
		if events[i].Kind != k {
			t.Fatalf("event %d: want %s, got %s", i, k, events[i].Kind)
		}
	}
}

func TestAdapter_SendMessage_RateLimited(t *testing.T) {
	ft := newFakeTransport()
	a := New(ft, Config{SendRatePerSec: 1000})

	ctx := context.Background()
	if _, err := a.SendMessage(ctx, "thread-1", "pong", SendOptions{}); err != nil {
		t.Fatal(err)
	}
	if len(ft.sent) != 1 || ft.sent[0] != "pong" {
		t.Fatalf("expected transport to receive send, got %v", ft.sent)
	}
}

func TestAdapter_SendMessage_IncrementsMessagesSent(t *testing.T) {
	ft := newFakeTransport()
	reg := metrics.New(nil)
	a := New(ft, Config{SendRatePerSec: 1000, Metrics: reg})

	if _, err := a.SendMessage(context.Background(), "thread-1", "pong", SendOptions{}); err != nil {
		t.Fatal(err)
	}
	if got := reg.Counter("messages.sent"); got != 1 {
		t.Fatalf("expected messages.sent to be 1, got %d", got)
	}

	if _, err := a.SendMessageDirect(context.Background(), "thread-1", "pong again", SendOptions{}); err != nil {
		t.Fatal(err)
	}
	if got := reg.Counter("messages.sent"); got != 2 {
		t.Fatalf("expected messages.sent to be 2 after a direct send, got %d", got)
	}
}

func TestClassify_TransientVsFatal(t *testing.T) {
	if classify("websocket close 1006 (abnormal closure)") != CodeTransient {
		t.Error("expected websocket close 1006 to classify as transient")
	}
	if classify("Authentication failed") != CodeFatal {
		t.Error("expected Authentication failed to classify as fatal")
	}
}
