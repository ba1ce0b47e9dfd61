package handlers

import (
	"context"
	"errors"
	"testing"

	"github.com/mesbot/dispatch/internal/commands"
	"github.com/mesbot/dispatch/internal/messenger"
	"github.com/mesbot/dispatch/internal/store"
)

// fakeTransport is a minimal messenger.Transport double good enough to
// build a real *messenger.Adapter for handler tests (handlers call
// adapter.SendMessage, not the transport directly).
type fakeTransport struct {
	sent []string
}

func (f *fakeTransport) Connect(ctx context.Context) error { return nil }
func (f *fakeTransport) Disconnect() error                 { return nil }
func (f *fakeTransport) Events() <-chan messenger.Event     { return make(chan messenger.Event) }
func (f *fakeTransport) SendMessage(ctx context.Context, threadID store.ID, text string, opts messenger.SendOptions) (string, error) {
	f.sent = append(f.sent, text)
	return "msg-1", nil
}
func (f *fakeTransport) SendTyping(ctx context.Context, threadID store.ID, stop bool) error {
	return nil
}
func (f *fakeTransport) SendReaction(ctx context.Context, threadID store.ID, messageID, emoji string) error {
	return nil
}
func (f *fakeTransport) MarkAsRead(ctx context.Context, threadID store.ID, messageID string) error {
	return nil
}
func (f *fakeTransport) Ping(ctx context.Context) error { return nil }

func newTestAdapter() (*messenger.Adapter, *fakeTransport) {
	ft := &fakeTransport{}
	return messenger.New(ft, messenger.Config{}), ft
}

func strPtr(s string) *string { return &s }

func TestPingHandler_MatchesLiteralPing(t *testing.T) {
	h := PingHandler{}
	msg := &messenger.MessagePayload{Text: strPtr("ping")}
	if !h.Match(messenger.KindMessage, msg) {
		t.Fatal("expected match on literal ping")
	}

	msg.Text = strPtr("ping pong")
	if h.Match(messenger.KindMessage, msg) {
		t.Fatal("expected no match when ping is not the whole message")
	}
}

func TestPingHandler_Handle_RepliesPong(t *testing.T) {
	h := PingHandler{}
	adapter, ft := newTestAdapter()
	msg := &messenger.MessagePayload{ThreadID: "t1", Text: strPtr("ping")}

	if err := h.Handle(context.Background(), messenger.KindMessage, msg, adapter); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ft.sent) != 1 || ft.sent[0] != "pong 🏓" {
		t.Fatalf("expected a single pong reply, got %v", ft.sent)
	}
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir()+"/test.db", nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCommandHandler_MatchRequiresPrefix(t *testing.T) {
	st := newTestStore(t)
	h := &CommandHandler{Registry: commands.NewRegistry(), Store: st}

	msg := &messenger.MessagePayload{ThreadID: "t1", Text: strPtr("!ping")}
	if !h.Match(messenger.KindMessage, msg) {
		t.Fatal("expected match on default ! prefix")
	}

	msg.Text = strPtr("hello")
	if h.Match(messenger.KindMessage, msg) {
		t.Fatal("expected no match without prefix")
	}
}

func TestCommandHandler_UnknownCommandIsSilent(t *testing.T) {
	st := newTestStore(t)
	h := &CommandHandler{Registry: commands.NewRegistry(), Store: st}
	adapter, ft := newTestAdapter()

	msg := &messenger.MessagePayload{ThreadID: "t1", SenderID: "u1", Text: strPtr("!nope")}
	if err := h.Handle(context.Background(), messenger.KindMessage, msg, adapter); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ft.sent) != 0 {
		t.Fatalf("expected no reply for an unknown command, got %v", ft.sent)
	}
}

func TestCommandHandler_PermissionDeniedRepliesLockEmoji(t *testing.T) {
	st := newTestStore(t)
	registry := commands.NewRegistry()
	registry.Register(&commands.Command{
		Name:       "admin-only",
		Permission: commands.PermissionAdmin,
		Execute: func(ctx context.Context, inv commands.Invocation) (string, error) {
			return "should not run", nil
		},
	})
	h := &CommandHandler{Registry: registry, Store: st}
	adapter, ft := newTestAdapter()

	if err := st.EnsureUser("u1", nil); err != nil {
		t.Fatal(err)
	}

	msg := &messenger.MessagePayload{ThreadID: "t1", SenderID: "u1", Text: strPtr("!admin-only")}
	if err := h.Handle(context.Background(), messenger.KindMessage, msg, adapter); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ft.sent) != 1 || ft.sent[0] != "🔒 This command requires admin permissions" {
		t.Fatalf("expected permission-denied reply, got %v", ft.sent)
	}
}

func TestCommandHandler_AdminUserCanRunAdminCommand(t *testing.T) {
	st := newTestStore(t)
	registry := commands.NewRegistry()
	registry.Register(&commands.Command{
		Name:       "admin-only",
		Permission: commands.PermissionAdmin,
		Execute: func(ctx context.Context, inv commands.Invocation) (string, error) {
			return "ran it", nil
		},
	})
	h := &CommandHandler{Registry: registry, Store: st}
	adapter, ft := newTestAdapter()

	if err := st.EnsureUser("u1", nil); err != nil {
		t.Fatal(err)
	}
	if err := st.SetAdmin("u1", true); err != nil {
		t.Fatal(err)
	}

	msg := &messenger.MessagePayload{ThreadID: "t1", SenderID: "u1", Text: strPtr("!admin-only")}
	if err := h.Handle(context.Background(), messenger.KindMessage, msg, adapter); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ft.sent) != 1 || ft.sent[0] != "ran it" {
		t.Fatalf("expected the command's reply, got %v", ft.sent)
	}
}

func TestCommandHandler_RespectsThreadPrefix(t *testing.T) {
	st := newTestStore(t)
	if err := st.EnsureThread("t1", nil, false); err != nil {
		t.Fatal(err)
	}
	if err := st.SetThreadPrefix("t1", "$"); err != nil {
		t.Fatal(err)
	}

	h := &CommandHandler{Registry: commands.NewRegistry(), Store: st}

	msg := &messenger.MessagePayload{ThreadID: "t1", Text: strPtr("!ping")}
	if h.Match(messenger.KindMessage, msg) {
		t.Fatal("expected no match against the default prefix once the thread overrides it")
	}

	msg.Text = strPtr("$ping")
	if !h.Match(messenger.KindMessage, msg) {
		t.Fatal("expected match against the thread's configured prefix")
	}
}

func TestMediaLinkHandler_NilFetcherNeverMatches(t *testing.T) {
	h := &MediaLinkHandler{}
	msg := &messenger.MessagePayload{Text: strPtr("https://www.tiktok.com/@x/video/1")}
	if h.Match(messenger.KindMessage, msg) {
		t.Fatal("expected no match with a nil fetcher")
	}
}

type fakeFetcher struct {
	blobs []MediaBlob
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]MediaBlob, error) {
	return f.blobs, f.err
}

func TestMediaLinkHandler_MatchesKnownSources(t *testing.T) {
	h := &MediaLinkHandler{Fetcher: &fakeFetcher{}}
	cases := []struct {
		text  string
		match bool
	}{
		{"check this out https://vm.tiktok.com/abc123", true},
		{"https://www.instagram.com/reel/abc/", true},
		{"https://fb.watch/abc/", true},
		{"just some text", false},
	}
	for _, c := range cases {
		msg := &messenger.MessagePayload{Text: strPtr(c.text)}
		if got := h.Match(messenger.KindMessage, msg); got != c.match {
			t.Errorf("Match(%q) = %v, want %v", c.text, got, c.match)
		}
	}
}

type fakePipeline struct {
	reply   string
	ok      bool
	err     error
	calledW string
}

func (f *fakePipeline) Reply(ctx context.Context, threadID, senderID store.ID, text string) (string, bool, error) {
	f.calledW = text
	return f.reply, f.ok, f.err
}

func TestAIChatHandler_MatchRequiresEnabledAndText(t *testing.T) {
	pipeline := &fakePipeline{}
	h := &AIChatHandler{Pipeline: pipeline, Enabled: func() bool { return true }}

	msg := &messenger.MessagePayload{Text: strPtr("hi there")}
	if !h.Match(messenger.KindMessage, msg) {
		t.Fatal("expected match when enabled with non-empty text")
	}

	h.Enabled = func() bool { return false }
	if h.Match(messenger.KindMessage, msg) {
		t.Fatal("expected no match when disabled")
	}
}

func TestAIChatHandler_Handle_SendsReplyWhenOk(t *testing.T) {
	pipeline := &fakePipeline{reply: "hello back", ok: true}
	h := &AIChatHandler{Pipeline: pipeline, Enabled: func() bool { return true }}
	adapter, ft := newTestAdapter()

	msg := &messenger.MessagePayload{ThreadID: "t1", SenderID: "u1", Text: strPtr("hi")}
	if err := h.Handle(context.Background(), messenger.KindMessage, msg, adapter); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ft.sent) != 1 || ft.sent[0] != "hello back" {
		t.Fatalf("expected the pipeline's reply to be sent, got %v", ft.sent)
	}
}

func TestAIChatHandler_Handle_PropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	pipeline := &fakePipeline{err: wantErr}
	h := &AIChatHandler{Pipeline: pipeline, Enabled: func() bool { return true }}
	adapter, _ := newTestAdapter()

	msg := &messenger.MessagePayload{ThreadID: "t1", SenderID: "u1", Text: strPtr("hi")}
	err := h.Handle(context.Background(), messenger.KindMessage, msg, adapter)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
