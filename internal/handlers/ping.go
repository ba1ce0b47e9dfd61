// Package handlers implements the built-in dispatcher.Handler chain
// named by spec.md §4.5: command, media-link, ping, and ai-chat.
package handlers

import (
	"context"
	"strings"

	"github.com/mesbot/dispatch/internal/messenger"
)

// PingHandler replies "pong 🏓" to a literal "ping" message (spec.md §8
// scenario 1).
type PingHandler struct{}

func (PingHandler) Name() string { return "ping" }

func (PingHandler) Match(kind messenger.EventKind, msg *messenger.MessagePayload) bool {
	if kind != messenger.KindMessage && kind != messenger.KindE2EEMessage {
		return false
	}
	if msg.Text == nil {
		return false
	}
	return strings.TrimSpace(*msg.Text) == "ping"
}

func (PingHandler) Handle(ctx context.Context, kind messenger.EventKind, msg *messenger.MessagePayload, adapter *messenger.Adapter) error {
	_, err := send(ctx, adapter, msg, "pong 🏓")
	return err
}

// send replies to msg.ThreadID through the adapter's rate-limited send
// path. Handlers must not bypass the limiter except for batch-media
// sends, which use SendMessageDirect instead (spec.md §4.1/§4.5).
func send(ctx context.Context, adapter *messenger.Adapter, msg *messenger.MessagePayload, text string) (string, error) {
	return adapter.SendMessage(ctx, msg.ThreadID, text, messenger.SendOptions{})
}
