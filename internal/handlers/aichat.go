package handlers

import (
	"context"

	"github.com/mesbot/dispatch/internal/messenger"
	"github.com/mesbot/dispatch/internal/store"
)

// PipelineRunner abstracts the AI reply pipeline for testability; the
// real implementation is *aipipeline.Pipeline. Mirrors the teacher's
// AgentRunner abstraction in internal/signal/bridge.go.
type PipelineRunner interface {
	Reply(ctx context.Context, threadID, senderID store.ID, text string) (string, bool, error)
}

// AIChatHandler is the catch-all handler: it only matches when the
// pipeline is enabled and the message carries non-empty text, and
// always runs last in the handler chain (spec.md §4.5).
type AIChatHandler struct {
	Pipeline PipelineRunner
	Enabled  func() bool
}

func (h *AIChatHandler) Name() string { return "ai-chat" }

func (h *AIChatHandler) Match(kind messenger.EventKind, msg *messenger.MessagePayload) bool {
	if h.Pipeline == nil || (h.Enabled != nil && !h.Enabled()) {
		return false
	}
	if kind != messenger.KindMessage && kind != messenger.KindE2EEMessage {
		return false
	}
	return msg.Text != nil && *msg.Text != ""
}

func (h *AIChatHandler) Handle(ctx context.Context, kind messenger.EventKind, msg *messenger.MessagePayload, adapter *messenger.Adapter) error {
	reply, ok, err := h.Pipeline.Reply(ctx, msg.ThreadID, msg.SenderID, *msg.Text)
	if err != nil {
		return err
	}
	if !ok || reply == "" {
		return nil
	}
	_, err = send(ctx, adapter, msg, reply)
	return err
}
