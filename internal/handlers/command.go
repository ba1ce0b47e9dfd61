package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/mesbot/dispatch/internal/commands"
	"github.com/mesbot/dispatch/internal/messenger"
	"github.com/mesbot/dispatch/internal/store"
)

// CommandHandler matches messages beginning with a thread's configured
// prefix (default "!") and dispatches to the command registry,
// enforcing per-command admin permission via store.User.IsAdmin
// (spec.md §4.5).
type CommandHandler struct {
	Registry *commands.Registry
	Store    *store.Store
}

func (h *CommandHandler) Name() string { return "command" }

func (h *CommandHandler) Match(kind messenger.EventKind, msg *messenger.MessagePayload) bool {
	if kind != messenger.KindMessage && kind != messenger.KindE2EEMessage {
		return false
	}
	if msg.Text == nil {
		return false
	}
	prefix := h.prefixFor(msg.ThreadID)
	return strings.HasPrefix(strings.TrimSpace(*msg.Text), prefix)
}

func (h *CommandHandler) Handle(ctx context.Context, kind messenger.EventKind, msg *messenger.MessagePayload, adapter *messenger.Adapter) error {
	prefix := h.prefixFor(msg.ThreadID)
	text := strings.TrimPrefix(strings.TrimSpace(*msg.Text), prefix)

	name, args, _ := strings.Cut(text, " ")
	name = strings.ToLower(strings.TrimSpace(name))

	isAdmin := false
	if u, err := h.Store.GetUser(msg.SenderID); err == nil && u != nil {
		isAdmin = u.IsAdmin
	}

	reply, err := h.Registry.Execute(ctx, name, commands.Invocation{
		SenderID: msg.SenderID,
		ThreadID: msg.ThreadID,
		Args:     strings.TrimSpace(args),
		IsAdmin:  isAdmin,
	})
	if errors.Is(err, commands.ErrPermissionDenied) {
		_, sendErr := send(ctx, adapter, msg, "🔒 This command requires admin permissions")
		return sendErr
	}
	if err != nil {
		// Unknown command names are silently ignored: many messages
		// happen to start with the prefix character without intending
		// to invoke a command.
		return nil
	}
	if reply == "" {
		return nil
	}
	_, err = send(ctx, adapter, msg, reply)
	return err
}

func (h *CommandHandler) prefixFor(threadID store.ID) string {
	th, err := h.Store.GetThread(threadID)
	if err != nil || th == nil || th.Prefix == "" {
		return "!"
	}
	return th.Prefix
}
