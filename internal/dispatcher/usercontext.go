package dispatcher

import "context"

// senderNameKey is the context key the dispatcher uses to pass a
// resolved sender display name to handlers, generalizing the teacher's
// ContactResolver (phone number → display name) into a UserResolver
// concept (spec.md §4 supplemented features).
type senderNameKey struct{}

// SenderName returns the resolved display name for the message's
// sender, if the dispatcher found one in the store, for handlers that
// want to address the user by name.
func SenderName(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(senderNameKey{}).(string)
	return name, ok && name != ""
}

func withSenderName(ctx context.Context, name *string) context.Context {
	if name == nil || *name == "" {
		return ctx
	}
	return context.WithValue(ctx, senderNameKey{}, *name)
}

// WithSenderName attaches a resolved sender display name to ctx the
// same way the dispatcher does internally. Exported for callers (and
// tests) that build a handler context without going through the
// dispatcher's own message-routing path.
func WithSenderName(ctx context.Context, name string) context.Context {
	return withSenderName(ctx, &name)
}
