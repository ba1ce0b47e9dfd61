package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/mesbot/dispatch/internal/store"
)

// RegisterBuiltins adds the admin commands named in spec.md §8's
// end-to-end scenarios (!block) plus its natural counterpart !unblock
// and !admin, all backed by st.
func RegisterBuiltins(r *Registry, st *store.Store) {
	r.Register(&Command{
		Name:       "block",
		Usage:      "!block <userId>",
		Permission: PermissionAdmin,
		Execute: func(ctx context.Context, inv Invocation) (string, error) {
			return setBlocked(st, inv.Args, true)
		},
	})
	r.Register(&Command{
		Name:       "unblock",
		Usage:      "!unblock <userId>",
		Permission: PermissionAdmin,
		Execute: func(ctx context.Context, inv Invocation) (string, error) {
			return setBlocked(st, inv.Args, false)
		},
	})
	r.Register(&Command{
		Name:       "admin",
		Usage:      "!admin <userId> <on|off>",
		Permission: PermissionAdmin,
		Execute: func(ctx context.Context, inv Invocation) (string, error) {
			fields := strings.Fields(inv.Args)
			if len(fields) != 2 {
				return "Usage: !admin <userId> <on|off>", nil
			}
			grant := fields[1] == "on"
			if err := st.SetAdmin(store.ID(fields[0]), grant); err != nil {
				return "", fmt.Errorf("set admin: %w", err)
			}
			if grant {
				return fmt.Sprintf("✅ User %s is now an admin", fields[0]), nil
			}
			return fmt.Sprintf("✅ User %s is no longer an admin", fields[0]), nil
		},
	})
}

func setBlocked(st *store.Store, args string, blocked bool) (string, error) {
	id := strings.TrimSpace(args)
	if id == "" {
		if blocked {
			return "Usage: !block <userId>", nil
		}
		return "Usage: !unblock <userId>", nil
	}
	// Validate the id is decimal digits, per spec.md §3's bigint-as-string
	// identifiers, without coercing through any numeric type.
	if !allDigits(id) {
		return fmt.Sprintf("Invalid user id: %s", id), nil
	}
	if err := st.SetBlocked(store.ID(id), blocked); err != nil {
		return "", fmt.Errorf("set blocked: %w", err)
	}
	if blocked {
		return fmt.Sprintf("✅ User %s has been blocked", id), nil
	}
	return fmt.Sprintf("✅ User %s has been unblocked", id), nil
}

// allDigits reports whether id is composed entirely of ASCII digits,
// accommodating arbitrary-precision ids too large for ParseUint.
func allDigits(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
