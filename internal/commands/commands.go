// Package commands implements the registered-command contract used by
// the dispatcher's command handler (spec.md §4.5): each command has a
// name, a usage string, a permission requirement, and an execute
// function invoked with the parsed argument text.
package commands

import (
	"context"
	"fmt"

	"github.com/mesbot/dispatch/internal/store"
)

// Permission gates who may invoke a command.
type Permission int

const (
	// PermissionAny allows any non-blocked user.
	PermissionAny Permission = iota
	// PermissionAdmin requires store.User.IsAdmin.
	PermissionAdmin
)

// Invocation carries the context a command needs to run: the inbound
// message's sender/thread, and the raw argument text following the
// command name.
type Invocation struct {
	SenderID store.ID
	ThreadID store.ID
	Args     string
	IsAdmin  bool
}

// Command is a single registered chat command. Execute returns the
// reply text to send back to the thread.
type Command struct {
	Name       string
	Usage      string
	Permission Permission
	Execute    func(ctx context.Context, inv Invocation) (string, error)
}

// Registry holds the set of commands known to the bot, keyed by name
// (without the configurable prefix).
type Registry struct {
	commands map[string]*Command
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

// Register adds or replaces a command.
func (r *Registry) Register(c *Command) {
	r.commands[c.Name] = c
}

// Get retrieves a command by name, or nil if unknown.
func (r *Registry) Get(name string) *Command {
	return r.commands[name]
}

// Names returns every registered command name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	return names
}

// ErrPermissionDenied is returned by Execute when inv lacks the
// command's required permission.
var ErrPermissionDenied = fmt.Errorf("command requires admin permission")

// Execute looks up name and runs it, enforcing its permission
// requirement before invoking Command.Execute.
func (r *Registry) Execute(ctx context.Context, name string, inv Invocation) (string, error) {
	cmd := r.commands[name]
	if cmd == nil {
		return "", fmt.Errorf("unknown command: %s", name)
	}
	if cmd.Permission == PermissionAdmin && !inv.IsAdmin {
		return "", ErrPermissionDenied
	}
	return cmd.Execute(ctx, inv)
}
