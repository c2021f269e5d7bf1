// Package action holds the catalog of named actions and the session that
// executes their HTTP calls against the ledger.
//
// An action is one iteration of simulated user work. It issues requests
// through [Session.Get] and [Session.Post], each bracketed by a ledger entry,
// and returns the code and reason of the iteration as a whole.
package action

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrUnknownAction is returned for names missing from a Registry.
var ErrUnknownAction = errors.New("unknown action")

// User is one synthetic user.
type User struct {
	ID    int
	Label string
}

// Action performs one iteration of simulated user work.
type Action interface {
	Perform(ctx context.Context, s *Session, u User) (code int, reason string)
}

// Func adapts a function to Action.
type Func func(ctx context.Context, s *Session, u User) (int, string)

func (f Func) Perform(ctx context.Context, s *Session, u User) (int, string) {
	return f(ctx, s, u)
}

// Env is what action constructors may depend on.
type Env struct {
	// Target is the base URL requests are sent to.
	Target string
}

// Factory constructs an action for an environment.
type Factory func(env Env) Action

// Registry maps action names to constructors. It is populated once at
// process start and only read afterwards.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a named action. Names must be unique.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" {
		return errors.New("action name cannot be empty")
	}
	if f == nil {
		return fmt.Errorf("action %s: nil factory", name)
	}
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("action %s is already registered", name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs the named action.
func (r *Registry) New(name string, env Env) (Action, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	return f(env), nil
}
