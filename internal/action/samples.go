package action

import (
	"context"
	"strings"
)

// Names of the bundled sample actions.
const (
	Sample  = "ActionSample"
	Example = "ActionExample"
)

// DefaultRegistry returns a registry holding the bundled sample actions.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(Sample, func(env Env) Action { return twoStep(env.Target, "/sample", "/something/") })
	r.MustRegister(Example, func(env Env) Action { return twoStep(env.Target, "/example", "/anything/") })
	return r
}

// twoStep fetches first and then second; the iteration reports the outcome
// of the second request.
func twoStep(target, first, second string) Action {
	base := strings.TrimRight(target, "/")
	return Func(func(ctx context.Context, s *Session, u User) (int, string) {
		s.Get(ctx, u, base+first, nil)
		code, reason, _ := s.Get(ctx, u, base+second, nil)
		return code, reason
	})
}
