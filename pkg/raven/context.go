// context.go propagates local scopes through context.Context.

package raven

import "context"

// Context key types (unexported to avoid collisions)
type scopeKey struct{}

// WithScope returns a context carrying scope as the active local scope.
func WithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFromContext returns the active local scope of ctx.
// Returns nil and false if none is set.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	if ctx == nil {
		return nil, false
	}
	scope, ok := ctx.Value(scopeKey{}).(*Scope)
	return scope, ok && scope != nil
}
