// Package context carries ambient per-call properties through context.Context
// so nested asynchronous calls observe the same ambient state as their initiator.
package context

import (
	"context"
	"maps"
	"time"
)

// Props is a set of ambient properties (for example tracing tags) inherited
// by nested calls. A Props value attached to a context is never mutated; use
// With to derive a new one.
type Props map[string]any

type propsKey struct{}

// WithProps returns a copy of parent carrying a private copy of props.
func WithProps(parent context.Context, props Props) context.Context {
	return context.WithValue(parent, propsKey{}, maps.Clone(props))
}

// PropsFrom returns a copy of the ambient properties attached to ctx, or nil.
func PropsFrom(ctx context.Context) Props {
	if ctx == nil {
		return nil
	}
	p, _ := ctx.Value(propsKey{}).(Props)
	return maps.Clone(p)
}

// Prop returns a single ambient property.
func Prop(ctx context.Context, key string) (any, bool) {
	if ctx == nil {
		return nil, false
	}
	p, _ := ctx.Value(propsKey{}).(Props)
	v, ok := p[key]
	return v, ok
}

// With returns a copy of p with key set to value.
func (p Props) With(key string, value any) Props {
	out := maps.Clone(p)
	if out == nil {
		out = make(Props, 1)
	}
	out[key] = value
	return out
}

// WithTimeoutOrCancel creates a context that is canceled either when the parent
// is canceled or when the timeout duration elapses, whichever comes first
func WithTimeoutOrCancel(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, timeout)
}

// IsCanceled returns true if the context has been canceled
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
