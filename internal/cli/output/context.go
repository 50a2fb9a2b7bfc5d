package output

import (
	"context"
	"os"
)

type rendererKey struct{}

// NewContext returns a context carrying r.
func NewContext(ctx context.Context, r *Renderer) context.Context {
	return context.WithValue(ctx, rendererKey{}, r)
}

// Lookup returns the renderer stored in ctx, if any.
func Lookup(ctx context.Context) (*Renderer, bool) {
	r, ok := ctx.Value(rendererKey{}).(*Renderer)
	return r, ok
}

// FromContext retrieves the renderer from the command context.
func FromContext(ctx context.Context) *Renderer {
	if r, ok := ctx.Value(rendererKey{}).(*Renderer); ok {
		return r
	}
	// Return default renderer if none in context
	return NewRenderer(os.Stdout, os.Stderr, ModeAuto)
}
