package job

import "context"

// Definition is a typed job definition with a handler function.
// T is the payload type (must be JSON-serializable).
type Definition[T any] struct {
	// Type is the job type this definition handles.
	Type Type

	// Handler processes the job payload and returns a result value
	// (JSON-serialized onto the job row) or a classified error.
	Handler func(ctx context.Context, payload T) (any, error)

	// Precondition, if set, re-validates business preconditions at
	// enqueue time. Publish-style jobs must never trust a caller's
	// precomputed decision.
	Precondition func(ctx context.Context, payload T) error

	// Opts configures the per-type attempt budget, timeout, and priority.
	Opts Options
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](t Type, handler func(ctx context.Context, payload T) (any, error), opts ...Option) *Definition[T] {
	def := &Definition[T]{
		Type:    t,
		Handler: handler,
		Opts:    DefaultOptions(),
	}
	for _, opt := range opts {
		opt(&def.Opts)
	}
	return def
}

// WithPrecondition attaches an enqueue-time precondition check to a
// definition.
func (d *Definition[T]) WithPrecondition(check func(ctx context.Context, payload T) error) *Definition[T] {
	d.Precondition = check
	return d
}
