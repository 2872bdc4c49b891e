package job

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	marketsync "github.com/george-itf/amazon-listing-helper-sub000"
)

// HandlerFunc is a type-erased job handler. It receives the claimed job
// and returns a serialized result. The typed Definition[T] is converted
// to a HandlerFunc at registration time by closing over JSON unmarshal +
// the typed handler.
type HandlerFunc func(ctx context.Context, j *Job) ([]byte, error)

// PrecheckFunc re-validates business preconditions server-side at job
// creation time. It receives the raw payload; a non-nil error rejects the
// enqueue with a validation failure.
type PrecheckFunc func(ctx context.Context, payload []byte) error

// Registry maps job types to type-erased handler functions.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	handlers  map[Type]HandlerFunc
	prechecks map[Type]PrecheckFunc
	defaults  map[Type]Options
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers:  make(map[Type]HandlerFunc),
		prechecks: make(map[Type]PrecheckFunc),
		defaults:  make(map[Type]Options),
	}
}

// RegisterDefinition registers a typed job definition. The generic
// handler is wrapped in a closure that JSON-unmarshals the payload into T
// before calling the typed handler and marshals the typed result back.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	handler := func(ctx context.Context, j *Job) ([]byte, error) {
		var t T
		if len(j.Payload) > 0 {
			if err := json.Unmarshal(j.Payload, &t); err != nil {
				return nil, marketsync.Failf(marketsync.CodeValidation,
					"unmarshal payload for job type %q: %v", def.Type, err)
			}
		}
		result, err := def.Handler(ctx, t)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, nil
		}
		data, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			return nil, fmt.Errorf("marshal result for job type %q: %w", def.Type, marshalErr)
		}
		return data, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.Type] = handler
	r.defaults[def.Type] = def.Opts

	if def.Precondition != nil {
		precheck := def.Precondition
		r.prechecks[def.Type] = func(ctx context.Context, payload []byte) error {
			var t T
			if len(payload) > 0 {
				if err := json.Unmarshal(payload, &t); err != nil {
					return fmt.Errorf("%w: %v", marketsync.ErrValidation, err)
				}
			}
			return precheck(ctx, t)
		}
	}
}

// Get returns the handler for the given job type.
// Returns false if no handler is registered.
func (r *Registry) Get(t Type) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[t]
	return h, ok
}

// Precheck runs the registered precondition for the given job type, if
// any. Unregistered types pass: the enqueue path rejects those separately.
func (r *Registry) Precheck(ctx context.Context, t Type, payload []byte) error {
	r.mu.RLock()
	check := r.prechecks[t]
	r.mu.RUnlock()
	if check == nil {
		return nil
	}
	return check(ctx, payload)
}

// DefaultOptions returns the registered per-type options (timeout,
// attempt budget) for the given job type.
func (r *Registry) DefaultOptions(t Type) (Options, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	opts, ok := r.defaults[t]
	return opts, ok
}

// ValidateCoverage verifies every member of the closed type set has a
// registered handler. Called at startup so a missing handler is a boot
// failure, not a runtime surprise.
func (r *Registry) ValidateCoverage() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []Type
	for _, t := range Types() {
		if _, ok := r.handlers[t]; !ok {
			missing = append(missing, t)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: no handler for job types %v", marketsync.ErrHandlerNotRegistered, missing)
	}
	return nil
}

// RegisteredTypes returns all job types with a registered handler.
func (r *Registry) RegisteredTypes() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]Type, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
