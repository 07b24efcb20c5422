package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Handler executes one validated tool call. It must return a
// JSON-serializable value and respect the context deadline. Handlers are
// retried blindly on failure, so non-idempotent handlers risk duplicate
// side effects.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// RegistrationError reports a configuration-time registration conflict.
// It is fatal at startup only; the first registration stays active.
type RegistrationError struct {
	Name string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("tool %q already registered", e.Name)
}

type entry struct {
	spec    Spec
	handler Handler
}

// Registry holds the declared tools. It is constructed explicitly and
// passed down; there is no process-wide registry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	log     *slog.Logger
}

// NewRegistry returns an empty registry logging through log.
func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]entry),
		log:     log,
	}
}

// Register declares a tool. Duplicate names return a RegistrationError and
// leave the existing registration untouched.
func (r *Registry) Register(spec Spec, handler Handler) error {
	if spec.Name == "" {
		return fmt.Errorf("tools: spec missing name")
	}
	if handler == nil {
		return fmt.Errorf("tools: %s has no handler", spec.Name)
	}
	if spec.MaxRetries <= 0 {
		spec.MaxRetries = DefaultMaxRetries
	}
	if spec.Timeout <= 0 {
		spec.Timeout = DefaultTimeout
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[spec.Name]; exists {
		return &RegistrationError{Name: spec.Name}
	}
	r.entries[spec.Name] = entry{spec: spec, handler: handler}

	r.log.Info("tool registered",
		"tool", spec.Name,
		"category", spec.Category,
		"params", len(spec.Params),
		"dangerous", spec.Dangerous)
	return nil
}

// Lookup returns the spec and handler for name.
func (r *Registry) Lookup(name string) (Spec, Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e.spec, e.handler, ok
}

// DescribeAll returns model-facing descriptors for every registered tool,
// ordered by name.
func (r *Registry) DescribeAll() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.spec.Describe())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Specs returns the registered specs ordered by name.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
