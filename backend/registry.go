package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jmgilman/depsync/errors"
	"gopkg.in/yaml.v3"
)

// Factory builds a Backend from its raw options. Factories decode options
// with DecodeOptions and call Validate before returning.
type Factory func(options map[string]any) (Backend, error)

// Registry maps backend kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory for kind, replacing any previous one.
func (r *Registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New builds a backend of the given kind.
func (r *Registry) New(kind string, options map[string]any) (Backend, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, errors.NewWithContext(
			errors.CodeInvalidConfig,
			fmt.Sprintf("unknown backend kind %q", kind),
			map[string]interface{}{"kind": kind},
		)
	}

	b, err := factory(options)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeInvalidConfig, "invalid options for %s backend", kind)
	}
	return b, nil
}

// DecodeOptions decodes raw options into out, which must be a pointer to a
// struct with yaml tags. Fields already set on out act as defaults.
func DecodeOptions(options map[string]any, out any) error {
	if len(options) == 0 {
		return nil
	}

	data, err := yaml.Marshal(options)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "failed to encode backend options")
	}

	if err := yaml.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "failed to decode backend options")
	}
	return nil
}
