// Package registry is the in-memory model table the host registers adapter
// models into and resolves model names against.
package registry

import (
	"fmt"
	"sync"

	"llmdeepseek/internal/adapter"
	"llmdeepseek/internal/core"
)

// Entry is one registered model with its aliases.
type Entry struct {
	Model   *adapter.Model
	Aliases []string
}

// ModelRegistry maps public ids and aliases to models.
// It is safe for concurrent use.
type ModelRegistry struct {
	mu      sync.RWMutex
	entries []*Entry
	byName  map[string]*Entry // public id or alias -> entry
}

var _ adapter.Registrar = (*ModelRegistry)(nil)

// New creates an empty registry.
func New() *ModelRegistry {
	return &ModelRegistry{byName: make(map[string]*Entry)}
}

// Register adds m under its public id and the given aliases.
// The first registration of a name wins; a clash is an error and nothing is added.
func (r *ModelRegistry) Register(m *adapter.Model, aliases ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := append([]string{m.ID()}, aliases...)
	for _, name := range names {
		if name == "" {
			return fmt.Errorf("model %s: empty alias", m.ID())
		}
		if existing, ok := r.byName[name]; ok {
			return fmt.Errorf("model name %q already registered by %s", name, existing.Model.ID())
		}
	}

	e := &Entry{Model: m, Aliases: append([]string(nil), aliases...)}
	r.entries = append(r.entries, e)
	for _, name := range names {
		r.byName[name] = e
	}
	return nil
}

// Get resolves a public id or alias.
func (r *ModelRegistry) Get(name string) (*adapter.Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return e.Model, true
}

// Resolve is Get returning a not-found error for unknown names.
func (r *ModelRegistry) Resolve(name string) (*adapter.Model, error) {
	m, ok := r.Get(name)
	if !ok {
		return nil, core.NewNotFoundError(fmt.Sprintf("unknown model %q", name))
	}
	return m, nil
}

// Entries returns the registered models in registration order.
func (r *ModelRegistry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		out[i] = *e
	}
	return out
}

// ModelCount returns the number of registered models.
func (r *ModelRegistry) ModelCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
