package model

import (
	"sort"
	"sync"

	apperrors "github.com/phobologic/rsuml/internal/errors"
)

// Model is the name-keyed registry of discovered Types. It is safe for
// concurrent use.
type Model struct {
	mu    sync.RWMutex
	types map[string]*Type
}

// New returns an empty Model.
func New() *Model {
	return &Model{types: make(map[string]*Type)}
}

// Register stores t under its name and returns the Type it replaced, if any.
func (m *Model) Register(t *Type) (replaced *Type) {
	m.mu.Lock()
	defer m.mu.Unlock()
	replaced = m.types[t.Name]
	m.types[t.Name] = t
	return replaced
}

// Add stores t only if no Type is registered under its name; otherwise it
// returns a CONFLICT error and leaves the Model unchanged.
func (m *Model) Add(t *Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.types[t.Name]; ok {
		return apperrors.Newf(apperrors.CodeConflict, "type %q already registered", t.Name).
			WithContext(apperrors.CtxType, t.Name).
			WithContext("first", prev.Location.String()).
			WithContext("second", t.Location.String())
	}
	m.types[t.Name] = t
	return nil
}

// AddAll stores every Type in ts, or none of them: a name that is already
// registered, or that repeats within ts, is a CONFLICT error and leaves the
// Model unchanged.
func (m *Model) AddAll(ts []*Type) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := make(map[string]*Type, len(ts))
	for _, t := range ts {
		prev, ok := m.types[t.Name]
		if !ok {
			prev, ok = batch[t.Name]
		}
		if ok {
			return apperrors.Newf(apperrors.CodeConflict, "type %q already registered", t.Name).
				WithContext(apperrors.CtxType, t.Name).
				WithContext("first", prev.Location.String()).
				WithContext("second", t.Location.String())
		}
		batch[t.Name] = t
	}
	for name, t := range batch {
		m.types[name] = t
	}
	return nil
}

// Get returns the Type registered under name.
func (m *Model) Get(name string) (*Type, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.types[name]
	return t, ok
}

// Len returns the number of registered Types.
func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.types)
}

// Types returns every registered Type sorted by name.
func (m *Model) Types() []*Type {
	m.mu.RLock()
	out := make([]*Type, 0, len(m.types))
	for _, t := range m.types {
		out = append(out, t)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}
