package model

import (
	"sort"
)

// APIKey identifies an API entry within its Type. Trait is empty for
// inherent methods.
type APIKey struct {
	Trait string
	Name  string
}

func (k APIKey) less(o APIKey) bool {
	if k.Trait != o.Trait {
		return k.Trait < o.Trait
	}
	return k.Name < o.Name
}

// API is one method signature attached to a Type, optionally qualified by
// the trait it implements.
type API struct {
	Owner      *Type
	Location   Location
	Name       string
	Params     string
	ReturnType string
	Trait      string
}

// Key returns the entry's key within its owner's API set.
func (a *API) Key() APIKey {
	return APIKey{Trait: a.Trait, Name: a.Name}
}

// Returns reports whether the method declares a return type.
func (a *API) Returns() bool {
	return a.ReturnType != ""
}

// ImplementsTrait reports whether the method belongs to a trait impl.
func (a *API) ImplementsTrait() bool {
	return a.Trait != ""
}

// UML renders the entry as [trait::]name(params)[ -> returnType].
func (a *API) UML() string {
	s := a.Name + a.Params
	if a.ImplementsTrait() {
		s = a.Trait + "::" + s
	}
	if a.Returns() {
		s += " -> " + a.ReturnType
	}
	return s
}

// APISet is the immutable, fully populated API surface of a Type.
type APISet struct {
	byKey map[APIKey]*API
}

// NewAPISet builds a set from entries in order; an entry whose key was
// already seen replaces the earlier one.
func NewAPISet(entries []*API) *APISet {
	s := &APISet{byKey: make(map[APIKey]*API, len(entries))}
	for _, e := range entries {
		s.byKey[e.Key()] = e
	}
	return s
}

// Len returns the number of entries.
func (s *APISet) Len() int {
	return len(s.byKey)
}

// Get returns the entry stored under key.
func (s *APISet) Get(key APIKey) (*API, bool) {
	a, ok := s.byKey[key]
	return a, ok
}

// Sorted returns the entries ordered by trait then method name, inherent
// methods first.
func (s *APISet) Sorted() []*API {
	out := make([]*API, 0, len(s.byKey))
	for _, a := range s.byKey {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key().less(out[j].Key())
	})
	return out
}
