package model

import (
	"sync/atomic"
)

// APIState is the state of a Type's API slot.
type APIState int

const (
	Unpopulated APIState = iota
	Populated
)

func (s APIState) String() string {
	if s == Populated {
		return "populated"
	}
	return "unpopulated"
}

// Type is a struct, enum or trait discovered in the corpus. Everything but
// the API slot is fixed once the Type is registered in a Model.
type Type struct {
	Name     string
	Kind     Kind
	Location Location
	Variants []Variant

	fields   []Field
	fieldIdx map[string]int

	api atomic.Pointer[APISet]
}

// NewType creates a Type with an empty field list and an unpopulated API slot.
func NewType(name string, kind Kind, loc Location) *Type {
	return &Type{
		Name:     name,
		Kind:     kind,
		Location: loc,
		fieldIdx: make(map[string]int),
	}
}

// AddField appends f, or replaces the field already declared under f.Name
// in place.
func (t *Type) AddField(f Field) {
	if t.fieldIdx == nil {
		t.fieldIdx = make(map[string]int)
	}
	if i, ok := t.fieldIdx[f.Name]; ok {
		t.fields[i] = f
		return
	}
	t.fieldIdx[f.Name] = len(t.fields)
	t.fields = append(t.fields, f)
}

// Fields returns the fields in declaration order.
func (t *Type) Fields() []Field {
	out := make([]Field, len(t.fields))
	copy(out, t.fields)
	return out
}

// Field looks up a field by name.
func (t *Type) Field(name string) (Field, bool) {
	i, ok := t.fieldIdx[name]
	if !ok {
		return Field{}, false
	}
	return t.fields[i], true
}

// API returns the published API set, or false while unpopulated.
func (t *Type) API() (*APISet, bool) {
	s := t.api.Load()
	return s, s != nil
}

// SetAPI publishes s as the Type's API set. Readers observe either the
// previous set or s.
func (t *Type) SetAPI(s *APISet) {
	t.api.Store(s)
}

// InvalidateAPI moves the API slot back to Unpopulated.
func (t *Type) InvalidateAPI() {
	t.api.Store(nil)
}

// APIState reports whether the API slot is populated.
func (t *Type) APIState() APIState {
	if t.api.Load() == nil {
		return Unpopulated
	}
	return Populated
}
