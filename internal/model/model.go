// Package model defines the Type Model: the types discovered in a Rust
// source tree together with their fields, variants and API surfaces.
package model

import (
	"fmt"
	"strings"
)

// Kind is the syntactic kind of a Type.
type Kind string

const (
	Struct Kind = "struct"
	Enum   Kind = "enum"
	Trait  Kind = "trait"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case Struct, Enum, Trait:
		return true
	}
	return false
}

// Location is the start of a named syntax node. Line and Column are zero-based.
type Location struct {
	File   string
	Line   int
	Column int
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// Field is a named member of a struct or of an enum variant. Vis is empty
// when the declaration has no visibility modifier. Positional fields are
// named by their index ("0", "1", ...).
type Field struct {
	Vis  string
	Name string
	Type string
}

// HasVis reports whether the field carries an explicit visibility modifier.
func (f Field) HasVis() bool {
	return f.Vis != ""
}

// UML renders the field as a diagram member line.
func (f Field) UML() string {
	if f.HasVis() {
		return f.Vis + " " + f.Name + ": " + f.Type
	}
	return f.Name + ": " + f.Type
}

// Variant is one enum variant.
type Variant struct {
	Name       string
	Location   Location
	Fields     []Field
	Positional bool
	// Value holds the explicit discriminant text, if any.
	Value string
}

// UML renders the variant as a diagram member line.
func (v Variant) UML() string {
	var b strings.Builder
	b.WriteString(v.Name)
	switch {
	case len(v.Fields) > 0 && v.Positional:
		types := make([]string, len(v.Fields))
		for i, f := range v.Fields {
			types[i] = f.Type
		}
		b.WriteString("(" + strings.Join(types, ", ") + ")")
	case len(v.Fields) > 0:
		members := make([]string, len(v.Fields))
		for i, f := range v.Fields {
			members[i] = f.Name + ": " + f.Type
		}
		b.WriteString(" { " + strings.Join(members, ", ") + " }")
	}
	if v.Value != "" {
		b.WriteString(" = " + v.Value)
	}
	return b.String()
}
