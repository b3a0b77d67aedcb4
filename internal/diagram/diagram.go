// Package diagram renders the Type Model as a PlantUML class diagram.
package diagram

import (
	"context"
	"io"
	"strings"

	"golang.org/x/sync/errgroup"

	apperrors "github.com/phobologic/rsuml/internal/errors"
	"github.com/phobologic/rsuml/internal/graph"
	"github.com/phobologic/rsuml/internal/model"
)

const (
	startMarker   = "@startuml"
	endMarker     = "@enduml"
	fieldsMarker  = ".. fields .."
	methodsMarker = ".. methods .."
	indent        = "  "
)

// Heading returns the PlantUML entity keyword for k.
func Heading(k model.Kind) (string, error) {
	switch k {
	case model.Struct:
		return "class", nil
	case model.Enum:
		return "enum", nil
	case model.Trait:
		return "interface", nil
	}
	return "", apperrors.Newf(apperrors.CodeUnknownKind, "cannot render kind %q", string(k))
}

// Render writes the diagram for types to w: the entity blocks in the
// given order, then the composition edges of each type, between the
// start and end markers. Entity blocks and edge blocks are each rendered
// concurrently, one task per type. Nothing is written unless every block
// rendered.
func Render(ctx context.Context, w io.Writer, types []*model.Type) error {
	entities := make([]string, len(types))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range types {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			block, err := Entity(t)
			if err != nil {
				return err
			}
			entities[i] = block
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	links := make([]string, len(types))
	g, gctx = errgroup.WithContext(ctx)
	for i, t := range types {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			links[i] = Links(t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString(startMarker + "\n")
	for _, block := range entities {
		b.WriteString(block)
		b.WriteString("\n")
	}
	for _, block := range links {
		if block == "" {
			continue
		}
		b.WriteString(block)
		b.WriteString("\n")
	}
	b.WriteString(endMarker + "\n")

	_, err := io.WriteString(w, b.String())
	return err
}

// Entity renders the block for one type. Enum variants are listed in the
// fields section; a type with nothing to list still gets both sections.
func Entity(t *model.Type) (string, error) {
	heading, err := Heading(t.Kind)
	if err != nil {
		return "", apperrors.AddContext(err, apperrors.CtxType, t.Name)
	}

	var b strings.Builder
	b.WriteString(heading + " " + t.Name + " {\n")

	b.WriteString(indent + fieldsMarker + "\n")
	for _, f := range t.Fields() {
		b.WriteString(indent + f.UML() + "\n")
	}
	for _, v := range t.Variants {
		b.WriteString(indent + v.UML() + "\n")
	}

	b.WriteString(indent + methodsMarker + "\n")
	if set, ok := t.API(); ok {
		for _, a := range set.Sorted() {
			b.WriteString(indent + a.UML() + "\n")
		}
	}

	b.WriteString("}\n")
	return b.String(), nil
}

// Links renders the composition edges of one type, one per line, or ""
// when it has none.
func Links(t *model.Type) string {
	var b strings.Builder
	for _, e := range graph.Edges(t) {
		b.WriteString(`"` + e.From + `" --* ` + e.To + "\n")
	}
	return b.String()
}
