// Package query holds the structural query registry: named tree-sitter
// patterns discovered from a queries directory and dispatched by name.
package query

import (
	"regexp"
	"sort"
	"strings"

	apperrors "github.com/phobologic/rsuml/internal/errors"
)

// Kind selects how a query's matches are consumed.
type Kind int

const (
	// Pattern queries hand their raw matches back to the caller.
	Pattern Kind = iota
	// Programmatic queries are post-processed by a built-in Extractor.
	Programmatic
)

func (k Kind) String() string {
	switch k {
	case Pattern:
		return "pattern"
	case Programmatic:
		return "programmatic"
	}
	return "unknown"
}

// Extractor names the built-in post-processor of a programmatic query.
type Extractor string

const (
	ExtractStruct       Extractor = "struct"
	ExtractEnum         Extractor = "enum"
	ExtractTrait        Extractor = "trait"
	ExtractImpl         Extractor = "impl"
	ExtractTraitMethods Extractor = "trait_methods"
)

// TypeNameParam is the parameter bound to the target type's name by the
// impl and trait_methods extractors.
const TypeNameParam = "type_name"

var extractorParams = map[Extractor][]string{
	ExtractStruct:       nil,
	ExtractEnum:         nil,
	ExtractTrait:        nil,
	ExtractImpl:         {TypeNameParam},
	ExtractTraitMethods: {TypeNameParam},
}

// Declaration reports whether e registers Types (phase one of the pipeline).
func (e Extractor) Declaration() bool {
	return e == ExtractStruct || e == ExtractEnum || e == ExtractTrait
}

// Args binds parameter names to values.
type Args map[string]string

var (
	placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)
	identifierRe  = regexp.MustCompile(`^(r#)?[\p{L}\p{Nl}_][\p{L}\p{Nl}\p{Mn}\p{Mc}\p{Nd}\p{Pc}]*$`)
)

// Query is an immutable, registered structural query.
type Query struct {
	Name        string
	Kind        Kind
	Extractor   Extractor
	Params      []string
	Pattern     string
	Description string
	// Source is the defining file, relative to the queries root.
	Source string
}

// Bind substitutes every {{param}} placeholder with its value as a quoted
// string literal. Each declared parameter must be bound to a Rust
// identifier; undeclared arguments are rejected.
func (q *Query) Bind(args Args) ([]byte, error) {
	declared := make(map[string]struct{}, len(q.Params))
	for _, p := range q.Params {
		declared[p] = struct{}{}
	}
	for name := range args {
		if _, ok := declared[name]; !ok {
			return nil, apperrors.Newf(apperrors.CodeInvalidParameter, "query %s takes no parameter %q", q.Name, name).
				WithContext(apperrors.CtxQuery, q.Name)
		}
	}
	for _, p := range q.Params {
		v, ok := args[p]
		if !ok {
			return nil, apperrors.Newf(apperrors.CodeInvalidParameter, "query %s requires parameter %q", q.Name, p).
				WithContext(apperrors.CtxQuery, q.Name)
		}
		if !identifierRe.MatchString(v) {
			return nil, apperrors.Newf(apperrors.CodeInvalidParameter, "parameter %q: %q is not an identifier", p, v).
				WithContext(apperrors.CtxQuery, q.Name).
				WithContext(apperrors.CtxParam, p)
		}
	}

	bound := placeholderRe.ReplaceAllStringFunc(q.Pattern, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		return `"` + args[name] + `"`
	})
	return []byte(bound), nil
}

// placeholders returns the distinct placeholder names used in pattern, sorted.
func placeholders(pattern string) []string {
	seen := make(map[string]struct{})
	for _, m := range placeholderRe.FindAllStringSubmatch(pattern, -1) {
		seen[m[1]] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NameFor derives a registry name from a definition file path: the base
// name without extension, CamelCased, with its last word singularized.
// "impl_blocks.toml" → "ImplBlock", "structs.scm" → "Struct".
func NameFor(path string) string {
	base := path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}

	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	if len(words) == 0 {
		return ""
	}
	words[len(words)-1] = singular(words[len(words)-1])

	var b strings.Builder
	for _, w := range words {
		if w == "" {
			continue
		}
		b.WriteString(strings.ToUpper(w[:1]))
		b.WriteString(strings.ToLower(w[1:]))
	}
	return b.String()
}

func singular(w string) string {
	lower := strings.ToLower(w)
	switch {
	case len(lower) > 3 && strings.HasSuffix(lower, "ies"):
		return w[:len(w)-3] + "y"
	case strings.HasSuffix(lower, "sses"),
		strings.HasSuffix(lower, "shes"),
		strings.HasSuffix(lower, "ches"),
		strings.HasSuffix(lower, "xes"),
		strings.HasSuffix(lower, "zes"):
		return w[:len(w)-2]
	case strings.HasSuffix(lower, "ss"),
		strings.HasSuffix(lower, "us"),
		strings.HasSuffix(lower, "is"):
		return w
	case len(lower) > 1 && strings.HasSuffix(lower, "s"):
		return w[:len(w)-1]
	}
	return w
}
