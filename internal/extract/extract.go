// Package extract turns query matches into the Type Model: declaration
// queries register structs, enums and traits; impl queries populate each
// Type's API set.
package extract

import (
	"context"
	"sort"
	"strconv"

	"github.com/phobologic/rsuml/internal/config"
	"github.com/phobologic/rsuml/internal/corpus"
	apperrors "github.com/phobologic/rsuml/internal/errors"
	"github.com/phobologic/rsuml/internal/lang"
	"github.com/phobologic/rsuml/internal/logger"
	"github.com/phobologic/rsuml/internal/model"
	"github.com/phobologic/rsuml/internal/query"
)

// Capture labels shared by the declaration queries.
const (
	labelType = "type"

	labelFieldVis  = "field.vis"
	labelFieldName = "field.name"
	labelFieldType = "field.type"

	labelVariantName      = "variant.name"
	labelVariantValue     = "variant.value"
	labelVariantFieldName = "variant.field.name"
	labelVariantFieldType = "variant.field.type"
	labelVariantPosType   = "variant.positional.type"
)

// Engine runs extractor queries against a registry and records their
// output in a Model.
type Engine struct {
	reg        *query.Registry
	model      *model.Model
	log        *logger.Logger
	onConflict string
}

// New returns an Engine. onConflict is config.OnConflictReplace or
// config.OnConflictError; log may be nil.
func New(reg *query.Registry, m *model.Model, log *logger.Logger, onConflict string) *Engine {
	if log == nil {
		log = logger.Discard()
	}
	if onConflict == "" {
		onConflict = config.OnConflictReplace
	}
	return &Engine{reg: reg, model: m, log: log, onConflict: onConflict}
}

// Model returns the Model the engine writes to.
func (e *Engine) Model() *model.Model {
	return e.model
}

// RunDeclaration evaluates one declaration query and registers every
// declaration it found. Types are built completely before any is
// registered, so a failed query leaves the Model untouched.
func (e *Engine) RunDeclaration(ctx context.Context, q *query.Query) ([]*model.Type, error) {
	kind, ok := declarationKind(q.Extractor)
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeInternal, "extractor %q does not declare types", q.Extractor).
			WithContext(apperrors.CtxQuery, q.Name)
	}

	results, err := e.reg.Execute(ctx, q, nil)
	if err != nil {
		return nil, err
	}

	var types []*model.Type
	for _, r := range results {
		for _, d := range groupDeclarations(r.Matches) {
			types = append(types, d.build(kind))
		}
	}

	log := e.log.WithQuery(q.Name)
	if e.onConflict == config.OnConflictError {
		if err := e.model.AddAll(types); err != nil {
			return nil, apperrors.AddContext(err, apperrors.CtxQuery, q.Name)
		}
	} else {
		for _, t := range types {
			e.replace(t, log)
		}
	}
	for _, t := range types {
		log.Debug("registered", "kind", string(t.Kind), "type", t.Name, "at", t.Location.String())
	}
	return types, nil
}

func (e *Engine) replace(t *model.Type, log *logger.Logger) {
	if prev := e.model.Register(t); prev != nil {
		log.Warn("type redefined, keeping the later declaration",
			"type", t.Name,
			"first", prev.Location.String(),
			"second", t.Location.String())
	}
}

func declarationKind(ex query.Extractor) (model.Kind, bool) {
	switch ex {
	case query.ExtractStruct:
		return model.Struct, true
	case query.ExtractEnum:
		return model.Enum, true
	case query.ExtractTrait:
		return model.Trait, true
	}
	return "", false
}

// declaration gathers the matches whose @type capture is the same node.
type declaration struct {
	name     corpus.Capture
	fields   map[uint32]*member
	variants map[uint32]*variant
}

type member struct {
	start uint32
	field model.Field
}

type variant struct {
	name       corpus.Capture
	value      string
	named      map[uint32]*member
	positional map[uint32]string
}

// groupDeclarations splits one file's matches into declarations keyed by
// the start byte of their @type capture, in source order. Members are
// only ever attached to the declaration their own match names.
func groupDeclarations(matches []corpus.Match) []*declaration {
	byStart := make(map[uint32]*declaration)
	for _, m := range matches {
		tc, ok := m.Get(labelType)
		if !ok {
			continue
		}
		d, ok := byStart[tc.StartByte]
		if !ok {
			d = &declaration{
				name:     tc,
				fields:   make(map[uint32]*member),
				variants: make(map[uint32]*variant),
			}
			byStart[tc.StartByte] = d
		}
		d.addField(m)
		d.addVariant(m)
	}

	out := make([]*declaration, 0, len(byStart))
	for _, d := range byStart {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].name.StartByte < out[j].name.StartByte
	})
	return out
}

func (d *declaration) addField(m corpus.Match) {
	name, ok := m.Get(labelFieldName)
	if !ok {
		return
	}
	f := model.Field{
		Vis:  m.Text(labelFieldVis),
		Name: name.Text,
		Type: lang.CollapseWhitespace(m.Text(labelFieldType)),
	}
	// An optional visibility capture can yield the same field twice, once
	// without the modifier.
	if prev, ok := d.fields[name.StartByte]; ok && prev.field.HasVis() && !f.HasVis() {
		return
	}
	d.fields[name.StartByte] = &member{start: name.StartByte, field: f}
}

func (d *declaration) addVariant(m corpus.Match) {
	name, ok := m.Get(labelVariantName)
	if !ok {
		return
	}
	v, ok := d.variants[name.StartByte]
	if !ok {
		v = &variant{
			name:       name,
			named:      make(map[uint32]*member),
			positional: make(map[uint32]string),
		}
		d.variants[name.StartByte] = v
	}
	if val := m.Text(labelVariantValue); val != "" {
		v.value = val
	}
	if fn, ok := m.Get(labelVariantFieldName); ok {
		v.named[fn.StartByte] = &member{
			start: fn.StartByte,
			field: model.Field{Name: fn.Text, Type: lang.CollapseWhitespace(m.Text(labelVariantFieldType))},
		}
	}
	for _, pt := range m.All(labelVariantPosType) {
		v.positional[pt.StartByte] = lang.CollapseWhitespace(pt.Text)
	}
}

func (d *declaration) build(kind model.Kind) *model.Type {
	t := model.NewType(d.name.Text, kind, d.name.Location)
	for _, m := range sortedMembers(d.fields) {
		t.AddField(m.field)
	}

	starts := make([]uint32, 0, len(d.variants))
	for s := range d.variants {
		starts = append(starts, s)
	}
	sortStarts(starts)
	for _, s := range starts {
		t.Variants = append(t.Variants, d.variants[s].build())
	}
	return t
}

func (v *variant) build() model.Variant {
	out := model.Variant{Name: v.name.Text, Location: v.name.Location, Value: v.value}
	if len(v.positional) > 0 {
		out.Positional = true
		starts := make([]uint32, 0, len(v.positional))
		for s := range v.positional {
			starts = append(starts, s)
		}
		sortStarts(starts)
		for i, s := range starts {
			out.Fields = append(out.Fields, model.Field{Name: strconv.Itoa(i), Type: v.positional[s]})
		}
		return out
	}
	for _, m := range sortedMembers(v.named) {
		out.Fields = append(out.Fields, m.field)
	}
	return out
}

func sortedMembers(ms map[uint32]*member) []*member {
	out := make([]*member, 0, len(ms))
	for _, m := range ms {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

func sortStarts(s []uint32) {
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
}
