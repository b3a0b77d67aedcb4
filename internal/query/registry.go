package query

import (
	"context"
	"embed"
	"io/fs"
	"path"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/phobologic/rsuml/internal/corpus"
	apperrors "github.com/phobologic/rsuml/internal/errors"
)

//go:embed queries
var defaultFS embed.FS

// DefaultFS returns the built-in query definitions.
func DefaultFS() fs.FS {
	sub, err := fs.Sub(defaultFS, "queries")
	if err != nil {
		panic(err) // embedded directory is fixed at build time
	}
	return sub
}

// Source evaluates a bound pattern over the parsed corpus.
type Source interface {
	Query(ctx context.Context, pattern []byte) ([]corpus.Result, error)
}

// Registry maps query names to queries. Registration happens at load time;
// afterwards the registry is read-only and safe for concurrent use.
type Registry struct {
	source  Source
	queries map[string]*Query
}

// New returns an empty registry dispatching to src. src may be nil for a
// registry that is only listed, never run.
func New(src Source) *Registry {
	return &Registry{source: src, queries: make(map[string]*Query)}
}

// unit is the on-disk shape of a *.toml definition.
type unit struct {
	Kind        string   `toml:"kind"`
	Extractor   string   `toml:"extractor"`
	Params      []string `toml:"params"`
	Pattern     string   `toml:"pattern"`
	Description string   `toml:"description"`
}

// Load registers every definition under fsys: *.scm files as pattern
// queries and *.toml files as definition units. Nested directories share
// one flat namespace; hidden directories are skipped. A name derived twice
// is a LOAD_ERROR.
func (r *Registry) Load(fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeLoad, "walking queries").
				WithContext(apperrors.CtxPath, p)
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}

		var q *Query
		switch path.Ext(p) {
		case ".scm":
			data, err := fs.ReadFile(fsys, p)
			if err != nil {
				return apperrors.Wrap(err, apperrors.CodeLoad, "reading query").
					WithContext(apperrors.CtxPath, p)
			}
			q = &Query{Name: NameFor(p), Kind: Pattern, Pattern: string(data), Source: p}
		case ".toml":
			q, err = readUnit(fsys, p)
			if err != nil {
				return err
			}
		default:
			return nil
		}
		return r.Register(q)
	})
}

// LoadDefaults registers the built-in definitions.
func (r *Registry) LoadDefaults() error {
	return r.Load(DefaultFS())
}

func readUnit(fsys fs.FS, p string) (*Query, error) {
	data, err := fs.ReadFile(fsys, p)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLoad, "reading query definition").
			WithContext(apperrors.CtxPath, p)
	}
	var u unit
	if _, err := toml.Decode(string(data), &u); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLoad, "decoding query definition").
			WithContext(apperrors.CtxPath, p)
	}

	q := &Query{
		Name:        NameFor(p),
		Extractor:   Extractor(u.Extractor),
		Params:      u.Params,
		Pattern:     u.Pattern,
		Description: u.Description,
		Source:      p,
	}
	switch u.Kind {
	case "pattern":
		q.Kind = Pattern
	case "programmatic":
		q.Kind = Programmatic
	case "":
		q.Kind = Pattern
		if u.Extractor != "" {
			q.Kind = Programmatic
		}
	default:
		return nil, apperrors.Newf(apperrors.CodeLoad, "unknown query kind %q", u.Kind).
			WithContext(apperrors.CtxPath, p)
	}
	return q, nil
}

// Register validates q and adds it under q.Name.
func (r *Registry) Register(q *Query) error {
	if err := validate(q); err != nil {
		return err
	}
	if prev, ok := r.queries[q.Name]; ok {
		return apperrors.Newf(apperrors.CodeLoad, "duplicate query name %q", q.Name).
			WithContext(apperrors.CtxQuery, q.Name).
			WithContext("first", prev.Source).
			WithContext("second", q.Source)
	}
	r.queries[q.Name] = q
	return nil
}

func validate(q *Query) error {
	fail := func(format string, args ...any) error {
		return apperrors.Newf(apperrors.CodeLoad, format, args...).
			WithContext(apperrors.CtxQuery, q.Name).
			WithContext(apperrors.CtxPath, q.Source)
	}

	if q.Name == "" {
		return fail("cannot derive a query name")
	}
	if strings.TrimSpace(q.Pattern) == "" {
		return fail("empty pattern")
	}

	switch q.Kind {
	case Pattern:
		if q.Extractor != "" {
			return fail("pattern query must not name an extractor")
		}
	case Programmatic:
		want, ok := extractorParams[q.Extractor]
		if !ok {
			return fail("unknown extractor %q", q.Extractor)
		}
		if !slices.Equal(sortedCopy(q.Params), sortedCopy(want)) {
			return fail("extractor %q takes parameters %v, definition declares %v", q.Extractor, want, q.Params)
		}
	default:
		return fail("unknown query kind %d", int(q.Kind))
	}

	if got, want := placeholders(q.Pattern), sortedCopy(q.Params); !slices.Equal(got, want) {
		return fail("pattern placeholders %v do not match declared parameters %v", got, want)
	}

	sample := make(Args, len(q.Params))
	for _, p := range q.Params {
		sample[p] = "Sample"
	}
	bound, err := q.Bind(sample)
	if err != nil {
		return err
	}
	compiled, err := corpus.Compile(bound)
	if err != nil {
		return apperrors.AddContext(apperrors.AddContext(err, apperrors.CtxQuery, q.Name), apperrors.CtxPath, q.Source)
	}
	compiled.Close()
	return nil
}

func sortedCopy(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	sort.Strings(out)
	return out
}

// Get returns the query registered under name, or a NOT_FOUND error.
func (r *Registry) Get(name string) (*Query, error) {
	q, ok := r.queries[name]
	if !ok {
		return nil, apperrors.Newf(apperrors.CodeNotFound, "no query named %q", name).
			WithContext(apperrors.CtxQuery, name)
	}
	return q, nil
}

// Run binds args into the named query and evaluates it over the corpus.
func (r *Registry) Run(ctx context.Context, name string, args Args) ([]corpus.Result, error) {
	q, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, q, args)
}

// Execute binds args into q and evaluates it over the corpus.
func (r *Registry) Execute(ctx context.Context, q *Query, args Args) ([]corpus.Result, error) {
	if r.source == nil {
		return nil, apperrors.New(apperrors.CodeInternal, "registry has no source corpus").
			WithContext(apperrors.CtxQuery, q.Name)
	}
	pattern, err := q.Bind(args)
	if err != nil {
		return nil, err
	}
	results, err := r.source.Query(ctx, pattern)
	if err != nil {
		return nil, apperrors.AddContext(err, apperrors.CtxQuery, q.Name)
	}
	return results, nil
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.queries))
	for name := range r.queries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ByExtractor returns the programmatic queries handled by e, sorted by name.
func (r *Registry) ByExtractor(e Extractor) []*Query {
	var out []*Query
	for _, name := range r.Names() {
		q := r.queries[name]
		if q.Kind == Programmatic && q.Extractor == e {
			out = append(out, q)
		}
	}
	return out
}

// Declarations returns every programmatic query that registers Types.
func (r *Registry) Declarations() []*Query {
	var out []*Query
	for _, name := range r.Names() {
		q := r.queries[name]
		if q.Kind == Programmatic && q.Extractor.Declaration() {
			out = append(out, q)
		}
	}
	return out
}
