package query

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/rsuml/internal/corpus"
	apperrors "github.com/phobologic/rsuml/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	r := New(nil)
	require.NoError(t, r.LoadDefaults())

	assert.Equal(t, []string{"Enum", "Function", "Impl", "ImplBlock", "Struct", "Trait", "TraitMethod"}, r.Names())

	s, err := r.Get("Struct")
	require.NoError(t, err)
	assert.Equal(t, Programmatic, s.Kind)
	assert.Equal(t, ExtractStruct, s.Extractor)
	assert.Equal(t, "structs.toml", s.Source)

	f, err := r.Get("Function")
	require.NoError(t, err)
	assert.Equal(t, Pattern, f.Kind)
	assert.Equal(t, "patterns/functions.scm", f.Source)

	impl := r.ByExtractor(ExtractImpl)
	require.Len(t, impl, 1)
	assert.Equal(t, []string{TypeNameParam}, impl[0].Params)

	var decls []string
	for _, q := range r.Declarations() {
		decls = append(decls, q.Name)
	}
	assert.Equal(t, []string{"Enum", "Struct", "Trait"}, decls)
}

func TestLoadDuplicateNameFails(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"structs.scm":       {Data: []byte(`(struct_item) @s`)},
		"more/structs.toml": {Data: []byte("extractor = \"struct\"\npattern = '(struct_item name: (type_identifier) @type)'\n")},
	}

	err := New(nil).Load(fsys)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeLoad))
	assert.Contains(t, err.Error(), `duplicate query name "Struct"`)
	assert.Contains(t, err.Error(), "more/structs.toml")
	assert.Contains(t, err.Error(), "structs.scm")
}

func TestLoadSkipsHiddenAndForeignFiles(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"traits.scm":         {Data: []byte(`(trait_item name: (type_identifier) @type)`)},
		".drafts/traits.scm": {Data: []byte(`(broken`)},
		"README.md":          {Data: []byte("# queries")},
	}

	r := New(nil)
	require.NoError(t, r.Load(fsys))
	assert.Equal(t, []string{"Trait"}, r.Names())
}

func TestLoadRejectsBadDefinitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		data string
		code apperrors.ErrorCode
	}{
		{"malformed pattern", "a.scm", `(struct_item`, apperrors.CodeQueryCompilation},
		{"unknown node", "b.scm", `(no_such_rust_node) @x`, apperrors.CodeQueryCompilation},
		{"unknown extractor", "c.toml", "extractor = \"union\"\npattern = '(struct_item) @s'\n", apperrors.CodeLoad},
		{"unknown kind", "d.toml", "kind = \"ruby\"\npattern = '(struct_item) @s'\n", apperrors.CodeLoad},
		{"missing param", "e.toml", "extractor = \"impl\"\npattern = '(impl_item) @i'\n", apperrors.CodeLoad},
		{"undeclared placeholder", "f.toml", "pattern = '(impl_item type: (type_identifier) @t (#eq? @t {{name}}))'\n", apperrors.CodeLoad},
		{"empty pattern", "g.toml", "extractor = \"struct\"\n", apperrors.CodeLoad},
		{"bad toml", "h.toml", "pattern = \n", apperrors.CodeLoad},
		{"pattern with extractor", "i.toml", "kind = \"pattern\"\nextractor = \"struct\"\npattern = '(struct_item) @s'\n", apperrors.CodeLoad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := New(nil).Load(fstest.MapFS{tt.file: {Data: []byte(tt.data)}})
			require.Error(t, err)
			assert.True(t, apperrors.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestGetUnknownIsNotFound(t *testing.T) {
	t.Parallel()

	r := New(nil)
	require.NoError(t, r.LoadDefaults())

	q, err := r.Get("Nope")
	assert.Nil(t, q)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	_, err = r.Run(context.Background(), "Nope", nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestRunForwardsToCorpus(t *testing.T) {
	t.Parallel()

	c := corpus.FromSources(map[string]string{
		"geom.rs": `
pub fn origin() -> Point { Point { x: 0, y: 0 } }
impl Point { fn norm(&self) -> i32 { 0 } }
impl Display for Point { fn fmt(&self, f: &mut Formatter) -> Result { Ok(()) } }
impl Line { fn len(&self) -> i32 { 0 } }
`,
	})
	defer c.Close()

	r := New(c)
	require.NoError(t, r.LoadDefaults())

	results, err := r.Run(context.Background(), "Function", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Matches, 1)
	assert.Equal(t, "origin", results[0].Matches[0].Text("function.name"))
	assert.Equal(t, "pub", results[0].Matches[0].Text("function.vis"))

	results, err = r.Run(context.Background(), "ImplBlock", Args{TypeNameParam: "Point"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	names := map[string]bool{}
	for _, m := range results[0].Matches {
		assert.Equal(t, "Point", m.Text("type.name"))
		names[m.Text("function.name")] = true
	}
	assert.Equal(t, map[string]bool{"norm": true, "fmt": true}, names)

	_, err = r.Run(context.Background(), "ImplBlock", nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidParameter))
}

func TestRunWithoutSource(t *testing.T) {
	t.Parallel()

	r := New(nil)
	require.NoError(t, r.LoadDefaults())
	_, err := r.Run(context.Background(), "Struct", nil)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInternal))
}
