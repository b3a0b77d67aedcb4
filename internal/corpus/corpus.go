// Package corpus is the parsed source corpus: every discovered source file,
// parsed lazily on first query and cached for the corpus lifetime.
package corpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"golang.org/x/sync/errgroup"

	"github.com/phobologic/rsuml/internal/discover"
	apperrors "github.com/phobologic/rsuml/internal/errors"
	"github.com/phobologic/rsuml/internal/lang"
	"github.com/phobologic/rsuml/internal/logger"
)

// Options controls which files Load records.
type Options struct {
	Extensions  []string
	Exclude     []string
	Gitignore   bool
	MaxFileSize int64 // 0 = unlimited
	Logger      *logger.Logger
}

// Corpus maps source paths to lazily parsed trees. It is safe for
// concurrent use.
type Corpus struct {
	root    string
	lang    *lang.Language
	paths   []string
	entries map[string]*entry
}

type entry struct {
	path   string
	abs    string
	inline []byte

	once   sync.Once
	source []byte
	tree   *sitter.Tree
	err    error

	// mu serializes cursors over tree.
	mu sync.Mutex
}

// Load walks root and records every matching file without parsing any.
func Load(root string, opts Options) (*Corpus, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}

	rust := lang.Rust()
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = rust.Extensions
	}
	for _, ext := range exts {
		if lang.ForExtension(ext) != rust.Name {
			log.Warn("no grammar registered for extension, parsing as rust", "extension", ext)
		}
	}

	files, err := discover.Files(root, discover.Options{
		Extensions: exts,
		Exclude:    opts.Exclude,
		Gitignore:  opts.Gitignore,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLoad, "discovering source files").
			WithContext(apperrors.CtxPath, root)
	}

	c := &Corpus{
		root:    root,
		lang:    rust,
		entries: make(map[string]*entry, len(files)),
	}
	for _, f := range files {
		if opts.MaxFileSize > 0 && f.Size > opts.MaxFileSize {
			log.Warn("skipping large file", "path", f.Path, "size", f.Size, "limit", opts.MaxFileSize)
			continue
		}
		c.paths = append(c.paths, f.Path)
		c.entries[f.Path] = &entry{path: f.Path, abs: filepath.Join(root, filepath.FromSlash(f.Path))}
	}
	return c, nil
}

// FromSources builds an in-memory corpus from path → source text.
func FromSources(sources map[string]string) *Corpus {
	c := &Corpus{
		lang:    lang.Rust(),
		entries: make(map[string]*entry, len(sources)),
	}
	for path, src := range sources {
		c.paths = append(c.paths, path)
		c.entries[path] = &entry{path: path, inline: []byte(src)}
	}
	sort.Strings(c.paths)
	return c
}

// Root returns the directory the corpus was loaded from ("" for in-memory corpora).
func (c *Corpus) Root() string {
	return c.root
}

// Files returns the recorded paths in traversal order.
func (c *Corpus) Files() []string {
	out := make([]string, len(c.paths))
	copy(out, c.paths)
	return out
}

// Len returns the number of recorded files.
func (c *Corpus) Len() int {
	return len(c.paths)
}

// Compile compiles pattern against the corpus grammar. A rejected pattern
// is a QUERY_COMPILATION error. The caller must Close the query.
func Compile(pattern []byte) (*sitter.Query, error) {
	q, err := sitter.NewQuery(pattern, lang.Rust().GetLanguage())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeQueryCompilation, "compiling structural query")
	}
	return q, nil
}

// Query evaluates pattern against every file and returns one Result per
// file with at least one match, in traversal order. A compile failure or
// an unreadable file aborts the evaluation with no partial results.
func (c *Corpus) Query(ctx context.Context, pattern []byte) ([]Result, error) {
	q, err := Compile(pattern)
	if err != nil {
		return nil, err
	}
	defer q.Close()

	var results []Result
	for _, path := range c.paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e := c.entries[path]
		matches, err := e.query(ctx, c.lang, q)
		if err != nil {
			return nil, err
		}
		if len(matches) > 0 {
			results = append(results, Result{Path: path, Matches: matches})
		}
	}
	return results, nil
}

// Parse parses every file up front, concurrently.
func (c *Corpus) Parse(ctx context.Context, workers int) error {
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for _, path := range c.paths {
		e := c.entries[path]
		g.Go(func() error {
			return e.load(ctx, c.lang)
		})
	}
	return g.Wait()
}

// Close releases every parsed tree.
func (c *Corpus) Close() {
	for _, e := range c.entries {
		e.mu.Lock()
		if e.tree != nil {
			e.tree.Close()
			e.tree = nil
		}
		e.mu.Unlock()
	}
}

// load parses the entry once. Cancellation is reported to the caller but
// never cached, so a later query can still parse the file.
func (e *entry) load(ctx context.Context, l *lang.Language) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.once.Do(func() {
		src := e.inline
		if src == nil {
			data, err := os.ReadFile(e.abs)
			if err != nil {
				e.err = apperrors.Wrap(err, apperrors.CodeLoad, "reading source file").
					WithContext(apperrors.CtxPath, e.path)
				return
			}
			src = data
		}

		parser := l.NewParser()
		defer parser.Close()

		tree, err := parser.ParseCtx(context.WithoutCancel(ctx), nil, src)
		if err != nil {
			e.err = apperrors.Wrap(err, apperrors.CodeLoad, "parsing source file").
				WithContext(apperrors.CtxPath, e.path)
			return
		}
		e.source = src
		e.tree = tree
	})
	return e.err
}

func (e *entry) query(ctx context.Context, l *lang.Language, q *sitter.Query) ([]Match, error) {
	if err := e.load(ctx, l); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tree == nil {
		return nil, fmt.Errorf("corpus: %s: tree already released", e.path)
	}
	return collectMatches(q, e.tree.RootNode(), e.source, e.path), nil
}
