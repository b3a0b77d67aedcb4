// Package pipeline runs rsuml end to end: declaration extraction, API
// extraction and diagram emission, each phase a barrier-joined fan-out.
package pipeline

import (
	"context"
	"io"
	"os"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/phobologic/rsuml/internal/corpus"
	"github.com/phobologic/rsuml/internal/diagram"
	apperrors "github.com/phobologic/rsuml/internal/errors"
	"github.com/phobologic/rsuml/internal/extract"
	"github.com/phobologic/rsuml/internal/graph"
	"github.com/phobologic/rsuml/internal/logger"
	"github.com/phobologic/rsuml/internal/model"
	"github.com/phobologic/rsuml/internal/query"
	"github.com/phobologic/rsuml/internal/ranking"
)

// Options configures a run.
type Options struct {
	Root        string
	QueriesDir  string // "" = built-in queries
	Extensions  []string
	Exclude     []string
	Gitignore   bool
	MaxFileSize int64
	OnConflict  string
	MaxTypes    int // 0 = all types
	Workers     int // 0 = runtime.NumCPU()
	Logger      *logger.Logger
}

// Context owns the state the phases share. It is built by Open and
// passed explicitly; nothing is global.
type Context struct {
	Corpus   *corpus.Corpus
	Registry *query.Registry
	Model    *model.Model

	engine  *extract.Engine
	workers int
	log     *logger.Logger
}

// Open discovers the source tree and loads the query registry.
func Open(opts Options) (*Context, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	c, err := corpus.Load(opts.Root, corpus.Options{
		Extensions:  opts.Extensions,
		Exclude:     opts.Exclude,
		Gitignore:   opts.Gitignore,
		MaxFileSize: opts.MaxFileSize,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}
	log.Info("loaded source tree", "root", c.Root(), "files", c.Len())

	reg, err := LoadRegistry(c, opts.QueriesDir)
	if err != nil {
		c.Close()
		return nil, err
	}
	log.Debug("loaded queries", "names", reg.Names())

	m := model.New()
	return &Context{
		Corpus:   c,
		Registry: reg,
		Model:    m,
		engine:   extract.New(reg, m, log, opts.OnConflict),
		workers:  workers,
		log:      log,
	}, nil
}

// LoadRegistry builds a registry over src from dir, or from the built-in
// definitions when dir is empty.
func LoadRegistry(src query.Source, dir string) (*query.Registry, error) {
	reg := query.New(src)
	if dir == "" {
		if err := reg.LoadDefaults(); err != nil {
			return nil, err
		}
		return reg, nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLoad, "opening queries directory").
			WithContext(apperrors.CtxPath, dir)
	}
	if !info.IsDir() {
		return nil, apperrors.New(apperrors.CodeLoad, "queries path is not a directory").
			WithContext(apperrors.CtxPath, dir)
	}
	if err := reg.Load(os.DirFS(dir)); err != nil {
		return nil, apperrors.AddContext(err, "queries_dir", dir)
	}
	return reg, nil
}

// Close releases the parsed trees.
func (c *Context) Close() {
	c.Corpus.Close()
}

// Parse parses the whole source tree up front, with at most the
// configured number of workers.
func (c *Context) Parse(ctx context.Context) error {
	start := time.Now()
	if err := c.Corpus.Parse(ctx, c.workers); err != nil {
		return err
	}
	c.log.Debug("parsed source tree", "files", c.Corpus.Len(), "elapsed", time.Since(start).Round(time.Millisecond).String())
	return nil
}

// Declare runs every declaration query concurrently. The first failure
// cancels the phase; Types registered by queries that already finished
// stay in the Model.
func (c *Context) Declare(ctx context.Context) error {
	queries := c.Registry.Declarations()
	c.log.Info("extracting declarations", "queries", len(queries))

	g, gctx := errgroup.WithContext(ctx)
	for _, q := range queries {
		g.Go(func() error {
			types, err := c.engine.RunDeclaration(gctx, q)
			if err != nil {
				c.log.WithQuery(q.Name).WithError(err).Error("declaration query failed")
				return err
			}
			c.log.WithQuery(q.Name).Debug("declarations found", "count", len(types))
			return nil
		})
	}
	return g.Wait()
}

// FindAPIs populates the API set of every registered Type, one task per
// Type.
func (c *Context) FindAPIs(ctx context.Context, refresh bool) error {
	types := c.Model.Types()
	c.log.Info("finding APIs", "types", len(types))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for _, t := range types {
		g.Go(func() error {
			c.log.Info(string(t.Kind) + " " + t.Name)
			if _, err := c.engine.FindAPIs(gctx, t, refresh); err != nil {
				c.log.WithType(string(t.Kind), t.Name).WithError(err).Error("api extraction failed")
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

// Select returns the Types to draw, sorted by name: all of them, or the
// maxTypes most central ones.
func (c *Context) Select(maxTypes int) []*model.Type {
	types := c.Model.Types()
	if maxTypes <= 0 || maxTypes >= len(types) {
		return types
	}
	selected := ranking.SelectTypes(types, graph.Rank(types), maxTypes)
	c.log.Info("selected most central types", "kept", len(selected), "of", len(types))
	return selected
}

// Run executes the full pipeline and writes the diagram to w.
func Run(ctx context.Context, w io.Writer, opts Options) error {
	start := time.Now()

	pc, err := Open(opts)
	if err != nil {
		return err
	}
	defer pc.Close()

	if err := pc.Parse(ctx); err != nil {
		return err
	}
	if err := pc.Declare(ctx); err != nil {
		return err
	}
	if err := pc.FindAPIs(ctx, false); err != nil {
		return err
	}

	types := pc.Select(opts.MaxTypes)
	if err := diagram.Render(ctx, w, types); err != nil {
		return err
	}

	pc.log.Info("done", "types", len(types), "elapsed", time.Since(start).Round(time.Millisecond).String())
	return nil
}
