// rsuml renders the structs, enums and traits of a Rust source tree as a
// PlantUML class diagram.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phobologic/rsuml/internal/config"
	"github.com/phobologic/rsuml/internal/corpus"
	apperrors "github.com/phobologic/rsuml/internal/errors"
	"github.com/phobologic/rsuml/internal/logger"
	"github.com/phobologic/rsuml/internal/pipeline"
	"github.com/phobologic/rsuml/internal/query"
	"github.com/phobologic/rsuml/internal/toon"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand that reads the source tree.
type globalFlags struct {
	configPath  string
	queriesDir  string
	exclude     []string
	maxFileSize int64
	noGitignore bool
	logLevel    string
	logFormat   string
	workers     int
}

func run(args []string, stdout, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		g          globalFlags
		maxTypes   int
		onConflict string
		output     string
	)

	cmd := &cobra.Command{
		Use:   "rsuml [flags] [root]",
		Short: "Render a Rust source tree as a PlantUML class diagram",
		Long: `rsuml parses every Rust file under root, extracts its structs, enums and
traits together with their fields and impl methods, and prints a PlantUML
class diagram on stdout. Diagnostics go to stderr.

root defaults to source_root from rsuml.toml, or the current directory.`,
		Args:          cobra.MaximumNArgs(1),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load(cmd, args)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("max-types") {
				cfg.MaxTypes = maxTypes
			}
			if cmd.Flags().Changed("on-conflict") {
				cfg.OnConflict = onConflict
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			log := logger.New(cfg.Log.Level, cfg.Log.Format, stderr)
			opts := g.options(cfg, log)

			if output == "" || output == "-" {
				return pipeline.Run(cmd.Context(), stdout, opts)
			}

			// Render fully before touching the output file.
			var buf bytes.Buffer
			if err := pipeline.Run(cmd.Context(), &buf, opts); err != nil {
				return err
			}
			if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			log.Info("wrote diagram", "path", output)
			return nil
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetVersionTemplate("rsuml {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "config file (default ./"+config.DefaultFile+" if present)")
	pf.StringVarP(&g.queriesDir, "queries", "q", "", "query definitions directory (default built-in queries)")
	pf.StringArrayVarP(&g.exclude, "exclude", "x", nil, "exclude paths matching glob (repeatable)")
	pf.Int64Var(&g.maxFileSize, "max-file-size", 0, "skip files larger than this many bytes")
	pf.BoolVar(&g.noGitignore, "no-gitignore", false, "do not apply .gitignore rules")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "", "log format: text, json")
	pf.IntVarP(&g.workers, "workers", "j", 0, "concurrent API extraction tasks (default number of CPUs)")

	f := cmd.Flags()
	f.IntVarP(&maxTypes, "max-types", "n", 0, "keep only the N most connected types (0 = all)")
	f.StringVar(&onConflict, "on-conflict", "", "type name collisions: replace or error")
	f.StringVarP(&output, "output", "o", "", "write the diagram to file instead of stdout")

	cmd.AddCommand(newQueryCmd(&g, stdout, stderr), newInitCmd(stdout, stderr))
	return cmd
}

// load reads the config file and applies flag overrides. A positional
// root argument replaces source_root.
func (g *globalFlags) load(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := config.LoadOptional(g.configPath)
	if err != nil {
		path := g.configPath
		if path == "" {
			path = config.DefaultFile
		}
		return nil, apperrors.Wrap(err, apperrors.CodeLoad, "loading config").
			WithContext(apperrors.CtxPath, path)
	}

	// Paths in an explicit config file are relative to the file.
	if g.configPath != "" {
		base := filepath.Dir(g.configPath)
		cfg.SourceRoot = relativeTo(base, cfg.SourceRoot)
		cfg.QueriesDir = relativeTo(base, cfg.QueriesDir)
	}

	flags := cmd.Flags()
	if flags.Changed("queries") {
		cfg.QueriesDir = g.queriesDir
	}
	if flags.Changed("exclude") {
		cfg.Exclude = append(cfg.Exclude, g.exclude...)
	}
	if flags.Changed("max-file-size") {
		cfg.MaxFileSize = g.maxFileSize
	}
	if g.noGitignore {
		off := false
		cfg.RespectGitignore = &off
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = g.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = g.logFormat
	}
	if len(args) > 0 {
		cfg.SourceRoot = args[0]
	}

	info, err := os.Stat(cfg.SourceRoot)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeLoad, "source root").
			WithContext(apperrors.CtxPath, cfg.SourceRoot)
	}
	if !info.IsDir() {
		return nil, apperrors.New(apperrors.CodeLoad, "source root is not a directory").
			WithContext(apperrors.CtxPath, cfg.SourceRoot)
	}
	return cfg, nil
}

func (g *globalFlags) options(cfg *config.Config, log *logger.Logger) pipeline.Options {
	return pipeline.Options{
		Root:        cfg.SourceRoot,
		QueriesDir:  cfg.QueriesDir,
		Extensions:  cfg.Extensions,
		Exclude:     cfg.Exclude,
		Gitignore:   cfg.GitignoreEnabled(),
		MaxFileSize: cfg.MaxFileSize,
		OnConflict:  cfg.OnConflict,
		MaxTypes:    cfg.MaxTypes,
		Workers:     g.workers,
		Logger:      log,
	}
}

func relativeTo(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func newQueryCmd(g *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var (
		params []string
		list   bool
		stdin  bool
	)

	cmd := &cobra.Command{
		Use:   "query NAME [root]",
		Short: "Run one registered query and print its raw matches as TOON",
		Long: `Run a registered structural query over the source tree and print every
capture of every match as a TOON table. Parameterized queries take their
arguments with --param, e.g.

  rsuml query ImplBlock --param type_name=Point

Use --stdin to query Rust source read from standard input instead of a
tree, and --list to show the registered queries.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return cobra.MaximumNArgs(0)(cmd, args)
			}
			if stdin {
				return cobra.ExactArgs(1)(cmd, args)
			}
			return cobra.RangeArgs(1, 2)(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if list {
				dir, err := g.registryDir(cmd)
				if err != nil {
					return err
				}
				reg, err := pipeline.LoadRegistry(nil, dir)
				if err != nil {
					return err
				}
				var queries []*query.Query
				for _, name := range reg.Names() {
					q, _ := reg.Get(name)
					queries = append(queries, q)
				}
				_, _ = fmt.Fprintln(stdout, toon.EncodeQueries(queries))
				return nil
			}

			bound, err := parseParams(params)
			if err != nil {
				return err
			}

			if stdin {
				src, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return apperrors.Wrap(err, apperrors.CodeLoad, "reading source from stdin")
				}
				dir, err := g.registryDir(cmd)
				if err != nil {
					return err
				}
				c := corpus.FromSources(map[string]string{stdinPath: string(src)})
				defer c.Close()
				reg, err := pipeline.LoadRegistry(c, dir)
				if err != nil {
					return err
				}
				return runQuery(cmd, reg, args[0], bound, stdout)
			}

			cfg, err := g.load(cmd, args[1:])
			if err != nil {
				return err
			}
			log := logger.New(cfg.Log.Level, cfg.Log.Format, stderr)

			pc, err := pipeline.Open(g.options(cfg, log))
			if err != nil {
				return err
			}
			defer pc.Close()

			return runQuery(cmd, pc.Registry, args[0], bound, stdout)
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "bind a query parameter as key=value (repeatable)")
	cmd.Flags().BoolVarP(&list, "list", "l", false, "list registered queries")
	cmd.Flags().BoolVar(&stdin, "stdin", false, "query source read from stdin")
	cmd.MarkFlagsMutuallyExclusive("list", "stdin")
	return cmd
}

// stdinPath names the single file of a --stdin corpus.
const stdinPath = "<stdin>"

func runQuery(cmd *cobra.Command, reg *query.Registry, name string, args query.Args, stdout io.Writer) error {
	q, err := reg.Get(name)
	if err != nil {
		return err
	}
	results, err := reg.Execute(cmd.Context(), q, args)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(stdout, toon.EncodeMatches(q, args, results))
	return nil
}

// registryDir resolves the queries directory without touching the source
// tree: --queries wins over queries_dir from the config file.
func (g *globalFlags) registryDir(cmd *cobra.Command) (string, error) {
	if cmd.Flags().Changed("queries") {
		return g.queriesDir, nil
	}
	cfg, err := config.LoadOptional(g.configPath)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeLoad, "loading config")
	}
	dir := cfg.QueriesDir
	if g.configPath != "" {
		dir = relativeTo(filepath.Dir(g.configPath), dir)
	}
	return dir, nil
}

func parseParams(params []string) (query.Args, error) {
	args := make(query.Args, len(params))
	for _, p := range params {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, apperrors.Newf(apperrors.CodeInvalidParameter, "--param %q: want key=value", p)
		}
		if _, dup := args[key]; dup {
			return nil, apperrors.Newf(apperrors.CodeInvalidParameter, "--param %q given twice", key).
				WithContext(apperrors.CtxParam, key)
		}
		args[key] = value
	}
	return args, nil
}
