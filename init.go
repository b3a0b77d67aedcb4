package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phobologic/rsuml/internal/config"
	"github.com/phobologic/rsuml/internal/query"
)

// ejectedQueriesDir is where `rsuml init` puts the query definitions,
// relative to the target directory.
const ejectedQueriesDir = "queries"

// ejectFile is one file `rsuml init` writes.
type ejectFile struct {
	rel  string // slash-separated, relative to the target directory
	data []byte
}

func newInitCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		dryRun bool
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write the built-in queries and a starter config for customization",
		Long: `Write the built-in query definitions to dir/queries and a commented
rsuml.toml that points at them. Edit the copies to change what rsuml
extracts. Existing files are left alone unless --force is given.

dir defaults to the current directory.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(dir, dryRun, force, stdout, stderr)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list the files that would be written without writing them")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing files")
	return cmd
}

func runInit(dir string, dryRun, force bool, stdout, stderr io.Writer) error {
	files, err := ejectFiles(query.DefaultFS())
	if err != nil {
		return err
	}

	for _, f := range files {
		dest := filepath.Join(dir, filepath.FromSlash(f.rel))
		_, statErr := os.Stat(dest)
		exists := statErr == nil

		if dryRun {
			state := "create"
			switch {
			case exists && force:
				state = "overwrite"
			case exists:
				state = "skip"
			}
			_, _ = fmt.Fprintf(stdout, "%s %s\n", state, dest)
			continue
		}

		if exists && !force {
			_, _ = fmt.Fprintf(stderr, "skipping %s: already exists\n", dest)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(dest), err)
		}
		if err := os.WriteFile(dest, f.data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", dest, err)
		}
		_, _ = fmt.Fprintf(stderr, "wrote %s\n", dest)
	}
	return nil
}

// ejectFiles lists the starter config followed by every query definition
// in fsys, in walk order.
func ejectFiles(fsys fs.FS) ([]ejectFile, error) {
	files := []ejectFile{{rel: config.DefaultFile, data: []byte(sampleConfig())}}

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		files = append(files, ejectFile{rel: path.Join(ejectedQueriesDir, p), data: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading built-in queries: %w", err)
	}
	return files, nil
}

// sampleConfig is config.Sample pointed at the ejected queries. The source
// root stays "." so the file works from the directory it is written to.
func sampleConfig() string {
	s := strings.Replace(config.Sample, `queries_dir = ""`, `queries_dir = "`+ejectedQueriesDir+`"`, 1)
	return strings.Replace(s, `source_root = "src"`, `source_root = "."`, 1)
}
