// Package config loads rsuml's TOML configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultFile is the config file looked up in the working directory when no
// path is given.
const DefaultFile = "rsuml.toml"

const defaultMaxFileSize = 1_000_000 // 1 MB

// Conflict policies for Type Model name collisions.
const (
	OnConflictReplace = "replace"
	OnConflictError   = "error"
)

type Config struct {
	SourceRoot       string   `toml:"source_root"`
	QueriesDir       string   `toml:"queries_dir"`
	Extensions       []string `toml:"extensions"`
	Exclude          []string `toml:"exclude"`
	RespectGitignore *bool    `toml:"respect_gitignore"`
	OnConflict       string   `toml:"on_conflict"`
	MaxTypes         int      `toml:"max_types"`
	MaxFileSize      int64    `toml:"max_file_size"`
	Log              Log      `toml:"log"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load decodes the TOML file at path and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// LoadOptional loads path if set. With an empty path it loads DefaultFile
// when present and otherwise returns Default().
func LoadOptional(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	cfg, err := Load(DefaultFile)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Parse decodes TOML data and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GitignoreEnabled reports whether .gitignore rules apply to discovery.
func (c *Config) GitignoreEnabled() bool {
	return c.RespectGitignore == nil || *c.RespectGitignore
}

// Validate checks enumerated values.
func (c *Config) Validate() error {
	switch c.OnConflict {
	case OnConflictReplace, OnConflictError:
	default:
		return fmt.Errorf("on_conflict: unsupported policy %q (want %q or %q)", c.OnConflict, OnConflictReplace, OnConflictError)
	}
	if c.MaxTypes < 0 {
		return fmt.Errorf("max_types: must be >= 0, got %d", c.MaxTypes)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.SourceRoot == "" {
		c.SourceRoot = "."
	}
	if len(c.Extensions) == 0 {
		c.Extensions = []string{".rs"}
	}
	if c.OnConflict == "" {
		c.OnConflict = OnConflictReplace
	}
	if c.MaxFileSize == 0 {
		c.MaxFileSize = defaultMaxFileSize
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Sample is the commented starter config written by `rsuml init`.
const Sample = `# rsuml configuration

# Root of the Rust source tree. A positional argument overrides it.
source_root = "src"

# Directory of query definitions (*.scm patterns, *.toml definition units).
# Empty uses the built-in queries.
queries_dir = ""

extensions = [".rs"]

# Glob patterns (relative to source_root) excluded from discovery.
exclude = ["**/target/**"]

respect_gitignore = true

# What to do when two declarations share a type name: "replace" or "error".
on_conflict = "replace"

# Keep only the N most connected types in the diagram (0 = all).
max_types = 0

max_file_size = 1000000

[log]
level = "info"
format = "text"
`
