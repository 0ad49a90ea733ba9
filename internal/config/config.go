// Package config holds the immutable run configuration for the loader.
// The configuration is built once at startup (flags merged over an
// optional YAML file) and passed explicitly to every component.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultCommitLimit is the number of documents added between index commits.
const DefaultCommitLimit = 250

// FileName is the optional per-directory configuration file.
const FileName = ".opasload.yaml"

// Sentinel configuration errors. These abort the run before any processing.
var (
	ErrNoSinks     = errors.New("no sinks selected: enable the docs sink, the biblio sink, or both")
	ErrBadRootPath = errors.New("root path does not exist")
)

// Run is the complete configuration for one loader run.
type Run struct {
	// RootPath is the directory tree to walk, or a single .xml file.
	RootPath string `yaml:"root_path"`

	// DataDir holds the search indexes, the relational database, and logs.
	DataDir string `yaml:"data_dir"`

	// DocsSink enables the full-text and authors indexes.
	DocsSink bool `yaml:"docs_sink"`

	// BiblioSink enables the relational bibliography sink.
	BiblioSink bool `yaml:"biblio_sink"`

	// ForceRebuild bypasses change detection and reprocesses every file.
	ForceRebuild bool `yaml:"force_rebuild"`

	// Reset clears the indexes and tracking state before loading.
	Reset bool `yaml:"reset"`

	// Before qualifies only files modified before this time. Zero = unset.
	Before time.Time `yaml:"before"`

	// After qualifies only files modified after this time. Zero = unset.
	After time.Time `yaml:"after"`

	// CommitLimit is the batch commit threshold in documents.
	CommitLimit int `yaml:"commit_limit"`

	// DryRun walks and decides but mutates nothing.
	DryRun bool `yaml:"dry_run"`

	// Watch keeps the process alive and re-runs on filesystem changes.
	Watch bool `yaml:"watch"`

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

// Default returns the baseline configuration before flags are applied.
func Default() Run {
	return Run{
		RootPath:    ".",
		DataDir:     ".opasload",
		DocsSink:    true,
		BiblioSink:  true,
		CommitLimit: DefaultCommitLimit,
		LogLevel:    "info",
	}
}

// Load returns Default overlaid with the YAML file in dir, if present.
func Load(dir string) (Run, error) {
	cfg := Default()
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if cfg.CommitLimit <= 0 {
		cfg.CommitLimit = DefaultCommitLimit
	}
	return cfg, nil
}

// Validate enforces the configuration-error taxonomy: a run with no sinks
// or an unreachable root path must not start.
func (r Run) Validate() error {
	if !r.DocsSink && !r.BiblioSink {
		return ErrNoSinks
	}
	if _, err := os.Stat(r.RootPath); err != nil {
		return fmt.Errorf("%w: %s", ErrBadRootPath, r.RootPath)
	}
	if r.CommitLimit <= 0 {
		return fmt.Errorf("commit limit must be positive, got %d", r.CommitLimit)
	}
	return nil
}

// SingleFileMode reports whether RootPath names one XML file rather than
// a tree to walk.
func (r Run) SingleFileMode() bool {
	return strings.EqualFold(filepath.Ext(r.RootPath), ".xml")
}

// DatabasePath returns the path of the relational database under DataDir.
func (r Run) DatabasePath() string {
	return filepath.Join(r.DataDir, "opascentral.db")
}
