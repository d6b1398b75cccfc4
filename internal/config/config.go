// Package config collects the inputs of one cascade run from flags,
// environment variables and the optional repository config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml"

	cascadeerrors "cascade.dev/cascade/internal/errors"
)

// Environment variables consulted when the corresponding flag is unset.
// They match the values a CI job has at hand after a squash merge.
const (
	EnvSquashCommit = "CASCADE_SQUASH_COMMIT"
	EnvMergedBranch = "CASCADE_MERGED_BRANCH"
	EnvTargetBranch = "CASCADE_TARGET_BRANCH"
)

// FileName is the optional repository-level config file, looked up at the
// repository root.
const FileName = ".cascade.toml"

// Defaults applied when neither flag nor file provides a value.
const (
	DefaultRemote        = "origin"
	DefaultConflictLabel = "needs-manual-merge"
	DefaultLogLevel      = "info"
)

// Config holds everything one run needs. The three identifiers of the merge
// event are required; everything else has defaults.
type Config struct {
	SquashCommit string
	MergedBranch string
	TargetBranch string

	Remote        string
	ConflictLabel string
	LogLevel      string
	CommitTrailer string

	DryRun    bool
	AssumeYes bool
}

// fileConfig mirrors the keys of .cascade.toml.
type fileConfig struct {
	Remote        string `toml:"remote"`
	ConflictLabel string `toml:"conflict_label"`
	LogLevel      string `toml:"log_level"`
	CommitTrailer string `toml:"commit_trailer"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Remote:        DefaultRemote,
		ConflictLabel: DefaultConflictLabel,
		LogLevel:      DefaultLogLevel,
	}
}

// ApplyFile overlays values from the repository config file, if one exists
// at repoRoot. Values already set explicitly by the caller win.
func (c *Config) ApplyFile(repoRoot string) error {
	path := filepath.Join(repoRoot, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if c.Remote == DefaultRemote && fc.Remote != "" {
		c.Remote = fc.Remote
	}
	if c.ConflictLabel == DefaultConflictLabel && fc.ConflictLabel != "" {
		c.ConflictLabel = fc.ConflictLabel
	}
	if c.LogLevel == DefaultLogLevel && fc.LogLevel != "" {
		c.LogLevel = fc.LogLevel
	}
	if c.CommitTrailer == "" && fc.CommitTrailer != "" {
		c.CommitTrailer = fc.CommitTrailer
	}
	return nil
}

// ApplyEnv fills the required merge-event inputs from the environment where
// flags left them empty.
func (c *Config) ApplyEnv() {
	if c.SquashCommit == "" {
		c.SquashCommit = os.Getenv(EnvSquashCommit)
	}
	if c.MergedBranch == "" {
		c.MergedBranch = os.Getenv(EnvMergedBranch)
	}
	if c.TargetBranch == "" {
		c.TargetBranch = os.Getenv(EnvTargetBranch)
	}
}

// Validate reports the first missing required input. It must be called
// before any mutation is attempted.
func (c *Config) Validate() error {
	if c.SquashCommit == "" {
		return cascadeerrors.NewMissingInputError("squash commit (--squash-commit or " + EnvSquashCommit + ")")
	}
	if c.MergedBranch == "" {
		return cascadeerrors.NewMissingInputError("merged branch (--merged-branch or " + EnvMergedBranch + ")")
	}
	if c.TargetBranch == "" {
		return cascadeerrors.NewMissingInputError("target branch (--target-branch or " + EnvTargetBranch + ")")
	}
	return nil
}
