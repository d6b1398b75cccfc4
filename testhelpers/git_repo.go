// Package testhelpers builds throwaway git repositories for tests: a working
// checkout wired to a local bare "origin", with helpers for the commit and
// branch shapes the stack tests need.
package testhelpers

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// GitRepo represents a Git repository for testing purposes.
type GitRepo struct {
	Dir string
}

// NewGitRepo initializes a new Git repository in the specified directory using 'git init'.
func NewGitRepo(dir string) (*GitRepo, error) {
	repo := &GitRepo{Dir: dir}

	// Initialize with a fixed default branch and without reading global config
	cmd := exec.Command("git", "-c", "init.defaultBranch=main", "-c", "core.autocrlf=false", "init", dir, "-b", "main")
	cmd.Env = append(os.Environ(), "GIT_CONFIG_GLOBAL=/dev/null")
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("failed to init repo: %w", err)
	}

	// Configure Git user (required for commits)
	if err := repo.RunGitCommand("config", "user.name", "Test User"); err != nil {
		return nil, err
	}
	if err := repo.RunGitCommand("config", "user.email", "test@example.com"); err != nil {
		return nil, err
	}

	return repo, nil
}

// NewGitRepoWithOrigin initializes a repository plus a bare repository wired
// as its "origin" remote, in sibling directories under baseDir.
func NewGitRepoWithOrigin(baseDir string) (*GitRepo, string, error) {
	originDir := filepath.Join(baseDir, "origin.git")
	workDir := filepath.Join(baseDir, "work")

	cmd := exec.Command("git", "init", "--bare", originDir)
	cmd.Env = append(os.Environ(), "GIT_CONFIG_GLOBAL=/dev/null")
	if err := cmd.Run(); err != nil {
		return nil, "", fmt.Errorf("failed to init bare origin: %w", err)
	}

	repo, err := NewGitRepo(workDir)
	if err != nil {
		return nil, "", err
	}
	if err := repo.RunGitCommand("remote", "add", "origin", originDir); err != nil {
		return nil, "", err
	}

	return repo, originDir, nil
}

// RunGitCommand runs a git command in the repository directory, discarding output.
func (r *GitRepo) RunGitCommand(args ...string) error {
	_, err := r.RunGitCommandOutput(args...)
	return err
}

// RunGitCommandOutput runs a git command in the repository directory and
// returns its trimmed stdout.
func (r *GitRepo) RunGitCommandOutput(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), "GIT_CONFIG_GLOBAL=/dev/null")
	out, err := cmd.Output()
	if err != nil {
		var stderr string
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = string(exitErr.Stderr)
		}
		return "", fmt.Errorf("git %s failed: %s: %w", strings.Join(args, " "), stderr, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// CreateChangeAndCommit writes content to a file and commits it.
func (r *GitRepo) CreateChangeAndCommit(file, content, message string) error {
	path := filepath.Join(r.Dir, file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content+"\n"), 0o644); err != nil {
		return err
	}
	if err := r.RunGitCommand("add", file); err != nil {
		return err
	}
	return r.RunGitCommand("commit", "-m", message)
}

// CreateAndCheckoutBranch creates and checks out a new branch.
func (r *GitRepo) CreateAndCheckoutBranch(name string) error {
	return r.RunGitCommand("checkout", "-b", name)
}

// CheckoutBranch checks out an existing branch.
func (r *GitRepo) CheckoutBranch(name string) error {
	return r.RunGitCommand("checkout", name)
}

// Rev returns the commit SHA a revision expression resolves to.
func (r *GitRepo) Rev(rev string) (string, error) {
	return r.RunGitCommandOutput("rev-parse", "--verify", rev)
}

// PushAll pushes the given branches to origin.
func (r *GitRepo) PushAll(branches ...string) error {
	args := append([]string{"push", "origin"}, branches...)
	return r.RunGitCommand(args...)
}

// SquashMerge squash-merges source into target and commits the result,
// returning the SHA of the squash commit. The checkout is left on target.
func (r *GitRepo) SquashMerge(target, source, message string) (string, error) {
	if err := r.CheckoutBranch(target); err != nil {
		return "", err
	}
	if err := r.RunGitCommand("merge", "--squash", source); err != nil {
		return "", err
	}
	if err := r.RunGitCommand("commit", "-m", message); err != nil {
		return "", err
	}
	return r.Rev("HEAD")
}
