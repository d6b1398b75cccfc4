package git

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cascadeerrors "cascade.dev/cascade/internal/errors"
)

// RevParse resolves a revision expression to a full commit SHA.
func (r *Repo) RevParse(ctx context.Context, rev string) (string, error) {
	sha, err := r.runner.Run(ctx, "rev-parse", "--verify", rev+"^{commit}")
	if err != nil {
		return "", fmt.Errorf("failed to resolve revision %s: %w", rev, err)
	}
	return sha, nil
}

// BranchTip returns the commit SHA a local branch points at.
func (r *Repo) BranchTip(ctx context.Context, branch string) (string, error) {
	return r.RevParse(ctx, "refs/heads/"+branch)
}

// RemoteTip returns the commit SHA of the remote-tracking ref for a branch.
func (r *Repo) RemoteTip(ctx context.Context, branch string) (string, error) {
	return r.RevParse(ctx, "refs/remotes/"+r.remote+"/"+branch)
}

// TreeOf returns the tree SHA of a revision.
func (r *Repo) TreeOf(ctx context.Context, rev string) (string, error) {
	tree, err := r.runner.Run(ctx, "rev-parse", rev+"^{tree}")
	if err != nil {
		return "", fmt.Errorf("failed to resolve tree of %s: %w", rev, err)
	}
	return tree, nil
}

// FirstParent returns the first parent of a commit.
func (r *Repo) FirstParent(ctx context.Context, rev string) (string, error) {
	sha, err := r.runner.Run(ctx, "rev-parse", "--verify", rev+"^1")
	if err != nil {
		return "", fmt.Errorf("failed to resolve first parent of %s: %w", rev, err)
	}
	return sha, nil
}

// IsAncestor reports whether ancestor is reachable from descendant.
func (r *Repo) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	_, err := r.runner.Run(ctx, "merge-base", "--is-ancestor", ancestor, descendant)
	if err == nil {
		return true, nil
	}
	// Exit status 1 means "not an ancestor"; anything else is a real failure.
	var cmdErr *cascadeerrors.GitCommandError
	if errors.As(err, &cmdErr) && cmdErr.Stderr == "" {
		return false, nil
	}
	return false, fmt.Errorf("ancestry query %s..%s: %w", ancestor, descendant, err)
}

// CheckoutBranch checks out a branch, creating a local branch from the
// remote-tracking ref when no local branch exists yet.
func (r *Repo) CheckoutBranch(ctx context.Context, branch string) error {
	if _, err := r.runner.Run(ctx, "checkout", branch); err != nil {
		return fmt.Errorf("failed to checkout branch %s: %w", branch, err)
	}
	return nil
}

// Merge merges rev into the currently checked-out branch with the default
// strategy. A content conflict is reported as ErrMergeConflict; the merge is
// left in progress so the caller decides whether to abort.
func (r *Repo) Merge(ctx context.Context, rev string) error {
	_, err := r.runner.Run(ctx, "merge", "--no-edit", rev)
	if err == nil {
		return nil
	}
	if r.mergeInProgress(ctx) || isConflictOutput(err) {
		return cascadeerrors.NewMergeConflictError("", rev)
	}
	return fmt.Errorf("merge of %s failed: %w", rev, err)
}

// MergeOurs merges rev into the current branch keeping the current tree
// unchanged (git's "ours" strategy). Records rev as merged without taking
// any of its content.
func (r *Repo) MergeOurs(ctx context.Context, rev string) error {
	if _, err := r.runner.Run(ctx, "merge", "-s", "ours", "--no-edit", rev); err != nil {
		return fmt.Errorf("ours-merge of %s failed: %w", rev, err)
	}
	return nil
}

// MergeAbort aborts an in-progress merge
func (r *Repo) MergeAbort(ctx context.Context) error {
	if _, err := r.runner.Run(ctx, "merge", "--abort"); err != nil {
		return fmt.Errorf("merge abort failed: %w", err)
	}
	return nil
}

// HardReset resets the current branch and working tree to a revision.
func (r *Repo) HardReset(ctx context.Context, rev string) error {
	if _, err := r.runner.Run(ctx, "reset", "--hard", rev); err != nil {
		return fmt.Errorf("failed to hard reset to %s: %w", rev, err)
	}
	return nil
}

// UpdateRef writes a ref to point at a commit.
func (r *Repo) UpdateRef(ctx context.Context, name, sha string) error {
	if _, err := r.runner.Run(ctx, "update-ref", name, sha); err != nil {
		return fmt.Errorf("failed to update ref %s: %w", name, err)
	}
	return nil
}

// GetRef reads the commit a ref points at.
func (r *Repo) GetRef(ctx context.Context, name string) (string, error) {
	sha, err := r.runner.Run(ctx, "rev-parse", "--verify", name)
	if err != nil {
		return "", fmt.Errorf("failed to read ref %s: %w", name, err)
	}
	return sha, nil
}

// DeleteRef removes a ref.
func (r *Repo) DeleteRef(ctx context.Context, name string) error {
	if _, err := r.runner.Run(ctx, "update-ref", "-d", name); err != nil {
		return fmt.Errorf("failed to delete ref %s: %w", name, err)
	}
	return nil
}

// CommitTree creates a commit object from an explicit tree and parent list.
// Returns the SHA of the new commit.
func (r *Repo) CommitTree(ctx context.Context, tree string, parents []string, message string) (string, error) {
	args := []string{"commit-tree", tree}
	for _, p := range parents {
		args = append(args, "-p", p)
	}
	args = append(args, "-m", message)

	sha, err := r.runner.Run(ctx, args...)
	if err != nil {
		return "", fmt.Errorf("failed to create commit from tree %s: %w", tree, err)
	}
	return sha, nil
}

// Fetch updates all remote-tracking refs from the Repo's remote.
func (r *Repo) Fetch(ctx context.Context) error {
	if _, err := r.runner.Run(ctx, "fetch", r.remote); err != nil {
		return fmt.Errorf("failed to fetch from %s: %w", r.remote, err)
	}
	return nil
}

// PushBatch force-pushes the given branches and deletes deleteBranch on the
// remote, all in a single push so the remote sees one atomicish update.
func (r *Repo) PushBatch(ctx context.Context, branches []string, deleteBranch string) error {
	args := []string{"push", "--force", r.remote}
	args = append(args, branches...)
	if deleteBranch != "" {
		args = append(args, ":"+deleteBranch)
	}

	if _, err := r.runner.Run(ctx, args...); err != nil {
		return fmt.Errorf("batched push to %s failed: %w", r.remote, err)
	}
	return nil
}

// mergeInProgress reports whether a merge has stopped midway, which after a
// failed `git merge` means it stopped on conflicts.
func (r *Repo) mergeInProgress(ctx context.Context) bool {
	_, err := r.runner.Run(ctx, "rev-parse", "-q", "--verify", "MERGE_HEAD")
	return err == nil
}

func isConflictOutput(err error) bool {
	var cmdErr *cascadeerrors.GitCommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	return strings.Contains(cmdErr.Stdout, "CONFLICT") ||
		strings.Contains(cmdErr.Stdout, "Automatic merge failed") ||
		strings.Contains(cmdErr.Stderr, "CONFLICT")
}
