// Package stack implements the core of cascade: discovering the tree of
// pull-request branches rooted at a just-merged branch, deciding per branch
// whether and how to update it, and reporting conflicts that need a human.
package stack

import (
	"context"

	"cascade.dev/cascade/internal/github"
)

// VCS is the capability interface over the single working checkout used to
// perform merges. Implementations must leave the checkout either
// "successfully updated" or "aborted back to original" after every call
// sequence; no two branches' merge state may be interleaved.
type VCS interface {
	Fetch(ctx context.Context) error
	BranchTip(ctx context.Context, branch string) (string, error)
	RemoteTip(ctx context.Context, branch string) (string, error)
	FirstParent(ctx context.Context, rev string) (string, error)
	TreeOf(ctx context.Context, rev string) (string, error)
	IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error)
	CheckoutBranch(ctx context.Context, branch string) error
	Merge(ctx context.Context, rev string) error
	MergeOurs(ctx context.Context, rev string) error
	MergeAbort(ctx context.Context) error
	HardReset(ctx context.Context, rev string) error
	UpdateRef(ctx context.Context, name, sha string) error
	GetRef(ctx context.Context, name string) (string, error)
	DeleteRef(ctx context.Context, name string) error
	CommitTree(ctx context.Context, tree string, parents []string, message string) (string, error)
	PushBatch(ctx context.Context, branches []string, deleteBranch string) error
}

// Directory is the pull-request directory: it answers which PRs are based on
// a branch and performs the retarget/comment/label mutations.
type Directory interface {
	ListOpenByBase(ctx context.Context, base string) ([]github.PullRequestInfo, error)
	Retarget(ctx context.Context, prNumber int, base string) error
	Comment(ctx context.Context, prNumber int, body string) error
	AddLabel(ctx context.Context, prNumber int, label string) error
}

// MergeEvent is the triggering fact for one run: a squash commit landed on
// TargetBranch and MergedBranch is now obsolete.
type MergeEvent struct {
	// SquashCommit is the single commit representing the merged branch's
	// entire change set as landed on the target branch.
	SquashCommit string

	// MergedBranch is the now-obsolete source branch name.
	MergedBranch string

	// TargetBranch is the branch the squash commit landed on.
	TargetBranch string
}
