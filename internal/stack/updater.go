package stack

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	cascadeerrors "cascade.dev/cascade/internal/errors"
	"cascade.dev/cascade/internal/logfields"
)

// Internal refs used to stash intermediate tips for the duration of one
// branch's update. They are deleted before the update returns.
const (
	refBefore = "refs/cascade/before"
	refMerged = "refs/cascade/merged"
)

// Outcome classifies the result of one branch update.
type Outcome int

const (
	// Skipped means the branch already contained both the new base and the
	// squash commit; it was left untouched.
	Skipped Outcome = iota
	// Updated means the branch tip was advanced to a new merge commit.
	Updated
	// Conflicted means at least one merge stopped on conflicting content;
	// the branch tip is exactly what it was before the attempt.
	Conflicted
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Updated:
		return "updated"
	case Conflicted:
		return "conflicted"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ConflictRecord names the merge sources that failed to merge cleanly into a
// branch, in the order they were attempted. Sources are branch names or raw
// commit SHAs.
type ConflictRecord struct {
	Branch  string
	Sources []string
}

// Result is the outcome of one branch update. Conflict is non-nil iff
// Outcome is Conflicted.
type Result struct {
	Outcome  Outcome
	Conflict *ConflictRecord
}

// Updater performs the per-branch update decisions and merges for one merge
// event. It owns the working checkout for the duration of each call.
type Updater struct {
	vcs     VCS
	event   MergeEvent
	trailer string
	logger  *zap.Logger
}

// NewUpdater creates an Updater for one merge event. trailer, when
// non-empty, is appended as a trailer line to synthetic merge commit
// messages.
func NewUpdater(vcs VCS, event MergeEvent, trailer string, logger *zap.Logger) *Updater {
	return &Updater{
		vcs:     vcs,
		event:   event,
		trailer: trailer,
		logger:  logger.Named("updater"),
	}
}

// UpdateDirect updates a branch whose pull request was based on the merged
// branch. On success the branch tip becomes a synthetic merge commit with
// three parents: the pre-update tip, the merged branch's remote tip, and the
// squash commit. Its tree is the tree of the ordinary merge of the first two
// sources, so the squash commit is recorded as merged without re-applying
// its content.
func (u *Updater) UpdateDirect(ctx context.Context, branch string) (Result, error) {
	logger := u.logger.With(logfields.Branch(branch))

	// Checkout first so the branch exists locally even when the update turns
	// out to be a no-op; skipped branches are still part of the final push.
	if err := u.vcs.CheckoutBranch(ctx, branch); err != nil {
		return Result{}, err
	}

	clean, err := u.skipIfClean(ctx, branch, u.event.TargetBranch)
	if err != nil {
		return Result{}, err
	}
	if clean {
		logger.Info("branch already contains target and squash commit, skipping")
		return Result{Outcome: Skipped}, nil
	}

	before, err := u.vcs.BranchTip(ctx, branch)
	if err != nil {
		return Result{}, err
	}
	if err := u.vcs.UpdateRef(ctx, refBefore, before); err != nil {
		return Result{}, err
	}
	defer u.dropStashRefs(ctx)

	remoteTip, err := u.vcs.RemoteTip(ctx, u.event.MergedBranch)
	if err != nil {
		return Result{}, err
	}

	var sources []string

	// First source: the merged branch's remote tip.
	if err := u.mergeOrAbort(ctx, remoteTip); err != nil {
		if !errors.Is(err, cascadeerrors.ErrMergeConflict) {
			return Result{}, err
		}
		logger.Info("merge of merged branch conflicted",
			logfields.Commit(remoteTip))
		sources = append(sources, u.event.MergedBranch)
	}

	// Second source: the squash commit's first parent, i.e. what the merged
	// branch looked like just before squashing. Merging it instead of the
	// squash commit itself reproduces the branch content without pulling the
	// squashed-away history into the merge.
	squashParent, err := u.vcs.FirstParent(ctx, u.event.SquashCommit)
	if err != nil {
		return Result{}, err
	}

	if len(sources) > 0 {
		// The first merge failed; start the second one from the original tip.
		if err := u.vcs.HardReset(ctx, before); err != nil {
			return Result{}, err
		}
	}

	if err := u.mergeOrAbort(ctx, squashParent); err != nil {
		if !errors.Is(err, cascadeerrors.ErrMergeConflict) {
			return Result{}, err
		}
		logger.Info("merge of squash commit parent conflicted",
			logfields.Commit(squashParent))
		sources = append(sources, squashParent)
	}

	if len(sources) > 0 {
		if err := u.vcs.HardReset(ctx, before); err != nil {
			return Result{}, err
		}
		return Result{
			Outcome:  Conflicted,
			Conflict: &ConflictRecord{Branch: branch, Sources: sources},
		}, nil
	}

	// Both merges succeeded. Stash the merge result, record the squash
	// commit as merged without taking its tree, then rewrite the tip as a
	// single three-parent commit carrying the merge result's tree.
	merged, err := u.vcs.BranchTip(ctx, branch)
	if err != nil {
		return Result{}, err
	}
	if err := u.vcs.UpdateRef(ctx, refMerged, merged); err != nil {
		return Result{}, err
	}

	if err := u.vcs.MergeOurs(ctx, u.event.SquashCommit); err != nil {
		return Result{}, err
	}

	mergedRef, err := u.vcs.GetRef(ctx, refMerged)
	if err != nil {
		return Result{}, err
	}
	tree, err := u.vcs.TreeOf(ctx, mergedRef)
	if err != nil {
		return Result{}, err
	}

	sha, err := u.vcs.CommitTree(ctx, tree,
		[]string{before, remoteTip, u.event.SquashCommit},
		u.syntheticMessage(branch))
	if err != nil {
		return Result{}, err
	}
	if err := u.vcs.HardReset(ctx, sha); err != nil {
		return Result{}, err
	}

	logger.Info("branch updated with synthetic merge commit",
		logfields.Commit(sha))
	return Result{Outcome: Updated}, nil
}

// UpdateIndirect updates a branch whose pull request is based on another
// branch in the stack, after that base was itself processed. This is an
// ordinary two-parent merge of the base into the branch.
func (u *Updater) UpdateIndirect(ctx context.Context, branch, base string) (Result, error) {
	logger := u.logger.With(logfields.Branch(branch), logfields.BaseBranch(base))

	if err := u.vcs.CheckoutBranch(ctx, branch); err != nil {
		return Result{}, err
	}

	clean, err := u.skipIfClean(ctx, branch, base)
	if err != nil {
		return Result{}, err
	}
	if clean {
		logger.Info("branch already contains base and squash commit, skipping")
		return Result{Outcome: Skipped}, nil
	}

	baseTip, err := u.resolveTip(ctx, base)
	if err != nil {
		return Result{}, err
	}

	if err := u.mergeOrAbort(ctx, baseTip); err != nil {
		if !errors.Is(err, cascadeerrors.ErrMergeConflict) {
			return Result{}, err
		}
		logger.Info("merge of base branch conflicted", logfields.Commit(baseTip))
		return Result{
			Outcome:  Conflicted,
			Conflict: &ConflictRecord{Branch: branch, Sources: []string{base}},
		}, nil
	}

	logger.Info("branch updated with merge of base")
	return Result{Outcome: Updated}, nil
}

// skipIfClean reports whether branch already contains both base and the
// squash commit in its history. When it does, re-running the whole
// procedure is a no-op for this branch.
func (u *Updater) skipIfClean(ctx context.Context, branch, base string) (bool, error) {
	branchTip, err := u.resolveTip(ctx, branch)
	if err != nil {
		return false, err
	}
	baseTip, err := u.resolveTip(ctx, base)
	if err != nil {
		return false, err
	}

	baseReached, err := u.vcs.IsAncestor(ctx, baseTip, branchTip)
	if err != nil {
		return false, err
	}
	if !baseReached {
		return false, nil
	}

	squashReached, err := u.vcs.IsAncestor(ctx, u.event.SquashCommit, branchTip)
	if err != nil {
		return false, err
	}
	return squashReached, nil
}

// resolveTip returns the tip of a branch, preferring the local branch (which
// may have been advanced earlier in this run) over the remote-tracking ref.
func (u *Updater) resolveTip(ctx context.Context, branch string) (string, error) {
	if sha, err := u.vcs.BranchTip(ctx, branch); err == nil {
		return sha, nil
	}
	sha, err := u.vcs.RemoteTip(ctx, branch)
	if err != nil {
		return "", fmt.Errorf("branch %s not found locally or on remote: %w", branch, err)
	}
	return sha, nil
}

// mergeOrAbort attempts a merge and aborts the in-progress merge on
// conflict, so the working checkout never stays half-merged. The returned
// error still wraps ErrMergeConflict in that case.
func (u *Updater) mergeOrAbort(ctx context.Context, rev string) error {
	err := u.vcs.Merge(ctx, rev)
	if err == nil {
		return nil
	}
	if errors.Is(err, cascadeerrors.ErrMergeConflict) {
		if aerr := u.vcs.MergeAbort(ctx); aerr != nil {
			return aerr
		}
	}
	return err
}

func (u *Updater) syntheticMessage(branch string) string {
	msg := fmt.Sprintf("Update %s after merge of %s into %s",
		branch, u.event.MergedBranch, u.event.TargetBranch)
	if u.trailer != "" {
		msg += "\n\n" + u.trailer
	}
	return msg
}

func (u *Updater) dropStashRefs(ctx context.Context) {
	_ = u.vcs.DeleteRef(ctx, refBefore)
	_ = u.vcs.DeleteRef(ctx, refMerged)
}
