package stack

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"cascade.dev/cascade/internal/logfields"
)

// RunReport summarizes one run: which branches were updated, skipped or
// conflicted, and which were included in the final push batch.
type RunReport struct {
	Updated    []string
	Skipped    []string
	Conflicted []string
	Pushed     []string
}

// BranchUpdater performs the per-branch decision and merge logic. It is
// implemented by Updater; tests substitute a fake.
type BranchUpdater interface {
	UpdateDirect(ctx context.Context, branch string) (Result, error)
	UpdateIndirect(ctx context.Context, branch, base string) (Result, error)
}

// Walker drives a whole run: discovery, per-branch updates in pre-order,
// conflict reporting, retargeting and the final batched push.
type Walker struct {
	vcs      VCS
	dir      Directory
	updater  BranchUpdater
	reporter *Reporter
	logger   *zap.Logger
	dryRun   bool
}

// NewWalker creates a Walker. With dryRun set, merges still happen in the
// local checkout but nothing is pushed and no PR is retargeted.
func NewWalker(vcs VCS, dir Directory, updater BranchUpdater, reporter *Reporter, logger *zap.Logger, dryRun bool) *Walker {
	return &Walker{
		vcs:      vcs,
		dir:      dir,
		updater:  updater,
		reporter: reporter,
		logger:   logger.Named("walker"),
		dryRun:   dryRun,
	}
}

// Run processes the whole dependency tree rooted at the merged branch.
// Merge conflicts are reported and recorded but never stop the run; any
// other failure aborts it immediately.
func (w *Walker) Run(ctx context.Context, event MergeEvent) (*RunReport, error) {
	if err := w.vcs.Fetch(ctx); err != nil {
		return nil, fmt.Errorf("failed to update remote refs: %w", err)
	}

	forest, err := Discover(ctx, w.dir, event.MergedBranch)
	if err != nil {
		return nil, fmt.Errorf("failed to discover branches based on %s: %w", event.MergedBranch, err)
	}
	w.logger.Info("discovered dependent branches",
		logfields.Branch(event.MergedBranch),
		zap.Int("direct_targets", len(forest)),
		zap.Strings("branches", Branches(forest)))

	report := &RunReport{}

	for _, node := range forest {
		result, err := w.updater.UpdateDirect(ctx, node.Branch)
		if err != nil {
			return nil, err
		}
		if err := w.record(ctx, report, node, result); err != nil {
			return nil, err
		}

		// A conflicted direct target keeps its original tip, so descendants
		// are still updated against that unchanged tip.
		if err := w.walkChildren(ctx, node, report); err != nil {
			return nil, err
		}
	}

	// Retargeting happens only after all merging, so that every update in
	// the loop above still saw the original base relationships.
	for _, node := range forest {
		if err := w.dir.Retarget(ctx, node.PR.Number, event.TargetBranch); err != nil {
			return nil, err
		}
		w.logger.Info("retargeted pull request",
			logfields.PullRequest(node.PR.Number),
			logfields.BaseBranch(event.TargetBranch))
	}

	// Every touched branch is pushed, whether its update was skipped,
	// conflicted or successful, and the merged branch is deleted in the
	// same round-trip.
	report.Pushed = Branches(forest)
	if w.dryRun {
		w.logger.Info("dry run, skipping push",
			zap.Strings("branches", report.Pushed),
			logfields.Branch(event.MergedBranch))
		return report, nil
	}
	if err := w.vcs.PushBatch(ctx, report.Pushed, event.MergedBranch); err != nil {
		return nil, err
	}

	return report, nil
}

func (w *Walker) walkChildren(ctx context.Context, parent *Node, report *RunReport) error {
	for _, child := range parent.Children {
		result, err := w.updater.UpdateIndirect(ctx, child.Branch, parent.Branch)
		if err != nil {
			return err
		}
		if err := w.record(ctx, report, child, result); err != nil {
			return err
		}
		if err := w.walkChildren(ctx, child, report); err != nil {
			return err
		}
	}
	return nil
}

func (w *Walker) record(ctx context.Context, report *RunReport, node *Node, result Result) error {
	w.logger.Info("branch processed",
		logfields.Branch(node.Branch),
		zap.Stringer("outcome", result.Outcome))

	switch result.Outcome {
	case Skipped:
		report.Skipped = append(report.Skipped, node.Branch)
	case Updated:
		report.Updated = append(report.Updated, node.Branch)
	case Conflicted:
		report.Conflicted = append(report.Conflicted, node.Branch)
		if err := w.reporter.Report(ctx, node.PR, *result.Conflict); err != nil {
			return err
		}
	}
	return nil
}
