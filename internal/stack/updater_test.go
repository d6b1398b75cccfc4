package stack

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cascade.dev/cascade/internal/git"
	"cascade.dev/cascade/testhelpers"
)

// fixture is a working checkout with a bare origin, holding a small stack:
// main <- feature <- x <- y, where feature gained one more commit after x
// branched, and feature was squash-merged into main.
type fixture struct {
	repo    *testhelpers.GitRepo
	vcs     *git.Repo
	event   MergeEvent
	updater *Updater
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo, _, err := testhelpers.NewGitRepoWithOrigin(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, repo.CreateChangeAndCommit("base.txt", "base", "initial"))

	require.NoError(t, repo.CreateAndCheckoutBranch("feature"))
	require.NoError(t, repo.CreateChangeAndCommit("feature.txt", "feature", "feature change"))

	require.NoError(t, repo.CreateAndCheckoutBranch("x"))
	require.NoError(t, repo.CreateChangeAndCommit("x.txt", "x", "x change"))

	require.NoError(t, repo.CreateAndCheckoutBranch("y"))
	require.NoError(t, repo.CreateChangeAndCommit("y.txt", "y", "y change"))

	// feature moves on after x branched, so updating x pulls real content.
	require.NoError(t, repo.CheckoutBranch("feature"))
	require.NoError(t, repo.CreateChangeAndCommit("feature2.txt", "more feature", "second feature change"))

	require.NoError(t, repo.PushAll("main", "feature", "x", "y"))

	squash, err := repo.SquashMerge("main", "feature", "feature (#1)")
	require.NoError(t, err)
	require.NoError(t, repo.PushAll("main"))

	vcs := git.NewRepo(repo.Dir, "origin")
	require.NoError(t, vcs.Fetch(context.Background()))

	event := MergeEvent{
		SquashCommit: squash,
		MergedBranch: "feature",
		TargetBranch: "main",
	}

	return &fixture{
		repo:    repo,
		vcs:     vcs,
		event:   event,
		updater: NewUpdater(vcs, event, "", zap.NewNop()),
	}
}

func (f *fixture) rev(t *testing.T, rev string) string {
	t.Helper()
	sha, err := f.repo.Rev(rev)
	require.NoError(t, err)
	return sha
}

func (f *fixture) parents(t *testing.T, rev string) []string {
	t.Helper()
	out, err := f.repo.RunGitCommandOutput("rev-parse", rev+"^@")
	require.NoError(t, err)
	return strings.Split(out, "\n")
}

func TestUpdateDirect(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a synthetic three parent commit", func(t *testing.T) {
		f := newFixture(t)
		before := f.rev(t, "x")
		remoteTip := f.rev(t, "origin/feature")

		result, err := f.updater.UpdateDirect(ctx, "x")
		require.NoError(t, err)
		require.Equal(t, Updated, result.Outcome)
		require.Nil(t, result.Conflict)

		// Exactly three parents, in the documented order.
		require.Equal(t, []string{before, remoteTip, f.event.SquashCommit}, f.parents(t, "x"))

		// The tree equals the tree of independently merging parent 1 and
		// parent 2 alone; the squash commit contributed nothing.
		require.NoError(t, f.repo.RunGitCommand("checkout", "-b", "scratch", before))
		require.NoError(t, f.repo.RunGitCommand("merge", "--no-edit", remoteTip))
		assert.Equal(t, f.rev(t, "scratch^{tree}"), f.rev(t, "x^{tree}"))

		// The update is recorded as containing the squash commit.
		require.NoError(t, f.repo.RunGitCommand("merge-base", "--is-ancestor", f.event.SquashCommit, "x"))
	})

	t.Run("running twice skips the second time", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.updater.UpdateDirect(ctx, "x")
		require.NoError(t, err)
		require.Equal(t, Updated, result.Outcome)
		updatedTip := f.rev(t, "x")

		result, err = f.updater.UpdateDirect(ctx, "x")
		require.NoError(t, err)
		require.Equal(t, Skipped, result.Outcome)
		assert.Equal(t, updatedTip, f.rev(t, "x"))
	})

	t.Run("skips a branch that already contains target and squash", func(t *testing.T) {
		f := newFixture(t)

		// A branch cut from main after the squash merge is clean by
		// definition.
		require.NoError(t, f.repo.CheckoutBranch("main"))
		require.NoError(t, f.repo.CreateAndCheckoutBranch("clean"))
		require.NoError(t, f.repo.CreateChangeAndCommit("clean.txt", "clean", "clean change"))
		require.NoError(t, f.repo.PushAll("clean"))
		tip := f.rev(t, "clean")

		result, err := f.updater.UpdateDirect(ctx, "clean")
		require.NoError(t, err)
		require.Equal(t, Skipped, result.Outcome)
		assert.Equal(t, tip, f.rev(t, "clean"))
	})

	t.Run("leaves the internal stash refs deleted", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.updater.UpdateDirect(ctx, "x")
		require.NoError(t, err)

		_, err = f.repo.Rev(refBefore)
		require.Error(t, err)
		_, err = f.repo.Rev(refMerged)
		require.Error(t, err)
	})

	t.Run("appends the configured trailer to the commit message", func(t *testing.T) {
		f := newFixture(t)
		updater := NewUpdater(f.vcs, f.event, "Cascade: automated", zap.NewNop())

		result, err := updater.UpdateDirect(ctx, "x")
		require.NoError(t, err)
		require.Equal(t, Updated, result.Outcome)

		message, err := f.repo.RunGitCommandOutput("log", "-1", "--format=%B", "x")
		require.NoError(t, err)
		assert.Equal(t, "Update x after merge of feature into main", strings.Split(message, "\n")[0])
		assert.Contains(t, message, "Cascade: automated")
	})
}

// conflictFixture builds a stack where x edited the same line as feature's
// later commit, so merging origin/feature into x conflicts.
func newConflictFixture(t *testing.T) *fixture {
	t.Helper()

	repo, _, err := testhelpers.NewGitRepoWithOrigin(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, repo.CreateChangeAndCommit("shared.txt", "base", "initial"))

	require.NoError(t, repo.CreateAndCheckoutBranch("feature"))
	require.NoError(t, repo.CreateChangeAndCommit("feature.txt", "feature", "feature change"))

	require.NoError(t, repo.CreateAndCheckoutBranch("x"))
	require.NoError(t, repo.CreateChangeAndCommit("shared.txt", "x version", "x edits shared"))

	require.NoError(t, repo.CreateAndCheckoutBranch("y"))
	require.NoError(t, repo.CreateChangeAndCommit("y.txt", "y", "y change"))

	require.NoError(t, repo.CheckoutBranch("feature"))
	require.NoError(t, repo.CreateChangeAndCommit("shared.txt", "feature version", "feature edits shared"))

	require.NoError(t, repo.PushAll("main", "feature", "x", "y"))

	squash, err := repo.SquashMerge("main", "feature", "feature (#1)")
	require.NoError(t, err)
	require.NoError(t, repo.PushAll("main"))

	vcs := git.NewRepo(repo.Dir, "origin")
	require.NoError(t, vcs.Fetch(context.Background()))

	event := MergeEvent{
		SquashCommit: squash,
		MergedBranch: "feature",
		TargetBranch: "main",
	}

	return &fixture{
		repo:    repo,
		vcs:     vcs,
		event:   event,
		updater: NewUpdater(vcs, event, "", zap.NewNop()),
	}
}

func TestUpdateDirectConflict(t *testing.T) {
	ctx := context.Background()

	t.Run("conflicting merged branch leaves the tip untouched", func(t *testing.T) {
		f := newConflictFixture(t)
		before := f.rev(t, "x")

		result, err := f.updater.UpdateDirect(ctx, "x")
		require.NoError(t, err)
		require.Equal(t, Conflicted, result.Outcome)
		require.NotNil(t, result.Conflict)
		assert.Equal(t, "x", result.Conflict.Branch)
		assert.Equal(t, []string{"feature"}, result.Conflict.Sources)

		// Byte-identical tip, no merge left in progress.
		assert.Equal(t, before, f.rev(t, "x"))
		_, err = f.repo.Rev("MERGE_HEAD")
		require.Error(t, err)
	})

	t.Run("both merges conflicting records both sources in order", func(t *testing.T) {
		f := newConflictFixture(t)
		before := f.rev(t, "x")

		// A hand-built squash commit whose first parent also collides with
		// x's edit of shared.txt.
		require.NoError(t, f.repo.CheckoutBranch("main"))
		require.NoError(t, f.repo.RunGitCommand("checkout", "-b", "tmp", "main~1"))
		require.NoError(t, f.repo.CreateChangeAndCommit("shared.txt", "tmp version", "tmp edits shared"))
		squashParent := f.rev(t, "tmp")
		require.NoError(t, f.repo.CreateChangeAndCommit("shared.txt", "final version", "hand-built squash"))
		f.event.SquashCommit = f.rev(t, "tmp")
		f.updater = NewUpdater(f.vcs, f.event, "", zap.NewNop())

		result, err := f.updater.UpdateDirect(ctx, "x")
		require.NoError(t, err)
		require.Equal(t, Conflicted, result.Outcome)
		assert.Equal(t, []string{"feature", squashParent}, result.Conflict.Sources)
		assert.Equal(t, before, f.rev(t, "x"))
	})

	t.Run("descendants merge against the unchanged tip", func(t *testing.T) {
		f := newConflictFixture(t)

		result, err := f.updater.UpdateDirect(ctx, "x")
		require.NoError(t, err)
		require.Equal(t, Conflicted, result.Outcome)

		// y does not inherit the conflict; merging x's unchanged tip is a
		// no-op since y already contains it.
		yBefore := f.rev(t, "y")
		result, err = f.updater.UpdateIndirect(ctx, "y", "x")
		require.NoError(t, err)
		require.Equal(t, Updated, result.Outcome)
		assert.Equal(t, yBefore, f.rev(t, "y"))
	})
}

func TestUpdateIndirect(t *testing.T) {
	ctx := context.Background()

	t.Run("merges the updated base with a plain two parent commit", func(t *testing.T) {
		f := newFixture(t)

		result, err := f.updater.UpdateDirect(ctx, "x")
		require.NoError(t, err)
		require.Equal(t, Updated, result.Outcome)
		xTip := f.rev(t, "x")
		yBefore := f.rev(t, "y")

		result, err = f.updater.UpdateIndirect(ctx, "y", "x")
		require.NoError(t, err)
		require.Equal(t, Updated, result.Outcome)

		require.Equal(t, []string{yBefore, xTip}, f.parents(t, "y"))

		// y picked up feature's later commit through x.
		_, err = f.repo.RunGitCommandOutput("cat-file", "-e", "y:feature2.txt")
		require.NoError(t, err)
	})

	t.Run("running twice skips the second time", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.updater.UpdateDirect(ctx, "x")
		require.NoError(t, err)
		result, err := f.updater.UpdateIndirect(ctx, "y", "x")
		require.NoError(t, err)
		require.Equal(t, Updated, result.Outcome)
		tip := f.rev(t, "y")

		result, err = f.updater.UpdateIndirect(ctx, "y", "x")
		require.NoError(t, err)
		require.Equal(t, Skipped, result.Outcome)
		assert.Equal(t, tip, f.rev(t, "y"))
	})

	t.Run("conflicting base leaves the tip untouched", func(t *testing.T) {
		f := newConflictFixture(t)

		// Give y an edit that collides with x's shared.txt change after x
		// merges feature's version... x conflicted, so instead let y collide
		// with x directly: y edits shared.txt differently on top of x's
		// version, then x gains another edit.
		require.NoError(t, f.repo.CheckoutBranch("y"))
		require.NoError(t, f.repo.CreateChangeAndCommit("shared.txt", "y version", "y edits shared"))
		require.NoError(t, f.repo.CheckoutBranch("x"))
		require.NoError(t, f.repo.CreateChangeAndCommit("shared.txt", "x second version", "x edits shared again"))

		yBefore := f.rev(t, "y")

		result, err := f.updater.UpdateIndirect(ctx, "y", "x")
		require.NoError(t, err)
		require.Equal(t, Conflicted, result.Outcome)
		require.NotNil(t, result.Conflict)
		assert.Equal(t, []string{"x"}, result.Conflict.Sources)
		assert.Equal(t, yBefore, f.rev(t, "y"))
	})
}
