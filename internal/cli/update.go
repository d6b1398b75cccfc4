package cli

import (
	"fmt"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"cascade.dev/cascade/internal/config"
	"cascade.dev/cascade/internal/git"
	"cascade.dev/cascade/internal/github"
	"cascade.dev/cascade/internal/logfields"
	"cascade.dev/cascade/internal/output"
	"cascade.dev/cascade/internal/stack"
)

// newUpdateCmd creates the update command, the whole point of the tool.
func newUpdateCmd() *cobra.Command {
	cfg := config.New()

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update every branch stacked on a just-merged branch",
		Long: `Update walks all pull requests whose base (transitively) was the merged
branch, merges the new state into each of them depth-first, retargets the
direct dependents to the merge target, and force-pushes the whole batch
while deleting the merged branch.

The three required inputs identify the merge event and are normally provided
by CI through the environment.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpdate(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.SquashCommit, "squash-commit", "", "squash commit that landed on the target branch (env "+config.EnvSquashCommit+")")
	cmd.Flags().StringVar(&cfg.MergedBranch, "merged-branch", "", "branch that was squash-merged (env "+config.EnvMergedBranch+")")
	cmd.Flags().StringVar(&cfg.TargetBranch, "target-branch", "", "branch the squash commit landed on (env "+config.EnvTargetBranch+")")
	cmd.Flags().StringVar(&cfg.Remote, "remote", config.DefaultRemote, "git remote to fetch from and push to")
	cmd.Flags().StringVar(&cfg.ConflictLabel, "label", config.DefaultConflictLabel, "label applied to pull requests with merge conflicts")
	cmd.Flags().BoolVar(&cfg.DryRun, "dry-run", false, "merge locally but do not push, retarget, comment or label")
	cmd.Flags().BoolVarP(&cfg.AssumeYes, "yes", "y", false, "do not ask for confirmation before rewriting branches")

	return cmd
}

func runUpdate(cmd *cobra.Command, cfg *config.Config) error {
	cfg.ApplyEnv()

	repoRoot, err := git.GetRepoRoot()
	if err != nil {
		return err
	}
	if err := cfg.ApplyFile(repoRoot); err != nil {
		return err
	}

	// Inputs are validated before anything is mutated.
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if !cfg.AssumeYes && !cfg.DryRun && isatty.IsTerminal(os.Stdin.Fd()) {
		confirmed := false
		prompt := &survey.Confirm{
			Message: fmt.Sprintf("Rewrite and force-push all branches stacked on %s?", cfg.MergedBranch),
		}
		if err := survey.AskOne(prompt, &confirmed); err != nil {
			return err
		}
		if !confirmed {
			return nil
		}
	}

	ctx := cmd.Context()

	repo := git.NewRepo(repoRoot, cfg.Remote)
	remoteURL, err := repo.RemoteURL()
	if err != nil {
		return err
	}

	client, err := github.NewClient(ctx, remoteURL)
	if err != nil {
		return err
	}

	owner, repoName := client.GetOwnerRepo()
	logger.Info("starting update",
		logfields.RepositoryOwner(owner),
		logfields.Repository(repoName),
		logfields.Remote(cfg.Remote),
		logfields.Branch(cfg.MergedBranch),
		logfields.Commit(cfg.SquashCommit))

	var dir stack.Directory = client
	if cfg.DryRun {
		dir = stack.NewDryRunDirectory(client, logger)
	}

	event := stack.MergeEvent{
		SquashCommit: cfg.SquashCommit,
		MergedBranch: cfg.MergedBranch,
		TargetBranch: cfg.TargetBranch,
	}

	updater := stack.NewUpdater(repo, event, cfg.CommitTrailer, logger)
	reporter := stack.NewReporter(dir, cfg.Remote, cfg.ConflictLabel, logger)
	walker := stack.NewWalker(repo, dir, updater, reporter, logger, cfg.DryRun)

	report, err := walker.Run(ctx, event)
	if err != nil {
		return err
	}

	output.NewSummary().Print(report, cfg.MergedBranch, cfg.DryRun)
	return nil
}
