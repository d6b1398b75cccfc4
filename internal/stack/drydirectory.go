package stack

import (
	"context"

	"go.uber.org/zap"

	"cascade.dev/cascade/internal/github"
	"cascade.dev/cascade/internal/logfields"
)

// DryRunDirectory is a Directory that does not change anything on the
// hosting service. Mutations are logged and always succeed; reads are
// forwarded to the wrapped Directory.
type DryRunDirectory struct {
	dir    Directory
	logger *zap.Logger
}

// NewDryRunDirectory wraps dir so that all mutations become log lines.
func NewDryRunDirectory(dir Directory, logger *zap.Logger) *DryRunDirectory {
	return &DryRunDirectory{
		dir:    dir,
		logger: logger.Named("dry_run_directory"),
	}
}

func (d *DryRunDirectory) ListOpenByBase(ctx context.Context, base string) ([]github.PullRequestInfo, error) {
	return d.dir.ListOpenByBase(ctx, base)
}

func (d *DryRunDirectory) Retarget(_ context.Context, prNumber int, base string) error {
	d.logger.Info("simulated retargeting of pull request",
		logfields.PullRequest(prNumber), logfields.BaseBranch(base))
	return nil
}

func (d *DryRunDirectory) Comment(_ context.Context, prNumber int, body string) error {
	d.logger.Info("simulated commenting on pull request",
		logfields.PullRequest(prNumber), zap.Int("body_bytes", len(body)))
	return nil
}

func (d *DryRunDirectory) AddLabel(_ context.Context, prNumber int, label string) error {
	d.logger.Info("simulated labeling of pull request",
		logfields.PullRequest(prNumber), zap.String("github.label", label))
	return nil
}
