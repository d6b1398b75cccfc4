package git

import (
	"fmt"
	"os"

	gogit "github.com/go-git/go-git/v5"
)

// Repo performs git operations inside one working checkout.
// All merge work for a run happens sequentially in this single checkout.
type Repo struct {
	runner *CommandRunner
	remote string
}

// NewRepo creates a Repo rooted at dir that talks to the given remote.
func NewRepo(dir, remote string) *Repo {
	return &Repo{
		runner: NewCommandRunner(dir),
		remote: remote,
	}
}

// GetRepoRoot returns the root directory of the Git repository
func GetRepoRoot() (string, error) {
	// Try to open repository from current directory
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	// Use go-git to find the repository
	repo, err := gogit.PlainOpenWithOptions(wd, &gogit.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return "", fmt.Errorf("not a git repository: %w", err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return "", fmt.Errorf("failed to get worktree: %w", err)
	}

	return worktree.Filesystem.Root(), nil
}

// RemoteURL returns the fetch URL configured for the Repo's remote.
func (r *Repo) RemoteURL() (string, error) {
	dir := r.runner.workingDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("failed to get working directory: %w", err)
		}
		dir = wd
	}

	repo, err := gogit.PlainOpenWithOptions(dir, &gogit.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return "", fmt.Errorf("not a git repository: %w", err)
	}

	remote, err := repo.Remote(r.remote)
	if err != nil {
		return "", fmt.Errorf("failed to get remote %s: %w", r.remote, err)
	}

	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", fmt.Errorf("remote %s has no URL", r.remote)
	}
	return urls[0], nil
}
