package github_test

import (
	"context"
	"fmt"
	"testing"

	gogithub "github.com/google/go-github/v62/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	githubpkg "cascade.dev/cascade/internal/github"
	"cascade.dev/cascade/testhelpers"
)

func mockPR(number int, head, base string) *gogithub.PullRequest {
	return &gogithub.PullRequest{
		Number:  gogithub.Int(number),
		Title:   gogithub.String(fmt.Sprintf("PR %d", number)),
		HTMLURL: gogithub.String(fmt.Sprintf("https://github.com/owner/repo/pull/%d", number)),
		Head:    &gogithub.PullRequestBranch{Ref: gogithub.String(head)},
		Base:    &gogithub.PullRequestBranch{Ref: gogithub.String(base)},
	}
}

func newMockDirectory(t *testing.T, config *testhelpers.MockGitHubServerConfig) *githubpkg.Client {
	t.Helper()
	ghClient, owner, repo := testhelpers.NewMockGitHubClient(t, config)
	return githubpkg.NewClientWithGitHub(ghClient, owner, repo)
}

func TestListOpenByBase(t *testing.T) {
	ctx := context.Background()

	t.Run("returns only PRs based on the given branch", func(t *testing.T) {
		config := testhelpers.NewMockGitHubServerConfig()
		config.PRsByBase["feature"] = []*gogithub.PullRequest{
			mockPR(1, "x", "feature"),
			mockPR(2, "z", "feature"),
		}
		config.PRsByBase["main"] = []*gogithub.PullRequest{
			mockPR(3, "other", "main"),
		}
		client := newMockDirectory(t, config)

		prs, err := client.ListOpenByBase(ctx, "feature")
		require.NoError(t, err)
		require.Len(t, prs, 2)
		assert.Equal(t, 1, prs[0].Number)
		assert.Equal(t, "x", prs[0].Head)
		assert.Equal(t, "feature", prs[0].Base)
		assert.Equal(t, "PR 1", prs[0].Title)
		assert.Equal(t, 2, prs[1].Number)
	})

	t.Run("returns an empty list for a branch without PRs", func(t *testing.T) {
		client := newMockDirectory(t, testhelpers.NewMockGitHubServerConfig())

		prs, err := client.ListOpenByBase(ctx, "feature")
		require.NoError(t, err)
		assert.Empty(t, prs)
	})

	t.Run("follows pagination", func(t *testing.T) {
		config := testhelpers.NewMockGitHubServerConfig()
		config.PageSize = 2
		config.PRsByBase["feature"] = []*gogithub.PullRequest{
			mockPR(1, "a", "feature"),
			mockPR(2, "b", "feature"),
			mockPR(3, "c", "feature"),
			mockPR(4, "d", "feature"),
			mockPR(5, "e", "feature"),
		}
		client := newMockDirectory(t, config)

		prs, err := client.ListOpenByBase(ctx, "feature")
		require.NoError(t, err)
		require.Len(t, prs, 5)
		for i, pr := range prs {
			assert.Equal(t, i+1, pr.Number)
		}
	})

	t.Run("retries a transient API failure", func(t *testing.T) {
		if testing.Short() {
			t.Skip("retry backoff waits between attempts")
		}

		config := testhelpers.NewMockGitHubServerConfig()
		config.FailListsBefore = 1
		config.PRsByBase["feature"] = []*gogithub.PullRequest{
			mockPR(1, "x", "feature"),
		}
		client := newMockDirectory(t, config)

		prs, err := client.ListOpenByBase(ctx, "feature")
		require.NoError(t, err)
		require.Len(t, prs, 1)
		assert.Equal(t, 1, prs[0].Number)
	})

	t.Run("fails when the context is cancelled", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		config := testhelpers.NewMockGitHubServerConfig()
		config.FailListsBefore = 100
		client := newMockDirectory(t, config)

		_, err := client.ListOpenByBase(cancelled, "feature")
		require.Error(t, err)
	})
}

func TestRetarget(t *testing.T) {
	config := testhelpers.NewMockGitHubServerConfig()
	client := newMockDirectory(t, config)

	require.NoError(t, client.Retarget(context.Background(), 7, "main"))
	assert.Equal(t, map[int]string{7: "main"}, config.RetargetedPRs)
}

func TestComment(t *testing.T) {
	config := testhelpers.NewMockGitHubServerConfig()
	client := newMockDirectory(t, config)

	require.NoError(t, client.Comment(context.Background(), 7, "conflicts ahead"))
	assert.Equal(t, []string{"conflicts ahead"}, config.Comments[7])
}

func TestAddLabel(t *testing.T) {
	config := testhelpers.NewMockGitHubServerConfig()
	client := newMockDirectory(t, config)

	require.NoError(t, client.AddLabel(context.Background(), 7, "needs-manual-merge"))
	assert.Equal(t, []string{"needs-manual-merge"}, config.Labels[7])
}

func TestGetOwnerRepo(t *testing.T) {
	client := newMockDirectory(t, testhelpers.NewMockGitHubServerConfig())
	owner, repo := client.GetOwnerRepo()
	assert.Equal(t, "owner", owner)
	assert.Equal(t, "repo", repo)
}
