// Package github implements the pull-request directory used by cascade: it
// answers "which PRs are based on branch B" and performs retarget, comment
// and label mutations through the GitHub API.
package github

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"cascade.dev/cascade/internal/git"
)

// PullRequestInfo contains information about a pull request.
// This is a simplified struct to avoid coupling to the go-github library.
type PullRequestInfo struct {
	Number  int
	HTMLURL string
	Title   string
	Base    string
	Head    string
}

// Client implements the PR directory against the real GitHub API.
type Client struct {
	client *github.Client
	owner  string
	repo   string
}

// NewClient creates a Client for the repository behind remoteURL.
// The token is taken from GITHUB_TOKEN or, failing that, from `gh auth token`.
func NewClient(ctx context.Context, remoteURL string) (*Client, error) {
	token, err := getGitHubToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GitHub token: %w", err)
	}

	repoInfo, err := ParseGitHubRemoteURL(remoteURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository info: %w", err)
	}

	client, err := createGitHubClient(ctx, repoInfo.Hostname, token)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}

	return &Client{
		client: client,
		owner:  repoInfo.Owner,
		repo:   repoInfo.Repo,
	}, nil
}

// NewClientWithGitHub wraps an already configured go-github client. Used by
// tests to point the directory at a mock server.
func NewClientWithGitHub(client *github.Client, owner, repo string) *Client {
	return &Client{
		client: client,
		owner:  owner,
		repo:   repo,
	}
}

// GetOwnerRepo returns the repository owner and name
func (c *Client) GetOwnerRepo() (string, string) {
	return c.owner, c.repo
}

// ListOpenByBase returns all open pull requests whose base branch is base.
// Read calls are retried with exponential backoff since a transient API
// failure here would otherwise abort the whole run.
func (c *Client) ListOpenByBase(ctx context.Context, base string) ([]PullRequestInfo, error) {
	var result []PullRequestInfo

	op := func() error {
		result = result[:0]
		opts := &github.PullRequestListOptions{
			State: "open",
			Base:  base,
			ListOptions: github.ListOptions{
				PerPage: 100,
			},
		}

		for {
			prs, resp, err := c.client.PullRequests.List(ctx, c.owner, c.repo, opts)
			if err != nil {
				return err
			}
			for _, pr := range prs {
				result = append(result, toPullRequestInfo(pr))
			}
			if resp.NextPage == 0 {
				return nil
			}
			opts.Page = resp.NextPage
		}
	}

	if err := backoff.Retry(op, listBackoff(ctx)); err != nil {
		return nil, fmt.Errorf("failed to list pull requests based on %s: %w", base, err)
	}
	return result, nil
}

// Retarget changes the base branch of a pull request.
func (c *Client) Retarget(ctx context.Context, prNumber int, base string) error {
	update := &github.PullRequest{
		Base: &github.PullRequestBranch{
			Ref: github.String(base),
		},
	}
	if _, _, err := c.client.PullRequests.Edit(ctx, c.owner, c.repo, prNumber, update); err != nil {
		return fmt.Errorf("failed to retarget pull request %d to %s: %w", prNumber, base, err)
	}
	return nil
}

// Comment posts a comment on a pull request.
func (c *Client) Comment(ctx context.Context, prNumber int, body string) error {
	comment := &github.IssueComment{Body: github.String(body)}
	if _, _, err := c.client.Issues.CreateComment(ctx, c.owner, c.repo, prNumber, comment); err != nil {
		return fmt.Errorf("failed to comment on pull request %d: %w", prNumber, err)
	}
	return nil
}

// AddLabel adds a label to a pull request.
func (c *Client) AddLabel(ctx context.Context, prNumber int, label string) error {
	if _, _, err := c.client.Issues.AddLabelsToIssue(ctx, c.owner, c.repo, prNumber, []string{label}); err != nil {
		return fmt.Errorf("failed to add label %s to pull request %d: %w", label, prNumber, err)
	}
	return nil
}

func toPullRequestInfo(pr *github.PullRequest) PullRequestInfo {
	info := PullRequestInfo{}
	if pr.Number != nil {
		info.Number = *pr.Number
	}
	if pr.HTMLURL != nil {
		info.HTMLURL = *pr.HTMLURL
	}
	if pr.Title != nil {
		info.Title = *pr.Title
	}
	if pr.Base != nil && pr.Base.Ref != nil {
		info.Base = *pr.Base.Ref
	}
	if pr.Head != nil && pr.Head.Ref != nil {
		info.Head = *pr.Head.Ref
	}
	return info
}

func listBackoff(ctx context.Context) backoff.BackOffContext {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.MaxElapsedTime = 2 * time.Minute
	return backoff.WithContext(bo, ctx)
}

// createGitHubClient creates a GitHub client configured for the given hostname
// Supports both github.com and GitHub Enterprise instances
func createGitHubClient(ctx context.Context, hostname, token string) (*github.Client, error) {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	client := github.NewClient(tc)

	// Configure for GitHub Enterprise if not github.com
	if hostname != "github.com" {
		baseURL, err := url.Parse(fmt.Sprintf("https://%s/api/v3/", hostname))
		if err != nil {
			return nil, fmt.Errorf("failed to parse base URL for hostname %s: %w", hostname, err)
		}
		uploadURL, err := url.Parse(fmt.Sprintf("https://%s/api/uploads/", hostname))
		if err != nil {
			return nil, fmt.Errorf("failed to parse upload URL for hostname %s: %w", hostname, err)
		}

		client.BaseURL = baseURL
		client.UploadURL = uploadURL
	}

	return client, nil
}

// getGitHubToken gets GitHub token from environment or gh CLI
func getGitHubToken(ctx context.Context) (string, error) {
	// Try environment variable first
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return token, nil
	}

	// Try gh CLI
	output, err := git.RunGHCommandWithContext(ctx, "auth", "token")
	if err != nil {
		return "", fmt.Errorf("failed to get GitHub token: %w", err)
	}

	token := strings.TrimSpace(output)
	if token == "" {
		return "", fmt.Errorf("empty GitHub token")
	}

	return token, nil
}
