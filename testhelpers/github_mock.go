package testhelpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-github/v62/github"
)

// MockGitHubServerConfig configures the behavior of a mock GitHub server
// and records every mutation a test performs against it.
type MockGitHubServerConfig struct {
	// Owner and Repo for the mock server
	Owner string
	Repo  string

	// PRsByBase maps a base branch name to the open PRs based on it.
	PRsByBase map[string][]*github.PullRequest
	// PageSize splits list responses into pages of this size. Zero means
	// everything on one page.
	PageSize int
	// FailListsBefore makes the first N list requests fail with a 500.
	FailListsBefore int

	// RetargetedPRs records PATCHed base branches by PR number.
	RetargetedPRs map[int]string
	// Comments records posted comment bodies by PR number.
	Comments map[int][]string
	// Labels records added labels by PR number.
	Labels map[int][]string

	listCalls int
}

// NewMockGitHubServerConfig creates a new mock server config with defaults
func NewMockGitHubServerConfig() *MockGitHubServerConfig {
	return &MockGitHubServerConfig{
		Owner:         "owner",
		Repo:          "repo",
		PRsByBase:     make(map[string][]*github.PullRequest),
		RetargetedPRs: make(map[int]string),
		Comments:      make(map[int][]string),
		Labels:        make(map[int][]string),
	}
}

// NewMockGitHubServer creates an httptest server that mocks the GitHub API
// endpoints cascade uses: listing PRs by base branch, retargeting a PR, and
// commenting on or labeling an issue.
func NewMockGitHubServer(t *testing.T, config *MockGitHubServerConfig) *httptest.Server {
	if config == nil {
		config = NewMockGitHubServerConfig()
	}

	mux := http.NewServeMux()
	pullsPath := "/repos/" + config.Owner + "/" + config.Repo + "/pulls"
	issuesPath := "/repos/" + config.Owner + "/" + config.Repo + "/issues/"

	mux.HandleFunc(pullsPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "GET" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		config.listCalls++
		if config.listCalls <= config.FailListsBefore {
			http.Error(w, "temporarily unavailable", http.StatusInternalServerError)
			return
		}

		prs := config.PRsByBase[r.URL.Query().Get("base")]

		page := 1
		if p := r.URL.Query().Get("page"); p != "" {
			page, _ = strconv.Atoi(p)
		}
		if config.PageSize > 0 {
			start := (page - 1) * config.PageSize
			end := start + config.PageSize
			if start > len(prs) {
				start = len(prs)
			}
			if end > len(prs) {
				end = len(prs)
			}
			if end < len(prs) {
				next := r.URL.Query()
				next.Set("page", strconv.Itoa(page+1))
				w.Header().Set("Link", fmt.Sprintf(`<http://%s%s?%s>; rel="next"`, r.Host, r.URL.Path, next.Encode()))
			}
			prs = prs[start:end]
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(prs)
	})

	mux.HandleFunc(pullsPath+"/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PATCH" {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		number := trailingNumber(strings.TrimPrefix(r.URL.Path, pullsPath+"/"))
		if number == 0 {
			http.Error(w, "Invalid PR number", http.StatusBadRequest)
			return
		}

		// The API sends base as a plain string, not an object.
		var update struct {
			Base *string `json:"base,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if update.Base != nil {
			config.RetargetedPRs[number] = *update.Base
		}

		pr := &github.PullRequest{Number: github.Int(number)}
		if update.Base != nil {
			pr.Base = &github.PullRequestBranch{Ref: update.Base}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(pr)
	})

	mux.HandleFunc(issuesPath, func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, issuesPath)
		number := trailingNumber(rest)
		if number == 0 {
			http.Error(w, "Invalid issue number", http.StatusBadRequest)
			return
		}

		switch {
		case r.Method == "POST" && strings.HasSuffix(rest, "/comments"):
			var comment github.IssueComment
			if err := json.NewDecoder(r.Body).Decode(&comment); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			config.Comments[number] = append(config.Comments[number], comment.GetBody())
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(&comment)
		case r.Method == "POST" && strings.HasSuffix(rest, "/labels"):
			var labels []string
			if err := json.NewDecoder(r.Body).Decode(&labels); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			config.Labels[number] = append(config.Labels[number], labels...)
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode([]*github.Label{})
		default:
			http.Error(w, fmt.Sprintf("Unhandled issue path: %s (method: %s)", r.URL.Path, r.Method), http.StatusNotFound)
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(func() { server.Close() })
	return server
}

// NewMockGitHubClient creates a GitHub client configured to use a mock server
func NewMockGitHubClient(t *testing.T, config *MockGitHubServerConfig) (*github.Client, string, string) {
	server := NewMockGitHubServer(t, config)
	client := github.NewClient(nil)
	baseURL, _ := url.Parse(server.URL + "/")
	client.BaseURL = baseURL
	client.UploadURL = baseURL
	return client, config.Owner, config.Repo
}

// trailingNumber extracts the leading number from a path segment like
// "123/comments" or "123".
func trailingNumber(segment string) int {
	number := 0
	for i := 0; i < len(segment); i++ {
		char := segment[i]
		if char < '0' || char > '9' {
			break
		}
		number = number*10 + int(char-'0')
	}
	return number
}
