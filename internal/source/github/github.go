// Package github fetches a user's commit history from the GitHub API.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.github.com"

// APIError is a non-2xx response from the GitHub API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github api error (%d): %s", e.StatusCode, e.Message)
}

// Commit is one commit authored by the queried user.
type Commit struct {
	SHA           string
	Message       string
	Repository    string
	CommitterDate time.Time
}

type userRepository struct {
	FullName string `json:"full_name"`
}

type repoCommit struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message   string `json:"message"`
		Committer struct {
			Date time.Time `json:"date"`
		} `json:"committer"`
	} `json:"commit"`
}

// Client talks to the GitHub API, optionally authenticated with a
// personal access token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a Client. An empty token queries anonymously; an empty
// baseURL uses the public API.
func New(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Repositories fetches the full names of the user's repositories.
func (c *Client) Repositories(ctx context.Context, username string) ([]string, error) {
	u := fmt.Sprintf("%s/users/%s/repos?per_page=100", c.baseURL, username)

	var repos []userRepository
	if err := c.get(ctx, u, &repos); err != nil {
		return nil, fmt.Errorf("fetching repositories for %s: %w", username, err)
	}
	names := make([]string, 0, len(repos))
	for _, r := range repos {
		names = append(names, r.FullName)
	}
	return names, nil
}

// Commits fetches all commits authored by username since the given
// instant, across every repository the user owns.
func (c *Client) Commits(ctx context.Context, username string, since time.Time) ([]Commit, error) {
	repos, err := c.Repositories(ctx, username)
	if err != nil {
		return nil, err
	}

	var all []Commit
	for _, repo := range repos {
		commits, err := c.repositoryCommits(ctx, repo, username, since)
		if err != nil {
			return nil, err
		}
		all = append(all, commits...)
	}
	return all, nil
}

func (c *Client) repositoryCommits(ctx context.Context, repo, username string, since time.Time) ([]Commit, error) {
	q := url.Values{}
	q.Set("since", since.Format(time.RFC3339))
	q.Set("author", username)
	q.Set("per_page", "100")
	u := fmt.Sprintf("%s/repos/%s/commits?%s", c.baseURL, repo, q.Encode())

	var raw []repoCommit
	if err := c.get(ctx, u, &raw); err != nil {
		return nil, fmt.Errorf("fetching commits for %s: %w", repo, err)
	}

	commits := make([]Commit, 0, len(raw))
	for _, rc := range raw {
		commits = append(commits, Commit{
			SHA:           rc.SHA,
			Message:       rc.Commit.Message,
			Repository:    repo,
			CommitterDate: rc.Commit.Committer.Date,
		})
	}
	return commits, nil
}

func (c *Client) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "tally")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
