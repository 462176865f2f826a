// Package fatebook fetches forecasting questions from the Fatebook API.
package fatebook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://fatebook.io/api"

// Question is one forecasting question.
type Question struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	CreatedAt  time.Time  `json:"createdAt"`
	ResolveBy  time.Time  `json:"resolveBy"`
	Type       string     `json:"type"`
	Resolved   bool       `json:"resolved"`
	ResolvedAt *time.Time `json:"resolvedAt"`
	UserID     string     `json:"userId"`
}

type questionsResponse struct {
	Items []Question `json:"items"`
}

// Client talks to the Fatebook API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client. An empty baseURL uses the public API.
func New(apiKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Questions fetches the user's questions, newest first, up to limit.
// A limit of zero fetches up to 10000.
func (c *Client) Questions(ctx context.Context, limit int) ([]Question, error) {
	if limit <= 0 {
		limit = 10000
	}
	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	q.Set("limit", fmt.Sprint(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v0/getQuestions?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching questions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching questions: unexpected status %d", resp.StatusCode)
	}

	var out questionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding questions: %w", err)
	}
	return out.Items, nil
}
