// Package beeminder is a minimal client for the Beeminder datapoint API.
//
// Only the three endpoints the sync engine needs are implemented:
// listing a goal's datapoints, creating a datapoint, and deleting one.
package beeminder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://www.beeminder.com/api/v1"

// APIError is a non-2xx response from the Beeminder API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("beeminder api error (%d): %s", e.StatusCode, e.Body)
}

// Datapoint is a datapoint as stored by Beeminder.
type Datapoint struct {
	ID        string  `json:"id"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Daystamp  string  `json:"daystamp"`
	Comment   string  `json:"comment"`
	RequestID string  `json:"requestid"`
}

// Time returns the datapoint's timestamp as a UTC instant.
func (d Datapoint) Time() time.Time {
	return time.Unix(d.Timestamp, 0).UTC()
}

// CreateDatapoint is the payload for creating a new datapoint.
// A zero Timestamp means "omit": Beeminder fills in the current time.
type CreateDatapoint struct {
	Value     float64
	Timestamp time.Time
	Daystamp  string
	Comment   string
	RequestID string
}

// Client talks to the Beeminder API for a single user.
type Client struct {
	baseURL    string
	username   string
	token      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL. Used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// New creates a Client for the given user.
func New(token, username string, opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		username:   username,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Datapoints fetches datapoints for a goal. When sort is non-empty the API
// returns datapoints ordered by that field, most recent first. A count of
// zero means no limit.
func (c *Client) Datapoints(ctx context.Context, goal, sort string, count int) ([]Datapoint, error) {
	q := url.Values{}
	q.Set("auth_token", c.token)
	if sort != "" {
		q.Set("sort", sort)
	}
	if count > 0 {
		q.Set("count", strconv.Itoa(count))
	}

	u := fmt.Sprintf("%s/users/%s/goals/%s/datapoints.json?%s", c.baseURL, c.username, goal, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	var dps []Datapoint
	if err := c.do(req, &dps); err != nil {
		return nil, fmt.Errorf("listing datapoints for %s: %w", goal, err)
	}
	return dps, nil
}

// CreateDatapoint creates a datapoint on a goal.
func (c *Client) CreateDatapoint(ctx context.Context, goal string, dp CreateDatapoint) error {
	form := url.Values{}
	form.Set("auth_token", c.token)
	form.Set("value", strconv.FormatFloat(dp.Value, 'f', -1, 64))
	if !dp.Timestamp.IsZero() {
		form.Set("timestamp", strconv.FormatInt(dp.Timestamp.Unix(), 10))
	}
	if dp.Daystamp != "" {
		form.Set("daystamp", dp.Daystamp)
	}
	if dp.Comment != "" {
		form.Set("comment", dp.Comment)
	}
	if dp.RequestID != "" {
		form.Set("requestid", dp.RequestID)
	}

	u := fmt.Sprintf("%s/users/%s/goals/%s/datapoints.json", c.baseURL, c.username, goal)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("creating datapoint on %s: %w", goal, err)
	}
	return nil
}

// DeleteDatapoint deletes a datapoint from a goal by its Beeminder id.
func (c *Client) DeleteDatapoint(ctx context.Context, goal, id string) error {
	q := url.Values{}
	q.Set("auth_token", c.token)

	u := fmt.Sprintf("%s/users/%s/goals/%s/datapoints/%s.json?%s", c.baseURL, c.username, goal, id, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return err
	}

	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("deleting datapoint %s from %s: %w", id, goal, err)
	}
	return nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
