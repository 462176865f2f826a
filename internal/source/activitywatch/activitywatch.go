// Package activitywatch fetches window-activity events from a local
// ActivityWatch server.
package activitywatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "http://localhost:5600"

// EventData is the window metadata attached to an event.
type EventData struct {
	App   string `json:"app"`
	Title string `json:"title"`
}

// Event is one recorded activity interval.
type Event struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Duration  float64   `json:"duration"` // seconds
	Data      EventData `json:"data"`
}

// Client talks to an ActivityWatch server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a Client. An empty baseURL uses the default local server.
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Events fetches events from a bucket within a time range.
func (c *Client) Events(ctx context.Context, bucket string, start, end time.Time) ([]Event, error) {
	q := url.Values{}
	q.Set("start", start.Format(time.RFC3339))
	q.Set("end", end.Format(time.RFC3339))

	u := fmt.Sprintf("%s/api/0/buckets/%s/events?%s", c.baseURL, url.PathEscape(bucket), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching events from %s: %w", bucket, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching events from %s: unexpected status %d", bucket, resp.StatusCode)
	}

	var events []Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("decoding events: %w", err)
	}
	return events, nil
}

// SumDurationByTitle totals event durations per window title.
func SumDurationByTitle(events []Event) map[string]float64 {
	totals := make(map[string]float64)
	for _, ev := range events {
		totals[ev.Data.Title] += ev.Duration
	}
	return totals
}
