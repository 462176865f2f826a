// Package focusmate fetches completed coworking sessions from the
// Focusmate API.
package focusmate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.focusmate.com/v1"

// SessionUser is one participant's view of a session.
type SessionUser struct {
	UserID       string `json:"userId"`
	SessionTitle string `json:"sessionTitle"`
	Completed    bool   `json:"completed"`
}

// Session is one scheduled coworking session. The first user entry is
// the authenticated user's own.
type Session struct {
	SessionID string        `json:"sessionId"`
	StartTime time.Time     `json:"startTime"`
	Duration  int64         `json:"duration"` // milliseconds
	Users     []SessionUser `json:"users"`
}

// Completed reports whether the authenticated user completed the session.
func (s Session) Completed() bool {
	return len(s.Users) > 0 && s.Users[0].Completed
}

// Profile is a Focusmate user profile.
type Profile struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type sessionsResponse struct {
	Sessions []Session `json:"sessions"`
}

type profileResponse struct {
	User Profile `json:"user"`
}

// Client talks to the Focusmate API.
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

// Sessions fetches the user's sessions between start and end.
func (c *Client) Sessions(ctx context.Context, start, end time.Time) ([]Session, error) {
	q := url.Values{}
	q.Set("start", start.Format(time.RFC3339))
	q.Set("end", end.Format(time.RFC3339))

	var out sessionsResponse
	if err := c.get(ctx, c.baseURL+"/sessions?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("fetching sessions: %w", err)
	}
	return out.Sessions, nil
}

// Profile fetches another user's profile by id.
func (c *Client) Profile(ctx context.Context, userID string) (Profile, error) {
	var out profileResponse
	if err := c.get(ctx, c.baseURL+"/users/"+url.PathEscape(userID), &out); err != nil {
		return Profile{}, fmt.Errorf("fetching profile %s: %w", userID, err)
	}
	return out.User, nil
}

func (c *Client) get(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-API-KEY", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
