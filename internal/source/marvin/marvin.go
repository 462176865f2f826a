// Package marvin queries an Amazing Marvin CouchDB database for
// completed tasks.
package marvin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-2xx response from the CouchDB server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marvin api error (%d): %s", e.StatusCode, e.Message)
}

// Credentials hold the CouchDB connection parameters Amazing Marvin
// exposes under its sync settings.
type Credentials struct {
	URI          string
	Username     string
	Password     string
	DatabaseName string
}

// Task is a Marvin task document, reduced to the fields the sync needs.
type Task struct {
	ID     string `json:"_id"`
	Title  string `json:"title"`
	DoneAt int64  `json:"doneAt"` // unix milliseconds, zero when absent
}

type findResponse struct {
	Docs []json.RawMessage `json:"docs"`
}

// Client talks to a Marvin CouchDB database.
type Client struct {
	creds      Credentials
	httpClient *http.Client
}

// New creates a Client.
func New(creds Credentials) *Client {
	return &Client{
		creds:      creds,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// FindDocs runs a Mango _find query and returns the raw documents.
func (c *Client) FindDocs(ctx context.Context, selector map[string]any) ([]json.RawMessage, error) {
	body, err := json.Marshal(map[string]any{"selector": selector})
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/%s/_find", strings.TrimRight(c.creds.URI, "/"), c.creds.DatabaseName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.creds.Username, c.creds.Password)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying marvin: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	var out findResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding find response: %w", err)
	}
	return out.Docs, nil
}

// CategoryID resolves a category title to its document id. Exactly one
// category must match.
func (c *Client) CategoryID(ctx context.Context, title string) (string, error) {
	docs, err := c.FindDocs(ctx, map[string]any{
		"db":    "Categories",
		"type":  "category",
		"title": title,
	})
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("no category found with title %q", title)
	}
	if len(docs) > 1 {
		return "", fmt.Errorf("found %d categories with title %q, expected exactly one", len(docs), title)
	}

	var cat struct {
		ID string `json:"_id"`
	}
	if err := json.Unmarshal(docs[0], &cat); err != nil || cat.ID == "" {
		return "", fmt.Errorf("category %q does not have a valid _id", title)
	}
	return cat.ID, nil
}

// RecentlyCompletedTasks returns tasks in the named category completed
// within the last two weeks.
func (c *Client) RecentlyCompletedTasks(ctx context.Context, categoryTitle string) ([]Task, error) {
	categoryID, err := c.CategoryID(ctx, categoryTitle)
	if err != nil {
		return nil, err
	}

	twoWeeksAgo := time.Now().Add(-14*24*time.Hour).UnixMilli()
	docs, err := c.FindDocs(ctx, map[string]any{
		"db":       "Tasks",
		"parentId": categoryID,
		"done":     true,
		"doneAt":   map[string]any{"$gte": twoWeeksAgo},
	})
	if err != nil {
		return nil, err
	}

	tasks := make([]Task, 0, len(docs))
	for _, doc := range docs {
		var t Task
		if err := json.Unmarshal(doc, &t); err != nil {
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
