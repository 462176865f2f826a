package activitywatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvents(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/0/buckets/aw-watcher-window_host/events", r.URL.Path)
		assert.Equal(t, start.Format(time.RFC3339), r.URL.Query().Get("start"))
		assert.Equal(t, end.Format(time.RFC3339), r.URL.Query().Get("end"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":1,"timestamp":"2024-03-01T10:00:00Z","duration":120.5,"data":{"app":"firefox","title":"docs — Mozilla Firefox"}},
			{"id":2,"timestamp":"2024-03-01T11:00:00Z","duration":30,"data":{"app":"terminal","title":"vim"}}
		]`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	events, err := c.Events(context.Background(), "aw-watcher-window_host", start, end)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, "firefox", events[0].Data.App)
	assert.Equal(t, "docs — Mozilla Firefox", events[0].Data.Title)
	assert.Equal(t, 120.5, events[0].Duration)
}

func TestEventsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such bucket", http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.Events(context.Background(), "missing", time.Now().Add(-time.Hour), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestSumDurationByTitle(t *testing.T) {
	events := []Event{
		{Duration: 10, Data: EventData{Title: "a"}},
		{Duration: 20, Data: EventData{Title: "a"}},
		{Duration: 5, Data: EventData{Title: "b"}},
	}
	totals := SumDurationByTitle(events)
	assert.Equal(t, 30.0, totals["a"])
	assert.Equal(t, 5.0, totals["b"])
}
