package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallysync/tally/internal/beeminder"
)

// fakeStore is an in-memory Beeminder that records the order of calls.
type fakeStore struct {
	goals map[string][]beeminder.Datapoint

	creates []beeminder.CreateDatapoint
	deletes []string

	failCreate map[string]error // keyed by comment
	listErr    error

	nextID int
}

func newFakeStore() *fakeStore {
	return &fakeStore{goals: make(map[string][]beeminder.Datapoint)}
}

func (s *fakeStore) seed(goal string, dps ...beeminder.Datapoint) {
	for i := range dps {
		if dps[i].ID == "" {
			s.nextID++
			dps[i].ID = "seed-" + strconv.Itoa(s.nextID)
		}
	}
	s.goals[goal] = append(s.goals[goal], dps...)
}

func (s *fakeStore) Datapoints(_ context.Context, goal, sortKey string, count int) ([]beeminder.Datapoint, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	dps := append([]beeminder.Datapoint(nil), s.goals[goal]...)
	if sortKey == "timestamp" {
		sort.Slice(dps, func(a, b int) bool { return dps[a].Timestamp > dps[b].Timestamp })
	}
	if count > 0 && len(dps) > count {
		dps = dps[:count]
	}
	return dps, nil
}

func (s *fakeStore) CreateDatapoint(_ context.Context, goal string, dp beeminder.CreateDatapoint) error {
	if err, ok := s.failCreate[dp.Comment]; ok {
		return err
	}
	s.creates = append(s.creates, dp)
	s.nextID++
	stored := beeminder.Datapoint{
		ID:        "dp-" + strconv.Itoa(s.nextID),
		Value:     dp.Value,
		Daystamp:  dp.Daystamp,
		Comment:   dp.Comment,
		RequestID: dp.RequestID,
	}
	if !dp.Timestamp.IsZero() {
		stored.Timestamp = dp.Timestamp.Unix()
	}
	s.goals[goal] = append(s.goals[goal], stored)
	return nil
}

func (s *fakeStore) DeleteDatapoint(_ context.Context, goal, id string) error {
	s.deletes = append(s.deletes, id)
	dps := s.goals[goal]
	for i, dp := range dps {
		if dp.ID == id {
			s.goals[goal] = append(dps[:i], dps[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no datapoint %s", id)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// record is the source type used by test append jobs.
type record struct {
	ID   string
	Name string
	At   time.Time
}

func recordJob(goal string, fetch func(ctx context.Context, since time.Time) ([]record, error)) *AppendJob[record] {
	return &AppendJob[record]{
		Name:  "test",
		Goal:  goal,
		Keyed: KeyRequestID,
		Fetch: fetch,
		Map: func(r record) (beeminder.CreateDatapoint, error) {
			if r.At.IsZero() {
				return beeminder.CreateDatapoint{}, Mapfail("record %s missing timestamp", r.ID)
			}
			return beeminder.CreateDatapoint{
				Value:     1,
				Timestamp: r.At,
				Daystamp:  Daystamp(r.At),
				Comment:   r.Name,
				RequestID: r.ID,
			}, nil
		},
	}
}

func staticFetch(records ...record) func(context.Context, time.Time) ([]record, error) {
	return func(context.Context, time.Time) ([]record, error) {
		return records, nil
	}
}

func TestAppendCreatesOldestFirst(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	// Source returns newest first, like most APIs do.
	job := recordJob("g", staticFetch(
		record{ID: "c", Name: "third", At: base.Add(2 * time.Hour)},
		record{ID: "b", Name: "second", At: base.Add(time.Hour)},
		record{ID: "a", Name: "first", At: base},
	))

	store := newFakeStore()
	report, err := job.Run(context.Background(), store, quietLogger())
	require.NoError(t, err)

	require.Equal(t, 3, report.Created)
	require.Len(t, store.creates, 3)
	assert.Equal(t, "first", store.creates[0].Comment)
	assert.Equal(t, "second", store.creates[1].Comment)
	assert.Equal(t, "third", store.creates[2].Comment)
}

func TestAppendIsIdempotent(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	job := recordJob("g", staticFetch(
		record{ID: "a", Name: "one", At: base},
		record{ID: "b", Name: "two", At: base.Add(time.Minute)},
	))
	store := newFakeStore()

	first, err := job.Run(context.Background(), store, quietLogger())
	require.NoError(t, err)
	require.Equal(t, 2, first.Created)

	second, err := job.Run(context.Background(), store, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Skipped)
	assert.Len(t, store.creates, 2)
}

func TestAppendSkipsAlreadyMirrored(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.seed("g", beeminder.Datapoint{
		Value: 1, Timestamp: base.Unix(), RequestID: "a", Comment: "one",
	})

	job := recordJob("g", staticFetch(
		record{ID: "a", Name: "one", At: base},
		record{ID: "b", Name: "two", At: base.Add(time.Minute)},
	))
	report, err := job.Run(context.Background(), store, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, store.creates, 1)
	assert.Equal(t, "two", store.creates[0].Comment)
}

func TestAppendSkipsUnmappableRecords(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []record{
		{ID: "a", Name: "ok1", At: base},
		{ID: "b", Name: "broken"}, // zero timestamp fails mapping
		{ID: "c", Name: "ok2", At: base.Add(time.Minute)},
		{ID: "d", Name: "ok3", At: base.Add(2 * time.Minute)},
		{ID: "e", Name: "ok4", At: base.Add(3 * time.Minute)},
	}
	job := recordJob("g", staticFetch(records...))

	store := newFakeStore()
	report, err := job.Run(context.Background(), store, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, 4, report.Created)
	assert.Equal(t, 1, report.Unmapped)
}

func TestAppendCreateFailureDoesNotAbortBatch(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	job := recordJob("g", staticFetch(
		record{ID: "a", Name: "one", At: base},
		record{ID: "b", Name: "two", At: base.Add(time.Minute)},
		record{ID: "c", Name: "three", At: base.Add(2 * time.Minute)},
	))

	store := newFakeStore()
	store.failCreate = map[string]error{"two": fmt.Errorf("boom")}

	report, err := job.Run(context.Background(), store, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, store.creates, 2)
	assert.Equal(t, "one", store.creates[0].Comment)
	assert.Equal(t, "three", store.creates[1].Comment)
}

func TestAppendUsesWatermark(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.seed("g", beeminder.Datapoint{Value: 1, Timestamp: base.Unix(), RequestID: "a"})

	var gotSince time.Time
	job := recordJob("g", func(_ context.Context, since time.Time) ([]record, error) {
		gotSince = since
		return nil, nil
	})
	_, err := job.Run(context.Background(), store, quietLogger())
	require.NoError(t, err)
	assert.True(t, gotSince.Equal(base), "since should be the newest datapoint's timestamp")
}

func TestAppendWatermarkIgnoresZeroValueMarker(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.seed("g", beeminder.Datapoint{Value: 0, Timestamp: base.Unix(), Comment: "nothing happened"})

	var gotSince time.Time
	job := recordJob("g", func(_ context.Context, since time.Time) ([]record, error) {
		gotSince = since
		return nil, nil
	})
	_, err := job.Run(context.Background(), store, quietLogger())
	require.NoError(t, err)
	assert.True(t, gotSince.Equal(time.Unix(0, 0).UTC()),
		"a zero-value marker must not advance the cursor, got %v", gotSince)
}

func TestAppendSinceOverride(t *testing.T) {
	override := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.seed("g", beeminder.Datapoint{Value: 1, Timestamp: time.Now().Unix()})

	var gotSince time.Time
	job := recordJob("g", func(_ context.Context, since time.Time) ([]record, error) {
		gotSince = since
		return nil, nil
	})
	job.Since = override

	_, err := job.Run(context.Background(), store, quietLogger())
	require.NoError(t, err)
	assert.True(t, gotSince.Equal(override))
}

func TestAppendLookbackWindow(t *testing.T) {
	var gotSince time.Time
	job := recordJob("g", func(_ context.Context, since time.Time) ([]record, error) {
		gotSince = since
		return nil, nil
	})
	job.Lookback = 72 * time.Hour

	_, err := job.Run(context.Background(), newFakeStore(), quietLogger())
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(-72*time.Hour), gotSince, time.Minute)
}

func TestAppendEchoesAutoTags(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	job := recordJob("g", staticFetch(
		record{ID: "a", Name: "session #deep with Ada", At: base},
		record{ID: "b", Name: "plain session", At: base.Add(time.Minute)},
	))
	job.AutoTags = []string{"deep", "unused"}

	store := newFakeStore()
	report, err := job.Run(context.Background(), store, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Created)
	require.Len(t, store.goals["deep"], 1)
	assert.Equal(t, "session #deep with Ada", store.goals["deep"][0].Comment)
	assert.Empty(t, store.goals["unused"])
}

// aggJob builds an AggregateJob with a fixed clock for bucket tests.
func aggJob(store *fakeStore, lookback int, events func(ctx context.Context, start, end time.Time) ([]WindowEvent, error), classify func(ctx context.Context, labels []string) (string, error)) *AggregateJob {
	return &AggregateJob{
		Name:         "agg",
		Goal:         "clean",
		LookbackDays: lookback,
		Events:       events,
		Classify:     classify,
		Location:     time.UTC,
		Now: func() time.Time {
			return time.Date(2024, 1, 10, 15, 0, 0, 0, time.UTC)
		},
	}
}

func noEvents(context.Context, time.Time, time.Time) ([]WindowEvent, error) {
	return nil, nil
}

func approveAll(context.Context, []string) (string, error) {
	return "no", nil
}

func TestAggregateEmptyDayIsPositive(t *testing.T) {
	store := newFakeStore()
	job := aggJob(store, 1, noEvents, func(context.Context, []string) (string, error) {
		t.Fatal("classifier must not be called for an empty day")
		return "", nil
	})

	report, err := job.Run(context.Background(), store, quietLogger())
	require.NoError(t, err)

	require.Equal(t, 1, report.Created)
	require.Len(t, store.creates, 1)
	assert.Equal(t, 1.0, store.creates[0].Value)
	assert.Equal(t, "20240110", store.creates[0].Daystamp)
	assert.Equal(t, "🫙 No titles.", store.creates[0].Comment)
}

func TestAggregateBucketsOldestFirst(t *testing.T) {
	store := newFakeStore()
	job := aggJob(store, 3, noEvents, approveAll)

	_, err := job.Run(context.Background(), store, quietLogger())
	require.NoError(t, err)

	require.Len(t, store.creates, 3)
	assert.Equal(t, "20240108", store.creates[0].Daystamp)
	assert.Equal(t, "20240109", store.creates[1].Daystamp)
	assert.Equal(t, "20240110", store.creates[2].Daystamp)
}

func TestAggregateCorrectionConverges(t *testing.T) {
	store := newFakeStore()
	store.seed("clean", beeminder.Datapoint{
		ID: "old", Value: 0, Daystamp: "20240110", Comment: "judged dirty",
	})

	someEvents := func(context.Context, time.Time, time.Time) ([]WindowEvent, error) {
		return []WindowEvent{{Title: "firefox — docs", Duration: 120}}, nil
	}
	job := aggJob(store, 1, someEvents, approveAll)

	report, err := job.Run(context.Background(), store, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"old"}, store.deletes)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, report.Created)

	dps := store.goals["clean"]
	require.Len(t, dps, 1)
	assert.Equal(t, 1.0, dps[0].Value)
	assert.Equal(t, "20240110", dps[0].Daystamp)
}

func TestAggregateNoOpOnMatch(t *testing.T) {
	store := newFakeStore()
	store.seed("clean", beeminder.Datapoint{
		ID: "keep", Value: 1, Daystamp: "20240110", Comment: "✨ Approved.",
	})

	job := aggJob(store, 1, noEvents, approveAll)
	report, err := job.Run(context.Background(), store, quietLogger())
	require.NoError(t, err)

	assert.Empty(t, store.creates)
	assert.Empty(t, store.deletes)
	assert.Equal(t, 1, report.Skipped)
}

func TestAggregateRejectionUsesSecondLine(t *testing.T) {
	store := newFakeStore()
	events := func(context.Context, time.Time, time.Time) ([]WindowEvent, error) {
		return []WindowEvent{{Title: "cat videos", Duration: 600}}, nil
	}
	classify := func(context.Context, []string) (string, error) {
		return "yes\nToo many cat videos.\nignored trailing line", nil
	}

	job := aggJob(store, 1, events, classify)
	_, err := job.Run(context.Background(), store, quietLogger())
	require.NoError(t, err)

	require.Len(t, store.creates, 1)
	assert.Equal(t, 0.0, store.creates[0].Value)
	assert.Equal(t, "Too many cat videos.", store.creates[0].Comment)
}

func TestAggregateFiltersAndDeduplicatesLabels(t *testing.T) {
	store := newFakeStore()
	events := func(context.Context, time.Time, time.Time) ([]WindowEvent, error) {
		return []WindowEvent{
			{Title: "firefox — news", Duration: 120},
			{Title: "firefox — news", Duration: 90}, // duplicate label
			{Title: "firefox — blink", Duration: 5}, // below threshold
			{Title: "terminal", Duration: 600},      // filtered by Match
		}, nil
	}

	var gotLabels []string
	classify := func(_ context.Context, labels []string) (string, error) {
		gotLabels = labels
		return "no", nil
	}

	job := aggJob(store, 1, events, classify)
	job.MinSeconds = 30
	job.Match = func(title string) bool { return title != "terminal" }

	_, err := job.Run(context.Background(), store, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"firefox — news"}, gotLabels)
}

func TestAggregateClassifierFailureIsolatedPerDay(t *testing.T) {
	store := newFakeStore()
	events := func(context.Context, time.Time, time.Time) ([]WindowEvent, error) {
		return []WindowEvent{{Title: "firefox — x", Duration: 120}}, nil
	}

	calls := 0
	classify := func(context.Context, []string) (string, error) {
		calls++
		if calls == 2 {
			return "", fmt.Errorf("model overloaded")
		}
		return "no", nil
	}

	job := aggJob(store, 3, events, classify)
	report, err := job.Run(context.Background(), store, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")

	// Days one and three still reconciled.
	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, store.creates, 2)
	assert.Equal(t, "20240108", store.creates[0].Daystamp)
	assert.Equal(t, "20240110", store.creates[1].Daystamp)
}
