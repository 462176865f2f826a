// Package engine implements the idempotent reconciliation core shared by
// every sync job.
//
// The engine never keeps local state between runs. Each run reconstructs
// what has already been mirrored from the Beeminder goal itself: the most
// recent datapoint bounds how far back the source is queried (the
// watermark), and a dedup index over existing datapoints decides which
// candidates are new. Creations happen oldest-to-newest so an interrupted
// run leaves the goal's history contiguous and the next run picks up where
// it stopped.
//
// Two operating modes exist:
//
//   - append-only: fetch, map, filter against the dedup index, create the
//     missing datapoints. Never deletes.
//   - aggregate-correction: recompute a per-day judgment over a lookback
//     window and delete-then-recreate the day's datapoint when the stored
//     value disagrees. Beeminder has no update primitive.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/tallysync/tally/internal/beeminder"
)

// valueEpsilon is the tolerance when comparing a stored datapoint value
// against a freshly computed one in aggregate-correction mode.
const valueEpsilon = 0.01

// AppendJob mirrors individual source records into a goal, one datapoint
// per record, never deleting anything.
//
// R is the source-specific record type; Map converts one record into a
// datapoint and must be pure. Fetch is the source adapter bound at wiring
// time.
type AppendJob[R any] struct {
	Name string
	Goal string

	// Fetch returns source records with activity at or after since.
	// Sources may return them in any order.
	Fetch func(ctx context.Context, since time.Time) ([]R, error)

	// Map converts a source record into a datapoint. Records for which
	// Map fails are reported and skipped; the batch continues.
	Map func(R) (beeminder.CreateDatapoint, error)

	// Keyed selects the dedup strategy for this job.
	Keyed KeyStrategy

	// Lookback, when non-zero, replaces the watermark with a fixed
	// window ending now. For sources with no natural cursor.
	Lookback time.Duration

	// Since, when non-zero, overrides the watermark entirely.
	Since time.Time

	// MaxExisting floors the size of the existing-datapoint fetch used
	// to build the dedup index. The fetch is always at least as large
	// as the candidate count.
	MaxExisting int

	// AutoTags echoes a created datapoint into the goal named after any
	// tag whose "#tag" marker appears in the comment.
	AutoTags []string
}

// JobName implements Job.
func (j *AppendJob[R]) JobName() string { return j.Name }

// GoalName implements Job.
func (j *AppendJob[R]) GoalName() string { return j.Goal }

// Run reconciles the source against the goal once.
//
// Per-record failures (mapping, creation) are counted in the report and
// collected into the returned error; they do not abort the remaining
// records. A failure before the per-record loop starts (watermark fetch,
// source fetch, index fetch) aborts the job.
func (j *AppendJob[R]) Run(ctx context.Context, store Store, logger *log.Logger) (*Report, error) {
	report := &Report{Job: j.Name, Goal: j.Goal}

	since := j.Since
	if since.IsZero() {
		if j.Lookback > 0 {
			since = time.Now().Add(-j.Lookback)
		} else {
			var err error
			since, err = Watermark(ctx, store, j.Goal)
			if err != nil {
				return report, err
			}
		}
	}

	records, err := j.Fetch(ctx, since)
	if err != nil {
		return report, fmt.Errorf("fetching %s records: %w", j.Name, err)
	}

	candidates := make([]beeminder.CreateDatapoint, 0, len(records))
	for _, rec := range records {
		dp, err := j.Map(rec)
		if err != nil {
			report.Unmapped++
			logger.Printf("%s: skipping unmappable record: %v", j.Name, err)
			continue
		}
		candidates = append(candidates, dp)
	}
	if len(candidates) == 0 {
		return report, nil
	}

	// The index must cover every candidate checked this run, so the
	// fetch window never shrinks below the candidate count.
	window := j.MaxExisting
	if len(candidates) > window {
		window = len(candidates)
	}
	existing, err := store.Datapoints(ctx, j.Goal, "timestamp", window)
	if err != nil {
		return report, fmt.Errorf("fetching existing datapoints for %s: %w", j.Goal, err)
	}
	index := BuildIndex(existing, j.Keyed)

	fresh := candidates[:0]
	for _, dp := range candidates {
		if index.Contains(CandidateKey(dp, j.Keyed)) {
			report.Skipped++
			continue
		}
		fresh = append(fresh, dp)
	}

	// Create oldest first. If the run dies partway the goal's history
	// still advances contiguously from the watermark.
	sort.SliceStable(fresh, func(a, b int) bool {
		return fresh[a].Timestamp.Before(fresh[b].Timestamp)
	})

	var errs []error
	for _, dp := range fresh {
		if err := store.CreateDatapoint(ctx, j.Goal, dp); err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("creating datapoint %q: %w", dp.Comment, err))
			continue
		}
		report.Created++
		logger.Printf("%s: created datapoint: %s", j.Name, dp.Comment)
		j.echoTags(ctx, store, logger, dp, &errs)
	}
	return report, errors.Join(errs...)
}

func (j *AppendJob[R]) echoTags(ctx context.Context, store Store, logger *log.Logger, dp beeminder.CreateDatapoint, errs *[]error) {
	for _, tag := range j.AutoTags {
		if !strings.Contains(dp.Comment, "#"+tag) {
			continue
		}
		if err := store.CreateDatapoint(ctx, tag, dp); err != nil {
			*errs = append(*errs, fmt.Errorf("echoing datapoint to %s: %w", tag, err))
			continue
		}
		logger.Printf("%s: echoed datapoint to goal %s", j.Name, tag)
	}
}

// WindowEvent is one observed window-activity interval.
type WindowEvent struct {
	Title    string
	Duration float64 // seconds
}

// AggregateJob maintains one judged datapoint per calendar day over a
// lookback window, correcting previously created ones when the judgment
// for that day changes.
type AggregateJob struct {
	Name string
	Goal string

	// LookbackDays is how many day buckets to (re)judge each run.
	LookbackDays int

	// Events returns window activity between start and end.
	Events func(ctx context.Context, start, end time.Time) ([]WindowEvent, error)

	// Classify submits a day's labels and returns the raw response text.
	// A trimmed response of exactly "no" means full approval; otherwise
	// the second line of the response is used as the rejection comment.
	Classify func(ctx context.Context, labels []string) (string, error)

	// MinSeconds drops events shorter than this before judging.
	MinSeconds float64

	// Match filters event titles; nil matches everything.
	Match func(title string) bool

	// MaxExisting bounds the existing-datapoint fetch. Zero picks a
	// window comfortably larger than the lookback.
	MaxExisting int

	// Location is the civil calendar used to cut day buckets.
	// Defaults to the local time zone.
	Location *time.Location

	// Now is a test seam; defaults to time.Now.
	Now func() time.Time
}

// JobName implements Job.
func (j *AggregateJob) JobName() string { return j.Name }

// GoalName implements Job.
func (j *AggregateJob) GoalName() string { return j.Goal }

// Run judges each day bucket in the lookback window, oldest first, and
// reconciles the goal's stored datapoint for that bucket.
//
// A classifier or write failure for one day is recorded and the remaining
// days still run.
func (j *AggregateJob) Run(ctx context.Context, store Store, logger *log.Logger) (*Report, error) {
	report := &Report{Job: j.Name, Goal: j.Goal}

	loc := j.Location
	if loc == nil {
		loc = time.Local
	}
	now := time.Now
	if j.Now != nil {
		now = j.Now
	}
	t := now().In(loc)
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)

	window := j.MaxExisting
	if window == 0 {
		window = 2 * j.LookbackDays
		if window < 50 {
			window = 50
		}
	}
	existing, err := store.Datapoints(ctx, j.Goal, "", window)
	if err != nil {
		return report, fmt.Errorf("fetching existing datapoints for %s: %w", j.Goal, err)
	}
	byDay := make(map[string][]beeminder.Datapoint, len(existing))
	for _, dp := range existing {
		byDay[dp.Daystamp] = append(byDay[dp.Daystamp], dp)
	}

	var errs []error
	for offset := j.LookbackDays - 1; offset >= 0; offset-- {
		end := midnight.AddDate(0, 0, -offset)
		start := end.AddDate(0, 0, -1)
		daystamp := Daystamp(end)

		comment, value, err := j.judge(ctx, start, end)
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("judging %s: %w", daystamp, err))
			logger.Printf("%s: judging %s failed: %v", j.Name, daystamp, err)
			continue
		}

		create := true
		stale := false
		for _, dp := range byDay[daystamp] {
			if math.Abs(value-dp.Value) > valueEpsilon {
				logger.Printf("%s: deleting stale datapoint for %s", j.Name, daystamp)
				if err := store.DeleteDatapoint(ctx, j.Goal, dp.ID); err != nil {
					stale = true
					errs = append(errs, fmt.Errorf("deleting stale datapoint for %s: %w", daystamp, err))
					continue
				}
				report.Deleted++
			} else {
				create = false
			}
		}
		if stale {
			// A surviving stale datapoint would duplicate the bucket.
			report.Failed++
			continue
		}
		if !create {
			report.Skipped++
			logger.Printf("%s: existing datapoint for %s is correct", j.Name, daystamp)
			continue
		}

		dp := beeminder.CreateDatapoint{Value: value, Daystamp: daystamp, Comment: comment}
		if err := store.CreateDatapoint(ctx, j.Goal, dp); err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("creating datapoint for %s: %w", daystamp, err))
			continue
		}
		report.Created++
		if value < 1-valueEpsilon {
			logger.Printf("%s: dirty datapoint for %s", j.Name, daystamp)
		} else {
			logger.Printf("%s: clean datapoint for %s", j.Name, daystamp)
		}
	}
	return report, errors.Join(errs...)
}

// judge computes the (comment, value) judgment for one day bucket.
func (j *AggregateJob) judge(ctx context.Context, start, end time.Time) (string, float64, error) {
	events, err := j.Events(ctx, start, end)
	if err != nil {
		return "", 0, fmt.Errorf("fetching events: %w", err)
	}

	seen := make(map[string]struct{})
	var labels []string
	for _, ev := range events {
		if ev.Duration <= j.MinSeconds {
			continue
		}
		if j.Match != nil && !j.Match(ev.Title) {
			continue
		}
		if _, ok := seen[ev.Title]; ok {
			continue
		}
		seen[ev.Title] = struct{}{}
		labels = append(labels, ev.Title)
	}
	if len(labels) == 0 {
		return "🫙 No titles.", 1, nil
	}
	sort.Strings(labels)

	resp, err := j.Classify(ctx, labels)
	if err != nil {
		return "", 0, err
	}
	if strings.TrimSpace(resp) == "no" {
		return "✨ Approved.", 1, nil
	}
	lines := strings.Split(resp, "\n")
	comment := ""
	if len(lines) > 1 {
		comment = lines[1]
	}
	return comment, 0, nil
}
