package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/tallysync/tally/internal/beeminder"
)

// Store is the subset of the Beeminder client the engine needs.
// Satisfied by *beeminder.Client.
type Store interface {
	Datapoints(ctx context.Context, goal, sort string, count int) ([]beeminder.Datapoint, error)
	CreateDatapoint(ctx context.Context, goal string, dp beeminder.CreateDatapoint) error
	DeleteDatapoint(ctx context.Context, goal, id string) error
}

var epoch = time.Unix(0, 0).UTC()

// Watermark returns the cursor for the next source fetch: the timestamp of
// the goal's most recent datapoint, or the epoch when the goal is empty.
//
// A most-recent datapoint with value exactly zero also yields the epoch.
// Zero-value datapoints mark "no real activity"; advancing past one would
// suppress re-scanning the period it covers.
func Watermark(ctx context.Context, store Store, goal string) (time.Time, error) {
	dps, err := store.Datapoints(ctx, goal, "timestamp", 1)
	if err != nil {
		return time.Time{}, fmt.Errorf("resolving watermark for %s: %w", goal, err)
	}
	if len(dps) == 0 || dps[0].Value == 0 {
		return epoch, nil
	}
	return dps[0].Time(), nil
}
