package engine

import (
	"strconv"

	"github.com/tallysync/tally/internal/beeminder"
)

// KeyStrategy selects which field of a datapoint identifies the underlying
// source event. Each job uses exactly one strategy per run.
type KeyStrategy int

const (
	// KeyRequestID dedups by the stable external id supplied at creation
	// (commit sha, question id, task id).
	KeyRequestID KeyStrategy = iota

	// KeyTimestamp dedups by the exact creation timestamp. Used when the
	// source has no stable id: two events are the same iff they start at
	// the identical instant.
	KeyTimestamp

	// KeyComment dedups by the comment text itself. Used for "this thing
	// was observed" facts with no numeric or time identity.
	KeyComment
)

// Index is a membership set over already-mirrored datapoints.
type Index map[string]struct{}

// BuildIndex builds an Index from existing target datapoints.
//
// The existing slice must be a superset of every candidate checked in the
// same run; an under-sized fetch window risks re-creating an already
// mirrored record. Callers size the fetch to at least the candidate count.
func BuildIndex(existing []beeminder.Datapoint, strategy KeyStrategy) Index {
	idx := make(Index, len(existing))
	for _, dp := range existing {
		var key string
		switch strategy {
		case KeyRequestID:
			key = dp.RequestID
		case KeyTimestamp:
			key = strconv.FormatInt(dp.Timestamp, 10)
		case KeyComment:
			key = dp.Comment
		}
		if key == "" {
			continue
		}
		idx[key] = struct{}{}
	}
	return idx
}

// Contains reports whether key is already mirrored.
func (ix Index) Contains(key string) bool {
	_, ok := ix[key]
	return ok
}

// CandidateKey extracts the dedup key from a datapoint about to be created.
// Returns "" when the candidate carries no usable key for the strategy.
func CandidateKey(dp beeminder.CreateDatapoint, strategy KeyStrategy) string {
	switch strategy {
	case KeyRequestID:
		return dp.RequestID
	case KeyTimestamp:
		if dp.Timestamp.IsZero() {
			return ""
		}
		return strconv.FormatInt(dp.Timestamp.Unix(), 10)
	case KeyComment:
		return dp.Comment
	}
	return ""
}
