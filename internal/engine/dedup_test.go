package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tallysync/tally/internal/beeminder"
)

func TestBuildIndexByRequestID(t *testing.T) {
	existing := []beeminder.Datapoint{
		{RequestID: "sha-1"},
		{RequestID: "sha-2"},
		{RequestID: ""}, // legacy datapoint without an id, never matches
	}
	idx := BuildIndex(existing, KeyRequestID)

	assert.True(t, idx.Contains("sha-1"))
	assert.True(t, idx.Contains("sha-2"))
	assert.False(t, idx.Contains(""))
	assert.False(t, idx.Contains("sha-3"))
}

func TestBuildIndexByTimestamp(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	idx := BuildIndex([]beeminder.Datapoint{{Timestamp: at.Unix()}}, KeyTimestamp)

	same := beeminder.CreateDatapoint{Timestamp: at}
	other := beeminder.CreateDatapoint{Timestamp: at.Add(time.Second)}
	assert.True(t, idx.Contains(CandidateKey(same, KeyTimestamp)))
	assert.False(t, idx.Contains(CandidateKey(other, KeyTimestamp)))
}

func TestBuildIndexByComment(t *testing.T) {
	idx := BuildIndex([]beeminder.Datapoint{{Comment: "Did the thing"}}, KeyComment)

	assert.True(t, idx.Contains(CandidateKey(beeminder.CreateDatapoint{Comment: "Did the thing"}, KeyComment)))
	assert.False(t, idx.Contains(CandidateKey(beeminder.CreateDatapoint{Comment: "Did another thing"}, KeyComment)))
}

func TestCandidateKeyZeroTimestamp(t *testing.T) {
	key := CandidateKey(beeminder.CreateDatapoint{}, KeyTimestamp)
	assert.Empty(t, key, "a zero timestamp must not produce a usable key")
}

func TestDaystamp(t *testing.T) {
	assert.Equal(t, "20240301", Daystamp(time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, "20241215", Daystamp(time.Date(2024, 12, 15, 0, 0, 0, 0, time.UTC)))
}
