package engine

import (
	"fmt"
	"time"
)

// Daystamp formats an instant as Beeminder's calendar-day string (YYYYMMDD).
func Daystamp(t time.Time) string {
	return fmt.Sprintf("%04d%02d%02d", t.Year(), int(t.Month()), t.Day())
}

// MappingError reports a source record that cannot be converted into a
// datapoint, usually because a required field is missing or malformed.
// Records that fail mapping are skipped; the rest of the batch proceeds.
type MappingError struct {
	Reason string
}

func (e *MappingError) Error() string {
	return "mapping record: " + e.Reason
}

// Mapfail builds a MappingError from a format string.
func Mapfail(format string, args ...any) error {
	return &MappingError{Reason: fmt.Sprintf(format, args...)}
}
