package engine

import (
	"context"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubJob is a canned Job for Runner tests.
type stubJob struct {
	name   string
	report *Report
	err    error
	ran    bool
}

func (s *stubJob) JobName() string  { return s.name }
func (s *stubJob) GoalName() string { return s.name }

func (s *stubJob) Run(context.Context, Store, *log.Logger) (*Report, error) {
	s.ran = true
	return s.report, s.err
}

func TestRunAllIsolatesJobFailures(t *testing.T) {
	broken := &stubJob{name: "broken", err: fmt.Errorf("credentials missing")}
	healthy := &stubJob{name: "healthy", report: &Report{Job: "healthy", Created: 2}}

	runner := NewRunner(newFakeStore(), quietLogger())
	reports := runner.RunAll(context.Background(), []Job{broken, healthy})

	require.Len(t, reports, 2)
	assert.True(t, healthy.ran, "a failing job must not stop its siblings")

	assert.False(t, reports[0].OK())
	assert.Contains(t, reports[0].Errors[0], "credentials missing")

	assert.True(t, reports[1].OK())
	assert.Equal(t, 2, reports[1].Created)
}

func TestRunAllFillsReportForNilResult(t *testing.T) {
	j := &stubJob{name: "nilrep", err: fmt.Errorf("boom")}

	runner := NewRunner(newFakeStore(), quietLogger())
	reports := runner.RunAll(context.Background(), []Job{j})

	require.Len(t, reports, 1)
	assert.Equal(t, "nilrep", reports[0].Job)
	assert.False(t, reports[0].OK())
}

func TestRunAllRecordsDuration(t *testing.T) {
	j := &stubJob{name: "timed", report: &Report{Job: "timed"}}

	runner := NewRunner(newFakeStore(), quietLogger())
	reports := runner.RunAll(context.Background(), []Job{j})

	require.Len(t, reports, 1)
	assert.GreaterOrEqual(t, reports[0].Duration, time.Duration(0))
}
