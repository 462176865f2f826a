package engine

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
)

// Job is one reconciliation unit: a source adapter, a mapping function,
// a dedup strategy, and an operating mode bound to one goal. Jobs are
// stateless between invocations and safe to re-run arbitrarily often.
type Job interface {
	JobName() string
	GoalName() string
	Run(ctx context.Context, store Store, logger *log.Logger) (*Report, error)
}

// Report summarizes one job run.
type Report struct {
	Job      string        `json:"job" yaml:"job"`
	Goal     string        `json:"goal" yaml:"goal"`
	Created  int           `json:"created" yaml:"created"`
	Skipped  int           `json:"skipped" yaml:"skipped"`
	Unmapped int           `json:"unmapped,omitempty" yaml:"unmapped,omitempty"`
	Deleted  int           `json:"deleted,omitempty" yaml:"deleted,omitempty"`
	Failed   int           `json:"failed,omitempty" yaml:"failed,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Errors   []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// OK reports whether the run finished without errors.
func (r *Report) OK() bool { return len(r.Errors) == 0 }

// Runner executes jobs against one store.
type Runner struct {
	store  Store
	logger *log.Logger
}

// NewRunner creates a Runner. If logger is nil, a default logger writing
// to stderr is used.
func NewRunner(store Store, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	return &Runner{store: store, logger: logger}
}

// RunAll runs every job in order and returns one report per job.
//
// A job's failure is captured in its report; it never aborts the
// remaining jobs. Jobs share no mutable state, so correctness does not
// depend on the sequential execution, but creations within one job stay
// strictly ordered.
func (r *Runner) RunAll(ctx context.Context, jobs []Job) []*Report {
	reports := make([]*Report, 0, len(jobs))
	for _, job := range jobs {
		runID := uuid.NewString()[:8]
		r.logger.Printf("run %s: job %s (goal %s) starting", runID, job.JobName(), job.GoalName())

		start := time.Now()
		report, err := job.Run(ctx, r.store, r.logger)
		if report == nil {
			report = &Report{Job: job.JobName(), Goal: job.GoalName()}
		}
		report.Duration = time.Since(start)
		if err != nil {
			report.Errors = append(report.Errors, err.Error())
			r.logger.Printf("run %s: job %s failed: %v", runID, job.JobName(), err)
		} else {
			r.logger.Printf("run %s: job %s done: created=%d skipped=%d deleted=%d",
				runID, job.JobName(), report.Created, report.Skipped, report.Deleted)
		}
		reports = append(reports, report)
	}
	return reports
}
