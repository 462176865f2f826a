// Package jobs assembles the configured sync jobs: one source adapter,
// one mapping function, and one dedup strategy per Beeminder goal.
package jobs

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/tallysync/tally/internal/beeminder"
	"github.com/tallysync/tally/internal/classify"
	"github.com/tallysync/tally/internal/config"
	"github.com/tallysync/tally/internal/engine"
	"github.com/tallysync/tally/internal/source/activitywatch"
	"github.com/tallysync/tally/internal/source/fatebook"
	"github.com/tallysync/tally/internal/source/focusmate"
	"github.com/tallysync/tally/internal/source/github"
	"github.com/tallysync/tally/internal/source/marvin"
)

// Options adjust job construction for one run.
type Options struct {
	// Since overrides the watermark of every append-only job.
	Since time.Time

	// Only restricts the build to a single job by name.
	Only string
}

// brokenJob stands in for a job that could not even be configured,
// usually because a credential failed to resolve. It fails immediately
// when run, so the failure lands in that job's report without touching
// its siblings.
type brokenJob struct {
	name string
	goal string
	err  error
}

func (j *brokenJob) JobName() string  { return j.name }
func (j *brokenJob) GoalName() string { return j.goal }

func (j *brokenJob) Run(context.Context, engine.Store, *log.Logger) (*engine.Report, error) {
	return &engine.Report{Job: j.name, Goal: j.goal}, fmt.Errorf("configuring %s: %w", j.name, j.err)
}

// Build creates every job the config enables, in a fixed order.
// Credentials are resolved here; a job whose credentials cannot be
// resolved becomes a job that reports its own failure, so one bad
// credential never blocks the sibling jobs.
func Build(cfg *config.Config, opts Options) ([]engine.Job, error) {
	var jobs []engine.Job
	add := func(name, goal string, build func() (engine.Job, error)) {
		if opts.Only != "" && opts.Only != name {
			return
		}
		job, err := build()
		if err != nil {
			job = &brokenJob{name: name, goal: goal, err: err}
		}
		jobs = append(jobs, job)
	}

	if cfg.Marvin != nil {
		add("marvin", cfg.Marvin.Goal, func() (engine.Job, error) { return marvinJob(cfg.Marvin, opts) })
	}
	if cfg.Focusmate != nil {
		add("focusmate", cfg.Focusmate.Goal, func() (engine.Job, error) { return focusmateJob(cfg.Focusmate, opts) })
	}
	if cfg.Fatebook != nil {
		add("fatebook", cfg.Fatebook.Goal, func() (engine.Job, error) { return fatebookJob(cfg.Fatebook, opts) })
	}
	if cfg.Watched != nil {
		add("watched", cfg.Watched.Goal, func() (engine.Job, error) { return watchedJob(cfg.Watched) })
	}
	if cfg.Screentime != nil {
		add("screentime", cfg.Screentime.Goal, func() (engine.Job, error) { return screentimeJob(cfg.Screentime) })
	}
	if cfg.GitHub != nil {
		add("github", cfg.GitHub.Goal, func() (engine.Job, error) { return githubJob(cfg.GitHub, opts) })
	}

	if opts.Only != "" && len(jobs) == 0 {
		return nil, fmt.Errorf("no configured job named %q", opts.Only)
	}
	return jobs, nil
}

// NamedGoal pairs a job name with the Beeminder goal it feeds.
type NamedGoal struct {
	Job  string
	Goal string
}

// Goals lists the configured jobs without resolving any credentials.
func Goals(cfg *config.Config) []NamedGoal {
	var goals []NamedGoal
	if cfg.Marvin != nil {
		goals = append(goals, NamedGoal{"marvin", cfg.Marvin.Goal})
	}
	if cfg.Focusmate != nil {
		goals = append(goals, NamedGoal{"focusmate", cfg.Focusmate.Goal})
	}
	if cfg.Fatebook != nil {
		goals = append(goals, NamedGoal{"fatebook", cfg.Fatebook.Goal})
	}
	if cfg.Watched != nil {
		goals = append(goals, NamedGoal{"watched", cfg.Watched.Goal})
	}
	if cfg.Screentime != nil {
		goals = append(goals, NamedGoal{"screentime", cfg.Screentime.Goal})
	}
	if cfg.GitHub != nil {
		goals = append(goals, NamedGoal{"github", cfg.GitHub.Goal})
	}
	return goals
}

func marvinJob(cfg *config.MarvinConfig, opts Options) (engine.Job, error) {
	uri, err := cfg.URI.Resolve()
	if err != nil {
		return nil, err
	}
	username, err := cfg.Username.Resolve()
	if err != nil {
		return nil, err
	}
	password, err := cfg.Password.Resolve()
	if err != nil {
		return nil, err
	}
	database, err := cfg.DatabaseName.Resolve()
	if err != nil {
		return nil, err
	}

	client := marvin.New(marvin.Credentials{
		URI:          uri,
		Username:     username,
		Password:     password,
		DatabaseName: database,
	})
	return &engine.AppendJob[marvin.Task]{
		Name:  "marvin",
		Goal:  cfg.Goal,
		Since: opts.Since,
		Keyed: engine.KeyRequestID,
		Fetch: func(ctx context.Context, _ time.Time) ([]marvin.Task, error) {
			// Marvin has no since parameter; the source itself bounds
			// the query to recently completed tasks.
			return client.RecentlyCompletedTasks(ctx, cfg.Category)
		},
		Map: taskDatapoint,
	}, nil
}

// taskDatapoint maps a completed Marvin task to a datapoint keyed by the
// task's document id.
func taskDatapoint(task marvin.Task) (beeminder.CreateDatapoint, error) {
	if task.ID == "" {
		return beeminder.CreateDatapoint{}, engine.Mapfail("task missing _id field")
	}
	if task.DoneAt == 0 {
		return beeminder.CreateDatapoint{}, engine.Mapfail("task %s missing doneAt field", task.ID)
	}
	doneAt := time.UnixMilli(task.DoneAt).UTC()

	title := task.Title
	if title == "" {
		title = "Untitled task"
	}
	return beeminder.CreateDatapoint{
		Value:     1,
		Timestamp: doneAt,
		Daystamp:  engine.Daystamp(doneAt),
		Comment:   title,
		RequestID: task.ID,
	}, nil
}

// sessionRecord is a Focusmate session with its partner name resolved
// at fetch time, so the mapper stays pure.
type sessionRecord struct {
	Session focusmate.Session
	Partner string
}

func focusmateJob(cfg *config.FocusmateConfig, opts Options) (engine.Job, error) {
	key, err := cfg.Key.Resolve()
	if err != nil {
		return nil, err
	}
	client := focusmate.New(key, "")

	return &engine.AppendJob[sessionRecord]{
		Name:     "focusmate",
		Goal:     cfg.Goal,
		Since:    opts.Since,
		Keyed:    engine.KeyTimestamp,
		AutoTags: cfg.AutoTags,
		Fetch: func(ctx context.Context, since time.Time) ([]sessionRecord, error) {
			end := time.Now().Add(24 * time.Hour)
			sessions, err := client.Sessions(ctx, since, end)
			if err != nil {
				return nil, err
			}
			records := make([]sessionRecord, 0, len(sessions))
			for _, s := range sessions {
				if !s.Completed() {
					continue
				}
				records = append(records, sessionRecord{
					Session: s,
					Partner: partnerName(ctx, client, s),
				})
			}
			return records, nil
		},
		Map: sessionDatapoint,
	}, nil
}

// partnerName resolves the partner's display name, falling back to
// "unknown partner". The fallback is policy, not a swallowed failure:
// a missing profile must not block mirroring the session.
func partnerName(ctx context.Context, client *focusmate.Client, s focusmate.Session) string {
	if len(s.Users) < 2 {
		return "unknown partner"
	}
	profile, err := client.Profile(ctx, s.Users[1].UserID)
	if err != nil || profile.Name == "" {
		return "unknown partner"
	}
	return profile.Name
}

// sessionDatapoint maps a completed session to a datapoint keyed by its
// start instant.
func sessionDatapoint(rec sessionRecord) (beeminder.CreateDatapoint, error) {
	s := rec.Session
	if len(s.Users) == 0 {
		return beeminder.CreateDatapoint{}, engine.Mapfail("session %s has no own profile", s.SessionID)
	}
	start := s.StartTime.UTC()

	comment := fmt.Sprintf("%s, %02d:%02d (UTC), %s with %s for %d mins",
		start.Weekday(), start.Hour(), start.Minute(),
		s.Users[0].SessionTitle, rec.Partner, s.Duration/60000)

	return beeminder.CreateDatapoint{
		Value:     1,
		Timestamp: start,
		Daystamp:  engine.Daystamp(start),
		Comment:   comment,
	}, nil
}

func fatebookJob(cfg *config.FatebookConfig, opts Options) (engine.Job, error) {
	key, err := cfg.Key.Resolve()
	if err != nil {
		return nil, err
	}
	client := fatebook.New(key, "")

	return &engine.AppendJob[fatebook.Question]{
		Name:  "fatebook",
		Goal:  cfg.Goal,
		Since: opts.Since,
		Keyed: engine.KeyRequestID,
		Fetch: func(ctx context.Context, _ time.Time) ([]fatebook.Question, error) {
			// Fatebook has no since filter; every question is fetched
			// and the dedup index absorbs the overlap.
			return client.Questions(ctx, 0)
		},
		Map: questionDatapoint,
	}, nil
}

// questionDatapoint maps a forecast question to a datapoint keyed by the
// question id.
func questionDatapoint(q fatebook.Question) (beeminder.CreateDatapoint, error) {
	if q.ID == "" {
		return beeminder.CreateDatapoint{}, engine.Mapfail("question missing id")
	}
	created := q.CreatedAt.UTC()
	return beeminder.CreateDatapoint{
		Value:     1,
		Timestamp: created,
		Daystamp:  engine.Daystamp(created),
		Comment:   q.Title,
		RequestID: q.ID,
	}, nil
}

func watchedJob(cfg *config.WatchedConfig) (engine.Job, error) {
	client := activitywatch.New(cfg.BaseURL)
	fetchedAt := time.Now().UTC()

	return &engine.AppendJob[string]{
		Name:        "watched",
		Goal:        cfg.Goal,
		Keyed:       engine.KeyComment,
		Lookback:    time.Duration(cfg.LookbackDays) * 24 * time.Hour,
		MaxExisting: cfg.MaxDatapoints,
		Fetch: func(ctx context.Context, since time.Time) ([]string, error) {
			events, err := client.Events(ctx, cfg.WindowBucket, since, time.Now())
			if err != nil {
				return nil, err
			}
			return watchedTitles(events, cfg.MinVideoSeconds), nil
		},
		Map: func(title string) (beeminder.CreateDatapoint, error) {
			return beeminder.CreateDatapoint{
				Value:     1,
				Timestamp: fetchedAt,
				Comment:   title,
			}, nil
		},
	}, nil
}

// watchedTitles aggregates per-video watch time across the window and
// keeps titles watched longer than the threshold, sorted.
func watchedTitles(events []activitywatch.Event, minSeconds float64) []string {
	perVideo := make(map[string]float64)
	for _, ev := range events {
		video, _, found := strings.Cut(ev.Data.Title, " - YouTube —")
		if !found {
			continue
		}
		perVideo[strings.TrimSpace(video)] += ev.Duration
	}

	var titles []string
	for video, seconds := range perVideo {
		if seconds > minSeconds {
			titles = append(titles, video)
		}
	}
	sort.Strings(titles)
	return titles
}

func screentimeJob(cfg *config.ScreentimeConfig) (engine.Job, error) {
	key, err := cfg.AnthropicKey.Resolve()
	if err != nil {
		return nil, err
	}
	aw := activitywatch.New(cfg.BaseURL)
	judge := classify.New(key, cfg.Model, cfg.PromptTemplate)

	return &engine.AggregateJob{
		Name:         "screentime",
		Goal:         cfg.Goal,
		LookbackDays: cfg.LookbackDays,
		MinSeconds:   cfg.MinWindowSeconds,
		Match:        browserTitle,
		Events: func(ctx context.Context, start, end time.Time) ([]engine.WindowEvent, error) {
			events, err := aw.Events(ctx, cfg.WindowBucket, start, end)
			if err != nil {
				return nil, err
			}
			out := make([]engine.WindowEvent, 0, len(events))
			for _, ev := range events {
				out = append(out, engine.WindowEvent{Title: ev.Data.Title, Duration: ev.Duration})
			}
			return out, nil
		},
		Classify: judge.Classify,
	}, nil
}

// browserTitle reports whether a window title belongs to a browser.
func browserTitle(title string) bool {
	t := strings.ToLower(title)
	return strings.Contains(t, "firefox") || strings.Contains(t, "brave") || strings.Contains(t, "chromium")
}

func githubJob(cfg *config.GitHubConfig, opts Options) (engine.Job, error) {
	var token string
	if cfg.Token != nil {
		var err error
		token, err = cfg.Token.Resolve()
		if err != nil {
			return nil, err
		}
	}
	client := github.New(token, "")

	return &engine.AppendJob[github.Commit]{
		Name:  "github",
		Goal:  cfg.Goal,
		Since: opts.Since,
		Keyed: engine.KeyRequestID,
		Fetch: func(ctx context.Context, since time.Time) ([]github.Commit, error) {
			return client.Commits(ctx, cfg.Username, since)
		},
		Map: commitDatapoint,
	}, nil
}

// commitDatapoint maps a commit to a datapoint keyed by its sha.
func commitDatapoint(c github.Commit) (beeminder.CreateDatapoint, error) {
	if c.SHA == "" {
		return beeminder.CreateDatapoint{}, engine.Mapfail("commit missing sha")
	}
	date := c.CommitterDate.UTC()

	firstLine, _, _ := strings.Cut(c.Message, "\n")
	comment := fmt.Sprintf("%s: %s", c.Repository, strings.TrimSpace(firstLine))

	return beeminder.CreateDatapoint{
		Value:     1,
		Timestamp: date,
		Daystamp:  engine.Daystamp(date),
		Comment:   comment,
		RequestID: c.SHA,
	}, nil
}
