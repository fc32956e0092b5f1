// Package timer is the wake-up timer subsystem reminders are registered with.
//
// CronTimer keeps one robfig/cron entry per job and persists job definitions
// in the timer_jobs table so they survive restarts. The table is the source of
// truth for List; it is written independently of task rows, which is why the
// reminder service reconciles the two periodically.
package timer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"group-reminder/internal/model"
	"group-reminder/internal/repository"
)

// ErrJobNotFound is returned by Remove when the job is unknown to the timer store.
var ErrJobNotFound = errors.New("timer job not found")

// Spec describes a recurring wake-up: first at Start, then every Interval.
type Spec struct {
	Name     string
	Start    time.Time
	Interval time.Duration
	Jitter   time.Duration
}

// Handler is invoked with the task id a job was registered for.
type Handler func(ctx context.Context, taskID string)

// Timer is the collaborator the reminder service registers jobs with.
type Timer interface {
	Add(ctx context.Context, spec Spec, taskID string) (string, error)
	Remove(ctx context.Context, jobID string) error
	List(ctx context.Context) ([]string, error)
}

// CronTimer implements Timer on robfig/cron with persisted job rows.
type CronTimer struct {
	jobs        *repository.TimerJobRepository
	cron        *cron.Cron
	log         zerolog.Logger
	fireTimeout time.Duration

	mu      sync.Mutex
	entries map[string]cron.EntryID
	handler Handler
}

func NewCronTimer(jobs *repository.TimerJobRepository, loc *time.Location, zl zerolog.Logger) *CronTimer {
	if loc == nil {
		loc = time.Local
	}
	cronLog := cron.PrintfLogger(log.New(zl.With().Str("component", "cron").Logger(), "", 0))
	return &CronTimer{
		jobs:        jobs,
		cron:        cron.New(cron.WithLocation(loc), cron.WithChain(cron.Recover(cronLog))),
		log:         zl,
		fireTimeout: 30 * time.Second,
		entries:     make(map[string]cron.EntryID),
	}
}

// Start restores persisted jobs, installs h as the fire handler and starts triggering.
func (t *CronTimer) Start(ctx context.Context, h Handler) error {
	t.mu.Lock()
	t.handler = h
	t.mu.Unlock()

	jobs, err := t.jobs.List(ctx)
	if err != nil {
		return fmt.Errorf("restore timer jobs: %w", err)
	}
	restored := 0
	for _, job := range jobs {
		if t.register(job) {
			restored++
		}
	}
	t.cron.Start()
	t.log.Info().Int("restored", restored).Int("jobs", len(jobs)).Msg("timer started")
	return nil
}

// Stop stops triggering and waits for running handlers.
func (t *CronTimer) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
}

func (t *CronTimer) Add(ctx context.Context, spec Spec, taskID string) (string, error) {
	if spec.Interval <= 0 {
		return "", fmt.Errorf("add timer job: interval must be positive, got %s", spec.Interval)
	}
	job := model.TimerJob{
		ID:       uuid.NewString(),
		TaskID:   taskID,
		Name:     spec.Name,
		StartAt:  spec.Start,
		Interval: spec.Interval,
		Jitter:   spec.Jitter,
	}
	if err := t.jobs.Create(ctx, &job); err != nil {
		return "", err
	}
	t.register(job)
	t.log.Debug().Str("job", job.ID).Str("task", taskID).Time("start", spec.Start).
		Dur("interval", spec.Interval).Msg("timer job added")
	return job.ID, nil
}

func (t *CronTimer) Remove(ctx context.Context, jobID string) error {
	t.unregister(jobID)
	if err := t.jobs.Delete(ctx, jobID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return err
	}
	return nil
}

func (t *CronTimer) List(ctx context.Context) ([]string, error) {
	jobs, err := t.jobs.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
	}
	return ids, nil
}

// Entries reports how many jobs are registered with cron.
func (t *CronTimer) Entries() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *CronTimer) register(job model.TimerJob) bool {
	if job.Interval <= 0 {
		t.log.Warn().Str("job", job.ID).Msg("skip timer job with non-positive interval")
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[job.ID]; ok {
		return false
	}
	taskID := job.TaskID
	id := t.cron.Schedule(newReminderSchedule(job.StartAt, job.Interval, job.Jitter), cron.FuncJob(func() {
		t.fire(job.ID, taskID)
	}))
	t.entries[job.ID] = id
	return true
}

func (t *CronTimer) unregister(jobID string) {
	t.mu.Lock()
	id, ok := t.entries[jobID]
	delete(t.entries, jobID)
	t.mu.Unlock()
	if ok {
		t.cron.Remove(id)
	}
}

func (t *CronTimer) fire(jobID, taskID string) {
	t.mu.Lock()
	h := t.handler
	t.mu.Unlock()
	if h == nil {
		t.log.Warn().Str("job", jobID).Msg("timer fired before a handler was installed")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.fireTimeout)
	defer cancel()
	h(ctx, taskID)
}
