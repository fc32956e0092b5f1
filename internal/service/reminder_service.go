package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"group-reminder/internal/model"
	"group-reminder/internal/repository"
	"group-reminder/internal/timer"
)

// DefaultJitterRatio spreads repeated reminders by a fraction of their interval.
const DefaultJitterRatio = 0.02

// Delivery sends a rendered message to the chat a task belongs to.
type Delivery interface {
	Deliver(ctx context.Context, scope, text string) error
}

// ReconcilePlan lists the timer jobs to cancel and the tasks to schedule again.
type ReconcilePlan struct {
	Cancel     []string
	Reschedule []string
}

// ReminderService keeps one timer job per active task and renders the
// notification when a job fires.
type ReminderService struct {
	tasks     *repository.TaskRepository
	timer     timer.Timer
	describer *Describer
	delivery  Delivery
	jitter    float64
	log       zerolog.Logger
	now       func() time.Time
}

func NewReminderService(tasks *repository.TaskRepository, t timer.Timer, describer *Describer, delivery Delivery, jitterRatio float64, log zerolog.Logger) *ReminderService {
	if jitterRatio < 0 {
		jitterRatio = 0
	}
	return &ReminderService{
		tasks:     tasks,
		timer:     t,
		describer: describer,
		delivery:  delivery,
		jitter:    jitterRatio,
		log:       log,
		now:       time.Now,
	}
}

// Schedule registers a reminder job for the task and stores its handle.
// The first reminder is at due+offset, then every remind interval.
func (s *ReminderService) Schedule(ctx context.Context, taskID string) error {
	task, err := s.tasks.Get(ctx, taskID, false)
	if err != nil {
		return err
	}
	spec := timer.Spec{
		Name:     fmt.Sprintf("remind %s (%s)", task.Name, task.ID),
		Start:    task.RemindStart(),
		Interval: task.RemindInterval,
		Jitter:   time.Duration(float64(task.RemindInterval) * s.jitter),
	}
	jobID, err := s.timer.Add(ctx, spec, task.ID)
	if err != nil {
		return fmt.Errorf("schedule reminder: %w", err)
	}
	if err := s.tasks.SetTimerJob(ctx, task.ID, &jobID); err != nil {
		// The job stays registered without a reference until the next reconcile.
		return err
	}
	s.log.Info().Str("task", task.ID).Str("job", jobID).Time("start", spec.Start).Dur("interval", spec.Interval).Msg("reminder scheduled")
	return nil
}

// Remove cancels the task's reminder job. A missing handle or a job unknown to
// the timer store is logged and tolerated.
func (s *ReminderService) Remove(ctx context.Context, taskID string) error {
	task, err := s.tasks.Get(ctx, taskID, true)
	if err != nil {
		return err
	}
	if task.TimerJobID == nil {
		s.log.Warn().Str("task", task.ID).Msg("task has no reminder job to remove")
		return nil
	}
	jobID := *task.TimerJobID
	if err := s.timer.Remove(ctx, jobID); err != nil {
		if !errors.Is(err, timer.ErrJobNotFound) {
			return fmt.Errorf("remove reminder: %w", err)
		}
		s.log.Warn().Str("task", task.ID).Str("job", jobID).Msg("reminder job already gone from timer store")
	}
	if err := s.tasks.SetTimerJob(ctx, task.ID, nil); err != nil {
		return err
	}
	s.log.Info().Str("task", task.ID).Str("job", jobID).Msg("reminder removed")
	return nil
}

// Refresh replaces the task's reminder job after its timing changed.
func (s *ReminderService) Refresh(ctx context.Context, taskID string) error {
	if err := s.Remove(ctx, taskID); err != nil {
		return err
	}
	return s.Schedule(ctx, taskID)
}

// Reconcile cancels jobs no active task references and schedules active tasks
// whose job is missing. Running it again right away changes nothing.
//
// The plan is built from two reads that are not atomic, so every candidate is
// checked against the store again before acting: a task created or refreshed
// between the reads keeps its job. The returned plan lists what was acted on.
func (s *ReminderService) Reconcile(ctx context.Context) (ReconcilePlan, error) {
	tasks, err := s.tasks.ListActive(ctx)
	if err != nil {
		return ReconcilePlan{}, err
	}
	jobs, err := s.timer.List(ctx)
	if err != nil {
		return ReconcilePlan{}, fmt.Errorf("list timer jobs: %w", err)
	}

	snapshot := make(map[string]*string, len(tasks))
	for _, task := range tasks {
		snapshot[task.ID] = task.TimerJobID
	}

	plan := PlanReconcile(tasks, jobs)
	var (
		done ReconcilePlan
		errs []error
	)
	for _, jobID := range plan.Cancel {
		referenced, err := s.tasks.ReferencesJob(ctx, jobID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if referenced {
			s.log.Debug().Str("job", jobID).Msg("job was claimed during reconcile, kept")
			continue
		}
		if err := s.timer.Remove(ctx, jobID); err != nil && !errors.Is(err, timer.ErrJobNotFound) {
			errs = append(errs, fmt.Errorf("cancel orphan job %s: %w", jobID, err))
			continue
		}
		done.Cancel = append(done.Cancel, jobID)
		s.log.Warn().Str("job", jobID).Msg("orphan reminder job cancelled")
	}
	for _, taskID := range plan.Reschedule {
		current, err := s.tasks.Get(ctx, taskID, false)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !sameJob(current.TimerJobID, snapshot[taskID]) {
			s.log.Debug().Str("task", taskID).Msg("task was rescheduled during reconcile, kept")
			continue
		}
		if err := s.Schedule(ctx, taskID); err != nil {
			errs = append(errs, fmt.Errorf("reschedule task %s: %w", taskID, err))
			continue
		}
		done.Reschedule = append(done.Reschedule, taskID)
		s.log.Warn().Str("task", taskID).Msg("task without reminder job rescheduled")
	}
	return done, errors.Join(errs...)
}

func sameJob(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// PlanReconcile compares active tasks with the jobs known to the timer store.
func PlanReconcile(tasks []model.Task, jobs []string) ReconcilePlan {
	known := make(map[string]bool, len(jobs))
	for _, id := range jobs {
		known[id] = true
	}
	referenced := make(map[string]bool, len(tasks))
	var plan ReconcilePlan
	for _, task := range tasks {
		if task.IsDeleted {
			continue
		}
		if task.TimerJobID == nil || !known[*task.TimerJobID] {
			plan.Reschedule = append(plan.Reschedule, task.ID)
			continue
		}
		referenced[*task.TimerJobID] = true
	}
	seen := make(map[string]bool, len(jobs))
	for _, id := range jobs {
		if referenced[id] || seen[id] {
			continue
		}
		seen[id] = true
		plan.Cancel = append(plan.Cancel, id)
	}
	return plan
}

// Fire is the timer handler: it reminds the task's chat if the task is still active.
func (s *ReminderService) Fire(ctx context.Context, taskID string) {
	task, err := s.tasks.Get(ctx, taskID, false)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warn().Str("task", taskID).Msg("reminder fired for missing or deleted task")
			return
		}
		s.log.Error().Err(err).Str("task", taskID).Msg("load task for reminder")
		return
	}
	s.notify(ctx, task)
}

// RemindAll sends the notification of every active task in scope right away.
func (s *ReminderService) RemindAll(ctx context.Context, scope string) (int, error) {
	ids, err := s.tasks.Search(ctx, repository.TaskFilter{Scope: scope})
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, id := range ids {
		task, err := s.tasks.Get(ctx, id, false)
		if err != nil {
			s.log.Warn().Err(err).Str("task", id).Msg("skip reminder")
			continue
		}
		if s.notify(ctx, task) {
			sent++
		}
	}
	return sent, nil
}

func (s *ReminderService) notify(ctx context.Context, task *model.Task) bool {
	text, err := s.describer.Notification(ctx, task, s.now())
	if err != nil {
		s.log.Error().Err(err).Str("task", task.ID).Msg("render reminder")
		return false
	}
	if s.delivery == nil {
		s.log.Warn().Str("task", task.ID).Msg("no delivery configured, reminder dropped")
		return false
	}
	if err := s.delivery.Deliver(ctx, task.Scope, text); err != nil {
		s.log.Error().Err(err).Str("task", task.ID).Str("scope", task.Scope).Msg("deliver reminder")
		return false
	}
	s.log.Debug().Str("task", task.ID).Str("scope", task.Scope).Msg("reminder delivered")
	return true
}
