package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"group-reminder/internal/model"
	"group-reminder/internal/repository"
)

// TaskInput represents data required to create a task.
type TaskInput struct {
	Name           string
	Scope          string
	DueTime        time.Time
	RemindOffset   time.Duration
	RemindInterval time.Duration
	RecurType      model.RecurType
	RecurInterval  time.Duration
}

// HistoryEntry is a completion record with the user who was on duty.
type HistoryEntry struct {
	model.Record
	UserID string
}

// TaskService drives the task lifecycle: creation, edits, finish and skip.
type TaskService struct {
	tasks     *repository.TaskRepository
	records   *repository.RecordRepository
	rotation  *RotationService
	reminders *ReminderService
	log       zerolog.Logger
}

func NewTaskService(tasks *repository.TaskRepository, records *repository.RecordRepository, rotation *RotationService, reminders *ReminderService, log zerolog.Logger) *TaskService {
	return &TaskService{tasks: tasks, records: records, rotation: rotation, reminders: reminders, log: log}
}

// Create stores a task and schedules its first reminder.
func (s *TaskService) Create(ctx context.Context, input TaskInput) (*model.Task, error) {
	name := strings.TrimSpace(input.Name)
	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name is required", repository.ErrInvalidValue)
	case input.Scope == "":
		return nil, fmt.Errorf("%w: scope is required", repository.ErrInvalidValue)
	case input.RemindInterval <= 0:
		return nil, fmt.Errorf("%w: remind interval must be positive", repository.ErrInvalidValue)
	case !input.RecurType.Valid():
		return nil, fmt.Errorf("%w: recurrence type %d", repository.ErrInvalidValue, input.RecurType)
	case input.RecurType != model.RecurNever && input.RecurInterval <= 0:
		return nil, fmt.Errorf("%w: recurrence interval must be positive", repository.ErrInvalidValue)
	}

	task := model.Task{
		Name:           name,
		Scope:          input.Scope,
		DueTime:        input.DueTime,
		RemindOffset:   input.RemindOffset,
		RemindInterval: input.RemindInterval,
		RecurType:      input.RecurType,
		RecurInterval:  input.RecurInterval,
	}
	if err := s.tasks.Create(ctx, &task); err != nil {
		return nil, err
	}
	s.log.Info().Str("task", task.ID).Str("name", task.Name).Str("scope", task.Scope).Msg("task created")

	if err := s.reminders.Schedule(ctx, task.ID); err != nil {
		// The task exists; reconcile will schedule it later.
		s.log.Error().Err(err).Str("task", task.ID).Msg("schedule reminder for new task")
	}
	return s.tasks.Get(ctx, task.ID, false)
}

// Delete cancels the task's reminder and soft-deletes it.
func (s *TaskService) Delete(ctx context.Context, taskID string, at time.Time) error {
	if _, err := s.tasks.Get(ctx, taskID, false); err != nil {
		return err
	}
	if err := s.reminders.Remove(ctx, taskID); err != nil {
		s.log.Error().Err(err).Str("task", taskID).Msg("remove reminder of deleted task")
	}
	if err := s.tasks.SoftDelete(ctx, taskID, at); err != nil {
		return err
	}
	s.log.Info().Str("task", taskID).Msg("task deleted")
	return nil
}

func (s *TaskService) Search(ctx context.Context, f repository.TaskFilter) ([]string, error) {
	return s.tasks.Search(ctx, f)
}

func (s *TaskService) FindOne(ctx context.Context, f repository.TaskFilter) (string, error) {
	return s.tasks.FindOne(ctx, f)
}

func (s *TaskService) Get(ctx context.Context, taskID string) (*model.Task, error) {
	return s.tasks.Get(ctx, taskID, false)
}

// Set patches task attributes and refreshes the reminder when its timing changed.
func (s *TaskService) Set(ctx context.Context, taskID string, patch map[string]any) (*model.Task, error) {
	current, err := s.tasks.Get(ctx, taskID, false)
	if err != nil {
		return nil, err
	}
	if rt, ok := patch[repository.AttrRecurType].(model.RecurType); ok && rt != model.RecurNever {
		if _, set := patch[repository.AttrRecurInterval]; !set && current.RecurInterval <= 0 {
			return nil, fmt.Errorf("%w: %s needs %s", repository.ErrInvalidValue, rt, repository.AttrRecurInterval)
		}
	}

	task, err := s.tasks.SetAttributes(ctx, taskID, patch)
	if err != nil {
		return nil, err
	}
	if touchesReminder(patch) {
		if err := s.reminders.Refresh(ctx, taskID); err != nil {
			s.log.Error().Err(err).Str("task", taskID).Msg("refresh reminder")
		}
		return s.tasks.Get(ctx, taskID, false)
	}
	return task, nil
}

func touchesReminder(patch map[string]any) bool {
	for _, key := range []string{repository.AttrDueTime, repository.AttrRemindOffset, repository.AttrRemindInterval} {
		if _, ok := patch[key]; ok {
			return true
		}
	}
	return false
}

// Finish records a completion and moves the task to its next occurrence,
// or retires it when it does not recur. The returned task may be soft-deleted.
func (s *TaskService) Finish(ctx context.Context, taskID string, finishedAt time.Time) (*model.Task, error) {
	task, err := s.tasks.Get(ctx, taskID, false)
	if err != nil {
		return nil, err
	}
	tr, err := task.RecurType.Next(task.DueTime, finishedAt, task.RecurInterval)
	if err != nil {
		return nil, err
	}

	assignment, err := s.rotation.Current(ctx, task)
	if err != nil {
		return nil, err
	}
	record := model.Record{TaskID: task.ID, DueTime: task.DueTime, FinishTime: finishedAt}
	if assignment != nil {
		record.AssigneeID = &assignment.AssigneeID
	} else {
		s.log.Info().Str("task", task.ID).Msg("finished without assignee")
	}
	if err := s.records.Create(ctx, &record); err != nil {
		return nil, err
	}

	if tr.Retire {
		if err := s.reminders.Remove(ctx, task.ID); err != nil {
			s.log.Error().Err(err).Str("task", task.ID).Msg("remove reminder of retired task")
		}
		if err := s.tasks.SoftDelete(ctx, task.ID, finishedAt); err != nil {
			return nil, err
		}
		s.log.Info().Str("task", task.ID).Msg("one-off task finished and retired")
		return s.tasks.Get(ctx, task.ID, true)
	}

	if _, err := s.tasks.SetAttributes(ctx, task.ID, map[string]any{repository.AttrDueTime: tr.DueTime}); err != nil {
		return nil, err
	}
	if tr.Reschedule {
		if err := s.reminders.Refresh(ctx, task.ID); err != nil {
			s.log.Error().Err(err).Str("task", task.ID).Msg("refresh reminder after finish")
		}
	}
	if tr.Rotate && assignment != nil {
		if _, err := s.rotation.ShiftCurrent(ctx, task.ID, 1); err != nil {
			return nil, err
		}
	}

	updated, err := s.tasks.Get(ctx, task.ID, false)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("task", task.ID).Time("due", updated.DueTime).Msg("task finished")
	return updated, nil
}

// Skip passes the turn by offset without touching the due time. Tasks with
// fewer than two assignees are left alone and report false.
func (s *TaskService) Skip(ctx context.Context, taskID string, offset int) (bool, error) {
	if _, err := s.tasks.Get(ctx, taskID, false); err != nil {
		return false, err
	}
	count, err := s.rotation.Count(ctx, taskID)
	if err != nil {
		return false, err
	}
	if count < 2 {
		s.log.Warn().Str("task", taskID).Int("assignees", count).Msg("task with fewer than two assignees cannot be skipped")
		return false, nil
	}
	next, err := s.rotation.ShiftCurrent(ctx, taskID, offset)
	if err != nil {
		return false, err
	}
	s.log.Info().Str("task", taskID).Int("current", next).Msg("task skipped")
	return true, nil
}

// Assign appends external users to the task's rotation, registering unknown users.
func (s *TaskService) Assign(ctx context.Context, taskID string, userIDs []string) (int, error) {
	ids := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		id, err := s.rotation.AddAssignee(ctx, userID)
		if err != nil {
			return 0, err
		}
		ids = append(ids, id)
	}
	return s.rotation.Append(ctx, taskID, ids)
}

// Unassign removes external users from the task's rotation. Users never seen are logged.
func (s *TaskService) Unassign(ctx context.Context, taskID string, userIDs []string) (int, error) {
	ids := make([]string, 0, len(userIDs))
	for _, userID := range userIDs {
		id, err := s.rotation.FindAssignee(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			s.log.Warn().Str("task", taskID).Str("user", userID).Msg("unknown user, not unassigned")
			continue
		}
		if err != nil {
			return 0, err
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return s.rotation.Remove(ctx, taskID, ids)
}

// History returns the task's completion records, newest first.
func (s *TaskService) History(ctx context.Context, taskID string, limit int) ([]HistoryEntry, error) {
	records, err := s.records.ListByTask(ctx, taskID, limit)
	if err != nil {
		return nil, err
	}
	var assigneeIDs []string
	for _, r := range records {
		if r.AssigneeID != nil {
			assigneeIDs = append(assigneeIDs, *r.AssigneeID)
		}
	}
	users, err := s.rotation.UserIDs(ctx, assigneeIDs)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(records))
	for _, r := range records {
		entry := HistoryEntry{Record: r}
		if r.AssigneeID != nil {
			entry.UserID = users[*r.AssigneeID]
		}
		out = append(out, entry)
	}
	return out, nil
}
