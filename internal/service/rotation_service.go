package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"group-reminder/internal/model"
	"group-reminder/internal/repository"
)

// ErrNoAssignees is returned when rotating a task without assignees.
var ErrNoAssignees = errors.New("task has no assignees")

// RotationService keeps each task's assignee list gap-free and its current pointer valid.
type RotationService struct {
	assignments *repository.AssignmentRepository
	assignees   *repository.AssigneeRepository
	log         zerolog.Logger
}

func NewRotationService(assignments *repository.AssignmentRepository, assignees *repository.AssigneeRepository, log zerolog.Logger) *RotationService {
	return &RotationService{assignments: assignments, assignees: assignees, log: log}
}

// AddAssignee returns the assignee id for an external user, creating it if needed.
func (s *RotationService) AddAssignee(ctx context.Context, userID string) (string, error) {
	return s.assignees.Add(ctx, userID)
}

// Append adds assignees to the end of a task's rotation. Assignees already on
// the rotation are skipped. Each assignee is committed on its own.
func (s *RotationService) Append(ctx context.Context, taskID string, assigneeIDs []string) (int, error) {
	added := 0
	for _, assigneeID := range assigneeIDs {
		err := s.assignments.UpdateRotation(ctx, taskID, func(rot repository.Rotation) (repository.RotationChange, error) {
			for _, a := range rot.Assignments {
				if a.AssigneeID == assigneeID {
					return repository.RotationChange{}, repository.ErrDuplicateAssignment
				}
			}
			change := repository.RotationChange{
				Insert: []model.Assignment{{AssigneeID: assigneeID, Order: len(rot.Assignments)}},
			}
			if rot.Task.CurrentOrder == nil {
				zero := 0
				change.Current, change.SetCurrent = &zero, true
			}
			return change, nil
		})
		switch {
		case err == nil:
			added++
		case errors.Is(err, repository.ErrDuplicateAssignment):
			s.log.Warn().Str("task", taskID).Str("assignee", assigneeID).Msg("assignee already assigned, skipped")
		default:
			return added, fmt.Errorf("append assignee: %w", err)
		}
	}
	return added, nil
}

// Remove drops assignees from a task's rotation, compacting orders and keeping
// the current pointer on a surviving assignment. Unknown assignees are logged.
func (s *RotationService) Remove(ctx context.Context, taskID string, assigneeIDs []string) (int, error) {
	removed := 0
	err := s.assignments.UpdateRotation(ctx, taskID, func(rot repository.Rotation) (repository.RotationChange, error) {
		wanted := make(map[string]bool, len(assigneeIDs))
		for _, id := range assigneeIDs {
			wanted[id] = true
		}
		removedOrders := make(map[int]bool)
		for _, a := range rot.Assignments {
			if wanted[a.AssigneeID] {
				removedOrders[a.Order] = true
				delete(wanted, a.AssigneeID)
			}
		}
		if len(wanted) > 0 {
			missing := make([]string, 0, len(wanted))
			for id := range wanted {
				missing = append(missing, id)
			}
			s.log.Warn().Str("task", taskID).Strs("assignees", missing).Msg("assignees not assigned to task")
		}
		if len(removedOrders) == 0 {
			return repository.RotationChange{}, nil
		}

		survivors, current := ReindexAfterRemoval(rot.Assignments, rot.Task.CurrentOrder, removedOrders)
		change := repository.RotationChange{
			Orders:     make(map[string]int, len(survivors)),
			Current:    current,
			SetCurrent: true,
		}
		kept := make(map[string]bool, len(survivors))
		for _, a := range survivors {
			kept[a.ID] = true
			change.Orders[a.ID] = a.Order
		}
		for _, a := range rot.Assignments {
			if !kept[a.ID] {
				change.Delete = append(change.Delete, a.ID)
			}
		}
		removed = len(change.Delete)
		return change, nil
	})
	if err != nil {
		return 0, fmt.Errorf("remove assignees: %w", err)
	}
	return removed, nil
}

// ShiftCurrent moves the current pointer by offset, wrapping around the rotation.
func (s *RotationService) ShiftCurrent(ctx context.Context, taskID string, offset int) (int, error) {
	var next int
	err := s.assignments.UpdateRotation(ctx, taskID, func(rot repository.Rotation) (repository.RotationChange, error) {
		count := len(rot.Assignments)
		if count == 0 {
			return repository.RotationChange{}, ErrNoAssignees
		}
		current := 0
		if rot.Task.CurrentOrder != nil {
			current = *rot.Task.CurrentOrder
		}
		next = shiftIndex(current, offset, count)
		s.log.Debug().Str("task", taskID).Int("from", current).Int("to", next).Int("count", count).Msg("shift current assignee")
		return repository.RotationChange{Current: &next, SetCurrent: true}, nil
	})
	if err != nil {
		return 0, fmt.Errorf("shift current assignee: %w", err)
	}
	return next, nil
}

// Current returns the assignment whose turn it is, or nil when the task has no rotation.
func (s *RotationService) Current(ctx context.Context, task *model.Task) (*model.Assignment, error) {
	if task.CurrentOrder == nil {
		return nil, nil
	}
	a, err := s.assignments.At(ctx, task.ID, *task.CurrentOrder)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return a, err
}

// Count returns the number of assignees on a task's rotation.
func (s *RotationService) Count(ctx context.Context, taskID string) (int, error) {
	assignments, err := s.assignments.List(ctx, taskID)
	if err != nil {
		return 0, err
	}
	return len(assignments), nil
}

// ReindexAfterRemoval drops the assignments whose order is in removed and
// closes the gaps. The current index moves back once for every removed order
// at or before it, so a surviving current assignee keeps the turn and a removed
// one hands it to the survivor just before it. The result wraps into the
// surviving range, or is nil when nothing survives.
func ReindexAfterRemoval(assignments []model.Assignment, current *int, removed map[int]bool) ([]model.Assignment, *int) {
	survivors := make([]model.Assignment, 0, len(assignments))
	shift := 0
	offset := 0
	for _, a := range assignments {
		if removed[a.Order] {
			offset++
			if current != nil && a.Order <= *current {
				shift++
			}
			continue
		}
		a.Order -= offset
		survivors = append(survivors, a)
	}

	if len(survivors) == 0 {
		return survivors, nil
	}
	if current == nil {
		return survivors, nil
	}
	cur := shiftIndex(*current, -shift, len(survivors))
	return survivors, &cur
}

func shiftIndex(current, offset, count int) int {
	return ((current+offset)%count + count) % count
}

// FindAssignee returns the assignee id of a known external user.
func (s *RotationService) FindAssignee(ctx context.Context, userID string) (string, error) {
	return s.assignees.FindByUserID(ctx, userID)
}

// UserIDs maps assignee ids to external user ids.
func (s *RotationService) UserIDs(ctx context.Context, assigneeIDs []string) (map[string]string, error) {
	return s.assignees.UserIDs(ctx, assigneeIDs)
}
