package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"group-reminder/internal/model"
)

// Rotation is a task's ordered assignee list as read inside one unit of work.
type Rotation struct {
	Task        model.Task
	Assignments []model.Assignment
}

// RotationChange is written back by UpdateRotation in a single transaction.
type RotationChange struct {
	Delete []string       // assignment ids
	Orders map[string]int // assignment id -> new order
	Insert []model.Assignment
	// Current replaces the task's rotation pointer when SetCurrent is true.
	Current    *int
	SetCurrent bool
}

// Empty reports whether the change writes nothing.
func (c RotationChange) Empty() bool {
	return len(c.Delete) == 0 && len(c.Orders) == 0 && len(c.Insert) == 0 && !c.SetCurrent
}

// AssignmentRepository handles the rotation rows of tasks.
type AssignmentRepository struct {
	db *gorm.DB
}

func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// List returns a task's assignments ordered by position.
func (r *AssignmentRepository) List(ctx context.Context, taskID string) ([]model.Assignment, error) {
	return listAssignments(r.db.WithContext(ctx), taskID)
}

// UserIDs returns the external user ids of a task's rotation in order.
func (r *AssignmentRepository) UserIDs(ctx context.Context, taskID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.Assignee{}).
		Joins("JOIN assignments ON assignments.assignee_id = assignees.id").
		Where("assignments.task_id = ?", taskID).
		Order("assignments.position ASC").
		Pluck("assignees.user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list assignee user ids: %w", err)
	}
	return ids, nil
}

// At returns the assignment at position order, or ErrNotFound.
func (r *AssignmentRepository) At(ctx context.Context, taskID string, order int) (*model.Assignment, error) {
	var a model.Assignment
	if err := r.db.WithContext(ctx).Where("task_id = ? AND position = ?", taskID, order).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find assignment: %w", err)
	}
	return &a, nil
}

// UpdateRotation reads an active task with its assignments, lets fn compute a change and
// writes it back atomically. Deletions are applied before order updates so that
// compaction never collides with the (task, order) unique index.
func (r *AssignmentRepository) UpdateRotation(ctx context.Context, taskID string, fn func(Rotation) (RotationChange, error)) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task model.Task
		if err := tx.Where("id = ? AND is_deleted = ?", taskID, false).First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("task %s: %w", taskID, ErrNotFound)
			}
			return fmt.Errorf("get task: %w", err)
		}
		assignments, err := listAssignments(tx, taskID)
		if err != nil {
			return err
		}

		change, err := fn(Rotation{Task: task, Assignments: assignments})
		if err != nil {
			return err
		}
		return applyRotationChange(tx, taskID, change)
	})
}

func applyRotationChange(tx *gorm.DB, taskID string, change RotationChange) error {
	if len(change.Delete) > 0 {
		if err := tx.Where("task_id = ? AND id IN ?", taskID, change.Delete).Delete(&model.Assignment{}).Error; err != nil {
			return fmt.Errorf("delete assignments: %w", err)
		}
	}

	ids := make([]string, 0, len(change.Orders))
	for id := range change.Orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return change.Orders[ids[i]] < change.Orders[ids[j]] })
	for _, id := range ids {
		if err := tx.Model(&model.Assignment{}).Where("id = ?", id).
			Update("position", change.Orders[id]).Error; err != nil {
			return fmt.Errorf("reorder assignment: %w", err)
		}
	}

	for i := range change.Insert {
		a := change.Insert[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.TaskID = taskID
		if err := tx.Create(&a).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("assign %s: %w", a.AssigneeID, ErrDuplicateAssignment)
			}
			return fmt.Errorf("create assignment: %w", err)
		}
	}

	if change.SetCurrent {
		if err := tx.Model(&model.Task{}).Where("id = ?", taskID).
			Update("current_order", change.Current).Error; err != nil {
			return fmt.Errorf("set current order: %w", err)
		}
	}
	return nil
}

func listAssignments(db *gorm.DB, taskID string) ([]model.Assignment, error) {
	var assignments []model.Assignment
	if err := db.Where("task_id = ?", taskID).Order("position ASC").Find(&assignments).Error; err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return assignments, nil
}
