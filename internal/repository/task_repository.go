package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"group-reminder/internal/model"
)

// TaskFilter narrows Search. Empty strings do not filter.
type TaskFilter struct {
	Name           string
	Scope          string
	UserID         string
	IncludeDeleted bool
}

// Patch keys accepted by SetAttributes.
const (
	AttrName           = "name"
	AttrDueTime        = "due_time"
	AttrRemindOffset   = "remind_offset"
	AttrRemindInterval = "remind_interval"
	AttrRecurType      = "recur_type"
	AttrRecurInterval  = "recur_interval"
)

// TaskRepository handles CRUD for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Search returns the ids of tasks matching every non-empty filter field, oldest first.
func (r *TaskRepository) Search(ctx context.Context, f TaskFilter) ([]string, error) {
	q := r.db.WithContext(ctx).Model(&model.Task{})
	if f.Name != "" {
		q = q.Where("tasks.name = ?", f.Name)
	}
	if f.Scope != "" {
		q = q.Where("tasks.scope = ?", f.Scope)
	}
	if !f.IncludeDeleted {
		q = q.Where("tasks.is_deleted = ?", false)
	}
	if f.UserID != "" {
		q = q.Joins("JOIN assignments ON assignments.task_id = tasks.id").
			Joins("JOIN assignees ON assignees.id = assignments.assignee_id").
			Where("assignees.user_id = ?", f.UserID)
	}

	var ids []string
	if err := q.Order("tasks.created_at ASC").Pluck("tasks.id", &ids).Error; err != nil {
		return nil, fmt.Errorf("search tasks: %w", err)
	}
	return ids, nil
}

// FindOne resolves a filter that is expected to match exactly one task.
func (r *TaskRepository) FindOne(ctx context.Context, f TaskFilter) (string, error) {
	ids, err := r.Search(ctx, f)
	if err != nil {
		return "", err
	}
	switch len(ids) {
	case 0:
		return "", ErrNotFound
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("%w: %d tasks", ErrAmbiguousMatch, len(ids))
	}
}

// Get loads a task by id. Soft-deleted tasks are only returned with includeDeleted.
func (r *TaskRepository) Get(ctx context.Context, id string, includeDeleted bool) (*model.Task, error) {
	q := r.db.WithContext(ctx).Where("id = ?", id)
	if !includeDeleted {
		q = q.Where("is_deleted = ?", false)
	}
	var task model.Task
	if err := q.First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &task, nil
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("create task %q: %w", task.Name, ErrDuplicateName)
		}
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// ListActive returns every task that is not soft-deleted.
func (r *TaskRepository) ListActive(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).Where("is_deleted = ?", false).Order("created_at ASC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// SetAttributes applies a patch keyed by the Attr* constants and returns the updated task.
// A time.Duration due_time shifts the current due time; a time.Time replaces it.
func (r *TaskRepository) SetAttributes(ctx context.Context, id string, patch map[string]any) (*model.Task, error) {
	task, err := r.Get(ctx, id, false)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]any, len(patch))
	for key, value := range patch {
		column, v, err := patchValue(task, key, value)
		if err != nil {
			return nil, err
		}
		updates[column] = v
	}
	if len(updates) == 0 {
		return task, nil
	}

	if err := r.db.WithContext(ctx).Model(task).Updates(updates).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("rename task: %w", ErrDuplicateName)
		}
		return nil, fmt.Errorf("update task: %w", err)
	}
	return r.Get(ctx, id, false)
}

func patchValue(task *model.Task, key string, value any) (string, any, error) {
	switch key {
	case AttrName:
		if v, ok := value.(string); ok && v != "" {
			return key, v, nil
		}
	case AttrDueTime:
		switch v := value.(type) {
		case time.Duration:
			return key, task.DueTime.Add(v), nil
		case time.Time:
			return key, v, nil
		}
	case AttrRemindOffset:
		if v, ok := value.(time.Duration); ok {
			return key, v, nil
		}
	case AttrRemindInterval, AttrRecurInterval:
		if v, ok := value.(time.Duration); ok && v > 0 {
			return key, v, nil
		}
	case AttrRecurType:
		if v, ok := value.(model.RecurType); ok && v.Valid() {
			return key, v, nil
		}
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrInvalidAttribute, key)
	}
	return "", nil, fmt.Errorf("%w: %s=%v (%T)", ErrInvalidValue, key, value, value)
}

// SetTimerJob stores (or clears, with nil) the timer job reference of a task.
func (r *TaskRepository) SetTimerJob(ctx context.Context, id string, jobID *string) error {
	if err := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id).
		Update("timer_job_id", jobID).Error; err != nil {
		return fmt.Errorf("set timer job: %w", err)
	}
	return nil
}

// ReferencesJob reports whether an active task currently points at jobID.
func (r *TaskRepository) ReferencesJob(ctx context.Context, jobID string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("timer_job_id = ? AND is_deleted = ?", jobID, false).Count(&n).Error; err != nil {
		return false, fmt.Errorf("count job references: %w", err)
	}
	return n > 0, nil
}

// SetCurrentOrder moves the rotation pointer of a task.
func (r *TaskRepository) SetCurrentOrder(ctx context.Context, id string, order *int) error {
	if err := r.db.WithContext(ctx).Model(&model.Task{}).Where("id = ?", id).
		Update("current_order", order).Error; err != nil {
		return fmt.Errorf("set current order: %w", err)
	}
	return nil
}

func (r *TaskRepository) SoftDelete(ctx context.Context, id string, at time.Time) error {
	task, err := r.Get(ctx, id, false)
	if err != nil {
		return err
	}
	task.MarkDeleted(at)
	if err := r.db.WithContext(ctx).Model(task).Select("is_deleted", "deleted_at").Updates(task).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// Restore reactivates a soft-deleted task. It fails with ErrDuplicateName when
// an active task took the name in the meantime.
func (r *TaskRepository) Restore(ctx context.Context, id string) error {
	task, err := r.Get(ctx, id, true)
	if err != nil {
		return err
	}
	task.Restore()
	if err := r.db.WithContext(ctx).Model(task).Select("is_deleted", "deleted_at").Updates(task).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("restore task %q: %w", task.Name, ErrDuplicateName)
		}
		return fmt.Errorf("restore task: %w", err)
	}
	return nil
}
