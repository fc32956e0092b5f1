package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"group-reminder/internal/model"
)

// AssigneeRepository handles CRUD for assignees.
type AssigneeRepository struct {
	db *gorm.DB
}

func NewAssigneeRepository(db *gorm.DB) *AssigneeRepository {
	return &AssigneeRepository{db: db}
}

// Add returns the id of the assignee with userID, creating it on first sight.
func (r *AssigneeRepository) Add(ctx context.Context, userID string) (string, error) {
	var assignee model.Assignee
	db := r.db.WithContext(ctx)
	err := db.Where("user_id = ?", userID).First(&assignee).Error
	switch {
	case err == nil:
		return assignee.ID, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		assignee = model.Assignee{ID: uuid.NewString(), UserID: userID}
		if err := db.Create(&assignee).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// Lost a race with another writer; the row exists now.
				return r.Add(ctx, userID)
			}
			return "", fmt.Errorf("create assignee: %w", err)
		}
		return assignee.ID, nil
	default:
		return "", fmt.Errorf("find assignee: %w", err)
	}
}

// FindByUserID returns the assignee id for userID or ErrNotFound.
func (r *AssigneeRepository) FindByUserID(ctx context.Context, userID string) (string, error) {
	var assignee model.Assignee
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&assignee).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("assignee %s: %w", userID, ErrNotFound)
		}
		return "", fmt.Errorf("find assignee: %w", err)
	}
	return assignee.ID, nil
}

// UserIDs maps assignee ids to their external user ids.
func (r *AssigneeRepository) UserIDs(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var assignees []model.Assignee
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&assignees).Error; err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	for _, a := range assignees {
		out[a.ID] = a.UserID
	}
	return out, nil
}
