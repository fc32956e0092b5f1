package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"group-reminder/internal/model"
)

// TimerJobRepository persists timer jobs for the cron-backed timer.
type TimerJobRepository struct {
	db *gorm.DB
}

func NewTimerJobRepository(db *gorm.DB) *TimerJobRepository {
	return &TimerJobRepository{db: db}
}

func (r *TimerJobRepository) Create(ctx context.Context, job *model.TimerJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("create timer job: %w", err)
	}
	return nil
}

// Delete removes a job row, returning ErrNotFound if it was already gone.
func (r *TimerJobRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.TimerJob{})
	if res.Error != nil {
		return fmt.Errorf("delete timer job: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *TimerJobRepository) Get(ctx context.Context, id string) (*model.TimerJob, error) {
	var job model.TimerJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get timer job: %w", err)
	}
	return &job, nil
}

func (r *TimerJobRepository) List(ctx context.Context) ([]model.TimerJob, error) {
	var jobs []model.TimerJob
	if err := r.db.WithContext(ctx).Order("created_at ASC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list timer jobs: %w", err)
	}
	return jobs, nil
}
