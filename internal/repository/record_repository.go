package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"group-reminder/internal/model"
)

// RecordRepository stores completion history. Records are never updated.
type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) Create(ctx context.Context, record *model.Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

// ListByTask returns a task's records, most recent finish first.
func (r *RecordRepository) ListByTask(ctx context.Context, taskID string, limit int) ([]model.Record, error) {
	q := r.db.WithContext(ctx).Where("task_id = ?", taskID).Order("finish_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var records []model.Record
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}
