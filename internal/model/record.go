package model

import "time"

// Record is the immutable history entry written when a task is finished.
type Record struct {
	ID         string  `gorm:"primaryKey;size:36"`
	TaskID     string  `gorm:"size:36;index;not null"`
	AssigneeID *string `gorm:"size:36"`
	DueTime    time.Time
	FinishTime time.Time
}
