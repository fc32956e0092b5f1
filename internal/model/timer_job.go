package model

import "time"

// TimerJob is a persisted wake-up timer. The timer subsystem owns this table;
// tasks only hold the job id.
type TimerJob struct {
	ID        string `gorm:"primaryKey;size:36"`
	TaskID    string `gorm:"size:36;index;not null"`
	Name      string
	StartAt   time.Time
	Interval  time.Duration
	Jitter    time.Duration
	CreatedAt time.Time
}
