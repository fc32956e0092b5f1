package model

import "time"

// Task is a recurring, assignable reminder bound to one chat scope.
//
// DueTime, RemindOffset and RemindInterval drive the timer job referenced by
// TimerJobID; any change to them must be followed by a reminder refresh.
type Task struct {
	ID             string `gorm:"primaryKey;size:36"`
	Name           string `gorm:"not null"`
	DueTime        time.Time
	RemindOffset   time.Duration
	RemindInterval time.Duration
	RecurType      RecurType `gorm:"default:0"`
	RecurInterval  time.Duration
	Scope          string  `gorm:"index;not null"`
	TimerJobID     *string `gorm:"size:36"`
	CurrentOrder   *int
	SoftDelete     `gorm:"embedded"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasCurrent reports whether the rotation pointer is set.
func (t *Task) HasCurrent() bool {
	return t.CurrentOrder != nil
}

// RemindStart is the first reminder fire time.
func (t *Task) RemindStart() time.Time {
	return t.DueTime.Add(t.RemindOffset)
}
