package model

import "time"

// Assignee is a chat user that can take turns on tasks.
type Assignee struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time
}

// Assignment places an assignee at a position of a task's rotation.
type Assignment struct {
	ID         string `gorm:"primaryKey;size:36"`
	TaskID     string `gorm:"size:36;not null;uniqueIndex:idx_assignment_task_order;uniqueIndex:idx_assignment_task_assignee"`
	AssigneeID string `gorm:"size:36;not null;uniqueIndex:idx_assignment_task_assignee"`
	Order      int    `gorm:"column:position;not null;uniqueIndex:idx_assignment_task_order"`
	CreatedAt  time.Time
}
