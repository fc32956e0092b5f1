package model

import "time"

// SoftDelete marks a row inactive without removing it. Active rows keep the
// zero DeletedAt so that (name, scope, is_deleted, deleted_at) stays unique
// among them while deleted rows never collide.
type SoftDelete struct {
	IsDeleted bool `gorm:"index;default:false"`
	DeletedAt time.Time
}

func (s *SoftDelete) MarkDeleted(at time.Time) {
	s.IsDeleted = true
	s.DeletedAt = at
}

func (s *SoftDelete) Restore() {
	s.IsDeleted = false
	s.DeletedAt = time.Time{}
}
