package model

import (
	"fmt"
	"strings"
	"time"
)

// RecurType selects how a task's next due time follows a finish.
type RecurType int

const (
	// RecurNever tasks are retired on finish.
	RecurNever RecurType = iota
	// RecurOnFinish tasks are due again one interval after completion.
	RecurOnFinish
	// RecurRegular tasks are due again one interval after the previous due time.
	RecurRegular
)

func (r RecurType) String() string {
	switch r {
	case RecurNever:
		return "Never"
	case RecurOnFinish:
		return "OnFinish"
	case RecurRegular:
		return "Regular"
	default:
		return fmt.Sprintf("RecurType(%d)", int(r))
	}
}

// Valid reports whether r is one of the known recurrence kinds.
func (r RecurType) Valid() bool {
	return r >= RecurNever && r <= RecurRegular
}

// ParseRecurType accepts the English names (case-insensitive) and their Chinese aliases.
func ParseRecurType(raw string) (RecurType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "never", "none", "不重复":
		return RecurNever, nil
	case "onfinish", "on_finish", "finish", "完成后":
		return RecurOnFinish, nil
	case "regular", "every", "定期":
		return RecurRegular, nil
	default:
		return 0, fmt.Errorf("unknown recurrence type %q", raw)
	}
}

// Transition is the outcome of finishing a task.
type Transition struct {
	// Retire soft-deletes the task and cancels its timer.
	Retire bool
	// DueTime is the next due time; meaningful unless Retire is set.
	DueTime    time.Time
	Reschedule bool
	// Rotate advances the rotation by one when the task has a current assignee.
	Rotate bool
}

type transitionFunc func(due, finishedAt time.Time, interval time.Duration) Transition

var transitions = map[RecurType]transitionFunc{
	RecurNever: func(due, _ time.Time, _ time.Duration) Transition {
		return Transition{Retire: true, DueTime: due}
	},
	RecurOnFinish: func(_, finishedAt time.Time, interval time.Duration) Transition {
		return Transition{DueTime: finishedAt.Add(interval), Reschedule: true, Rotate: true}
	},
	RecurRegular: func(due, _ time.Time, interval time.Duration) Transition {
		return Transition{DueTime: due.Add(interval), Reschedule: true, Rotate: true}
	},
}

// Next computes the finish transition for a task due at due and finished at finishedAt.
func (r RecurType) Next(due, finishedAt time.Time, interval time.Duration) (Transition, error) {
	fn, ok := transitions[r]
	if !ok {
		return Transition{}, fmt.Errorf("finish: %s", r)
	}
	return fn(due, finishedAt, interval), nil
}
