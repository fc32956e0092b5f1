package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecurTypeNext(t *testing.T) {
	t.Parallel()
	due := time.Date(2026, 10, 20, 20, 0, 0, 0, time.UTC)
	late := due.Add(30 * time.Hour)
	interval := 48 * time.Hour

	tests := []struct {
		name string
		kind RecurType
		want Transition
	}{
		{name: "never retires", kind: RecurNever, want: Transition{Retire: true, DueTime: due}},
		{name: "on finish anchors to completion", kind: RecurOnFinish, want: Transition{DueTime: late.Add(interval), Reschedule: true, Rotate: true}},
		{name: "regular anchors to previous due", kind: RecurRegular, want: Transition{DueTime: due.Add(interval), Reschedule: true, Rotate: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.kind.Next(due, late, interval)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecurTypeNextUnknown(t *testing.T) {
	t.Parallel()
	_, err := RecurType(7).Next(time.Now(), time.Now(), time.Hour)
	assert.Error(t, err)
}

func TestParseRecurType(t *testing.T) {
	t.Parallel()
	for raw, want := range map[string]RecurType{
		"Never":    RecurNever,
		"onfinish": RecurOnFinish,
		"REGULAR":  RecurRegular,
		"定期":       RecurRegular,
	} {
		got, err := ParseRecurType(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParseRecurType("weekly")
	assert.Error(t, err)
}

func TestSoftDelete(t *testing.T) {
	t.Parallel()
	var task Task
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	task.MarkDeleted(at)
	assert.True(t, task.IsDeleted)
	assert.Equal(t, at, task.DeletedAt)
	task.Restore()
	assert.False(t, task.IsDeleted)
	assert.True(t, task.DeletedAt.IsZero())
}
