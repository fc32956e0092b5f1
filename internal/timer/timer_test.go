package timer

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"group-reminder/internal/repository"
)

func newTestTimer(t *testing.T) (*CronTimer, *repository.TimerJobRepository) {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "timer.db"), zerolog.Nop())
	require.NoError(t, err)
	jobs := repository.NewTimerJobRepository(db)
	return NewCronTimer(jobs, time.UTC, zerolog.Nop()), jobs
}

func TestReminderScheduleNext(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC)
	s := newReminderSchedule(start, 3*time.Hour, 0)

	assert.Equal(t, start, s.Next(start.Add(-time.Hour)))
	assert.Equal(t, start.Add(3*time.Hour), s.Next(start))
	assert.Equal(t, start.Add(6*time.Hour), s.Next(start.Add(4*time.Hour)))
	assert.Equal(t, start.Add(9*time.Hour), s.Next(start.Add(6*time.Hour)))
}

func TestReminderScheduleJitterStaysAnchored(t *testing.T) {
	t.Parallel()
	start := time.Date(2026, 10, 19, 20, 0, 0, 0, time.UTC)
	s := newReminderSchedule(start, time.Hour, 72*time.Second)
	s.spread = func(max time.Duration) time.Duration { return max - time.Second }

	first := s.Next(start)
	assert.Equal(t, start.Add(time.Hour+71*time.Second), first)
	// Firing late by the jitter still lands on the following boundary.
	assert.Equal(t, start.Add(2*time.Hour+71*time.Second), s.Next(first))
}

func TestRandomSpreadBounds(t *testing.T) {
	t.Parallel()
	assert.Zero(t, randomSpread(0))
	for i := 0; i < 100; i++ {
		d := randomSpread(time.Minute)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.Less(t, d, time.Minute)
	}
}

func TestCronTimerAddListRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tm, _ := newTestTimer(t)

	id, err := tm.Add(ctx, Spec{Start: time.Now().Add(time.Hour), Interval: time.Hour}, "task-1")
	require.NoError(t, err)
	assert.Equal(t, 1, tm.Entries())

	ids, err := tm.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)

	require.NoError(t, tm.Remove(ctx, id))
	assert.Zero(t, tm.Entries())

	err = tm.Remove(ctx, id)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestCronTimerRejectsNonPositiveInterval(t *testing.T) {
	t.Parallel()
	tm, _ := newTestTimer(t)
	_, err := tm.Add(context.Background(), Spec{Start: time.Now()}, "task-1")
	assert.Error(t, err)
}

func TestCronTimerStartRestoresPersistedJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	first, jobs := newTestTimer(t)
	_, err := first.Add(ctx, Spec{Start: time.Now().Add(time.Hour), Interval: time.Hour}, "task-1")
	require.NoError(t, err)
	_, err = first.Add(ctx, Spec{Start: time.Now().Add(time.Hour), Interval: 2 * time.Hour}, "task-2")
	require.NoError(t, err)

	restarted := NewCronTimer(jobs, time.UTC, zerolog.Nop())
	require.NoError(t, restarted.Start(ctx, func(context.Context, string) {}))
	defer restarted.Stop()
	assert.Equal(t, 2, restarted.Entries())
}

func TestCronTimerFiresHandler(t *testing.T) {
	t.Parallel()
	tm, _ := newTestTimer(t)
	fired := make(chan string, 1)
	tm.handler = func(_ context.Context, taskID string) { fired <- taskID }
	tm.fire("job-1", "task-7")
	assert.Equal(t, "task-7", <-fired)
}
