package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"group-reminder/internal/model"
	"group-reminder/internal/repository"
	"group-reminder/internal/timer"
)

type memJob struct {
	spec   timer.Spec
	taskID string
}

// memTimer is an in-memory timer store.
type memTimer struct {
	mu   sync.Mutex
	seq  int
	jobs map[string]memJob
}

func newMemTimer() *memTimer {
	return &memTimer{jobs: make(map[string]memJob)}
}

func (m *memTimer) Add(_ context.Context, spec timer.Spec, taskID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := fmt.Sprintf("job-%03d", m.seq)
	m.jobs[id] = memJob{spec: spec, taskID: taskID}
	return id, nil
}

func (m *memTimer) Remove(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[jobID]; !ok {
		return timer.ErrJobNotFound
	}
	delete(m.jobs, jobID)
	return nil
}

func (m *memTimer) List(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.jobs))
	for id := range m.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memTimer) job(id string) (memJob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	return j, ok
}

// hookTimer runs onList once, before the first List, to interleave work with a sweep.
type hookTimer struct {
	*memTimer
	once   sync.Once
	onList func()
}

func (h *hookTimer) List(ctx context.Context) ([]string, error) {
	h.once.Do(h.onList)
	return h.memTimer.List(ctx)
}

type sent struct {
	scope, text string
}

type fakeDelivery struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (d *fakeDelivery) Deliver(_ context.Context, scope, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, sent{scope: scope, text: text})
	return nil
}

func (d *fakeDelivery) messages() []sent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sent(nil), d.sent...)
}

type testEnv struct {
	tasks     *repository.TaskRepository
	timer     *memTimer
	delivery  *fakeDelivery
	rotation  *RotationService
	reminders *ReminderService
	describer *Describer
	svc       *TaskService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "reminder.db"), zerolog.Nop())
	require.NoError(t, err)

	tasks := repository.NewTaskRepository(db)
	assignments := repository.NewAssignmentRepository(db)
	env := &testEnv{
		tasks:    tasks,
		timer:    newMemTimer(),
		delivery: &fakeDelivery{},
	}
	env.rotation = NewRotationService(assignments, repository.NewAssigneeRepository(db), zerolog.Nop())
	env.describer = NewDescriber(tasks, assignments, PlainFormatter{}, time.UTC)
	env.reminders = NewReminderService(tasks, env.timer, env.describer, env.delivery, DefaultJitterRatio, zerolog.Nop())
	env.svc = NewTaskService(tasks, repository.NewRecordRepository(db), env.rotation, env.reminders, zerolog.Nop())
	return env
}

var testNow = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func (e *testEnv) createTask(t *testing.T, name string, rt model.RecurType, interval time.Duration) *model.Task {
	t.Helper()
	task, err := e.svc.Create(context.Background(), TaskInput{
		Name:           name,
		Scope:          "chat-1",
		DueTime:        time.Date(2026, 10, 20, 20, 0, 0, 0, time.UTC),
		RemindOffset:   -24 * time.Hour,
		RemindInterval: 3 * time.Hour,
		RecurType:      rt,
		RecurInterval:  interval,
	})
	require.NoError(t, err)
	return task
}

func (e *testEnv) assign(t *testing.T, taskID string, users ...string) {
	t.Helper()
	_, err := e.svc.Assign(context.Background(), taskID, users)
	require.NoError(t, err)
}

func (e *testEnv) current(t *testing.T, taskID string) *int {
	t.Helper()
	task, err := e.tasks.Get(context.Background(), taskID, true)
	require.NoError(t, err)
	return task.CurrentOrder
}

func intp(i int) *int { return &i }

const dayDur = 24 * time.Hour
