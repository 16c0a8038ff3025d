package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"reminderengine/internal/domain/capability"
	"reminderengine/internal/domain/entity"
	"reminderengine/internal/domain/repository"
	"reminderengine/internal/infrastructure/database/sqlite"
	"reminderengine/internal/pkg/keylock"
	"reminderengine/internal/pkg/logger"
)

type fakeHandle struct {
	reminderID uint
	token      string
}

func (h fakeHandle) ReminderID() uint { return h.reminderID }
func (h fakeHandle) Token() string    { return h.token }

type fakeRequest struct {
	reminderID uint
	token      string
	dueAt      time.Time
}

// fakeTimer records registrations and fires them only when the test says so.
type fakeTimer struct {
	mu        sync.Mutex
	handler   capability.FireHandler
	live      map[string]fakeRequest
	attempts  int
	cancelled []string
	failures  []error // returned by the next RequestInvocation calls, in order
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{live: make(map[string]fakeRequest)}
}

func (f *fakeTimer) SetFireHandler(h capability.FireHandler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeTimer) RequestInvocation(_ context.Context, dueAt time.Time, reminderID uint, token string) (capability.RegistrationHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}
	f.live[token] = fakeRequest{reminderID: reminderID, token: token, dueAt: dueAt}
	return fakeHandle{reminderID: reminderID, token: token}, nil
}

func (f *fakeTimer) CancelInvocation(_ context.Context, h capability.RegistrationHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, h.Token())
	f.cancelled = append(f.cancelled, h.Token())
	return nil
}

func (f *fakeTimer) failNext(errs ...error) {
	f.mu.Lock()
	f.failures = append(f.failures, errs...)
	f.mu.Unlock()
}

func (f *fakeTimer) attemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// liveFor returns the uncancelled registrations of a reminder.
func (f *fakeTimer) liveFor(reminderID uint) []fakeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeRequest
	for _, r := range f.live {
		if r.reminderID == reminderID {
			out = append(out, r)
		}
	}
	return out
}

// fire delivers a callback as the host would, synchronously.
func (f *fakeTimer) fire(reminderID uint, token string) {
	f.mu.Lock()
	delete(f.live, token)
	h := f.handler
	f.mu.Unlock()
	h(context.Background(), reminderID, token)
}

type fakeQueue struct {
	mu    sync.Mutex
	items []entity.Reminder
	err   error
}

func (q *fakeQueue) Enqueue(r entity.Reminder) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.items = append(q.items, r)
	return nil
}

func (q *fakeQueue) ids() []uint {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]uint, len(q.items))
	for i, r := range q.items {
		out[i] = r.ID
	}
	return out
}

type testEnv struct {
	repo   repository.ReminderRepository
	timer  *fakeTimer
	queue  *fakeQueue
	sched  *schedulerService
	svc    *reminderService
	dbPath string
}

// newTestEnv wires a service stack over a SQLite file. An empty dbPath creates a new one.
func newTestEnv(t *testing.T, dbPath string) *testEnv {
	t.Helper()
	if dbPath == "" {
		dbPath = filepath.Join(t.TempDir(), "reminders.db")
	}
	db, err := sqlite.NewDB(sqlite.Options{Path: dbPath})
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.CloseDB(db) })

	repo := sqlite.NewReminderRepository(db)
	timer := newFakeTimer()
	queue := &fakeQueue{}
	locks := keylock.New()
	cfg := SchedulerConfig{CallTimeout: time.Second, MaxRetries: 1, RetryBackoff: time.Millisecond}
	sched := NewSchedulerService(timer, repo, queue, locks, cfg, logger.Nop()).(*schedulerService)
	svc := NewReminderService(repo, sched, locks, ReminderConfig{GraceWindow: 5 * time.Second}, logger.Nop()).(*reminderService)

	return &testEnv{repo: repo, timer: timer, queue: queue, sched: sched, svc: svc, dbPath: dbPath}
}

func newStartedEnv(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t, "")
	if err := env.svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return env
}
