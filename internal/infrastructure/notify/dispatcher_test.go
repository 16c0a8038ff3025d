package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reminderengine/internal/domain/entity"
	appErrors "reminderengine/internal/pkg/errors"
	"reminderengine/internal/pkg/logger"
)

type recordingSink struct {
	mu    sync.Mutex
	ids   []uint
	err   error
	block chan struct{}
}

func (s *recordingSink) Present(ctx context.Context, r entity.Reminder) error {
	if s.block != nil {
		select {
		case <-s.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = append(s.ids, r.ID)
	return s.err
}

func (s *recordingSink) presented() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint(nil), s.ids...)
}

func TestDispatcherPresentsEachReminderOnce(t *testing.T) {
	sink := &recordingSink{}
	d := NewDispatcher(sink, Config{Workers: 3, RatePerSec: 100}, logger.Nop())
	d.Start(context.Background())

	for id := uint(1); id <= 10; id++ {
		if err := d.Enqueue(entity.Reminder{ID: id}); err != nil {
			t.Fatalf("Enqueue(%d): %v", id, err)
		}
	}
	d.Stop()

	got := sink.presented()
	if len(got) != 10 {
		t.Fatalf("presented %d, want 10", len(got))
	}
	seen := map[uint]bool{}
	for _, id := range got {
		if seen[id] {
			t.Errorf("reminder %d presented twice", id)
		}
		seen[id] = true
	}
}

func TestDispatcherFailureIsNotRetried(t *testing.T) {
	sink := &recordingSink{err: errors.New("device offline")}
	d := NewDispatcher(sink, Config{Workers: 1, RatePerSec: 100}, logger.Nop())
	d.Start(context.Background())

	if err := d.Enqueue(entity.Reminder{ID: 5}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	d.Stop()

	if got := sink.presented(); len(got) != 1 {
		t.Errorf("Present called %d times, want 1", len(got))
	}
}

func TestEnqueueRejectsWhenFullOrStopped(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(sink, Config{Workers: 1, QueueSize: 1, RatePerSec: 100, Timeout: time.Second}, logger.Nop())

	if err := d.Enqueue(entity.Reminder{ID: 1}); !errors.Is(err, appErrors.ErrQueueFull) {
		t.Errorf("Enqueue before Start: err = %v, want ErrQueueFull", err)
	}

	d.Start(context.Background())
	// The worker takes the first item and blocks; the second fills the queue.
	_ = d.Enqueue(entity.Reminder{ID: 1})
	time.Sleep(50 * time.Millisecond)
	_ = d.Enqueue(entity.Reminder{ID: 2})

	if err := d.Enqueue(entity.Reminder{ID: 3}); !errors.Is(err, appErrors.ErrQueueFull) {
		t.Errorf("Enqueue on full queue: err = %v, want ErrQueueFull", err)
	}

	close(sink.block)
	d.Stop()

	if err := d.Enqueue(entity.Reminder{ID: 4}); !errors.Is(err, appErrors.ErrQueueFull) {
		t.Errorf("Enqueue after Stop: err = %v, want ErrQueueFull", err)
	}
}
