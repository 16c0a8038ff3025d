package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	appErrors "reminderengine/internal/pkg/errors"
	"reminderengine/internal/pkg/logger"
)

type fireRecorder struct {
	mu    sync.Mutex
	calls []string
	ch    chan string
}

func newFireRecorder() *fireRecorder {
	return &fireRecorder{ch: make(chan string, 16)}
}

func (r *fireRecorder) handle(_ context.Context, _ uint, token string) {
	r.mu.Lock()
	r.calls = append(r.calls, token)
	r.mu.Unlock()
	r.ch <- token
}

func (r *fireRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestSource(t *testing.T, opts ...Option) (*CronTimerSource, *fireRecorder) {
	t.Helper()
	sched := NewScheduler(logger.Nop())
	t.Cleanup(sched.Stop)
	src := NewCronTimerSource(sched, logger.Nop(), opts...)
	rec := newFireRecorder()
	src.SetFireHandler(rec.handle)
	return src, rec
}

func TestFormatCronSpec(t *testing.T) {
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2030, 3, 15, 9, 5, 7, 0, time.UTC), "7 5 9 15 3 *"},
		{time.Date(2030, 12, 31, 23, 59, 59, 0, time.UTC), "59 59 23 31 12 *"},
		{time.Date(2030, 1, 1, 1, 0, 0, 0, time.FixedZone("X", 2*3600)), "0 0 23 31 12 *"},
	}
	for _, tt := range tests {
		if got := formatCronSpec(tt.in); got != tt.want {
			t.Errorf("formatCronSpec(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCeilSecond(t *testing.T) {
	base := time.Date(2030, 1, 1, 0, 0, 5, 0, time.UTC)
	if got := ceilSecond(base); !got.Equal(base) {
		t.Errorf("ceilSecond(whole) = %v", got)
	}
	if got := ceilSecond(base.Add(300 * time.Millisecond)); !got.Equal(base.Add(time.Second)) {
		t.Errorf("ceilSecond(fraction) = %v, want %v", got, base.Add(time.Second))
	}
}

func TestPermissionDenied(t *testing.T) {
	src, _ := newTestSource(t, WithPermission(func() bool { return false }))

	_, err := src.RequestInvocation(context.Background(), time.Now().Add(time.Hour), 1, "tok")
	if !errors.Is(err, appErrors.ErrCapabilityDenied) {
		t.Fatalf("err = %v, want ErrCapabilityDenied", err)
	}
	if src.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", src.Pending())
	}
}

func TestPastDueIsDeliveredImmediately(t *testing.T) {
	src, rec := newTestSource(t)

	h, err := src.RequestInvocation(context.Background(), time.Now().Add(-time.Minute), 4, "past")
	if err != nil {
		t.Fatalf("RequestInvocation: %v", err)
	}
	if h.ReminderID() != 4 || h.Token() != "past" {
		t.Errorf("handle = %d/%s", h.ReminderID(), h.Token())
	}

	select {
	case tok := <-rec.ch:
		if tok != "past" {
			t.Errorf("token = %q", tok)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("past-due registration was not delivered")
	}
}

func TestCronRegistrationFiresOnce(t *testing.T) {
	src, rec := newTestSource(t)

	_, err := src.RequestInvocation(context.Background(), time.Now().Add(time.Second), 1, "soon")
	if err != nil {
		t.Fatalf("RequestInvocation: %v", err)
	}

	select {
	case <-rec.ch:
	case <-time.After(4 * time.Second):
		t.Fatal("registration did not fire")
	}
	time.Sleep(1500 * time.Millisecond)
	if n := rec.count(); n != 1 {
		t.Errorf("fired %d times, want 1", n)
	}
	if src.Pending() != 0 {
		t.Errorf("Pending = %d after fire, want 0", src.Pending())
	}
}

func TestCancelledRegistrationNeverFires(t *testing.T) {
	src, rec := newTestSource(t)

	h, err := src.RequestInvocation(context.Background(), time.Now().Add(time.Second), 2, "cancel-me")
	if err != nil {
		t.Fatalf("RequestInvocation: %v", err)
	}
	if err := src.CancelInvocation(context.Background(), h); err != nil {
		t.Fatalf("CancelInvocation: %v", err)
	}
	if err := src.CancelInvocation(context.Background(), h); err != nil {
		t.Fatalf("second CancelInvocation: %v", err)
	}

	select {
	case tok := <-rec.ch:
		t.Fatalf("cancelled registration fired: %s", tok)
	case <-time.After(2500 * time.Millisecond):
	}
}

func TestDuplicateTokenRejected(t *testing.T) {
	src, _ := newTestSource(t)
	due := time.Now().Add(time.Hour)

	if _, err := src.RequestInvocation(context.Background(), due, 1, "dup"); err != nil {
		t.Fatalf("first: %v", err)
	}
	_, err := src.RequestInvocation(context.Background(), due, 1, "dup")
	if err == nil {
		t.Fatal("duplicate token accepted")
	}
	if errors.Is(err, appErrors.ErrCapabilityDenied) {
		t.Error("duplicate token reported as capability denial")
	}
}
