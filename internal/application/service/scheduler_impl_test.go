package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"reminderengine/internal/application/dto"
	"reminderengine/internal/domain/constant"
	"reminderengine/internal/domain/entity"
	appErrors "reminderengine/internal/pkg/errors"
)

func scheduleIn(t *testing.T, env *testEnv, title string, d time.Duration) uint {
	t.Helper()
	id, err := env.svc.Schedule(context.Background(), dto.ScheduleReminderRequest{
		Title: title,
		DueAt: time.Now().Add(d),
	})
	if err != nil {
		t.Fatalf("Schedule(%q): %v", title, err)
	}
	return id
}

func onlyRegistration(t *testing.T, env *testEnv, id uint) fakeRequest {
	t.Helper()
	live := env.timer.liveFor(id)
	if len(live) != 1 {
		t.Fatalf("reminder %d has %d live registrations, want 1", id, len(live))
	}
	return live[0]
}

func TestArmPersistsTokenOfLiveRegistration(t *testing.T) {
	env := newStartedEnv(t)
	id := scheduleIn(t, env, "Take pill", time.Hour)

	reg := onlyRegistration(t, env, id)
	got, err := env.repo.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.GetState() != constant.StateScheduled {
		t.Errorf("state = %s, want scheduled", got.GetState())
	}
	if got.RegistrationToken == nil || *got.RegistrationToken != reg.token {
		t.Errorf("persisted token = %v, want %s", got.RegistrationToken, reg.token)
	}
	if !env.sched.Registered(id) {
		t.Error("scheduler does not report a registration")
	}
}

func TestFireIsAtMostOnce(t *testing.T) {
	env := newStartedEnv(t)
	id := scheduleIn(t, env, "Take pill", time.Hour)
	reg := onlyRegistration(t, env, id)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.sched.OnFire(context.Background(), id, reg.token)
		}()
	}
	wg.Wait()

	if got := env.queue.ids(); len(got) != 1 || got[0] != id {
		t.Fatalf("presented %v, want exactly [%d]", got, id)
	}
	r, _ := env.repo.FindByID(context.Background(), id)
	if r.GetState() != constant.StateFired || r.RegistrationToken != nil {
		t.Errorf("after fire: state=%s token=%v, want fired/nil", r.GetState(), r.RegistrationToken)
	}
	if env.sched.Registered(id) {
		t.Error("registration survived the fire")
	}
}

func TestStaleTokenIsDiscarded(t *testing.T) {
	env := newStartedEnv(t)
	id := scheduleIn(t, env, "Stand up", time.Hour)
	first := onlyRegistration(t, env, id)

	// Re-scheduling replaces the registration.
	if _, err := env.svc.Schedule(context.Background(), dto.ScheduleReminderRequest{
		ID: &id, Title: "Stand up", DueAt: time.Now().Add(2 * time.Hour),
	}); err != nil {
		t.Fatalf("re-Schedule: %v", err)
	}

	env.sched.OnFire(context.Background(), id, first.token)
	env.sched.OnFire(context.Background(), id+100, "unknown")

	if got := env.queue.ids(); len(got) != 0 {
		t.Fatalf("stale fire presented %v", got)
	}
	r, _ := env.repo.FindByID(context.Background(), id)
	if r.GetState() != constant.StateScheduled {
		t.Errorf("state = %s, want scheduled", r.GetState())
	}
}

func TestCapabilityDeniedIsNotRetried(t *testing.T) {
	env := newStartedEnv(t)
	env.timer.failNext(fmt.Errorf("%w: no exact alarms", appErrors.ErrCapabilityDenied))

	_, err := env.svc.Schedule(context.Background(), dto.ScheduleReminderRequest{
		Title: "Denied", DueAt: time.Now().Add(time.Hour),
	})
	if !errors.Is(err, appErrors.ErrCapabilityDenied) {
		t.Fatalf("err = %v, want ErrCapabilityDenied", err)
	}
	if n := env.timer.attemptCount(); n != 1 {
		t.Errorf("RequestInvocation called %d times, want 1", n)
	}
	all, _ := env.repo.FindAll(context.Background())
	if len(all) != 0 {
		t.Errorf("unarmed reminder left in store: %+v", all)
	}
}

func TestTransientFailureIsRetriedOnce(t *testing.T) {
	transient := errors.New("host busy")

	t.Run("recovers", func(t *testing.T) {
		env := newStartedEnv(t)
		env.timer.failNext(transient)
		id := scheduleIn(t, env, "Retry", time.Hour)
		onlyRegistration(t, env, id)
		if n := env.timer.attemptCount(); n != 2 {
			t.Errorf("attempts = %d, want 2", n)
		}
	})

	t.Run("gives up", func(t *testing.T) {
		env := newStartedEnv(t)
		env.timer.failNext(transient, transient)
		_, err := env.svc.Schedule(context.Background(), dto.ScheduleReminderRequest{
			Title: "Retry", DueAt: time.Now().Add(time.Hour),
		})
		if !errors.Is(err, appErrors.ErrSchedulingFailed) {
			t.Fatalf("err = %v, want ErrSchedulingFailed", err)
		}
		if n := env.timer.attemptCount(); n != 2 {
			t.Errorf("attempts = %d, want 2", n)
		}
	})
}

func TestArmFailureLeavesExistingReminderCancelled(t *testing.T) {
	env := newStartedEnv(t)
	id := scheduleIn(t, env, "Existing", time.Hour)
	env.timer.failNext(fmt.Errorf("%w", appErrors.ErrCapabilityDenied))

	_, err := env.svc.Schedule(context.Background(), dto.ScheduleReminderRequest{
		ID: &id, Title: "Existing", DueAt: time.Now().Add(2 * time.Hour),
	})
	if !errors.Is(err, appErrors.ErrCapabilityDenied) {
		t.Fatalf("err = %v, want ErrCapabilityDenied", err)
	}
	r, _ := env.repo.FindByID(context.Background(), id)
	if r.GetState() != constant.StateCancelled || r.RegistrationToken != nil {
		t.Errorf("state=%s token=%v, want cancelled/nil", r.GetState(), r.RegistrationToken)
	}
	if live := env.timer.liveFor(id); len(live) != 0 {
		t.Errorf("live registrations after failure: %v", live)
	}
}

func TestRestartFiresPastDueExactlyOnce(t *testing.T) {
	first := newTestEnv(t, "")
	ctx := context.Background()
	token := "token-from-previous-process"
	overdue := &entity.Reminder{Title: "Overdue", DueAt: time.Now().Add(-time.Hour), RegistrationToken: &token}
	overdue.SetState(constant.StateScheduled)
	future := &entity.Reminder{Title: "Future", DueAt: time.Now().Add(time.Hour)}
	future.SetState(constant.StateScheduled)
	for _, r := range []*entity.Reminder{overdue, future} {
		if err := first.repo.Put(ctx, r); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	restarted := newTestEnv(t, first.dbPath)
	if err := restarted.svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	// A second Start must not fire again.
	if err := restarted.svc.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if got := restarted.queue.ids(); len(got) != 1 || got[0] != overdue.ID {
		t.Fatalf("presented %v, want exactly [%d]", got, overdue.ID)
	}
	r, _ := restarted.repo.FindByID(ctx, overdue.ID)
	if r.GetState() != constant.StateFired {
		t.Errorf("overdue state = %s, want fired", r.GetState())
	}

	reg := onlyRegistration(t, restarted, future.ID)
	if !reg.dueAt.Equal(future.DueAt.UTC()) {
		t.Errorf("future re-armed at %v, want %v", reg.dueAt, future.DueAt.UTC())
	}

	// The previous process's callback must not fire anything.
	restarted.sched.OnFire(ctx, overdue.ID, token)
	if got := restarted.queue.ids(); len(got) != 1 {
		t.Errorf("old token produced another presentation: %v", got)
	}
}

func TestDisarmWithoutRegistrationIsNoop(t *testing.T) {
	env := newStartedEnv(t)
	if err := env.sched.Disarm(context.Background(), 42); err != nil {
		t.Fatalf("Disarm: %v", err)
	}
	if len(env.timer.cancelled) != 0 {
		t.Errorf("CancelInvocation called for an unknown reminder")
	}
}

func TestEnqueueFailureStillMarksFired(t *testing.T) {
	env := newStartedEnv(t)
	id := scheduleIn(t, env, "Queue full", time.Hour)
	reg := onlyRegistration(t, env, id)
	env.queue.err = appErrors.ErrQueueFull

	env.timer.fire(id, reg.token)

	r, _ := env.repo.FindByID(context.Background(), id)
	if r.GetState() != constant.StateFired {
		t.Errorf("state = %s, want fired", r.GetState())
	}
}
