package service

import (
	"context"
	"errors"
	"fmt"
	"reminderengine/internal/domain/capability"
	"reminderengine/internal/domain/constant"
	"reminderengine/internal/domain/entity"
	"reminderengine/internal/domain/repository"
	appErrors "reminderengine/internal/pkg/errors"
	"reminderengine/internal/pkg/keylock"
	"reminderengine/internal/pkg/logger"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SchedulerConfig bounds calls into the TimerSource.
type SchedulerConfig struct {
	CallTimeout  time.Duration // Per-call bound on RequestInvocation/CancelInvocation
	MaxRetries   int           // Retries after a transient TimerSource failure
	RetryBackoff time.Duration // Delay before the first retry, doubled for each further one
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	return c
}

// registration is the live timer registration of one reminder.
type registration struct {
	token  string
	dueAt  time.Time
	handle capability.RegistrationHandle // nil for synthetic startup fires
}

type schedulerService struct {
	timer        capability.TimerSource
	reminderRepo repository.ReminderRepository
	queue        NotificationQueue
	locks        *keylock.Locker
	cfg          SchedulerConfig
	log          logger.Logger

	mu            sync.Mutex // Protects registrations
	registrations map[uint]registration

	newToken func() string
	now      func() time.Time
}

// NewSchedulerService creates the scheduler and installs its OnFire as the timer's fire handler.
func NewSchedulerService(
	timer capability.TimerSource,
	reminderRepo repository.ReminderRepository,
	queue NotificationQueue,
	locks *keylock.Locker,
	cfg SchedulerConfig,
	log logger.Logger,
) SchedulerService {
	s := &schedulerService{
		timer:         timer,
		reminderRepo:  reminderRepo,
		queue:         queue,
		locks:         locks,
		cfg:           cfg.withDefaults(),
		log:           log,
		registrations: make(map[uint]registration),
		newToken:      func() string { return uuid.NewString() },
		now:           time.Now,
	}
	timer.SetFireHandler(s.OnFire)
	return s
}

func (s *schedulerService) lookup(reminderID uint) (registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[reminderID]
	return reg, ok
}

func (s *schedulerService) store(reminderID uint, reg registration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registrations[reminderID] = reg
}

func (s *schedulerService) remove(reminderID uint) (registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registrations[reminderID]
	if ok {
		delete(s.registrations, reminderID)
	}
	return reg, ok
}

// Registered reports whether the reminder has a live registration.
func (s *schedulerService) Registered(reminderID uint) bool {
	_, ok := s.lookup(reminderID)
	return ok
}

// Arm replaces any registration of the reminder with a fresh one.
func (s *schedulerService) Arm(ctx context.Context, reminder *entity.Reminder) error {
	if err := s.Disarm(ctx, reminder.ID); err != nil {
		// A stale timer that still fires is discarded by the token check.
		s.log.Warn(fmt.Sprintf("Could not cancel previous registration of reminder %d: %v", reminder.ID, err))
	}

	token := s.newToken()
	dueAt := reminder.DueAt.UTC()
	if err := s.reminderRepo.SetRegistration(ctx, reminder.ID, dueAt, token); err != nil {
		if errors.Is(err, appErrors.ErrReminderNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", appErrors.ErrDatabaseOperation, err)
	}

	handle, err := s.requestInvocation(ctx, dueAt, reminder.ID, token)
	if err != nil {
		// Without a timer the reminder must not stay Scheduled.
		if uerr := s.reminderRepo.UpdateState(ctx, reminder.ID, constant.StateCancelled); uerr != nil {
			s.log.Error(fmt.Sprintf("Failed to roll back reminder %d after arm failure", reminder.ID), uerr)
		}
		s.log.Error(fmt.Sprintf("Failed to arm reminder %d", reminder.ID), err)
		return err
	}

	s.store(reminder.ID, registration{token: token, dueAt: dueAt, handle: handle})
	reminder.DueAt = dueAt
	reminder.SetState(constant.StateScheduled)
	reminder.RegistrationToken = &token
	s.log.Info(fmt.Sprintf("Armed reminder %d at %v (token %s)", reminder.ID, dueAt, token))
	return nil
}

// requestInvocation calls the TimerSource, retrying transient failures with backoff.
func (s *schedulerService) requestInvocation(ctx context.Context, dueAt time.Time, reminderID uint, token string) (capability.RegistrationHandle, error) {
	delay := s.cfg.RetryBackoff
	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		handle, err := s.timer.RequestInvocation(callCtx, dueAt, reminderID, token)
		cancel()
		if err == nil {
			return handle, nil
		}
		if errors.Is(err, appErrors.ErrCapabilityDenied) {
			return nil, err
		}
		if attempt >= s.cfg.MaxRetries {
			return nil, fmt.Errorf("%w: %v", appErrors.ErrSchedulingFailed, err)
		}

		s.log.Debug(fmt.Sprintf("Timer registration for reminder %d failed (attempt %d), retrying in %v: %v", reminderID, attempt+1, delay, err))
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("%w: %v", appErrors.ErrSchedulingFailed, ctx.Err())
		}
		delay *= 2
	}
}

// Disarm cancels the registration of a reminder. Missing registrations are a no-op.
func (s *schedulerService) Disarm(ctx context.Context, reminderID uint) error {
	reg, ok := s.remove(reminderID)
	if !ok {
		s.log.Debug(fmt.Sprintf("No active registration found for reminder %d to cancel.", reminderID))
		return nil
	}
	if reg.handle == nil {
		return nil
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	if err := s.timer.CancelInvocation(callCtx, reg.handle); err != nil {
		return fmt.Errorf("%w: cancel registration of reminder %d: %v", appErrors.ErrSchedulingFailed, reminderID, err)
	}
	s.log.Info(fmt.Sprintf("Disarmed reminder %d (token %s)", reminderID, reg.token))
	return nil
}

// OnFire handles a timer callback for (reminderID, token).
func (s *schedulerService) OnFire(ctx context.Context, reminderID uint, token string) {
	unlock := s.locks.Lock(reminderID)
	defer unlock()
	s.fireLocked(ctx, reminderID, token)
}

// fireLocked performs the Scheduled -> Fired transition. The caller holds the key lock.
func (s *schedulerService) fireLocked(ctx context.Context, reminderID uint, token string) {
	reg, ok := s.lookup(reminderID)
	if !ok || reg.token != token {
		s.log.Debug(fmt.Sprintf("Discarding stale fire for reminder %d (token %s)", reminderID, token))
		return
	}

	reminder, err := s.reminderRepo.FindByID(ctx, reminderID)
	if err != nil {
		if errors.Is(err, appErrors.ErrReminderNotFound) {
			s.log.Warn(fmt.Sprintf("Reminder %d vanished before firing", reminderID))
			s.remove(reminderID)
			return
		}
		s.log.Error(fmt.Sprintf("Failed to load reminder %d for firing", reminderID), err)
		return
	}
	if reminder.GetState() != constant.StateScheduled ||
		reminder.RegistrationToken == nil || *reminder.RegistrationToken != token {
		s.log.Warn(fmt.Sprintf("Reminder %d is no longer armed with token %s, discarding fire", reminderID, token))
		s.remove(reminderID)
		return
	}

	if err := s.reminderRepo.UpdateState(ctx, reminderID, constant.StateFired); err != nil {
		// The registration stays so a retry of the same callback can still win.
		s.log.Error(fmt.Sprintf("Failed to mark reminder %d as fired", reminderID), err)
		return
	}
	s.remove(reminderID)

	reminder.SetState(constant.StateFired)
	reminder.RegistrationToken = nil
	if err := s.queue.Enqueue(*reminder); err != nil {
		s.log.Error(fmt.Sprintf("Reminder %d fired but could not be queued for presentation", reminderID),
			fmt.Errorf("%w: %v", appErrors.ErrPresentationFailed, err))
		return
	}
	s.log.Info(fmt.Sprintf("Fired reminder %d", reminderID))
}

// RearmAllOnStartup restores registrations lost with the previous process.
func (s *schedulerService) RearmAllOnStartup(ctx context.Context) error {
	s.log.Info("Re-arming scheduled reminders from database...")
	reminders, err := s.reminderRepo.FindScheduled(ctx)
	if err != nil {
		s.log.Error("Failed to retrieve reminders for re-arming", err)
		return fmt.Errorf("%w: %v", appErrors.ErrDatabaseOperation, err)
	}

	now := s.now()
	armedCount, firedCount, failedCount := 0, 0, 0

	for _, reminder := range reminders {
		unlock := s.locks.Lock(reminder.ID)
		if reminder.DueAt.After(now) {
			if err := s.Arm(ctx, reminder); err != nil {
				failedCount++
			} else {
				armedCount++
			}
		} else {
			// Overdue across the restart: fire it once through the normal path.
			token := s.newToken()
			if err := s.reminderRepo.SetRegistration(ctx, reminder.ID, reminder.DueAt, token); err != nil {
				s.log.Error(fmt.Sprintf("Failed to register overdue reminder %d", reminder.ID), err)
				failedCount++
			} else {
				s.store(reminder.ID, registration{token: token, dueAt: reminder.DueAt})
				s.fireLocked(ctx, reminder.ID, token)
				firedCount++
			}
		}
		unlock()
	}

	s.log.Info(fmt.Sprintf("Re-arm complete. Armed: %d, Fired overdue: %d, Failed: %d", armedCount, firedCount, failedCount))
	return nil
}
