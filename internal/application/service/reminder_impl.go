package service

import (
	"context"
	"errors"
	"fmt"
	"reminderengine/internal/application/dto"
	"reminderengine/internal/domain/constant"
	"reminderengine/internal/domain/entity"
	"reminderengine/internal/domain/repository"
	appErrors "reminderengine/internal/pkg/errors"
	"reminderengine/internal/pkg/keylock"
	"reminderengine/internal/pkg/logger"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ReminderConfig holds the validation settings of the reminder service.
type ReminderConfig struct {
	// GraceWindow is how far in the past a due time may be and still be accepted.
	GraceWindow time.Duration
}

type reminderService struct {
	reminderRepo repository.ReminderRepository
	schedulerSvc SchedulerService
	locks        *keylock.Locker
	cfg          ReminderConfig
	log          logger.Logger

	startOnce sync.Once
	startErr  error
	ready     atomic.Bool

	now func() time.Time
}

// NewReminderService creates a new instance of ReminderService implementation.
func NewReminderService(
	reminderRepo repository.ReminderRepository,
	schedulerSvc SchedulerService,
	locks *keylock.Locker,
	cfg ReminderConfig,
	log logger.Logger,
) ReminderService {
	if cfg.GraceWindow < 0 {
		cfg.GraceWindow = 0
	}
	return &reminderService{
		reminderRepo: reminderRepo,
		schedulerSvc: schedulerSvc,
		locks:        locks,
		cfg:          cfg,
		log:          log,
		now:          time.Now,
	}
}

// Start re-arms persisted reminders exactly once and marks the service ready.
func (s *reminderService) Start(ctx context.Context) error {
	s.startOnce.Do(func() {
		if err := s.schedulerSvc.RearmAllOnStartup(ctx); err != nil {
			s.startErr = err
			return
		}
		s.ready.Store(true)
		s.log.Info("Reminder service is ready.")
	})
	return s.startErr
}

// Ready reports whether Start has completed successfully.
func (s *reminderService) Ready() bool {
	return s.ready.Load()
}

func (s *reminderService) checkReady() error {
	if !s.ready.Load() {
		return appErrors.ErrNotReady
	}
	return nil
}

// findReminder loads a reminder, mapping unexpected store errors to ErrDatabaseOperation.
func (s *reminderService) findReminder(ctx context.Context, reminderID uint) (*entity.Reminder, error) {
	reminder, err := s.reminderRepo.FindByID(ctx, reminderID)
	if err != nil {
		if errors.Is(err, appErrors.ErrReminderNotFound) {
			return nil, err
		}
		s.log.Error(fmt.Sprintf("Failed to find reminder %d", reminderID), err)
		return nil, fmt.Errorf("%w: %v", appErrors.ErrDatabaseOperation, err)
	}
	return reminder, nil
}

func (s *reminderService) validate(req dto.ScheduleReminderRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return fmt.Errorf("%w: title is required", appErrors.ErrInvalidSchedule)
	}
	if req.DueAt.IsZero() {
		return fmt.Errorf("%w: due time is required", appErrors.ErrInvalidSchedule)
	}
	if earliest := s.now().Add(-s.cfg.GraceWindow); req.DueAt.Before(earliest) {
		return fmt.Errorf("%w: due time %v is in the past", appErrors.ErrInvalidSchedule, req.DueAt.UTC())
	}
	return nil
}

// Schedule persists a reminder and arms its timer.
func (s *reminderService) Schedule(ctx context.Context, req dto.ScheduleReminderRequest) (uint, error) {
	if err := s.checkReady(); err != nil {
		return 0, err
	}
	if err := s.validate(req); err != nil {
		return 0, err
	}

	if req.ID != nil && *req.ID != 0 {
		return *req.ID, s.scheduleExisting(ctx, *req.ID, req)
	}

	reminder := &entity.Reminder{
		Title: strings.TrimSpace(req.Title),
		Body:  req.Body,
		DueAt: req.DueAt.UTC(),
	}
	reminder.SetState(constant.StateScheduled)
	if err := s.reminderRepo.Put(ctx, reminder); err != nil {
		s.log.Error("Failed to create reminder", err)
		return 0, fmt.Errorf("%w: %v", appErrors.ErrDatabaseOperation, err)
	}

	unlock := s.locks.Lock(reminder.ID)
	defer unlock()

	// A concurrent cancel may have won the lock between Put and here.
	current, err := s.findReminder(ctx, reminder.ID)
	if err != nil {
		return 0, err
	}
	if current.GetState() != constant.StateScheduled {
		s.log.Info(fmt.Sprintf("Reminder %d changed state to %s before it was armed", reminder.ID, current.GetState()))
		return reminder.ID, nil
	}

	if err := s.schedulerSvc.Arm(ctx, current); err != nil {
		if derr := s.reminderRepo.Delete(ctx, reminder.ID); derr != nil {
			s.log.Error(fmt.Sprintf("Failed to remove unarmed reminder %d", reminder.ID), derr)
		}
		return 0, err
	}

	s.log.Info(fmt.Sprintf("Scheduled reminder %d %q at %v", reminder.ID, reminder.Title, reminder.DueAt))
	return reminder.ID, nil
}

// scheduleExisting (re)schedules a caller-identified reminder. The latest call wins.
func (s *reminderService) scheduleExisting(ctx context.Context, reminderID uint, req dto.ScheduleReminderRequest) error {
	unlock := s.locks.Lock(reminderID)
	defer unlock()

	reminder, err := s.reminderRepo.FindByID(ctx, reminderID)
	switch {
	case errors.Is(err, appErrors.ErrReminderNotFound):
		reminder = &entity.Reminder{ID: reminderID}
	case err != nil:
		s.log.Error(fmt.Sprintf("Failed to find reminder %d", reminderID), err)
		return fmt.Errorf("%w: %v", appErrors.ErrDatabaseOperation, err)
	}

	reminder.Title = strings.TrimSpace(req.Title)
	reminder.Body = req.Body
	reminder.DueAt = req.DueAt.UTC()
	if err := s.arm(ctx, reminder); err != nil {
		return err
	}

	s.log.Info(fmt.Sprintf("Scheduled reminder %d %q at %v", reminderID, reminder.Title, reminder.DueAt))
	return nil
}

// arm stores the reminder as Scheduled and arms it. The caller holds the key lock.
func (s *reminderService) arm(ctx context.Context, reminder *entity.Reminder) error {
	reminder.SetState(constant.StateScheduled)
	reminder.RegistrationToken = nil
	if err := s.reminderRepo.Put(ctx, reminder); err != nil {
		s.log.Error(fmt.Sprintf("Failed to save reminder %d", reminder.ID), err)
		return fmt.Errorf("%w: %v", appErrors.ErrDatabaseOperation, err)
	}
	return s.schedulerSvc.Arm(ctx, reminder)
}

// Cancel stops a scheduled reminder.
func (s *reminderService) Cancel(ctx context.Context, reminderID uint) error {
	if err := s.checkReady(); err != nil {
		return err
	}

	unlock := s.locks.Lock(reminderID)
	defer unlock()

	reminder, err := s.findReminder(ctx, reminderID)
	if err != nil {
		return err
	}
	if reminder.GetState() != constant.StateScheduled {
		s.log.Debug(fmt.Sprintf("Cancel of reminder %d in state %s is a no-op", reminderID, reminder.GetState()))
		return nil
	}

	if err := s.schedulerSvc.Disarm(ctx, reminderID); err != nil {
		// The state change below makes any late fire a no-op.
		s.log.Warn(fmt.Sprintf("Disarm of reminder %d failed: %v", reminderID, err))
	}
	if err := s.reminderRepo.UpdateState(ctx, reminderID, constant.StateCancelled); err != nil {
		s.log.Error(fmt.Sprintf("Failed to cancel reminder %d", reminderID), err)
		return fmt.Errorf("%w: %v", appErrors.ErrDatabaseOperation, err)
	}

	s.log.Info(fmt.Sprintf("Cancelled reminder %d", reminderID))
	return nil
}

// Acknowledge marks a fired reminder as seen.
func (s *reminderService) Acknowledge(ctx context.Context, reminderID uint) error {
	if err := s.checkReady(); err != nil {
		return err
	}

	unlock := s.locks.Lock(reminderID)
	defer unlock()

	reminder, err := s.findReminder(ctx, reminderID)
	if err != nil {
		return err
	}

	switch reminder.GetState() {
	case constant.StateAcknowledged:
		return nil
	case constant.StateFired:
	default:
		return fmt.Errorf("%w: cannot acknowledge a %s reminder", appErrors.ErrInvalidState, reminder.GetState())
	}

	if err := s.reminderRepo.UpdateState(ctx, reminderID, constant.StateAcknowledged); err != nil {
		s.log.Error(fmt.Sprintf("Failed to acknowledge reminder %d", reminderID), err)
		return fmt.Errorf("%w: %v", appErrors.ErrDatabaseOperation, err)
	}

	s.log.Info(fmt.Sprintf("Acknowledged reminder %d", reminderID))
	return nil
}

// List returns all reminders ordered by due time.
func (s *reminderService) List(ctx context.Context) ([]dto.ReminderResponse, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	reminders, err := s.reminderRepo.FindAll(ctx)
	if err != nil {
		s.log.Error("Failed to list reminders", err)
		return nil, fmt.Errorf("%w: %v", appErrors.ErrDatabaseOperation, err)
	}
	return dto.ToReminderResponseList(reminders), nil
}

// GetReminder retrieves a reminder by its ID.
func (s *reminderService) GetReminder(ctx context.Context, reminderID uint) (*entity.Reminder, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	return s.findReminder(ctx, reminderID)
}

// Snooze re-schedules a fired or acknowledged reminder d from now.
func (s *reminderService) Snooze(ctx context.Context, reminderID uint, d time.Duration) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("%w: snooze duration must be positive", appErrors.ErrInvalidSchedule)
	}

	unlock := s.locks.Lock(reminderID)
	defer unlock()

	reminder, err := s.findReminder(ctx, reminderID)
	if err != nil {
		return err
	}
	switch reminder.GetState() {
	case constant.StateFired, constant.StateAcknowledged:
	default:
		return fmt.Errorf("%w: cannot snooze a %s reminder", appErrors.ErrInvalidState, reminder.GetState())
	}

	reminder.DueAt = s.now().Add(d).UTC()
	if err := s.arm(ctx, reminder); err != nil {
		return err
	}

	s.log.Info(fmt.Sprintf("Snoozed reminder %d until %v", reminderID, reminder.DueAt))
	return nil
}

// Delete removes a reminder, disarming it first.
func (s *reminderService) Delete(ctx context.Context, reminderID uint) error {
	if err := s.checkReady(); err != nil {
		return err
	}

	unlock := s.locks.Lock(reminderID)
	defer unlock()

	if _, err := s.findReminder(ctx, reminderID); err != nil {
		return err
	}
	if err := s.schedulerSvc.Disarm(ctx, reminderID); err != nil {
		s.log.Warn(fmt.Sprintf("Disarm of reminder %d failed before delete: %v", reminderID, err))
	}
	if err := s.reminderRepo.Delete(ctx, reminderID); err != nil {
		if errors.Is(err, appErrors.ErrReminderNotFound) {
			return err
		}
		s.log.Error(fmt.Sprintf("Failed to delete reminder %d", reminderID), err)
		return fmt.Errorf("%w: %v", appErrors.ErrDatabaseOperation, err)
	}

	s.log.Info(fmt.Sprintf("Deleted reminder %d", reminderID))
	return nil
}

// PurgeHistory deletes acknowledged and cancelled reminders last updated before the threshold.
func (s *reminderService) PurgeHistory(ctx context.Context, before time.Time) (int64, error) {
	if err := s.checkReady(); err != nil {
		return 0, err
	}
	n, err := s.reminderRepo.DeleteInactiveBefore(ctx, before)
	if err != nil {
		s.log.Error("Failed to purge reminder history", err)
		return 0, fmt.Errorf("%w: %v", appErrors.ErrDatabaseOperation, err)
	}
	if n > 0 {
		s.log.Info(fmt.Sprintf("Purged %d inactive reminders older than %v", n, before.UTC()))
	}
	return n, nil
}
