package service

import (
	"context"
	"reminderengine/internal/application/dto"
	"reminderengine/internal/domain/entity"
	"time"
)

// ReminderService defines the interface for reminder-related business logic.
type ReminderService interface {
	// Start re-arms persisted reminders and then marks the service ready.
	// Every other method fails with ErrNotReady until Start has returned.
	Start(ctx context.Context) error
	// Ready reports whether Start has completed.
	Ready() bool
	// Schedule persists a reminder and arms its timer. It returns the reminder ID.
	Schedule(ctx context.Context, req dto.ScheduleReminderRequest) (uint, error)
	// Cancel stops a scheduled reminder. Cancelling a reminder that is not Scheduled is a no-op.
	Cancel(ctx context.Context, reminderID uint) error
	// Acknowledge marks a fired reminder as seen.
	Acknowledge(ctx context.Context, reminderID uint) error
	// List returns all reminders ordered by due time.
	List(ctx context.Context) ([]dto.ReminderResponse, error)
	// GetReminder retrieves a reminder by its ID.
	GetReminder(ctx context.Context, reminderID uint) (*entity.Reminder, error)
	// Snooze re-schedules a fired or acknowledged reminder d from now.
	Snooze(ctx context.Context, reminderID uint, d time.Duration) error
	// Delete removes a reminder, disarming it first.
	Delete(ctx context.Context, reminderID uint) error
	// PurgeHistory deletes acknowledged and cancelled reminders last updated before the threshold.
	PurgeHistory(ctx context.Context, before time.Time) (int64, error)
}
