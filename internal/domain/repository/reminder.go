package repository

import (
	"context"
	"reminderengine/internal/domain/constant"
	"reminderengine/internal/domain/entity"
	"time"
)

// ReminderRepository defines the durable store for reminders.
// Lookups of a missing id return an error wrapping errors.ErrReminderNotFound.
type ReminderRepository interface {
	// Put inserts or replaces a reminder. A zero ID is allocated by the store.
	Put(ctx context.Context, reminder *entity.Reminder) error
	// FindByID retrieves a reminder by its ID.
	FindByID(ctx context.Context, id uint) (*entity.Reminder, error)
	// FindScheduled retrieves all Scheduled reminders ordered by due time.
	FindScheduled(ctx context.Context) ([]*entity.Reminder, error)
	// FindAll retrieves every reminder ordered by due time.
	FindAll(ctx context.Context) ([]*entity.Reminder, error)
	// UpdateState changes the state of a reminder. Leaving Scheduled clears its registration token.
	UpdateState(ctx context.Context, id uint, state constant.ReminderState) error
	// SetRegistration records the live registration of a reminder and marks it Scheduled.
	SetRegistration(ctx context.Context, id uint, dueAt time.Time, token string) error
	// Delete deletes a reminder by its ID.
	Delete(ctx context.Context, id uint) error
	// DeleteInactiveBefore purges Acknowledged and Cancelled reminders last updated before threshold.
	DeleteInactiveBefore(ctx context.Context, threshold time.Time) (int64, error)
}
