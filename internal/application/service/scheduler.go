package service

import (
	"context"
	"reminderengine/internal/domain/entity"
)

// SchedulerService owns the mapping from reminder id to its live timer registration.
//
// Arm and Disarm must be called while holding the reminder's key lock (see
// keylock.Locker). OnFire and RearmAllOnStartup acquire the lock themselves.
type SchedulerService interface {
	// Arm replaces any registration of the reminder with a fresh one at reminder.DueAt.
	Arm(ctx context.Context, reminder *entity.Reminder) error
	// Disarm cancels the reminder's registration, if any. It never fails for a missing registration.
	Disarm(ctx context.Context, reminderID uint) error
	// OnFire is the TimerSource callback. Stale or unknown tokens are discarded.
	OnFire(ctx context.Context, reminderID uint, token string)
	// RearmAllOnStartup re-registers every Scheduled reminder and fires the overdue ones.
	// Per-reminder failures are logged; only a failure to read the store is returned.
	RearmAllOnStartup(ctx context.Context) error
	// Registered reports whether the reminder currently has a live registration.
	Registered(reminderID uint) bool
}

// NotificationQueue accepts fired reminders for asynchronous presentation.
type NotificationQueue interface {
	Enqueue(reminder entity.Reminder) error
}
