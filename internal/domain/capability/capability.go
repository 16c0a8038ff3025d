// Package capability declares the host services the reminder engine calls into.
package capability

import (
	"context"
	"reminderengine/internal/domain/entity"
	"time"
)

// RegistrationHandle identifies one pending invocation inside a TimerSource.
type RegistrationHandle interface {
	ReminderID() uint
	Token() string
}

// FireHandler is invoked by a TimerSource when a registration comes due.
type FireHandler func(ctx context.Context, reminderID uint, token string)

// TimerSource asks the host to call back at a given time.
//
// RequestInvocation fails with an error wrapping errors.ErrCapabilityDenied when
// the host refuses the registration outright; any other error is treated as transient.
type TimerSource interface {
	RequestInvocation(ctx context.Context, dueAt time.Time, reminderID uint, token string) (RegistrationHandle, error)
	CancelInvocation(ctx context.Context, handle RegistrationHandle) error
	SetFireHandler(handler FireHandler)
}

// NotificationSink presents a fired reminder to the user.
type NotificationSink interface {
	Present(ctx context.Context, reminder entity.Reminder) error
}
