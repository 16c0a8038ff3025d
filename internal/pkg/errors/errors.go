package errors

import "errors"

// Custom application errors
var (
	ErrReminderNotFound   = errors.New("reminder not found")                    // Unknown reminder id
	ErrInvalidSchedule    = errors.New("invalid schedule")                      // Due time missing or too far in the past
	ErrInvalidState       = errors.New("invalid reminder state for operation") // Illegal state transition
	ErrCapabilityDenied   = errors.New("timer capability denied by host")      // Permission refused; needs user remediation, never retried
	ErrSchedulingFailed   = errors.New("scheduling failed")                     // Transient host failure after retries
	ErrPresentationFailed = errors.New("notification presentation failed")     // Sink could not show a fired reminder
	ErrNotReady           = errors.New("reminder service is not ready")        // Startup re-arm still running
	ErrQueueFull          = errors.New("notification queue full")              // Dispatcher cannot accept more work
	ErrDatabaseOperation  = errors.New("database operation failed")            // Generic database error
	ErrLineAPI            = errors.New("LINE API request failed")              // Generic LINE API error
	ErrInternalServer     = errors.New("internal server error")                // Generic internal error
)
