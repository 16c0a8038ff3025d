package notify

import (
	"context"
	"fmt"
	"reminderengine/internal/domain/entity"
	"reminderengine/internal/pkg/logger"
)

// LogSink presents reminders by writing them to the log.
// It is the fallback sink when no messaging channel is configured.
type LogSink struct {
	log logger.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{log: log}
}

// Present logs the reminder.
func (s *LogSink) Present(_ context.Context, reminder entity.Reminder) error {
	s.log.Info(fmt.Sprintf("REMINDER %d due %s: %s - %s (acknowledge with POST /reminders/%d/ack)",
		reminder.ID, reminder.DueAt.Format("2006/01/02 15:04"), reminder.Title, reminder.Body, reminder.ID))
	return nil
}
