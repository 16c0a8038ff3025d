package line

import (
	"context"
	"fmt"
	"reminderengine/internal/domain/entity"
	appErrors "reminderengine/internal/pkg/errors"
	"strings"

	"github.com/line/line-bot-sdk-go/v7/linebot"
)

// DismissCommand is the text a user sends back to acknowledge a reminder.
const DismissCommand = "dismiss"

// SnoozeCommand re-schedules a fired reminder; an optional third field gives minutes.
const SnoozeCommand = "snooze"

// DefaultSnoozeMinutes is offered by the snooze quick reply.
const DefaultSnoozeMinutes = 10

// Sink presents fired reminders as LINE push messages.
type Sink struct {
	client *Client
	to     string
}

// NewSink creates a Sink that pushes to the given user, group or room ID.
func NewSink(client *Client, to string) *Sink {
	return &Sink{client: client, to: to}
}

// FormatReminder renders the push text of a fired reminder.
func FormatReminder(reminder entity.Reminder) string {
	var b strings.Builder
	b.WriteString("リマインドです!\n")
	b.WriteString(reminder.Title)
	if body := strings.TrimSpace(reminder.Body); body != "" {
		b.WriteString("\n\n")
		b.WriteString(body)
	}
	return b.String()
}

// Present pushes the reminder with quick replies to dismiss or snooze it.
func (s *Sink) Present(ctx context.Context, reminder entity.Reminder) error {
	dismiss := fmt.Sprintf("%s %d", DismissCommand, reminder.ID)
	snooze := fmt.Sprintf("%s %d %d", SnoozeCommand, reminder.ID, DefaultSnoozeMinutes)
	quickReply := linebot.NewQuickReplyItems(
		linebot.NewQuickReplyButton("", linebot.NewMessageAction("確認", dismiss)),
		linebot.NewQuickReplyButton("", linebot.NewMessageAction(fmt.Sprintf("スヌーズ(%d分)", DefaultSnoozeMinutes), snooze)),
	)
	message := linebot.NewTextMessage(FormatReminder(reminder)).WithQuickReplies(quickReply)

	if err := s.client.PushMessages(ctx, s.to, message); err != nil {
		return fmt.Errorf("%w: push reminder %d: %v", appErrors.ErrLineAPI, reminder.ID, err)
	}
	return nil
}
