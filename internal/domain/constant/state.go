package constant

import "strings"

// ReminderState defines the lifecycle states of a reminder.
type ReminderState int

const (
	// StateScheduled means a live timer registration exists for the reminder.
	StateScheduled ReminderState = iota // 0
	// StateFired means the timer callback ran and the notification was handed off.
	StateFired // 1
	// StateAcknowledged means the user dismissed the notification.
	StateAcknowledged // 2
	// StateCancelled means the reminder was cancelled before firing.
	StateCancelled // 3
)

var stateNames = map[ReminderState]string{
	StateScheduled:    "scheduled",
	StateFired:        "fired",
	StateAcknowledged: "acknowledged",
	StateCancelled:    "cancelled",
}

func (s ReminderState) Int() int {
	return int(s)
}

func (s ReminderState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseReminderState maps a state name back to its value.
func ParseReminderState(name string) (ReminderState, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range stateNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}
