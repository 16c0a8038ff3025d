package dto

import (
	"reminderengine/internal/domain/constant"
	"reminderengine/internal/domain/entity"
	"time"
)

// ReminderResponse is the DTO for sending reminder information to the client.
type ReminderResponse struct {
	ID        uint      `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body,omitempty"`
	DueAt     time.Time `json:"due_at"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ToReminderResponse converts an entity.Reminder to a ReminderResponse DTO.
func ToReminderResponse(r *entity.Reminder) ReminderResponse {
	return ReminderResponse{
		ID:        r.ID,
		Title:     r.Title,
		Body:      r.Body,
		DueAt:     r.DueAt.UTC(),
		State:     constant.ReminderState(r.State).String(),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// ToReminderResponseList converts a slice of entity.Reminder to a slice of ReminderResponse DTOs.
func ToReminderResponseList(reminders []*entity.Reminder) []ReminderResponse {
	list := make([]ReminderResponse, len(reminders))
	for i, r := range reminders {
		list[i] = ToReminderResponse(r)
	}
	return list
}

// ScheduleReminderRequest is the DTO for scheduling a reminder.
// A nil ID allocates a new reminder; an existing ID re-schedules it.
type ScheduleReminderRequest struct {
	ID    *uint     `json:"id,omitempty"`
	Title string    `json:"title"`
	Body  string    `json:"body"`
	DueAt time.Time `json:"due_at"`
}

// ScheduleReminderResponse is returned after a reminder has been armed.
type ScheduleReminderResponse struct {
	ID uint `json:"id"`
}

// SnoozeRequest is the DTO for snoozing a fired reminder.
type SnoozeRequest struct {
	Minutes int `json:"minutes"`
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}
