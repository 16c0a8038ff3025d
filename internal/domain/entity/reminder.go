package entity

import (
	"reminderengine/internal/domain/constant"
	"time"
)

// Reminder represents a user-scheduled notification and its lifecycle state.
type Reminder struct {
	ID                uint      `gorm:"primaryKey;autoIncrement"`
	Title             string    `gorm:"column:title;not null"`
	Body              string    `gorm:"column:body;type:text"`
	DueAt             time.Time `gorm:"column:due_at;index"`
	State             int       `gorm:"column:state;index"`
	RegistrationToken *string   `gorm:"column:registration_token"` // Set only while State is Scheduled
	CreatedAt         time.Time `gorm:"column:created_at"`
	UpdatedAt         time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for the Reminder entity.
func (Reminder) TableName() string {
	return "reminders"
}

// GetState returns the reminder state as a ReminderState type.
func (r *Reminder) GetState() constant.ReminderState {
	return constant.ReminderState(r.State)
}

// SetState sets the reminder state.
func (r *Reminder) SetState(state constant.ReminderState) {
	r.State = state.Int()
}
