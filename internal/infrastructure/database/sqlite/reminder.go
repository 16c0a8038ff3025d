package sqlite

import (
	"context"
	"errors"
	"fmt"
	"reminderengine/internal/domain/constant"
	"reminderengine/internal/domain/entity"
	"reminderengine/internal/domain/repository"
	appErrors "reminderengine/internal/pkg/errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type reminderRepository struct {
	db *gorm.DB
}

// NewReminderRepository creates a new instance of ReminderRepository.
func NewReminderRepository(db *gorm.DB) repository.ReminderRepository {
	return &reminderRepository{db: db}
}

// Put inserts a new reminder or replaces an existing one with the same ID.
func (r *reminderRepository) Put(ctx context.Context, reminder *entity.Reminder) error {
	reminder.DueAt = reminder.DueAt.UTC()
	tx := r.db.WithContext(ctx)
	if reminder.ID != 0 {
		tx = tx.Clauses(clause.OnConflict{UpdateAll: true})
	}
	if err := tx.Create(reminder).Error; err != nil {
		return fmt.Errorf("failed to put reminder %d: %w", reminder.ID, err)
	}
	return nil
}

// FindByID retrieves a reminder by its ID.
func (r *reminderRepository) FindByID(ctx context.Context, id uint) (*entity.Reminder, error) {
	var reminder entity.Reminder
	if err := r.db.WithContext(ctx).First(&reminder, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", appErrors.ErrReminderNotFound, id)
		}
		return nil, fmt.Errorf("failed to find reminder by id %d: %w", id, err)
	}
	return &reminder, nil
}

// FindScheduled retrieves all Scheduled reminders ordered by due time.
func (r *reminderRepository) FindScheduled(ctx context.Context) ([]*entity.Reminder, error) {
	var reminders []*entity.Reminder
	err := r.db.WithContext(ctx).
		Where("state = ?", constant.StateScheduled.Int()).
		Order("due_at asc").Order("id asc").
		Find(&reminders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find scheduled reminders: %w", err)
	}
	return reminders, nil
}

// FindAll retrieves every reminder ordered by due time.
func (r *reminderRepository) FindAll(ctx context.Context) ([]*entity.Reminder, error) {
	var reminders []*entity.Reminder
	if err := r.db.WithContext(ctx).Order("due_at asc").Order("id asc").Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("failed to find all reminders: %w", err)
	}
	return reminders, nil
}

// UpdateState changes the state of a reminder in a single statement.
func (r *reminderRepository) UpdateState(ctx context.Context, id uint, state constant.ReminderState) error {
	updates := map[string]interface{}{"state": state.Int()}
	if state != constant.StateScheduled {
		updates["registration_token"] = nil
	}
	res := r.db.WithContext(ctx).Model(&entity.Reminder{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update state of reminder %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", appErrors.ErrReminderNotFound, id)
	}
	return nil
}

// SetRegistration records (dueAt, token) for a reminder and marks it Scheduled.
func (r *reminderRepository) SetRegistration(ctx context.Context, id uint, dueAt time.Time, token string) error {
	res := r.db.WithContext(ctx).Model(&entity.Reminder{}).Where("id = ?", id).Updates(map[string]interface{}{
		"due_at":             dueAt.UTC(),
		"registration_token": token,
		"state":              constant.StateScheduled.Int(),
	})
	if res.Error != nil {
		return fmt.Errorf("failed to set registration of reminder %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", appErrors.ErrReminderNotFound, id)
	}
	return nil
}

// Delete deletes a reminder by its ID.
func (r *reminderRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&entity.Reminder{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete reminder %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", appErrors.ErrReminderNotFound, id)
	}
	return nil
}

// DeleteInactiveBefore purges acknowledged and cancelled reminders older than threshold.
func (r *reminderRepository) DeleteInactiveBefore(ctx context.Context, threshold time.Time) (int64, error) {
	inactive := []int{constant.StateAcknowledged.Int(), constant.StateCancelled.Int()}
	res := r.db.WithContext(ctx).
		Where("state IN ? AND updated_at < ?", inactive, threshold.UTC()).
		Delete(&entity.Reminder{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to purge reminders older than %v: %w", threshold, res.Error)
	}
	return res.RowsAffected, nil
}
