package handler

import (
	"context"
	"strconv"
	"sync"
	"time"

	"reminderengine/internal/application/dto"
	"reminderengine/internal/domain/constant"
	"reminderengine/internal/domain/entity"
)

// fakeReminderService records calls and returns the configured error.
type fakeReminderService struct {
	mu    sync.Mutex
	ready bool
	err   error
	calls []string

	scheduled []dto.ScheduleReminderRequest
	snoozedBy time.Duration
	reminders map[uint]*entity.Reminder
}

func newFakeReminderService() *fakeReminderService {
	return &fakeReminderService{ready: true, reminders: make(map[uint]*entity.Reminder)}
}

func (f *fakeReminderService) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeReminderService) lastCall() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeReminderService) Start(context.Context) error { return nil }
func (f *fakeReminderService) Ready() bool                 { return f.ready }

func (f *fakeReminderService) Schedule(_ context.Context, req dto.ScheduleReminderRequest) (uint, error) {
	if err := f.record("Schedule"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, req)
	if req.ID != nil {
		return *req.ID, nil
	}
	return uint(len(f.scheduled)), nil
}

func (f *fakeReminderService) Cancel(_ context.Context, id uint) error {
	return f.record("Cancel " + itoa(id))
}

func (f *fakeReminderService) Acknowledge(_ context.Context, id uint) error {
	return f.record("Acknowledge " + itoa(id))
}

func (f *fakeReminderService) List(context.Context) ([]dto.ReminderResponse, error) {
	if err := f.record("List"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []dto.ReminderResponse
	for _, r := range f.reminders {
		out = append(out, dto.ToReminderResponse(r))
	}
	return out, nil
}

func (f *fakeReminderService) GetReminder(_ context.Context, id uint) (*entity.Reminder, error) {
	if err := f.record("GetReminder " + itoa(id)); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.reminders[id]; ok {
		return r, nil
	}
	r := &entity.Reminder{ID: id, Title: "stub"}
	r.SetState(constant.StateScheduled)
	return r, nil
}

func (f *fakeReminderService) Snooze(_ context.Context, id uint, d time.Duration) error {
	if err := f.record("Snooze " + itoa(id)); err != nil {
		return err
	}
	f.mu.Lock()
	f.snoozedBy = d
	f.mu.Unlock()
	return nil
}

func (f *fakeReminderService) Delete(_ context.Context, id uint) error {
	return f.record("Delete " + itoa(id))
}

func (f *fakeReminderService) PurgeHistory(context.Context, time.Time) (int64, error) {
	return 0, f.record("PurgeHistory")
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
