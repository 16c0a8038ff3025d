package scheduler

import (
	"context"
	"fmt"
	"reminderengine/internal/domain/capability"
	appErrors "reminderengine/internal/pkg/errors"
	"reminderengine/internal/pkg/logger"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultDeliveryTimeout = 30 * time.Second

type cronHandle struct {
	entryID    cron.EntryID
	reminderID uint
	token      string
}

func (h cronHandle) ReminderID() uint { return h.reminderID }
func (h cronHandle) Token() string    { return h.token }

// CronTimerSource implements capability.TimerSource on top of the cron Scheduler.
// Every registration is a one-shot entry keyed by its token.
type CronTimerSource struct {
	sched *Scheduler
	log   logger.Logger

	mu      sync.Mutex
	handler capability.FireHandler
	pending map[string]cron.EntryID // token -> entry; zero entry means immediate delivery

	allowed         func() bool
	now             func() time.Time
	deliveryTimeout time.Duration
}

// Option configures a CronTimerSource.
type Option func(*CronTimerSource)

// WithPermission installs the check consulted before every registration.
// When it reports false, registrations fail with ErrCapabilityDenied.
func WithPermission(allowed func() bool) Option {
	return func(s *CronTimerSource) { s.allowed = allowed }
}

// WithDeliveryTimeout bounds the fire handler call.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(s *CronTimerSource) {
		if d > 0 {
			s.deliveryTimeout = d
		}
	}
}

// NewCronTimerSource creates a TimerSource backed by sched.
func NewCronTimerSource(sched *Scheduler, log logger.Logger, opts ...Option) *CronTimerSource {
	s := &CronTimerSource{
		sched:           sched,
		log:             log,
		pending:         make(map[string]cron.EntryID),
		allowed:         func() bool { return true },
		now:             time.Now,
		deliveryTimeout: defaultDeliveryTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFireHandler sets the function called when a registration comes due.
func (s *CronTimerSource) SetFireHandler(handler capability.FireHandler) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

// formatCronSpec generates a cron spec string for a specific UTC time.
func formatCronSpec(t time.Time) string {
	t = t.UTC()
	// Seconds Minutes Hours DayOfMonth Month DayOfWeek
	return fmt.Sprintf("%d %d %d %d %d *", t.Second(), t.Minute(), t.Hour(), t.Day(), t.Month())
}

// ceilSecond rounds t up to the next whole second so a registration never fires early.
func ceilSecond(t time.Time) time.Time {
	if tr := t.Truncate(time.Second); !tr.Equal(t) {
		return tr.Add(time.Second)
	}
	return t
}

// RequestInvocation registers a one-shot callback for (reminderID, token) at dueAt.
// Due times that are not in the future are delivered right away.
func (s *CronTimerSource) RequestInvocation(ctx context.Context, dueAt time.Time, reminderID uint, token string) (capability.RegistrationHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.allowed() {
		return nil, fmt.Errorf("%w: exact timers are not permitted for this host", appErrors.ErrCapabilityDenied)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.pending[token]; dup {
		return nil, fmt.Errorf("token %s already registered", token)
	}

	due := ceilSecond(dueAt)
	if !due.After(s.now()) {
		s.pending[token] = 0
		go s.fire(reminderID, token)
		s.log.Debug(fmt.Sprintf("Reminder %d is already due, delivering immediately", reminderID))
		return cronHandle{reminderID: reminderID, token: token}, nil
	}

	job := func() {
		// The spec carries no year, so a far-future due time matches a year early too.
		if s.now().Add(time.Second).Before(due) {
			return
		}
		s.fire(reminderID, token)
	}
	entryID, err := s.sched.AddJob(formatCronSpec(due), job)
	if err != nil {
		return nil, err
	}
	s.pending[token] = entryID
	return cronHandle{entryID: entryID, reminderID: reminderID, token: token}, nil
}

// CancelInvocation removes a pending registration. Unknown handles are ignored.
func (s *CronTimerSource) CancelInvocation(ctx context.Context, handle capability.RegistrationHandle) error {
	if handle == nil {
		return nil
	}
	s.mu.Lock()
	entryID, ok := s.pending[handle.Token()]
	delete(s.pending, handle.Token())
	s.mu.Unlock()

	if ok && entryID != 0 {
		s.sched.RemoveJob(entryID)
	}
	return nil
}

// Pending reports how many registrations have not fired or been cancelled yet.
func (s *CronTimerSource) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// fire claims the registration and hands it to the fire handler exactly once.
func (s *CronTimerSource) fire(reminderID uint, token string) {
	s.mu.Lock()
	entryID, ok := s.pending[token]
	if ok {
		delete(s.pending, token)
	}
	handler := s.handler
	s.mu.Unlock()

	if !ok {
		return
	}
	if entryID != 0 {
		s.sched.RemoveJob(entryID)
	}
	if handler == nil {
		s.log.Warn(fmt.Sprintf("No fire handler set, dropping callback for reminder %d", reminderID))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.deliveryTimeout)
	defer cancel()
	handler(ctx, reminderID, token)
}
