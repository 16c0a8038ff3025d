// Package notify hands fired reminders to a NotificationSink off the timer's delivery path.
package notify

import (
	"context"
	"fmt"
	"reminderengine/internal/domain/capability"
	"reminderengine/internal/domain/entity"
	appErrors "reminderengine/internal/pkg/errors"
	"reminderengine/internal/pkg/logger"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config tunes the dispatcher queue.
type Config struct {
	QueueSize  int
	Workers    int
	RatePerSec int
	Timeout    time.Duration // Upper bound for a single Present call
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// Dispatcher is a bounded queue drained by a worker pool that presents reminders.
// Each enqueued reminder is presented at most once; failures are logged, not retried.
type Dispatcher struct {
	sink    capability.NotificationSink
	log     logger.Logger
	cfg     Config
	limiter *rate.Limiter

	mu        sync.Mutex
	queue     chan entity.Reminder
	accepting bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewDispatcher creates a stopped dispatcher. Call Start before enqueueing.
func NewDispatcher(sink capability.NotificationSink, cfg Config, log logger.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		sink: sink,
		log:  log,
		cfg:  cfg,
		// Burst equals the per-second rate so a batch of overdue reminders after a restart drains quickly.
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Start launches the workers. Calling Start twice is a no-op.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queue != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.queue = make(chan entity.Reminder, d.cfg.QueueSize)
	d.accepting = true
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(runCtx, d.queue)
	}
	d.log.Info(fmt.Sprintf("Notification dispatcher started with %d workers.", d.cfg.Workers))
}

// Enqueue schedules a reminder for presentation without blocking.
func (d *Dispatcher) Enqueue(reminder entity.Reminder) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.accepting {
		return fmt.Errorf("%w: dispatcher not running", appErrors.ErrQueueFull)
	}
	select {
	case d.queue <- reminder:
		return nil
	default:
		return fmt.Errorf("%w: capacity %d", appErrors.ErrQueueFull, d.cfg.QueueSize)
	}
}

// Stop stops accepting work, drains what is queued and waits for the workers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.accepting {
		d.mu.Unlock()
		return
	}
	d.accepting = false
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
	d.log.Info("Notification dispatcher stopped.")
}

func (d *Dispatcher) worker(ctx context.Context, queue <-chan entity.Reminder) {
	defer d.wg.Done()
	for reminder := range queue {
		d.present(ctx, reminder)
	}
}

func (d *Dispatcher) present(ctx context.Context, reminder entity.Reminder) {
	if err := d.limiter.Wait(ctx); err != nil {
		d.log.Error(fmt.Sprintf("Dropped notification for reminder %d", reminder.ID),
			fmt.Errorf("%w: %v", appErrors.ErrPresentationFailed, err))
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()
	if err := d.sink.Present(callCtx, reminder); err != nil {
		// The fire already happened; the reminder stays Fired.
		d.log.Error(fmt.Sprintf("Failed to present reminder %d", reminder.ID),
			fmt.Errorf("%w: %v", appErrors.ErrPresentationFailed, err))
		return
	}
	d.log.Info(fmt.Sprintf("Presented reminder %d", reminder.ID))
}
