package service

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/port"
)

// EventPublisher accepts order events once their transaction has committed.
type EventPublisher interface {
	Enqueue(event domain.OrderEvent) bool
}

type DispatcherConfig struct {
	Workers        int
	QueueSize      int
	MaxRetries     uint64
	InitialBackoff time.Duration
	AttemptTimeout time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1000
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 200 * time.Millisecond
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 5 * time.Second
	}
	return c
}

// Dispatcher delivers order notifications from a bounded queue using a fixed
// pool of workers. Delivery never feeds back into the order that caused it.
type Dispatcher struct {
	notifier port.Notifier
	users    port.UserRepository
	logger   *zap.Logger
	cfg      DispatcherConfig

	queue  chan domain.OrderEvent
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewDispatcher creates a stopped dispatcher; call Start to launch workers.
// users is used to fill in the recipient email and may be nil.
func NewDispatcher(notifier port.Notifier, users port.UserRepository, logger *zap.Logger, cfg DispatcherConfig) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		notifier: notifier,
		users:    users,
		logger:   logger,
		cfg:      cfg,
		queue:    make(chan domain.OrderEvent, cfg.QueueSize),
	}
}

var _ EventPublisher = (*Dispatcher)(nil)

func (d *Dispatcher) Start() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.workerLoop(id)
		}(i)
	}
	d.logger.Info("notification dispatcher started",
		zap.Int("workers", d.cfg.Workers),
		zap.Int("queue_size", d.cfg.QueueSize),
	)
}

// Enqueue hands event to the workers without blocking. It returns false when
// the queue is full or the dispatcher is closed; the event is dropped.
func (d *Dispatcher) Enqueue(event domain.OrderEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("dispatcher closed, dropping event",
			zap.String("type", string(event.Type)),
			zap.String("order_number", event.OrderNumber),
		)
		return false
	}

	select {
	case d.queue <- event:
		return true
	default:
		d.logger.Warn("notification queue full, dropping event",
			zap.String("type", string(event.Type)),
			zap.String("order_number", event.OrderNumber),
		)
		return false
	}
}

// Close stops accepting events, lets the workers drain what is queued and
// waits for them to exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("notification dispatcher stopped")
}

func (d *Dispatcher) workerLoop(id int) {
	for event := range d.queue {
		d.deliver(id, event)
	}
}

func (d *Dispatcher) deliver(worker int, event domain.OrderEvent) {
	log := d.logger.With(
		zap.Int("worker", worker),
		zap.String("type", string(event.Type)),
		zap.String("order_number", event.OrderNumber),
	)

	if event.Email == "" && d.users != nil {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.AttemptTimeout)
		u, err := d.users.GetUserByID(ctx, event.UserID)
		cancel()
		if err != nil {
			log.Warn("recipient lookup failed", zap.Int64("user_id", event.UserID), zap.Error(err))
		} else {
			event.Email = u.Email
		}
	}

	policy := backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(backoff.WithInitialInterval(d.cfg.InitialBackoff)),
		d.cfg.MaxRetries,
	)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.AttemptTimeout)
		defer cancel()
		return d.notifier.NotifyOrder(ctx, event)
	}, policy, func(err error, wait time.Duration) {
		log.Warn("notification attempt failed",
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	})
	if err != nil {
		log.Error("notification delivery failed", zap.Int("attempts", attempt), zap.Error(err))
		return
	}
	log.Debug("notification delivered", zap.Int("attempts", attempt))
}
