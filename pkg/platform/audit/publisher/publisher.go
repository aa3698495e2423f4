// Package publisher delivers audit events to a sink on a best-effort basis.
// Delivery failures are logged and counted but never fail the operation
// that produced the event. A circuit breaker stops hammering a sink that is
// down.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	audit "referral/pkg/platform/audit"
	"referral/pkg/platform/circuit"
)

// ErrBufferFull is returned by Emit in async mode when the buffer is saturated.
var ErrBufferFull = errors.New("audit buffer full")

// ErrCircuitOpen is returned by Emit in sync mode while the sink is considered down.
var ErrCircuitOpen = errors.New("audit sink circuit open")

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("audit publisher closed")

// Publisher emits audit events to a Store.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	breaker *circuit.Breaker

	// mu guards closed and sends on buffer against Close.
	mu     sync.RWMutex
	closed bool
	buffer chan audit.Event
	wg     sync.WaitGroup
	once   sync.Once
}

type Option func(*Publisher)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Publisher) {
		p.breaker = b
	}
}

// WithAsyncBuffer delivers events from a background goroutine through a
// buffer of size n. Events are dropped when the buffer is full.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.buffer = make(chan audit.Event, n)
		}
	}
}

// NewPublisher creates a publisher. Without WithAsyncBuffer, Emit delivers
// synchronously.
func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.breaker == nil {
		p.breaker = circuit.New("audit", circuit.WithFailureThreshold(5), circuit.WithCooldown(time.Minute))
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Emit stamps the event and hands it to the sink.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.warn(ctx, "audit publisher closed, dropping event", event, nil)
		return ErrClosed
	}
	if p.buffer == nil {
		return p.deliver(ctx, event)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.buffer <- event:
		return nil
	default:
		if p.metrics != nil {
			p.metrics.IncBufferDropped()
		}
		p.warn(ctx, "audit buffer full, dropping event", event, nil)
		return ErrBufferFull
	}
}

// Close stops accepting events and drains the buffer.
func (p *Publisher) Close() error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		if p.buffer != nil {
			close(p.buffer)
		}
		p.mu.Unlock()
		p.wg.Wait()
	})
	return nil
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for event := range p.buffer {
		// The emitting request may be long gone; deliver under a fresh context.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = p.deliver(ctx, event)
		cancel()
	}
}

func (p *Publisher) deliver(ctx context.Context, event audit.Event) error {
	if !p.breaker.Allow() {
		if p.metrics != nil {
			p.metrics.IncCircuitBreakerDropped()
		}
		return ErrCircuitOpen
	}
	if err := p.store.Append(ctx, event); err != nil {
		_, change := p.breaker.RecordFailure()
		if p.metrics != nil {
			p.metrics.IncDeliveryFailures()
		}
		if change.Opened {
			p.breakerChanged(ctx)
		}
		p.warn(ctx, "audit delivery failed", event, err)
		return err
	}
	_, change := p.breaker.RecordSuccess()
	if p.metrics != nil {
		p.metrics.IncDelivered()
	}
	if change.Closed {
		p.breakerChanged(ctx)
	}
	return nil
}

func (p *Publisher) breakerChanged(ctx context.Context) {
	if p.metrics != nil {
		p.metrics.SetCircuitBreakerState(p.breaker.IsOpen())
	}
	if p.logger != nil {
		p.logger.InfoContext(ctx, "audit circuit breaker changed state",
			"breaker", p.breaker.Name(),
			"state", p.breaker.State().String(),
		)
	}
}

func (p *Publisher) warn(ctx context.Context, msg string, event audit.Event, err error) {
	if p.logger == nil {
		return
	}
	args := []any{
		"action", event.Action,
		"account_id", event.AccountID,
		"request_id", event.RequestID,
	}
	if err != nil {
		args = append(args, "error", err)
	}
	p.logger.WarnContext(ctx, msg, args...)
}
