package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Handler processes one event. A returned error is logged by the bus and
// isolated: it never reaches the publisher and never stops other
// subscriptions. Handlers must be cooperative with the supplied context;
// the bus does not interrupt them.
type Handler func(ctx context.Context, evt Event) error

// SubscriptionInfo describes one live subscription.
type SubscriptionInfo struct {
	ID        string
	EventType string
	Pending   int
}

type subscription struct {
	id        string
	eventType string
	handler   Handler

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
}

// Bus is the in-process event bus. Per-subscription ordering is FIFO; the
// idle barrier (WaitForIdle) observes every previously published event
// drained and every handler returned.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*subscription

	idleMu   sync.Mutex
	idleCond *sync.Cond
	inflight int

	logger *slog.Logger

	published metric.Int64Counter
	handled   metric.Int64Counter
	failed    metric.Int64Counter
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger overrides the bus logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

// WithMeter installs OpenTelemetry counters for published, handled and
// failed events.
func WithMeter(m metric.Meter) Option {
	return func(b *Bus) {
		b.published, _ = m.Int64Counter("gitgov.events.published")
		b.handled, _ = m.Int64Counter("gitgov.events.handled")
		b.failed, _ = m.Int64Counter("gitgov.events.failed")
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:   make(map[string]*subscription),
		logger: slog.Default().With("component", "eventbus"),
	}
	b.idleCond = sync.NewCond(&b.idleMu)
	noopMeter := noop.NewMeterProvider().Meter("gitgov")
	b.published, _ = noopMeter.Int64Counter("gitgov.events.published")
	b.handled, _ = noopMeter.Int64Counter("gitgov.events.handled")
	b.failed, _ = noopMeter.Int64Counter("gitgov.events.failed")
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for an event type ("*" for all) and starts
// its worker. Returns the subscription id.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	sub := &subscription{
		id:        uuid.NewString(),
		eventType: eventType,
		handler:   handler,
	}
	sub.cond = sync.NewCond(&sub.mu)

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go b.run(sub)
	return sub.id
}

// Unsubscribe stops a subscription. Events already queued for it are
// discarded; the in-flight handler, if any, finishes first.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	sub.mu.Lock()
	dropped := len(sub.queue)
	sub.queue = nil
	sub.closed = true
	sub.cond.Broadcast()
	sub.mu.Unlock()

	if dropped > 0 {
		b.settle(dropped)
	}
}

// GetSubscriptions lists live subscriptions.
func (b *Bus) GetSubscriptions() []SubscriptionInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]SubscriptionInfo, 0, len(b.subs))
	for _, sub := range b.subs {
		sub.mu.Lock()
		out = append(out, SubscriptionInfo{ID: sub.id, EventType: sub.eventType, Pending: len(sub.queue)})
		sub.mu.Unlock()
	}
	return out
}

// ClearSubscriptions removes every subscription.
func (b *Bus) ClearSubscriptions() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		dropped := len(sub.queue)
		sub.queue = nil
		sub.closed = true
		sub.cond.Broadcast()
		sub.mu.Unlock()
		if dropped > 0 {
			b.settle(dropped)
		}
	}
}

// Publish enqueues evt for every matching subscription and returns
// immediately. The publisher never waits on handlers.
func (b *Bus) Publish(evt Event) {
	if evt.ID == "" {
		evt = NewEvent(evt.Type, evt.Source, evt.Payload)
	}
	b.published.Add(context.Background(), 1)

	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		if sub.eventType == evt.Type || sub.eventType == TypeAny {
			targets = append(targets, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		sub.mu.Lock()
		if sub.closed {
			sub.mu.Unlock()
			continue
		}
		b.track(1)
		sub.queue = append(sub.queue, evt)
		sub.cond.Signal()
		sub.mu.Unlock()
	}
}

// WaitForIdle blocks until every subscription queue is empty and no
// handler is executing, or until ctx is done.
func (b *Bus) WaitForIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		b.idleMu.Lock()
		b.idleCond.Broadcast()
		b.idleMu.Unlock()
	})
	defer stop()

	b.idleMu.Lock()
	defer b.idleMu.Unlock()
	for b.inflight > 0 && ctx.Err() == nil {
		b.idleCond.Wait()
	}
	return ctx.Err()
}

func (b *Bus) run(sub *subscription) {
	for {
		sub.mu.Lock()
		for len(sub.queue) == 0 && !sub.closed {
			sub.cond.Wait()
		}
		if sub.closed {
			sub.mu.Unlock()
			return
		}
		evt := sub.queue[0]
		sub.queue = sub.queue[1:]
		sub.mu.Unlock()

		b.dispatch(sub, evt)
		b.settle(1)
	}
}

func (b *Bus) dispatch(sub *subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.failed.Add(context.Background(), 1)
			b.logger.Error("event handler panicked",
				"subscription", sub.id, "event_type", evt.Type, "event_id", evt.ID, "panic", r)
		}
	}()
	if err := sub.handler(context.Background(), evt); err != nil {
		b.failed.Add(context.Background(), 1)
		b.logger.Error("event handler failed",
			"subscription", sub.id, "event_type", evt.Type, "event_id", evt.ID, "error", err)
		return
	}
	b.handled.Add(context.Background(), 1)
}

func (b *Bus) track(n int) {
	b.idleMu.Lock()
	b.inflight += n
	b.idleMu.Unlock()
}

func (b *Bus) settle(n int) {
	b.idleMu.Lock()
	b.inflight -= n
	if b.inflight <= 0 {
		b.inflight = 0
		b.idleCond.Broadcast()
	}
	b.idleMu.Unlock()
}
