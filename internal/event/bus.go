// Package event delivers session events to subscribers by topic.
//
// Delivery is synchronous: Publish calls every matching handler on the
// publishing goroutine, in subscription order. Sessions publish from their
// executor, so handlers observe events in the same order as the state
// changes that caused them.
package event

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Event is one published event.
type Event struct {
	Topic   Topic
	Session string
	Time    time.Time
	Payload any
}

// New creates an event stamped with the current time.
func New(topic Topic, session string, payload any) Event {
	return Event{Topic: topic, Session: session, Time: time.Now(), Payload: payload}
}

// Handler processes events.
type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Stats holds bus counters.
type Stats struct {
	Published     uint64
	Delivered     uint64
	HandlerErrors uint64
	HandlerPanics uint64
	Subscriptions int
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithLogger sets the logger used for handler failures.
func WithLogger(logger *zap.Logger) BusOption {
	return func(b *Bus) {
		b.logger = logger
	}
}

// Bus is a topic-based publish/subscribe hub.
type Bus struct {
	logger *zap.Logger

	mu   sync.Mutex
	subs []*subscription

	published     atomic.Uint64
	delivered     atomic.Uint64
	handlerErrors atomic.Uint64
	handlerPanics atomic.Uint64
}

// NewBus creates an event bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler for topics matching pattern.
func (b *Bus) Subscribe(pattern Topic, handler Handler) (Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if !pattern.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, pattern)
	}

	sub := &subscription{id: uuid.NewString(), pattern: pattern, handler: handler, bus: b}
	sub.active.Store(true)

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return sub, nil
}

// SubscribeFunc registers fn for topics matching pattern.
func (b *Bus) SubscribeFunc(pattern Topic, fn func(ctx context.Context, ev Event) error) (Subscription, error) {
	if fn == nil {
		return nil, ErrNilHandler
	}
	return b.Subscribe(pattern, HandlerFunc(fn))
}

// Publish delivers ev to every matching subscription. Handler errors and
// panics do not stop delivery; they are returned combined.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	if !ev.Topic.Valid() || ev.Topic.IsWildcard() {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, ev.Topic)
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.published.Add(1)

	b.mu.Lock()
	subs := append([]*subscription(nil), b.subs...)
	b.mu.Unlock()

	var errs error
	for _, sub := range subs {
		if !sub.IsActive() || !ev.Topic.Matches(sub.pattern) {
			continue
		}
		if err := b.deliver(ctx, sub, ev); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (b *Bus) deliver(ctx context.Context, sub *subscription, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.handlerPanics.Add(1)
			err = &PanicError{SubscriptionID: sub.id, Topic: ev.Topic, Value: r, Stack: string(debug.Stack())}
			b.logger.Error("event handler panicked",
				zap.String("topic", string(ev.Topic)),
				zap.String("subscription", sub.id),
				zap.Any("panic", r))
		}
	}()

	if herr := sub.handler.Handle(ctx, ev); herr != nil {
		b.handlerErrors.Add(1)
		b.logger.Warn("event handler failed",
			zap.String("topic", string(ev.Topic)),
			zap.String("subscription", sub.id),
			zap.Error(herr))
		return &HandlerError{SubscriptionID: sub.id, Topic: ev.Topic, Err: herr}
	}
	b.delivered.Add(1)
	return nil
}

func (b *Bus) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, s := range b.subs {
		if s == sub {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Clear cancels every subscription.
func (b *Bus) Clear() {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		s.active.Store(false)
	}
}

// Stats returns a copy of the counters.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	n := len(b.subs)
	b.mu.Unlock()

	return Stats{
		Published:     b.published.Load(),
		Delivered:     b.delivered.Load(),
		HandlerErrors: b.handlerErrors.Load(),
		HandlerPanics: b.handlerPanics.Load(),
		Subscriptions: n,
	}
}
