package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventContext is the typed payload of one occurrence. Each publisher
// defines its own concrete type.
type EventContext interface {
	EventTime() time.Time
}

// SubscriptionContext is a publisher-specific filter, for example a path
// and action mask for file watching. Publishers hand out empty contexts via
// NewSubscriptionContext and interpret them in ShouldFire.
type SubscriptionContext interface{}

// Callback receives a matching event on the publisher's goroutine.
type Callback func(ec EventContext, sc SubscriptionContext) error

// EventBase carries the fields shared by every event context
type EventBase struct {
	Time time.Time
}

// EventTime implements EventContext
func (b EventBase) EventTime() time.Time {
	return b.Time
}

// Subscription pairs a subscriber with a filter against one publisher. It
// is immutable once created.
type Subscription struct {
	id         string
	subscriber string
	context    SubscriptionContext
	callback   Callback
}

// NewSubscription creates a subscription for the named subscriber
func NewSubscription(subscriber string, sc SubscriptionContext, cb Callback) *Subscription {
	return &Subscription{
		id:         uuid.New().String(),
		subscriber: subscriber,
		context:    sc,
		callback:   cb,
	}
}

// ID returns the unique subscription ID
func (s *Subscription) ID() string { return s.id }

// Subscriber returns the name of the owning subscriber
func (s *Subscription) Subscriber() string { return s.subscriber }

// Context returns the subscription's filter
func (s *Subscription) Context() SubscriptionContext { return s.context }

// Callback returns the subscription's callback
func (s *Subscription) Callback() Callback { return s.callback }

// Typed adapts a callback written against concrete context types. A
// mismatched context is reported as ErrContextType.
func Typed[E EventContext, S SubscriptionContext](fn func(ec E, sc S) error) Callback {
	return func(ec EventContext, sc SubscriptionContext) error {
		e, ok := ec.(E)
		if !ok {
			return fmt.Errorf("%w: event context %T", ErrContextType, ec)
		}
		s, ok := sc.(S)
		if !ok {
			return fmt.Errorf("%w: subscription context %T", ErrContextType, sc)
		}
		return fn(e, s)
	}
}
