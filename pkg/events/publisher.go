package events

import (
	"context"
	"time"
)

// Publisher drives one class of OS signal source.
//
// The bus calls SetUp once, then Run repeatedly on the publisher's own
// goroutine until the context is cancelled, then TearDown exactly once.
// Configure may be called at any time from another goroutine whenever the
// subscription set changes; implementations guard their derived state.
type Publisher interface {
	// Name is the unique publisher name, for example "inotify" or "audit".
	Name() string

	// NewSubscriptionContext returns an empty filter for subscribers to fill in.
	NewSubscriptionContext() SubscriptionContext

	// SetUp acquires the publisher's OS resources.
	SetUp() error

	// Configure recomputes derived filter state from the current
	// subscriptions. Calling it twice with the same set yields the same
	// state.
	Configure(subs []*Subscription)

	// Run performs one bounded unit of acquisition work and returns the
	// events it produced. A nil error continues the loop, ErrPublisherDone
	// ends it cleanly, and any other error ends it as a failure.
	Run(ctx context.Context) ([]EventContext, error)

	// TearDown releases everything SetUp acquired.
	TearDown()

	// ShouldFire decides whether ec satisfies sc. It must not mutate either
	// argument and is called concurrently with Configure.
	ShouldFire(sc SubscriptionContext, ec EventContext) bool
}

// Cooldowner is implemented by publishers that want a cooldown other than
// the bus default between empty Run calls.
type Cooldowner interface {
	Cooldown() time.Duration
}

// Subscriber is a named consumer attached to one publisher.
type Subscriber interface {
	// Name is the unique subscriber name.
	Name() string

	// Publisher names the publisher this subscriber attaches to.
	Publisher() string

	// Init creates the subscriber's subscriptions through r. It is called
	// on registration and again on every reload.
	Init(r Registrar) error
}

// Registrar is handed to Subscriber.Init. Contexts come from the target
// publisher and subscriptions are attached to it under the subscriber's name.
type Registrar interface {
	NewSubscriptionContext() SubscriptionContext
	Subscribe(sc SubscriptionContext, cb Callback) error
}

// Observer sees the outcome of every callback invocation. It is used by
// tests and diagnostics; it runs on the publisher goroutine.
type Observer interface {
	Observe(publisher string, sub *Subscription, ec EventContext, err error)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(publisher string, sub *Subscription, ec EventContext, err error)

// Observe implements Observer
func (f ObserverFunc) Observe(publisher string, sub *Subscription, ec EventContext, err error) {
	f(publisher, sub, ec, err)
}
