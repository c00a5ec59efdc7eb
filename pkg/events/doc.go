/*
Package events is the publish/subscribe core of lookout.

A Publisher wraps one OS signal source (inotify, kernel audit, process
polling). A Subscriber owns Subscriptions against exactly one publisher. The
Bus keeps the registry of both, runs every publisher on its own goroutine and
dispatches each acquired event to the matching subscriptions on that same
goroutine.

# Architecture

	┌───────────────────────── EVENT BUS ──────────────────────────┐
	│                                                                │
	│   RegisterPublisher(p)        RegisterSubscriber(s)            │
	│          │                            │                        │
	│          ▼                            ▼                        │
	│   ┌─────────────┐   s.Init(r)  ┌──────────────┐                │
	│   │ publishers  │◄─────────────│ subscribers  │                │
	│   │  name→entry │  Subscribe   │  name→sub    │                │
	│   └──────┬──────┘              └──────────────┘                │
	│          │ Configure(name): p.Configure(subs)                  │
	│          ▼                                                     │
	│   ┌──────────────────── Run(ctx, name) ─────────────────┐      │
	│   │  SetUp()                                             │      │
	│   │  loop:                                               │      │
	│   │    batch := p.Run(ctx)                               │      │
	│   │    for ec in batch:                                  │      │
	│   │      for sub in subs:                                │      │
	│   │        if p.ShouldFire(sub.ctx, ec): callback(...)   │      │
	│   │    empty batch → sleep cooldown                      │      │
	│   │  TearDown()                                          │      │
	│   └──────────────────────────────────────────────────────┘      │
	└────────────────────────────────────────────────────────────────┘

# Lifecycle

Each publisher moves through

	Created → Registered → Configured ⇄ Running → Ended

Registration happens once. Configure may be called any number of times,
including while the publisher runs, whenever the subscription set changes.
AddSubscription never configures on its own: callers add a batch of
subscriptions and then call Configure (or ConfigureAll) once. Running is
entered once; a second Run for the same name returns ErrPublisherRunning.
Ended is terminal, and Run or Configure afterwards return ErrPublisherEnded.

End(name, true) cancels the loop and blocks until TearDown has returned.
Cancelling the context passed to Run or Start has the same effect.

# Dispatch

Within one publisher, events reach subscribers in the order Run returned
them, and subscriptions are visited in the order they were added. Callbacks
run synchronously on the publisher goroutine, so a slow callback delays the
publisher. A callback error or panic is logged, counted in
lookout_callback_errors_total and reported to the Observer as a
*CallbackError; the event still counts as delivered and the loop continues.

Subscriptions are immutable and may be attached to only one publisher.
The subscription list is swapped on change rather than mutated, so dispatch
iterates a stable snapshot without holding a lock across callbacks.

# Writing a publisher

	type Publisher struct{ ... }

	func (p *Publisher) Name() string { return "inotify" }
	func (p *Publisher) NewSubscriptionContext() events.SubscriptionContext {
		return &SubscriptionContext{Mask: AllActions}
	}
	func (p *Publisher) SetUp() error                      { ... }
	func (p *Publisher) Configure(subs []*events.Subscription) { ... }
	func (p *Publisher) Run(ctx context.Context) ([]events.EventContext, error) { ... }
	func (p *Publisher) TearDown()                         { ... }
	func (p *Publisher) ShouldFire(sc events.SubscriptionContext, ec events.EventContext) bool { ... }

Run should return within a bounded time, even when no events arrive, so the
bus can observe cancellation. Returning ErrPublisherDone ends the loop
without error. A publisher that implements Cooldowner overrides the default
200ms pause between empty batches.

# Writing a subscriber

	func (s *FileEvents) Init(r events.Registrar) error {
		sc := r.NewSubscriptionContext().(*inotify.SubscriptionContext)
		sc.Path = "/etc/%%"
		return r.Subscribe(sc, events.Typed(s.callback))
	}

Typed adapts a callback written against the concrete context types.

# Introspection

Status returns one PublisherStatus per publisher with its state,
subscription and subscriber counts, the number of events acquired and how
often it was configured. It backs the `lookout events` command.
*/
package events
