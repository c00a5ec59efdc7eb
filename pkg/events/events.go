package events

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/lookout/pkg/log"
	"github.com/cuemby/lookout/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// DefaultCooldown is the pause between Run calls that returned no events
const DefaultCooldown = 200 * time.Millisecond

// publisherEntry is the bus-side record of one registered publisher
type publisherEntry struct {
	pub    Publisher
	logger zerolog.Logger

	// subs is replaced, never mutated, so dispatch can iterate a snapshot
	mu   sync.RWMutex
	subs []*Subscription

	stateMu sync.Mutex
	state   State
	cancel  context.CancelFunc
	done    chan struct{}

	events     atomic.Uint64
	configures atomic.Uint64
}

func (e *publisherEntry) snapshot() []*Subscription {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.subs
}

// Bus is the registry of publishers and subscribers. It owns one goroutine
// per running publisher and dispatches events to matching subscriptions on
// that goroutine.
type Bus struct {
	mu          sync.RWMutex
	publishers  map[string]*publisherEntry
	subscribers map[string]Subscriber
	attached    map[string]string // subscription ID -> publisher name

	cooldown time.Duration
	observer Observer
	wg       conc.WaitGroup
}

// Option configures a Bus
type Option func(*Bus)

// WithCooldown sets the default cooldown between empty Run calls
func WithCooldown(d time.Duration) Option {
	return func(b *Bus) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithObserver installs an observer that sees every callback outcome
func WithObserver(o Observer) Option {
	return func(b *Bus) {
		b.observer = o
	}
}

// NewBus creates an empty event bus
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		publishers:  make(map[string]*publisherEntry),
		subscribers: make(map[string]Subscriber),
		attached:    make(map[string]string),
		cooldown:    DefaultCooldown,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RegisterPublisher adds a publisher to the bus
func (b *Bus) RegisterPublisher(p Publisher) error {
	name := p.Name()

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.publishers[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePublisher, name)
	}

	b.publishers[name] = &publisherEntry{
		pub:    p,
		logger: log.WithPublisher(name),
		state:  StateRegistered,
	}
	metrics.Subscriptions.WithLabelValues(name).Set(0)

	log.Logger.Debug().Str("publisher", name).Msg("Registered publisher")
	return nil
}

// DeregisterPublisher ends the publisher's loop, waits for it to tear down,
// and removes it together with its subscribers and subscriptions.
func (b *Bus) DeregisterPublisher(name string) error {
	if err := b.End(name, true); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.publishers[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPublisher, name)
	}

	for _, sub := range e.snapshot() {
		delete(b.attached, sub.ID())
	}
	for subName, s := range b.subscribers {
		if s.Publisher() == name {
			delete(b.subscribers, subName)
		}
	}
	delete(b.publishers, name)
	metrics.Subscriptions.DeleteLabelValues(name)
	metrics.PublisherRunning.DeleteLabelValues(name)

	log.Logger.Debug().Str("publisher", name).Msg("Deregistered publisher")
	return nil
}

func (b *Bus) entry(name string) (*publisherEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.publishers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPublisher, name)
	}
	return e, nil
}

// NewSubscriptionContext returns an empty subscription context from the
// named publisher.
func (b *Bus) NewSubscriptionContext(publisher string) (SubscriptionContext, error) {
	e, err := b.entry(publisher)
	if err != nil {
		return nil, err
	}
	return e.pub.NewSubscriptionContext(), nil
}

// AddSubscription appends a subscription to a publisher. It does not
// configure the publisher; callers batch subscriptions and call Configure.
func (b *Bus) AddSubscription(publisher string, sub *Subscription) error {
	if sub == nil || sub.Callback() == nil {
		return ErrNilCallback
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.publishers[publisher]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPublisher, publisher)
	}
	if owner, ok := b.attached[sub.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrSubscriptionAttached, owner)
	}

	e.mu.Lock()
	subs := make([]*Subscription, 0, len(e.subs)+1)
	subs = append(subs, e.subs...)
	e.subs = append(subs, sub)
	count := len(e.subs)
	e.mu.Unlock()

	b.attached[sub.ID()] = publisher
	metrics.Subscriptions.WithLabelValues(publisher).Set(float64(count))
	return nil
}

// RemoveSubscriptions drops every subscription the named subscriber holds
// on a publisher and returns how many were removed.
func (b *Bus) RemoveSubscriptions(publisher, subscriber string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.publishers[publisher]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPublisher, publisher)
	}

	e.mu.Lock()
	kept := make([]*Subscription, 0, len(e.subs))
	removed := 0
	for _, sub := range e.subs {
		if sub.Subscriber() == subscriber {
			delete(b.attached, sub.ID())
			removed++
			continue
		}
		kept = append(kept, sub)
	}
	e.subs = kept
	e.mu.Unlock()

	metrics.Subscriptions.WithLabelValues(publisher).Set(float64(len(kept)))
	return removed, nil
}

// registrar binds a subscriber to its publisher for Subscriber.Init
type registrar struct {
	bus        *Bus
	publisher  string
	subscriber string
	ctx        func() SubscriptionContext
}

func (r *registrar) NewSubscriptionContext() SubscriptionContext {
	return r.ctx()
}

func (r *registrar) Subscribe(sc SubscriptionContext, cb Callback) error {
	return r.bus.AddSubscription(r.publisher, NewSubscription(r.subscriber, sc, cb))
}

// RegisterSubscriber adds a subscriber and runs its Init. The target
// publisher must already be registered.
func (b *Bus) RegisterSubscriber(s Subscriber) error {
	name := s.Name()

	b.mu.Lock()
	e, ok := b.publishers[s.Publisher()]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownPublisher, s.Publisher())
	}
	if _, exists := b.subscribers[name]; exists {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateSubscriber, name)
	}
	b.subscribers[name] = s
	b.mu.Unlock()

	if err := b.initSubscriber(s, e); err != nil {
		b.mu.Lock()
		delete(b.subscribers, name)
		b.mu.Unlock()
		return err
	}

	log.Logger.Debug().
		Str("subscriber", name).
		Str("publisher", s.Publisher()).
		Msg("Registered subscriber")
	return nil
}

func (b *Bus) initSubscriber(s Subscriber, e *publisherEntry) error {
	r := &registrar{
		bus:        b,
		publisher:  s.Publisher(),
		subscriber: s.Name(),
		ctx:        e.pub.NewSubscriptionContext,
	}
	if err := s.Init(r); err != nil {
		_, _ = b.RemoveSubscriptions(s.Publisher(), s.Name())
		return fmt.Errorf("failed to init subscriber %s: %w", s.Name(), err)
	}
	return nil
}

// DeregisterSubscriber removes a subscriber and all of its subscriptions
func (b *Bus) DeregisterSubscriber(name string) error {
	b.mu.Lock()
	s, ok := b.subscribers[name]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownSubscriber, name)
	}
	delete(b.subscribers, name)
	b.mu.Unlock()

	_, err := b.RemoveSubscriptions(s.Publisher(), name)
	return err
}

// Reload drops a subscriber's subscriptions and runs its Init again. The
// publisher is not reconfigured.
func (b *Bus) Reload(name string) error {
	b.mu.RLock()
	s, ok := b.subscribers[name]
	b.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSubscriber, name)
	}

	e, err := b.entry(s.Publisher())
	if err != nil {
		return err
	}
	if _, err := b.RemoveSubscriptions(s.Publisher(), name); err != nil {
		return err
	}
	return b.initSubscriber(s, e)
}

// Configure hands the current subscription set to the publisher
func (b *Bus) Configure(name string) error {
	e, err := b.entry(name)
	if err != nil {
		return err
	}

	e.stateMu.Lock()
	if e.state == StateEnded {
		e.stateMu.Unlock()
		return fmt.Errorf("%w: %s", ErrPublisherEnded, name)
	}
	e.stateMu.Unlock()

	subs := e.snapshot()
	e.pub.Configure(subs)
	e.configures.Add(1)

	e.stateMu.Lock()
	if e.state == StateRegistered {
		e.state = StateConfigured
	}
	e.stateMu.Unlock()

	e.logger.Debug().Int("subscriptions", len(subs)).Msg("Configured publisher")
	return nil
}

// ConfigureAll configures every publisher that has not ended
func (b *Bus) ConfigureAll() error {
	var errs []error
	for _, name := range b.publisherNames() {
		if err := b.Configure(name); err != nil && !errors.Is(err, ErrPublisherEnded) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Bus) publisherNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.publishers))
	for name := range b.publishers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the named publisher's loop on the calling goroutine until
// ctx is cancelled, End is called, or the publisher fails. SetUp is called
// once before the loop and TearDown exactly once after it.
func (b *Bus) Run(ctx context.Context, name string) error {
	e, err := b.entry(name)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.stateMu.Lock()
	switch e.state {
	case StateRunning:
		e.stateMu.Unlock()
		return fmt.Errorf("%w: %s", ErrPublisherRunning, name)
	case StateEnded:
		e.stateMu.Unlock()
		return fmt.Errorf("%w: %s", ErrPublisherEnded, name)
	}
	e.state = StateRunning
	e.cancel = cancel
	e.done = make(chan struct{})
	e.stateMu.Unlock()

	metrics.PublisherRunning.WithLabelValues(name).Set(1)
	metrics.RegisterComponent(name, true, "running")

	defer func() {
		e.stateMu.Lock()
		e.state = StateEnded
		close(e.done)
		e.stateMu.Unlock()
		metrics.PublisherRunning.WithLabelValues(name).Set(0)
	}()
	defer e.pub.TearDown()

	if err := e.pub.SetUp(); err != nil {
		metrics.UpdateComponent(name, false, fmt.Sprintf("set up failed: %v", err))
		e.logger.Error().Err(err).Msg("Publisher set up failed")
		return &PublisherError{Publisher: name, Op: "set_up", Err: err}
	}

	cooldown := b.cooldown
	if c, ok := e.pub.(Cooldowner); ok && c.Cooldown() > 0 {
		cooldown = c.Cooldown()
	}

	e.logger.Info().Dur("cooldown", cooldown).Msg("Publisher started")

	for {
		if runCtx.Err() != nil {
			metrics.UpdateComponent(name, true, "ended")
			e.logger.Info().Msg("Publisher ended")
			return nil
		}

		batch, err := e.pub.Run(runCtx)
		for _, ec := range batch {
			b.fire(e, ec)
		}

		switch {
		case errors.Is(err, ErrPublisherDone):
			metrics.UpdateComponent(name, true, "done")
			e.logger.Info().Msg("Publisher finished")
			return nil
		case err != nil && runCtx.Err() == nil:
			metrics.UpdateComponent(name, false, fmt.Sprintf("run failed: %v", err))
			e.logger.Error().Err(err).Msg("Publisher run failed")
			return &PublisherError{Publisher: name, Op: "run", Err: err}
		}

		if len(batch) == 0 {
			select {
			case <-runCtx.Done():
			case <-time.After(cooldown):
			}
		}
	}
}

// fire evaluates every current subscription against ec and invokes the
// matching callbacks in subscription order.
func (b *Bus) fire(e *publisherEntry, ec EventContext) {
	name := e.pub.Name()
	e.events.Add(1)
	metrics.EventsAcquired.WithLabelValues(name).Inc()

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.DispatchDuration, name)

	for _, sub := range e.snapshot() {
		if !e.pub.ShouldFire(sub.Context(), ec) {
			continue
		}

		err := invoke(name, sub, ec)
		metrics.EventsDispatched.WithLabelValues(name, sub.Subscriber()).Inc()
		if err != nil {
			metrics.CallbackErrors.WithLabelValues(name, sub.Subscriber()).Inc()
			e.logger.Error().
				Err(err).
				Str("subscriber", sub.Subscriber()).
				Str("subscription", sub.ID()).
				Msg("Subscriber callback failed")
		}
		if b.observer != nil {
			b.observer.Observe(name, sub, ec, err)
		}
	}
}

func invoke(publisher string, sub *Subscription, ec EventContext) error {
	var err error
	var pc panics.Catcher
	pc.Try(func() {
		err = sub.Callback()(ec, sub.Context())
	})

	if r := pc.Recovered(); r != nil {
		return &CallbackError{
			Subscriber: sub.Subscriber(),
			Publisher:  publisher,
			Err:        ErrCallbackPanic,
			Value:      r.Value,
		}
	}
	if err != nil {
		return &CallbackError{Subscriber: sub.Subscriber(), Publisher: publisher, Err: err}
	}
	return nil
}

// Start launches a goroutine for every registered publisher that has not
// run yet. Use Wait to block until they have all returned.
func (b *Bus) Start(ctx context.Context) {
	for _, name := range b.publisherNames() {
		e, err := b.entry(name)
		if err != nil {
			continue
		}
		e.stateMu.Lock()
		state := e.state
		e.stateMu.Unlock()
		if state == StateRunning || state == StateEnded {
			continue
		}

		b.wg.Go(func() {
			if err := b.Run(ctx, name); err != nil && !errors.Is(err, ErrPublisherEnded) {
				log.Logger.Warn().Err(err).Str("publisher", name).Msg("Publisher exited with error")
			}
		})
	}
}

// Wait blocks until every goroutine launched by Start has returned
func (b *Bus) Wait() {
	b.wg.Wait()
}

// End interrupts the named publisher. With join it blocks until the
// publisher's TearDown has returned. A publisher that never ran moves
// straight to ended.
func (b *Bus) End(name string, join bool) error {
	e, err := b.entry(name)
	if err != nil {
		return err
	}

	e.stateMu.Lock()
	var done chan struct{}
	switch e.state {
	case StateRunning:
		e.cancel()
		done = e.done
	case StateEnded:
	default:
		e.state = StateEnded
	}
	e.stateMu.Unlock()

	if join && done != nil {
		<-done
	}
	return nil
}

// EndAll ends every publisher
func (b *Bus) EndAll(join bool) {
	names := b.publisherNames()
	for _, name := range names {
		_ = b.End(name, false)
	}
	if !join {
		return
	}
	for _, name := range names {
		_ = b.End(name, true)
	}
}

// State returns the lifecycle state of a publisher
func (b *Bus) State(name string) (State, error) {
	e, err := b.entry(name)
	if err != nil {
		return StateCreated, err
	}
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state, nil
}

// Subscriptions returns a copy of the publisher's current subscriptions
func (b *Bus) Subscriptions(name string) ([]*Subscription, error) {
	e, err := b.entry(name)
	if err != nil {
		return nil, err
	}
	return slices.Clone(e.snapshot()), nil
}

// Status returns a snapshot of every publisher, sorted by name
func (b *Bus) Status() []PublisherStatus {
	names := b.publisherNames()
	out := make([]PublisherStatus, 0, len(names))

	for _, name := range names {
		e, err := b.entry(name)
		if err != nil {
			continue
		}

		subs := e.snapshot()
		subscribers := make(map[string]struct{})
		for _, sub := range subs {
			subscribers[sub.Subscriber()] = struct{}{}
		}

		e.stateMu.Lock()
		state := e.state
		e.stateMu.Unlock()

		out = append(out, PublisherStatus{
			Name:          name,
			State:         state.String(),
			Subscriptions: len(subs),
			Subscribers:   len(subscribers),
			Events:        e.events.Load(),
			Configures:    e.configures.Load(),
		})
	}
	return out
}
