package audit

import (
	"context"
	"slices"
	"sync"

	"github.com/cuemby/lookout/pkg/events"
	"github.com/cuemby/lookout/pkg/log"
	"github.com/rs/zerolog"
)

// PublisherName is the name the audit publisher registers under
const PublisherName = "audit"

// SubscriptionContext selects audit events. With Assembled unset the
// subscription receives single records, optionally limited to Types. With
// Assembled set it receives complete syscall events, optionally limited to
// Syscalls.
type SubscriptionContext struct {
	Assembled bool
	Types     []MessageType
	Syscalls  []int
}

// EventContext carries either one Record or one assembled Event
type EventContext struct {
	events.EventBase
	Record *Record
	Event  *Event
}

// Publisher adapts the driver to the event bus. Each publisher instance
// holds one driver handle between SetUp and TearDown.
type Publisher struct {
	driver    *Driver
	assembler *Assembler
	logger    zerolog.Logger

	handle Handle

	mu       sync.RWMutex
	assemble bool
}

// NewPublisher creates the audit publisher on top of driver
func NewPublisher(driver *Driver) (*Publisher, error) {
	assembler, err := NewAssembler(DefaultPendingEvents)
	if err != nil {
		return nil, err
	}
	return &Publisher{
		driver:    driver,
		assembler: assembler,
		logger:    log.WithPublisher(PublisherName),
	}, nil
}

func (p *Publisher) Name() string { return PublisherName }

func (p *Publisher) NewSubscriptionContext() events.SubscriptionContext {
	return &SubscriptionContext{}
}

func (p *Publisher) SetUp() error {
	p.handle = p.driver.Subscribe()
	p.logger.Debug().Uint64("handle", uint64(p.handle)).Msg("Subscribed to audit driver")
	return nil
}

// Configure enables event assembly only when a subscription asks for it
func (p *Publisher) Configure(subs []*events.Subscription) {
	assemble := false
	for _, sub := range subs {
		if sc, ok := sub.Context().(*SubscriptionContext); ok && sc.Assembled {
			assemble = true
			break
		}
	}

	p.mu.Lock()
	p.assemble = assemble
	p.mu.Unlock()
}

// Run drains the driver handle. Syscall and other records are dispatched
// individually; auxiliary records only feed the assembler.
func (p *Publisher) Run(ctx context.Context) ([]events.EventContext, error) {
	records := p.driver.GetEvents(p.handle)
	if len(records) == 0 {
		return nil, nil
	}

	p.mu.RLock()
	assemble := p.assemble
	p.mu.RUnlock()

	var out []events.EventContext
	for _, rec := range records {
		switch PublisherFilter(rec.Type) {
		case DispositionSkip, DispositionStatus:
			continue
		case DispositionConfigChange:
			p.logger.Info().Str("type", rec.Type.String()).Msg("Audit configuration changed")
			continue
		case DispositionSyscall, DispositionOther:
			out = append(out, &EventContext{
				EventBase: events.EventBase{Time: recordTime(rec)},
				Record:    rec,
			})
		}

		if !assemble {
			continue
		}
		if ev, ok := p.assembler.Add(rec); ok {
			out = append(out, &EventContext{
				EventBase: events.EventBase{Time: ev.Time},
				Event:     ev,
			})
		}
	}
	return out, nil
}

func (p *Publisher) TearDown() {
	p.driver.Unsubscribe(p.handle)
	p.logger.Debug().Uint64("handle", uint64(p.handle)).Msg("Unsubscribed from audit driver")
}

func (p *Publisher) ShouldFire(sc events.SubscriptionContext, ec events.EventContext) bool {
	s, ok := sc.(*SubscriptionContext)
	if !ok {
		return false
	}
	e, ok := ec.(*EventContext)
	if !ok {
		return false
	}

	if s.Assembled {
		if e.Event == nil {
			return false
		}
		return len(s.Syscalls) == 0 || slices.Contains(s.Syscalls, e.Event.Syscall)
	}

	if e.Record == nil {
		return false
	}
	return len(s.Types) == 0 || slices.Contains(s.Types, e.Record.Type)
}
