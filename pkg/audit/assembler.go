package audit

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// Event is a multi-record audit event: the records sharing one audit ID,
// from AUDIT_SYSCALL to AUDIT_EOE.
type Event struct {
	ID      string
	Time    time.Time
	Syscall int
	Success bool
	Records []*Record

	complete bool
}

// First returns the first record of type t, or nil
func (e *Event) First(t MessageType) *Record {
	for _, r := range e.Records {
		if r.Type == t {
			return r
		}
	}
	return nil
}

// All returns every record of type t in arrival order
func (e *Event) All(t MessageType) []*Record {
	var out []*Record
	for _, r := range e.Records {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// assembled lists the record types that belong to a syscall event
var assembled = map[MessageType]bool{
	TypeSyscall:   true,
	TypeExecve:    true,
	TypePath:      true,
	TypeCwd:       true,
	TypeSockaddr:  true,
	TypeMmap:      true,
	TypeProctitle: true,
	TypeEOE:       true,
}

// DefaultPendingEvents bounds the events an Assembler holds open
const DefaultPendingEvents = 4096

// Assembler groups records by audit ID. Incomplete events are held in an
// LRU cache; the oldest is dropped when the cache is full.
type Assembler struct {
	pending *lru.Cache
	dropped atomic.Uint64
}

// NewAssembler creates an assembler holding at most size open events
func NewAssembler(size int) (*Assembler, error) {
	if size <= 0 {
		size = DefaultPendingEvents
	}
	a := &Assembler{}
	cache, err := lru.NewWithEvict(size, func(_ interface{}, value interface{}) {
		if ev, ok := value.(*Event); ok && !ev.complete {
			a.dropped.Add(1)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create assembler cache: %w", err)
	}
	a.pending = cache
	return a, nil
}

// Add feeds one record. It returns the finished event when r is the EOE
// record of an open event. Records of other types are ignored.
func (a *Assembler) Add(r *Record) (*Event, bool) {
	if !assembled[r.Type] {
		return nil, false
	}

	var ev *Event
	if v, ok := a.pending.Get(r.AuditID); ok {
		ev = v.(*Event)
	}

	if r.Type == TypeEOE {
		if ev == nil {
			return nil, false
		}
		ev.complete = true
		a.pending.Remove(r.AuditID)
		return ev, true
	}

	if ev == nil {
		ev = &Event{
			ID:      r.AuditID,
			Time:    time.Unix(int64(r.Time), 0),
			Syscall: -1,
		}
		a.pending.Add(r.AuditID, ev)
	}

	if r.Type == TypeSyscall {
		if v, ok := r.Get("syscall"); ok {
			if nr, err := strconv.Atoi(v); err == nil {
				ev.Syscall = nr
			}
		}
		if v, ok := r.Get("success"); ok {
			ev.Success = v == "yes"
		}
	}
	ev.Records = append(ev.Records, r)
	return nil, false
}

// Pending returns the number of open events
func (a *Assembler) Pending() int {
	return a.pending.Len()
}

// Dropped returns how many open events were evicted before completing
func (a *Assembler) Dropped() uint64 {
	return a.dropped.Load()
}
