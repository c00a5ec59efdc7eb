package subscribers

import (
	"fmt"
	"strconv"

	"github.com/cuemby/lookout/pkg/audit"
	"github.com/cuemby/lookout/pkg/events"
	"github.com/cuemby/lookout/pkg/storage"
	"github.com/cuemby/lookout/pkg/types"
)

// SocketEventsName is the socket_events subscriber name
const SocketEventsName = "socket_events"

// SocketEvents records bind and connect calls assembled from audit records
type SocketEvents struct {
	base
}

// NewSocketEvents creates the socket_events subscriber
func NewSocketEvents(store storage.Store) *SocketEvents {
	return &SocketEvents{base: newBase(SocketEventsName, audit.PublisherName, store)}
}

func (s *SocketEvents) Init(r events.Registrar) error {
	raw := r.NewSubscriptionContext()
	sc, ok := raw.(*audit.SubscriptionContext)
	if !ok {
		return fmt.Errorf("%w: %T", events.ErrContextType, raw)
	}
	sc.Assembled = true
	sc.Syscalls = audit.SocketSyscalls()
	return r.Subscribe(sc, events.Typed(s.callback))
}

func (s *SocketEvents) callback(ec *audit.EventContext, _ *audit.SubscriptionContext) error {
	if ec.Event == nil {
		return nil
	}
	se, err := SocketEventFrom(ec.Event)
	if err != nil {
		return err
	}
	return s.persist(ec.Event.Time, se.Row())
}

// SocketEventFrom builds a socket_events row from an assembled event. The
// address lands on the remote side for connect and the local side for
// bind.
func SocketEventFrom(ev *audit.Event) (*types.SocketEvent, error) {
	se := &types.SocketEvent{
		AuditID: ev.ID,
		Action:  audit.SocketAction(ev.Syscall),
		Success: ev.Success,
		Time:    ev.Time,
	}
	if se.Action == "" {
		se.Action = strconv.Itoa(ev.Syscall)
	}

	if r := ev.First(audit.TypeSyscall); r != nil {
		se.PID, _ = r.Get("pid")
		se.Path, _ = r.Get("exe")
	}

	r := ev.First(audit.TypeSockaddr)
	if r == nil {
		return se, nil
	}
	saddr, ok := r.Get("saddr")
	if !ok {
		return se, nil
	}
	sa, err := audit.ParseSockaddr(saddr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sockaddr of %s: %w", ev.ID, err)
	}

	se.Family = sa.Family
	port := ""
	if sa.Port != 0 {
		port = strconv.Itoa(int(sa.Port))
	}
	if se.Action == "bind" {
		se.LocalAddress, se.LocalPort = sa.Address, port
	} else {
		se.RemoteAddress, se.RemotePort = sa.Address, port
	}
	return se, nil
}
