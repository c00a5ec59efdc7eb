package subscribers

import (
	"fmt"

	"github.com/cuemby/lookout/pkg/events"
	"github.com/cuemby/lookout/pkg/procmon"
	"github.com/cuemby/lookout/pkg/storage"
	"github.com/cuemby/lookout/pkg/types"
)

const (
	// ProcessSnapshotsName is the process_snapshots subscriber name
	ProcessSnapshotsName = "process_snapshots"
	// ConnectionSnapshotsName is the connection_snapshots subscriber name
	ConnectionSnapshotsName = "connection_snapshots"
)

// ProcessSnapshots records process starts and exits seen by polling
type ProcessSnapshots struct {
	base
}

// NewProcessSnapshots creates the process_snapshots subscriber
func NewProcessSnapshots(store storage.Store) *ProcessSnapshots {
	return &ProcessSnapshots{base: newBase(ProcessSnapshotsName, procmon.ProcessPublisherName, store)}
}

func (s *ProcessSnapshots) Init(r events.Registrar) error {
	raw := r.NewSubscriptionContext()
	sc, ok := raw.(*procmon.ProcessSubscriptionContext)
	if !ok {
		return fmt.Errorf("%w: %T", events.ErrContextType, raw)
	}
	return r.Subscribe(sc, events.Typed(func(ec *procmon.ProcessEventContext, _ *procmon.ProcessSubscriptionContext) error {
		p := ec.Process
		row := (&types.ProcessSnapshot{
			Action:  ec.Action,
			PID:     p.PID,
			PPID:    p.PPID,
			Name:    p.Name,
			Path:    p.Exe,
			Cmdline: p.Cmdline,
			User:    p.Username,
			Time:    ec.EventTime(),
		}).Row()
		return s.persist(ec.EventTime(), row)
	}))
}

// ConnectionSnapshots records sockets opened and closed seen by polling
type ConnectionSnapshots struct {
	base
	listening bool
}

// NewConnectionSnapshots creates the connection_snapshots subscriber. With
// listening set only listening sockets are recorded.
func NewConnectionSnapshots(store storage.Store, listening bool) *ConnectionSnapshots {
	return &ConnectionSnapshots{
		base:      newBase(ConnectionSnapshotsName, procmon.ConnectionsPublisherName, store),
		listening: listening,
	}
}

func (s *ConnectionSnapshots) Init(r events.Registrar) error {
	raw := r.NewSubscriptionContext()
	sc, ok := raw.(*procmon.ConnectionSubscriptionContext)
	if !ok {
		return fmt.Errorf("%w: %T", events.ErrContextType, raw)
	}
	sc.Listening = s.listening
	return r.Subscribe(sc, events.Typed(func(ec *procmon.ConnectionEventContext, _ *procmon.ConnectionSubscriptionContext) error {
		c := ec.Connection
		row := (&types.ConnectionSnapshot{
			Action:        ec.Action,
			PID:           c.PID,
			Family:        c.Family,
			Protocol:      c.Protocol,
			LocalAddress:  c.LocalAddress,
			LocalPort:     c.LocalPort,
			RemoteAddress: c.RemoteAddress,
			RemotePort:    c.RemotePort,
			State:         c.State,
			Time:          ec.EventTime(),
		}).Row()
		return s.persist(ec.EventTime(), row)
	}))
}
