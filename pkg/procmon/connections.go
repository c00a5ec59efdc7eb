package procmon

import (
	"context"
	"fmt"
	"sort"
	"syscall"
	"time"

	"github.com/cuemby/lookout/pkg/events"
	"github.com/cuemby/lookout/pkg/log"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/net"
)

// ConnectionsPublisherName is the name the connections publisher registers under
const ConnectionsPublisherName = "connections"

// ConnectionInfo describes one inet socket
type ConnectionInfo struct {
	PID           int32
	Family        string
	Protocol      string
	LocalAddress  string
	LocalPort     uint32
	RemoteAddress string
	RemotePort    uint32
	State         string
}

func (c ConnectionInfo) key() string {
	return fmt.Sprintf("%d/%s/%s/%s:%d/%s:%d", c.PID, c.Family, c.Protocol,
		c.LocalAddress, c.LocalPort, c.RemoteAddress, c.RemotePort)
}

// ConnectionLister returns the open inet sockets
type ConnectionLister func(ctx context.Context) ([]ConnectionInfo, error)

// ConnectionSubscriptionContext selects sockets opened or closed. Ports
// matches either end. Listening restricts to sockets in LISTEN state.
type ConnectionSubscriptionContext struct {
	Actions   []string
	Ports     []uint32
	Listening bool
}

// ConnectionEventContext is one socket appearing or disappearing
type ConnectionEventContext struct {
	events.EventBase
	Action     string
	Connection ConnectionInfo
}

// ConnectionsPublisher diffs successive socket table snapshots
type ConnectionsPublisher struct {
	snapshotter
	list   ConnectionLister
	logger zerolog.Logger
	prev   map[string]ConnectionInfo
}

// NewConnectionsPublisher creates a connections publisher. A nil lister
// reads the socket table through gopsutil.
func NewConnectionsPublisher(interval time.Duration, list ConnectionLister) *ConnectionsPublisher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if list == nil {
		list = ListConnections
	}
	return &ConnectionsPublisher{
		snapshotter: snapshotter{interval: interval},
		list:        list,
		logger:      log.WithPublisher(ConnectionsPublisherName),
	}
}

func (p *ConnectionsPublisher) Name() string { return ConnectionsPublisherName }

func (p *ConnectionsPublisher) NewSubscriptionContext() events.SubscriptionContext {
	return &ConnectionSubscriptionContext{}
}

// Run takes one snapshot per interval. The first snapshot is a baseline
// and produces no events.
func (p *ConnectionsPublisher) Run(ctx context.Context) ([]events.EventContext, error) {
	if p.prev != nil && !wait(ctx, p.interval) {
		return nil, nil
	}

	conns, err := p.list(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("Failed to list connections")
		if p.prev == nil {
			wait(ctx, p.interval)
		}
		return nil, nil
	}

	cur := make(map[string]ConnectionInfo, len(conns))
	for _, c := range conns {
		cur[c.key()] = c
	}

	if p.prev == nil {
		p.prev = cur
		return nil, nil
	}
	opened, closed := diff(p.prev, cur)
	p.prev = cur

	sortConnections(opened)
	sortConnections(closed)

	now := time.Now()
	out := make([]events.EventContext, 0, len(opened)+len(closed))
	for _, c := range closed {
		out = append(out, &ConnectionEventContext{EventBase: events.EventBase{Time: now}, Action: ActionClosed, Connection: c})
	}
	for _, c := range opened {
		out = append(out, &ConnectionEventContext{EventBase: events.EventBase{Time: now}, Action: ActionOpened, Connection: c})
	}
	return out, nil
}

func (p *ConnectionsPublisher) ShouldFire(sc events.SubscriptionContext, ec events.EventContext) bool {
	s, ok := sc.(*ConnectionSubscriptionContext)
	if !ok {
		return false
	}
	e, ok := ec.(*ConnectionEventContext)
	if !ok {
		return false
	}
	if !matchAction(s.Actions, e.Action) {
		return false
	}
	if s.Listening && e.Connection.State != "LISTEN" {
		return false
	}
	if len(s.Ports) == 0 {
		return true
	}
	for _, port := range s.Ports {
		if port == e.Connection.LocalPort || port == e.Connection.RemotePort {
			return true
		}
	}
	return false
}

func sortConnections(conns []ConnectionInfo) {
	sort.Slice(conns, func(i, j int) bool { return conns[i].key() < conns[j].key() })
}

// ListConnections reads the inet socket table
func ListConnections(ctx context.Context) ([]ConnectionInfo, error) {
	stats, err := net.ConnectionsWithContext(ctx, "inet")
	if err != nil {
		return nil, err
	}

	out := make([]ConnectionInfo, 0, len(stats))
	for _, st := range stats {
		out = append(out, ConnectionInfo{
			PID:           st.Pid,
			Family:        familyName(st.Family),
			Protocol:      protocolName(st.Type),
			LocalAddress:  st.Laddr.IP,
			LocalPort:     st.Laddr.Port,
			RemoteAddress: st.Raddr.IP,
			RemotePort:    st.Raddr.Port,
			State:         st.Status,
		})
	}
	return out, nil
}

func familyName(f uint32) string {
	switch f {
	case syscall.AF_INET:
		return "ipv4"
	case syscall.AF_INET6:
		return "ipv6"
	default:
		return fmt.Sprint(f)
	}
}

func protocolName(t uint32) string {
	switch t {
	case syscall.SOCK_STREAM:
		return "tcp"
	case syscall.SOCK_DGRAM:
		return "udp"
	default:
		return fmt.Sprint(t)
	}
}
