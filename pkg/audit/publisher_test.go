package audit

import (
	"context"
	"testing"

	"github.com/cuemby/lookout/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPublisher returns a publisher whose handle queue is filled directly
func newTestPublisher(t *testing.T, records ...*Record) *Publisher {
	t.Helper()
	d := NewDriver(activeConfig(), newFakeConn().dialer())
	d.subs[1] = &handleQueue{records: records}

	p, err := NewPublisher(d)
	require.NoError(t, err)
	p.handle = 1
	return p
}

func TestPublisherRun(t *testing.T) {
	p := newTestPublisher(t,
		mustParse(t, TypeSyscall, `audit(1700000000.000:5): syscall=59 success=yes`),
		mustParse(t, TypeExecve, `audit(1700000000.000:5): argc=1 a0="id"`),
		mustParse(t, TypeDaemonStart, `audit(1700000000.000:6): op=start`),
		mustParse(t, TypeSockaddr, `audit(1700000000.000:5): saddr=0200`),
		mustParse(t, TypeEOE, `audit(1700000000.000:5): `),
	)

	p.Configure([]*events.Subscription{
		events.NewSubscription("process_events", &SubscriptionContext{Assembled: true}, nil),
	})

	batch, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 3)

	first := batch[0].(*EventContext)
	assert.Equal(t, TypeSyscall, first.Record.Type)
	assert.Equal(t, int64(1700000000), first.EventTime().Unix())

	second := batch[1].(*EventContext)
	assert.Equal(t, TypeSockaddr, second.Record.Type)

	last := batch[2].(*EventContext)
	require.NotNil(t, last.Event)
	assert.Equal(t, 59, last.Event.Syscall)
	assert.Len(t, last.Event.Records, 3)

	batch, err = p.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestPublisherRunWithoutAssembly(t *testing.T) {
	p := newTestPublisher(t,
		mustParse(t, TypeSyscall, `audit(1.0:5): syscall=59`),
		mustParse(t, TypeEOE, `audit(1.0:5): `),
	)
	p.Configure(nil)

	batch, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Nil(t, batch[0].(*EventContext).Event)
}

func TestPublisherShouldFire(t *testing.T) {
	p := newTestPublisher(t)

	syscall := &EventContext{Record: &Record{Type: TypeSyscall}}
	sockaddr := &EventContext{Record: &Record{Type: TypeSockaddr}}
	execve := &EventContext{Event: &Event{Syscall: 59}}

	tests := []struct {
		name string
		sc   *SubscriptionContext
		ec   *EventContext
		want bool
	}{
		{name: "all records", sc: &SubscriptionContext{}, ec: syscall, want: true},
		{name: "record type match", sc: &SubscriptionContext{Types: []MessageType{TypeSockaddr}}, ec: sockaddr, want: true},
		{name: "record type mismatch", sc: &SubscriptionContext{Types: []MessageType{TypeSockaddr}}, ec: syscall},
		{name: "records exclude events", sc: &SubscriptionContext{}, ec: execve},
		{name: "all events", sc: &SubscriptionContext{Assembled: true}, ec: execve, want: true},
		{name: "syscall match", sc: &SubscriptionContext{Assembled: true, Syscalls: []int{59}}, ec: execve, want: true},
		{name: "syscall mismatch", sc: &SubscriptionContext{Assembled: true, Syscalls: []int{42}}, ec: execve},
		{name: "events exclude records", sc: &SubscriptionContext{Assembled: true}, ec: syscall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldFire(tt.sc, tt.ec))
		})
	}

	assert.False(t, p.ShouldFire("wrong", syscall))
}

func TestPublisherLifecycle(t *testing.T) {
	conn := newFakeConn()
	d := NewDriver(activeConfig(), conn.dialer())
	p, err := NewPublisher(d)
	require.NoError(t, err)

	require.NoError(t, p.SetUp())
	assert.Equal(t, 1, d.Subscribers())
	assert.True(t, d.Running())

	p.TearDown()
	assert.Zero(t, d.Subscribers())
	assert.False(t, d.Running())
}
