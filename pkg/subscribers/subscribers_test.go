package subscribers

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/lookout/pkg/audit"
	"github.com/cuemby/lookout/pkg/events"
	"github.com/cuemby/lookout/pkg/inotify"
	"github.com/cuemby/lookout/pkg/procmon"
	"github.com/cuemby/lookout/pkg/storage"
	"github.com/cuemby/lookout/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureRegistrar records subscriptions instead of attaching them
type captureRegistrar struct {
	ctx  func() events.SubscriptionContext
	subs []events.SubscriptionContext
	cbs  []events.Callback
}

func (r *captureRegistrar) NewSubscriptionContext() events.SubscriptionContext { return r.ctx() }

func (r *captureRegistrar) Subscribe(sc events.SubscriptionContext, cb events.Callback) error {
	r.subs = append(r.subs, sc)
	r.cbs = append(r.cbs, cb)
	return nil
}

func newStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	s, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func rows(t *testing.T, s storage.Store, subscriber string) []types.Row {
	t.Helper()
	records, err := s.Generate(context.Background(), subscriber, types.Bounds{})
	require.NoError(t, err)
	out := make([]types.Row, 0, len(records))
	for _, r := range records {
		out = append(out, r.Row)
	}
	return out
}

func assemble(t *testing.T, lines map[audit.MessageType]string, order ...audit.MessageType) *audit.Event {
	t.Helper()
	a, err := audit.NewAssembler(16)
	require.NoError(t, err)

	for _, typ := range order {
		r, err := audit.ParseRecord(typ, []byte(lines[typ]))
		require.NoError(t, err)
		if ev, ok := a.Add(r); ok {
			return ev
		}
	}
	t.Fatal("event did not complete")
	return nil
}

func TestFileEventsInit(t *testing.T) {
	store := newStore(t)
	s := NewFileEvents(store, map[string][]string{
		"web": {"/var/www/%%"},
		"etc": {"/etc/", "/etc/ssh/%"},
	})
	assert.Equal(t, FileEventsName, s.Name())
	assert.Equal(t, inotify.PublisherName, s.Publisher())

	r := &captureRegistrar{ctx: func() events.SubscriptionContext { return &inotify.SubscriptionContext{} }}
	require.NoError(t, s.Init(r))
	require.Len(t, r.subs, 3)

	var got []string
	for _, sc := range r.subs {
		c := sc.(*inotify.SubscriptionContext)
		got = append(got, c.Category+":"+c.Path)
	}
	assert.Equal(t, []string{"etc:/etc/", "etc:/etc/ssh/%", "web:/var/www/%%"}, got)

	at := time.Unix(1700000000, 0)
	ec := &inotify.EventContext{EventBase: events.EventBase{Time: at}, Path: "/etc/hosts", Action: inotify.ActionUpdated}
	require.NoError(t, r.cbs[0](ec, r.subs[0]))

	assert.Equal(t, []types.Row{{
		"target_path": "/etc/hosts",
		"category":    "etc",
		"action":      "UPDATED",
		"time":        "1700000000",
	}}, rows(t, store, FileEventsName))

	// SetPaths takes effect on the next Init
	s.SetPaths(map[string][]string{"tmp": {"/tmp"}})
	r = &captureRegistrar{ctx: r.ctx}
	require.NoError(t, s.Init(r))
	assert.Len(t, r.subs, 1)
}

func TestInitWrongContext(t *testing.T) {
	r := &captureRegistrar{ctx: func() events.SubscriptionContext { return &audit.SubscriptionContext{} }}
	err := NewFileEvents(newStore(t), map[string][]string{"a": {"/a"}}).Init(r)
	assert.ErrorIs(t, err, events.ErrContextType)

	r = &captureRegistrar{ctx: func() events.SubscriptionContext { return &inotify.SubscriptionContext{} }}
	assert.ErrorIs(t, NewProcessEvents(newStore(t)).Init(r), events.ErrContextType)
}

func TestProcessEventFrom(t *testing.T) {
	ev := assemble(t, map[audit.MessageType]string{
		audit.TypeSyscall: `audit(1700000000.100:42): arch=c000003e syscall=59 success=yes exit=0 ppid=1 pid=4242 uid=1000 gid=1000 euid=0 exe="/usr/bin/sudo"`,
		audit.TypeExecve:  `audit(1700000000.100:42): argc=3 a0="sudo" a1="ls" a2="-la"`,
		audit.TypeCwd:     `audit(1700000000.100:42): cwd="/home/user"`,
		audit.TypePath:    `audit(1700000000.100:42): item=0 name="/usr/bin/sudo" inode=1`,
		audit.TypeEOE:     `audit(1700000000.100:42): `,
	}, audit.TypeSyscall, audit.TypeExecve, audit.TypeCwd, audit.TypePath, audit.TypeEOE)

	pe := ProcessEventFrom(ev)
	assert.Equal(t, "1700000000.100:42", pe.AuditID)
	assert.Equal(t, "4242", pe.PID)
	assert.Equal(t, "1", pe.PPID)
	assert.Equal(t, "0", pe.EUID)
	assert.Equal(t, "/usr/bin/sudo", pe.Path)
	assert.Equal(t, "/home/user", pe.Cwd)
	assert.Equal(t, "sudo ls -la", pe.Cmdline)
	assert.Equal(t, "59", pe.Syscall)
	assert.True(t, pe.Success)
}

func TestProcessEventFromHexArguments(t *testing.T) {
	ev := assemble(t, map[audit.MessageType]string{
		audit.TypeSyscall: `audit(1700000001.000:43): arch=c000003e syscall=59 success=yes exit=0 ppid=1 pid=77 uid=0 gid=0 euid=0 exe="/bin/sh"`,
		audit.TypeExecve:  `audit(1700000001.000:43): argc=3 a0="sh" a1="-c" a2=6563686F2022686920746865726522`,
		audit.TypeCwd:     `audit(1700000001.000:43): cwd=2F746D702F6D7920646972`,
		audit.TypeEOE:     `audit(1700000001.000:43): `,
	}, audit.TypeSyscall, audit.TypeExecve, audit.TypeCwd, audit.TypeEOE)

	pe := ProcessEventFrom(ev)
	assert.Equal(t, `sh -c echo "hi there"`, pe.Cmdline)
	assert.Equal(t, "/tmp/my dir", pe.Cwd)
}

// socketSyscall finds the platform's syscall number for a socket action
func socketSyscall(t *testing.T, action string) string {
	t.Helper()
	for _, nr := range audit.SocketSyscalls() {
		if audit.SocketAction(nr) == action {
			return strconv.Itoa(nr)
		}
	}
	t.Skipf("no %s syscall on this platform", action)
	return ""
}

func TestSocketEventFrom(t *testing.T) {
	tests := []struct {
		action string
		saddr  string
		check  func(t *testing.T, se *types.SocketEvent)
	}{
		{
			action: "connect",
			saddr:  "020001BB5DB8D8220000000000000000",
			check: func(t *testing.T, se *types.SocketEvent) {
				assert.Equal(t, "ipv4", se.Family)
				assert.Equal(t, "93.184.216.34", se.RemoteAddress)
				assert.Equal(t, "443", se.RemotePort)
				assert.Empty(t, se.LocalAddress)
			},
		},
		{
			action: "bind",
			saddr:  "02000016" + "00000000" + "0000000000000000",
			check: func(t *testing.T, se *types.SocketEvent) {
				assert.Equal(t, "0.0.0.0", se.LocalAddress)
				assert.Equal(t, "22", se.LocalPort)
				assert.Empty(t, se.RemoteAddress)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			nr := socketSyscall(t, tt.action)
			ev := assemble(t, map[audit.MessageType]string{
				audit.TypeSyscall:  `audit(1700000000.200:7): arch=c000003e syscall=` + nr + ` success=yes pid=99 exe="/usr/bin/curl"`,
				audit.TypeSockaddr: `audit(1700000000.200:7): saddr=` + tt.saddr,
				audit.TypeEOE:      `audit(1700000000.200:7): `,
			}, audit.TypeSyscall, audit.TypeSockaddr, audit.TypeEOE)

			se, err := SocketEventFrom(ev)
			require.NoError(t, err)
			assert.Equal(t, tt.action, se.Action)
			assert.Equal(t, "99", se.PID)
			assert.Equal(t, "/usr/bin/curl", se.Path)
			tt.check(t, se)
		})
	}
}

func TestSocketEventFromBadSockaddr(t *testing.T) {
	ev := assemble(t, map[audit.MessageType]string{
		audit.TypeSyscall:  `audit(1700000000.200:8): syscall=42 success=no pid=1`,
		audit.TypeSockaddr: `audit(1700000000.200:8): saddr=02`,
		audit.TypeEOE:      `audit(1700000000.200:8): `,
	}, audit.TypeSyscall, audit.TypeSockaddr, audit.TypeEOE)

	_, err := SocketEventFrom(ev)
	assert.ErrorIs(t, err, audit.ErrMalformedRecord)
}

func TestProcessSnapshotsThroughBus(t *testing.T) {
	store := newStore(t)

	var mu sync.Mutex
	snaps := [][]procmon.ProcessInfo{
		{{PID: 1, Name: "init", CreateTime: 1}},
		{{PID: 1, Name: "init", CreateTime: 1}, {PID: 77, PPID: 1, Name: "sleep", Exe: "/bin/sleep", CreateTime: 5}},
	}
	list := func(context.Context) ([]procmon.ProcessInfo, error) {
		mu.Lock()
		defer mu.Unlock()
		snap := snaps[0]
		if len(snaps) > 1 {
			snaps = snaps[1:]
		}
		return snap, nil
	}

	bus := events.NewBus()
	require.NoError(t, bus.RegisterPublisher(procmon.NewProcessPublisher(5*time.Millisecond, list)))
	require.NoError(t, bus.RegisterSubscriber(NewProcessSnapshots(store)))
	require.NoError(t, bus.Configure(procmon.ProcessPublisherName))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)

	require.Eventually(t, func() bool {
		n, err := store.Count(ProcessSnapshotsName)
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)

	bus.EndAll(true)
	bus.Wait()

	got := rows(t, store, ProcessSnapshotsName)
	require.Len(t, got, 1)
	assert.Equal(t, "started", got[0]["action"])
	assert.Equal(t, "77", got[0]["pid"])
	assert.Equal(t, "/bin/sleep", got[0]["path"])
}
