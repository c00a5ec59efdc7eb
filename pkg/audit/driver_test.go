package audit

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errDenied  = errors.New("operation not permitted")
	errRefused = errors.New("connection refused")
)

func TestConfigSyscalls(t *testing.T) {
	cfg := Config{}
	assert.Empty(t, cfg.Syscalls())

	cfg.AllowProcessEvents = true
	assert.ElementsMatch(t, processSyscalls, cfg.Syscalls())

	cfg.AllowFIMEvents = true
	got := cfg.Syscalls()
	assert.IsIncreasing(t, got)
	for _, nr := range processSyscalls {
		assert.Contains(t, got, nr)
	}
	// execve appears in both sets but once in the result
	assert.Len(t, got, len(fimSyscalls))
}

func TestAcquireHandleSetPIDFailure(t *testing.T) {
	conn := newFakeConn()
	conn.setPIDErr = errDenied
	d := NewDriver(activeConfig(), conn.dialer())

	status := d.acquireHandle()

	assert.Equal(t, StatusError, status)
	assert.Nil(t, d.conn)
	dials, open, _ := conn.snapshot()
	assert.Equal(t, 1, dials)
	assert.False(t, open, "handle must be closed when set pid fails")
}

func TestAcquireHandleDialFailure(t *testing.T) {
	d := NewDriver(activeConfig(), func() (Conn, error) {
		return nil, errors.New("no netlink")
	})

	assert.Equal(t, StatusError, d.acquireHandle())
	assert.Nil(t, d.conn)
}

func TestAcquireHandleStatus(t *testing.T) {
	tests := []struct {
		name        string
		enabled     uint32
		uid         int
		allowConfig bool
		statusErr   error
		enableErr   error
		want        NetlinkStatus
		wantRules   bool
		wantEnabled bool
		wantOpen    bool
	}{
		{
			name:     "config not allowed",
			enabled:  AuditEnabled,
			want:     StatusActiveImmutable,
			wantOpen: true,
		},
		{
			name:        "kernel locked",
			enabled:     AuditImmutable,
			allowConfig: true,
			want:        StatusActiveImmutable,
			wantOpen:    true,
		},
		{
			name:        "unprivileged",
			enabled:     AuditEnabled,
			uid:         1000,
			allowConfig: true,
			want:        StatusActiveImmutable,
			wantOpen:    true,
		},
		{
			name:        "enabled and mutable",
			enabled:     AuditEnabled,
			allowConfig: true,
			want:        StatusActiveMutable,
			wantRules:   true,
			wantOpen:    true,
		},
		{
			name:        "disabled is enabled by driver",
			enabled:     AuditDisabled,
			allowConfig: true,
			want:        StatusActiveMutable,
			wantRules:   true,
			wantEnabled: true,
			wantOpen:    true,
		},
		{
			name:        "enable fails",
			enabled:     AuditDisabled,
			allowConfig: true,
			enableErr:   errDenied,
			want:        StatusError,
		},
		{
			name:        "status query fails",
			enabled:     AuditEnabled,
			allowConfig: true,
			statusErr:   errRefused,
			want:        StatusError,
			wantOpen:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newFakeConn()
			conn.status.Enabled = tt.enabled
			conn.statusErr = tt.statusErr
			conn.enableErr = tt.enableErr

			cfg := activeConfig()
			cfg.AllowConfig = tt.allowConfig
			d := NewDriver(cfg, conn.dialer())
			d.getuid = func() int { return tt.uid }

			status := d.acquireHandle()
			assert.Equal(t, tt.want, status)
			assert.Equal(t, tt.wantEnabled, d.enabled)
			assert.Equal(t, tt.wantRules, d.configured)

			_, open, sets := conn.snapshot()
			assert.Equal(t, tt.wantOpen, open)
			if tt.wantRules {
				assert.Len(t, d.installed, len(cfg.Syscalls()))
				assert.Contains(t, sets, "backlog_wait_time=1")
				assert.Contains(t, sets, "backlog_limit=4096")
				assert.Contains(t, sets, fmt.Sprintf("failure=%d", FailSilent))
			} else {
				assert.Empty(t, d.installed)
			}
		})
	}
}

func TestRequestStatusCadence(t *testing.T) {
	conn := newFakeConn()
	cfg := activeConfig()
	cfg.StatusInterval = 3
	d := NewDriver(cfg, conn.dialer())
	require.NotEqual(t, StatusError, d.acquireHandle())

	countdown := 0
	var got []int
	for i := 0; i < 10; i++ {
		require.True(t, d.requestStatus(&countdown))
		_, requests := conn.counts()
		got = append(got, requests)
	}
	// one request, then StatusInterval quiet cycles
	assert.Equal(t, []int{1, 1, 1, 1, 2, 2, 2, 2, 3, 3}, got)
}

func TestRequestStatusFailureResets(t *testing.T) {
	conn := newFakeConn()
	d := NewDriver(activeConfig(), conn.dialer())
	require.NotEqual(t, StatusError, d.acquireHandle())

	conn.requestErr = errRefused
	countdown := 0
	assert.False(t, d.requestStatus(&countdown))

	countdown = 2
	assert.True(t, d.requestStatus(&countdown), "no request before the countdown ends")
	assert.Equal(t, 1, countdown)
}

func TestReacquireOnStatusRequestFailure(t *testing.T) {
	conn := newFakeConn()
	conn.requestErr = errRefused
	d := NewDriver(activeConfig(), conn.dialer())
	defer d.Close()

	d.Subscribe()

	assert.Eventually(t, func() bool {
		dials, _ := conn.counts()
		return dials >= 2
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRelease(t *testing.T) {
	tests := []struct {
		name        string
		enabled     uint32
		allowConfig bool
		wantSets    []string
	}{
		{
			name:        "driver enabled auditing",
			enabled:     AuditDisabled,
			allowConfig: true,
			wantSets: []string{
				"backlog_limit=0",
				"backlog_wait_time=60000",
				fmt.Sprintf("failure=%d", FailPrintk),
				"enabled=0",
			},
		},
		{
			name:        "auditing already enabled",
			enabled:     AuditEnabled,
			allowConfig: true,
			wantSets: []string{
				"backlog_limit=0",
				"backlog_wait_time=60000",
				fmt.Sprintf("failure=%d", FailPrintk),
			},
		},
		{
			name:    "nothing configured",
			enabled: AuditEnabled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := newFakeConn()
			conn.status.Enabled = tt.enabled

			cfg := activeConfig()
			cfg.AllowConfig = tt.allowConfig
			d := NewDriver(cfg, conn.dialer())
			d.getuid = func() int { return 0 }

			d.acquireHandle()
			installed := len(d.installed)
			_, _, before := conn.snapshot()

			d.release()

			_, open, after := conn.snapshot()
			assert.False(t, open)
			assert.Nil(t, d.conn)
			assert.Empty(t, d.installed)
			assert.Len(t, conn.deleted, installed)
			assert.Empty(t, conn.rules)
			assert.Equal(t, tt.wantSets, nilIfEmpty(after[len(before):]))
			assert.Equal(t, StatusDisabled, d.NetlinkStatus())
		})
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestParseEnvelope(t *testing.T) {
	valid := encodeMessage(TypeSyscall, 0, 7, []byte("audit(1.0:1): a=b"))

	tests := []struct {
		name    string
		data    []byte
		sender  uint32
		bufSize int
		wantErr error
	}{
		{name: "valid", data: valid, bufSize: MaxMessageSize},
		{name: "foreign sender", data: valid, sender: 1234, bufSize: MaxMessageSize, wantErr: ErrInvalidEndpoint},
		{name: "short", data: valid[:8], bufSize: MaxMessageSize, wantErr: ErrBrokenMessage},
		{name: "truncated", data: valid[:20], bufSize: MaxMessageSize, wantErr: ErrBrokenMessage},
		{name: "filled buffer", data: valid[:20], bufSize: 20, wantErr: ErrMessageTooBig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := parseEnvelope(tt.data, tt.sender, tt.bufSize)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, TypeSyscall, msg.Type)
			assert.Equal(t, uint32(7), msg.Seq)
			assert.Equal(t, "audit(1.0:1): a=b", string(msg.Data))
		})
	}
}

func statusMessage(t *testing.T, pid uint32) RawMessage {
	t.Helper()
	st := &Status{Enabled: AuditEnabled, PID: pid}
	data, err := st.MarshalBinary()
	require.NoError(t, err)
	return RawMessage{Type: TypeGet, Data: data}
}

func TestProcessControlLoss(t *testing.T) {
	tests := []struct {
		name        string
		persist     bool
		pid         uint32
		wantAcquire bool
	}{
		{name: "still in control", persist: true, pid: 42},
		{name: "lost with persist", persist: true, pid: 7, wantAcquire: true},
		{name: "lost without persist", persist: false, pid: 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := activeConfig()
			cfg.Persist = tt.persist
			d := NewDriver(cfg, newFakeConn().dialer())
			d.getpid = func() int { return 42 }

			records := d.process([]RawMessage{statusMessage(t, tt.pid)})

			assert.Empty(t, records)
			assert.Equal(t, tt.wantAcquire, d.acquire.Load())
		})
	}
}

func TestProcessFiltersAndParses(t *testing.T) {
	d := NewDriver(activeConfig(), newFakeConn().dialer())

	queue := []RawMessage{
		{Type: TypeSyscall, Data: []byte(`audit(1234567890.123:100): arch=c000003e syscall=59 success=yes exe="/bin/ls"`)},
		{Type: TypeConfigChange, Data: []byte(`audit(1234567890.123:101): op=add_rule`)},
		{Type: TypeSeccomp, Data: []byte(`audit(1234567890.123:102): sig=0`)},
		{Type: TypeSyscall, Data: []byte(`garbage`)},
		{Type: TypeEOE, Data: []byte(`audit(1234567890.123:100): `)},
	}

	records := d.process(queue)

	require.Len(t, records, 2)
	assert.Equal(t, TypeSyscall, records[0].Type)
	assert.Equal(t, "1234567890.123:100", records[0].AuditID)
	assert.Equal(t, TypeEOE, records[1].Type)
}

func TestSubscribeInactive(t *testing.T) {
	conn := newFakeConn()
	d := NewDriver(DefaultConfig(), conn.dialer())

	h := d.Subscribe()
	assert.NotZero(t, h)
	assert.False(t, d.Running())
	assert.Nil(t, d.GetEvents(h))

	d.Unsubscribe(h)
	dials, _, _ := conn.snapshot()
	assert.Zero(t, dials)
}

func TestSubscribeReferenceCount(t *testing.T) {
	conn := newFakeConn()
	d := NewDriver(activeConfig(), conn.dialer())
	rng := rand.New(rand.NewSource(1))

	var handles []Handle
	subscribed, unsubscribed := 0, 0

	for i := 0; i < 40; i++ {
		if len(handles) == 0 || rng.Intn(2) == 0 {
			handles = append(handles, d.Subscribe())
			subscribed++
		} else {
			idx := rng.Intn(len(handles))
			d.Unsubscribe(handles[idx])
			handles = append(handles[:idx], handles[idx+1:]...)
			unsubscribed++
		}

		count := subscribed - unsubscribed
		require.Equal(t, count, d.Subscribers())
		require.Equal(t, count > 0, d.Running())

		if count == 0 {
			_, open, _ := conn.snapshot()
			require.False(t, open, "handle must be closed once the last subscriber leaves")
		}
	}

	// unknown and repeated unsubscribes are ignored
	d.Unsubscribe(Handle(9999))
	for _, h := range handles {
		d.Unsubscribe(h)
		d.Unsubscribe(h)
	}
	assert.Zero(t, d.Subscribers())
	assert.False(t, d.Running())
	_, open, _ := conn.snapshot()
	assert.False(t, open)
}

func TestFanOut(t *testing.T) {
	conn := newFakeConn()
	conn.gate = make(chan struct{})
	d := NewDriver(activeConfig(), conn.dialer())
	defer d.Close()

	handles := []Handle{d.Subscribe(), d.Subscribe(), d.Subscribe()}

	const n = 5
	for i := 0; i < n; i++ {
		conn.push(TypeSyscall, fmt.Sprintf("audit(1700000000.000:%d): syscall=59 success=yes", i))
	}
	close(conn.gate)

	got := make(map[Handle][]*Record)
	assert.Eventually(t, func() bool {
		done := true
		for _, h := range handles {
			got[h] = append(got[h], d.GetEvents(h)...)
			if len(got[h]) < n {
				done = false
			}
		}
		return done
	}, 2*time.Second, 5*time.Millisecond)

	for _, h := range handles {
		require.Len(t, got[h], n)
		for i, rec := range got[h] {
			assert.Equal(t, fmt.Sprintf("1700000000.000:%d", i), rec.AuditID)
		}
	}
	assert.Equal(t, StatusActiveImmutable, d.NetlinkStatus())
}

func TestReacquireOnBadEnvelope(t *testing.T) {
	conn := newFakeConn()
	conn.senderID = 99
	d := NewDriver(activeConfig(), conn.dialer())
	defer d.Close()

	h := d.Subscribe()
	conn.push(TypeSyscall, "audit(1.0:1): a=b")

	assert.Eventually(t, func() bool {
		dials, _, _ := conn.snapshot()
		return dials >= 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, d.GetEvents(h))
}

func TestReacquireOnControlLoss(t *testing.T) {
	conn := newFakeConn()
	conn.ownerPID = 1
	cfg := activeConfig()
	cfg.Persist = true
	d := NewDriver(cfg, conn.dialer())
	d.getpid = func() int { return 4242 }
	defer d.Close()

	d.Subscribe()

	assert.Eventually(t, func() bool {
		dials, _, _ := conn.snapshot()
		return dials >= 2
	}, 2*time.Second, 5*time.Millisecond)
}
