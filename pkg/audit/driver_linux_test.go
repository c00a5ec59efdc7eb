package audit

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestErrnoChecks(t *testing.T) {
	tests := []struct {
		name  string
		check func(error) bool
		match []error
		miss  []error
	}{
		{"no buffer", isNoBuffer, []error{unix.ENOBUFS}, []error{unix.EAGAIN, errDenied}},
		{"interrupted", isInterrupted, []error{unix.EAGAIN, unix.EINTR}, []error{unix.ENOBUFS, errDenied}},
		{"exists", isExists, []error{unix.EEXIST}, []error{unix.EPERM, errDenied}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, err := range tt.match {
				assert.True(t, tt.check(err), err.Error())
				assert.True(t, tt.check(fmt.Errorf("failed to send: %w", err)), "wrapped "+err.Error())
			}
			for _, err := range tt.miss {
				assert.False(t, tt.check(err), err.Error())
			}
		})
	}
}

func TestStatusRequestNoBufferKeepsHandle(t *testing.T) {
	conn := newFakeConn()
	conn.requestErr = unix.ENOBUFS
	cfg := activeConfig()
	cfg.StatusInterval = 3
	d := NewDriver(cfg, conn.dialer())
	defer d.Close()

	d.Subscribe()

	require.Eventually(t, func() bool {
		_, requests := conn.counts()
		return requests >= 3
	}, 2*time.Second, 5*time.Millisecond)

	dials, _ := conn.counts()
	assert.Equal(t, 1, dials)
}

func TestConfigureServiceExistingRules(t *testing.T) {
	conn := newFakeConn()
	cfg := activeConfig()
	cfg.AllowConfig = true
	cfg.AllowFIMEvents = true
	syscalls := cfg.Syscalls()
	if len(syscalls) < 2 {
		t.Skip("no syscall table for this platform")
	}

	conn.addRuleErrs[syscalls[0]] = unix.EEXIST
	conn.addRuleErrs[syscalls[1]] = unix.EPERM

	d := NewDriver(cfg, conn.dialer())
	d.getuid = func() int { return 0 }
	require.Equal(t, StatusActiveMutable, d.acquireHandle())

	// neither failing rule is recorded, so neither is removed on restore
	assert.Len(t, d.installed, len(syscalls)-2)

	d.release()
	assert.Len(t, conn.deleted, len(syscalls)-2)
	assert.NotContains(t, conn.deleted, syscalls[0])
	assert.NotContains(t, conn.deleted, syscalls[1])
}
