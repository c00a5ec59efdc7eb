package audit

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// fakeConn is an in-memory audit netlink connection. One instance is
// reused across dials so tests can inspect what the driver did.
type fakeConn struct {
	mu sync.Mutex

	dials  int
	open   bool
	closes int

	setPIDErr     error
	statusErr     error
	enableErr     error
	requestErr    error
	addRuleErrs   map[int]error
	status        Status
	ownerPID      uint32
	sets          []string
	rules         map[int]bool
	deleted       []int
	statusQueries int
	requests      int

	gate     chan struct{}
	inbox    [][]byte
	senderID uint32
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		status:      Status{Enabled: AuditEnabled},
		ownerPID:    uint32(os.Getpid()),
		addRuleErrs: make(map[int]error),
		rules:       make(map[int]bool),
	}
}

func (c *fakeConn) dialer() Dialer {
	return func() (Conn, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.dials++
		c.open = true
		return c, nil
	}
}

func (c *fakeConn) record(s string) {
	c.sets = append(c.sets, s)
}

func (c *fakeConn) SetPID(pid uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setPIDErr != nil {
		return c.setPIDErr
	}
	c.status.PID = pid
	return nil
}

func (c *fakeConn) Status() (*Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusQueries++
	if c.statusErr != nil {
		return nil, c.statusErr
	}
	st := c.status
	return &st, nil
}

func (c *fakeConn) RequestStatus() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++
	if c.requestErr != nil {
		return c.requestErr
	}
	st := c.status
	st.PID = c.ownerPID
	payload, _ := st.MarshalBinary()
	c.inbox = append(c.inbox, encodeMessage(TypeGet, 0, 0, payload))
	return nil
}

func (c *fakeConn) SetEnabled(mode uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.enableErr != nil {
		return c.enableErr
	}
	c.status.Enabled = mode
	c.record(setting("enabled", mode))
	return nil
}

func (c *fakeConn) SetBacklogLimit(limit uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(setting("backlog_limit", limit))
	return nil
}

func (c *fakeConn) SetBacklogWaitTime(wait uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(setting("backlog_wait_time", wait))
	return nil
}

func (c *fakeConn) SetFailure(mode uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(setting("failure", mode))
	return nil
}

func (c *fakeConn) AddRule(r *Rule) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	nr := r.Syscalls()[0]
	if err := c.addRuleErrs[nr]; err != nil {
		return err
	}
	c.rules[nr] = true
	return nil
}

func (c *fakeConn) DeleteRule(r *Rule) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	nr := r.Syscalls()[0]
	delete(c.rules, nr)
	c.deleted = append(c.deleted, nr)
	return nil
}

func (c *fakeConn) gateOpen() bool {
	if c.gate == nil {
		return true
	}
	select {
	case <-c.gate:
		return true
	default:
		return false
	}
}

func (c *fakeConn) Poll(timeout time.Duration) (bool, error) {
	c.mu.Lock()
	ready := len(c.inbox) > 0 && c.gateOpen()
	c.mu.Unlock()

	if !ready && timeout > 0 {
		time.Sleep(time.Millisecond)
	}
	return ready, nil
}

func (c *fakeConn) Receive(buf []byte) (int, uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := c.inbox[0]
	c.inbox = c.inbox[1:]
	return copy(buf, msg), c.senderID, nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.closes++
	return nil
}

func (c *fakeConn) push(t MessageType, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbox = append(c.inbox, encodeMessage(t, 0, 0, []byte(text)))
}

func (c *fakeConn) snapshot() (dials int, open bool, sets []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dials, c.open, append([]string(nil), c.sets...)
}

func (c *fakeConn) counts() (dials, requests int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dials, c.requests
}

func setting(name string, v uint32) string {
	return fmt.Sprintf("%s=%d", name, v)
}

// activeConfig returns a driver config that starts goroutines and retries fast
func activeConfig() Config {
	cfg := DefaultConfig()
	cfg.Disable = false
	cfg.AllowProcessEvents = true
	cfg.ReconnectDelay = 5 * time.Millisecond
	cfg.PollTimeout = time.Millisecond
	return cfg
}
