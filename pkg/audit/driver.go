package audit

import (
	"context"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/lookout/pkg/log"
	"github.com/cuemby/lookout/pkg/metrics"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// Config holds the audit driver settings
type Config struct {
	// Disable turns the driver off entirely
	Disable bool
	// Persist reacquires the audit subsystem when another process takes it
	Persist bool
	// AllowConfig lets the driver enable auditing, set limits and install rules
	AllowConfig bool

	AllowProcessEvents bool
	AllowSockets       bool
	AllowFIMEvents     bool

	// Debug logs every parsed record
	Debug bool

	// ReconnectDelay is the pause before retrying a failed acquisition
	ReconnectDelay time.Duration
	// StatusInterval is the number of receive cycles between status requests
	StatusInterval int
	// ReadBatch caps the messages read in one receive cycle
	ReadBatch int
	// PollTimeout bounds the first poll of a receive cycle
	PollTimeout time.Duration
}

// DefaultConfig returns the driver defaults. Auditing is disabled until
// enabled by configuration.
func DefaultConfig() Config {
	return Config{
		Disable:        true,
		Persist:        true,
		ReconnectDelay: 5 * time.Second,
		StatusInterval: 1000,
		ReadBatch:      4096,
		PollTimeout:    100 * time.Millisecond,
	}
}

// active reports whether the driver has anything to do
func (c Config) active() bool {
	return !c.Disable && (c.AllowProcessEvents || c.AllowSockets || c.AllowFIMEvents)
}

// Syscalls returns the sorted set of syscall numbers the enabled
// capabilities need rules for.
func (c Config) Syscalls() []int {
	set := make(map[int]struct{})
	add := func(nrs []int) {
		for _, nr := range nrs {
			set[nr] = struct{}{}
		}
	}
	if c.AllowSockets {
		add(socketSyscalls)
	}
	if c.AllowProcessEvents {
		add(processSyscalls)
	}
	if c.AllowFIMEvents {
		add(fimSyscalls)
	}

	out := make([]int, 0, len(set))
	for nr := range set {
		out = append(out, nr)
	}
	sort.Ints(out)
	return out
}

// Handle identifies one subscriber of the driver
type Handle uint64

type handleQueue struct {
	mu      sync.Mutex
	records []*Record
}

// Driver owns the audit netlink socket. A receive goroutine reads raw
// messages into a shared queue and a process goroutine parses them and
// copies every record to each subscriber handle. Both run while at least
// one handle exists.
type Driver struct {
	cfg    Config
	dial   Dialer
	logger zerolog.Logger
	getpid func() int
	getuid func() int

	// lifecycle; held across Subscribe/Unsubscribe
	initMu  sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      *conc.WaitGroup

	subsMu sync.Mutex
	subs   map[Handle]*handleQueue
	nextID Handle

	rawMu    sync.Mutex
	rawCond  *sync.Cond
	raw      []RawMessage
	stopping bool

	acquire atomic.Bool
	status  atomic.Int32

	// owned by the receive goroutine
	conn       Conn
	buf        []byte
	installed  []*Rule
	configured bool
	enabled    bool
}

// NewDriver creates a driver that opens connections through dial
func NewDriver(cfg Config, dial Dialer) *Driver {
	defaults := DefaultConfig()
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaults.ReconnectDelay
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = defaults.StatusInterval
	}
	if cfg.ReadBatch <= 0 {
		cfg.ReadBatch = defaults.ReadBatch
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaults.PollTimeout
	}
	if dial == nil {
		dial = Dial
	}

	d := &Driver{
		cfg:    cfg,
		dial:   dial,
		logger: log.WithComponent("audit"),
		getpid: os.Getpid,
		getuid: os.Getuid,
		subs:   make(map[Handle]*handleQueue),
		buf:    make([]byte, MaxMessageSize),
	}
	d.rawCond = sync.NewCond(&d.rawMu)
	d.status.Store(int32(StatusDisabled))
	return d
}

// Subscribe returns a new handle with its own record queue, starting the
// driver goroutines on first use.
func (d *Driver) Subscribe() Handle {
	d.initMu.Lock()
	defer d.initMu.Unlock()

	d.subsMu.Lock()
	d.nextID++
	h := d.nextID
	d.subs[h] = &handleQueue{}
	count := len(d.subs)
	d.subsMu.Unlock()

	metrics.AuditSubscribers.Set(float64(count))
	d.start()
	return h
}

// Unsubscribe drops a handle. Removing the last handle stops both
// goroutines and restores the audit subsystem.
func (d *Driver) Unsubscribe(h Handle) {
	d.initMu.Lock()
	defer d.initMu.Unlock()

	d.subsMu.Lock()
	if _, ok := d.subs[h]; !ok {
		d.subsMu.Unlock()
		return
	}
	delete(d.subs, h)
	count := len(d.subs)
	d.subsMu.Unlock()

	metrics.AuditSubscribers.Set(float64(count))
	if count == 0 {
		d.terminate()
	}
}

// Close drops every handle and stops the driver
func (d *Driver) Close() {
	d.initMu.Lock()
	defer d.initMu.Unlock()

	d.subsMu.Lock()
	d.subs = make(map[Handle]*handleQueue)
	d.subsMu.Unlock()

	metrics.AuditSubscribers.Set(0)
	d.terminate()
}

// Subscribers returns the number of live handles
func (d *Driver) Subscribers() int {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	return len(d.subs)
}

// Running reports whether the driver goroutines are running
func (d *Driver) Running() bool {
	d.initMu.Lock()
	defer d.initMu.Unlock()
	return d.running
}

// NetlinkStatus returns the status of the last acquisition
func (d *Driver) NetlinkStatus() NetlinkStatus {
	return NetlinkStatus(d.status.Load())
}

// GetEvents drains and returns the records queued for h
func (d *Driver) GetEvents(h Handle) []*Record {
	if !d.cfg.active() {
		return nil
	}

	d.subsMu.Lock()
	defer d.subsMu.Unlock()

	q, ok := d.subs[h]
	if !ok {
		return nil
	}

	q.mu.Lock()
	records := q.records
	q.records = nil
	q.mu.Unlock()
	return records
}

// start must be called with initMu held
func (d *Driver) start() {
	if d.running || !d.cfg.active() {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.wg = conc.NewWaitGroup()

	d.rawMu.Lock()
	d.stopping = false
	d.raw = nil
	d.rawMu.Unlock()

	d.wg.Go(func() { d.receiveLoop(ctx) })
	d.wg.Go(func() { d.processLoop() })
	d.running = true

	d.logger.Info().Ints("syscalls", d.cfg.Syscalls()).Msg("Audit driver started")
}

// terminate must be called with initMu held
func (d *Driver) terminate() {
	if !d.running {
		return
	}

	d.cancel()
	d.rawMu.Lock()
	d.stopping = true
	d.rawCond.Broadcast()
	d.rawMu.Unlock()

	d.wg.Wait()
	d.running = false

	d.logger.Info().Msg("Audit driver stopped")
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (d *Driver) receiveLoop(ctx context.Context) {
	defer d.release()

	d.acquire.Store(true)
	countdown := 0

	for ctx.Err() == nil {
		if d.acquire.Load() {
			d.logger.Debug().Msg("Acquiring audit handle")

			status := d.acquireHandle()
			d.status.Store(int32(status))
			metrics.AuditReacquisitions.WithLabelValues(status.String()).Inc()
			metrics.RegisterComponent("audit_netlink", status != StatusError, status.String())

			if status == StatusDisabled || status == StatusError {
				sleep(ctx, d.cfg.ReconnectDelay)
				continue
			}

			d.logger.Info().Str("status", status.String()).Msg("Audit handle acquired")
			d.acquire.Store(false)
			countdown = 0
		}

		if !d.requestStatus(&countdown) {
			d.acquire.Store(true)
			sleep(ctx, d.cfg.ReconnectDelay)
			continue
		}

		if !d.receive() {
			d.acquire.Store(true)
			sleep(ctx, d.cfg.ReconnectDelay)
		}
	}
}

// requestStatus asks for the kernel status when countdown reaches zero,
// then restarts it at StatusInterval. It returns false when the handle
// must be reacquired.
func (d *Driver) requestStatus(countdown *int) bool {
	if *countdown > 0 {
		*countdown--
		return true
	}
	*countdown = d.cfg.StatusInterval

	err := d.conn.RequestStatus()
	switch {
	case err == nil:
		return true
	case isNoBuffer(err):
		d.logger.Debug().Err(err).Msg("Failed to request audit status, retrying later")
		return true
	default:
		d.logger.Debug().Err(err).Msg("Failed to request audit status, resetting handle")
		return false
	}
}

// receive reads up to ReadBatch messages and queues them for processing.
// It returns false when the handle must be reacquired.
func (d *Driver) receive() bool {
	var batch []RawMessage
	reset := false
	timeout := d.cfg.PollTimeout

	for len(batch) < d.cfg.ReadBatch {
		ready, err := d.conn.Poll(timeout)
		timeout = 0
		if err != nil {
			d.logger.Debug().Err(err).Msg("Audit netlink poll failed")
			reset = true
			break
		}
		if !ready {
			break
		}

		n, sender, err := d.conn.Receive(d.buf)
		if err != nil {
			if isInterrupted(err) {
				break
			}
			d.logger.Debug().Err(err).Msg("Audit netlink receive failed")
			reset = true
			break
		}

		msg, err := parseEnvelope(d.buf[:n], sender, len(d.buf))
		if err != nil {
			metrics.AuditRecords.WithLabelValues("bad_envelope").Inc()
			d.logger.Debug().Err(err).Msg("Invalid audit netlink message")
			reset = true
			break
		}
		batch = append(batch, msg)
	}

	if len(batch) > 0 {
		d.rawMu.Lock()
		d.raw = append(d.raw, batch...)
		d.rawCond.Signal()
		d.rawMu.Unlock()
	}

	if reset {
		d.logger.Debug().Msg("Requesting audit handle reset")
	}
	return !reset
}

func (d *Driver) processLoop() {
	for {
		d.rawMu.Lock()
		for len(d.raw) == 0 && !d.stopping {
			d.rawCond.Wait()
		}
		if d.stopping {
			d.rawMu.Unlock()
			return
		}
		queue := d.raw
		d.raw = nil
		d.rawMu.Unlock()

		d.fanOut(d.process(queue))
	}
}

// process parses a batch of raw messages. Status replies are checked for
// loss of control and not returned.
func (d *Driver) process(queue []RawMessage) []*Record {
	var records []*Record

	for _, msg := range queue {
		if msg.Type == TypeGet {
			d.checkControl(msg.Data)
			continue
		}

		if !ShouldHandle(msg.Type) {
			metrics.AuditRecords.WithLabelValues("filtered").Inc()
			continue
		}

		rec, err := ParseRecord(msg.Type, msg.Data)
		if err != nil {
			metrics.AuditRecords.WithLabelValues("malformed").Inc()
			d.logger.Debug().Err(err).Str("type", msg.Type.String()).Msg("Malformed audit record received")
			continue
		}
		metrics.AuditRecords.WithLabelValues("parsed").Inc()

		if d.cfg.Debug {
			d.logger.Debug().Msg(rec.String())
		}
		records = append(records, rec)
	}
	return records
}

func (d *Driver) checkControl(data []byte) {
	st, err := UnmarshalStatus(data)
	if err != nil {
		d.logger.Debug().Err(err).Msg("Invalid audit status reply")
		return
	}
	if int(st.PID) == d.getpid() {
		return
	}

	metrics.AuditControlLost.Inc()
	d.logger.Warn().Uint32("pid", st.PID).Msg("Audit control lost")

	if d.cfg.Persist {
		d.logger.Info().Msg("Attempting to reacquire control of the audit service")
		d.acquire.Store(true)
	}
}

// fanOut appends a copy of records to every handle queue
func (d *Driver) fanOut(records []*Record) {
	if len(records) == 0 {
		return
	}

	d.subsMu.Lock()
	defer d.subsMu.Unlock()

	for _, q := range d.subs {
		q.mu.Lock()
		q.records = append(q.records, records...)
		q.mu.Unlock()
	}
}

// acquireHandle replaces the connection and classifies the audit subsystem.
// On return d.conn is either a connection registered as audit pid, or nil
// with StatusError.
func (d *Driver) acquireHandle() NetlinkStatus {
	d.closeConn()

	conn, err := d.dial()
	if err != nil {
		d.logger.Debug().Err(err).Msg("Failed to open audit netlink")
		return StatusError
	}

	if err := conn.SetPID(uint32(d.getpid())); err != nil {
		d.logger.Debug().Err(err).Msg("Failed to set audit pid")
		conn.Close()
		return StatusError
	}
	d.conn = conn

	status := d.netlinkStatus()
	if d.cfg.AllowConfig && status == StatusDisabled {
		if err := conn.SetEnabled(AuditEnabled); err != nil {
			d.logger.Debug().Err(err).Msg("Failed to enable the audit service")
			d.closeConn()
			return StatusError
		}
		d.enabled = true
		d.logger.Info().Msg("Audit service enabled")
		status = d.netlinkStatus()
	}

	if d.cfg.AllowConfig && status == StatusActiveMutable {
		d.configureService()
	}
	return status
}

func (d *Driver) netlinkStatus() NetlinkStatus {
	if d.cfg.Disable {
		return StatusDisabled
	}

	st, err := d.conn.Status()
	if err != nil {
		d.logger.Debug().Err(err).Msg("Failed to query audit status")
		return StatusError
	}

	switch {
	case st.Enabled == AuditImmutable || d.getuid() != 0 || !d.cfg.AllowConfig:
		return StatusActiveImmutable
	case st.Enabled == AuditEnabled:
		return StatusActiveMutable
	case st.Enabled == AuditDisabled:
		return StatusDisabled
	}
	return StatusError
}

// configureService sets the backlog and failure mode and installs one exit
// rule per monitored syscall. Rules that already exist are not recorded,
// so they are left in place on restore.
func (d *Driver) configureService() {
	d.logger.Debug().Msg("Configuring the audit service")

	if err := d.conn.SetBacklogWaitTime(1); err != nil {
		d.logger.Debug().Err(err).Msg("Failed to set audit backlog wait time")
	}
	if err := d.conn.SetBacklogLimit(4096); err != nil {
		d.logger.Debug().Err(err).Msg("Failed to set audit backlog limit")
	}
	if err := d.conn.SetFailure(FailSilent); err != nil {
		d.logger.Debug().Err(err).Msg("Failed to set audit failure mode")
	}
	d.configured = true

	for _, nr := range d.cfg.Syscalls() {
		rule := NewSyscallRule(nr)
		err := d.conn.AddRule(rule)
		if err == nil {
			d.installed = append(d.installed, rule)
			if d.cfg.Debug {
				d.logger.Debug().Int("syscall", nr).Msg("Audit rule installed")
			}
			continue
		}
		if !isExists(err) {
			d.logger.Warn().Err(err).Int("syscall", nr).Msg("Failed to install audit rule")
		}
	}
	metrics.AuditRulesInstalled.Set(float64(len(d.installed)))
}

// release runs when the receive goroutine exits
func (d *Driver) release() {
	if d.conn == nil && (len(d.installed) > 0 || d.configured || d.enabled) {
		conn, err := d.dial()
		if err != nil {
			d.logger.Warn().Err(err).Msg("Failed to reopen audit netlink to restore configuration")
		} else {
			d.conn = conn
		}
	}
	if d.conn != nil {
		d.restore()
	}
	d.closeConn()
	d.status.Store(int32(StatusDisabled))
}

// restore removes the rules this process installed and resets the limits
// and enabled flag it changed.
func (d *Driver) restore() {
	if len(d.installed) > 0 {
		d.logger.Debug().Int("rules", len(d.installed)).Msg("Uninstalling audit rules")
	}
	for _, rule := range d.installed {
		if err := d.conn.DeleteRule(rule); err != nil {
			d.logger.Debug().Err(err).Ints("syscalls", rule.Syscalls()).Msg("Failed to delete audit rule")
		}
	}
	d.installed = nil
	metrics.AuditRulesInstalled.Set(0)

	if d.configured {
		d.logger.Debug().Msg("Restoring the default audit service configuration")
		_ = d.conn.SetBacklogLimit(0)
		_ = d.conn.SetBacklogWaitTime(60000)
		_ = d.conn.SetFailure(FailPrintk)
		d.configured = false
	}
	if d.enabled {
		_ = d.conn.SetEnabled(AuditDisabled)
		d.enabled = false
	}
}

func (d *Driver) closeConn() {
	if d.conn == nil {
		return
	}
	if err := d.conn.Close(); err != nil {
		d.logger.Debug().Err(err).Msg("Failed to close audit netlink")
	}
	d.conn = nil
}
