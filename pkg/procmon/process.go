package procmon

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/lookout/pkg/events"
	"github.com/cuemby/lookout/pkg/log"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessPublisherName is the name the process publisher registers under
const ProcessPublisherName = "process"

// ProcessInfo describes one running process
type ProcessInfo struct {
	PID        int32
	PPID       int32
	Name       string
	Exe        string
	Cmdline    string
	Username   string
	CreateTime int64
}

type processKey struct {
	pid     int32
	created int64
}

// ProcessLister returns the running processes
type ProcessLister func(ctx context.Context) ([]ProcessInfo, error)

// ProcessSubscriptionContext selects process starts and exits. Empty
// fields match everything; Names compares against the process name.
type ProcessSubscriptionContext struct {
	Actions []string
	Names   []string
}

// ProcessEventContext is one process start or exit
type ProcessEventContext struct {
	events.EventBase
	Action  string
	Process ProcessInfo
}

// ProcessPublisher diffs successive process table snapshots
type ProcessPublisher struct {
	snapshotter
	list   ProcessLister
	logger zerolog.Logger
	prev   map[processKey]ProcessInfo
}

// NewProcessPublisher creates a process publisher. A nil lister reads the
// process table through gopsutil.
func NewProcessPublisher(interval time.Duration, list ProcessLister) *ProcessPublisher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if list == nil {
		list = ListProcesses
	}
	return &ProcessPublisher{
		snapshotter: snapshotter{interval: interval},
		list:        list,
		logger:      log.WithPublisher(ProcessPublisherName),
	}
}

func (p *ProcessPublisher) Name() string { return ProcessPublisherName }

func (p *ProcessPublisher) NewSubscriptionContext() events.SubscriptionContext {
	return &ProcessSubscriptionContext{}
}

// Run takes one snapshot per interval. The first snapshot is a baseline
// and produces no events.
func (p *ProcessPublisher) Run(ctx context.Context) ([]events.EventContext, error) {
	if p.prev != nil && !wait(ctx, p.interval) {
		return nil, nil
	}

	procs, err := p.list(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("Failed to list processes")
		if p.prev == nil {
			wait(ctx, p.interval)
		}
		return nil, nil
	}

	cur := make(map[processKey]ProcessInfo, len(procs))
	for _, pi := range procs {
		cur[processKey{pid: pi.PID, created: pi.CreateTime}] = pi
	}

	if p.prev == nil {
		p.prev = cur
		return nil, nil
	}
	started, exited := diff(p.prev, cur)
	p.prev = cur

	sortByPID(started)
	sortByPID(exited)

	now := time.Now()
	out := make([]events.EventContext, 0, len(started)+len(exited))
	for _, pi := range exited {
		out = append(out, &ProcessEventContext{EventBase: events.EventBase{Time: now}, Action: ActionExited, Process: pi})
	}
	for _, pi := range started {
		out = append(out, &ProcessEventContext{EventBase: events.EventBase{Time: now}, Action: ActionStarted, Process: pi})
	}
	return out, nil
}

func (p *ProcessPublisher) ShouldFire(sc events.SubscriptionContext, ec events.EventContext) bool {
	s, ok := sc.(*ProcessSubscriptionContext)
	if !ok {
		return false
	}
	e, ok := ec.(*ProcessEventContext)
	if !ok {
		return false
	}
	if !matchAction(s.Actions, e.Action) {
		return false
	}
	if len(s.Names) == 0 {
		return true
	}
	for _, name := range s.Names {
		if strings.EqualFold(name, e.Process.Name) {
			return true
		}
	}
	return false
}

func sortByPID(procs []ProcessInfo) {
	sort.Slice(procs, func(i, j int) bool { return procs[i].PID < procs[j].PID })
}

// ListProcesses reads the process table. Processes that exit while being
// read are skipped.
func ListProcesses(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ProcessInfo, 0, len(procs))
	for _, proc := range procs {
		created, err := proc.CreateTimeWithContext(ctx)
		if err != nil {
			continue
		}
		pi := ProcessInfo{PID: proc.Pid, CreateTime: created}
		pi.PPID, _ = proc.PpidWithContext(ctx)
		pi.Name, _ = proc.NameWithContext(ctx)
		pi.Exe, _ = proc.ExeWithContext(ctx)
		pi.Cmdline, _ = proc.CmdlineWithContext(ctx)
		pi.Username, _ = proc.UsernameWithContext(ctx)
		out = append(out, pi)
	}
	return out, nil
}
