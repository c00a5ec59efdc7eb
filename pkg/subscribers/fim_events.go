package subscribers

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cuemby/lookout/pkg/audit"
	"github.com/cuemby/lookout/pkg/events"
	"github.com/cuemby/lookout/pkg/pattern"
	"github.com/cuemby/lookout/pkg/storage"
	"github.com/cuemby/lookout/pkg/types"
	lru "github.com/hashicorp/golang-lru"
)

// FimEventsName is the fim_events subscriber name
const FimEventsName = "fim_events"

// DefaultTrackedProcesses bounds the processes whose open descriptors are
// remembered
const DefaultTrackedProcesses = 4096

// FimConfig selects the files fim_events reports
type FimConfig struct {
	// Include globs; empty reports every path
	Include []string
	// Exclude globs win over Include
	Exclude []string
	// ShowAccesses also reports reads, executions and read-only opens
	ShowAccesses bool
}

// FimEvents records file accesses and changes assembled from audit
// records. Descriptors returned by open and creat are tracked per process
// so later read, write and close calls resolve to a path.
type FimEvents struct {
	base

	include      []*pattern.Pattern
	roots        []string
	exclude      *pattern.ExclusionSet
	showAccesses bool

	// pid to fd table. Callbacks run on the audit publisher goroutine.
	fds *lru.Cache
}

// NewFimEvents creates the fim_events subscriber
func NewFimEvents(store storage.Store, cfg FimConfig) (*FimEvents, error) {
	fds, err := lru.New(DefaultTrackedProcesses)
	if err != nil {
		return nil, fmt.Errorf("failed to create descriptor cache: %w", err)
	}

	s := &FimEvents{
		base:         newBase(FimEventsName, audit.PublisherName, store),
		exclude:      pattern.NewExclusionSet(),
		showAccesses: cfg.ShowAccesses,
		fds:          fds,
	}
	for _, glob := range cfg.Include {
		if glob == "" {
			continue
		}
		if !pattern.HasWildcard(glob) && !strings.HasSuffix(glob, "/") {
			s.roots = append(s.roots, glob)
			continue
		}
		p, err := pattern.Compile(glob)
		if err != nil {
			return nil, err
		}
		s.include = append(s.include, p)
	}
	for _, glob := range cfg.Exclude {
		if err := s.exclude.Add(glob); err != nil {
			return nil, err
		}
	}
	s.exclude.Resolve()
	return s, nil
}

func (s *FimEvents) Init(r events.Registrar) error {
	raw := r.NewSubscriptionContext()
	sc, ok := raw.(*audit.SubscriptionContext)
	if !ok {
		return fmt.Errorf("%w: %T", events.ErrContextType, raw)
	}
	sc.Assembled = true
	sc.Syscalls = audit.FimSyscalls()
	return r.Subscribe(sc, events.Typed(s.callback))
}

func (s *FimEvents) callback(ec *audit.EventContext, _ *audit.SubscriptionContext) error {
	if ec.Event == nil {
		return nil
	}
	fe, ok := s.handle(ec.Event)
	if !ok {
		return nil
	}
	return s.persist(ec.Event.Time, fe.Row())
}

// handle updates the descriptor tables and returns the row to store, if
// the event is reported
func (s *FimEvents) handle(ev *audit.Event) (*types.FimEvent, bool) {
	op, ok := audit.FileOperation(ev.Syscall)
	if !ok || !ev.Success {
		return nil, false
	}
	sys := ev.First(audit.TypeSyscall)
	if sys == nil {
		return nil, false
	}
	pid, _ := sys.Get("pid")

	if op.Action == audit.FileExit {
		s.fds.Remove(pid)
		return nil, false
	}

	var target string
	switch {
	case op.Action == audit.FileMmap:
		if r := ev.First(audit.TypeMmap); r != nil {
			if v, ok := r.Get("fd"); ok {
				if fd, err := strconv.Atoi(v); err == nil {
					target = s.lookup(pid, fd)
				}
			}
		}
	case op.FDArg >= 0:
		fd, ok := fdArg(sys, op.FDArg)
		if !ok {
			return nil, false
		}
		target = s.lookup(pid, fd)
		switch op.Action {
		case audit.FileDup:
			if ret, ok := exitValue(sys); ok && target != "" {
				s.track(pid, ret, target)
			}
			return nil, false
		case audit.FileClose:
			s.untrack(pid, fd)
		}
	default:
		target = s.resolve(ev, sys, pid, op)
		if op.ReturnsFD && target != "" {
			if ret, ok := exitValue(sys); ok {
				s.track(pid, ret, target)
			}
		}
	}

	if target == "" {
		return nil, false
	}
	if !s.showAccesses && !modifies(sys, op) {
		return nil, false
	}
	if !s.matches(target) {
		return nil, false
	}

	fe := &types.FimEvent{
		AuditID: ev.ID,
		PID:     pid,
		Target:  target,
		Action:  op.Action,
		Time:    ev.Time,
	}
	fe.UID, _ = sys.Get("uid")
	fe.Exe, _ = sys.Text("exe")
	return fe, true
}

// resolve returns the absolute path a path based syscall named. Relative
// names are joined with the directory descriptor, or the working
// directory when there is none.
func (s *FimEvents) resolve(ev *audit.Event, sys *audit.Record, pid string, op audit.FileOp) string {
	name := ""
	for _, r := range ev.All(audit.TypePath) {
		if nt, _ := r.Get("nametype"); nt == "PARENT" {
			continue
		}
		name, _ = r.Text("name")
		break
	}
	if name == "" || filepath.IsAbs(name) {
		return cleanPath(name)
	}

	dir := ""
	if op.DirArg >= 0 {
		if dirfd, ok := fdArg(sys, op.DirArg); ok && dirfd != audit.AtFDCWD {
			dir = s.lookup(pid, dirfd)
		}
	}
	if dir == "" {
		if r := ev.First(audit.TypeCwd); r != nil {
			dir, _ = r.Text("cwd")
		}
	}
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, name)
}

func (s *FimEvents) matches(path string) bool {
	if s.exclude.Excludes(path) {
		return false
	}
	if len(s.include) == 0 && len(s.roots) == 0 {
		return true
	}
	for _, root := range s.roots {
		if pattern.Contains(root, path) {
			return true
		}
	}
	for _, p := range s.include {
		if p.Match(path) {
			return true
		}
	}
	return false
}

func (s *FimEvents) lookup(pid string, fd int) string {
	v, ok := s.fds.Get(pid)
	if !ok {
		return ""
	}
	return v.(map[int]string)[fd]
}

func (s *FimEvents) track(pid string, fd int, path string) {
	if fd < 0 {
		return
	}
	var table map[int]string
	if v, ok := s.fds.Get(pid); ok {
		table = v.(map[int]string)
	} else {
		table = make(map[int]string)
		s.fds.Add(pid, table)
	}
	table[fd] = path
}

func (s *FimEvents) untrack(pid string, fd int) {
	if v, ok := s.fds.Peek(pid); ok {
		delete(v.(map[int]string), fd)
	}
}

// modifies reports whether the call can change the file
func modifies(sys *audit.Record, op audit.FileOp) bool {
	if op.Modifies {
		return true
	}
	if op.FlagsArg < 0 {
		return false
	}
	flags, ok := syscallArg(sys, op.FlagsArg)
	return ok && audit.OpenWrites(flags)
}

// syscallArg reads a hex encoded aN argument of a SYSCALL record
func syscallArg(r *audit.Record, i int) (uint64, bool) {
	v, ok := r.Get("a" + strconv.Itoa(i))
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 16, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// fdArg reads a descriptor argument; descriptors are 32 bit so AT_FDCWD
// arrives as ffffff9c
func fdArg(r *audit.Record, i int) (int, bool) {
	n, ok := syscallArg(r, i)
	if !ok {
		return 0, false
	}
	return int(int32(uint32(n))), true
}

func exitValue(r *audit.Record) (int, bool) {
	v, ok := r.Get("exit")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func cleanPath(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}
