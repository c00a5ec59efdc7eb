package subscribers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/lookout/pkg/audit"
	"github.com/cuemby/lookout/pkg/events"
	"github.com/cuemby/lookout/pkg/storage"
	"github.com/cuemby/lookout/pkg/types"
)

// ProcessEventsName is the process_events subscriber name
const ProcessEventsName = "process_events"

// ProcessEvents records process executions assembled from audit records
type ProcessEvents struct {
	base
}

// NewProcessEvents creates the process_events subscriber
func NewProcessEvents(store storage.Store) *ProcessEvents {
	return &ProcessEvents{base: newBase(ProcessEventsName, audit.PublisherName, store)}
}

func (s *ProcessEvents) Init(r events.Registrar) error {
	raw := r.NewSubscriptionContext()
	sc, ok := raw.(*audit.SubscriptionContext)
	if !ok {
		return fmt.Errorf("%w: %T", events.ErrContextType, raw)
	}
	sc.Assembled = true
	sc.Syscalls = audit.ProcessSyscalls()
	return r.Subscribe(sc, events.Typed(s.callback))
}

func (s *ProcessEvents) callback(ec *audit.EventContext, _ *audit.SubscriptionContext) error {
	if ec.Event == nil {
		return nil
	}
	return s.persist(ec.Event.Time, ProcessEventFrom(ec.Event).Row())
}

// ProcessEventFrom builds a process_events row from an assembled event
func ProcessEventFrom(ev *audit.Event) *types.ProcessEvent {
	pe := &types.ProcessEvent{
		AuditID: ev.ID,
		Syscall: strconv.Itoa(ev.Syscall),
		Success: ev.Success,
		Time:    ev.Time,
	}

	if r := ev.First(audit.TypeSyscall); r != nil {
		pe.PID, _ = r.Get("pid")
		pe.PPID, _ = r.Get("ppid")
		pe.UID, _ = r.Get("uid")
		pe.EUID, _ = r.Get("euid")
		pe.GID, _ = r.Get("gid")
		pe.Path, _ = r.Get("exe")
	}
	if r := ev.First(audit.TypeCwd); r != nil {
		pe.Cwd, _ = r.Text("cwd")
	}
	if r := ev.First(audit.TypeExecve); r != nil {
		pe.Cmdline = cmdline(r)
	}
	if pe.Path == "" {
		if r := ev.First(audit.TypePath); r != nil {
			pe.Path, _ = r.Text("name")
		}
	}
	return pe
}

// cmdline joins the a0..aN arguments of an EXECVE record, decoding the
// hex encoded ones
func cmdline(r *audit.Record) string {
	argc := 0
	if v, ok := r.Get("argc"); ok {
		argc, _ = strconv.Atoi(v)
	}

	args := make([]string, 0, argc)
	for i := 0; ; i++ {
		if argc > 0 && i >= argc {
			break
		}
		v, ok := r.Text("a" + strconv.Itoa(i))
		if !ok {
			break
		}
		args = append(args, v)
	}
	return strings.Join(args, " ")
}
