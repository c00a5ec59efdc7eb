package types

import (
	"strconv"
	"time"
)

// Row is one table row, column name to value
type Row map[string]string

// Record is a persisted event row
type Record struct {
	EID  uint64    `json:"eid"`
	Time time.Time `json:"time"`
	Row  Row       `json:"row"`
}

// Bounds restricts Generate to events in [Start, End]. A zero bound is
// open.
type Bounds struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the bounds
func (b Bounds) Contains(t time.Time) bool {
	if !b.Start.IsZero() && t.Before(b.Start) {
		return false
	}
	if !b.End.IsZero() && t.After(b.End) {
		return false
	}
	return true
}

// FileEvent is a change seen by the file publisher
type FileEvent struct {
	Target   string
	Category string
	Action   string
	Time     time.Time
}

// Row returns the file_events row
func (e *FileEvent) Row() Row {
	return Row{
		"target_path": e.Target,
		"category":    e.Category,
		"action":      e.Action,
		"time":        unix(e.Time),
	}
}

// ProcessEvent is a process execution assembled from audit records
type ProcessEvent struct {
	AuditID string
	PID     string
	PPID    string
	UID     string
	EUID    string
	GID     string
	Path    string
	Cwd     string
	Cmdline string
	Syscall string
	Success bool
	Time    time.Time
}

// Row returns the process_events row
func (e *ProcessEvent) Row() Row {
	return Row{
		"audit_id": e.AuditID,
		"pid":      e.PID,
		"parent":   e.PPID,
		"uid":      e.UID,
		"euid":     e.EUID,
		"gid":      e.GID,
		"path":     e.Path,
		"cwd":      e.Cwd,
		"cmdline":  e.Cmdline,
		"syscall":  e.Syscall,
		"success":  boolString(e.Success),
		"time":     unix(e.Time),
	}
}

// SocketEvent is a bind or connect assembled from audit records
type SocketEvent struct {
	AuditID       string
	Action        string
	PID           string
	Path          string
	Family        string
	RemoteAddress string
	RemotePort    string
	LocalAddress  string
	LocalPort     string
	Success       bool
	Time          time.Time
}

// Row returns the socket_events row
func (e *SocketEvent) Row() Row {
	return Row{
		"audit_id":       e.AuditID,
		"action":         e.Action,
		"pid":            e.PID,
		"path":           e.Path,
		"family":         e.Family,
		"remote_address": e.RemoteAddress,
		"remote_port":    e.RemotePort,
		"local_address":  e.LocalAddress,
		"local_port":     e.LocalPort,
		"success":        boolString(e.Success),
		"time":           unix(e.Time),
	}
}

// FimEvent is a file access or change assembled from audit records
type FimEvent struct {
	AuditID string
	PID     string
	UID     string
	Exe     string
	Target  string
	Action  string
	Time    time.Time
}

// Row returns the fim_events row
func (e *FimEvent) Row() Row {
	return Row{
		"audit_id":    e.AuditID,
		"pid":         e.PID,
		"uid":         e.UID,
		"path":        e.Exe,
		"target_path": e.Target,
		"action":      e.Action,
		"time":        unix(e.Time),
	}
}

// ProcessSnapshot is a process start or exit observed by polling
type ProcessSnapshot struct {
	Action  string
	PID     int32
	PPID    int32
	Name    string
	Path    string
	Cmdline string
	User    string
	Time    time.Time
}

// Row returns the process_snapshots row
func (e *ProcessSnapshot) Row() Row {
	return Row{
		"action":  e.Action,
		"pid":     strconv.FormatInt(int64(e.PID), 10),
		"parent":  strconv.FormatInt(int64(e.PPID), 10),
		"name":    e.Name,
		"path":    e.Path,
		"cmdline": e.Cmdline,
		"user":    e.User,
		"time":    unix(e.Time),
	}
}

// ConnectionSnapshot is a socket opened or closed, observed by polling
type ConnectionSnapshot struct {
	Action        string
	PID           int32
	Family        string
	Protocol      string
	LocalAddress  string
	LocalPort     uint32
	RemoteAddress string
	RemotePort    uint32
	State         string
	Time          time.Time
}

// Row returns the connection_snapshots row
func (e *ConnectionSnapshot) Row() Row {
	return Row{
		"action":         e.Action,
		"pid":            strconv.FormatInt(int64(e.PID), 10),
		"family":         e.Family,
		"protocol":       e.Protocol,
		"local_address":  e.LocalAddress,
		"local_port":     strconv.FormatUint(uint64(e.LocalPort), 10),
		"remote_address": e.RemoteAddress,
		"remote_port":    strconv.FormatUint(uint64(e.RemotePort), 10),
		"state":          e.State,
		"time":           unix(e.Time),
	}
}

func unix(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
