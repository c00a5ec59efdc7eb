/*
Package audit reads kernel audit records over NETLINK_AUDIT and publishes
them on the event bus.

# Architecture

	┌──────────────────────────── AUDIT DRIVER ────────────────────────────┐
	│                                                                        │
	│  receive goroutine                      process goroutine              │
	│  ┌──────────────────────────┐           ┌───────────────────────────┐  │
	│  │ acquireHandle() if asked │           │ wait on cond              │  │
	│  │ status request every N   │  raw      │ swap queue out            │  │
	│  │ poll → recv → envelope   │──queue───►│ AUDIT_GET: compare pid    │  │
	│  │ error → reacquire        │  + cond   │ ShouldHandle → ParseRecord│  │
	│  └──────────────────────────┘           └────────────┬──────────────┘  │
	│                                                       │ copy to every   │
	│                                                       ▼ handle          │
	│                                   ┌────────┐ ┌────────┐ ┌────────┐      │
	│                                   │handle 1│ │handle 2│ │handle 3│      │
	│                                   └────────┘ └────────┘ └────────┘      │
	└────────────────────────────────────────────────────────────────────────┘
	                     GetEvents(handle) drains one queue
	                                │
	                     ┌──────────▼──────────┐
	                     │ Publisher ("audit") │  PublisherFilter, Assembler
	                     └─────────────────────┘

The driver is an ordinary value: create it with NewDriver and share it with
every consumer. The first Subscribe starts both goroutines; the last
Unsubscribe stops them, removes the rules this process installed, restores
the backlog and failure settings, and disables auditing if this process
enabled it.

# Acquisition

acquireHandle closes any previous socket, opens a new one and registers the
process as the audit daemon. If that fails the socket is closed again and
the status is StatusError. The subsystem is then classified:

	enabled == 2, uid != 0 or AllowConfig off  → StatusActiveImmutable
	enabled == 1                               → StatusActiveMutable
	enabled == 0                               → StatusDisabled

With AllowConfig the driver enables a disabled subsystem and, once it is
mutable, sets backlog_wait_time=1, backlog_limit=4096, failure=silent and
installs one exit rule per monitored syscall. A rule that already exists is
not an error. Disabled and Error statuses are retried after ReconnectDelay.

# Capabilities

	AllowProcessEvents  execve
	AllowSockets        bind, connect
	AllowFIMEvents      execve, exit, exit_group, open, openat,
	                    name_to_handle_at, open_by_handle_at, close, dup,
	                    dup2, dup3, read, write, mmap, creat, mknodat, mknod

GetEvents returns nothing while Disable is set or no capability is enabled.
Syscall tables exist for linux/amd64 and linux/arm64; FileOperation
describes how each file syscall names its path or descriptor. On other
platforms Dial fails with ErrUnsupported and no rules are installed.

# Control loss

A status request is sent right after every acquisition and then every
StatusInterval receive cycles. A full socket buffer (ENOBUFS) skips one
request; any other send error reacquires the handle. When the reply names another pid the driver
counts lookout_audit_control_lost_total and, with Persist, reacquires the
subsystem. Without Persist it keeps running but receives nothing.

# Records

ParseRecord turns

	audit(1234567890.123:100): arch=c000003e syscall=59 success=yes exe="/bin/ls"

into AuditID "1234567890.123:100", Time 1234567890 and ordered fields
arch, syscall, success, exe. Only double quotes delimit values; the kernel
hex encodes untrusted strings instead of quoting them, and Field.Text
decodes those. Malformed records are dropped one at a time.

The Assembler groups SYSCALL, EXECVE, PATH, CWD, SOCKADDR, MMAP and
PROCTITLE records by audit ID until the EOE record arrives. Subscriptions with
Assembled set receive these events; others receive single records.
*/
package audit
