package audit

// ShouldHandle reports whether the driver parses and fans out a message of
// type t. Netlink control messages, rule and status replies, daemon
// notifications and configuration changes are dropped.
func ShouldHandle(t MessageType) bool {
	switch {
	case t == TypeNoop, t == TypeError, t == TypeDone:
		return false
	case t == TypeListRules, t == TypeSeccomp, t == TypeGet:
		return false
	case t > TypeGet && t < TypeListRules:
		return false
	case t > TypeListRules && t < TypeFirstUserMsg:
		return false
	case t >= TypeDaemonStart && t <= TypeDaemonConfig:
		return false
	case t == TypeConfigChange:
		return false
	}
	return true
}

// Disposition is how the audit publisher treats one record type
type Disposition int

const (
	// DispositionSkip drops the record.
	DispositionSkip Disposition = iota
	// DispositionStatus marks an AUDIT_GET status reply.
	DispositionStatus
	// DispositionConfigChange marks daemon and rule change notifications.
	DispositionConfigChange
	// DispositionSyscall marks AUDIT_SYSCALL, the head of a multi-record event.
	DispositionSyscall
	// DispositionAuxiliary marks records that only complete a syscall event
	// (CWD, PATH, EXECVE, EOE).
	DispositionAuxiliary
	// DispositionOther is every remaining record, dispatched as is.
	DispositionOther
)

// PublisherFilter classifies a record for the audit publisher. It differs
// from ShouldHandle: user messages (1100-1199) are skipped here, while
// AUDIT_SECCOMP passes as DispositionOther. Both predicates are kept as
// they are.
func PublisherFilter(t MessageType) Disposition {
	switch {
	case t == TypeNoop, t == TypeDone, t == TypeError:
		return DispositionSkip
	case t == TypeListRules:
		return DispositionSkip
	case t == TypeGet:
		return DispositionStatus
	case t > TypeGet && t < TypeListRules:
		return DispositionSkip
	case t > TypeListRules && t <= TypeLastUserMsg:
		return DispositionSkip
	case t >= TypeDaemonStart && t <= TypeDaemonConfig, t == TypeConfigChange:
		return DispositionConfigChange
	case t == TypeSyscall:
		return DispositionSyscall
	case t == TypeCwd, t == TypePath, t == TypeExecve, t == TypeEOE:
		return DispositionAuxiliary
	}
	return DispositionOther
}
