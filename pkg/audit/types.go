package audit

import "strconv"

// MessageType is the netlink message type of an audit reply
type MessageType uint16

// Netlink control messages
const (
	TypeNoop  MessageType = 1
	TypeError MessageType = 2
	TypeDone  MessageType = 3
)

// Audit control and record types used by the driver
const (
	TypeGet          MessageType = 1000
	TypeSet          MessageType = 1001
	TypeUser         MessageType = 1005
	TypeLogin        MessageType = 1006
	TypeSignalInfo   MessageType = 1010
	TypeAddRule      MessageType = 1011
	TypeDelRule      MessageType = 1012
	TypeListRules    MessageType = 1013
	TypeFirstUserMsg MessageType = 1100
	TypeLastUserMsg  MessageType = 1199
	TypeDaemonStart  MessageType = 1200
	TypeDaemonConfig MessageType = 1203
	TypeSyscall      MessageType = 1300
	TypePath         MessageType = 1302
	TypeConfigChange MessageType = 1305
	TypeSockaddr     MessageType = 1306
	TypeCwd          MessageType = 1307
	TypeExecve       MessageType = 1309
	TypeEOE          MessageType = 1320
	TypeMmap         MessageType = 1323
	TypeSeccomp      MessageType = 1326
	TypeProctitle    MessageType = 1327
	TypeKernel       MessageType = 2000
)

var typeNames = map[MessageType]string{
	1000: "AUDIT_GET",
	1001: "AUDIT_SET",
	1002: "AUDIT_LIST",
	1003: "AUDIT_ADD",
	1004: "AUDIT_DEL",
	1005: "AUDIT_USER",
	1006: "AUDIT_LOGIN",
	1007: "AUDIT_WATCH_INS",
	1008: "AUDIT_WATCH_REM",
	1009: "AUDIT_WATCH_LIST",
	1010: "AUDIT_SIGNAL_INFO",
	1011: "AUDIT_ADD_RULE",
	1012: "AUDIT_DEL_RULE",
	1013: "AUDIT_LIST_RULES",
	1014: "AUDIT_TRIM",
	1015: "AUDIT_MAKE_EQUIV",
	1016: "AUDIT_TTY_GET",
	1017: "AUDIT_TTY_SET",
	1018: "AUDIT_SET_FEATURE",
	1019: "AUDIT_GET_FEATURE",
	1100: "AUDIT_FIRST_USER_MSG",
	1107: "AUDIT_USER_AVC",
	1124: "AUDIT_USER_TTY",
	1199: "AUDIT_LAST_USER_MSG",
	2100: "AUDIT_FIRST_USER_MSG2",
	2999: "AUDIT_LAST_USER_MSG2",
	1200: "AUDIT_DAEMON_START",
	1201: "AUDIT_DAEMON_END",
	1202: "AUDIT_DAEMON_ABORT",
	1203: "AUDIT_DAEMON_CONFIG",
	1300: "AUDIT_SYSCALL",
	1301: "AUDIT_FS_WATCH",
	1302: "AUDIT_PATH",
	1303: "AUDIT_IPC",
	1304: "AUDIT_SOCKETCALL",
	1305: "AUDIT_CONFIG_CHANGE",
	1306: "AUDIT_SOCKADDR",
	1307: "AUDIT_CWD",
	1309: "AUDIT_EXECVE",
	1311: "AUDIT_IPC_SET_PERM",
	1312: "AUDIT_MQ_OPEN",
	1313: "AUDIT_MQ_SENDRECV",
	1314: "AUDIT_MQ_NOTIFY",
	1315: "AUDIT_MQ_GETSETATTR",
	1316: "AUDIT_KERNEL_OTHER",
	1317: "AUDIT_FD_PAIR",
	1318: "AUDIT_OBJ_PID",
	1319: "AUDIT_TTY",
	1320: "AUDIT_EOE",
	1321: "AUDIT_BPRM_FCAPS",
	1322: "AUDIT_CAPSET",
	1323: "AUDIT_MMAP",
	1324: "AUDIT_NETFILTER_PKT",
	1325: "AUDIT_NETFILTER_CFG",
	1326: "AUDIT_SECCOMP",
	1327: "AUDIT_PROCTITLE",
	1328: "AUDIT_FEATURE_CHANGE",
	1329: "AUDIT_REPLACE",
	1400: "AUDIT_AVC",
	1401: "AUDIT_SELINUX_ERR",
	1402: "AUDIT_AVC_PATH",
	1403: "AUDIT_MAC_POLICY_LOAD",
	1404: "AUDIT_MAC_STATUS",
	1405: "AUDIT_MAC_CONFIG_CHANGE",
	1406: "AUDIT_MAC_UNLBL_ALLOW",
	1407: "AUDIT_MAC_CIPSOV4_ADD",
	1408: "AUDIT_MAC_CIPSOV4_DEL",
	1409: "AUDIT_MAC_MAP_ADD",
	1410: "AUDIT_MAC_MAP_DEL",
	1411: "AUDIT_MAC_IPSEC_ADDSA",
	1412: "AUDIT_MAC_IPSEC_DELSA",
	1413: "AUDIT_MAC_IPSEC_ADDSPD",
	1414: "AUDIT_MAC_IPSEC_DELSPD",
	1415: "AUDIT_MAC_IPSEC_EVENT",
	1416: "AUDIT_MAC_UNLBL_STCADD",
	1417: "AUDIT_MAC_UNLBL_STCDEL",
	1700: "AUDIT_FIRST_KERN_ANOM_MSG",
	1701: "AUDIT_ANOM_ABEND",
	1702: "AUDIT_ANOM_LINK",
	1799: "AUDIT_LAST_KERN_ANOM_MSG",
	1800: "AUDIT_INTEGRITY_DATA",
	1801: "AUDIT_INTEGRITY_METADATA",
	1802: "AUDIT_INTEGRITY_STATUS",
	1803: "AUDIT_INTEGRITY_HASH",
	1804: "AUDIT_INTEGRITY_PCR",
	1805: "AUDIT_INTEGRITY_RULE",
	2000: "AUDIT_KERNEL",
}

// String returns the kernel name of the type, or its decimal value when
// the type is not known.
func (t MessageType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return strconv.Itoa(int(t))
}

// Values of audit_status.enabled
const (
	AuditDisabled  uint32 = 0
	AuditEnabled   uint32 = 1
	AuditImmutable uint32 = 2
)

// Values of audit_status.failure
const (
	FailSilent uint32 = 0
	FailPrintk uint32 = 1
	FailPanic  uint32 = 2
)

// audit_status.mask bits selecting which fields an AUDIT_SET applies
const (
	statusEnabled         uint32 = 0x0001
	statusFailure         uint32 = 0x0002
	statusPID             uint32 = 0x0004
	statusRateLimit       uint32 = 0x0008
	statusBacklogLimit    uint32 = 0x0010
	statusBacklogWaitTime uint32 = 0x0020
)

// Rule list and action used for every installed syscall rule
const (
	FilterExit   uint32 = 0x04
	ActionAlways uint32 = 2
)

// NetlinkStatus is the state of the kernel audit subsystem as seen by the
// driver after (re)acquiring its handle.
type NetlinkStatus int32

const (
	StatusDisabled NetlinkStatus = iota
	StatusActiveMutable
	StatusActiveImmutable
	StatusError
)

// String returns the status name used in logs and metric labels
func (s NetlinkStatus) String() string {
	switch s {
	case StatusDisabled:
		return "disabled"
	case StatusActiveMutable:
		return "active_mutable"
	case StatusActiveImmutable:
		return "active_immutable"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}
