//go:build !linux || !(amd64 || arm64)

package audit

const openWriteFlags = 0

// No syscall rules are installed on other platforms
var (
	processSyscalls []int
	socketSyscalls  []int
	socketActions   map[int]string
	fileOps         map[int]FileOp
)
