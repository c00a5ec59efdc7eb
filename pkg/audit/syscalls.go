package audit

import (
	"slices"
	"sort"
)

// ProcessSyscalls returns the syscall numbers behind process events
func ProcessSyscalls() []int { return slices.Clone(processSyscalls) }

// SocketSyscalls returns the syscall numbers behind socket events
func SocketSyscalls() []int { return slices.Clone(socketSyscalls) }

// SocketAction names a socket syscall ("bind", "connect"), or returns ""
func SocketAction(nr int) string { return socketActions[nr] }

// File actions reported for file integrity syscalls
const (
	FileExecute = "execute"
	FileExit    = "exit"
	FileOpen    = "open"
	FileLookup  = "lookup"
	FileCreate  = "create"
	FileClose   = "close"
	FileDup     = "dup"
	FileRead    = "read"
	FileWrite   = "write"
	FileMmap    = "mmap"
)

// AtFDCWD is the directory descriptor meaning the current directory
const AtFDCWD = -100

// FileOp describes how one file integrity syscall is read from its SYSCALL
// record. Argument indexes are -1 when the syscall has no such argument.
type FileOp struct {
	Action string
	// FDArg holds the descriptor the call acts on. mmap carries its
	// descriptor in the MMAP record instead.
	FDArg int
	// DirArg holds the directory descriptor a relative path is resolved in
	DirArg int
	// FlagsArg holds open(2) flags
	FlagsArg int
	// ReturnsFD is set when the exit value is a new descriptor for the path
	ReturnsFD bool
	// Modifies is set when the call always changes the file
	Modifies bool
}

func pathOp(action string, dirArg, flagsArg int) FileOp {
	return FileOp{Action: action, FDArg: -1, DirArg: dirArg, FlagsArg: flagsArg}
}

func openOp(dirArg, flagsArg int) FileOp {
	op := pathOp(FileOpen, dirArg, flagsArg)
	op.ReturnsFD = true
	return op
}

func createOp(dirArg int, returnsFD bool) FileOp {
	op := pathOp(FileCreate, dirArg, -1)
	op.ReturnsFD = returnsFD
	op.Modifies = true
	return op
}

func fdOp(action string, fdArg int) FileOp {
	return FileOp{
		Action:   action,
		FDArg:    fdArg,
		DirArg:   -1,
		FlagsArg: -1,
		Modifies: action == FileWrite,
	}
}

// fimSyscalls is every syscall with a FileOp, sorted
var fimSyscalls = sortedOps(fileOps)

func sortedOps(ops map[int]FileOp) []int {
	out := make([]int, 0, len(ops))
	for nr := range ops {
		out = append(out, nr)
	}
	sort.Ints(out)
	return out
}

// FimSyscalls returns the syscall numbers behind file integrity events
func FimSyscalls() []int { return slices.Clone(fimSyscalls) }

// FileOperation returns how syscall nr is reported as a file event
func FileOperation(nr int) (FileOp, bool) {
	op, ok := fileOps[nr]
	return op, ok
}

// OpenWrites reports whether open(2) flags allow changing the file
func OpenWrites(flags uint64) bool {
	return flags&openWriteFlags != 0
}
