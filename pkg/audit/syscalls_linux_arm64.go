package audit

import "golang.org/x/sys/unix"

const openWriteFlags = unix.O_WRONLY | unix.O_RDWR | unix.O_CREAT | unix.O_TRUNC

// arm64 has no open, dup2, creat or mknod; libc routes them through the *at
// and dup3 variants.
var (
	processSyscalls = []int{unix.SYS_EXECVE}

	socketSyscalls = []int{unix.SYS_BIND, unix.SYS_CONNECT}

	socketActions = map[int]string{
		unix.SYS_BIND:    "bind",
		unix.SYS_CONNECT: "connect",
	}

	fileOps = map[int]FileOp{
		unix.SYS_EXECVE:            pathOp(FileExecute, -1, -1),
		unix.SYS_EXIT:              {Action: FileExit, FDArg: -1, DirArg: -1, FlagsArg: -1},
		unix.SYS_EXIT_GROUP:        {Action: FileExit, FDArg: -1, DirArg: -1, FlagsArg: -1},
		unix.SYS_OPENAT:            openOp(0, 2),
		unix.SYS_OPEN_BY_HANDLE_AT: openOp(-1, 2),
		unix.SYS_NAME_TO_HANDLE_AT: pathOp(FileLookup, 0, -1),
		unix.SYS_MKNODAT:           createOp(0, false),
		unix.SYS_CLOSE:             fdOp(FileClose, 0),
		unix.SYS_DUP:               fdOp(FileDup, 0),
		unix.SYS_DUP3:              fdOp(FileDup, 0),
		unix.SYS_READ:              fdOp(FileRead, 0),
		unix.SYS_WRITE:             fdOp(FileWrite, 0),
		unix.SYS_MMAP:              fdOp(FileMmap, -1),
	}
)
