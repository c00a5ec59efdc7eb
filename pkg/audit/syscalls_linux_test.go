package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestFileOperation(t *testing.T) {
	if len(fimSyscalls) == 0 {
		t.Skip("no syscall table for this platform")
	}
	require.IsIncreasing(t, FimSyscalls())

	tests := []struct {
		nr   int
		want FileOp
	}{
		{unix.SYS_EXECVE, FileOp{Action: FileExecute, FDArg: -1, DirArg: -1, FlagsArg: -1}},
		{unix.SYS_OPENAT, FileOp{Action: FileOpen, FDArg: -1, DirArg: 0, FlagsArg: 2, ReturnsFD: true}},
		{unix.SYS_MKNODAT, FileOp{Action: FileCreate, FDArg: -1, DirArg: 0, FlagsArg: -1, Modifies: true}},
		{unix.SYS_WRITE, FileOp{Action: FileWrite, FDArg: 0, DirArg: -1, FlagsArg: -1, Modifies: true}},
		{unix.SYS_READ, FileOp{Action: FileRead, FDArg: 0, DirArg: -1, FlagsArg: -1}},
		{unix.SYS_DUP3, FileOp{Action: FileDup, FDArg: 0, DirArg: -1, FlagsArg: -1}},
		{unix.SYS_MMAP, FileOp{Action: FileMmap, FDArg: -1, DirArg: -1, FlagsArg: -1}},
	}
	for _, tt := range tests {
		got, ok := FileOperation(tt.nr)
		require.True(t, ok, "syscall %d", tt.nr)
		assert.Equal(t, tt.want, got, "syscall %d", tt.nr)
		assert.Contains(t, FimSyscalls(), tt.nr)
	}

	_, ok := FileOperation(unix.SYS_BIND)
	assert.False(t, ok)
}

func TestOpenWrites(t *testing.T) {
	tests := []struct {
		name  string
		flags uint64
		want  bool
	}{
		{"read only", unix.O_RDONLY, false},
		{"read only directory", unix.O_RDONLY | unix.O_DIRECTORY | unix.O_CLOEXEC, false},
		{"write only", unix.O_WRONLY, true},
		{"read write", unix.O_RDWR, true},
		{"create", unix.O_CREAT, true},
		{"truncate", unix.O_TRUNC, true},
		{"append", unix.O_WRONLY | unix.O_APPEND, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OpenWrites(tt.flags))
		})
	}
}
