package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, typ MessageType, text string) *Record {
	t.Helper()
	rec, err := ParseRecord(typ, []byte(text))
	require.NoError(t, err)
	return rec
}

func TestAssemblerCompletesOnEOE(t *testing.T) {
	a, err := NewAssembler(16)
	require.NoError(t, err)

	feed := []*Record{
		mustParse(t, TypeSyscall, `audit(1700000000.100:10): arch=c000003e syscall=59 success=yes pid=100`),
		mustParse(t, TypeExecve, `audit(1700000000.100:10): argc=2 a0="ls" a1="-la"`),
		mustParse(t, TypeSyscall, `audit(1700000000.100:11): arch=c000003e syscall=42 success=no`),
		mustParse(t, TypeCwd, `audit(1700000000.100:10): cwd="/root"`),
		mustParse(t, TypePath, `audit(1700000000.100:10): item=0 name="/bin/ls"`),
	}
	for _, rec := range feed {
		ev, done := a.Add(rec)
		assert.False(t, done)
		assert.Nil(t, ev)
	}
	assert.Equal(t, 2, a.Pending())

	ev, done := a.Add(mustParse(t, TypeEOE, `audit(1700000000.100:10): `))
	require.True(t, done)
	assert.Equal(t, "1700000000.100:10", ev.ID)
	assert.Equal(t, 59, ev.Syscall)
	assert.True(t, ev.Success)
	assert.Equal(t, int64(1700000000), ev.Time.Unix())
	assert.Len(t, ev.Records, 4)

	argc, _ := ev.First(TypeExecve).Get("argc")
	assert.Equal(t, "2", argc)
	assert.Len(t, ev.All(TypePath), 1)
	assert.Nil(t, ev.First(TypeSockaddr))

	assert.Equal(t, 1, a.Pending())
	assert.Zero(t, a.Dropped())
}

func TestAssemblerIgnoresUnrelated(t *testing.T) {
	a, err := NewAssembler(16)
	require.NoError(t, err)

	_, done := a.Add(mustParse(t, TypeEOE, `audit(1.0:1): `))
	assert.False(t, done)

	_, done = a.Add(mustParse(t, MessageType(1400), `audit(1.0:2): apparmor="DENIED"`))
	assert.False(t, done)
	assert.Zero(t, a.Pending())
}

func TestAssemblerEviction(t *testing.T) {
	a, err := NewAssembler(1)
	require.NoError(t, err)

	a.Add(mustParse(t, TypeSyscall, `audit(1.0:1): syscall=59`))
	a.Add(mustParse(t, TypeSyscall, `audit(1.0:2): syscall=59`))

	assert.Equal(t, 1, a.Pending())
	assert.Equal(t, uint64(1), a.Dropped())

	_, done := a.Add(mustParse(t, TypeEOE, `audit(1.0:2): `))
	assert.True(t, done)
	assert.Equal(t, uint64(1), a.Dropped())
}
