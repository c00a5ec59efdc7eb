package audit

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeMessage(t *testing.T) {
	msg := encodeMessage(TypeGet, 0x5, 9, []byte{1, 2, 3})

	require.Len(t, msg, 20)
	h := parseHeader(msg)
	assert.Equal(t, uint32(19), h.Len)
	assert.Equal(t, uint16(TypeGet), h.Type)
	assert.Equal(t, uint16(0x5), h.Flags)
	assert.Equal(t, uint32(9), h.Seq)
	assert.Equal(t, []byte{1, 2, 3, 0}, msg[16:])
}

func TestUnmarshalStatus(t *testing.T) {
	st := &Status{Enabled: AuditEnabled, Failure: FailPrintk, PID: 1234, BacklogLimit: 4096}
	data, err := st.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, data, statusSize)

	got, err := UnmarshalStatus(data)
	require.NoError(t, err)
	assert.Equal(t, st, got)

	// older kernels send a shorter struct; the pid sits at offset 12
	short := make([]byte, 16)
	binary.NativeEndian.PutUint32(short[12:], 77)
	got, err = UnmarshalStatus(short)
	require.NoError(t, err)
	assert.Equal(t, uint32(77), got.PID)

	_, err = UnmarshalStatus(short[:12])
	assert.ErrorIs(t, err, ErrShortStatus)
}

func TestSyscallRule(t *testing.T) {
	rule := NewSyscallRule(59)

	assert.Equal(t, FilterExit, rule.Flags)
	assert.Equal(t, ActionAlways, rule.Action)
	assert.Equal(t, uint32(1<<27), rule.Mask[1])
	assert.Equal(t, []int{59}, rule.Syscalls())

	data, err := rule.MarshalBinary()
	require.NoError(t, err)
	assert.Len(t, data, 1040)
	assert.Equal(t, FilterExit, binary.NativeEndian.Uint32(data[0:4]))
	assert.Equal(t, uint32(1<<27), binary.NativeEndian.Uint32(data[16:20]))
}

func TestParseAck(t *testing.T) {
	data := make([]byte, 4)
	var eexist int32 = -17
	binary.NativeEndian.PutUint32(data, uint32(eexist))

	errno, err := parseAck(data)
	require.NoError(t, err)
	assert.Equal(t, int32(17), errno)

	errno, err = parseAck(make([]byte, 20))
	require.NoError(t, err)
	assert.Zero(t, errno)

	_, err = parseAck(nil)
	assert.ErrorIs(t, err, ErrBrokenMessage)
}
