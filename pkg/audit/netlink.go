package audit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// Conn is a session on the kernel audit netlink socket. The driver is its
// only user and calls it from a single goroutine.
type Conn interface {
	// SetPID registers pid as the userspace audit daemon
	SetPID(pid uint32) error
	// Status queries audit_status and waits for the reply
	Status() (*Status, error)
	// RequestStatus sends AUDIT_GET without waiting; the reply arrives
	// through Receive.
	RequestStatus() error
	SetEnabled(mode uint32) error
	SetBacklogLimit(limit uint32) error
	SetBacklogWaitTime(wait uint32) error
	SetFailure(mode uint32) error
	AddRule(r *Rule) error
	DeleteRule(r *Rule) error
	// Poll waits up to timeout for a message to become readable
	Poll(timeout time.Duration) (bool, error)
	// Receive reads one raw netlink message into buf without blocking and
	// returns its length and the sender's port id.
	Receive(buf []byte) (int, uint32, error)
	Close() error
}

// Dialer opens a new Conn
type Dialer func() (Conn, error)

const (
	headerSize = 16

	// MaxMessageSize is the kernel's MAX_AUDIT_MESSAGE_LENGTH plus the
	// netlink header.
	MaxMessageSize = 8970 + headerSize
)

// header is a netlink message header (struct nlmsghdr)
type header struct {
	Len   uint32
	Type  uint16
	Flags uint16
	Seq   uint32
	PID   uint32
}

func (h header) marshal(b []byte) {
	binary.NativeEndian.PutUint32(b[0:4], h.Len)
	binary.NativeEndian.PutUint16(b[4:6], h.Type)
	binary.NativeEndian.PutUint16(b[6:8], h.Flags)
	binary.NativeEndian.PutUint32(b[8:12], h.Seq)
	binary.NativeEndian.PutUint32(b[12:16], h.PID)
}

func parseHeader(b []byte) header {
	return header{
		Len:   binary.NativeEndian.Uint32(b[0:4]),
		Type:  binary.NativeEndian.Uint16(b[4:6]),
		Flags: binary.NativeEndian.Uint16(b[6:8]),
		Seq:   binary.NativeEndian.Uint32(b[8:12]),
		PID:   binary.NativeEndian.Uint32(b[12:16]),
	}
}

// encodeMessage builds a netlink message, padding the payload to 4 bytes
func encodeMessage(typ MessageType, flags uint16, seq uint32, payload []byte) []byte {
	size := headerSize + (len(payload)+3)&^3
	b := make([]byte, size)
	header{Len: uint32(headerSize + len(payload)), Type: uint16(typ), Flags: flags, Seq: seq}.marshal(b)
	copy(b[headerSize:], payload)
	return b
}

// RawMessage is a validated netlink message as queued by the receive loop
type RawMessage struct {
	Type MessageType
	Seq  uint32
	Data []byte
}

// parseEnvelope validates one received message. sender is the port id the
// message came from and bufSize the capacity of the read buffer.
func parseEnvelope(b []byte, sender uint32, bufSize int) (RawMessage, error) {
	if sender != 0 {
		return RawMessage{}, fmt.Errorf("%w: port %d", ErrInvalidEndpoint, sender)
	}
	if len(b) < headerSize {
		return RawMessage{}, fmt.Errorf("%w: %d bytes", ErrBrokenMessage, len(b))
	}

	h := parseHeader(b)
	if h.Len < headerSize || int(h.Len) > len(b) {
		if len(b) == bufSize {
			return RawMessage{}, ErrMessageTooBig
		}
		return RawMessage{}, fmt.Errorf("%w: header length %d, received %d", ErrBrokenMessage, h.Len, len(b))
	}

	data := make([]byte, int(h.Len)-headerSize)
	copy(data, b[headerSize:h.Len])
	return RawMessage{Type: MessageType(h.Type), Seq: h.Seq, Data: data}, nil
}

// parseAck returns the errno carried by an NLMSG_ERROR payload, 0 for an ack
func parseAck(data []byte) (int32, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("%w: short error message", ErrBrokenMessage)
	}
	return -int32(binary.NativeEndian.Uint32(data[0:4])), nil
}

// Status mirrors struct audit_status
type Status struct {
	Mask                  uint32
	Enabled               uint32
	Failure               uint32
	PID                   uint32
	RateLimit             uint32
	BacklogLimit          uint32
	Lost                  uint32
	Backlog               uint32
	FeatureBitmap         uint32
	BacklogWaitTime       uint32
	BacklogWaitTimeActual uint32
}

const statusSize = 44

// MarshalBinary encodes the status in native byte order
func (s *Status) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, statusSize))
	if err := binary.Write(buf, binary.NativeEndian, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalStatus decodes an AUDIT_GET reply. Older kernels send a shorter
// struct; missing trailing fields stay zero. At least the pid must be
// present.
func UnmarshalStatus(data []byte) (*Status, error) {
	if len(data) < 16 {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortStatus, len(data))
	}

	full := make([]byte, statusSize)
	copy(full, data)

	s := &Status{}
	if err := binary.Read(bytes.NewReader(full), binary.NativeEndian, s); err != nil {
		return nil, fmt.Errorf("failed to decode audit status: %w", err)
	}
	return s, nil
}

// Rule mirrors struct audit_rule_data without the trailing string buffer
type Rule struct {
	Flags      uint32
	Action     uint32
	FieldCount uint32
	Mask       [64]uint32
	Fields     [64]uint32
	Values     [64]uint32
	FieldFlags [64]uint32
	BufLen     uint32
}

// NewSyscallRule returns an exit-filter rule that always audits syscall nr
func NewSyscallRule(nr int) *Rule {
	r := &Rule{Flags: FilterExit, Action: ActionAlways}
	r.Mask[nr/32] |= 1 << (uint(nr) % 32)
	return r
}

// Syscalls returns the syscall numbers selected by the rule mask
func (r *Rule) Syscalls() []int {
	var out []int
	for word, bits := range r.Mask {
		for bit := 0; bit < 32; bit++ {
			if bits&(1<<uint(bit)) != 0 {
				out = append(out, word*32+bit)
			}
		}
	}
	return out
}

// MarshalBinary encodes the rule in native byte order
func (r *Rule) MarshalBinary() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.NativeEndian, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
