//go:build linux

package audit

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

const replyTimeout = time.Second

// netlinkConn is a NETLINK_AUDIT socket. Messages that arrive while a
// request waits for its ack are kept in pending and returned by Receive
// first.
type netlinkConn struct {
	fd      int
	seq     uint32
	pending [][]byte
	rbuf    []byte
}

// Dial opens and binds a NETLINK_AUDIT socket
func Dial() (Conn, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_AUDIT)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit netlink socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("failed to bind audit netlink socket: %w", err)
	}
	return &netlinkConn{fd: fd, rbuf: make([]byte, MaxMessageSize)}, nil
}

func (c *netlinkConn) send(typ MessageType, flags uint16, payload []byte) (uint32, error) {
	c.seq++
	msg := encodeMessage(typ, unix.NLM_F_REQUEST|flags, c.seq, payload)
	if err := unix.Sendto(c.fd, msg, 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK}); err != nil {
		return 0, fmt.Errorf("failed to send %s: %w", typ, err)
	}
	return c.seq, nil
}

// request sends a message with NLM_F_ACK and waits for its reply. With
// want set it returns the payload of the first message of that type;
// otherwise it returns on the ack.
func (c *netlinkConn) request(typ MessageType, payload []byte, want MessageType) ([]byte, error) {
	seq, err := c.send(typ, unix.NLM_F_ACK, payload)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(replyTimeout)
	for time.Now().Before(deadline) {
		n, err := c.pollRead(time.Until(deadline))
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}

		msg, err := parseEnvelope(c.rbuf[:n], 0, len(c.rbuf))
		if err != nil {
			continue
		}

		switch {
		case msg.Type == TypeError && msg.Seq == seq:
			errno, err := parseAck(msg.Data)
			if err != nil {
				return nil, err
			}
			if errno != 0 {
				return nil, unix.Errno(errno)
			}
			if want == 0 {
				return nil, nil
			}
		case want != 0 && msg.Type == want:
			return msg.Data, nil
		default:
			buf := make([]byte, n)
			copy(buf, c.rbuf[:n])
			c.pending = append(c.pending, buf)
		}
	}
	return nil, fmt.Errorf("failed to receive reply to %s: %w", typ, unix.ETIMEDOUT)
}

// pollRead waits for one message from the kernel and reads it into rbuf
func (c *netlinkConn) pollRead(timeout time.Duration) (int, error) {
	ready, err := c.poll(timeout)
	if err != nil || !ready {
		return 0, err
	}
	n, from, err := unix.Recvfrom(c.fd, c.rbuf, unix.MSG_DONTWAIT)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to receive from audit netlink: %w", err)
	}
	if sa, ok := from.(*unix.SockaddrNetlink); !ok || sa.Pid != 0 {
		return 0, nil
	}
	return n, nil
}

func (c *netlinkConn) poll(timeout time.Duration) (bool, error) {
	fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, fmt.Errorf("failed to poll audit netlink: %w", err)
	}
	return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
}

func (c *netlinkConn) set(mask uint32, s Status) error {
	s.Mask = mask
	payload, err := s.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = c.request(TypeSet, payload, 0)
	return err
}

func (c *netlinkConn) SetPID(pid uint32) error {
	return c.set(statusPID, Status{PID: pid})
}

func (c *netlinkConn) Status() (*Status, error) {
	data, err := c.request(TypeGet, nil, TypeGet)
	if err != nil {
		return nil, err
	}
	return UnmarshalStatus(data)
}

func (c *netlinkConn) RequestStatus() error {
	_, err := c.send(TypeGet, 0, nil)
	return err
}

func (c *netlinkConn) SetEnabled(mode uint32) error {
	return c.set(statusEnabled, Status{Enabled: mode})
}

func (c *netlinkConn) SetBacklogLimit(limit uint32) error {
	return c.set(statusBacklogLimit, Status{BacklogLimit: limit})
}

func (c *netlinkConn) SetBacklogWaitTime(wait uint32) error {
	return c.set(statusBacklogWaitTime, Status{BacklogWaitTime: wait})
}

func (c *netlinkConn) SetFailure(mode uint32) error {
	return c.set(statusFailure, Status{Failure: mode})
}

func (c *netlinkConn) AddRule(r *Rule) error {
	payload, err := r.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = c.request(TypeAddRule, payload, 0)
	return err
}

func (c *netlinkConn) DeleteRule(r *Rule) error {
	payload, err := r.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = c.request(TypeDelRule, payload, 0)
	return err
}

func (c *netlinkConn) Poll(timeout time.Duration) (bool, error) {
	if len(c.pending) > 0 {
		return true, nil
	}
	return c.poll(timeout)
}

func (c *netlinkConn) Receive(buf []byte) (int, uint32, error) {
	if len(c.pending) > 0 {
		msg := c.pending[0]
		c.pending = c.pending[1:]
		return copy(buf, msg), 0, nil
	}

	n, from, err := unix.Recvfrom(c.fd, buf, unix.MSG_DONTWAIT)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to receive from audit netlink: %w", err)
	}
	sa, ok := from.(*unix.SockaddrNetlink)
	if !ok {
		return 0, 0, fmt.Errorf("%w: unexpected address %T", ErrInvalidEndpoint, from)
	}
	return n, sa.Pid, nil
}

func (c *netlinkConn) Close() error {
	c.pending = nil
	return unix.Close(c.fd)
}

// isNoBuffer reports a full socket buffer; the request is retried later
func isNoBuffer(err error) bool {
	return errors.Is(err, unix.ENOBUFS)
}

// isInterrupted reports a receive that found nothing or was interrupted
func isInterrupted(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR)
}

// isExists reports a rule the kernel already has
func isExists(err error) bool {
	return errors.Is(err, unix.EEXIST)
}
