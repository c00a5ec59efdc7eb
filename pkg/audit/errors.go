package audit

import "errors"

var (
	// ErrMalformedRecord is returned for audit text that has no
	// "audit(<time>:<serial>): " preamble.
	ErrMalformedRecord = errors.New("malformed audit record")

	// ErrInvalidEndpoint is returned for netlink messages not sent by the kernel
	ErrInvalidEndpoint = errors.New("invalid netlink endpoint")

	// ErrBrokenMessage is returned when the netlink header does not fit the
	// received bytes (EBADE).
	ErrBrokenMessage = errors.New("broken netlink message")

	// ErrMessageTooBig is returned when a message filled the whole read
	// buffer and was truncated (EFBIG).
	ErrMessageTooBig = errors.New("netlink message too big")

	// ErrShortStatus is returned when an AUDIT_GET reply is too small to
	// carry the controlling pid.
	ErrShortStatus = errors.New("audit status reply too short")

	// ErrUnsupported is returned by the dialer on platforms without
	// NETLINK_AUDIT.
	ErrUnsupported = errors.New("audit netlink is not supported on this platform")
)
