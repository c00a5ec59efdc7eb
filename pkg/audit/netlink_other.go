//go:build !linux

package audit

// Dial always fails outside Linux
func Dial() (Conn, error) {
	return nil, ErrUnsupported
}

// Errno checks. Dial never succeeds here, so no netlink error reaches them.
func isNoBuffer(error) bool    { return false }
func isInterrupted(error) bool { return false }
func isExists(error) bool      { return false }
