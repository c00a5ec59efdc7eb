package audit

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/netip"
)

// Address families as they appear in the first two bytes of a saddr field
const (
	familyUnix  = 1
	familyInet  = 2
	familyInet6 = 10
)

// Sockaddr is a decoded AUDIT_SOCKADDR saddr field
type Sockaddr struct {
	Family  string
	Address string
	Port    uint16
}

// ParseSockaddr decodes the hex saddr value of a SOCKADDR record. The
// family is host order; the port and address are network order.
func ParseSockaddr(saddr string) (*Sockaddr, error) {
	b, err := hex.DecodeString(saddr)
	if err != nil {
		return nil, fmt.Errorf("%w: saddr: %v", ErrMalformedRecord, err)
	}
	if len(b) < 2 {
		return nil, fmt.Errorf("%w: saddr too short", ErrMalformedRecord)
	}

	family := binary.LittleEndian.Uint16(b[:2])
	switch family {
	case familyInet:
		if len(b) < 8 {
			return nil, fmt.Errorf("%w: short inet saddr", ErrMalformedRecord)
		}
		addr := netip.AddrFrom4([4]byte(b[4:8]))
		return &Sockaddr{Family: "ipv4", Address: addr.String(), Port: binary.BigEndian.Uint16(b[2:4])}, nil

	case familyInet6:
		if len(b) < 24 {
			return nil, fmt.Errorf("%w: short inet6 saddr", ErrMalformedRecord)
		}
		addr := netip.AddrFrom16([16]byte(b[8:24]))
		return &Sockaddr{Family: "ipv6", Address: addr.String(), Port: binary.BigEndian.Uint16(b[2:4])}, nil

	case familyUnix:
		path := b[2:]
		if i := bytes.IndexByte(path, 0); i >= 0 {
			path = path[:i]
		}
		return &Sockaddr{Family: "unix", Address: string(path)}, nil

	default:
		return &Sockaddr{Family: fmt.Sprint(family)}, nil
	}
}
