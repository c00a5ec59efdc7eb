package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSockaddr(t *testing.T) {
	tests := []struct {
		name  string
		saddr string
		want  Sockaddr
	}{
		{
			name:  "inet",
			saddr: "02000050C0A8010A0000000000000000",
			want:  Sockaddr{Family: "ipv4", Address: "192.168.1.10", Port: 80},
		},
		{
			name:  "inet6 loopback",
			saddr: "0A001F90" + "00000000" + "00000000000000000000000000000001" + "00000000",
			want:  Sockaddr{Family: "ipv6", Address: "::1", Port: 8080},
		},
		{
			name:  "unix",
			saddr: "01002F72756E2F736F636B00",
			want:  Sockaddr{Family: "unix", Address: "/run/sock"},
		},
		{
			name:  "netlink",
			saddr: "100000000000000000000000",
			want:  Sockaddr{Family: "16"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSockaddr(tt.saddr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestParseSockaddrMalformed(t *testing.T) {
	for _, saddr := range []string{"", "zz", "02", "0200", "0A000050"} {
		_, err := ParseSockaddr(saddr)
		assert.ErrorIs(t, err, ErrMalformedRecord, saddr)
	}
}
