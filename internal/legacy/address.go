package legacy

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the port a Minecraft server listens on when none is given.
const DefaultPort uint16 = 25565

// Address identifies a server to query.
type Address struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

// ParseAddress parses "host", "host:port" or "[ipv6]:port".
// A missing port falls back to DefaultPort.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}

	// bare IPv6 literal without port
	if ip := net.ParseIP(s); ip != nil {
		return Address{Host: s, Port: DefaultPort}, nil
	}

	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		if strings.Contains(err.Error(), "missing port") {
			return Address{Host: strings.Trim(s, "[]"), Port: DefaultPort}, nil
		}
		return Address{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if host == "" {
		return Address{}, fmt.Errorf("invalid address %q: empty host", s)
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return Address{}, fmt.Errorf("invalid port %q in address %q", portStr, s)
	}

	return Address{Host: host, Port: uint16(port)}, nil
}

// String returns the dialable "host:port" form.
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}
