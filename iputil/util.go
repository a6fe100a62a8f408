// Package iputil holds the host-order IPv4 address type shared by the
// protocol stack and the socket layer. Multi-byte fields on the wire are
// network order; everything above the frame codecs works in host order.
package iputil

import (
	"encoding/binary"
	"fmt"
	"net"
)

type IP4 uint32

const maxIPv4StringLen = len("255.255.255.255")

func (ip IP4) String() string {
	b := make([]byte, maxIPv4StringLen)

	n := ubtoa(b, 0, byte(ip>>24))
	b[n] = '.'
	n++

	n += ubtoa(b, n, byte(ip>>16&255))
	b[n] = '.'
	n++

	n += ubtoa(b, n, byte(ip>>8&255))
	b[n] = '.'
	n++

	n += ubtoa(b, n, byte(ip&255))
	return string(b[:n])
}

func (ip IP4) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("\"%s\"", ip.String())), nil
}

func (ip IP4) ToIP() net.IP {
	nip := make(net.IP, 4)
	binary.BigEndian.PutUint32(nip, uint32(ip))
	return nip
}

// FromSlice interprets a 4 or 16 byte network-order slice as an IP4.
func FromSlice(ip []byte) IP4 {
	if len(ip) == 16 {
		return IP4(binary.BigEndian.Uint32(ip[12:16]))
	}
	return IP4(binary.BigEndian.Uint32(ip))
}

// MakeIP4 builds an address from its dotted-quad parts.
func MakeIP4(a, b, c, d byte) IP4 {
	return IP4(a)<<24 | IP4(b)<<16 | IP4(c)<<8 | IP4(d)
}

// ParseIP4 parses a dotted-quad string, rejecting anything that is not a
// plain IPv4 address.
func ParseIP4(s string) (IP4, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0, fmt.Errorf("invalid ipv4 address: %s", s)
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0, fmt.Errorf("not an ipv4 address: %s", s)
	}
	return FromSlice(v4), nil
}

// ubtoa encodes the string form of the byte b into the given buffer at the
// given offset and returns the number of bytes written.
func ubtoa(dst []byte, offset int, v byte) int {
	if v < 10 {
		dst[offset] = v + '0'
		return 1
	} else if v < 100 {
		dst[offset+1] = v%10 + '0'
		dst[offset] = v/10 + '0'
		return 2
	}

	dst[offset+2] = v%10 + '0'
	dst[offset+1] = (v/10)%10 + '0'
	dst[offset] = v/100 + '0'
	return 3
}
