// Package header implements byte-exact encoding and parsing for the frame
// layouts this stack speaks: Ethernet, ARP (IPv4 over Ethernet profile
// only), IPv4 without options, and UDP. All multi-byte fields are network
// byte order on the wire.
package header

import (
	"encoding/binary"
	"errors"
)

// Ethernet header:
// 0                                                                       47
// |-----------------------------------------------------------------------|
// |                         Destination MAC (48)                          |
// |-----------------------------------------------------------------------|
// |                            Source MAC (48)                            |
// |-----------------------------------------------------------------------|
// |          EtherType (16)         |             payload...              |

const (
	EthLen = 14

	EthTypeIPv4 uint16 = 0x0800
	EthTypeARP  uint16 = 0x0806
)

var ErrTooShort = errors.New("buffer too short for header")

type Eth struct {
	Dst  [6]byte
	Src  [6]byte
	Type uint16
}

// Parse fills in the header from the start of b.
func (h *Eth) Parse(b []byte) error {
	if len(b) < EthLen {
		return ErrTooShort
	}
	copy(h.Dst[:], b[0:6])
	copy(h.Src[:], b[6:12])
	h.Type = binary.BigEndian.Uint16(b[12:14])
	return nil
}

// Encode writes the header to the start of b and returns the encoded bytes.
// b must hold at least EthLen bytes or this will panic.
func (h *Eth) Encode(b []byte) []byte {
	b = b[:EthLen]
	copy(b[0:6], h.Dst[:])
	copy(b[6:12], h.Src[:])
	binary.BigEndian.PutUint16(b[12:14], h.Type)
	return b
}
