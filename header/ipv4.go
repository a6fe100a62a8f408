package header

import (
	"encoding/binary"
	"errors"

	"golang.org/x/net/ipv4"

	"github.com/ember-os/netplane/iputil"
)

var ErrBadIPv4Header = errors.New("not a 20-byte option-free ipv4 header")

// Fixed 20-byte IPv4 header, no options. The stack neither emits nor
// accepts options; a header length other than 5 words is malformed input.

const (
	IPv4Len = ipv4.HeaderLen

	IPProtoUDP uint8 = 17
)

type IPv4 struct {
	TOS       uint8
	TotalLen  uint16
	ID        uint16
	FlagsFrag uint16
	TTL       uint8
	Protocol  uint8
	Checksum  uint16
	Src       iputil.IP4
	Dst       iputil.IP4
}

func (h *IPv4) Parse(b []byte) error {
	if len(b) < IPv4Len {
		return ErrTooShort
	}
	if b[0] != 0x45 {
		return ErrBadIPv4Header
	}
	h.TOS = b[1]
	h.TotalLen = binary.BigEndian.Uint16(b[2:4])
	h.ID = binary.BigEndian.Uint16(b[4:6])
	h.FlagsFrag = binary.BigEndian.Uint16(b[6:8])
	h.TTL = b[8]
	h.Protocol = b[9]
	h.Checksum = binary.BigEndian.Uint16(b[10:12])
	h.Src = iputil.FromSlice(b[12:16])
	h.Dst = iputil.FromSlice(b[16:20])
	return nil
}

// Encode writes the header to the start of b, computing the header checksum
// over the result. b must hold at least IPv4Len bytes or this will panic.
func (h *IPv4) Encode(b []byte) []byte {
	b = b[:IPv4Len]
	b[0] = 0x45 // version 4, header length 5 words
	b[1] = h.TOS
	binary.BigEndian.PutUint16(b[2:4], h.TotalLen)
	binary.BigEndian.PutUint16(b[4:6], h.ID)
	binary.BigEndian.PutUint16(b[6:8], h.FlagsFrag)
	b[8] = h.TTL
	b[9] = h.Protocol
	b[10] = 0
	b[11] = 0
	binary.BigEndian.PutUint32(b[12:16], uint32(h.Src))
	binary.BigEndian.PutUint32(b[16:20], uint32(h.Dst))

	h.Checksum = Checksum(b, 0)
	binary.BigEndian.PutUint16(b[10:12], h.Checksum)
	return b
}
