package header

import (
	"encoding/binary"

	"github.com/ember-os/netplane/iputil"
)

// ARP, IPv4-over-Ethernet profile. Hardware/protocol address lengths are
// fixed at 6 and 4; anything else on the wire is noise to the caller.

const (
	ARPLen = 28

	ARPHTypeEthernet uint16 = 1

	ARPOpRequest uint16 = 1
	ARPOpReply   uint16 = 2
)

type ARP struct {
	HType uint16
	PType uint16
	HLen  uint8
	PLen  uint8
	Op    uint16

	SenderHW [6]byte
	SenderIP iputil.IP4
	TargetHW [6]byte
	TargetIP iputil.IP4
}

func (h *ARP) Parse(b []byte) error {
	if len(b) < ARPLen {
		return ErrTooShort
	}
	h.HType = binary.BigEndian.Uint16(b[0:2])
	h.PType = binary.BigEndian.Uint16(b[2:4])
	h.HLen = b[4]
	h.PLen = b[5]
	h.Op = binary.BigEndian.Uint16(b[6:8])
	copy(h.SenderHW[:], b[8:14])
	h.SenderIP = iputil.FromSlice(b[14:18])
	copy(h.TargetHW[:], b[18:24])
	h.TargetIP = iputil.FromSlice(b[24:28])
	return nil
}

// Encode writes the packet to the start of b and returns the encoded bytes.
// b must hold at least ARPLen bytes or this will panic.
func (h *ARP) Encode(b []byte) []byte {
	b = b[:ARPLen]
	binary.BigEndian.PutUint16(b[0:2], h.HType)
	binary.BigEndian.PutUint16(b[2:4], h.PType)
	b[4] = h.HLen
	b[5] = h.PLen
	binary.BigEndian.PutUint16(b[6:8], h.Op)
	copy(b[8:14], h.SenderHW[:])
	binary.BigEndian.PutUint32(b[14:18], uint32(h.SenderIP))
	copy(b[18:24], h.TargetHW[:])
	binary.BigEndian.PutUint32(b[24:28], uint32(h.TargetIP))
	return b
}
