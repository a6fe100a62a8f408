package header

import "encoding/binary"

// UDP header. The checksum field is left zero on transmit and never
// validated on receive; only the IPv4 header carries a checksum here.

const UDPLen = 8

type UDP struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
}

func (h *UDP) Parse(b []byte) error {
	if len(b) < UDPLen {
		return ErrTooShort
	}
	h.SrcPort = binary.BigEndian.Uint16(b[0:2])
	h.DstPort = binary.BigEndian.Uint16(b[2:4])
	h.Length = binary.BigEndian.Uint16(b[4:6])
	h.Checksum = binary.BigEndian.Uint16(b[6:8])
	return nil
}

// Encode writes the header to the start of b and returns the encoded bytes.
// b must hold at least UDPLen bytes or this will panic.
func (h *UDP) Encode(b []byte) []byte {
	b = b[:UDPLen]
	binary.BigEndian.PutUint16(b[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(b[2:4], h.DstPort)
	binary.BigEndian.PutUint16(b[4:6], h.Length)
	binary.BigEndian.PutUint16(b[6:8], h.Checksum)
	return b
}
