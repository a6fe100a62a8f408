package netplane

import (
	"errors"
	"fmt"

	"github.com/ember-os/netplane/header"
	"github.com/ember-os/netplane/iputil"
	"github.com/ember-os/netplane/mem"
)

// ErrPayloadTooLarge means headers plus payload exceed one frame buffer.
// There is no fragmentation; the caller has to send less.
var ErrPayloadTooLarge = errors.New("payload does not fit in one frame buffer")

const udpOverhead = header.EthLen + header.IPv4Len + header.UDPLen

// Send builds an Ethernet/IPv4/UDP frame around payload and transmits it to
// the fixed peer. It never blocks: a full transmit ring surfaces as
// e1000.ErrNoTxDescriptors and the frame is simply not sent. The outbound
// UDP checksum is left zero; only the IP header is checksummed.
func (f *Interface) Send(srcPort uint16, dstIP iputil.IP4, dstPort uint16, payload []byte) error {
	total := udpOverhead + len(payload)
	if total > mem.PageSize {
		return ErrPayloadTooLarge
	}

	buf, err := f.pool.Get()
	if err != nil {
		return fmt.Errorf("allocating frame buffer: %w", err)
	}
	b := buf.Data[:total]

	eth := header.Eth{Dst: f.hostMAC, Src: f.mac, Type: header.EthTypeIPv4}
	eth.Encode(b)

	ip := header.IPv4{
		TotalLen: uint16(header.IPv4Len + header.UDPLen + len(payload)),
		TTL:      100,
		Protocol: header.IPProtoUDP,
		Src:      f.ip,
		Dst:      dstIP,
	}
	ip.Encode(b[header.EthLen:])

	udp := header.UDP{
		SrcPort: srcPort,
		DstPort: dstPort,
		Length:  uint16(header.UDPLen + len(payload)),
	}
	udp.Encode(b[header.EthLen+header.IPv4Len:])

	copy(b[udpOverhead:], payload)

	if err := f.driver.Transmit(buf, total); err != nil {
		// Transmit failure leaves ownership with us.
		buf.Release()
		return err
	}

	f.metrics.txUDP.Inc(1)
	return nil
}
