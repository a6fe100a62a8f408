package netplane

import (
	"github.com/ember-os/netplane/header"
	"github.com/ember-os/netplane/mem"
	"github.com/ember-os/netplane/socket"
)

// HandleFrame classifies one inbound frame and dispatches it. It runs in
// interrupt context and consumes buf: every path below releases it exactly
// once. Unrecognized or truncated frames are noise, not errors.
func (f *Interface) HandleFrame(buf *mem.Buffer, length int) {
	var eth header.Eth
	if err := eth.Parse(buf.Data[:length]); err != nil {
		f.metrics.rxNoise.Inc(1)
		buf.Release()
		return
	}

	switch {
	case eth.Type == header.EthTypeARP && length >= header.EthLen+header.ARPLen:
		f.handleARP(&eth, buf, length)
	case eth.Type == header.EthTypeIPv4 && length >= header.EthLen+header.IPv4Len:
		f.handleIPv4(buf, length)
	default:
		f.metrics.rxNoise.Inc(1)
		buf.Release()
	}
}

// handleARP answers the first ARP frame seen with a reply mapping our IP to
// our MAC, which is all the single fixed peer needs to start sending us IP
// traffic. Every later ARP frame is dropped without a reply. Consumes buf.
func (f *Interface) handleARP(eth *header.Eth, buf *mem.Buffer, length int) {
	defer buf.Release()

	if f.arpReplied.Swap(true) {
		f.metrics.arpIgnored.Inc(1)
		return
	}
	f.metrics.rxARP.Inc(1)

	var query header.ARP
	if err := query.Parse(buf.Data[header.EthLen:length]); err != nil {
		return
	}

	out, err := f.pool.Get()
	if err != nil {
		f.l.WithError(err).Warn("dropping ARP reply, no buffer available")
		return
	}

	reply := header.Eth{Dst: eth.Src, Src: f.mac, Type: header.EthTypeARP}
	reply.Encode(out.Data)

	arp := header.ARP{
		HType:    header.ARPHTypeEthernet,
		PType:    header.EthTypeIPv4,
		HLen:     6,
		PLen:     4,
		Op:       header.ARPOpReply,
		SenderHW: f.mac,
		SenderIP: f.ip,
		TargetHW: eth.Src,
		TargetIP: query.SenderIP,
	}
	arp.Encode(out.Data[header.EthLen:])

	if err := f.driver.Transmit(out, header.EthLen+header.ARPLen); err != nil {
		// Failure means we still own the buffer.
		out.Release()
		f.l.WithError(err).Warn("could not transmit ARP reply")
		return
	}
	f.metrics.arpReplies.Inc(1)
}

// handleIPv4 extracts a UDP datagram and queues it for its bound port. The
// payload is copied into the port queue; the frame buffer never escapes
// this function. Consumes buf.
func (f *Interface) handleIPv4(buf *mem.Buffer, length int) {
	defer buf.Release()
	f.metrics.rxIPv4.Inc(1)

	var ip header.IPv4
	if err := ip.Parse(buf.Data[header.EthLen:length]); err != nil {
		f.metrics.rxMalformed.Inc(1)
		return
	}

	if ip.Protocol != header.IPProtoUDP {
		f.metrics.rxNonUDP.Inc(1)
		return
	}

	if length < header.EthLen+header.IPv4Len+header.UDPLen {
		f.metrics.rxMalformed.Inc(1)
		return
	}

	var udp header.UDP
	if err := udp.Parse(buf.Data[header.EthLen+header.IPv4Len : length]); err != nil {
		f.metrics.rxMalformed.Inc(1)
		return
	}

	// The UDP length field includes its own header. Anything negative or
	// larger than a queue slot is malformed.
	payloadLen := int(udp.Length) - header.UDPLen
	payloadStart := header.EthLen + header.IPv4Len + header.UDPLen
	if payloadLen < 0 || payloadLen > socket.MaxDatagram || payloadStart+payloadLen > length {
		f.metrics.rxMalformed.Inc(1)
		return
	}

	f.metrics.rxUDP.Inc(1)
	f.ports.Enqueue(udp.DstPort, ip.Src, udp.SrcPort, buf.Data[payloadStart:payloadStart+payloadLen])
}
