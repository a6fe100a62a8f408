package netplane

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ember-os/netplane/e1000"
	"github.com/ember-os/netplane/header"
	"github.com/ember-os/netplane/iputil"
	"github.com/ember-os/netplane/mem"
	"github.com/ember-os/netplane/socket"
	"github.com/ember-os/netplane/test"
)

var (
	localMAC = [6]byte{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}
	localIP  = iputil.MakeIP4(10, 0, 2, 15)
	hostMAC  = [6]byte{0x52, 0x55, 0x0a, 0x00, 0x02, 0x02}
	hostIP   = iputil.MakeIP4(10, 0, 2, 2)
)

func newTestStack(t *testing.T) (*Interface, *e1000.SimNIC, *mem.Pool) {
	l := test.NewLogger()
	pool := mem.NewPool(l, 64)
	dev := e1000.NewSimNIC(l)
	driver := e1000.NewDriver(l, dev, pool, localMAC)

	ifce, err := NewInterface(l, &InterfaceConfig{
		Driver:  driver,
		Ports:   socket.NewTable(l),
		Pool:    pool,
		MAC:     localMAC,
		IP:      localIP,
		HostMAC: hostMAC,
	})
	require.NoError(t, err)

	require.NoError(t, driver.Init())
	dev.SetInterruptFunc(driver.Interrupt)

	return ifce, dev, pool
}

func buildUDPFrame(t *testing.T, srcPort, dstPort uint16, payload []byte) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr(hostMAC[:]),
		DstMAC:       net.HardwareAddr(localMAC[:]),
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    hostIP.ToIP(),
		DstIP:    localIP.ToIP(),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(srcPort), DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func buildARPQuery(t *testing.T) []byte {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr(hostMAC[:]),
		DstMAC:       net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   hostMAC[:],
		SourceProtAddress: hostIP.ToIP(),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    localIP.ToIP(),
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, arp))
	return buf.Bytes()
}

func TestARPQueryGetsExactlyOneReply(t *testing.T) {
	_, dev, pool := newTestStack(t)
	base := pool.InUse()

	require.NoError(t, dev.InjectFrame(buildARPQuery(t)))

	frame := dev.Get(false)
	require.NotNil(t, frame, "first ARP query must be answered")

	p := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	eth, ok := p.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	require.True(t, ok)
	assert.Equal(t, net.HardwareAddr(hostMAC[:]), eth.DstMAC)
	assert.Equal(t, net.HardwareAddr(localMAC[:]), eth.SrcMAC)

	arp, ok := p.Layer(layers.LayerTypeARP).(*layers.ARP)
	require.True(t, ok)
	assert.Equal(t, uint16(layers.ARPReply), arp.Operation)
	assert.Equal(t, localMAC[:], arp.SourceHwAddress)
	assert.Equal(t, []byte(localIP.ToIP()), arp.SourceProtAddress)
	assert.Equal(t, hostMAC[:], arp.DstHwAddress)
	assert.Equal(t, []byte(hostIP.ToIP()), arp.DstProtAddress)

	// The transmitted buffer is reclaimed lazily on a later transmit, so one
	// page beyond the receive ring is still accounted for.
	assert.Equal(t, base+1, pool.InUse())

	// A second query is ignored outright.
	require.NoError(t, dev.InjectFrame(buildARPQuery(t)))
	assert.Nil(t, dev.Get(false), "second ARP query must not be answered")
	assert.Equal(t, base+1, pool.InUse())
}

func TestUDPDeliveredToBoundPort(t *testing.T) {
	ifce, dev, pool := newTestStack(t)
	base := pool.InUse()

	require.NoError(t, ifce.Bind(9000))
	require.NoError(t, dev.InjectFrame(buildUDPFrame(t, 4000, 9000, []byte("hello"))))

	buf := make([]byte, socket.MaxDatagram)
	n, srcIP, srcPort, err := ifce.Recv(9000, buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("hello"), buf[:n])
	assert.Equal(t, hostIP, srcIP)
	assert.Equal(t, uint16(4000), srcPort)

	// The payload was copied out of the frame buffer; no page leaked.
	assert.Equal(t, base, pool.InUse())
}

func TestUDPToUnboundPortIsDropped(t *testing.T) {
	_, dev, pool := newTestStack(t)
	base := pool.InUse()

	require.NoError(t, dev.InjectFrame(buildUDPFrame(t, 4000, 9999, []byte("nobody home"))))

	assert.Nil(t, dev.Get(false))
	assert.Equal(t, base, pool.InUse())
}

func TestNonUDPIsDropped(t *testing.T) {
	_, dev, pool := newTestStack(t)
	base := pool.InUse()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr(hostMAC[:]),
		DstMAC:       net.HardwareAddr(localMAC[:]),
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolICMPv4,
		SrcIP:    hostIP.ToIP(),
		DstIP:    localIP.ToIP(),
	}
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, icmp))

	require.NoError(t, dev.InjectFrame(buf.Bytes()))
	assert.Nil(t, dev.Get(false))
	assert.Equal(t, base, pool.InUse())
}

func TestNoiseIsDropped(t *testing.T) {
	_, dev, pool := newTestStack(t)
	base := pool.InUse()

	// Too short to even carry an Ethernet header.
	require.NoError(t, dev.InjectFrame([]byte{0xde, 0xad, 0xbe, 0xef}))

	// Full header, unknown ethertype.
	junk := make([]byte, 60)
	copy(junk[0:6], localMAC[:])
	copy(junk[6:12], hostMAC[:])
	junk[12], junk[13] = 0x88, 0x99
	require.NoError(t, dev.InjectFrame(junk))

	assert.Nil(t, dev.Get(false))
	assert.Equal(t, base, pool.InUse())
}

func TestLyingUDPLengthIsDropped(t *testing.T) {
	_, dev, pool := newTestStack(t)
	base := pool.InUse()

	// Hand-built frame whose UDP length field claims far more payload than
	// the frame carries.
	frame := make([]byte, header.EthLen+header.IPv4Len+header.UDPLen+4)
	eth := header.Eth{Dst: localMAC, Src: hostMAC, Type: header.EthTypeIPv4}
	eth.Encode(frame)
	ip := header.IPv4{
		TotalLen: uint16(len(frame) - header.EthLen),
		TTL:      64,
		Protocol: header.IPProtoUDP,
		Src:      hostIP,
		Dst:      localIP,
	}
	ip.Encode(frame[header.EthLen:])
	udp := header.UDP{SrcPort: 4000, DstPort: 9000, Length: 2000}
	udp.Encode(frame[header.EthLen+header.IPv4Len:])

	require.NoError(t, dev.InjectFrame(frame))
	assert.Equal(t, base, pool.InUse())
}

func TestSendBuildsValidFrame(t *testing.T) {
	ifce, dev, _ := newTestStack(t)

	payload := []byte("ping over the wire")
	require.NoError(t, ifce.Send(1234, hostIP, 4321, payload))

	frame := dev.Get(false)
	require.NotNil(t, frame)

	p := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	eth, ok := p.Layer(layers.LayerTypeEthernet).(*layers.Ethernet)
	require.True(t, ok)
	assert.Equal(t, net.HardwareAddr(hostMAC[:]), eth.DstMAC)
	assert.Equal(t, net.HardwareAddr(localMAC[:]), eth.SrcMAC)

	ip, ok := p.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	require.True(t, ok)
	assert.Equal(t, localIP.ToIP().To4(), ip.SrcIP.To4())
	assert.Equal(t, hostIP.ToIP().To4(), ip.DstIP.To4())
	assert.Equal(t, uint8(100), ip.TTL)

	// A correct header checksums to zero when folded over itself.
	rawIP := frame[header.EthLen : header.EthLen+header.IPv4Len]
	assert.Equal(t, uint16(0), header.Checksum(rawIP, 0))

	udp, ok := p.Layer(layers.LayerTypeUDP).(*layers.UDP)
	require.True(t, ok)
	assert.Equal(t, layers.UDPPort(1234), udp.SrcPort)
	assert.Equal(t, layers.UDPPort(4321), udp.DstPort)
	assert.Equal(t, uint16(header.UDPLen+len(payload)), udp.Length)
	assert.Equal(t, uint16(0), udp.Checksum)
	assert.Equal(t, payload, udp.Payload)
}

func TestSendPayloadTooLarge(t *testing.T) {
	ifce, dev, _ := newTestStack(t)

	err := ifce.Send(1234, hostIP, 4321, make([]byte, mem.PageSize))
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
	assert.Nil(t, dev.Get(false))
}

func TestEchoRoundTrip(t *testing.T) {
	ifce, dev, _ := newTestStack(t)

	require.NoError(t, ifce.Bind(7))
	require.NoError(t, dev.InjectFrame(buildUDPFrame(t, 5353, 7, []byte("marco"))))

	buf := make([]byte, socket.MaxDatagram)
	n, srcIP, srcPort, err := ifce.Recv(7, buf)
	require.NoError(t, err)

	require.NoError(t, ifce.Send(7, srcIP, srcPort, buf[:n]))

	frame := dev.Get(false)
	require.NotNil(t, frame)

	p := gopacket.NewPacket(frame, layers.LayerTypeEthernet, gopacket.Default)
	udp, ok := p.Layer(layers.LayerTypeUDP).(*layers.UDP)
	require.True(t, ok)
	assert.Equal(t, layers.UDPPort(7), udp.SrcPort)
	assert.Equal(t, layers.UDPPort(5353), udp.DstPort)
	assert.Equal(t, []byte("marco"), udp.Payload)
}
