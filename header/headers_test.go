package header

import (
	"net"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/ipv4"

	"github.com/ember-os/netplane/iputil"
)

var (
	testMAC     = [6]byte{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}
	testHostMAC = [6]byte{0x52, 0x55, 0x0a, 0x00, 0x02, 0x02}
)

func TestEthParseEncode(t *testing.T) {
	buf := make([]byte, EthLen)
	h := Eth{Dst: testHostMAC, Src: testMAC, Type: EthTypeARP}
	h.Encode(buf)

	var got Eth
	require.NoError(t, got.Parse(buf))
	assert.Equal(t, h, got)

	assert.ErrorIs(t, got.Parse(buf[:EthLen-1]), ErrTooShort)
}

func TestEthAgainstGopacket(t *testing.T) {
	buf := make([]byte, EthLen)
	h := Eth{Dst: testHostMAC, Src: testMAC, Type: EthTypeIPv4}
	h.Encode(buf)

	eth := &layers.Ethernet{}
	require.NoError(t, eth.DecodeFromBytes(buf, gopacket.NilDecodeFeedback))
	assert.Equal(t, net.HardwareAddr(testHostMAC[:]), eth.DstMAC)
	assert.Equal(t, net.HardwareAddr(testMAC[:]), eth.SrcMAC)
	assert.Equal(t, layers.EthernetTypeIPv4, eth.EthernetType)
}

func TestARPAgainstGopacket(t *testing.T) {
	// Parse a query serialized by gopacket.
	query := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   testHostMAC[:],
		SourceProtAddress: []byte{10, 0, 2, 2},
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    []byte{10, 0, 2, 15},
	}
	sb := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(sb, gopacket.SerializeOptions{}, query))

	var got ARP
	require.NoError(t, got.Parse(sb.Bytes()))
	assert.Equal(t, ARPHTypeEthernet, got.HType)
	assert.Equal(t, EthTypeIPv4, got.PType)
	assert.Equal(t, uint8(6), got.HLen)
	assert.Equal(t, uint8(4), got.PLen)
	assert.Equal(t, ARPOpRequest, got.Op)
	assert.Equal(t, testHostMAC, got.SenderHW)
	assert.Equal(t, iputil.MakeIP4(10, 0, 2, 2), got.SenderIP)
	assert.Equal(t, iputil.MakeIP4(10, 0, 2, 15), got.TargetIP)

	// And the reverse: gopacket must understand our reply encoding.
	reply := ARP{
		HType:    ARPHTypeEthernet,
		PType:    EthTypeIPv4,
		HLen:     6,
		PLen:     4,
		Op:       ARPOpReply,
		SenderHW: testMAC,
		SenderIP: iputil.MakeIP4(10, 0, 2, 15),
		TargetHW: testHostMAC,
		TargetIP: iputil.MakeIP4(10, 0, 2, 2),
	}
	buf := make([]byte, ARPLen)
	reply.Encode(buf)

	dec := &layers.ARP{}
	require.NoError(t, dec.DecodeFromBytes(buf, gopacket.NilDecodeFeedback))
	assert.Equal(t, uint16(layers.ARPReply), dec.Operation)
	assert.Equal(t, testMAC[:], []byte(dec.SourceHwAddress))
	assert.Equal(t, []byte{10, 0, 2, 15}, []byte(dec.SourceProtAddress))
	assert.Equal(t, []byte{10, 0, 2, 2}, []byte(dec.DstProtAddress))
}

func TestIPv4EncodeChecksumValid(t *testing.T) {
	h := IPv4{
		TotalLen: IPv4Len + UDPLen + 5,
		TTL:      100,
		Protocol: IPProtoUDP,
		Src:      iputil.MakeIP4(10, 0, 2, 15),
		Dst:      iputil.MakeIP4(10, 0, 2, 2),
	}
	buf := make([]byte, IPv4Len)
	h.Encode(buf)

	// A verifier summing the entire header must get zero.
	assert.Equal(t, uint16(0), Checksum(buf, 0))

	dec := &layers.IPv4{}
	require.NoError(t, dec.DecodeFromBytes(buf, gopacket.NilDecodeFeedback))
	assert.Equal(t, uint8(4), dec.Version)
	assert.Equal(t, uint8(100), dec.TTL)
	assert.Equal(t, layers.IPProtocolUDP, dec.Protocol)
	assert.Equal(t, net.IP{10, 0, 2, 15}, dec.SrcIP)
	assert.Equal(t, net.IP{10, 0, 2, 2}, dec.DstIP)
	assert.Equal(t, h.Checksum, dec.Checksum)
}

func TestIPv4ParseFromXNet(t *testing.T) {
	ref := ipv4.Header{
		Version:  4,
		Len:      ipv4.HeaderLen,
		TotalLen: 33,
		TTL:      64,
		Protocol: int(IPProtoUDP),
		Src:      net.IPv4(10, 0, 2, 2),
		Dst:      net.IPv4(10, 0, 2, 15),
	}
	b, err := ref.Marshal()
	require.NoError(t, err)

	var got IPv4
	require.NoError(t, got.Parse(b))
	assert.Equal(t, uint16(33), got.TotalLen)
	assert.Equal(t, uint8(64), got.TTL)
	assert.Equal(t, IPProtoUDP, got.Protocol)
	assert.Equal(t, iputil.MakeIP4(10, 0, 2, 2), got.Src)
	assert.Equal(t, iputil.MakeIP4(10, 0, 2, 15), got.Dst)
}

func TestIPv4RejectsOptions(t *testing.T) {
	b := make([]byte, IPv4Len)
	b[0] = 0x46 // header length 6 words
	var h IPv4
	assert.ErrorIs(t, h.Parse(b), ErrBadIPv4Header)
}

func TestUDPParseEncode(t *testing.T) {
	h := UDP{SrcPort: 4000, DstPort: 9000, Length: UDPLen + 5}
	buf := make([]byte, UDPLen)
	h.Encode(buf)

	var got UDP
	require.NoError(t, got.Parse(buf))
	assert.Equal(t, h, got)
	assert.Equal(t, uint16(0), got.Checksum)

	dec := &layers.UDP{}
	require.NoError(t, dec.DecodeFromBytes(buf, gopacket.NilDecodeFeedback))
	assert.Equal(t, layers.UDPPort(4000), dec.SrcPort)
	assert.Equal(t, layers.UDPPort(9000), dec.DstPort)
}
