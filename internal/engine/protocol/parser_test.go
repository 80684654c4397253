package protocol

import (
	"Go2FlowMeter/internal/model"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	srcMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	dstMAC = net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb}
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return buf.Bytes()
}

func ipv4TCP(t *testing.T, payload []byte) (*layers.IPv4, *layers.TCP) {
	t.Helper()
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolTCP,
		SrcIP: net.IP{10, 0, 0, 1}, DstIP: net.IP{10, 0, 0, 2},
	}
	tcp := &layers.TCP{SrcPort: 40000, DstPort: 80, SYN: true, ACK: true, PSH: true, Window: 1000}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return ip, tcp
}

func TestParseIPv4TCP(t *testing.T) {
	payload := []byte("hello")
	ip, tcp := ipv4TCP(t, payload)
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	data := serialize(t, eth, ip, tcp, gopacket.Payload(payload))

	ts := time.Unix(1700000000, 123456000)
	rec, err := NewParser(true, true).ParsePacket(data, ts)
	require.NoError(t, err)

	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), rec.FiveTuple.SrcIP)
	assert.Equal(t, netip.MustParseAddr("10.0.0.2"), rec.FiveTuple.DstIP)
	assert.EqualValues(t, 40000, rec.FiveTuple.SrcPort)
	assert.EqualValues(t, 80, rec.FiveTuple.DstPort)
	assert.Equal(t, model.ProtocolTCP, rec.FiveTuple.Protocol)
	assert.EqualValues(t, 5, rec.PayloadBytes)
	assert.EqualValues(t, 20, rec.HeaderBytes)
	assert.Equal(t, 1000, rec.TCPWindow)
	assert.True(t, rec.HasFlag(model.FlagSYN|model.FlagACK|model.FlagPSH))
	assert.False(t, rec.HasFlag(model.FlagFIN))
	assert.Equal(t, ts.UnixMicro(), rec.Timestamp)
}

func TestParseIPv6UDP(t *testing.T) {
	ip := &layers.IPv6{
		Version: 6, HopLimit: 64, NextHeader: layers.IPProtocolUDP,
		SrcIP: net.ParseIP("2001:db8::1"), DstIP: net.ParseIP("2001:db8::2"),
	}
	udp := &layers.UDP{SrcPort: 5353, DstPort: 53}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv6}
	data := serialize(t, eth, ip, udp, gopacket.Payload(make([]byte, 12)))

	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	ts := time.Unix(1700000001, 0)
	packet.Metadata().Timestamp = ts

	rec, err := NewParser(true, true).Parse(packet)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("2001:db8::1"), rec.FiveTuple.SrcIP)
	assert.Equal(t, model.ProtocolUDP, rec.FiveTuple.Protocol)
	assert.EqualValues(t, 12, rec.PayloadBytes)
	assert.EqualValues(t, 8, rec.HeaderBytes)
	assert.Zero(t, rec.TCPWindow)
	assert.Equal(t, ts.UnixMicro(), rec.Timestamp)

	_, err = NewParser(true, false).Parse(packet)
	assert.ErrorIs(t, err, ErrUnsupportedPacket)
}

func TestParseUnsupported(t *testing.T) {
	ip := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolICMPv4,
		SrcIP: net.IP{10, 0, 0, 1}, DstIP: net.IP{10, 0, 0, 2},
	}
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	data := serialize(t, eth, ip, icmp)

	_, err := NewParser(true, true).ParsePacket(data, time.Now())
	assert.ErrorIs(t, err, ErrUnsupportedPacket)
}

func TestParseL2TPTunnel(t *testing.T) {
	payload := []byte("tunneled")
	innerIP, innerTCP := ipv4TCP(t, payload)
	inner := serialize(t, innerIP, innerTCP, gopacket.Payload(payload))

	// L2TPv2 data message: flags/version, tunnel id, session id, then PPP
	l2tp := []byte{0x00, 0x02, 0x00, 0x01, 0x00, 0x02, 0xff, 0x03, 0x00, 0x21}
	l2tp = append(l2tp, inner...)

	outerIP := &layers.IPv4{
		Version: 4, TTL: 64, Protocol: layers.IPProtocolUDP,
		SrcIP: net.IP{192, 0, 2, 1}, DstIP: net.IP{192, 0, 2, 2},
	}
	udp := &layers.UDP{SrcPort: L2TPPort, DstPort: L2TPPort}
	require.NoError(t, udp.SetNetworkLayerForChecksum(outerIP))
	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC, EthernetType: layers.EthernetTypeIPv4}
	data := serialize(t, eth, outerIP, udp, gopacket.Payload(l2tp))

	rec, err := NewParser(true, true).ParsePacket(data, time.Unix(10, 0))
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("10.0.0.1"), rec.FiveTuple.SrcIP)
	assert.Equal(t, model.ProtocolTCP, rec.FiveTuple.Protocol)
	assert.EqualValues(t, len(payload), rec.PayloadBytes)
	assert.EqualValues(t, 10000000, rec.Timestamp)
}

func TestL2TPHeader(t *testing.T) {
	// length, sequence and offset fields present, one-byte PPP protocol
	b := []byte{
		0x4a, 0x02, 0x00, 0x20, // flags L|S|O, version 2, length
		0x00, 0x01, 0x00, 0x02, // tunnel, session
		0x00, 0x00, 0x00, 0x00, // Ns, Nr
		0x00, 0x01, 0xee, // offset size 1 plus padding
		0x21, 0x45,
	}
	inner, proto, ok := l2tpPPPPayload(b)
	require.True(t, ok)
	assert.EqualValues(t, pppIPv4, proto)
	assert.Equal(t, []byte{0x45}, inner)

	_, _, ok = l2tpPPPPayload([]byte{0xc8, 0x02, 0, 0, 0, 0, 0, 0})
	assert.False(t, ok, "control messages carry no PPP payload")
}
