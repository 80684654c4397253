package protocol

import (
	"Go2FlowMeter/internal/model"
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// ErrUnsupportedPacket is returned for packets that carry no TCP or UDP over IPv4/IPv6.
var ErrUnsupportedPacket = errors.New("unsupported packet")

// L2TPPort is the UDP port of L2TP tunnels.
const L2TPPort = 1701

// Parser turns decoded packets into packet records.
type Parser struct {
	ReadIPv4 bool
	ReadIPv6 bool
}

// NewParser creates a parser for the enabled address families.
func NewParser(readIPv4, readIPv6 bool) *Parser {
	return &Parser{ReadIPv4: readIPv4, ReadIPv6: readIPv6}
}

// ParsePacket decodes a raw Ethernet frame captured at ts.
func (p *Parser) ParsePacket(data []byte, ts time.Time) (*model.PacketRecord, error) {
	packet := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
	if ts.IsZero() {
		ts = time.Now()
	}
	return p.parse(packet, ts, true)
}

// Parse extracts a packet record. The timestamp comes from the capture metadata.
func (p *Parser) Parse(packet gopacket.Packet) (*model.PacketRecord, error) {
	ts := time.Now() // overwritten by packet metadata if available
	if meta := packet.Metadata(); meta != nil && !meta.Timestamp.IsZero() {
		ts = meta.Timestamp
	}
	return p.parse(packet, ts, true)
}

func (p *Parser) parse(packet gopacket.Packet, ts time.Time, allowTunnel bool) (*model.PacketRecord, error) {
	var rec *model.PacketRecord
	var err error
	if p.ReadIPv4 {
		rec, err = p.ipv4Record(packet)
		if rec == nil && p.ReadIPv6 {
			rec, err = p.ipv6Record(packet)
		}
	} else if p.ReadIPv6 {
		rec, err = p.ipv6Record(packet)
	}
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: no IPv4/IPv6 TCP or UDP layer", ErrUnsupportedPacket)
	}

	if allowTunnel && rec.FiveTuple.Protocol == model.ProtocolUDP &&
		(rec.FiveTuple.SrcPort == L2TPPort || rec.FiveTuple.DstPort == L2TPPort) {
		if udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
			if inner := p.tunneled(udp.Payload, ts); inner != nil {
				return inner, nil
			}
		}
	}

	rec.Timestamp = ts.UnixMicro()
	return rec, nil
}

func (p *Parser) ipv4Record(packet gopacket.Packet) (*model.PacketRecord, error) {
	ip, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
	if !ok {
		return nil, nil
	}
	rec, err := transportRecord(packet, ip.SrcIP, ip.DstIP, int(ip.Length)-int(ip.IHL)*4)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (p *Parser) ipv6Record(packet gopacket.Packet) (*model.PacketRecord, error) {
	ip, ok := packet.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
	if !ok {
		return nil, nil
	}
	return transportRecord(packet, ip.SrcIP, ip.DstIP, int(ip.Length))
}

// transportRecord fills ports, flags and byte counts. ipPayload is the length of
// the IP payload announced by the IP header; it is preferred over the captured
// bytes so truncated captures still report the real segment size.
func transportRecord(packet gopacket.Packet, src, dst []byte, ipPayload int) (*model.PacketRecord, error) {
	srcAddr, ok1 := netip.AddrFromSlice(src)
	dstAddr, ok2 := netip.AddrFromSlice(dst)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%w: bad address length", model.ErrMalformedRecord)
	}
	rec := &model.PacketRecord{
		FiveTuple: model.FiveTuple{SrcIP: srcAddr.Unmap(), DstIP: dstAddr.Unmap()},
	}

	if tcp, ok := packet.Layer(layers.LayerTypeTCP).(*layers.TCP); ok {
		header := int64(tcp.DataOffset) * 4
		rec.FiveTuple.SrcPort = uint16(tcp.SrcPort)
		rec.FiveTuple.DstPort = uint16(tcp.DstPort)
		rec.FiveTuple.Protocol = model.ProtocolTCP
		rec.HeaderBytes = header
		rec.PayloadBytes = payloadBytes(int64(ipPayload)-header, len(tcp.Payload))
		rec.TCPWindow = int(tcp.Window)
		rec.Flags = tcpFlags(tcp)
		return rec, nil
	}
	if udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
		rec.FiveTuple.SrcPort = uint16(udp.SrcPort)
		rec.FiveTuple.DstPort = uint16(udp.DstPort)
		rec.FiveTuple.Protocol = model.ProtocolUDP
		rec.HeaderBytes = 8
		rec.PayloadBytes = payloadBytes(int64(udp.Length)-8, len(udp.Payload))
		return rec, nil
	}
	return nil, nil
}

func payloadBytes(announced int64, captured int) int64 {
	if announced >= 0 && announced >= int64(captured) {
		return announced
	}
	return int64(captured)
}

func tcpFlags(tcp *layers.TCP) model.TCPFlags {
	var f model.TCPFlags
	set := func(on bool, flag model.TCPFlags) {
		if on {
			f |= flag
		}
	}
	set(tcp.FIN, model.FlagFIN)
	set(tcp.SYN, model.FlagSYN)
	set(tcp.RST, model.FlagRST)
	set(tcp.PSH, model.FlagPSH)
	set(tcp.ACK, model.FlagACK)
	set(tcp.URG, model.FlagURG)
	set(tcp.ECE, model.FlagECE)
	set(tcp.CWR, model.FlagCWR)
	return f
}

// L2TPv2 header bits.
const (
	l2tpType     = 0x80
	l2tpLength   = 0x40
	l2tpSequence = 0x08
	l2tpOffset   = 0x02

	pppIPv4 = 0x0021
	pppIPv6 = 0x0057
)

// tunneled decodes the IP packet carried by an L2TPv2 data message over PPP.
// It returns nil when payload is not such a message.
func (p *Parser) tunneled(payload []byte, ts time.Time) *model.PacketRecord {
	inner, proto, ok := l2tpPPPPayload(payload)
	if !ok {
		return nil
	}
	var first gopacket.LayerType
	switch {
	case proto == pppIPv4 && p.ReadIPv4:
		first = layers.LayerTypeIPv4
	case proto == pppIPv6 && p.ReadIPv6:
		first = layers.LayerTypeIPv6
	default:
		return nil
	}
	packet := gopacket.NewPacket(inner, first, gopacket.Default)
	rec, err := p.parse(packet, ts, false)
	if err != nil {
		return nil
	}
	return rec
}

// l2tpPPPPayload strips the L2TPv2 and PPP headers, returning the PPP protocol number.
func l2tpPPPPayload(b []byte) ([]byte, uint16, bool) {
	if len(b) < 6 {
		return nil, 0, false
	}
	flags := b[0]
	if flags&l2tpType != 0 || b[1]&0x0f != 2 {
		// control message or not version 2
		return nil, 0, false
	}
	off := 2
	if flags&l2tpLength != 0 {
		off += 2
	}
	off += 4 // tunnel and session ids
	if flags&l2tpSequence != 0 {
		off += 4
	}
	if flags&l2tpOffset != 0 {
		if len(b) < off+2 {
			return nil, 0, false
		}
		off += 2 + int(binary.BigEndian.Uint16(b[off:]))
	}
	if len(b) < off+2 {
		return nil, 0, false
	}
	b = b[off:]

	if b[0] == 0xff && b[1] == 0x03 {
		b = b[2:]
	}
	if len(b) < 1 {
		return nil, 0, false
	}
	var proto uint16
	if b[0]&0x01 == 1 {
		proto = uint16(b[0])
		b = b[1:]
	} else {
		if len(b) < 2 {
			return nil, 0, false
		}
		proto = binary.BigEndian.Uint16(b)
		b = b[2:]
	}
	return b, proto, len(b) > 0
}
