package pcap

import (
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// Frame is one captured Ethernet frame.
type Frame struct {
	Timestamp time.Time
	Data      []byte
}

// Session describes a synthetic conversation. Each entry of Payloads is one
// packet: a positive size travels client to server, a negative size server to client.
type Session struct {
	Client     netip.Addr
	Server     netip.Addr
	ClientPort uint16
	ServerPort uint16
	UDP        bool
	Start      time.Time
	Gap        time.Duration
	Payloads   []int
	// Fin sets the TCP FIN flag on the last packet.
	Fin bool
}

var (
	clientMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	serverMAC = net.HardwareAddr{0x00, 0x66, 0x77, 0x88, 0x99, 0xAA}
)

// Frames serializes the session into Ethernet frames.
func (s Session) Frames() ([]Frame, error) {
	frames := make([]Frame, 0, len(s.Payloads))
	for i, size := range s.Payloads {
		fromClient := size >= 0
		if size < 0 {
			size = -size
		}
		src, dst := s.Client, s.Server
		sport, dport := s.ClientPort, s.ServerPort
		smac, dmac := clientMAC, serverMAC
		if !fromClient {
			src, dst = dst, src
			sport, dport = dport, sport
			smac, dmac = dmac, smac
		}

		eth := &layers.Ethernet{SrcMAC: smac, DstMAC: dmac, EthernetType: layers.EthernetTypeIPv4}
		var network gopacket.NetworkLayer
		var netLayer gopacket.SerializableLayer
		proto := layers.IPProtocolTCP
		if s.UDP {
			proto = layers.IPProtocolUDP
		}
		if src.Is4() {
			ip := &layers.IPv4{Version: 4, TTL: 64, Protocol: proto, SrcIP: src.AsSlice(), DstIP: dst.AsSlice()}
			network, netLayer = ip, ip
		} else {
			eth.EthernetType = layers.EthernetTypeIPv6
			ip := &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: proto, SrcIP: src.AsSlice(), DstIP: dst.AsSlice()}
			network, netLayer = ip, ip
		}

		var transport gopacket.SerializableLayer
		if s.UDP {
			udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
			if err := udp.SetNetworkLayerForChecksum(network); err != nil {
				return nil, err
			}
			transport = udp
		} else {
			tcp := &layers.TCP{
				SrcPort: layers.TCPPort(sport),
				DstPort: layers.TCPPort(dport),
				Seq:     uint32(i),
				ACK:     i > 0,
				SYN:     i == 0,
				PSH:     size > 0,
				FIN:     s.Fin && i == len(s.Payloads)-1,
				Window:  14600,
			}
			if err := tcp.SetNetworkLayerForChecksum(network); err != nil {
				return nil, err
			}
			transport = tcp
		}

		buf := gopacket.NewSerializeBuffer()
		opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
		if err := gopacket.SerializeLayers(buf, opts, eth, netLayer, transport, gopacket.Payload(make([]byte, size))); err != nil {
			return nil, fmt.Errorf("failed to serialize layers: %w", err)
		}
		frames = append(frames, Frame{
			Timestamp: s.Start.Add(time.Duration(i) * s.Gap),
			Data:      buf.Bytes(),
		})
	}
	return frames, nil
}

// WriteFile writes frames into a classic pcap file with an Ethernet link type.
func WriteFile(path string, frames []Frame) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return fmt.Errorf("failed to write pcap header: %w", err)
	}
	for _, fr := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     fr.Timestamp,
			CaptureLength: len(fr.Data),
			Length:        len(fr.Data),
		}
		if err := w.WritePacket(ci, fr.Data); err != nil {
			return fmt.Errorf("failed to write packet: %w", err)
		}
	}
	return nil
}
