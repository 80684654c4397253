package model

import (
	"errors"
	"fmt"
	"net/netip"
)

// ErrMalformedRecord is returned when a packet record cannot be attributed to a flow.
var ErrMalformedRecord = errors.New("malformed packet record")

// Transport protocol numbers understood by the flow engine.
const (
	ProtocolTCP uint8 = 6
	ProtocolUDP uint8 = 17
)

// TCPFlags is the set of TCP control bits carried by a packet.
type TCPFlags uint8

const (
	FlagFIN TCPFlags = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
	FlagECE
	FlagCWR
)

// Has reports whether every bit of flag is set.
func (f TCPFlags) Has(flag TCPFlags) bool {
	return f&flag == flag
}

// FiveTuple represents the 5-tuple of a network packet.
type FiveTuple struct {
	SrcIP    netip.Addr
	DstIP    netip.Addr
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// Reverse returns the tuple seen from the other endpoint.
func (ft FiveTuple) Reverse() FiveTuple {
	return FiveTuple{
		SrcIP:    ft.DstIP,
		DstIP:    ft.SrcIP,
		SrcPort:  ft.DstPort,
		DstPort:  ft.SrcPort,
		Protocol: ft.Protocol,
	}
}

// PacketRecord holds the header-level fields extracted from a single decoded packet.
// Timestamps are microseconds since the Unix epoch.
type PacketRecord struct {
	ID           int64
	FiveTuple    FiveTuple
	Timestamp    int64
	PayloadBytes int64
	HeaderBytes  int64
	TCPWindow    int
	Flags        TCPFlags
}

// HasFlag reports whether the record carries the given TCP flag.
func (r *PacketRecord) HasFlag(flag TCPFlags) bool {
	return r.Flags.Has(flag)
}

// Validate checks the fields the flow engine relies on.
func (r *PacketRecord) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrMalformedRecord)
	}
	if !r.FiveTuple.SrcIP.IsValid() {
		return fmt.Errorf("%w: missing source address", ErrMalformedRecord)
	}
	if !r.FiveTuple.DstIP.IsValid() {
		return fmt.Errorf("%w: missing destination address", ErrMalformedRecord)
	}
	if r.FiveTuple.SrcIP.BitLen() != r.FiveTuple.DstIP.BitLen() {
		return fmt.Errorf("%w: mixed address families %s and %s", ErrMalformedRecord, r.FiveTuple.SrcIP, r.FiveTuple.DstIP)
	}
	return nil
}
