package flow

import (
	"Go2FlowMeter/internal/model"
	"strconv"
	"strings"
)

// ForwardID returns "srcIP-dstIP-srcPort-dstPort-protocol" for the tuple as seen on the wire.
func ForwardID(ft model.FiveTuple) string {
	return joinKey(ft)
}

// BackwardID returns the key of the same conversation seen from the other endpoint.
func BackwardID(ft model.FiveTuple) string {
	return joinKey(ft.Reverse())
}

// CanonicalID returns one key for both directions: the endpoint with the lower
// address is written first, ports break ties. CanonicalID(ft) == CanonicalID(ft.Reverse()).
func CanonicalID(ft model.FiveTuple) string {
	switch c := ft.SrcIP.Compare(ft.DstIP); {
	case c > 0, c == 0 && ft.SrcPort > ft.DstPort:
		return joinKey(ft.Reverse())
	}
	return joinKey(ft)
}

func joinKey(ft model.FiveTuple) string {
	parts := []string{
		ft.SrcIP.String(),
		ft.DstIP.String(),
		strconv.Itoa(int(ft.SrcPort)),
		strconv.Itoa(int(ft.DstPort)),
		strconv.Itoa(int(ft.Protocol)),
	}
	return strings.Join(parts, "-")
}
