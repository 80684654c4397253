package probe

import (
	"Go2FlowMeter/internal/model"
	"fmt"
	"net/netip"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of flowmeter.v1.PacketRecord (api/proto/v1/packet.proto).
const (
	fieldSrcIP     protowire.Number = 1
	fieldDstIP     protowire.Number = 2
	fieldSrcPort   protowire.Number = 3
	fieldDstPort   protowire.Number = 4
	fieldProtocol  protowire.Number = 5
	fieldTimestamp protowire.Number = 6
	fieldPayload   protowire.Number = 7
	fieldHeader    protowire.Number = 8
	fieldWindow    protowire.Number = 9
	fieldFlags     protowire.Number = 10
	fieldID        protowire.Number = 11
)

// Marshal encodes rec in the protobuf wire format.
func Marshal(rec *model.PacketRecord) ([]byte, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	b := make([]byte, 0, 64)
	b = appendBytes(b, fieldSrcIP, rec.FiveTuple.SrcIP.AsSlice())
	b = appendBytes(b, fieldDstIP, rec.FiveTuple.DstIP.AsSlice())
	b = appendVarint(b, fieldSrcPort, uint64(rec.FiveTuple.SrcPort))
	b = appendVarint(b, fieldDstPort, uint64(rec.FiveTuple.DstPort))
	b = appendVarint(b, fieldProtocol, uint64(rec.FiveTuple.Protocol))
	b = appendVarint(b, fieldTimestamp, uint64(rec.Timestamp))
	b = appendVarint(b, fieldPayload, uint64(rec.PayloadBytes))
	b = appendVarint(b, fieldHeader, uint64(rec.HeaderBytes))
	b = appendVarint(b, fieldWindow, uint64(rec.TCPWindow))
	b = appendVarint(b, fieldFlags, uint64(rec.Flags))
	b = appendVarint(b, fieldID, uint64(rec.ID))
	return b, nil
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// appendVarint skips zero values like proto3 does.
func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// Unmarshal decodes a record produced by Marshal. Unknown fields are skipped.
func Unmarshal(b []byte) (*model.PacketRecord, error) {
	rec := &model.PacketRecord{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", model.ErrMalformedRecord, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && (num == fieldSrcIP || num == fieldDstIP):
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", model.ErrMalformedRecord, protowire.ParseError(n))
			}
			addr, ok := netip.AddrFromSlice(v)
			if !ok {
				return nil, fmt.Errorf("%w: address of %d bytes", model.ErrMalformedRecord, len(v))
			}
			if num == fieldSrcIP {
				rec.FiveTuple.SrcIP = addr
			} else {
				rec.FiveTuple.DstIP = addr
			}
			b = b[n:]
		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", model.ErrMalformedRecord, protowire.ParseError(n))
			}
			setVarint(rec, num, v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: %v", model.ErrMalformedRecord, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

func setVarint(rec *model.PacketRecord, num protowire.Number, v uint64) {
	switch num {
	case fieldSrcPort:
		rec.FiveTuple.SrcPort = uint16(v)
	case fieldDstPort:
		rec.FiveTuple.DstPort = uint16(v)
	case fieldProtocol:
		rec.FiveTuple.Protocol = uint8(v)
	case fieldTimestamp:
		rec.Timestamp = int64(v)
	case fieldPayload:
		rec.PayloadBytes = int64(v)
	case fieldHeader:
		rec.HeaderBytes = int64(v)
	case fieldWindow:
		rec.TCPWindow = int(v)
	case fieldFlags:
		rec.Flags = model.TCPFlags(v)
	case fieldID:
		rec.ID = int64(v)
	}
}
