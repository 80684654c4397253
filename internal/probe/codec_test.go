package probe

import (
	"Go2FlowMeter/internal/model"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func TestCodec(t *testing.T) {
	rec := &model.PacketRecord{
		ID: 7,
		FiveTuple: model.FiveTuple{
			SrcIP: netip.MustParseAddr("2001:db8::1"), DstIP: netip.MustParseAddr("2001:db8::2"),
			SrcPort: 443, DstPort: 50000, Protocol: model.ProtocolTCP,
		},
		Timestamp:    1700000000123456,
		PayloadBytes: 1200,
		HeaderBytes:  32,
		TCPWindow:    65535,
		Flags:        model.FlagACK | model.FlagPSH,
	}
	b, err := Marshal(rec)
	require.NoError(t, err)

	got, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestUnmarshalSkipsUnknownFields(t *testing.T) {
	rec := &model.PacketRecord{FiveTuple: model.FiveTuple{
		SrcIP: netip.MustParseAddr("10.0.0.1"), DstIP: netip.MustParseAddr("10.0.0.2"), Protocol: model.ProtocolUDP,
	}}
	b, err := Marshal(rec)
	require.NoError(t, err)
	b = protowire.AppendTag(b, 99, protowire.BytesType)
	b = protowire.AppendString(b, "future")

	got, err := Unmarshal(b)
	require.NoError(t, err)
	assert.Equal(t, rec.FiveTuple, got.FiveTuple)
}

func TestUnmarshalRejectsBadInput(t *testing.T) {
	_, err := Unmarshal([]byte{0x0a, 0x03, 1, 2, 3})
	assert.ErrorIs(t, err, model.ErrMalformedRecord)

	_, err = Unmarshal([]byte{0x0a})
	assert.ErrorIs(t, err, model.ErrMalformedRecord)

	// no addresses at all
	_, err = Unmarshal(nil)
	assert.ErrorIs(t, err, model.ErrMalformedRecord)

	_, err = Marshal(&model.PacketRecord{})
	assert.ErrorIs(t, err, model.ErrMalformedRecord)
}
