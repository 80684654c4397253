package pcap

import (
	"Go2FlowMeter/internal/engine/protocol"
	"Go2FlowMeter/internal/model"
	"context"
	"net"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func arpFrame(t *testing.T) []byte {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: clientMAC, DstMAC: layers.EthernetBroadcast, EthernetType: layers.EthernetTypeARP}
	arp := &layers.ARP{
		AddrType: layers.LinkTypeEthernet, Protocol: layers.EthernetTypeIPv4,
		HwAddressSize: 6, ProtAddressSize: 4, Operation: layers.ARPRequest,
		SourceHwAddress: clientMAC, SourceProtAddress: net.IP{10, 0, 0, 1},
		DstHwAddress: net.HardwareAddr{0, 0, 0, 0, 0, 0}, DstProtAddress: net.IP{10, 0, 0, 2},
	}
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, arp))
	return buf.Bytes()
}

func TestReader_ReadPackets(t *testing.T) {
	start := time.Unix(1700000000, 0)
	frames, err := Session{
		Client: netip.MustParseAddr("10.0.0.1"), Server: netip.MustParseAddr("10.0.0.2"),
		ClientPort: 40000, ServerPort: 80,
		Start: start, Gap: time.Millisecond,
		Payloads: []int{0, -0, 100, -200},
	}.Frames()
	require.NoError(t, err)
	frames = append(frames, Frame{Timestamp: start.Add(time.Second), Data: arpFrame(t)})

	path := filepath.Join(t.TempDir(), "test.pcap")
	require.NoError(t, WriteFile(path, frames))

	reader, err := NewReader(path, protocol.NewParser(true, true))
	require.NoError(t, err)
	defer reader.Close()

	out := make(chan *model.PacketRecord)
	done := make(chan Stats)
	go func() { done <- reader.ReadPackets(out) }()

	var recs []*model.PacketRecord
	for rec := range out {
		recs = append(recs, rec)
	}
	stats := <-done

	require.Len(t, recs, 4)
	assert.Equal(t, Stats{Total: 5, Valid: 4, Discarded: 1, First: start.UnixMicro(), Last: start.Add(3 * time.Millisecond).UnixMicro()}, stats)
	assert.EqualValues(t, 1, recs[0].ID)
	assert.True(t, recs[0].HasFlag(model.FlagSYN))
	assert.EqualValues(t, 100, recs[2].PayloadBytes)
	assert.Equal(t, netip.MustParseAddr("10.0.0.2"), recs[3].FiveTuple.SrcIP)
}

func TestReader_StopsOnCancel(t *testing.T) {
	frames, err := Session{
		Client: netip.MustParseAddr("10.0.0.1"), Server: netip.MustParseAddr("10.0.0.2"),
		ClientPort: 40000, ServerPort: 80,
		Start: time.Unix(1700000000, 0), Gap: time.Millisecond,
		Payloads: []int{10, -10, 10, -10, 10, -10},
	}.Frames()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "cancel.pcap")
	require.NoError(t, WriteFile(path, frames))

	reader, err := NewReader(path, protocol.NewParser(true, true))
	require.NoError(t, err)
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan *model.PacketRecord)
	done := make(chan Stats)
	go func() { done <- reader.ReadPacketsContext(ctx, out) }()

	first, ok := <-out
	require.True(t, ok)
	assert.EqualValues(t, 1, first.ID)
	cancel()

	var rest int
	for range out {
		rest++
	}
	stats := <-done
	assert.LessOrEqual(t, rest, 1)
	assert.Less(t, stats.Total, int64(len(frames)))
}

func TestIsCapture(t *testing.T) {
	dir := t.TempDir()
	capture := filepath.Join(dir, "a.pcap")
	require.NoError(t, WriteFile(capture, nil))
	assert.True(t, IsCapture(capture))

	text := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(text, []byte("not a capture"), 0644))
	assert.False(t, IsCapture(text))
	assert.False(t, IsCapture(filepath.Join(dir, "missing")))

	_, err := NewReader(text, protocol.NewParser(true, true))
	assert.Error(t, err)
}
