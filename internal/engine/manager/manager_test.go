package manager

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/model"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	mu       sync.Mutex
	batches  []*model.FeatureBatch
	interval time.Duration
	closed   bool
}

func (w *recordingWriter) Write(b *model.FeatureBatch, _ string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, b)
	return nil
}

func (w *recordingWriter) GetInterval() time.Duration { return w.interval }

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func testConfig(t *testing.T, exportClosed bool) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(`
extractor:
  profiles:
    - name: live
      features: [Flow_ID, Tot_Fwd_Pkts, Tot_Bwd_Pkts, Label]
      label: benign
engine:
  num_workers: 3
  size_of_packet_channel: 30
`))
	require.NoError(t, err)
	cfg.Extractor.ExportClosedFlows = exportClosed
	return cfg
}

func packet(src, dst string, sport, dport uint16, ts int64, flags model.TCPFlags) *model.PacketRecord {
	return &model.PacketRecord{
		FiveTuple: model.FiveTuple{
			SrcIP: netip.MustParseAddr(src), DstIP: netip.MustParseAddr(dst),
			SrcPort: sport, DstPort: dport, Protocol: model.ProtocolTCP,
		},
		Timestamp:    ts,
		PayloadBytes: 10,
		HeaderBytes:  20,
		Flags:        flags,
	}
}

func TestManagerFinalSnapshot(t *testing.T) {
	w := &recordingWriter{interval: time.Hour}
	m, err := NewWithWriters(testConfig(t, false), []model.Writer{w})
	require.NoError(t, err)
	m.Start()

	m.Input(packet("10.0.0.1", "10.0.0.2", 40000, 80, 1000000, model.FlagSYN))
	m.Input(packet("10.0.0.2", "10.0.0.1", 80, 40000, 1000100, model.FlagACK))
	m.Input(packet("10.0.0.1", "10.0.0.2", 40000, 80, 1000200, model.FlagACK))
	// single-packet flow, not exported
	m.Input(packet("10.0.0.3", "10.0.0.4", 40001, 443, 1000300, model.FlagSYN))
	m.Input(&model.PacketRecord{Timestamp: 1})
	m.Stop()

	require.Len(t, w.batches, 1)
	b := w.batches[0]
	assert.Equal(t, "live", b.Profile)
	assert.Equal(t, []string{"Flow_ID", "Tot_Fwd_Pkts", "Tot_Bwd_Pkts", "Label"}, b.Keys)
	assert.Equal(t, []bool{false, true, true, false}, b.Numeric)
	require.Len(t, b.Rows, 1)
	assert.Equal(t, []string{"10.0.0.1-10.0.0.2-40000-80-6", "2", "1", "benign"}, b.Rows[0])
	assert.Equal(t, []interface{}{"10.0.0.1-10.0.0.2-40000-80-6", 2.0, 1.0, "benign"}, b.Values[0])
	assert.True(t, w.closed)

	st := m.Stats()
	assert.EqualValues(t, 4, st.Processed)
	assert.EqualValues(t, 1, st.Rejected)
	assert.Equal(t, 2, st.ActiveFlows)
	assert.EqualValues(t, 1000300, st.NewestTS)
}

func TestManagerExportsClosedFlows(t *testing.T) {
	a := &recordingWriter{interval: time.Hour}
	b := &recordingWriter{interval: time.Hour}
	m, err := NewWithWriters(testConfig(t, true), []model.Writer{a, b})
	require.NoError(t, err)
	m.Start()

	m.Input(packet("10.0.0.5", "10.0.0.6", 41000, 443, 2000000, model.FlagSYN))
	m.Input(packet("10.0.0.6", "10.0.0.5", 443, 41000, 2000100, model.FlagFIN|model.FlagACK))
	m.Stop()

	for _, w := range []*recordingWriter{a, b} {
		require.Len(t, w.batches, 1)
		require.Len(t, w.batches[0].Rows, 1, "each writer receives the closed flow once")
		assert.Equal(t, []string{"10.0.0.5-10.0.0.6-41000-443-6", "1", "1", "benign"}, w.batches[0].Rows[0])
	}
	assert.EqualValues(t, 1, m.Stats().Closed)
	assert.Zero(t, m.Stats().ActiveFlows)
}

func TestUnknownEngineProfile(t *testing.T) {
	cfg := testConfig(t, false)
	cfg.Engine.Profile = "missing"
	_, err := NewWithWriters(cfg, nil)
	assert.Error(t, err)
}
