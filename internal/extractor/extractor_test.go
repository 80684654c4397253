package extractor

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/pkg/pcap"
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCapture(t *testing.T, dir string) string {
	t.Helper()
	start := time.Unix(1700000000, 0)
	sessions := []pcap.Session{
		{
			Client: netip.MustParseAddr("10.0.0.1"), Server: netip.MustParseAddr("10.0.0.2"),
			ClientPort: 40000, ServerPort: 80, Start: start, Gap: time.Millisecond,
			Payloads: []int{0, 0, 100, -200},
		},
		{
			Client: netip.MustParseAddr("10.0.0.3"), Server: netip.MustParseAddr("10.0.0.4"),
			ClientPort: 5353, ServerPort: 53, UDP: true, Start: start.Add(time.Microsecond),
			Payloads: []int{30},
		},
		{
			Client: netip.MustParseAddr("10.0.0.5"), Server: netip.MustParseAddr("10.0.0.6"),
			ClientPort: 41000, ServerPort: 443, Start: start.Add(2 * time.Microsecond), Gap: time.Millisecond,
			Payloads: []int{10, -10, 0}, Fin: true,
		},
	}
	var frames []pcap.Frame
	for _, s := range sessions {
		fs, err := s.Frames()
		require.NoError(t, err)
		frames = append(frames, fs...)
	}
	sort.SliceStable(frames, func(i, j int) bool { return frames[i].Timestamp.Before(frames[j].Timestamp) })

	path := filepath.Join(dir, "capture.pcap")
	require.NoError(t, pcap.WriteFile(path, frames))
	return path
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\r\n"), "\n")
}

func testConfig(dir string, exportClosed bool) config.ExtractorConfig {
	cfg, _ := config.Parse([]byte("{}"))
	ex := cfg.Extractor
	ex.ExportClosedFlows = exportClosed
	ex.Profiles = []config.ProfileDef{
		{Name: "cic", OutputDir: filepath.Join(dir, "cic"), Features: []string{"all"}},
		{Name: "small", OutputDir: filepath.Join(dir, "small"), Features: []string{"Flow_ID", "Tot_Fwd_Pkts", "Tot_Bwd_Pkts", "Label"}, Label: "benign"},
	}
	return ex
}

func TestRunWritesOneFilePerProfile(t *testing.T) {
	dir := t.TempDir()
	capture := writeCapture(t, dir)

	ex, err := New(testConfig(dir, false))
	require.NoError(t, err)
	results, err := ex.Run(context.Background(), capture)
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, r := range results {
		assert.Equal(t, 1, r.Rows, r.Profile)
		assert.Zero(t, r.Closed)
		assert.EqualValues(t, 8, r.Stats.Total)
		assert.EqualValues(t, 8, r.Stats.Valid)
		assert.True(t, strings.HasSuffix(r.Path, ".csv"))
	}

	lines := readLines(t, results[1].Path)
	require.Len(t, lines, 2)
	assert.Equal(t, "Flow ID,Tot Fwd Pkts,Tot Bwd Pkts,Label", strings.TrimSpace(lines[0]))
	assert.Equal(t, "10.0.0.1-10.0.0.2-40000-80-6,3,1,benign", strings.TrimSpace(lines[1]))

	full := readLines(t, results[0].Path)
	require.Len(t, full, 2)
	assert.Len(t, strings.Split(full[0], ","), 85)
	assert.Len(t, strings.Split(full[1], ","), 85)
}

func TestRunExportsClosedFlows(t *testing.T) {
	dir := t.TempDir()
	capture := writeCapture(t, dir)

	ex, err := New(testConfig(dir, true))
	require.NoError(t, err)
	results, err := ex.Run(context.Background(), capture)
	require.NoError(t, err)

	small := results[1]
	assert.Equal(t, 1, small.Rows)
	assert.Equal(t, 1, small.Closed)
	lines := readLines(t, small.Path)
	require.Len(t, lines, 3)
	assert.Equal(t, "10.0.0.5-10.0.0.6-41000-443-6,2,1,benign", strings.TrimSpace(lines[2]))
}

func TestRunCancelled(t *testing.T) {
	dir := t.TempDir()
	capture := writeCapture(t, dir)

	ex, err := New(testConfig(dir, false))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = ex.Run(ctx, capture)
	assert.ErrorIs(t, err, context.Canceled)
	for _, p := range ex.Profiles() {
		entries, _ := os.ReadDir(p.Def.OutputDir)
		assert.Empty(t, entries, p.Def.Name)
	}
}

func TestNewRejectsUnknownFeature(t *testing.T) {
	cfg := testConfig(t.TempDir(), false)
	cfg.Profiles[0].Features = []string{"Not_A_Feature"}
	_, err := New(cfg)
	assert.Error(t, err)

	_, err = New(config.ExtractorConfig{})
	assert.Error(t, err)
}

func TestRunMissingFile(t *testing.T) {
	ex, err := New(testConfig(t.TempDir(), false))
	require.NoError(t, err)
	_, err = ex.Run(context.Background(), filepath.Join(t.TempDir(), "missing.pcap"))
	assert.Error(t, err)
}
