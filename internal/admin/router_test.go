package admin

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/engine/manager"
	"Go2FlowMeter/internal/model"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *manager.Manager {
	t.Helper()
	cfg, err := config.Parse([]byte(`
extractor:
  profiles:
    - name: live
      features: [Flow_ID, Tot_Fwd_Pkts, Label]
engine:
  num_workers: 1
`))
	require.NoError(t, err)
	m, err := manager.NewWithWriters(cfg, nil)
	require.NoError(t, err)
	m.Start()

	ft := model.FiveTuple{
		SrcIP: netip.MustParseAddr("10.0.0.1"), DstIP: netip.MustParseAddr("10.0.0.2"),
		SrcPort: 40000, DstPort: 80, Protocol: model.ProtocolTCP,
	}
	for i := int64(0); i < 3; i++ {
		m.Input(&model.PacketRecord{FiveTuple: ft, Timestamp: 1000 + i, PayloadBytes: 10, HeaderBytes: 20})
	}
	// Stop drains the workers; the table stays readable afterwards.
	m.Stop()
	return m
}

func TestFlowsAndStats(t *testing.T) {
	r := NewRouter(newManager(t))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/flows", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var flows FlowsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &flows))
	assert.Equal(t, "live", flows.Profile)
	assert.Equal(t, []string{"Flow ID", "Tot Fwd Pkts", "Label"}, flows.Header)
	require.Len(t, flows.Rows, 1)
	assert.Equal(t, "3", flows.Rows[0][1])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/flows?limit=0", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &flows))
	assert.Equal(t, 1, flows.Total)
	assert.Empty(t, flows.Rows)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/flows?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	var st manager.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.EqualValues(t, 3, st.Processed)
	assert.Equal(t, 1, st.ActiveFlows)
}

func TestMetricsEndpoint(t *testing.T) {
	r := NewRouter(newManager(t))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "flowmeter_packets_processed_total"))
}
