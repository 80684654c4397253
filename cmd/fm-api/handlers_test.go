package main

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/query"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuerier struct {
	traced string
}

func (f *fakeQuerier) Summaries(ctx context.Context, profile string, end *time.Time) ([]query.ProfileSummary, error) {
	return []query.ProfileSummary{{Profile: "cic", Snapshots: 2, Rows: 10, LastSnapshot: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}}, nil
}

func (f *fakeQuerier) LatestRows(ctx context.Context, profile string, limit int) ([]map[string]interface{}, error) {
	return []map[string]interface{}{{"Flow_ID": "a", "Tot_Fwd_Pkts": 3.0}}, nil
}

func (f *fakeQuerier) TraceFlow(ctx context.Context, profile, flowID string, end *time.Time) ([]map[string]interface{}, error) {
	f.traced = flowID
	return []map[string]interface{}{{"SnapshotTime": time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "Flow_ID": flowID}}, nil
}

func (f *fakeQuerier) Close() error { return nil }

func router(t *testing.T, q query.Querier) *mux.Router {
	t.Helper()
	cfg, err := config.Parse([]byte(`
extractor:
  profiles:
    - name: cic
      features: [Flow_ID, Label]
`))
	require.NoError(t, err)
	r := mux.NewRouter()
	(&APIHandler{querier: q, cfg: cfg}).register(r)
	return r
}

func get(r http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	var out map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestCatalogueEndpoints(t *testing.T) {
	r := router(t, nil)

	rec, out := get(r, http.MethodGet, "/api/v1/features", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := out["features"].([]interface{})
	assert.Equal(t, "Flow_ID", list[0].(map[string]interface{})["key"])

	_, out = get(r, http.MethodGet, "/api/v1/profiles", "")
	p := out["profiles"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "cic", p["name"])
	assert.Equal(t, true, p["engine"])

	_, out = get(r, http.MethodGet, "/api/v1/health", "")
	assert.Equal(t, "unknown", out["engine"])

	rec, _ = get(r, http.MethodGet, "/api/v1/summaries", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestQueryEndpoints(t *testing.T) {
	q := &fakeQuerier{}
	r := router(t, q)

	_, out := get(r, http.MethodGet, "/api/v1/summaries", "")
	s := out["summaries"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "2024-01-01T00:00:00Z", s["last_snapshot"])
	assert.EqualValues(t, 10, s["rows"])

	_, out = get(r, http.MethodGet, "/api/v1/flows/latest?limit=5", "")
	assert.Equal(t, "cic", out["profile"])
	assert.Len(t, out["rows"], 1)

	rec, out := get(r, http.MethodPost, "/api/v1/flows/trace", `{"flow_id": "x-y"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "x-y", q.traced)
	row := out["rows"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "2024-01-01T00:00:00Z", row["SnapshotTime"])

	rec, _ = get(r, http.MethodPost, "/api/v1/flows/trace", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = get(r, http.MethodGet, "/api/v1/summaries?end=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
