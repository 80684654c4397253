package admin

import (
	"Go2FlowMeter/internal/engine/manager"
	"Go2FlowMeter/internal/metrics"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// FlowsResponse is the body of GET /api/v1/flows.
type FlowsResponse struct {
	Profile string     `json:"profile"`
	Header  []string   `json:"header"`
	Total   int        `json:"total"`
	Rows    [][]string `json:"rows"`
}

// Handler serves the engine admin endpoints.
type Handler struct {
	mgr *manager.Manager
}

// NewRouter registers the admin routes for mgr.
func NewRouter(mgr *manager.Manager) *mux.Router {
	h := &Handler{mgr: mgr}
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods("GET")
	r.HandleFunc("/api/v1/stats", h.statsHandler).Methods("GET")
	r.HandleFunc("/api/v1/flows", h.flowsHandler).Methods("GET")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	return r
}

func (h *Handler) statsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.mgr.Stats())
}

// flowsHandler renders the exportable flows in the engine profile layout.
// The optional limit query parameter caps the number of rows.
func (h *Handler) flowsHandler(w http.ResponseWriter, r *http.Request) {
	limit := -1
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	schema := h.mgr.Schema()
	flows := h.mgr.Table().Exportable()
	resp := FlowsResponse{Profile: schema.Name(), Header: schema.Names(), Total: len(flows), Rows: [][]string{}}
	for _, f := range flows {
		if limit >= 0 && len(resp.Rows) >= limit {
			break
		}
		resp.Rows = append(resp.Rows, f.ToRow(schema))
	}
	writeJSON(w, resp)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
