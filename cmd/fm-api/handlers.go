package main

import (
	"Go2FlowMeter/internal/config"
	"Go2FlowMeter/internal/features"
	"Go2FlowMeter/internal/query"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// engineHealthService must match the service name fm-engine registers.
const engineHealthService = "flowmeter.engine"

// APIHandler holds the dependencies for API handlers.
type APIHandler struct {
	querier query.Querier
	cfg     *config.Config
	engine  grpc.ClientConnInterface
}

func (h *APIHandler) register(r *mux.Router) {
	r.HandleFunc("/api/v1/features", h.featuresHandler).Methods("GET")
	r.HandleFunc("/api/v1/profiles", h.profilesHandler).Methods("GET")
	r.HandleFunc("/api/v1/summaries", h.summariesHandler).Methods("GET")
	r.HandleFunc("/api/v1/flows/latest", h.latestHandler).Methods("GET")
	r.HandleFunc("/api/v1/flows/trace", h.traceFlowHandler).Methods("POST")
	r.HandleFunc("/api/v1/health", h.healthHandler).Methods("GET")
}

// featuresHandler lists the feature catalogue.
func (h *APIHandler) featuresHandler(w http.ResponseWriter, r *http.Request) {
	list := make([]interface{}, 0)
	for _, f := range features.All() {
		list = append(list, map[string]interface{}{
			"key":     f.Key,
			"name":    f.Name,
			"abbr":    f.Abbr,
			"numeric": f.Numeric,
		})
	}
	h.respond(w, map[string]interface{}{"features": list})
}

// profilesHandler lists the configured extraction profiles.
func (h *APIHandler) profilesHandler(w http.ResponseWriter, r *http.Request) {
	list := make([]interface{}, 0, len(h.cfg.Extractor.Profiles))
	for _, p := range h.cfg.Extractor.Profiles {
		keys := make([]interface{}, len(p.Features))
		for i, k := range p.Features {
			keys[i] = k
		}
		list = append(list, map[string]interface{}{
			"name":       p.Name,
			"output_dir": p.OutputDir,
			"label":      p.Label,
			"features":   keys,
			"engine":     p.Name == h.cfg.Engine.Profile,
		})
	}
	h.respond(w, map[string]interface{}{"profiles": list})
}

func (h *APIHandler) summariesHandler(w http.ResponseWriter, r *http.Request) {
	if !h.hasQuerier(w) {
		return
	}
	end, err := parseEnd(r.URL.Query().Get("end"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	summaries, err := h.querier.Summaries(r.Context(), r.URL.Query().Get("profile"), end)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query summaries: %v", err), http.StatusInternalServerError)
		return
	}
	list := make([]interface{}, 0, len(summaries))
	for _, s := range summaries {
		list = append(list, map[string]interface{}{
			"profile":       s.Profile,
			"snapshots":     s.Snapshots,
			"rows":          s.Rows,
			"last_snapshot": s.LastSnapshot.Format(time.RFC3339),
		})
	}
	h.respond(w, map[string]interface{}{"summaries": list})
}

func (h *APIHandler) latestHandler(w http.ResponseWriter, r *http.Request) {
	if !h.hasQuerier(w) {
		return
	}
	profile := r.URL.Query().Get("profile")
	if profile == "" {
		profile = h.cfg.Engine.Profile
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	rows, err := h.querier.LatestRows(r.Context(), profile, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to query rows: %v", err), http.StatusInternalServerError)
		return
	}
	h.respond(w, map[string]interface{}{"profile": profile, "rows": rowList(rows)})
}

// traceFlowHandler returns every stored snapshot row of one flow. The body is
// {"profile": "...", "flow_id": "...", "end_time": "RFC3339"}.
func (h *APIHandler) traceFlowHandler(w http.ResponseWriter, r *http.Request) {
	if !h.hasQuerier(w) {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read request body: %v", err), http.StatusBadRequest)
		return
	}
	var req structpb.Struct
	if err := protojson.Unmarshal(body, &req); err != nil {
		http.Error(w, fmt.Sprintf("failed to decode request: %v", err), http.StatusBadRequest)
		return
	}
	profile := req.Fields["profile"].GetStringValue()
	if profile == "" {
		profile = h.cfg.Engine.Profile
	}
	flowID := req.Fields["flow_id"].GetStringValue()
	if flowID == "" {
		http.Error(w, "flow_id is required", http.StatusBadRequest)
		return
	}
	end, err := parseEnd(req.Fields["end_time"].GetStringValue())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rows, err := h.querier.TraceFlow(r.Context(), profile, flowID, end)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to trace flow: %v", err), http.StatusInternalServerError)
		return
	}
	h.respond(w, map[string]interface{}{"profile": profile, "flow_id": flowID, "rows": rowList(rows)})
}

// healthHandler asks the engine's gRPC health service for its status.
func (h *APIHandler) healthHandler(w http.ResponseWriter, r *http.Request) {
	out := map[string]interface{}{"api": "ok", "engine": "unknown"}
	if h.engine != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		resp, err := healthpb.NewHealthClient(h.engine).Check(ctx, &healthpb.HealthCheckRequest{Service: engineHealthService})
		if err != nil {
			out["engine"] = "unreachable"
			out["error"] = err.Error()
		} else {
			out["engine"] = resp.GetStatus().String()
		}
	}
	h.respond(w, out)
}

func (h *APIHandler) hasQuerier(w http.ResponseWriter) bool {
	if h.querier == nil {
		http.Error(w, "row storage is not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// respond encodes v as a protobuf Struct in its JSON form.
func (h *APIHandler) respond(w http.ResponseWriter, v map[string]interface{}) {
	s, err := structpb.NewStruct(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to build response: %v", err), http.StatusInternalServerError)
		return
	}
	jsonBytes, err := protojson.Marshal(s)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(jsonBytes); err != nil {
		log.Debugf("Failed to write response: %v", err)
	}
}

func parseEnd(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("invalid end time %q: %w", v, err)
	}
	return &t, nil
}

// rowList converts query rows into values structpb accepts.
func rowList(rows []map[string]interface{}) []interface{} {
	out := make([]interface{}, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]interface{}, len(row))
		for k, v := range row {
			m[k] = plain(v)
		}
		out = append(out, m)
	}
	return out
}

func plain(v interface{}) interface{} {
	switch x := v.(type) {
	case time.Time:
		return x.Format(time.RFC3339)
	case *time.Time:
		if x == nil {
			return nil
		}
		return x.Format(time.RFC3339)
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *float64:
		if x == nil {
			return nil
		}
		return *x
	case nil, bool, string, float32, float64, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return x
	default:
		return fmt.Sprint(x)
	}
}
