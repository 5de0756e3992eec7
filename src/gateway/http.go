package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/square-key-labs/agentgateway/src/health"
	"github.com/square-key-labs/agentgateway/src/router"
)

// providerKeys lists every (capability, name) pair the gateway can
// select a provider for (spec §4.6), used by the health portion of
// /healthz.
var providerKeys = []health.Key{
	{Capability: "stt", Name: "deepgram"},
	{Capability: "llm", Name: "gemini"},
	{Capability: "llm", Name: "anthropic"},
	{Capability: "llm", Name: "openai"},
	{Capability: "tts", Name: "elevenlabs"},
	{Capability: "tts", Name: "openai"},
}

// registerSidecar wires the diagnostics endpoints of spec §6 alongside
// /agent on the same mux and port.
func (s *Server) registerSidecar(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/flag-status", s.handleFlagStatus)
	mux.HandleFunc("/router/preview", s.handleRouterPreview)
	mux.HandleFunc("/debug/connectivity", s.handleDebugConnectivity)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type healthzResponse struct {
	Status    string                     `json:"status"`
	Providers map[string]providerHealth  `json:"providers"`
}

type providerHealth struct {
	Capability string `json:"capability"`
	Name       string `json:"name"`
	Status     string `json:"status"`
}

// handleHealthz reports overall liveness plus each registered provider's
// cached health status, without forcing a fresh probe (spec §6: "returns
// 200 with health JSON").
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthzResponse{Status: "ok", Providers: make(map[string]providerHealth, len(providerKeys))}
	for _, key := range providerKeys {
		rec := s.healthSt.Snapshot(key)
		resp.Providers[key.Capability+"/"+key.Name] = providerHealth{
			Capability: key.Capability,
			Name:       key.Name,
			Status:     rec.Status.String(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type metricsResponse struct {
	ActiveConnections int                `json:"active_connections"`
	TotalConnections  int                `json:"total_connections_seen"`
	TurnLatencyAvgMS  map[string]float64 `json:"turn_latency_avg_ms"`
}

// handleMetrics reports the number of active connections and the rolling
// per-turn latency averages. No running total of connections is kept:
// total_connections_seen is never filled in and always reads 0. Current
// provider names are not reported.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	resp := metricsResponse{
		ActiveConnections: s.pool.Len(),
		TurnLatencyAvgMS:  s.latency.Averages(),
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleFlagStatus reports the resolved feature-flag surface (spec §6
// FeaturesConfig), so operators can confirm what a running process
// actually loaded without reading its environment directly.
func (s *Server) handleFlagStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Features)
}

// handleRouterPreview runs Router.Select for the given criteria and
// returns its reasons without any session side effects (spec §6:
// "returns router decision reasons without side effects").
func (s *Server) handleRouterPreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := router.Criteria{
		Tier:       router.Tier(q.Get("tier")),
		Complexity: router.Complexity(q.Get("complexity")),
	}
	if raw := q.Get("budgetUSD"); raw != "" {
		if budget, err := strconv.ParseFloat(raw, 64); err == nil {
			criteria.BudgetUSD = &budget
		}
	}
	if criteria.Tier == "" {
		criteria.Tier = router.TierFree
	}
	if criteria.Complexity == "" {
		criteria.Complexity = router.ComplexitySimple
	}

	plan, err := s.routr.Select(r.Context(), criteria)
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

type connectivityResult struct {
	DNS   string `json:"dns"`
	HTTPS string `json:"https"`
}

// handleDebugConnectivity runs a DNS lookup and an HTTPS HEAD probe
// against each provider's host (spec §6: "runs DNS+HTTPS probes"). The
// hosts are a fixed list in this handler; the health store is not
// consulted.
func (s *Server) handleDebugConnectivity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	hosts := map[string]string{
		"deepgram":   "api.deepgram.com",
		"gemini":     "generativelanguage.googleapis.com",
		"anthropic":  "api.anthropic.com",
		"openai":     "api.openai.com",
		"elevenlabs": "api.elevenlabs.io",
	}

	results := make(map[string]connectivityResult, len(hosts))
	client := &http.Client{Timeout: 5 * time.Second}
	for name, host := range hosts {
		res := connectivityResult{DNS: "ok", HTTPS: "ok"}
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			res.DNS = err.Error()
			res.HTTPS = "skipped"
			results[name] = res
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, "https://"+host, nil)
		if err != nil {
			res.HTTPS = err.Error()
			results[name] = res
			continue
		}
		resp, err := client.Do(req)
		if err != nil {
			res.HTTPS = err.Error()
			results[name] = res
			continue
		}
		resp.Body.Close()
		results[name] = res
	}
	writeJSON(w, http.StatusOK, results)
}
