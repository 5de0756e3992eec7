package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/square-key-labs/agentgateway/src/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.Provider.DeepgramAPIKey = "dg-test-key"
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	srv := newTestServer(t)
	mux := http.NewServeMux()
	srv.registerSidecar(mux)
	return mux
}

func TestHealthzReportsProviderStatuses(t *testing.T) {
	ts := httptest.NewServer(newTestMux(t))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body healthzResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %q", body.Status)
	}
	if _, ok := body.Providers["stt/deepgram"]; !ok {
		t.Fatalf("expected stt/deepgram in providers, got %#v", body.Providers)
	}
}

func TestFlagStatusReportsFeatures(t *testing.T) {
	ts := httptest.NewServer(newTestMux(t))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/flag-status")
	if err != nil {
		t.Fatalf("GET /flag-status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var flags map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&flags); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := flags["ResponseCacheTTLMS"]; !ok {
		t.Fatalf("expected ResponseCacheTTLMS in flag-status, got %#v", flags)
	}
}

func TestRouterPreviewReturnsReasonsWithoutSideEffects(t *testing.T) {
	ts := httptest.NewServer(newTestMux(t))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/router/preview?tier=free&complexity=simple")
	if err != nil {
		t.Fatalf("GET /router/preview: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var plan struct {
		STT struct {
			Chosen  string
			Reasons []string
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if plan.STT.Chosen != "deepgram" {
		t.Fatalf("expected deepgram chosen, got %q", plan.STT.Chosen)
	}
	if len(plan.STT.Reasons) == 0 {
		t.Fatalf("expected non-empty reasons")
	}
}
