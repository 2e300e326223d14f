package handler

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/labstack/echo/v4"

	"nookipedia-gateway/internal/journal"
	"nookipedia-gateway/internal/metrics"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	cfg := testConfig(upstream.URL)
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"
	m := metrics.New(cfg.Nookipedia.Mount)

	deps := handlerDeps{cfg: cfg, key: staticKey("test-key"), metrics: m}
	proxy := newTestProxyHandler(deps)
	health := NewHealthHandler(cfg, deps.key, "test")
	journalH := NewJournalHandler(journal.Nop{}, cfg)

	e := echo.New()
	RegisterRoutes(e, cfg, m, proxy, health, journalH)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"GET /healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"GET /proxy/status", http.MethodGet, "/proxy/status", http.StatusOK},
		{"GET /proxy/journal disabled", http.MethodGet, "/proxy/journal", http.StatusNotFound},
		{"GET /metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"GET mount", http.MethodGet, "/nookipedia/villagers?name=Tom%20Nook", http.StatusOK},
		{"GET nested mount", http.MethodGet, "/nookipedia/nh/fish/sea_bass", http.StatusOK},
		{"GET encoded slash", http.MethodGet, "/nookipedia/nh/art/a%2Fb", http.StatusOK},
		{"POST mount is accepted", http.MethodPost, "/nookipedia/villagers", http.StatusOK},
		{"GET /unknown returns 404", http.MethodGet, "/unknown", http.StatusNotFound},
		{"GET mount lookalike returns 404", http.MethodGet, "/nookipediax/villagers", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_MetricsDisabled(t *testing.T) {
	cfg := testConfig("https://api.nookipedia.com")
	m := metrics.New(cfg.Nookipedia.Mount)

	deps := handlerDeps{cfg: cfg, key: staticKey("")}
	e := echo.New()
	RegisterRoutes(e, cfg, m, newTestProxyHandler(deps), NewHealthHandler(cfg, deps.key, "test"), NewJournalHandler(journal.Nop{}, cfg))

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRegisterRoutes_CustomMount(t *testing.T) {
	var gotURI atomic.Value
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURI.Store(r.RequestURI)
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	cfg := testConfig(upstream.URL)
	cfg.Nookipedia.Mount = "/api/acnh"
	m := metrics.New(cfg.Nookipedia.Mount)

	deps := handlerDeps{cfg: cfg, key: staticKey("k")}
	e := echo.New()
	RegisterRoutes(e, cfg, m, newTestProxyHandler(deps), NewHealthHandler(cfg, deps.key, "test"), NewJournalHandler(journal.Nop{}, cfg))

	req := httptest.NewRequest(http.MethodGet, "/api/acnh/nh/bugs?month=5", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := gotURI.Load(); got != "/nh/bugs?month=5" {
		t.Errorf("upstream request target = %v, want %q", got, "/nh/bugs?month=5")
	}
}
