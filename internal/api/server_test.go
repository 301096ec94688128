package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"stock-prediction-api/config"
	"stock-prediction-api/internal/auth"
)

func newAuthedServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwt := auth.NewJWTManager("test-secret", time.Hour, 24*time.Hour)
	deps := Deps{
		Auth: auth.NewHandlers(nil, jwt, 8, zerolog.Nop()),
		JWT:  jwt,
	}
	return NewServer(&config.Config{}, deps, zerolog.Nop())
}

func TestAuthRoutesMountedUnderAPIAuth(t *testing.T) {
	s := newAuthedServer(t)

	routes := map[string]bool{}
	for _, r := range s.Router().Routes() {
		routes[r.Method+" "+r.Path] = true
	}

	for _, want := range []string{
		"POST /api/auth/register",
		"POST /api/auth/login",
		"POST /api/auth/refresh",
		"GET /api/auth/me",
	} {
		if !routes[want] {
			t.Errorf("route %s not registered", want)
		}
	}

	for route := range routes {
		if strings.Contains(route, "/auth/auth/") {
			t.Errorf("auth group mounted twice: %s", route)
		}
	}
}

func TestRegisterEndpointRouted(t *testing.T) {
	s := newAuthedServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code == http.StatusNotFound {
		t.Fatal("register endpoint is not routed")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty register body should be rejected with 400, got %d", w.Code)
	}
}

func TestPredictDefaultPeriodComesFromConfig(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// An unknown configured default must be rejected by period validation,
	// proving the handler reads the config rather than a literal.
	cfg := &config.Config{}
	cfg.MarketDataConfig.DefaultPeriod = "2wk"
	s := NewServer(cfg, Deps{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/api/predict?symbol=AAPL", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for the configured period, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "invalid_period") {
		t.Errorf("expected invalid_period error, got %s", w.Body.String())
	}
}

func TestUnknownRouteReturnsJSON404(t *testing.T) {
	s := newAuthedServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/nope", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "not_found") {
		t.Errorf("404 body should carry the error kind: %s", w.Body.String())
	}
}
