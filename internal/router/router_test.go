package router

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"example.com/devserve/internal/config"
	"example.com/devserve/internal/logger"
	"example.com/devserve/internal/server"
)

// namedHandler writes its name so tests can see which route served a request.
type namedHandler string

func (h namedHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte(h))
}

func newRegistry(t *testing.T, created *int) *server.HandlerRegistry {
	t.Helper()
	registry := server.NewHandlerRegistry()
	for _, name := range []string{"users_api", "static_files", "root_exact", "static_images", "catch_all"} {
		name := name
		err := registry.Register(name, func(cfg *config.Config, lg *logger.Logger) (http.Handler, error) {
			if created != nil {
				*created++
			}
			return namedHandler(name), nil
		})
		if err != nil {
			t.Fatalf("Register(%s) failed: %v", name, err)
		}
	}
	return registry
}

func configWithRoutes(routes ...config.Route) *config.Config {
	return &config.Config{Routing: &config.RoutingConfig{Routes: routes}}
}

var testRoutes = []config.Route{
	{PathPattern: "/api/users", MatchType: config.MatchTypeExact, HandlerType: "users_api"},
	{PathPattern: "/static/", MatchType: config.MatchTypePrefix, HandlerType: "static_files"},
	{PathPattern: "/", MatchType: config.MatchTypeExact, HandlerType: "root_exact"},
	{PathPattern: "/static/images/", MatchType: config.MatchTypePrefix, HandlerType: "static_images"},
}

func TestNewRouter(t *testing.T) {
	lg := logger.NewDiscardLogger()

	t.Run("empty routes", func(t *testing.T) {
		r, err := NewRouter(configWithRoutes(), newRegistry(t, nil), lg)
		if err != nil {
			t.Fatalf("NewRouter failed: %v", err)
		}
		if len(r.exactRoutes) != 0 || len(r.prefixRoutes) != 0 {
			t.Errorf("expected no routes, got %d exact and %d prefix", len(r.exactRoutes), len(r.prefixRoutes))
		}
	})

	t.Run("mixed routes build each handler once", func(t *testing.T) {
		created := 0
		r, err := NewRouter(configWithRoutes(testRoutes...), newRegistry(t, &created), lg)
		if err != nil {
			t.Fatalf("NewRouter failed: %v", err)
		}
		if created != len(testRoutes) {
			t.Errorf("expected %d handler constructions, got %d", len(testRoutes), created)
		}
		if len(r.exactRoutes) != 2 {
			t.Errorf("expected 2 exact routes, got %d", len(r.exactRoutes))
		}
		if len(r.prefixRoutes) != 2 {
			t.Fatalf("expected 2 prefix routes, got %d", len(r.prefixRoutes))
		}
		if r.prefixRoutes[0].route.PathPattern != "/static/images/" || r.prefixRoutes[1].route.PathPattern != "/static/" {
			t.Errorf("prefix routes not sorted longest first: got [%s, %s]",
				r.prefixRoutes[0].route.PathPattern, r.prefixRoutes[1].route.PathPattern)
		}

		for i := 0; i < 3; i++ {
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/static/a.css", nil))
		}
		if created != len(testRoutes) {
			t.Errorf("handlers must not be rebuilt per request, got %d constructions", created)
		}
	})

	t.Run("nil arguments", func(t *testing.T) {
		cfg := configWithRoutes(testRoutes...)
		cases := []struct {
			name     string
			cfg      *config.Config
			registry *server.HandlerRegistry
			lg       *logger.Logger
			wantErr  string
		}{
			{"nil config", nil, newRegistry(t, nil), lg, "config cannot be nil"},
			{"nil registry", cfg, nil, lg, "handler registry cannot be nil"},
			{"nil logger", cfg, newRegistry(t, nil), nil, "logger cannot be nil"},
		}
		for _, tc := range cases {
			_, err := NewRouter(tc.cfg, tc.registry, tc.lg)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("%s: expected error containing %q, got %v", tc.name, tc.wantErr, err)
			}
		}
	})

	t.Run("nil routing section", func(t *testing.T) {
		r, err := NewRouter(&config.Config{}, newRegistry(t, nil), lg)
		if err != nil {
			t.Fatalf("NewRouter failed: %v", err)
		}
		if _, _, ok := r.Match("/"); ok {
			t.Error("expected no match without routes")
		}
	})

	t.Run("unregistered handler type", func(t *testing.T) {
		cfg := configWithRoutes(config.Route{PathPattern: "/x", MatchType: config.MatchTypeExact, HandlerType: "nope"})
		_, err := NewRouter(cfg, newRegistry(t, nil), lg)
		if err == nil || !strings.Contains(err.Error(), "no handler factory registered for type 'nope'") {
			t.Errorf("expected unregistered type error, got %v", err)
		}
	})

	t.Run("factory failure", func(t *testing.T) {
		registry := server.NewHandlerRegistry()
		boom := errors.New("boom")
		_ = registry.Register("broken", func(*config.Config, *logger.Logger) (http.Handler, error) { return nil, boom })
		cfg := configWithRoutes(config.Route{PathPattern: "/", MatchType: config.MatchTypePrefix, HandlerType: "broken"})
		_, err := NewRouter(cfg, registry, lg)
		if !errors.Is(err, boom) {
			t.Errorf("expected wrapped factory error, got %v", err)
		}
	})
}

func TestRouter_Match(t *testing.T) {
	routes := append([]config.Route{
		{PathPattern: "/static/images/logo.png", MatchType: config.MatchTypeExact, HandlerType: "catch_all"},
	}, testRoutes...)
	r, err := NewRouter(configWithRoutes(routes...), newRegistry(t, nil), logger.NewDiscardLogger())
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	tests := []struct {
		path        string
		wantPattern string
		wantFound   bool
	}{
		{"/api/users", "/api/users", true},
		{"/api/users/", "", false},
		{"/", "/", true},
		{"/static/", "/static/", true},
		{"/static/css/site.css", "/static/", true},
		{"/static/images/", "/static/images/", true},
		{"/static/images/cat.gif", "/static/images/", true},
		{"/static/images/logo.png", "/static/images/logo.png", true},
		{"/static", "", false},
		{"/other", "", false},
	}
	for _, tc := range tests {
		route, h, ok := r.Match(tc.path)
		if ok != tc.wantFound {
			t.Errorf("Match(%q) found=%v, want %v", tc.path, ok, tc.wantFound)
			continue
		}
		if !ok {
			continue
		}
		if route.PathPattern != tc.wantPattern {
			t.Errorf("Match(%q) pattern=%q, want %q", tc.path, route.PathPattern, tc.wantPattern)
		}
		if h == nil {
			t.Errorf("Match(%q) returned nil handler", tc.path)
		}
	}
}

func TestRouter_ServeHTTP(t *testing.T) {
	r, err := NewRouter(configWithRoutes(testRoutes...), newRegistry(t, nil), logger.NewDiscardLogger())
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	t.Run("dispatches to matched handler", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/images/a.png", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
		if got := rec.Body.String(); got != "static_images" {
			t.Errorf("served by %q, want static_images", got)
		}
	})

	t.Run("404 when nothing matches", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/missing", nil)
		req.Header.Set("Accept", "application/json")
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
			t.Errorf("Content-Type = %q, want JSON", ct)
		}
		if !strings.Contains(rec.Body.String(), `"status_code":404`) {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})
}

func TestRouter_ServeHTTP_EmptyPathIsRoot(t *testing.T) {
	var seen string
	registry := server.NewHandlerRegistry()
	_ = registry.Register("root", func(*config.Config, *logger.Logger) (http.Handler, error) {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			seen = req.URL.Path
			w.Write([]byte("root"))
		}), nil
	})
	cfg := configWithRoutes(config.Route{PathPattern: "/", MatchType: config.MatchTypePrefix, HandlerType: "root"})
	r, err := NewRouter(cfg, registry, logger.NewDiscardLogger())
	if err != nil {
		t.Fatalf("NewRouter failed: %v", err)
	}

	// Absolute-form request line with no path.
	req := httptest.NewRequest(http.MethodGet, "http://localhost:8000", nil)
	if req.URL.Path != "" {
		t.Fatalf("test request path = %q, want empty", req.URL.Path)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "root" {
		t.Errorf("got %d %q, want 200 \"root\"", rec.Code, rec.Body.String())
	}
	if seen != "/" {
		t.Errorf("handler saw path %q, want \"/\"", seen)
	}
	if req.URL.Path != "" {
		t.Errorf("caller's request was modified: %q", req.URL.Path)
	}
}
