package router

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"example.com/devserve/internal/config"
	"example.com/devserve/internal/logger"
	"example.com/devserve/internal/server"
)

// routeEntry is a configured route with its handler already built.
type routeEntry struct {
	route   config.Route
	handler http.Handler
}

// Router dispatches requests to the handler of the best matching route.
// Exact matches win over prefix matches, and among prefix matches the
// longest pattern wins.
type Router struct {
	exactRoutes  map[string]routeEntry
	prefixRoutes []routeEntry // longest PathPattern first
	log          *logger.Logger
}

// NewRouter instantiates one handler per route through registry. Routes are
// assumed to be validated by the config loader.
func NewRouter(cfg *config.Config, registry *server.HandlerRegistry, lg *logger.Logger) (*Router, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("handler registry cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	r := &Router{
		exactRoutes: make(map[string]routeEntry),
		log:         lg,
	}
	var routes []config.Route
	if cfg.Routing != nil {
		routes = cfg.Routing.Routes
	}
	for _, route := range routes {
		h, err := registry.CreateHandler(route.HandlerType, cfg, lg)
		if err != nil {
			return nil, fmt.Errorf("route '%s': %w", route.PathPattern, err)
		}
		entry := routeEntry{route: route, handler: h}
		switch route.MatchType {
		case config.MatchTypeExact:
			r.exactRoutes[route.PathPattern] = entry
		case config.MatchTypePrefix:
			r.prefixRoutes = append(r.prefixRoutes, entry)
		default:
			return nil, fmt.Errorf("route '%s': unknown match_type '%s'", route.PathPattern, route.MatchType)
		}
	}

	sort.SliceStable(r.prefixRoutes, func(i, j int) bool {
		return len(r.prefixRoutes[i].route.PathPattern) > len(r.prefixRoutes[j].route.PathPattern)
	})
	return r, nil
}

// Match returns the route and handler for path, or ok=false.
func (r *Router) Match(path string) (config.Route, http.Handler, bool) {
	if e, ok := r.exactRoutes[path]; ok {
		return e.route, e.handler, true
	}
	for _, e := range r.prefixRoutes {
		if strings.HasPrefix(path, e.route.PathPattern) {
			return e.route, e.handler, true
		}
	}
	return config.Route{}, nil, false
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// Absolute-form requests without a path ("GET http://host HTTP/1.1")
	// arrive with an empty Path and mean the root.
	if req.URL.Path == "" {
		req = req.Clone(req.Context())
		req.URL.Path = "/"
		req.URL.RawPath = ""
	}
	_, h, ok := r.Match(req.URL.Path)
	if !ok {
		r.log.Info("no route matched", logger.LogFields{"path": req.URL.Path})
		server.SendDefaultErrorResponse(w, http.StatusNotFound, req, "", r.log)
		return
	}
	h.ServeHTTP(w, req)
}
