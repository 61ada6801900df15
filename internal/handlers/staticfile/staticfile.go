// Package staticfile serves files and directory listings from the process
// working directory.
package staticfile

import (
	"fmt"
	"net/http"

	"github.com/dustin/go-humanize"

	"example.com/devserve/internal/config"
	"example.com/devserve/internal/logger"
	"example.com/devserve/internal/resolver"
	"example.com/devserve/internal/server"
)

const (
	// NotFoundPage is served for missing resources when it exists. It is
	// looked up relative to the working directory, not the requested path.
	NotFoundPage = "./404.html"

	notFoundFallbackBody = "NOT FOUND"
	defaultListingBase   = "http://localhost:8000"
)

// StaticFileServer resolves each request against a FileSystem and renders
// the file, a directory listing, or the not-found page.
type StaticFileServer struct {
	classifier *resolver.Classifier
	fs         resolver.FileSystem
	mime       *MimeTable
	baseURL    string
	log        *logger.Logger
}

// New builds a StaticFileServer. cfg may be nil.
func New(cfg *config.StaticFileServerConfig, fsys resolver.FileSystem, lg *logger.Logger) (*StaticFileServer, error) {
	if fsys == nil {
		return nil, fmt.Errorf("filesystem cannot be nil")
	}
	if lg == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	baseURL := defaultListingBase
	var overrides map[string]string
	if cfg != nil {
		if cfg.ListingBaseURL != nil {
			baseURL = *cfg.ListingBaseURL
		}
		overrides = cfg.ResolvedMimeTypes
		if overrides == nil {
			overrides = cfg.MimeTypesMap
		}
	}

	return &StaticFileServer{
		classifier: resolver.NewClassifier(fsys),
		fs:         fsys,
		mime:       NewMimeTable(overrides),
		baseURL:    baseURL,
		log:        lg.WithComponent("staticfile"),
	}, nil
}

// Factory is the server.HandlerFactory for the "StaticFileServer" handler
// type. It serves the working directory.
func Factory(cfg *config.Config, lg *logger.Logger) (http.Handler, error) {
	var sc *config.StaticFileServerConfig
	if cfg != nil {
		sc = cfg.Static
	}
	return New(sc, resolver.OSFileSystem{}, lg)
}

var _ server.HandlerFactory = Factory

func (s *StaticFileServer) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	candidate := resolver.MapPath(req.URL.Path)
	res := s.classifier.Classify(candidate)
	s.log.Debug("resolved request", logger.LogFields{
		"url":  req.URL.Path,
		"path": res.Path,
		"kind": res.Kind.String(),
	})

	switch res.Kind {
	case resolver.File:
		s.serveFile(w, req, res)
	case resolver.Directory:
		s.serveDirectory(w, req, res)
	default:
		s.serveNotFound(w)
	}
}

func (s *StaticFileServer) serveFile(w http.ResponseWriter, req *http.Request, res resolver.Resolution) {
	data, err := s.fs.ReadFile(res.Path)
	if err != nil {
		s.log.Warn("file vanished or became unreadable after stat", logger.LogFields{
			"path":  res.Path,
			"error": err,
		})
		s.serveNotFound(w)
		return
	}
	contentType := s.mime.ContentType(res.Path)
	s.log.Debug("serving file", logger.LogFields{
		"path":         res.Path,
		"content_type": contentType,
		"size":         humanize.Bytes(uint64(len(data))),
	})

	h := w.Header()
	h.Set("Content-Type", contentType)
	setCrossOriginIsolation(h)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *StaticFileServer) serveDirectory(w http.ResponseWriter, req *http.Request, res resolver.Resolution) {
	entries, err := s.fs.ReadDir(res.Path)
	if err != nil {
		s.log.Error("failed to list directory", logger.LogFields{
			"path":  res.Path,
			"error": err,
		})
		server.SendDefaultErrorResponse(w, http.StatusInternalServerError, req, "The directory could not be listed.", s.log)
		return
	}

	page := renderDirectoryListing(s.baseURL, res.Path, entries)
	h := w.Header()
	h.Set("Content-Type", "text/html")
	setCrossOriginIsolation(h)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(page))
}

func (s *StaticFileServer) serveNotFound(w http.ResponseWriter) {
	page, err := s.fs.ReadFile(NotFoundPage)
	if err == nil {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusNotFound)
		w.Write(page)
		return
	}
	// A nil value keeps net/http from sniffing a Content-Type.
	w.Header()["Content-Type"] = nil
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(notFoundFallbackBody))
}

func setCrossOriginIsolation(h http.Header) {
	h.Set("Cross-Origin-Opener-Policy", "same-origin")
	h.Set("Cross-Origin-Embedder-Policy", "require-corp")
}
