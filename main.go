// Command devserve-quick serves the current working directory on port 8000
// with no configuration at all. Use cmd/devserve for flags and config files.
package main

import (
	"log"

	"example.com/devserve/internal/app"
	"example.com/devserve/internal/config"
	"example.com/devserve/internal/logger"
	"example.com/devserve/internal/server"
)

func newDefaultServer() (*server.Server, *logger.Logger, error) {
	cfg := config.Default()
	if err := config.Validate(cfg); err != nil {
		return nil, nil, err
	}
	lg, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	srv, err := app.NewServer(cfg, lg)
	if err != nil {
		lg.CloseLogFiles()
		return nil, nil, err
	}
	return srv, lg, nil
}

func main() {
	srv, lg, err := newDefaultServer()
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}
	defer lg.CloseLogFiles()

	if err := srv.Start(); err != nil {
		lg.Error("server stopped", logger.LogFields{"error": err})
		log.Fatalf("Server error: %v", err)
	}
}
