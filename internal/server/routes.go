package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /api/process-pptx", h.ProcessPresentation)

	mux.HandleFunc("GET /api/storage-cleanup", h.Maintenance)
	mux.HandleFunc("POST /api/storage-cleanup", h.MaintenanceCleanup)
	mux.HandleFunc("GET /api/cron/cleanup", h.CronCleanup)

	mux.HandleFunc("GET /uploads/{filename}", h.ServeAsset)
	mux.HandleFunc("GET /api/uploads/{filename}", h.ServeAsset)

	mux.HandleFunc("GET /api/system/files", h.Files)
	mux.HandleFunc("GET /api/system/log-level", h.GetLogLevel)
	mux.HandleFunc("PUT /api/system/log-level", h.SetLogLevel)

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
