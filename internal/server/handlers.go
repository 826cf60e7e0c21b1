package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"

	"github.com/maauso/slidenotes-api/internal/config"
	"github.com/maauso/slidenotes-api/internal/ingest"
	"github.com/maauso/slidenotes-api/internal/lifecycle"
	"github.com/maauso/slidenotes-api/internal/storage"
)

// DefaultMaxUploadBytes bounds the multipart body of an ingestion request.
const DefaultMaxUploadBytes int64 = 200 << 20

// multipartMemory is how much of a multipart body is buffered in memory
// before spilling to temporary files.
const multipartMemory = 32 << 20

const cacheControl = "public, max-age=3600"

// Ingester converts an uploaded package into slide records.
type Ingester interface {
	Ingest(ctx context.Context, in ingest.Input) ([]ingest.SlideRecord, error)
}

// StatusReporter reports storage usage.
type StatusReporter interface {
	Status(ctx context.Context) (lifecycle.Status, error)
}

// Sweeper evicts idle assets.
type Sweeper interface {
	Sweep(ctx context.Context) (lifecycle.SweepResult, error)
}

// AssetServer reads an asset and refreshes its idle clock.
type AssetServer interface {
	Serve(ctx context.Context, name string) ([]byte, storage.File, error)
}

// FileLister reports every live asset.
type FileLister interface {
	Files(ctx context.Context) (lifecycle.Report, error)
}

// Services groups the use cases the handlers delegate to.
type Services struct {
	Ingester  Ingester
	Quota     StatusReporter
	Sweeper   Sweeper
	Assets    AssetServer
	Inspector FileLister
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	services       Services
	validator      *validator.Validate
	logger         *slog.Logger
	cronSecret     string
	maxUploadBytes int64
	level          *slog.LevelVar
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithCronSecret sets the shared secret required by the scheduled trigger.
// An empty secret rejects every trigger call.
func WithCronSecret(secret string) HandlerOption {
	return func(h *Handlers) {
		h.cronSecret = secret
	}
}

// WithMaxUploadBytes limits the size of ingestion request bodies.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithLevelVar exposes the logger level for runtime changes.
func WithLevelVar(level *slog.LevelVar) HandlerOption {
	return func(h *Handlers) {
		h.level = level
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(services Services, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		services:       services,
		validator:      validator.New(),
		logger:         logger,
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.level == nil {
		h.level = new(slog.LevelVar)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// ProcessPresentation handles POST /api/process-pptx requests.
func (h *Handlers) ProcessPresentation(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				"upload exceeds "+humanize.IBytes(uint64(h.maxUploadBytes)), "UPLOAD_TOO_LARGE")
			return
		}
		h.logger.Warn("failed to parse multipart body", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid multipart body", "INVALID_MULTIPART")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required", "MISSING_FILE")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("failed to read uploaded file", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "failed to read file", "INVALID_FILE")
		return
	}

	records, err := h.services.Ingester.Ingest(r.Context(), ingest.Input{
		Filename: header.Filename,
		Data:     data,
	})
	if err != nil {
		var quotaErr *ingest.QuotaError
		switch {
		case errors.As(err, &quotaErr):
			writeJSON(w, http.StatusRequestEntityTooLarge, StorageFullResponse{
				Error:   "storage is full, try again later",
				Code:    "STORAGE_EXHAUSTED",
				Usage:   quotaErr.Status.Summary(),
				Storage: quotaErr.Status,
			})
		case errors.Is(err, ingest.ErrEmptyPackage):
			writeError(w, http.StatusBadRequest, "file is empty", "EMPTY_FILE")
		case errors.Is(err, ingest.ErrConversionFailed):
			writeError(w, http.StatusInternalServerError, err.Error(), "CONVERSION_FAILED")
		default:
			h.logger.Error("ingestion failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to process file", "INGESTION_FAILED")
		}
		return
	}

	writeJSON(w, http.StatusOK, IngestResponse{Slides: records})
}

// Maintenance handles GET /api/storage-cleanup?action=status|cleanup.
func (h *Handlers) Maintenance(w http.ResponseWriter, r *http.Request) {
	q := maintenanceQuery{Action: r.URL.Query().Get("action")}
	if err := h.validator.Struct(q); err != nil {
		h.logger.Warn("invalid maintenance action", slog.String("action", q.Action))
		writeError(w, http.StatusBadRequest, "action must be status or cleanup", "INVALID_ACTION")
		return
	}

	resp, err := h.maintain(r.Context(), q.Action)
	if err != nil {
		h.logger.Error("maintenance failed",
			slog.String("action", q.Action),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "maintenance failed", "MAINTENANCE_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// MaintenanceCleanup handles POST /api/storage-cleanup with {"action":"cleanup"}.
func (h *Handlers) MaintenanceCleanup(w http.ResponseWriter, r *http.Request) {
	var req MaintenanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "action must be cleanup", "INVALID_ACTION")
		return
	}

	resp, err := h.maintain(r.Context(), req.Action)
	if err != nil {
		h.logger.Error("maintenance failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "maintenance failed", "MAINTENANCE_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CronCleanup handles GET /api/cron/cleanup?key=<secret>.
func (h *Handlers) CronCleanup(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if h.cronSecret == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.cronSecret)) != 1 {
		h.logger.Warn("rejected scheduled cleanup", slog.String("remote_addr", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "unauthorized", "UNAUTHORIZED")
		return
	}

	resp, err := h.maintain(r.Context(), "cleanup")
	if err != nil {
		h.logger.Error("scheduled cleanup failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "scheduled cleanup failed", "CLEANUP_FAILED")
		return
	}

	h.logger.Info("scheduled cleanup completed",
		slog.Int("deleted", len(resp.Cleanup.Deleted)),
		slog.String("freed", humanize.IBytes(uint64(resp.Cleanup.BytesFreed))),
	)
	writeJSON(w, http.StatusOK, CronResponse{
		Success: true,
		Message: "scheduled cleanup completed",
		Result:  resp,
	})
}

func (h *Handlers) maintain(ctx context.Context, action string) (MaintenanceResponse, error) {
	resp := MaintenanceResponse{Success: true}
	if action == "cleanup" {
		result, err := h.services.Sweeper.Sweep(ctx)
		if err != nil {
			return MaintenanceResponse{}, err
		}
		resp.Cleanup = &result
	}

	st, err := h.services.Quota.Status(ctx)
	if err != nil {
		return MaintenanceResponse{}, err
	}
	resp.Storage = st
	return resp, nil
}

// ServeAsset handles GET /uploads/{filename} requests.
func (h *Handlers) ServeAsset(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if err := storage.ValidateName(name); err != nil {
		writeError(w, http.StatusBadRequest, "invalid file name", "INVALID_NAME")
		return
	}

	data, _, err := h.services.Assets.Serve(r.Context(), name)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAssetNotFound):
			h.logger.Debug("asset not found", slog.String("name", name))
			writeError(w, http.StatusNotFound, "file not found", "ASSET_NOT_FOUND")
		case errors.Is(err, storage.ErrInvalidName):
			writeError(w, http.StatusBadRequest, "invalid file name", "INVALID_NAME")
		default:
			h.logger.Error("failed to serve asset",
				slog.String("name", name),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to read file", "ASSET_READ_FAILED")
		}
		return
	}

	w.Header().Set("Content-Type", storage.ContentType(name))
	w.Header().Set("Cache-Control", cacheControl)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Debug("client went away while serving asset", slog.String("name", name))
	}
}

// Files handles GET /api/system/files requests.
func (h *Handlers) Files(w http.ResponseWriter, r *http.Request) {
	report, err := h.services.Inspector.Files(r.Context())
	if err != nil {
		h.logger.Error("failed to list files", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list files", "FILES_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, FilesResponse{
		Success: true,
		Files:   report.Files,
		Stats:   report.Stats,
	})
}

// GetLogLevel handles GET /api/system/log-level requests.
func (h *Handlers) GetLogLevel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LogLevelResponse{Level: config.LevelName(h.level.Level())})
}

// SetLogLevel handles PUT /api/system/log-level requests.
func (h *Handlers) SetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req LogLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	level, _ := config.ParseLevel(req.Level)
	h.level.Set(level)
	h.logger.Info("log level changed", slog.String("level", config.LevelName(level)))

	writeJSON(w, http.StatusOK, LogLevelResponse{Level: config.LevelName(level)})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
