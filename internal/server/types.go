// Package server provides the HTTP server for the slide notes API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"github.com/maauso/slidenotes-api/internal/ingest"
	"github.com/maauso/slidenotes-api/internal/lifecycle"
)

// IngestResponse is the HTTP response for a processed presentation.
type IngestResponse struct {
	// Slides holds one record per page, ordered by slide number.
	Slides []ingest.SlideRecord `json:"slides"`
}

// StorageFullResponse is returned with 413 when the quota refuses an upload.
type StorageFullResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	// Usage is a human-readable summary such as "18 GiB of 18 GiB used (100.0%)".
	Usage   string           `json:"usage"`
	Storage lifecycle.Status `json:"storage"`
}

// MaintenanceRequest is the body of POST /api/storage-cleanup.
type MaintenanceRequest struct {
	Action string `json:"action" validate:"required,eq=cleanup"`
}

// maintenanceQuery is the query of GET /api/storage-cleanup.
type maintenanceQuery struct {
	Action string `validate:"required,oneof=status cleanup"`
}

// MaintenanceResponse reports storage status and, for cleanup, what was removed.
type MaintenanceResponse struct {
	Success bool                   `json:"success"`
	Cleanup *lifecycle.SweepResult `json:"cleanup,omitempty"`
	Storage lifecycle.Status       `json:"storage"`
}

// CronResponse is the response of the scheduled maintenance trigger.
type CronResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Result  MaintenanceResponse `json:"result"`
}

// FilesResponse lists live assets with aggregate statistics.
type FilesResponse struct {
	Success bool                   `json:"success"`
	Files   []lifecycle.FileReport `json:"files"`
	Stats   lifecycle.Stats        `json:"stats"`
}

// LogLevelRequest changes the runtime log level.
type LogLevelRequest struct {
	Level string `json:"level" validate:"required,oneof=debug info warn warning error"`
}

// LogLevelResponse reports the current log level.
type LogLevelResponse struct {
	Level string `json:"level"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
