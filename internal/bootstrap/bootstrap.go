// Package bootstrap provides dependency initialization for the slide notes API
// and its maintenance CLI.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/maauso/slidenotes-api/internal/config"
	"github.com/maauso/slidenotes-api/internal/ingest"
	"github.com/maauso/slidenotes-api/internal/lifecycle"
	"github.com/maauso/slidenotes-api/internal/render"
	"github.com/maauso/slidenotes-api/internal/server"
	"github.com/maauso/slidenotes-api/internal/storage"
)

// Lifecycle holds the asset store and the components that manage it.
type Lifecycle struct {
	Store     *storage.LocalStore
	Quota     *lifecycle.Quota
	Sweeper   *lifecycle.Sweeper
	Refresher *lifecycle.Refresher
	Inspector *lifecycle.Inspector
}

// NewLifecycle opens the asset store in dir and builds its lifecycle components.
func NewLifecycle(dir string, maxBytes int64, idle time.Duration, logger *slog.Logger) (*Lifecycle, error) {
	store, err := storage.NewLocalStore(dir)
	if err != nil {
		return nil, fmt.Errorf("create asset store: %w", err)
	}
	logger.Info("asset store configured",
		slog.String("dir", store.Dir()),
		slog.Int64("max_bytes", maxBytes),
		slog.Duration("idle_threshold", idle),
	)

	return &Lifecycle{
		Store:     store,
		Quota:     lifecycle.NewQuota(store, maxBytes, logger),
		Sweeper:   lifecycle.NewSweeper(store, idle, logger),
		Refresher: lifecycle.NewRefresher(store, logger),
		Inspector: lifecycle.NewInspector(store, idle, maxBytes),
	}, nil
}

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	*Lifecycle
	Renderer  *render.HTTPClient
	Ingest    *ingest.Service
	Mirror    *storage.S3Mirror
	Scheduler *cron.Cron
	Handlers  *server.Handlers
}

// NewDependencies creates and initializes all dependencies for the application.
// The returned Scheduler has the sweep registered but is not started.
func NewDependencies(cfg *config.Config, logger *slog.Logger, level *slog.LevelVar) (*Dependencies, error) {
	lc, err := NewLifecycle(cfg.UploadsDir, cfg.MaxStorageBytes, cfg.IdleThreshold, logger)
	if err != nil {
		return nil, err
	}

	renderer, err := render.NewClient(cfg.ConverterURL,
		render.WithConvertTimeout(cfg.ConvertTimeout),
		render.WithDownloadTimeout(cfg.DownloadTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("create converter client: %w", err)
	}

	opts := []ingest.ServiceOption{
		ingest.WithMaxConcurrentSlides(cfg.MaxConcurrentSlides),
	}

	mirror, err := initMirror(cfg, logger)
	if err != nil {
		return nil, err
	}
	if mirror != nil {
		opts = append(opts, ingest.WithMirror(mirror), ingest.WithMirrorTimeout(cfg.S3Timeout))
	}

	svc := ingest.NewService(renderer, ingest.ArchiveExtractor, lc.Store, lc.Quota, lc.Sweeper, logger, opts...)

	scheduler := cron.New(
		cron.WithLogger(cronLogger{logger: logger}),
		cron.WithChain(
			cron.Recover(cronLogger{logger: logger}),
			cron.SkipIfStillRunning(cronLogger{logger: logger}),
		),
	)
	if _, err := lc.Sweeper.Schedule(scheduler, cfg.CleanupSchedule); err != nil {
		return nil, err
	}

	handlers := server.NewHandlers(server.Services{
		Ingester:  svc,
		Quota:     lc.Quota,
		Sweeper:   lc.Sweeper,
		Assets:    lc.Refresher,
		Inspector: lc.Inspector,
	}, logger,
		server.WithCronSecret(cfg.CronSecret),
		server.WithMaxUploadBytes(cfg.MaxUploadBytes),
		server.WithLevelVar(level),
	)

	return &Dependencies{
		Lifecycle: lc,
		Renderer:  renderer,
		Ingest:    svc,
		Mirror:    mirror,
		Scheduler: scheduler,
		Handlers:  handlers,
	}, nil
}

// initMirror creates the optional S3 mirror. It returns nil when S3 is not configured.
func initMirror(cfg *config.Config, logger *slog.Logger) (*storage.S3Mirror, error) {
	if !cfg.S3Enabled() {
		return nil, nil
	}
	mirror, err := storage.NewS3Mirror(storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 mirror: %w", err)
	}
	logger.Info("S3 mirror configured",
		slog.String("bucket", cfg.S3Bucket),
		slog.String("region", cfg.S3Region),
	)
	return mirror, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Log(context.Background(), slog.LevelDebug, "cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err.Error())...)
}
