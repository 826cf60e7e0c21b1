package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/maauso/slidenotes-api/internal/storage"
)

// DefaultIdleThreshold is how long an asset may go unserved before eviction.
const DefaultIdleThreshold = 30 * time.Minute

// SweepResult reports what a sweep removed.
type SweepResult struct {
	Deleted    []string `json:"deletedFiles"`
	BytesFreed int64    `json:"totalSizeFreed"`
}

// Sweeper deletes assets whose last access is older than the idle threshold.
// Concurrent sweeps (timer, maintenance call, pre-admission) share one pass.
type Sweeper struct {
	store     storage.Store
	threshold time.Duration
	logger    *slog.Logger
	now       func() time.Time
	group     singleflight.Group
}

// NewSweeper creates a Sweeper. A non-positive threshold uses DefaultIdleThreshold.
func NewSweeper(store storage.Store, threshold time.Duration, logger *slog.Logger, opts ...Option) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 {
		threshold = DefaultIdleThreshold
	}
	o := applyOptions(opts)
	return &Sweeper{
		store:     store,
		threshold: threshold,
		logger:    logger,
		now:       o.now,
	}
}

// Threshold returns the idle threshold.
func (s *Sweeper) Threshold() time.Duration {
	return s.threshold
}

// Sweep deletes every asset idle for longer than the threshold.
// Per-file deletion failures are logged and skipped; an error is returned
// only when the store cannot be listed. Callers arriving while a sweep is in
// progress receive that sweep's result.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	// A caller that goes away must not fail the pass it shares with others.
	ctx = context.WithoutCancel(ctx)

	v, err, shared := s.group.Do("sweep", func() (any, error) {
		return s.sweep(ctx)
	})
	if err != nil {
		return SweepResult{}, err
	}
	if shared {
		s.logger.Debug("joined in-flight sweep")
	}
	return v.(SweepResult), nil
}

func (s *Sweeper) sweep(ctx context.Context) (SweepResult, error) {
	files, err := s.store.List(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("lifecycle: list assets: %w", err)
	}

	now := s.now()
	result := SweepResult{Deleted: []string{}}

	s.logger.Info("sweep started",
		slog.Int("files", len(files)),
		slog.Duration("threshold", s.threshold),
	)

	for _, f := range files {
		idle := f.IdleFor(now)
		if idle <= s.threshold {
			s.logger.Debug("asset still live",
				slog.String("name", f.Name),
				slog.Duration("idle", idle),
			)
			continue
		}

		if err := s.store.Delete(ctx, f.Name); err != nil {
			if errors.Is(err, storage.ErrAssetNotFound) {
				continue
			}
			s.logger.Error("failed to delete idle asset",
				slog.String("name", f.Name),
				slog.String("error", err.Error()),
			)
			continue
		}

		result.Deleted = append(result.Deleted, f.Name)
		result.BytesFreed += f.SizeBytes
		s.logger.Info("deleted idle asset",
			slog.String("name", f.Name),
			slog.String("size", humanize.IBytes(uint64(f.SizeBytes))),
			slog.Duration("idle", idle.Round(time.Second)),
		)
	}

	s.logger.Info("sweep finished",
		slog.Int("deleted", len(result.Deleted)),
		slog.String("freed", humanize.IBytes(uint64(result.BytesFreed))),
	)

	return result, nil
}

// Schedule registers the sweep on c under the given cron spec.
// The caller owns starting and stopping c.
func (s *Sweeper) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	id, err := c.AddFunc(spec, func() {
		if _, err := s.Sweep(context.Background()); err != nil {
			s.logger.Error("scheduled sweep failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return 0, fmt.Errorf("lifecycle: schedule sweep %q: %w", spec, err)
	}
	return id, nil
}
