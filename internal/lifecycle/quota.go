// Package lifecycle enforces the capacity bound and the idle-expiry policy of
// the asset store: admission by current usage, eviction of idle assets, and
// refreshing an asset's liveness whenever it is served.
//
// None of these operations lock the store. Admission and the following writes
// are not atomic, and a sweep may race with a refresh; both are accepted.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/maauso/slidenotes-api/internal/storage"
)

const bytesPerGB = 1024 * 1024 * 1024

// warnRatio is the usage ratio above which storage status is logged as a warning.
const warnRatio = 0.8

// Option configures the time source of lifecycle components.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock sets the time source. It defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Status is the point-in-time usage of the asset store.
type Status struct {
	CurrentSizeBytes int64   `json:"currentSizeBytes"`
	MaxSizeBytes     int64   `json:"maxSizeBytes"`
	CurrentSizeGB    float64 `json:"currentSizeGB"`
	MaxSizeGB        float64 `json:"maxSizeGB"`
	CanUpload        bool    `json:"canUpload"`
}

func newStatus(current, max int64) Status {
	return Status{
		CurrentSizeBytes: current,
		MaxSizeBytes:     max,
		CurrentSizeGB:    round2(float64(current) / bytesPerGB),
		MaxSizeGB:        round2(float64(max) / bytesPerGB),
		CanUpload:        current < max,
	}
}

// UsageRatio returns current/max.
func (s Status) UsageRatio() float64 {
	if s.MaxSizeBytes <= 0 {
		return 1
	}
	return float64(s.CurrentSizeBytes) / float64(s.MaxSizeBytes)
}

// Summary describes the usage for people, e.g. "17 GiB of 18 GiB used (94.4%)".
func (s Status) Summary() string {
	return fmt.Sprintf("%s of %s used (%.1f%%)",
		humanize.IBytes(uint64(max(s.CurrentSizeBytes, 0))),
		humanize.IBytes(uint64(max(s.MaxSizeBytes, 0))),
		s.UsageRatio()*100,
	)
}

// Quota decides whether new ingestion may proceed based on current usage.
type Quota struct {
	store    storage.Store
	maxBytes int64
	logger   *slog.Logger
}

// NewQuota creates a Quota gate over store with the given byte limit.
func NewQuota(store storage.Store, maxBytes int64, logger *slog.Logger) *Quota {
	if logger == nil {
		logger = slog.Default()
	}
	return &Quota{
		store:    store,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// MaxBytes returns the configured limit.
func (q *Quota) MaxBytes() int64 {
	return q.maxBytes
}

// Status sums the size of every asset in the store.
func (q *Quota) Status(ctx context.Context) (Status, error) {
	files, err := q.store.List(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("lifecycle: compute usage: %w", err)
	}

	var total int64
	for _, f := range files {
		total += f.SizeBytes
	}

	st := newStatus(total, q.maxBytes)

	attrs := []any{
		slog.String("current", humanize.IBytes(uint64(total))),
		slog.String("max", humanize.IBytes(uint64(max(q.maxBytes, 0)))),
		slog.Int("files", len(files)),
		slog.Bool("can_upload", st.CanUpload),
	}
	if st.UsageRatio() > warnRatio {
		q.logger.Warn("storage usage near limit", attrs...)
	} else {
		q.logger.Debug("storage usage checked", attrs...)
	}

	return st, nil
}

// Admit reports whether a new batch may be ingested: current usage must be
// strictly below the limit. Nothing is reserved.
func (q *Quota) Admit(ctx context.Context) (bool, Status, error) {
	st, err := q.Status(ctx)
	if err != nil {
		return false, Status{}, err
	}
	return st.CanUpload, st, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
