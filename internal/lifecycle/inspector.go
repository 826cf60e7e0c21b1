package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/maauso/slidenotes-api/internal/storage"
)

const bytesPerMB = 1024 * 1024

// FileReport describes one live asset. Times are Unix milliseconds and
// durations are milliseconds.
type FileReport struct {
	Name       string `json:"name"`
	UploadTime int64  `json:"uploadTime"`
	// TimeRemaining is (uploadTime + idle threshold) - now; negative means
	// the asset is already eligible for eviction by that measure.
	TimeRemaining int64 `json:"timeRemaining"`
	SizeBytes     int64 `json:"sizeBytes"`
	// LastAccessTime is when the asset was last served.
	LastAccessTime int64 `json:"lastAccessTime"`
	// EvictableIn is (last access + idle threshold) - now, the measure the
	// sweeper applies. Zero or negative means the next sweep deletes it.
	EvictableIn int64 `json:"evictableIn"`
}

// Stats aggregates the store.
type Stats struct {
	TotalFiles      int     `json:"totalFiles"`
	TotalSizeBytes  int64   `json:"totalSizeBytes"`
	TotalSizeMB     float64 `json:"totalSizeMB"`
	StorageLimitMB  float64 `json:"storageLimitMB"`
	UsagePercentage float64 `json:"usagePercentage"`
}

// Report is the full listing returned by Inspector.Files.
type Report struct {
	Files []FileReport `json:"files"`
	Stats Stats        `json:"stats"`
}

// Inspector builds per-file and aggregate views of the store.
type Inspector struct {
	store     storage.Store
	threshold time.Duration
	maxBytes  int64
	now       func() time.Time
}

// NewInspector creates an Inspector.
func NewInspector(store storage.Store, threshold time.Duration, maxBytes int64, opts ...Option) *Inspector {
	if threshold <= 0 {
		threshold = DefaultIdleThreshold
	}
	o := applyOptions(opts)
	return &Inspector{
		store:     store,
		threshold: threshold,
		maxBytes:  maxBytes,
		now:       o.now,
	}
}

// Files lists every live asset, newest upload first, with aggregate totals.
func (i *Inspector) Files(ctx context.Context) (Report, error) {
	files, err := i.store.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("lifecycle: list assets: %w", err)
	}

	now := i.now()
	report := Report{Files: make([]FileReport, 0, len(files))}
	var total int64

	for _, f := range files {
		expires := f.CreatedAt.Add(i.threshold)
		report.Files = append(report.Files, FileReport{
			Name:          f.Name,
			UploadTime:    f.CreatedAt.UnixMilli(),
			TimeRemaining: expires.Sub(now).Milliseconds(),
			SizeBytes:     f.SizeBytes,

			LastAccessTime: f.LastAccessedAt.UnixMilli(),
			EvictableIn:    (i.threshold - f.IdleFor(now)).Milliseconds(),
		})
		total += f.SizeBytes
	}

	sort.SliceStable(report.Files, func(a, b int) bool {
		return report.Files[a].UploadTime > report.Files[b].UploadTime
	})

	report.Stats = Stats{
		TotalFiles:     len(report.Files),
		TotalSizeBytes: total,
		TotalSizeMB:    float64(total) / bytesPerMB,
		StorageLimitMB: float64(i.maxBytes) / bytesPerMB,
	}
	if i.maxBytes > 0 {
		report.Stats.UsagePercentage = float64(total) / float64(i.maxBytes) * 100
	}

	return report, nil
}
