package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/maauso/slidenotes-api/internal/storage"
)

// Refresher serves assets and extends their life on every successful read.
type Refresher struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewRefresher creates a Refresher over store.
func NewRefresher(store storage.Store, logger *slog.Logger, opts ...Option) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	o := applyOptions(opts)
	return &Refresher{
		store:  store,
		logger: logger,
		now:    o.now,
	}
}

// Serve refreshes the asset's last-access time and returns its content.
// An asset evicted at any point during the call yields storage.ErrAssetNotFound.
// A failed refresh of an existing asset is logged and the content is still served.
func (r *Refresher) Serve(ctx context.Context, name string) ([]byte, storage.File, error) {
	f, err := r.store.Stat(ctx, name)
	if err != nil {
		return nil, storage.File{}, err
	}

	now := r.now()
	if err := r.store.Touch(ctx, name, now); err != nil {
		if errors.Is(err, storage.ErrAssetNotFound) {
			return nil, storage.File{}, err
		}
		r.logger.Warn("failed to refresh asset access time",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
	} else if now.After(f.LastAccessedAt) {
		f.LastAccessedAt = now
	}

	data, err := r.store.Get(ctx, name)
	if err != nil {
		return nil, storage.File{}, err
	}

	r.logger.Debug("asset served",
		slog.String("name", name),
		slog.Int("bytes", len(data)),
	)
	return data, f, nil
}
