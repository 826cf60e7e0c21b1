package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/slidenotes-api/internal/storage"
)

// memStore is an in-memory storage.Store with controllable metadata.
type memStore struct {
	mu        sync.Mutex
	files     map[string]storage.File
	data      map[string][]byte
	listErr   error
	deleteErr map[string]error
	touchErr  error
	lists     atomic.Int32
	listDelay time.Duration
}

func newMemStore() *memStore {
	return &memStore{
		files:     map[string]storage.File{},
		data:      map[string][]byte{},
		deleteErr: map[string]error{},
	}
}

func (m *memStore) add(name string, size int64, created, accessed time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = storage.File{Name: name, SizeBytes: size, CreatedAt: created, LastAccessedAt: accessed}
	m.data[name] = []byte(name)
}

func (m *memStore) Put(_ context.Context, index int, data []byte, ext string) (storage.File, error) {
	name := storage.NewName(index, ext, time.Now())
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	f := storage.File{Name: name, SizeBytes: int64(len(data)), CreatedAt: now, LastAccessedAt: now}
	m.files[name] = f
	m.data[name] = data
	return f, nil
}

func (m *memStore) Get(_ context.Context, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[name]
	if !ok {
		return nil, storage.ErrAssetNotFound
	}
	return d, nil
}

func (m *memStore) Stat(_ context.Context, name string) (storage.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[name]
	if !ok {
		return storage.File{}, storage.ErrAssetNotFound
	}
	return f, nil
}

func (m *memStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.deleteErr[name]; err != nil {
		return err
	}
	if _, ok := m.files[name]; !ok {
		return storage.ErrAssetNotFound
	}
	delete(m.files, name)
	delete(m.data, name)
	return nil
}

func (m *memStore) List(_ context.Context) ([]storage.File, error) {
	m.lists.Add(1)
	if m.listDelay > 0 {
		time.Sleep(m.listDelay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]storage.File, 0, len(m.files))
	for _, f := range m.files {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) Touch(_ context.Context, name string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.touchErr != nil {
		return m.touchErr
	}
	f, ok := m.files[name]
	if !ok {
		return storage.ErrAssetNotFound
	}
	if at.After(f.LastAccessedAt) {
		f.LastAccessedAt = at
		m.files[name] = f
	}
	return nil
}

func (m *memStore) has(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[name]
	return ok
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

const gib = int64(1024 * 1024 * 1024)

func TestQuota_Admit(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("empty store admits", func(t *testing.T) {
		q := NewQuota(newMemStore(), 18*gib, testLogger())

		ok, st, err := q.Admit(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(0), st.CurrentSizeBytes)
		assert.Equal(t, float64(18), st.MaxSizeGB)
	})

	t.Run("usage just below limit admits then rejects once over", func(t *testing.T) {
		store := newMemStore()
		store.add("slide_1.png", 179*gib/10, now, now)
		q := NewQuota(store, 18*gib, testLogger())

		ok, st, err := q.Admit(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.InDelta(t, 17.9, st.CurrentSizeGB, 0.01)

		store.add("slide_2.png", 2*gib/10, now, now)

		ok, st, err = q.Admit(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, st.CanUpload)
		assert.InDelta(t, 18.1, st.CurrentSizeGB, 0.01)
	})

	t.Run("usage equal to limit rejects", func(t *testing.T) {
		store := newMemStore()
		store.add("a.png", 100, now, now)
		q := NewQuota(store, 100, testLogger())

		ok, _, err := q.Admit(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("list failure is returned", func(t *testing.T) {
		store := newMemStore()
		store.listErr = errors.New("disk gone")
		q := NewQuota(store, 100, testLogger())

		ok, _, err := q.Admit(ctx)
		require.Error(t, err)
		assert.False(t, ok)
	})
}

func TestStatus_Summary(t *testing.T) {
	st := newStatus(9*gib, 18*gib)
	assert.Equal(t, "9.0 GiB of 18 GiB used (50.0%)", st.Summary())
	assert.InDelta(t, 0.5, st.UsageRatio(), 0.0001)
	assert.Equal(t, float64(1), newStatus(1, 0).UsageRatio())
}

func TestSweeper_Sweep(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("deletes only assets idle longer than the threshold", func(t *testing.T) {
		store := newMemStore()
		store.add("fresh.png", 10, now.Add(-29*time.Minute), now.Add(-29*time.Minute))
		store.add("stale.png", 20, now.Add(-31*time.Minute), now.Add(-31*time.Minute))
		store.add("boundary.png", 5, now.Add(-time.Hour), now.Add(-30*time.Minute))

		s := NewSweeper(store, 30*time.Minute, testLogger(), WithClock(fixedClock(now)))
		res, err := s.Sweep(ctx)
		require.NoError(t, err)

		assert.Equal(t, []string{"stale.png"}, res.Deleted)
		assert.Equal(t, int64(20), res.BytesFreed)
		assert.True(t, store.has("fresh.png"))
		assert.True(t, store.has("boundary.png"))
		assert.False(t, store.has("stale.png"))
	})

	t.Run("idle is measured from last access not creation", func(t *testing.T) {
		store := newMemStore()
		store.add("old-but-served.png", 10, now.Add(-2*time.Hour), now.Add(-time.Minute))

		s := NewSweeper(store, 30*time.Minute, testLogger(), WithClock(fixedClock(now)))
		res, err := s.Sweep(ctx)
		require.NoError(t, err)
		assert.Empty(t, res.Deleted)
		assert.True(t, store.has("old-but-served.png"))
	})

	t.Run("empty store reports nothing", func(t *testing.T) {
		s := NewSweeper(newMemStore(), 30*time.Minute, testLogger())
		res, err := s.Sweep(ctx)
		require.NoError(t, err)
		assert.NotNil(t, res.Deleted)
		assert.Empty(t, res.Deleted)
		assert.Zero(t, res.BytesFreed)
	})

	t.Run("a failed deletion is skipped", func(t *testing.T) {
		store := newMemStore()
		stale := now.Add(-time.Hour)
		store.add("a.png", 1, stale, stale)
		store.add("b.png", 2, stale, stale)
		store.add("c.png", 4, stale, stale)
		store.deleteErr["b.png"] = errors.New("permission denied")

		s := NewSweeper(store, 30*time.Minute, testLogger(), WithClock(fixedClock(now)))
		res, err := s.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.png", "c.png"}, res.Deleted)
		assert.Equal(t, int64(5), res.BytesFreed)
		assert.True(t, store.has("b.png"))
	})

	t.Run("list failure is returned", func(t *testing.T) {
		store := newMemStore()
		store.listErr = errors.New("io error")
		s := NewSweeper(store, 30*time.Minute, testLogger())
		_, err := s.Sweep(ctx)
		require.Error(t, err)
	})

	t.Run("cancelled caller does not abort the sweep", func(t *testing.T) {
		store := newMemStore()
		stale := now.Add(-time.Hour)
		store.add("a.png", 1, stale, stale)

		cctx, cancel := context.WithCancel(ctx)
		cancel()

		s := NewSweeper(store, 30*time.Minute, testLogger(), WithClock(fixedClock(now)))
		res, err := s.Sweep(cctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.png"}, res.Deleted)
	})

	t.Run("non-positive threshold uses default", func(t *testing.T) {
		s := NewSweeper(newMemStore(), 0, nil)
		assert.Equal(t, DefaultIdleThreshold, s.Threshold())
	})
}

func TestSweeper_ConcurrentCallsShareOnePass(t *testing.T) {
	store := newMemStore()
	store.listDelay = 50 * time.Millisecond
	stale := time.Now().Add(-time.Hour)
	store.add("a.png", 1, stale, stale)

	s := NewSweeper(store, 30*time.Minute, testLogger())

	var wg sync.WaitGroup
	results := make([]SweepResult, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.Sweep(context.Background())
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		total += len(r.Deleted)
	}
	// Every caller observes the deletion, but the store is listed fewer times than there were callers.
	assert.GreaterOrEqual(t, total, 1)
	assert.Less(t, int(store.lists.Load()), len(results))
	assert.False(t, store.has("a.png"))
}

func TestSweeper_Schedule(t *testing.T) {
	store := newMemStore()
	stale := time.Now().Add(-time.Hour)
	store.add("a.png", 1, stale, stale)

	s := NewSweeper(store, 30*time.Minute, testLogger())
	c := cron.New()

	_, err := s.Schedule(c, "not a schedule")
	require.Error(t, err)

	_, err = s.Schedule(c, "@every 1s")
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)

	c.Start()
	defer c.Stop()

	assert.Eventually(t, func() bool { return !store.has("a.png") }, 3*time.Second, 50*time.Millisecond)
}

func TestRefresher_Serve(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("serving resets idle time", func(t *testing.T) {
		store := newMemStore()
		idle := now.Add(-29 * time.Minute)
		store.add("slide.png", 10, idle, idle)

		r := NewRefresher(store, testLogger(), WithClock(fixedClock(now)))
		data, f, err := r.Serve(ctx, "slide.png")
		require.NoError(t, err)
		assert.Equal(t, []byte("slide.png"), data)
		assert.Equal(t, now, f.LastAccessedAt)
		assert.Equal(t, idle, f.CreatedAt)

		// Two minutes later the asset has been idle for 2 minutes, not 31.
		later := now.Add(2 * time.Minute)
		s := NewSweeper(store, 30*time.Minute, testLogger(), WithClock(fixedClock(later)))
		res, err := s.Sweep(ctx)
		require.NoError(t, err)
		assert.Empty(t, res.Deleted)
		assert.True(t, store.has("slide.png"))
	})

	t.Run("missing asset", func(t *testing.T) {
		r := NewRefresher(newMemStore(), testLogger())
		_, _, err := r.Serve(ctx, "nope.png")
		assert.ErrorIs(t, err, storage.ErrAssetNotFound)
	})

	t.Run("touch failure still serves", func(t *testing.T) {
		store := newMemStore()
		store.add("slide.png", 10, now, now.Add(-time.Minute))
		store.touchErr = errors.New("read-only filesystem")

		r := NewRefresher(store, testLogger(), WithClock(fixedClock(now)))
		data, f, err := r.Serve(ctx, "slide.png")
		require.NoError(t, err)
		assert.NotEmpty(t, data)
		assert.Equal(t, now.Add(-time.Minute), f.LastAccessedAt)
	})

	t.Run("asset evicted during touch", func(t *testing.T) {
		store := newMemStore()
		store.add("slide.png", 10, now, now)
		store.touchErr = storage.ErrAssetNotFound

		r := NewRefresher(store, testLogger())
		_, _, err := r.Serve(ctx, "slide.png")
		assert.ErrorIs(t, err, storage.ErrAssetNotFound)
	})
}

func TestInspector_Files(t *testing.T) {
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	store := newMemStore()
	store.add("older.png", 1024*1024, now.Add(-20*time.Minute), now.Add(-20*time.Minute))
	store.add("newer.png", 1024*1024, now.Add(-5*time.Minute), now.Add(-5*time.Minute))
	store.add("expired.png", 2*1024*1024, now.Add(-40*time.Minute), now.Add(-time.Minute))

	i := NewInspector(store, 30*time.Minute, 8*1024*1024, WithClock(fixedClock(now)))
	report, err := i.Files(ctx)
	require.NoError(t, err)

	require.Len(t, report.Files, 3)
	assert.Equal(t, "newer.png", report.Files[0].Name)
	assert.Equal(t, "older.png", report.Files[1].Name)
	assert.Equal(t, "expired.png", report.Files[2].Name)

	assert.Equal(t, now.Add(-5*time.Minute).UnixMilli(), report.Files[0].UploadTime)
	assert.Equal(t, (25 * time.Minute).Milliseconds(), report.Files[0].TimeRemaining)
	assert.Equal(t, (-10 * time.Minute).Milliseconds(), report.Files[2].TimeRemaining)

	// served a minute ago, so still live despite its upload age
	assert.Equal(t, now.Add(-time.Minute).UnixMilli(), report.Files[2].LastAccessTime)
	assert.Equal(t, (29 * time.Minute).Milliseconds(), report.Files[2].EvictableIn)
	assert.Equal(t, (10 * time.Minute).Milliseconds(), report.Files[1].EvictableIn)

	assert.Equal(t, 3, report.Stats.TotalFiles)
	assert.Equal(t, int64(4*1024*1024), report.Stats.TotalSizeBytes)
	assert.InDelta(t, 4.0, report.Stats.TotalSizeMB, 0.0001)
	assert.InDelta(t, 8.0, report.Stats.StorageLimitMB, 0.0001)
	assert.InDelta(t, 50.0, report.Stats.UsagePercentage, 0.0001)
}

func TestLifecycle_LocalStore(t *testing.T) {
	ctx := context.Background()
	now := time.Now().Truncate(time.Second)
	dir := t.TempDir()

	putAt := func(index int, at time.Time) string {
		t.Helper()
		s, err := storage.NewLocalStore(dir, storage.WithClock(fixedClock(at)))
		require.NoError(t, err)
		f, err := s.Put(ctx, index, []byte("png"), ".png")
		require.NoError(t, err)
		return f.Name
	}

	fresh := putAt(1, now.Add(-29*time.Minute))
	stale := putAt(2, now.Add(-31*time.Minute))
	served := putAt(3, now.Add(-31*time.Minute))

	store, err := storage.NewLocalStore(dir)
	require.NoError(t, err)

	_, _, err = NewRefresher(store, testLogger(), WithClock(fixedClock(now))).Serve(ctx, served)
	require.NoError(t, err)

	res, err := NewSweeper(store, 30*time.Minute, testLogger(), WithClock(fixedClock(now))).Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{stale}, res.Deleted)

	_, err = store.Stat(ctx, fresh)
	assert.NoError(t, err)
	_, err = store.Stat(ctx, served)
	assert.NoError(t, err)
	_, err = store.Stat(ctx, stale)
	assert.ErrorIs(t, err, storage.ErrAssetNotFound)
}
