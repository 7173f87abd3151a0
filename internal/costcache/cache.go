// Package costcache holds the single cached cost table extracted from the
// pricing workbook.
//
// Loading the workbook is expensive (seconds when the automation engine is
// involved), so concurrent requests for the same workbook are coalesced into
// one load and every caller shares its result. The cache holds at most one
// entry: pointing the service at a different workbook, or changing the
// compatibility mode, drops the previous table.
package costcache

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/quoteworks/quotegen/internal/settings"
	"github.com/quoteworks/quotegen/internal/workbook"
)

var (
	// ErrDisabled means the compatibility mode turns workbook pricing off;
	// callers must fall back to offline pricing without touching the
	// workbook at all.
	ErrDisabled = errors.New("workbook pricing disabled")

	// ErrNoWorkbook means no workbook location is configured.
	ErrNoWorkbook = errors.New("no workbook configured")
)

// Loader loads a cost table from a workbook location. *workbook.Loader is
// the production implementation.
type Loader interface {
	Load(ctx context.Context, location string, mode settings.CompatMode) (workbook.LoadResult, error)
}

// Snapshot is one cached cost table plus where and how it was loaded. Every
// Snapshot handed out is an independent copy of the cache's entry.
type Snapshot struct {
	Location string
	Base     float64
	Items    map[string]float64
	Method   string
	LoadedAt time.Time
}

type entry struct {
	key   cacheKey
	table workbook.CostTable
	snap  Snapshot
}

type cacheKey struct {
	location string
	mode     settings.CompatMode
}

// Cache is the process-wide cost table cache.
type Cache struct {
	loader Loader
	log    *slog.Logger
	now    func() time.Time

	group singleflight.Group

	mu    sync.Mutex
	entry *entry
}

// New builds a cache over loader.
func New(loader Loader, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{loader: loader, log: log, now: time.Now}
}

// Get returns the cost table for the configured workbook, loading it at most
// once no matter how many goroutines ask concurrently. Load failures are not
// cached; the next call tries again.
func (c *Cache) Get(ctx context.Context, s settings.Settings) (Snapshot, error) {
	key, err := c.key(s)
	if err != nil {
		return Snapshot{}, err
	}

	c.mu.Lock()
	if c.entry != nil && c.entry.key == key {
		snap := c.entry.snapshot()
		c.mu.Unlock()
		return snap, nil
	}
	// A different workbook or mode was cached before; drop it so a failed
	// load of the new one cannot serve stale data for the old one.
	c.entry = nil
	c.mu.Unlock()

	return c.load(ctx, key)
}

// Ensure makes sure a table is cached for the configured workbook, loading
// it if necessary. No deadline is imposed here; callers that cannot wait for
// a slow automation load should bound ctx themselves.
func (c *Cache) Ensure(ctx context.Context, s settings.Settings) error {
	_, err := c.Get(ctx, s)
	return err
}

// Refresh drops any cached table and loads the workbook again.
func (c *Cache) Refresh(ctx context.Context, s settings.Settings) (Snapshot, error) {
	key, err := c.key(s)
	if err != nil {
		return Snapshot{}, err
	}

	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()

	return c.load(ctx, key)
}

// PreloadResult reports the outcome of a startup preload.
type PreloadResult struct {
	Enabled  bool   `json:"enabled"`
	Loaded   bool   `json:"loaded"`
	Workbook string `json:"workbook,omitempty"`
	Method   string `json:"method,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Preload warms the cache ahead of the first pricing request. It never
// returns an error: a failed preload is logged and the first real request
// retries the load.
func (c *Cache) Preload(ctx context.Context, s settings.Settings) PreloadResult {
	snap, err := c.Get(ctx, s)
	switch {
	case errors.Is(err, ErrDisabled):
		c.log.Info("workbook preload skipped", "reason", "pricing disabled")
		return PreloadResult{}
	case errors.Is(err, ErrNoWorkbook):
		c.log.Info("workbook preload skipped", "reason", "no workbook configured")
		return PreloadResult{Enabled: true}
	case err != nil:
		c.log.Warn("workbook preload failed", "workbook", s.WorkbookPath, "error", err)
		return PreloadResult{Enabled: true, Workbook: s.WorkbookPath, Error: err.Error()}
	}
	c.log.Info("workbook preloaded", "workbook", snap.Location, "method", snap.Method)
	return PreloadResult{Enabled: true, Loaded: true, Workbook: snap.Location, Method: snap.Method}
}

// Invalidate drops the cached table without loading a replacement. Settings
// changes call it so the next pricing request sees the new workbook.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

// Cached returns the current snapshot without loading, and whether one
// exists.
func (c *Cache) Cached() (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entry == nil {
		return Snapshot{}, false
	}
	return c.entry.snapshot(), true
}

func (c *Cache) key(s settings.Settings) (cacheKey, error) {
	if !s.CompatMode.Enabled() {
		return cacheKey{}, ErrDisabled
	}
	if s.WorkbookPath == "" {
		return cacheKey{}, ErrNoWorkbook
	}
	return cacheKey{location: s.WorkbookPath, mode: s.CompatMode}, nil
}

// load coalesces concurrent loads of the same key into one workbook read.
func (c *Cache) load(ctx context.Context, key cacheKey) (Snapshot, error) {
	v, err, _ := c.group.Do(key.location+"\x00"+string(key.mode), func() (any, error) {
		// Another coalesced caller may have published while this one
		// waited for the flight slot.
		c.mu.Lock()
		if c.entry != nil && c.entry.key == key {
			snap := c.entry.snapshot()
			c.mu.Unlock()
			return snap, nil
		}
		c.mu.Unlock()

		res, err := c.loader.Load(ctx, key.location, key.mode)
		if err != nil {
			return Snapshot{}, err
		}

		e := &entry{
			key:   key,
			table: res.Table.Clone(),
			snap: Snapshot{
				Location: key.location,
				Base:     res.Table.Base,
				Method:   res.Method,
				LoadedAt: c.now(),
			},
		}
		c.mu.Lock()
		c.entry = e
		c.mu.Unlock()
		return e.snapshot(), nil
	})
	// Forget so a later miss starts a fresh flight instead of reusing a
	// stale in-flight result.
	c.group.Forget(key.location + "\x00" + string(key.mode))
	if err != nil {
		return Snapshot{}, err
	}
	return v.(Snapshot), nil
}

// snapshot copies the entry so callers can never alias the cached maps.
func (e *entry) snapshot() Snapshot {
	s := e.snap
	s.Items = make(map[string]float64, len(e.table.Items))
	for k, v := range e.table.Items {
		s.Items[k] = v
	}
	return s
}
