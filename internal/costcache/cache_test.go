package costcache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quoteworks/quotegen/internal/pricing"
	"github.com/quoteworks/quotegen/internal/settings"
	"github.com/quoteworks/quotegen/internal/workbook"
)

type stubLoader struct {
	mu    sync.Mutex
	calls int32
	delay time.Duration
	err   error
	table workbook.CostTable
}

func (l *stubLoader) Load(ctx context.Context, location string, mode settings.CompatMode) (workbook.LoadResult, error) {
	atomic.AddInt32(&l.calls, 1)
	if l.delay > 0 {
		select {
		case <-time.After(l.delay):
		case <-ctx.Done():
			return workbook.LoadResult{}, ctx.Err()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return workbook.LoadResult{}, l.err
	}
	return workbook.LoadResult{Table: l.table.Clone(), Method: "xlsx"}, nil
}

func (l *stubLoader) loadCount() int32 {
	return atomic.LoadInt32(&l.calls)
}

func (l *stubLoader) setErr(err error) {
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
}

func testTable() workbook.CostTable {
	return workbook.CostTable{
		Base: 119104.83,
		Items: map[string]float64{
			pricing.LabelSpareParts:  500.00,
			pricing.LabelGuardTaller: 2100.75,
		},
	}
}

func testSettings(path string) settings.Settings {
	s := settings.Default()
	s.WorkbookPath = path
	return s
}

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGet_CoalescesConcurrentLoads(t *testing.T) {
	loader := &stubLoader{table: testTable(), delay: 50 * time.Millisecond}
	cache := New(loader, quietLog())
	s := testSettings("costs.xlsx")

	const callers = 16
	var wg sync.WaitGroup
	errs := make([]error, callers)
	snaps := make([]Snapshot, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			snaps[i], errs[i] = cache.Get(context.Background(), s)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if snaps[i].Base != 119104.83 {
			t.Fatalf("caller %d: base = %v", i, snaps[i].Base)
		}
	}
	if n := loader.loadCount(); n != 1 {
		t.Fatalf("workbook loaded %d times, want 1", n)
	}
}

func TestGet_ServesCachedEntryWithoutLoading(t *testing.T) {
	loader := &stubLoader{table: testTable()}
	cache := New(loader, quietLog())
	s := testSettings("costs.xlsx")

	if _, err := cache.Get(context.Background(), s); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if _, err := cache.Get(context.Background(), s); err != nil {
		t.Fatalf("second get: %v", err)
	}
	if n := loader.loadCount(); n != 1 {
		t.Fatalf("workbook loaded %d times, want 1", n)
	}
}

func TestGet_WorkbookChangeInvalidates(t *testing.T) {
	loader := &stubLoader{table: testTable()}
	cache := New(loader, quietLog())

	if _, err := cache.Get(context.Background(), testSettings("a.xlsx")); err != nil {
		t.Fatalf("load a: %v", err)
	}
	snap, err := cache.Get(context.Background(), testSettings("b.xlsx"))
	if err != nil {
		t.Fatalf("load b: %v", err)
	}
	if snap.Location != "b.xlsx" {
		t.Fatalf("location = %q, want b.xlsx", snap.Location)
	}
	if n := loader.loadCount(); n != 2 {
		t.Fatalf("workbook loaded %d times, want 2", n)
	}
}

func TestGet_ModeChangeInvalidates(t *testing.T) {
	loader := &stubLoader{table: testTable()}
	cache := New(loader, quietLog())

	s := testSettings("a.xlsx")
	if _, err := cache.Get(context.Background(), s); err != nil {
		t.Fatalf("load auto: %v", err)
	}
	s.CompatMode = settings.ModeFast
	if _, err := cache.Get(context.Background(), s); err != nil {
		t.Fatalf("load fast: %v", err)
	}
	if n := loader.loadCount(); n != 2 {
		t.Fatalf("workbook loaded %d times, want 2", n)
	}
}

func TestRefresh_ForcesReload(t *testing.T) {
	loader := &stubLoader{table: testTable()}
	cache := New(loader, quietLog())
	s := testSettings("costs.xlsx")

	if _, err := cache.Get(context.Background(), s); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := cache.Refresh(context.Background(), s); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if n := loader.loadCount(); n != 2 {
		t.Fatalf("workbook loaded %d times, want 2", n)
	}
}

func TestGet_DisabledModeDoesNoIO(t *testing.T) {
	loader := &stubLoader{table: testTable()}
	cache := New(loader, quietLog())

	s := testSettings("costs.xlsx")
	s.CompatMode = settings.ModeOff

	if _, err := cache.Get(context.Background(), s); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if n := loader.loadCount(); n != 0 {
		t.Fatalf("workbook loaded %d times, want 0", n)
	}
}

func TestGet_NoWorkbookConfigured(t *testing.T) {
	cache := New(&stubLoader{table: testTable()}, quietLog())

	if _, err := cache.Get(context.Background(), testSettings("")); !errors.Is(err, ErrNoWorkbook) {
		t.Fatalf("expected ErrNoWorkbook, got %v", err)
	}
}

func TestGet_ErrorsAreNotCached(t *testing.T) {
	loader := &stubLoader{table: testTable()}
	loader.setErr(errors.New("engine unavailable"))
	cache := New(loader, quietLog())
	s := testSettings("costs.xlsx")

	if _, err := cache.Get(context.Background(), s); err == nil {
		t.Fatal("expected the load error to surface")
	}

	loader.setErr(nil)
	snap, err := cache.Get(context.Background(), s)
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if snap.Method != "xlsx" {
		t.Fatalf("method = %q", snap.Method)
	}
	if n := loader.loadCount(); n != 2 {
		t.Fatalf("workbook loaded %d times, want 2", n)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	loader := &stubLoader{table: testTable()}
	cache := New(loader, quietLog())
	s := testSettings("costs.xlsx")

	first, err := cache.Get(context.Background(), s)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	first.Items[pricing.LabelSpareParts] = -1

	second, err := cache.Get(context.Background(), s)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if second.Items[pricing.LabelSpareParts] != 500.00 {
		t.Fatalf("cached table mutated through a snapshot: %v", second.Items[pricing.LabelSpareParts])
	}
}

func TestPreload(t *testing.T) {
	loader := &stubLoader{table: testTable()}
	cache := New(loader, quietLog())

	res := cache.Preload(context.Background(), testSettings("costs.xlsx"))
	if !res.Enabled || !res.Loaded || res.Method != "xlsx" {
		t.Fatalf("preload result: %+v", res)
	}

	off := testSettings("costs.xlsx")
	off.CompatMode = settings.ModeOff
	res = New(loader, quietLog()).Preload(context.Background(), off)
	if res.Enabled || res.Loaded {
		t.Fatalf("disabled preload result: %+v", res)
	}

	failing := &stubLoader{table: testTable()}
	failing.setErr(errors.New("boom"))
	res = New(failing, quietLog()).Preload(context.Background(), testSettings("costs.xlsx"))
	if !res.Enabled || res.Loaded || res.Error == "" {
		t.Fatalf("failed preload result: %+v", res)
	}
}
