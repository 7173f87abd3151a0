package workbook

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/quoteworks/quotegen/internal/automation"
	"github.com/quoteworks/quotegen/internal/settings"
)

// Strategy names reported in LoadResult.Method and surfaced through the
// bootstrap/refresh API payloads.
const (
	MethodXLSB       = "xlsb"
	MethodXLSX       = "xlsx"
	MethodAutomation = "automation"
)

// LoadResult is a successfully extracted cost table plus the name of the
// strategy that produced it.
type LoadResult struct {
	Table  CostTable
	Method string
}

// Loader is the strategy chain. It tries the applicable readers in order of
// increasing cost and risk, treating any reader error as "try the next one";
// only exhausting the chain surfaces a failure.
type Loader struct {
	Engine automation.Engine
	Log    *slog.Logger
}

// NewLoader builds a loader over the given automation engine.
func NewLoader(engine automation.Engine, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.Default()
	}
	return &Loader{Engine: engine, Log: log}
}

type strategy struct {
	name string
	read func(ctx context.Context) (CostTable, error)
}

// plan selects the ordered strategies for a location under a compatibility
// mode. Remote locations need the automation engine (the fast readers
// require local random-access I/O); mode com forces automation; mode
// openpyxl restricts to the fast readers with no automation fallback.
func (l *Loader) plan(location string, mode settings.CompatMode) ([]strategy, error) {
	auto := strategy{name: MethodAutomation, read: func(ctx context.Context) (CostTable, error) {
		return readAutomation(ctx, l.Engine, location)
	}}

	if settings.IsURL(location) {
		if mode == settings.ModeFast {
			return nil, fmt.Errorf("%w: remote workbook %s needs the automation engine, which mode %q disables", ErrSourceNotFound, location, mode)
		}
		return []strategy{auto}, nil
	}

	if _, err := os.Stat(location); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, location)
	}

	if mode == settings.ModeAutomation {
		return []strategy{auto}, nil
	}

	var fast strategy
	if strings.EqualFold(filepath.Ext(location), ".xlsb") {
		fast = strategy{name: MethodXLSB, read: func(context.Context) (CostTable, error) {
			return readXLSB(location)
		}}
	} else {
		fast = strategy{name: MethodXLSX, read: func(context.Context) (CostTable, error) {
			return readXLSX(location)
		}}
	}

	if mode == settings.ModeFast {
		return []strategy{fast}, nil
	}
	return []strategy{fast, auto}, nil
}

// Load runs the chain and returns the first successful table. The error of
// the final strategy is returned when every strategy fails.
func (l *Loader) Load(ctx context.Context, location string, mode settings.CompatMode) (LoadResult, error) {
	chain, err := l.plan(location, mode)
	if err != nil {
		return LoadResult{}, err
	}

	for i, s := range chain {
		table, err := s.read(ctx)
		if err == nil {
			l.Log.Debug("workbook loaded", "location", location, "method", s.name)
			return LoadResult{Table: table, Method: s.name}, nil
		}
		if i == len(chain)-1 {
			return LoadResult{}, err
		}
		l.Log.Warn("workbook reader failed, falling back",
			"location", location,
			"method", s.name,
			"next", chain[i+1].name,
			"error", err,
		)
	}
	// plan never returns an empty chain without an error.
	return LoadResult{}, fmt.Errorf("%w: %s", ErrSourceNotFound, location)
}
