package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MemEngine is an in-memory Engine used by tests and by local development
// when no real automation helper is installed. It models one workbook as a
// sheet → cell → value map and supports the same session lifecycle as the
// process engine, including the read-write rejection path.
type MemEngine struct {
	mu sync.Mutex

	// Sheets is the workbook content keyed by sheet name then cell ref.
	Sheets map[string]map[string]float64

	// RejectReadWrite makes read-write opens fail, forcing callers through
	// the read-only fallback (models a workbook locked elsewhere).
	RejectReadWrite bool

	// OpenErr fails every open attempt.
	OpenErr error

	// Recalc, when set, runs on Recalculate with the live cell map. Tests
	// use it to emulate workbook formulas.
	Recalc func(sheets map[string]map[string]float64)

	// Opens counts Open calls across all sessions.
	Opens int
}

// NewMemEngine returns an engine over a copy of sheets.
func NewMemEngine(sheets map[string]map[string]float64) *MemEngine {
	cp := make(map[string]map[string]float64, len(sheets))
	for name, cells := range sheets {
		c := make(map[string]float64, len(cells))
		for k, v := range cells {
			c[k] = v
		}
		cp[name] = c
	}
	return &MemEngine{Sheets: cp}
}

// Open starts an in-memory session.
func (e *MemEngine) Open(_ context.Context, location string, readWrite bool) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.Opens++
	if e.OpenErr != nil {
		return nil, &Error{Op: "open", Err: e.OpenErr}
	}
	if readWrite && e.RejectReadWrite {
		return nil, &Error{Op: "open", Err: fmt.Errorf("workbook %s is locked for editing", location)}
	}
	return &memSession{engine: e, readOnly: !readWrite}, nil
}

// Cell returns the current value of a cell, for assertions after a session
// has written into the workbook.
func (e *MemEngine) Cell(sheet, cell string) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cells, ok := e.Sheets[sheet]
	if !ok {
		return 0, false
	}
	v, ok := cells[cell]
	return v, ok
}

type memSession struct {
	engine   *MemEngine
	readOnly bool

	mu     sync.Mutex
	closed bool
}

func (s *memSession) guard(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &Error{Op: op, Err: errors.New("session already closed")}
	}
	return nil
}

func (s *memSession) HasSheet(_ context.Context, name string) (bool, error) {
	if err := s.guard("has_sheet"); err != nil {
		return false, err
	}
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	_, ok := s.engine.Sheets[name]
	return ok, nil
}

func (s *memSession) SetNumber(_ context.Context, sheet, cell string, value float64) error {
	if err := s.guard("set"); err != nil {
		return err
	}
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	cells, ok := s.engine.Sheets[sheet]
	if !ok {
		return &Error{Op: "set", Err: fmt.Errorf("sheet %s not found", sheet)}
	}
	cells[cell] = value
	return nil
}

func (s *memSession) Number(_ context.Context, sheet, cell string) (float64, error) {
	if err := s.guard("get"); err != nil {
		return 0, err
	}
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	cells, ok := s.engine.Sheets[sheet]
	if !ok {
		return 0, &Error{Op: "get", Err: fmt.Errorf("sheet %s not found", sheet)}
	}
	return cells[cell], nil
}

func (s *memSession) Recalculate(_ context.Context) error {
	if err := s.guard("calc"); err != nil {
		return err
	}
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	if s.engine.Recalc != nil {
		s.engine.Recalc(s.engine.Sheets)
	}
	return nil
}

func (s *memSession) ReadOnly() bool { return s.readOnly }

func (s *memSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
