// Package automation drives an external spreadsheet-automation engine.
//
// A Session is a live connection to one open workbook inside a short-lived
// engine instance; it can write input cells, force a full recalculation, and
// read calculated values back. Sessions are exclusively owned by the caller
// that opened them and must be closed on every exit path.
package automation

import (
	"context"
	"errors"
	"fmt"
)

// Session is one open workbook in a running automation engine.
type Session interface {
	// HasSheet reports whether the open workbook contains the named sheet.
	HasSheet(ctx context.Context, name string) (bool, error)

	// SetNumber writes a numeric value into a cell. Edits are in-memory in
	// the engine; nothing is saved back to the workbook source, so writes
	// are legal even on read-only sessions.
	SetNumber(ctx context.Context, sheet, cell string, value float64) error

	// Number reads the current numeric value of a cell. Empty and
	// non-numeric cells read as zero.
	Number(ctx context.Context, sheet, cell string) (float64, error)

	// Recalculate forces a full rebuild of the workbook's formula results.
	// Cached values can be stale, so callers must recalculate before the
	// first read.
	Recalculate(ctx context.Context) error

	// ReadOnly reports whether the workbook was opened without write access.
	ReadOnly() bool

	// Close closes the workbook and releases the engine instance. It is
	// safe to call exactly once and must be called even after a failed
	// operation.
	Close() error
}

// Engine opens automation sessions. Each Open launches (or connects to) its
// own engine instance; sessions are never shared between callers.
type Engine interface {
	Open(ctx context.Context, location string, readWrite bool) (Session, error)
}

// Error is an automation-layer failure: the engine could not be started, the
// workbook could not be opened after exhausting the read-write → read-only
// fallback, or a cell operation failed mid-session.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("automation %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsError reports whether err is (or wraps) an automation failure.
func IsError(err error) bool {
	var ae *Error
	return errors.As(err, &ae)
}

// OpenSession opens location preferring read-write access, falling back to a
// read-only open when the read-write attempt is rejected (typically because
// the workbook is locked by another user). The second return value reports
// whether the fallback was taken.
func OpenSession(ctx context.Context, engine Engine, location string) (Session, bool, error) {
	s, err := engine.Open(ctx, location, true)
	if err == nil {
		return s, false, nil
	}

	s, roErr := engine.Open(ctx, location, false)
	if roErr != nil {
		return nil, false, &Error{Op: "open", Err: fmt.Errorf("read-write failed (%v); read-only failed: %w", err, roErr)}
	}
	return s, true, nil
}
