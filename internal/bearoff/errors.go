package bearoff

import (
	"errors"
	"fmt"
)

var (
	// ErrPositionRange is returned for a position id outside [0, NumPositions()).
	ErrPositionRange = errors.New("bearoff: position id out of range")
	// ErrClosed is returned when reading from a closed database.
	ErrClosed = errors.New("bearoff: database is closed")
	// ErrNotBearoff is returned when a board cannot be looked up in the database.
	ErrNotBearoff = errors.New("bearoff: position not covered by database")
	// ErrCanceled is returned when generation is stopped by its context or progress callback.
	ErrCanceled = errors.New("bearoff: generation canceled")
)

// IOError reports a failure to open, stat, map or read the backing store,
// including short reads.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("bearoff: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// FormatError reports a header that does not describe a readable database.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("bearoff: %s: invalid database: %s", e.Path, e.Reason)
}

// IntegrityError reports a database whose contents contradict its own
// geometry. It is never recovered from by clamping.
type IntegrityError struct {
	Path     string
	Position int
	Reason   string
}

func (e *IntegrityError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf("bearoff: %s is likely to be corrupted: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("bearoff: %s is likely to be corrupted (position %d): %s",
		e.Path, e.Position, e.Reason)
}

// UnsupportedError is returned for an operation the database cannot answer,
// such as a cubeful query on a cubeless table.
type UnsupportedError struct {
	Op   string
	Type Type
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("bearoff: %s not supported by %s database", e.Op, e.Type)
}

func formatErrorf(path, format string, args ...any) error {
	return &FormatError{Path: path, Reason: fmt.Sprintf(format, args...)}
}
