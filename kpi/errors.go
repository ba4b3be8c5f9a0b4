package kpi

import (
	"fmt"
	"strings"
)

// MissingColumnError reports required columns absent from the input header.
// The load fails before any row is read.
type MissingColumnError struct {
	Columns []string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Columns, ", "))
}

// UnreadableFileError indicates the input file could not be opened or parsed
// in its detected format.
type UnreadableFileError struct {
	Path string
	Err  error
}

func (e *UnreadableFileError) Error() string {
	return fmt.Sprintf("unreadable input file %s: %v", e.Path, e.Err)
}

func (e *UnreadableFileError) Unwrap() error {
	return e.Err
}

// InvalidRowError identifies a single row that could not be coerced. The
// loader rejects the row and continues; it never aborts the whole load.
type InvalidRowError struct {
	Row    int
	Column string
	Err    error
}

func (e *InvalidRowError) Error() string {
	return fmt.Sprintf("row %d: invalid %s: %v", e.Row, e.Column, e.Err)
}

func (e *InvalidRowError) Unwrap() error {
	return e.Err
}
