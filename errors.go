package main

import "fmt"

// ConnectivityError reports that the source or target store could not be reached.
type ConnectivityError struct {
	Store string // "source" or "target"
	Err   error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Store, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// QueryError reports a failing read against a source table.
type QueryError struct {
	Table string
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Table, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// JoinKeyError reports a join key column missing from one side of a join.
type JoinKeyError struct {
	Dataset string
	Column  string
}

func (e *JoinKeyError) Error() string {
	return fmt.Sprintf("join key column %q not found in %s", e.Column, e.Dataset)
}

// ParseError reports a date column value that does not match the configured layout.
type ParseError struct {
	Table  string
	Column string
	Row    int // 1-based data row, header excluded
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s.%s row %d: value %q: %v", e.Table, e.Column, e.Row, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// WriteError reports a failed replace of one target table. Tables written
// earlier in the same run stay committed.
type WriteError struct {
	Table string
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Table, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
