package storage

import (
	"errors"
	"fmt"
)

// ErrDatabaseLocked is returned when another process already holds the
// exclusive lock on the database file.
var ErrDatabaseLocked = errors.New("database file is locked by another process")

// ErrPageFull is returned when a record does not fit into the page's
// remaining free space.
var ErrPageFull = errors.New("page full")

// CorruptPageError indicates that a page read from disk failed structural
// validation and cannot be trusted.
type CorruptPageError struct {
	PageID uint32
	Reason string
}

func (e *CorruptPageError) Error() string {
	return fmt.Sprintf("corrupt page %d: %s", e.PageID, e.Reason)
}

// InvalidPageIDError indicates a page id at or beyond the current end of
// the file.
type InvalidPageIDError struct {
	PageID    uint32
	PageCount uint32
}

func (e *InvalidPageIDError) Error() string {
	return fmt.Sprintf("invalid page id %d: file has %d pages", e.PageID, e.PageCount)
}

// IOError wraps an operating system failure during a page read or write.
type IOError struct {
	Op     string
	PageID uint32
	Err    error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("storage %s page %d: %v", e.Op, e.PageID, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
