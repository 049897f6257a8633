package executor

import (
	"errors"
	"fmt"

	"github.com/pesadb/pesadb/internal/types"
)

// ErrDivisionByZero is returned when an expression divides by zero at
// runtime.
var ErrDivisionByZero = errors.New("division by zero")

// RowTooLargeError reports a row whose serialized form exceeds what a
// single page can hold.
type RowTooLargeError struct {
	Table string
	Size  int
	Limit int
}

func (e *RowTooLargeError) Error() string {
	return fmt.Sprintf("row for table %q is %d bytes; the maximum is %d", e.Table, e.Size, e.Limit)
}

// NotNullViolationError reports a NULL value arriving in a NOT NULL
// column.
type NotNullViolationError struct {
	Table  string
	Column string
}

func (e *NotNullViolationError) Error() string {
	return fmt.Sprintf("column %s.%s cannot be NULL", e.Table, e.Column)
}

// DuplicateKeyError reports a primary key value that already exists.
type DuplicateKeyError struct {
	Table  string
	Column string
	Value  types.Value
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("duplicate primary key %s in %s.%s", e.Value, e.Table, e.Column)
}

// ForeignKeyViolationError reports a broken reference: on insert or
// update, a child value with no matching parent row; on delete, a parent
// row that child rows still point at.
type ForeignKeyViolationError struct {
	Table      string
	Column     string
	RefTable   string
	RefColumn  string
	Value      types.Value
	Referenced bool // true for the delete case
}

func (e *ForeignKeyViolationError) Error() string {
	if e.Referenced {
		return fmt.Sprintf("cannot delete from %s: value %s is still referenced by %s.%s",
			e.RefTable, e.Value, e.Table, e.Column)
	}
	return fmt.Sprintf("foreign key violation: %s.%s = %s has no matching row in %s.%s",
		e.Table, e.Column, e.Value, e.RefTable, e.RefColumn)
}
