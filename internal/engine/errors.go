package engine

import (
	"errors"

	"github.com/pesadb/pesadb/internal/catalog"
	"github.com/pesadb/pesadb/internal/sql/executor"
	"github.com/pesadb/pesadb/internal/sql/parser"
	"github.com/pesadb/pesadb/internal/sql/planner"
	"github.com/pesadb/pesadb/internal/storage"
)

// Category groups errors for clients that branch on failure class rather
// than on individual error types.
type Category string

const (
	CategorySyntax     Category = "syntax"
	CategorySemantic   Category = "semantic"
	CategoryConstraint Category = "constraint"
	CategoryStorage    Category = "storage"
	CategoryExecution  Category = "execution"
	CategoryInternal   Category = "internal"
)

// Categorize maps an error from Execute into its category.
func Categorize(err error) Category {
	var (
		syntaxErr     *parser.SyntaxError
		unknownTable  *planner.UnknownTableError
		unknownColumn *planner.UnknownColumnError
		ambiguous     *planner.AmbiguousColumnError
		typeMismatch  *planner.TypeMismatchError
		valueCount    *planner.ValueCountError
		bindErr       *planner.BindError
		notNull       *executor.NotNullViolationError
		duplicate     *executor.DuplicateKeyError
		foreignKey    *executor.ForeignKeyViolationError
		rowTooLarge   *executor.RowTooLargeError
		corrupt       *storage.CorruptPageError
		invalidPage   *storage.InvalidPageIDError
		ioErr         *storage.IOError
		overflow      *catalog.OverflowError
	)
	switch {
	case errors.As(err, &syntaxErr):
		return CategorySyntax
	case errors.As(err, &unknownTable),
		errors.As(err, &unknownColumn),
		errors.As(err, &ambiguous),
		errors.As(err, &typeMismatch),
		errors.As(err, &valueCount),
		errors.As(err, &bindErr):
		return CategorySemantic
	case errors.As(err, &notNull),
		errors.As(err, &duplicate),
		errors.As(err, &foreignKey):
		return CategoryConstraint
	case errors.As(err, &corrupt),
		errors.As(err, &invalidPage),
		errors.As(err, &ioErr),
		errors.As(err, &overflow),
		errors.As(err, &rowTooLarge),
		errors.Is(err, storage.ErrDatabaseLocked):
		return CategoryStorage
	case errors.Is(err, executor.ErrDivisionByZero):
		return CategoryExecution
	default:
		return CategoryInternal
	}
}
