// Package planner turns parsed statements into executable plans. Binding
// happens here: every column reference is resolved to a positional index
// and type-checked, so the executor never sees a name it cannot handle.
package planner

import (
	"fmt"

	"github.com/pesadb/pesadb/internal/catalog"
	"github.com/pesadb/pesadb/internal/sql/parser"
	"github.com/pesadb/pesadb/internal/types"
)

// Expr is a bound expression. Column references carry row positions
// instead of names.
type Expr interface {
	boundExpr()
}

// Column reads position Index from the input row.
type Column struct {
	Index int
	Name  string // qualified name, kept for error messages
	Kind  types.Kind
}

// Const is a literal folded at plan time.
type Const struct {
	Value types.Value
}

// Now yields the statement's evaluation timestamp.
type Now struct{}

// Binary applies an operator to two bound operands.
type Binary struct {
	Op    parser.BinaryOp
	Left  Expr
	Right Expr
}

// Not negates a boolean operand.
type Not struct {
	Expr Expr
}

// IsNull tests an operand for NULL, or for non-NULL when Negate is set.
type IsNull struct {
	Expr   Expr
	Negate bool
}

func (*Column) boundExpr() {}
func (*Const) boundExpr()  {}
func (*Now) boundExpr()    {}
func (*Binary) boundExpr() {}
func (*Not) boundExpr()    {}
func (*IsNull) boundExpr() {}

// JoinStrategy selects how a two-table join is executed.
type JoinStrategy int

const (
	// StrategyAuto lets the planner choose.
	StrategyAuto JoinStrategy = iota
	// StrategyNestedLoop re-scans the joined table for every outer row.
	StrategyNestedLoop
	// StrategyHash builds a hash table over the joined table and probes
	// it with each outer row. Only valid for single-column equality.
	StrategyHash
)

func (s JoinStrategy) String() string {
	switch s {
	case StrategyNestedLoop:
		return "nested-loop"
	case StrategyHash:
		return "hash"
	default:
		return "auto"
	}
}

// Plan is any executable statement plan.
type Plan interface {
	planNode()
}

// CreateTablePlan registers a new table definition.
type CreateTablePlan struct {
	Def *catalog.TableDef
}

// InsertPlan appends fully bound rows to a table. Each row has exactly
// one expression per table column; omitted columns are already filled
// with their DEFAULT or NULL.
type InsertPlan struct {
	Table *catalog.TableDef
	Rows  [][]Expr
}

// JoinStep describes the joined side of a two-table SELECT. For a hash
// join, LeftKey indexes the outer row and RightKey the joined table's
// row; On is nil. For a nested-loop join, On is the full condition over
// the combined row.
type JoinStep struct {
	Table    *catalog.TableDef
	Strategy JoinStrategy
	On       Expr
	LeftKey  int
	RightKey int
}

// SelectPlan scans a table, optionally joins a second, filters, and
// projects. Projection indices and the filter address the combined row:
// outer columns first, then the joined table's.
type SelectPlan struct {
	Table      *catalog.TableDef
	Join       *JoinStep
	Filter     Expr
	Projection []int
	Columns    []string
}

// DeletePlan removes the rows matching Filter (all rows when nil).
type DeletePlan struct {
	Table  *catalog.TableDef
	Filter Expr
}

// UpdatePlan rewrites matching rows by evaluating each Set expression
// against the old row.
type UpdatePlan struct {
	Table  *catalog.TableDef
	Filter Expr
	Set    []ColumnUpdate
}

// ColumnUpdate assigns a bound expression to one column position.
type ColumnUpdate struct {
	Index int
	Value Expr
}

func (*CreateTablePlan) planNode() {}
func (*InsertPlan) planNode()      {}
func (*SelectPlan) planNode()      {}
func (*DeletePlan) planNode()      {}
func (*UpdatePlan) planNode()      {}

// BindError covers the remaining semantic failures that have no
// dedicated type: duplicate columns, unknown functions, and the like.
type BindError struct {
	Msg string
}

func (e *BindError) Error() string { return e.Msg }

func bindErrorf(format string, args ...any) error {
	return &BindError{Msg: fmt.Sprintf(format, args...)}
}

// UnknownTableError names a table absent from the catalog.
type UnknownTableError struct {
	Table string
}

func (e *UnknownTableError) Error() string {
	return fmt.Sprintf("unknown table %q", e.Table)
}

// UnknownColumnError names a column absent from the tables in scope.
type UnknownColumnError struct {
	Column string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column %q", e.Column)
}

// AmbiguousColumnError reports an unqualified column present in both
// sides of a join.
type AmbiguousColumnError struct {
	Column string
}

func (e *AmbiguousColumnError) Error() string {
	return fmt.Sprintf("ambiguous column %q: qualify it with a table name", e.Column)
}

// TypeMismatchError reports incompatible operand or assignment types.
type TypeMismatchError struct {
	Context string
	Want    string
	Got     string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch in %s: expected %s, got %s", e.Context, e.Want, e.Got)
}

// ValueCountError reports an INSERT row with the wrong number of values.
type ValueCountError struct {
	Want int
	Got  int
}

func (e *ValueCountError) Error() string {
	return fmt.Sprintf("expected %d values, got %d", e.Want, e.Got)
}
