// Package parser builds an abstract syntax tree from the token stream.
// It is a recursive-descent parser with Pratt-style expression parsing;
// every production returns the node it built or a SyntaxError pointing at
// the token that broke the grammar.
package parser

import (
	"fmt"
	"strings"

	"github.com/pesadb/pesadb/internal/types"
)

// Statement is any top-level SQL statement.
type Statement interface {
	statementNode()
	String() string
}

// Expression is any node that evaluates to a value.
type Expression interface {
	expressionNode()
	String() string
}

// ColumnSpec is one column definition in a CREATE TABLE statement.
type ColumnSpec struct {
	Name       string
	Type       types.ColumnType
	NotNull    bool
	PrimaryKey bool
	Default    Expression // nil when the column has no DEFAULT clause
	Reference  *Reference // nil when the column has no REFERENCES clause
}

// Reference names the table and column a foreign key points at.
type Reference struct {
	Table  string
	Column string
}

// CreateTableStatement represents CREATE TABLE name (columns...).
type CreateTableStatement struct {
	Table   string
	Columns []ColumnSpec
}

func (*CreateTableStatement) statementNode() {}

func (s *CreateTableStatement) String() string {
	parts := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		parts[i] = c.Name + " " + c.Type.String()
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", s.Table, strings.Join(parts, ", "))
}

// InsertStatement represents INSERT INTO name [(columns)] VALUES (...), ...
type InsertStatement struct {
	Table   string
	Columns []string // nil means positional insert across all columns
	Rows    [][]Expression
}

func (*InsertStatement) statementNode() {}

func (s *InsertStatement) String() string {
	return fmt.Sprintf("INSERT INTO %s (%d rows)", s.Table, len(s.Rows))
}

// JoinClause represents JOIN table ON condition.
type JoinClause struct {
	Table string
	On    Expression
}

// SelectStatement represents SELECT columns FROM table [JOIN ...] [WHERE ...].
type SelectStatement struct {
	Star    bool
	Columns []*ColumnRef // empty when Star
	From    string
	Join    *JoinClause
	Where   Expression
}

func (*SelectStatement) statementNode() {}

func (s *SelectStatement) String() string {
	cols := "*"
	if !s.Star {
		parts := make([]string, len(s.Columns))
		for i, c := range s.Columns {
			parts[i] = c.String()
		}
		cols = strings.Join(parts, ", ")
	}
	out := fmt.Sprintf("SELECT %s FROM %s", cols, s.From)
	if s.Join != nil {
		out += fmt.Sprintf(" JOIN %s ON %s", s.Join.Table, s.Join.On)
	}
	if s.Where != nil {
		out += " WHERE " + s.Where.String()
	}
	return out
}

// DeleteStatement represents DELETE FROM table [WHERE ...].
type DeleteStatement struct {
	Table string
	Where Expression
}

func (*DeleteStatement) statementNode() {}

func (s *DeleteStatement) String() string {
	out := "DELETE FROM " + s.Table
	if s.Where != nil {
		out += " WHERE " + s.Where.String()
	}
	return out
}

// Assignment is one column = expression pair in an UPDATE's SET list.
type Assignment struct {
	Column string
	Value  Expression
}

// UpdateStatement represents UPDATE table SET assignments [WHERE ...].
type UpdateStatement struct {
	Table string
	Set   []Assignment
	Where Expression
}

func (*UpdateStatement) statementNode() {}

func (s *UpdateStatement) String() string {
	parts := make([]string, len(s.Set))
	for i, a := range s.Set {
		parts[i] = a.Column + " = " + a.Value.String()
	}
	out := fmt.Sprintf("UPDATE %s SET %s", s.Table, strings.Join(parts, ", "))
	if s.Where != nil {
		out += " WHERE " + s.Where.String()
	}
	return out
}

// Literal is a constant value: integer, string, boolean, or NULL.
type Literal struct {
	Value types.Value
}

func (*Literal) expressionNode() {}

func (e *Literal) String() string {
	if e.Value.Kind() == types.KindText {
		return "'" + strings.ReplaceAll(e.Value.Text(), "'", "''") + "'"
	}
	return e.Value.String()
}

// ColumnRef names a column, optionally qualified by its table.
type ColumnRef struct {
	Table  string // empty when unqualified
	Name   string
	Line   int
	Column int
}

func (*ColumnRef) expressionNode() {}

func (e *ColumnRef) String() string {
	if e.Table != "" {
		return e.Table + "." + e.Name
	}
	return e.Name
}

// BinaryOp enumerates binary operators.
type BinaryOp int

const (
	OpEquals BinaryOp = iota + 1
	OpNotEquals
	OpLessThan
	OpGreaterThan
	OpLessOrEqual
	OpGreaterOrEqual
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpAnd
	OpOr
)

func (op BinaryOp) String() string {
	switch op {
	case OpEquals:
		return "="
	case OpNotEquals:
		return "!="
	case OpLessThan:
		return "<"
	case OpGreaterThan:
		return ">"
	case OpLessOrEqual:
		return "<="
	case OpGreaterOrEqual:
		return ">="
	case OpAdd:
		return "+"
	case OpSubtract:
		return "-"
	case OpMultiply:
		return "*"
	case OpDivide:
		return "/"
	case OpAnd:
		return "AND"
	case OpOr:
		return "OR"
	default:
		return fmt.Sprintf("BinaryOp(%d)", int(op))
	}
}

// BinaryExpr applies an operator to two operands.
type BinaryExpr struct {
	Op    BinaryOp
	Left  Expression
	Right Expression
}

func (*BinaryExpr) expressionNode() {}

func (e *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", e.Left, e.Op, e.Right)
}

// NotExpr is logical negation.
type NotExpr struct {
	Expr Expression
}

func (*NotExpr) expressionNode() {}

func (e *NotExpr) String() string { return fmt.Sprintf("(NOT %s)", e.Expr) }

// IsNullExpr represents expr IS [NOT] NULL.
type IsNullExpr struct {
	Expr   Expression
	Negate bool
}

func (*IsNullExpr) expressionNode() {}

func (e *IsNullExpr) String() string {
	if e.Negate {
		return fmt.Sprintf("(%s IS NOT NULL)", e.Expr)
	}
	return fmt.Sprintf("(%s IS NULL)", e.Expr)
}

// FunctionCall represents a call such as NOW().
type FunctionCall struct {
	Name string // stored uppercased
	Args []Expression
}

func (*FunctionCall) expressionNode() {}

func (e *FunctionCall) String() string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(parts, ", "))
}
