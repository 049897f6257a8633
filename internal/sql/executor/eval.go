package executor

import (
	"fmt"
	"time"

	"github.com/pesadb/pesadb/internal/sql/parser"
	"github.com/pesadb/pesadb/internal/sql/planner"
	"github.com/pesadb/pesadb/internal/types"
)

// evaluator runs bound expressions against rows. The statement timestamp
// is fixed once per statement so every NOW() in it agrees.
type evaluator struct {
	now types.Value
}

func newEvaluator(now time.Time) *evaluator {
	return &evaluator{now: types.TimestampFromTime(now.UTC())}
}

// eval computes a bound expression over the given row. SQL three-valued
// logic applies: comparisons and arithmetic over NULL yield NULL, and
// AND/OR/NOT follow the usual truth tables extended with NULL.
func (ev *evaluator) eval(e planner.Expr, row []types.Value) (types.Value, error) {
	switch expr := e.(type) {
	case *planner.Const:
		return expr.Value, nil
	case *planner.Column:
		return row[expr.Index], nil
	case *planner.Now:
		return ev.now, nil
	case *planner.IsNull:
		v, err := ev.eval(expr.Expr, row)
		if err != nil {
			return types.Null(), err
		}
		return types.NewBoolean(v.IsNull() != expr.Negate), nil
	case *planner.Not:
		v, err := ev.eval(expr.Expr, row)
		if err != nil {
			return types.Null(), err
		}
		if v.IsNull() {
			return types.Null(), nil
		}
		return types.NewBoolean(!v.Bool()), nil
	case *planner.Binary:
		return ev.evalBinary(expr, row)
	default:
		return types.Null(), fmt.Errorf("cannot evaluate %T", e)
	}
}

func (ev *evaluator) evalBinary(expr *planner.Binary, row []types.Value) (types.Value, error) {
	switch expr.Op {
	case parser.OpAnd, parser.OpOr:
		return ev.evalLogical(expr, row)
	}

	left, err := ev.eval(expr.Left, row)
	if err != nil {
		return types.Null(), err
	}
	right, err := ev.eval(expr.Right, row)
	if err != nil {
		return types.Null(), err
	}
	if left.IsNull() || right.IsNull() {
		return types.Null(), nil
	}

	switch expr.Op {
	case parser.OpAdd:
		return types.NewInteger(left.Int() + right.Int()), nil
	case parser.OpSubtract:
		return types.NewInteger(left.Int() - right.Int()), nil
	case parser.OpMultiply:
		return types.NewInteger(left.Int() * right.Int()), nil
	case parser.OpDivide:
		if right.Int() == 0 {
			return types.Null(), ErrDivisionByZero
		}
		return types.NewInteger(left.Int() / right.Int()), nil
	}

	cmp, err := left.Compare(right)
	if err != nil {
		return types.Null(), err
	}
	switch expr.Op {
	case parser.OpEquals:
		return types.NewBoolean(cmp == 0), nil
	case parser.OpNotEquals:
		return types.NewBoolean(cmp != 0), nil
	case parser.OpLessThan:
		return types.NewBoolean(cmp < 0), nil
	case parser.OpLessOrEqual:
		return types.NewBoolean(cmp <= 0), nil
	case parser.OpGreaterThan:
		return types.NewBoolean(cmp > 0), nil
	case parser.OpGreaterOrEqual:
		return types.NewBoolean(cmp >= 0), nil
	default:
		return types.Null(), fmt.Errorf("cannot evaluate operator %s", expr.Op)
	}
}

// evalLogical short-circuits AND and OR where one operand decides the
// result regardless of the other being NULL.
func (ev *evaluator) evalLogical(expr *planner.Binary, row []types.Value) (types.Value, error) {
	left, err := ev.eval(expr.Left, row)
	if err != nil {
		return types.Null(), err
	}
	if expr.Op == parser.OpAnd && !left.IsNull() && !left.Bool() {
		return types.NewBoolean(false), nil
	}
	if expr.Op == parser.OpOr && !left.IsNull() && left.Bool() {
		return types.NewBoolean(true), nil
	}

	right, err := ev.eval(expr.Right, row)
	if err != nil {
		return types.Null(), err
	}
	if expr.Op == parser.OpAnd {
		if !right.IsNull() && !right.Bool() {
			return types.NewBoolean(false), nil
		}
		if left.IsNull() || right.IsNull() {
			return types.Null(), nil
		}
		return types.NewBoolean(true), nil
	}
	if !right.IsNull() && right.Bool() {
		return types.NewBoolean(true), nil
	}
	if left.IsNull() || right.IsNull() {
		return types.Null(), nil
	}
	return types.NewBoolean(false), nil
}

// truthy reports whether a filter result keeps the row: only a non-NULL
// TRUE does.
func truthy(v types.Value) bool {
	return v.Kind() == types.KindBoolean && v.Bool()
}
