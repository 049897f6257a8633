package executor

import (
	"github.com/pesadb/pesadb/internal/sql/planner"
	"github.com/pesadb/pesadb/internal/types"
)

// nestedLoopJoin re-scans the inner side for every outer row and emits
// the combined rows for which the ON condition is true.
type nestedLoopJoin struct {
	outer rowIter
	inner rowIter
	on    planner.Expr
	ev    *evaluator

	outerRow []types.Value
}

func newNestedLoopJoin(outer, inner rowIter, on planner.Expr, ev *evaluator) *nestedLoopJoin {
	return &nestedLoopJoin{outer: outer, inner: inner, on: on, ev: ev}
}

func (j *nestedLoopJoin) Next() ([]types.Value, error) {
	for {
		if j.outerRow == nil {
			row, err := j.outer.Next()
			if err != nil || row == nil {
				return nil, err
			}
			j.outerRow = row
			if err := j.inner.Reset(); err != nil {
				return nil, err
			}
		}
		innerRow, err := j.inner.Next()
		if err != nil {
			return nil, err
		}
		if innerRow == nil {
			j.outerRow = nil
			continue
		}
		combined := combineRows(j.outerRow, innerRow)
		match, err := j.ev.eval(j.on, combined)
		if err != nil {
			return nil, err
		}
		if truthy(match) {
			return combined, nil
		}
	}
}

func (j *nestedLoopJoin) Reset() error {
	j.outerRow = nil
	return j.outer.Reset()
}

// hashJoin materializes the inner side into a hash table keyed by the
// join column, then streams the outer side and probes. This is the one
// operator that holds a whole table side in memory. NULL keys never
// match, on either side.
type hashJoin struct {
	outer    rowIter
	inner    rowIter
	leftKey  int
	rightKey int

	built    bool
	table    map[types.Value][][]types.Value
	outerRow []types.Value
	matches  [][]types.Value
	matchIdx int
}

func newHashJoin(outer, inner rowIter, leftKey, rightKey int) *hashJoin {
	return &hashJoin{outer: outer, inner: inner, leftKey: leftKey, rightKey: rightKey}
}

func (j *hashJoin) build() error {
	j.table = make(map[types.Value][][]types.Value)
	for {
		row, err := j.inner.Next()
		if err != nil {
			return err
		}
		if row == nil {
			j.built = true
			return nil
		}
		key := row[j.rightKey]
		if key.IsNull() {
			continue
		}
		j.table[key] = append(j.table[key], row)
	}
}

func (j *hashJoin) Next() ([]types.Value, error) {
	if !j.built {
		if err := j.build(); err != nil {
			return nil, err
		}
	}
	for {
		if j.matchIdx < len(j.matches) {
			combined := combineRows(j.outerRow, j.matches[j.matchIdx])
			j.matchIdx++
			return combined, nil
		}
		row, err := j.outer.Next()
		if err != nil || row == nil {
			return nil, err
		}
		key := row[j.leftKey]
		if key.IsNull() {
			continue
		}
		j.outerRow = row
		j.matches = j.table[key]
		j.matchIdx = 0
	}
}

func (j *hashJoin) Reset() error {
	j.outerRow = nil
	j.matches = nil
	j.matchIdx = 0
	return j.outer.Reset()
}

func combineRows(left, right []types.Value) []types.Value {
	combined := make([]types.Value, 0, len(left)+len(right))
	combined = append(combined, left...)
	return append(combined, right...)
}
