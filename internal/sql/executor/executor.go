// Package executor runs bound plans against the heap file. Query plans
// stream rows through volcano-style iterators; mutations rewrite whole
// pages, reclaiming deleted space through compaction.
package executor

import (
	"fmt"
	"time"

	"github.com/pesadb/pesadb/internal/catalog"
	"github.com/pesadb/pesadb/internal/index"
	"github.com/pesadb/pesadb/internal/sql/planner"
	"github.com/pesadb/pesadb/internal/storage"
	"github.com/pesadb/pesadb/internal/types"
)

// Executor owns the runtime side of statement processing.
type Executor struct {
	fm  *storage.FileManager
	cat *catalog.Catalog
	idx *index.Manager
}

// New creates an executor over the given storage, catalog, and index
// manager.
func New(fm *storage.FileManager, cat *catalog.Catalog, idx *index.Manager) *Executor {
	return &Executor{fm: fm, cat: cat, idx: idx}
}

// Execute runs one plan. now anchors every NOW() and DEFAULT NOW() in
// the statement to a single instant.
func (ex *Executor) Execute(plan planner.Plan, now time.Time) (*Result, error) {
	switch p := plan.(type) {
	case *planner.CreateTablePlan:
		return ex.executeCreateTable(p)
	case *planner.InsertPlan:
		return ex.executeInsert(p, now)
	case *planner.SelectPlan:
		return ex.executeSelect(p, now)
	case *planner.DeletePlan:
		return ex.executeDelete(p, now)
	case *planner.UpdatePlan:
		return ex.executeUpdate(p, now)
	default:
		return nil, fmt.Errorf("cannot execute %T", plan)
	}
}

// RebuildIndexes repopulates the index manager from the heap. Called
// once per session, after the catalog is loaded.
func (ex *Executor) RebuildIndexes() error {
	for _, def := range ex.cat.Tables() {
		ex.idx.AddTable(def)
		scan := newTableScan(ex.fm, def)
		for {
			row, err := scan.Next()
			if err != nil {
				return err
			}
			if row == nil {
				break
			}
			ex.idx.Insert(def.Name, row)
		}
	}
	return nil
}

func (ex *Executor) executeCreateTable(plan *planner.CreateTablePlan) (*Result, error) {
	if err := ex.cat.CreateTable(plan.Def); err != nil {
		return nil, err
	}
	ex.idx.AddTable(plan.Def)
	return &Result{Message: fmt.Sprintf("table %q created", plan.Def.Name)}, nil
}

func (ex *Executor) executeInsert(plan *planner.InsertPlan, now time.Time) (*Result, error) {
	ev := newEvaluator(now)
	inserted := 0
	for _, exprs := range plan.Rows {
		row := make([]types.Value, len(exprs))
		for i, e := range exprs {
			v, err := ev.eval(e, nil)
			if err != nil {
				return nil, err
			}
			row[i] = v
		}
		if err := ex.checkConstraints(plan.Table, row); err != nil {
			return nil, err
		}
		record := types.EncodeRow(row)
		if len(record) > storage.MaxRecordSize {
			return nil, &RowTooLargeError{Table: plan.Table.Name, Size: len(record), Limit: storage.MaxRecordSize}
		}
		if err := ex.appendRecord(plan.Table, record); err != nil {
			return nil, err
		}
		ex.idx.Insert(plan.Table.Name, row)
		inserted++
	}
	return &Result{
		RowCount: inserted,
		Message:  fmt.Sprintf("%d row(s) inserted", inserted),
	}, nil
}

// checkConstraints enforces NOT NULL, primary key uniqueness, and
// foreign keys for one incoming row.
func (ex *Executor) checkConstraints(table *catalog.TableDef, row []types.Value) error {
	for i, col := range table.Columns {
		if col.NotNull && row[i].IsNull() {
			return &NotNullViolationError{Table: table.Name, Column: col.Name}
		}
		if col.PrimaryKey && ex.idx.Contains(table.Name, row[i]) {
			return &DuplicateKeyError{Table: table.Name, Column: col.Name, Value: row[i]}
		}
		if col.Reference != nil && !row[i].IsNull() {
			ok, err := ex.parentExists(col.Reference, row[i])
			if err != nil {
				return err
			}
			if !ok {
				return &ForeignKeyViolationError{
					Table:     table.Name,
					Column:    col.Name,
					RefTable:  col.Reference.Table,
					RefColumn: col.Reference.Column,
					Value:     row[i],
				}
			}
		}
	}
	return nil
}

// parentExists scans the referenced table for a row carrying the value.
func (ex *Executor) parentExists(ref *catalog.ForeignKey, value types.Value) (bool, error) {
	parent, ok := ex.cat.Table(ref.Table)
	if !ok {
		return false, fmt.Errorf("referenced table %q does not exist", ref.Table)
	}
	colIdx := parent.ColumnIndex(ref.Column)
	if colIdx < 0 {
		return false, fmt.Errorf("referenced column %s.%s does not exist", ref.Table, ref.Column)
	}
	scan := newTableScan(ex.fm, parent)
	for {
		row, err := scan.Next()
		if err != nil {
			return false, err
		}
		if row == nil {
			return false, nil
		}
		if row[colIdx].Equal(value) {
			return true, nil
		}
	}
}

// appendRecord places a record into the table's last heap page,
// allocating a fresh page when it does not fit. The catalog is persisted
// last, so a failure can leak a page but never leave the catalog pointing
// at one that was not written.
func (ex *Executor) appendRecord(table *catalog.TableDef, record []byte) error {
	if n := len(table.PageIDs); n > 0 {
		page, err := ex.fm.ReadPage(table.PageIDs[n-1])
		if err != nil {
			return err
		}
		if _, err := page.InsertRecord(record); err == nil {
			return ex.fm.WritePage(page)
		}
	}
	page, err := ex.fm.AllocatePage(storage.PageTypeHeap)
	if err != nil {
		return err
	}
	if _, err := page.InsertRecord(record); err != nil {
		return err
	}
	if err := ex.fm.WritePage(page); err != nil {
		return err
	}
	return ex.cat.AppendPage(table.Name, page.ID())
}

func (ex *Executor) executeSelect(plan *planner.SelectPlan, now time.Time) (*Result, error) {
	ev := newEvaluator(now)

	var iter rowIter = newTableScan(ex.fm, plan.Table)
	if plan.Join != nil {
		inner := newTableScan(ex.fm, plan.Join.Table)
		switch plan.Join.Strategy {
		case planner.StrategyHash:
			iter = newHashJoin(iter, inner, plan.Join.LeftKey, plan.Join.RightKey)
		default:
			iter = newNestedLoopJoin(iter, inner, plan.Join.On, ev)
		}
	}

	result := &Result{Columns: plan.Columns, Rows: [][]types.Value{}}
	for {
		row, err := iter.Next()
		if err != nil {
			return nil, err
		}
		if row == nil {
			break
		}
		if plan.Filter != nil {
			keep, err := ev.eval(plan.Filter, row)
			if err != nil {
				return nil, err
			}
			if !truthy(keep) {
				continue
			}
		}
		projected := make([]types.Value, len(plan.Projection))
		for i, idx := range plan.Projection {
			projected[i] = row[idx]
		}
		result.Rows = append(result.Rows, projected)
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

// doomedPage records which slots of one page a DELETE will remove.
type doomedPage struct {
	page  *storage.Page
	slots map[int]bool
	rows  [][]types.Value
}

func (ex *Executor) executeDelete(plan *planner.DeletePlan, now time.Time) (*Result, error) {
	ev := newEvaluator(now)

	// first pass: find the rows to delete, page by page
	var doomed []doomedPage
	total := 0
	for _, pageID := range plan.Table.PageIDs {
		page, err := ex.fm.ReadPage(pageID)
		if err != nil {
			return nil, err
		}
		dp := doomedPage{page: page, slots: make(map[int]bool)}
		for slot := 0; slot < page.SlotCount(); slot++ {
			record := page.Record(slot)
			if record == nil {
				continue
			}
			row, err := types.DecodeRow(record, len(plan.Table.Columns))
			if err != nil {
				return nil, err
			}
			if plan.Filter != nil {
				keep, err := ev.eval(plan.Filter, row)
				if err != nil {
					return nil, err
				}
				if !truthy(keep) {
					continue
				}
			}
			dp.slots[slot] = true
			dp.rows = append(dp.rows, row)
			total++
		}
		if len(dp.slots) > 0 {
			doomed = append(doomed, dp)
		}
	}

	// every doomed row must be unreferenced before anything is removed;
	// rows removed by this same statement do not count as references
	doomedSlots := make(map[uint32]map[int]bool, len(doomed))
	for _, dp := range doomed {
		doomedSlots[dp.page.ID()] = dp.slots
	}
	for _, dp := range doomed {
		for _, row := range dp.rows {
			if err := ex.checkNotReferenced(plan.Table, row, doomedSlots); err != nil {
				return nil, err
			}
		}
	}

	// second pass: compact each affected page
	for _, dp := range doomed {
		dp.page.Compact(func(slot int, _ []byte) bool {
			return dp.slots[slot]
		})
		if err := ex.fm.WritePage(dp.page); err != nil {
			return nil, err
		}
		for _, row := range dp.rows {
			ex.idx.Delete(plan.Table.Name, row)
		}
	}

	return &Result{
		RowCount: total,
		Message:  fmt.Sprintf("%d row(s) deleted", total),
	}, nil
}

// checkNotReferenced scans every table with a foreign key into target
// and rejects the deletion if any surviving row still points at the
// doomed row. Slots listed in skip (the statement's own victims) are
// ignored when the child table is the target itself.
func (ex *Executor) checkNotReferenced(target *catalog.TableDef, row []types.Value, skip map[uint32]map[int]bool) error {
	for _, child := range ex.cat.Tables() {
		for colIdx, col := range child.Columns {
			if col.Reference == nil || col.Reference.Table != target.Name {
				continue
			}
			refIdx := target.ColumnIndex(col.Reference.Column)
			if refIdx < 0 {
				continue
			}
			value := row[refIdx]
			if value.IsNull() {
				continue
			}
			selfRef := child.Name == target.Name
			for _, pageID := range child.PageIDs {
				page, err := ex.fm.ReadPage(pageID)
				if err != nil {
					return err
				}
				for slot := 0; slot < page.SlotCount(); slot++ {
					if selfRef && skip[pageID][slot] {
						continue
					}
					record := page.Record(slot)
					if record == nil {
						continue
					}
					childRow, err := types.DecodeRow(record, len(child.Columns))
					if err != nil {
						return err
					}
					if childRow[colIdx].Equal(value) {
						return &ForeignKeyViolationError{
							Table:      child.Name,
							Column:     col.Name,
							RefTable:   target.Name,
							RefColumn:  col.Reference.Column,
							Value:      value,
							Referenced: true,
						}
					}
				}
			}
		}
	}
	return nil
}

// pageRewrite is the computed end state of one page during an UPDATE.
type pageRewrite struct {
	page    *storage.Page
	rows    [][]types.Value // final content, in original slot order
	touched bool
}

// rowChange is a primary key move the index applies once the heap
// rewrite has succeeded.
type rowChange struct {
	old, new []types.Value
}

func (ex *Executor) executeUpdate(plan *planner.UpdatePlan, now time.Time) (*Result, error) {
	ev := newEvaluator(now)
	pkIdx := plan.Table.PrimaryKeyIndex()

	// first pass: compute every page's final rows before touching disk,
	// so rows moved between pages are never updated twice. The index is
	// left alone here; a failure in this pass must leave it matching the
	// untouched heap.
	var rewrites []pageRewrite
	var reindex []rowChange
	updated := 0
	for _, pageID := range plan.Table.PageIDs {
		page, err := ex.fm.ReadPage(pageID)
		if err != nil {
			return nil, err
		}
		rw := pageRewrite{page: page}
		for slot := 0; slot < page.SlotCount(); slot++ {
			record := page.Record(slot)
			if record == nil {
				continue
			}
			row, err := types.DecodeRow(record, len(plan.Table.Columns))
			if err != nil {
				return nil, err
			}
			if plan.Filter != nil {
				keep, err := ev.eval(plan.Filter, row)
				if err != nil {
					return nil, err
				}
				if !truthy(keep) {
					rw.rows = append(rw.rows, row)
					continue
				}
			}
			newRow, err := ex.applyUpdates(plan, ev, row, pkIdx)
			if err != nil {
				return nil, err
			}
			if pkIdx >= 0 && !newRow[pkIdx].Equal(row[pkIdx]) {
				reindex = append(reindex, rowChange{old: row, new: newRow})
			}
			rw.rows = append(rw.rows, newRow)
			rw.touched = true
			updated++
		}
		rewrites = append(rewrites, rw)
	}

	// second pass: rewrite the touched pages; rows that no longer fit
	// move to the end of the table
	var overflow [][]types.Value
	for _, rw := range rewrites {
		if !rw.touched {
			continue
		}
		rw.page.Compact(func(int, []byte) bool { return true })
		for _, row := range rw.rows {
			record := types.EncodeRow(row)
			if _, err := rw.page.InsertRecord(record); err != nil {
				overflow = append(overflow, row)
			}
		}
		if err := ex.fm.WritePage(rw.page); err != nil {
			return nil, err
		}
	}
	for _, row := range overflow {
		if err := ex.appendRecord(plan.Table, types.EncodeRow(row)); err != nil {
			return nil, err
		}
	}
	for _, ch := range reindex {
		ex.idx.Delete(plan.Table.Name, ch.old)
		ex.idx.Insert(plan.Table.Name, ch.new)
	}

	return &Result{
		RowCount: updated,
		Message:  fmt.Sprintf("%d row(s) updated", updated),
	}, nil
}

// applyUpdates produces the new version of one row and validates it.
func (ex *Executor) applyUpdates(plan *planner.UpdatePlan, ev *evaluator, row []types.Value, pkIdx int) ([]types.Value, error) {
	newRow := make([]types.Value, len(row))
	copy(newRow, row)
	for _, set := range plan.Set {
		v, err := ev.eval(set.Value, row)
		if err != nil {
			return nil, err
		}
		newRow[set.Index] = v
	}

	for i, col := range plan.Table.Columns {
		if col.NotNull && newRow[i].IsNull() {
			return nil, &NotNullViolationError{Table: plan.Table.Name, Column: col.Name}
		}
		if col.Reference != nil && !newRow[i].IsNull() && !newRow[i].Equal(row[i]) {
			ok, err := ex.parentExists(col.Reference, newRow[i])
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, &ForeignKeyViolationError{
					Table:     plan.Table.Name,
					Column:    col.Name,
					RefTable:  col.Reference.Table,
					RefColumn: col.Reference.Column,
					Value:     newRow[i],
				}
			}
		}
	}

	if pkIdx >= 0 && !newRow[pkIdx].Equal(row[pkIdx]) {
		if ex.idx.Contains(plan.Table.Name, newRow[pkIdx]) {
			return nil, &DuplicateKeyError{
				Table:  plan.Table.Name,
				Column: plan.Table.Columns[pkIdx].Name,
				Value:  newRow[pkIdx],
			}
		}
	}

	record := types.EncodeRow(newRow)
	if len(record) > storage.MaxRecordSize {
		return nil, &RowTooLargeError{Table: plan.Table.Name, Size: len(record), Limit: storage.MaxRecordSize}
	}
	return newRow, nil
}
