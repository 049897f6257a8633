package executor

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesadb/pesadb/internal/catalog"
	"github.com/pesadb/pesadb/internal/index"
	"github.com/pesadb/pesadb/internal/sql/parser"
	"github.com/pesadb/pesadb/internal/sql/planner"
	"github.com/pesadb/pesadb/internal/storage"
	"github.com/pesadb/pesadb/internal/types"
)

var testNow = time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

type testDB struct {
	fm      *storage.FileManager
	cat     *catalog.Catalog
	planner *planner.Planner
	ex      *Executor
}

func newTestDB(t *testing.T) *testDB {
	t.Helper()
	fm, err := storage.OpenFile(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { fm.Close() })
	cat, err := catalog.Open(fm)
	require.NoError(t, err)
	idx := index.NewManager()
	return &testDB{
		fm:      fm,
		cat:     cat,
		planner: planner.New(cat),
		ex:      New(fm, cat, idx),
	}
}

func (db *testDB) run(t *testing.T, sql string) *Result {
	t.Helper()
	res, err := db.tryRun(sql)
	require.NoError(t, err, "statement: %s", sql)
	return res
}

func (db *testDB) tryRun(sql string) (*Result, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	plan, err := db.planner.Plan(stmt)
	if err != nil {
		return nil, err
	}
	return db.ex.Execute(plan, testNow)
}

func seedMerchants(t *testing.T, db *testDB) {
	t.Helper()
	db.run(t, `CREATE TABLE merchants (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		active BOOLEAN DEFAULT TRUE,
		created_at TIMESTAMP DEFAULT NOW()
	)`)
	db.run(t, `CREATE TABLE transactions (
		id INTEGER PRIMARY KEY,
		merchant_id INTEGER REFERENCES merchants(id),
		amount INTEGER NOT NULL
	)`)
	db.run(t, `INSERT INTO merchants (id, name) VALUES (1, 'Coffee Corner'), (2, 'Book Nook'), (3, 'Idle Shop')`)
	db.run(t, `INSERT INTO transactions (id, merchant_id, amount) VALUES
		(1, 1, 450), (2, 1, 120), (3, 2, 900), (4, 2, 60), (5, 1, 75)`)
}

func intsOf(rows [][]types.Value, col int) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r[col].Int()
	}
	return out
}

func TestCreateInsertSelectRoundTrip(t *testing.T) {
	db := newTestDB(t)
	seedMerchants(t, db)

	res := db.run(t, "SELECT id, name FROM merchants WHERE active = TRUE")
	assert.Equal(t, []string{"id", "name"}, res.Columns)
	assert.Equal(t, 3, res.RowCount)
	assert.Equal(t, []int64{1, 2, 3}, intsOf(res.Rows, 0))
	assert.Equal(t, "Coffee Corner", res.Rows[0][1].Text())
}

func TestInsertAppliesDefaults(t *testing.T) {
	db := newTestDB(t)
	seedMerchants(t, db)

	res := db.run(t, "SELECT active, created_at FROM merchants WHERE id = 1")
	require.Equal(t, 1, res.RowCount)
	assert.True(t, res.Rows[0][0].Bool())
	assert.Equal(t, testNow.Unix(), res.Rows[0][1].Unix(), "DEFAULT NOW() uses the statement timestamp")
}

func TestSelectWithArithmeticFilter(t *testing.T) {
	db := newTestDB(t)
	seedMerchants(t, db)

	res := db.run(t, "SELECT id FROM transactions WHERE amount / 10 > 40")
	assert.Equal(t, []int64{1, 3}, intsOf(res.Rows, 0))
}

func TestDivisionByZero(t *testing.T) {
	db := newTestDB(t)
	seedMerchants(t, db)

	_, err := db.tryRun("SELECT id FROM transactions WHERE amount / 0 > 1")
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestNullComparisonsNeverMatch(t *testing.T) {
	db := newTestDB(t)
	db.run(t, "CREATE TABLE t (id INTEGER PRIMARY KEY, v INTEGER)")
	db.run(t, "INSERT INTO t VALUES (1, 10), (2, NULL)")

	assert.Equal(t, 0, db.run(t, "SELECT id FROM t WHERE v = NULL").RowCount)
	assert.Equal(t, 1, db.run(t, "SELECT id FROM t WHERE v IS NULL").RowCount)
	assert.Equal(t, 1, db.run(t, "SELECT id FROM t WHERE v IS NOT NULL").RowCount)
	// NULL != 10 is NULL, which a WHERE treats as false
	assert.Equal(t, 0, db.run(t, "SELECT id FROM t WHERE v != 10 AND v IS NULL").RowCount)
}

func TestNotNullViolation(t *testing.T) {
	db := newTestDB(t)
	seedMerchants(t, db)

	_, err := db.tryRun("INSERT INTO merchants (id, name) VALUES (9, NULL)")
	var violation *NotNullViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "name", violation.Column)
}

func TestDuplicatePrimaryKey(t *testing.T) {
	db := newTestDB(t)
	seedMerchants(t, db)

	_, err := db.tryRun("INSERT INTO merchants (id, name) VALUES (1, 'Clone')")
	var dup *DuplicateKeyError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "merchants", dup.Table)
}

func TestForeignKeyEnforcedOnInsert(t *testing.T) {
	db := newTestDB(t)
	seedMerchants(t, db)

	_, err := db.tryRun("INSERT INTO transactions (id, merchant_id, amount) VALUES (99, 42, 10)")
	var fk *ForeignKeyViolationError
	require.ErrorAs(t, err, &fk)
	assert.False(t, fk.Referenced)
	assert.Equal(t, "merchants", fk.RefTable)

	// NULL foreign keys are allowed
	db.run(t, "INSERT INTO transactions (id, merchant_id, amount) VALUES (99, NULL, 10)")
}

func TestForeignKeyBlocksDelete(t *testing.T) {
	db := newTestDB(t)
	seedMerchants(t, db)

	_, err := db.tryRun("DELETE FROM merchants WHERE id = 1")
	var fk *ForeignKeyViolationError
	require.ErrorAs(t, err, &fk)
	assert.True(t, fk.Referenced)

	// merchant 3 has no transactions and can go
	res := db.run(t, "DELETE FROM merchants WHERE id = 3")
	assert.Equal(t, 1, res.RowCount)

	// children first, then the parent
	db.run(t, "DELETE FROM transactions WHERE merchant_id = 1")
	res = db.run(t, "DELETE FROM merchants WHERE id = 1")
	assert.Equal(t, 1, res.RowCount)
}

func TestSelfReferencingDelete(t *testing.T) {
	db := newTestDB(t)
	db.run(t, `CREATE TABLE employees (
		id INTEGER PRIMARY KEY,
		manager_id INTEGER REFERENCES employees(id)
	)`)
	db.run(t, "INSERT INTO employees VALUES (1, NULL), (2, 1), (3, 1)")

	// a surviving report still blocks deleting its manager
	_, err := db.tryRun("DELETE FROM employees WHERE id = 1")
	var fk *ForeignKeyViolationError
	require.ErrorAs(t, err, &fk)
	assert.True(t, fk.Referenced)

	// removing the manager and every report in one statement is allowed
	res := db.run(t, "DELETE FROM employees")
	assert.Equal(t, 3, res.RowCount)
	assert.Equal(t, 0, db.run(t, "SELECT id FROM employees").RowCount)
}

func TestDeletePreservesSurvivorOrder(t *testing.T) {
	db := newTestDB(t)
	db.run(t, "CREATE TABLE t (id INTEGER PRIMARY KEY)")
	db.run(t, "INSERT INTO t VALUES (1), (2), (3), (4), (5), (6)")

	res := db.run(t, "DELETE FROM t WHERE id = 2 OR id = 5")
	assert.Equal(t, 2, res.RowCount)

	got := db.run(t, "SELECT id FROM t")
	assert.Equal(t, []int64{1, 3, 4, 6}, intsOf(got.Rows, 0))
}

func TestDeletedKeyCanBeReinserted(t *testing.T) {
	db := newTestDB(t)
	db.run(t, "CREATE TABLE t (id INTEGER PRIMARY KEY)")
	db.run(t, "INSERT INTO t VALUES (1)")
	db.run(t, "DELETE FROM t WHERE id = 1")
	db.run(t, "INSERT INTO t VALUES (1)")
	assert.Equal(t, 1, db.run(t, "SELECT id FROM t").RowCount)
}

func TestDeleteWithoutWhereEmptiesTable(t *testing.T) {
	db := newTestDB(t)
	seedMerchants(t, db)

	res := db.run(t, "DELETE FROM transactions")
	assert.Equal(t, 5, res.RowCount)
	assert.Equal(t, 0, db.run(t, "SELECT * FROM transactions").RowCount)
}

func TestInsertSpillsToNewPages(t *testing.T) {
	db := newTestDB(t)
	db.run(t, "CREATE TABLE blobs (id INTEGER PRIMARY KEY, body TEXT)")

	// ~1000 byte rows, four per page
	body := strings.Repeat("x", 1000)
	for i := 1; i <= 10; i++ {
		db.run(t, fmt.Sprintf("INSERT INTO blobs VALUES (%d, '%s')", i, body))
	}

	def, ok := db.cat.Table("blobs")
	require.True(t, ok)
	assert.Greater(t, len(def.PageIDs), 2, "rows must spill across pages")

	res := db.run(t, "SELECT id FROM blobs")
	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, intsOf(res.Rows, 0),
		"scan follows page order then slot order")
}

func TestRowTooLarge(t *testing.T) {
	db := newTestDB(t)
	db.run(t, "CREATE TABLE blobs (id INTEGER PRIMARY KEY, body TEXT)")

	_, err := db.tryRun(fmt.Sprintf("INSERT INTO blobs VALUES (1, '%s')", strings.Repeat("x", 4200)))
	var tooLarge *RowTooLargeError
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, storage.MaxRecordSize, tooLarge.Limit)

	// nothing was stored
	assert.Equal(t, 0, db.run(t, "SELECT * FROM blobs").RowCount)
}

func TestDeleteReclaimsSpaceInPlace(t *testing.T) {
	db := newTestDB(t)
	db.run(t, "CREATE TABLE blobs (id INTEGER PRIMARY KEY, body TEXT)")

	body := strings.Repeat("x", 1000)
	for i := 1; i <= 4; i++ {
		db.run(t, fmt.Sprintf("INSERT INTO blobs VALUES (%d, '%s')", i, body))
	}
	def, _ := db.cat.Table("blobs")
	pagesBefore := len(def.PageIDs)

	db.run(t, "DELETE FROM blobs WHERE id <= 3")
	for i := 5; i <= 7; i++ {
		db.run(t, fmt.Sprintf("INSERT INTO blobs VALUES (%d, '%s')", i, body))
	}

	def, _ = db.cat.Table("blobs")
	assert.Equal(t, pagesBefore, len(def.PageIDs),
		"compacted space is reused before new pages are allocated")
}

func joinRows(t *testing.T, db *testDB, force planner.JoinStrategy) [][]types.Value {
	t.Helper()
	db.planner.ForceStrategy(force)
	defer db.planner.ForceStrategy(planner.StrategyAuto)
	res := db.run(t, `SELECT merchants.name, transactions.amount FROM transactions
		JOIN merchants ON transactions.merchant_id = merchants.id
		WHERE transactions.amount >= 100`)
	require.Equal(t, []string{"merchants.name", "transactions.amount"}, res.Columns)
	return res.Rows
}

func TestJoinStrategiesReturnSameRows(t *testing.T) {
	db := newTestDB(t)
	seedMerchants(t, db)

	hash := joinRows(t, db, planner.StrategyHash)
	nested := joinRows(t, db, planner.StrategyNestedLoop)

	toSet := func(rows [][]types.Value) map[string]int {
		set := make(map[string]int)
		for _, r := range rows {
			set[fmt.Sprintf("%s|%d", r[0].Text(), r[1].Int())]++
		}
		return set
	}
	require.Len(t, hash, 3)
	assert.Equal(t, toSet(nested), toSet(hash),
		"hash and nested-loop joins must agree on the result multiset")
}

func TestJoinSkipsNullKeys(t *testing.T) {
	db := newTestDB(t)
	seedMerchants(t, db)
	db.run(t, "INSERT INTO transactions (id, merchant_id, amount) VALUES (100, NULL, 999)")

	for _, force := range []planner.JoinStrategy{planner.StrategyHash, planner.StrategyNestedLoop} {
		db.planner.ForceStrategy(force)
		res := db.run(t, `SELECT transactions.id FROM transactions
			JOIN merchants ON transactions.merchant_id = merchants.id`)
		assert.Equal(t, 5, res.RowCount, "strategy %s", force)
	}
}

func TestJoinWithNonEqualityCondition(t *testing.T) {
	db := newTestDB(t)
	db.run(t, "CREATE TABLE a (x INTEGER)")
	db.run(t, "CREATE TABLE b (y INTEGER)")
	db.run(t, "INSERT INTO a VALUES (1), (2), (3)")
	db.run(t, "INSERT INTO b VALUES (2), (3)")

	res := db.run(t, "SELECT a.x, b.y FROM a JOIN b ON a.x < b.y")
	assert.Equal(t, 3, res.RowCount) // (1,2) (1,3) (2,3)
}

func TestUpdateRewritesRows(t *testing.T) {
	db := newTestDB(t)
	seedMerchants(t, db)

	res := db.run(t, "UPDATE transactions SET amount = amount + 50 WHERE merchant_id = 1")
	assert.Equal(t, 3, res.RowCount)

	got := db.run(t, "SELECT amount FROM transactions WHERE merchant_id = 1")
	assert.Equal(t, []int64{500, 170, 125}, intsOf(got.Rows, 0))
}

func TestUpdateEnforcesConstraints(t *testing.T) {
	db := newTestDB(t)
	seedMerchants(t, db)

	_, err := db.tryRun("UPDATE merchants SET name = NULL WHERE id = 1")
	var nn *NotNullViolationError
	assert.ErrorAs(t, err, &nn)

	_, err = db.tryRun("UPDATE transactions SET merchant_id = 42 WHERE id = 1")
	var fk *ForeignKeyViolationError
	assert.ErrorAs(t, err, &fk)

	_, err = db.tryRun("UPDATE merchants SET id = 2 WHERE id = 1")
	var dup *DuplicateKeyError
	assert.ErrorAs(t, err, &dup)
}

func TestFailedUpdateLeavesIndexIntact(t *testing.T) {
	db := newTestDB(t)
	db.run(t, "CREATE TABLE counters (id INTEGER PRIMARY KEY)")
	db.run(t, "INSERT INTO counters VALUES (1), (2), (12)")

	// the second row collides with 12, so the whole statement fails
	_, err := db.tryRun("UPDATE counters SET id = id + 10")
	var dup *DuplicateKeyError
	require.ErrorAs(t, err, &dup)

	// the first row's aborted key move must not linger in the index
	db.run(t, "INSERT INTO counters VALUES (11)")
	_, err = db.tryRun("INSERT INTO counters VALUES (1)")
	assert.ErrorAs(t, err, &dup)
}

func TestUpdateGrowingRowsSpillsToNewPage(t *testing.T) {
	db := newTestDB(t)
	db.run(t, "CREATE TABLE blobs (id INTEGER PRIMARY KEY, body TEXT)")
	for i := 1; i <= 4; i++ {
		db.run(t, fmt.Sprintf("INSERT INTO blobs VALUES (%d, '%s')", i, strings.Repeat("x", 900)))
	}

	res := db.run(t, fmt.Sprintf("UPDATE blobs SET body = '%s'", strings.Repeat("y", 1300)))
	assert.Equal(t, 4, res.RowCount)

	got := db.run(t, "SELECT id, body FROM blobs")
	require.Equal(t, 4, got.RowCount)
	for _, row := range got.Rows {
		assert.Len(t, row[1].Text(), 1300)
	}
}

func TestTimestampComparisonAgainstLiteral(t *testing.T) {
	db := newTestDB(t)
	db.run(t, "CREATE TABLE events (id INTEGER PRIMARY KEY, at TIMESTAMP)")
	db.run(t, `INSERT INTO events VALUES
		(1, '2024-01-01 00:00:00'),
		(2, '2024-06-01 00:00:00')`)

	res := db.run(t, "SELECT id FROM events WHERE at < '2024-03-01 00:00:00'")
	assert.Equal(t, []int64{1}, intsOf(res.Rows, 0))
}

func TestDataSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	fm, err := storage.OpenFile(path)
	require.NoError(t, err)
	cat, err := catalog.Open(fm)
	require.NoError(t, err)
	db := &testDB{fm: fm, cat: cat, planner: planner.New(cat), ex: New(fm, cat, index.NewManager())}
	seedMerchants(t, db)
	require.NoError(t, fm.Close())

	fm, err = storage.OpenFile(path)
	require.NoError(t, err)
	defer fm.Close()
	cat, err = catalog.Open(fm)
	require.NoError(t, err)
	db = &testDB{fm: fm, cat: cat, planner: planner.New(cat), ex: New(fm, cat, index.NewManager())}

	res := db.run(t, "SELECT id, name FROM merchants")
	assert.Equal(t, 3, res.RowCount)
	res = db.run(t, "SELECT id FROM transactions WHERE merchant_id = 1")
	assert.Equal(t, []int64{1, 2, 5}, intsOf(res.Rows, 0))
}

func TestResultStringRendersTable(t *testing.T) {
	db := newTestDB(t)
	seedMerchants(t, db)

	out := db.run(t, "SELECT id, name FROM merchants WHERE id = 1").String()
	assert.Contains(t, out, "id")
	assert.Contains(t, out, "Coffee Corner")
	assert.Contains(t, out, "(1 rows)")

	msg := db.run(t, "INSERT INTO merchants (id, name) VALUES (9, 'Nine')").String()
	assert.Equal(t, "1 row(s) inserted", msg)
}
