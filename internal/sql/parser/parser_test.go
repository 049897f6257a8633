package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesadb/pesadb/internal/types"
)

func parseSelect(t *testing.T, input string) *SelectStatement {
	t.Helper()
	stmt, err := Parse(input)
	require.NoError(t, err)
	sel, ok := stmt.(*SelectStatement)
	require.True(t, ok, "expected SELECT, got %T", stmt)
	return sel
}

func TestCreateTable(t *testing.T) {
	stmt, err := Parse(`CREATE TABLE merchants (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		active BOOLEAN DEFAULT TRUE,
		created_at TIMESTAMP DEFAULT NOW()
	);`)
	require.NoError(t, err)

	create, ok := stmt.(*CreateTableStatement)
	require.True(t, ok)
	assert.Equal(t, "merchants", create.Table)
	require.Len(t, create.Columns, 4)

	assert.True(t, create.Columns[0].PrimaryKey)
	assert.Equal(t, types.TypeInteger, create.Columns[0].Type)
	assert.True(t, create.Columns[1].NotNull)

	def, ok := create.Columns[2].Default.(*Literal)
	require.True(t, ok)
	assert.True(t, def.Value.Equal(types.NewBoolean(true)))

	now, ok := create.Columns[3].Default.(*FunctionCall)
	require.True(t, ok)
	assert.Equal(t, "NOW", now.Name)
}

func TestCreateTableInlineReferences(t *testing.T) {
	stmt, err := Parse(`CREATE TABLE transactions (
		id INTEGER PRIMARY KEY,
		merchant_id INTEGER REFERENCES merchants(id)
	)`)
	require.NoError(t, err)

	create := stmt.(*CreateTableStatement)
	ref := create.Columns[1].Reference
	require.NotNil(t, ref)
	assert.Equal(t, "merchants", ref.Table)
	assert.Equal(t, "id", ref.Column)
}

func TestCreateTableForeignKeyClause(t *testing.T) {
	stmt, err := Parse(`CREATE TABLE transactions (
		id INTEGER PRIMARY KEY,
		merchant_id INTEGER,
		FOREIGN KEY (merchant_id) REFERENCES merchants(id)
	)`)
	require.NoError(t, err)

	create := stmt.(*CreateTableStatement)
	require.Len(t, create.Columns, 2)
	ref := create.Columns[1].Reference
	require.NotNil(t, ref)
	assert.Equal(t, "merchants", ref.Table)
}

func TestForeignKeyForUnknownColumn(t *testing.T) {
	_, err := Parse(`CREATE TABLE t (
		id INTEGER,
		FOREIGN KEY (missing) REFERENCES m(id)
	)`)
	var syn *SyntaxError
	require.ErrorAs(t, err, &syn)
	assert.Equal(t, "missing", syn.Got)
}

func TestInsertPositional(t *testing.T) {
	stmt, err := Parse(`INSERT INTO merchants VALUES (1, 'Coffee Corner', TRUE)`)
	require.NoError(t, err)

	ins := stmt.(*InsertStatement)
	assert.Equal(t, "merchants", ins.Table)
	assert.Nil(t, ins.Columns)
	require.Len(t, ins.Rows, 1)
	require.Len(t, ins.Rows[0], 3)

	text := ins.Rows[0][1].(*Literal)
	assert.True(t, text.Value.Equal(types.NewText("Coffee Corner")))
}

func TestInsertWithColumnListAndMultipleRows(t *testing.T) {
	stmt, err := Parse(`INSERT INTO m (id, name) VALUES (1, 'a'), (2, 'b')`)
	require.NoError(t, err)

	ins := stmt.(*InsertStatement)
	assert.Equal(t, []string{"id", "name"}, ins.Columns)
	assert.Len(t, ins.Rows, 2)
}

func TestSelectStar(t *testing.T) {
	sel := parseSelect(t, "SELECT * FROM merchants")
	assert.True(t, sel.Star)
	assert.Empty(t, sel.Columns)
	assert.Equal(t, "merchants", sel.From)
	assert.Nil(t, sel.Where)
}

func TestSelectColumnsWithWhere(t *testing.T) {
	sel := parseSelect(t, "SELECT id, name FROM merchants WHERE active = TRUE AND id > 10")
	require.Len(t, sel.Columns, 2)
	assert.Equal(t, "name", sel.Columns[1].Name)

	and, ok := sel.Where.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, OpAnd, and.Op)
}

func TestSelectJoin(t *testing.T) {
	sel := parseSelect(t,
		"SELECT merchants.name, transactions.amount FROM transactions "+
			"JOIN merchants ON transactions.merchant_id = merchants.id "+
			"WHERE transactions.amount > 100")
	require.NotNil(t, sel.Join)
	assert.Equal(t, "merchants", sel.Join.Table)

	on, ok := sel.Join.On.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, OpEquals, on.Op)
	left := on.Left.(*ColumnRef)
	assert.Equal(t, "transactions", left.Table)
	assert.Equal(t, "merchant_id", left.Name)

	require.Len(t, sel.Columns, 2)
	assert.Equal(t, "merchants", sel.Columns[0].Table)
}

func TestDelete(t *testing.T) {
	stmt, err := Parse("DELETE FROM transactions WHERE amount < 0")
	require.NoError(t, err)
	del := stmt.(*DeleteStatement)
	assert.Equal(t, "transactions", del.Table)
	assert.NotNil(t, del.Where)

	stmt, err = Parse("DELETE FROM transactions")
	require.NoError(t, err)
	assert.Nil(t, stmt.(*DeleteStatement).Where)
}

func TestUpdate(t *testing.T) {
	stmt, err := Parse("UPDATE merchants SET name = 'New Name', active = FALSE WHERE id = 3")
	require.NoError(t, err)

	upd := stmt.(*UpdateStatement)
	assert.Equal(t, "merchants", upd.Table)
	require.Len(t, upd.Set, 2)
	assert.Equal(t, "name", upd.Set[0].Column)
	assert.NotNil(t, upd.Where)
}

func TestExpressionPrecedence(t *testing.T) {
	sel := parseSelect(t, "SELECT id FROM t WHERE a = 1 OR b = 2 AND c + 1 * 2 > 3")
	assert.Equal(t, "((a = 1) OR ((b = 2) AND ((c + (1 * 2)) > 3)))", sel.Where.String())
}

func TestUnspacedSubtraction(t *testing.T) {
	sel := parseSelect(t, "SELECT x FROM t WHERE x = 5-3")
	assert.Equal(t, "(x = (5 - 3))", sel.Where.String())

	sel = parseSelect(t, "SELECT x FROM t WHERE x-1 = 0")
	assert.Equal(t, "((x - 1) = 0)", sel.Where.String())

	sel = parseSelect(t, "SELECT x FROM t WHERE x = -3")
	assert.Equal(t, "(x = -3)", sel.Where.String())
}

func TestParenthesesOverridePrecedence(t *testing.T) {
	sel := parseSelect(t, "SELECT id FROM t WHERE (a + 1) * 2 = 4")
	assert.Equal(t, "(((a + 1) * 2) = 4)", sel.Where.String())
}

func TestIsNull(t *testing.T) {
	sel := parseSelect(t, "SELECT id FROM t WHERE a IS NULL AND b IS NOT NULL")
	assert.Equal(t, "((a IS NULL) AND (b IS NOT NULL))", sel.Where.String())
}

func TestNotExpression(t *testing.T) {
	sel := parseSelect(t, "SELECT id FROM t WHERE NOT a = 1")
	assert.Equal(t, "(NOT (a = 1))", sel.Where.String())
}

func TestSyntaxErrorPosition(t *testing.T) {
	_, err := Parse("SELECT FROM t")
	var syn *SyntaxError
	require.ErrorAs(t, err, &syn)
	assert.Equal(t, 1, syn.Line)
	assert.Equal(t, 8, syn.Column)
	assert.Contains(t, syn.Error(), "column name")
}

func TestSyntaxErrorAtEOF(t *testing.T) {
	_, err := Parse("SELECT id FROM")
	var syn *SyntaxError
	require.ErrorAs(t, err, &syn)
	assert.Equal(t, "end of input", syn.Got)
}

func TestTrailingGarbageRejected(t *testing.T) {
	_, err := Parse("SELECT id FROM t; SELECT id FROM t")
	var syn *SyntaxError
	require.ErrorAs(t, err, &syn)
	assert.Contains(t, syn.Expected, "end of statement")
}

func TestIntegerOverflowLiteral(t *testing.T) {
	_, err := Parse("SELECT id FROM t WHERE id = 99999999999999999999")
	var syn *SyntaxError
	assert.ErrorAs(t, err, &syn)
}
