package planner

import (
	"fmt"

	"github.com/pesadb/pesadb/internal/catalog"
	"github.com/pesadb/pesadb/internal/sql/parser"
	"github.com/pesadb/pesadb/internal/types"
)

// Planner binds statements against the catalog.
type Planner struct {
	catalog *catalog.Catalog
	force   JoinStrategy
}

// New creates a planner over the given catalog.
func New(c *catalog.Catalog) *Planner {
	return &Planner{catalog: c}
}

// ForceStrategy overrides automatic join strategy selection. Pass
// StrategyAuto to restore the default.
func (p *Planner) ForceStrategy(s JoinStrategy) {
	p.force = s
}

// Plan builds an executable plan for the statement.
func (p *Planner) Plan(stmt parser.Statement) (Plan, error) {
	switch s := stmt.(type) {
	case *parser.CreateTableStatement:
		return p.planCreateTable(s)
	case *parser.InsertStatement:
		return p.planInsert(s)
	case *parser.SelectStatement:
		return p.planSelect(s)
	case *parser.DeleteStatement:
		return p.planDelete(s)
	case *parser.UpdateStatement:
		return p.planUpdate(s)
	default:
		return nil, fmt.Errorf("cannot plan %T", stmt)
	}
}

// scopeColumn is one resolvable column during binding.
type scopeColumn struct {
	table string
	name  string
	kind  types.Kind
	index int
}

// scope resolves column references to row positions. For joins the
// combined row lays out the outer table's columns first.
type scope struct {
	columns []scopeColumn
}

func scopeFor(tables ...*catalog.TableDef) *scope {
	s := &scope{}
	for _, t := range tables {
		for _, c := range t.Columns {
			s.columns = append(s.columns, scopeColumn{
				table: t.Name,
				name:  c.Name,
				kind:  c.Type.Kind(),
				index: len(s.columns),
			})
		}
	}
	return s
}

func (s *scope) resolve(ref *parser.ColumnRef) (scopeColumn, error) {
	var found scopeColumn
	matches := 0
	for _, c := range s.columns {
		if c.name != ref.Name {
			continue
		}
		if ref.Table != "" && c.table != ref.Table {
			continue
		}
		found = c
		matches++
	}
	switch matches {
	case 0:
		return scopeColumn{}, &UnknownColumnError{Column: ref.String()}
	case 1:
		return found, nil
	default:
		return scopeColumn{}, &AmbiguousColumnError{Column: ref.Name}
	}
}

// bindExpr lowers a parsed expression into a bound one, resolving names
// through the scope and type-checking as it goes. The returned kind is
// KindNull only for the NULL literal itself.
func (p *Planner) bindExpr(s *scope, e parser.Expression) (Expr, types.Kind, error) {
	switch expr := e.(type) {
	case *parser.Literal:
		return &Const{Value: expr.Value}, expr.Value.Kind(), nil

	case *parser.ColumnRef:
		col, err := s.resolve(expr)
		if err != nil {
			return nil, 0, err
		}
		return &Column{Index: col.index, Name: col.table + "." + col.name, Kind: col.kind}, col.kind, nil

	case *parser.FunctionCall:
		if expr.Name != "NOW" {
			return nil, 0, bindErrorf("unknown function %q", expr.Name)
		}
		if len(expr.Args) != 0 {
			return nil, 0, bindErrorf("NOW() takes no arguments")
		}
		return &Now{}, types.KindTimestamp, nil

	case *parser.BinaryExpr:
		return p.bindBinary(s, expr)

	case *parser.NotExpr:
		inner, kind, err := p.bindExpr(s, expr.Expr)
		if err != nil {
			return nil, 0, err
		}
		if kind != types.KindBoolean && kind != types.KindNull {
			return nil, 0, &TypeMismatchError{Context: "NOT", Want: "BOOLEAN", Got: kind.String()}
		}
		return &Not{Expr: inner}, types.KindBoolean, nil

	case *parser.IsNullExpr:
		inner, _, err := p.bindExpr(s, expr.Expr)
		if err != nil {
			return nil, 0, err
		}
		return &IsNull{Expr: inner, Negate: expr.Negate}, types.KindBoolean, nil

	default:
		return nil, 0, fmt.Errorf("cannot bind %T", e)
	}
}

func (p *Planner) bindBinary(s *scope, expr *parser.BinaryExpr) (Expr, types.Kind, error) {
	left, lk, err := p.bindExpr(s, expr.Left)
	if err != nil {
		return nil, 0, err
	}
	right, rk, err := p.bindExpr(s, expr.Right)
	if err != nil {
		return nil, 0, err
	}
	ctx := fmt.Sprintf("operator %s", expr.Op)

	switch expr.Op {
	case parser.OpAdd, parser.OpSubtract, parser.OpMultiply, parser.OpDivide:
		if !kindFits(lk, types.KindInteger) {
			return nil, 0, &TypeMismatchError{Context: ctx, Want: "INTEGER", Got: lk.String()}
		}
		if !kindFits(rk, types.KindInteger) {
			return nil, 0, &TypeMismatchError{Context: ctx, Want: "INTEGER", Got: rk.String()}
		}
		return &Binary{Op: expr.Op, Left: left, Right: right}, types.KindInteger, nil

	case parser.OpAnd, parser.OpOr:
		if !kindFits(lk, types.KindBoolean) {
			return nil, 0, &TypeMismatchError{Context: ctx, Want: "BOOLEAN", Got: lk.String()}
		}
		if !kindFits(rk, types.KindBoolean) {
			return nil, 0, &TypeMismatchError{Context: ctx, Want: "BOOLEAN", Got: rk.String()}
		}
		return &Binary{Op: expr.Op, Left: left, Right: right}, types.KindBoolean, nil

	default: // comparisons
		// a text literal compared against a timestamp is folded into a
		// timestamp at plan time
		if lk == types.KindTimestamp && rk == types.KindText {
			if right, err = foldTimestamp(right); err != nil {
				return nil, 0, err
			}
			rk = types.KindTimestamp
		}
		if rk == types.KindTimestamp && lk == types.KindText {
			if left, err = foldTimestamp(left); err != nil {
				return nil, 0, err
			}
			lk = types.KindTimestamp
		}
		if lk != types.KindNull && rk != types.KindNull && lk != rk {
			return nil, 0, &TypeMismatchError{Context: ctx, Want: lk.String(), Got: rk.String()}
		}
		return &Binary{Op: expr.Op, Left: left, Right: right}, types.KindBoolean, nil
	}
}

// kindFits reports whether a kind satisfies the wanted kind; NULL fits
// anything.
func kindFits(got, want types.Kind) bool {
	return got == want || got == types.KindNull
}

// foldTimestamp rewrites a text constant into a timestamp constant.
func foldTimestamp(e Expr) (Expr, error) {
	c, ok := e.(*Const)
	if !ok {
		return nil, &TypeMismatchError{Context: "comparison", Want: "TIMESTAMP", Got: "TEXT"}
	}
	v, err := types.ParseTimestamp(c.Value.Text())
	if err != nil {
		return nil, err
	}
	return &Const{Value: v}, nil
}

func (p *Planner) planCreateTable(stmt *parser.CreateTableStatement) (Plan, error) {
	if _, ok := p.catalog.Table(stmt.Table); ok {
		return nil, bindErrorf("table %q already exists", stmt.Table)
	}
	if len(stmt.Columns) == 0 {
		return nil, bindErrorf("table %q has no columns", stmt.Table)
	}

	def := &catalog.TableDef{Name: stmt.Table}
	seen := make(map[string]bool)
	pkSeen := false
	for _, spec := range stmt.Columns {
		if seen[spec.Name] {
			return nil, bindErrorf("duplicate column %q", spec.Name)
		}
		seen[spec.Name] = true
		if spec.PrimaryKey {
			if pkSeen {
				return nil, bindErrorf("table %q has more than one primary key", stmt.Table)
			}
			pkSeen = true
		}

		col := catalog.ColumnDef{
			Name:       spec.Name,
			Type:       spec.Type,
			NotNull:    spec.NotNull || spec.PrimaryKey,
			PrimaryKey: spec.PrimaryKey,
		}
		if spec.Default != nil {
			d, err := p.bindDefault(spec)
			if err != nil {
				return nil, err
			}
			col.Default = d
		}
		if spec.Reference != nil {
			if err := p.checkReference(&spec, def); err != nil {
				return nil, err
			}
			col.Reference = &catalog.ForeignKey{
				Table:  spec.Reference.Table,
				Column: spec.Reference.Column,
			}
		}
		def.Columns = append(def.Columns, col)
	}
	return &CreateTablePlan{Def: def}, nil
}

// bindDefault folds a DEFAULT clause into a storable default. Only
// literals and NOW() are allowed.
func (p *Planner) bindDefault(spec parser.ColumnSpec) (*catalog.Default, error) {
	switch d := spec.Default.(type) {
	case *parser.FunctionCall:
		if d.Name != "NOW" || len(d.Args) != 0 {
			return nil, bindErrorf("unsupported DEFAULT expression for column %q", spec.Name)
		}
		if spec.Type != types.TypeTimestamp {
			return nil, &TypeMismatchError{
				Context: fmt.Sprintf("DEFAULT for column %q", spec.Name),
				Want:    "TIMESTAMP",
				Got:     spec.Type.String(),
			}
		}
		return &catalog.Default{Now: true}, nil
	case *parser.Literal:
		v, err := coerceValue(d.Value, spec.Type, fmt.Sprintf("DEFAULT for column %q", spec.Name))
		if err != nil {
			return nil, err
		}
		return &catalog.Default{Value: v}, nil
	default:
		return nil, bindErrorf("unsupported DEFAULT expression for column %q", spec.Name)
	}
}

// checkReference validates a REFERENCES clause at create time: the
// target table and column must exist and the column types must agree.
// A table may reference itself through a column declared earlier in the
// same statement.
func (p *Planner) checkReference(spec *parser.ColumnSpec, def *catalog.TableDef) error {
	target, ok := p.catalog.Table(spec.Reference.Table)
	if !ok {
		if spec.Reference.Table != def.Name {
			return &UnknownTableError{Table: spec.Reference.Table}
		}
		target = def
	}
	idx := target.ColumnIndex(spec.Reference.Column)
	if idx < 0 {
		return &UnknownColumnError{Column: spec.Reference.Table + "." + spec.Reference.Column}
	}
	if target.Columns[idx].Type != spec.Type {
		return &TypeMismatchError{
			Context: fmt.Sprintf("foreign key %s.%s", def.Name, spec.Name),
			Want:    target.Columns[idx].Type.String(),
			Got:     spec.Type.String(),
		}
	}
	return nil
}

// coerceValue checks a literal against a column type, folding text into
// timestamps. NULL passes through; NOT NULL is enforced at execution.
func coerceValue(v types.Value, colType types.ColumnType, context string) (types.Value, error) {
	if v.IsNull() {
		return v, nil
	}
	if colType == types.TypeTimestamp && v.Kind() == types.KindText {
		return types.ParseTimestamp(v.Text())
	}
	if v.Kind() != colType.Kind() {
		return types.Null(), &TypeMismatchError{
			Context: context,
			Want:    colType.String(),
			Got:     v.Kind().String(),
		}
	}
	return v, nil
}

// coerceExpr applies column-type coercion to a bound expression.
func coerceExpr(e Expr, kind types.Kind, colType types.ColumnType, context string) (Expr, error) {
	if c, ok := e.(*Const); ok {
		v, err := coerceValue(c.Value, colType, context)
		if err != nil {
			return nil, err
		}
		return &Const{Value: v}, nil
	}
	if !kindFits(kind, colType.Kind()) {
		return nil, &TypeMismatchError{Context: context, Want: colType.String(), Got: kind.String()}
	}
	return e, nil
}

func (p *Planner) planInsert(stmt *parser.InsertStatement) (Plan, error) {
	table, ok := p.catalog.Table(stmt.Table)
	if !ok {
		return nil, &UnknownTableError{Table: stmt.Table}
	}

	// map each value position to a column index
	targets := make([]int, 0, len(table.Columns))
	if stmt.Columns == nil {
		for i := range table.Columns {
			targets = append(targets, i)
		}
	} else {
		seen := make(map[string]bool)
		for _, name := range stmt.Columns {
			idx := table.ColumnIndex(name)
			if idx < 0 {
				return nil, &UnknownColumnError{Column: name}
			}
			if seen[name] {
				return nil, bindErrorf("column %q named twice in INSERT", name)
			}
			seen[name] = true
			targets = append(targets, idx)
		}
	}

	empty := &scope{} // VALUES expressions cannot reference columns
	plan := &InsertPlan{Table: table}
	for _, parsedRow := range stmt.Rows {
		if len(parsedRow) != len(targets) {
			return nil, &ValueCountError{Want: len(targets), Got: len(parsedRow)}
		}
		row := make([]Expr, len(table.Columns))
		for vi, colIdx := range targets {
			col := table.Columns[colIdx]
			bound, kind, err := p.bindExpr(empty, parsedRow[vi])
			if err != nil {
				return nil, err
			}
			coerced, err := coerceExpr(bound, kind, col.Type, fmt.Sprintf("column %q", col.Name))
			if err != nil {
				return nil, err
			}
			row[colIdx] = coerced
		}
		// omitted columns take their DEFAULT, or NULL
		for i, col := range table.Columns {
			if row[i] != nil {
				continue
			}
			switch {
			case col.Default == nil:
				row[i] = &Const{Value: types.Null()}
			case col.Default.Now:
				row[i] = &Now{}
			default:
				row[i] = &Const{Value: col.Default.Value}
			}
		}
		plan.Rows = append(plan.Rows, row)
	}
	return plan, nil
}

func (p *Planner) planSelect(stmt *parser.SelectStatement) (Plan, error) {
	table, ok := p.catalog.Table(stmt.From)
	if !ok {
		return nil, &UnknownTableError{Table: stmt.From}
	}

	plan := &SelectPlan{Table: table}
	tables := []*catalog.TableDef{table}

	if stmt.Join != nil {
		joined, ok := p.catalog.Table(stmt.Join.Table)
		if !ok {
			return nil, &UnknownTableError{Table: stmt.Join.Table}
		}
		tables = append(tables, joined)
		step, err := p.planJoin(table, joined, stmt.Join.On)
		if err != nil {
			return nil, err
		}
		plan.Join = step
	}

	s := scopeFor(tables...)

	if stmt.Star {
		for _, c := range s.columns {
			plan.Projection = append(plan.Projection, c.index)
			plan.Columns = append(plan.Columns, outputName(c, stmt.Join != nil))
		}
	} else {
		for _, ref := range stmt.Columns {
			c, err := s.resolve(ref)
			if err != nil {
				return nil, err
			}
			plan.Projection = append(plan.Projection, c.index)
			plan.Columns = append(plan.Columns, outputName(c, stmt.Join != nil))
		}
	}

	if stmt.Where != nil {
		filter, kind, err := p.bindExpr(s, stmt.Where)
		if err != nil {
			return nil, err
		}
		if !kindFits(kind, types.KindBoolean) {
			return nil, &TypeMismatchError{Context: "WHERE", Want: "BOOLEAN", Got: kind.String()}
		}
		plan.Filter = filter
	}
	return plan, nil
}

// outputName qualifies result column names only for joins, where the
// same name can come from both tables.
func outputName(c scopeColumn, joined bool) string {
	if joined {
		return c.table + "." + c.name
	}
	return c.name
}

// planJoin binds the ON condition and picks a strategy. A hash join is
// used only when the condition is a single equality between one column
// of each table; everything else falls back to a nested loop over the
// full condition.
func (p *Planner) planJoin(outer, joined *catalog.TableDef, on parser.Expression) (*JoinStep, error) {
	s := scopeFor(outer, joined)
	bound, kind, err := p.bindExpr(s, on)
	if err != nil {
		return nil, err
	}
	if !kindFits(kind, types.KindBoolean) {
		return nil, &TypeMismatchError{Context: "ON", Want: "BOOLEAN", Got: kind.String()}
	}

	step := &JoinStep{Table: joined, Strategy: StrategyNestedLoop, On: bound}
	leftWidth := len(outer.Columns)
	if lk, rk, ok := hashableEquality(bound, leftWidth); ok && p.force != StrategyNestedLoop {
		step.Strategy = StrategyHash
		step.On = nil
		step.LeftKey = lk
		step.RightKey = rk
	}
	if p.force == StrategyHash && step.Strategy != StrategyHash {
		return nil, bindErrorf("hash join requires a single column equality between the two tables")
	}
	return step, nil
}

// hashableEquality recognizes ON conditions of the form a.x = b.y with
// one column from each side, returning the outer-row index and the
// joined-row-relative index.
func hashableEquality(e Expr, leftWidth int) (int, int, bool) {
	bin, ok := e.(*Binary)
	if !ok || bin.Op != parser.OpEquals {
		return 0, 0, false
	}
	l, lok := bin.Left.(*Column)
	r, rok := bin.Right.(*Column)
	if !lok || !rok {
		return 0, 0, false
	}
	switch {
	case l.Index < leftWidth && r.Index >= leftWidth:
		return l.Index, r.Index - leftWidth, true
	case r.Index < leftWidth && l.Index >= leftWidth:
		return r.Index, l.Index - leftWidth, true
	default:
		return 0, 0, false
	}
}

func (p *Planner) planDelete(stmt *parser.DeleteStatement) (Plan, error) {
	table, ok := p.catalog.Table(stmt.Table)
	if !ok {
		return nil, &UnknownTableError{Table: stmt.Table}
	}
	plan := &DeletePlan{Table: table}
	if stmt.Where != nil {
		filter, kind, err := p.bindExpr(scopeFor(table), stmt.Where)
		if err != nil {
			return nil, err
		}
		if !kindFits(kind, types.KindBoolean) {
			return nil, &TypeMismatchError{Context: "WHERE", Want: "BOOLEAN", Got: kind.String()}
		}
		plan.Filter = filter
	}
	return plan, nil
}

func (p *Planner) planUpdate(stmt *parser.UpdateStatement) (Plan, error) {
	table, ok := p.catalog.Table(stmt.Table)
	if !ok {
		return nil, &UnknownTableError{Table: stmt.Table}
	}
	s := scopeFor(table)
	plan := &UpdatePlan{Table: table}

	seen := make(map[string]bool)
	for _, a := range stmt.Set {
		idx := table.ColumnIndex(a.Column)
		if idx < 0 {
			return nil, &UnknownColumnError{Column: a.Column}
		}
		if seen[a.Column] {
			return nil, bindErrorf("column %q assigned twice in UPDATE", a.Column)
		}
		seen[a.Column] = true

		bound, kind, err := p.bindExpr(s, a.Value)
		if err != nil {
			return nil, err
		}
		col := table.Columns[idx]
		coerced, err := coerceExpr(bound, kind, col.Type, fmt.Sprintf("column %q", col.Name))
		if err != nil {
			return nil, err
		}
		plan.Set = append(plan.Set, ColumnUpdate{Index: idx, Value: coerced})
	}

	if stmt.Where != nil {
		filter, kind, err := p.bindExpr(s, stmt.Where)
		if err != nil {
			return nil, err
		}
		if !kindFits(kind, types.KindBoolean) {
			return nil, &TypeMismatchError{Context: "WHERE", Want: "BOOLEAN", Got: kind.String()}
		}
		plan.Filter = filter
	}
	return plan, nil
}
