package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pesadb/pesadb/internal/sql/lexer"
	"github.com/pesadb/pesadb/internal/types"
)

// SyntaxError reports the first token that broke the grammar. Parsing
// stops at the first error.
type SyntaxError struct {
	Line     int
	Column   int
	Got      string
	Expected string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at line %d, column %d: expected %s, got %q",
		e.Line, e.Column, e.Expected, e.Got)
}

// Operator precedence levels, lowest first.
const (
	precLowest = iota
	precOr
	precAnd
	precIs
	precCompare
	precSum
	precProduct
)

var infixPrecedences = map[lexer.TokenType]int{
	lexer.TokenOr:             precOr,
	lexer.TokenAnd:            precAnd,
	lexer.TokenIs:             precIs,
	lexer.TokenEquals:         precCompare,
	lexer.TokenNotEquals:      precCompare,
	lexer.TokenLessThan:       precCompare,
	lexer.TokenGreaterThan:    precCompare,
	lexer.TokenLessOrEqual:    precCompare,
	lexer.TokenGreaterOrEqual: precCompare,
	lexer.TokenPlus:           precSum,
	lexer.TokenMinus:          precSum,
	lexer.TokenAsterisk:       precProduct,
	lexer.TokenSlash:          precProduct,
}

var binaryOps = map[lexer.TokenType]BinaryOp{
	lexer.TokenOr:             OpOr,
	lexer.TokenAnd:            OpAnd,
	lexer.TokenEquals:         OpEquals,
	lexer.TokenNotEquals:      OpNotEquals,
	lexer.TokenLessThan:       OpLessThan,
	lexer.TokenGreaterThan:    OpGreaterThan,
	lexer.TokenLessOrEqual:    OpLessOrEqual,
	lexer.TokenGreaterOrEqual: OpGreaterOrEqual,
	lexer.TokenPlus:           OpAdd,
	lexer.TokenMinus:          OpSubtract,
	lexer.TokenAsterisk:       OpMultiply,
	lexer.TokenSlash:          OpDivide,
}

// Parser consumes the token stream one statement at a time. cur is the
// next unconsumed token; peek is the one after it.
type Parser struct {
	lex  *lexer.Lexer
	cur  lexer.Token
	peek lexer.Token
}

// New creates a parser over the given SQL text.
func New(input string) *Parser {
	p := &Parser{lex: lexer.New(input)}
	p.advance()
	p.advance()
	return p
}

// Parse parses input as a single statement, with an optional trailing
// semicolon, and rejects anything after it.
func Parse(input string) (Statement, error) {
	p := New(input)
	stmt, err := p.ParseStatement()
	if err != nil {
		return nil, err
	}
	if p.cur.Type == lexer.TokenSemicolon {
		p.advance()
	}
	if p.cur.Type != lexer.TokenEOF {
		return nil, p.errorAt(p.cur, "end of statement")
	}
	return stmt, nil
}

func (p *Parser) advance() {
	p.cur = p.peek
	p.peek = p.lex.NextToken()
}

func (p *Parser) errorAt(tok lexer.Token, expected string) error {
	got := tok.Literal
	if tok.Type == lexer.TokenEOF {
		got = "end of input"
	}
	if tok.Type == lexer.TokenError {
		got = tok.Literal // lexer already phrased the problem
	}
	return &SyntaxError{Line: tok.Line, Column: tok.Column, Got: got, Expected: expected}
}

// expect consumes and returns the current token if it has the wanted
// type.
func (p *Parser) expect(t lexer.TokenType, expected string) (lexer.Token, error) {
	if p.cur.Type != t {
		return lexer.Token{}, p.errorAt(p.cur, expected)
	}
	tok := p.cur
	p.advance()
	return tok, nil
}

// ParseStatement parses one statement starting at the current token.
func (p *Parser) ParseStatement() (Statement, error) {
	switch p.cur.Type {
	case lexer.TokenCreate:
		return p.parseCreateTable()
	case lexer.TokenInsert:
		return p.parseInsert()
	case lexer.TokenSelect:
		return p.parseSelect()
	case lexer.TokenDelete:
		return p.parseDelete()
	case lexer.TokenUpdate:
		return p.parseUpdate()
	default:
		return nil, p.errorAt(p.cur, "SELECT, INSERT, UPDATE, DELETE, or CREATE")
	}
}

func (p *Parser) parseCreateTable() (*CreateTableStatement, error) {
	p.advance() // CREATE
	if _, err := p.expect(lexer.TokenTable, "TABLE"); err != nil {
		return nil, err
	}
	name, err := p.expect(lexer.TokenIdent, "table name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenLeftParen, "("); err != nil {
		return nil, err
	}

	stmt := &CreateTableStatement{Table: name.Literal}
	for {
		if p.cur.Type == lexer.TokenForeign {
			if err := p.parseTableForeignKey(stmt); err != nil {
				return nil, err
			}
		} else {
			col, err := p.parseColumnSpec()
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, col)
		}
		if p.cur.Type != lexer.TokenComma {
			break
		}
		p.advance()
	}
	if _, err := p.expect(lexer.TokenRightParen, ")"); err != nil {
		return nil, err
	}
	return stmt, nil
}

func (p *Parser) parseColumnSpec() (ColumnSpec, error) {
	name, err := p.expect(lexer.TokenIdent, "column name")
	if err != nil {
		return ColumnSpec{}, err
	}
	col := ColumnSpec{Name: name.Literal}

	switch p.cur.Type {
	case lexer.TokenInteger:
		col.Type = types.TypeInteger
	case lexer.TokenText:
		col.Type = types.TypeText
	case lexer.TokenBoolean:
		col.Type = types.TypeBoolean
	case lexer.TokenTimestamp:
		col.Type = types.TypeTimestamp
	default:
		return ColumnSpec{}, p.errorAt(p.cur, "column type")
	}
	p.advance()

	// inline constraints, in any order
	for {
		switch p.cur.Type {
		case lexer.TokenPrimary:
			p.advance()
			if _, err := p.expect(lexer.TokenKey, "KEY"); err != nil {
				return ColumnSpec{}, err
			}
			col.PrimaryKey = true
		case lexer.TokenNot:
			p.advance()
			if _, err := p.expect(lexer.TokenNull, "NULL"); err != nil {
				return ColumnSpec{}, err
			}
			col.NotNull = true
		case lexer.TokenDefault:
			p.advance()
			expr, err := p.parsePrimary()
			if err != nil {
				return ColumnSpec{}, err
			}
			col.Default = expr
		case lexer.TokenReferences:
			p.advance()
			ref, err := p.parseReference()
			if err != nil {
				return ColumnSpec{}, err
			}
			col.Reference = ref
		default:
			return col, nil
		}
	}
}

// parseTableForeignKey handles the table-level form
// FOREIGN KEY (column) REFERENCES table (column) and attaches it to the
// named column, which must already be defined.
func (p *Parser) parseTableForeignKey(stmt *CreateTableStatement) error {
	p.advance() // FOREIGN
	if _, err := p.expect(lexer.TokenKey, "KEY"); err != nil {
		return err
	}
	if _, err := p.expect(lexer.TokenLeftParen, "("); err != nil {
		return err
	}
	col, err := p.expect(lexer.TokenIdent, "column name")
	if err != nil {
		return err
	}
	if _, err := p.expect(lexer.TokenRightParen, ")"); err != nil {
		return err
	}
	if _, err := p.expect(lexer.TokenReferences, "REFERENCES"); err != nil {
		return err
	}
	ref, err := p.parseReference()
	if err != nil {
		return err
	}
	for i := range stmt.Columns {
		if stmt.Columns[i].Name == col.Literal {
			stmt.Columns[i].Reference = ref
			return nil
		}
	}
	return p.errorAt(col, "a column defined earlier in this table")
}

// parseReference parses table (column) after REFERENCES.
func (p *Parser) parseReference() (*Reference, error) {
	table, err := p.expect(lexer.TokenIdent, "referenced table name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenLeftParen, "("); err != nil {
		return nil, err
	}
	column, err := p.expect(lexer.TokenIdent, "referenced column name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenRightParen, ")"); err != nil {
		return nil, err
	}
	return &Reference{Table: table.Literal, Column: column.Literal}, nil
}

func (p *Parser) parseInsert() (*InsertStatement, error) {
	p.advance() // INSERT
	if _, err := p.expect(lexer.TokenInto, "INTO"); err != nil {
		return nil, err
	}
	name, err := p.expect(lexer.TokenIdent, "table name")
	if err != nil {
		return nil, err
	}
	stmt := &InsertStatement{Table: name.Literal}

	if p.cur.Type == lexer.TokenLeftParen {
		p.advance()
		for {
			col, err := p.expect(lexer.TokenIdent, "column name")
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, col.Literal)
			if p.cur.Type != lexer.TokenComma {
				break
			}
			p.advance()
		}
		if _, err := p.expect(lexer.TokenRightParen, ")"); err != nil {
			return nil, err
		}
	}

	if _, err := p.expect(lexer.TokenValues, "VALUES"); err != nil {
		return nil, err
	}
	for {
		row, err := p.parseValueTuple()
		if err != nil {
			return nil, err
		}
		stmt.Rows = append(stmt.Rows, row)
		if p.cur.Type != lexer.TokenComma {
			break
		}
		p.advance()
	}
	return stmt, nil
}

func (p *Parser) parseValueTuple() ([]Expression, error) {
	if _, err := p.expect(lexer.TokenLeftParen, "("); err != nil {
		return nil, err
	}
	var row []Expression
	for {
		expr, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		row = append(row, expr)
		if p.cur.Type != lexer.TokenComma {
			break
		}
		p.advance()
	}
	if _, err := p.expect(lexer.TokenRightParen, ")"); err != nil {
		return nil, err
	}
	return row, nil
}

func (p *Parser) parseSelect() (*SelectStatement, error) {
	p.advance() // SELECT
	stmt := &SelectStatement{}

	if p.cur.Type == lexer.TokenAsterisk {
		stmt.Star = true
		p.advance()
	} else {
		for {
			col, err := p.parseColumnRef()
			if err != nil {
				return nil, err
			}
			stmt.Columns = append(stmt.Columns, col)
			if p.cur.Type != lexer.TokenComma {
				break
			}
			p.advance()
		}
	}

	if _, err := p.expect(lexer.TokenFrom, "FROM"); err != nil {
		return nil, err
	}
	from, err := p.expect(lexer.TokenIdent, "table name")
	if err != nil {
		return nil, err
	}
	stmt.From = from.Literal

	if p.cur.Type == lexer.TokenJoin {
		p.advance()
		table, err := p.expect(lexer.TokenIdent, "table name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenOn, "ON"); err != nil {
			return nil, err
		}
		on, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		stmt.Join = &JoinClause{Table: table.Literal, On: on}
	}

	if p.cur.Type == lexer.TokenWhere {
		p.advance()
		where, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

func (p *Parser) parseDelete() (*DeleteStatement, error) {
	p.advance() // DELETE
	if _, err := p.expect(lexer.TokenFrom, "FROM"); err != nil {
		return nil, err
	}
	name, err := p.expect(lexer.TokenIdent, "table name")
	if err != nil {
		return nil, err
	}
	stmt := &DeleteStatement{Table: name.Literal}

	if p.cur.Type == lexer.TokenWhere {
		p.advance()
		where, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

func (p *Parser) parseUpdate() (*UpdateStatement, error) {
	p.advance() // UPDATE
	name, err := p.expect(lexer.TokenIdent, "table name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenSet, "SET"); err != nil {
		return nil, err
	}
	stmt := &UpdateStatement{Table: name.Literal}

	for {
		col, err := p.expect(lexer.TokenIdent, "column name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenEquals, "="); err != nil {
			return nil, err
		}
		value, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		stmt.Set = append(stmt.Set, Assignment{Column: col.Literal, Value: value})
		if p.cur.Type != lexer.TokenComma {
			break
		}
		p.advance()
	}

	if p.cur.Type == lexer.TokenWhere {
		p.advance()
		where, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}
	return stmt, nil
}

// parseExpression is the Pratt loop: parse a prefix expression, then keep
// absorbing infix operators that bind tighter than minPrec.
func (p *Parser) parseExpression(minPrec int) (Expression, error) {
	left, err := p.parsePrefix()
	if err != nil {
		return nil, err
	}

	for {
		prec, ok := infixPrecedences[p.cur.Type]
		if !ok || prec <= minPrec {
			return left, nil
		}
		if p.cur.Type == lexer.TokenIs {
			left, err = p.parseIsNull(left)
			if err != nil {
				return nil, err
			}
			continue
		}
		op := binaryOps[p.cur.Type]
		p.advance()
		right, err := p.parseExpression(prec)
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, Left: left, Right: right}
	}
}

func (p *Parser) parseIsNull(left Expression) (Expression, error) {
	p.advance() // IS
	negate := false
	if p.cur.Type == lexer.TokenNot {
		negate = true
		p.advance()
	}
	if _, err := p.expect(lexer.TokenNull, "NULL"); err != nil {
		return nil, err
	}
	return &IsNullExpr{Expr: left, Negate: negate}, nil
}

func (p *Parser) parsePrefix() (Expression, error) {
	if p.cur.Type == lexer.TokenNot {
		p.advance()
		expr, err := p.parseExpression(precIs)
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: expr}, nil
	}
	return p.parsePrimary()
}

// parsePrimary parses literals, column references, function calls, and
// parenthesized expressions.
func (p *Parser) parsePrimary() (Expression, error) {
	switch p.cur.Type {
	case lexer.TokenNumber:
		n, err := strconv.ParseInt(p.cur.Literal, 10, 64)
		if err != nil {
			return nil, p.errorAt(p.cur, "64-bit integer literal")
		}
		p.advance()
		return &Literal{Value: types.NewInteger(n)}, nil
	case lexer.TokenString:
		lit := &Literal{Value: types.NewText(p.cur.Literal)}
		p.advance()
		return lit, nil
	case lexer.TokenTrue:
		p.advance()
		return &Literal{Value: types.NewBoolean(true)}, nil
	case lexer.TokenFalse:
		p.advance()
		return &Literal{Value: types.NewBoolean(false)}, nil
	case lexer.TokenNull:
		p.advance()
		return &Literal{Value: types.Null()}, nil
	case lexer.TokenLeftParen:
		p.advance()
		expr, err := p.parseExpression(precLowest)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenRightParen, ")"); err != nil {
			return nil, err
		}
		return expr, nil
	case lexer.TokenIdent:
		if p.peek.Type == lexer.TokenLeftParen {
			return p.parseFunctionCall()
		}
		return p.parseColumnRef()
	case lexer.TokenError:
		return nil, p.errorAt(p.cur, "a complete token")
	default:
		return nil, p.errorAt(p.cur, "an expression")
	}
}

func (p *Parser) parseFunctionCall() (Expression, error) {
	name := p.cur
	p.advance() // name
	p.advance() // (
	call := &FunctionCall{Name: strings.ToUpper(name.Literal)}
	if p.cur.Type != lexer.TokenRightParen {
		for {
			arg, err := p.parseExpression(precLowest)
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			if p.cur.Type != lexer.TokenComma {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(lexer.TokenRightParen, ")"); err != nil {
		return nil, err
	}
	return call, nil
}

// parseColumnRef parses name or table.name.
func (p *Parser) parseColumnRef() (*ColumnRef, error) {
	first, err := p.expect(lexer.TokenIdent, "column name")
	if err != nil {
		return nil, err
	}
	ref := &ColumnRef{Name: first.Literal, Line: first.Line, Column: first.Column}
	if p.cur.Type == lexer.TokenDot {
		p.advance()
		second, err := p.expect(lexer.TokenIdent, "column name after '.'")
		if err != nil {
			return nil, err
		}
		ref.Table = first.Literal
		ref.Name = second.Literal
	}
	return ref, nil
}
