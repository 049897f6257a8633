// Package lexer turns raw SQL text into a stream of tokens. Each token
// carries the 1-based line and column where it starts so parse errors can
// point at the offending input.
package lexer

import (
	"fmt"
	"strings"
)

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError
	TokenIllegal

	// Literals
	TokenIdent
	TokenNumber
	TokenString

	// Keywords
	TokenSelect
	TokenInsert
	TokenUpdate
	TokenDelete
	TokenCreate
	TokenInto
	TokenValues
	TokenFrom
	TokenWhere
	TokenJoin
	TokenOn
	TokenAnd
	TokenOr
	TokenNot
	TokenSet
	TokenTable
	TokenPrimary
	TokenKey
	TokenForeign
	TokenReferences
	TokenDefault
	TokenNull
	TokenTrue
	TokenFalse
	TokenIs

	// Data types
	TokenInteger
	TokenText
	TokenBoolean
	TokenTimestamp

	// Operators
	TokenEquals         // =
	TokenNotEquals      // != or <>
	TokenLessThan       // <
	TokenGreaterThan    // >
	TokenLessOrEqual    // <=
	TokenGreaterOrEqual // >=
	TokenPlus           // +
	TokenMinus          // -
	TokenAsterisk       // *
	TokenSlash          // /

	// Punctuation
	TokenComma      // ,
	TokenSemicolon  // ;
	TokenDot        // .
	TokenLeftParen  // (
	TokenRightParen // )
)

// Token represents a lexical token.
type Token struct {
	Type    TokenType
	Literal string
	Line    int
	Column  int
}

// String returns a human-readable representation of the token.
func (t Token) String() string {
	return fmt.Sprintf("Token{%s, %q, line:%d, col:%d}",
		t.Type.Name(), t.Literal, t.Line, t.Column)
}

// Name returns the name of a token type.
func (t TokenType) Name() string {
	names := map[TokenType]string{
		TokenEOF:            "EOF",
		TokenError:          "ERROR",
		TokenIllegal:        "ILLEGAL",
		TokenIdent:          "IDENT",
		TokenNumber:         "NUMBER",
		TokenString:         "STRING",
		TokenSelect:         "SELECT",
		TokenInsert:         "INSERT",
		TokenUpdate:         "UPDATE",
		TokenDelete:         "DELETE",
		TokenCreate:         "CREATE",
		TokenInto:           "INTO",
		TokenValues:         "VALUES",
		TokenFrom:           "FROM",
		TokenWhere:          "WHERE",
		TokenJoin:           "JOIN",
		TokenOn:             "ON",
		TokenAnd:            "AND",
		TokenOr:             "OR",
		TokenNot:            "NOT",
		TokenSet:            "SET",
		TokenTable:          "TABLE",
		TokenPrimary:        "PRIMARY",
		TokenKey:            "KEY",
		TokenForeign:        "FOREIGN",
		TokenReferences:     "REFERENCES",
		TokenDefault:        "DEFAULT",
		TokenNull:           "NULL",
		TokenTrue:           "TRUE",
		TokenFalse:          "FALSE",
		TokenIs:             "IS",
		TokenInteger:        "INTEGER",
		TokenText:           "TEXT",
		TokenBoolean:        "BOOLEAN",
		TokenTimestamp:      "TIMESTAMP",
		TokenEquals:         "EQUALS",
		TokenNotEquals:      "NOT_EQUALS",
		TokenLessThan:       "LESS_THAN",
		TokenGreaterThan:    "GREATER_THAN",
		TokenLessOrEqual:    "LESS_OR_EQUAL",
		TokenGreaterOrEqual: "GREATER_OR_EQUAL",
		TokenPlus:           "PLUS",
		TokenMinus:          "MINUS",
		TokenAsterisk:       "ASTERISK",
		TokenSlash:          "SLASH",
		TokenComma:          "COMMA",
		TokenSemicolon:      "SEMICOLON",
		TokenDot:            "DOT",
		TokenLeftParen:      "LEFT_PAREN",
		TokenRightParen:     "RIGHT_PAREN",
	}
	if name, ok := names[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", t)
}

// keywords maps SQL keywords to their token types. SQL is
// case-insensitive, so lookups go through strings.ToUpper.
var keywords = map[string]TokenType{
	"SELECT":     TokenSelect,
	"INSERT":     TokenInsert,
	"UPDATE":     TokenUpdate,
	"DELETE":     TokenDelete,
	"CREATE":     TokenCreate,
	"INTO":       TokenInto,
	"VALUES":     TokenValues,
	"FROM":       TokenFrom,
	"WHERE":      TokenWhere,
	"JOIN":       TokenJoin,
	"ON":         TokenOn,
	"AND":        TokenAnd,
	"OR":         TokenOr,
	"NOT":        TokenNot,
	"SET":        TokenSet,
	"TABLE":      TokenTable,
	"PRIMARY":    TokenPrimary,
	"KEY":        TokenKey,
	"FOREIGN":    TokenForeign,
	"REFERENCES": TokenReferences,
	"DEFAULT":    TokenDefault,
	"NULL":       TokenNull,
	"TRUE":       TokenTrue,
	"FALSE":      TokenFalse,
	"IS":         TokenIs,
	"INTEGER":    TokenInteger,
	"INT":        TokenInteger,
	"TEXT":       TokenText,
	"BOOLEAN":    TokenBoolean,
	"BOOL":       TokenBoolean,
	"TIMESTAMP":  TokenTimestamp,
}

// Lexer tokenizes SQL input.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current character
	line    int
	column  int
	prev    TokenType // last token emitted, disambiguates unary minus
}

// New creates a new Lexer for the given input.
func New(input string) *Lexer {
	l := &Lexer{
		input:  input,
		line:   1,
		column: 0,
	}
	l.readChar()
	return l
}

// readChar reads the next character and advances position.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // NUL signifies EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
	l.column++

	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
}

// peekChar looks at the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// NextToken returns the next token from the input.
func (l *Lexer) NextToken() Token {
	tok := l.nextToken()
	l.prev = tok.Type
	return tok
}

func (l *Lexer) nextToken() Token {
	var tok Token

	l.skipWhitespaceAndComments()

	tok.Line = l.line
	tok.Column = l.column

	switch l.ch {
	case '=':
		tok = l.makeToken(TokenEquals, string(l.ch))
	case '+':
		tok = l.makeToken(TokenPlus, string(l.ch))
	case '-':
		// a minus after an operand is subtraction; elsewhere it signs
		// the number that follows
		if isDigit(l.peekChar()) && !endsOperand(l.prev) {
			return l.readNumber()
		}
		tok = l.makeToken(TokenMinus, string(l.ch))
	case '*':
		tok = l.makeToken(TokenAsterisk, string(l.ch))
	case '/':
		tok = l.makeToken(TokenSlash, string(l.ch))
	case '<':
		if l.peekChar() == '=' {
			ch := l.ch
			l.readChar()
			tok = l.makeToken(TokenLessOrEqual, string(ch)+string(l.ch))
		} else if l.peekChar() == '>' {
			ch := l.ch
			l.readChar()
			tok = l.makeToken(TokenNotEquals, string(ch)+string(l.ch))
		} else {
			tok = l.makeToken(TokenLessThan, string(l.ch))
		}
	case '>':
		if l.peekChar() == '=' {
			ch := l.ch
			l.readChar()
			tok = l.makeToken(TokenGreaterOrEqual, string(ch)+string(l.ch))
		} else {
			tok = l.makeToken(TokenGreaterThan, string(l.ch))
		}
	case '!':
		if l.peekChar() == '=' {
			ch := l.ch
			l.readChar()
			tok = l.makeToken(TokenNotEquals, string(ch)+string(l.ch))
		} else {
			tok = l.makeToken(TokenIllegal, string(l.ch))
		}
	case ',':
		tok = l.makeToken(TokenComma, string(l.ch))
	case ';':
		tok = l.makeToken(TokenSemicolon, string(l.ch))
	case '.':
		tok = l.makeToken(TokenDot, string(l.ch))
	case '(':
		tok = l.makeToken(TokenLeftParen, string(l.ch))
	case ')':
		tok = l.makeToken(TokenRightParen, string(l.ch))
	case '\'':
		return l.readString()
	case 0:
		tok.Literal = ""
		tok.Type = TokenEOF
		return tok
	default:
		if isLetter(l.ch) {
			return l.readIdentifier()
		} else if isDigit(l.ch) {
			return l.readNumber()
		}
		tok = l.makeToken(TokenIllegal, string(l.ch))
	}

	l.readChar()
	return tok
}

// endsOperand reports whether a token type can end an operand, making a
// '-' right after it a binary operator.
func endsOperand(t TokenType) bool {
	switch t {
	case TokenIdent, TokenNumber, TokenString, TokenRightParen,
		TokenTrue, TokenFalse, TokenNull:
		return true
	}
	return false
}

// makeToken creates a token with current position info.
func (l *Lexer) makeToken(tokenType TokenType, literal string) Token {
	return Token{
		Type:    tokenType,
		Literal: literal,
		Line:    l.line,
		Column:  l.column,
	}
}

// skipWhitespaceAndComments skips spaces, tabs, newlines, -- line
// comments, and /* */ block comments. An unterminated block comment
// consumes the rest of the input.
func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r':
			l.readChar()
		case l.ch == '-' && l.peekChar() == '-':
			for l.ch != '\n' && l.ch != 0 {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			l.readChar()
			l.readChar()
			for l.ch != 0 && !(l.ch == '*' && l.peekChar() == '/') {
				l.readChar()
			}
			if l.ch != 0 {
				l.readChar()
				l.readChar()
			}
		default:
			return
		}
	}
}

// readIdentifier reads an identifier or keyword.
func (l *Lexer) readIdentifier() Token {
	startLine := l.line
	startColumn := l.column
	startPos := l.pos

	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}

	literal := l.input[startPos:l.pos]
	tokenType, isKeyword := keywords[strings.ToUpper(literal)]
	if !isKeyword {
		tokenType = TokenIdent
	}

	return Token{
		Type:    tokenType,
		Literal: literal,
		Line:    startLine,
		Column:  startColumn,
	}
}

// readNumber reads an integer literal, with an optional leading minus.
func (l *Lexer) readNumber() Token {
	startLine := l.line
	startColumn := l.column
	startPos := l.pos

	if l.ch == '-' {
		l.readChar()
	}
	for isDigit(l.ch) {
		l.readChar()
	}

	return Token{
		Type:    TokenNumber,
		Literal: l.input[startPos:l.pos],
		Line:    startLine,
		Column:  startColumn,
	}
}

// readString reads a string literal enclosed in single quotes. A doubled
// quote inside the literal stands for one quote character.
func (l *Lexer) readString() Token {
	startLine := l.line
	startColumn := l.column

	var sb strings.Builder
	l.readChar() // consume opening quote

	for {
		if l.ch == '\'' {
			if l.peekChar() == '\'' {
				sb.WriteByte('\'')
				l.readChar()
				l.readChar()
			} else {
				l.readChar()
				break
			}
		} else if l.ch == 0 {
			return Token{
				Type:    TokenError,
				Literal: "unterminated string",
				Line:    startLine,
				Column:  startColumn,
			}
		} else {
			sb.WriteByte(l.ch)
			l.readChar()
		}
	}

	return Token{
		Type:    TokenString,
		Literal: sb.String(),
		Line:    startLine,
		Column:  startColumn,
	}
}

// Tokenize returns all tokens from the input, ending with EOF or the
// first error token. Useful for debugging and testing.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return tokens
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}
