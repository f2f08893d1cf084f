package lexer

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/minghu6/bas/pkg/config"
	"github.com/minghu6/bas/pkg/diag"
	"github.com/minghu6/bas/pkg/token"
)

type Lexer struct {
	src    diag.SourceFile
	source string
	pos    int
	line   int
	column int
	cfg    *config.Config
	err    *diag.SyntaxError
}

func NewLexer(src diag.SourceFile, cfg *config.Config) *Lexer {
	return &Lexer{src: src, source: src.Content, line: 1, column: 1, cfg: cfg}
}

// Tokenize lexes the whole file. The returned slice always ends with EOF
// when err is nil.
func Tokenize(src diag.SourceFile, cfg *config.Config) ([]token.Token, error) {
	l := NewLexer(src, cfg)
	var toks []token.Token
	for {
		tok := l.Next()
		if l.err != nil {
			return nil, l.err
		}
		toks = append(toks, tok)
		if tok.Type == token.EOF { return toks, nil }
	}
}

// Err reports the first lexical error; once set, Next only returns EOF.
func (l *Lexer) Err() error {
	if l.err == nil {
		return nil
	}
	return l.err
}

func (l *Lexer) Next() token.Token {
	if l.err != nil {
		return l.makeToken(token.EOF, "", l.pos, l.column, l.line)
	}
	l.skipWhitespaceAndComments()
	startPos, startCol, startLine := l.pos, l.column, l.line

	if l.isAtEnd() {
		return l.makeToken(token.EOF, "", startPos, startCol, startLine)
	}

	ch := l.peek()
	if unicode.IsLetter(ch) || ch == '_' {
		l.advance()
		return l.identifierOrKeyword(startPos, startCol, startLine)
	}
	if isDigit(ch) {
		return l.numberLiteral(startPos, startCol, startLine)
	}

	l.advance()
	switch ch {
	case '(': return l.makeToken(token.LParen, "", startPos, startCol, startLine)
	case ')': return l.makeToken(token.RParen, "", startPos, startCol, startLine)
	case '{': return l.makeToken(token.LBrace, "", startPos, startCol, startLine)
	case '}': return l.makeToken(token.RBrace, "", startPos, startCol, startLine)
	case '[': return l.makeToken(token.LBracket, "", startPos, startCol, startLine)
	case ']': return l.makeToken(token.RBracket, "", startPos, startCol, startLine)
	case ';': return l.makeToken(token.Semi, "", startPos, startCol, startLine)
	case ',': return l.makeToken(token.Comma, "", startPos, startCol, startLine)
	case ':': return l.makeToken(token.Colon, "", startPos, startCol, startLine)
	case '^': return l.makeToken(token.Xor, "", startPos, startCol, startLine)
	case '*': return l.compound(token.StarEq, token.Star, startPos, startCol, startLine)
	case '/': return l.compound(token.SlashEq, token.Slash, startPos, startCol, startLine)
	case '%': return l.compound(token.RemEq, token.Rem, startPos, startCol, startLine)
	case '+':
		if l.sideEffect('+') { return l.makeToken(token.Inc, "", startPos, startCol, startLine) }
		return l.compound(token.PlusEq, token.Plus, startPos, startCol, startLine)
	case '-':
		if l.sideEffect('-') { return l.makeToken(token.Dec, "", startPos, startCol, startLine) }
		if l.match('>') { return l.makeToken(token.Arrow, "", startPos, startCol, startLine) }
		return l.compound(token.MinusEq, token.Minus, startPos, startCol, startLine)
	case '&': return l.matchThen('&', token.AndAnd, token.And, startPos, startCol, startLine)
	case '|': return l.matchThen('|', token.OrOr, token.Or, startPos, startCol, startLine)
	case '=': return l.matchThen('=', token.EqEq, token.Eq, startPos, startCol, startLine)
	case '<':
		if l.match('<') { return l.makeToken(token.Shl, "", startPos, startCol, startLine) }
		return l.matchThen('=', token.Lte, token.Lt, startPos, startCol, startLine)
	case '>':
		if l.match('>') { return l.makeToken(token.Shr, "", startPos, startCol, startLine) }
		return l.matchThen('=', token.Gte, token.Gt, startPos, startCol, startLine)
	case '!':
		if l.match('=') { return l.makeToken(token.Neq, "", startPos, startCol, startLine) }
		if l.peek() == '(' { return l.commandLiteral(startPos, startCol, startLine) }
	case '@':
		return l.attribute(startPos, startCol, startLine)
	case '"':
		return l.stringLiteral(startPos, startCol, startLine)
	}

	return l.fail(l.makeToken(token.EOF, "", startPos, startCol, startLine), "unexpected character '%c'", ch)
}

func (l *Lexer) fail(tok token.Token, format string, args ...any) token.Token {
	if l.err == nil {
		l.err = &diag.SyntaxError{Source: l.src, Span: diag.At(tok), Msg: fmt.Sprintf(format, args...)}
	}
	tok.Type = token.EOF
	return tok
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() { return 0 }
	r, _ := utf8.DecodeRuneInString(l.source[l.pos:])
	return r
}

func (l *Lexer) peekNext() rune {
	if l.isAtEnd() { return 0 }
	_, n := utf8.DecodeRuneInString(l.source[l.pos:])
	if l.pos+n >= len(l.source) { return 0 }
	r, _ := utf8.DecodeRuneInString(l.source[l.pos+n:])
	return r
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() { return 0 }
	ch, n := utf8.DecodeRuneInString(l.source[l.pos:])
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos += n
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.peek() != expected { return false }
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value, Offset: startPos,
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch l.peek() {
		case ' ', '\t', '\n', '\r':
			l.advance()
		case '#':
			for !l.isAtEnd() && l.peek() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func isDigit(r rune) bool    { return r >= '0' && r <= '9' }
func isHexDigit(r rune) bool { return isDigit(r) || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F') }
func isIdentRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for isIdentRune(l.peek()) {
		l.advance()
	}
	value := l.source[startPos:l.pos]
	if l.peek() == '#' {
		l.advance()
		return l.makeToken(token.Tag, value, startPos, startCol, startLine)
	}
	if tokType, isKeyword := token.KeywordMap[value]; isKeyword {
		if tokType == token.While && !l.cfg.IsFeatureEnabled(config.FeatWhile) {
			return l.makeToken(token.Ident, value, startPos, startCol, startLine)
		}
		return l.makeToken(tokType, "", startPos, startCol, startLine)
	}
	return l.makeToken(token.Ident, value, startPos, startCol, startLine)
}

func (l *Lexer) attribute(startPos, startCol, startLine int) token.Token {
	nameStart := l.pos
	for isIdentRune(l.peek()) {
		l.advance()
	}
	tok := l.makeToken(token.Attribute, l.source[nameStart:l.pos], startPos, startCol, startLine)
	if tok.Value == "" { return l.fail(tok, "expected attribute name after '@'") }
	return tok
}

func (l *Lexer) numberLiteral(startPos, startCol, startLine int) token.Token {
	if l.peek() == '0' && (l.peekNext() == 'x' || l.peekNext() == 'X') {
		l.advance()
		l.advance()
		digits := l.pos
		for isHexDigit(l.peek()) {
			l.advance()
		}
		tok := l.makeToken(token.Number, l.source[startPos:l.pos], startPos, startCol, startLine)
		if l.pos == digits { return l.fail(tok, "hex literal has no digits") }
		return tok
	}

	for isDigit(l.peek()) {
		l.advance()
	}
	if l.peek() == '.' && isDigit(l.peekNext()) {
		l.advance()
		for isDigit(l.peek()) {
			l.advance()
		}
		if l.peek() == 'e' || l.peek() == 'E' {
			l.advance()
			if l.peek() == '+' || l.peek() == '-' {
				l.advance()
			}
			if !isDigit(l.peek()) {
				return l.fail(l.makeToken(token.FloatNumber, "", startPos, startCol, startLine), "malformed float literal: exponent has no digits")
			}
			for isDigit(l.peek()) {
				l.advance()
			}
		}
		return l.makeToken(token.FloatNumber, l.source[startPos:l.pos], startPos, startCol, startLine)
	}
	if isIdentRune(l.peek()) {
		l.advance()
		return l.fail(l.makeToken(token.Number, "", startPos, startCol, startLine), "invalid suffix on integer literal")
	}
	return l.makeToken(token.Number, l.source[startPos:l.pos], startPos, startCol, startLine)
}

func (l *Lexer) stringLiteral(startPos, startCol, startLine int) token.Token {
	var sb strings.Builder
	for !l.isAtEnd() {
		c := l.peek()
		if c == '"' {
			l.advance()
			return l.makeToken(token.String, sb.String(), startPos, startCol, startLine)
		}
		if c == '\n' {
			break
		}
		l.advance()
		if c != '\\' {
			sb.WriteRune(c)
			continue
		}
		if l.isAtEnd() {
			break
		}
		esc := l.advance()
		switch esc {
		case 'n': sb.WriteByte('\n')
		case 't': sb.WriteByte('\t')
		case 'r': sb.WriteByte('\r')
		case '0': sb.WriteByte(0)
		case 'a': sb.WriteByte('\a')
		case 'b': sb.WriteByte('\b')
		case 'f': sb.WriteByte('\f')
		case 'v': sb.WriteByte('\v')
		case 'e': sb.WriteByte(0x1b)
		case '\\', '"', '\'': sb.WriteRune(esc)
		case 'x':
			hi, lo := l.advance(), l.advance()
			if !isHexDigit(hi) || !isHexDigit(lo) {
				return l.fail(l.makeToken(token.String, "", startPos, startCol, startLine), "invalid hex escape in string literal")
			}
			sb.WriteByte(hexVal(hi)<<4 | hexVal(lo))
		default:
			return l.fail(l.makeToken(token.String, "", startPos, startCol, startLine), "unrecognized escape sequence '\\%c'", esc)
		}
	}
	return l.fail(l.makeToken(token.String, "", startPos, startCol, startLine), "unterminated string literal")
}

func hexVal(r rune) byte {
	switch {
	case isDigit(r): return byte(r - '0')
	case r >= 'a' && r <= 'f': return byte(r - 'a' + 10)
	}
	return byte(r - 'A' + 10)
}

// commandLiteral reads `!( ... )`. The body is kept verbatim except that
// `\)` stands for a literal parenthesis.
func (l *Lexer) commandLiteral(startPos, startCol, startLine int) token.Token {
	if !l.cfg.IsFeatureEnabled(config.FeatCmd) {
		return l.fail(l.makeToken(token.Command, "", startPos, startCol, startLine), "command literals are disabled (use -Fcmd)")
	}
	l.advance()
	var sb strings.Builder
	for !l.isAtEnd() {
		c := l.advance()
		if c == ')' {
			return l.makeToken(token.Command, sb.String(), startPos, startCol, startLine)
		}
		if c == '\\' && l.peek() == ')' {
			sb.WriteRune(l.advance())
			continue
		}
		sb.WriteRune(c)
	}
	return l.fail(l.makeToken(token.Command, "", startPos, startCol, startLine), "unterminated command literal")
}

func (l *Lexer) matchThen(expected rune, thenType, elseType token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(expected) {
		return l.makeToken(thenType, "", sPos, sCol, sLine)
	}
	return l.makeToken(elseType, "", sPos, sCol, sLine)
}

// sideEffect recognizes the second character of '++'/'--'.
func (l *Lexer) sideEffect(expected rune) bool {
	return l.cfg.IsFeatureEnabled(config.FeatSideEffect) && l.match(expected)
}

func (l *Lexer) compound(assignType, opType token.Type, sPos, sCol, sLine int) token.Token {
	if l.cfg.IsFeatureEnabled(config.FeatCompoundAssign) && l.match('=') {
		return l.makeToken(assignType, "", sPos, sCol, sLine)
	}
	return l.makeToken(opType, "", sPos, sCol, sLine)
}
