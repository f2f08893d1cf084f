package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/minghu6/bas/pkg/ast"
	"github.com/minghu6/bas/pkg/diag"
	"github.com/minghu6/bas/pkg/token"
)

// Parser holds the state for the parsing process
type Parser struct {
	src       diag.SourceFile
	tokens    []token.Token
	pos       int
	current   token.Token
	previous  token.Token
	loopDepth int
}

// bailout unwinds the parser on the first syntax error.
type bailout struct{ err *diag.SyntaxError }

// NewParser creates a Parser over an EOF-terminated token stream.
func NewParser(src diag.SourceFile, tokens []token.Token) *Parser {
	p := &Parser{src: src, tokens: tokens}
	if len(tokens) > 0 {
		p.current = p.tokens[0]
	}
	return p
}

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.previous = p.current
		p.pos++
		if p.pos < len(p.tokens) {
			p.current = p.tokens[p.pos]
		}
	}
}

func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) check(tokType token.Type) bool { return p.current.Type == tokType }

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(tokType token.Type, message string) token.Token {
	if p.check(tokType) {
		p.advance()
		return p.previous
	}
	p.errorAt(p.current, "%s", message)
	return token.Token{}
}

func (p *Parser) errorAt(tok token.Token, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if tok.Type == token.EOF {
		msg += " (found end of file)"
	} else {
		msg += fmt.Sprintf(" (found '%s')", describe(tok))
	}
	panic(bailout{&diag.SyntaxError{Source: p.src, Span: diag.At(tok), Msg: msg}})
}

func describe(tok token.Token) string {
	if tok.Value != "" && (tok.Type == token.Ident || tok.Type == token.Number || tok.Type == token.FloatNumber) {
		return tok.Value
	}
	return tok.Type.String()
}

// Expression Parsing
func getBinaryOpPrecedence(op token.Type) int {
	switch op {
	case token.Star, token.Slash, token.Rem:
		return 10
	case token.Plus, token.Minus:
		return 9
	case token.Shl, token.Shr:
		return 8
	case token.And:
		return 7
	case token.Xor:
		return 6
	case token.Or:
		return 5
	case token.EqEq, token.Neq, token.Lt, token.Gt, token.Lte, token.Gte:
		return 4
	case token.AndAnd:
		return 3
	case token.OrOr:
		return 2
	default:
		return -1
	}
}

func isAssignmentOp(op token.Type) bool {
	return op >= token.Eq && op <= token.RemEq
}

func (p *Parser) parseNumber(tok token.Token) *ast.Node {
	v := tok.Value
	if strings.HasPrefix(v, "0x") || strings.HasPrefix(v, "0X") {
		val, err := strconv.ParseUint(v[2:], 16, 64)
		if err != nil || val > math.MaxUint32 {
			p.errorAt(tok, "hex integer literal does not fit in 32 bits")
		}
		return ast.NewNumber(tok, int64(int32(uint32(val))))
	}
	val, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.errorAt(tok, "invalid integer literal")
	}
	return ast.NewNumber(tok, val)
}

func (p *Parser) parsePrimaryExpr() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Number):
		return p.parseNumber(tok)
	case p.match(token.FloatNumber):
		val, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			p.errorAt(tok, "invalid float literal")
		}
		return ast.NewFloat(tok, val)
	case p.match(token.String):
		return ast.NewString(tok, tok.Value)
	case p.match(token.True):
		return ast.NewBool(tok, true)
	case p.match(token.False):
		return ast.NewBool(tok, false)
	case p.match(token.Command):
		return ast.NewCommand(tok, tok.Value)
	case p.match(token.Tag):
		tag := tok
		name := p.expect(token.Ident, "Expected function name after call tag.")
		p.expect(token.LParen, "Expected '(' after tagged function name.")
		return ast.NewFuncCall(name, &tag, name.Value, p.parseArgs())
	case p.match(token.Ident):
		if p.match(token.LParen) {
			return ast.NewFuncCall(tok, nil, tok.Value, p.parseArgs())
		}
		return ast.NewIdent(tok, tok.Value)
	case p.match(token.LParen):
		expr := p.parseExpr()
		p.expect(token.RParen, "Expected ')' after expression.")
		return expr
	case p.check(token.LBrace):
		return p.parseBlock()
	case p.match(token.If):
		return p.parseIf(tok)
	case p.match(token.Loop):
		p.loopDepth++
		body := p.parseBlock()
		p.loopDepth--
		return ast.NewLoop(tok, body)
	case p.match(token.While):
		cond := p.parseExpr()
		p.loopDepth++
		body := p.parseBlock()
		p.loopDepth--
		return ast.NewWhile(tok, cond, body)
	case p.match(token.Return):
		return ast.NewReturn(tok, p.parseOptionalExpr())
	case p.match(token.Break):
		if p.loopDepth == 0 {
			p.errorAt(tok, "'break' outside of a loop")
		}
		return ast.NewBreak(tok, p.parseOptionalExpr())
	case p.match(token.Continue):
		if p.loopDepth == 0 {
			p.errorAt(tok, "'continue' outside of a loop")
		}
		return ast.NewContinue(tok)
	}
	p.errorAt(tok, "Expected an expression.")
	return nil
}

func (p *Parser) parseArgs() []*ast.Node {
	var args []*ast.Node
	if !p.check(token.RParen) {
		for {
			args = append(args, p.parseExpr())
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "Expected ')' after function arguments.")
	return args
}

// parseOptionalExpr parses the operand of return/break when one follows.
func (p *Parser) parseOptionalExpr() *ast.Node {
	switch p.current.Type {
	case token.Semi, token.RBrace, token.RParen, token.Comma, token.EOF:
		return nil
	}
	return p.parseExpr()
}

func (p *Parser) parseIf(tok token.Token) *ast.Node {
	var arms []ast.IfArm
	for {
		cond := p.parseExpr()
		body := p.parseBlock()
		arms = append(arms, ast.IfArm{Cond: cond, Body: body})
		if !p.match(token.Else) {
			return ast.NewIf(tok, arms, nil)
		}
		if !p.match(token.If) {
			return ast.NewIf(tok, arms, p.parseBlock())
		}
	}
}

func (p *Parser) parsePostfixExpr() *ast.Node {
	expr := p.parsePrimaryExpr()
	for p.match(token.Inc) || p.match(token.Dec) {
		expr = ast.NewPostfixOp(p.previous, p.previous.Type, expr)
	}
	return expr
}

func (p *Parser) parseUnaryExpr() *ast.Node {
	tok := p.current
	if p.match(token.Minus) || p.match(token.Plus) || p.match(token.Inc) || p.match(token.Dec) {
		operand := p.parseUnaryExpr()
		return ast.FoldConstants(ast.NewUnaryOp(tok, tok.Type, operand))
	}
	return p.parsePostfixExpr()
}

func (p *Parser) parseCastExpr() *ast.Node {
	expr := p.parseUnaryExpr()
	for p.match(token.As) {
		expr = ast.NewTypeCast(p.previous, expr, p.parseType())
	}
	return expr
}

func (p *Parser) parseBinaryExpr(minPrec int) *ast.Node {
	left := p.parseCastExpr()
	for {
		op := p.current.Type
		prec := getBinaryOpPrecedence(op)
		if prec < minPrec {
			break
		}
		opTok := p.current
		p.advance()
		right := p.parseBinaryExpr(prec + 1)
		left = ast.FoldConstants(ast.NewBinaryOp(opTok, op, left, right))
	}
	return left
}

func (p *Parser) parseAssignmentExpr() *ast.Node {
	left := p.parseBinaryExpr(0)
	if isAssignmentOp(p.current.Type) {
		op := p.current.Type
		tok := p.current
		p.advance()
		right := p.parseAssignmentExpr()
		return ast.NewAssign(tok, op, left, right)
	}
	return left
}

func (p *Parser) parseExpr() *ast.Node { return p.parseAssignmentExpr() }

// Types
func (p *Parser) parseType() *ast.TypeExpr {
	tok := p.current
	switch {
	case p.match(token.Ident):
		return &ast.TypeExpr{Tok: tok, Kind: ast.TypeNamed, Name: tok.Value}
	case p.match(token.LBracket):
		elem := p.parseType()
		p.expect(token.RBracket, "Expected ']' after array element type.")
		switch elem.Kind {
		case ast.TypeNamed, ast.TypeStruct:
			return &ast.TypeExpr{Tok: tok, Kind: ast.TypeArray, Name: elem.Name, Dims: 1, Elem: elem.Kind}
		case ast.TypeArray:
			elem.Tok, elem.Dims = tok, elem.Dims+1
			return elem
		}
		p.errorAt(elem.Tok, "associative arrays cannot be array elements")
	case p.match(token.LBrace):
		name := p.expect(token.Ident, "Expected struct name inside '{ }'.")
		p.expect(token.RBrace, "Expected '}' after struct name.")
		return &ast.TypeExpr{Tok: tok, Kind: ast.TypeStruct, Name: name.Value}
	case p.match(token.Lt):
		elem := p.parseType()
		if elem.Kind == ast.TypeArray || elem.Kind == ast.TypeAssoc {
			p.errorAt(elem.Tok, "associative array elements must be primitive")
		}
		p.expect(token.Gt, "Expected '>' after associative array element type.")
		return &ast.TypeExpr{Tok: tok, Kind: ast.TypeAssoc, Name: elem.Name, Elem: elem.Kind}
	}
	p.errorAt(tok, "Expected a type.")
	return nil
}

// Statement Parsing
func (p *Parser) parseBlock() *ast.Node {
	tok := p.expect(token.LBrace, "Expected '{' to start a block.")
	var stmts []*ast.Node
	var tail *ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		if p.match(token.Semi) {
			continue
		}
		if tail != nil {
			stmts = append(stmts, ast.NewExprStmt(tail.Tok, tail))
			tail = nil
		}
		if p.check(token.Let) {
			stmts = append(stmts, p.parseLet())
			continue
		}
		expr := p.parseExpr()
		switch {
		case p.match(token.Semi):
			stmts = append(stmts, ast.NewExprStmt(expr.Tok, expr))
		case p.check(token.RBrace), ast.IsBlockLike(expr):
			// A block-like expression followed by more statements is demoted
			// to a statement on the next iteration.
			tail = expr
		default:
			p.errorAt(p.current, "Expected ';' after expression statement.")
		}
	}
	p.expect(token.RBrace, "Expected '}' after block.")
	return ast.NewBlock(tok, stmts, tail)
}

func (p *Parser) parseLet() *ast.Node {
	p.advance()
	name := p.expect(token.Ident, "Expected variable name after 'let'.")
	var typ *ast.TypeExpr
	if p.match(token.Colon) {
		typ = p.parseType()
	}
	var init *ast.Node
	if p.match(token.Eq) {
		init = p.parseExpr()
	}
	p.expect(token.Semi, "Expected ';' after let statement.")
	return ast.NewLet(name, name.Value, typ, init)
}

// Top-Level Parsing
func (p *Parser) parseFuncDecl(attrs []token.Token) *ast.Node {
	p.expect(token.Fn, "Expected 'fn' to start a function.")
	name := p.expect(token.Ident, "Expected function name after 'fn'.")
	p.expect(token.LParen, "Expected '(' after function name.")

	var params []ast.Param
	if !p.check(token.RParen) {
		for {
			ptok := p.current
			if p.check(token.Ident) && p.peek().Type == token.Colon {
				p.advance()
				p.advance()
				params = append(params, ast.Param{Tok: ptok, Name: ptok.Value, Type: p.parseType()})
			} else {
				params = append(params, ast.Param{Tok: ptok, Type: p.parseType()})
			}
			if !p.match(token.Comma) {
				break
			}
		}
	}
	p.expect(token.RParen, "Expected ')' after parameters.")

	var ret *ast.TypeExpr
	if p.match(token.Arrow) {
		ret = p.parseType()
	}

	if p.match(token.Semi) {
		return ast.NewFuncDecl(name, attrs, name.Value, params, ret, nil)
	}
	return ast.NewFuncDecl(name, attrs, name.Value, params, ret, p.parseBlock())
}

// Parse parses a whole file; the error is a *diag.SyntaxError.
func (p *Parser) Parse() (file *ast.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			file, err = nil, b.err
		}
	}()

	var items []*ast.Node
	tok := p.current
	for !p.check(token.EOF) {
		if p.match(token.Semi) {
			continue
		}
		var attrs []token.Token
		for p.match(token.Attribute) {
			attrs = append(attrs, p.previous)
		}
		items = append(items, p.parseFuncDecl(attrs))
	}
	return ast.NewFile(tok, items), nil
}

// ParseFile is a convenience wrapper over NewParser(...).Parse().
func ParseFile(src diag.SourceFile, tokens []token.Token) (*ast.Node, error) {
	return NewParser(src, tokens).Parse()
}
