// Package ast defines the syntax tree the parser hands to semantic analysis.
package ast

import (
	"github.com/minghu6/bas/pkg/token"
)

// NodeType defines the kind of a node in the AST
type NodeType int

const (
	// Expressions
	Number NodeType = iota
	FloatNumber
	String
	Bool
	Ident
	Assign
	BinaryOp
	UnaryOp
	PostfixOp
	FuncCall
	TypeCast
	If
	Loop
	While
	Block
	Return
	Break
	Continue
	Command

	// Statements
	Let
	ExprStmt

	// Items
	FuncDecl
	File
)

// Node represents a node in the Abstract Syntax Tree
type Node struct {
	Type NodeType
	Tok  token.Token
	Data any
}

type TypeExprKind int

const (
	TypeNamed TypeExprKind = iota
	TypeArray
	TypeStruct
	TypeAssoc
)

// TypeExpr is a type as written in source; semantic analysis resolves it.
type TypeExpr struct {
	Tok  token.Token
	Kind TypeExprKind
	Name string       // element or struct name
	Dims int
	Elem TypeExprKind // element kind of an array or associative array
}

// --- Node Data Structs ---
type NumberNode struct{ Value int64 }
type FloatNode struct{ Value float64 }
type StringNode struct{ Value string }
type BoolNode struct{ Value bool }
type IdentNode struct{ Name string }
type AssignNode struct{ Op token.Type; Lhs, Rhs *Node }
type BinaryOpNode struct{ Op token.Type; Left, Right *Node }
type UnaryOpNode struct{ Op token.Type; Expr *Node }
type PostfixOpNode struct{ Op token.Type; Expr *Node }
type FuncCallNode struct {
	Tag  *token.Token // raw# and friends, nil when absent
	Name string
	Args []*Node
}
type TypeCastNode struct{ Expr *Node; Target *TypeExpr }
type IfArm struct{ Cond, Body *Node }
type IfNode struct {
	Arms []IfArm
	Else *Node // Block or nil
}
type LoopNode struct{ Body *Node }
type WhileNode struct{ Cond, Body *Node }
type BlockNode struct {
	Stmts []*Node
	Tail  *Node // trailing expression without ';', nil when absent
}
type ReturnNode struct{ Expr *Node }
type BreakNode struct{ Expr *Node }
type ContinueNode struct{}
type CommandNode struct{ Src string }
type LetNode struct {
	Name string
	Type *TypeExpr
	Init *Node
}
type ExprStmtNode struct{ Expr *Node }
type Param struct {
	Tok  token.Token
	Name string // empty for a bare type
	Type *TypeExpr
}
type FuncDeclNode struct {
	Attrs  []token.Token
	Name   string
	Params []Param
	Ret    *TypeExpr // nil means void
	Body   *Node     // nil for an external declaration
}
type FileNode struct{ Items []*Node }

// --- Node Constructors ---

func newNode(tok token.Token, nodeType NodeType, data any) *Node {
	return &Node{Type: nodeType, Tok: tok, Data: data}
}

func NewNumber(tok token.Token, value int64) *Node { return newNode(tok, Number, NumberNode{Value: value}) }
func NewFloat(tok token.Token, value float64) *Node {
	return newNode(tok, FloatNumber, FloatNode{Value: value})
}
func NewString(tok token.Token, value string) *Node { return newNode(tok, String, StringNode{Value: value}) }
func NewBool(tok token.Token, value bool) *Node     { return newNode(tok, Bool, BoolNode{Value: value}) }
func NewIdent(tok token.Token, name string) *Node   { return newNode(tok, Ident, IdentNode{Name: name}) }
func NewAssign(tok token.Token, op token.Type, lhs, rhs *Node) *Node {
	return newNode(tok, Assign, AssignNode{Op: op, Lhs: lhs, Rhs: rhs})
}
func NewBinaryOp(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, BinaryOp, BinaryOpNode{Op: op, Left: left, Right: right})
}
func NewUnaryOp(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, UnaryOp, UnaryOpNode{Op: op, Expr: expr})
}
func NewPostfixOp(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, PostfixOp, PostfixOpNode{Op: op, Expr: expr})
}
func NewFuncCall(tok token.Token, tag *token.Token, name string, args []*Node) *Node {
	return newNode(tok, FuncCall, FuncCallNode{Tag: tag, Name: name, Args: args})
}
func NewTypeCast(tok token.Token, expr *Node, target *TypeExpr) *Node {
	return newNode(tok, TypeCast, TypeCastNode{Expr: expr, Target: target})
}
func NewIf(tok token.Token, arms []IfArm, elseBody *Node) *Node {
	return newNode(tok, If, IfNode{Arms: arms, Else: elseBody})
}
func NewLoop(tok token.Token, body *Node) *Node { return newNode(tok, Loop, LoopNode{Body: body}) }
func NewWhile(tok token.Token, cond, body *Node) *Node {
	return newNode(tok, While, WhileNode{Cond: cond, Body: body})
}
func NewBlock(tok token.Token, stmts []*Node, tail *Node) *Node {
	return newNode(tok, Block, BlockNode{Stmts: stmts, Tail: tail})
}
func NewReturn(tok token.Token, expr *Node) *Node { return newNode(tok, Return, ReturnNode{Expr: expr}) }
func NewBreak(tok token.Token, expr *Node) *Node  { return newNode(tok, Break, BreakNode{Expr: expr}) }
func NewContinue(tok token.Token) *Node           { return newNode(tok, Continue, ContinueNode{}) }
func NewCommand(tok token.Token, src string) *Node {
	return newNode(tok, Command, CommandNode{Src: src})
}
func NewLet(tok token.Token, name string, typ *TypeExpr, init *Node) *Node {
	return newNode(tok, Let, LetNode{Name: name, Type: typ, Init: init})
}
func NewExprStmt(tok token.Token, expr *Node) *Node {
	return newNode(tok, ExprStmt, ExprStmtNode{Expr: expr})
}
func NewFuncDecl(tok token.Token, attrs []token.Token, name string, params []Param, ret *TypeExpr, body *Node) *Node {
	return newNode(tok, FuncDecl, FuncDeclNode{Attrs: attrs, Name: name, Params: params, Ret: ret, Body: body})
}
func NewFile(tok token.Token, items []*Node) *Node { return newNode(tok, File, FileNode{Items: items}) }

// IsBlockLike reports whether n may stand as a statement without a
// trailing ';'.
func IsBlockLike(n *Node) bool {
	switch n.Type {
	case If, Loop, While, Block:
		return true
	}
	return false
}

// FoldConstants evaluates integer-literal arithmetic at parse time. Division
// by zero is left for the backend.
func FoldConstants(node *Node) *Node {
	if node == nil {
		return nil
	}

	switch node.Type {
	case BinaryOp:
		d := node.Data.(BinaryOpNode)
		if d.Left.Type != Number || d.Right.Type != Number {
			return node
		}
		l, r := d.Left.Data.(NumberNode).Value, d.Right.Data.(NumberNode).Value
		var res int64
		switch d.Op {
		case token.Plus: res = l + r
		case token.Minus: res = l - r
		case token.Star: res = l * r
		case token.And: res = l & r
		case token.Or: res = l | r
		case token.Xor: res = l ^ r
		case token.Slash:
			if r == 0 { return node }
			res = l / r
		case token.Rem:
			if r == 0 { return node }
			res = l % r
		default:
			return node
		}
		return NewNumber(d.Left.Tok, res)
	case UnaryOp:
		d := node.Data.(UnaryOpNode)
		switch {
		case d.Op == token.Minus && d.Expr.Type == Number:
			return NewNumber(node.Tok, -d.Expr.Data.(NumberNode).Value)
		case d.Op == token.Minus && d.Expr.Type == FloatNumber:
			return NewFloat(node.Tok, -d.Expr.Data.(FloatNode).Value)
		case d.Op == token.Plus && (d.Expr.Type == Number || d.Expr.Type == FloatNumber):
			return d.Expr
		}
	}
	return node
}
