// Package ir is the QBE-level program the QBE emitter records into and the
// QBE printer renders.
package ir

import (
	"fmt"

	"github.com/minghu6/bas/pkg/types"
)

type Op int

const (
	OpAlloc Op = iota
	OpLoad
	OpStore
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpUDiv
	OpRem
	OpURem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpSar
	OpShr
	OpCEq
	OpCNe
	OpCSlt
	OpCSle
	OpCSgt
	OpCSge
	OpCUlt
	OpCUle
	OpCUgt
	OpCUge
	OpCLt // float comparisons
	OpCLe
	OpCGt
	OpCGe
	OpExtSB
	OpExtUB
	OpExtSH
	OpExtUH
	OpExtSW
	OpExtUW
	OpExtS
	OpTruncD
	OpSWToF
	OpUWToF
	OpSLToF
	OpULToF
	OpFToSI
	OpFToUI
	OpCopy
	OpJmp
	OpJnz
	OpRet
	OpHlt
	OpCall
	OpPhi
)

// IsTerminator reports whether op ends a basic block.
func (op Op) IsTerminator() bool { return op == OpJmp || op == OpJnz || op == OpRet || op == OpHlt }

type Type int

const (
	TypeNone Type = iota
	TypeB         // byte (8-bit, ambiguous signedness)
	TypeH         // half-word (16-bit, ambiguous signedness)
	TypeW         // word (32-bit)
	TypeL         // long (64-bit)
	TypeS         // single float (32-bit)
	TypeD         // double float (64-bit)
	TypePtr
	TypeSB // signed byte (8-bit)
	TypeUB // unsigned byte (8-bit)
	TypeSH // signed half-word (16-bit)
	TypeUH // unsigned half-word (16-bit)
)

type Value interface {
	isValue()
	String() string
}

type Const struct{ Value int64 }
type FloatConst struct{ Value float64; Typ Type }
type Global struct{ Name string }
type Temporary struct{ Name string; ID int }
type Label struct{ Name string }

func (c *Const) isValue()      {}
func (f *FloatConst) isValue() {}
func (g *Global) isValue()     {}
func (t *Temporary) isValue()  {}
func (l *Label) isValue()      {}

func (c *Const) String() string      { return fmt.Sprintf("%d", c.Value) }
func (f *FloatConst) String() string { return fmt.Sprintf("%g", f.Value) }
func (g *Global) String() string     { return g.Name }
func (t *Temporary) String() string  { return t.Name }
func (l *Label) String() string      { return l.Name }

type Func struct {
	Name       string
	Params     []*Param
	ReturnType Type
	HasVarargs bool
	Blocks     []*BasicBlock
}

type Param struct{ Name string; Typ Type; Val Value }

type BasicBlock struct{ Label *Label; Instructions []*Instruction }

// Terminated reports whether the block already ends in a jump or return.
func (b *BasicBlock) Terminated() bool {
	n := len(b.Instructions)
	return n > 0 && b.Instructions[n-1].Op.IsTerminator()
}

type Instruction struct {
	Op          Op
	Typ         Type
	OperandType Type
	Result      Value
	Args        []Value
	ArgTypes    []Type
	Align       int
	// FixedArgs is the number of arguments before the variadic marker of a
	// call, or -1 for a call of a fixed-arity function.
	FixedArgs int
}

// Data is a NUL-terminated string constant.
type Data struct {
	Name  string
	Bytes string
}

type Program struct {
	Strings  []*Data
	Funcs    []*Func
	WordSize int
}

// WordType is the integer type that holds a pointer on the target.
func (p *Program) WordType() Type { return typeFromSize(p.WordSize, false) }

// GetType returns the register class QBE uses for values of t. Sub-word
// integers live in words.
func GetType(t types.AType, wordSize int) Type {
	switch {
	case t.IsUnit(), t.IsPlaceholder():
		return TypeNone
	case t.IsFloat():
		return typeFromSize(t.Size(), true)
	case t.IsInt():
		if t.Size() == 8 { return TypeL }
		return TypeW
	}
	return typeFromSize(wordSize, false)
}

// MemType returns the memory type used to load and store values of t.
func MemType(t types.AType, wordSize int) Type {
	if !t.IsInt() { return GetType(t, wordSize) }
	switch t.Size() {
	case 1:
		if t.IsSigned() { return TypeSB }
		return TypeUB
	case 2:
		if t.IsSigned() { return TypeSH }
		return TypeUH
	}
	return GetType(t, wordSize)
}

// GetRegType returns the register class a value of memory type t is loaded into.
func GetRegType(t Type) Type {
	switch t {
	case TypeB, TypeSB, TypeUB, TypeH, TypeSH, TypeUH: return TypeW
	}
	return t
}

func typeFromSize(size int, isFloat bool) Type {
	if isFloat {
		switch size {
		case 4: return TypeS
		case 8: return TypeD
		default: return TypeD
		}
	}

	switch size {
	case 8: return TypeL
	case 4: return TypeW
	case 2: return TypeH
	case 1: return TypeB
	default: return TypeL
	}
}

func SizeOfType(t Type, wordSize int) int64 {
	switch t {
	case TypeB, TypeSB, TypeUB: return 1
	case TypeH, TypeSH, TypeUH: return 2
	case TypeW: return 4
	case TypeL: return 8
	case TypeS: return 4
	case TypeD: return 8
	case TypePtr: return int64(wordSize)
	default:
		return int64(wordSize)
	}
}
