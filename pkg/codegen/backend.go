package codegen

import (
	"bytes"
	"fmt"

	"github.com/minghu6/bas/pkg/config"
	"github.com/minghu6/bas/pkg/mir"
	"github.com/minghu6/bas/pkg/types"
)

// Value is an SSA value of the backend that produced it.
type Value any

// Block is a basic block of the backend that produced it.
type Block any

type Incoming struct {
	Value Value
	Block Block
}

// Emitter builds target code one instruction at a time. Instructions are
// appended to the current block.
type Emitter interface {
	// DeclareFunc makes fn callable. Definitions are declared before any body
	// is emitted; external functions are declared on first use.
	DeclareFunc(fn *mir.FnDecl)
	// BeginFunc starts the body of a declared definition and returns its entry block.
	BeginFunc(fn *mir.FnDecl) Block
	EndFunc()
	Param(i int) Value

	NewBlock() Block
	SetBlock(b Block)
	CurrentBlock() Block
	Terminated() bool

	IntConst(ty types.AType, v int64) Value
	FloatConst(ty types.AType, v float64) Value
	StrConst(s string) Value

	Alloca(ty types.AType) Value
	Load(ty types.AType, ptr Value) Value
	Store(ty types.AType, v, ptr Value)

	// BinOp applies op to operands of type ty. Comparisons yield a bool.
	BinOp(op types.Op, ty types.AType, x, y Value) Value
	Cast(v Value, from, to types.AType) Value
	Call(fn *mir.FnDecl, args []Value, argTys []types.AType) Value

	Br(target Block)
	// CondBr branches on a bool value.
	CondBr(cond Value, then, els Block)
	Phi(ty types.AType, incoming []Incoming) Value
	Ret(ty types.AType, v Value)
	Unreachable()
}

// Backend is an Emitter that can render what it emitted.
type Backend interface {
	Emitter
	// IR returns the backend's textual intermediate representation.
	IR() string
	// Generate returns the final backend output: LLVM IR for llvm, assembly
	// for qbe.
	Generate(cfg *config.Config) (*bytes.Buffer, error)
}

func NewBackend(cfg *config.Config) (Backend, error) {
	switch cfg.Backend {
	case config.BackendLLVM:
		return NewLLVMBackend(), nil
	case config.BackendQBE:
		return NewQBEBackend(cfg.WordSize), nil
	}
	return nil, fmt.Errorf("unsupported backend '%s'", cfg.Backend)
}

// Generate translates mod with the configured backend. When ir is set the
// backend's textual IR is returned instead of its final output.
func Generate(mod *mir.Module, cfg *config.Config, ir bool) (*bytes.Buffer, error) {
	b, err := NewBackend(cfg)
	if err != nil {
		return nil, err
	}
	Translate(mod, b)
	if ir { return bytes.NewBufferString(b.IR()), nil }
	return b.Generate(cfg)
}
