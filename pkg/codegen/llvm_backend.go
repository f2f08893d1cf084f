package codegen

import (
	"bytes"
	"fmt"

	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	lltypes "github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"github.com/minghu6/bas/pkg/config"
	"github.com/minghu6/bas/pkg/mir"
	"github.com/minghu6/bas/pkg/types"
)

type llvmBackend struct {
	mod   *ir.Module
	funcs map[string]*ir.Func // by link symbol
	strs  map[string]*ir.Global
	fn    *ir.Func
	block *ir.Block
}

func NewLLVMBackend() Backend {
	return &llvmBackend{
		mod:   ir.NewModule(),
		funcs: make(map[string]*ir.Func),
		strs:  make(map[string]*ir.Global),
	}
}

func (b *llvmBackend) IR() string { return b.mod.String() }

func (b *llvmBackend) Generate(cfg *config.Config) (*bytes.Buffer, error) {
	return bytes.NewBufferString(b.mod.String()), nil
}

func convType(t types.AType) lltypes.Type {
	switch {
	case t.IsUnit():
		return lltypes.Void
	case t.IsInt():
		return intType(t)
	case t.IsFloat():
		if t.Size() == 4 { return lltypes.Float }
		return lltypes.Double
	}
	// strings, vectors, associative arrays and opaque structs are runtime handles
	return lltypes.I8Ptr
}

func intType(t types.AType) *lltypes.IntType {
	switch t.Size() {
	case 1: return lltypes.I8
	case 2: return lltypes.I16
	case 4: return lltypes.I32
	}
	return lltypes.I64
}

func (b *llvmBackend) DeclareFunc(fn *mir.FnDecl) {
	if _, ok := b.funcs[fn.Symbol]; ok { return }
	params := make([]*ir.Param, len(fn.Params))
	for i, p := range fn.Params {
		params[i] = ir.NewParam(p.Name, convType(p.Type))
	}
	f := b.mod.NewFunc(fn.Symbol, convType(fn.Ret), params...)
	f.Sig.Variadic = fn.IsVarArg()
	b.funcs[fn.Symbol] = f
}

func (b *llvmBackend) BeginFunc(fn *mir.FnDecl) Block {
	b.fn = b.funcs[fn.Symbol]
	b.block = b.fn.NewBlock("entry")
	return b.block
}

func (b *llvmBackend) EndFunc() {
	for _, blk := range b.fn.Blocks {
		if blk.Term == nil {
			blk.NewUnreachable()
		}
	}
	b.fn, b.block = nil, nil
}

func (b *llvmBackend) Param(i int) Value { return b.fn.Params[i] }

func (b *llvmBackend) NewBlock() Block     { return b.fn.NewBlock("") }
func (b *llvmBackend) SetBlock(blk Block)  { b.block = blk.(*ir.Block) }
func (b *llvmBackend) CurrentBlock() Block { return b.block }
func (b *llvmBackend) Terminated() bool    { return b.block.Term != nil }

func (b *llvmBackend) IntConst(ty types.AType, v int64) Value { return constant.NewInt(intType(ty), v) }

func (b *llvmBackend) FloatConst(ty types.AType, v float64) Value {
	return constant.NewFloat(convType(ty).(*lltypes.FloatType), v)
}

func (b *llvmBackend) StrConst(s string) Value {
	g, ok := b.strs[s]
	if !ok {
		g = b.mod.NewGlobalDef(fmt.Sprintf(".str.%d", len(b.strs)), constant.NewCharArrayFromString(s+"\x00"))
		g.Immutable = true
		g.Linkage = enum.LinkagePrivate
		b.strs[s] = g
	}
	return b.block.NewBitCast(g, lltypes.I8Ptr)
}

func (b *llvmBackend) Alloca(ty types.AType) Value { return b.block.NewAlloca(convType(ty)) }

func (b *llvmBackend) Load(ty types.AType, ptr Value) Value {
	return b.block.NewLoad(convType(ty), ptr.(value.Value))
}

func (b *llvmBackend) Store(ty types.AType, v, ptr Value) {
	b.block.NewStore(v.(value.Value), ptr.(value.Value))
}

func (b *llvmBackend) BinOp(op types.Op, ty types.AType, vx, vy Value) Value {
	x, y := vx.(value.Value), vy.(value.Value)
	if op.IsComparison() {
		// bools are bytes everywhere but in branch conditions
		return b.block.NewZExt(b.compare(op, ty, x, y), lltypes.I8)
	}

	if ty.IsFloat() {
		switch op {
		case types.OpAdd: return b.block.NewFAdd(x, y)
		case types.OpSub: return b.block.NewFSub(x, y)
		case types.OpMul: return b.block.NewFMul(x, y)
		case types.OpDiv: return b.block.NewFDiv(x, y)
		case types.OpRem: return b.block.NewFRem(x, y)
		}
		panic(fmt.Sprintf("codegen: operator %s on %s", op, ty))
	}

	signed := ty.IsSigned()
	switch op {
	case types.OpAdd: return b.block.NewAdd(x, y)
	case types.OpSub: return b.block.NewSub(x, y)
	case types.OpMul: return b.block.NewMul(x, y)
	case types.OpDiv:
		if signed { return b.block.NewSDiv(x, y) }
		return b.block.NewUDiv(x, y)
	case types.OpRem:
		if signed { return b.block.NewSRem(x, y) }
		return b.block.NewURem(x, y)
	case types.OpShl: return b.block.NewShl(x, y)
	case types.OpShr:
		if signed { return b.block.NewAShr(x, y) }
		return b.block.NewLShr(x, y)
	case types.OpBitAnd: return b.block.NewAnd(x, y)
	case types.OpBitOr: return b.block.NewOr(x, y)
	case types.OpBitXor: return b.block.NewXor(x, y)
	}
	panic(fmt.Sprintf("codegen: operator %s on %s", op, ty))
}

var (
	fpreds = map[types.Op]enum.FPred{
		types.OpEq: enum.FPredOEQ, types.OpNeq: enum.FPredUNE,
		types.OpLt: enum.FPredOLT, types.OpLe: enum.FPredOLE,
		types.OpGt: enum.FPredOGT, types.OpGe: enum.FPredOGE,
	}
	spreds = map[types.Op]enum.IPred{
		types.OpEq: enum.IPredEQ, types.OpNeq: enum.IPredNE,
		types.OpLt: enum.IPredSLT, types.OpLe: enum.IPredSLE,
		types.OpGt: enum.IPredSGT, types.OpGe: enum.IPredSGE,
	}
	upreds = map[types.Op]enum.IPred{
		types.OpEq: enum.IPredEQ, types.OpNeq: enum.IPredNE,
		types.OpLt: enum.IPredULT, types.OpLe: enum.IPredULE,
		types.OpGt: enum.IPredUGT, types.OpGe: enum.IPredUGE,
	}
)

func (b *llvmBackend) compare(op types.Op, ty types.AType, x, y value.Value) value.Value {
	switch {
	case ty.IsFloat():
		return b.block.NewFCmp(fpreds[op], x, y)
	case ty.IsSigned():
		return b.block.NewICmp(spreds[op], x, y)
	}
	return b.block.NewICmp(upreds[op], x, y)
}

func (b *llvmBackend) Cast(v Value, from, to types.AType) Value {
	x := v.(value.Value)
	dst := convType(to)
	fs, ts := from.Size(), to.Size()
	switch {
	case from.IsInt() && to.IsInt():
		switch {
		case fs < ts && from.IsSigned(): return b.block.NewSExt(x, dst)
		case fs < ts: return b.block.NewZExt(x, dst)
		case fs > ts: return b.block.NewTrunc(x, dst)
		}
	case from.IsInt() && to.IsFloat():
		if from.IsSigned() { return b.block.NewSIToFP(x, dst) }
		return b.block.NewUIToFP(x, dst)
	case from.IsFloat() && to.IsInt():
		if to.IsSigned() { return b.block.NewFPToSI(x, dst) }
		return b.block.NewFPToUI(x, dst)
	case from.IsFloat() && to.IsFloat():
		switch {
		case fs < ts: return b.block.NewFPExt(x, dst)
		case fs > ts: return b.block.NewFPTrunc(x, dst)
		}
	}
	return x
}

func (b *llvmBackend) Call(fn *mir.FnDecl, args []Value, argTys []types.AType) Value {
	vals := make([]value.Value, len(args))
	for i, a := range args {
		vals[i] = a.(value.Value)
	}
	return b.block.NewCall(b.funcs[fn.Symbol], vals...)
}

func (b *llvmBackend) Br(target Block) { b.block.NewBr(target.(*ir.Block)) }

func (b *llvmBackend) CondBr(cond Value, then, els Block) {
	c := b.block.NewICmp(enum.IPredNE, cond.(value.Value), constant.NewInt(lltypes.I8, 0))
	b.block.NewCondBr(c, then.(*ir.Block), els.(*ir.Block))
}

func (b *llvmBackend) Phi(ty types.AType, incoming []Incoming) Value {
	incs := make([]*ir.Incoming, len(incoming))
	for i, in := range incoming {
		incs[i] = ir.NewIncoming(in.Value.(value.Value), in.Block.(*ir.Block))
	}
	return b.block.NewPhi(incs...)
}

func (b *llvmBackend) Ret(ty types.AType, v Value) {
	if v == nil || ty.IsUnit() {
		b.block.NewRet(nil)
		return
	}
	b.block.NewRet(v.(value.Value))
}

func (b *llvmBackend) Unreachable() { b.block.NewUnreachable() }
