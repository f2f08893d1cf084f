package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/minghu6/bas/pkg/ir"
	"github.com/minghu6/bas/pkg/mir"
	"github.com/minghu6/bas/pkg/types"
)

// qbeBackend records into an ir.Program and prints it as QBE IL.
type qbeBackend struct {
	out   *strings.Builder
	prog  *ir.Program
	strs  map[string]*ir.Global
	fn    *ir.Func
	block *ir.BasicBlock
	temps int
}

func NewQBEBackend(wordSize int) Backend {
	return &qbeBackend{
		prog: &ir.Program{WordSize: wordSize},
		strs: make(map[string]*ir.Global),
	}
}

var symReplacer = strings.NewReplacer("@", ".", "#", ".", "{", "S", "}", "", "[", "A", "]", "", "<", "M", ">", "")

// qbeSymbol maps a link symbol onto QBE's identifier alphabet.
func qbeSymbol(sym string) string { return symReplacer.Replace(sym) }

func (b *qbeBackend) regType(t types.AType) ir.Type { return ir.GetType(t, b.prog.WordSize) }

func (b *qbeBackend) temp() *ir.Temporary {
	t := &ir.Temporary{Name: fmt.Sprintf("t%d", b.temps), ID: b.temps}
	b.temps++
	return t
}

func (b *qbeBackend) emit(instr *ir.Instruction) *ir.Instruction {
	b.block.Instructions = append(b.block.Instructions, instr)
	return instr
}

func (b *qbeBackend) op(op ir.Op, typ ir.Type, args ...ir.Value) *ir.Temporary {
	res := b.temp()
	b.emit(&ir.Instruction{Op: op, Typ: typ, Result: res, Args: args})
	return res
}

// Externals are resolved by the linker.
func (b *qbeBackend) DeclareFunc(fn *mir.FnDecl) {}

func (b *qbeBackend) BeginFunc(fn *mir.FnDecl) Block {
	f := &ir.Func{Name: qbeSymbol(fn.Symbol), ReturnType: b.regType(fn.Ret), HasVarargs: fn.IsVarArg()}
	for i, p := range fn.Params {
		f.Params = append(f.Params, &ir.Param{
			Name: p.Name,
			Typ:  b.regType(p.Type),
			Val:  &ir.Temporary{Name: fmt.Sprintf("p%d", i), ID: -1},
		})
	}
	b.prog.Funcs = append(b.prog.Funcs, f)
	b.fn, b.temps = f, 0
	b.block = b.newBlock("start")
	return b.block
}

func (b *qbeBackend) EndFunc() {
	for _, blk := range b.fn.Blocks {
		if !blk.Terminated() {
			blk.Instructions = append(blk.Instructions, &ir.Instruction{Op: ir.OpHlt})
		}
	}
	b.fn, b.block = nil, nil
}

func (b *qbeBackend) Param(i int) Value { return b.fn.Params[i].Val }

func (b *qbeBackend) newBlock(name string) *ir.BasicBlock {
	blk := &ir.BasicBlock{Label: &ir.Label{Name: name}}
	b.fn.Blocks = append(b.fn.Blocks, blk)
	return blk
}

func (b *qbeBackend) NewBlock() Block     { return b.newBlock(fmt.Sprintf("b%d", len(b.fn.Blocks))) }
func (b *qbeBackend) SetBlock(blk Block)  { b.block = blk.(*ir.BasicBlock) }
func (b *qbeBackend) CurrentBlock() Block { return b.block }
func (b *qbeBackend) Terminated() bool    { return b.block.Terminated() }

func (b *qbeBackend) IntConst(ty types.AType, v int64) Value { return &ir.Const{Value: v} }

func (b *qbeBackend) FloatConst(ty types.AType, v float64) Value {
	return &ir.FloatConst{Value: v, Typ: b.regType(ty)}
}

func (b *qbeBackend) StrConst(s string) Value {
	g, ok := b.strs[s]
	if !ok {
		g = &ir.Global{Name: fmt.Sprintf("str.%d", len(b.prog.Strings))}
		b.prog.Strings = append(b.prog.Strings, &ir.Data{Name: g.Name, Bytes: s})
		b.strs[s] = g
	}
	return g
}

func (b *qbeBackend) Alloca(ty types.AType) Value {
	size := ir.SizeOfType(ir.MemType(ty, b.prog.WordSize), b.prog.WordSize)
	align := 4
	if size > 4 {
		align = 8
	}
	res := b.temp()
	b.emit(&ir.Instruction{Op: ir.OpAlloc, Typ: b.prog.WordType(), Result: res, Args: []ir.Value{&ir.Const{Value: size}}, Align: align})
	return res
}

func (b *qbeBackend) Load(ty types.AType, ptr Value) Value {
	res := b.temp()
	b.emit(&ir.Instruction{Op: ir.OpLoad, Typ: ir.MemType(ty, b.prog.WordSize), Result: res, Args: []ir.Value{ptr.(ir.Value)}})
	return res
}

func (b *qbeBackend) Store(ty types.AType, v, ptr Value) {
	b.emit(&ir.Instruction{Op: ir.OpStore, Typ: ir.MemType(ty, b.prog.WordSize), Args: []ir.Value{v.(ir.Value), ptr.(ir.Value)}})
}

var (
	intCmps = map[types.Op][2]ir.Op{ // signed, unsigned
		types.OpEq: {ir.OpCEq, ir.OpCEq}, types.OpNeq: {ir.OpCNe, ir.OpCNe},
		types.OpLt: {ir.OpCSlt, ir.OpCUlt}, types.OpLe: {ir.OpCSle, ir.OpCUle},
		types.OpGt: {ir.OpCSgt, ir.OpCUgt}, types.OpGe: {ir.OpCSge, ir.OpCUge},
	}
	floatCmps = map[types.Op]ir.Op{
		types.OpEq: ir.OpCEq, types.OpNeq: ir.OpCNe,
		types.OpLt: ir.OpCLt, types.OpLe: ir.OpCLe,
		types.OpGt: ir.OpCGt, types.OpGe: ir.OpCGe,
	}
	arithOps = map[types.Op][2]ir.Op{ // signed, unsigned
		types.OpAdd: {ir.OpAdd, ir.OpAdd}, types.OpSub: {ir.OpSub, ir.OpSub},
		types.OpMul: {ir.OpMul, ir.OpMul}, types.OpDiv: {ir.OpDiv, ir.OpUDiv},
		types.OpRem: {ir.OpRem, ir.OpURem}, types.OpShl: {ir.OpShl, ir.OpShl},
		types.OpShr: {ir.OpSar, ir.OpShr}, types.OpBitAnd: {ir.OpAnd, ir.OpAnd},
		types.OpBitOr: {ir.OpOr, ir.OpOr}, types.OpBitXor: {ir.OpXor, ir.OpXor},
	}
)

func (b *qbeBackend) BinOp(op types.Op, ty types.AType, vx, vy Value) Value {
	x, y := vx.(ir.Value), vy.(ir.Value)
	rt := b.regType(ty)

	if op.IsComparison() {
		var cmp ir.Op
		switch {
		case ty.IsFloat():
			cmp = floatCmps[op]
		case ty.IsSigned():
			cmp = intCmps[op][0]
		default:
			cmp = intCmps[op][1]
		}
		res := b.temp()
		b.emit(&ir.Instruction{Op: cmp, Typ: ir.TypeW, OperandType: rt, Result: res, Args: []ir.Value{x, y}})
		return res
	}

	if ty.IsFloat() {
		if op == types.OpRem { return b.fmod(rt, x, y) }
		return b.op(arithOps[op][0], rt, x, y)
	}
	pair, ok := arithOps[op]
	if !ok {
		panic(fmt.Sprintf("codegen: operator %s on %s", op, ty))
	}
	code := pair[0]
	if !ty.IsSigned() {
		code = pair[1]
	}
	return b.normalize(b.op(code, rt, x, y), ty)
}

// fmod stands in for the float remainder QBE lacks.
func (b *qbeBackend) fmod(rt ir.Type, x, y ir.Value) Value {
	name := "fmod"
	if rt == ir.TypeS {
		name = "fmodf"
	}
	res := b.temp()
	b.emit(&ir.Instruction{
		Op: ir.OpCall, Typ: rt, Result: res,
		Args:      []ir.Value{&ir.Global{Name: name}, x, y},
		ArgTypes:  []ir.Type{rt, rt},
		FixedArgs: -1,
	})
	return res
}

// normalize re-extends a sub-word integer held in a word register.
func (b *qbeBackend) normalize(v ir.Value, ty types.AType) ir.Value {
	switch ir.MemType(ty, b.prog.WordSize) {
	case ir.TypeSB: return b.op(ir.OpExtSB, ir.TypeW, v)
	case ir.TypeUB: return b.op(ir.OpExtUB, ir.TypeW, v)
	case ir.TypeSH: return b.op(ir.OpExtSH, ir.TypeW, v)
	case ir.TypeUH: return b.op(ir.OpExtUH, ir.TypeW, v)
	}
	return v
}

func (b *qbeBackend) Cast(v Value, from, to types.AType) Value {
	x := v.(ir.Value)
	rf, rt := b.regType(from), b.regType(to)
	fs, ts := from.Size(), to.Size()
	switch {
	case from.IsInt() && to.IsInt():
		switch {
		case rf == ir.TypeW && rt == ir.TypeL && from.IsSigned():
			return b.op(ir.OpExtSW, rt, x)
		case rf == ir.TypeW && rt == ir.TypeL:
			return b.op(ir.OpExtUW, rt, x)
		case rf == ir.TypeL && rt == ir.TypeW:
			x = b.op(ir.OpCopy, rt, x)
		}
		if ts < 4 && (ts < fs || from.IsSigned() != to.IsSigned()) { return b.normalize(x, to) }
		return x
	case from.IsInt() && to.IsFloat():
		code := ir.OpSWToF
		switch {
		case fs == 8 && from.IsSigned(): code = ir.OpSLToF
		case fs == 8: code = ir.OpULToF
		case !from.IsSigned(): code = ir.OpUWToF
		}
		return b.op(code, rt, x)
	case from.IsFloat() && to.IsInt():
		code := ir.OpFToSI
		if !to.IsSigned() {
			code = ir.OpFToUI
		}
		res := b.temp()
		b.emit(&ir.Instruction{Op: code, Typ: rt, OperandType: rf, Result: res, Args: []ir.Value{x}})
		if ts < 4 { return b.normalize(res, to) }
		return res
	case from.IsFloat() && to.IsFloat():
		switch {
		case fs < ts: return b.op(ir.OpExtS, rt, x)
		case fs > ts: return b.op(ir.OpTruncD, rt, x)
		}
	}
	return x
}

func (b *qbeBackend) Call(fn *mir.FnDecl, args []Value, argTys []types.AType) Value {
	instr := &ir.Instruction{Op: ir.OpCall, Typ: b.regType(fn.Ret), FixedArgs: -1}
	if fn.IsVarArg() {
		instr.FixedArgs = len(fn.Params)
	}
	instr.Args = append(instr.Args, &ir.Global{Name: qbeSymbol(fn.Symbol)})
	for i, a := range args {
		instr.Args = append(instr.Args, a.(ir.Value))
		instr.ArgTypes = append(instr.ArgTypes, b.regType(argTys[i]))
	}
	if instr.Typ != ir.TypeNone {
		instr.Result = b.temp()
	}
	b.emit(instr)
	if instr.Result == nil { return nil }
	return instr.Result
}

func (b *qbeBackend) Br(target Block) {
	b.emit(&ir.Instruction{Op: ir.OpJmp, Args: []ir.Value{target.(*ir.BasicBlock).Label}})
}

func (b *qbeBackend) CondBr(cond Value, then, els Block) {
	b.emit(&ir.Instruction{Op: ir.OpJnz, Args: []ir.Value{
		cond.(ir.Value), then.(*ir.BasicBlock).Label, els.(*ir.BasicBlock).Label,
	}})
}

func (b *qbeBackend) Phi(ty types.AType, incoming []Incoming) Value {
	var args []ir.Value
	for _, in := range incoming {
		args = append(args, in.Block.(*ir.BasicBlock).Label, in.Value.(ir.Value))
	}
	return b.op(ir.OpPhi, b.regType(ty), args...)
}

func (b *qbeBackend) Ret(ty types.AType, v Value) {
	instr := &ir.Instruction{Op: ir.OpRet}
	if v != nil && !ty.IsUnit() {
		instr.Args = []ir.Value{v.(ir.Value)}
	}
	b.emit(instr)
}

func (b *qbeBackend) Unreachable() { b.emit(&ir.Instruction{Op: ir.OpHlt}) }

// IR renders the recorded program as QBE IL.
func (b *qbeBackend) IR() string {
	var sb strings.Builder
	b.out = &sb
	b.gen()
	return sb.String()
}

func (b *qbeBackend) gen() {
	for _, d := range b.prog.Strings {
		b.genData(d)
	}
	for _, fn := range b.prog.Funcs {
		b.genFunc(fn)
	}
}

// genData writes printable runs quoted and every other byte numerically.
func (b *qbeBackend) genData(d *ir.Data) {
	fmt.Fprintf(b.out, "data $%s = { ", d.Name)
	var run []byte
	flush := func() {
		if len(run) == 0 { return }
		fmt.Fprintf(b.out, "b \"%s\", ", run)
		run = run[:0]
	}
	for i := 0; i < len(d.Bytes); i++ {
		c := d.Bytes[i]
		if c >= ' ' && c <= '~' && c != '"' && c != '\\' {
			run = append(run, c)
			continue
		}
		flush()
		fmt.Fprintf(b.out, "b %d, ", c)
	}
	flush()
	b.out.WriteString("b 0 }\n")
}

func (b *qbeBackend) genFunc(fn *ir.Func) {
	retTypeStr := b.formatType(fn.ReturnType)
	if retTypeStr != "" {
		retTypeStr = " " + retTypeStr
	}

	fmt.Fprintf(b.out, "\nexport function%s $%s(", retTypeStr, fn.Name)
	for i, p := range fn.Params {
		fmt.Fprintf(b.out, "%s %s", b.formatType(p.Typ), b.formatValue(p.Val))
		if i < len(fn.Params)-1 {
			b.out.WriteString(", ")
		}
	}
	if fn.HasVarargs {
		if len(fn.Params) > 0 {
			b.out.WriteString(", ")
		}
		b.out.WriteString("...")
	}
	b.out.WriteString(") {\n")

	for _, block := range fn.Blocks {
		b.genBlock(block)
	}
	b.out.WriteString("}\n")
}

func (b *qbeBackend) genBlock(block *ir.BasicBlock) {
	fmt.Fprintf(b.out, "@%s\n", block.Label.Name)
	for _, instr := range block.Instructions {
		b.genInstr(instr)
	}
}

func (b *qbeBackend) genInstr(instr *ir.Instruction) {
	b.out.WriteString("\t")
	if instr.Op == ir.OpCall {
		b.genCall(instr)
		return
	}

	if instr.Result != nil {
		resultType := instr.Typ
		if instr.Op == ir.OpLoad {
			resultType = ir.GetRegType(instr.Typ)
		}
		fmt.Fprintf(b.out, "%s =%s ", b.formatValue(instr.Result), b.formatType(resultType))
	}

	b.out.WriteString(b.formatOp(instr))

	if instr.Op == ir.OpPhi {
		for i := 0; i < len(instr.Args); i += 2 {
			fmt.Fprintf(b.out, " %s %s", b.formatValue(instr.Args[i]), b.formatValue(instr.Args[i+1]))
			if i+2 < len(instr.Args) {
				b.out.WriteString(",")
			}
		}
	} else {
		for i, arg := range instr.Args {
			b.out.WriteString(" ")
			b.out.WriteString(b.formatValue(arg))
			if i < len(instr.Args)-1 {
				b.out.WriteString(",")
			}
		}
	}
	b.out.WriteString("\n")
}

func (b *qbeBackend) genCall(instr *ir.Instruction) {
	if instr.Result != nil {
		fmt.Fprintf(b.out, "%s =%s ", b.formatValue(instr.Result), b.formatType(instr.Typ))
	}
	fmt.Fprintf(b.out, "call %s(", b.formatValue(instr.Args[0]))

	args := instr.Args[1:]
	for i, arg := range args {
		if i == instr.FixedArgs {
			b.out.WriteString("..., ")
		}
		fmt.Fprintf(b.out, "%s %s", b.formatType(instr.ArgTypes[i]), b.formatValue(arg))
		if i < len(args)-1 {
			b.out.WriteString(", ")
		}
	}
	if instr.FixedArgs == len(args) {
		b.out.WriteString(", ...")
	}
	b.out.WriteString(")\n")
}

func (b *qbeBackend) formatValue(v ir.Value) string {
	if v == nil { return "" }
	switch val := v.(type) {
	case *ir.Const: return strconv.FormatInt(val.Value, 10)
	case *ir.FloatConst: return fmt.Sprintf("%s_%s", b.formatType(val.Typ), strconv.FormatFloat(val.Value, 'g', -1, 64))
	case *ir.Global: return "$" + val.Name
	case *ir.Temporary: return "%" + val.Name
	case *ir.Label: return "@" + val.Name
	default: return ""
	}
}

func (b *qbeBackend) formatType(t ir.Type) string {
	switch t {
	case ir.TypeB, ir.TypeSB, ir.TypeUB: return "b"
	case ir.TypeH, ir.TypeSH, ir.TypeUH: return "h"
	case ir.TypeW: return "w"
	case ir.TypeL: return "l"
	case ir.TypeS: return "s"
	case ir.TypeD: return "d"
	case ir.TypePtr: return b.formatType(b.prog.WordType())
	default: return ""
	}
}

func (b *qbeBackend) formatOp(instr *ir.Instruction) string {
	typ := instr.Typ
	argTypeStr := b.formatType(instr.OperandType)

	switch instr.Op {
	case ir.OpAlloc:
		if instr.Align <= 4 { return "alloc4" }
		if instr.Align <= 8 { return "alloc8" }
		return "alloc16"
	case ir.OpLoad:
		switch typ {
		case ir.TypeSB: return "loadsb"
		case ir.TypeUB: return "loadub"
		case ir.TypeSH: return "loadsh"
		case ir.TypeUH: return "loaduh"
		default: return "load" + b.formatType(typ)
		}
	case ir.OpStore: return "store" + b.formatType(typ)
	case ir.OpAdd: return "add"
	case ir.OpSub: return "sub"
	case ir.OpMul: return "mul"
	case ir.OpDiv: return "div"
	case ir.OpUDiv: return "udiv"
	case ir.OpRem: return "rem"
	case ir.OpURem: return "urem"
	case ir.OpAnd: return "and"
	case ir.OpOr: return "or"
	case ir.OpXor: return "xor"
	case ir.OpShl: return "shl"
	case ir.OpSar: return "sar"
	case ir.OpShr: return "shr"
	case ir.OpCEq: return "ceq" + argTypeStr
	case ir.OpCNe: return "cne" + argTypeStr
	case ir.OpCSlt: return "cslt" + argTypeStr
	case ir.OpCSle: return "csle" + argTypeStr
	case ir.OpCSgt: return "csgt" + argTypeStr
	case ir.OpCSge: return "csge" + argTypeStr
	case ir.OpCUlt: return "cult" + argTypeStr
	case ir.OpCUle: return "cule" + argTypeStr
	case ir.OpCUgt: return "cugt" + argTypeStr
	case ir.OpCUge: return "cuge" + argTypeStr
	case ir.OpCLt: return "clt" + argTypeStr
	case ir.OpCLe: return "cle" + argTypeStr
	case ir.OpCGt: return "cgt" + argTypeStr
	case ir.OpCGe: return "cge" + argTypeStr
	case ir.OpExtSB: return "extsb"
	case ir.OpExtUB: return "extub"
	case ir.OpExtSH: return "extsh"
	case ir.OpExtUH: return "extuh"
	case ir.OpExtSW: return "extsw"
	case ir.OpExtUW: return "extuw"
	case ir.OpExtS: return "exts"
	case ir.OpTruncD: return "truncd"
	case ir.OpSWToF: return "swtof"
	case ir.OpUWToF: return "uwtof"
	case ir.OpSLToF: return "sltof"
	case ir.OpULToF: return "ultof"
	case ir.OpFToSI: return argTypeStr + "tosi"
	case ir.OpFToUI: return argTypeStr + "toui"
	case ir.OpCopy: return "copy"
	case ir.OpJmp: return "jmp"
	case ir.OpJnz: return "jnz"
	case ir.OpRet: return "ret"
	case ir.OpHlt: return "hlt"
	case ir.OpPhi: return "phi"
	default: return "unknown_op"
	}
}
