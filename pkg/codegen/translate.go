package codegen

import (
	"fmt"

	"github.com/minghu6/bas/pkg/mir"
	"github.com/minghu6/bas/pkg/types"
)

type typed struct {
	v  Value
	ty types.AType
}

// logicBlock mirrors one Scope while its function is being translated.
type logicBlock struct {
	parent *logicBlock
	vals   map[string]typed // implicit temporaries
}

func (lb *logicBlock) lookup(sym string) (typed, bool) {
	for b := lb; b != nil; b = b.parent {
		if v, ok := b.vals[sym]; ok { return v, true }
	}
	return typed{}, false
}

type loopFrame struct {
	head     Block
	exit     Block // allocated by the first break
	incoming []Incoming
}

type translator struct {
	mod *mir.Module
	em  Emitter

	declared map[*mir.FnDecl]bool

	// per function
	fn       *mir.FnDecl
	slots    map[mir.VarKey]Value
	lb       *logicBlock
	loops    []*loopFrame
	retBlock Block
	rets     []Incoming
}

// Translate lowers every function definition of mod through em. The module
// must have passed semantic analysis.
func Translate(mod *mir.Module, em Emitter) {
	t := &translator{mod: mod, em: em, declared: make(map[*mir.FnDecl]bool)}
	for _, fn := range mod.Defs {
		t.declare(fn)
	}
	for _, m := range mod.Root().Mirs {
		if d, ok := m.Val.(mir.DefFn); ok {
			t.function(mod.Def(d.Name))
		}
	}
}

func (t *translator) declare(fn *mir.FnDecl) {
	if t.declared[fn] { return }
	t.declared[fn] = true
	t.em.DeclareFunc(fn)
}

func (t *translator) function(fn *mir.FnDecl) {
	t.fn, t.slots, t.loops, t.retBlock, t.rets = fn, make(map[mir.VarKey]Value), nil, nil, nil
	t.em.BeginFunc(fn)

	// One slot per (name, tag), however often it is accessed.
	allocs := t.mod.Allocs[fn.Identity]
	for _, key := range allocs.Keys() {
		ty, _ := allocs.Type(key)
		t.slots[key] = t.em.Alloca(ty)
	}

	t.scope(fn.Scope, false)
	if !t.em.Terminated() {
		t.em.Unreachable()
	}

	if t.retBlock != nil {
		t.em.SetBlock(t.retBlock)
		switch len(t.rets) {
		case 0:
			t.em.Ret(types.Void, nil)
		case 1:
			t.em.Ret(fn.Ret, t.rets[0].Value)
		default:
			t.em.Ret(fn.Ret, t.em.Phi(fn.Ret, t.rets))
		}
	}
	t.em.EndFunc()
	t.fn, t.slots, t.lb = nil, nil, nil
}

// scope translates the instructions of a scope into the current block and
// returns its tail value when valued is set.
func (t *translator) scope(idx int, valued bool) Value {
	s := t.mod.Scopes[idx]
	lb := &logicBlock{parent: t.lb, vals: make(map[string]typed)}
	t.lb = lb
	defer func() { t.lb = lb.parent }()

	for _, m := range s.Mirs {
		// Anything after a terminator is dead but still needs a block.
		if t.em.Terminated() {
			t.em.SetBlock(t.em.NewBlock())
		}
		v := t.val(m.Type, m.Val)
		switch m.Kind {
		case mir.ValBind:
			lb.vals[m.Name] = typed{v, m.Type}
		case mir.VarAssign:
			t.em.Store(m.Type, v, t.slot(m.Name, m.Tag))
		}
	}

	if s.TailType.IsNever() {
		if !t.em.Terminated() {
			t.em.Unreachable()
		}
		return nil
	}
	if !valued || s.Tail == "" || s.TailType.IsUnit() { return nil }
	return t.sym(s.Tail).v
}

func (t *translator) slot(name string, tag int) Value {
	key := mir.VarKey{Name: name, Tag: tag}
	p, ok := t.slots[key]
	if !ok {
		panic(fmt.Sprintf("codegen: no stack slot for %s in %s", key, t.fn.Identity))
	}
	return p
}

func (t *translator) sym(name string) typed {
	v, ok := t.lb.lookup(name)
	if !ok {
		panic(fmt.Sprintf("codegen: temporary %s is not bound in %s", name, t.fn.Identity))
	}
	return v
}

func (t *translator) val(ty types.AType, val mir.Val) Value {
	switch v := val.(type) {
	case mir.IntConst:
		return t.em.IntConst(ty, int64(v.Value))
	case mir.FloatConst:
		return t.em.FloatConst(ty, v.Value)
	case mir.StrConst:
		return t.em.StrConst(v.Value)
	case mir.BoolConst:
		var n int64
		if v.Value {
			n = 1
		}
		return t.em.IntConst(types.Bool, n)
	case mir.Var:
		return t.em.Load(ty, t.slot(v.Name, v.Tag))
	case mir.Assign:
		x := t.sym(v.Value).v
		t.em.Store(ty, x, t.slot(v.Name, v.Tag))
		return x
	case mir.Alias:
		return t.sym(v.Sym).v
	case mir.FnParam:
		return t.em.Param(v.Index)
	case mir.FnCall:
		return t.call(v)
	case mir.BOp:
		return t.em.BinOp(v.Op, v.OperandType, t.sym(v.X).v, t.sym(v.Y).v)
	case mir.TypeCast:
		return t.em.Cast(t.sym(v.Src).v, v.From, v.To)
	case mir.IfBlock:
		return t.ifBlock(ty, v)
	case mir.InfiLoop:
		return t.loop(ty, v.Scope)
	case mir.BlockExpr:
		return t.scope(v.Scope, !ty.IsUnit())
	case mir.Break:
		t.brk(v)
		return nil
	case mir.Continue:
		t.em.Br(t.loops[len(t.loops)-1].head)
		return nil
	case mir.Return:
		t.ret(v)
		return nil
	}
	panic(fmt.Sprintf("codegen: unexpected value-expression %T in %s", val, t.fn.Identity))
}

func (t *translator) call(c mir.FnCall) Value {
	fn := t.mod.FindFunc(c.Callee)
	if fn == nil {
		panic(fmt.Sprintf("codegen: call to unknown function %s", c.Callee))
	}
	t.declare(fn)
	args := make([]Value, len(c.Args))
	tys := make([]types.AType, len(c.Args))
	for i, a := range c.Args {
		v := t.sym(a)
		args[i], tys[i] = v.v, v.ty
	}
	return t.em.Call(fn, args, tys)
}

// ifBlock pre-allocates a then and an else-or-next block per arm, plus a
// shared after block when an else arm exists. Without one, the last arm's
// else block doubles as the after block.
func (t *translator) ifBlock(ty types.AType, blk mir.IfBlock) Value {
	n := len(blk.Arms)
	thens, nexts := make([]Block, n), make([]Block, n)
	for i := range blk.Arms {
		thens[i], nexts[i] = t.em.NewBlock(), t.em.NewBlock()
	}
	after := nexts[n-1]
	if blk.Else >= 0 {
		after = t.em.NewBlock()
	}

	valued := !ty.IsUnit() && !ty.IsPlaceholder()
	var incoming []Incoming
	arm := func(scope int) {
		v := t.scope(scope, valued)
		if t.em.Terminated() { return }
		if valued {
			incoming = append(incoming, Incoming{v, t.em.CurrentBlock()})
		}
		t.em.Br(after)
	}

	for i, a := range blk.Arms {
		t.em.CondBr(t.sym(a.Cond).v, thens[i], nexts[i])
		t.em.SetBlock(thens[i])
		arm(a.Scope)
		t.em.SetBlock(nexts[i])
	}
	if blk.Else >= 0 {
		arm(blk.Else)
		t.em.SetBlock(after)
	}

	if !valued || len(incoming) == 0 { return nil }
	return t.em.Phi(ty, incoming)
}

// loop uses one header block as both entry and continue target.
func (t *translator) loop(ty types.AType, scope int) Value {
	head := t.em.NewBlock()
	t.em.Br(head)
	t.em.SetBlock(head)

	frame := &loopFrame{head: head}
	t.loops = append(t.loops, frame)
	t.scope(scope, false)
	if !t.em.Terminated() {
		t.em.Br(head)
	}
	t.loops = t.loops[:len(t.loops)-1]

	if frame.exit == nil { return nil }
	t.em.SetBlock(frame.exit)
	if ty.IsUnit() || len(frame.incoming) == 0 { return nil }
	return t.em.Phi(ty, frame.incoming)
}

func (t *translator) brk(b mir.Break) {
	frame := t.loops[len(t.loops)-1]
	if frame.exit == nil {
		frame.exit = t.em.NewBlock()
	}
	if b.Value != "" {
		frame.incoming = append(frame.incoming, Incoming{t.sym(b.Value).v, t.em.CurrentBlock()})
	}
	t.em.Br(frame.exit)
}

// ret records the returned value and jumps to the function's single
// terminal block, which is emitted once every path is lowered.
func (t *translator) ret(r mir.Return) {
	if t.retBlock == nil {
		t.retBlock = t.em.NewBlock()
	}
	if r.Value != "" {
		t.rets = append(t.rets, Incoming{t.sym(r.Value).v, t.em.CurrentBlock()})
	}
	t.em.Br(t.retBlock)
}
