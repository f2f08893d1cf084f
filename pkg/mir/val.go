package mir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/minghu6/bas/pkg/types"
)

// Val is a value-expression. The set of implementations is closed.
type Val interface {
	isVal()
	String() string
}

// DefFn marks a function definition bound in the module root scope.
type DefFn struct {
	Name  string // identity
	Scope int
}

type IfArm struct {
	Cond  string
	Scope int
}

// IfBlock is a chain of conditional arms. Else is -1 when absent.
type IfBlock struct {
	Arms []IfArm
	Else int
}

type InfiLoop struct{ Scope int }
type BlockExpr struct{ Scope int }
type FnParam struct{ Index int }

type FnCall struct {
	Callee string // identity
	Args   []string
}

// BOp applies Op to two operands already converted to OperandType.
type BOp struct {
	Op          types.Op
	X, Y        string
	OperandType types.AType
}

type TypeCast struct {
	Src  string
	From types.AType
	To   types.AType
}

type IntConst struct{ Value int32 }
type FloatConst struct{ Value float64 }
type StrConst struct{ Value string }
type BoolConst struct{ Value bool }

// Var reads the current value of a stack slot.
type Var struct {
	Name string
	Tag  int
}

// Assign stores Value into (Name, Tag) and evaluates to the stored value.
type Assign struct {
	Name  string
	Tag   int
	Value string
}

// Alias is the value of an existing temporary.
type Alias struct{ Sym string }

// Break leaves the innermost loop. Value is "" for a bare break.
type Break struct{ Value string }
type Continue struct{}

// Return leaves the function. Value is "" for a bare return.
type Return struct{ Value string }

// Placeholder stands for a value that failed to analyze.
type Placeholder struct{}

func (DefFn) isVal()       {}
func (IfBlock) isVal()     {}
func (InfiLoop) isVal()    {}
func (BlockExpr) isVal()   {}
func (FnParam) isVal()     {}
func (FnCall) isVal()      {}
func (BOp) isVal()         {}
func (TypeCast) isVal()    {}
func (IntConst) isVal()    {}
func (FloatConst) isVal()  {}
func (StrConst) isVal()    {}
func (BoolConst) isVal()   {}
func (Var) isVal()         {}
func (Assign) isVal()      {}
func (Alias) isVal()       {}
func (Break) isVal()       {}
func (Continue) isVal()    {}
func (Return) isVal()      {}
func (Placeholder) isVal() {}

func (v DefFn) String() string { return fmt.Sprintf("deffn %s scope#%d", v.Name, v.Scope) }
func (v IfBlock) String() string {
	var sb strings.Builder
	for i, arm := range v.Arms {
		if i > 0 {
			sb.WriteString(" else ")
		}
		fmt.Fprintf(&sb, "if %s scope#%d", arm.Cond, arm.Scope)
	}
	if v.Else >= 0 {
		fmt.Fprintf(&sb, " else scope#%d", v.Else)
	}
	return sb.String()
}
func (v InfiLoop) String() string  { return fmt.Sprintf("loop scope#%d", v.Scope) }
func (v BlockExpr) String() string { return fmt.Sprintf("block scope#%d", v.Scope) }
func (v FnParam) String() string   { return fmt.Sprintf("param %d", v.Index) }
func (v FnCall) String() string    { return fmt.Sprintf("call %s(%s)", v.Callee, strings.Join(v.Args, ", ")) }
func (v BOp) String() string       { return fmt.Sprintf("%s %s %s : %s", v.X, v.Op, v.Y, v.OperandType) }
func (v TypeCast) String() string  { return fmt.Sprintf("cast %s %s -> %s", v.Src, v.From, v.To) }
func (v IntConst) String() string  { return strconv.Itoa(int(v.Value)) }
func (v FloatConst) String() string {
	return strconv.FormatFloat(v.Value, 'g', -1, 64)
}
func (v StrConst) String() string  { return strconv.Quote(v.Value) }
func (v BoolConst) String() string { return strconv.FormatBool(v.Value) }
func (v Var) String() string       { return fmt.Sprintf("load %s.%d", v.Name, v.Tag) }
func (v Assign) String() string    { return fmt.Sprintf("store %s.%d = %s", v.Name, v.Tag, v.Value) }
func (v Alias) String() string     { return v.Sym }
func (v Break) String() string {
	if v.Value == "" { return "break" }
	return "break " + v.Value
}
func (Continue) String() string { return "continue" }
func (v Return) String() string {
	if v.Value == "" { return "return" }
	return "return " + v.Value
}
func (Placeholder) String() string { return "_" }
