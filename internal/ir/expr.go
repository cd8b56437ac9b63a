package ir

import (
	"fmt"
	"strings"

	"github.com/hassan/decomp6502/internal/asm"
)

// Expr is an immutable expression tree over Values and literals.
//
// DESIGN CHOICE: An interface with one struct per node, matched with type
// switches, the same shape as the instruction set of the IR it replaces.
type Expr interface {
	String() string
	exprNode()
}

// Const is an integer literal.
type Const struct {
	Value int
}

// Bool is a flag literal (SEC, CLC, ...).
type Bool struct {
	Value bool
}

// Ref reads an SSA value.
type Ref struct {
	Value *Value
}

// BinOp is a binary operator.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpEq
	OpNe
	OpLt
	OpGe
	OpGt
	OpLogicalAnd
	OpLogicalOr
)

var binOpNames = [...]string{"+", "-", "&", "|", "^", "<<", ">>", "==", "!=", "<", ">=", ">", "&&", "||"}

func (op BinOp) String() string {
	if op < 0 || int(op) >= len(binOpNames) {
		return "?"
	}
	return binOpNames[op]
}

// Binary applies Op to X and Y.
type Binary struct {
	Op BinOp
	X  Expr
	Y  Expr
}

// Not is boolean negation.
type Not struct {
	X Expr
}

// Select is Then when Cond holds, Else otherwise.
type Select struct {
	Cond Expr
	Then Expr
	Else Expr
}

// Load reads a memory cell that is not tracked as its own Base: indexed
// and indirect accesses whose address is only known at run time.
type Load struct {
	Mode  asm.Mode
	Addr  string
	Index Expr // X or Y value, nil for Indirect
}

// Opaque is a value the analysis cannot see into, such as a byte pulled
// from the stack or the stack pointer itself.
type Opaque struct {
	What string
}

// Call is the value Base holds after the subroutine Target returns.
type Call struct {
	Target string
	Base   Base
}

// PhiExpr is the definition of a phi result.
type PhiExpr struct {
	Phi *Phi
}

func (*Const) exprNode()   {}
func (*Bool) exprNode()    {}
func (*Ref) exprNode()     {}
func (*Binary) exprNode()  {}
func (*Not) exprNode()     {}
func (*Select) exprNode()  {}
func (*Load) exprNode()    {}
func (*Opaque) exprNode()  {}
func (*Call) exprNode()    {}
func (*PhiExpr) exprNode() {}

func (e *Const) String() string   { return render(e, false) }
func (e *Bool) String() string    { return render(e, false) }
func (e *Ref) String() string     { return render(e, false) }
func (e *Binary) String() string  { return render(e, false) }
func (e *Not) String() string     { return render(e, false) }
func (e *Select) String() string  { return render(e, false) }
func (e *Load) String() string    { return render(e, false) }
func (e *Opaque) String() string  { return render(e, false) }
func (e *Call) String() string    { return render(e, false) }
func (e *PhiExpr) String() string { return render(e, false) }

// Constructors keep lowering rules short.

// Int returns a literal.
func Int(v int) Expr { return &Const{Value: v} }

// Flag returns a boolean literal.
func Flag(v bool) Expr { return &Bool{Value: v} }

// Use returns a reference to v.
func Use(v *Value) Expr { return &Ref{Value: v} }

// Bin returns x op y.
func Bin(op BinOp, x, y Expr) Expr { return &Binary{Op: op, X: x, Y: y} }

// Negate returns !x.
func Negate(x Expr) Expr { return &Not{X: x} }

// Walk calls fn for e and then, if fn returns true, for every child.
// It does not descend into the definitions of referenced values.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch e := e.(type) {
	case *Binary:
		Walk(e.X, fn)
		Walk(e.Y, fn)
	case *Not:
		Walk(e.X, fn)
	case *Select:
		Walk(e.Cond, fn)
		Walk(e.Then, fn)
		Walk(e.Else, fn)
	case *Load:
		Walk(e.Index, fn)
	case *PhiExpr:
		for _, op := range e.Phi.Operands {
			if op.Value != nil {
				fn(&Ref{Value: op.Value})
			}
		}
	}
}

// Refs returns the values e reads directly, in first-use order.
func Refs(e Expr) []*Value {
	var out []*Value
	seen := make(map[*Value]bool)
	Walk(e, func(x Expr) bool {
		if r, ok := x.(*Ref); ok && !seen[r.Value] {
			seen[r.Value] = true
			out = append(out, r.Value)
		}
		return true
	})
	return out
}

// Inline renders e with every referenced value replaced by its definition,
// recursively. Live-ins and phi results stay as names since they have no
// expression to substitute.
//
// EXAMPLE:
//
//	A_1 = 0x80
//	C_1 = ((A_1 & 0x80) != 0)
//	Inline(C_1.Def) == "((0x80 & 0x80) != 0)"
func Inline(e Expr) string { return render(e, true) }

func render(e Expr, inline bool) string {
	var sb strings.Builder
	write(&sb, e, inline)
	return sb.String()
}

func write(sb *strings.Builder, e Expr, inline bool) {
	switch e := e.(type) {
	case nil:
		sb.WriteString("<nil>")
	case *Const:
		fmt.Fprintf(sb, "0x%02X", e.Value)
	case *Bool:
		fmt.Fprint(sb, e.Value)
	case *Ref:
		v := e.Value
		if inline && v.Def != nil && !v.IsPhi() {
			write(sb, v.Def, inline)
			return
		}
		sb.WriteString(v.Name())
	case *Binary:
		sb.WriteString("(")
		write(sb, e.X, inline)
		sb.WriteString(" " + e.Op.String() + " ")
		write(sb, e.Y, inline)
		sb.WriteString(")")
	case *Not:
		sb.WriteString("!")
		write(sb, e.X, inline)
	case *Select:
		sb.WriteString("(")
		write(sb, e.Cond, inline)
		sb.WriteString(" ? ")
		write(sb, e.Then, inline)
		sb.WriteString(" : ")
		write(sb, e.Else, inline)
		sb.WriteString(")")
	case *Load:
		switch e.Mode {
		case asm.IndirectX:
			sb.WriteString("*(" + e.Addr + "[")
			write(sb, e.Index, inline)
			sb.WriteString("])")
		case asm.IndirectY:
			sb.WriteString("*(" + e.Addr + ")[")
			write(sb, e.Index, inline)
			sb.WriteString("]")
		case asm.Indirect:
			sb.WriteString("*(" + e.Addr + ")")
		default:
			sb.WriteString(e.Addr)
			if e.Index != nil {
				sb.WriteString("[")
				write(sb, e.Index, inline)
				sb.WriteString("]")
			}
		}
	case *Opaque:
		sb.WriteString(e.What)
	case *Call:
		fmt.Fprintf(sb, "%s().%s", e.Target, e.Base.VarName())
	case *PhiExpr:
		sb.WriteString("phi(")
		for i, op := range e.Phi.Operands {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(sb, "%s: ", op.Pred)
			if op.Value == nil {
				sb.WriteString("?")
			} else {
				sb.WriteString(op.Value.Name())
			}
		}
		sb.WriteString(")")
	default:
		fmt.Fprintf(sb, "%T", e)
	}
}

// Store writes Value to a memory cell that is not tracked as a Base. A nil
// Dest is a push onto the hardware stack.
type Store struct {
	Dest  *Load
	Value Expr
}

func (s Store) String() string {
	if s.Dest == nil {
		return "push(" + s.Value.String() + ")"
	}
	return s.Dest.String() + " := " + s.Value.String()
}
