// Package lower maps each 6502 instruction onto SSA definitions.
//
// WHAT DOES LOWERING PRODUCE?
// For one instruction and the values current before it, a Step lists the
// new values the instruction defines, in order, and the stores it makes to
// memory that is not tracked per cell. Values in a Step are unnumbered; the
// SSA builder assigns versions in Step order.
//
// ORDERING RULE:
// Every expression reads the values current before the instruction. A
// later definition in the same Step may also refer to an earlier one, which
// is how Z and N describe the freshly written register. A shift defines its
// carry first, from the value before shifting:
//
//	ASL A   ->   C' = (A & 0x80) != 0
//	             A' = (A << 1) & 0xFF
//	             Z' = A' == 0
//	             N' = (A' & 0x80) != 0
//
// Lowering never mutates its inputs.
package lower

import (
	"github.com/hassan/decomp6502/internal/asm"
	"github.com/hassan/decomp6502/internal/ir"
)

// Env supplies the values current before an instruction.
type Env interface {
	// Read returns the current value of b, the live-in value when b has no
	// definition yet.
	Read(b ir.Base) *ir.Value

	// Tracked returns the memory bases of the function, which a call may
	// overwrite.
	Tracked() []ir.Base
}

// Step is the effect of one instruction.
type Step struct {
	Defs   []*ir.Value
	Stores []ir.Store
}

// Def returns the last value the step defines for b.
func (s Step) Def(b ir.Base) (*ir.Value, bool) {
	for i := len(s.Defs) - 1; i >= 0; i-- {
		if s.Defs[i].Base == b {
			return s.Defs[i], true
		}
	}
	return nil, false
}

// Lower returns the effect of ins given env.
func Lower(ins asm.Instruction, env Env) Step {
	c := &ctx{ins: ins, env: env}
	if ins.Op.Valid() {
		if rule := rules[ins.Op]; rule != nil {
			rule(c)
		}
	}
	return c.step
}

// Writes returns the bases ins always defines, and whether it may also
// overwrite tracked memory (calls).
func Writes(ins asm.Instruction) ([]ir.Base, bool) {
	step := Lower(ins, liveInEnv{})
	seen := make(map[ir.Base]bool, len(step.Defs))
	var out []ir.Base
	for _, v := range step.Defs {
		if !seen[v.Base] {
			seen[v.Base] = true
			out = append(out, v.Base)
		}
	}
	return out, ins.Op.IsCall()
}

// liveInEnv answers every read with a fresh live-in.
type liveInEnv struct{}

func (liveInEnv) Read(b ir.Base) *ir.Value { return ir.LiveIn(b) }
func (liveInEnv) Tracked() []ir.Base       { return nil }

// BranchCondition returns the condition under which a conditional branch
// is taken, or nil for other opcodes.
func BranchCondition(op asm.Op, env Env) ir.Expr {
	flag := func(b ir.Base) ir.Expr { return ir.Use(env.Read(b)) }
	switch op {
	case asm.BEQ:
		return flag(ir.Z)
	case asm.BNE:
		return ir.Negate(flag(ir.Z))
	case asm.BCS:
		return flag(ir.C)
	case asm.BCC:
		return ir.Negate(flag(ir.C))
	case asm.BMI:
		return flag(ir.N)
	case asm.BPL:
		return ir.Negate(flag(ir.N))
	case asm.BVS:
		return flag(ir.V)
	case asm.BVC:
		return ir.Negate(flag(ir.V))
	}
	return nil
}

// ctx accumulates one Step.
type ctx struct {
	ins  asm.Instruction
	env  Env
	step Step
}

// def appends a new value for b.
func (c *ctx) def(b ir.Base, e ir.Expr) *ir.Value {
	v := &ir.Value{Base: b, Def: e}
	c.step.Defs = append(c.step.Defs, v)
	return v
}

// read returns a reference to the pre-instruction value of b.
func (c *ctx) read(b ir.Base) ir.Expr {
	return ir.Use(c.env.Read(b))
}

// operand returns the value the instruction's operand denotes.
func (c *ctx) operand() ir.Expr {
	ins := c.ins
	switch ins.Mode {
	case asm.Immediate:
		if ins.Operand.Symbol != "" {
			return &ir.Opaque{What: "#" + ins.Operand.Symbol}
		}
		return ir.Int(ins.Operand.Value)
	case asm.Accumulator:
		return c.read(ir.A)
	case asm.ZeroPage, asm.Absolute:
		return c.read(ir.Mem(ins.Operand.Address()))
	case asm.Implied, asm.Relative:
		return nil
	}
	return c.load()
}

// load describes an indexed or indirect memory access.
func (c *ctx) load() *ir.Load {
	ins := c.ins
	l := &ir.Load{Mode: ins.Mode, Addr: ins.Operand.Address()}
	switch ins.Mode {
	case asm.ZeroPageX, asm.AbsoluteX, asm.IndirectX:
		l.Index = c.read(ir.X)
	case asm.ZeroPageY, asm.AbsoluteY, asm.IndirectY:
		l.Index = c.read(ir.Y)
	}
	return l
}

// write sends a result to the instruction's memory operand or to A.
func (c *ctx) write(e ir.Expr) *ir.Value {
	switch c.ins.Mode {
	case asm.Accumulator:
		return c.def(ir.A, e)
	case asm.ZeroPage, asm.Absolute:
		return c.def(ir.Mem(c.ins.Operand.Address()), e)
	}
	c.step.Stores = append(c.step.Stores, ir.Store{Dest: c.load(), Value: e})
	return nil
}

// nz defines Z and N from a result. Untracked results use the expression.
func (c *ctx) nz(v *ir.Value, e ir.Expr) {
	if v != nil {
		e = ir.Use(v)
	}
	c.def(ir.Z, ir.Bin(ir.OpEq, e, ir.Int(0)))
	c.def(ir.N, bit(e, 0x80))
}

// bit is (e & mask) != 0.
func bit(e ir.Expr, mask int) ir.Expr {
	return ir.Bin(ir.OpNe, ir.Bin(ir.OpAnd, e, ir.Int(mask)), ir.Int(0))
}

// byteOf is e & 0xFF.
func byteOf(e ir.Expr) ir.Expr {
	return ir.Bin(ir.OpAnd, e, ir.Int(0xFF))
}
