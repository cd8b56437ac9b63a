package ir

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hassan/decomp6502/internal/cfg"
)

// Phi merges the values of Target arriving over different edges.
//
// EXAMPLE:
//
//	       LDA #$00             b0:  A_1 = 0x00
//	Loop:  CLC                  b1:  A_2 = phi(b0: A_1, b1: A_3)
//	       ADC #$02                  A_3 = (A_2 + 0x02 + ...) & 0xFF
//	       BNE Loop
//
// Operands are keyed by predecessor block. The edge from outside the
// function into its entry uses the predecessor cfg.NoBlock.
type Phi struct {
	Block    cfg.BlockID
	Target   Base
	Result   *Value
	Operands []PhiOperand
}

// PhiOperand is the value Target holds at the end of Pred.
type PhiOperand struct {
	Pred  cfg.BlockID
	Value *Value
}

// Operand returns the value arriving from pred.
func (p *Phi) Operand(pred cfg.BlockID) (*Value, bool) {
	for _, op := range p.Operands {
		if op.Pred == pred {
			return op.Value, op.Value != nil
		}
	}
	return nil, false
}

// SetOperand records the value arriving from pred, replacing an earlier
// one. Only the SSA builder calls it, while the phi is still being filled.
func (p *Phi) SetOperand(pred cfg.BlockID, v *Value) {
	for i := range p.Operands {
		if p.Operands[i].Pred == pred {
			p.Operands[i].Value = v
			return
		}
	}
	p.Operands = append(p.Operands, PhiOperand{Pred: pred, Value: v})
	sort.SliceStable(p.Operands, func(i, j int) bool { return p.Operands[i].Pred < p.Operands[j].Pred })
}

// Trivial reports whether every operand is the same value.
func (p *Phi) Trivial() bool {
	for _, op := range p.Operands[1:] {
		if op.Value != p.Operands[0].Value {
			return false
		}
	}
	return true
}

func (p *Phi) String() string {
	return p.Result.Name() + " = " + (&PhiExpr{Phi: p}).String()
}

// Copy is one assignment an emitter places at the end of a predecessor
// block so the successor's phi becomes a plain variable read.
//
// Value is evaluated with its referenced phi results read from their
// mutable slots. Reads redirects some of those slots to scratch
// temporaries, set when an earlier copy in the same list overwrites a slot
// this copy still needs.
type Copy struct {
	Target Base
	Value  *Value
	Reads  map[Base]Base
}

// Source returns the slot to read for base b.
func (c Copy) Source(b Base) Base {
	if t, ok := c.Reads[b]; ok {
		return t
	}
	return b
}

func (c Copy) String() string {
	var sb strings.Builder
	sb.WriteString(c.Target.VarName())
	sb.WriteString(" := ")
	if c.Value == nil {
		sb.WriteString("?")
	} else {
		sb.WriteString(c.Value.Name())
	}
	if len(c.Reads) > 0 {
		keys := make([]Base, 0, len(c.Reads))
		for b := range c.Reads {
			keys = append(keys, b)
		}
		SortBases(keys)
		sb.WriteString(" [")
		for i, b := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s via %s", b.VarName(), c.Reads[b].VarName())
		}
		sb.WriteString("]")
	}
	return sb.String()
}
