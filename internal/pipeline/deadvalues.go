package pipeline

import (
	"context"

	"github.com/hassan/decomp6502/internal/cfg"
	"github.com/hassan/decomp6502/internal/ir"
)

// DeadValueStage finds definitions whose value nothing observes.
//
// WHAT IS A DEAD VALUE?
// Most 6502 instructions set Z and N, and most of those flags are
// overwritten before anything tests them:
//
//	LDA #$01    A_1, Z_1, N_1
//	LDX #$02    X_1, Z_2, N_2     Z_1 and N_1 are dead
//	BEQ Done    reads Z_2
//
// An emitter skips dead values instead of declaring them.
//
// OBSERVABLE READS (the roots):
// - Stores to untracked memory and pushes
// - Branch conditions
// - Everything visible to a subroutine when it is called
// - Everything visible when control leaves the function
type DeadValueStage struct{}

// Name returns the name of this stage.
func (d *DeadValueStage) Name() string {
	return "DeadValues"
}

// Run marks the values reachable from the roots and reports the rest.
//
// ALGORITHM:
// 1. Mark every value a root reads
// 2. Recursively mark the values those depend on; a phi depends on all of
//    its operands
// 3. Report the unmarked values in definition order
func (d *DeadValueStage) Run(ctx context.Context, a *Analysis) error {
	if a.SSA == nil {
		return missing("SSA")
	}
	res := a.SSA
	used := make(map[*ir.Value]bool)

	for _, id := range res.Order {
		if err := ctx.Err(); err != nil {
			return err
		}
		block := a.Graph.Block(id)
		state := res.EntryStates[id]
		for i, step := range res.Steps[id] {
			if block.Instructions[i].Op.IsCall() {
				d.markState(state, used)
			}
			for _, st := range step.Stores {
				d.markExpr(st.Value, used)
				if st.Dest != nil {
					d.markExpr(st.Dest.Index, used)
				}
			}
			state = state.Extend(step.Defs...)
		}

		if cond, ok := res.Conditions[id]; ok {
			d.markExpr(cond, used)
		}
		if d.leavesFunction(a, id) {
			d.markState(res.ExitStates[id], used)
		}
	}

	var dead []*ir.Value
	for _, v := range res.Values {
		if !used[v] {
			dead = append(dead, v)
		}
	}
	a.Dead = dead
	return nil
}

// leavesFunction reports whether control can leave the function at the end
// of id: a return, a jump into another function, or a block with no
// successors at all.
func (d *DeadValueStage) leavesFunction(a *Analysis, id cfg.BlockID) bool {
	succs := a.Graph.Succs(id)
	if len(succs) == 0 {
		return true
	}
	for _, s := range succs {
		if !a.Function.Contains(s) {
			return true
		}
	}
	return false
}

func (d *DeadValueStage) markState(state ir.State, used map[*ir.Value]bool) {
	for _, b := range state.Bases() {
		v, _ := state.Get(b)
		d.markValue(v, used)
	}
}

func (d *DeadValueStage) markExpr(e ir.Expr, used map[*ir.Value]bool) {
	if e == nil {
		return
	}
	for _, v := range ir.Refs(e) {
		d.markValue(v, used)
	}
}

// markValue marks v and everything it depends on.
func (d *DeadValueStage) markValue(v *ir.Value, used map[*ir.Value]bool) {
	if v == nil || used[v] {
		return
	}
	used[v] = true

	if phi, ok := v.Def.(*ir.PhiExpr); ok {
		for _, op := range phi.Phi.Operands {
			d.markValue(op.Value, used)
		}
		return
	}
	d.markExpr(v.Def, used)
}
