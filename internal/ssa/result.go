package ssa

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hassan/decomp6502/internal/cfg"
	"github.com/hassan/decomp6502/internal/function"
	"github.com/hassan/decomp6502/internal/ir"
	"github.com/hassan/decomp6502/internal/lower"
)

// Result is the SSA form of one function. It is not modified after Build
// returns.
type Result struct {
	Function *function.Function
	Entry    cfg.BlockID

	// Order is the visit order: dominator-tree preorder
	Order []cfg.BlockID

	// EntryStates and ExitStates hold the state at the top and bottom of
	// each block
	EntryStates map[cfg.BlockID]ir.State
	ExitStates  map[cfg.BlockID]ir.State

	// Phis per block, ordered by target base
	Phis map[cfg.BlockID][]*ir.Phi

	// Values holds every definition, phi results included, in definition
	// order
	Values []*ir.Value

	// LiveIns are the version-0 values read somewhere, ordered by base.
	// They are the function's inputs.
	LiveIns []*ir.Value

	// Tracked lists the memory cells the function addresses directly
	Tracked []ir.Base

	// Steps holds one lowering step per instruction
	Steps map[cfg.BlockID][]lower.Step

	// Conditions holds the taken condition of blocks ending in a branch
	Conditions map[cfg.BlockID]ir.Expr
}

// Phi returns the phi for base x at block b, or nil.
func (r *Result) Phi(b cfg.BlockID, x ir.Base) *ir.Phi {
	for _, p := range r.Phis[b] {
		if p.Target == x {
			return p
		}
	}
	return nil
}

// AllPhis returns every phi, by block in visit order.
func (r *Result) AllPhis() []*ir.Phi {
	var out []*ir.Phi
	for _, b := range r.Order {
		out = append(out, r.Phis[b]...)
	}
	return out
}

// ValuesOf returns the definitions of x in definition order.
func (r *Result) ValuesOf(x ir.Base) []*ir.Value {
	var out []*ir.Value
	for _, v := range r.Values {
		if v.Base == x {
			out = append(out, v)
		}
	}
	return out
}

// Verify checks the invariants of SSA form.
// Returns a list of errors found.
//
// CHECKS:
// - Versions of each base run 1..n in definition order
// - No definition other than a phi reads a value defined after it
// - Every phi has one filled operand per incoming edge
func (r *Result) Verify(view cfg.View) []error {
	errors := make([]error, 0)

	versions := make(map[ir.Base]int)
	for i, v := range r.Values {
		versions[v.Base]++
		if v.Version != versions[v.Base] {
			errors = append(errors, fmt.Errorf("%s: expected version %d", v.Name(), versions[v.Base]))
		}
		if i > 0 && v.Seq <= r.Values[i-1].Seq {
			errors = append(errors, fmt.Errorf("%s: out of definition order", v.Name()))
		}
		if v.IsPhi() {
			continue
		}
		for _, ref := range ir.Refs(v.Def) {
			if !ref.IsLiveIn() && ref.Seq >= v.Seq {
				errors = append(errors, fmt.Errorf("%s reads later value %s", v.Name(), ref.Name()))
			}
		}
	}

	for _, b := range r.Order {
		want := 0
		for _, p := range view.Preds(b) {
			if _, ok := r.ExitStates[p]; ok {
				want++
			}
		}
		if b == r.Entry && want > 0 {
			want++
		}
		for _, phi := range r.Phis[b] {
			if len(phi.Operands) != want {
				errors = append(errors, fmt.Errorf("%s: %d operands for %d edges", phi, len(phi.Operands), want))
			}
			for _, op := range phi.Operands {
				if op.Value == nil {
					errors = append(errors, fmt.Errorf("%s: missing operand from %s", phi.Result.Name(), op.Pred))
				}
			}
		}
	}

	return errors
}

// String dumps the function block by block.
func (r *Result) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ssa %s\n", r.Function.Name)
	if len(r.LiveIns) > 0 {
		sb.WriteString("  ; live-in:")
		for _, v := range r.LiveIns {
			sb.WriteString(" " + v.Name())
		}
		sb.WriteString("\n")
	}

	byBlock := make(map[cfg.BlockID][]*ir.Value)
	for _, v := range r.Values {
		if !v.IsPhi() {
			byBlock[v.Block] = append(byBlock[v.Block], v)
		}
	}

	for _, b := range r.Order {
		fmt.Fprintf(&sb, "%s:\n", b)
		for _, phi := range r.Phis[b] {
			sb.WriteString("  " + phi.String() + "\n")
		}
		for _, v := range byBlock[b] {
			sb.WriteString("  " + v.String() + "\n")
		}
		for _, step := range r.Steps[b] {
			for _, st := range step.Stores {
				sb.WriteString("  " + st.String() + "\n")
			}
		}
		if cond, ok := r.Conditions[b]; ok {
			sb.WriteString("  ; taken if " + cond.String() + "\n")
		}
	}
	return sb.String()
}

func sortValues(vs []*ir.Value) {
	sort.Slice(vs, func(i, j int) bool { return ir.Less(vs[i].Base, vs[j].Base) })
}
