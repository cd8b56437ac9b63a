package phielim

import (
	"sort"
	"strings"
	"testing"

	"github.com/hassan/decomp6502/internal/asm"
	"github.com/hassan/decomp6502/internal/cfg"
	"github.com/hassan/decomp6502/internal/dom"
	"github.com/hassan/decomp6502/internal/function"
	"github.com/hassan/decomp6502/internal/ir"
	"github.com/hassan/decomp6502/internal/loops"
	"github.com/hassan/decomp6502/internal/ssa"
)

func analyze(t *testing.T, l *asm.Listing) *ssa.Result {
	t.Helper()
	g, err := cfg.Build(l.Lines())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fns, err := function.Partition(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	view := fns[0].View(g)
	tree := dom.Compute(view, fns[0].Start)
	return ssa.Build(g, fns[0], tree, loops.Detect(view, tree))
}

// TestCountdownCopies tests the copies of a simple counting loop
func TestCountdownCopies(t *testing.T) {
	res := analyze(t, asm.NewListing().
		Add(asm.Imm(asm.LDA, 1), asm.Imm(asm.LDX, 5)).
		Label("Loop").Add(asm.Op0(asm.DEX), asm.Branch(asm.BNE, "Loop")).
		Add(asm.Op0(asm.RTS)))
	plan := Eliminate(res)

	want := []ir.Base{ir.X, ir.Z, ir.N}
	if len(plan.MutableVariables) != len(want) {
		t.Fatalf("expected %v, got %v", want, plan.MutableVariables)
	}
	for i, b := range want {
		if plan.MutableVariables[i] != b {
			t.Errorf("expected %v at %d, got %v", b, i, plan.MutableVariables[i])
		}
	}
	if plan.IsMutable(ir.A) {
		t.Error("A is never a phi target and must stay immutable")
	}

	tests := []struct {
		name  string
		block cfg.BlockID
		want  string
	}{
		{"loop entry", 0, "X := X_1"},
		{"back-edge", 1, "X := X_3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := find(plan.BlockCopies[tt.block], ir.X)
			if !ok {
				t.Fatalf("no copy to X at %v", tt.block)
			}
			if got := c.String(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
	if len(plan.Initial) != 0 || len(plan.Temporaries) != 0 {
		t.Errorf("unexpected initial copies or temporaries:\n%s", plan)
	}

	// the flags read X, so they are assigned before it
	back := plan.BlockCopies[1]
	if back[len(back)-1].Target != ir.X {
		t.Errorf("X must be assigned last on the back-edge, got %v", back)
	}
}

func find(copies []ir.Copy, target ir.Base) (ir.Copy, bool) {
	for _, c := range copies {
		if c.Target == target {
			return c, true
		}
	}
	return ir.Copy{}, false
}

// TestEveryPhiIsCovered tests that each predecessor assigns each phi target
func TestEveryPhiIsCovered(t *testing.T) {
	listings := map[string]*asm.Listing{
		"diamond": asm.NewListing().
			Add(asm.Imm(asm.LDA, 0), asm.Branch(asm.BEQ, "Else")).
			Add(asm.Imm(asm.LDA, 1), asm.Jump("Join")).
			Label("Else").Add(asm.Imm(asm.LDA, 2)).
			Label("Join").Add(asm.Mem(asm.STA, "$00"), asm.Op0(asm.RTS)),
		"nested": asm.NewListing().
			Label("Outer").Add(asm.Imm(asm.LDX, 5)).
			Label("Inner").Add(asm.Imm(asm.LDY, 3)).
			Label("InnerBody").Add(asm.Op0(asm.DEY), asm.Branch(asm.BNE, "Inner")).
			Label("OuterBody").Add(asm.Op0(asm.DEX), asm.Branch(asm.BNE, "Outer")).
			Add(asm.Op0(asm.RTS)),
	}

	for name, l := range listings {
		t.Run(name, func(t *testing.T) {
			res := analyze(t, l)
			plan := Eliminate(res)

			for _, phi := range res.AllPhis() {
				if !plan.IsMutable(phi.Target) {
					t.Errorf("%v is a phi target but not mutable", phi.Target)
				}
				for _, op := range phi.Operands {
					copies := plan.BlockCopies[op.Pred]
					if op.Pred == cfg.NoBlock {
						copies = plan.Initial
					}
					if !assigns(copies, phi.Target, op.Value) {
						t.Errorf("%v does not assign %s for %s", op.Pred, op.Value.Name(), phi)
					}
				}
			}
		})
	}
}

func assigns(copies []ir.Copy, target ir.Base, v *ir.Value) bool {
	for _, c := range copies {
		if c.Target == target && c.Value == v {
			return true
		}
	}
	return false
}

// TestSwapNeedsTemporary tests a loop exchanging A and X through memory
func TestSwapNeedsTemporary(t *testing.T) {
	res := analyze(t, asm.NewListing().
		Label("Loop").Add(asm.Mem(asm.STA, "$00"), asm.Op0(asm.TXA), asm.Mem(asm.LDX, "$00")).
		Add(asm.Jump("Loop")))
	plan := Eliminate(res)

	copies := plan.BlockCopies[0]
	if len(plan.Temporaries) == 0 {
		t.Fatalf("expected a scratch slot:\n%s", plan)
	}
	saved := -1
	for i, c := range copies {
		if c.Target.Kind == ir.KindTemp {
			saved = i
		}
		if c.Target == ir.X && saved < 0 {
			t.Errorf("X is written before the cycle is broken: %v", copies)
		}
	}
	if len(plan.Initial) == 0 {
		t.Error("entry with a back-edge needs initial copies")
	}
	checkParallel(t, copies, plan)
}

// checkParallel runs the copies one after the other and checks that every
// target ends up with what it would get if all copies ran at once.
func checkParallel(t *testing.T, copies []ir.Copy, plan *Result) {
	t.Helper()
	mutable := make(map[ir.Base]bool)
	for _, b := range plan.MutableVariables {
		mutable[b] = true
	}

	slots := make(map[ir.Base]string)
	for b := range mutable {
		slots[b] = b.VarName()
	}
	eval := func(c ir.Copy) string {
		var parts []string
		for b := range Reads(c.Value, mutable) {
			parts = append(parts, slots[c.Source(b)])
		}
		sort.Strings(parts)
		return strings.Join(parts, "+")
	}

	want := make(map[ir.Base]string)
	for _, c := range copies {
		if c.Target.Kind == ir.KindTemp {
			continue
		}
		var parts []string
		for b := range Reads(c.Value, mutable) {
			parts = append(parts, b.VarName())
		}
		sort.Strings(parts)
		want[c.Target] = strings.Join(parts, "+")
	}

	for _, c := range copies {
		slots[c.Target] = eval(c)
	}
	for b, w := range want {
		if slots[b] != w {
			t.Errorf("%s: expected %q, got %q\n%s", b.VarName(), w, slots[b], plan)
		}
	}
}

// TestReadsFollowsInlinedValues tests that Reads sees through non-phi defs
func TestReadsFollowsInlinedValues(t *testing.T) {
	phi := &ir.Value{Base: ir.A, Version: 2, Def: &ir.PhiExpr{Phi: &ir.Phi{}}}
	mid := &ir.Value{Base: ir.X, Version: 1, Def: ir.Use(phi)}
	top := &ir.Value{Base: ir.Y, Version: 1, Def: ir.Bin(ir.OpAdd, ir.Use(mid), ir.Use(ir.LiveIn(ir.Y)))}

	got := Reads(top, map[ir.Base]bool{ir.A: true})
	if len(got) != 1 || got[ir.A] != phi {
		t.Errorf("expected only A via the phi, got %v", got)
	}
}

// TestExitEdgeSeesBackEdgeCopies tests the case an emitter has to handle
// when the copies end a block that also exits the loop: X_3 is inlined as
// X_2 - 1, but on the exit edge slot X already holds X_3.
func TestExitEdgeSeesBackEdgeCopies(t *testing.T) {
	res := analyze(t, asm.NewListing().
		Add(asm.Imm(asm.LDX, 5)).
		Label("Loop").Add(asm.Op0(asm.DEX), asm.Branch(asm.BNE, "Loop")).
		Add(asm.Mem(asm.STX, "$00"), asm.Op0(asm.RTS)))
	plan := Eliminate(res)

	c, ok := find(plan.BlockCopies[1], ir.X)
	if !ok {
		t.Fatalf("expected a copy to X on the back-edge:\n%s", plan)
	}
	exit, _ := res.ExitStates[1].Get(ir.X)
	if c.Value != exit {
		t.Fatalf("expected X := %s, got %s", exit.Name(), c)
	}

	mutable := make(map[ir.Base]bool)
	for _, b := range plan.MutableVariables {
		mutable[b] = true
	}
	got := Reads(exit, mutable)
	if got[ir.X] != res.Phi(1, ir.X).Result {
		t.Errorf("expected %s to read slot X as the phi value, got %v", exit.Name(), got)
	}
}

// TestNoPhisNoPlan tests straight-line code
func TestNoPhisNoPlan(t *testing.T) {
	res := analyze(t, asm.NewListing().Add(asm.Imm(asm.LDA, 1), asm.Op0(asm.RTS)))
	plan := Eliminate(res)
	if len(plan.MutableVariables) != 0 || len(plan.BlockCopies) != 0 {
		t.Errorf("expected an empty plan, got:\n%s", plan)
	}
}
