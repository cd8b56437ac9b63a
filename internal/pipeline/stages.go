package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/hassan/decomp6502/internal/dom"
	"github.com/hassan/decomp6502/internal/loops"
	"github.com/hassan/decomp6502/internal/phielim"
	"github.com/hassan/decomp6502/internal/ssa"
)

// DominatorStage computes the dominator tree of the function.
type DominatorStage struct{}

// Name returns the name of this stage.
func (s *DominatorStage) Name() string {
	return "Dominators"
}

// Run computes dominators from the function's starting block.
func (s *DominatorStage) Run(ctx context.Context, a *Analysis) error {
	a.Dom = dom.Compute(a.View, a.Function.Start)
	return nil
}

// LoopStage finds the natural loops of the function.
type LoopStage struct{}

// Name returns the name of this stage.
func (s *LoopStage) Name() string {
	return "Loops"
}

// Run detects loops. Detection panics on a malformed loop; the pipeline
// turns that into this stage's error.
func (s *LoopStage) Run(ctx context.Context, a *Analysis) error {
	if a.Dom == nil {
		return missing("Dominators")
	}
	a.Loops = loops.Detect(a.View, a.Dom)
	return nil
}

// SSAStage builds and verifies SSA form.
type SSAStage struct{}

// Name returns the name of this stage.
func (s *SSAStage) Name() string {
	return "SSA"
}

// Run builds SSA form. Without loop information every back-edge is treated
// like irreducible flow, which places more phis but stays correct.
func (s *SSAStage) Run(ctx context.Context, a *Analysis) error {
	if a.Dom == nil {
		return missing("Dominators")
	}
	res := ssa.Build(a.Graph, a.Function, a.Dom, a.Loops)
	if errs := res.Verify(a.View); len(errs) > 0 {
		return fmt.Errorf("invalid SSA: %w", errors.Join(errs...))
	}
	a.SSA = res
	return nil
}

// PhiEliminationStage plans the copies that replace phis.
type PhiEliminationStage struct{}

// Name returns the name of this stage.
func (s *PhiEliminationStage) Name() string {
	return "PhiElimination"
}

// Run eliminates the phis of the function's SSA form.
func (s *PhiEliminationStage) Run(ctx context.Context, a *Analysis) error {
	if a.SSA == nil {
		return missing("SSA")
	}
	a.Phis = phielim.Eliminate(a.SSA)
	return nil
}
