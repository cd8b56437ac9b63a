package pipeline

import (
	"context"

	"github.com/hassan/decomp6502/internal/ir"
)

// ConstantFoldingStage finds the SSA values whose contents are known.
//
// WHAT IS CONSTANT FOLDING HERE?
// SSA values are never rewritten, so instead of replacing instructions the
// stage records the value each foldable definition always holds:
//
//	A_1 = 0x05            -> 5
//	A_2 = (A_1 + 0x01)    -> 6
//	Z_2 = (A_2 == 0x00)   -> 0
//
// An emitter can print the constant instead of the expression.
//
// Flags fold to 0 or 1. Phi results fold when every operand is the same
// known constant.
type ConstantFoldingStage struct{}

// Name returns the name of this stage.
func (c *ConstantFoldingStage) Name() string {
	return "ConstantFolding"
}

// Run folds values in definition order.
//
// ALGORITHM:
// 1. Walk the values in definition order, so operands are folded first
// 2. Evaluate each definition against the constants found so far
// 3. Record the ones that evaluate
//
// A phi operand over a back-edge is defined later, so it is not known yet
// when the phi is visited and the phi does not fold. One pass suffices.
func (c *ConstantFoldingStage) Run(ctx context.Context, a *Analysis) error {
	if a.SSA == nil {
		return missing("SSA")
	}

	constants := make(map[*ir.Value]int)
	for _, v := range a.SSA.Values {
		if err := ctx.Err(); err != nil {
			return err
		}
		if n, ok := c.eval(v.Def, constants); ok {
			constants[v] = n
		}
	}
	a.Constants = constants
	return nil
}

// eval evaluates e, returning false if some part of it is unknown.
func (c *ConstantFoldingStage) eval(e ir.Expr, constants map[*ir.Value]int) (int, bool) {
	switch e := e.(type) {
	case *ir.Const:
		return e.Value, true
	case *ir.Bool:
		return boolInt(e.Value), true
	case *ir.Ref:
		n, ok := constants[e.Value]
		return n, ok
	case *ir.Not:
		n, ok := c.eval(e.X, constants)
		return boolInt(n == 0), ok
	case *ir.Select:
		cond, ok := c.eval(e.Cond, constants)
		if !ok {
			return 0, false
		}
		if cond != 0 {
			return c.eval(e.Then, constants)
		}
		return c.eval(e.Else, constants)
	case *ir.Binary:
		return c.evalBinary(e, constants)
	case *ir.PhiExpr:
		return c.evalPhi(e.Phi, constants)
	}
	// loads, calls and opaque values
	return 0, false
}

func (c *ConstantFoldingStage) evalBinary(e *ir.Binary, constants map[*ir.Value]int) (int, bool) {
	x, ok := c.eval(e.X, constants)
	if !ok {
		return 0, false
	}
	y, ok := c.eval(e.Y, constants)
	if !ok {
		return 0, false
	}

	switch e.Op {
	case ir.OpAdd:
		return x + y, true
	case ir.OpSub:
		return x - y, true
	case ir.OpAnd:
		return x & y, true
	case ir.OpOr:
		return x | y, true
	case ir.OpXor:
		return x ^ y, true
	case ir.OpShl:
		return x << uint(y), true
	case ir.OpShr:
		return x >> uint(y), true

	// Comparisons yield flags
	case ir.OpEq:
		return boolInt(x == y), true
	case ir.OpNe:
		return boolInt(x != y), true
	case ir.OpLt:
		return boolInt(x < y), true
	case ir.OpGe:
		return boolInt(x >= y), true
	case ir.OpGt:
		return boolInt(x > y), true
	case ir.OpLogicalAnd:
		return boolInt(x != 0 && y != 0), true
	case ir.OpLogicalOr:
		return boolInt(x != 0 || y != 0), true
	}
	return 0, false
}

func (c *ConstantFoldingStage) evalPhi(phi *ir.Phi, constants map[*ir.Value]int) (int, bool) {
	if len(phi.Operands) == 0 {
		return 0, false
	}
	first, ok := constants[phi.Operands[0].Value]
	if !ok {
		return 0, false
	}
	for _, op := range phi.Operands[1:] {
		if n, ok := constants[op.Value]; !ok || n != first {
			return 0, false
		}
	}
	return first, true
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
