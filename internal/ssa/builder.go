// Package ssa converts one function into SSA form.
//
// ALGORITHM:
// 1. Visit blocks in dominator-tree preorder, siblings in reverse postorder.
//    Every forward predecessor of a block is then visited before it; only
//    predecessors over retreating edges (loop back-edges) are not.
// 2. At a block with several incoming edges, or a loop header, place a phi
//    for base X when the incoming values for X differ, when X is written
//    anywhere in the loop the block heads, or when an unvisited edge that is
//    not a back-edge arrives (irreducible flow) and X is written anywhere
//    in the function.
// 3. Lower every instruction in order, threading an immutable ir.State.
// 4. After the pass, fill the phi operands that come over retreating edges
//    from the exit states of their source blocks.
//
// A base read before any definition yields its version-0 live-in value,
// shared by every read of that base in the function.
package ssa

import (
	"github.com/hassan/decomp6502/internal/asm"
	"github.com/hassan/decomp6502/internal/cfg"
	"github.com/hassan/decomp6502/internal/dom"
	"github.com/hassan/decomp6502/internal/function"
	"github.com/hassan/decomp6502/internal/ir"
	"github.com/hassan/decomp6502/internal/loops"
	"github.com/hassan/decomp6502/internal/lower"
)

// builder holds the state of one construction.
type builder struct {
	g    *cfg.Graph
	fn   *function.Function
	view *function.View
	tree *dom.Tree

	headers map[cfg.BlockID]*loops.Loop

	tracked    []ir.Base
	loopWrites map[cfg.BlockID]map[ir.Base]bool
	fnWrites   map[ir.Base]bool

	versions map[ir.Base]int
	seq      int
	liveIns  map[ir.Base]*ir.Value
	visited  map[cfg.BlockID]bool
	deferred []pending

	res *Result
}

// pending is a phi operand that waits for its predecessor's exit state.
type pending struct {
	phi  *ir.Phi
	pred cfg.BlockID
}

// Build constructs SSA form for fn. tree and lps must be computed on
// fn.View(g) from fn.Start.
func Build(g *cfg.Graph, fn *function.Function, tree *dom.Tree, lps []*loops.Loop) *Result {
	b := &builder{
		g:        g,
		fn:       fn,
		view:     fn.View(g),
		tree:     tree,
		headers:  loops.ByHeader(lps),
		versions: make(map[ir.Base]int),
		liveIns:  make(map[ir.Base]*ir.Value),
		visited:  make(map[cfg.BlockID]bool),
		res: &Result{
			Function:    fn,
			Entry:       tree.Entry(),
			EntryStates: make(map[cfg.BlockID]ir.State),
			ExitStates:  make(map[cfg.BlockID]ir.State),
			Phis:        make(map[cfg.BlockID][]*ir.Phi),
			Steps:       make(map[cfg.BlockID][]lower.Step),
			Conditions:  make(map[cfg.BlockID]ir.Expr),
		},
	}

	b.scan(lps)

	for _, id := range tree.Preorder() {
		b.visit(id)
	}
	b.finish()

	return b.res
}

// scan collects tracked memory cells and the bases each loop writes.
func (b *builder) scan(lps []*loops.Loop) {
	seen := make(map[ir.Base]bool)
	for _, id := range b.fn.Blocks {
		for _, ins := range b.g.Block(id).Instructions {
			if directOperand(ins) {
				m := ir.Mem(ins.Operand.Address())
				if !seen[m] {
					seen[m] = true
					b.tracked = append(b.tracked, m)
				}
			}
		}
	}
	ir.SortBases(b.tracked)

	blockWrites := make(map[cfg.BlockID]map[ir.Base]bool)
	b.fnWrites = make(map[ir.Base]bool)
	for _, id := range b.fn.Blocks {
		w := make(map[ir.Base]bool)
		for _, ins := range b.g.Block(id).Instructions {
			written, clobbers := lower.Writes(ins)
			for _, x := range written {
				w[x] = true
			}
			if clobbers {
				for _, x := range b.tracked {
					w[x] = true
				}
			}
		}
		blockWrites[id] = w
		for x := range w {
			b.fnWrites[x] = true
		}
	}

	b.loopWrites = make(map[cfg.BlockID]map[ir.Base]bool)
	for _, l := range lps {
		w := make(map[ir.Base]bool)
		for _, id := range l.Body {
			for x := range blockWrites[id] {
				w[x] = true
			}
		}
		b.loopWrites[l.Header] = w
	}
}

// incoming is one edge into the block being visited.
type incoming struct {
	pred  cfg.BlockID
	state ir.State
	ready bool
}

func (b *builder) visit(id cfg.BlockID) {
	in := b.incoming(id)
	_, isHeader := b.headers[id]

	var state ir.State
	switch {
	case len(in) == 0:
		// function entry with no incoming edges
	case len(in) == 1 && !isHeader:
		state = in[0].state
	default:
		state = b.merge(id, in)
	}
	b.res.EntryStates[id] = state

	block := b.g.Block(id)
	steps := make([]lower.Step, 0, len(block.Instructions))
	for _, ins := range block.Instructions {
		step := lower.Lower(ins, env{state: state, b: b})
		for _, v := range step.Defs {
			b.number(v, id)
		}
		state = state.Extend(step.Defs...)
		steps = append(steps, step)
	}
	b.res.Steps[id] = steps

	if last, ok := block.Terminator(); ok && last.Op.IsBranch() {
		b.res.Conditions[id] = lower.BranchCondition(last.Op, env{state: state, b: b})
	}

	b.res.ExitStates[id] = state
	b.visited[id] = true
}

// incoming lists the edges into id. The function entry also receives the
// edge from the caller, whose state is empty.
func (b *builder) incoming(id cfg.BlockID) []incoming {
	var in []incoming
	if id == b.tree.Entry() && len(b.view.Preds(id)) > 0 {
		in = append(in, incoming{pred: cfg.NoBlock, ready: true})
	}
	for _, p := range b.view.Preds(id) {
		if !b.tree.Reachable(p) {
			continue
		}
		in = append(in, incoming{pred: p, state: b.res.ExitStates[p], ready: b.visited[p]})
	}
	return in
}

// merge builds the entry state of a join or loop header, placing phis.
func (b *builder) merge(id cfg.BlockID, in []incoming) ir.State {
	var ready []incoming
	irreducible := false
	for _, e := range in {
		if e.ready {
			ready = append(ready, e)
		} else if !b.isBackEdge(e.pred, id) {
			irreducible = true
		}
	}

	candidates := make(map[ir.Base]bool)
	for _, e := range ready {
		for _, x := range e.state.Bases() {
			candidates[x] = true
		}
	}
	for x := range b.loopWrites[id] {
		candidates[x] = true
	}
	if irreducible {
		for x := range b.fnWrites {
			candidates[x] = true
		}
	}

	order := make([]ir.Base, 0, len(candidates))
	for x := range candidates {
		order = append(order, x)
	}
	ir.SortBases(order)

	var state ir.State
	bound := make([]*ir.Value, 0, len(order))
	for _, x := range order {
		if !irreducible && !b.loopWrites[id][x] && converges(b, ready, x) {
			bound = append(bound, b.incomingValue(ready[0], x))
			continue
		}

		phi := &ir.Phi{Block: id, Target: x}
		phi.Result = &ir.Value{Base: x, Def: &ir.PhiExpr{Phi: phi}}
		b.number(phi.Result, id)
		for _, e := range in {
			if e.ready {
				phi.SetOperand(e.pred, b.incomingValue(e, x))
			} else {
				phi.SetOperand(e.pred, nil)
				b.deferred = append(b.deferred, pending{phi: phi, pred: e.pred})
			}
		}
		b.res.Phis[id] = append(b.res.Phis[id], phi)
		bound = append(bound, phi.Result)
	}
	return state.Extend(bound...)
}

// converges reports whether every visited edge supplies the same value.
func converges(b *builder, ready []incoming, x ir.Base) bool {
	first := b.incomingValue(ready[0], x)
	for _, e := range ready[1:] {
		if b.incomingValue(e, x) != first {
			return false
		}
	}
	return true
}

// isBackEdge reports whether from -> to closes a loop headed by to.
func (b *builder) isBackEdge(from, to cfg.BlockID) bool {
	l, ok := b.headers[to]
	if !ok {
		return false
	}
	for _, e := range l.BackEdges {
		if e.From == from {
			return true
		}
	}
	return false
}

// incomingValue is the value of x at the end of an incoming edge.
func (b *builder) incomingValue(e incoming, x ir.Base) *ir.Value {
	if v, ok := e.state.Get(x); ok {
		return v
	}
	return b.liveIn(x)
}

// number assigns the next version of v's base.
func (b *builder) number(v *ir.Value, block cfg.BlockID) {
	b.versions[v.Base]++
	b.seq++
	v.Version = b.versions[v.Base]
	v.Block = block
	v.Seq = b.seq
	b.res.Values = append(b.res.Values, v)
}

func (b *builder) liveIn(x ir.Base) *ir.Value {
	if v, ok := b.liveIns[x]; ok {
		return v
	}
	v := ir.LiveIn(x)
	b.liveIns[x] = v
	return v
}

// finish fills deferred phi operands and collects live-ins.
func (b *builder) finish() {
	for _, p := range b.deferred {
		e := incoming{pred: p.pred, state: b.res.ExitStates[p.pred], ready: true}
		p.phi.SetOperand(p.pred, b.incomingValue(e, p.phi.Target))
	}

	for _, v := range b.liveIns {
		b.res.LiveIns = append(b.res.LiveIns, v)
	}
	sortValues(b.res.LiveIns)
	b.res.Tracked = b.tracked
	b.res.Order = b.tree.Preorder()
}

// env adapts a state to lower.Env.
type env struct {
	state ir.State
	b     *builder
}

func (e env) Read(x ir.Base) *ir.Value {
	if v, ok := e.state.Get(x); ok {
		return v
	}
	return e.b.liveIn(x)
}

func (e env) Tracked() []ir.Base { return e.b.tracked }

// directOperand reports whether ins reads or writes a tracked memory cell.
func directOperand(ins asm.Instruction) bool {
	return ins.Mode.IsDirect() && !ins.Op.IsJump() && !ins.Op.IsCall()
}
