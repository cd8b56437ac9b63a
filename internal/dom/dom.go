// Package dom computes dominance over a block graph.
//
// WHAT IS DOMINANCE?
// Block A dominates block B if every path from the entry to B passes
// through A. Every block dominates itself. The immediate dominator of B is
// the closest strict dominator; these links form a tree rooted at the entry.
//
// ALGORITHM:
// Iterative data-flow over dominator sets:
//
//	Dom(entry) = {entry}
//	Dom(b)     = all reachable blocks
//	repeat until nothing changes:
//	    Dom(b) = {b} ∪ ⋂ Dom(p) for every reachable predecessor p
//
// Blocks are visited in reverse postorder, so most graphs settle in two or
// three sweeps. idom(b) is the strict dominator whose own set is exactly
// Dom(b) minus b.
//
// QUERIES:
// After the fixpoint the tree is numbered with a preorder/postorder walk, so
// Dominates is two integer comparisons instead of a set lookup.
//
// Unreachable blocks get no sets, no idom and no numbering.
package dom

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bitset"

	"github.com/hassan/decomp6502/internal/cfg"
)

// Tree is the dominator tree of one graph for one entry block.
type Tree struct {
	entry cfg.BlockID
	graph cfg.View

	rpo      []cfg.BlockID
	rpoIndex []int

	doms     []*bitset.BitSet
	idom     []cfg.BlockID
	children [][]cfg.BlockID

	preorder []cfg.BlockID
	pre      []int
	post     []int
	depth    []int

	iterations int
}

// Compute builds the dominator tree of g rooted at entry.
func Compute(g cfg.View, entry cfg.BlockID) *Tree {
	n := g.Len()
	t := &Tree{
		entry:    entry,
		graph:    g,
		rpoIndex: make([]int, n),
		doms:     make([]*bitset.BitSet, n),
		idom:     make([]cfg.BlockID, n),
		children: make([][]cfg.BlockID, n),
		pre:      make([]int, n),
		post:     make([]int, n),
		depth:    make([]int, n),
	}
	for i := range t.idom {
		t.idom[i] = cfg.NoBlock
		t.rpoIndex[i] = -1
		t.pre[i] = -1
		t.post[i] = -1
	}

	t.rpo = cfg.ReversePostorder(g, entry)
	if len(t.rpo) == 0 {
		return t
	}
	for i, id := range t.rpo {
		t.rpoIndex[id] = i
	}

	t.solve()
	t.link()
	t.number()
	return t
}

// solve runs the data-flow fixpoint over the reachable blocks.
func (t *Tree) solve() {
	n := uint(len(t.doms))
	all := bitset.New(n)
	for _, id := range t.rpo {
		all.Set(uint(id))
	}

	for _, id := range t.rpo {
		if id == t.entry {
			t.doms[id] = bitset.New(n).Set(uint(id))
		} else {
			t.doms[id] = all.Clone()
		}
	}

	for changed := true; changed; {
		changed = false
		t.iterations++

		for _, b := range t.rpo[1:] {
			var next *bitset.BitSet
			for _, p := range t.graph.Preds(b) {
				if t.doms[p] == nil {
					continue
				}
				if next == nil {
					next = t.doms[p].Clone()
				} else {
					next.InPlaceIntersection(t.doms[p])
				}
			}
			if next == nil {
				next = bitset.New(n)
			}
			next.Set(uint(b))

			if !next.Equal(t.doms[b]) {
				t.doms[b] = next
				changed = true
			}
		}
	}
}

// link derives idom and the child lists from the converged sets.
//
// The strict dominators of b form a chain, so their set sizes are all
// different and exactly one of them has |Dom(b)|-1 members.
func (t *Tree) link() {
	for _, b := range t.rpo[1:] {
		size := t.doms[b].Count()
		set := t.doms[b]
		for d, ok := set.NextSet(0); ok; d, ok = set.NextSet(d + 1) {
			if cfg.BlockID(d) == b {
				continue
			}
			if t.doms[d].Count() == size-1 {
				t.idom[b] = cfg.BlockID(d)
				break
			}
		}
		parent := t.idom[b]
		t.children[parent] = append(t.children[parent], b)
	}
}

// number assigns preorder/postorder numbers and depths with an explicit
// stack. Children are already in reverse postorder from link.
func (t *Tree) number() {
	type frame struct {
		id   cfg.BlockID
		next int
	}

	clock := 0
	stack := []frame{{id: t.entry}}
	t.pre[t.entry] = clock
	clock++
	t.preorder = append(t.preorder, t.entry)

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		kids := t.children[top.id]
		if top.next < len(kids) {
			c := kids[top.next]
			top.next++
			t.pre[c] = clock
			clock++
			t.depth[c] = t.depth[top.id] + 1
			t.preorder = append(t.preorder, c)
			stack = append(stack, frame{id: c})
			continue
		}
		t.post[top.id] = clock
		clock++
		stack = stack[:len(stack)-1]
	}
}

// Entry returns the root of the tree.
func (t *Tree) Entry() cfg.BlockID { return t.entry }

// Reachable reports whether b is reachable from the entry.
func (t *Tree) Reachable(b cfg.BlockID) bool {
	return b >= 0 && int(b) < len(t.rpoIndex) && t.rpoIndex[b] >= 0
}

// Idom returns the immediate dominator of b, or NoBlock for the entry and
// unreachable blocks.
func (t *Tree) Idom(b cfg.BlockID) cfg.BlockID {
	if !t.Reachable(b) {
		return cfg.NoBlock
	}
	return t.idom[b]
}

// Dominates reports whether a dominates b. Every reachable block dominates
// itself.
func (t *Tree) Dominates(a, b cfg.BlockID) bool {
	if !t.Reachable(a) || !t.Reachable(b) {
		return false
	}
	return t.pre[a] <= t.pre[b] && t.post[b] <= t.post[a]
}

// StrictlyDominates reports whether a dominates b and a != b.
func (t *Tree) StrictlyDominates(a, b cfg.BlockID) bool {
	return a != b && t.Dominates(a, b)
}

// Children returns the blocks immediately dominated by b, in reverse
// postorder.
func (t *Tree) Children(b cfg.BlockID) []cfg.BlockID {
	if !t.Reachable(b) {
		return nil
	}
	return t.children[b]
}

// Preorder returns the reachable blocks in dominator-tree preorder: every
// block after its immediate dominator, siblings in reverse postorder.
func (t *Tree) Preorder() []cfg.BlockID { return t.preorder }

// ReversePostorder returns the reachable blocks in CFG reverse postorder.
func (t *Tree) ReversePostorder() []cfg.BlockID { return t.rpo }

// RPOIndex returns b's position in ReversePostorder, or -1.
func (t *Tree) RPOIndex(b cfg.BlockID) int {
	if b < 0 || int(b) >= len(t.rpoIndex) {
		return -1
	}
	return t.rpoIndex[b]
}

// Depth returns the number of tree edges between the entry and b.
func (t *Tree) Depth(b cfg.BlockID) int {
	if !t.Reachable(b) {
		return -1
	}
	return t.depth[b]
}

// Dominators returns Dom(b), ascending by block ID.
func (t *Tree) Dominators(b cfg.BlockID) []cfg.BlockID {
	if !t.Reachable(b) {
		return nil
	}
	set := t.doms[b]
	out := make([]cfg.BlockID, 0, set.Count())
	for d, ok := set.NextSet(0); ok; d, ok = set.NextSet(d + 1) {
		out = append(out, cfg.BlockID(d))
	}
	return out
}

// Iterations returns how many sweeps the fixpoint took, including the final
// sweep that changed nothing.
func (t *Tree) Iterations() int { return t.iterations }

// String renders the tree one block per line, indented by depth.
func (t *Tree) String() string {
	var sb strings.Builder
	for _, b := range t.preorder {
		sb.WriteString(strings.Repeat("  ", t.depth[b]))
		sb.WriteString(b.String())
		if idom := t.idom[b]; idom != cfg.NoBlock {
			fmt.Fprintf(&sb, " (idom %s)", idom)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func sortIDs(ids []cfg.BlockID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
