// Package loops finds natural loops from dominance.
//
// WHAT IS A NATURAL LOOP?
// An edge from -> to is a back-edge when to dominates from. The target is
// the loop header; the body is the header plus every block that reaches a
// back-edge source without passing through the header.
//
// EXAMPLE:
//
//	        LDX #$05
//	Check:  DEX          <- header
//	        BEQ Exit
//	        NOP          <- back-edge source (JMP Check)
//	        JMP Check
//	Exit:   RTS          <- exit
//
// Back-edges sharing a header form one loop. Loops nest when one body is
// contained in another with a different header.
package loops

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bits-and-blooms/bitset"

	"github.com/hassan/decomp6502/internal/cfg"
	"github.com/hassan/decomp6502/internal/dom"
)

// Edge is a control-flow edge.
type Edge struct {
	From cfg.BlockID
	To   cfg.BlockID
}

func (e Edge) String() string { return fmt.Sprintf("%s->%s", e.From, e.To) }

// Loop is one natural loop.
type Loop struct {
	Header    cfg.BlockID
	BackEdges []Edge

	// Body holds the header and every block of the loop, ascending
	Body []cfg.BlockID

	// Exits are blocks outside the body entered from inside it, ascending.
	// Empty for loops that never terminate.
	Exits []cfg.BlockID

	// Parent is the smallest loop enclosing this one, or nil
	Parent *Loop

	// Depth is 1 for outermost loops
	Depth int

	members *bitset.BitSet
}

// Contains reports whether b is in the loop body.
func (l *Loop) Contains(b cfg.BlockID) bool {
	return b >= 0 && l.members.Test(uint(b))
}

// NestsIn reports whether l is nested inside other: a different header and
// a body contained in other's body.
func (l *Loop) NestsIn(other *Loop) bool {
	if l == other || l.Header == other.Header {
		return false
	}
	return other.members.IsSuperSet(l.members)
}

func (l *Loop) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "loop %s depth=%d body=%v", l.Header, l.Depth, l.Body)
	if len(l.Exits) > 0 {
		fmt.Fprintf(&sb, " exits=%v", l.Exits)
	}
	fmt.Fprintf(&sb, " back=%v", l.BackEdges)
	return sb.String()
}

// Detect returns the natural loops of g, ordered by header. Block IDs
// follow source order, so this is ascending header source position.
// Blocks the tree marks unreachable are ignored.
//
// ALGORITHM:
// 1. Collect back-edges (from, to) where to dominates from, grouped by to
// 2. For each header, walk predecessors from every back-edge source and
//    stop at the header; what the walk touches is the body
// 3. Exits are successors of body blocks that fall outside the body
// 4. Link every loop to the smallest loop whose body contains it
func Detect(g cfg.View, tree *dom.Tree) []*Loop {
	byHeader := make(map[cfg.BlockID]*Loop)
	var loops []*Loop

	for id := 0; id < g.Len(); id++ {
		from := cfg.BlockID(id)
		if !tree.Reachable(from) {
			continue
		}
		for _, to := range g.Succs(from) {
			if !tree.Dominates(to, from) {
				continue
			}
			l, ok := byHeader[to]
			if !ok {
				l = &Loop{Header: to}
				byHeader[to] = l
				loops = append(loops, l)
			}
			l.BackEdges = append(l.BackEdges, Edge{From: from, To: to})
		}
	}

	for _, l := range loops {
		l.members = body(g, tree, l)
		l.Body = toIDs(l.members)
		l.Exits = exits(g, l)
		check(l)
	}

	sort.Slice(loops, func(i, j int) bool { return loops[i].Header < loops[j].Header })
	nest(loops)
	return loops
}

// body walks predecessors from each back-edge source, stopping at the header.
func body(g cfg.View, tree *dom.Tree, l *Loop) *bitset.BitSet {
	members := bitset.New(uint(g.Len()))
	members.Set(uint(l.Header))

	var work []cfg.BlockID
	for _, e := range l.BackEdges {
		if !members.Test(uint(e.From)) {
			members.Set(uint(e.From))
			work = append(work, e.From)
		}
	}

	for len(work) > 0 {
		b := work[len(work)-1]
		work = work[:len(work)-1]
		for _, p := range g.Preds(b) {
			if !tree.Reachable(p) || members.Test(uint(p)) {
				continue
			}
			members.Set(uint(p))
			work = append(work, p)
		}
	}
	return members
}

func exits(g cfg.View, l *Loop) []cfg.BlockID {
	seen := bitset.New(uint(g.Len()))
	var out []cfg.BlockID
	for _, b := range l.Body {
		for _, s := range g.Succs(b) {
			if l.members.Test(uint(s)) || seen.Test(uint(s)) {
				continue
			}
			seen.Set(uint(s))
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// nest assigns Parent and Depth. Larger bodies are linked first so a
// parent's depth is known before its children are visited.
func nest(loops []*Loop) {
	bySize := make([]*Loop, len(loops))
	copy(bySize, loops)
	sort.SliceStable(bySize, func(i, j int) bool {
		return bySize[i].members.Count() > bySize[j].members.Count()
	})

	for i, l := range bySize {
		for _, outer := range bySize[:i] {
			if !l.NestsIn(outer) {
				continue
			}
			if l.Parent == nil || outer.members.Count() < l.Parent.members.Count() {
				l.Parent = outer
			}
		}
		l.Depth = 1
		if l.Parent != nil {
			l.Depth = l.Parent.Depth + 1
		}
	}
}

func toIDs(set *bitset.BitSet) []cfg.BlockID {
	out := make([]cfg.BlockID, 0, set.Count())
	for i, ok := set.NextSet(0); ok; i, ok = set.NextSet(i + 1) {
		out = append(out, cfg.BlockID(i))
	}
	return out
}

// ByHeader indexes loops by their header block.
func ByHeader(loops []*Loop) map[cfg.BlockID]*Loop {
	m := make(map[cfg.BlockID]*Loop, len(loops))
	for _, l := range loops {
		m[l.Header] = l
	}
	return m
}

// Innermost returns the deepest loop containing b, or nil.
func Innermost(loops []*Loop, b cfg.BlockID) *Loop {
	var best *Loop
	for _, l := range loops {
		if l.Contains(b) && (best == nil || l.Depth > best.Depth) {
			best = l
		}
	}
	return best
}
