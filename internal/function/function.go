// Package function groups blocks into function units.
//
// An entry is the first block, any JSR target, or a label the caller names
// explicitly. A function is every block reachable from its entry without
// stepping onto another entry; a JMP into another entry is a tail call, not
// shared code. JSR itself stays inside the caller as an opaque operation.
package function

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/hassan/decomp6502/internal/cfg"
)

// Function is one unit of analysis.
type Function struct {
	Name   string
	Start  cfg.BlockID
	Blocks []cfg.BlockID

	members *bitset.BitSet
}

// Contains reports whether b belongs to the function.
func (f *Function) Contains(b cfg.BlockID) bool {
	return b >= 0 && f.members.Test(uint(b))
}

func (f *Function) String() string {
	return fmt.Sprintf("%s (%s, %d blocks)", f.Name, f.Start, len(f.Blocks))
}

// UnknownEntryError reports an extra entry label that no line defines.
type UnknownEntryError struct {
	Label string
}

func (e *UnknownEntryError) Error() string {
	return fmt.Sprintf("entry %q: no such label", e.Label)
}

// Partition splits g into functions, ordered by entry block. extraStarts
// names labels that begin functions even though no JSR targets them
// (interrupt vectors, jump-table entries).
func Partition(g *cfg.Graph, extraStarts ...string) ([]*Function, error) {
	if g.Len() == 0 {
		return nil, nil
	}

	entries := bitset.New(uint(g.Len()))
	entries.Set(0)

	for _, b := range g.Blocks {
		for _, ins := range b.Instructions {
			if !ins.Op.IsCall() {
				continue
			}
			target, _ := ins.Target()
			if id, ok := g.Lookup(target); ok {
				entries.Set(uint(id))
			}
		}
	}
	for _, label := range extraStarts {
		id, ok := g.Lookup(label)
		if !ok {
			return nil, &UnknownEntryError{Label: label}
		}
		entries.Set(uint(id))
	}

	var fns []*Function
	for e, ok := entries.NextSet(0); ok; e, ok = entries.NextSet(e + 1) {
		fns = append(fns, collect(g, cfg.BlockID(e), entries))
	}
	return fns, nil
}

// collect gathers the blocks reachable from start without entering
// another entry.
func collect(g *cfg.Graph, start cfg.BlockID, entries *bitset.BitSet) *Function {
	members := bitset.New(uint(g.Len()))
	members.Set(uint(start))
	queue := []cfg.BlockID{start}

	for len(queue) > 0 {
		b := queue[0]
		queue = queue[1:]
		for _, s := range g.Succs(b) {
			if members.Test(uint(s)) || (s != start && entries.Test(uint(s))) {
				continue
			}
			members.Set(uint(s))
			queue = append(queue, s)
		}
	}

	fn := &Function{
		Name:    g.Block(start).Name(),
		Start:   start,
		members: members,
	}
	for i, ok := members.NextSet(0); ok; i, ok = members.NextSet(i + 1) {
		fn.Blocks = append(fn.Blocks, cfg.BlockID(i))
	}
	return fn
}

// View is a graph restricted to one function: the arena keeps its IDs, but
// only member blocks have edges, and only to other members.
type View struct {
	fn    *Function
	succs [][]cfg.BlockID
	preds [][]cfg.BlockID
}

// View restricts g to f's blocks.
func (f *Function) View(g cfg.View) *View {
	v := &View{
		fn:    f,
		succs: make([][]cfg.BlockID, g.Len()),
		preds: make([][]cfg.BlockID, g.Len()),
	}
	for _, b := range f.Blocks {
		for _, s := range g.Succs(b) {
			if f.Contains(s) {
				v.succs[b] = append(v.succs[b], s)
			}
		}
		for _, p := range g.Preds(b) {
			if f.Contains(p) {
				v.preds[b] = append(v.preds[b], p)
			}
		}
	}
	return v
}

// Len returns the size of the underlying arena.
func (v *View) Len() int { return len(v.succs) }

// Succs returns the in-function successors of id.
func (v *View) Succs(id cfg.BlockID) []cfg.BlockID { return v.succs[id] }

// Preds returns the in-function predecessors of id.
func (v *View) Preds(id cfg.BlockID) []cfg.BlockID { return v.preds[id] }

// Function returns the function the view is restricted to.
func (v *View) Function() *Function { return v.fn }
