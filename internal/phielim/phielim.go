// Package phielim turns phi nodes into assignments to mutable variables.
//
// WHAT DOES PHI ELIMINATION PRODUCE?
// Each base that is the target of some phi becomes a mutable variable. At
// the end of every predecessor of a phi block, the emitter assigns each
// target the value it carries over that edge:
//
//	b1:  X_2 = phi(b0: X_1, b1: X_3)
//
//	b0:  ...; X := X_1
//	b1:  ...; X := X_3
//
// A phi result is then read from its variable. Bases that are never a phi
// target stay immutable and are inlined where they are used.
//
// ORDERING:
// The copies at the end of one block happen together. When one copy reads
// a variable another copy writes, the reader goes first. A cycle (A := X,
// X := A) is broken by saving one variable to a scratch slot first:
//
//	tmp0 := A_2
//	A    := X_2
//	X    := A_2 [A via tmp0]
//
// EXIT EDGES:
// The copies of a block run before it leaves, whichever successor it leaves
// to. When that block also exits a loop, an inlined value on the exit path
// may read a variable the copies just overwrote:
//
//	b1:  X_3 = (X_2 - 1); X := X_3; BNE b1
//	b2:  STX $00          reads X_3 = (X_2 - 1), but X now holds X_3
//
// The emitter checks Reads against the block's copies and either binds the
// value to a local before the copies or splits the edge.
package phielim

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hassan/decomp6502/internal/cfg"
	"github.com/hassan/decomp6502/internal/ir"
	"github.com/hassan/decomp6502/internal/ssa"
)

// Result is the assignment plan for one function.
type Result struct {
	// MutableVariables are the phi targets, sorted
	MutableVariables []ir.Base

	// BlockCopies holds the ordered copies to place at the end of each
	// predecessor of a phi block
	BlockCopies map[cfg.BlockID][]ir.Copy

	// Initial holds the copies for the edge from the caller into the
	// function entry
	Initial []ir.Copy

	// Temporaries lists the scratch slots the copies use
	Temporaries []ir.Base
}

// IsMutable reports whether b is assigned through copies.
func (r *Result) IsMutable(b ir.Base) bool {
	i := sort.Search(len(r.MutableVariables), func(i int) bool {
		return !ir.Less(r.MutableVariables[i], b)
	})
	return i < len(r.MutableVariables) && r.MutableVariables[i] == b
}

// Eliminate computes the mutable variables and copy lists of res.
func Eliminate(res *ssa.Result) *Result {
	out := &Result{BlockCopies: make(map[cfg.BlockID][]ir.Copy)}

	mutable := make(map[ir.Base]bool)
	raw := make(map[cfg.BlockID][]ir.Copy)
	var preds []cfg.BlockID

	for _, phi := range res.AllPhis() {
		mutable[phi.Target] = true
		for _, op := range phi.Operands {
			if _, ok := raw[op.Pred]; !ok {
				preds = append(preds, op.Pred)
			}
			raw[op.Pred] = addCopy(raw[op.Pred], ir.Copy{Target: phi.Target, Value: op.Value})
		}
	}

	for b := range mutable {
		out.MutableVariables = append(out.MutableVariables, b)
	}
	ir.SortBases(out.MutableVariables)

	temps := 0
	for _, p := range preds {
		copies, n := sequence(raw[p], mutable)
		if n > temps {
			temps = n
		}
		if p == cfg.NoBlock {
			out.Initial = copies
		} else {
			out.BlockCopies[p] = copies
		}
	}
	for i := 0; i < temps; i++ {
		out.Temporaries = append(out.Temporaries, ir.Temp(i))
	}

	return out
}

// addCopy adds c unless the list already assigns its target. Two phis for
// one base on different successors receive the same value from one
// predecessor.
func addCopy(copies []ir.Copy, c ir.Copy) []ir.Copy {
	for _, existing := range copies {
		if existing.Target == c.Target {
			return copies
		}
	}
	return append(copies, c)
}

// sequence orders one block's copies and returns how many scratch slots it
// needed.
//
// ALGORITHM:
// 1. Find the variables each copy reads.
// 2. Repeatedly emit the first pending copy whose target no other pending
//    copy still reads.
// 3. When every pending copy's target is still read (a cycle), save the
//    first one's target to a new scratch slot and send its readers there.
func sequence(copies []ir.Copy, mutable map[ir.Base]bool) ([]ir.Copy, int) {
	sort.Slice(copies, func(i, j int) bool { return ir.Less(copies[i].Target, copies[j].Target) })

	needs := make([]map[ir.Base]*ir.Value, len(copies))
	for i, c := range copies {
		needs[i] = Reads(c.Value, mutable)
	}

	redirect := make(map[ir.Base]ir.Base)
	done := make([]bool, len(copies))
	out := make([]ir.Copy, 0, len(copies))
	temps := 0

	blocked := func(i int) bool {
		for j := range copies {
			if j == i || done[j] {
				continue
			}
			if _, ok := needs[j][copies[i].Target]; ok {
				if _, saved := redirect[copies[i].Target]; !saved {
					return true
				}
			}
		}
		return false
	}

	for left := len(copies); left > 0; {
		next := -1
		for i := range copies {
			if !done[i] && !blocked(i) {
				next = i
				break
			}
		}

		if next < 0 {
			// cycle: save the first pending target
			for i := range copies {
				if done[i] {
					continue
				}
				slot := copies[i].Target
				tmp := ir.Temp(temps)
				temps++
				out = append(out, ir.Copy{Target: tmp, Value: heldValue(copies, needs, done, slot)})
				redirect[slot] = tmp
				break
			}
			continue
		}

		c := copies[next]
		for slot := range needs[next] {
			if tmp, ok := redirect[slot]; ok && slot != c.Target {
				if c.Reads == nil {
					c.Reads = make(map[ir.Base]ir.Base)
				}
				c.Reads[slot] = tmp
			}
		}
		out = append(out, c)
		done[next] = true
		left--
	}

	return out, temps
}

// heldValue returns the value a pending copy reads from slot.
func heldValue(copies []ir.Copy, needs []map[ir.Base]*ir.Value, done []bool, slot ir.Base) *ir.Value {
	for j := range copies {
		if done[j] {
			continue
		}
		if v, ok := needs[j][slot]; ok {
			return v
		}
	}
	return nil
}

// Reads returns the mutable variables evaluating v touches, each with the
// value found there. Phi results are read from their variable; other
// definitions are inlined, so their operands are followed.
func Reads(v *ir.Value, mutable map[ir.Base]bool) map[ir.Base]*ir.Value {
	out := make(map[ir.Base]*ir.Value)
	seen := make(map[*ir.Value]bool)

	var walk func(v *ir.Value)
	walk = func(v *ir.Value) {
		if v == nil || seen[v] {
			return
		}
		seen[v] = true
		if v.IsPhi() || v.IsLiveIn() {
			if mutable[v.Base] {
				if _, ok := out[v.Base]; !ok {
					out[v.Base] = v
				}
			}
			return
		}
		for _, r := range ir.Refs(v.Def) {
			walk(r)
		}
	}
	walk(v)

	return out
}

func (r *Result) String() string {
	var sb strings.Builder
	sb.WriteString("mutable:")
	for _, b := range r.MutableVariables {
		sb.WriteString(" " + b.VarName())
	}
	sb.WriteString("\n")

	if len(r.Initial) > 0 {
		sb.WriteString("entry:\n")
		for _, c := range r.Initial {
			sb.WriteString("  " + c.String() + "\n")
		}
	}

	blocks := make([]cfg.BlockID, 0, len(r.BlockCopies))
	for b := range r.BlockCopies {
		blocks = append(blocks, b)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })
	for _, b := range blocks {
		fmt.Fprintf(&sb, "%s:\n", b)
		for _, c := range r.BlockCopies[b] {
			sb.WriteString("  " + c.String() + "\n")
		}
	}
	return sb.String()
}
