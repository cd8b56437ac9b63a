package cfg

import (
	"fmt"

	"github.com/hassan/decomp6502/internal/asm"
)

// Verify checks that the graph is well-formed.
// Returns a list of errors found.
//
// CHECKS:
// - Every block sits at its own ID in the arena, in ascending source order
// - Every edge points inside the arena
// - Edges are symmetric (b in a.Succs iff a in b.Preds)
// - Successor shape matches the terminator (returns have none, conditional
//   branches have taken plus fall-through)
func Verify(g *Graph) []error {
	errors := make([]error, 0)

	inRange := func(id BlockID) bool {
		return id >= 0 && int(id) < len(g.Blocks)
	}

	for i, b := range g.Blocks {
		if b.ID != BlockID(i) {
			errors = append(errors, fmt.Errorf("block %s stored at index %d", b.ID, i))
		}
		if i > 0 && b.Line <= g.Blocks[i-1].Line {
			errors = append(errors, fmt.Errorf("block %s out of source order", b.ID))
		}
		if len(b.Instructions) == 0 {
			errors = append(errors, fmt.Errorf("block %s is empty", b.ID))
		}

		for _, s := range b.Succs {
			if !inRange(s) {
				errors = append(errors, fmt.Errorf("block %s has successor %s outside the graph", b.ID, s))
				continue
			}
			if !contains(g.Blocks[s].Preds, b.ID) {
				errors = append(errors, fmt.Errorf("edge %s -> %s missing from predecessors", b.ID, s))
			}
		}
		for _, p := range b.Preds {
			if !inRange(p) {
				errors = append(errors, fmt.Errorf("block %s has predecessor %s outside the graph", b.ID, p))
				continue
			}
			if !contains(g.Blocks[p].Succs, b.ID) {
				errors = append(errors, fmt.Errorf("edge %s -> %s missing from successors", p, b.ID))
			}
		}

		last, ok := b.Terminator()
		if !ok {
			continue
		}
		switch {
		case last.Op.IsReturn() && len(b.Succs) != 0:
			errors = append(errors, fmt.Errorf("block %s ends in %s but has successors", b.ID, last.Op))
		case last.Op.IsBranch() && b.Taken == NoBlock:
			errors = append(errors, fmt.Errorf("block %s ends in %s without a target", b.ID, last.Op))
		case last.Op == asm.JMP && last.Mode != asm.Indirect && len(b.Succs) != 1:
			errors = append(errors, fmt.Errorf("block %s ends in JMP with %d successors", b.ID, len(b.Succs)))
		}
	}

	return errors
}

func contains(ids []BlockID, id BlockID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
