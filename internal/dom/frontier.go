package dom

import "github.com/hassan/decomp6502/internal/cfg"

// Frontiers returns the dominance frontier of every block, indexed by ID.
//
// WHAT IS A DOMINANCE FRONTIER?
// DF(a) holds the blocks where a's dominance ends: b is in DF(a) if a
// dominates a predecessor of b but does not strictly dominate b. These are
// exactly the join points where a definition made in a may meet a different
// one, which is where phi nodes go.
//
// ALGORITHM (walk up from each join):
//
//	for each join block b:
//	    for each predecessor p:
//	        runner = p
//	        while runner != idom(b):
//	            DF(runner) += b
//	            runner = idom(runner)
//
// The entry counts as a join when it has predecessors, since control also
// arrives from outside the function.
func (t *Tree) Frontiers() [][]cfg.BlockID {
	df := make([][]cfg.BlockID, len(t.idom))
	seen := make([]map[cfg.BlockID]bool, len(t.idom))

	for _, b := range t.rpo {
		preds := t.reachablePreds(b)
		if len(preds) < 2 && !(b == t.entry && len(preds) > 0) {
			continue
		}
		for _, p := range preds {
			for runner := p; runner != cfg.NoBlock && runner != t.idom[b]; runner = t.idom[runner] {
				if seen[runner] == nil {
					seen[runner] = make(map[cfg.BlockID]bool)
				}
				if !seen[runner][b] {
					seen[runner][b] = true
					df[runner] = append(df[runner], b)
				}
			}
		}
	}

	for _, ids := range df {
		sortIDs(ids)
	}
	return df
}

func (t *Tree) reachablePreds(b cfg.BlockID) []cfg.BlockID {
	var out []cfg.BlockID
	for _, p := range t.graph.Preds(b) {
		if t.Reachable(p) {
			out = append(out, p)
		}
	}
	return out
}
