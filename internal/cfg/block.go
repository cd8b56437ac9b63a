// Package cfg builds the control-flow graph of a 6502 instruction stream.
//
// WHAT IS A BASIC BLOCK?
// A basic block is a straight-line run of instructions with:
// - One entry point (the first instruction, usually labeled)
// - One exit point (a branch, jump, return, or a fall-through)
// - No jumps in or out in the middle
//
// OWNERSHIP:
// Blocks live in one flat arena (Graph.Blocks). Edges are BlockIDs into that
// arena, never pointers, so a cyclic graph holds no reference cycles and
// neighbor lookup stays O(1).
//
// EXAMPLE:
//
//	        LDX #$05        block 0: LDX #$05
//	Check:  DEX             block 1: DEX / BEQ Exit      succs: 3, 2
//	        BEQ Exit
//	        NOP             block 2: NOP / JMP Check     succs: 1
//	        JMP Check
//	Exit:   RTS             block 3: RTS                 succs: none
package cfg

import (
	"fmt"
	"strings"

	"github.com/hassan/decomp6502/internal/asm"
)

// BlockID indexes a block in Graph.Blocks.
type BlockID int

// NoBlock marks an absent edge (no taken target, no fall-through), and the
// function-entry pseudo predecessor in later stages.
const NoBlock BlockID = -1

func (id BlockID) String() string {
	if id == NoBlock {
		return "none"
	}
	return fmt.Sprintf("b%d", int(id))
}

// Block is a maximal run of instructions with a single entry and exit.
type Block struct {
	// ID is the block's index in the arena. IDs ascend with Line.
	ID BlockID

	// Label is the label on the first instruction, or "" for anonymous blocks
	Label string

	// Line is the source index of the first instruction
	Line int

	// Instructions in source order
	Instructions []asm.Instruction

	// Preds and Succs are symmetric: b in a.Succs iff a in b.Preds.
	// For a conditional branch Succs is [taken, fall-through].
	Preds []BlockID
	Succs []BlockID

	// Taken is the target of the final branch or jump, Next the fall-through
	// block. Either may be NoBlock.
	Taken BlockID
	Next  BlockID
}

// Name returns the label, or a synthetic name built from the source line.
func (b *Block) Name() string {
	if b.Label != "" {
		return b.Label
	}
	return fmt.Sprintf("L%d", b.Line)
}

// Terminator returns the last instruction of the block.
func (b *Block) Terminator() (asm.Instruction, bool) {
	if len(b.Instructions) == 0 {
		return asm.Instruction{}, false
	}
	return b.Instructions[len(b.Instructions)-1], true
}

// IsTerminal reports whether control never leaves the block to another
// block of the graph (return, halt, indirect jump, or end of input).
func (b *Block) IsTerminal() bool {
	return len(b.Succs) == 0
}

// String returns a human-readable representation of the block.
func (b *Block) String() string {
	var sb strings.Builder

	sb.WriteString(b.Name())
	sb.WriteString(":\n")

	if len(b.Preds) > 0 {
		sb.WriteString("  ; predecessors: ")
		for i, p := range b.Preds {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(p.String())
		}
		sb.WriteString("\n")
	}

	for _, ins := range b.Instructions {
		sb.WriteString("  ")
		sb.WriteString(ins.String())
		sb.WriteString("\n")
	}

	return sb.String()
}

// View is the read-only shape every graph analysis works on. IDs are in
// [0, Len()).
type View interface {
	Len() int
	Succs(id BlockID) []BlockID
	Preds(id BlockID) []BlockID
}

// Graph is the arena of blocks built from one instruction stream.
type Graph struct {
	Blocks []*Block

	labels map[string]BlockID
}

// Len returns the number of blocks.
func (g *Graph) Len() int { return len(g.Blocks) }

// Succs returns the successors of id.
func (g *Graph) Succs(id BlockID) []BlockID { return g.Blocks[id].Succs }

// Preds returns the predecessors of id.
func (g *Graph) Preds(id BlockID) []BlockID { return g.Blocks[id].Preds }

// Block returns the block with the given id.
func (g *Graph) Block(id BlockID) *Block { return g.Blocks[id] }

// Lookup returns the block that starts at label.
func (g *Graph) Lookup(label string) (BlockID, bool) {
	id, ok := g.labels[label]
	return id, ok
}

// addEdge links from -> to in both directions, ignoring duplicates.
func (g *Graph) addEdge(from, to BlockID) {
	src := g.Blocks[from]
	for _, s := range src.Succs {
		if s == to {
			return
		}
	}
	src.Succs = append(src.Succs, to)
	dst := g.Blocks[to]
	dst.Preds = append(dst.Preds, from)
}

// String dumps every block in source order.
func (g *Graph) String() string {
	var sb strings.Builder
	for i, b := range g.Blocks {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(b.String())
	}
	return sb.String()
}
