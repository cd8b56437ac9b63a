package cfg

import (
	"sort"

	"github.com/hassan/decomp6502/internal/asm"
)

// Builder splits an instruction stream into basic blocks and wires edges.
//
// ALGORITHM:
// 1. Index labels (a label defined twice is an error)
// 2. Mark leaders: the first line, every labeled line, and every line that
//    follows a branch, jump, return, or call to a no-return subroutine
// 3. Cut the stream at leaders; block IDs follow source order
// 4. Wire edges from each block's last instruction
//
// The input slice is never modified.
type Builder struct {
	noReturn map[string]bool
}

// NewBuilder creates a builder with no special subroutines.
func NewBuilder() *Builder {
	return &Builder{noReturn: make(map[string]bool)}
}

// SetNoReturn marks subroutines that never return to their caller, such as
// a jump-table dispatcher that pops its own return address. A JSR to one of
// them ends its block with no fall-through edge.
func (b *Builder) SetNoReturn(labels ...string) {
	for _, l := range labels {
		b.noReturn[l] = true
	}
}

// Build is shorthand for NewBuilder().Build(lines).
func Build(lines []asm.Line) (*Graph, error) {
	return NewBuilder().Build(lines)
}

// Build constructs the graph for lines.
func (b *Builder) Build(lines []asm.Line) (*Graph, error) {
	g := &Graph{labels: make(map[string]BlockID)}
	if len(lines) == 0 {
		return g, nil
	}

	labelPos := make(map[string]int)
	for pos, line := range lines {
		if line.Label == "" {
			continue
		}
		if first, dup := labelPos[line.Label]; dup {
			return nil, &DuplicateLabelError{
				Label:  line.Label,
				First:  lines[first].Index,
				Second: line.Index,
			}
		}
		labelPos[line.Label] = pos
	}

	leaders := b.leaders(lines)

	for i, start := range leaders {
		end := len(lines)
		if i+1 < len(leaders) {
			end = leaders[i+1]
		}
		block := &Block{
			ID:           BlockID(i),
			Label:        lines[start].Label,
			Line:         lines[start].Index,
			Instructions: make([]asm.Instruction, 0, end-start),
			Taken:        NoBlock,
			Next:         NoBlock,
		}
		for _, line := range lines[start:end] {
			block.Instructions = append(block.Instructions, line.Instruction)
		}
		if block.Label != "" {
			g.labels[block.Label] = block.ID
		}
		g.Blocks = append(g.Blocks, block)
	}

	for i := range leaders {
		end := len(lines)
		if i+1 < len(leaders) {
			end = leaders[i+1]
		}
		if err := b.wire(g, BlockID(i), lines[end-1]); err != nil {
			return nil, err
		}
	}

	return g, nil
}

// leaders returns the positions that start a block, ascending.
func (b *Builder) leaders(lines []asm.Line) []int {
	marked := map[int]bool{0: true}
	for pos, line := range lines {
		if line.Label != "" {
			marked[pos] = true
		}
		if pos+1 < len(lines) && b.endsBlock(line.Instruction) {
			marked[pos+1] = true
		}
	}

	leaders := make([]int, 0, len(marked))
	for pos := range marked {
		leaders = append(leaders, pos)
	}
	sort.Ints(leaders)
	return leaders
}

func (b *Builder) endsBlock(ins asm.Instruction) bool {
	if ins.Op.EndsBlock() {
		return true
	}
	return ins.Op.IsCall() && b.noReturn[ins.Operand.Address()]
}

// wire adds the outgoing edges of block id, whose last line is last.
func (b *Builder) wire(g *Graph, id BlockID, last asm.Line) error {
	block := g.Blocks[id]
	next := id + 1
	if int(next) >= len(g.Blocks) {
		next = NoBlock
	}

	ins := last.Instruction
	switch {
	case ins.Op.IsBranch():
		target, err := g.resolve(last)
		if err != nil {
			return err
		}
		block.Taken = target
		block.Next = next
		g.addEdge(id, target)
		if next != NoBlock {
			g.addEdge(id, next)
		}

	case ins.Op.IsJump():
		if ins.Mode == asm.Indirect {
			// Jump-table dispatch: targets are not known statically.
			return nil
		}
		target, err := g.resolve(last)
		if err != nil {
			return err
		}
		block.Taken = target
		g.addEdge(id, target)

	case ins.Op.IsReturn():
		// terminal

	case b.endsBlock(ins):
		// call that never returns

	default:
		if next != NoBlock {
			block.Next = next
			g.addEdge(id, next)
		}
	}
	return nil
}

func (g *Graph) resolve(line asm.Line) (BlockID, error) {
	label, _ := line.Instruction.Target()
	id, ok := g.labels[label]
	if !ok {
		return NoBlock, &UnresolvedLabelError{
			Label:       label,
			Line:        line.Index,
			Instruction: line.Instruction,
		}
	}
	return id, nil
}
