package asm

// Constructors for the common instruction shapes. They keep hand-written
// listings (tests, fixtures) close to how the assembly reads.

// Op0 builds an implied-mode instruction such as NOP or INX.
func Op0(op Op) Instruction {
	return Instruction{Op: op, Mode: Implied}
}

// Acc builds an accumulator-mode shift or rotate (ASL A).
func Acc(op Op) Instruction {
	return Instruction{Op: op, Mode: Accumulator}
}

// Imm builds an immediate-mode instruction (LDA #value).
func Imm(op Op, value int) Instruction {
	return Instruction{Op: op, Mode: Immediate, Operand: Operand{Value: value}}
}

// Mem builds a direct memory access to a symbolic address. Symbols written
// as "$xx" select zero-page mode, anything else absolute mode.
func Mem(op Op, addr string) Instruction {
	mode := Absolute
	if len(addr) == 3 && addr[0] == '$' {
		mode = ZeroPage
	}
	return Instruction{Op: op, Mode: mode, Operand: Operand{Symbol: addr}}
}

// MemX builds an X-indexed access (STA addr,X).
func MemX(op Op, addr string) Instruction {
	return Instruction{Op: op, Mode: AbsoluteX, Operand: Operand{Symbol: addr}}
}

// MemY builds a Y-indexed access (LDA addr,Y).
func MemY(op Op, addr string) Instruction {
	return Instruction{Op: op, Mode: AbsoluteY, Operand: Operand{Symbol: addr}}
}

// IndY builds an indirect-indexed access (LDA (ptr),Y).
func IndY(op Op, ptr string) Instruction {
	return Instruction{Op: op, Mode: IndirectY, Operand: Operand{Symbol: ptr}}
}

// Branch builds a conditional branch to label.
func Branch(op Op, label string) Instruction {
	return Instruction{Op: op, Mode: Relative, Operand: Operand{Symbol: label}}
}

// Jump builds JMP label.
func Jump(label string) Instruction {
	return Instruction{Op: JMP, Mode: Absolute, Operand: Operand{Symbol: label}}
}

// Call builds JSR label.
func Call(label string) Instruction {
	return Instruction{Op: JSR, Mode: Absolute, Operand: Operand{Symbol: label}}
}

// Listing accumulates lines in source order, attaching a pending label to the
// next instruction added.
//
// EXAMPLE:
//
//	lines := NewListing().
//		Label("Loop").Add(Op0(DEY)).
//		Add(Branch(BPL, "Loop")).
//		Add(Op0(RTS)).
//		Lines()
type Listing struct {
	lines   []Line
	pending string
}

// NewListing creates an empty listing.
func NewListing() *Listing {
	return &Listing{}
}

// Label attaches name to the next instruction.
func (l *Listing) Label(name string) *Listing {
	l.pending = name
	return l
}

// Add appends an instruction, consuming any pending label.
func (l *Listing) Add(ins ...Instruction) *Listing {
	for _, in := range ins {
		l.lines = append(l.lines, Line{
			Label:       l.pending,
			Instruction: in,
			Index:       len(l.lines),
		})
		l.pending = ""
	}
	return l
}

// Lines returns a copy of the accumulated lines.
func (l *Listing) Lines() []Line {
	out := make([]Line, len(l.lines))
	copy(out, l.lines)
	return out
}
