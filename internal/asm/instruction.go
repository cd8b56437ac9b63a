package asm

import (
	"fmt"
	"strings"
)

// Mode is a 6502 addressing mode.
type Mode int

const (
	Implied     Mode = iota // CLC
	Accumulator             // ASL A
	Immediate               // LDA #$05
	ZeroPage                // LDA $00
	ZeroPageX               // LDA $00,X
	ZeroPageY               // LDX $00,Y
	Absolute                // LDA $0200
	AbsoluteX               // LDA $0200,X
	AbsoluteY               // LDA $0200,Y
	Indirect                // JMP ($FFFC)
	IndirectX               // LDA ($00,X)
	IndirectY               // LDA ($00),Y
	Relative                // BNE Loop

	modeCount
)

var modeNames = [modeCount]string{
	Implied:     "implied",
	Accumulator: "accumulator",
	Immediate:   "immediate",
	ZeroPage:    "zeropage",
	ZeroPageX:   "zeropage,x",
	ZeroPageY:   "zeropage,y",
	Absolute:    "absolute",
	AbsoluteX:   "absolute,x",
	AbsoluteY:   "absolute,y",
	Indirect:    "indirect",
	IndirectX:   "(indirect,x)",
	IndirectY:   "(indirect),y",
	Relative:    "relative",
}

func (m Mode) String() string {
	if m < 0 || m >= modeCount {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// IsDirect reports whether m addresses one fixed memory cell.
func (m Mode) IsDirect() bool {
	return m == ZeroPage || m == Absolute
}

// IsIndexed reports whether the effective address depends on X or Y.
func (m Mode) IsIndexed() bool {
	switch m {
	case ZeroPageX, ZeroPageY, AbsoluteX, AbsoluteY, IndirectX, IndirectY:
		return true
	}
	return false
}

// IsMemory reports whether m reads or writes memory.
func (m Mode) IsMemory() bool {
	switch m {
	case Implied, Accumulator, Immediate, Relative:
		return false
	}
	return m >= 0 && m < modeCount
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if m < 0 || m >= modeCount {
		return nil, fmt.Errorf("asm: cannot marshal invalid mode %d", int(m))
	}
	return []byte(modeNames[m]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for i, n := range modeNames {
		if n == name {
			*m = Mode(i)
			return nil
		}
	}
	return fmt.Errorf("asm: unknown addressing mode %q", text)
}

// Operand is the argument of an instruction: either a symbol (a label or a
// named address such as "PlayerX" or "$00") or a plain number.
type Operand struct {
	Symbol string `json:"symbol,omitempty"`
	Value  int    `json:"value,omitempty"`
}

// Address returns the identity of the memory cell the operand names.
// Numeric operands are rendered in hex so "$00" and 0 name the same cell.
func (o Operand) Address() string {
	if o.Symbol != "" {
		return o.Symbol
	}
	if o.Value > 0xFF {
		return fmt.Sprintf("$%04X", o.Value)
	}
	return fmt.Sprintf("$%02X", o.Value)
}

func (o Operand) String() string { return o.Address() }

// Instruction is one machine instruction. It carries no position or block
// identity; those live on Line and on the blocks built from it.
type Instruction struct {
	Op      Op      `json:"op"`
	Mode    Mode    `json:"mode"`
	Operand Operand `json:"operand"`
}

// Target returns the label a branch, jump or call transfers to, if the
// operand is symbolic.
func (ins Instruction) Target() (string, bool) {
	switch {
	case ins.Op.IsBranch(), ins.Op.IsJump() && ins.Mode != Indirect, ins.Op.IsCall():
		return ins.Operand.Address(), true
	}
	return "", false
}

func (ins Instruction) String() string {
	name := ins.Op.String()
	switch ins.Mode {
	case Implied:
		return name
	case Accumulator:
		return name + " A"
	case Immediate:
		if ins.Operand.Symbol != "" {
			return name + " #" + ins.Operand.Symbol
		}
		return fmt.Sprintf("%s #$%02X", name, ins.Operand.Value)
	case ZeroPageX, AbsoluteX:
		return name + " " + ins.Operand.Address() + ",X"
	case ZeroPageY, AbsoluteY:
		return name + " " + ins.Operand.Address() + ",Y"
	case Indirect:
		return name + " (" + ins.Operand.Address() + ")"
	case IndirectX:
		return name + " (" + ins.Operand.Address() + ",X)"
	case IndirectY:
		return name + " (" + ins.Operand.Address() + "),Y"
	default:
		return name + " " + ins.Operand.Address()
	}
}

// Line is one instruction in source order with its optional label.
// Index is the original line index used for stable ordering.
type Line struct {
	Label       string      `json:"label,omitempty"`
	Instruction Instruction `json:"instruction"`
	Index       int         `json:"index"`
}

func (l Line) String() string {
	if l.Label != "" {
		return l.Label + ": " + l.Instruction.String()
	}
	return l.Instruction.String()
}
