// Package asm defines the typed instruction model consumed by the decompiler.
//
// WHAT LIVES HERE?
// Only data: the 56 documented 6502 opcodes, their addressing modes, operands
// and the source lines that carry optional labels. Parsing text into these
// types happens elsewhere; this package starts from already typed values.
//
// EXAMPLE:
//
//	Loop:  DEY          -> Line{Label: "Loop", Instruction: Op0(DEY)}
//	       BPL Loop     -> Line{Instruction: Branch(BPL, "Loop")}
//	       STA $0200,X  -> Line{Instruction: MemX(STA, "$0200")}
package asm

import (
	"fmt"
	"strings"
)

// Op is a 6502 mnemonic.
type Op int

// Opcode enumeration, alphabetical.
const (
	OpInvalid Op = iota

	ADC
	AND
	ASL
	BCC
	BCS
	BEQ
	BIT
	BMI
	BNE
	BPL
	BRK
	BVC
	BVS
	CLC
	CLD
	CLI
	CLV
	CMP
	CPX
	CPY
	DEC
	DEX
	DEY
	EOR
	INC
	INX
	INY
	JMP
	JSR
	LDA
	LDX
	LDY
	LSR
	NOP
	ORA
	PHA
	PHP
	PLA
	PLP
	ROL
	ROR
	RTI
	RTS
	SBC
	SEC
	SED
	SEI
	STA
	STX
	STY
	TAX
	TAY
	TSX
	TXA
	TXS
	TYA

	opCount
)

// Class groups opcodes that share control-flow and lowering behavior.
type Class int

const (
	ClassMisc Class = iota
	ClassLoad
	ClassStore
	ClassTransfer
	ClassArith
	ClassLogic
	ClassShift
	ClassCompare
	ClassIncDec
	ClassFlag
	ClassStack
	ClassBranch
	ClassJump
	ClassCall
	ClassReturn
)

type opInfo struct {
	name        string
	class       Class
	description string
}

var opTable = [opCount]opInfo{
	OpInvalid: {"???", ClassMisc, "invalid opcode"},

	ADC: {"ADC", ClassArith, "Add with carry"},
	AND: {"AND", ClassLogic, "Logical AND with accumulator"},
	ASL: {"ASL", ClassShift, "Arithmetic shift left"},
	BCC: {"BCC", ClassBranch, "Branch if carry clear"},
	BCS: {"BCS", ClassBranch, "Branch if carry set"},
	BEQ: {"BEQ", ClassBranch, "Branch if equal (zero set)"},
	BIT: {"BIT", ClassCompare, "Test bits in memory with accumulator"},
	BMI: {"BMI", ClassBranch, "Branch if minus (negative set)"},
	BNE: {"BNE", ClassBranch, "Branch if not equal (zero clear)"},
	BPL: {"BPL", ClassBranch, "Branch if plus (negative clear)"},
	BRK: {"BRK", ClassReturn, "Force an interrupt"},
	BVC: {"BVC", ClassBranch, "Branch if overflow clear"},
	BVS: {"BVS", ClassBranch, "Branch if overflow set"},
	CLC: {"CLC", ClassFlag, "Clear carry flag"},
	CLD: {"CLD", ClassFlag, "Clear decimal mode"},
	CLI: {"CLI", ClassFlag, "Clear interrupt disable"},
	CLV: {"CLV", ClassFlag, "Clear overflow flag"},
	CMP: {"CMP", ClassCompare, "Compare with accumulator"},
	CPX: {"CPX", ClassCompare, "Compare with X register"},
	CPY: {"CPY", ClassCompare, "Compare with Y register"},
	DEC: {"DEC", ClassIncDec, "Decrement memory"},
	DEX: {"DEX", ClassIncDec, "Decrement X register"},
	DEY: {"DEY", ClassIncDec, "Decrement Y register"},
	EOR: {"EOR", ClassLogic, "Exclusive OR with accumulator"},
	INC: {"INC", ClassIncDec, "Increment memory"},
	INX: {"INX", ClassIncDec, "Increment X register"},
	INY: {"INY", ClassIncDec, "Increment Y register"},
	JMP: {"JMP", ClassJump, "Jump"},
	JSR: {"JSR", ClassCall, "Jump to subroutine"},
	LDA: {"LDA", ClassLoad, "Load accumulator"},
	LDX: {"LDX", ClassLoad, "Load X register"},
	LDY: {"LDY", ClassLoad, "Load Y register"},
	LSR: {"LSR", ClassShift, "Logical shift right"},
	NOP: {"NOP", ClassMisc, "No operation"},
	ORA: {"ORA", ClassLogic, "Logical OR with accumulator"},
	PHA: {"PHA", ClassStack, "Push accumulator"},
	PHP: {"PHP", ClassStack, "Push processor status"},
	PLA: {"PLA", ClassStack, "Pull accumulator"},
	PLP: {"PLP", ClassStack, "Pull processor status"},
	ROL: {"ROL", ClassShift, "Rotate left through carry"},
	ROR: {"ROR", ClassShift, "Rotate right through carry"},
	RTI: {"RTI", ClassReturn, "Return from interrupt"},
	RTS: {"RTS", ClassReturn, "Return from subroutine"},
	SBC: {"SBC", ClassArith, "Subtract with borrow"},
	SEC: {"SEC", ClassFlag, "Set carry flag"},
	SED: {"SED", ClassFlag, "Set decimal mode"},
	SEI: {"SEI", ClassFlag, "Set interrupt disable"},
	STA: {"STA", ClassStore, "Store accumulator"},
	STX: {"STX", ClassStore, "Store X register"},
	STY: {"STY", ClassStore, "Store Y register"},
	TAX: {"TAX", ClassTransfer, "Transfer accumulator to X"},
	TAY: {"TAY", ClassTransfer, "Transfer accumulator to Y"},
	TSX: {"TSX", ClassTransfer, "Transfer stack pointer to X"},
	TXA: {"TXA", ClassTransfer, "Transfer X to accumulator"},
	TXS: {"TXS", ClassTransfer, "Transfer X to stack pointer"},
	TYA: {"TYA", ClassTransfer, "Transfer Y to accumulator"},
}

var opsByName map[string]Op

func init() {
	opsByName = make(map[string]Op, len(opTable))
	for op := ADC; op < opCount; op++ {
		opsByName[opTable[op].name] = op
	}
}

// LookupOp returns the opcode for a mnemonic, ignoring case.
func LookupOp(name string) (Op, bool) {
	op, ok := opsByName[strings.ToUpper(name)]
	return op, ok
}

// Valid reports whether op is one of the documented opcodes.
func (op Op) Valid() bool {
	return op > OpInvalid && op < opCount
}

func (op Op) info() opInfo {
	if op < 0 || op >= opCount {
		return opTable[OpInvalid]
	}
	return opTable[op]
}

func (op Op) String() string { return op.info().name }

// Class returns the opcode's behavior class.
func (op Op) Class() Class { return op.info().class }

// Description returns the human-readable description of the opcode.
func (op Op) Description() string { return op.info().description }

// IsBranch reports whether op is a conditional relative branch.
func (op Op) IsBranch() bool { return op.Class() == ClassBranch }

// IsJump reports whether op is an unconditional jump.
func (op Op) IsJump() bool { return op == JMP }

// IsCall reports whether op is a subroutine call.
func (op Op) IsCall() bool { return op == JSR }

// IsReturn reports whether op leaves the function (RTS, RTI, BRK).
func (op Op) IsReturn() bool { return op.Class() == ClassReturn }

// EndsBlock reports whether the instruction after op always starts a new
// basic block.
func (op Op) EndsBlock() bool {
	return op.IsBranch() || op.IsJump() || op.IsReturn()
}

// MarshalText implements encoding.TextMarshaler.
func (op Op) MarshalText() ([]byte, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("asm: cannot marshal invalid opcode %d", int(op))
	}
	return []byte(op.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (op *Op) UnmarshalText(text []byte) error {
	parsed, ok := LookupOp(string(text))
	if !ok {
		return fmt.Errorf("asm: unknown opcode %q", text)
	}
	*op = parsed
	return nil
}
