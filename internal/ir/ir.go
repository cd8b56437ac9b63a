// Package ir is the SSA data model for 6502 code.
//
// WHAT IS SSA HERE?
// The 6502 has three registers, six status flags that matter, and memory.
// Each of those storage locations is a Base. Every write to a Base creates a
// new Value with the next version number, and every read refers to the
// Value that is current at that point. Version 0 is the unknown value a
// location holds on entry to the function.
//
// EXAMPLE:
//
//	LDA #$80     A_1 = 0x80         Z_1 = A_1 == 0   N_1 = (A_1 & 0x80) != 0
//	ASL A        C_1 = (A_1 & 0x80) != 0             A_2 = (A_1 << 1) & 0xFF
//	STA $00      mem_00_1 = A_2
//
// Values are immutable once built. Expressions refer to earlier values,
// never to later ones, except phi operands that arrive over back-edges.
package ir

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hassan/decomp6502/internal/cfg"
)

// Kind enumerates storage location classes.
type Kind int

const (
	KindA Kind = iota // accumulator
	KindX             // index register X
	KindY             // index register Y
	KindC             // carry
	KindZ             // zero
	KindV             // overflow
	KindN             // negative
	KindI             // interrupt disable
	KindD             // decimal mode
	KindMem           // one memory cell, named by address
	KindTemp          // scratch slot introduced by phi elimination
)

// Base identifies a storage location. It is comparable and used as a map
// key.
type Base struct {
	Kind Kind
	Name string // address for KindMem, slot number for KindTemp
}

// Registers and flags.
var (
	A = Base{Kind: KindA}
	X = Base{Kind: KindX}
	Y = Base{Kind: KindY}
	C = Base{Kind: KindC}
	Z = Base{Kind: KindZ}
	V = Base{Kind: KindV}
	N = Base{Kind: KindN}
	I = Base{Kind: KindI}
	D = Base{Kind: KindD}
)

// Registers lists the general-purpose registers.
var Registers = []Base{A, X, Y}

// Flags lists the status flags tracked in SSA.
var Flags = []Base{C, Z, V, N, I, D}

// CallerSaved lists what a subroutine call may change. I and D survive
// calls by convention.
var CallerSaved = []Base{A, X, Y, C, Z, V, N}

// Mem returns the base for the memory cell at addr.
func Mem(addr string) Base {
	return Base{Kind: KindMem, Name: addr}
}

// Temp returns the n-th scratch slot.
func Temp(n int) Base {
	return Base{Kind: KindTemp, Name: fmt.Sprint(n)}
}

// IsRegister reports whether b is A, X or Y.
func (b Base) IsRegister() bool { return b.Kind <= KindY }

// IsFlag reports whether b is a status flag.
func (b Base) IsFlag() bool { return b.Kind >= KindC && b.Kind <= KindD }

// IsMemory reports whether b is a memory cell.
func (b Base) IsMemory() bool { return b.Kind == KindMem }

var kindNames = [...]string{"A", "X", "Y", "C", "Z", "V", "N", "I", "D"}

func (b Base) String() string {
	switch b.Kind {
	case KindMem:
		return "[" + b.Name + "]"
	case KindTemp:
		return "tmp" + b.Name
	}
	if int(b.Kind) < len(kindNames) {
		return kindNames[b.Kind]
	}
	return fmt.Sprintf("base(%d)", int(b.Kind))
}

// VarName returns an identifier-safe name: A, flagC, mem_00, tmp0.
func (b Base) VarName() string {
	switch {
	case b.IsFlag():
		return "flag" + kindNames[b.Kind]
	case b.Kind == KindMem:
		return memName(b.Name)
	case b.Kind == KindTemp:
		return "tmp" + b.Name
	}
	return b.String()
}

func memName(addr string) string {
	if strings.HasPrefix(addr, "$") {
		return "mem_" + addr[1:]
	}
	var sb strings.Builder
	for _, r := range addr {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// Less orders bases by kind, then by name.
func Less(a, b Base) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.Name < b.Name
}

// SortBases sorts bases in place with Less.
func SortBases(bases []Base) {
	sort.Slice(bases, func(i, j int) bool { return Less(bases[i], bases[j]) })
}

// Value is one SSA definition.
type Value struct {
	Base    Base
	Version int

	// Def is the defining expression: nil for live-ins, *PhiExpr for phi
	// results.
	Def Expr

	// Block holds the definition; NoBlock for live-ins
	Block cfg.BlockID

	// Seq is the definition order within the function. Live-ins have 0,
	// definitions count up from 1.
	Seq int
}

// LiveIn returns the version-0 value of b.
func LiveIn(b Base) *Value {
	return &Value{Base: b, Block: cfg.NoBlock}
}

// IsLiveIn reports whether v is the unknown incoming value of its base.
func (v *Value) IsLiveIn() bool { return v.Version == 0 }

// IsPhi reports whether v is defined by a phi node.
func (v *Value) IsPhi() bool {
	_, ok := v.Def.(*PhiExpr)
	return ok
}

// Name returns A for live-ins and A_3 for version 3.
func (v *Value) Name() string {
	if v.Version == 0 {
		return v.Base.VarName()
	}
	return fmt.Sprintf("%s_%d", v.Base.VarName(), v.Version)
}

func (v *Value) String() string {
	if v.Def == nil {
		return v.Name()
	}
	return v.Name() + " = " + v.Def.String()
}
