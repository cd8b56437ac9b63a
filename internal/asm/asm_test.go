package asm

import (
	"encoding/json"
	"testing"
)

// TestLookupOp tests mnemonic lookup
func TestLookupOp(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   Op
		wantOK bool
	}{
		{"upper case", "LDA", LDA, true},
		{"lower case", "bne", BNE, true},
		{"mixed case", "Jsr", JSR, true},
		{"unknown", "XAA", OpInvalid, false},
		{"empty", "", OpInvalid, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LookupOp(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

// TestOpTableComplete checks every documented opcode has a name and a
// round-trippable mnemonic.
func TestOpTableComplete(t *testing.T) {
	count := 0
	for op := ADC; op < opCount; op++ {
		count++
		if !op.Valid() {
			t.Errorf("%d should be valid", int(op))
		}
		got, ok := LookupOp(op.String())
		if !ok || got != op {
			t.Errorf("lookup of %s returned %v", op, got)
		}
		if op.Description() == "" {
			t.Errorf("%s has no description", op)
		}
	}
	if count != 56 {
		t.Errorf("expected 56 opcodes, got %d", count)
	}
	if OpInvalid.Valid() {
		t.Error("OpInvalid must not be valid")
	}
}

// TestControlFlowClasses tests the predicates the block builder relies on
func TestControlFlowClasses(t *testing.T) {
	tests := []struct {
		op        Op
		branch    bool
		jump      bool
		call      bool
		ret       bool
		endsBlock bool
	}{
		{BNE, true, false, false, false, true},
		{BCS, true, false, false, false, true},
		{JMP, false, true, false, false, true},
		{JSR, false, false, true, false, false},
		{RTS, false, false, false, true, true},
		{RTI, false, false, false, true, true},
		{BRK, false, false, false, true, true},
		{LDA, false, false, false, false, false},
		{CMP, false, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			if tt.op.IsBranch() != tt.branch {
				t.Errorf("IsBranch: expected %v", tt.branch)
			}
			if tt.op.IsJump() != tt.jump {
				t.Errorf("IsJump: expected %v", tt.jump)
			}
			if tt.op.IsCall() != tt.call {
				t.Errorf("IsCall: expected %v", tt.call)
			}
			if tt.op.IsReturn() != tt.ret {
				t.Errorf("IsReturn: expected %v", tt.ret)
			}
			if tt.op.EndsBlock() != tt.endsBlock {
				t.Errorf("EndsBlock: expected %v", tt.endsBlock)
			}
		})
	}
}

// TestInstructionString tests assembly-style rendering
func TestInstructionString(t *testing.T) {
	tests := []struct {
		ins  Instruction
		want string
	}{
		{Op0(NOP), "NOP"},
		{Acc(ASL), "ASL A"},
		{Imm(LDA, 5), "LDA #$05"},
		{Imm(CMP, 0x80), "CMP #$80"},
		{Mem(STA, "$00"), "STA $00"},
		{Mem(LDA, "PlayerX"), "LDA PlayerX"},
		{MemX(STA, "$0200"), "STA $0200,X"},
		{MemY(LDA, "Table"), "LDA Table,Y"},
		{IndY(LDA, "$10"), "LDA ($10),Y"},
		{Branch(BNE, "Loop"), "BNE Loop"},
		{Jump("Exit"), "JMP Exit"},
		{Instruction{Op: JMP, Mode: Indirect, Operand: Operand{Value: 0xFFFC}}, "JMP ($FFFC)"},
		{Call("Sub"), "JSR Sub"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.ins.String(); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

// TestInstructionTarget tests control transfer targets
func TestInstructionTarget(t *testing.T) {
	if target, ok := Branch(BEQ, "Exit").Target(); !ok || target != "Exit" {
		t.Errorf("expected Exit, got %q (%v)", target, ok)
	}
	if target, ok := Call("Sub").Target(); !ok || target != "Sub" {
		t.Errorf("expected Sub, got %q (%v)", target, ok)
	}
	indirect := Instruction{Op: JMP, Mode: Indirect, Operand: Operand{Symbol: "vec"}}
	if _, ok := indirect.Target(); ok {
		t.Error("indirect jump has no static target")
	}
	if _, ok := Imm(LDA, 1).Target(); ok {
		t.Error("LDA has no target")
	}
}

// TestOperandAddress tests that numeric and symbolic zero-page cells agree
func TestOperandAddress(t *testing.T) {
	if got := (Operand{Value: 0}).Address(); got != "$00" {
		t.Errorf("expected $00, got %s", got)
	}
	if got := (Operand{Value: 0x0200}).Address(); got != "$0200" {
		t.Errorf("expected $0200, got %s", got)
	}
	if got := (Operand{Symbol: "$00"}).Address(); got != "$00" {
		t.Errorf("expected $00, got %s", got)
	}
}

// TestListing tests label attachment and source indexes
func TestListing(t *testing.T) {
	lines := NewListing().
		Add(Imm(LDX, 5)).
		Label("Check").Add(Op0(DEX)).
		Add(Branch(BEQ, "Exit")).
		Label("Exit").Add(Op0(RTS)).
		Lines()

	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	wantLabels := []string{"", "Check", "", "Exit"}
	for i, line := range lines {
		if line.Index != i {
			t.Errorf("line %d: expected index %d, got %d", i, i, line.Index)
		}
		if line.Label != wantLabels[i] {
			t.Errorf("line %d: expected label %q, got %q", i, wantLabels[i], line.Label)
		}
	}
	if lines[1].String() != "Check: DEX" {
		t.Errorf("unexpected rendering %q", lines[1].String())
	}
}

// TestLineJSON tests the wire form consumed by the driver
func TestLineJSON(t *testing.T) {
	input := `[{"label":"Loop","instruction":{"op":"dey","mode":"implied"},"index":0},
	           {"instruction":{"op":"BPL","mode":"relative","operand":{"symbol":"Loop"}},"index":1}]`

	var lines []Line
	if err := json.Unmarshal([]byte(input), &lines); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Instruction.Op != DEY || lines[0].Label != "Loop" {
		t.Errorf("unexpected first line %v", lines[0])
	}
	if lines[1].Instruction != Branch(BPL, "Loop") {
		t.Errorf("unexpected second line %v", lines[1])
	}

	out, err := json.Marshal(lines[1].Instruction)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `{"op":"BPL","mode":"relative","operand":{"symbol":"Loop"}}`
	if string(out) != want {
		t.Errorf("expected %s, got %s", want, out)
	}

	var bad []Line
	if err := json.Unmarshal([]byte(`[{"instruction":{"op":"XYZ"}}]`), &bad); err == nil {
		t.Error("expected error for unknown opcode")
	}
}
