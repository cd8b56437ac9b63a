package function

import (
	"errors"
	"reflect"
	"testing"

	"github.com/hassan/decomp6502/internal/asm"
	"github.com/hassan/decomp6502/internal/cfg"
)

func build(t *testing.T, l *asm.Listing) *cfg.Graph {
	t.Helper()
	g, err := cfg.Build(l.Lines())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return g
}

// TestPartitionByCallTargets tests that JSR targets start new functions
func TestPartitionByCallTargets(t *testing.T) {
	g := build(t, asm.NewListing().
		Label("Main").Add(asm.Call("Sub"), asm.Imm(asm.LDA, 1)).
		Add(asm.Branch(asm.BEQ, "Done")).
		Add(asm.Op0(asm.NOP)).
		Label("Done").Add(asm.Op0(asm.RTS)).
		Label("Sub").Add(asm.Imm(asm.LDX, 0)).
		Label("SubLoop").Add(asm.Op0(asm.DEX), asm.Branch(asm.BNE, "SubLoop")).
		Add(asm.Op0(asm.RTS)))

	fns, err := Partition(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fns) != 2 {
		t.Fatalf("expected 2 functions, got %d: %v", len(fns), fns)
	}

	tests := []struct {
		name   string
		start  cfg.BlockID
		blocks []cfg.BlockID
	}{
		{"Main", 0, []cfg.BlockID{0, 1, 2}},
		{"Sub", 3, []cfg.BlockID{3, 4, 5}},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := fns[i]
			if fn.Name != tt.name || fn.Start != tt.start {
				t.Errorf("expected %s at %v, got %s at %v", tt.name, tt.start, fn.Name, fn.Start)
			}
			if !reflect.DeepEqual(fn.Blocks, tt.blocks) {
				t.Errorf("expected blocks %v, got %v", tt.blocks, fn.Blocks)
			}
		})
	}
}

// TestPartitionTailCall tests that a JMP into another entry is not followed
func TestPartitionTailCall(t *testing.T) {
	g := build(t, asm.NewListing().
		Label("Caller").Add(asm.Call("Helper"), asm.Jump("Helper")).
		Label("Helper").Add(asm.Op0(asm.INX), asm.Op0(asm.RTS)))

	fns, err := Partition(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fns) != 2 {
		t.Fatalf("expected 2 functions, got %d", len(fns))
	}
	if fns[0].Contains(fns[1].Start) {
		t.Error("caller must not absorb the tail-called function")
	}

	view := fns[0].View(g)
	if succs := view.Succs(fns[0].Start); len(succs) != 0 {
		t.Errorf("view should drop the edge into Helper, got %v", succs)
	}
	if preds := view.Preds(fns[1].Start); len(preds) != 0 {
		t.Errorf("non-member blocks have no edges in the view, got %v", preds)
	}
}

// TestPartitionExtraStarts tests explicitly named entries
func TestPartitionExtraStarts(t *testing.T) {
	g := build(t, asm.NewListing().
		Label("Reset").Add(asm.Op0(asm.RTS)).
		Label("NMI").Add(asm.Op0(asm.RTI)))

	fns, err := Partition(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fns) != 1 {
		t.Errorf("expected 1 function without extra starts, got %d", len(fns))
	}

	fns, err = Partition(g, "NMI")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fns) != 2 || fns[1].Name != "NMI" {
		t.Errorf("expected NMI as second function, got %v", fns)
	}

	_, err = Partition(g, "Missing")
	var unknown *UnknownEntryError
	if !errors.As(err, &unknown) || unknown.Label != "Missing" {
		t.Fatalf("expected UnknownEntryError, got %v", err)
	}
	if want := `entry "Missing": no such label`; err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

// TestViewKeepsLoopEdges tests that in-function edges survive restriction
func TestViewKeepsLoopEdges(t *testing.T) {
	g := build(t, asm.NewListing().
		Label("Loop").Add(asm.Op0(asm.DEX), asm.Branch(asm.BNE, "Loop")).
		Add(asm.Op0(asm.RTS)))

	fns, err := Partition(g)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	view := fns[0].View(g)
	if !reflect.DeepEqual(view.Succs(0), g.Succs(0)) {
		t.Errorf("expected %v, got %v", g.Succs(0), view.Succs(0))
	}
	if view.Len() != g.Len() || view.Function() != fns[0] {
		t.Error("view should share the arena of the graph")
	}
}
