package loops

import (
	"errors"
	"testing"

	"github.com/hassan/decomp6502/internal/asm"
	"github.com/hassan/decomp6502/internal/cfg"
	"github.com/hassan/decomp6502/internal/dom"
)

func detect(t *testing.T, l *asm.Listing) (*cfg.Graph, []*Loop) {
	t.Helper()
	g, err := cfg.Build(l.Lines())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return g, Detect(g, dom.Compute(g, 0))
}

func labelOf(g *cfg.Graph, id cfg.BlockID) string {
	return g.Block(id).Name()
}

func labels(g *cfg.Graph, ids []cfg.BlockID) map[string]bool {
	out := make(map[string]bool)
	for _, id := range ids {
		out[labelOf(g, id)] = true
	}
	return out
}

// TestPreTestLoop is LDX #5; Check: DEX; BEQ Exit; NOP; JMP Check; Exit: RTS
func TestPreTestLoop(t *testing.T) {
	g, loops := detect(t, asm.NewListing().
		Add(asm.Imm(asm.LDX, 5)).
		Label("Check").Add(asm.Op0(asm.DEX), asm.Branch(asm.BEQ, "Exit")).
		Add(asm.Op0(asm.NOP), asm.Jump("Check")).
		Label("Exit").Add(asm.Op0(asm.RTS)))

	if len(loops) != 1 {
		t.Fatalf("expected 1 loop, got %d", len(loops))
	}
	loop := loops[0]
	if labelOf(g, loop.Header) != "Check" {
		t.Errorf("expected header Check, got %s", labelOf(g, loop.Header))
	}
	if len(loop.Exits) != 1 || labelOf(g, loop.Exits[0]) != "Exit" {
		t.Errorf("expected exits {Exit}, got %v", loop.Exits)
	}
	if loop.Contains(loop.Exits[0]) {
		t.Error("exit block must not be in the body")
	}
	if len(loop.Body) != 2 {
		t.Errorf("expected body of 2 blocks, got %v", loop.Body)
	}
	if loop.Depth != 1 || loop.Parent != nil {
		t.Errorf("expected top-level loop, got depth %d parent %v", loop.Depth, loop.Parent)
	}
}

// TestInfiniteLoop is Loop: NOP; JMP Loop
func TestInfiniteLoop(t *testing.T) {
	g, loops := detect(t, asm.NewListing().
		Label("Loop").Add(asm.Op0(asm.NOP), asm.Jump("Loop")))

	if len(loops) != 1 {
		t.Fatalf("expected 1 loop, got %d", len(loops))
	}
	loop := loops[0]
	if labelOf(g, loop.Header) != "Loop" {
		t.Errorf("expected header Loop, got %s", labelOf(g, loop.Header))
	}
	if len(loop.BackEdges) != 1 {
		t.Errorf("expected 1 back-edge, got %v", loop.BackEdges)
	}
	if want := (Edge{From: loop.Header, To: loop.Header}); loop.BackEdges[0] != want {
		t.Errorf("expected self back-edge %v, got %v", want, loop.BackEdges[0])
	}
	if len(loop.Body) != 1 {
		t.Errorf("expected body {Loop}, got %v", loop.Body)
	}
	if len(loop.Exits) != 0 {
		t.Errorf("expected no exits, got %v", loop.Exits)
	}
}

// TestNestedLoops tests two loops where Inner is fully inside Outer
func TestNestedLoops(t *testing.T) {
	g, loops := detect(t, asm.NewListing().
		Label("Outer").Add(asm.Imm(asm.LDX, 5)).
		Label("Inner").Add(asm.Imm(asm.LDY, 3)).
		Label("InnerBody").Add(asm.Op0(asm.DEY), asm.Branch(asm.BNE, "Inner")).
		Label("OuterBody").Add(asm.Op0(asm.DEX), asm.Branch(asm.BNE, "Outer")).
		Label("Exit").Add(asm.Op0(asm.RTS)))

	if len(loops) != 2 {
		t.Fatalf("expected 2 loops, got %d: %v", len(loops), loops)
	}
	outer, inner := loops[0], loops[1]
	if labelOf(g, outer.Header) != "Outer" || labelOf(g, inner.Header) != "Inner" {
		t.Fatalf("unexpected headers %s, %s", labelOf(g, outer.Header), labelOf(g, inner.Header))
	}
	if outer.Header == inner.Header {
		t.Error("nested loops must have distinct headers")
	}
	for _, b := range inner.Body {
		if !outer.Contains(b) {
			t.Errorf("inner body block %s missing from outer body", labelOf(g, b))
		}
	}
	if !inner.NestsIn(outer) || outer.NestsIn(inner) {
		t.Error("expected inner to nest in outer only")
	}
	if inner.Parent != outer || inner.Depth != 2 || outer.Depth != 1 {
		t.Errorf("unexpected nesting: parent=%v depth=%d/%d", inner.Parent, inner.Depth, outer.Depth)
	}
	if exits := labels(g, inner.Exits); !exits["OuterBody"] {
		t.Errorf("inner loop should exit into OuterBody, got %v", inner.Exits)
	}
	if exits := labels(g, outer.Exits); len(exits) != 1 || !exits["Exit"] {
		t.Errorf("outer loop should exit to Exit, got %v", outer.Exits)
	}
	if Innermost(loops, inner.Body[len(inner.Body)-1]) != inner {
		t.Error("innermost loop of InnerBody should be Inner")
	}
}

// TestMultipleBackEdges tests that back-edges sharing a header merge
func TestMultipleBackEdges(t *testing.T) {
	g, loops := detect(t, asm.NewListing().
		Label("Header").Add(asm.Op0(asm.INX), asm.Branch(asm.BEQ, "Second")).
		Label("First").Add(asm.Op0(asm.NOP), asm.Jump("Header")).
		Label("Second").Add(asm.Op0(asm.DEY), asm.Branch(asm.BNE, "Header")).
		Label("Exit").Add(asm.Op0(asm.RTS)))

	if len(loops) != 1 {
		t.Fatalf("expected 1 loop, got %d", len(loops))
	}
	loop := loops[0]
	if len(loop.BackEdges) != 2 {
		t.Errorf("expected 2 back-edges, got %v", loop.BackEdges)
	}
	body := labels(g, loop.Body)
	for _, name := range []string{"Header", "First", "Second"} {
		if !body[name] {
			t.Errorf("expected %s in body, got %v", name, body)
		}
	}
	if body["Exit"] {
		t.Error("Exit must not be in the body")
	}
}

// TestNoLoops tests that acyclic graphs have no loops
func TestNoLoops(t *testing.T) {
	tests := []struct {
		name    string
		listing *asm.Listing
	}{
		{"linear code", asm.NewListing().
			Add(asm.Imm(asm.LDA, 1), asm.Mem(asm.STA, "$00"), asm.Op0(asm.RTS))},
		{"forward branches", asm.NewListing().
			Add(asm.Imm(asm.LDA, 1), asm.Branch(asm.BEQ, "Skip")).
			Add(asm.Op0(asm.NOP)).
			Label("Skip").Add(asm.Branch(asm.BCC, "Done")).
			Add(asm.Op0(asm.INX)).
			Label("Done").Add(asm.Op0(asm.RTS))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, loops := detect(t, tt.listing)
			if len(loops) != 0 {
				t.Errorf("expected no loops, got %v", loops)
			}
		})
	}
}

// TestLoopsSortedByHeader tests source-order output for sibling loops
func TestLoopsSortedByHeader(t *testing.T) {
	g, loops := detect(t, asm.NewListing().
		Label("First").Add(asm.Op0(asm.DEX), asm.Branch(asm.BNE, "First")).
		Label("Second").Add(asm.Op0(asm.DEY), asm.Branch(asm.BNE, "Second")).
		Add(asm.Op0(asm.RTS)))

	if len(loops) != 2 {
		t.Fatalf("expected 2 loops, got %d", len(loops))
	}
	if g.Block(loops[0].Header).Line >= g.Block(loops[1].Header).Line {
		t.Errorf("loops out of source order: %v", loops)
	}
	if loops[0].NestsIn(loops[1]) || loops[1].NestsIn(loops[0]) {
		t.Error("sibling loops must not nest")
	}
}

// TestLoopProperties checks the structural guarantees on a mixed graph:
// every back-edge target dominates its source and is a header, headers sit
// in their bodies, and exits never do.
func TestLoopProperties(t *testing.T) {
	g, err := cfg.Build(asm.NewListing().
		Add(asm.Imm(asm.LDX, 0)).
		Label("Outer").Add(asm.Imm(asm.LDY, 0)).
		Label("Inner").Add(asm.Op0(asm.INY), asm.Imm(asm.CPY, 8), asm.Branch(asm.BEQ, "Next")).
		Add(asm.Op0(asm.NOP), asm.Jump("Inner")).
		Label("Next").Add(asm.Op0(asm.INX), asm.Imm(asm.CPX, 8), asm.Branch(asm.BNE, "Outer")).
		Add(asm.Op0(asm.RTS)).
		Lines())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tree := dom.Compute(g, 0)
	loops := Detect(g, tree)

	headers := ByHeader(loops)
	for id := 0; id < g.Len(); id++ {
		from := cfg.BlockID(id)
		for _, to := range g.Succs(from) {
			if tree.Dominates(to, from) && headers[to] == nil {
				t.Errorf("back-edge target %s is not a loop header", to)
			}
		}
	}
	for _, l := range loops {
		if !l.Contains(l.Header) {
			t.Errorf("loop %v does not contain its header", l)
		}
		for _, e := range l.BackEdges {
			if e.To != l.Header || !tree.Dominates(e.To, e.From) {
				t.Errorf("bad back-edge %v in %v", e, l)
			}
		}
		for _, x := range l.Exits {
			if l.Contains(x) {
				t.Errorf("exit %s inside body of %v", x, l)
			}
		}
	}
}

// TestCheckPanics tests the shape assertion on a hand-broken loop
func TestCheckPanics(t *testing.T) {
	defer func() {
		r := recover()
		err, ok := r.(error)
		var mle *MalformedLoopError
		if !ok || !errors.As(err, &mle) {
			t.Fatalf("expected MalformedLoopError panic, got %v", r)
		}
	}()

	_, loops := detect(t, asm.NewListing().
		Label("Loop").Add(asm.Op0(asm.NOP), asm.Jump("Loop")))
	broken := loops[0]
	broken.BackEdges = append(broken.BackEdges, Edge{From: 0, To: 5})
	check(broken)
}
