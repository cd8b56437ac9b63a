package loops

import "fmt"

// MalformedLoopError signals a loop that breaks its own shape: the header
// outside the body, or a back-edge that does not target the header. Only a
// dominance bug can produce one, so Detect panics with it.
type MalformedLoopError struct {
	Loop   *Loop
	Reason string
}

func (e *MalformedLoopError) Error() string {
	return fmt.Sprintf("malformed loop at %s: %s", e.Loop.Header, e.Reason)
}

func check(l *Loop) {
	if l.members == nil || !l.Contains(l.Header) {
		panic(&MalformedLoopError{Loop: l, Reason: "header not in body"})
	}
	if len(l.BackEdges) == 0 {
		panic(&MalformedLoopError{Loop: l, Reason: "no back-edges"})
	}
	for _, e := range l.BackEdges {
		if e.To != l.Header {
			panic(&MalformedLoopError{Loop: l, Reason: fmt.Sprintf("back-edge %s does not target the header", e)})
		}
		if !l.Contains(e.From) {
			panic(&MalformedLoopError{Loop: l, Reason: fmt.Sprintf("back-edge source %s outside the body", e.From)})
		}
	}
	for _, x := range l.Exits {
		if l.Contains(x) {
			panic(&MalformedLoopError{Loop: l, Reason: fmt.Sprintf("exit %s inside the body", x)})
		}
	}
}
