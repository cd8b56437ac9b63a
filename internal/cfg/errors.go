package cfg

import (
	"fmt"

	"github.com/hassan/decomp6502/internal/asm"
)

// UnresolvedLabelError reports a branch or jump to a label that no line
// defines. It is fatal for the whole instruction stream.
type UnresolvedLabelError struct {
	Label       string
	Line        int
	Instruction asm.Instruction
}

func (e *UnresolvedLabelError) Error() string {
	return fmt.Sprintf("line %d: %s: unresolved label %q", e.Line, e.Instruction, e.Label)
}

// DuplicateLabelError reports a label defined on more than one line.
type DuplicateLabelError struct {
	Label  string
	First  int
	Second int
}

func (e *DuplicateLabelError) Error() string {
	return fmt.Sprintf("line %d: label %q already defined at line %d", e.Second, e.Label, e.First)
}
