package pipeline

import (
	"fmt"
	"time"
)

// StageError reports the stage that failed for one function.
type StageError struct {
	Stage    string
	Function string
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed for %s: %v", e.Stage, e.Function, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// AnalysisTimeoutError reports a function whose analysis exceeded the
// configured wall-clock budget. Its partial results are discarded.
type AnalysisTimeoutError struct {
	Function string
	Limit    time.Duration
}

func (e *AnalysisTimeoutError) Error() string {
	return fmt.Sprintf("analysis of %s exceeded %v", e.Function, e.Limit)
}

// missing reports a stage that runs before the stage it depends on.
func missing(stage string) error {
	return fmt.Errorf("requires the %s stage", stage)
}
