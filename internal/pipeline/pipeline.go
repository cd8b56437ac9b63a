// Package pipeline runs the analysis stages over every function of a
// listing.
//
// FLOW:
//
//	lines -> cfg.Builder -> function.Partition -> per function:
//	    Dominators -> Loops -> SSA -> PhiElimination -> ConstantFolding -> DeadValues
//
// Building the block graph and partitioning it are fatal steps: without a
// valid graph nothing downstream can run. Everything after that is done per
// function, in parallel, and a function that fails (error, panic or
// timeout) is reported on its own without touching its siblings.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hassan/decomp6502/internal/asm"
	"github.com/hassan/decomp6502/internal/cfg"
	"github.com/hassan/decomp6502/internal/dom"
	"github.com/hassan/decomp6502/internal/function"
	"github.com/hassan/decomp6502/internal/ir"
	"github.com/hassan/decomp6502/internal/loops"
	"github.com/hassan/decomp6502/internal/phielim"
	"github.com/hassan/decomp6502/internal/ssa"
)

// Stage is one analysis step over a single function.
//
// A stage reads what earlier stages stored on the Analysis and adds its own
// result. Stages never touch another function's Analysis.
type Stage interface {
	// Name returns a human-readable name for this stage
	Name() string

	// Run executes this stage on one function
	// Returns an error if the stage fails. A stage that can run long checks
	// ctx and returns once it is done, so a timed-out analysis stops
	Run(ctx context.Context, a *Analysis) error
}

// Analysis collects the results for one function.
type Analysis struct {
	Graph    *cfg.Graph
	Function *function.Function
	View     *function.View

	Dom   *dom.Tree
	Loops []*loops.Loop
	SSA   *ssa.Result
	Phis  *phielim.Result

	// Constants maps SSA values to the byte or flag they always hold
	Constants map[*ir.Value]int

	// Dead lists the values nothing observable ever reads
	Dead []*ir.Value

	// Stages lists the stages that completed, in order
	Stages []string

	// Err is set when the function could not be analyzed; the other result
	// fields are then left empty
	Err error
}

// Pipeline coordinates the stages.
type Pipeline struct {
	// stages is the list of stages to run, in order
	stages []Stage

	builder *cfg.Builder
	entries []string

	// workers limits how many functions are analyzed at once
	workers int

	// timeout bounds the analysis of one function; zero means no limit
	timeout time.Duration

	verbose bool
	out     io.Writer
	mu      sync.Mutex
}

// New creates a pipeline with the default stages.
//
// DEFAULT STAGE ORDER:
// 1. Dominators - every later stage needs the dominator tree
// 2. Loops - loop headers guide phi placement
// 3. SSA
// 4. PhiElimination - copy plans for an emitter
// 5. ConstantFolding, DeadValues - facts an emitter uses to simplify output
func New() *Pipeline {
	return &Pipeline{
		stages: []Stage{
			&DominatorStage{},
			&LoopStage{},
			&SSAStage{},
			&PhiEliminationStage{},
			&ConstantFoldingStage{},
			&DeadValueStage{},
		},
		builder: cfg.NewBuilder(),
		workers: 4,
		out:     os.Stderr,
	}
}

// AddStage appends a custom stage.
func (p *Pipeline) AddStage(stage Stage) {
	p.stages = append(p.stages, stage)
}

// SetVerbose enables or disables progress output.
func (p *Pipeline) SetVerbose(verbose bool) {
	p.verbose = verbose
}

// SetOutput sets where progress output goes (os.Stderr by default).
func (p *Pipeline) SetOutput(w io.Writer) {
	p.out = w
}

// SetWorkers sets how many functions are analyzed in parallel.
func (p *Pipeline) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	p.workers = n
}

// SetTimeout bounds the wall-clock time spent on one function.
func (p *Pipeline) SetTimeout(d time.Duration) {
	p.timeout = d
}

// SetNoReturn marks subroutines that never return to their caller.
func (p *Pipeline) SetNoReturn(labels ...string) {
	p.builder.SetNoReturn(labels...)
}

// SetEntries adds function entry points that are not JSR targets, such as
// interrupt handlers.
func (p *Pipeline) SetEntries(labels ...string) {
	p.entries = append(p.entries, labels...)
}

// Report is the outcome of one Run.
type Report struct {
	Graph     *cfg.Graph
	Functions []*Analysis

	// Orphans are blocks no function reaches
	Orphans []cfg.BlockID

	Stats *Stats
}

// Failed returns the analyses that ended with an error.
func (r *Report) Failed() []*Analysis {
	var out []*Analysis
	for _, a := range r.Functions {
		if a.Err != nil {
			out = append(out, a)
		}
	}
	return out
}

// Run analyzes every function of lines.
//
// ALGORITHM:
// 1. Build the block graph; an unresolved or duplicate label aborts
// 2. Partition it into functions
// 3. Analyze the functions in parallel, at most workers at a time
// 4. Collect statistics
//
// The returned error is only set for failures that concern the whole
// listing; per-function failures are on Report.Functions.
func (p *Pipeline) Run(ctx context.Context, lines []asm.Line) (*Report, error) {
	start := time.Now()

	g, err := p.builder.Build(lines)
	if err != nil {
		return nil, fmt.Errorf("building blocks: %w", err)
	}
	if errs := cfg.Verify(g); len(errs) > 0 {
		return nil, fmt.Errorf("invalid block graph: %w", errors.Join(errs...))
	}

	fns, err := function.Partition(g, p.entries...)
	if err != nil {
		return nil, fmt.Errorf("partitioning functions: %w", err)
	}

	report := &Report{
		Graph:     g,
		Functions: make([]*Analysis, len(fns)),
		Orphans:   orphans(g, fns),
	}

	var group errgroup.Group
	group.SetLimit(p.workers)
	for i, fn := range fns {
		group.Go(func() error {
			report.Functions[i] = p.analyze(ctx, g, fn)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	report.Stats = collectStats(report)
	report.Stats.Elapsed = time.Since(start)
	return report, nil
}

// analyze runs the stages on fn, bounded by the timeout. The stages work on
// a private Analysis that is only published once they all finish.
func (p *Pipeline) analyze(ctx context.Context, g *cfg.Graph, fn *function.Function) *Analysis {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	view := fn.View(g)
	done := make(chan *Analysis, 1)
	go func() {
		a := &Analysis{Graph: g, Function: fn, View: view}
		a.Err = p.runStages(ctx, a)
		done <- a
	}()

	select {
	case a := <-done:
		if a.Err == nil {
			return a
		}
		// a stage that noticed the deadline first still counts as a timeout
		if ctx.Err() != nil {
			return &Analysis{Graph: g, Function: fn, View: view, Err: p.cancelled(ctx, fn)}
		}
		return &Analysis{Graph: g, Function: fn, View: view, Stages: a.Stages, Err: a.Err}
	case <-ctx.Done():
		return &Analysis{Graph: g, Function: fn, View: view, Err: p.cancelled(ctx, fn)}
	}
}

// cancelled returns the error for an analysis whose context ended.
func (p *Pipeline) cancelled(ctx context.Context, fn *function.Function) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return &AnalysisTimeoutError{Function: fn.Name, Limit: p.timeout}
	}
	return err
}

// runStages runs every stage in order. A panic inside a stage (a failed
// loop shape check, for one) becomes that stage's error.
func (p *Pipeline) runStages(ctx context.Context, a *Analysis) (err error) {
	current := ""
	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("panic: %v", r)
			}
			err = &StageError{Stage: current, Function: a.Function.Name, Err: cause}
		}
	}()

	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		current = stage.Name()
		p.logf("  Running %s on %s...\n", current, a.Function.Name)

		if err := stage.Run(ctx, a); err != nil {
			return &StageError{Stage: current, Function: a.Function.Name, Err: err}
		}
		a.Stages = append(a.Stages, current)
	}
	return nil
}

func (p *Pipeline) logf(format string, args ...interface{}) {
	if !p.verbose || p.out == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// orphans returns the blocks that belong to no function, such as code after
// a return that nothing jumps to.
func orphans(g *cfg.Graph, fns []*function.Function) []cfg.BlockID {
	owned := make([]bool, g.Len())
	for _, fn := range fns {
		for _, id := range fn.Blocks {
			owned[id] = true
		}
	}

	var out []cfg.BlockID
	for id, ok := range owned {
		if !ok {
			out = append(out, cfg.BlockID(id))
		}
	}
	return out
}
