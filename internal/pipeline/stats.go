package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Stats summarizes one Run.
type Stats struct {
	Functions int
	Failed    int
	Blocks    int
	Orphans   int

	Loops       int
	Phis        int
	Values      int
	LiveIns     int
	Copies      int
	Temporaries int
	Constants   int
	DeadValues  int

	// StageRuns counts how many functions completed each stage
	StageRuns map[string]int

	Elapsed time.Duration
}

// NewStats creates an empty stats tracker.
func NewStats() *Stats {
	return &Stats{
		StageRuns: make(map[string]int),
	}
}

func collectStats(r *Report) *Stats {
	s := NewStats()
	s.Functions = len(r.Functions)
	s.Blocks = r.Graph.Len()
	s.Orphans = len(r.Orphans)

	for _, a := range r.Functions {
		for _, name := range a.Stages {
			s.StageRuns[name]++
		}
		if a.Err != nil {
			s.Failed++
			continue
		}
		s.Loops += len(a.Loops)
		if a.SSA != nil {
			s.Phis += len(a.SSA.AllPhis())
			s.Values += len(a.SSA.Values)
			s.LiveIns += len(a.SSA.LiveIns)
		}
		if a.Phis != nil {
			s.Copies += len(a.Phis.Initial)
			for _, copies := range a.Phis.BlockCopies {
				s.Copies += len(copies)
			}
			s.Temporaries += len(a.Phis.Temporaries)
		}
		s.Constants += len(a.Constants)
		s.DeadValues += len(a.Dead)
	}
	return s
}

// String returns a human-readable summary of the statistics.
func (s *Stats) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Analysis Stats:\n"+
		"  Functions: %d (%d failed)\n"+
		"  Blocks: %d (%d orphaned)\n"+
		"  Loops: %d\n"+
		"  Phis: %d\n"+
		"  SSA values: %d (%d live-in)\n"+
		"  Copies: %d (%d temporaries)\n"+
		"  Constants: %d\n"+
		"  Dead values: %d\n",
		s.Functions, s.Failed,
		s.Blocks, s.Orphans,
		s.Loops,
		s.Phis,
		s.Values, s.LiveIns,
		s.Copies, s.Temporaries,
		s.Constants,
		s.DeadValues)

	names := make([]string, 0, len(s.StageRuns))
	for name := range s.StageRuns {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "  %s: %d\n", name, s.StageRuns[name])
	}
	fmt.Fprintf(&sb, "  Elapsed: %v\n", s.Elapsed)
	return sb.String()
}
