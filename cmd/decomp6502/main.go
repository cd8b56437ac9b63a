// Package main provides the decompiler entry point.
//
// It reads a typed instruction listing (the JSON form of []asm.Line) and
// runs the analysis pipeline:
// 1. Block construction
// 2. Function partitioning
// 3. Dominators and natural loops
// 4. SSA construction
// 5. Phi elimination, constant folding and dead values
//
// Rendering the results as source code is left to an emitter.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/hassan/decomp6502/internal/asm"
	"github.com/hassan/decomp6502/internal/pipeline"
)

func main() {
	workers := flag.Int("workers", 4, "functions analyzed in parallel")
	timeout := flag.Duration("timeout", 0, "time budget per function (0 for none)")
	verbose := flag.Bool("v", false, "print each stage as it runs")
	dump := flag.Bool("dump", false, "print SSA form and copy plans")
	entries := flag.String("entry", "", "comma-separated labels that start functions (interrupt handlers)")
	noReturn := flag.String("noreturn", "", "comma-separated subroutines that never return")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] [listing.json]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Read the listing from a file or stdin
	filename := "<stdin>"
	var input io.Reader = os.Stdin
	if flag.NArg() > 0 {
		filename = flag.Arg(0)
		f, err := os.Open(filename)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		input = f
	}

	var lines []asm.Line
	if err := json.NewDecoder(input).Decode(&lines); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding listing: %v\n", err)
		os.Exit(1)
	}

	// Progress marks only go to an interactive terminal
	progress := func(format string, args ...interface{}) {}
	if term.IsTerminal(int(os.Stdout.Fd())) {
		progress = func(format string, args ...interface{}) {
			fmt.Printf(format, args...)
		}
	}
	progress("✓ Decoding successful (%d instructions)\n", len(lines))

	p := pipeline.New()
	p.SetVerbose(*verbose)
	p.SetWorkers(*workers)
	p.SetTimeout(*timeout)
	p.SetNoReturn(split(*noReturn)...)
	p.SetEntries(split(*entries)...)

	report, err := p.Run(context.Background(), lines)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nAnalysis error: %v\n", err)
		os.Exit(1)
	}
	progress("✓ Analysis successful\n")

	fmt.Printf("\n=== Analysis Summary ===\n")
	fmt.Printf("File: %s\n", filename)
	fmt.Printf("Instructions: %d\n", len(lines))
	fmt.Print(report.Stats.String())

	fmt.Println("\nFunctions:")
	for i, a := range report.Functions {
		if a.Err != nil {
			fmt.Printf("  %d. %s: FAILED: %v\n", i+1, a.Function.Name, a.Err)
			continue
		}
		fmt.Printf("  %d. %s: %d blocks, %d loops, %d phis, live-in:%s\n",
			i+1, a.Function.Name, len(a.Function.Blocks), len(a.Loops),
			len(a.SSA.AllPhis()), liveIns(a))
		for _, l := range a.Loops {
			fmt.Printf("       %s\n", l)
		}
	}

	if *dump {
		for _, a := range report.Functions {
			if a.Err != nil {
				continue
			}
			fmt.Printf("\n=== %s ===\n\n", a.Function.Name)
			fmt.Print(a.SSA.String())
			fmt.Println()
			fmt.Print(a.Phis.String())
		}
	}

	if failed := report.Failed(); len(failed) > 0 {
		os.Exit(2)
	}
}

func split(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func liveIns(a *pipeline.Analysis) string {
	if len(a.SSA.LiveIns) == 0 {
		return " none"
	}
	var sb strings.Builder
	for _, v := range a.SSA.LiveIns {
		sb.WriteString(" " + v.Base.String())
	}
	return sb.String()
}
