// Package ports defines the three external-collaborator interfaces the
// pipeline orchestrator and shadow runtime invoke (Generator, Solver,
// Printer), and a registry of factories keyed by (puzzle-kind, role,
// impl-id) that the router resolves against. This registry replaces the
// Python original's dynamic module-path loading with ordinary Go
// interface dispatch: implementations self-register via their package's
// init(), and nothing in this module ever imports a path constructed at
// runtime.
package ports

import (
	"fmt"
	"sync"

	"github.com/allinbits/labs/projects/sudokuctl/internal/artifact"
)

// Role names the router and registry recognise. "difficulty" is
// deliberately absent: the puzzle-difficulty heuristics it would back are
// an explicit non-goal, and no orchestrator stage ever requests it.
const (
	RoleGenerator = "generator"
	RoleSolver    = "solver"
	RolePrinter   = "printer"
)

// Generator produces a complete, filled grid for a Spec.
type Generator interface {
	GenerateComplete(spec artifact.Map, seed string) (grid string, err error)
}

// TraceStep is one placement a solver's backtracking search made, in the
// order the search made it. Two implementations that explore cells in a
// different order (row-major vs. minimum-remaining-values, say) produce
// different traces even when they agree on the final grid.
type TraceStep struct {
	Step  int
	Row   int
	Col   int
	Value int
}

// SolveResult is the outcome of a Solver's uniqueness check. Unique,
// TimeMs, Nodes, and Cutoff are mandatory (§6.1); Grid, Candidates,
// Trace, and BtDepth are the richer fields a solver "may populate" for
// the shadow classifier and guardrail to compare against a counterpart
// implementation's result.
type SolveResult struct {
	Unique bool
	TimeMs int64
	Nodes  int64
	Cutoff string // "", artifact.CutoffTimeout, or artifact.CutoffSecondSolution

	// BtDepth is the deepest recursion the search reached.
	BtDepth int64
	// Grid is the completed solution the search found (row-major string,
	// same encoding as CompleteGrid), empty if none was found.
	Grid string
	// Candidates maps a blank cell's row-major index to the alphabet
	// symbol indices still consistent with the puzzle's givens.
	Candidates map[int][]int
	// Trace is the ordered list of placements the search made.
	Trace []TraceStep
}

// Solver checks whether grid is the unique completion of spec.
type Solver interface {
	CheckUniqueness(spec artifact.Map, grid string) (SolveResult, error)
}

// Printer renders a PDF-equivalent byte stream from a finalised
// ExportBundle's inputs.
type Printer interface {
	ExportBundle(complete, verdict artifact.Map, template, page string, dpi int) ([]byte, error)
}

// Port is the common shape every registry entry implements; role-specific
// code type-asserts the value returned by Lookup to Generator, Solver, or
// Printer as appropriate.
type Port any

type key struct {
	puzzleKind string
	role       string
	implID     string
}

var (
	mu       sync.RWMutex
	registry = map[key]Port{}
)

// Register installs factory under (puzzleKind, role, implID). Called from
// an implementation package's init(), never at request time.
func Register(puzzleKind, role, implID string, impl Port) {
	mu.Lock()
	defer mu.Unlock()
	registry[key{puzzleKind, role, implID}] = impl
}

// Lookup returns the registered implementation for (puzzleKind, role,
// implID), or an error if nothing is registered there.
func Lookup(puzzleKind, role, implID string) (Port, error) {
	mu.RLock()
	defer mu.RUnlock()
	impl, ok := registry[key{puzzleKind, role, implID}]
	if !ok {
		return nil, fmt.Errorf("ports: no %s implementation %q registered for puzzle %q", role, implID, puzzleKind)
	}
	return impl, nil
}

// Has reports whether an implementation is registered, without the error
// allocation Lookup incurs on a miss — the router's fallback logic probes
// availability before committing to a decision.
func Has(puzzleKind, role, implID string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := registry[key{puzzleKind, role, implID}]
	return ok
}
