package reference

import (
	"crypto/sha256"
	"fmt"

	"github.com/allinbits/labs/projects/sudokuctl/internal/artifact"
	"github.com/allinbits/labs/projects/sudokuctl/internal/ports"
)

// cellChoice picks the next empty cell to branch on, or ok=false if the
// grid is already full. It is the single axis on which legacy and novus
// differ: legacy always scans row-major, novus applies minimum-remaining-
// -values (MRV), picking the empty cell with the fewest legal candidates.
type cellChoice func(g *cellGrid) (row, col int, ok bool)

func firstEmptyCell(g *cellGrid) (int, int, bool) {
	size := g.dims.size
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			if g.at(row, col) < 0 {
				return row, col, true
			}
		}
	}
	return 0, 0, false
}

func mrvCell(g *cellGrid) (int, int, bool) {
	size := g.dims.size
	bestRow, bestCol, bestCount := -1, -1, size+1
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			if g.at(row, col) >= 0 {
				continue
			}
			count := 0
			for v := 0; v < size; v++ {
				if g.canPlace(row, col, v) {
					count++
				}
			}
			if count < bestCount {
				bestRow, bestCol, bestCount = row, col, count
				if count == 0 {
					return bestRow, bestCol, true
				}
			}
		}
	}
	if bestRow < 0 {
		return 0, 0, false
	}
	return bestRow, bestCol, true
}

// searchEngine runs a backtracking search counting solutions up to a
// limit, using choose to pick branch cells and nodes to accumulate a
// deterministic node count (used as the basis for SolveResult.Nodes and
// the derived SolveResult.TimeMs — no wall clock enters this path, per
// the pipeline's determinism requirement). It also records the deepest
// recursion reached (BtDepth), every placement it tries in order
// (Trace), and a copy of the first complete grid it finds.
type searchEngine struct {
	choose cellChoice
	limit  int
	found  int
	nodes  int64
	depth  int64
	maxDepth int64
	step   int
	trace  []ports.TraceStep
	firstSolution []int
}

func (e *searchEngine) search(g *cellGrid) bool {
	e.nodes++
	e.depth++
	if e.depth > e.maxDepth {
		e.maxDepth = e.depth
	}
	defer func() { e.depth-- }()

	row, col, ok := e.choose(g)
	if !ok {
		e.found++
		if e.found == 1 {
			e.firstSolution = append([]int(nil), g.cells...)
		}
		return e.found >= e.limit
	}
	size := g.dims.size
	for v := 0; v < size; v++ {
		if !g.canPlace(row, col, v) {
			continue
		}
		g.set(row, col, v)
		e.step++
		e.trace = append(e.trace, ports.TraceStep{Step: e.step, Row: row, Col: col, Value: v})
		if e.search(g) {
			g.set(row, col, -1)
			return true
		}
		g.set(row, col, -1)
	}
	return false
}

// candidateSets computes, for every blank cell in puzzle, the alphabet
// symbol indices still consistent with the row/column/box constraints
// already placed — a pure function of the puzzle's givens, independent
// of search order, so legacy and novus report identical candidate sets
// for the same puzzle even though their traces differ.
func candidateSets(puzzle *cellGrid) map[int][]int {
	size := puzzle.dims.size
	out := make(map[int][]int)
	for row := 0; row < size; row++ {
		for col := 0; col < size; col++ {
			if puzzle.at(row, col) >= 0 {
				continue
			}
			var syms []int
			for v := 0; v < size; v++ {
				if puzzle.canPlace(row, col, v) {
					syms = append(syms, v)
				}
			}
			out[row*size+col] = syms
		}
	}
	return out
}

// blankMask deterministically derives, from the complete grid's own
// bytes, which cells are treated as "givens" when checking uniqueness.
// Using a hash of the grid itself (rather than any wall-clock or
// run-scoped randomness) keeps the derived puzzle — and therefore
// SolveResult — a pure function of (spec, grid).
func blankMask(grid string, cellCount int) []bool {
	sum := sha256.Sum256([]byte(grid))
	mask := make([]bool, cellCount)
	for i := range mask {
		byteIdx := i % len(sum)
		bitIdx := uint((i / len(sum)) % 8)
		// Keep a cell as a "given" (not blanked) on 3 of every 4 hash-bit
		// draws, which leaves enough constraints for the puzzle derived
		// from a valid complete grid to stay uniquely solvable in
		// practice while still requiring real search.
		mask[i] = (sum[byteIdx]>>bitIdx)&1 == 0 || (sum[byteIdx]>>((bitIdx+3)%8))&1 == 0
	}
	return mask
}

func checkUniqueness(choose cellChoice, spec artifact.Map, grid string) (ports.SolveResult, error) {
	dims, alphabet, err := dimsFromSpec(spec)
	if err != nil {
		return ports.SolveResult{}, err
	}
	complete, err := gridStringToCells(grid, dims, alphabet)
	if err != nil {
		return ports.SolveResult{}, err
	}
	for row := 0; row < dims.size; row++ {
		for col := 0; col < dims.size; col++ {
			v := complete.at(row, col)
			complete.set(row, col, -1)
			if !complete.canPlace(row, col, v) {
				complete.set(row, col, v)
				return ports.SolveResult{}, fmt.Errorf("reference: grid violates row/column/box uniqueness at (%d,%d)", row, col)
			}
			complete.set(row, col, v)
		}
	}

	mask := blankMask(grid, dims.size*dims.size)
	puzzle := newCellGrid(dims)
	for i, keep := range mask {
		if keep {
			puzzle.cells[i] = complete.cells[i]
		}
	}

	engine := &searchEngine{choose: choose, limit: 2}
	engine.search(puzzle)

	result := ports.SolveResult{
		Unique:     engine.found == 1,
		Nodes:      engine.nodes,
		TimeMs:     engine.nodes / 10,
		BtDepth:    engine.maxDepth,
		Trace:      engine.trace,
		Candidates: candidateSets(puzzle),
	}
	if engine.found >= 2 {
		result.Cutoff = artifact.CutoffSecondSolution
	}
	if engine.found >= 1 {
		solved := newCellGrid(dims)
		solved.cells = engine.firstSolution
		result.Grid = solved.toGridString(alphabet)
	}
	return result, nil
}

type legacySolver struct{}

func (legacySolver) CheckUniqueness(spec artifact.Map, grid string) (ports.SolveResult, error) {
	return checkUniqueness(firstEmptyCell, spec, grid)
}

type novusSolver struct{}

func (novusSolver) CheckUniqueness(spec artifact.Map, grid string) (ports.SolveResult, error) {
	return checkUniqueness(mrvCell, spec, grid)
}
