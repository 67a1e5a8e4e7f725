// Package reference provides the two Sudoku-domain implementations this
// module ships with — "legacy" and "novus" — registered against the
// ports registry so the router can resolve either by impl id. Both are
// genuine, general (rows × cols) Sudoku engines; the shadow-compare
// runtime is what makes their differing search strategies interesting,
// not the algorithms themselves (§1 places generator/solver logic out of
// scope as an external collaborator behind a single interface).
package reference

import (
	"fmt"

	"github.com/allinbits/labs/projects/sudokuctl/internal/artifact"
)

// boxDims describes a grid's geometry: size×size cells, divided into
// size boxes of rows×cols cells each.
type boxDims struct {
	size, rows, cols int
	boxesAcross      int // size / cols
	boxesDown        int // size / rows
}

func dimsFromSpec(spec artifact.Map) (boxDims, []string, error) {
	size, ok := intField(spec["size"])
	if !ok || size <= 0 {
		return boxDims{}, nil, fmt.Errorf("reference: spec.size must be a positive integer")
	}
	block, _ := spec["block"].(artifact.Map)
	rows, rowsOK := intField(block["rows"])
	cols, colsOK := intField(block["cols"])
	if !rowsOK || !colsOK || rows <= 0 || cols <= 0 || rows*cols != size {
		return boxDims{}, nil, fmt.Errorf("reference: spec.block must satisfy rows*cols == size")
	}
	alphabetRaw, ok := spec["alphabet"].([]any)
	if !ok || len(alphabetRaw) != size {
		return boxDims{}, nil, fmt.Errorf("reference: spec.alphabet must have length size")
	}
	alphabet := make([]string, size)
	for i, v := range alphabetRaw {
		s, ok := v.(string)
		if !ok {
			return boxDims{}, nil, fmt.Errorf("reference: spec.alphabet entries must be strings")
		}
		alphabet[i] = s
	}

	return boxDims{
		size:        size,
		rows:        rows,
		cols:        cols,
		boxesAcross: size / cols,
		boxesDown:   size / rows,
	}, alphabet, nil
}

func intField(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// boxIndex returns which of the grid's size boxes cell (row, col) belongs
// to, numbered row-major across the boxesAcross × boxesDown box grid.
func (d boxDims) boxIndex(row, col int) int {
	boxRow := row / d.rows
	boxCol := col / d.cols
	return boxRow*d.boxesAcross + boxCol
}

// cellGrid is a size×size mutable working grid of symbol indices, -1 for
// an empty cell, used by both the generator and the solver backtracking
// engines.
type cellGrid struct {
	dims  boxDims
	cells []int // row-major, size*size entries; -1 = empty
}

func newCellGrid(dims boxDims) *cellGrid {
	cells := make([]int, dims.size*dims.size)
	for i := range cells {
		cells[i] = -1
	}
	return &cellGrid{dims: dims, cells: cells}
}

func (g *cellGrid) at(row, col int) int { return g.cells[row*g.dims.size+col] }
func (g *cellGrid) set(row, col, v int) { g.cells[row*g.dims.size+col] = v }

// canPlace reports whether symbol index v can legally occupy (row, col)
// given the grid's current row/column/box contents.
func (g *cellGrid) canPlace(row, col, v int) bool {
	size := g.dims.size
	for c := 0; c < size; c++ {
		if g.at(row, c) == v {
			return false
		}
	}
	for r := 0; r < size; r++ {
		if g.at(r, col) == v {
			return false
		}
	}
	box := g.dims.boxIndex(row, col)
	boxRowStart := (box / g.dims.boxesAcross) * g.dims.rows
	boxColStart := (box % g.dims.boxesAcross) * g.dims.cols
	for r := boxRowStart; r < boxRowStart+g.dims.rows; r++ {
		for c := boxColStart; c < boxColStart+g.dims.cols; c++ {
			if g.at(r, c) == v {
				return false
			}
		}
	}
	return true
}

func (g *cellGrid) toGridString(alphabet []string) string {
	out := make([]byte, 0, len(g.cells))
	for _, v := range g.cells {
		if v < 0 {
			out = append(out, '.')
			continue
		}
		out = append(out, []byte(alphabet[v])...)
	}
	return string(out)
}

func gridStringToCells(grid string, dims boxDims, alphabet []string) (*cellGrid, error) {
	symbolIndex := make(map[string]int, len(alphabet))
	for i, s := range alphabet {
		symbolIndex[s] = i
	}
	runes := []rune(grid)
	if len(runes) != dims.size*dims.size {
		return nil, fmt.Errorf("reference: grid length %d does not equal size^2 (%d)", len(runes), dims.size*dims.size)
	}
	g := newCellGrid(dims)
	for i, r := range runes {
		idx, ok := symbolIndex[string(r)]
		if !ok {
			return nil, fmt.Errorf("reference: symbol %q at position %d is not in the spec alphabet", string(r), i)
		}
		g.cells[i] = idx
	}
	return g, nil
}
