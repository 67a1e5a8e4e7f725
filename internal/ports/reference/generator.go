package reference

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand"

	"github.com/allinbits/labs/projects/sudokuctl/internal/artifact"
)

// seedToSource turns an opaque seed string into a deterministic
// math/rand source: the same seed always produces the same sequence of
// shuffles below, so GenerateComplete(spec, seed) is a pure function.
func seedToSource(seed string) *rand.Rand {
	sum := sha256.Sum256([]byte(seed))
	n := binary.BigEndian.Uint64(sum[:8])
	return rand.New(rand.NewSource(int64(n)))
}

func shuffledSymbols(size int, rng *rand.Rand) []int {
	order := make([]int, size)
	for i := range order {
		order[i] = i
	}
	rng.Shuffle(size, func(i, j int) { order[i], order[j] = order[j], order[i] })
	return order
}

// legacyGenerator fills a complete grid with plain row-major backtracking,
// trying symbols in a seed-derived shuffled order at every cell so that
// different seeds produce different completions of the same spec.
type legacyGenerator struct{}

func (legacyGenerator) GenerateComplete(spec artifact.Map, seed string) (string, error) {
	dims, alphabet, err := dimsFromSpec(spec)
	if err != nil {
		return "", err
	}
	rng := seedToSource(seed)
	g := newCellGrid(dims)
	if !fillBacktrack(g, rng, 0) {
		return "", fmt.Errorf("reference: no complete grid exists for the given spec geometry")
	}
	return g.toGridString(alphabet), nil
}

func fillBacktrack(g *cellGrid, rng *rand.Rand, pos int) bool {
	size := g.dims.size
	total := size * size
	if pos >= total {
		return true
	}
	row, col := pos/size, pos%size
	for _, v := range shuffledSymbols(size, rng) {
		if !g.canPlace(row, col, v) {
			continue
		}
		g.set(row, col, v)
		if fillBacktrack(g, rng, pos+1) {
			return true
		}
		g.set(row, col, -1)
	}
	return false
}
