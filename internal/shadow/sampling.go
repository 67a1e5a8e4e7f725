package shadow

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/cockroachdb/apd/v3"
)

// two64 is 2^64 as an exact decimal, used to scale a sample rate into the
// same range as the uint64 drawn from the material's digest.
var two64 = mustDecimal("18446744073709551616")

func mustDecimal(s string) *apd.Decimal {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("shadow: invalid literal decimal %q: %v", s, err))
	}
	return d
}

// SampleParams are the inputs to the deterministic Bernoulli trial (§4.7.2
// / C9): whether a given puzzle, run, and salt combination is "sampled" for
// shadow comparison.
type SampleParams struct {
	Rate         *apd.Decimal // decimal string in [0,1], parsed by the caller
	Salt         string
	RunID        string
	Sticky       bool
	PuzzleDigest string
}

// Sample reports whether this invocation is sampled for shadow comparison.
// It never compares binary floats: the rate is scaled by 2^64 using
// arbitrary-precision decimal arithmetic and floored to an integer
// threshold, which is then compared against a uint64 drawn from
// sha256(material) — so the same inputs always produce the same verdict,
// on any host.
func Sample(p SampleParams) (bool, error) {
	if p.Rate == nil {
		return false, fmt.Errorf("shadow: sample rate is required")
	}
	ctx := apd.BaseContext.WithPrecision(60)

	zero := apd.New(0, 0)
	one := apd.New(1, 0)
	if p.Rate.Cmp(zero) <= 0 {
		return false, nil
	}
	if p.Rate.Cmp(one) >= 0 {
		return true, nil
	}

	threshold, err := sampleThreshold(ctx, p.Rate)
	if err != nil {
		return false, err
	}

	material := p.Salt
	if !p.Sticky {
		material += p.RunID
	}
	material += "sudoku" + "shadow" + p.PuzzleDigest

	sum := sha256.Sum256([]byte(material))
	u64 := binary.BigEndian.Uint64(sum[:8])
	drawn := new(big.Int).SetUint64(u64)

	return drawn.Cmp(threshold) < 0, nil
}

func sampleThreshold(ctx *apd.Context, rate *apd.Decimal) (*big.Int, error) {
	product := new(apd.Decimal)
	if _, err := ctx.Mul(product, rate, two64); err != nil {
		return nil, fmt.Errorf("shadow: scale sample rate: %w", err)
	}
	floor := new(apd.Decimal)
	if _, err := ctx.Floor(floor, product); err != nil {
		return nil, fmt.Errorf("shadow: floor scaled sample rate: %w", err)
	}
	threshold, ok := new(big.Int).SetString(floor.Text('f'), 10)
	if !ok {
		return nil, fmt.Errorf("shadow: could not parse floored threshold %q", floor.Text('f'))
	}
	return threshold, nil
}

// ParseRate parses a decimal sample-rate string with at most 6 fractional
// digits, as required for sampler inputs (§4.7.1). Numeric (float) callers
// should format their value first and are expected to log a deprecation
// warning at the call site — ParseRate itself only validates shape.
func ParseRate(s string) (*apd.Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("shadow: invalid sample_rate %q: %w", s, err)
	}
	if -d.Exponent > 6 {
		return nil, fmt.Errorf("shadow: sample_rate %q has more than 6 fractional digits", s)
	}
	return d, nil
}
