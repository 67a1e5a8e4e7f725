package shadow

import "testing"

func TestSample_RateZeroNeverHits(t *testing.T) {
	rate, err := ParseRate("0")
	if err != nil {
		t.Fatalf("ParseRate() error = %v", err)
	}
	for _, digest := range []string{"aaa", "bbb", "ccc"} {
		hit, err := Sample(SampleParams{Rate: rate, Salt: "s", PuzzleDigest: digest, Sticky: true})
		if err != nil {
			t.Fatalf("Sample() error = %v", err)
		}
		if hit {
			t.Fatalf("rate 0 should never hit, digest %q", digest)
		}
	}
}

func TestSample_RateOneAlwaysHits(t *testing.T) {
	rate, err := ParseRate("1")
	if err != nil {
		t.Fatalf("ParseRate() error = %v", err)
	}
	for _, digest := range []string{"aaa", "bbb", "ccc"} {
		hit, err := Sample(SampleParams{Rate: rate, Salt: "s", PuzzleDigest: digest, Sticky: true})
		if err != nil {
			t.Fatalf("Sample() error = %v", err)
		}
		if !hit {
			t.Fatalf("rate 1 should always hit, digest %q", digest)
		}
	}
}

func TestSample_DeterministicForSameInputs(t *testing.T) {
	rate, err := ParseRate("0.5")
	if err != nil {
		t.Fatalf("ParseRate() error = %v", err)
	}
	params := SampleParams{Rate: rate, Salt: "salt", RunID: "run-1", PuzzleDigest: "deadbeef", Sticky: false}
	first, err := Sample(params)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	second, err := Sample(params)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if first != second {
		t.Fatal("Sample() is not deterministic for identical inputs")
	}
}

func TestSample_StickyIgnoresRunID(t *testing.T) {
	rate, err := ParseRate("0.5")
	if err != nil {
		t.Fatalf("ParseRate() error = %v", err)
	}
	a, err := Sample(SampleParams{Rate: rate, Salt: "salt", RunID: "run-a", PuzzleDigest: "digest", Sticky: true})
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	b, err := Sample(SampleParams{Rate: rate, Salt: "salt", RunID: "run-b", PuzzleDigest: "digest", Sticky: true})
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if a != b {
		t.Fatal("sticky sampling should not depend on run_id")
	}
}

func TestParseRate_RejectsTooManyFractionalDigits(t *testing.T) {
	if _, err := ParseRate("0.1234567"); err == nil {
		t.Fatal("expected error for more than 6 fractional digits")
	}
}

func TestParseRate_RejectsMalformed(t *testing.T) {
	if _, err := ParseRate("not-a-number"); err == nil {
		t.Fatal("expected error for malformed rate")
	}
}
