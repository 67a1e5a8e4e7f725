// Package shadow implements the shadow-compare runtime (C7) and its
// sampling primitive (C9, sampling.go): running a candidate (primary)
// solver implementation and, on a sampled fraction of invocations, a
// baseline (secondary) implementation too, classifying any divergence
// and optionally falling back to the baseline's result.
package shadow

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/allinbits/labs/projects/sudokuctl/internal/artifact"
	"github.com/allinbits/labs/projects/sudokuctl/internal/codec"
	"github.com/allinbits/labs/projects/sudokuctl/internal/ports"
)

// Severity levels for a classified outcome, ordered least to most severe.
const (
	SeverityNone     = "NONE"
	SeverityMinor    = "MINOR"
	SeverityMajor    = "MAJOR"
	SeverityCritical = "CRITICAL"
)

// Verdict statuses recorded on a shadow event.
const (
	StatusMatch           = "match"
	StatusMismatch        = "mismatch"
	StatusBudgetExhausted = "budget_exhausted"
)

// Guardrail limits applied to the baseline run (§4.7.4).
type GuardrailLimits struct {
	MaxNodes   int64
	MaxBtDepth int64
	MaxTimeMs  int64
}

// DefaultGuardrailLimits mirrors the thresholds named in §4.7.4.
var DefaultGuardrailLimits = GuardrailLimits{MaxNodes: 200000, MaxBtDepth: 60, MaxTimeMs: 2000}

// Policy is the effective shadow configuration for one invocation, after
// the router's precedence chain (§4.5) has been applied to §4.7.1's
// fields.
type Policy struct {
	Enabled       bool
	SampleRateRaw string // decimal string, parsed via ParseRate
	Primary       string
	Secondary     string
	LogMismatch   bool
	BudgetMsP95   int64
	HashSalt      string
	Sticky        bool
	AllowFallback bool
}

// Task describes one shadow-compare invocation for the solver role.
type Task struct {
	PuzzleKind string
	Spec       artifact.Map
	Grid       string
	RunID      string
	Profile    string
	Policy     Policy

	// CommitSHA, BaselineSHA, and HWFingerprint identify the build and
	// host an event was produced on (§4.7.6); they describe the
	// process, not the comparison, so the caller supplies them. Each
	// defaults to "unknown" if left blank.
	CommitSHA     string
	BaselineSHA   string
	HWFingerprint string

	// Now returns the wall-clock time stamped onto ts_iso8601. Defaults
	// to time.Now().UTC; tests inject a fixed clock.
	Now func() time.Time

	// Guardrail, if set, replaces the built-in fallback decision (a
	// caller-supplied fallback decision per §4.7.3): Run falls back to the
	// baseline exactly when it returns (true, true). Classification and the
	// event's verdict_status are still computed as usual.
	Guardrail func(baseline ports.SolveResult) (fallback bool, ok bool)
}

// Classification is the outcome of comparing baseline against candidate.
type Classification struct {
	Code     string `json:"code"` // "C1".."C6", or "" for NONE
	Severity string `json:"severity"`
	Reason   string `json:"reason"`
}

// Event is the structured record emitted for a sampled invocation
// (§4.7.6).
type Event struct {
	Type              string          `json:"type"`
	RunID             string          `json:"run_id"`
	TsISO8601         string          `json:"ts_iso8601"`
	CommitSHA         string          `json:"commit_sha"`
	BaselineSHA       string          `json:"baseline_sha"`
	HWFingerprint     string          `json:"hw_fingerprint"`
	Profile           string          `json:"profile,omitempty"`
	PuzzleDigest      string          `json:"puzzle_digest"`
	SolverPrimary     string          `json:"solver_primary"`
	SolverShadow      string          `json:"solver_shadow"`
	VerdictStatus     string          `json:"verdict_status"`
	TimeMsPrimary     int64           `json:"time_ms_primary"`
	TimeMsShadow      int64           `json:"time_ms_shadow"`
	DiffSummary       string          `json:"diff_summary"`
	SolvedRefDigest   string          `json:"solved_ref_digest,omitempty"`
	SampleRate        string          `json:"sample_rate"`
	SolveTraceSHA256  string          `json:"solve_trace_sha256,omitempty"`
	StateHashSHA256   string          `json:"state_hash_sha256,omitempty"`
	EnvelopeJCSSHA256 string          `json:"envelope_jcs_sha256,omitempty"`
	Taxonomy          *Classification `json:"taxonomy,omitempty"`
	Nodes             int64           `json:"nodes,omitempty"`
	BtDepth           int64           `json:"bt_depth,omitempty"`
	TimeMs            int64           `json:"time_ms,omitempty"`
	LimitHit          string          `json:"limit_hit,omitempty"`
}

// Result is the outcome of Run: the chosen SolveResult (candidate, or
// baseline on a CRITICAL fallback), whether sampling hit, the event built
// for a sampled invocation (nil if not sampled), and the counter name the
// caller should increment (§4.7.7).
type Result struct {
	Chosen         ports.SolveResult
	Sampled        bool
	FallbackUsed   bool
	Classification Classification
	Event          *Event
	Counter        string
}

func puzzleDigest(spec artifact.Map, grid string) (string, error) {
	specBytes, err := codec.Canonicalize(spec)
	if err != nil {
		return "", fmt.Errorf("shadow: canonicalize spec for digest: %w", err)
	}
	sum := sha256.Sum256(append(specBytes, []byte(grid)...))
	return hex.EncodeToString(sum[:]), nil
}

// Run executes task's candidate solver always, and its baseline solver
// when sampled, per §4.7.3–§4.7.7.
func Run(task Task) (Result, error) {
	primary, err := ports.Lookup(task.PuzzleKind, ports.RoleSolver, task.Policy.Primary)
	if err != nil {
		return Result{}, fmt.Errorf("shadow: resolve primary solver: %w", err)
	}
	candidateSolver, ok := primary.(ports.Solver)
	if !ok {
		return Result{}, fmt.Errorf("shadow: implementation %q for role solver does not satisfy ports.Solver", task.Policy.Primary)
	}
	candidate, err := candidateSolver.CheckUniqueness(task.Spec, task.Grid)
	if err != nil {
		return Result{}, fmt.Errorf("shadow: candidate solver: %w", err)
	}

	if !task.Policy.Enabled {
		return Result{Chosen: candidate, Counter: "shadow_skipped"}, nil
	}

	digest, err := puzzleDigest(task.Spec, task.Grid)
	if err != nil {
		return Result{}, err
	}
	rate, err := ParseRate(task.Policy.SampleRateRaw)
	if err != nil {
		return Result{}, err
	}
	hit, err := Sample(SampleParams{
		Rate:         rate,
		Salt:         task.Policy.HashSalt,
		RunID:        task.RunID,
		Sticky:       task.Policy.Sticky,
		PuzzleDigest: digest,
	})
	if err != nil {
		return Result{}, err
	}
	if !hit {
		return Result{Chosen: candidate, Counter: "shadow_skipped"}, nil
	}

	secondary, err := ports.Lookup(task.PuzzleKind, ports.RoleSolver, task.Policy.Secondary)
	if err != nil {
		return Result{}, fmt.Errorf("shadow: resolve secondary solver: %w", err)
	}
	baselineSolver, ok := secondary.(ports.Solver)
	if !ok {
		return Result{}, fmt.Errorf("shadow: implementation %q for role solver does not satisfy ports.Solver", task.Policy.Secondary)
	}
	baseline, err := baselineSolver.CheckUniqueness(task.Spec, task.Grid)
	if err != nil {
		return Result{}, fmt.Errorf("shadow: baseline solver: %w", err)
	}

	class, guardrailHit := classify(candidate, baseline)

	fallbackUsed := false
	chosen := candidate
	if task.Guardrail != nil {
		if fb, ok := task.Guardrail(baseline); ok && fb {
			fallbackUsed = true
			chosen = baseline
		}
	} else if class.Severity == SeverityCritical && task.Policy.AllowFallback {
		fallbackUsed = true
		chosen = baseline
	}

	status := StatusMatch
	if guardrailHit {
		status = StatusBudgetExhausted
	} else if class.Code != "" {
		status = StatusMismatch
	}

	counter := "shadow_ok"
	if status == StatusBudgetExhausted {
		counter = "shadow_mismatch_C4"
	} else if class.Code != "" {
		counter = "shadow_mismatch_" + class.Code
	}

	// Always build the event and hand it back to the caller; LogMismatch
	// only gates whether the caller persists it to the event log, per
	// §4.7.6 ("appended to the log only on mismatch/guardrail").
	event, err := buildEvent(task, digest, candidate, baseline, status, class, guardrailHit)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Chosen:         chosen,
		Sampled:        true,
		FallbackUsed:   fallbackUsed,
		Classification: class,
		Event:          event,
		Counter:        counter,
	}, nil
}

// ShouldPersist reports whether r's event should be appended to the event
// log, per §4.7.6: only on mismatch or guardrail, and only when the
// policy's log_mismatch flag is set.
func ShouldPersist(r Result, policy Policy) bool {
	if r.Event == nil || !policy.LogMismatch {
		return false
	}
	return r.Event.VerdictStatus == StatusMismatch || r.Event.VerdictStatus == StatusBudgetExhausted
}

// exceededGuardrails returns, in alphabetical order, the names of every
// guardrail dimension baseline exceeded.
func exceededGuardrails(baseline ports.SolveResult) []string {
	var dims []string
	if baseline.BtDepth > DefaultGuardrailLimits.MaxBtDepth {
		dims = append(dims, "bt_depth")
	}
	if baseline.Nodes > DefaultGuardrailLimits.MaxNodes {
		dims = append(dims, "nodes")
	}
	if baseline.TimeMs > DefaultGuardrailLimits.MaxTimeMs {
		dims = append(dims, "time_ms")
	}
	sort.Strings(dims)
	return dims
}

// classify applies §4.7.4's two classifiers in order: the guardrail
// (resource exhaustion of the baseline run), then the payload
// classifier, which compares baseline against candidate grid, solve
// trace, and candidate sets in that precedence (scenario S3).
func classify(candidate, baseline ports.SolveResult) (Classification, bool) {
	if dims := exceededGuardrails(baseline); len(dims) > 0 {
		limits := joinPlus(dims)
		return Classification{
			Code:     "C4",
			Severity: SeverityMajor,
			Reason:   "guardrail_exceeded_" + limits,
		}, true
	}

	if candidate.Unique != baseline.Unique {
		return Classification{Code: "C1", Severity: SeverityCritical, Reason: "unique_flag_mismatch"}, false
	}
	if candidate.Unique && baseline.Unique && candidate.Grid != baseline.Grid {
		return Classification{Code: "C2", Severity: SeverityCritical, Reason: "grid_mismatch"}, false
	}
	if !tracesEqual(candidate.Trace, baseline.Trace) {
		return Classification{Code: "C3", Severity: SeverityMajor, Reason: "solve_trace_mismatch"}, false
	}
	if !candidatesEqual(candidate.Candidates, baseline.Candidates) {
		return Classification{Code: "C5", Severity: SeverityMinor, Reason: "candidate_set_mismatch"}, false
	}
	if candidate.Cutoff != baseline.Cutoff {
		return Classification{Code: "C6", Severity: SeverityMinor, Reason: "cutoff_mismatch"}, false
	}
	return Classification{Severity: SeverityNone}, false
}

func joinPlus(dims []string) string {
	out := dims[0]
	for _, d := range dims[1:] {
		out += "+" + d
	}
	return out
}

func tracesEqual(a, b []ports.TraceStep) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func candidatesEqual(a, b map[int][]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || len(va) != len(vb) {
			return false
		}
		for i := range va {
			if va[i] != vb[i] {
				return false
			}
		}
	}
	return true
}

func specAlphabet(spec artifact.Map) ([]string, int, error) {
	size, ok := intField(spec["size"])
	if !ok || size <= 0 {
		return nil, 0, fmt.Errorf("shadow: spec.size must be a positive integer")
	}
	raw, ok := spec["alphabet"].([]any)
	if !ok || len(raw) != size {
		return nil, 0, fmt.Errorf("shadow: spec.alphabet must have length size")
	}
	alphabet := make([]string, size)
	for i, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, 0, fmt.Errorf("shadow: spec.alphabet entries must be strings")
		}
		alphabet[i] = s
	}
	return alphabet, size, nil
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

// gridSymbolIndices maps grid's row-major runes back to alphabet symbol
// indices, -1 for a blank ('.') cell.
func gridSymbolIndices(alphabet []string, grid string) ([]int, error) {
	index := make(map[string]int, len(alphabet))
	for i, s := range alphabet {
		index[s] = i
	}
	runes := []rune(grid)
	out := make([]int, len(runes))
	for i, r := range runes {
		if r == '.' {
			out[i] = -1
			continue
		}
		idx, ok := index[string(r)]
		if !ok {
			return nil, fmt.Errorf("shadow: symbol %q at position %d is not in the spec alphabet", string(r), i)
		}
		out[i] = idx
	}
	return out, nil
}

// candidateBitmap reconstructs a flat cellCount×len(alphabet) bitmap: one
// byte per (cell, symbol) pair, 1 where the symbol is a candidate for
// that cell. It is built from sr.Candidates when populated, falling back
// to a one-hot bitmap of sr.Grid's filled cells otherwise (§4.7.6).
func candidateBitmap(spec artifact.Map, sr ports.SolveResult) ([]byte, error) {
	alphabet, size, err := specAlphabet(spec)
	if err != nil {
		return nil, err
	}
	cells := size * size
	bitmap := make([]byte, cells*len(alphabet))

	if len(sr.Candidates) > 0 {
		for cell, syms := range sr.Candidates {
			if cell < 0 || cell >= cells {
				continue
			}
			for _, sym := range syms {
				if sym >= 0 && sym < len(alphabet) {
					bitmap[cell*len(alphabet)+sym] = 1
				}
			}
		}
		return bitmap, nil
	}

	if sr.Grid == "" {
		return bitmap, nil
	}
	indices, err := gridSymbolIndices(alphabet, sr.Grid)
	if err != nil {
		return nil, err
	}
	for cell, sym := range indices {
		if sym >= 0 {
			bitmap[cell*len(alphabet)+sym] = 1
		}
	}
	return bitmap, nil
}

// stateHash computes §4.7.6's state_hash_sha256: sha256(candidate_bitmap
// ‖ grid_bytes), a position fingerprint independent of trace ordering.
func stateHash(spec artifact.Map, sr ports.SolveResult) (string, error) {
	bitmap, err := candidateBitmap(spec, sr)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(append(bitmap, []byte(sr.Grid)...))
	return hex.EncodeToString(sum[:]), nil
}

func solveTraceHash(trace []ports.TraceStep) (string, error) {
	if len(trace) == 0 {
		return "", nil
	}
	encoded, err := codec.Canonicalize(trace)
	if err != nil {
		return "", fmt.Errorf("shadow: canonicalize solve trace: %w", err)
	}
	return codec.Sha256Hex(encoded), nil
}

// solvedRefDigest follows the Open Question resolution: the hex digest
// of the solved grid string when the candidate found one, empty
// otherwise — the source normalises to a digest of the artifact id
// when the caller has one; the shadow runtime only has the raw grid.
func solvedRefDigest(sr ports.SolveResult) string {
	if sr.Grid == "" {
		return ""
	}
	return codec.Sha256Hex([]byte(sr.Grid))
}

func buildEvent(task Task, digest string, candidate, baseline ports.SolveResult, status string, class Classification, guardrailHit bool) (*Event, error) {
	evType := "sudoku.shadow_sample.v1"
	if status != StatusMatch {
		evType = "sudoku.shadow_mismatch.v1"
	}
	diffSummary := "none"
	if class.Code != "" {
		diffSummary = class.Code + ":" + class.Reason
	}

	now := task.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	commitSHA := task.CommitSHA
	if commitSHA == "" {
		commitSHA = "unknown"
	}
	baselineSHA := task.BaselineSHA
	if baselineSHA == "" {
		baselineSHA = "unknown"
	}
	hwFingerprint := task.HWFingerprint
	if hwFingerprint == "" {
		hwFingerprint = "unknown"
	}

	stateDigest, err := stateHash(task.Spec, candidate)
	if err != nil {
		return nil, fmt.Errorf("shadow: compute state_hash_sha256: %w", err)
	}
	traceDigest, err := solveTraceHash(candidate.Trace)
	if err != nil {
		return nil, err
	}

	ev := &Event{
		Type:             evType,
		RunID:            task.RunID,
		TsISO8601:        now().Format("2006-01-02T15:04:05.000Z"),
		CommitSHA:        commitSHA,
		BaselineSHA:      baselineSHA,
		HWFingerprint:    hwFingerprint,
		Profile:          task.Profile,
		PuzzleDigest:     digest,
		SolverPrimary:    task.Policy.Primary,
		SolverShadow:     task.Policy.Secondary,
		VerdictStatus:    status,
		TimeMsPrimary:    candidate.TimeMs,
		TimeMsShadow:     baseline.TimeMs,
		DiffSummary:      diffSummary,
		SolvedRefDigest:  solvedRefDigest(candidate),
		SampleRate:       task.Policy.SampleRateRaw,
		SolveTraceSHA256: traceDigest,
		StateHashSHA256:  stateDigest,
	}
	if class.Code != "" || guardrailHit {
		c := class
		ev.Taxonomy = &c
	}
	if guardrailHit {
		ev.Nodes = baseline.Nodes
		ev.BtDepth = baseline.BtDepth
		ev.TimeMs = baseline.TimeMs
		ev.LimitHit = joinPlus(exceededGuardrails(baseline))
	}
	return ev, nil
}
