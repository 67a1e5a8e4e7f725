package validate

import (
	"encoding/json"
	"fmt"

	"github.com/allinbits/labs/projects/sudokuctl/internal/artifact"
	"github.com/allinbits/labs/projects/sudokuctl/internal/codec"
)

// Resolver loads an artifact by id for the cross-reference stage. A
// *store.Resolver satisfies this via its Resolve method.
type Resolver interface {
	Resolve(id string) (artifact.Map, error)
}

// InvariantRule is a single per-type structural rule. specCtx is the
// artifact's governing Spec when one is known, used by rules that check a
// CompleteGrid's grid against the Spec's size/alphabet.
type InvariantRule struct {
	Name  string
	Check func(art artifact.Map, specCtx artifact.Map, profile Profile) []Issue
}

// CrossRefRule resolves and checks references out of art.
type CrossRefRule struct {
	Name  string
	Check func(art artifact.Map, resolver Resolver, profile Profile) []Issue
}

type ruleSetForType struct {
	invariants []InvariantRule
	crossrefs  []CrossRefRule
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func specSize(art, _ artifact.Map, _ Profile) []Issue {
	size, sizeOK := asInt(art["size"])
	if !sizeOK {
		return []Issue{errorf("type.mismatch", "Spec.size must be an integer", "$.size")}
	}
	block, _ := art["block"].(artifact.Map)
	rows, rowsOK := asInt(block["rows"])
	cols, colsOK := asInt(block["cols"])
	if !rowsOK || !colsOK {
		return []Issue{errorf("envelope.missing_field", "block.rows and block.cols must be integers", "$.block")}
	}
	if size != rows*cols {
		return []Issue{errorf("invariant.spec.size_block_mismatch",
			fmt.Sprintf("size %d does not match block dimensions %dx%d", size, rows, cols), "$.size")}
	}
	return nil
}

func specAlphabetLength(art, _ artifact.Map, _ Profile) []Issue {
	alphabet, ok := art["alphabet"].([]any)
	if !ok {
		return []Issue{errorf("type.mismatch", "alphabet must be an array", "$.alphabet")}
	}
	size, sizeOK := asInt(art["size"])
	if !sizeOK {
		return []Issue{errorf("type.mismatch", "Spec.size must be an integer", "$.size")}
	}
	if int64(len(alphabet)) != size {
		return []Issue{errorf("invariant.spec.alphabet_length",
			fmt.Sprintf("alphabet length %d does not equal size %d", len(alphabet), size), "$.alphabet")}
	}
	return nil
}

func specAlphabetUnique(art, _ artifact.Map, _ Profile) []Issue {
	alphabet, ok := art["alphabet"].([]any)
	if !ok {
		return nil
	}
	var issues []Issue
	seen := make(map[string]bool, len(alphabet))
	for i, v := range alphabet {
		symbol, ok := v.(string)
		if !ok {
			issues = append(issues, errorf("type.mismatch", "alphabet entries must be strings", fmt.Sprintf("$.alphabet[%d]", i)))
			continue
		}
		if seen[symbol] {
			issues = append(issues, errorf("invariant.spec.alphabet_unique",
				fmt.Sprintf("symbol %q is duplicated in alphabet", symbol), fmt.Sprintf("$.alphabet[%d]", i)))
		}
		seen[symbol] = true
	}
	return issues
}

func specSolverTimeout(art, _ artifact.Map, _ Profile) []Issue {
	limits, ok := art["limits"].(artifact.Map)
	if !ok {
		return []Issue{errorf("envelope.missing_field", "limits section is required", "$.limits")}
	}
	timeout, ok := asInt(limits["solver_timeout_ms"])
	if !ok || timeout < 0 {
		return []Issue{errorf("invariant.spec.limits_solver_timeout",
			"limits.solver_timeout_ms must be a non-negative integer", "$.limits.solver_timeout_ms")}
	}
	return nil
}

func gridEncoding(art, _ artifact.Map, _ Profile) []Issue {
	encoding, ok := art["encoding"].(artifact.Map)
	if !ok {
		return []Issue{errorf("type.mismatch", "encoding must be an object", "$.encoding")}
	}
	if kind, _ := encoding["kind"].(string); kind != "row-major-string" {
		return []Issue{errorf("invariant.grid.encoding_kind",
			fmt.Sprintf("encoding.kind must be 'row-major-string', got %q", encoding["kind"]), "$.encoding.kind")}
	}
	return nil
}

func gridLength(art, spec artifact.Map, _ Profile) []Issue {
	grid, ok := art["grid"].(string)
	if !ok {
		return []Issue{errorf("type.mismatch", "grid must be a string", "$.grid")}
	}
	if spec == nil {
		return nil
	}
	size, ok := asInt(spec["size"])
	if !ok {
		return nil
	}
	expected := size * size
	if int64(len([]rune(grid))) != expected {
		return []Issue{errorf("invariant.grid.length",
			fmt.Sprintf("grid length %d does not equal size^2 (%d)", len([]rune(grid)), expected), "$.grid")}
	}
	return nil
}

func gridSymbols(art, spec artifact.Map, _ Profile) []Issue {
	grid, ok := art["grid"].(string)
	if !ok || spec == nil {
		return nil
	}
	alphabetRaw, ok := spec["alphabet"].([]any)
	if !ok {
		return nil
	}
	allowed := make(map[string]bool, len(alphabetRaw))
	for _, v := range alphabetRaw {
		if s, ok := v.(string); ok {
			allowed[s] = true
		}
	}
	var issues []Issue
	for i, r := range []rune(grid) {
		symbol := string(r)
		if !allowed[symbol] {
			issues = append(issues, errorf("invariant.grid.symbol_out_of_alphabet",
				fmt.Sprintf("symbol %q not present in Spec alphabet", symbol), fmt.Sprintf("$.grid[%d]", i)))
		}
	}
	return issues
}

func gridCanonicalHash(art, _ artifact.Map, _ Profile) []Issue {
	canonical, hasCanonical := art["canonical_hash"]
	grid, gridOK := art["grid"].(string)
	if !hasCanonical || canonical == nil || !gridOK {
		return nil
	}
	canonicalStr, ok := canonical.(string)
	if !ok {
		return []Issue{warnf("invariant.grid.canonical_hash", "canonical_hash must be a string", "$.canonical_hash")}
	}
	expected := codec.Digest([]byte(grid))
	if canonicalStr != expected {
		return []Issue{warnf("invariant.grid.canonical_hash",
			fmt.Sprintf("canonical_hash %q does not match computed %q", canonicalStr, expected), "$.canonical_hash")}
	}
	return nil
}

func verdictXOR(art, _ artifact.Map, _ Profile) []Issue {
	present := 0
	if s, ok := art["candidate_ref"].(string); ok && s != "" {
		present++
	}
	if s, ok := art["solved_ref"].(string); ok && s != "" {
		present++
	}
	if present != 1 {
		return []Issue{errorf("verdict.input_ref.xor_violation",
			"Exactly one of candidate_ref or solved_ref must be provided", "$.candidate_ref")}
	}
	return nil
}

func verdictUnique(art, _ artifact.Map, _ Profile) []Issue {
	if _, ok := art["unique"].(bool); ok {
		return nil
	}
	return []Issue{errorf("type.mismatch", "unique must be a boolean", "$.unique")}
}

func verdictTime(art, _ artifact.Map, _ Profile) []Issue {
	timeMs, ok := asInt(art["time_ms"])
	if !ok || timeMs < 0 {
		return []Issue{errorf("verdict.time.invalid", "time_ms must be non-negative integer", "$.time_ms")}
	}
	return nil
}

func verdictCutoff(art, _ artifact.Map, _ Profile) []Issue {
	cutoff := art["cutoff"]
	if cutoff == nil {
		return nil
	}
	if s, ok := cutoff.(string); ok && (s == artifact.CutoffTimeout || s == artifact.CutoffSecondSolution) {
		return nil
	}
	return []Issue{errorf("verdict.cutoff.invalid",
		"cutoff must be null, 'TIMEOUT' or 'SECOND_SOLUTION_FOUND'", "$.cutoff")}
}

func bundleFormat(art, _ artifact.Map, _ Profile) []Issue {
	target, ok := art["target"].(artifact.Map)
	if !ok {
		return []Issue{errorf("envelope.missing_field", "target section is required", "$.target")}
	}
	if fmtVal, _ := target["format"].(string); fmtVal != "pdf" {
		return []Issue{errorf("invariant.export.format", "target.format must be 'pdf'", "$.target.format")}
	}
	return nil
}

func resolveRef(id string, resolver Resolver, path string) (artifact.Map, []Issue) {
	if resolver == nil {
		return nil, []Issue{warnf("crossref.artifact_missing", "store resolver not configured", path)}
	}
	resolved, err := resolver.Resolve(id)
	if err != nil {
		return nil, []Issue{errorf("crossref.artifact_missing", fmt.Sprintf("artifact %s not found: %v", id, err), path)}
	}
	return resolved, nil
}

func specRefExists(art artifact.Map, resolver Resolver, _ Profile) []Issue {
	specRef, ok := art["spec_ref"].(string)
	if !ok || specRef == "" {
		return []Issue{errorf("crossref.artifact_missing", "spec_ref must reference a Spec", "$.spec_ref")}
	}
	resolved, issues := resolveRef(specRef, resolver, "$.spec_ref")
	if issues != nil {
		return issues
	}
	if artifact.GetString(resolved, "type") != artifact.TypeSpec {
		return []Issue{errorf("crossref.type_mismatch", "spec_ref must point to Spec", "$.spec_ref")}
	}
	return nil
}

func verdictRefsExist(art artifact.Map, resolver Resolver, _ Profile) []Issue {
	var issues []Issue
	for _, field := range []string{"candidate_ref", "solved_ref"} {
		ref, present := art[field]
		if ref == nil || !present {
			continue
		}
		refStr, ok := ref.(string)
		if !ok || refStr == "" {
			issues = append(issues, errorf("crossref.type_mismatch", fmt.Sprintf("%s must be a reference id", field), "$."+field))
			continue
		}
		resolved, newIssues := resolveRef(refStr, resolver, "$."+field)
		issues = append(issues, newIssues...)
		if resolved != nil && artifact.GetString(resolved, "type") != artifact.TypeCompleteGrid {
			issues = append(issues, errorf("crossref.type_mismatch", fmt.Sprintf("%s must point to CompleteGrid", field), "$."+field))
		}
	}
	return issues
}

func bundleInputsExist(art artifact.Map, resolver Resolver, _ Profile) []Issue {
	inputs, ok := art["inputs"].(artifact.Map)
	if !ok {
		return []Issue{errorf("envelope.missing_field", "inputs section is required", "$.inputs")}
	}
	var issues []Issue
	for _, field := range []string{"complete_ref", "verdict_ref"} {
		ref, ok := inputs[field].(string)
		if !ok || ref == "" {
			issues = append(issues, errorf("crossref.artifact_missing", fmt.Sprintf("%s must be a reference id", field), "$.inputs."+field))
			continue
		}
		_, newIssues := resolveRef(ref, resolver, "$.inputs."+field)
		issues = append(issues, newIssues...)
	}
	return issues
}

func bundleTypesMatch(art artifact.Map, resolver Resolver, _ Profile) []Issue {
	inputs, ok := art["inputs"].(artifact.Map)
	if !ok {
		return nil
	}
	expected := map[string]string{"complete_ref": artifact.TypeCompleteGrid, "verdict_ref": artifact.TypeVerdict}
	var issues []Issue
	for field, expectedType := range expected {
		ref, ok := inputs[field].(string)
		if !ok || ref == "" {
			continue
		}
		resolved, newIssues := resolveRef(ref, resolver, "$.inputs."+field)
		issues = append(issues, newIssues...)
		if resolved != nil && artifact.GetString(resolved, "type") != expectedType {
			issues = append(issues, errorf("crossref.type_mismatch", fmt.Sprintf("%s must point to %s", field, expectedType), "$.inputs."+field))
		}
	}
	return issues
}

func bundleSpecConsistency(art artifact.Map, resolver Resolver, _ Profile) []Issue {
	bundleSpec, ok := art["spec_ref"].(string)
	if !ok || bundleSpec == "" {
		return nil
	}
	inputs, ok := art["inputs"].(artifact.Map)
	if !ok {
		return nil
	}
	var issues []Issue
	for _, field := range []string{"complete_ref", "verdict_ref"} {
		ref, ok := inputs[field].(string)
		if !ok || ref == "" {
			continue
		}
		resolved, newIssues := resolveRef(ref, resolver, "$.inputs."+field)
		issues = append(issues, newIssues...)
		if resolved != nil && artifact.GetString(resolved, "spec_ref") != bundleSpec {
			issues = append(issues, errorf("crossref.spec_mismatch",
				fmt.Sprintf("%s spec_ref %q does not match bundle spec_ref %q", field, artifact.GetString(resolved, "spec_ref"), bundleSpec),
				"$.inputs."+field))
		}
	}
	return issues
}

var rules = map[string]ruleSetForType{
	artifact.TypeSpec: {
		invariants: []InvariantRule{
			{"spec_size", specSize},
			{"spec_alphabet_length", specAlphabetLength},
			{"spec_alphabet_unique", specAlphabetUnique},
			{"spec_solver_timeout", specSolverTimeout},
		},
	},
	artifact.TypeCompleteGrid: {
		invariants: []InvariantRule{
			{"grid_encoding", gridEncoding},
			{"grid_length", gridLength},
			{"grid_symbols", gridSymbols},
			{"grid_canonical_hash", gridCanonicalHash},
		},
		crossrefs: []CrossRefRule{
			{"spec_ref_exists", specRefExists},
		},
	},
	artifact.TypeVerdict: {
		invariants: []InvariantRule{
			{"verdict_xor", verdictXOR},
			{"verdict_unique", verdictUnique},
			{"verdict_time", verdictTime},
			{"verdict_cutoff", verdictCutoff},
		},
		crossrefs: []CrossRefRule{
			{"spec_ref_exists", specRefExists},
			{"verdict_refs_exist", verdictRefsExist},
		},
	},
	artifact.TypeExportBundle: {
		invariants: []InvariantRule{
			{"bundle_format", bundleFormat},
		},
		crossrefs: []CrossRefRule{
			{"bundle_inputs_exist", bundleInputsExist},
			{"bundle_types_match", bundleTypesMatch},
			{"bundle_spec_consistency", bundleSpecConsistency},
		},
	},
}

// RunInvariants executes every invariant rule registered for art's type
// that profile enables.
func RunInvariants(art, specCtx artifact.Map, profile Profile) []Issue {
	typ := artifact.GetString(art, "type")
	var issues []Issue
	for _, rule := range rules[typ].invariants {
		if profile.IsInvariantEnabled(typ, rule.Name) {
			issues = append(issues, rule.Check(art, specCtx, profile)...)
		}
	}
	return issues
}

// RunCrossrefs executes every cross-reference rule registered for art's
// type that profile enables.
func RunCrossrefs(art artifact.Map, resolver Resolver, profile Profile) []Issue {
	typ := artifact.GetString(art, "type")
	var issues []Issue
	for _, rule := range rules[typ].crossrefs {
		if profile.IsCrossrefEnabled(typ, rule.Name) {
			issues = append(issues, rule.Check(art, resolver, profile)...)
		}
	}
	return issues
}
