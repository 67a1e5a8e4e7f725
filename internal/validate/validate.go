package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/allinbits/labs/projects/sudokuctl/internal/artifact"
	"github.com/allinbits/labs/projects/sudokuctl/internal/contracts"
)

// ManagedError wraps a failing Report so callers of AssertValid can recover
// both a human-readable message and the structured findings.
type ManagedError struct {
	msg    string
	Report Report
}

func (e *ManagedError) Error() string { return e.msg }

func isISO8601(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	s = strings.Replace(s, "Z", "+00:00", 1)
	_, err := time.Parse("2006-01-02T15:04:05.999999999-07:00", s)
	if err == nil {
		return true
	}
	_, err = time.Parse(time.RFC3339, strings.Replace(s, "+00:00", "Z", 1))
	return err == nil
}

func envelopeChecks(art artifact.Map, expectType string, descriptor *contracts.Descriptor) []Issue {
	var issues []Issue
	if artifact.GetString(art, "type") != expectType {
		issues = append(issues, errorf("type.mismatch",
			fmt.Sprintf("Expected type %q, got %q", expectType, artifact.GetString(art, "type")), "$.type"))
	}
	if descriptor != nil {
		if artifact.GetString(art, "schema_version") != descriptor.Version {
			issues = append(issues, errorf("schema.mismatch_version", "schema_version does not match catalog", "$.schema_version"))
		}
		if artifact.GetString(art, "schema_id") != descriptor.SchemaID {
			issues = append(issues, errorf("schema.mismatch_id", "schema_id does not match catalog", "$.schema_id"))
		}
		if artifact.GetString(art, "schema_path") != descriptor.SchemaPath {
			issues = append(issues, errorf("schema.mismatch_path", "schema_path does not match catalog", "$.schema_path"))
		}
	}

	specRef := art["spec_ref"]
	if expectType == artifact.TypeSpec {
		if specRef != nil && specRef != "" {
			issues = append(issues, errorf("envelope.bad_type", "Spec must not define spec_ref", "$.spec_ref"))
		}
	} else {
		s, ok := specRef.(string)
		if !ok || s == "" {
			issues = append(issues, errorf("envelope.missing_field", "spec_ref must reference a Spec", "$.spec_ref"))
		}
	}

	if id, ok := art["artifact_id"].(string); !ok || !strings.HasPrefix(id, "sha256-") {
		issues = append(issues, errorf("envelope.missing_field", "artifact_id must start with 'sha256-'", "$.artifact_id"))
	}

	if !isISO8601(art["created_at"]) {
		issues = append(issues, errorf("envelope.bad_type", "created_at must be ISO8601 string", "$.created_at"))
	}

	if artifact.GetString(art, "puzzle_type") != artifact.PuzzleType {
		issues = append(issues, errorf("envelope.bad_type", "puzzle_type must be 'sudoku'", "$.puzzle_type"))
	}

	if runID, ok := art["run_id"].(string); !ok || runID == "" {
		issues = append(issues, errorf("envelope.bad_type", "run_id must be a non-empty string", "$.run_id"))
	}

	switch art["seed"].(type) {
	case string, int, int64:
	default:
		issues = append(issues, errorf("envelope.bad_type", "seed must be string or integer", "$.seed"))
	}

	if stage, ok := art["stage"].(string); !ok || stage == "" {
		issues = append(issues, errorf("envelope.bad_type", "stage must be a non-empty string", "$.stage"))
	}

	parentsRaw, ok := art["parents"].([]any)
	if !ok {
		issues = append(issues, errorf("envelope.bad_type", "parents must be a list", "$.parents"))
	} else {
		seen := make(map[string]bool, len(parentsRaw))
		dup := false
		for i, p := range parentsRaw {
			s, ok := p.(string)
			if !ok || !strings.HasPrefix(s, "sha256-") {
				issues = append(issues, errorf("envelope.bad_type", "parents must contain artifact ids", fmt.Sprintf("$.parents[%d]", i)))
				continue
			}
			if seen[s] {
				dup = true
			}
			seen[s] = true
		}
		if dup {
			issues = append(issues, errorf("envelope.bad_type", "parents must be unique", "$.parents"))
		}
	}

	metrics, ok := art["metrics"].(artifact.Map)
	if !ok {
		issues = append(issues, errorf("envelope.bad_type", "metrics must be an object", "$.metrics"))
	} else if timeMs, ok := asInt(metrics["time_ms"]); !ok || timeMs < 0 {
		issues = append(issues, errorf("envelope.bad_type", "metrics.time_ms must be non-negative integer", "$.metrics.time_ms"))
	}

	return issues
}

func schemaStage(art artifact.Map, expectType string, profile Profile, catalog *contracts.Catalog, compiler *contracts.Compiler) []Issue {
	var descPtr *contracts.Descriptor
	var issues []Issue

	desc, err := catalog.Descriptor(expectType)
	if err != nil {
		issues = append(issues, errorf("schema.not_found", fmt.Sprintf("Unknown artifact type %s", expectType), "$.type"))
	} else {
		descPtr = &desc
	}

	issues = append(issues, envelopeChecks(art, expectType, descPtr)...)

	if descPtr != nil && profile.CheckSchema && compiler != nil {
		if err := compiler.Validate(*descPtr, art); err != nil {
			issues = append(issues, errorf("type.mismatch", err.Error(), "$.schema"))
		}
	}
	return issues
}

func applyOverrides(profile Profile, artifactType string, issues []Issue) (errs, warns []Issue) {
	for _, issue := range issues {
		adjusted := profile.ApplyOverrides(artifactType, issue)
		if adjusted.Severity == SeverityWarn {
			warns = append(warns, adjusted)
		} else {
			errs = append(errs, adjusted)
		}
	}
	return errs, warns
}

// Validate runs the schema, invariant, and cross-reference stages against
// art, gated by profile, and returns the aggregate Report. catalog and
// compiler may be nil to skip catalog-backed schema checks (envelope
// checks still run); resolver may be nil to skip cross-reference
// resolution (each crossref rule then reports a warning instead of
// resolving).
func Validate(art artifact.Map, expectType string, profile Profile, catalog *contracts.Catalog, compiler *contracts.Compiler, resolver Resolver) Report {
	timings := map[string]int64{"schema": 0, "invariants": 0, "crossrefs": 0}
	var allErrors, allWarnings []Issue

	if catalog != nil {
		start := time.Now()
		schemaIssues := schemaStage(art, expectType, profile, catalog, compiler)
		errs, warns := applyOverrides(profile, expectType, schemaIssues)
		allErrors = append(allErrors, errs...)
		allWarnings = append(allWarnings, warns...)
		timings["schema"] = time.Since(start).Milliseconds()
	} else {
		start := time.Now()
		errs, warns := applyOverrides(profile, expectType, envelopeChecks(art, expectType, nil))
		allErrors = append(allErrors, errs...)
		allWarnings = append(allWarnings, warns...)
		timings["schema"] = time.Since(start).Milliseconds()
	}

	var specContext artifact.Map
	if expectType == artifact.TypeSpec {
		specContext = art
	} else if specRef, ok := art["spec_ref"].(string); ok && resolver != nil {
		if candidate, err := resolver.Resolve(specRef); err == nil && artifact.GetString(candidate, "type") == artifact.TypeSpec {
			specContext = candidate
		}
	}

	if profile.CheckInvariants {
		start := time.Now()
		errs, warns := applyOverrides(profile, expectType, RunInvariants(art, specContext, profile))
		allErrors = append(allErrors, errs...)
		allWarnings = append(allWarnings, warns...)
		timings["invariants"] = time.Since(start).Milliseconds()
	}

	if profile.CheckCrossrefs {
		start := time.Now()
		errs, warns := applyOverrides(profile, expectType, RunCrossrefs(art, resolver, profile))
		allErrors = append(allErrors, errs...)
		allWarnings = append(allWarnings, warns...)
		timings["crossrefs"] = time.Since(start).Milliseconds()
	}

	return Report{OK: len(allErrors) == 0, Errors: allErrors, Warnings: allWarnings, TimingsMs: timings}
}

// AssertValid calls Validate and returns a *ManagedError describing the
// first few findings if the report fails (!ok, or warn_as_error with
// warnings present).
func AssertValid(art artifact.Map, expectType string, profile Profile, catalog *contracts.Catalog, compiler *contracts.Compiler, resolver Resolver) error {
	report := Validate(art, expectType, profile, catalog, compiler, resolver)
	if report.OK && !(profile.WarnAsError && len(report.Warnings) > 0) {
		return nil
	}
	issues := append([]Issue{}, report.Errors...)
	if profile.WarnAsError {
		issues = append(issues, report.Warnings...)
	}
	codes := make([]string, 0, len(issues))
	for i, issue := range issues {
		if i == 5 {
			codes = append(codes, "…")
			break
		}
		codes = append(codes, issue.Code)
	}
	return &ManagedError{
		msg:    fmt.Sprintf("Validation failed for %s: %s", expectType, strings.Join(codes, ", ")),
		Report: report,
	}
}

// CheckRefs validates bundle (an ExportBundle artifact) with the
// cross-reference stage enabled, using resolver to follow its inputs.
func CheckRefs(bundle artifact.Map, profile Profile, catalog *contracts.Catalog, compiler *contracts.Compiler, resolver Resolver) (Report, error) {
	if resolver == nil {
		return Report{}, fmt.Errorf("validate: resolver is required for CheckRefs")
	}
	return Validate(bundle, artifact.TypeExportBundle, profile, catalog, compiler, resolver), nil
}
