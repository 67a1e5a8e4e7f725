package artifact_test

import (
	"strings"
	"testing"

	"github.com/allinbits/labs/projects/sudokuctl/internal/artifact"
)

func baseEnv(stage string) artifact.EnvelopeFields {
	return artifact.EnvelopeFields{
		SchemaVersion: "1.0.0",
		SchemaID:      "sudoku/spec.schema.json",
		SchemaPath:    "schemas/spec.schema.json",
		CreatedAt:     "2026-01-01T00:00:00.000Z",
		RunID:         "run-1",
		Seed:          "seed-1",
		Stage:         stage,
		TimeMs:        10,
	}
}

func TestBuildSpec_SetsArtifactIDAndNoSpecRef(t *testing.T) {
	art, err := artifact.BuildSpec(baseEnv("stage.config.spec"), artifact.SpecPayload{
		Name:            "classic-9x9",
		Size:            9,
		Rows:            3,
		Cols:            3,
		Alphabet:        []string{"1", "2", "3", "4", "5", "6", "7", "8", "9"},
		SolverTimeoutMs: 5000,
	})
	if err != nil {
		t.Fatalf("BuildSpec() error = %v", err)
	}
	if art["spec_ref"] != nil {
		t.Fatalf("expected Spec to have nil spec_ref, got %v", art["spec_ref"])
	}
	id, ok := art["artifact_id"].(string)
	if !ok || !strings.HasPrefix(id, "sha256-") {
		t.Fatalf("expected artifact_id with sha256- prefix, got %v", art["artifact_id"])
	}
}

func TestBuildSpec_DeterministicForIdenticalInput(t *testing.T) {
	payload := artifact.SpecPayload{
		Name: "classic-9x9", Size: 9, Rows: 3, Cols: 3,
		Alphabet: []string{"1", "2", "3", "4", "5", "6", "7", "8", "9"}, SolverTimeoutMs: 5000,
	}
	a1, err := artifact.BuildSpec(baseEnv("stage.config.spec"), payload)
	if err != nil {
		t.Fatalf("BuildSpec() error = %v", err)
	}
	a2, err := artifact.BuildSpec(baseEnv("stage.config.spec"), payload)
	if err != nil {
		t.Fatalf("BuildSpec() error = %v", err)
	}
	if a1["artifact_id"] != a2["artifact_id"] {
		t.Fatalf("expected identical artifact_id for identical input, got %v vs %v", a1["artifact_id"], a2["artifact_id"])
	}
}

func TestBuildCompleteGrid_ComputesCanonicalHash(t *testing.T) {
	art, err := artifact.BuildCompleteGrid(baseEnv("stage.generate.complete"), artifact.CompleteGridPayload{Grid: "1234341221434321"})
	if err != nil {
		t.Fatalf("BuildCompleteGrid() error = %v", err)
	}
	hash, ok := art["canonical_hash"].(string)
	if !ok || hash == "" {
		t.Fatalf("expected non-empty canonical_hash, got %v", art["canonical_hash"])
	}
}

func TestBuildVerdict_RejectsBothRefsSet(t *testing.T) {
	ref := "sha256-aaaa"
	_, err := artifact.BuildVerdict(baseEnv("stage.solve.verify"), artifact.VerdictPayload{
		Unique: true, TimeMs: 1, CandidateRef: &ref, SolvedRef: &ref,
	})
	if err == nil {
		t.Fatal("expected error when both candidate_ref and solved_ref are set")
	}
}

func TestBuildVerdict_RejectsNeitherRefSet(t *testing.T) {
	_, err := artifact.BuildVerdict(baseEnv("stage.solve.verify"), artifact.VerdictPayload{Unique: false, TimeMs: 1})
	if err == nil {
		t.Fatal("expected error when neither candidate_ref nor solved_ref is set")
	}
}

func TestBuildVerdict_RejectsUniqueWithCandidateRef(t *testing.T) {
	ref := "sha256-aaaa"
	_, err := artifact.BuildVerdict(baseEnv("stage.solve.verify"), artifact.VerdictPayload{
		Unique: true, TimeMs: 1, CandidateRef: &ref,
	})
	if err == nil {
		t.Fatal("expected error when a unique verdict sets candidate_ref instead of solved_ref")
	}
}

func TestBuildVerdict_AcceptsUniqueWithSolvedRef(t *testing.T) {
	ref := "sha256-aaaa"
	art, err := artifact.BuildVerdict(baseEnv("stage.solve.verify"), artifact.VerdictPayload{
		Unique: true, TimeMs: 1, SolvedRef: &ref,
	})
	if err != nil {
		t.Fatalf("BuildVerdict() error = %v", err)
	}
	if art["solved_ref"] != ref {
		t.Fatalf("expected solved_ref %q, got %v", ref, art["solved_ref"])
	}
}

func TestBuildExportBundle_RejectsLowDPI(t *testing.T) {
	_, err := artifact.BuildExportBundle(baseEnv("stage.export.bundle"), artifact.ExportBundlePayload{
		CompleteRef: "sha256-a", VerdictRef: "sha256-b", Template: "classic", Page: "A4", DPI: 10,
	})
	if err == nil {
		t.Fatal("expected error for DPI below 72")
	}
}

func TestBuildExportBundle_AcceptsValidDPI(t *testing.T) {
	art, err := artifact.BuildExportBundle(baseEnv("stage.export.bundle"), artifact.ExportBundlePayload{
		CompleteRef: "sha256-a", VerdictRef: "sha256-b", Template: "classic", Page: "A4", DPI: 300,
	})
	if err != nil {
		t.Fatalf("BuildExportBundle() error = %v", err)
	}
	inputs, ok := art["inputs"].(artifact.Map)
	if !ok || inputs["complete_ref"] != "sha256-a" || inputs["verdict_ref"] != "sha256-b" {
		t.Fatalf("expected inputs to carry complete_ref/verdict_ref, got %v", art["inputs"])
	}
}

func TestGetString_ReturnsEmptyForMissingOrWrongType(t *testing.T) {
	m := artifact.Map{"name": "classic", "size": 9}
	if got := artifact.GetString(m, "name"); got != "classic" {
		t.Fatalf("GetString(name) = %q, want classic", got)
	}
	if got := artifact.GetString(m, "size"); got != "" {
		t.Fatalf("GetString(size) = %q, want empty for non-string field", got)
	}
	if got := artifact.GetString(m, "missing"); got != "" {
		t.Fatalf("GetString(missing) = %q, want empty", got)
	}
}

func TestGetStringPtr_NilForMissingOrNull(t *testing.T) {
	m := artifact.Map{"spec_ref": nil}
	if p := artifact.GetStringPtr(m, "spec_ref"); p != nil {
		t.Fatalf("expected nil for null field, got %v", *p)
	}
	if p := artifact.GetStringPtr(m, "absent"); p != nil {
		t.Fatalf("expected nil for absent field, got %v", *p)
	}
	m2 := artifact.Map{"spec_ref": "sha256-a"}
	p := artifact.GetStringPtr(m2, "spec_ref")
	if p == nil || *p != "sha256-a" {
		t.Fatalf("expected pointer to sha256-a, got %v", p)
	}
}
