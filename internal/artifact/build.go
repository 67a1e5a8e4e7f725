package artifact

import (
	"fmt"

	"github.com/allinbits/labs/projects/sudokuctl/internal/codec"
)

// SpecPayload carries the Spec-specific fields (§3.2).
type SpecPayload struct {
	Name            string
	Size            int
	Rows            int
	Cols            int
	Alphabet        []string
	SolverTimeoutMs int64
}

// BuildSpec assembles a Spec envelope and computes its artifact_id. A Spec
// never has a SpecRef or Parents; callers must leave both unset.
func BuildSpec(env EnvelopeFields, payload SpecPayload) (Map, error) {
	m := env.asMap(TypeSpec)
	m["spec_ref"] = nil
	m["name"] = payload.Name
	m["size"] = payload.Size
	m["block"] = Map{"rows": payload.Rows, "cols": payload.Cols}
	m["alphabet"] = payload.Alphabet
	m["limits"] = Map{"solver_timeout_ms": payload.SolverTimeoutMs}
	return finalize(m)
}

// CompleteGridPayload carries the CompleteGrid-specific fields.
type CompleteGridPayload struct {
	Grid string
}

// BuildCompleteGrid assembles a CompleteGrid envelope. canonical_hash is
// computed from the grid bytes, never trusted from the caller.
func BuildCompleteGrid(env EnvelopeFields, payload CompleteGridPayload) (Map, error) {
	m := env.asMap(TypeCompleteGrid)
	m["encoding"] = Map{"kind": "row-major-string", "alphabet": "as-in-spec"}
	m["grid"] = payload.Grid
	m["canonical_hash"] = codec.Digest([]byte(payload.Grid))
	return finalize(m)
}

// VerdictPayload carries the Verdict-specific fields. Exactly one of
// CandidateRef / SolvedRef must be set; BuildVerdict enforces the rule that
// a unique puzzle's reference is SolvedRef.
type VerdictPayload struct {
	Unique       bool
	TimeMs       int64
	Nodes        *int64
	Cutoff       *string
	CandidateRef *string
	SolvedRef    *string
}

// BuildVerdict assembles a Verdict envelope.
func BuildVerdict(env EnvelopeFields, payload VerdictPayload) (Map, error) {
	present := 0
	if payload.CandidateRef != nil {
		present++
	}
	if payload.SolvedRef != nil {
		present++
	}
	if present != 1 {
		return nil, fmt.Errorf("artifact: verdict requires exactly one of candidate_ref/solved_ref, got %d", present)
	}
	if payload.Unique && payload.SolvedRef == nil {
		return nil, fmt.Errorf("artifact: unique verdict must set solved_ref, not candidate_ref")
	}

	m := env.asMap(TypeVerdict)
	m["unique"] = payload.Unique
	m["time_ms"] = payload.TimeMs
	if payload.Nodes != nil {
		m["nodes"] = *payload.Nodes
	}
	if payload.Cutoff != nil {
		m["cutoff"] = *payload.Cutoff
	} else {
		m["cutoff"] = nil
	}
	if payload.CandidateRef != nil {
		m["candidate_ref"] = *payload.CandidateRef
	}
	if payload.SolvedRef != nil {
		m["solved_ref"] = *payload.SolvedRef
	}
	return finalize(m)
}

// ExportBundlePayload carries the ExportBundle-specific fields.
type ExportBundlePayload struct {
	CompleteRef string
	VerdictRef  string
	Template    string
	Page        string
	DPI         int
}

// BuildExportBundle assembles an ExportBundle envelope.
func BuildExportBundle(env EnvelopeFields, payload ExportBundlePayload) (Map, error) {
	if payload.DPI < 72 {
		return nil, fmt.Errorf("artifact: render_meta.dpi must be >= 72, got %d", payload.DPI)
	}
	m := env.asMap(TypeExportBundle)
	m["inputs"] = Map{"complete_ref": payload.CompleteRef, "verdict_ref": payload.VerdictRef}
	m["target"] = Map{"format": "pdf", "template": payload.Template}
	m["render_meta"] = Map{"page": payload.Page, "dpi": payload.DPI}
	return finalize(m)
}

// finalize computes and sets artifact_id on m, which must not already carry
// one (compute_artifact_id always starts from the id-less envelope).
func finalize(m Map) (Map, error) {
	// The validation center and the ports read list fields as []any, the
	// shape decoded JSON takes, so string slices are widened here.
	for k, v := range m {
		if ss, ok := v.([]string); ok {
			widened := make([]any, len(ss))
			for i, s := range ss {
				widened[i] = s
			}
			m[k] = widened
		}
	}
	id, err := codec.ComputeArtifactID(m)
	if err != nil {
		return nil, fmt.Errorf("artifact: compute artifact_id: %w", err)
	}
	m["artifact_id"] = id
	return m, nil
}
