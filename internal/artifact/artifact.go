// Package artifact defines the four artifact types (Spec, CompleteGrid,
// Verdict, ExportBundle) as plain map[string]any envelopes — the same shape
// the validation center, the store, and the ports exchange — plus builder
// helpers that fill in the common envelope fields and compute the
// content-addressed artifact_id.
package artifact

// Type names, exactly as carried in the envelope's "type" field.
const (
	TypeSpec         = "Spec"
	TypeCompleteGrid = "CompleteGrid"
	TypeVerdict      = "Verdict"
	TypeExportBundle = "ExportBundle"
)

// PuzzleType is the constant value every artifact's puzzle_type field holds.
const PuzzleType = "sudoku"

// Cutoff reasons a Verdict may report.
const (
	CutoffTimeout         = "TIMEOUT"
	CutoffSecondSolution  = "SECOND_SOLUTION_FOUND"
)

// Map is a convenience alias for the generic envelope representation used
// throughout the store, validator, and shadow runtime.
type Map = map[string]any

// EnvelopeFields carries the inputs common to every artifact type, before
// the type-specific payload and the artifact_id are added.
type EnvelopeFields struct {
	SchemaVersion string
	SchemaID      string
	SchemaPath    string
	CreatedAt     string // ISO-8601 UTC, millisecond precision
	SpecRef       *string
	RunID         string
	Seed          any // string or int
	Stage         string
	Parents       []string
	TimeMs        int64
	Warnings      []string
	Errors        []string
	Ext           map[string]any
}

func (f EnvelopeFields) asMap(typ string) Map {
	warnings := f.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	errs := f.Errors
	if errs == nil {
		errs = []string{}
	}
	parents := f.Parents
	if parents == nil {
		parents = []string{}
	}
	ext := f.Ext
	if ext == nil {
		ext = map[string]any{}
	}

	var specRef any
	if f.SpecRef != nil {
		specRef = *f.SpecRef
	}

	return Map{
		"type":           typ,
		"schema_version": f.SchemaVersion,
		"schema_id":      f.SchemaID,
		"schema_path":    f.SchemaPath,
		"created_at":     f.CreatedAt,
		"puzzle_type":    PuzzleType,
		"spec_ref":       specRef,
		"run_id":         f.RunID,
		"seed":           f.Seed,
		"stage":          f.Stage,
		"parents":        parents,
		"metrics":        Map{"time_ms": f.TimeMs},
		"warnings":       warnings,
		"errors":         errs,
		"ext":            ext,
	}
}

// GetString reads a string field from an artifact map, returning "" if
// absent or of the wrong type.
func GetString(m Map, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// GetStringPtr reads a nullable string field.
func GetStringPtr(m Map, key string) *string {
	v, ok := m[key]
	if !ok || v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

// GetBool reads a bool field, defaulting to false.
func GetBool(m Map, key string) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return false
}
