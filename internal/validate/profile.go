package validate

import "fmt"

// Profile controls which checks run and how severities are remapped. The
// three built-in profiles are dev, ci, and prod; dev runs every check at
// its natural severity, ci promotes warnings to errors, and prod drops a
// few invariants (grid_canonical_hash is a cheap sanity check, not a
// load-bearing one) and demotes verdict.cutoff.invalid to a warning.
type Profile struct {
	Name              string
	CheckSchema       bool
	CheckInvariants   bool
	CheckCrossrefs    bool
	WarnAsError       bool
	InvariantRules    map[string]map[string]bool
	CrossrefRules     map[string]map[string]bool
	SeverityOverrides map[string]map[string]string
}

// IsInvariantEnabled reports whether rule ruleName runs for artifactType.
// A type with no explicit rule set runs every rule (nil means "all").
func (p Profile) IsInvariantEnabled(artifactType, ruleName string) bool {
	rules, ok := p.InvariantRules[artifactType]
	if !ok {
		return true
	}
	return rules[ruleName]
}

// IsCrossrefEnabled is the cross-reference-stage analogue of
// IsInvariantEnabled.
func (p Profile) IsCrossrefEnabled(artifactType, ruleName string) bool {
	rules, ok := p.CrossrefRules[artifactType]
	if !ok {
		return true
	}
	return rules[ruleName]
}

// ApplyOverrides remaps issue's severity per the profile's
// severity_overrides table ("*" entries apply to every type, then
// type-specific entries take precedence).
func (p Profile) ApplyOverrides(artifactType string, issue Issue) Issue {
	desired := ""
	if general, ok := p.SeverityOverrides["*"]; ok {
		if v, ok := general[issue.Code]; ok {
			desired = v
		}
	}
	if specific, ok := p.SeverityOverrides[artifactType]; ok {
		if v, ok := specific[issue.Code]; ok {
			desired = v
		}
	}
	if desired != "" && desired != issue.Severity {
		issue.Severity = desired
	}
	return issue
}

func ruleSet(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

var devAndCIInvariantRules = map[string]map[string]bool{
	"Spec":         ruleSet("spec_size", "spec_alphabet_length", "spec_alphabet_unique", "spec_solver_timeout"),
	"CompleteGrid": ruleSet("grid_encoding", "grid_length", "grid_symbols", "grid_canonical_hash"),
	"Verdict":      ruleSet("verdict_xor", "verdict_unique", "verdict_time", "verdict_cutoff"),
	"ExportBundle": ruleSet("bundle_format"),
}

var crossrefRules = map[string]map[string]bool{
	"CompleteGrid": ruleSet("spec_ref_exists"),
	"Verdict":      ruleSet("spec_ref_exists", "verdict_refs_exist"),
	"ExportBundle": ruleSet("bundle_inputs_exist", "bundle_types_match", "bundle_spec_consistency"),
}

var prodInvariantRules = map[string]map[string]bool{
	"Spec":         ruleSet("spec_size", "spec_alphabet_length", "spec_alphabet_unique", "spec_solver_timeout"),
	"CompleteGrid": ruleSet("grid_encoding", "grid_length", "grid_symbols"),
	"Verdict":      ruleSet("verdict_xor", "verdict_unique", "verdict_time", "verdict_cutoff"),
	"ExportBundle": ruleSet("bundle_format"),
}

var builtinProfiles = map[string]Profile{
	"dev": {
		Name:            "dev",
		CheckSchema:     true,
		CheckInvariants: true,
		CheckCrossrefs:  true,
		WarnAsError:     false,
		InvariantRules:  devAndCIInvariantRules,
		CrossrefRules:   crossrefRules,
	},
	"ci": {
		Name:            "ci",
		CheckSchema:     true,
		CheckInvariants: true,
		CheckCrossrefs:  true,
		WarnAsError:     true,
		InvariantRules:  devAndCIInvariantRules,
		CrossrefRules:   crossrefRules,
	},
	"prod": {
		Name:            "prod",
		CheckSchema:     true,
		CheckInvariants: true,
		CheckCrossrefs:  true,
		WarnAsError:     false,
		InvariantRules:  prodInvariantRules,
		CrossrefRules:   crossrefRules,
		SeverityOverrides: map[string]map[string]string{
			"Verdict": {"verdict.cutoff.invalid": SeverityWarn},
		},
	},
}

// GetProfile returns the named built-in profile, defaulting to "dev" when
// name is empty.
func GetProfile(name string) (Profile, error) {
	if name == "" {
		name = "dev"
	}
	p, ok := builtinProfiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("validate: unknown validation profile %q", name)
	}
	return p, nil
}
