package router

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// rawDocument is the decoded TOML document: one
// `[modules.<puzzle_kind>.<role>]` table per role, each of which may carry
// a `by_profile` sub-table that PolicyFile.RolePolicy merges per
// (puzzle_kind, role, profile) lookup.
type rawDocument struct {
	Modules map[string]map[string]map[string]any `toml:"modules"`
}

// PolicyFile holds the decoded TOML feature file: one entry per
// (puzzle_kind, role), mirroring the teacher's GlobalConfig/TrackConfig
// layering but repurposed to module routing instead of indexer tracks.
type PolicyFile struct {
	roles map[string]map[string]any // "puzzle_kind/role" -> raw key/value policy, by_profile included (RolePolicy merges it)
}

// LoadPolicyFile parses a TOML document (e.g. read from a router.toml
// configured by CLI/env) into a PolicyFile. An empty or missing file is
// represented by passing empty bytes, which yields a PolicyFile with no
// entries — every role then falls through to built-in defaults.
func LoadPolicyFile(data []byte) (*PolicyFile, error) {
	var doc rawDocument
	if len(data) > 0 {
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, fmt.Errorf("router: parse policy toml: %w", err)
		}
	}

	roles := make(map[string]map[string]any)
	for puzzleKind, rolesCfg := range doc.Modules {
		for role, cfg := range rolesCfg {
			roles[puzzleKind+"/"+role] = cfg
		}
	}
	return &PolicyFile{roles: roles}, nil
}

// RolePolicy returns the merged policy map for (puzzleKind, role, profile):
// the role's own keys (excluding by_profile), overlaid with that
// by_profile table's entry for profile, if any.
func (p *PolicyFile) RolePolicy(puzzleKind, role, profile string) map[string]any {
	merged := make(map[string]any)
	if p == nil {
		return merged
	}
	cfg, ok := p.roles[puzzleKind+"/"+role]
	if !ok {
		return merged
	}
	for k, v := range cfg {
		if k == "by_profile" {
			continue
		}
		merged[k] = v
	}
	byProfile, ok := cfg["by_profile"].(map[string]any)
	if !ok {
		return merged
	}
	profileBlock, ok := byProfile[profile].(map[string]any)
	if !ok {
		return merged
	}
	for k, v := range profileBlock {
		merged[k] = v
	}
	return merged
}
