package router

import (
	"testing"

	"github.com/allinbits/labs/projects/sudokuctl/internal/artifact"
	"github.com/allinbits/labs/projects/sudokuctl/internal/ports"
)

type stubGenerator struct{}

func (stubGenerator) GenerateComplete(spec artifact.Map, seed string) (string, error) {
	return "", nil
}

func registerTestPorts() {
	ports.Register("sudoku", ports.RoleGenerator, "legacy", stubGenerator{})
	ports.Register("sudoku", ports.RoleGenerator, "novus", stubGenerator{})
}

func init() {
	registerTestPorts()
}

func TestResolve_DefaultsWhenNoPolicy(t *testing.T) {
	got, err := Resolve("sudoku", ports.RoleGenerator, "dev", nil, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.ImplID != "legacy" || got.State != "default" || got.SampleRate != 0 {
		t.Fatalf("unexpected defaults: %+v", got)
	}
	if got.DecisionSource != "config" {
		t.Fatalf("DecisionSource = %q, want config", got.DecisionSource)
	}
}

func TestResolve_RejectsUnsupportedRole(t *testing.T) {
	if _, err := Resolve("sudoku", "difficulty", "dev", nil, nil); err == nil {
		t.Fatal("expected ConfigError for unsupported role")
	}
}

func TestResolve_PolicyFileOverridesDefaults(t *testing.T) {
	policy, err := LoadPolicyFile([]byte(`
[modules.sudoku.generator]
impl = "novus"
state = "shadow"
sample_rate = 0.25
`))
	if err != nil {
		t.Fatalf("LoadPolicyFile() error = %v", err)
	}

	got, err := Resolve("sudoku", ports.RoleGenerator, "dev", nil, policy)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.ImplID != "novus" || got.State != "shadow" || got.SampleRate != 0.25 {
		t.Fatalf("unexpected resolved module: %+v", got)
	}
}

func TestResolve_ByProfileOverride(t *testing.T) {
	policy, err := LoadPolicyFile([]byte(`
[modules.sudoku.generator]
impl = "legacy"

[modules.sudoku.generator.by_profile.prod]
impl = "novus"
`))
	if err != nil {
		t.Fatalf("LoadPolicyFile() error = %v", err)
	}

	got, err := Resolve("sudoku", ports.RoleGenerator, "prod", nil, policy)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.ImplID != "novus" {
		t.Fatalf("ImplID = %q, want novus (by_profile override)", got.ImplID)
	}
}

func TestResolve_EnvOverridesPolicy(t *testing.T) {
	policy, err := LoadPolicyFile([]byte(`
[modules.sudoku.generator]
impl = "legacy"
`))
	if err != nil {
		t.Fatalf("LoadPolicyFile() error = %v", err)
	}

	env := map[string]string{"PUZZLE_GENERATOR_IMPL": "novus"}
	got, err := Resolve("sudoku", ports.RoleGenerator, "dev", env, policy)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.ImplID != "novus" || got.DecisionSource != "env" {
		t.Fatalf("env override not applied: %+v", got)
	}
}

func TestResolve_CLIOverridesEnv(t *testing.T) {
	env := map[string]string{
		"PUZZLE_GENERATOR_IMPL":     "novus",
		"CLI_PUZZLE_GENERATOR_IMPL": "legacy",
	}
	got, err := Resolve("sudoku", ports.RoleGenerator, "dev", env, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.ImplID != "legacy" || got.DecisionSource != "cli" {
		t.Fatalf("CLI override not applied: %+v", got)
	}
}

func TestResolve_CIForbidsShadowState(t *testing.T) {
	env := map[string]string{"PUZZLE_GENERATOR_STATE": "shadow"}
	if _, err := Resolve("sudoku", ports.RoleGenerator, "ci", env, nil); err == nil {
		t.Fatal("expected ConfigError for shadow state under ci profile")
	}
}

func TestResolve_FallsBackToLegacyWhenImplMissing(t *testing.T) {
	env := map[string]string{"PUZZLE_GENERATOR_IMPL": "nonexistent"}
	got, err := Resolve("sudoku", ports.RoleGenerator, "dev", env, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !got.FallbackUsed || got.ImplID != "legacy" || got.DecisionSource != "fallback" {
		t.Fatalf("expected fallback to legacy, got %+v", got)
	}
}

func TestResolve_NoFallbackAvailableFails(t *testing.T) {
	env := map[string]string{
		"PUZZLE_GENERATOR_IMPL":  "nonexistent",
		"PUZZLE_GENERATOR_STATE": "default",
	}
	policy, err := LoadPolicyFile([]byte(`
[modules.sudoku.generator]
allow_fallback = false
`))
	if err != nil {
		t.Fatalf("LoadPolicyFile() error = %v", err)
	}
	if _, err := Resolve("sudoku", ports.RoleGenerator, "dev", env, policy); err == nil {
		t.Fatal("expected ConfigError when fallback is disallowed and impl is missing")
	}
}

func TestResolve_SampleRateClampedToUnitInterval(t *testing.T) {
	env := map[string]string{"PUZZLE_GENERATOR_SAMPLE_RATE": "2.5"}
	got, err := Resolve("sudoku", ports.RoleGenerator, "dev", env, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.SampleRate != 1.0 {
		t.Fatalf("SampleRate = %v, want clamped to 1.0", got.SampleRate)
	}
}
