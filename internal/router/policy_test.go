package router

import "testing"

func TestLoadPolicyFile_Empty(t *testing.T) {
	p, err := LoadPolicyFile(nil)
	if err != nil {
		t.Fatalf("LoadPolicyFile(nil) error = %v", err)
	}
	if got := p.RolePolicy("sudoku", "generator", "dev"); len(got) != 0 {
		t.Fatalf("expected empty policy, got %+v", got)
	}
}

func TestLoadPolicyFile_MergesByProfile(t *testing.T) {
	p, err := LoadPolicyFile([]byte(`
[modules.sudoku.solver]
impl = "legacy"
sample_rate = 0.1

[modules.sudoku.solver.by_profile.prod]
sample_rate = 0.5
`))
	if err != nil {
		t.Fatalf("LoadPolicyFile() error = %v", err)
	}

	dev := p.RolePolicy("sudoku", "solver", "dev")
	if dev["sample_rate"] != 0.1 {
		t.Fatalf("dev sample_rate = %v, want 0.1", dev["sample_rate"])
	}

	prod := p.RolePolicy("sudoku", "solver", "prod")
	if prod["sample_rate"] != 0.5 {
		t.Fatalf("prod sample_rate = %v, want 0.5 (profile override)", prod["sample_rate"])
	}
	if prod["impl"] != "legacy" {
		t.Fatalf("prod impl = %v, want legacy (inherited, not overridden)", prod["impl"])
	}
}

func TestLoadPolicyFile_RejectsMalformedTOML(t *testing.T) {
	if _, err := LoadPolicyFile([]byte("not = [valid toml")); err == nil {
		t.Fatal("expected error for malformed TOML")
	}
}
