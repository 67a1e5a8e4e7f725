package contracts

import (
	"testing"

	"github.com/spf13/afero"
)

func memFSWithCatalog(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	must := func(path, content string) {
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("seed fs write %s: %v", path, err)
		}
	}
	must("/contracts/catalog.json", `{
		"Spec": {"version":"1.0.0","schema_id":"sudoku/spec.schema.json","schema_path":"schemas/spec.schema.json"}
	}`)
	must("/contracts/schemas/spec.schema.json", `{
		"$id": "sudoku/spec.schema.json",
		"type": "object",
		"properties": {"type": {"const": "Spec"}},
		"required": ["type"]
	}`)
	return fs
}

func TestCatalog_Descriptor(t *testing.T) {
	c := New("/contracts", memFSWithCatalog(t))

	d, err := c.Descriptor("Spec")
	if err != nil {
		t.Fatalf("Descriptor() error = %v", err)
	}
	if d.Version != "1.0.0" || d.SchemaID != "sudoku/spec.schema.json" {
		t.Fatalf("unexpected descriptor: %+v", d)
	}

	if _, err := c.Descriptor("Unknown"); err == nil {
		t.Fatal("Descriptor() expected error for unknown type, got nil")
	}
}

func TestCatalog_Schema_RejectsEscape(t *testing.T) {
	c := New("/contracts", memFSWithCatalog(t))
	d := Descriptor{ArtifactType: "Spec", Version: "1.0.0", SchemaID: "x", SchemaPath: "../../etc/passwd"}
	if _, err := c.Schema(d); err == nil {
		t.Fatal("Schema() expected error for path escape, got nil")
	}
}

func TestCatalog_Schema_RejectsRemote(t *testing.T) {
	c := New("/contracts", memFSWithCatalog(t))
	d := Descriptor{ArtifactType: "Spec", Version: "1.0.0", SchemaID: "x", SchemaPath: "https://example.com/spec.json"}
	if _, err := c.Schema(d); err == nil {
		t.Fatal("Schema() expected error for remote path, got nil")
	}
}

func TestCatalog_Schema_CachesAndMatchesID(t *testing.T) {
	c := New("/contracts", memFSWithCatalog(t))
	d, err := c.Descriptor("Spec")
	if err != nil {
		t.Fatalf("Descriptor() error = %v", err)
	}

	first, err := c.Schema(d)
	if err != nil {
		t.Fatalf("Schema() error = %v", err)
	}
	second, err := c.Schema(d)
	if err != nil {
		t.Fatalf("Schema() (cached) error = %v", err)
	}
	if string(first) != string(second) {
		t.Fatal("cached schema bytes differ from first read")
	}
}

func TestCatalog_ResetCache(t *testing.T) {
	c := New("/contracts", memFSWithCatalog(t))
	if _, err := c.Descriptors(); err != nil {
		t.Fatalf("Descriptors() error = %v", err)
	}
	c.ResetCache()
	if c.descriptors != nil {
		t.Fatal("ResetCache() did not clear descriptor cache")
	}
}

func TestCompiler_ValidateAcceptsConformingInstance(t *testing.T) {
	c := New("/contracts", memFSWithCatalog(t))
	d, err := c.Descriptor("Spec")
	if err != nil {
		t.Fatalf("Descriptor() error = %v", err)
	}

	compiler := NewCompiler(c)
	if err := compiler.Validate(d, map[string]any{"type": "Spec"}); err != nil {
		t.Fatalf("Validate() unexpected error = %v", err)
	}
	if err := compiler.Validate(d, map[string]any{"type": "Wrong"}); err == nil {
		t.Fatal("Validate() expected error for non-conforming instance, got nil")
	}
}
