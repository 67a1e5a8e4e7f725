// Package contracts implements the schema catalog and loader (C3): it maps
// artifact types to schema descriptors and loads the referenced JSON Schema
// documents from a local contracts tree, with process-wide caching so
// repeated validations never re-read or re-compile the same schema.
package contracts

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// Descriptor is one catalog entry: the version, schema id, and schema path
// a type's artifacts must carry and validate against.
type Descriptor struct {
	ArtifactType string
	Version      string
	SchemaID     string
	SchemaPath   string
}

// Catalog loads schema descriptors and schema documents from a contracts
// directory (PuzzleContracts/ by convention), caching both process-wide.
type Catalog struct {
	fs   afero.Fs
	root string

	mu          sync.Mutex
	descriptors map[string]Descriptor
	schemas     map[string]json.RawMessage
}

// New returns a Catalog rooted at root (the contracts directory containing
// catalog.json and the schema files it references).
func New(root string, fs afero.Fs) *Catalog {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Catalog{fs: fs, root: root}
}

type rawEntry struct {
	Version    string `json:"version"`
	SchemaID   string `json:"schema_id"`
	SchemaPath string `json:"schema_path"`
}

// Descriptors loads and caches catalog.json, returning the full type →
// Descriptor map.
func (c *Catalog) Descriptors() (map[string]Descriptor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.descriptors != nil {
		return c.descriptors, nil
	}

	path := filepath.Join(c.root, "catalog.json")
	data, err := afero.ReadFile(c.fs, path)
	if err != nil {
		return nil, fmt.Errorf("contracts: read catalog: %w", err)
	}

	var raw map[string]rawEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("contracts: parse catalog: %w", err)
	}

	descriptors := make(map[string]Descriptor, len(raw))
	for typ, entry := range raw {
		descriptors[typ] = Descriptor{
			ArtifactType: typ,
			Version:      entry.Version,
			SchemaID:     entry.SchemaID,
			SchemaPath:   entry.SchemaPath,
		}
	}
	c.descriptors = descriptors
	return descriptors, nil
}

// Descriptor returns the catalog entry for artifactType.
func (c *Catalog) Descriptor(artifactType string) (Descriptor, error) {
	descriptors, err := c.Descriptors()
	if err != nil {
		return Descriptor{}, err
	}
	d, ok := descriptors[artifactType]
	if !ok {
		return Descriptor{}, fmt.Errorf("contracts: unknown artifact type %q", artifactType)
	}
	return d, nil
}

// Schema loads and caches the JSON Schema document named by descriptor's
// schema_id/schema_path, rejecting remote URIs and any path that escapes
// the contracts root.
func (c *Catalog) Schema(d Descriptor) (json.RawMessage, error) {
	if strings.Contains(d.SchemaPath, "://") {
		return nil, fmt.Errorf("contracts: remote schema paths are not permitted: %s", d.SchemaPath)
	}

	resolved := filepath.Join(c.root, filepath.Clean("/"+d.SchemaPath))
	absRoot, err := filepath.Abs(c.root)
	if err != nil {
		return nil, fmt.Errorf("contracts: resolve contracts root: %w", err)
	}
	absResolved, err := filepath.Abs(resolved)
	if err != nil {
		return nil, fmt.Errorf("contracts: resolve schema path: %w", err)
	}
	if !strings.HasPrefix(absResolved, absRoot) {
		return nil, fmt.Errorf("contracts: schema path escapes contracts directory: %s", d.SchemaPath)
	}

	cacheKey := d.SchemaID + "|" + d.SchemaPath

	c.mu.Lock()
	if c.schemas == nil {
		c.schemas = make(map[string]json.RawMessage)
	}
	if cached, ok := c.schemas[cacheKey]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	data, err := afero.ReadFile(c.fs, absResolved)
	if err != nil {
		return nil, fmt.Errorf("contracts: read schema %s: %w", d.SchemaPath, err)
	}

	var probe struct {
		ID string `json:"$id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("contracts: parse schema %s: %w", d.SchemaPath, err)
	}
	if probe.ID != "" && probe.ID != d.SchemaID {
		return nil, fmt.Errorf("contracts: schema id mismatch: catalog has %q, schema has %q", d.SchemaID, probe.ID)
	}

	c.mu.Lock()
	c.schemas[cacheKey] = data
	c.mu.Unlock()
	return data, nil
}

// ResetCache clears the process-wide descriptor and schema caches. Tests
// that mutate the underlying contracts tree between cases must call this
// to avoid observing stale entries.
func (c *Catalog) ResetCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.descriptors = nil
	c.schemas = nil
}
