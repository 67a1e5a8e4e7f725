package contracts

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Compiler compiles and caches jsonschema.Schema instances keyed by
// schema id, so concurrent validations against the same schema share one
// compiled instance. Its methods must not be called on a nil *Compiler;
// validate.Validate skips the JSON-Schema check when handed nil. Compiled
// and Validate return an error both when a schema fails to compile and
// when an instance violates it, and the validation center reports either
// as a type.mismatch ERROR.
type Compiler struct {
	catalog *Catalog

	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// NewCompiler returns a Compiler backed by catalog.
func NewCompiler(catalog *Catalog) *Compiler {
	return &Compiler{catalog: catalog}
}

// Compiled returns the compiled *jsonschema.Schema for d, compiling and
// caching it on first use.
func (c *Compiler) Compiled(d Descriptor) (*jsonschema.Schema, error) {
	c.mu.Lock()
	if c.schemas == nil {
		c.schemas = make(map[string]*jsonschema.Schema)
	}
	if cached, ok := c.schemas[d.SchemaID]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	raw, err := c.catalog.Schema(d)
	if err != nil {
		return nil, err
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	// The schema catalog is entirely local; refuse any $ref that would
	// otherwise trigger network or filesystem access outside it.
	compiler.LoadURL = func(url string) (io.ReadCloser, error) {
		return nil, fmt.Errorf("contracts: remote schema loading disabled: %s", url)
	}

	url := "contracts://" + d.SchemaID
	if err := compiler.AddResource(url, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("contracts: add schema resource %s: %w", d.SchemaID, err)
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("contracts: compile schema %s: %w", d.SchemaID, err)
	}

	c.mu.Lock()
	c.schemas[d.SchemaID] = schema
	c.mu.Unlock()
	return schema, nil
}

// Validate runs instance (a decoded JSON value, e.g. from codec.FromJSON)
// against the compiled schema for d.
func (c *Compiler) Validate(d Descriptor, instance any) error {
	schema, err := c.Compiled(d)
	if err != nil {
		return err
	}
	return schema.Validate(instance)
}

// ResetCache drops every compiled schema, forcing recompilation on next use.
func (c *Compiler) ResetCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.schemas = nil
}
