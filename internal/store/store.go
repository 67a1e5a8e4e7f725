// Package store implements the content-addressed artifact store (C2):
// canonical bytes on disk under <root>/artifacts/<Type>/<artifact_id>.json,
// addressed and verified by the codec package. The layout and the
// afero.Fs-backed functional-options constructor follow the teacher's disk
// storage provider.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/allinbits/labs/projects/sudokuctl/internal/artifact"
	"github.com/allinbits/labs/projects/sudokuctl/internal/codec"
)

// ErrNotFound is returned by Load and ResolveReference when an artifact_id
// cannot be located under any type directory.
var ErrNotFound = errors.New("store: artifact not found")

// ErrIDMismatch is returned by Save when the caller-supplied artifact_id
// disagrees with the freshly computed one.
var ErrIDMismatch = errors.New("store: caller-supplied artifact_id does not match computed id")

const artifactsDir = "artifacts"

// allTypes lists the type directories Load/ResolveReference scan, in a
// fixed order so repeated lookups are deterministic.
var allTypes = []string{
	artifact.TypeSpec,
	artifact.TypeCompleteGrid,
	artifact.TypeVerdict,
	artifact.TypeExportBundle,
}

// Store persists and retrieves content-addressed artifacts under a typed
// directory layout.
type Store struct {
	fs   afero.Fs
	root string
}

// Option configures a Store.
type Option func(*Store)

// WithFS sets a custom filesystem, primarily for testing with
// afero.NewMemMapFs().
func WithFS(fs afero.Fs) Option {
	return func(s *Store) { s.fs = fs }
}

// New creates a Store rooted at root (e.g. the pipeline's configured output
// directory). The artifacts/<Type> subdirectories are created lazily on
// first Save.
func New(root string, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("store: root path is required")
	}
	s := &Store{fs: afero.NewOsFs(), root: root}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) typeDir(typ string) string {
	return filepath.Join(s.root, artifactsDir, typ)
}

func (s *Store) pathFor(typ, id string) string {
	return filepath.Join(s.typeDir(typ), id+".json")
}

// Save computes the artifact's content-addressed id, writes canonical bytes
// to <root>/artifacts/<Type>/<id>.json, and returns the id. Saving a second
// time with identical content is a no-op write of identical bytes
// (idempotent, P2). If the artifact already carries an artifact_id field
// that disagrees with the computed one, Save refuses with ErrIDMismatch.
func (s *Store) Save(obj artifact.Map) (string, error) {
	typ, _ := obj["type"].(string)
	if typ == "" {
		return "", fmt.Errorf("store: artifact is missing a type field")
	}

	id, err := codec.ComputeArtifactID(obj)
	if err != nil {
		return "", fmt.Errorf("store: compute artifact id: %w", err)
	}
	if existing, ok := obj["artifact_id"].(string); ok && existing != "" && existing != id {
		return "", fmt.Errorf("%w: have %s, computed %s", ErrIDMismatch, existing, id)
	}

	withID := make(artifact.Map, len(obj)+1)
	for k, v := range obj {
		withID[k] = v
	}
	withID["artifact_id"] = id

	bytes, err := codec.Canonicalize(withID)
	if err != nil {
		return "", fmt.Errorf("store: canonicalize: %w", err)
	}

	dir := s.typeDir(typ)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("store: create type directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.pathFor(typ, id), bytes, 0o644); err != nil {
		return "", fmt.Errorf("store: write artifact: %w", err)
	}
	return id, nil
}

// Load resolves id by scanning each type directory and returns the decoded
// artifact, or ErrNotFound if no file matches.
func (s *Store) Load(id string) (artifact.Map, error) {
	for _, typ := range allTypes {
		path := s.pathFor(typ, id)
		data, err := afero.ReadFile(s.fs, path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("store: read %s: %w", path, err)
		}
		m, err := decode(data)
		if err != nil {
			return nil, fmt.Errorf("store: decode %s: %w", path, err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// ResolveReference interprets ref as either an artifact_id (if it has the
// "sha256-" prefix) or a filesystem path relative to the store root.
func (s *Store) ResolveReference(ref string) (artifact.Map, error) {
	if strings.HasPrefix(ref, codec.DigestPrefix) {
		return s.Load(ref)
	}
	path := ref
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, ref)
	}
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	return decode(data)
}

// Resolver adapts Store.Load to the resolver-function shape the validation
// center's cross-reference stage expects, with per-call caching so a single
// validation pass never re-reads the same artifact twice.
type Resolver struct {
	store *Store
	cache map[string]artifact.Map
}

// NewResolver returns a caching resolver backed by s.
func NewResolver(s *Store) *Resolver {
	return &Resolver{store: s, cache: make(map[string]artifact.Map)}
}

// Resolve loads id, serving repeat lookups from an in-memory cache.
func (r *Resolver) Resolve(id string) (artifact.Map, error) {
	if cached, ok := r.cache[id]; ok {
		return cached, nil
	}
	m, err := r.store.Load(id)
	if err != nil {
		return nil, err
	}
	r.cache[id] = m
	return m, nil
}

func decode(data []byte) (artifact.Map, error) {
	generic, err := codec.FromJSON(data)
	if err != nil {
		return nil, err
	}
	m, ok := generic.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("store: decoded artifact is not an object")
	}
	return m, nil
}
