package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DigestPrefix is prepended to every hex-encoded sha256 digest used as a
// content address anywhere in the pipeline (artifact ids, canonical_hash,
// state_hash_sha256, solved_ref_digest, …).
const DigestPrefix = "sha256-"

// Sha256Hex returns the lower-case hex sha256 digest of data, unprefixed.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Digest returns the "sha256-<hex>" content address of data.
func Digest(data []byte) string {
	return DigestPrefix + Sha256Hex(data)
}

// ComputeArtifactID returns "sha256-" + hex(sha256(canonical(obj without
// artifact_id))). obj is expected to be a map[string]any (or a struct that
// marshals to one); the artifact_id field, if present, is dropped before
// canonicalization so that the id is a pure function of the rest of the
// envelope.
func ComputeArtifactID(obj any) (string, error) {
	generic, err := ToGenericMap(obj)
	if err != nil {
		return "", err
	}
	m, ok := generic.(map[string]any)
	if !ok {
		return "", fmt.Errorf("codec: ComputeArtifactID requires an object, got %T", generic)
	}

	stripped := make(map[string]any, len(m))
	for k, v := range m {
		if k == "artifact_id" {
			continue
		}
		stripped[k] = v
	}

	bytes, err := Canonicalize(stripped)
	if err != nil {
		return "", err
	}
	return Digest(bytes), nil
}
