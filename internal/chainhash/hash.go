// Package chainhash computes the canonical digest of a block: the
// alphabetical-field JSON encoding, SHA-256'd, as a lowercase hex string.
package chainhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Canonical is satisfied by any value whose JSON encoding is already in
// canonical (alphabetical, stable) field order.
type Canonical interface {
	CanonicalJSON() ([]byte, error)
}

// Of returns the lowercase hex SHA-256 digest of v's canonical encoding.
func Of(v Canonical) (string, error) {
	payload, err := v.CanonicalJSON()
	if err != nil {
		return "", fmt.Errorf("chainhash: %w", err)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}

// MarshalCanonical is a helper for types whose struct fields are already
// declared in alphabetical order: encoding/json preserves declaration
// order for structs, so this is the canonical encoding directly.
func MarshalCanonical(v any) ([]byte, error) {
	return json.Marshal(v)
}
