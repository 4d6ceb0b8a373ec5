// Package record defines the signed-record envelope shared by every
// persisted GitGov entity: a header carrying the payload checksum and
// Ed25519 signatures, and a typed payload.
//
// Checksums and signatures are computed over the RFC 8785 (JCS) canonical
// JSON form of the payload, so any two serializations of the same value
// hash identically regardless of key order or whitespace.
package record

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Canonicalize returns the RFC 8785 canonical JSON encoding of v.
func Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: pre-marshal failed: %w", err)
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: jcs transform failed: %w", err)
	}
	return out, nil
}

// Checksum returns the hex SHA-256 digest of the canonical JSON form of
// payload. This is the value stored in Header.PayloadChecksum.
func Checksum(payload any) (string, error) {
	b, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
