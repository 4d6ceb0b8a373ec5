package record

import (
	"crypto/ed25519"
	"encoding/base64"
	"time"
)

// Kind identifies the payload type carried by a record envelope.
type Kind string

const (
	KindActor     Kind = "actor"
	KindAgent     Kind = "agent"
	KindTask      Kind = "task"
	KindCycle     Kind = "cycle"
	KindFeedback  Kind = "feedback"
	KindExecution Kind = "execution"
	KindChangelog Kind = "changelog"
)

// HeaderVersion is the only envelope version this build reads or writes.
const HeaderVersion = "1.0"

// PlaceholderSignature marks a signature slot reserved during two-phase
// record creation. Records carrying it must never be persisted; the
// identity adapter replaces placeholders in place when it signs.
const PlaceholderSignature = "placeholder"

// Signature is one Ed25519 signature over the canonical payload bytes.
type Signature struct {
	KeyID     string `json:"keyId"`
	Role      string `json:"role"`
	Notes     string `json:"notes"`
	Signature string `json:"signature"` // base64 Ed25519
	Timestamp int64  `json:"timestamp"` // epoch seconds
}

// Header is the envelope metadata shared by every persisted record.
type Header struct {
	Version         string      `json:"version"`
	Type            Kind        `json:"type"`
	PayloadChecksum string      `json:"payloadChecksum"` // hex SHA-256 over canonical payload
	Signatures      []Signature `json:"signatures"`
}

// Record is the canonical envelope: header plus typed payload. The first
// signature is always the author's.
type Record[T any] struct {
	Header  Header `json:"header"`
	Payload T      `json:"payload"`
}

// New assembles an envelope for payload with a freshly computed checksum
// and the given signatures. It does not validate the signatures.
func New[T any](kind Kind, payload T, sigs ...Signature) (*Record[T], error) {
	sum, err := Checksum(payload)
	if err != nil {
		return nil, Wrap(CodeInvalidData, err, "checksum %s payload", kind)
	}
	return &Record[T]{
		Header: Header{
			Version:         HeaderVersion,
			Type:            kind,
			PayloadChecksum: sum,
			Signatures:      sigs,
		},
		Payload: payload,
	}, nil
}

// Sign produces a signature over the canonical JSON form of payload.
func Sign(payload any, priv ed25519.PrivateKey, keyID, role, notes string, now time.Time) (Signature, error) {
	b, err := Canonicalize(payload)
	if err != nil {
		return Signature{}, Wrap(CodeInvalidData, err, "canonicalize payload for signing")
	}
	sig := ed25519.Sign(priv, b)
	return Signature{
		KeyID:     keyID,
		Role:      role,
		Notes:     notes,
		Signature: base64.StdEncoding.EncodeToString(sig),
		Timestamp: now.Unix(),
	}, nil
}

// PublicKeyResolver maps a signing key id (an actor id) to its base64
// Ed25519 public key. It is injected so that envelope verification never
// depends on the identity adapter.
type PublicKeyResolver func(keyID string) (string, bool)

// Verify checks envelope integrity: the stored checksum must match a
// recomputation over the payload, and every signature must verify against
// the public key the resolver returns for its key id.
//
// Failure codes: CHECKSUM_MISMATCH, KEY_NOT_FOUND, SIGNATURE_INVALID.
func Verify[T any](r *Record[T], resolve PublicKeyResolver) error {
	sum, err := Checksum(r.Payload)
	if err != nil {
		return Wrap(CodeInvalidData, err, "recompute checksum")
	}
	if sum != r.Header.PayloadChecksum {
		return E(CodeChecksumMismatch, "payload checksum %s does not match header %s", sum, r.Header.PayloadChecksum)
	}
	if len(r.Header.Signatures) == 0 {
		return E(CodeSignatureInvalid, "record has no signatures")
	}
	msg, err := Canonicalize(r.Payload)
	if err != nil {
		return Wrap(CodeInvalidData, err, "canonicalize payload")
	}
	for _, sig := range r.Header.Signatures {
		pubB64, ok := resolve(sig.KeyID)
		if !ok {
			return E(CodeKeyNotFound, "no public key for %s", sig.KeyID)
		}
		pub, err := base64.StdEncoding.DecodeString(pubB64)
		if err != nil || len(pub) != ed25519.PublicKeySize {
			return E(CodeKeyNotFound, "malformed public key for %s", sig.KeyID)
		}
		raw, err := base64.StdEncoding.DecodeString(sig.Signature)
		if err != nil {
			return E(CodeSignatureInvalid, "signature of %s is not valid base64", sig.KeyID)
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), msg, raw) {
			return E(CodeSignatureInvalid, "signature by %s does not verify", sig.KeyID)
		}
	}
	return nil
}

// HasPlaceholder reports whether any signature slot still carries the
// placeholder marker.
func HasPlaceholder(h Header) bool {
	for _, s := range h.Signatures {
		if s.Signature == PlaceholderSignature {
			return true
		}
	}
	return false
}

// Rechecksum recomputes the header checksum after a payload mutation.
func Rechecksum[T any](r *Record[T]) error {
	sum, err := Checksum(r.Payload)
	if err != nil {
		return Wrap(CodeInvalidData, err, "rechecksum")
	}
	r.Header.PayloadChecksum = sum
	return nil
}
