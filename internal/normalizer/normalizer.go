// Package normalizer turns heterogeneous proof payloads into canonical
// bytes and 32-byte commitments. Base proofs arrive as raw buffers, hex
// blobs, or structured objects from different proving systems; whatever the
// shape, the same payload must hash to the same commitment on every
// implementation that follows these rules.
package normalizer

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"ProofNest/internal/merkle"
)

const (
	// defaultPublicInputSentinel is hashed when no public inputs are given.
	defaultPublicInputSentinel = "default_public_input"

	// defaultVerificationKeySentinel is hashed when no verification key is given.
	defaultVerificationKeySentinel = "default_verification_key"
)

// structuredFields are the object sub-fields extracted for hashing, in
// fixed priority order.
var structuredFields = [...]string{"proof", "publicSignals", "vk"}

// ErrUnsupportedPayload is returned for payloads that are neither bytes,
// a hex string, nor a structured object.
var ErrUnsupportedPayload = errors.New("unsupported payload format")

// payloadKind tags the variant held by a Payload.
type payloadKind int

const (
	kindNone payloadKind = iota
	kindBytes
	kindHex
	kindObject
)

// Payload is a tagged proof payload variant. The zero value is unsupported;
// use one of the constructors.
type Payload struct {
	kind   payloadKind
	raw    []byte
	hexStr string
	object map[string]any
}

// BytesPayload wraps a raw byte buffer.
func BytesPayload(data []byte) Payload {
	return Payload{kind: kindBytes, raw: data}
}

// HexPayload wraps a hex-encoded string, with or without a 0x prefix.
func HexPayload(s string) Payload {
	return Payload{kind: kindHex, hexStr: s}
}

// ObjectPayload wraps a structured key-value proof object.
func ObjectPayload(obj map[string]any) Payload {
	return Payload{kind: kindObject, object: obj}
}

// Normalized is the canonical form of a proof payload.
type Normalized struct {
	Commitment     merkle.Hash    // Commitment is blake3 of the canonical bytes
	CanonicalBytes []byte         // CanonicalBytes is the deterministic byte form
	StructuredEcho map[string]any // StructuredEcho echoes object payloads (never hashed)
}

// ProofHashes bundles the commitments a submission binds together.
type ProofHashes struct {
	Commitment                merkle.Hash // Commitment identifies the proof payload
	PublicInputCommitment     merkle.Hash // PublicInputCommitment covers the public inputs
	VerificationKeyCommitment merkle.Hash // VerificationKeyCommitment covers the verification key
}

// Validation is the non-propagating result of ValidateStructure.
type Validation struct {
	OK         bool        // OK indicates the payload normalized cleanly
	Commitment merkle.Hash // Commitment is set when OK
	SizeBytes  int         // SizeBytes is the canonical byte length when OK
	Err        error       // Err carries the failure when not OK
}

// Normalize converts a payload into canonical bytes and a commitment.
func Normalize(p Payload) (Normalized, error) {
	switch p.kind {
	case kindBytes:
		return fromBytes(p.raw), nil

	case kindHex:
		decoded, err := decodeHex(p.hexStr)
		if err != nil {
			return Normalized{}, fmt.Errorf("%w: %v", ErrUnsupportedPayload, err)
		}

		return fromBytes(decoded), nil

	case kindObject:
		canonical, err := canonicalObjectBytes(p.object)
		if err != nil {
			return Normalized{}, fmt.Errorf("%w: %v", ErrUnsupportedPayload, err)
		}

		n := fromBytes(canonical)
		n.StructuredEcho = p.object

		return n, nil

	default:
		return Normalized{}, ErrUnsupportedPayload
	}
}

// DeriveProofHash computes the payload commitment together with the
// public-input and verification-key commitments. Missing inputs fall back
// to fixed sentinel literals so a verifier can always recompute the same
// default commitments.
func DeriveProofHash(p Payload, publicInputs, verificationKey any) (ProofHashes, error) {
	n, err := Normalize(p)
	if err != nil {
		return ProofHashes{}, err
	}

	pubIn, err := optionalCommitment(publicInputs, defaultPublicInputSentinel)
	if err != nil {
		return ProofHashes{}, fmt.Errorf("public inputs: %w", err)
	}

	vk, err := optionalCommitment(verificationKey, defaultVerificationKeySentinel)
	if err != nil {
		return ProofHashes{}, fmt.Errorf("verification key: %w", err)
	}

	return ProofHashes{
		Commitment:                n.Commitment,
		PublicInputCommitment:     pubIn,
		VerificationKeyCommitment: vk,
	}, nil
}

// ValidateStructure wraps Normalize and reports failure details instead of
// propagating the error.
func ValidateStructure(p Payload) Validation {
	n, err := Normalize(p)
	if err != nil {
		return Validation{Err: err}
	}

	return Validation{
		OK:         true,
		Commitment: n.Commitment,
		SizeBytes:  len(n.CanonicalBytes),
	}
}

// fromBytes hashes canonical bytes into a Normalized result.
func fromBytes(canonical []byte) Normalized {
	return Normalized{
		Commitment:     merkle.Sum(canonical),
		CanonicalBytes: canonical,
	}
}

// decodeHex decodes a hex string, accepting an optional 0x prefix.
func decodeHex(s string) ([]byte, error) {
	trimmed := strings.TrimPrefix(s, "0x")

	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string")
	}

	return decoded, nil
}

// canonicalObjectBytes serializes a structured object deterministically.
// When any of the known proof fields are present their canonical JSON forms
// are concatenated in fixed order; otherwise the whole object is
// serialized. encoding/json sorts map keys lexicographically, which pins
// the canonical key ordering across implementations.
func canonicalObjectBytes(obj map[string]any) ([]byte, error) {
	var parts []string
	for _, field := range structuredFields {
		value, ok := obj[field]
		if !ok {
			continue
		}

		encoded, err := canonicalJSON(value)
		if err != nil {
			return nil, err
		}

		parts = append(parts, encoded)
	}

	if len(parts) == 0 {
		encoded, err := canonicalJSON(obj)
		if err != nil {
			return nil, err
		}

		parts = append(parts, encoded)
	}

	return []byte(strings.Join(parts, "")), nil
}

// canonicalJSON marshals a value with stable key ordering and no
// insignificant whitespace.
func canonicalJSON(v any) (string, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("serialize: %v", err)
	}

	return string(encoded), nil
}

// optionalCommitment hashes the canonical JSON of v, or the sentinel
// literal when v is nil.
func optionalCommitment(v any, sentinel string) (merkle.Hash, error) {
	if v == nil {
		return merkle.Sum([]byte(sentinel)), nil
	}

	encoded, err := canonicalJSON(v)
	if err != nil {
		return merkle.Hash{}, err
	}

	return merkle.Sum([]byte(encoded)), nil
}
