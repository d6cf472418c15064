// Package auth builds and checks the nonce-bound signing messages that
// authorize base-proof submissions. The message binds the declared fee, the
// signer's replay nonce, and the public-input/verification-key commitments,
// so a captured signature cannot be replayed or re-priced.
package auth

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/zeebo/blake3"

	"ProofNest/internal/merkle"
)

const (
	// IdentitySize is the size of an Ed25519 public key.
	IdentitySize = ed25519.PublicKeySize

	// SignatureSize is the size of an Ed25519 signature.
	SignatureSize = ed25519.SignatureSize
)

// Identity is a submitter's Ed25519 public key.
type Identity [IdentitySize]byte

// IdentityFromKey converts an Ed25519 public key into an Identity.
func IdentityFromKey(pub ed25519.PublicKey) Identity {
	var id Identity
	copy(id[:], pub)

	return id
}

// SigningMessage hashes the canonical submission message.
// Layout: fee (8 bytes little-endian) || nonce (8 bytes little-endian) ||
// publicInputCommitment (32) || verificationKeyCommitment (32), hashed once.
func SigningMessage(fee, nonce uint64, publicInput, verificationKey merkle.Hash) merkle.Hash {
	var buf [8 + 8 + 2*merkle.HashSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], fee)
	binary.LittleEndian.PutUint64(buf[8:16], nonce)
	copy(buf[16:48], publicInput[:])
	copy(buf[48:80], verificationKey[:])

	return blake3.Sum256(buf[:])
}

// Sign signs a submission message with the submitter's private key.
func Sign(priv ed25519.PrivateKey, message merkle.Hash) []byte {
	return ed25519.Sign(priv, message[:])
}

// Verify checks a submission signature against the expected signer.
// Malformed signatures yield false, never an error.
func Verify(message merkle.Hash, signature []byte, signer Identity) bool {
	if len(signature) != SignatureSize {
		return false
	}

	return ed25519.Verify(signer[:], message[:], signature)
}
