// Package attest lets verifier nodes co-sign recorded aggregated
// commitments with BLS signatures. Attestations over the same commitment
// aggregate into a single signature checkable against the attestor set.
package attest

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	blst "github.com/supranational/blst/bindings/go"
	"github.com/zeebo/blake3"

	"ProofNest/internal/merkle"
)

const (
	// PublicKeySize is the size of a compressed BLS public key in bytes.
	PublicKeySize = 48

	// SignatureSize is the size of a compressed BLS signature in bytes.
	SignatureSize = 96
)

// dst is the domain separation tag for attestation signatures.
var dst = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_")

// keygenTag domain-separates BLS key derivation from other blake3 uses.
const keygenTag = "proofnest-attest-keygen"

// KeyPair holds a node's BLS attestation keys.
type KeyPair struct {
	secret *blst.SecretKey // secret is the private key
	public *blst.P1Affine  // public is the public key
}

// DeriveFromED25519 derives a deterministic attestation key pair from the
// node's Ed25519 identity key, binding both keys to the same operator.
func DeriveFromED25519(priv ed25519.PrivateKey) (*KeyPair, error) {
	h := blake3.New()
	h.Write([]byte(keygenTag))
	h.Write(priv.Seed())

	var seed [32]byte
	h.Sum(seed[:0])

	return FromSeed(seed[:])
}

// Generate creates a new attestation key pair from random material.
func Generate() (*KeyPair, error) {
	var ikm [32]byte
	if _, err := rand.Read(ikm[:]); err != nil {
		return nil, fmt.Errorf("generate random seed:\n%w", err)
	}

	return FromSeed(ikm[:])
}

// FromSeed creates an attestation key pair from a deterministic seed.
// The seed must be at least 32 bytes.
func FromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) < 32 {
		return nil, fmt.Errorf("seed must be at least 32 bytes")
	}

	secret := blst.KeyGen(seed)
	if secret == nil {
		return nil, fmt.Errorf("failed to generate attestation key")
	}

	return &KeyPair{
		secret: secret,
		public: new(blst.P1Affine).From(secret),
	}, nil
}

// Attest signs an aggregated commitment.
func (k *KeyPair) Attest(commitment merkle.Hash) []byte {
	sig := new(blst.P2Affine).Sign(k.secret, commitment[:], dst)
	return sig.Compress()
}

// PublicKeyBytes returns the compressed public key bytes.
func (k *KeyPair) PublicKeyBytes() []byte {
	return k.public.Compress()
}

// Verify checks a single attestation against a commitment and public key.
func Verify(signature []byte, commitment merkle.Hash, publicKey []byte) bool {
	if len(signature) != SignatureSize || len(publicKey) != PublicKeySize {
		return false
	}

	sig := new(blst.P2Affine).Uncompress(signature)
	if sig == nil {
		return false
	}

	pk := new(blst.P1Affine).Uncompress(publicKey)
	if pk == nil {
		return false
	}

	return sig.Verify(true, pk, true, commitment[:], dst)
}

// Aggregate combines attestations over the same commitment into one
// signature.
func Aggregate(signatures [][]byte) ([]byte, error) {
	if len(signatures) == 0 {
		return nil, fmt.Errorf("no attestations to aggregate")
	}

	sigs := make([]*blst.P2Affine, len(signatures))

	for i, sigBytes := range signatures {
		if len(sigBytes) != SignatureSize {
			return nil, fmt.Errorf("invalid attestation size at index %d", i)
		}

		sig := new(blst.P2Affine).Uncompress(sigBytes)
		if sig == nil {
			return nil, fmt.Errorf("invalid attestation at index %d", i)
		}

		sigs[i] = sig
	}

	agg := new(blst.P2Aggregate)
	if !agg.Aggregate(sigs, true) {
		return nil, fmt.Errorf("attestation aggregation failed")
	}

	return agg.ToAffine().Compress(), nil
}

// VerifyAggregated checks an aggregated attestation against a commitment
// and the public keys of every co-signing node.
func VerifyAggregated(signature []byte, commitment merkle.Hash, publicKeys [][]byte) bool {
	if len(signature) != SignatureSize || len(publicKeys) == 0 {
		return false
	}

	sig := new(blst.P2Affine).Uncompress(signature)
	if sig == nil {
		return false
	}

	pks := make([]*blst.P1Affine, len(publicKeys))

	for i, pkBytes := range publicKeys {
		if len(pkBytes) != PublicKeySize {
			return false
		}

		pk := new(blst.P1Affine).Uncompress(pkBytes)
		if pk == nil {
			return false
		}

		pks[i] = pk
	}

	aggPk := new(blst.P1Aggregate)
	if !aggPk.Aggregate(pks, true) {
		return false
	}

	return sig.Verify(true, aggPk.ToAffine(), true, commitment[:], dst)
}
