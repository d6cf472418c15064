// Package client connects to a ProofNest node over its HTTP API: signed
// proof submission, aggregation recording, inclusion queries, and record
// lookups.
package client

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"ProofNest/internal/auth"
	"ProofNest/internal/merkle"
)

// Client connects to a ProofNest node via HTTP.
type Client struct {
	nodeAddr string // nodeAddr is the HTTP address (e.g. "127.0.0.1:8080")
}

// Wallet holds the Ed25519 keypair that signs proof submissions.
type Wallet struct {
	privKey ed25519.PrivateKey // privKey is the Ed25519 private key
	id      auth.Identity      // id is the derived submitter identity
}

// ProofInfo holds a proof record parsed from the API.
type ProofInfo struct {
	Commitment                merkle.Hash   // Commitment is the canonical proof commitment
	Submitter                 auth.Identity // Submitter is the signer's identity
	Fee                       uint64        // Fee is the declared fee
	Nonce                     uint64        // Nonce is the nonce the submission was bound to
	PublicInputCommitment     merkle.Hash   // PublicInputCommitment covers the public inputs
	VerificationKeyCommitment merkle.Hash   // VerificationKeyCommitment covers the verification key
	Timestamp                 int64         // Timestamp is the submission time in Unix milliseconds
}

// AggregateInfo holds an aggregation record parsed from the API.
type AggregateInfo struct {
	AggregatedCommitment merkle.Hash   // AggregatedCommitment identifies the aggregated proof
	MerkleRoot           merkle.Hash   // MerkleRoot covers the included commitments
	IncludedCommitments  []merkle.Hash // IncludedCommitments are the aggregated base proofs
	DisabledSubtreeRoots []merkle.Hash // DisabledSubtreeRoots are pruned subtrees
	TotalFee             uint64        // TotalFee is the sum of included base fees
	Submitter            auth.Identity // Submitter is the aggregator's identity
	Timestamp            int64         // Timestamp is the recording time in Unix milliseconds
}

// Status holds the node counters from /status.
type Status struct {
	Proofs     int // Proofs is the stored proof record count
	Aggregates int // Aggregates is the stored aggregation record count
	Peers      int // Peers is the connected mesh peer count
}

// NewClient creates a client connected to a node.
// It checks the node's /health endpoint before returning.
func NewClient(nodeAddr string) (*Client, error) {
	var health struct {
		Status string `json:"status"`
	}

	if err := httpGet("http://"+nodeAddr+"/health", &health); err != nil {
		return nil, fmt.Errorf("get health:\n%w", err)
	}

	if health.Status != "ok" {
		return nil, fmt.Errorf("node unhealthy: %q", health.Status)
	}

	return &Client{nodeAddr: nodeAddr}, nil
}

// NewWallet creates a wallet with a random Ed25519 keypair.
func NewWallet() *Wallet {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)

	return WalletFromKey(priv)
}

// WalletFromKey creates a wallet around an existing private key.
func WalletFromKey(priv ed25519.PrivateKey) *Wallet {
	return &Wallet{
		privKey: priv,
		id:      auth.IdentityFromKey(priv.Public().(ed25519.PublicKey)),
	}
}

// Identity returns the wallet's submitter identity.
func (w *Wallet) Identity() auth.Identity {
	return w.id
}

// Nonce fetches the current nonce for an identity.
func (c *Client) Nonce(id auth.Identity) (uint64, error) {
	var resp struct {
		Nonce uint64 `json:"nonce"`
	}

	url := "http://" + c.nodeAddr + "/nonce/" + hex.EncodeToString(id[:])
	if err := httpGet(url, &resp); err != nil {
		return 0, fmt.Errorf("get nonce:\n%w", err)
	}

	return resp.Nonce, nil
}

// GetProof retrieves a proof record by commitment.
func (c *Client) GetProof(commitment merkle.Hash) (*ProofInfo, error) {
	var resp struct {
		Commitment      string `json:"commitment"`
		Submitter       string `json:"submitter"`
		Fee             uint64 `json:"fee"`
		Nonce           uint64 `json:"nonce"`
		PublicInput     string `json:"publicInputCommitment"`
		VerificationKey string `json:"verificationKeyCommitment"`
		Timestamp       int64  `json:"timestamp"`
	}

	url := "http://" + c.nodeAddr + "/proof/" + commitment.String()
	if err := httpGet(url, &resp); err != nil {
		return nil, fmt.Errorf("get proof:\n%w", err)
	}

	info := &ProofInfo{
		Fee:       resp.Fee,
		Nonce:     resp.Nonce,
		Timestamp: resp.Timestamp,
	}

	var err error
	if info.Commitment, err = merkle.FromHex(resp.Commitment); err != nil {
		return nil, fmt.Errorf("invalid commitment: %q", resp.Commitment)
	}

	if info.Submitter, err = parseIdentity(resp.Submitter); err != nil {
		return nil, err
	}

	if info.PublicInputCommitment, err = merkle.FromHex(resp.PublicInput); err != nil {
		return nil, fmt.Errorf("invalid publicInputCommitment: %q", resp.PublicInput)
	}

	if info.VerificationKeyCommitment, err = merkle.FromHex(resp.VerificationKey); err != nil {
		return nil, fmt.Errorf("invalid verificationKeyCommitment: %q", resp.VerificationKey)
	}

	return info, nil
}

// GetAggregate retrieves an aggregation record by commitment.
func (c *Client) GetAggregate(commitment merkle.Hash) (*AggregateInfo, error) {
	var resp struct {
		AggregatedCommitment string   `json:"aggregatedCommitment"`
		MerkleRoot           string   `json:"merkleRoot"`
		Included             []string `json:"includedCommitments"`
		Disabled             []string `json:"disabledSubtreeRoots"`
		TotalFee             uint64   `json:"totalFee"`
		Submitter            string   `json:"submitter"`
		Timestamp            int64    `json:"timestamp"`
	}

	url := "http://" + c.nodeAddr + "/aggregate/" + commitment.String()
	if err := httpGet(url, &resp); err != nil {
		return nil, fmt.Errorf("get aggregate:\n%w", err)
	}

	info := &AggregateInfo{
		TotalFee:  resp.TotalFee,
		Timestamp: resp.Timestamp,
	}

	var err error
	if info.AggregatedCommitment, err = merkle.FromHex(resp.AggregatedCommitment); err != nil {
		return nil, fmt.Errorf("invalid aggregatedCommitment: %q", resp.AggregatedCommitment)
	}

	if info.MerkleRoot, err = merkle.FromHex(resp.MerkleRoot); err != nil {
		return nil, fmt.Errorf("invalid merkleRoot: %q", resp.MerkleRoot)
	}

	if info.IncludedCommitments, err = parseHashes(resp.Included); err != nil {
		return nil, err
	}

	if info.DisabledSubtreeRoots, err = parseHashes(resp.Disabled); err != nil {
		return nil, err
	}

	if info.Submitter, err = parseIdentity(resp.Submitter); err != nil {
		return nil, err
	}

	return info, nil
}

// Status fetches the node's record counters.
func (c *Client) Status() (*Status, error) {
	var resp struct {
		Proofs     int `json:"proofs"`
		Aggregates int `json:"aggregates"`
		Peers      int `json:"peers"`
	}

	if err := httpGet("http://"+c.nodeAddr+"/status", &resp); err != nil {
		return nil, fmt.Errorf("get status:\n%w", err)
	}

	return &Status{
		Proofs:     resp.Proofs,
		Aggregates: resp.Aggregates,
		Peers:      resp.Peers,
	}, nil
}

// parseIdentity decodes a hex-encoded submitter identity.
func parseIdentity(s string) (auth.Identity, error) {
	decoded, err := hex.DecodeString(s)
	if err != nil || len(decoded) != auth.IdentitySize {
		return auth.Identity{}, fmt.Errorf("invalid identity: %q", s)
	}

	var id auth.Identity
	copy(id[:], decoded)

	return id, nil
}

// parseHashes decodes a list of hex digests.
func parseHashes(values []string) ([]merkle.Hash, error) {
	hashes := make([]merkle.Hash, len(values))

	for i, v := range values {
		h, err := merkle.FromHex(v)
		if err != nil {
			return nil, fmt.Errorf("invalid digest: %q", v)
		}

		hashes[i] = h
	}

	return hashes, nil
}
