package client

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"ProofNest/internal/auth"
	"ProofNest/internal/merkle"
)

// SubmitResult holds the node's response to a proof submission.
type SubmitResult struct {
	Commitment merkle.Hash // Commitment is the canonical proof commitment
	Nonce      uint64      // Nonce is the nonce the submission consumed
	Timestamp  int64       // Timestamp is the recorded submission time
}

// AggregateResult holds the node's response to an aggregation submission.
type AggregateResult struct {
	AggregatedCommitment merkle.Hash // AggregatedCommitment identifies the aggregated proof
	MerkleRoot           merkle.Hash // MerkleRoot covers the included commitments
	IncludedCount        int         // IncludedCount is the number of aggregated base proofs
	TotalFee             uint64      // TotalFee is the sum of included base fees
	CurrentShare         uint64      // CurrentShare is the current-round fee portion
	InclusionShare       uint64      // InclusionShare is the inclusion-proving fee portion
	AggregationShare     uint64      // AggregationShare is the aggregator's fee portion
	Attestation          []byte      // Attestation is the node's BLS co-signature, if any
	AttestorKey          []byte      // AttestorKey is the node's BLS public key, if any
}

// SubmitProof signs and submits a raw proof payload.
// The wallet's current nonce is fetched from the node for every attempt, so
// a retried submission is signed against the advanced counter.
func (w *Wallet) SubmitProof(c *Client, payload []byte, fee uint64, publicInput, verificationKey merkle.Hash) (*SubmitResult, error) {
	nonce, err := c.Nonce(w.id)
	if err != nil {
		return nil, err
	}

	message := auth.SigningMessage(fee, nonce, publicInput, verificationKey)
	signature := auth.Sign(w.privKey, message)

	body := map[string]any{
		"payload":                   hex.EncodeToString(payload),
		"fee":                       fee,
		"payment":                   fee,
		"publicInputCommitment":     publicInput.String(),
		"verificationKeyCommitment": verificationKey.String(),
		"signature":                 base64.StdEncoding.EncodeToString(signature),
		"submitter":                 hex.EncodeToString(w.id[:]),
	}

	var resp struct {
		Commitment string `json:"commitment"`
		Nonce      uint64 `json:"nonce"`
		Timestamp  int64  `json:"timestamp"`
	}

	if err := httpPostJSON("http://"+c.nodeAddr+"/proof", body, &resp); err != nil {
		return nil, fmt.Errorf("submit proof:\n%w", err)
	}

	commitment, err := merkle.FromHex(resp.Commitment)
	if err != nil {
		return nil, fmt.Errorf("invalid commitment: %q", resp.Commitment)
	}

	return &SubmitResult{
		Commitment: commitment,
		Nonce:      resp.Nonce,
		Timestamp:  resp.Timestamp,
	}, nil
}

// SubmitAggregate records an aggregation round over already-submitted base
// proofs. The claimed root is computed locally from the included
// commitments in order.
func (w *Wallet) SubmitAggregate(c *Client, payload []byte, included []merkle.Hash) (*AggregateResult, error) {
	root, err := merkle.BuildRoot(included)
	if err != nil {
		return nil, fmt.Errorf("build root:\n%w", err)
	}

	includedHex := make([]string, len(included))
	for i, h := range included {
		includedHex[i] = h.String()
	}

	body := map[string]any{
		"payload":             hex.EncodeToString(payload),
		"claimedRoot":         root.String(),
		"includedCommitments": includedHex,
		"submitter":           hex.EncodeToString(w.id[:]),
	}

	var resp struct {
		AggregatedCommitment string `json:"aggregatedCommitment"`
		MerkleRoot           string `json:"merkleRoot"`
		IncludedCount        int    `json:"includedCount"`
		TotalFee             uint64 `json:"totalFee"`
		CurrentShare         uint64 `json:"currentShare"`
		InclusionShare       uint64 `json:"inclusionShare"`
		AggregationShare     uint64 `json:"aggregationShare"`
		Attestation          string `json:"attestation"`
		AttestorKey          string `json:"attestorKey"`
	}

	if err := httpPostJSON("http://"+c.nodeAddr+"/aggregate", body, &resp); err != nil {
		return nil, fmt.Errorf("submit aggregate:\n%w", err)
	}

	return parseAggregateResult(resp.AggregatedCommitment, resp.MerkleRoot, resp.Attestation, resp.AttestorKey,
		resp.IncludedCount, resp.TotalFee, resp.CurrentShare, resp.InclusionShare, resp.AggregationShare)
}

// parseAggregateResult decodes the hex and base64 fields of an aggregation response.
func parseAggregateResult(commitmentHex, rootHex, attestation, attestorKey string,
	includedCount int, totalFee, currentShare, inclusionShare, aggregationShare uint64) (*AggregateResult, error) {

	result := &AggregateResult{
		IncludedCount:    includedCount,
		TotalFee:         totalFee,
		CurrentShare:     currentShare,
		InclusionShare:   inclusionShare,
		AggregationShare: aggregationShare,
	}

	var err error
	if result.AggregatedCommitment, err = merkle.FromHex(commitmentHex); err != nil {
		return nil, fmt.Errorf("invalid aggregatedCommitment: %q", commitmentHex)
	}

	if result.MerkleRoot, err = merkle.FromHex(rootHex); err != nil {
		return nil, fmt.Errorf("invalid merkleRoot: %q", rootHex)
	}

	if attestation != "" {
		if result.Attestation, err = base64.StdEncoding.DecodeString(attestation); err != nil {
			return nil, fmt.Errorf("invalid attestation:\n%w", err)
		}
	}

	if attestorKey != "" {
		if result.AttestorKey, err = base64.StdEncoding.DecodeString(attestorKey); err != nil {
			return nil, fmt.Errorf("invalid attestorKey:\n%w", err)
		}
	}

	return result, nil
}

// VerifyInclusion asks the node whether a base proof is included in a
// recorded aggregate, sending an inclusion path for the claimed position.
func (c *Client) VerifyInclusion(base, aggregated merkle.Hash, path merkle.InclusionPath) (bool, error) {
	siblings := make([]string, len(path.Siblings))
	for i, sib := range path.Siblings {
		siblings[i] = sib.String()
	}

	body := map[string]any{
		"baseCommitment":       base.String(),
		"aggregatedCommitment": aggregated.String(),
		"siblings":             siblings,
		"index":                path.Index,
	}

	var resp struct {
		Verified bool `json:"verified"`
	}

	if err := httpPostJSON("http://"+c.nodeAddr+"/verify", body, &resp); err != nil {
		return false, fmt.Errorf("verify inclusion:\n%w", err)
	}

	return resp.Verified, nil
}
