package ledger

import (
	"errors"

	"ProofNest/internal/auth"
	"ProofNest/internal/fees"
	"ProofNest/internal/merkle"
	"ProofNest/internal/normalizer"
)

var (
	// ErrDuplicateProof is returned when a commitment was already submitted.
	ErrDuplicateProof = errors.New("proof already submitted")

	// ErrInvalidSignature is returned when a submission signature does not
	// verify against the signer's current nonce.
	ErrInvalidSignature = errors.New("invalid submission signature")

	// ErrFeeMismatch is returned when the attached payment differs from the
	// declared fee.
	ErrFeeMismatch = errors.New("payment does not match declared fee")

	// ErrRootMismatch is returned when the recomputed Merkle root differs
	// from the claimed root.
	ErrRootMismatch = errors.New("recomputed root does not match claimed root")

	// ErrDuplicateAggregate is returned when an aggregated commitment was
	// already recorded.
	ErrDuplicateAggregate = errors.New("aggregate already recorded")

	// ErrAggregateNotFound is returned when no aggregation record exists
	// for a commitment.
	ErrAggregateNotFound = errors.New("aggregate not found")

	// ErrBaseNotFound is returned when no proof record exists for a
	// commitment.
	ErrBaseNotFound = errors.New("base proof not found")
)

// ProofRecord is the persisted state of one submitted base proof.
// There is at most one record per commitment, created exactly once.
type ProofRecord struct {
	Commitment                merkle.Hash   // Commitment identifies the proof payload
	Submitter                 auth.Identity // Submitter is the signer's public key
	Fee                       uint64        // Fee is the declared submission fee
	Nonce                     uint64        // Nonce is the replay nonce consumed by this submission
	PublicInputCommitment     merkle.Hash   // PublicInputCommitment covers the public inputs
	VerificationKeyCommitment merkle.Hash   // VerificationKeyCommitment covers the verification key
	Signature                 []byte        // Signature is the Ed25519 submission signature
	Timestamp                 int64         // Timestamp is the submission time in Unix milliseconds
}

// AggregationRecord is the persisted state of one aggregation round.
type AggregationRecord struct {
	AggregatedCommitment merkle.Hash   // AggregatedCommitment identifies the aggregated proof
	MerkleRoot           merkle.Hash   // MerkleRoot commits to the included leaves
	IncludedLeaves       []merkle.Hash // IncludedLeaves are the base commitments in tree order
	DisabledSubtreeRoots []merkle.Hash // DisabledSubtreeRoots are roots excluded from re-aggregation
	TotalFee             uint64        // TotalFee is the sum of included base fees
	Submitter            auth.Identity // Submitter is the aggregator's public key
	Timestamp            int64         // Timestamp is the recording time in Unix milliseconds
}

// FeeSplit returns the fixed 40/5/55 breakdown of the record's total fee.
func (r *AggregationRecord) FeeSplit() fees.Split {
	return fees.SplitFee(r.TotalFee)
}

// SubmitRequest carries one base-proof submission.
type SubmitRequest struct {
	Payload                   normalizer.Payload // Payload is the proof material
	Fee                       uint64             // Fee is the declared fee
	Payment                   uint64             // Payment is the attached payment amount
	PublicInputCommitment     merkle.Hash        // PublicInputCommitment binds the public inputs
	VerificationKeyCommitment merkle.Hash        // VerificationKeyCommitment binds the verification key
	Signature                 []byte             // Signature authorizes the submission
	Submitter                 auth.Identity      // Submitter is the claimed signer
}

// AggregateRequest carries one aggregation round.
type AggregateRequest struct {
	Payload              normalizer.Payload // Payload is the aggregated proof material
	ClaimedRoot          merkle.Hash        // ClaimedRoot is the root the aggregator commits to
	IncludedCommitments  []merkle.Hash      // IncludedCommitments are base commitments in tree order
	DisabledSubtreeRoots []merkle.Hash      // DisabledSubtreeRoots are excluded prior roots
	Submitter            auth.Identity      // Submitter is the aggregator's public key
}
