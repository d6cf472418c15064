// Package ledger is the aggregation session's serializing authority. It
// owns the persisted ProofRecord and AggregationRecord maps and the
// per-identity nonce counters, applies submissions one at a time, and
// answers inclusion queries by combining stored records with the Merkle
// engine.
package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"ProofNest/internal/auth"
	"ProofNest/internal/fees"
	"ProofNest/internal/logger"
	"ProofNest/internal/merkle"
	"ProofNest/internal/normalizer"
	"ProofNest/internal/storage"
)

// Key prefixes for storage.
var (
	prefixProof     = []byte("p:") // p:<commitment> -> proof record
	prefixAggregate = []byte("a:") // a:<commitment> -> aggregation record
	prefixNonce     = []byte("n:") // n:<identity>   -> uint64 nonce
	prefixPayload   = []byte("b:") // b:<commitment> -> zstd canonical payload
)

// Ledger applies proof submissions and aggregation rounds against a
// backing store. Mutations are serialized under one mutex: the first
// committer wins every duplicate race by construction.
type Ledger struct {
	db     *storage.Store
	mu     sync.Mutex // mu serializes state mutations
	events chan Event

	enc *zstd.Encoder // enc compresses stored payload blobs
	dec *zstd.Decoder // dec decompresses stored payload blobs
}

// New creates a ledger over the given store.
func New(db *storage.Store) (*Ledger, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder:\n%w", err)
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder:\n%w", err)
	}

	return &Ledger{
		db:     db,
		events: make(chan Event, eventBuffer),
		enc:    enc,
		dec:    dec,
	}, nil
}

// SubmitProof applies one base-proof submission.
//
// A submission is accepted iff the commitment is unseen, the signature
// verifies against the signer's current nonce, and the attached payment
// equals the declared fee. On success the record is persisted, the nonce
// advances by one, and a submission event is emitted. The nonce is read
// from the store on every attempt, never cached across attempts.
func (l *Ledger) SubmitProof(req SubmitRequest) (*ProofRecord, error) {
	normalized, err := normalizer.Normalize(req.Payload)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	exists, err := l.db.Has(proofKey(normalized.Commitment))
	if err != nil {
		return nil, fmt.Errorf("read proof record:\n%w", err)
	}

	if exists {
		return nil, ErrDuplicateProof
	}

	nonce, err := l.nonceLocked(req.Submitter)
	if err != nil {
		return nil, err
	}

	message := auth.SigningMessage(req.Fee, nonce,
		req.PublicInputCommitment, req.VerificationKeyCommitment)

	if !auth.Verify(message, req.Signature, req.Submitter) {
		return nil, ErrInvalidSignature
	}

	if req.Payment != req.Fee {
		return nil, ErrFeeMismatch
	}

	record := &ProofRecord{
		Commitment:                normalized.Commitment,
		Submitter:                 req.Submitter,
		Fee:                       req.Fee,
		Nonce:                     nonce,
		PublicInputCommitment:     req.PublicInputCommitment,
		VerificationKeyCommitment: req.VerificationKeyCommitment,
		Signature:                 req.Signature,
		Timestamp:                 time.Now().UnixMilli(),
	}

	// Record, payload blob, and nonce advance commit atomically.
	pairs := []storage.KeyValue{
		{Key: proofKey(record.Commitment), Value: encodeProofRecord(record)},
		{Key: payloadKey(record.Commitment), Value: l.enc.EncodeAll(normalized.CanonicalBytes, nil)},
		{Key: nonceKey(req.Submitter), Value: encodeNonce(nonce + 1)},
	}

	if err := l.db.SetBatch(pairs); err != nil {
		return nil, fmt.Errorf("persist proof record:\n%w", err)
	}

	logger.Info("proof submitted",
		"commitment", record.Commitment,
		"fee", record.Fee,
		"nonce", record.Nonce,
	)

	l.emit(Event{
		Kind:       EventProofSubmitted,
		Commitment: record.Commitment,
		Signer:     record.Submitter,
		Timestamp:  record.Timestamp,
	})

	return record, nil
}

// SubmitAggregate records one aggregation round.
//
// The aggregated payload's commitment and the Merkle root over the
// included base commitments (in the order given) are both recomputed; the
// root must equal the claimed root. Every included commitment must have a
// proof record, whose fees sum into the record's total.
func (l *Ledger) SubmitAggregate(req AggregateRequest) (*AggregationRecord, error) {
	normalized, err := normalizer.Normalize(req.Payload)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	exists, err := l.db.Has(aggregateKey(normalized.Commitment))
	if err != nil {
		return nil, fmt.Errorf("read aggregation record:\n%w", err)
	}

	if exists {
		return nil, ErrDuplicateAggregate
	}

	var totalFee uint64

	for _, commitment := range req.IncludedCommitments {
		base, err := l.getProofLocked(commitment)
		if err != nil {
			return nil, err
		}

		totalFee = fees.SafeAdd(totalFee, base.Fee)
	}

	root, err := merkle.BuildRoot(req.IncludedCommitments)
	if err != nil {
		return nil, err
	}

	if root != req.ClaimedRoot {
		return nil, ErrRootMismatch
	}

	record := &AggregationRecord{
		AggregatedCommitment: normalized.Commitment,
		MerkleRoot:           root,
		IncludedLeaves:       req.IncludedCommitments,
		DisabledSubtreeRoots: req.DisabledSubtreeRoots,
		TotalFee:             totalFee,
		Submitter:            req.Submitter,
		Timestamp:            time.Now().UnixMilli(),
	}

	pairs := []storage.KeyValue{
		{Key: aggregateKey(record.AggregatedCommitment), Value: encodeAggregationRecord(record)},
		{Key: payloadKey(record.AggregatedCommitment), Value: l.enc.EncodeAll(normalized.CanonicalBytes, nil)},
	}

	if err := l.db.SetBatch(pairs); err != nil {
		return nil, fmt.Errorf("persist aggregation record:\n%w", err)
	}

	split := record.FeeSplit()
	logger.Info("aggregate recorded",
		"commitment", record.AggregatedCommitment,
		"included", len(record.IncludedLeaves),
		"total_fee", split.Total,
		"aggregation_share", split.Aggregation,
	)

	l.emit(Event{
		Kind:          EventAggregateRecorded,
		Commitment:    record.AggregatedCommitment,
		Signer:        record.Submitter,
		Timestamp:     record.Timestamp,
		IncludedCount: len(record.IncludedLeaves),
	})

	return record, nil
}

// VerifyInclusion answers whether a base proof is included in a recorded
// aggregate. Both the aggregation record and the base proof record must
// exist; a failed path check is a normal false result, not an error.
func (l *Ledger) VerifyInclusion(base, aggregated merkle.Hash, path merkle.InclusionPath) (bool, error) {
	record, err := l.GetAggregate(aggregated)
	if err != nil {
		return false, err
	}

	if _, err := l.GetProof(base); err != nil {
		return false, err
	}

	verified := path.Leaf == base && merkle.VerifyInclusionPath(path, record.MerkleRoot)

	l.emit(Event{
		Kind:       EventInclusionChecked,
		Commitment: base,
		Timestamp:  time.Now().UnixMilli(),
		Verified:   verified,
	})

	return verified, nil
}

// GetProof returns the proof record for a commitment.
func (l *Ledger) GetProof(commitment merkle.Hash) (*ProofRecord, error) {
	return l.getProofLocked(commitment)
}

// getProofLocked fetches and decodes a proof record.
// Safe without the mutex: records are immutable once written.
func (l *Ledger) getProofLocked(commitment merkle.Hash) (*ProofRecord, error) {
	data, err := l.db.Get(proofKey(commitment))
	if err != nil {
		return nil, fmt.Errorf("read proof record:\n%w", err)
	}

	if data == nil {
		return nil, ErrBaseNotFound
	}

	return decodeProofRecord(data)
}

// GetAggregate returns the aggregation record for a commitment.
func (l *Ledger) GetAggregate(commitment merkle.Hash) (*AggregationRecord, error) {
	data, err := l.db.Get(aggregateKey(commitment))
	if err != nil {
		return nil, fmt.Errorf("read aggregation record:\n%w", err)
	}

	if data == nil {
		return nil, ErrAggregateNotFound
	}

	return decodeAggregationRecord(data)
}

// ProofPayload returns the stored canonical payload bytes for a
// commitment, decompressed.
func (l *Ledger) ProofPayload(commitment merkle.Hash) ([]byte, error) {
	data, err := l.db.Get(payloadKey(commitment))
	if err != nil {
		return nil, fmt.Errorf("read payload:\n%w", err)
	}

	if data == nil {
		return nil, ErrBaseNotFound
	}

	decoded, err := l.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress payload:\n%w", err)
	}

	return decoded, nil
}

// Nonce returns the current nonce for an identity. Fresh identities start
// at zero.
func (l *Ledger) Nonce(id auth.Identity) (uint64, error) {
	return l.nonceLocked(id)
}

// nonceLocked reads the stored nonce for an identity.
func (l *Ledger) nonceLocked(id auth.Identity) (uint64, error) {
	data, err := l.db.Get(nonceKey(id))
	if err != nil {
		return 0, fmt.Errorf("read nonce:\n%w", err)
	}

	if data == nil {
		return 0, nil
	}

	nonce, err := decodeNonce(data)
	if err != nil {
		return 0, err
	}

	return nonce, nil
}

// Stats counts the stored proof and aggregation records.
func (l *Ledger) Stats() (proofs, aggregates int, err error) {
	count := func(prefix []byte) (int, error) {
		n := 0
		err := l.db.IteratePrefix(prefix, func(_, _ []byte) error {
			n++
			return nil
		})

		return n, err
	}

	proofs, err = count(prefixProof)
	if err != nil {
		return 0, 0, fmt.Errorf("count proofs:\n%w", err)
	}

	aggregates, err = count(prefixAggregate)
	if err != nil {
		return 0, 0, fmt.Errorf("count aggregates:\n%w", err)
	}

	return proofs, aggregates, nil
}

// proofKey builds the storage key for a proof record.
func proofKey(commitment merkle.Hash) []byte {
	return append(append([]byte{}, prefixProof...), commitment[:]...)
}

// aggregateKey builds the storage key for an aggregation record.
func aggregateKey(commitment merkle.Hash) []byte {
	return append(append([]byte{}, prefixAggregate...), commitment[:]...)
}

// payloadKey builds the storage key for a payload blob.
func payloadKey(commitment merkle.Hash) []byte {
	return append(append([]byte{}, prefixPayload...), commitment[:]...)
}

// nonceKey builds the storage key for an identity's nonce.
func nonceKey(id auth.Identity) []byte {
	return append(append([]byte{}, prefixNonce...), id[:]...)
}

// encodeNonce serializes a nonce counter.
func encodeNonce(nonce uint64) []byte {
	return appendUint64(nil, nonce)
}

// decodeNonce deserializes a nonce counter.
func decodeNonce(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("malformed nonce value")
	}

	d := decoder{data: data}

	return d.uint64(), nil
}
