package ledger

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"path/filepath"
	"testing"

	"ProofNest/internal/auth"
	"ProofNest/internal/merkle"
	"ProofNest/internal/normalizer"
	"ProofNest/internal/storage"
)

// testEnv bundles a ledger with a submitter keypair.
type testEnv struct {
	ledger *Ledger
	pub    ed25519.PublicKey
	priv   ed25519.PrivateKey
	id     auth.Identity
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	t.Cleanup(func() { db.Close() })

	l, err := New(db)
	if err != nil {
		t.Fatalf("create ledger: %v", err)
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	return &testEnv{
		ledger: l,
		pub:    pub,
		priv:   priv,
		id:     auth.IdentityFromKey(pub),
	}
}

// signedRequest builds a submission signed against the signer's current nonce.
func (e *testEnv) signedRequest(t *testing.T, payload []byte, fee uint64) SubmitRequest {
	t.Helper()

	nonce, err := e.ledger.Nonce(e.id)
	if err != nil {
		t.Fatalf("read nonce: %v", err)
	}

	pubIn := merkle.Sum([]byte("inputs"))
	vk := merkle.Sum([]byte("vk"))
	message := auth.SigningMessage(fee, nonce, pubIn, vk)

	return SubmitRequest{
		Payload:                   normalizer.BytesPayload(payload),
		Fee:                       fee,
		Payment:                   fee,
		PublicInputCommitment:     pubIn,
		VerificationKeyCommitment: vk,
		Signature:                 auth.Sign(e.priv, message),
		Submitter:                 e.id,
	}
}

// submitProofs submits n distinct proofs and returns their commitments.
func (e *testEnv) submitProofs(t *testing.T, n int, fee uint64) []merkle.Hash {
	t.Helper()

	commitments := make([]merkle.Hash, n)

	for i := range commitments {
		req := e.signedRequest(t, []byte{0x70, byte(i)}, fee)

		record, err := e.ledger.SubmitProof(req)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}

		commitments[i] = record.Commitment
	}

	return commitments
}

func TestSubmitProof(t *testing.T) {
	e := newTestEnv(t)

	req := e.signedRequest(t, []byte("proof"), 100)

	record, err := e.ledger.SubmitProof(req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if record.Commitment != merkle.Sum([]byte("proof")) {
		t.Errorf("commitment must hash the canonical payload bytes")
	}

	if record.Nonce != 0 {
		t.Errorf("first submission nonce: got %d, want 0", record.Nonce)
	}

	nonce, err := e.ledger.Nonce(e.id)
	if err != nil {
		t.Fatalf("read nonce: %v", err)
	}

	if nonce != 1 {
		t.Errorf("nonce after submission: got %d, want 1", nonce)
	}

	stored, err := e.ledger.GetProof(record.Commitment)
	if err != nil {
		t.Fatalf("get proof: %v", err)
	}

	if stored.Fee != 100 || stored.Submitter != e.id {
		t.Errorf("stored record does not match submission")
	}
}

func TestSubmitProof_Duplicate(t *testing.T) {
	e := newTestEnv(t)

	first := e.signedRequest(t, []byte("proof"), 100)
	if _, err := e.ledger.SubmitProof(first); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	// Re-sign with the advanced nonce: the duplicate must still be
	// rejected on the commitment, and the nonce must not advance again.
	second := e.signedRequest(t, []byte("proof"), 100)

	if _, err := e.ledger.SubmitProof(second); !errors.Is(err, ErrDuplicateProof) {
		t.Errorf("duplicate: got %v, want ErrDuplicateProof", err)
	}

	nonce, err := e.ledger.Nonce(e.id)
	if err != nil {
		t.Fatalf("read nonce: %v", err)
	}

	if nonce != 1 {
		t.Errorf("nonce advanced on rejected duplicate: got %d, want 1", nonce)
	}
}

func TestSubmitProof_InvalidSignature(t *testing.T) {
	e := newTestEnv(t)

	req := e.signedRequest(t, []byte("proof"), 100)
	req.Signature[0] ^= 0xff

	if _, err := e.ledger.SubmitProof(req); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("tampered signature: got %v, want ErrInvalidSignature", err)
	}
}

func TestSubmitProof_StaleNonceSignature(t *testing.T) {
	e := newTestEnv(t)

	// Capture a request signed at nonce 0, then consume nonce 0.
	stale := e.signedRequest(t, []byte("replayed"), 100)

	if _, err := e.ledger.SubmitProof(e.signedRequest(t, []byte("fresh"), 100)); err != nil {
		t.Fatalf("submit fresh: %v", err)
	}

	// The replayed signature binds nonce 0 but the stored nonce is now 1.
	if _, err := e.ledger.SubmitProof(stale); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("stale nonce: got %v, want ErrInvalidSignature", err)
	}
}

func TestSubmitProof_FeeMismatch(t *testing.T) {
	e := newTestEnv(t)

	req := e.signedRequest(t, []byte("proof"), 100)
	req.Payment = 99

	if _, err := e.ledger.SubmitProof(req); !errors.Is(err, ErrFeeMismatch) {
		t.Errorf("short payment: got %v, want ErrFeeMismatch", err)
	}

	req = e.signedRequest(t, []byte("proof"), 100)
	req.Payment = 101

	if _, err := e.ledger.SubmitProof(req); !errors.Is(err, ErrFeeMismatch) {
		t.Errorf("over payment: got %v, want ErrFeeMismatch", err)
	}
}

func TestSubmitProof_UnsupportedPayload(t *testing.T) {
	e := newTestEnv(t)

	req := e.signedRequest(t, []byte("proof"), 100)
	req.Payload = normalizer.Payload{}

	if _, err := e.ledger.SubmitProof(req); !errors.Is(err, normalizer.ErrUnsupportedPayload) {
		t.Errorf("zero payload: got %v, want ErrUnsupportedPayload", err)
	}
}

func TestSubmitProof_EmitsEvent(t *testing.T) {
	e := newTestEnv(t)

	record, err := e.ledger.SubmitProof(e.signedRequest(t, []byte("proof"), 100))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case event := <-e.ledger.Events():
		if event.Kind != EventProofSubmitted {
			t.Errorf("event kind: got %v, want EventProofSubmitted", event.Kind)
		}

		if event.Commitment != record.Commitment || event.Signer != e.id {
			t.Errorf("event does not carry the submission identity")
		}
	default:
		t.Errorf("no event emitted for accepted submission")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	e := newTestEnv(t)

	payload := bytes.Repeat([]byte("canonical-proof-bytes "), 64)

	record, err := e.ledger.SubmitProof(e.signedRequest(t, payload, 10))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	stored, err := e.ledger.ProofPayload(record.Commitment)
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}

	if !bytes.Equal(stored, payload) {
		t.Errorf("payload did not survive the compression round trip")
	}
}

func TestSubmitAggregate(t *testing.T) {
	e := newTestEnv(t)

	leaves := e.submitProofs(t, 4, 25)

	root, err := merkle.BuildRoot(leaves)
	if err != nil {
		t.Fatalf("build root: %v", err)
	}

	record, err := e.ledger.SubmitAggregate(AggregateRequest{
		Payload:             normalizer.BytesPayload([]byte("aggregated")),
		ClaimedRoot:         root,
		IncludedCommitments: leaves,
		Submitter:           e.id,
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	if record.MerkleRoot != root {
		t.Errorf("recorded root does not match")
	}

	if record.TotalFee != 100 {
		t.Errorf("total fee: got %d, want 100", record.TotalFee)
	}

	split := record.FeeSplit()
	if split.Current+split.Inclusion+split.Aggregation != record.TotalFee {
		t.Errorf("fee split does not sum to the total")
	}

	stored, err := e.ledger.GetAggregate(record.AggregatedCommitment)
	if err != nil {
		t.Fatalf("get aggregate: %v", err)
	}

	if len(stored.IncludedLeaves) != 4 {
		t.Errorf("stored leaves: got %d, want 4", len(stored.IncludedLeaves))
	}
}

func TestSubmitAggregate_RootMismatch(t *testing.T) {
	e := newTestEnv(t)

	leaves := e.submitProofs(t, 3, 10)

	_, err := e.ledger.SubmitAggregate(AggregateRequest{
		Payload:             normalizer.BytesPayload([]byte("aggregated")),
		ClaimedRoot:         merkle.Sum([]byte("wrong")),
		IncludedCommitments: leaves,
		Submitter:           e.id,
	})

	if !errors.Is(err, ErrRootMismatch) {
		t.Errorf("wrong root: got %v, want ErrRootMismatch", err)
	}
}

func TestSubmitAggregate_Duplicate(t *testing.T) {
	e := newTestEnv(t)

	leaves := e.submitProofs(t, 2, 10)

	root, err := merkle.BuildRoot(leaves)
	if err != nil {
		t.Fatalf("build root: %v", err)
	}

	req := AggregateRequest{
		Payload:             normalizer.BytesPayload([]byte("aggregated")),
		ClaimedRoot:         root,
		IncludedCommitments: leaves,
		Submitter:           e.id,
	}

	if _, err := e.ledger.SubmitAggregate(req); err != nil {
		t.Fatalf("first aggregate: %v", err)
	}

	if _, err := e.ledger.SubmitAggregate(req); !errors.Is(err, ErrDuplicateAggregate) {
		t.Errorf("duplicate: got %v, want ErrDuplicateAggregate", err)
	}
}

func TestSubmitAggregate_UnknownBase(t *testing.T) {
	e := newTestEnv(t)

	leaves := []merkle.Hash{merkle.Sum([]byte("never-submitted"))}

	root, err := merkle.BuildRoot(leaves)
	if err != nil {
		t.Fatalf("build root: %v", err)
	}

	_, err = e.ledger.SubmitAggregate(AggregateRequest{
		Payload:             normalizer.BytesPayload([]byte("aggregated")),
		ClaimedRoot:         root,
		IncludedCommitments: leaves,
		Submitter:           e.id,
	})

	if !errors.Is(err, ErrBaseNotFound) {
		t.Errorf("unknown base: got %v, want ErrBaseNotFound", err)
	}
}

func TestVerifyInclusion(t *testing.T) {
	e := newTestEnv(t)

	leaves := e.submitProofs(t, 5, 10)

	root, err := merkle.BuildRoot(leaves)
	if err != nil {
		t.Fatalf("build root: %v", err)
	}

	record, err := e.ledger.SubmitAggregate(AggregateRequest{
		Payload:             normalizer.BytesPayload([]byte("aggregated")),
		ClaimedRoot:         root,
		IncludedCommitments: leaves,
		Submitter:           e.id,
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	for i, leaf := range leaves {
		path, err := merkle.GenerateInclusionPath(leaves, i)
		if err != nil {
			t.Fatalf("generate path %d: %v", i, err)
		}

		ok, err := e.ledger.VerifyInclusion(leaf, record.AggregatedCommitment, path)
		if err != nil {
			t.Fatalf("verify %d: %v", i, err)
		}

		if !ok {
			t.Errorf("leaf %d: valid inclusion rejected", i)
		}
	}
}

func TestVerifyInclusion_FalseIsNotAnError(t *testing.T) {
	e := newTestEnv(t)

	leaves := e.submitProofs(t, 4, 10)

	root, err := merkle.BuildRoot(leaves)
	if err != nil {
		t.Fatalf("build root: %v", err)
	}

	record, err := e.ledger.SubmitAggregate(AggregateRequest{
		Payload:             normalizer.BytesPayload([]byte("aggregated")),
		ClaimedRoot:         root,
		IncludedCommitments: leaves,
		Submitter:           e.id,
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	path, err := merkle.GenerateInclusionPath(leaves, 0)
	if err != nil {
		t.Fatalf("generate path: %v", err)
	}

	path.Siblings[0][0] ^= 0x01

	ok, err := e.ledger.VerifyInclusion(leaves[0], record.AggregatedCommitment, path)
	if err != nil {
		t.Fatalf("verify returned an error for a mismatch: %v", err)
	}

	if ok {
		t.Errorf("tampered path verified")
	}
}

func TestVerifyInclusion_MissingRecords(t *testing.T) {
	e := newTestEnv(t)

	leaves := e.submitProofs(t, 2, 10)

	root, err := merkle.BuildRoot(leaves)
	if err != nil {
		t.Fatalf("build root: %v", err)
	}

	record, err := e.ledger.SubmitAggregate(AggregateRequest{
		Payload:             normalizer.BytesPayload([]byte("aggregated")),
		ClaimedRoot:         root,
		IncludedCommitments: leaves,
		Submitter:           e.id,
	})
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	path, err := merkle.GenerateInclusionPath(leaves, 0)
	if err != nil {
		t.Fatalf("generate path: %v", err)
	}

	_, err = e.ledger.VerifyInclusion(leaves[0], merkle.Sum([]byte("no-such-aggregate")), path)
	if !errors.Is(err, ErrAggregateNotFound) {
		t.Errorf("unknown aggregate: got %v, want ErrAggregateNotFound", err)
	}

	_, err = e.ledger.VerifyInclusion(merkle.Sum([]byte("no-such-base")), record.AggregatedCommitment, path)
	if !errors.Is(err, ErrBaseNotFound) {
		t.Errorf("unknown base: got %v, want ErrBaseNotFound", err)
	}
}

func TestNonce_PerIdentity(t *testing.T) {
	e := newTestEnv(t)
	other := newTestEnv(t)

	e.submitProofs(t, 3, 10)

	nonce, err := e.ledger.Nonce(e.id)
	if err != nil {
		t.Fatalf("read nonce: %v", err)
	}

	if nonce != 3 {
		t.Errorf("nonce after three submissions: got %d, want 3", nonce)
	}

	// A different identity on the same ledger starts at zero.
	otherNonce, err := e.ledger.Nonce(other.id)
	if err != nil {
		t.Fatalf("read other nonce: %v", err)
	}

	if otherNonce != 0 {
		t.Errorf("fresh identity nonce: got %d, want 0", otherNonce)
	}
}
