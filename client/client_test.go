package client

import (
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"ProofNest/internal/api"
	"ProofNest/internal/attest"
	"ProofNest/internal/ledger"
	"ProofNest/internal/merkle"
	"ProofNest/internal/storage"
)

// newTestNode starts an in-process API server and returns its host:port.
func newTestNode(t *testing.T) string {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	t.Cleanup(func() { db.Close() })

	l, err := ledger.New(db)
	if err != nil {
		t.Fatalf("create ledger: %v", err)
	}

	attestor, err := attest.Generate()
	if err != nil {
		t.Fatalf("generate attestor: %v", err)
	}

	ts := httptest.NewServer(api.New(":0", l, attestor, nil).Handler())
	t.Cleanup(ts.Close)

	return strings.TrimPrefix(ts.URL, "http://")
}

func TestNewClient_HealthCheck(t *testing.T) {
	addr := newTestNode(t)

	if _, err := NewClient(addr); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if _, err := NewClient("127.0.0.1:1"); err == nil {
		t.Errorf("connected to a dead address")
	}
}

func TestWallet_SubmitProof(t *testing.T) {
	c, err := NewClient(newTestNode(t))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	w := NewWallet()
	pubIn := merkle.Sum([]byte("inputs"))
	vk := merkle.Sum([]byte("vk"))

	result, err := w.SubmitProof(c, []byte("proof-bytes"), 50, pubIn, vk)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if result.Commitment != merkle.Sum([]byte("proof-bytes")) {
		t.Errorf("commitment does not match the canonical payload hash")
	}

	if result.Nonce != 0 {
		t.Errorf("first submission nonce: got %d, want 0", result.Nonce)
	}

	// The node advances the wallet's nonce.
	nonce, err := c.Nonce(w.Identity())
	if err != nil {
		t.Fatalf("get nonce: %v", err)
	}

	if nonce != 1 {
		t.Errorf("nonce after submission: got %d, want 1", nonce)
	}

	record, err := c.GetProof(result.Commitment)
	if err != nil {
		t.Fatalf("get proof: %v", err)
	}

	if record.Fee != 50 || record.Submitter != w.Identity() {
		t.Errorf("stored record does not match submission")
	}
}

func TestWallet_AggregateAndVerify(t *testing.T) {
	c, err := NewClient(newTestNode(t))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	w := NewWallet()
	pubIn := merkle.Sum([]byte("inputs"))
	vk := merkle.Sum([]byte("vk"))

	payloads := [][]byte{[]byte("proof-a"), []byte("proof-b"), []byte("proof-c")}
	included := make([]merkle.Hash, len(payloads))

	for i, payload := range payloads {
		result, err := w.SubmitProof(c, payload, 30, pubIn, vk)
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}

		included[i] = result.Commitment
	}

	agg, err := w.SubmitAggregate(c, []byte("aggregated-proof"), included)
	if err != nil {
		t.Fatalf("aggregate: %v", err)
	}

	if agg.IncludedCount != 3 || agg.TotalFee != 90 {
		t.Errorf("aggregate: got count=%d fee=%d", agg.IncludedCount, agg.TotalFee)
	}

	if !attest.Verify(agg.Attestation, agg.AggregatedCommitment, agg.AttestorKey) {
		t.Errorf("node attestation does not verify")
	}

	record, err := c.GetAggregate(agg.AggregatedCommitment)
	if err != nil {
		t.Fatalf("get aggregate: %v", err)
	}

	if record.MerkleRoot != agg.MerkleRoot || len(record.IncludedCommitments) != 3 {
		t.Errorf("stored aggregate does not match response")
	}

	for i := range included {
		path, err := merkle.GenerateInclusionPath(included, i)
		if err != nil {
			t.Fatalf("generate path %d: %v", i, err)
		}

		verified, err := c.VerifyInclusion(included[i], agg.AggregatedCommitment, path)
		if err != nil {
			t.Fatalf("verify %d: %v", i, err)
		}

		if !verified {
			t.Errorf("leaf %d: inclusion not verified", i)
		}
	}
}

func TestClient_Status(t *testing.T) {
	c, err := NewClient(newTestNode(t))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	w := NewWallet()
	if _, err := w.SubmitProof(c, []byte("proof"), 10,
		merkle.Sum([]byte("inputs")), merkle.Sum([]byte("vk"))); err != nil {
		t.Fatalf("submit: %v", err)
	}

	status, err := c.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	if status.Proofs != 1 || status.Aggregates != 0 {
		t.Errorf("status counts: got proofs=%d aggregates=%d", status.Proofs, status.Aggregates)
	}
}

func TestClient_RejectsDoubleSpendOfCommitment(t *testing.T) {
	c, err := NewClient(newTestNode(t))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}

	w := NewWallet()
	pubIn := merkle.Sum([]byte("inputs"))
	vk := merkle.Sum([]byte("vk"))

	if _, err := w.SubmitProof(c, []byte("proof"), 10, pubIn, vk); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	if _, err := w.SubmitProof(c, []byte("proof"), 10, pubIn, vk); err == nil {
		t.Errorf("duplicate payload accepted")
	}
}
