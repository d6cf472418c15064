// Package api exposes the ledger over HTTP: proof submission, aggregation
// recording, inclusion queries, and record lookups. Hashes travel as hex
// strings; everything else is JSON.
package api

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ProofNest/internal/attest"
	"ProofNest/internal/auth"
	"ProofNest/internal/ledger"
	"ProofNest/internal/logger"
	"ProofNest/internal/merkle"
	"ProofNest/internal/normalizer"
)

// maxBodySize is the maximum request body size.
const maxBodySize = 8 << 20 // 8 MB

// Server is the HTTP API server.
type Server struct {
	addr     string           // addr is the HTTP listen address
	ledger   *ledger.Ledger   // ledger is the serializing authority
	attestor *attest.KeyPair  // attestor co-signs recorded aggregates (optional)
	peers    PeerCounter      // peers reports mesh connectivity (optional)
	server   *http.Server     // server is the underlying HTTP server
}

// PeerCounter reports notification-mesh connectivity for /status.
type PeerCounter interface {
	PeerCount() int
}

// New creates an HTTP API server over the given ledger.
// attestor and peers may be nil.
func New(addr string, l *ledger.Ledger, attestor *attest.KeyPair, peers PeerCounter) *Server {
	return &Server{
		addr:     addr,
		ledger:   l,
		attestor: attestor,
		peers:    peers,
	}
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Handler builds the server's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /proof", s.handleSubmitProof)
	mux.HandleFunc("POST /aggregate", s.handleSubmitAggregate)
	mux.HandleFunc("POST /verify", s.handleVerifyInclusion)
	mux.HandleFunc("GET /proof/{commitment}", s.handleGetProof)
	mux.HandleFunc("GET /aggregate/{commitment}", s.handleGetAggregate)
	mux.HandleFunc("GET /nonce/{pubkey}", s.handleGetNonce)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// submitProofRequest is the body of POST /proof.
type submitProofRequest struct {
	Payload         string         `json:"payload"`                   // hex proof bytes
	PayloadObject   map[string]any `json:"payloadObject,omitempty"`   // structured proof, wins over Payload
	Fee             uint64         `json:"fee"`
	Payment         uint64         `json:"payment"`
	PublicInput     string         `json:"publicInputCommitment"`     // hex, 32 bytes
	VerificationKey string         `json:"verificationKeyCommitment"` // hex, 32 bytes
	Signature       string         `json:"signature"`                 // base64
	Submitter       string         `json:"submitter"`                 // hex, 32 bytes
}

// handleSubmitProof handles POST /proof.
func (s *Server) handleSubmitProof(w http.ResponseWriter, r *http.Request) {
	var req submitProofRequest
	if !decodeBody(w, r, &req) {
		return
	}

	payload, ok := requestPayload(w, req.PayloadObject, req.Payload)
	if !ok {
		return
	}

	pubIn, err := merkle.FromHex(req.PublicInput)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid publicInputCommitment")
		return
	}

	vk, err := merkle.FromHex(req.VerificationKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid verificationKeyCommitment")
		return
	}

	submitter, ok := parseIdentity(w, req.Submitter)
	if !ok {
		return
	}

	signature, err := base64.StdEncoding.DecodeString(req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signature encoding")
		return
	}

	record, err := s.ledger.SubmitProof(ledger.SubmitRequest{
		Payload:                   payload,
		Fee:                       req.Fee,
		Payment:                   req.Payment,
		PublicInputCommitment:     pubIn,
		VerificationKeyCommitment: vk,
		Signature:                 signature,
		Submitter:                 submitter,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"commitment": record.Commitment.String(),
		"nonce":      record.Nonce,
		"timestamp":  record.Timestamp,
	})
}

// submitAggregateRequest is the body of POST /aggregate.
type submitAggregateRequest struct {
	Payload       string         `json:"payload"`
	PayloadObject map[string]any `json:"payloadObject,omitempty"`
	ClaimedRoot   string         `json:"claimedRoot"`
	Included      []string       `json:"includedCommitments"`
	Disabled      []string       `json:"disabledSubtreeRoots,omitempty"`
	Submitter     string         `json:"submitter"`
}

// handleSubmitAggregate handles POST /aggregate.
func (s *Server) handleSubmitAggregate(w http.ResponseWriter, r *http.Request) {
	var req submitAggregateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	payload, ok := requestPayload(w, req.PayloadObject, req.Payload)
	if !ok {
		return
	}

	claimedRoot, err := merkle.FromHex(req.ClaimedRoot)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid claimedRoot")
		return
	}

	included, err := parseHashes(req.Included)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid includedCommitments")
		return
	}

	disabled, err := parseHashes(req.Disabled)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid disabledSubtreeRoots")
		return
	}

	submitter, ok := parseIdentity(w, req.Submitter)
	if !ok {
		return
	}

	record, err := s.ledger.SubmitAggregate(ledger.AggregateRequest{
		Payload:              payload,
		ClaimedRoot:          claimedRoot,
		IncludedCommitments:  included,
		DisabledSubtreeRoots: disabled,
		Submitter:            submitter,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	split := record.FeeSplit()
	response := map[string]any{
		"aggregatedCommitment": record.AggregatedCommitment.String(),
		"merkleRoot":           record.MerkleRoot.String(),
		"includedCount":        len(record.IncludedLeaves),
		"totalFee":             split.Total,
		"currentShare":         split.Current,
		"inclusionShare":       split.Inclusion,
		"aggregationShare":     split.Aggregation,
		"timestamp":            record.Timestamp,
	}

	// Co-sign the recorded aggregate so downstream verifiers can check
	// which node recorded it.
	if s.attestor != nil {
		response["attestation"] = base64.StdEncoding.EncodeToString(
			s.attestor.Attest(record.AggregatedCommitment))
		response["attestorKey"] = base64.StdEncoding.EncodeToString(
			s.attestor.PublicKeyBytes())
	}

	writeJSON(w, http.StatusCreated, response)
}

// verifyRequest is the body of POST /verify.
type verifyRequest struct {
	BaseCommitment       string   `json:"baseCommitment"`
	AggregatedCommitment string   `json:"aggregatedCommitment"`
	Siblings             []string `json:"siblings"`
	Index                uint64   `json:"index"`
}

// handleVerifyInclusion handles POST /verify.
func (s *Server) handleVerifyInclusion(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeBody(w, r, &req) {
		return
	}

	base, err := merkle.FromHex(req.BaseCommitment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid baseCommitment")
		return
	}

	aggregated, err := merkle.FromHex(req.AggregatedCommitment)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid aggregatedCommitment")
		return
	}

	siblings, err := parseHashes(req.Siblings)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid siblings")
		return
	}

	verified, err := s.ledger.VerifyInclusion(base, aggregated, merkle.InclusionPath{
		Siblings: siblings,
		Index:    req.Index,
		Leaf:     base,
	})
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"verified": verified,
	})
}

// handleGetProof handles GET /proof/{commitment}.
func (s *Server) handleGetProof(w http.ResponseWriter, r *http.Request) {
	commitment, err := merkle.FromHex(r.PathValue("commitment"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid commitment")
		return
	}

	record, err := s.ledger.GetProof(commitment)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"commitment":                record.Commitment.String(),
		"submitter":                 hex.EncodeToString(record.Submitter[:]),
		"fee":                       record.Fee,
		"nonce":                     record.Nonce,
		"publicInputCommitment":     record.PublicInputCommitment.String(),
		"verificationKeyCommitment": record.VerificationKeyCommitment.String(),
		"timestamp":                 record.Timestamp,
	})
}

// handleGetAggregate handles GET /aggregate/{commitment}.
func (s *Server) handleGetAggregate(w http.ResponseWriter, r *http.Request) {
	commitment, err := merkle.FromHex(r.PathValue("commitment"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid commitment")
		return
	}

	record, err := s.ledger.GetAggregate(commitment)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	included := make([]string, len(record.IncludedLeaves))
	for i, leaf := range record.IncludedLeaves {
		included[i] = leaf.String()
	}

	disabled := make([]string, len(record.DisabledSubtreeRoots))
	for i, root := range record.DisabledSubtreeRoots {
		disabled[i] = root.String()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"aggregatedCommitment": record.AggregatedCommitment.String(),
		"merkleRoot":           record.MerkleRoot.String(),
		"includedCommitments":  included,
		"disabledSubtreeRoots": disabled,
		"totalFee":             record.TotalFee,
		"submitter":            hex.EncodeToString(record.Submitter[:]),
		"timestamp":            record.Timestamp,
	})
}

// handleGetNonce handles GET /nonce/{pubkey}.
func (s *Server) handleGetNonce(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIdentity(w, r.PathValue("pubkey"))
	if !ok {
		return
	}

	nonce, err := s.ledger.Nonce(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "backing store unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"nonce": nonce,
	})
}

// handleStatus handles GET /status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	proofs, aggregates, err := s.ledger.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "backing store unavailable")
		return
	}

	status := map[string]any{
		"proofs":     proofs,
		"aggregates": aggregates,
	}

	if s.peers != nil {
		status["peers"] = s.peers.PeerCount()
	}

	writeJSON(w, http.StatusOK, status)
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// decodeBody parses a JSON request body, writing the error response itself.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))

	if err := decoder.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}

	return true
}

// requestPayload builds the normalizer payload from a request: a structured
// object wins over a hex string.
func requestPayload(w http.ResponseWriter, object map[string]any, hexStr string) (normalizer.Payload, bool) {
	if object != nil {
		return normalizer.ObjectPayload(object), true
	}

	if hexStr != "" {
		return normalizer.HexPayload(hexStr), true
	}

	writeError(w, http.StatusBadRequest, "missing payload")

	return normalizer.Payload{}, false
}

// parseIdentity decodes a hex-encoded Ed25519 public key.
func parseIdentity(w http.ResponseWriter, s string) (auth.Identity, bool) {
	decoded, err := hex.DecodeString(s)
	if err != nil || len(decoded) != auth.IdentitySize {
		writeError(w, http.StatusBadRequest, "invalid identity")
		return auth.Identity{}, false
	}

	var id auth.Identity
	copy(id[:], decoded)

	return id, true
}

// parseHashes decodes a list of hex digests.
func parseHashes(values []string) ([]merkle.Hash, error) {
	hashes := make([]merkle.Hash, len(values))

	for i, v := range values {
		h, err := merkle.FromHex(v)
		if err != nil {
			return nil, err
		}

		hashes[i] = h
	}

	return hashes, nil
}

// writeLedgerError maps ledger error kinds to HTTP status codes.
func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrDuplicateProof),
		errors.Is(err, ledger.ErrDuplicateAggregate):
		writeError(w, http.StatusConflict, err.Error())

	case errors.Is(err, ledger.ErrAggregateNotFound),
		errors.Is(err, ledger.ErrBaseNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	case errors.Is(err, ledger.ErrInvalidSignature),
		errors.Is(err, ledger.ErrFeeMismatch),
		errors.Is(err, ledger.ErrRootMismatch),
		errors.Is(err, normalizer.ErrUnsupportedPayload):
		writeError(w, http.StatusBadRequest, err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "backing store unavailable")
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
