package ledger

import (
	"encoding/binary"
	"fmt"

	"ProofNest/internal/auth"
	"ProofNest/internal/merkle"
)

// Records are stored in a fixed little-endian layout with u32 length
// prefixes on variable parts. The layout is deterministic: encoding the
// same record always yields the same bytes.

// encodeProofRecord serializes a proof record.
// Layout: commitment(32) submitter(32) fee(u64) nonce(u64) pubIn(32)
// vk(32) sigLen(u32) sig timestamp(i64).
func encodeProofRecord(r *ProofRecord) []byte {
	buf := make([]byte, 0, 32+32+8+8+32+32+4+len(r.Signature)+8)

	buf = append(buf, r.Commitment[:]...)
	buf = append(buf, r.Submitter[:]...)
	buf = appendUint64(buf, r.Fee)
	buf = appendUint64(buf, r.Nonce)
	buf = append(buf, r.PublicInputCommitment[:]...)
	buf = append(buf, r.VerificationKeyCommitment[:]...)
	buf = appendBytes(buf, r.Signature)
	buf = appendUint64(buf, uint64(r.Timestamp))

	return buf
}

// decodeProofRecord deserializes a proof record.
func decodeProofRecord(data []byte) (*ProofRecord, error) {
	d := decoder{data: data}
	r := &ProofRecord{}

	d.hash(&r.Commitment)
	d.identity(&r.Submitter)
	r.Fee = d.uint64()
	r.Nonce = d.uint64()
	d.hash(&r.PublicInputCommitment)
	d.hash(&r.VerificationKeyCommitment)
	r.Signature = d.bytes()
	r.Timestamp = int64(d.uint64())

	if d.failed {
		return nil, fmt.Errorf("malformed proof record")
	}

	return r, nil
}

// encodeAggregationRecord serializes an aggregation record.
// Layout: aggregated(32) root(32) submitter(32) totalFee(u64)
// timestamp(i64) leafCount(u32) leaves disabledCount(u32) disabled.
func encodeAggregationRecord(r *AggregationRecord) []byte {
	size := 32 + 32 + 32 + 8 + 8 +
		4 + len(r.IncludedLeaves)*merkle.HashSize +
		4 + len(r.DisabledSubtreeRoots)*merkle.HashSize
	buf := make([]byte, 0, size)

	buf = append(buf, r.AggregatedCommitment[:]...)
	buf = append(buf, r.MerkleRoot[:]...)
	buf = append(buf, r.Submitter[:]...)
	buf = appendUint64(buf, r.TotalFee)
	buf = appendUint64(buf, uint64(r.Timestamp))
	buf = appendHashes(buf, r.IncludedLeaves)
	buf = appendHashes(buf, r.DisabledSubtreeRoots)

	return buf
}

// decodeAggregationRecord deserializes an aggregation record.
func decodeAggregationRecord(data []byte) (*AggregationRecord, error) {
	d := decoder{data: data}
	r := &AggregationRecord{}

	d.hash(&r.AggregatedCommitment)
	d.hash(&r.MerkleRoot)
	d.identity(&r.Submitter)
	r.TotalFee = d.uint64()
	r.Timestamp = int64(d.uint64())
	r.IncludedLeaves = d.hashes()
	r.DisabledSubtreeRoots = d.hashes()

	if d.failed {
		return nil, fmt.Errorf("malformed aggregation record")
	}

	return r, nil
}

// appendUint64 appends a little-endian u64.
func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)

	return append(buf, tmp[:]...)
}

// appendBytes appends a u32 length prefix followed by the bytes.
func appendBytes(buf, data []byte) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(data)))

	buf = append(buf, tmp[:]...)

	return append(buf, data...)
}

// appendHashes appends a u32 count followed by the raw hashes.
func appendHashes(buf []byte, hashes []merkle.Hash) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(hashes)))

	buf = append(buf, tmp[:]...)
	for _, h := range hashes {
		buf = append(buf, h[:]...)
	}

	return buf
}

// decoder walks an encoded record, latching failure on underflow.
type decoder struct {
	data   []byte
	offset int
	failed bool
}

// take returns the next n bytes, or nil after latching failure.
func (d *decoder) take(n int) []byte {
	if d.failed || n < 0 || d.offset+n > len(d.data) {
		d.failed = true
		return nil
	}

	out := d.data[d.offset : d.offset+n]
	d.offset += n

	return out
}

func (d *decoder) hash(h *merkle.Hash) {
	if b := d.take(merkle.HashSize); b != nil {
		copy(h[:], b)
	}
}

func (d *decoder) identity(id *auth.Identity) {
	if b := d.take(auth.IdentitySize); b != nil {
		copy(id[:], b)
	}
}

func (d *decoder) uint64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}

	return binary.LittleEndian.Uint64(b)
}

func (d *decoder) uint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}

	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) bytes() []byte {
	n := int(d.uint32())

	b := d.take(n)
	if b == nil {
		return nil
	}

	out := make([]byte, n)
	copy(out, b)

	return out
}

func (d *decoder) hashes() []merkle.Hash {
	n := int(d.uint32())
	if d.failed {
		return nil
	}

	// Reject counts that exceed the remaining bytes before allocating.
	if n*merkle.HashSize > len(d.data)-d.offset {
		d.failed = true
		return nil
	}

	out := make([]merkle.Hash, n)
	for i := range out {
		d.hash(&out[i])
	}

	if d.failed {
		return nil
	}

	return out
}
