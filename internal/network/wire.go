package network

import (
	"encoding/binary"
	"fmt"
	"io"

	"ProofNest/internal/auth"
	"ProofNest/internal/ledger"
	"ProofNest/internal/merkle"
)

const (
	// maxMessageSize is the maximum allowed message size.
	maxMessageSize = 1 << 20 // 1 MB

	// eventWireSize is the fixed size of an encoded ledger event.
	eventWireSize = 1 + merkle.HashSize + auth.IdentitySize + 8 + 4 + 1
)

// writeFrame writes a length-prefixed message to the writer.
// Format: [4 bytes big-endian length] [payload]
func writeFrame(w io.Writer, data []byte) error {
	if len(data) > maxMessageSize {
		return fmt.Errorf("message too large: %d > %d", len(data), maxMessageSize)
	}

	var lengthBuf [4]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(data)))

	if _, err := w.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("write length: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}

	return nil
}

// readFrame reads a length-prefixed message from the reader.
func readFrame(r io.Reader) ([]byte, error) {
	var lengthBuf [4]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, fmt.Errorf("read length: %w", err)
	}

	length := binary.BigEndian.Uint32(lengthBuf[:])
	if length > maxMessageSize {
		return nil, fmt.Errorf("message too large: %d > %d", length, maxMessageSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	return data, nil
}

// EncodeEvent serializes a ledger event for gossip.
// Layout: kind(u8) commitment(32) signer(32) timestamp(u64 BE)
// includedCount(u32 BE) verified(u8).
func EncodeEvent(e ledger.Event) []byte {
	buf := make([]byte, 0, eventWireSize)

	buf = append(buf, byte(e.Kind))
	buf = append(buf, e.Commitment[:]...)
	buf = append(buf, e.Signer[:]...)

	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(e.Timestamp))
	buf = append(buf, tmp[:]...)

	binary.BigEndian.PutUint32(tmp[:4], uint32(e.IncludedCount))
	buf = append(buf, tmp[:4]...)

	if e.Verified {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	return buf
}

// DecodeEvent deserializes a gossiped ledger event.
func DecodeEvent(data []byte) (ledger.Event, error) {
	if len(data) != eventWireSize {
		return ledger.Event{}, fmt.Errorf("malformed event: %d bytes", len(data))
	}

	e := ledger.Event{Kind: ledger.EventKind(data[0])}

	offset := 1
	copy(e.Commitment[:], data[offset:offset+merkle.HashSize])
	offset += merkle.HashSize

	copy(e.Signer[:], data[offset:offset+auth.IdentitySize])
	offset += auth.IdentitySize

	e.Timestamp = int64(binary.BigEndian.Uint64(data[offset : offset+8]))
	offset += 8

	e.IncludedCount = int(binary.BigEndian.Uint32(data[offset : offset+4]))
	offset += 4

	e.Verified = data[offset] == 1

	return e, nil
}
