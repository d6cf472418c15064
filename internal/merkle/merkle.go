// Package merkle builds binary commitment trees over 32-byte digests and
// generates/verifies inclusion paths. The construction must match the
// on-chain verifier bit for bit: pairs are combined left-then-right and an
// odd trailing node is promoted unchanged to the next level, never
// duplicated or padded.
package merkle

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
)

// HashSize is the size of a commitment digest in bytes.
const HashSize = 32

// Hash is a 32-byte commitment digest.
type Hash [HashSize]byte

var (
	// ErrEmptyLeafSet is returned when a tree is built over zero leaves.
	ErrEmptyLeafSet = errors.New("empty leaf set")

	// ErrIndexOutOfRange is returned when a path is requested for a leaf
	// index beyond the leaf sequence.
	ErrIndexOutOfRange = errors.New("leaf index out of range")
)

// InclusionPath authenticates one leaf against a Merkle root.
type InclusionPath struct {
	Siblings []Hash // Siblings are the authenticating hashes in root-ward order
	Index    uint64 // Index encodes the left/right parity of each combine step
	Leaf     Hash   // Leaf is the authenticated leaf digest
}

// String returns the digest as lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// FromHex parses a 32-byte digest from hex, accepting an optional 0x prefix.
func FromHex(s string) (Hash, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}

	decoded, err := hex.DecodeString(s)
	if err != nil || len(decoded) != HashSize {
		return Hash{}, fmt.Errorf("invalid digest hex %q", s)
	}

	var h Hash
	copy(h[:], decoded)

	return h, nil
}

// Sum hashes arbitrary bytes into a commitment digest.
func Sum(data []byte) Hash {
	return blake3.Sum256(data)
}

// combine hashes a left/right pair into their parent node.
// Exactly 64 input bytes, left then right, no prefixes or separators.
func combine(left, right Hash) Hash {
	var buf [2 * HashSize]byte
	copy(buf[:HashSize], left[:])
	copy(buf[HashSize:], right[:])

	return blake3.Sum256(buf[:])
}

// BuildRoot computes the Merkle root of an ordered leaf sequence.
// A single leaf is its own root. At each level consecutive nodes are paired
// left to right; an unpaired last node is promoted unchanged.
func BuildRoot(leaves []Hash) (Hash, error) {
	if len(leaves) == 0 {
		return Hash{}, ErrEmptyLeafSet
	}

	level := make([]Hash, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		next := level[:0:cap(level)]

		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, combine(level[i], level[i+1]))
			} else {
				// Odd node: promote unchanged
				next = append(next, level[i])
			}
		}

		level = next
	}

	return level[0], nil
}

// GenerateInclusionPath builds the authenticating path for leaves[index].
//
// The returned Index is not always the raw leaf position: each combine step
// on the way up contributes one parity bit (0 when the authenticated node
// is the left operand, 1 when it is the right), while promoted levels
// contribute nothing. For leaf counts where no promotion occurs on the
// path, the value equals the leaf index. Encoding parities this way keeps
// VerifyInclusionPath a pure function of (path, root) for every tree shape.
func GenerateInclusionPath(leaves []Hash, index int) (InclusionPath, error) {
	if len(leaves) == 0 {
		return InclusionPath{}, ErrEmptyLeafSet
	}

	if index < 0 || index >= len(leaves) {
		return InclusionPath{}, ErrIndexOutOfRange
	}

	path := InclusionPath{Leaf: leaves[index]}

	level := make([]Hash, len(leaves))
	copy(level, leaves)

	idx := index
	bit := 0

	for len(level) > 1 {
		if idx%2 == 0 {
			// Left operand, sibling to the right if it exists. A missing
			// sibling means this node is promoted and records nothing.
			if idx+1 < len(level) {
				path.Siblings = append(path.Siblings, level[idx+1])
				bit++
			}
		} else {
			path.Siblings = append(path.Siblings, level[idx-1])
			path.Index |= 1 << bit
			bit++
		}

		next := level[:0:cap(level)]

		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, combine(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}

		level = next
		idx /= 2
	}

	return path, nil
}

// VerifyInclusionPath reports whether path authenticates its leaf against
// root. It is a pure predicate: malformed paths yield false, never an
// error. Each sibling is consumed with the running index parity deciding
// operand order, then the index halves.
func VerifyInclusionPath(path InclusionPath, root Hash) bool {
	computed := path.Leaf
	idx := path.Index

	for _, sibling := range path.Siblings {
		if idx%2 == 0 {
			computed = combine(computed, sibling)
		} else {
			computed = combine(sibling, computed)
		}

		idx /= 2
	}

	return computed == root
}
