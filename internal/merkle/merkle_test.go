package merkle

import (
	"testing"
)

// leafSet builds n distinct test leaves.
func leafSet(n int) []Hash {
	leaves := make([]Hash, n)
	for i := range leaves {
		leaves[i] = Sum([]byte{byte(i)})
	}

	return leaves
}

func TestBuildRoot_Empty(t *testing.T) {
	if _, err := BuildRoot(nil); err != ErrEmptyLeafSet {
		t.Errorf("empty: got %v, want ErrEmptyLeafSet", err)
	}
}

func TestBuildRoot_SingleLeaf(t *testing.T) {
	leaf := Sum([]byte("only"))

	root, err := BuildRoot([]Hash{leaf})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if root != leaf {
		t.Errorf("single leaf root must equal the leaf")
	}
}

func TestBuildRoot_Deterministic(t *testing.T) {
	leaves := leafSet(7)

	first, err := BuildRoot(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	second, err := BuildRoot(leaves)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if first != second {
		t.Errorf("same leaves must produce the same root")
	}
}

func TestBuildRoot_PairOrder(t *testing.T) {
	a := Sum([]byte("a"))
	b := Sum([]byte("b"))

	root, err := BuildRoot([]Hash{a, b})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if root != combine(a, b) {
		t.Errorf("two-leaf root must be H(a||b)")
	}

	if root == combine(b, a) {
		t.Errorf("pair order must not be symmetric")
	}
}

func TestBuildRoot_OddPromotion(t *testing.T) {
	a := Sum([]byte("a"))
	b := Sum([]byte("b"))
	c := Sum([]byte("c"))

	root, err := BuildRoot([]Hash{a, b, c})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	// Level one is [H(a||b), c]; c is promoted, not duplicated.
	want := combine(combine(a, b), c)
	if root != want {
		t.Errorf("odd root must promote the last leaf unchanged")
	}

	// A padding implementation would combine c with itself.
	padded := combine(combine(a, b), combine(c, c))
	if root == padded {
		t.Errorf("odd root must not duplicate the last leaf")
	}
}

func TestGenerateInclusionPath_IndexOutOfRange(t *testing.T) {
	leaves := leafSet(3)

	if _, err := GenerateInclusionPath(leaves, 3); err != ErrIndexOutOfRange {
		t.Errorf("past end: got %v, want ErrIndexOutOfRange", err)
	}

	if _, err := GenerateInclusionPath(leaves, -1); err != ErrIndexOutOfRange {
		t.Errorf("negative: got %v, want ErrIndexOutOfRange", err)
	}
}

func TestInclusionPath_RoundTrip(t *testing.T) {
	// Cover perfect trees, odd widths, and repeated promotion shapes.
	for _, n := range []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 13, 16, 21} {
		leaves := leafSet(n)

		root, err := BuildRoot(leaves)
		if err != nil {
			t.Fatalf("n=%d build: %v", n, err)
		}

		for i := 0; i < n; i++ {
			path, err := GenerateInclusionPath(leaves, i)
			if err != nil {
				t.Fatalf("n=%d i=%d generate: %v", n, i, err)
			}

			if !VerifyInclusionPath(path, root) {
				t.Errorf("n=%d i=%d: valid path did not verify", n, i)
			}
		}
	}
}

func TestVerifyInclusionPath_TamperedSibling(t *testing.T) {
	leaves := leafSet(9)

	root, err := BuildRoot(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	for i := range leaves {
		path, err := GenerateInclusionPath(leaves, i)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}

		for s := range path.Siblings {
			for b := 0; b < HashSize; b++ {
				path.Siblings[s][b] ^= 0xff

				if VerifyInclusionPath(path, root) {
					t.Fatalf("i=%d sibling=%d byte=%d: tampered path verified", i, s, b)
				}

				path.Siblings[s][b] ^= 0xff
			}
		}
	}
}

func TestVerifyInclusionPath_WrongLeaf(t *testing.T) {
	leaves := leafSet(4)

	root, err := BuildRoot(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	path, err := GenerateInclusionPath(leaves, 1)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	path.Leaf = Sum([]byte("imposter"))

	if VerifyInclusionPath(path, root) {
		t.Errorf("path with substituted leaf verified")
	}
}

func TestVerifyInclusionPath_TruncatedPath(t *testing.T) {
	leaves := leafSet(8)

	root, err := BuildRoot(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	path, err := GenerateInclusionPath(leaves, 5)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	path.Siblings = path.Siblings[:len(path.Siblings)-1]

	if VerifyInclusionPath(path, root) {
		t.Errorf("truncated path verified")
	}
}

func TestEndToEnd_CorruptedLeafChangesRoot(t *testing.T) {
	leaves := []Hash{
		Sum([]byte("proof1")),
		Sum([]byte("proof2")),
		Sum([]byte("proof3")),
		Sum([]byte("proof4")),
	}

	root, err := BuildRoot(leaves)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	paths := make([]InclusionPath, len(leaves))
	for i := range leaves {
		paths[i], err = GenerateInclusionPath(leaves, i)
		if err != nil {
			t.Fatalf("generate %d: %v", i, err)
		}

		if !VerifyInclusionPath(paths[i], root) {
			t.Errorf("leaf %d did not verify against root", i)
		}
	}

	// Corrupt one leaf and rebuild: the stale path must no longer verify.
	leaves[2][0] ^= 0x01

	newRoot, err := BuildRoot(leaves)
	if err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	if newRoot == root {
		t.Fatalf("corrupting a leaf did not change the root")
	}

	if VerifyInclusionPath(paths[2], newRoot) {
		t.Errorf("stale path for corrupted leaf verified against new root")
	}
}
