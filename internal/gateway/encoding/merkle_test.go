package encoding

import (
	"bytes"
	"testing"
)

func TestBuildTree_SingleLeaf(t *testing.T) {
	leaf := Keccak256([]byte("test data"))
	tree, err := BuildTree([][32]byte{leaf}, NativeHasher)
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}
	root := tree.Root()
	if !bytes.Equal(root[:], leaf[:]) {
		t.Errorf("single leaf root mismatch: got %x, want %x", root, leaf)
	}
	if tree.LeafCount() != 1 {
		t.Errorf("leaf count mismatch: got %d, want 1", tree.LeafCount())
	}
}

func TestBuildTree_TwoLeaves(t *testing.T) {
	leaf1 := Keccak256([]byte("leaf 1"))
	leaf2 := Keccak256([]byte("leaf 2"))

	tree, err := BuildTree([][32]byte{leaf1, leaf2}, NativeHasher)
	if err != nil {
		t.Fatalf("failed to build tree: %v", err)
	}

	expectedRoot := hashPair(NativeHasher, leaf1, leaf2)
	root := tree.Root()
	if !bytes.Equal(root[:], expectedRoot[:]) {
		t.Errorf("two leaf root mismatch: got %x, want %x", root, expectedRoot)
	}
}

func TestProve_RoundTrips(t *testing.T) {
	leaves := make([][32]byte, 5)
	for i := range leaves {
		leaves[i] = Keccak256([]byte{byte(i)})
	}
	tree, err := BuildTree(leaves, NativeHasher)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	for i, leaf := range leaves {
		proof, err := tree.Prove(i)
		if err != nil {
			t.Fatalf("prove(%d): %v", i, err)
		}
		ok, err := VerifyProof(leaf, proof, tree.Root(), NativeHasher)
		if err != nil {
			t.Fatalf("verify(%d): %v", i, err)
		}
		if !ok {
			t.Errorf("proof for leaf %d did not verify", i)
		}
	}
}

func TestVerifyProof_RejectsTamperedLeaf(t *testing.T) {
	leaves := make([][32]byte, 4)
	for i := range leaves {
		leaves[i] = Keccak256([]byte{byte(i)})
	}
	tree, err := BuildTree(leaves, NativeHasher)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	proof, err := tree.Prove(2)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}

	tampered := Keccak256([]byte("not the real leaf"))
	ok, err := VerifyProof(tampered, proof, tree.Root(), NativeHasher)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Error("tampered leaf unexpectedly verified")
	}
}
