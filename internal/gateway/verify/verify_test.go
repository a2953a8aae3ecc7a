package verify_test

import (
	"crypto/ecdsa"
	"testing"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/axelar-solana/gmp-gateway/internal/gateway/encoding"
	"github.com/axelar-solana/gmp-gateway/internal/gateway/state"
	"github.com/axelar-solana/gmp-gateway/internal/gateway/verify"
)

type testSigner struct {
	pubkey []byte
	weight [16]byte
}

func u128(v uint64) [16]byte {
	var b [16]byte
	for i := 0; i < 8; i++ {
		b[15-i] = byte(v >> (8 * i))
	}
	return b
}

func newSigner(t *testing.T, weight uint64) (priv []byte, signer testSigner) {
	t.Helper()
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pub := gethcrypto.CompressPubkey(&key.PublicKey)
	return gethcrypto.FromECDSA(key), testSigner{pubkey: pub, weight: u128(weight)}
}

// TestVerifySignature_S1HappyPath mirrors the scenario of two signers with
// weights 10 and 4 against a quorum of 14: the session goes terminal only
// once both have submitted.
func TestVerifySignature_S1HappyPath(t *testing.T) {
	priv1, s1 := newSigner(t, 10)
	priv2, s2 := newSigner(t, 4)

	quorum := u128(14)
	set := encoding.VerifierSet{
		Nonce: 1,
		Signers: []encoding.WeightedSigner{
			{Pubkey: s1.pubkey, Weight: s1.weight, Variant: encoding.VariantECDSASecp256k1},
			{Pubkey: s2.pubkey, Weight: s2.weight, Variant: encoding.VariantECDSASecp256k1},
		},
		Quorum: quorum,
	}

	var domainSeparator [32]byte
	copy(domainSeparator[:], []byte("gmp-gateway-test-domain-sep"))

	tree, positions, err := encoding.MerkleiseVerifierSet(set, domainSeparator, encoding.NativeHasher)
	if err != nil {
		t.Fatalf("merkleise: %v", err)
	}
	signingSetHash := tree.Root()

	var payloadRoot [32]byte
	copy(payloadRoot[:], []byte("payload-root-under-test"))

	session := state.NewSession(signingSetHash, quorum, len(set.Signers), 255)

	v := verify.New(domainSeparator)

	submit := func(idx int, priv []byte, signer encoding.WeightedSigner) error {
		pos := positions[idx]
		proof, err := tree.Prove(pos)
		if err != nil {
			t.Fatalf("prove: %v", err)
		}
		sig, err := gethcrypto.Sign(payloadRoot[:], mustToECDSA(t, priv))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return v.VerifySignature(&session, payloadRoot, signingSetHash, verify.SignerProof{
			Leaf:      signer,
			Position:  pos,
			SetSize:   len(set.Signers),
			Nonce:     set.Nonce,
			Quorum:    quorum,
			Proof:     proof,
			Signature: sig,
		})
	}

	if session.Terminal {
		t.Fatal("session should not start terminal")
	}

	if err := submit(0, priv1, set.Signers[0]); err != nil {
		t.Fatalf("signer 1 (weight 10): %v", err)
	}
	if session.Terminal {
		t.Fatal("session should not be terminal after weight 10 of 14")
	}

	if err := submit(1, priv2, set.Signers[1]); err != nil {
		t.Fatalf("signer 2 (weight 4): %v", err)
	}
	if !session.Terminal {
		t.Fatal("session should be terminal once accumulated weight (14) clears quorum (14)")
	}
}

// TestVerifySignature_DuplicateIsIdempotent covers spec §8 invariant 2: a
// duplicate submission for an already-verified position is a no-op, not an
// error, and does not double-count weight.
func TestVerifySignature_DuplicateIsIdempotent(t *testing.T) {
	priv1, s1 := newSigner(t, 10)
	_, s2 := newSigner(t, 4)

	quorum := u128(14)
	set := encoding.VerifierSet{
		Nonce: 1,
		Signers: []encoding.WeightedSigner{
			{Pubkey: s1.pubkey, Weight: s1.weight, Variant: encoding.VariantECDSASecp256k1},
			{Pubkey: s2.pubkey, Weight: s2.weight, Variant: encoding.VariantECDSASecp256k1},
		},
		Quorum: quorum,
	}

	var domainSeparator [32]byte
	copy(domainSeparator[:], []byte("gmp-gateway-test-domain-sep"))

	tree, positions, err := encoding.MerkleiseVerifierSet(set, domainSeparator, encoding.NativeHasher)
	if err != nil {
		t.Fatalf("merkleise: %v", err)
	}
	signingSetHash := tree.Root()

	var payloadRoot [32]byte
	copy(payloadRoot[:], []byte("payload-root-under-test"))

	session := state.NewSession(signingSetHash, quorum, len(set.Signers), 255)
	v := verify.New(domainSeparator)

	pos := positions[0]
	proof, err := tree.Prove(pos)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	sig, err := gethcrypto.Sign(payloadRoot[:], mustToECDSA(t, priv1))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	sp := verify.SignerProof{
		Leaf:      set.Signers[0],
		Position:  pos,
		SetSize:   len(set.Signers),
		Nonce:     set.Nonce,
		Quorum:    quorum,
		Proof:     proof,
		Signature: sig,
	}

	if err := v.VerifySignature(&session, payloadRoot, signingSetHash, sp); err != nil {
		t.Fatalf("first submission: %v", err)
	}
	weightAfterFirst := session.AccumulatedWeight

	if err := v.VerifySignature(&session, payloadRoot, signingSetHash, sp); err != nil {
		t.Fatalf("duplicate submission should be a no-op, got error: %v", err)
	}
	if session.AccumulatedWeight != weightAfterFirst {
		t.Fatal("duplicate submission must not double-count weight")
	}
}

// TestVerifySignature_RejectsBadSignature covers spec §8 invariant 2: an
// invalid signer proof is rejected without mutating session state.
func TestVerifySignature_RejectsBadSignature(t *testing.T) {
	_, s1 := newSigner(t, 10)
	_, s2 := newSigner(t, 4)
	otherPriv, _ := newSigner(t, 999) // wrong key, same weight-less stand-in

	quorum := u128(14)
	set := encoding.VerifierSet{
		Nonce: 1,
		Signers: []encoding.WeightedSigner{
			{Pubkey: s1.pubkey, Weight: s1.weight, Variant: encoding.VariantECDSASecp256k1},
			{Pubkey: s2.pubkey, Weight: s2.weight, Variant: encoding.VariantECDSASecp256k1},
		},
		Quorum: quorum,
	}

	var domainSeparator [32]byte
	copy(domainSeparator[:], []byte("gmp-gateway-test-domain-sep"))

	tree, positions, err := encoding.MerkleiseVerifierSet(set, domainSeparator, encoding.NativeHasher)
	if err != nil {
		t.Fatalf("merkleise: %v", err)
	}
	signingSetHash := tree.Root()

	var payloadRoot [32]byte
	copy(payloadRoot[:], []byte("payload-root-under-test"))

	session := state.NewSession(signingSetHash, quorum, len(set.Signers), 255)
	v := verify.New(domainSeparator)

	pos := positions[0]
	proof, err := tree.Prove(pos)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	// Sign with an unrelated key - recovered pubkey won't match the leaf.
	badSig, err := gethcrypto.Sign(payloadRoot[:], mustToECDSA(t, otherPriv))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	err = v.VerifySignature(&session, payloadRoot, signingSetHash, verify.SignerProof{
		Leaf:      set.Signers[0],
		Position:  pos,
		SetSize:   len(set.Signers),
		Nonce:     set.Nonce,
		Quorum:    quorum,
		Proof:     proof,
		Signature: badSig,
	})
	if err == nil {
		t.Fatal("expected rejection of mismatched signature, got nil error")
	}
	var zero [16]byte
	if session.AccumulatedWeight != zero {
		t.Fatal("rejected submission must not mutate accumulated weight")
	}
	if session.HasVerified(pos) {
		t.Fatal("rejected submission must not mark the position verified")
	}
}

func mustToECDSA(t *testing.T, raw []byte) *ecdsa.PrivateKey {
	t.Helper()
	key, err := gethcrypto.ToECDSA(raw)
	if err != nil {
		t.Fatalf("to ecdsa: %v", err)
	}
	return key
}
