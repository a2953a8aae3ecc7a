// Package verify implements the signature-verification core (spec §4.3):
// accumulating per-signer proofs against a signing verifier set until
// quorum is reached.
package verify

import (
	"fmt"
	"math/big"

	"golang.org/x/crypto/ed25519"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/axelar-solana/gmp-gateway/internal/gateway/encoding"
	"github.com/axelar-solana/gmp-gateway/internal/gateway/state"
	"github.com/axelar-solana/gmp-gateway/internal/gateway/verify/zkverify"
)

// Ed25519Capability gates whether Ed25519 signers may be verified directly
// on-chain. Per spec §9's Open Question ("on-chain Ed25519 is documented as
// compute-budget-hostile"), the default deployment leaves this disabled and
// instead requires Ed25519 signers to go through the zk pre-verification
// path (internal/gateway/verify/zkverify); enabling it is an explicit,
// documented choice for deployments that can afford the compute budget.
type Ed25519Capability uint8

const (
	Ed25519Disabled Ed25519Capability = iota
	Ed25519OnChain
)

// SignerProof is the tuple submitted to verify_signature: a signer leaf,
// its Merkle inclusion proof against the signing set, and a signature over
// the payload root.
type SignerProof struct {
	Leaf      encoding.WeightedSigner
	Position  int
	SetSize   int
	Nonce     uint64
	Quorum    [16]byte
	Proof     *encoding.Proof
	Signature []byte

	// ZKProof carries an off-chain-generated Groth16 pre-verification proof
	// for Ed25519 signers (spec §9's Open Question on compute-budget-hostile
	// on-chain Ed25519). Nil for ECDSA secp256k1 signers, which verify
	// directly. Only ZKProof.Raw and SignedWeight are trusted from the wire;
	// the commitments and Quorum checked against it are recomputed from the
	// live signer leaf, signature, and session, so a proof built for a
	// different signer or a different verifier set's quorum is rejected.
	ZKProof *zkverify.Proof
}

// Verifier accumulates SignerProof submissions into a Session.
type Verifier struct {
	DomainSeparator [32]byte
	Hasher          encoding.Hasher
	Ed25519Cap      Ed25519Capability

	// Prover backs the zkverify pre-verification path Ed25519 signers take
	// when Ed25519Cap is Ed25519Disabled (the default). Nil means Ed25519
	// signers cannot be verified at all - callers that want Ed25519 support
	// must wire an initialized *zkverify.Prover in here.
	Prover *zkverify.Prover
}

// New returns a Verifier with the native hasher and Ed25519 disabled by
// default. Callers that need Ed25519 support must set Prover to an
// initialized *zkverify.Prover.
func New(domainSeparator [32]byte) *Verifier {
	return &Verifier{
		DomainSeparator: domainSeparator,
		Hasher:          encoding.NativeHasher,
		Ed25519Cap:      Ed25519Disabled,
	}
}

// VerifySignature implements spec §4.3 steps 1-5 against an existing
// session. It mutates session in place and returns a *state.GatewayError on
// any failure, leaving the session unchanged (verification is all-or-nothing
// per submission).
func (v *Verifier) VerifySignature(session *state.Session, payloadRoot, signingSetHash [32]byte, proof SignerProof) error {
	if session.SigningSetHash != signingSetHash {
		return state.Errf(state.CodeInvalidVerifierSet, "session is scoped to a different signing set")
	}

	// Step 1: the signer leaf, recombined with its inclusion proof, must
	// equal the signing verifier set's committed hash.
	leafHash := encoding.SignerLeaf(encoding.VerifierSet{
		Nonce:   proof.Nonce,
		Signers: leafSetOf(proof),
		Quorum:  proof.Quorum,
	}, 0, proof.Position, v.DomainSeparator, v.Hasher)

	ok, err := encoding.VerifyProof(leafHash, proof.Proof, signingSetHash, v.Hasher)
	if err != nil {
		return state.Err(state.CodeInvalidMerkleProof, err)
	}
	if !ok {
		return state.Errf(state.CodeInvalidMerkleProof, "signer leaf does not combine to signing_verifier_set_hash")
	}

	// Step 2: reject if this signer position was already counted
	// (idempotent no-op, not an error - callers should check this first
	// and skip resubmission, but a direct call simply returns nil here).
	if session.HasVerified(proof.Position) {
		return nil
	}

	// Step 3: verify the signature over the payload root using the
	// algorithm dictated by the leaf's pubkey variant.
	if err := v.verifySignatureBytes(proof.Leaf, payloadRoot, proof.Signature, proof.ZKProof, session.Quorum); err != nil {
		return err
	}

	// Step 4: set the bit and add weight; a sum above 2^128-1 fails with
	// CodeArithmeticOverflow instead of wrapping.
	newWeight, err := encoding.SaturatingAddU128(session.AccumulatedWeight, proof.Leaf.Weight)
	if err != nil {
		return state.Err(state.CodeArithmeticOverflow, err)
	}
	session.MarkVerified(proof.Position)
	session.AccumulatedWeight = newWeight

	// Step 5: terminal once accumulated weight >= quorum.
	if encoding.CompareU128(session.AccumulatedWeight, session.Quorum) >= 0 {
		session.Terminal = true
	}
	return nil
}

func (v *Verifier) verifySignatureBytes(signer encoding.WeightedSigner, payloadRoot [32]byte, sig []byte, zkProof *zkverify.Proof, sessionQuorum [16]byte) error {
	switch signer.Variant {
	case encoding.VariantECDSASecp256k1:
		if len(sig) != 65 {
			return state.Errf(state.CodeMissingSigner, "secp256k1 signature must include recovery id, got %d bytes", len(sig))
		}
		recovered, err := gethcrypto.SigToPub(payloadRoot[:], sig)
		if err != nil {
			return state.Err(state.CodeMissingSigner, fmt.Errorf("recover pubkey: %w", err))
		}
		recoveredBytes := gethcrypto.CompressPubkey(recovered)
		if !bytesEqual(recoveredBytes, signer.Pubkey) {
			return state.Errf(state.CodeMissingSigner, "recovered pubkey does not match signer leaf")
		}
		return nil

	case encoding.VariantEd25519:
		if v.Ed25519Cap == Ed25519OnChain {
			if len(signer.Pubkey) != ed25519.PublicKeySize {
				return state.Errf(state.CodeMissingSigner, "invalid ed25519 pubkey length")
			}
			if !ed25519.Verify(ed25519.PublicKey(signer.Pubkey), payloadRoot[:], sig) {
				return state.Errf(state.CodeMissingSigner, "ed25519 signature verification failed")
			}
			return nil
		}
		return v.verifyEd25519ViaZK(signer, sig, zkProof, sessionQuorum)

	default:
		return state.Errf(state.CodeInvalidVerifierSet, "unknown signer variant %d", signer.Variant)
	}
}

// verifyEd25519ViaZK is the default Ed25519 path (Ed25519Cap ==
// Ed25519Disabled): rather than checking the Edwards-curve signature
// directly on-chain, it trusts a Groth16 proof generated off-chain and
// re-binds that proof's commitments to the signer pubkey, signature, and
// live session quorum actually in hand, so a proof minted for a different
// signer or a different verifier set cannot be replayed here. Pubkey/
// signature coordinates are a structural stand-in, not real Edwards-curve
// point decomposition - the same simplification state.Derive's off-curve
// marker uses instead of modelling curve arithmetic.
func (v *Verifier) verifyEd25519ViaZK(signer encoding.WeightedSigner, sig []byte, proof *zkverify.Proof, sessionQuorum [16]byte) error {
	if v.Prover == nil {
		return state.Errf(state.CodeInvalidVerifierSet, "ed25519 signers require pre-verification via zkverify; no prover configured")
	}
	if proof == nil || proof.Raw == nil {
		return state.Errf(state.CodeInvalidMerkleProof, "ed25519 signer missing zk pre-verification proof")
	}
	if len(signer.Pubkey) != ed25519.PublicKeySize {
		return state.Errf(state.CodeMissingSigner, "invalid ed25519 pubkey length")
	}
	if len(sig) != ed25519.SignatureSize {
		return state.Errf(state.CodeMissingSigner, "invalid ed25519 signature length")
	}

	x, y := splitCoords(signer.Pubkey)
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:])

	expected := &zkverify.Proof{
		Raw:                 proof.Raw,
		PubkeyCommitment:    zkverify.PubkeyCommitment(x, y),
		SignatureCommitment: zkverify.SignatureCommitment(r, s),
		SignedWeight:        proof.SignedWeight,
		Quorum:              u128ToBigInt(sessionQuorum),
	}

	ok, err := v.Prover.Verify(expected)
	if err != nil {
		return state.Err(state.CodeInvalidMerkleProof, fmt.Errorf("zk pre-verification: %w", err))
	}
	if !ok {
		return state.Errf(state.CodeMissingSigner, "zk pre-verification proof rejected")
	}
	return nil
}

// splitCoords halves a byte slice into two big-endian big.Int coordinates,
// the structural commitment input PreVerifyCircuit expects in place of a
// real Edwards point.
func splitCoords(b []byte) (*big.Int, *big.Int) {
	half := len(b) / 2
	return new(big.Int).SetBytes(b[:half]), new(big.Int).SetBytes(b[half:])
}

// u128ToBigInt converts a big-endian U128 (encoding.SaturatingAddU128's
// representation) to a big.Int for the circuit's scalar-field arithmetic.
func u128ToBigInt(w [16]byte) *big.Int {
	return new(big.Int).SetBytes(w[:])
}

func leafSetOf(proof SignerProof) []encoding.WeightedSigner {
	signers := make([]encoding.WeightedSigner, proof.SetSize)
	signers[0] = proof.Leaf
	return signers
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
