package zkverify

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
)

// Prover compiles PreVerifyCircuit once and then generates/checks proofs
// against it. One process-wide instance is reused across signers.
type Prover struct {
	mu sync.RWMutex

	cs constraint.ConstraintSystem
	pk groth16.ProvingKey
	vk groth16.VerifyingKey

	initialized bool
}

// NewProver returns an uninitialized Prover; call Initialize before use.
func NewProver() *Prover {
	return &Prover{}
}

// Initialize compiles the circuit and runs the Groth16 trusted setup. This
// is expensive (seconds) and idempotent - later calls are no-ops.
func (p *Prover) Initialize() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.initialized {
		return nil
	}

	var circuit PreVerifyCircuit
	cs, err := frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit)
	if err != nil {
		return fmt.Errorf("compile pre-verification circuit: %w", err)
	}
	p.cs = cs

	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return fmt.Errorf("groth16 setup: %w", err)
	}
	p.pk = pk
	p.vk = vk
	p.initialized = true
	return nil
}

// Witness holds the private values behind one signer's public commitments.
type Witness struct {
	PubkeyX, PubkeyY *big.Int
	SigR, SigS       *big.Int
	SignedWeight     *big.Int
	Quorum           *big.Int
	Weight           *big.Int
}

// Proof is a generated Groth16 proof plus the public inputs it attests to.
type Proof struct {
	Raw                 groth16.Proof
	PubkeyCommitment    *big.Int
	SignatureCommitment *big.Int
	SignedWeight        *big.Int
	Quorum              *big.Int
}

// PubkeyCommitment computes the circuit's public commitment to a pubkey
// point, used both when proving and when checking an on-chain leaf matches.
func PubkeyCommitment(x, y *big.Int) *big.Int {
	return mix(x, y)
}

// SignatureCommitment computes the circuit's public commitment to a
// signature's (R, S) components.
func SignatureCommitment(r, s *big.Int) *big.Int {
	return mix(r, s)
}

func mix(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	result := new(big.Int).Mul(b, big.NewInt(7))
	result.Add(result, a)
	return result
}

// Prove generates a proof that w's signer clears the session's quorum
// alongside the previously accumulated weight, without revealing the raw
// pubkey or signature.
func (p *Prover) Prove(w Witness) (*Proof, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return nil, errors.New("prover not initialized")
	}

	pkCommitment := mix(w.PubkeyX, w.PubkeyY)
	sigCommitment := mix(w.SigR, w.SigS)

	assignment := &PreVerifyCircuit{
		PubkeyCommitment:    pkCommitment,
		SignatureCommitment: sigCommitment,
		SignedWeight:        w.SignedWeight,
		Quorum:              w.Quorum,
		PubkeyX:             w.PubkeyX,
		PubkeyY:             w.PubkeyY,
		SigR:                w.SigR,
		SigS:                w.SigS,
		Weight:              w.Weight,
	}

	witness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("build witness: %w", err)
	}

	raw, err := groth16.Prove(p.cs, p.pk, witness)
	if err != nil {
		return nil, fmt.Errorf("generate proof: %w", err)
	}

	return &Proof{
		Raw:                 raw,
		PubkeyCommitment:    pkCommitment,
		SignatureCommitment: sigCommitment,
		SignedWeight:        w.SignedWeight,
		Quorum:              w.Quorum,
	}, nil
}

// Verify checks a Proof against the vk derived at Initialize time. Callers
// (the Gateway's verify_signature handler) supply the public values they
// expect - a mismatch with what's embedded in proof is a verification
// failure just like a bad Groth16 pairing check.
func (p *Prover) Verify(proof *Proof) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return false, errors.New("prover not initialized")
	}

	assignment := &PreVerifyCircuit{
		PubkeyCommitment:    proof.PubkeyCommitment,
		SignatureCommitment: proof.SignatureCommitment,
		SignedWeight:        proof.SignedWeight,
		Quorum:              proof.Quorum,
	}
	publicWitness, err := frontend.NewWitness(assignment, ecc.BN254.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return false, fmt.Errorf("build public witness: %w", err)
	}

	if err := groth16.Verify(proof.Raw, p.vk, publicWitness); err != nil {
		return false, nil
	}
	return true, nil
}
