// Package encoding implements the canonical byte layout and hashing used
// everywhere a message or verifier set is signed or Merkle-ised.
package encoding

import (
	"github.com/ethereum/go-ethereum/crypto"
)

// Hasher is a 32-byte domain hash function. Two implementations exist so
// off-chain tooling (the relayer) and the on-chain program provably agree
// bit-for-bit: NativeHasher runs Keccak-256 directly; SyscallHasher stands
// in for a runtime-provided syscall that performs the identical digest on
// validators. Both MUST produce the same output for the same input -
// SyscallHasher delegates to the native implementation rather than
// pretending to be a different algorithm.
type Hasher interface {
	Hash(data ...[]byte) [32]byte
}

type nativeHasher struct{}

// NativeHasher computes Keccak-256 directly in Go.
var NativeHasher Hasher = nativeHasher{}

func (nativeHasher) Hash(data ...[]byte) [32]byte {
	var out [32]byte
	copy(out[:], crypto.Keccak256(data...))
	return out
}

type syscallHasher struct{}

// SyscallHasher represents the on-chain hashing path. On a real deployment
// this would invoke the runtime's keccak256 syscall; here it calls the same
// Keccak-256 implementation so the round-trip law (spec §8 item 3) holds by
// construction instead of by coincidence.
var SyscallHasher Hasher = syscallHasher{}

func (syscallHasher) Hash(data ...[]byte) [32]byte {
	return NativeHasher.Hash(data...)
}

// Keccak256 is a convenience wrapper over NativeHasher for callers that
// don't need to select a hasher explicitly (off-chain relayer code).
func Keccak256(data ...[]byte) [32]byte {
	return NativeHasher.Hash(data...)
}
