package encoding

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func weightOf(n uint64) [16]byte {
	var w [16]byte
	w[15] = byte(n)
	w[14] = byte(n >> 8)
	return w
}

func buildSet(pubkeys [][]byte) VerifierSet {
	signers := make([]WeightedSigner, len(pubkeys))
	for i, pk := range pubkeys {
		signers[i] = WeightedSigner{Pubkey: pk, Weight: weightOf(10), Variant: VariantECDSASecp256k1}
	}
	return VerifierSet{Nonce: 1, Signers: signers, Quorum: weightOf(20)}
}

// TestMerkleiseVerifierSet_OrderInvariant verifies spec §8 item 4: the root
// depends only on set membership and nonce, not insertion order.
func TestMerkleiseVerifierSet_OrderInvariant(t *testing.T) {
	pubkeys := [][]byte{
		{0x03, 0xAA},
		{0x02, 0xBB},
		{0x03, 0x11},
	}
	var domainSep [32]byte

	set1 := buildSet(pubkeys)

	shuffled := append([][]byte(nil), pubkeys...)
	rand.New(rand.NewSource(1)).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	set2 := buildSet(shuffled)

	tree1, _, err := MerkleiseVerifierSet(set1, domainSep, NativeHasher)
	require.NoError(t, err)
	tree2, _, err := MerkleiseVerifierSet(set2, domainSep, NativeHasher)
	require.NoError(t, err)

	require.Equal(t, tree1.Root(), tree2.Root(), "root must not depend on insertion order")
}

// TestCanonicalMessageHash_RoundTrip verifies spec §8 item 3: hashing via
// NativeHasher and SyscallHasher agree bit-for-bit.
func TestCanonicalMessageHash_RoundTrip(t *testing.T) {
	msg := Message{
		SourceChain:        "ethereum",
		CrossChainID:       "0xabc-0",
		SourceAddress:      "0xSender",
		DestinationChain:   "solana",
		DestinationAddress: "Mem111111111111111111111111111111111111111",
		PayloadHash:        Keccak256([]byte("hello")),
	}

	onChain := CanonicalMessageHash(msg, SyscallHasher)
	offChain := CanonicalMessageHash(msg, NativeHasher)
	require.Equal(t, offChain, onChain)
}

func TestCommandID_Deterministic(t *testing.T) {
	id1 := CommandID("ethereum", "0xabc-0", NativeHasher)
	id2 := CommandID("ethereum", "0xabc-0", NativeHasher)
	require.Equal(t, id1, id2)

	id3 := CommandID("ethereum", "0xabc-1", NativeHasher)
	require.NotEqual(t, id1, id3)
}
