package encoding

import "fmt"

// SignerVariant discriminates the signature algorithm a verifier set member
// uses, per spec §4.3 ("ECDSA-secp256k1 with recovery, or Ed25519").
type SignerVariant uint8

const (
	VariantECDSASecp256k1 SignerVariant = iota
	VariantEd25519
)

// WeightedSigner is one member of a verifier set.
type WeightedSigner struct {
	Pubkey  []byte // 33 bytes compressed secp256k1, or 32 bytes Ed25519
	Weight  [16]byte
	Variant SignerVariant
}

// VerifierSet is the {nonce, {pubkey->weight}, quorum} tuple from spec §4.1.
type VerifierSet struct {
	Nonce   uint64
	Signers []WeightedSigner
	Quorum  [16]byte
}

// SignerLeaf is the canonical per-signer Merkle leaf:
// (nonce, quorum, pubkey, weight, position, set_size, domain_separator).
func SignerLeaf(set VerifierSet, signerIndex int, position int, domainSeparator [32]byte, hasher Hasher) [32]byte {
	s := set.Signers[signerIndex]
	w := NewWriter().
		U64(set.Nonce).
		U128(set.Quorum).
		VarBytes(s.Pubkey).
		U128(s.Weight).
		U32(uint32(position)).
		U32(uint32(len(set.Signers))).
		Bytes32(domainSeparator)
	return hasher.Hash(w.Bytes())
}

// MerkleiseVerifierSet sorts the set's signers by pubkey, builds the leaf
// set, and returns the tree and the position assigned to each original
// index. The same members always yield the same root regardless of
// insertion order (spec §4.1, §8 item 4).
func MerkleiseVerifierSet(set VerifierSet, domainSeparator [32]byte, hasher Hasher) (*Tree, []int, error) {
	if len(set.Signers) == 0 {
		return nil, nil, fmt.Errorf("%w: verifier set has no signers", ErrEmptyTree)
	}
	pubkeys := make([][]byte, len(set.Signers))
	for i, s := range set.Signers {
		pubkeys[i] = s.Pubkey
	}
	positions := SortedPositions(pubkeys)

	leaves := make([][32]byte, len(set.Signers))
	for i := range set.Signers {
		leaves[positions[i]] = SignerLeaf(set, i, positions[i], domainSeparator, hasher)
	}
	tree, err := BuildTree(leaves, hasher)
	if err != nil {
		return nil, nil, err
	}
	return tree, positions, nil
}

// Message is the wire shape of one GMP message, spec §4.1.
type Message struct {
	SourceChain        string
	CrossChainID       string // message_id
	SourceAddress      string
	DestinationChain   string
	DestinationAddress string
	PayloadHash        [32]byte
}

// MessageLeaf is the canonical per-message Merkle leaf:
// (message_fields, position, set_size).
func MessageLeaf(msg Message, position, setSize int, hasher Hasher) [32]byte {
	w := NewWriter().
		String(msg.SourceChain).
		String(msg.CrossChainID).
		String(msg.SourceAddress).
		String(msg.DestinationChain).
		String(msg.DestinationAddress).
		Bytes32(msg.PayloadHash).
		U32(uint32(position)).
		U32(uint32(setSize))
	return hasher.Hash(w.Bytes())
}

// MerkleiseMessages builds the payload Merkle tree for a batch of messages,
// in the order supplied (message batches are not re-sorted - only verifier
// sets are, since messages have no canonical ordering to deduplicate by).
func MerkleiseMessages(msgs []Message, hasher Hasher) (*Tree, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: empty message batch", ErrEmptyTree)
	}
	leaves := make([][32]byte, len(msgs))
	for i, m := range msgs {
		leaves[i] = MessageLeaf(m, i, len(msgs), hasher)
	}
	return BuildTree(leaves, hasher)
}

// NewVerifierSetPayloadHash computes the payload hash of a signer-rotation
// payload: keccak("new verifier set" || new_set_root || current_signing_set_root),
// per spec §4.1.
func NewVerifierSetPayloadHash(newSetRoot, currentSigningSetRoot [32]byte, hasher Hasher) [32]byte {
	return hasher.Hash([]byte("new verifier set"), newSetRoot[:], currentSigningSetRoot[:])
}

// CommandID computes keccak(source_chain || "-" || message_id), the global
// replay key defined in spec §6.
func CommandID(sourceChain, messageID string, hasher Hasher) [32]byte {
	return hasher.Hash([]byte(sourceChain), []byte("-"), []byte(messageID))
}

// CanonicalMessageHash hashes a message's canonical encoding directly (not
// as a Merkle leaf) - this is the "canonical message hash" stored on the
// Incoming Message account and recomputed for tamper detection in
// validate_message (spec §4.4 item c).
func CanonicalMessageHash(msg Message, hasher Hasher) [32]byte {
	w := NewWriter().
		String(msg.SourceChain).
		String(msg.CrossChainID).
		String(msg.SourceAddress).
		String(msg.DestinationChain).
		String(msg.DestinationAddress).
		Bytes32(msg.PayloadHash)
	return hasher.Hash(w.Bytes())
}
