// Package events defines the canonical encodings of everything the
// Gateway emits (spec §6): the tagged records the Sentinel relayer parses
// back out of transaction logs, and that any destination program can
// decode without coupling to the Gateway's account layout.
package events

import (
	"encoding/binary"
	"fmt"

	"github.com/axelar-solana/gmp-gateway/internal/gateway/encoding"
)

// Tag discriminates event kinds with a single leading byte, which Decode
// reads back so callers can dispatch on it.
type Tag uint8

const (
	TagCallContract Tag = iota
	TagCallContractOffchainData
	TagMessageApproved
	TagMessageExecuted
	TagSignersRotated
	TagOperatorshipTransferred
)

// CallContract is emitted by call_contract (spec §4.6, §6). Payload is
// included verbatim - this is the canonical source of truth the outbound
// relayer (Sentinel) parses.
type CallContract struct {
	Sender             [32]byte
	DestinationChain   string
	DestinationAddress string
	PayloadHash        [32]byte
	Payload            []byte
}

func (e CallContract) Encode() []byte {
	w := encoding.NewWriter().
		Fixed([]byte{byte(TagCallContract)}).
		Bytes32(e.Sender).
		String(e.DestinationChain).
		String(e.DestinationAddress).
		Bytes32(e.PayloadHash).
		VarBytes(e.Payload)
	return w.Bytes()
}

// CallContractOffchainData is emitted by call_contract_offchain_data:
// identical to CallContract but the payload itself is omitted (used when
// a payload is too large to fit in one transaction log), per spec §4.6.
type CallContractOffchainData struct {
	Sender             [32]byte
	DestinationChain   string
	DestinationAddress string
	PayloadHash        [32]byte
}

func (e CallContractOffchainData) Encode() []byte {
	w := encoding.NewWriter().
		Fixed([]byte{byte(TagCallContractOffchainData)}).
		Bytes32(e.Sender).
		String(e.DestinationChain).
		String(e.DestinationAddress).
		Bytes32(e.PayloadHash)
	return w.Bytes()
}

// MessageApproval carries the shared field layout spec §6 assigns to both
// message_approved and message_executed - only the tag differs.
type MessageApproval struct {
	CommandID          [32]byte
	DestinationAddress string
	PayloadHash        [32]byte
	SourceChain        string
	CrossChainID       string
	SourceAddress      string
	DestinationChain   string
}

func (e MessageApproval) encode(tag Tag) []byte {
	w := encoding.NewWriter().
		Fixed([]byte{byte(tag)}).
		Bytes32(e.CommandID).
		String(e.DestinationAddress).
		Bytes32(e.PayloadHash).
		String(e.SourceChain).
		String(e.CrossChainID).
		String(e.SourceAddress).
		String(e.DestinationChain)
	return w.Bytes()
}

// MessageApproved is emitted by approve_message.
func (e MessageApproval) MessageApproved() []byte { return e.encode(TagMessageApproved) }

// MessageExecuted is emitted by validate_message.
func (e MessageApproval) MessageExecuted() []byte { return e.encode(TagMessageExecuted) }

// SignersRotated is emitted by rotate_signers: the new epoch (as a
// little-endian U256, per spec §6) and the newly installed set's hash.
type SignersRotated struct {
	Epoch      [32]byte // little-endian U256
	NewSetHash [32]byte
}

func (e SignersRotated) Encode() []byte {
	w := encoding.NewWriter().
		Fixed([]byte{byte(TagSignersRotated)}).
		Fixed(e.Epoch[:]).
		Bytes32(e.NewSetHash)
	return w.Bytes()
}

// OperatorshipTransferred is emitted by transfer_operatorship.
type OperatorshipTransferred struct {
	NewOperator [32]byte
}

func (e OperatorshipTransferred) Encode() []byte {
	w := encoding.NewWriter().
		Fixed([]byte{byte(TagOperatorshipTransferred)}).
		Bytes32(e.NewOperator)
	return w.Bytes()
}

// EpochToLE256 renders a monotonic epoch counter as the little-endian
// U256 spec §6 requires for signers_rotated, reusing the canonical
// encoding package's fixed-width helper.
func EpochToLE256(epoch uint64) [32]byte {
	var out [32]byte
	copy(out[:], encoding.U256LE(beU64ToBE32(epoch)))
	return out
}

func beU64ToBE32(v uint64) [32]byte {
	var be [32]byte
	binary.BigEndian.PutUint64(be[24:], v)
	return be
}

// Decode reads the leading tag byte off an encoded event without parsing
// the remainder - callers dispatch on Tag before decoding a specific
// variant with its own parser.
func Decode(data []byte) (Tag, []byte, error) {
	if len(data) < 1 {
		return 0, nil, fmt.Errorf("event data too short: %d bytes", len(data))
	}
	return Tag(data[0]), data[1:], nil
}

// DecodeCallContract parses the tag-stripped body Decode returns for a
// TagCallContract event. The Sentinel relayer is this decoder's only
// caller - it has no other way to recover a CallContract from a scraped
// transaction log line.
func DecodeCallContract(body []byte) (CallContract, error) {
	r := encoding.NewReader(body)
	e := CallContract{
		Sender:             r.Bytes32(),
		DestinationChain:   r.String(),
		DestinationAddress: r.String(),
		PayloadHash:        r.Bytes32(),
		Payload:            r.VarBytes(),
	}
	if err := r.Err(); err != nil {
		return CallContract{}, fmt.Errorf("decode call_contract: %w", err)
	}
	return e, nil
}

// DecodeCallContractOffchainData parses the tag-stripped body of a
// TagCallContractOffchainData event.
func DecodeCallContractOffchainData(body []byte) (CallContractOffchainData, error) {
	r := encoding.NewReader(body)
	e := CallContractOffchainData{
		Sender:             r.Bytes32(),
		DestinationChain:   r.String(),
		DestinationAddress: r.String(),
		PayloadHash:        r.Bytes32(),
	}
	if err := r.Err(); err != nil {
		return CallContractOffchainData{}, fmt.Errorf("decode call_contract_offchain_data: %w", err)
	}
	return e, nil
}
