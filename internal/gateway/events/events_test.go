package events_test

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/axelar-solana/gmp-gateway/internal/gateway/events"
)

func TestDecodeTagDispatch(t *testing.T) {
	cc := events.CallContract{
		Sender:             [32]byte{1},
		DestinationChain:   "ethereum",
		DestinationAddress: "0x1234",
		PayloadHash:        [32]byte{2},
		Payload:            []byte("ping"),
	}
	encoded := cc.Encode()

	tag, rest, err := events.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tag != events.TagCallContract {
		t.Fatalf("expected TagCallContract, got %v", tag)
	}
	if len(rest) != len(encoded)-1 {
		t.Fatalf("expected tail length %d, got %d", len(encoded)-1, len(rest))
	}
}

func TestMessageApprovalSharesFieldLayoutAcrossTags(t *testing.T) {
	m := events.MessageApproval{
		CommandID:          [32]byte{9},
		DestinationAddress: "dest",
		PayloadHash:        [32]byte{8},
		SourceChain:        "ethereum",
		CrossChainID:       "0xabc-0",
		SourceAddress:      "0xsrc",
		DestinationChain:   "solana",
	}

	approved := m.MessageApproved()
	executed := m.MessageExecuted()

	if bytes.Equal(approved, executed) {
		t.Fatal("approved and executed encodings must differ by tag")
	}
	if !bytes.Equal(approved[1:], executed[1:]) {
		t.Fatal("approved and executed must share identical field encoding beyond the tag byte")
	}

	tag, _, err := events.Decode(approved)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tag != events.TagMessageApproved {
		t.Fatalf("expected TagMessageApproved, got %v", tag)
	}
}

func TestCallContractOffchainDataOmitsPayload(t *testing.T) {
	e := events.CallContractOffchainData{
		Sender:             [32]byte{1},
		DestinationChain:   "ethereum",
		DestinationAddress: "0x1234",
		PayloadHash:        [32]byte{2},
	}
	encoded := e.Encode()
	tag, _, err := events.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tag != events.TagCallContractOffchainData {
		t.Fatalf("expected TagCallContractOffchainData, got %v", tag)
	}
	// tag + sender + two length-prefixed strings + payload hash, and no
	// payload field after it.
	wantLen := 1 + 32 + (4 + len(e.DestinationChain)) + (4 + len(e.DestinationAddress)) + 32
	if len(encoded) != wantLen {
		t.Fatalf("expected %d encoded bytes with no payload field, got %d", wantLen, len(encoded))
	}
}

func TestDecodeCallContractRoundTrips(t *testing.T) {
	cc := events.CallContract{
		Sender:             [32]byte{1},
		DestinationChain:   "ethereum",
		DestinationAddress: "0x1234",
		PayloadHash:        [32]byte{2},
		Payload:            []byte("ping"),
	}
	_, body, err := events.Decode(cc.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	decoded, err := events.DecodeCallContract(body)
	if err != nil {
		t.Fatalf("DecodeCallContract: %v", err)
	}
	if !reflect.DeepEqual(decoded, cc) {
		t.Fatalf("round-tripped event differs: got %+v, want %+v", decoded, cc)
	}
}

func TestDecodeCallContractOffchainDataRoundTrips(t *testing.T) {
	e := events.CallContractOffchainData{
		Sender:             [32]byte{3},
		DestinationChain:   "avalanche",
		DestinationAddress: "0xabcd",
		PayloadHash:        [32]byte{4},
	}
	_, body, err := events.Decode(e.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	decoded, err := events.DecodeCallContractOffchainData(body)
	if err != nil {
		t.Fatalf("DecodeCallContractOffchainData: %v", err)
	}
	if decoded != e {
		t.Fatalf("round-tripped event differs: got %+v, want %+v", decoded, e)
	}
}

func TestDecodeCallContractRejectsTruncatedBody(t *testing.T) {
	_, _, err := events.Decode([]byte{byte(events.TagCallContract), 1, 2})
	if err != nil {
		t.Fatalf("decode tag: %v", err)
	}
	if _, err := events.DecodeCallContract([]byte{1, 2}); err == nil {
		t.Fatal("expected error decoding a truncated call_contract body")
	}
}

func TestEpochToLE256RoundTripsByteOrder(t *testing.T) {
	le := events.EpochToLE256(1)
	if le[0] != 1 {
		t.Fatalf("expected little-endian epoch 1 to have byte 0 set to 1, got %v", le)
	}
	for i := 1; i < 32; i++ {
		if le[i] != 0 {
			t.Fatalf("expected remaining bytes zero, got non-zero at index %d", i)
		}
	}
}
