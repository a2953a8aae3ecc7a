package sentinel

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/axelar-solana/gmp-gateway/internal/gateway/events"
	"github.com/axelar-solana/gmp-gateway/internal/relayer/axelarclient"
	"github.com/axelar-solana/gmp-gateway/internal/relayer/solanaclient"
	"github.com/axelar-solana/gmp-gateway/internal/relayer/store"
)

type fakeSolana struct {
	sigs map[string][]solanaclient.SignatureInfo
	txs  map[string]*solanaclient.TransactionLog
}

func (f *fakeSolana) SignaturesForAddress(ctx context.Context, address, until string, limit int) ([]solanaclient.SignatureInfo, error) {
	return f.sigs[address], nil
}

func (f *fakeSolana) GetTransaction(ctx context.Context, signature string) (*solanaclient.TransactionLog, error) {
	return f.txs[signature], nil
}

type fakeVerifier struct {
	calls [][]axelarclient.VerifiedMessage
}

func (f *fakeVerifier) VerifyMessages(ctx context.Context, messages []axelarclient.VerifiedMessage) error {
	f.calls = append(f.calls, messages)
	return nil
}

type fakeCheckpointer struct {
	checkpoint string
	inserted   []store.InboundMessage
	submitted  []int64
	nextID     int64
}

func (f *fakeCheckpointer) SolanaCheckpoint(ctx context.Context) (string, error) {
	return f.checkpoint, nil
}

func (f *fakeCheckpointer) AdvanceSolanaCheckpoint(ctx context.Context, signature string) error {
	f.checkpoint = signature
	return nil
}

func (f *fakeCheckpointer) InsertInboundMessage(ctx context.Context, msg store.InboundMessage) (int64, error) {
	f.nextID++
	f.inserted = append(f.inserted, msg)
	return f.nextID, nil
}

func (f *fakeCheckpointer) MarkSubmitted(ctx context.Context, id int64) error {
	f.submitted = append(f.submitted, id)
	return nil
}

func logDataLine(t *testing.T, cc events.CallContract) string {
	t.Helper()
	return logDataPrefix + base64.StdEncoding.EncodeToString(cc.Encode())
}

func newTestOutbox(t *testing.T) *Outbox {
	t.Helper()
	dir := t.TempDir()
	ob, err := OpenOutbox(dir)
	if err != nil {
		t.Fatalf("open outbox: %v", err)
	}
	t.Cleanup(func() { ob.Close() })
	return ob
}

func TestPollOnceDeliversObservedEvent(t *testing.T) {
	cc := events.CallContract{
		Sender:             [32]byte{7},
		DestinationChain:   "ethereum",
		DestinationAddress: "0xdead",
		PayloadHash:        [32]byte{9},
		Payload:            []byte("hello"),
	}

	solana := &fakeSolana{
		sigs: map[string][]solanaclient.SignatureInfo{
			"gateway": {{Signature: "sig-1", Slot: 5}},
		},
		txs: map[string]*solanaclient.TransactionLog{
			"sig-1": {
				Signature: "sig-1",
				Slot:      5,
				LogLines:  []string{"Program log: irrelevant", logDataLine(t, cc)},
			},
		},
	}
	verifier := &fakeVerifier{}
	checkpoints := &fakeCheckpointer{}

	s := New(solana, verifier, checkpoints, newTestOutbox(t), nil, "gateway")

	if err := s.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}

	if len(checkpoints.inserted) != 1 {
		t.Fatalf("expected 1 inbound message inserted, got %d", len(checkpoints.inserted))
	}
	got := checkpoints.inserted[0]
	if got.CCID != "sig-1-0" {
		t.Fatalf("expected ccid sig-1-0, got %q", got.CCID)
	}
	if got.DestinationChain != "ethereum" {
		t.Fatalf("expected destination_chain ethereum, got %q", got.DestinationChain)
	}

	if len(verifier.calls) != 1 || len(verifier.calls[0]) != 1 {
		t.Fatalf("expected exactly one VerifyMessages call with one message, got %+v", verifier.calls)
	}
	if verifier.calls[0][0].CCID != "sig-1-0" {
		t.Fatalf("expected verified ccid sig-1-0, got %q", verifier.calls[0][0].CCID)
	}

	if len(checkpoints.submitted) != 1 {
		t.Fatalf("expected message marked submitted, got %v", checkpoints.submitted)
	}
	if checkpoints.checkpoint != "sig-1" {
		t.Fatalf("expected checkpoint advanced to sig-1, got %q", checkpoints.checkpoint)
	}

	pending, err := s.Outbox.Pending()
	if err != nil {
		t.Fatalf("outbox pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected outbox cleared after successful delivery, got %d pending", len(pending))
	}
}

func TestPollOnceSkipsTransactionsWithoutEvents(t *testing.T) {
	solana := &fakeSolana{
		sigs: map[string][]solanaclient.SignatureInfo{
			"gateway": {{Signature: "sig-1"}},
		},
		txs: map[string]*solanaclient.TransactionLog{
			"sig-1": {Signature: "sig-1", LogLines: []string{"Program log: no events here"}},
		},
	}
	verifier := &fakeVerifier{}
	checkpoints := &fakeCheckpointer{}

	s := New(solana, verifier, checkpoints, newTestOutbox(t), nil, "gateway")
	if err := s.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}

	if len(checkpoints.inserted) != 0 {
		t.Fatalf("expected no inbound messages, got %d", len(checkpoints.inserted))
	}
	if checkpoints.checkpoint != "sig-1" {
		t.Fatalf("expected checkpoint to still advance past an event-free transaction, got %q", checkpoints.checkpoint)
	}
}

func TestPollOnceSkipsFailedTransactions(t *testing.T) {
	solana := &fakeSolana{
		sigs: map[string][]solanaclient.SignatureInfo{
			"gateway": {{Signature: "sig-1", Err: map[string]any{"InstructionError": []any{0, "Custom"}}}},
		},
		txs: map[string]*solanaclient.TransactionLog{},
	}
	checkpoints := &fakeCheckpointer{}
	s := New(solana, &fakeVerifier{}, checkpoints, newTestOutbox(t), nil, "gateway")

	if err := s.pollOnce(context.Background()); err != nil {
		t.Fatalf("pollOnce: %v", err)
	}
	if checkpoints.checkpoint != "" {
		t.Fatalf("expected checkpoint untouched for a failed transaction, got %q", checkpoints.checkpoint)
	}
}

func TestDrainOutboxRedeliversStagedEvents(t *testing.T) {
	ob := newTestOutbox(t)
	staged := StagedEvent{
		Seq:                1,
		Signature:           "sig-1",
		Index:               0,
		SourceAddress:       "aa",
		DestinationChain:    "ethereum",
		DestinationAddress:  "0xdead",
		PayloadHash:         []byte{1, 2, 3},
	}
	if err := ob.Stage(staged); err != nil {
		t.Fatalf("stage: %v", err)
	}

	verifier := &fakeVerifier{}
	checkpoints := &fakeCheckpointer{}
	s := New(&fakeSolana{}, verifier, checkpoints, ob, nil, "gateway")

	if err := s.drainOutbox(context.Background()); err != nil {
		t.Fatalf("drainOutbox: %v", err)
	}
	if len(checkpoints.inserted) != 1 {
		t.Fatalf("expected staged event redelivered, got %d inserts", len(checkpoints.inserted))
	}
	pending, err := ob.Pending()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected outbox cleared after redelivery, got %d", len(pending))
	}
}

