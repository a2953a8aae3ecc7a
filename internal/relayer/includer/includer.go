// Package includer drives Solana's in-process Gateway Engine from Axelar
// approval batches (spec.md §4.8, C8). Signing and broadcasting a Solana
// transaction is explicitly out of scope (spec.md §1's Non-goals name "the
// CLI for deployment/signing/broadcasting"); this package instead treats
// the co-located *instructions.Engine as the trusted runtime a real
// on-chain program would execute, per SPEC_FULL.md's framing of Engine +
// Store as that runtime's stand-in. Every approve_message/rotate_signers
// outcome is durably persisted via Checkpointer.InsertGatewayEvent (spec.md
// §6 step 4), and an approved message carrying a full payload is staged
// through C7 (spec §4.8 item 4) before the batch is considered applied.
package includer

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/google/uuid"

	"github.com/axelar-solana/gmp-gateway/internal/gateway/encoding"
	"github.com/axelar-solana/gmp-gateway/internal/gateway/instructions"
	"github.com/axelar-solana/gmp-gateway/internal/gateway/state"
	"github.com/axelar-solana/gmp-gateway/internal/gateway/verify"
	"github.com/axelar-solana/gmp-gateway/internal/gateway/verify/zkverify"
	"github.com/axelar-solana/gmp-gateway/internal/relayer/axelarclient"
	"github.com/axelar-solana/gmp-gateway/internal/relayer/telemetry"
)

// ApprovalSource is the subset of axelarclient.ApprovalSubscription the
// Includer needs, named so tests can feed batches without a live WebSocket.
type ApprovalSource interface {
	Next(ctx context.Context) (*axelarclient.ApprovalBatch, error)
}

// Checkpointer is the subset of store.Client the Includer needs.
type Checkpointer interface {
	AxelarCheckpoint(ctx context.Context) (uint64, error)
	AdvanceAxelarCheckpoint(ctx context.Context, latestBlock uint64) error
	InsertGatewayEvent(ctx context.Context, corrID, kind string, encoded []byte) error
}

// Includer is the C8 loop.
type Includer struct {
	Approvals  ApprovalSource
	Store      Checkpointer
	Engine     *instructions.Engine
	Metrics    *telemetry.Metrics
	Logger     *log.Logger
	CallerIsOp bool // whether this relayer instance also holds the operator key, passed to RotateSigners for verifier-set batches

	// UploaderAddress owns every C7 message-payload staging account this
	// Includer opens on a message's behalf (spec §4.8 item 4). Defaults to
	// a fixed derived address in New - there is exactly one Includer per
	// relayer process, so one uploader identity is enough.
	UploaderAddress state.Address

	reservations reservationTable
}

// New constructs an Includer wired to engine.
func New(approvals ApprovalSource, checkpoints Checkpointer, engine *instructions.Engine, metrics *telemetry.Metrics) *Includer {
	return &Includer{
		Approvals:       approvals,
		Store:           checkpoints,
		Engine:          engine,
		Metrics:         metrics,
		Logger:          telemetry.NewLogger("Includer"),
		UploaderAddress: state.Address(encoding.Keccak256([]byte("includer-message-payload-uploader"))),
	}
}

// Run drains ApprovalSource.Next until ctx is cancelled or a batch fails
// to apply, per spec.md §5's "on error, log and exit" runtime contract.
func (in *Includer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			in.Logger.Println("shutting down")
			return nil
		default:
		}

		batch, err := in.Approvals.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			in.Logger.Printf("approval stream read failed: %v", err)
			if in.Metrics != nil {
				in.Metrics.FatalErrors.WithLabelValues("includer").Inc()
			}
			return fmt.Errorf("read approval batch: %w", err)
		}

		corrID := uuid.NewString()
		if err := in.applyBatch(ctx, batch, corrID); err != nil {
			in.Logger.Printf("correlation=%s batch at block=%d failed: %v", corrID, batch.BlockHeight, err)
			if in.Metrics != nil {
				in.Metrics.FatalErrors.WithLabelValues("includer").Inc()
			}
			return fmt.Errorf("apply batch block=%d: %w", batch.BlockHeight, err)
		}

		if err := in.Store.AdvanceAxelarCheckpoint(ctx, batch.BlockHeight); err != nil {
			return fmt.Errorf("advance axelar checkpoint: %w", err)
		}
		if in.Metrics != nil {
			in.Metrics.BatchesApplied.Inc()
		}
	}
}

// wireWeightedSigner is the Amplifier API's JSON rendering of
// encoding.WeightedSigner - hex-encoded, unlike the Gateway's own binary
// account format, since this boundary is Axelar's HTTP/WebSocket surface
// rather than an on-chain account.
type wireWeightedSigner struct {
	Pubkey  string `json:"pubkey"`
	Weight  string `json:"weight"`
	Variant uint8  `json:"variant"`
}

type wireProofStep struct {
	Sibling  string `json:"sibling"`
	Position uint8  `json:"position"`
}

// wireZKProof is the Amplifier API's rendering of an off-chain-generated
// zkverify pre-verification proof for one Ed25519 signer (verify.go's
// default path for that variant). RawProof is the Groth16 proof's own
// binary serialization, hex-encoded for this JSON transport; SignedWeight
// is the only public field trusted at face value from the wire - the
// commitments and quorum the Verifier checks it against are recomputed
// from the signer leaf, signature, and live session instead.
type wireZKProof struct {
	RawProof     string `json:"raw_proof"`
	SignedWeight string `json:"signed_weight"`
}

type wireSignerProof struct {
	Leaf      wireWeightedSigner `json:"leaf"`
	Position  int                `json:"position"`
	SetSize   int                `json:"set_size"`
	Nonce     uint64             `json:"nonce"`
	Quorum    string             `json:"quorum"`
	ProofPath []wireProofStep    `json:"proof_path"`
	Signature string             `json:"signature"`
	ZKProof   *wireZKProof       `json:"zk_proof,omitempty"`
}

type wireMessage struct {
	SourceChain        string `json:"source_chain"`
	CrossChainID       string `json:"cross_chain_id"`
	SourceAddress      string `json:"source_address"`
	DestinationChain   string `json:"destination_chain"`
	DestinationAddress string `json:"destination_address"`
	PayloadHash        string `json:"payload_hash"`

	// Payload, if present, is staged via C7 once the message is approved
	// (spec §4.8 item 4), so a destination program that requires the full
	// payload on Solana can read it back out of the staging account
	// instead of only the payload hash carried in the approval itself.
	Payload string `json:"payload,omitempty"`
}

// wireBatch is the decoded shape of ApprovalBatch.PayloadBytes: either a
// message batch awaiting approve_message, or a new verifier set awaiting
// rotate_signers, both gated behind the same verify_signature session
// mechanics (spec.md §4.3-§4.5).
type wireBatch struct {
	Kind           string            `json:"kind"` // "messages" or "verifier_set"
	SigningSetHash string            `json:"signing_set_hash"`
	PayloadRoot    string            `json:"payload_root"`
	Quorum         string            `json:"quorum"`
	SetSize        int               `json:"set_size"`
	Proofs         []wireSignerProof `json:"proofs"`
	Messages       []wireMessage     `json:"messages,omitempty"`
	NewSetRoot     string            `json:"new_set_root,omitempty"`
}

func (in *Includer) applyBatch(ctx context.Context, batch *axelarclient.ApprovalBatch, corrID string) error {
	var wb wireBatch
	if err := json.Unmarshal(batch.PayloadBytes, &wb); err != nil {
		return fmt.Errorf("decode approval payload: %w", err)
	}

	signingSetHash, err := hexTo32(wb.SigningSetHash)
	if err != nil {
		return fmt.Errorf("signing_set_hash: %w", err)
	}
	payloadRoot, err := hexTo32(wb.PayloadRoot)
	if err != nil {
		return fmt.Errorf("payload_root: %w", err)
	}
	quorum, err := hexTo16(wb.Quorum)
	if err != nil {
		return fmt.Errorf("quorum: %w", err)
	}

	if err := in.Engine.InitializePayloadVerificationSession(payloadRoot, signingSetHash, quorum, wb.SetSize); err != nil &&
		!isAlreadyInitialized(err) {
		return fmt.Errorf("initialize verification session: %w", err)
	}

	for _, p := range wb.Proofs {
		key := reservationKey{payloadRoot: payloadRoot, signingSetHash: signingSetHash, position: p.Position}
		if in.reservations.alreadyReserved(key) {
			continue
		}
		proof, err := decodeSignerProof(p)
		if err != nil {
			return fmt.Errorf("decode signer proof at position %d: %w", p.Position, err)
		}
		if err := in.Engine.VerifySignature(payloadRoot, signingSetHash, proof); err != nil {
			return fmt.Errorf("verify_signature at position %d: %w", p.Position, err)
		}
		in.reservations.reserve(key)
		if in.Metrics != nil {
			in.Metrics.VerifySubmissions.WithLabelValues("accepted").Inc()
		}
	}

	switch wb.Kind {
	case "messages":
		return in.approveMessages(ctx, wb, signingSetHash, payloadRoot, corrID)
	case "verifier_set":
		newSetRoot, err := hexTo32(wb.NewSetRoot)
		if err != nil {
			return fmt.Errorf("new_set_root: %w", err)
		}
		rotated, err := in.Engine.RotateSigners(signingSetHash, newSetRoot, in.CallerIsOp)
		if err != nil {
			return fmt.Errorf("rotate_signers: %w", err)
		}
		if err := in.Store.InsertGatewayEvent(ctx, corrID, "signers_rotated", rotated.Encode()); err != nil {
			return fmt.Errorf("persist signers_rotated event: %w", err)
		}
		in.Logger.Printf("correlation=%s rotated signers to epoch=%x new_set=%x", corrID, rotated.Epoch, rotated.NewSetHash)
		return nil
	default:
		return fmt.Errorf("unknown approval batch kind %q", wb.Kind)
	}
}

func (in *Includer) approveMessages(ctx context.Context, wb wireBatch, signingSetHash, payloadRoot [32]byte, corrID string) error {
	batchSize := len(wb.Messages)
	for i, wm := range wb.Messages {
		payloadHash, err := hexTo32(wm.PayloadHash)
		if err != nil {
			return fmt.Errorf("message[%d].payload_hash: %w", i, err)
		}
		msg := encoding.Message{
			SourceChain:        wm.SourceChain,
			CrossChainID:       wm.CrossChainID,
			SourceAddress:      wm.SourceAddress,
			DestinationChain:   wm.DestinationChain,
			DestinationAddress: wm.DestinationAddress,
			PayloadHash:        payloadHash,
		}
		approval, err := in.Engine.ApproveMessage(signingSetHash, payloadRoot, msg, batchSize, leafProofFor(wb, i))
		if err != nil {
			return fmt.Errorf("approve_message[%d]: %w", i, err)
		}

		if err := in.Store.InsertGatewayEvent(ctx, corrID, "message_approved", approval.MessageApproved()); err != nil {
			return fmt.Errorf("persist message_approved event[%d]: %w", i, err)
		}

		if wm.Payload != "" {
			if err := in.stageMessagePayload(approval.CommandID, wm.Payload, payloadHash); err != nil {
				return fmt.Errorf("stage message payload[%d]: %w", i, err)
			}
		}

		in.Logger.Printf("correlation=%s approved message cross_chain_id=%s command_id=%x", corrID, wm.CrossChainID, approval.CommandID)
	}
	return nil
}

// stageMessagePayload drives the C7 staging lifecycle (InitializeMessage-
// Payload, WriteMessagePayload, CommitMessagePayload) for one approved
// message's full payload, so a destination program expecting to read it
// back off Solana finds it there instead of only the payload hash the
// approval itself carries (spec §4.8 item 4). CloseMessagePayload is left
// to whichever component consumes the staged payload, not this one.
func (in *Includer) stageMessagePayload(commandID [32]byte, hexPayload string, expectedHash [32]byte) error {
	payload, err := hex.DecodeString(hexPayload)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	incomingMessagePDA, _ := state.IncomingMessagePDA(in.Engine.ProgramID, commandID)

	if err := in.Engine.InitializeMessagePayload(incomingMessagePDA, in.UploaderAddress, uint32(len(payload))); err != nil && !isAlreadyInitialized(err) {
		return fmt.Errorf("initialize_message_payload: %w", err)
	}
	if err := in.Engine.WriteMessagePayload(incomingMessagePDA, in.UploaderAddress, 0, payload); err != nil {
		if isAlreadyCommitted(err) {
			return nil
		}
		return fmt.Errorf("write_message_payload: %w", err)
	}
	if err := in.Engine.CommitMessagePayload(incomingMessagePDA, in.UploaderAddress, expectedHash); err != nil && !isAlreadyCommitted(err) {
		return fmt.Errorf("commit_message_payload: %w", err)
	}
	return nil
}

// isAlreadyCommitted reports whether err is payload.go's
// CodePayloadAlreadyCommitted, the signal that a redelivered approval batch
// (spec §5's WebSocket-reconnect replay) already staged this payload.
func isAlreadyCommitted(err error) bool {
	var gwErr *state.GatewayError
	return errors.As(err, &gwErr) && gwErr.Code == state.CodePayloadAlreadyCommitted
}

// leafProofFor recomputes the message's inclusion proof against the
// batch's own message list, since the Amplifier API hands the Includer the
// full ordered message set rather than a pre-built proof per message.
func leafProofFor(wb wireBatch, index int) *encoding.Proof {
	msgs := make([]encoding.Message, len(wb.Messages))
	for i, wm := range wb.Messages {
		payloadHash, _ := hexTo32(wm.PayloadHash)
		msgs[i] = encoding.Message{
			SourceChain:        wm.SourceChain,
			CrossChainID:       wm.CrossChainID,
			SourceAddress:      wm.SourceAddress,
			DestinationChain:   wm.DestinationChain,
			DestinationAddress: wm.DestinationAddress,
			PayloadHash:        payloadHash,
		}
	}
	tree, err := encoding.MerkleiseMessages(msgs, encoding.NativeHasher)
	if err != nil {
		return &encoding.Proof{LeafIndex: index}
	}
	proof, err := tree.Prove(index)
	if err != nil {
		return &encoding.Proof{LeafIndex: index}
	}
	return proof
}

func decodeSignerProof(p wireSignerProof) (verify.SignerProof, error) {
	pubkey, err := hex.DecodeString(p.Leaf.Pubkey)
	if err != nil {
		return verify.SignerProof{}, fmt.Errorf("pubkey: %w", err)
	}
	weight, err := hexTo16(p.Leaf.Weight)
	if err != nil {
		return verify.SignerProof{}, fmt.Errorf("weight: %w", err)
	}
	quorum, err := hexTo16(p.Quorum)
	if err != nil {
		return verify.SignerProof{}, fmt.Errorf("quorum: %w", err)
	}
	signature, err := hex.DecodeString(p.Signature)
	if err != nil {
		return verify.SignerProof{}, fmt.Errorf("signature: %w", err)
	}

	path := make([]encoding.ProofStep, len(p.ProofPath))
	for i, step := range p.ProofPath {
		sibling, err := hexTo32(step.Sibling)
		if err != nil {
			return verify.SignerProof{}, fmt.Errorf("proof_path[%d].sibling: %w", i, err)
		}
		path[i] = encoding.ProofStep{Sibling: sibling, Position: encoding.Position(step.Position)}
	}

	zkProof, err := decodeZKProof(p.ZKProof)
	if err != nil {
		return verify.SignerProof{}, fmt.Errorf("zk_proof: %w", err)
	}

	return verify.SignerProof{
		Leaf: encoding.WeightedSigner{
			Pubkey:  pubkey,
			Weight:  weight,
			Variant: encoding.SignerVariant(p.Leaf.Variant),
		},
		Position:  p.Position,
		SetSize:   p.SetSize,
		Nonce:     p.Nonce,
		Quorum:    quorum,
		Proof:     &encoding.Proof{LeafIndex: p.Position, Path: path},
		Signature: signature,
		ZKProof:   zkProof,
	}, nil
}

// decodeZKProof deserializes the Groth16 proof an off-chain zkverify
// co-processor attached to an Ed25519 signer's submission. Returns nil for
// ECDSA secp256k1 signers, which carry no such field.
func decodeZKProof(w *wireZKProof) (*zkverify.Proof, error) {
	if w == nil {
		return nil, nil
	}
	raw, err := hex.DecodeString(w.RawProof)
	if err != nil {
		return nil, fmt.Errorf("raw_proof: %w", err)
	}
	signedWeight, ok := new(big.Int).SetString(w.SignedWeight, 10)
	if !ok {
		return nil, fmt.Errorf("signed_weight: invalid decimal %q", w.SignedWeight)
	}

	proof := groth16.NewProof(ecc.BN254)
	if _, err := proof.ReadFrom(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("decode groth16 proof: %w", err)
	}

	return &zkverify.Proof{
		Raw:          proof,
		SignedWeight: signedWeight,
	}, nil
}

func isAlreadyInitialized(err error) bool {
	return err != nil && errors.Is(err, state.ErrAlreadyInitialized)
}

func hexTo32(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func hexTo16(s string) ([16]byte, error) {
	var out [16]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 16 {
		return out, fmt.Errorf("expected 16 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

// reservationKey identifies one signer's claimed slot in one verification
// session, the unit the in-flight reservation table dedupes on.
type reservationKey struct {
	payloadRoot    [32]byte
	signingSetHash [32]byte
	position       int
}

// reservationTable tracks signer positions already submitted to
// verify_signature this process's lifetime, so a re-delivered approval
// batch (e.g. after a WebSocket reconnect replays recent blocks) does not
// redo Merkle-proof and signature-recovery work the Engine has already
// accepted and made idempotent on its own. Grounded in spirit on a
// once-only reservation-before-commit pattern; this module has no direct
// teacher analogue still present in the current tree, so the shape here
// follows the Engine's own HasVerified/MarkVerified bitmap idiom instead.
type reservationTable struct {
	mu        sync.Mutex
	submitted map[reservationKey]struct{}
}

func (t *reservationTable) alreadyReserved(key reservationKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.submitted[key]
	return ok
}

func (t *reservationTable) reserve(key reservationKey) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.submitted == nil {
		t.submitted = make(map[reservationKey]struct{})
	}
	t.submitted[key] = struct{}{}
}
