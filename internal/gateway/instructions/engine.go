// Package instructions implements the Gateway's C1-C7 instruction set as
// typed methods on Engine, one per operation (Initialize, ApproveMessage,
// RotateSigners, ...), rather than a byte-discriminated dispatch table - a
// real on-chain program would decode a leading instruction tag off the
// wire and route to one of these same state transitions, but nothing here
// models that decode step since every caller in this tree already knows
// which operation it wants to invoke.
//
// Every handler on Engine takes the accounts/inputs it needs explicitly -
// no hidden global state - and returns either the events it emitted or a
// *state.GatewayError, never partial state (spec §4.2 item 4).
package instructions

import (
	"time"

	"github.com/axelar-solana/gmp-gateway/internal/gateway/encoding"
	"github.com/axelar-solana/gmp-gateway/internal/gateway/events"
	"github.com/axelar-solana/gmp-gateway/internal/gateway/state"
	"github.com/axelar-solana/gmp-gateway/internal/gateway/verify"
)

// Engine is the Gateway's state-transition core: every instruction handler
// is a method on it. One Engine corresponds to one deployed program id.
type Engine struct {
	ProgramID state.Address
	Store     state.Store
	Verifier  *verify.Verifier
	Hasher    encoding.Hasher

	// Now returns the current time; overridable in tests to exercise
	// rotation-cooldown edge cases deterministically.
	Now func() time.Time
}

// New returns an Engine wired to store, using the native hasher and a
// verifier scoped to domainSeparator.
func New(programID state.Address, store state.Store, domainSeparator [32]byte) *Engine {
	return &Engine{
		ProgramID: programID,
		Store:     store,
		Verifier:  verify.New(domainSeparator),
		Hasher:    encoding.NativeHasher,
		Now:       time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Initialize creates the singleton Root Config and the tracker for the
// genesis verifier set (spec §4.2, §9: "created once at initialization by
// the deployer").
func (e *Engine) Initialize(operator state.Address, retentionEpochs uint64, minRotationDelay time.Duration, domainSeparator [32]byte, genesisSetHash [32]byte) error {
	configAddr, bump := state.ConfigPDA(e.ProgramID)
	cfg := state.Config{
		Epoch:            0,
		RetentionEpochs:  retentionEpochs,
		MinRotationDelay: minRotationDelay,
		LastRotation:     e.now(),
		Operator:         operator,
		DomainSeparator:  domainSeparator,
		Bump:             bump,
	}
	if err := e.Store.Create(state.Account{Address: configAddr, Bump: bump, Owner: e.ProgramID, Data: cfg.Encode()}); err != nil {
		return state.Err(state.CodeAccountNotInitialized, err)
	}

	trackerAddr, trackerBump := state.VerifierSetTrackerPDA(e.ProgramID, genesisSetHash)
	tracker := state.VerifierSetTracker{EpochInstalled: 0, SetHash: genesisSetHash, Bump: trackerBump}
	if err := e.Store.Create(state.Account{Address: trackerAddr, Bump: trackerBump, Owner: e.ProgramID, Data: tracker.Encode()}); err != nil {
		return state.Err(state.CodeAccountNotInitialized, err)
	}
	return nil
}

func (e *Engine) loadConfig() (state.Config, state.Address, error) {
	addr, _ := state.ConfigPDA(e.ProgramID)
	acc, ok := e.Store.Get(addr)
	if !ok {
		return state.Config{}, addr, state.Errf(state.CodeAccountNotInitialized, "root config not initialized")
	}
	cfg, ok := state.DecodeConfig(acc.Data)
	if !ok {
		return state.Config{}, addr, state.Errf(state.CodeAccountNotInitialized, "root config account corrupt")
	}
	return cfg, addr, nil
}

// InitializePayloadVerificationSession allocates the Verification Session
// account a relayer populates via repeated VerifySignature calls (spec §3).
// The signing set must still be within the Root Config's retention window -
// a set retired more than retention_epochs ago can no longer start new
// sessions (spec §8 scenario S4).
func (e *Engine) InitializePayloadVerificationSession(payloadRoot, signingSetHash [32]byte, quorum [16]byte, setSize int) error {
	cfg, _, err := e.loadConfig()
	if err != nil {
		return err
	}
	trackerAddr, _ := state.VerifierSetTrackerPDA(e.ProgramID, signingSetHash)
	trackerAcc, ok := e.Store.Get(trackerAddr)
	if !ok {
		return state.Errf(state.CodeInvalidVerifierSet, "unknown signing verifier set")
	}
	tracker, ok := state.DecodeVerifierSetTracker(trackerAcc.Data)
	if !ok {
		return state.Errf(state.CodeInvalidVerifierSet, "verifier set tracker account corrupt")
	}
	if !tracker.ValidForVerification(cfg.Epoch, cfg.RetentionEpochs) {
		return state.Errf(state.CodeInvalidVerifierSet, "verifier-set-too-old")
	}

	addr, bump := state.VerificationSessionPDA(e.ProgramID, payloadRoot, signingSetHash)
	session := state.NewSession(signingSetHash, quorum, setSize, bump)
	if err := e.Store.Create(state.Account{Address: addr, Bump: bump, Owner: e.ProgramID, Data: session.Encode()}); err != nil {
		return state.Err(state.CodeAccountNotInitialized, err)
	}
	return nil
}

func (e *Engine) loadSession(payloadRoot, signingSetHash [32]byte) (state.Session, state.Address, error) {
	addr, _ := state.VerificationSessionPDA(e.ProgramID, payloadRoot, signingSetHash)
	acc, ok := e.Store.Get(addr)
	if !ok {
		return state.Session{}, addr, state.Errf(state.CodeAccountNotInitialized, "verification session not initialized")
	}
	session, ok := state.DecodeSession(acc.Data)
	if !ok {
		return state.Session{}, addr, state.Errf(state.CodeAccountNotInitialized, "verification session account corrupt")
	}
	return session, addr, nil
}

// VerifySignature accumulates one signer's proof into the session for
// (payloadRoot, signingSetHash), per spec §4.3.
func (e *Engine) VerifySignature(payloadRoot, signingSetHash [32]byte, proof verify.SignerProof) error {
	session, addr, err := e.loadSession(payloadRoot, signingSetHash)
	if err != nil {
		return err
	}
	if err := e.Verifier.VerifySignature(&session, payloadRoot, signingSetHash, proof); err != nil {
		return err
	}
	return e.Store.Update(addr, session.Encode())
}

// ApproveMessage creates the Incoming Message account for one message in a
// terminal batch (spec §4.4). signingSetHash identifies which session the
// caller claims terminality from.
func (e *Engine) ApproveMessage(signingSetHash [32]byte, payloadRoot [32]byte, msg encoding.Message, batchSize int, proof *encoding.Proof) (events.MessageApproval, error) {
	session, _, err := e.loadSession(payloadRoot, signingSetHash)
	if err != nil {
		return events.MessageApproval{}, err
	}
	if !session.Terminal {
		return events.MessageApproval{}, state.Errf(state.CodeQuorumNotReached, "session has not reached quorum")
	}

	// The message's own leaf hash, at the position the proof claims,
	// recombined with the inclusion proof, must equal the terminal
	// session's payload root.
	leafHash := encoding.MessageLeaf(msg, proof.LeafIndex, batchSize, e.Hasher)
	ok, err := encoding.VerifyProof(leafHash, proof, payloadRoot, e.Hasher)
	if err != nil {
		return events.MessageApproval{}, state.Err(state.CodeInvalidMerkleProof, err)
	}
	if !ok {
		return events.MessageApproval{}, state.Errf(state.CodeInvalidMerkleProof, "message does not combine to the terminal session's payload root")
	}

	commandID := encoding.CommandID(msg.SourceChain, msg.CrossChainID, e.Hasher)
	canonicalHash := encoding.CanonicalMessageHash(msg, e.Hasher)

	addr, bump := state.IncomingMessagePDA(e.ProgramID, commandID)
	// The destination program's identity is derived from its on-chain
	// address string - the signing PDA itself is virtual and recomputed
	// at ValidateMessage time from the real destination program address.
	destinationProgram := e.Hasher.Hash([]byte(msg.DestinationAddress))
	_, signingBump := state.SigningPDA(state.Address(destinationProgram), commandID)

	incoming := state.IncomingMessage{
		Bump:           bump,
		SigningPDABump: signingBump,
		Status:         state.StatusApproved,
		MessageHash:    canonicalHash,
		PayloadHash:    msg.PayloadHash,
	}
	if err := e.Store.Create(state.Account{Address: addr, Bump: bump, Owner: e.ProgramID, Data: incoming.Encode()}); err != nil {
		return events.MessageApproval{}, state.Err(state.CodeAccountNotInitialized, err)
	}

	return events.MessageApproval{
		CommandID:          commandID,
		DestinationAddress: msg.DestinationAddress,
		PayloadHash:        msg.PayloadHash,
		SourceChain:        msg.SourceChain,
		CrossChainID:       msg.CrossChainID,
		SourceAddress:      msg.SourceAddress,
		DestinationChain:   msg.DestinationChain,
	}, nil
}

// ValidateMessage is invoked by the destination program after consuming a
// committed payload (spec §4.4). callerIsSigner reports whether the
// transaction's signing-PDA check succeeded at the runtime level - this
// module only re-derives the expected signing PDA (from the same
// destination-address derivation ApproveMessage used) and checks the
// caller supplied matches it, since this package does not model actual
// signature verification of a Solana transaction itself.
func (e *Engine) ValidateMessage(caller state.Address, callerIsSigner bool, msg encoding.Message) (events.MessageApproval, error) {
	commandID := encoding.CommandID(msg.SourceChain, msg.CrossChainID, e.Hasher)
	addr, _ := state.IncomingMessagePDA(e.ProgramID, commandID)

	acc, ok := e.Store.Get(addr)
	if !ok {
		return events.MessageApproval{}, state.Errf(state.CodeAccountNotInitialized, "incoming message not found")
	}
	incoming, ok := state.DecodeIncomingMessage(acc.Data)
	if !ok {
		return events.MessageApproval{}, state.Errf(state.CodeAccountNotInitialized, "incoming message account corrupt")
	}

	destinationProgram := state.Address(e.Hasher.Hash([]byte(msg.DestinationAddress)))
	expectedSigningPDA, _ := state.SigningPDA(destinationProgram, commandID)
	if caller != expectedSigningPDA {
		return events.MessageApproval{}, state.Errf(state.CodeInvalidSigningPDA, "caller is not the expected signing pda")
	}
	if !callerIsSigner {
		return events.MessageApproval{}, state.Errf(state.CodeMissingSigner, "signing pda did not sign the transaction")
	}

	if incoming.MessageHash != encoding.CanonicalMessageHash(msg, e.Hasher) {
		return events.MessageApproval{}, state.Errf(state.CodeMessageTampered, "submitted message does not match the approved record")
	}

	if incoming.Status != state.StatusApproved {
		return events.MessageApproval{}, state.Errf(state.CodeMessageNotApproved, "message is not in Approved status")
	}

	incoming.Status = state.StatusExecuted
	if err := e.Store.Update(addr, incoming.Encode()); err != nil {
		return events.MessageApproval{}, state.Err(state.CodeAccountNotInitialized, err)
	}

	return events.MessageApproval{
		CommandID:          commandID,
		DestinationAddress: msg.DestinationAddress,
		PayloadHash:        msg.PayloadHash,
		SourceChain:        msg.SourceChain,
		CrossChainID:       msg.CrossChainID,
		SourceAddress:      msg.SourceAddress,
		DestinationChain:   msg.DestinationChain,
	}, nil
}

// RotateSigners installs a new verifier set from a terminal rotation
// session (spec §4.5).
func (e *Engine) RotateSigners(currentSigningSetHash [32]byte, newSetRoot [32]byte, callerIsOperator bool) (events.SignersRotated, error) {
	cfg, cfgAddr, err := e.loadConfig()
	if err != nil {
		return events.SignersRotated{}, err
	}

	payloadHash := encoding.NewVerifierSetPayloadHash(newSetRoot, currentSigningSetHash, e.Hasher)
	session, _, err := e.loadSession(payloadHash, currentSigningSetHash)
	if err != nil {
		return events.SignersRotated{}, err
	}
	if !session.Terminal {
		return events.SignersRotated{}, state.Errf(state.CodeQuorumNotReached, "rotation session has not reached quorum")
	}

	now := e.now()
	if !cfg.CanRotate(now, callerIsOperator) {
		return events.SignersRotated{}, state.Errf(state.CodeRotationCooldownNotElapsed, "rotation attempted before min_delay elapsed")
	}

	trackerAddr, trackerBump := state.VerifierSetTrackerPDA(e.ProgramID, newSetRoot)
	newEpoch := cfg.Epoch + 1
	tracker := state.VerifierSetTracker{EpochInstalled: newEpoch, SetHash: newSetRoot, Bump: trackerBump}
	if err := e.Store.Create(state.Account{Address: trackerAddr, Bump: trackerBump, Owner: e.ProgramID, Data: tracker.Encode()}); err != nil {
		return events.SignersRotated{}, state.Err(state.CodeAccountNotInitialized, err)
	}

	cfg.Epoch = newEpoch
	cfg.LastRotation = now
	if err := e.Store.Update(cfgAddr, cfg.Encode()); err != nil {
		return events.SignersRotated{}, state.Err(state.CodeAccountNotInitialized, err)
	}

	return events.SignersRotated{Epoch: events.EpochToLE256(newEpoch), NewSetHash: newSetRoot}, nil
}

// TransferOperatorship updates the Root Config's operator key (spec §4.2's
// list of instructions; mutation path mirrors RotateSigners').
func (e *Engine) TransferOperatorship(callerIsOperator bool, newOperator state.Address) (events.OperatorshipTransferred, error) {
	if !callerIsOperator {
		return events.OperatorshipTransferred{}, state.Errf(state.CodeMissingSigner, "only the current operator may transfer operatorship")
	}
	cfg, addr, err := e.loadConfig()
	if err != nil {
		return events.OperatorshipTransferred{}, err
	}
	cfg.Operator = newOperator
	if err := e.Store.Update(addr, cfg.Encode()); err != nil {
		return events.OperatorshipTransferred{}, state.Err(state.CodeAccountNotInitialized, err)
	}
	return events.OperatorshipTransferred{NewOperator: newOperator}, nil
}

// CallContract emits the canonical outbound-call event (spec §4.6). It is
// a pure encoding operation - the Gateway does not persist anything for
// an outbound call, since the event log itself is the durable record the
// Sentinel relayer tails.
func (e *Engine) CallContract(sender state.Address, destinationChain, destinationAddress string, payload []byte) events.CallContract {
	return events.CallContract{
		Sender:             sender,
		DestinationChain:   destinationChain,
		DestinationAddress: destinationAddress,
		PayloadHash:        e.Hasher.Hash(payload),
		Payload:            payload,
	}
}

// CallContractOffchainData emits the outbound-call variant that omits the
// payload itself, for payloads too large to fit one transaction log.
func (e *Engine) CallContractOffchainData(sender state.Address, destinationChain, destinationAddress string, payloadHash [32]byte) events.CallContractOffchainData {
	return events.CallContractOffchainData{
		Sender:             sender,
		DestinationChain:   destinationChain,
		DestinationAddress: destinationAddress,
		PayloadHash:        payloadHash,
	}
}
