package instructions

import (
	"github.com/axelar-solana/gmp-gateway/internal/gateway/state"
)

// InitializeMessagePayload allocates a staging account reserving `size`
// bytes for a chunked upload (spec §4.7). Multiple uploaders may stage the
// same logical payload concurrently since each gets its own PDA keyed by
// uploader identity.
func (e *Engine) InitializeMessagePayload(incomingMessagePDA, uploader state.Address, size uint32) error {
	addr, bump := state.MessagePayloadPDA(e.ProgramID, incomingMessagePDA, uploader)
	payload := state.MessagePayload{Bump: bump, Raw: make([]byte, size)}
	if err := e.Store.Create(state.Account{Address: addr, Bump: bump, Owner: uploader, Data: payload.Encode()}); err != nil {
		return state.Err(state.CodeAccountNotInitialized, err)
	}
	return nil
}

func (e *Engine) loadPayload(addr state.Address) (state.MessagePayload, error) {
	acc, ok := e.Store.Get(addr)
	if !ok {
		return state.MessagePayload{}, state.Errf(state.CodeAccountNotInitialized, "message payload account not found")
	}
	payload, ok := state.DecodeMessagePayload(acc.Data)
	if !ok {
		return state.MessagePayload{}, state.Errf(state.CodeAccountNotInitialized, "message payload account corrupt")
	}
	return payload, nil
}

// WriteMessagePayload writes bytes into the pre-allocated staging account
// at offset, refusing writes past the reserved size or after commit (spec
// §4.7).
func (e *Engine) WriteMessagePayload(incomingMessagePDA, uploader state.Address, offset uint32, data []byte) error {
	addr, _ := state.MessagePayloadPDA(e.ProgramID, incomingMessagePDA, uploader)
	payload, err := e.loadPayload(addr)
	if err != nil {
		return err
	}
	if payload.Committed() {
		return state.Errf(state.CodePayloadAlreadyCommitted, "cannot write to a committed payload")
	}
	end := int(offset) + len(data)
	if int(offset) > len(payload.Raw) || end > len(payload.Raw) {
		return state.Errf(state.CodePayloadWriteOutOfBounds, "write [%d, %d) exceeds reserved size %d", offset, end, len(payload.Raw))
	}
	copy(payload.Raw[offset:end], data)
	return e.Store.Update(addr, payload.Encode())
}

// CommitMessagePayload hashes the staged bytes and accepts the commit only
// if the hash matches the Incoming Message's expected payload hash (spec
// §4.7, tested by S6).
func (e *Engine) CommitMessagePayload(incomingMessagePDA, uploader state.Address, expectedPayloadHash [32]byte) error {
	addr, _ := state.MessagePayloadPDA(e.ProgramID, incomingMessagePDA, uploader)
	payload, err := e.loadPayload(addr)
	if err != nil {
		return err
	}
	if payload.Committed() {
		return state.Errf(state.CodePayloadAlreadyCommitted, "payload already committed")
	}
	computed := e.Hasher.Hash(payload.Raw)
	if computed != expectedPayloadHash {
		return state.Errf(state.CodeMessageTampered, "committed payload hash does not match the incoming message's expected hash")
	}
	payload.CommittedHash = computed
	return e.Store.Update(addr, payload.Encode())
}

// CloseMessagePayload destroys the staging account and (conceptually)
// refunds rent to its owning uploader. Ownership is re-derived from the
// account itself rather than trusted from the caller (spec §9 Design
// Notes: "never assume the signer is the owner without re-deriving").
func (e *Engine) CloseMessagePayload(incomingMessagePDA, uploader state.Address) error {
	addr, _ := state.MessagePayloadPDA(e.ProgramID, incomingMessagePDA, uploader)
	acc, ok := e.Store.Get(addr)
	if !ok {
		return state.Errf(state.CodeAccountNotInitialized, "message payload account not found")
	}
	if acc.Owner != uploader {
		return state.Errf(state.CodeWrongOwner, "caller is not the uploader that owns this payload account")
	}
	if err := e.Store.Close(addr); err != nil {
		return state.Err(state.CodeAccountNotInitialized, err)
	}
	return nil
}
