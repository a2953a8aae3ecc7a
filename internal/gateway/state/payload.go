package state

import "encoding/binary"

// MessagePayload is the ephemeral staging account for large inbound
// payloads, spec §4.7. Multiple uploaders may stage the same logical
// payload concurrently - each gets its own PDA keyed by uploader identity.
type MessagePayload struct {
	Bump          uint8
	CommittedHash [32]byte // zero until commit_message_payload succeeds
	Raw           []byte
}

// Committed reports whether commit_message_payload has run for this account.
func (p MessagePayload) Committed() bool {
	var zero [32]byte
	return p.CommittedHash != zero
}

func (p MessagePayload) Encode() []byte {
	buf := make([]byte, 0, 1+32+4+len(p.Raw))
	buf = append(buf, p.Bump)
	buf = append(buf, p.CommittedHash[:]...)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(p.Raw)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, p.Raw...)
	return buf
}

func DecodeMessagePayload(data []byte) (MessagePayload, bool) {
	if len(data) < 1+32+4 {
		return MessagePayload{}, false
	}
	var p MessagePayload
	p.Bump = data[0]
	copy(p.CommittedHash[:], data[1:33])
	rawLen := binary.BigEndian.Uint32(data[33:37])
	if len(data) != 37+int(rawLen) {
		return MessagePayload{}, false
	}
	p.Raw = append([]byte(nil), data[37:37+int(rawLen)]...)
	return p, true
}
