package state

import "encoding/binary"

// Session is the Verification Session account: it accumulates verified
// signer weight for one (payload_root, signing_set_hash) pair until
// quorum, spec §3/§4.3.
type Session struct {
	SigningSetHash    [32]byte
	Quorum            [16]byte
	AccumulatedWeight [16]byte
	VerifiedBits      []byte // one bit per signer position, sized to the set
	Terminal          bool
	Bump              uint8
}

// NewSession creates a fresh, non-terminal session for a signing set of the
// given size.
func NewSession(signingSetHash [32]byte, quorum [16]byte, setSize int, bump uint8) Session {
	return Session{
		SigningSetHash: signingSetHash,
		Quorum:         quorum,
		VerifiedBits:   make([]byte, (setSize+7)/8),
		Bump:           bump,
	}
}

// HasVerified reports whether the signer at `position` has already been
// counted - used to make duplicate submissions idempotent no-ops (spec §4.3).
func (s Session) HasVerified(position int) bool {
	byteIdx := position / 8
	if byteIdx >= len(s.VerifiedBits) {
		return false
	}
	return s.VerifiedBits[byteIdx]&(1<<uint(position%8)) != 0
}

// MarkVerified sets the bit for `position`. Caller must have already
// checked HasVerified to avoid double-counting weight.
func (s *Session) MarkVerified(position int) {
	byteIdx := position / 8
	s.VerifiedBits[byteIdx] |= 1 << uint(position%8)
}

func (s Session) Encode() []byte {
	buf := make([]byte, 0, 32+16+16+4+len(s.VerifiedBits)+1+1)
	buf = append(buf, s.SigningSetHash[:]...)
	buf = append(buf, s.Quorum[:]...)
	buf = append(buf, s.AccumulatedWeight[:]...)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s.VerifiedBits)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, s.VerifiedBits...)

	if s.Terminal {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, s.Bump)
	return buf
}

func DecodeSession(data []byte) (Session, bool) {
	if len(data) < 32+16+16+4 {
		return Session{}, false
	}
	var s Session
	copy(s.SigningSetHash[:], data[0:32])
	copy(s.Quorum[:], data[32:48])
	copy(s.AccumulatedWeight[:], data[48:64])

	bitsLen := binary.BigEndian.Uint32(data[64:68])
	off := 68
	if len(data) < off+int(bitsLen)+2 {
		return Session{}, false
	}
	s.VerifiedBits = append([]byte(nil), data[off:off+int(bitsLen)]...)
	off += int(bitsLen)

	s.Terminal = data[off] == 1
	off++
	s.Bump = data[off]
	return s, true
}
