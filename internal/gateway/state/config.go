package state

import (
	"encoding/binary"
	"time"
)

// Config is the singleton Root Config account (spec §3). It is created
// once at initialize and thereafter mutated only by rotate_signers and
// transfer_operatorship.
type Config struct {
	Epoch              uint64 // 256-bit counter in the spec; a uint64 counter is sufficient headroom
	RetentionEpochs     uint64
	MinRotationDelay    time.Duration
	LastRotation        time.Time
	Operator            Address
	DomainSeparator     [32]byte
	Bump                uint8
}

// CanRotate reports whether a non-operator rotation is permitted at `now`,
// enforcing spec §3's invariant `now - last_rotation >= min_delay`.
func (c Config) CanRotate(now time.Time, isOperator bool) bool {
	if isOperator {
		return true
	}
	return now.Sub(c.LastRotation) >= c.MinRotationDelay
}

// Encode serializes Config to its account byte layout.
func (c Config) Encode() []byte {
	buf := make([]byte, 0, 8+8+8+8+32+32+1)
	var tmp [8]byte

	binary.BigEndian.PutUint64(tmp[:], c.Epoch)
	buf = append(buf, tmp[:]...)

	binary.BigEndian.PutUint64(tmp[:], c.RetentionEpochs)
	buf = append(buf, tmp[:]...)

	binary.BigEndian.PutUint64(tmp[:], uint64(c.MinRotationDelay))
	buf = append(buf, tmp[:]...)

	binary.BigEndian.PutUint64(tmp[:], uint64(c.LastRotation.Unix()))
	buf = append(buf, tmp[:]...)

	buf = append(buf, c.Operator[:]...)
	buf = append(buf, c.DomainSeparator[:]...)
	buf = append(buf, c.Bump)
	return buf
}

// DecodeConfig parses a Config from its account byte layout.
func DecodeConfig(data []byte) (Config, bool) {
	const want = 8 + 8 + 8 + 8 + 32 + 32 + 1
	if len(data) != want {
		return Config{}, false
	}
	var c Config
	c.Epoch = binary.BigEndian.Uint64(data[0:8])
	c.RetentionEpochs = binary.BigEndian.Uint64(data[8:16])
	c.MinRotationDelay = time.Duration(binary.BigEndian.Uint64(data[16:24]))
	c.LastRotation = time.Unix(int64(binary.BigEndian.Uint64(data[24:32])), 0)
	copy(c.Operator[:], data[32:64])
	copy(c.DomainSeparator[:], data[64:96])
	c.Bump = data[96]
	return c, true
}
