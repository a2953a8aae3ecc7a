package state

import "encoding/binary"

// VerifierSetTracker is the one-per-historical-set account recording when a
// verifier set was installed, spec §3.
type VerifierSetTracker struct {
	EpochInstalled uint64
	SetHash        [32]byte
	Bump           uint8
}

// ValidForVerification reports whether this tracker's set may still be used
// to verify signatures, per spec: "current_epoch - installed_epoch < retention".
func (t VerifierSetTracker) ValidForVerification(currentEpoch, retention uint64) bool {
	if currentEpoch < t.EpochInstalled {
		return false
	}
	return currentEpoch-t.EpochInstalled < retention
}

func (t VerifierSetTracker) Encode() []byte {
	buf := make([]byte, 0, 8+32+1)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], t.EpochInstalled)
	buf = append(buf, tmp[:]...)
	buf = append(buf, t.SetHash[:]...)
	buf = append(buf, t.Bump)
	return buf
}

func DecodeVerifierSetTracker(data []byte) (VerifierSetTracker, bool) {
	const want = 8 + 32 + 1
	if len(data) != want {
		return VerifierSetTracker{}, false
	}
	var t VerifierSetTracker
	t.EpochInstalled = binary.BigEndian.Uint64(data[0:8])
	copy(t.SetHash[:], data[8:40])
	t.Bump = data[40]
	return t, true
}
