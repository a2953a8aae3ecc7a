package state

// Status is the Incoming Message lifecycle per spec §4.4:
//
//	(create account)        (validate)
//	Approved ───────────▶ Executed   (terminal)
type Status uint8

const (
	StatusApproved Status = iota // zero value = Approved, per spec §3
	StatusExecuted
)

// IncomingMessage is the one-per-message account created by approve_message
// and transitioned to Executed by validate_message.
type IncomingMessage struct {
	Bump               uint8
	SigningPDABump     uint8
	Status             Status
	MessageHash        [32]byte
	PayloadHash        [32]byte
}

func (m IncomingMessage) Encode() []byte {
	buf := make([]byte, 0, 1+1+1+32+32)
	buf = append(buf, m.Bump, m.SigningPDABump, byte(m.Status))
	buf = append(buf, m.MessageHash[:]...)
	buf = append(buf, m.PayloadHash[:]...)
	return buf
}

func DecodeIncomingMessage(data []byte) (IncomingMessage, bool) {
	const want = 1 + 1 + 1 + 32 + 32
	if len(data) != want {
		return IncomingMessage{}, false
	}
	var m IncomingMessage
	m.Bump = data[0]
	m.SigningPDABump = data[1]
	m.Status = Status(data[2])
	copy(m.MessageHash[:], data[3:35])
	copy(m.PayloadHash[:], data[35:67])
	return m, true
}
