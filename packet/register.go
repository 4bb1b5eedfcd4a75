package packet

import "encoding/binary"

// Register asks the broker to intern TopicName and bind it to a topic id,
// or (when sent broker -> client) informs the client of a binding it
// didn't request. Spec §4.3.
type Register struct {
	TopicID   uint16 // 0 when client-originated (broker assigns)
	MsgID     uint16
	TopicName string
}

func (Register) Kind() Kind { return REGISTER }

func (m *Register) MarshalPayload() ([]byte, error) {
	out := make([]byte, 0, 4+len(m.TopicName))
	out = binary.BigEndian.AppendUint16(out, m.TopicID)
	out = binary.BigEndian.AppendUint16(out, m.MsgID)
	out = append(out, m.TopicName...)
	return out, nil
}

func (m *Register) UnmarshalPayload(b []byte) error {
	if len(b) < 4 {
		return wrapf(ErrTruncatedField, "REGISTER needs >= 4 bytes, got %d", len(b))
	}
	m.TopicID = binary.BigEndian.Uint16(b[0:2])
	m.MsgID = binary.BigEndian.Uint16(b[2:4])
	m.TopicName = string(b[4:])
	return nil
}

// Regack acknowledges a REGISTER with the assigned (or confirmed) topic id.
type Regack struct {
	TopicID uint16
	MsgID   uint16
	Code    ReturnCode
}

func (Regack) Kind() Kind { return REGACK }

func (m *Regack) MarshalPayload() ([]byte, error) {
	out := make([]byte, 0, 5)
	out = binary.BigEndian.AppendUint16(out, m.TopicID)
	out = binary.BigEndian.AppendUint16(out, m.MsgID)
	out = append(out, byte(m.Code))
	return out, nil
}

func (m *Regack) UnmarshalPayload(b []byte) error {
	if len(b) != 5 {
		return wrapf(ErrTruncatedField, "REGACK needs 5 bytes, got %d", len(b))
	}
	m.TopicID = binary.BigEndian.Uint16(b[0:2])
	m.MsgID = binary.BigEndian.Uint16(b[2:4])
	m.Code = ReturnCode(b[4])
	return nil
}
