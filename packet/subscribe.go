package packet

import "encoding/binary"

// Subscribe requests delivery of messages on a topic name, a wildcard
// filter, a predefined topic id, or a two-character short name, per
// Flags.TopicIDType. Spec §4.3.
type Subscribe struct {
	Flags Flags
	MsgID uint16
	// TopicName holds the filter/name text for TopicIDNormal and
	// TopicIDShort. TopicID holds the numeric id for TopicIDPredefined.
	TopicName string
	TopicID   uint16
}

func (Subscribe) Kind() Kind { return SUBSCRIBE }

func (m *Subscribe) MarshalPayload() ([]byte, error) {
	out := make([]byte, 0, 3+len(m.TopicName))
	out = append(out, m.Flags.Pack())
	out = binary.BigEndian.AppendUint16(out, m.MsgID)
	if m.Flags.TopicIDType == TopicIDPredefined {
		out = binary.BigEndian.AppendUint16(out, m.TopicID)
	} else {
		out = append(out, m.TopicName...)
	}
	return out, nil
}

func (m *Subscribe) UnmarshalPayload(b []byte) error {
	if len(b) < 3 {
		return wrapf(ErrTruncatedField, "SUBSCRIBE needs >= 3 bytes, got %d", len(b))
	}
	m.Flags = UnpackFlags(b[0])
	m.MsgID = binary.BigEndian.Uint16(b[1:3])
	rest := b[3:]
	if m.Flags.TopicIDType == TopicIDPredefined {
		if len(rest) != 2 {
			return wrapf(ErrTruncatedField, "SUBSCRIBE predefined topic id needs 2 bytes, got %d", len(rest))
		}
		m.TopicID = binary.BigEndian.Uint16(rest)
		return nil
	}
	m.TopicName = string(rest)
	return nil
}

// Suback echoes the granted QoS and resolved topic id (0 for a wildcard
// filter, which has no single id). Spec §4.3.
type Suback struct {
	Flags   Flags
	TopicID uint16
	MsgID   uint16
	Code    ReturnCode
}

func (Suback) Kind() Kind { return SUBACK }

func (m *Suback) MarshalPayload() ([]byte, error) {
	out := make([]byte, 0, 6)
	out = append(out, m.Flags.Pack())
	out = binary.BigEndian.AppendUint16(out, m.TopicID)
	out = binary.BigEndian.AppendUint16(out, m.MsgID)
	out = append(out, byte(m.Code))
	return out, nil
}

func (m *Suback) UnmarshalPayload(b []byte) error {
	if len(b) != 6 {
		return wrapf(ErrTruncatedField, "SUBACK needs 6 bytes, got %d", len(b))
	}
	m.Flags = UnpackFlags(b[0])
	m.TopicID = binary.BigEndian.Uint16(b[1:3])
	m.MsgID = binary.BigEndian.Uint16(b[3:5])
	m.Code = ReturnCode(b[5])
	return nil
}

// Unsubscribe is structurally identical to Subscribe minus the granted-QoS
// round trip; UNSUBACK carries no status.
type Unsubscribe struct {
	Flags     Flags
	MsgID     uint16
	TopicName string
	TopicID   uint16
}

func (Unsubscribe) Kind() Kind { return UNSUBSCRIBE }

func (m *Unsubscribe) MarshalPayload() ([]byte, error) {
	out := make([]byte, 0, 3+len(m.TopicName))
	out = append(out, m.Flags.Pack())
	out = binary.BigEndian.AppendUint16(out, m.MsgID)
	if m.Flags.TopicIDType == TopicIDPredefined {
		out = binary.BigEndian.AppendUint16(out, m.TopicID)
	} else {
		out = append(out, m.TopicName...)
	}
	return out, nil
}

func (m *Unsubscribe) UnmarshalPayload(b []byte) error {
	if len(b) < 3 {
		return wrapf(ErrTruncatedField, "UNSUBSCRIBE needs >= 3 bytes, got %d", len(b))
	}
	m.Flags = UnpackFlags(b[0])
	m.MsgID = binary.BigEndian.Uint16(b[1:3])
	rest := b[3:]
	if m.Flags.TopicIDType == TopicIDPredefined {
		if len(rest) != 2 {
			return wrapf(ErrTruncatedField, "UNSUBSCRIBE predefined topic id needs 2 bytes, got %d", len(rest))
		}
		m.TopicID = binary.BigEndian.Uint16(rest)
		return nil
	}
	m.TopicName = string(rest)
	return nil
}

type Unsuback struct{ MsgID uint16 }

func (Unsuback) Kind() Kind { return UNSUBACK }

func (m *Unsuback) MarshalPayload() ([]byte, error) {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, m.MsgID)
	return out, nil
}

func (m *Unsuback) UnmarshalPayload(b []byte) error {
	if len(b) != 2 {
		return wrapf(ErrTruncatedField, "UNSUBACK needs 2 bytes, got %d", len(b))
	}
	m.MsgID = binary.BigEndian.Uint16(b)
	return nil
}
