package packet

import "encoding/binary"

// Publish carries an application message. TopicID is either a registered
// 16-bit id, a predefined id, or (TopicIDType == TopicIDShort) the two
// ASCII bytes of a short topic name packed into the same field. Spec §4.1,
// §4.4.
type Publish struct {
	Flags   Flags
	TopicID uint16
	MsgID   uint16
	Data    []byte
}

func (Publish) Kind() Kind { return PUBLISH }

func (m *Publish) MarshalPayload() ([]byte, error) {
	out := make([]byte, 0, 5+len(m.Data))
	out = append(out, m.Flags.Pack())
	out = binary.BigEndian.AppendUint16(out, m.TopicID)
	out = binary.BigEndian.AppendUint16(out, m.MsgID)
	out = append(out, m.Data...)
	return out, nil
}

func (m *Publish) UnmarshalPayload(b []byte) error {
	if len(b) < 5 {
		return wrapf(ErrTruncatedField, "PUBLISH needs >= 5 bytes, got %d", len(b))
	}
	m.Flags = UnpackFlags(b[0])
	m.TopicID = binary.BigEndian.Uint16(b[1:3])
	m.MsgID = binary.BigEndian.Uint16(b[3:5])
	m.Data = cloneBytes(b[5:])
	return nil
}

// Puback is the QoS 1/2 receipt acknowledgement for a PUBLISH.
type Puback struct {
	TopicID uint16
	MsgID   uint16
	Code    ReturnCode
}

func (Puback) Kind() Kind { return PUBACK }

func (m *Puback) MarshalPayload() ([]byte, error) {
	out := make([]byte, 0, 5)
	out = binary.BigEndian.AppendUint16(out, m.TopicID)
	out = binary.BigEndian.AppendUint16(out, m.MsgID)
	out = append(out, byte(m.Code))
	return out, nil
}

func (m *Puback) UnmarshalPayload(b []byte) error {
	if len(b) != 5 {
		return wrapf(ErrTruncatedField, "PUBACK needs 5 bytes, got %d", len(b))
	}
	m.TopicID = binary.BigEndian.Uint16(b[0:2])
	m.MsgID = binary.BigEndian.Uint16(b[2:4])
	m.Code = ReturnCode(b[4])
	return nil
}

// msgIDOnly is the shared grammar of PUBREC, PUBREL, and PUBCOMP: a single
// two-byte message id and nothing else.
type msgIDOnly struct {
	MsgID uint16
}

func (m *msgIDOnly) marshal() ([]byte, error) {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, m.MsgID)
	return out, nil
}

func (m *msgIDOnly) unmarshal(b []byte) error {
	if len(b) != 2 {
		return wrapf(ErrTruncatedField, "expected 2 bytes, got %d", len(b))
	}
	m.MsgID = binary.BigEndian.Uint16(b)
	return nil
}

// Pubrec is step 1 of the QoS 2 handshake (broker -> publisher, or
// subscriber -> broker on the delivery leg).
type Pubrec struct{ msgIDOnly }

func (Pubrec) Kind() Kind                         { return PUBREC }
func (m *Pubrec) MarshalPayload() ([]byte, error) { return m.marshal() }
func (m *Pubrec) UnmarshalPayload(b []byte) error { return m.unmarshal(b) }

// Pubrel is step 2 of the QoS 2 handshake.
type Pubrel struct{ msgIDOnly }

func (Pubrel) Kind() Kind                         { return PUBREL }
func (m *Pubrel) MarshalPayload() ([]byte, error) { return m.marshal() }
func (m *Pubrel) UnmarshalPayload(b []byte) error { return m.unmarshal(b) }

// Pubcomp is step 3 (final) of the QoS 2 handshake.
type Pubcomp struct{ msgIDOnly }

func (Pubcomp) Kind() Kind                         { return PUBCOMP }
func (m *Pubcomp) MarshalPayload() ([]byte, error) { return m.marshal() }
func (m *Pubcomp) UnmarshalPayload(b []byte) error { return m.unmarshal(b) }
