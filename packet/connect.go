package packet

import (
	"bytes"
	"encoding/binary"
)

// ProtocolID is the single legal value of the CONNECT protocol-id field.
const ProtocolID byte = 0x01

// Connect is the CONNECT message: a client announcing itself and
// (optionally) offering to register a Will. Grammar: length, type, flags,
// protocol id, duration, client id. Spec §4.2.
type Connect struct {
	Flags    Flags
	Duration uint16 // keep-alive, seconds
	ClientID []byte
}

func (Connect) Kind() Kind { return CONNECT }

func (m *Connect) MarshalPayload() ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.WriteByte(m.Flags.Pack())
	buf.WriteByte(ProtocolID)
	writeU16(buf, m.Duration)
	buf.Write(m.ClientID)
	return cloneBytes(buf.Bytes()), nil
}

func (m *Connect) UnmarshalPayload(b []byte) error {
	if len(b) < 4 {
		return wrapf(ErrTruncatedField, "CONNECT needs >= 4 bytes, got %d", len(b))
	}
	m.Flags = UnpackFlags(b[0])
	// b[1] is the protocol id; MQTT-SN 1.2 defines only 0x01, but an
	// unrecognised value is not itself a framing error.
	m.Duration = binary.BigEndian.Uint16(b[2:4])
	m.ClientID = cloneBytes(b[4:])
	return nil
}

// Connack is the broker's CONNECT/WILLMSG reply. Spec §4.2 state table.
type Connack struct {
	Code ReturnCode
}

func (Connack) Kind() Kind { return CONNACK }

func (m *Connack) MarshalPayload() ([]byte, error) {
	return []byte{byte(m.Code)}, nil
}

func (m *Connack) UnmarshalPayload(b []byte) error {
	if len(b) < 1 {
		return wrapf(ErrTruncatedField, "CONNACK needs 1 byte")
	}
	m.Code = ReturnCode(b[0])
	return nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	buf.Write(tmp[:])
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
