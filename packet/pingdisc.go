package packet

// Pingreq carries an optional client id (only meaningful when an ASLEEP
// client uses it to confirm identity to a gateway serving several
// clients); the broker core only needs the sender's address, so ClientID
// is preserved but not required. Spec §4.2 state table.
type Pingreq struct {
	ClientID []byte
}

func (Pingreq) Kind() Kind { return PINGREQ }

func (m *Pingreq) MarshalPayload() ([]byte, error) { return cloneBytes(m.ClientID), nil }
func (m *Pingreq) UnmarshalPayload(b []byte) error {
	m.ClientID = cloneBytes(b)
	return nil
}

// Pingresp carries no payload.
type Pingresp struct{}

func (Pingresp) Kind() Kind                       { return PINGRESP }
func (*Pingresp) MarshalPayload() ([]byte, error) { return nil, nil }
func (*Pingresp) UnmarshalPayload([]byte) error   { return nil }

// Disconnect optionally carries a sleep duration: present, it asks the
// broker to move the connection to ASLEEP instead of tearing it down.
// Spec §4.2.
type Disconnect struct {
	HasDuration bool
	Duration    uint16
}

func (Disconnect) Kind() Kind { return DISCONNECT }

func (m *Disconnect) MarshalPayload() ([]byte, error) {
	if !m.HasDuration {
		return nil, nil
	}
	out := make([]byte, 2)
	out[0] = byte(m.Duration >> 8)
	out[1] = byte(m.Duration)
	return out, nil
}

func (m *Disconnect) UnmarshalPayload(b []byte) error {
	switch len(b) {
	case 0:
		m.HasDuration = false
	case 2:
		m.HasDuration = true
		m.Duration = uint16(b[0])<<8 | uint16(b[1])
	default:
		return wrapf(ErrTruncatedField, "DISCONNECT duration needs 0 or 2 bytes, got %d", len(b))
	}
	return nil
}
