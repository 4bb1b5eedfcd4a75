package packet

import "encoding/binary"

// ADVERTISE, SEARCHGW, and GWINFO belong to the gateway-discovery beacon
// protocol (spec §6: multicast beacons are a collaborator concern, not the
// core's). The codec still decodes them so the dispatcher can recognise
// and silently drop them rather than fail BadType.

// Advertise announces a gateway's id and advertisement interval.
type Advertise struct {
	GwID     byte
	Duration uint16
}

func (Advertise) Kind() Kind { return ADVERTISE }

func (m *Advertise) MarshalPayload() ([]byte, error) {
	out := make([]byte, 3)
	out[0] = m.GwID
	binary.BigEndian.PutUint16(out[1:], m.Duration)
	return out, nil
}

func (m *Advertise) UnmarshalPayload(b []byte) error {
	if len(b) != 3 {
		return wrapf(ErrTruncatedField, "ADVERTISE needs 3 bytes, got %d", len(b))
	}
	m.GwID = b[0]
	m.Duration = binary.BigEndian.Uint16(b[1:])
	return nil
}

// SearchGw is broadcast by a client looking for an available gateway.
type SearchGw struct {
	Radius byte
}

func (SearchGw) Kind() Kind { return SEARCHGW }

func (m *SearchGw) MarshalPayload() ([]byte, error) { return []byte{m.Radius}, nil }
func (m *SearchGw) UnmarshalPayload(b []byte) error {
	if len(b) != 1 {
		return wrapf(ErrTruncatedField, "SEARCHGW needs 1 byte, got %d", len(b))
	}
	m.Radius = b[0]
	return nil
}

// GwInfo answers a SEARCHGW (or is broadcast unsolicited by a gateway).
type GwInfo struct {
	GwID   byte
	GwAddr []byte // present only when relayed by another client
}

func (GwInfo) Kind() Kind { return GWINFO }

func (m *GwInfo) MarshalPayload() ([]byte, error) {
	out := make([]byte, 0, 1+len(m.GwAddr))
	out = append(out, m.GwID)
	out = append(out, m.GwAddr...)
	return out, nil
}

func (m *GwInfo) UnmarshalPayload(b []byte) error {
	if len(b) < 1 {
		return wrapf(ErrTruncatedField, "GWINFO needs >= 1 byte")
	}
	m.GwID = b[0]
	m.GwAddr = cloneBytes(b[1:])
	return nil
}
