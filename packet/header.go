package packet

import "encoding/binary"

// Header is the decoded frame envelope shared by every MQTT-SN message:
// the length prefix (one byte for short frames, `0x01` plus a big-endian
// uint16 for long frames) and the message-type octet.
//
// Position: byte 0 (and bytes 1-2 for the long form), spec §4.1.
type Header struct {
	Kind Kind
	// Len is the total frame length, including the prefix itself.
	Len int
}

// minFrameLen is the shortest legal MQTT-SN frame: a one-byte length plus
// a one-byte type (e.g. PINGREQ with no client id).
const minFrameLen = 2

// DecodeHeader normalises the one-byte and three-byte length-prefix forms
// and returns the message type, the offset of the first payload byte
// (i.e. the byte after the type octet), and the total declared frame
// length. It does not require the full frame to be present — callers
// reading from a fixed-size datagram pass the whole datagram and rely on
// ErrLenMismatch to catch a declared length that disagrees with what was
// actually received.
func DecodeHeader(buf []byte) (hdr Header, payloadOffset int, err error) {
	if len(buf) < minFrameLen {
		return Header{}, 0, ErrFrameTooShort
	}

	var totalLen int
	var typeOffset int
	if buf[0] != 0x01 {
		totalLen = int(buf[0])
		typeOffset = 1
	} else {
		if len(buf) < 3 {
			return Header{}, 0, ErrFrameTooShort
		}
		totalLen = int(binary.BigEndian.Uint16(buf[1:3]))
		typeOffset = 3
	}

	if typeOffset >= len(buf) {
		return Header{}, 0, ErrFrameTooShort
	}
	if totalLen != len(buf) {
		return Header{}, 0, wrapf(ErrLenMismatch, "declared=%d actual=%d", totalLen, len(buf))
	}

	return Header{Kind: Kind(buf[typeOffset]), Len: totalLen}, typeOffset + 1, nil
}

// EncodeHeader prepends the length prefix and type octet to payload,
// choosing the one-byte form for frames of total length 2..255 and the
// three-byte `0x01 len16` form for 256..65535, per spec §4.1 and §8
// property 2. It returns a new buffer; payload is not mutated.
func EncodeHeader(kind Kind, payload []byte) ([]byte, error) {
	shortTotal := len(payload) + 2
	if shortTotal <= 255 {
		out := make([]byte, 0, shortTotal)
		out = append(out, byte(shortTotal), byte(kind))
		out = append(out, payload...)
		return out, nil
	}

	longTotal := len(payload) + 4
	if longTotal > 0xFFFF {
		return nil, ErrFrameTooLong
	}
	out := make([]byte, 0, longTotal)
	out = append(out, 0x01)
	out = binary.BigEndian.AppendUint16(out, uint16(longTotal))
	out = append(out, byte(kind))
	out = append(out, payload...)
	return out, nil
}
