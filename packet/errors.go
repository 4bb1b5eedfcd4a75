package packet

import "fmt"

// codecError is a value error for the codec's decode-time failures. The
// three kinds named by spec §4.1/§7 — LenMismatch, BadType, TruncatedField
// — are semantic, not typed: callers compare against the sentinel values
// below, not against a concrete error type.
type codecError struct {
	reason string
}

func (e *codecError) Error() string { return e.reason }

var (
	// ErrLenMismatch is returned when the declared frame length disagrees
	// with the number of bytes actually available.
	ErrLenMismatch = &codecError{"mqttsn: declared length mismatch"}

	// ErrBadType is returned when the message-type octet is not one this
	// codec knows how to decode.
	ErrBadType = &codecError{"mqttsn: unknown message type"}

	// ErrTruncatedField is returned when a fixed-size or length-prefixed
	// field runs past the end of the buffer.
	ErrTruncatedField = &codecError{"mqttsn: truncated field"}

	// ErrFrameTooShort is returned by DecodeHeader when the buffer doesn't
	// even contain a complete length prefix.
	ErrFrameTooShort = &codecError{"mqttsn: frame shorter than length prefix"}

	// ErrFrameTooLong is returned by encoders when the payload would
	// exceed the 16-bit length-prefixed frame ceiling.
	ErrFrameTooLong = &codecError{"mqttsn: frame exceeds 65535 bytes"}
)

// wrapf annotates a sentinel codec error with positional context without
// losing errors.Is comparability against the sentinel (callers match on
// the sentinel via errors.Is, not on message text).
func wrapf(base *codecError, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	return fmt.Errorf("%w: %s", base, msg)
}
