package codec

import (
	"errors"
	"fmt"
)

var (
	// ErrDecode is the root of every decoding failure.
	ErrDecode = errors.New("codec: decode failed")
	// ErrEncode is the root of every encoding failure.
	ErrEncode = errors.New("codec: encode failed")
	// ErrCodecUsed is returned when a codec instance is asked to marshal or
	// unmarshal a second time.
	ErrCodecUsed = errors.New("codec: instance already used")
	// ErrVersionMismatch is returned when the first byte of a stream is not Version.
	ErrVersionMismatch = errors.New("codec: version mismatch")
	// ErrUnknownTag is returned when the reader meets a tag it cannot decode.
	ErrUnknownTag = errors.New("codec: unknown tag")
	// ErrTooDeep is returned for containers nested deeper than MaxDepth.
	ErrTooDeep = errors.New("codec: nesting too deep")
)

// DecodeError describes where a stream could not be decoded.
// It matches ErrDecode and the underlying cause with errors.Is.
type DecodeError struct {
	Offset int64 // number of bytes consumed when the failure was detected
	Tag    byte  // last tag byte read
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: decode failed at offset %d (tag 0x%02x %s): %v", e.Offset, e.Tag, tagName(e.Tag), e.Err)
}

func (e *DecodeError) Unwrap() []error {
	return []error{ErrDecode, e.Err}
}

// EncodeError wraps the cause of an encoding failure.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("codec: encode failed: %v", e.Err)
}

func (e *EncodeError) Unwrap() []error {
	return []error{ErrEncode, e.Err}
}
