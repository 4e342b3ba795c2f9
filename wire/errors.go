package wire

import (
	"errors"
	"fmt"
	"io"
)

// ErrNotEncoding is returned by [StateMachine.IgnoreNextTag] when the state
// machine is not in [Encoding] mode.
var ErrNotEncoding = errors.New("ttlv: tags can only be ignored when encoding")

// UnexpectedFieldError is returned by [StateMachine.Advance] when a field is
// observed out of order.
type UnexpectedFieldError struct {
	Expected FieldKind // the field the state machine expected next
	Actual   FieldKind // the field that was observed
}

func (e *UnexpectedFieldError) Error() string {
	return fmt.Sprintf("unexpected %v field, expected %v", e.Actual, e.Expected)
}

// InvalidTypeError is returned when an item declares a type byte that does
// not identify any known item type.
type InvalidTypeError struct {
	Code byte
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("invalid item type 0x%02X", e.Code)
}

// UnsupportedTypeError is returned when an item declares a type byte that is
// defined by KMIP but not supported by this module, such as the Interval
// type.
type UnsupportedTypeError struct {
	Code byte
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported item type 0x%02X", e.Code)
}

// LengthError is returned when an item declares a length that is not valid
// for its type.
type LengthError struct {
	Type     Type
	Expected uint32 // the length required by the type
	Actual   uint32 // the length the item declared
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("invalid length %d for %v value, expected %d", e.Actual, e.Type, e.Expected)
}

// ValueError is returned when the value bytes of an item are not a valid
// encoding for the item's type.
type ValueError struct {
	Type   Type
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("invalid %v value: %s", e.Type, e.Reason)
}

// LimitError is returned by a [Reader] whose read limit would be exceeded.
// The limit is checked before value bytes are buffered, so a malicious length
// field cannot cause excessive allocations.
type LimitError struct {
	Limit int64 // the configured limit in bytes
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("read limit of %d bytes exceeded", e.Limit)
}

// ioError represents an error that occurred when reading from or writing to
// an underlying data stream.
type ioError struct {
	action string // either "read" or "write"
	err    error
}

func (e *ioError) Unwrap() error { return e.err }
func (e *ioError) Error() string { return e.action + " error: " + e.err.Error() }

// noEOF returns err, unless err == io.EOF, in which case it returns io.ErrUnexpectedEOF.
func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
