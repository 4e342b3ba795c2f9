// Package wire implements streaming encoding and decoding of the
// tag-type-length-value (TTLV) format used by the Key Management
// Interoperability Protocol (KMIP). See also “[KMIP Specification Version
// 1.0]”, section 9.1.
//
// The [Reader] and [Writer] types read and write TTLV items as a sequence of
// tag, type, length, and value fields. This package deals with the syntactic
// layer of TTLV while the [github.com/NLnetLabs/kmip-ttlv] package deals with
// the semantic layer, mapping items to Go values.
//
// # Items and Fields
//
// Every TTLV item starts with a fixed 8-byte header: a 3-byte tag, a single
// type byte and a 4-byte big-endian length. The length counts the value bytes
// that follow, excluding the trailing padding that aligns the next item to an
// 8-byte boundary. Structure items carry no padding of their own; their value
// consists of complete child items including the children's padding.
//
// The [StateMachine] type validates that a sequence of field reads or writes
// forms a well-formed TTLV traversal. [Reader] and [Writer] do not enforce
// field order themselves, callers sequence the field operations and consult a
// [StateMachine] to detect misuse.
//
// [KMIP Specification Version 1.0]: https://docs.oasis-open.org/kmip/spec/v1.0/kmip-spec-1.0.html
package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// Wire sizes of the fixed TTLV header fields.
const (
	// TagLength is the encoded size of an item tag in bytes.
	TagLength = 3
	// TypeLength is the encoded size of an item type in bytes.
	TypeLength = 1
	// LengthLength is the encoded size of an item length in bytes.
	LengthLength = 4
	// HeaderLength is the combined size of the tag, type, and length fields
	// preceding every item value.
	HeaderLength = 8
)

// MaxTag is the largest tag representable in the 3-byte wire form.
const MaxTag Tag = 0xFFFFFF

// A Tag identifies a TTLV item. Tags occupy the low 3 bytes of the value;
// valid tags are at most [MaxTag]. The zero tag is not used by KMIP and
// indicates an unset tag throughout this module.
type Tag uint32

// ParseTag parses the textual form of a tag: the prefix "0x" followed by
// exactly 6 hexadecimal digits, e.g. "0x42007B".
func ParseTag(s string) (Tag, error) {
	digits, ok := strings.CutPrefix(s, "0x")
	if !ok || len(digits) != 2*TagLength {
		return 0, fmt.Errorf("ttlv: invalid tag %q", s)
	}
	n, err := strconv.ParseUint(digits, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("ttlv: invalid tag %q", s)
	}
	return Tag(n), nil
}

// String returns the textual form of t, e.g. "0x42007B". The result is a
// valid input to [ParseTag] if t is at most [MaxTag].
func (t Tag) String() string {
	return fmt.Sprintf("0x%06X", uint32(t))
}

// A Type identifies the wire representation of an item value.
type Type byte

// The item types defined by KMIP 1.0. The Interval type (0x0A) is recognized
// but not supported, see [Reader.ReadType].
const (
	TypeStructure   Type = 0x01
	TypeInteger     Type = 0x02
	TypeLongInteger Type = 0x03
	TypeBigInteger  Type = 0x04
	TypeEnumeration Type = 0x05
	TypeBoolean     Type = 0x06
	TypeTextString  Type = 0x07
	TypeByteString  Type = 0x08
	TypeDateTime    Type = 0x09
)

var typeNames = map[Type]string{
	TypeStructure:   "Structure",
	TypeInteger:     "Integer",
	TypeLongInteger: "LongInteger",
	TypeBigInteger:  "BigInteger",
	TypeEnumeration: "Enumeration",
	TypeBoolean:     "Boolean",
	TypeTextString:  "TextString",
	TypeByteString:  "ByteString",
	TypeDateTime:    "DateTime",
}

// TypeByName returns the type with the given name, e.g. "LongInteger". The
// second return value reports whether name identifies a known type.
func TypeByName(name string) (Type, bool) {
	for t, n := range typeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// String returns a string representation of t such as "Integer (0x02)".
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return fmt.Sprintf("%s (0x%02X)", name, byte(t))
	}
	return fmt.Sprintf("0x%02X", byte(t))
}

// PadLength returns the number of zero bytes that follow a primitive value of
// n bytes, aligning the next item to an 8-byte boundary.
func PadLength(n int) int {
	return (8 - n%8) % 8
}
