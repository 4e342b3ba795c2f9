// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ttlv

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"

	"github.com/NLnetLabs/kmip-ttlv/wire"
)

// ErrTrailingData is returned by [Unmarshal] if input bytes remain after the
// top-level item.
var ErrTrailingData = errors.New("ttlv: trailing data after top-level item")

//region type Error, type Location

// A Location describes where in a TTLV byte stream an error occurred. Parts
// of a Location may be unknown, depending on how far processing got before
// the error was raised.
type Location struct {
	// Offset is the number of bytes consumed when the error occurred. A
	// negative offset means the offset is unknown, which is the case for all
	// errors raised while encoding.
	Offset int64

	// Parents holds the tags of the Structure items enclosing the error
	// location, outermost first.
	Parents []wire.Tag

	// Tag is the tag of the item being processed, zero if unknown.
	Tag wire.Tag

	// Type is the wire type of the item being processed, zero if unknown.
	Type wire.Type
}

// The set* methods fill in a part of the location if it is not already
// known. The first writer wins, so the innermost frame of a decode provides
// the most precise value and outer frames only complete what is missing.

func (l *Location) setOffset(off int64) {
	if l.Offset < 0 {
		l.Offset = off
	}
}

func (l *Location) setParents(parents []wire.Tag) {
	if l.Parents == nil {
		l.Parents = slices.Clone(parents)
	}
}

func (l *Location) setTag(tag wire.Tag) {
	if l.Tag == 0 {
		l.Tag = tag
	}
}

func (l *Location) setType(typ wire.Type) {
	if l.Type == 0 {
		l.Type = typ
	}
}

// String formats the known parts of l, for example
//
//	pos: 24 bytes, parent tags: 0x420078 > 0x420077, tag: 0x420069, type: Integer (0x02)
//
// The result is empty if no part of l is known.
func (l Location) String() string {
	var s strings.Builder
	if l.Offset >= 0 {
		s.WriteString("pos: ")
		s.WriteString(strconv.FormatInt(l.Offset, 10))
		s.WriteString(" bytes")
	}
	if len(l.Parents) > 0 {
		if s.Len() > 0 {
			s.WriteString(", ")
		}
		s.WriteString("parent tags: ")
		for i, tag := range l.Parents {
			if i > 0 {
				s.WriteString(" > ")
			}
			s.WriteString(tag.String())
		}
	}
	if l.Tag != 0 {
		if s.Len() > 0 {
			s.WriteString(", ")
		}
		s.WriteString("tag: ")
		s.WriteString(l.Tag.String())
	}
	if l.Type != 0 {
		if s.Len() > 0 {
			s.WriteString(", ")
		}
		s.WriteString("type: ")
		s.WriteString(l.Type.String())
	}
	return s.String()
}

// An Error associates an error raised while encoding or decoding with the
// [Location] in the TTLV stream where it occurred. All errors returned by
// the Marshal, Unmarshal, Encode and Decode functions of this package are of
// type *Error, except for [io.EOF] signalling the clean end of a stream.
type Error struct {
	Err      error
	Location Location
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Error() string {
	if loc := e.Location.String(); loc != "" {
		return e.Err.Error() + " (" + loc + ")"
	}
	return e.Err.Error()
}

// asError wraps err into an *Error with an unknown location, unless it
// already is one.
func asError(err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	return &Error{Err: err, Location: Location{Offset: -1}}
}

//endregion

//region error categories

// TagParseError indicates that the textual form of a tag could not be
// parsed, either from a struct tag or from encode or decode params.
type TagParseError struct {
	Text string
}

func (e *TagParseError) Error() string {
	return fmt.Sprintf("malformed tag %q, want 0x followed by 6 hex digits", e.Text)
}

// MatcherSyntaxError indicates that the selection rule of a union variant
// field could not be parsed.
type MatcherSyntaxError struct {
	Rule   string
	Reason string
}

func (e *MatcherSyntaxError) Error() string {
	return fmt.Sprintf("invalid selection rule %q: %s", e.Rule, e.Reason)
}

// NoVariantError indicates that none of the variants of a union matched the
// item being decoded.
type NoVariantError struct {
	Tag wire.Tag // the tag of the item, zero if the input held no item
}

func (e *NoVariantError) Error() string {
	if e.Tag == 0 {
		return "no union variant matched"
	}
	return fmt.Sprintf("no union variant matched item %v", e.Tag)
}

// UnexpectedTagError indicates that an item carried a different tag than the
// Go type required at its position.
type UnexpectedTagError struct {
	Expected wire.Tag // zero if the item was not expected at all
	Actual   wire.Tag
}

func (e *UnexpectedTagError) Error() string {
	if e.Expected == 0 {
		return fmt.Sprintf("unexpected item %v", e.Actual)
	}
	return fmt.Sprintf("unexpected item %v, expected %v", e.Actual, e.Expected)
}

// UnexpectedTypeError indicates that an item carried a different wire type
// than the Go value being decoded into requires.
type UnexpectedTypeError struct {
	Expected wire.Type
	Actual   wire.Type
}

func (e *UnexpectedTypeError) Error() string {
	return fmt.Sprintf("unexpected %v item, expected %v", e.Actual, e.Expected)
}

// UnsupportedTypeError indicates that a Go value was passed to a Marshal or
// Unmarshal function whose type has no TTLV representation.
type UnsupportedTypeError struct {
	Type reflect.Type
	msg  string // optional
}

func (e *UnsupportedTypeError) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return "unsupported Go type: " + e.Type.String()
}

// unsupportedType returns an *UnsupportedTypeError for t, with an optional
// reason refining the message.
func unsupportedType(t reflect.Type, reason string) *UnsupportedTypeError {
	e := &UnsupportedTypeError{Type: t}
	if reason != "" {
		e.msg = "unsupported Go type " + t.String() + ": " + reason
	}
	return e
}

// InvalidDecodeError indicates that an invalid value was passed to an
// Unmarshal or Decode function. The invalid value might be nested within the
// passed value.
type InvalidDecodeError struct {
	Value reflect.Value
}

func (e *InvalidDecodeError) Error() string {
	if !e.Value.IsValid() {
		return "cannot decode into nil value"
	}
	if e.Value.Kind() == reflect.Pointer && e.Value.IsNil() {
		return "cannot decode into nil pointer of type " + e.Value.Type().String()
	}
	if !e.Value.CanAddr() && e.Value.Kind() != reflect.Pointer {
		return "cannot decode into non-pointer type " + e.Value.Type().String()
	}
	return "cannot decode into value of type " + e.Value.Type().String()
}

// MissingTagError indicates that no tag could be determined for a value:
// neither its struct field, nor the encode or decode params, nor the type
// itself declare one.
type MissingTagError struct {
	Type reflect.Type
}

func (e *MissingTagError) Error() string {
	return "no tag for value of type " + e.Type.String()
}

// MissingFieldError indicates that a required item was absent from a
// Structure.
type MissingFieldError struct {
	Tag wire.Tag // zero if the field declares no tag of its own
}

func (e *MissingFieldError) Error() string {
	if e.Tag == 0 {
		return "missing required item"
	}
	return fmt.Sprintf("missing required item %v", e.Tag)
}

// StructureLengthError indicates that the items of a Structure did not add
// up to the length its header declared.
type StructureLengthError struct {
	Declared uint32 // the length from the Structure header
	Consumed int64  // the bytes actually consumed by the children
}

func (e *StructureLengthError) Error() string {
	return fmt.Sprintf("structure length mismatch: declared %d bytes, consumed %d", e.Declared, e.Consumed)
}

//endregion
