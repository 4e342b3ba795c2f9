// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ttlv implements encoding and decoding of the tag-type-length-value
// (TTLV) format used by the Key Management Interoperability Protocol (KMIP),
// as specified in section 9.1 of “[KMIP Specification Version 1.0]”.
//
// This package deals with the semantic layer of TTLV, mapping Go values to
// and from TTLV items. The syntactic layer, reading and writing single
// fields, is implemented by the [github.com/NLnetLabs/kmip-ttlv/wire]
// package. Transport, sessions, and the KMIP object model are out of scope;
// this package only concerns itself with bytes and Go values.
//
// # Mapping Go Types to TTLV
//
// The correspondence between Go types and TTLV item types is fixed:
//
//	bool               Boolean
//	int, int32         Integer
//	int64              LongInteger
//	big.Int, *big.Int  BigInteger
//	uint32, EnumValue  Enumeration
//	string             TextString
//	[]byte             ByteString
//	time.Time          DateTime
//	struct             Structure
//
// Every item carries a tag. The tag of a struct field is declared in its
// `ttlv` struct tag as the prefix "0x" followed by exactly 6 hexadecimal
// digits:
//
//	type ProtocolVersion struct {
//		Major int32 `ttlv:"0x42006A"`
//		Minor int32 `ttlv:"0x42006B"`
//	}
//
// Struct fields are required and decoded in declaration order, which must
// match the order of items on the wire. A pointer-typed field is optional:
// a nil pointer is omitted when encoding and an absent item leaves the
// pointer nil when decoding. A slice field (other than []byte) is encoded as
// consecutive sibling items that all carry the field's tag. Fields using the
// `ttlv:"-"` tag as well as unexported fields are ignored. Anonymous
// embedded structs are flattened into the containing struct.
//
// # Transparent Types
//
// A struct embedding the [Transparent] marker declares exactly one data
// field and encodes to that field's wire form instead of a Structure. This
// gives a distinct Go type to a primitive item:
//
//	type KeyMaterial struct {
//		ttlv.Transparent `ttlv:"0x420043"`
//		Bytes            []byte
//	}
//
// The marker's own `ttlv` tag declares the intrinsic tag of the type, used
// when a field does not override it.
//
// # Unions
//
// A struct embedding the [Union] marker declares variant fields, exactly one
// of which is set at any time. Variant fields must be pointer typed. When
// every variant declares a plain tag, the item's tag selects the variant.
// Alternatively variants can declare selection rules that choose a variant
// based on sibling items already decoded in the enclosing Structure:
//
//	type ResponsePayload struct {
//		ttlv.Union `ttlv:"0x42007C"`
//		Create     *CreateResponse `ttlv:"if 0x42005C==0x00000001"`
//		Get        *GetResponse    `ttlv:"if 0x42005C in [0x0000000A,0x0000000B]"`
//	}
//
// A selection rule has one of the following forms:
//
//	if 0xNNNNNN==0xNNNNNNNN   sibling equals the 8-digit numeric constant
//	if 0xNNNNNN==text         sibling equals the verbatim text
//	if 0xNNNNNN>=0xNNNNNNNN   sibling is at least the numeric constant
//	if 0xNNNNNN in [..,..]    sibling is one of the numeric constants
//	if type==TypeName         the item itself has the named wire type
//
// Rules are evaluated in declaration order and the first match selects the
// variant. A rule referring to a sibling that has not been decoded in the
// current Structure does not match. Tags and rules cannot be mixed within
// one union.
//
// # Limits
//
// TTLV length fields are attacker controlled. When decoding from an
// untrusted stream, use [Decoder.SetMaxBytes] to bound the number of bytes a
// single message may occupy. The limit is enforced before value bytes are
// buffered.
//
// [KMIP Specification Version 1.0]: https://docs.oasis-open.org/kmip/spec/v1.0/kmip-spec-1.0.html
package ttlv

// EnumValue is a KMIP Enumeration value that has no more specific Go type.
// Named uint32 types can be used in its place.
type EnumValue uint32

// Transparent marks a struct as a transparent wrapper around its single data
// field. The Transparent type is intended to be embedded in a struct as an
// anonymous field. A transparent struct encodes to and decodes from the wire
// form of its data field rather than a Structure. The marker's `ttlv` struct
// tag declares the intrinsic tag of the type.
type Transparent struct{}

// Union marks a struct as a union of variant fields, exactly one of which is
// set at any time. The Union type is intended to be embedded in a struct as
// an anonymous field. Variant fields must be pointer typed and declare
// either plain tags or selection rules in their `ttlv` struct tags. The
// marker's `ttlv` struct tag declares the intrinsic tag of the union, if
// any. See the package documentation for the rule syntax.
type Union struct{}
