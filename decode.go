// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ttlv

import (
	"bytes"
	"errors"
	"io"
	"reflect"
	"slices"
	"time"

	"github.com/NLnetLabs/kmip-ttlv/internal"
	"github.com/NLnetLabs/kmip-ttlv/wire"
)

//region type Decoder

// Decoder reads TTLV-encoded messages from an input stream. It is the
// counterpart to the [Encoder] type.
//
// To create a new Decoder, use the [NewDecoder] function.
type Decoder struct {
	r        *wire.Reader
	maxBytes int64
}

// NewDecoder creates a new [Decoder] reading from r. The Decoder does not
// read ahead of the current message, so after every successful Decode the
// underlying reader is positioned at the start of the next message.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: wire.NewReader(r)}
}

// SetMaxBytes bounds the number of bytes a single message may occupy. A
// message exceeding the bound fails with a [wire.LimitError] before its
// value bytes are buffered. A non-positive n removes the bound.
//
// Decoding from an untrusted stream without a bound allows the peer to make
// the Decoder consume arbitrary amounts of memory.
func (dec *Decoder) SetMaxBytes(n int64) {
	dec.maxBytes = n
}

// InputOffset returns the number of bytes read from the input so far.
func (dec *Decoder) InputOffset() int64 {
	return dec.r.InputOffset()
}

// Decode reads the next TTLV message from its input and stores it in the
// value pointed to by val. At the clean end of the input stream Decode
// returns [io.EOF]; all other errors are of type [*Error].
func (dec *Decoder) Decode(val any) error {
	return dec.DecodeWithParams(val, "")
}

// DecodeWithParams reads the next TTLV message from its input and stores it
// in the value pointed to by val. params can declare the expected tag of the
// top-level item in the form "0xNNNNNN", overriding the intrinsic tag of
// val's type.
func (dec *Decoder) DecodeWithParams(val any, params string) error {
	want, err := paramsTag(params)
	if err != nil {
		return asError(err)
	}
	dec.r.SetLimit(dec.maxBytes)
	d := newDecodeState(dec.r)
	if err := d.decodeRoot(val, want); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return asError(err)
	}
	return nil
}

//endregion

// Unmarshal parses the TTLV-encoded data and stores the result in the value
// pointed to by val. The mapping between TTLV items and Go values is
// described in the package documentation. Input bytes remaining after the
// top-level item result in an error wrapping [ErrTrailingData].
//
// All errors returned by Unmarshal are of type [*Error].
func Unmarshal(data []byte, val any) error {
	return UnmarshalWithParams(data, val, "")
}

// UnmarshalWithParams parses the TTLV-encoded data and stores the result in
// the value pointed to by val. params can declare the expected tag of the
// top-level item in the form "0xNNNNNN", overriding the intrinsic tag of
// val's type.
func UnmarshalWithParams(data []byte, val any, params string) error {
	want, err := paramsTag(params)
	if err != nil {
		return asError(err)
	}
	d := newDecodeState(wire.NewReader(bytes.NewReader(data)))
	if err := d.decodeRoot(val, want); err != nil {
		if err == io.EOF {
			err = d.fail(io.ErrUnexpectedEOF, 0, 0)
		}
		return asError(err)
	}
	if d.r.InputOffset() != int64(len(data)) {
		return asError(d.fail(ErrTrailingData, 0, 0))
	}
	return nil
}

// decodeState holds the state of a single Unmarshal or Decode call. Each
// nesting level has its own field state machine and its own scope of
// decoded sibling values for selection rules to refer to.
type decodeState struct {
	r       *wire.Reader
	sms     []wire.StateMachine
	scopes  []scope
	parents []wire.Tag // enclosing Structure tags, outermost first
}

// A scope holds the primitive values decoded so far within one Structure.
type scope struct {
	seen []seenValue
}

type seenValue struct {
	tag wire.Tag
	typ wire.Type
	val any
}

// lookup returns the most recently seen value with the given tag.
func (sc *scope) lookup(tag wire.Tag) (seenValue, bool) {
	for i := len(sc.seen) - 1; i >= 0; i-- {
		if sc.seen[i].tag == tag {
			return sc.seen[i], true
		}
	}
	return seenValue{}, false
}

func newDecodeState(r *wire.Reader) *decodeState {
	d := &decodeState{r: r}
	d.sms = append(d.sms, wire.NewStateMachine(wire.Decoding))
	d.scopes = append(d.scopes, scope{})
	return d
}

func (d *decodeState) sm() *wire.StateMachine {
	return &d.sms[len(d.sms)-1]
}

// step reports a field to the state machine of the current nesting level.
func (d *decodeState) step(kind wire.FieldKind) (bool, error) {
	return d.sm().Advance(kind)
}

func (d *decodeState) scope() *scope {
	return &d.scopes[len(d.scopes)-1]
}

// retain records a decoded primitive in the current scope so that selection
// rules of subsequent siblings can refer to it.
func (d *decodeState) retain(tag wire.Tag, typ wire.Type, val any) {
	sc := d.scope()
	sc.seen = append(sc.seen, seenValue{tag: tag, typ: typ, val: val})
}

func (d *decodeState) push(tag wire.Tag) {
	d.sms = append(d.sms, wire.NewStateMachine(wire.Decoding))
	d.scopes = append(d.scopes, scope{})
	d.parents = append(d.parents, tag)
}

func (d *decodeState) pop() {
	d.sms = d.sms[:len(d.sms)-1]
	d.scopes = d.scopes[:len(d.scopes)-1]
	d.parents = d.parents[:len(d.parents)-1]
}

// fail attaches the current decode location to err. Errors that already
// carry a location keep it, with unset parts filled in by outer frames.
func (d *decodeState) fail(err error, tag wire.Tag, typ wire.Type) error {
	if err == nil || err == io.EOF {
		return err
	}
	var te *Error
	if errors.As(err, &te) {
		te.Location.setTag(tag)
		te.Location.setType(typ)
		return te
	}
	return &Error{Err: err, Location: Location{
		Offset:  d.r.InputOffset(),
		Tag:     tag,
		Type:    typ,
		Parents: slices.Clone(d.parents),
	}}
}

// decodeRoot decodes one complete top-level item into val. If the input
// ends before the first tag byte, decodeRoot returns io.EOF untouched.
func (d *decodeState) decodeRoot(val any, want wire.Tag) error {
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return &InvalidDecodeError{Value: rv}
	}
	if _, err := d.step(wire.FieldTag); err != nil {
		return err
	}
	tag, err := d.r.ReadTag()
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return d.fail(err, 0, 0)
	}
	if want == 0 {
		want = intrinsicTag(rv.Type().Elem())
	}
	if want != 0 && tag != want {
		return d.fail(&UnexpectedTagError{Expected: want, Actual: tag}, tag, 0)
	}
	if _, err := d.step(wire.FieldType); err != nil {
		return d.fail(err, tag, 0)
	}
	typ, err := d.r.ReadType()
	if err != nil {
		return d.fail(err, tag, 0)
	}
	return d.decodeBody(rv.Elem(), tag, typ)
}

// intrinsicTag returns the tag a type declares for itself via its marker
// field, zero if none.
func intrinsicTag(t reflect.Type) wire.Tag {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct || t == timeType || t == bigIntType {
		return 0
	}
	d, err := descOf(t)
	if err != nil {
		return 0
	}
	return d.tag
}

// indirect walks down v, allocating pointers as needed, until it reaches a
// non-pointer value.
func indirect(v reflect.Value) (reflect.Value, error) {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			if !v.CanSet() {
				return v, &InvalidDecodeError{Value: v}
			}
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	if v.Kind() == reflect.Interface {
		return v, unsupportedType(v.Type(), "cannot decode into interface values")
	}
	return v, nil
}

// decodeBody decodes the item body following an already consumed tag and
// type, attaching the decode location to any error raised beneath it.
func (d *decodeState) decodeBody(v reflect.Value, tag wire.Tag, typ wire.Type) error {
	return d.fail(d.decode(v, tag, typ), tag, typ)
}

func (d *decodeState) decode(v reflect.Value, tag wire.Tag, typ wire.Type) error {
	v, err := indirect(v)
	if err != nil {
		return err
	}
	if !v.CanSet() {
		return &InvalidDecodeError{Value: v}
	}
	t := v.Type()
	if t.Kind() == reflect.Struct && t != timeType && t != bigIntType {
		desc, err := descOf(t)
		if err != nil {
			return err
		}
		switch {
		case desc.transparent:
			return d.decode(v.Field(desc.valueIndex), tag, typ)
		case desc.union:
			return d.decodeUnion(v, desc, tag, typ)
		}
		if typ != wire.TypeStructure {
			return &UnexpectedTypeError{Expected: wire.TypeStructure, Actual: typ}
		}
		return d.decodeStruct(v, tag)
	}
	switch t {
	case timeType:
		if err := d.value(wire.TypeDateTime, typ); err != nil {
			return err
		}
		secs, err := d.r.ReadDateTime()
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(time.Unix(secs, 0).UTC()))
		return nil
	case bigIntType:
		if err := d.value(wire.TypeBigInteger, typ); err != nil {
			return err
		}
		n, err := d.r.ReadBigInteger()
		if err != nil {
			return err
		}
		v.Set(reflect.ValueOf(n).Elem())
		return nil
	}
	switch t.Kind() {
	case reflect.Bool:
		if err := d.value(wire.TypeBoolean, typ); err != nil {
			return err
		}
		b, err := d.r.ReadBoolean()
		if err != nil {
			return err
		}
		v.SetBool(b)
		return nil
	case reflect.Int, reflect.Int32:
		if err := d.value(wire.TypeInteger, typ); err != nil {
			return err
		}
		n, err := d.r.ReadInteger()
		if err != nil {
			return err
		}
		v.SetInt(int64(n))
		d.retain(tag, typ, n)
		return nil
	case reflect.Int64:
		if err := d.value(wire.TypeLongInteger, typ); err != nil {
			return err
		}
		n, err := d.r.ReadLongInteger()
		if err != nil {
			return err
		}
		v.SetInt(n)
		d.retain(tag, typ, n)
		return nil
	case reflect.Uint32:
		if err := d.value(wire.TypeEnumeration, typ); err != nil {
			return err
		}
		n, err := d.r.ReadEnumeration()
		if err != nil {
			return err
		}
		v.SetUint(uint64(n))
		d.retain(tag, typ, n)
		return nil
	case reflect.String:
		if err := d.value(wire.TypeTextString, typ); err != nil {
			return err
		}
		s, err := d.r.ReadTextString()
		if err != nil {
			return err
		}
		v.SetString(s)
		d.retain(tag, typ, s)
		return nil
	case reflect.Slice:
		if t.Elem().Kind() != reflect.Uint8 {
			return unsupportedType(t, "sequences are only valid as struct fields")
		}
		if err := d.value(wire.TypeByteString, typ); err != nil {
			return err
		}
		b, err := d.r.ReadByteString()
		if err != nil {
			return err
		}
		v.SetBytes(b)
		return nil
	}
	return unsupportedType(t, "")
}

// value checks the wire type of a primitive item and reports the combined
// length-and-value read to the state machine.
func (d *decodeState) value(want, got wire.Type) error {
	if got != want {
		return &UnexpectedTypeError{Expected: want, Actual: got}
	}
	_, err := d.step(wire.FieldLengthValue)
	return err
}

// decodeUnion selects the variant of a union matching the current item and
// decodes into it. Rules are evaluated in declaration order against the
// sibling values of the enclosing Structure; the first match wins.
func (d *decodeState) decodeUnion(v reflect.Value, desc *typeDesc, tag wire.Tag, typ wire.Type) error {
	idx := -1
	for i, va := range desc.variants {
		if desc.ruleMode {
			if va.rule.matches(d.scope(), typ) {
				idx = i
				break
			}
		} else if va.tag == tag {
			idx = i
			break
		}
	}
	if idx < 0 {
		return &NoVariantError{Tag: tag}
	}
	return d.decode(v.Field(desc.variants[idx].index), tag, typ)
}

func (d *decodeState) decodeStruct(v reflect.Value, tag wire.Tag) error {
	if _, err := d.step(wire.FieldLength); err != nil {
		return err
	}
	length, err := d.r.ReadLength()
	if err != nil {
		return err
	}
	end := d.r.InputOffset() + int64(length)

	d.push(tag)
	err = d.decodeFields(v, length, end)
	if err != nil {
		// Wrap before popping so the location includes this Structure.
		err = d.fail(err, 0, 0)
	}
	d.pop()
	if err != nil {
		return err
	}
	_, err = d.step(wire.FieldValue)
	return err
}

// decodeField is the decode-time view of one struct field.
type decodeField struct {
	value    reflect.Value
	tag      wire.Tag      // effective expected tag, zero for tag-mode unions
	desc     *typeDesc     // description of the field's struct type, if any
	elem     reflect.Type  // element type of a repeated field
	repeated bool
	optional bool
}

// matches reports whether an item tagged t can decode into f.
func (f *decodeField) matches(t wire.Tag) bool {
	if f.desc != nil && f.desc.union && !f.desc.ruleMode {
		for _, va := range f.desc.variants {
			if va.tag == t {
				return true
			}
		}
		return false
	}
	return f.tag == t
}

func (d *decodeState) collectFields(v reflect.Value) ([]decodeField, error) {
	var fields []decodeField
	for fv, sf := range internal.StructFields(v) {
		p, err := internal.ParseFieldParameters(sf.Tag.Get("ttlv"))
		if err != nil {
			return nil, &TagParseError{Text: sf.Tag.Get("ttlv")}
		}
		if p.Skip {
			continue
		}
		if p.Rule != "" {
			return nil, &MatcherSyntaxError{Rule: p.Rule, Reason: "selection rules are only valid on union variant fields"}
		}
		f := decodeField{value: fv, tag: p.Tag, optional: fv.Kind() == reflect.Pointer}
		ft := sf.Type
		if ft.Kind() == reflect.Slice && ft.Elem().Kind() != reflect.Uint8 {
			f.repeated = true
			f.elem = ft.Elem()
			ft = f.elem
		}
		for ft.Kind() == reflect.Pointer {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct && ft != timeType && ft != bigIntType {
			if f.desc, err = descOf(ft); err != nil {
				return nil, err
			}
			if f.tag == 0 {
				f.tag = f.desc.tag
			}
		}
		if f.tag == 0 && !(f.desc != nil && f.desc.union && !f.desc.ruleMode) {
			return nil, &MissingTagError{Type: sf.Type}
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// decodeFields decodes the items of a Structure into the fields of v. Items
// must appear in field declaration order. Absent optional fields are left
// nil, absent required fields are an error, as are items matching no field.
func (d *decodeState) decodeFields(v reflect.Value, length uint32, end int64) error {
	fields, err := d.collectFields(v)
	if err != nil {
		return err
	}

	var pending wire.Tag
	var pendingSet bool
	// next returns the tag of the next item in this Structure, if any. The
	// tag stays pending until a field consumes it.
	next := func() (wire.Tag, bool, error) {
		if pendingSet {
			return pending, true, nil
		}
		if d.r.InputOffset() >= end {
			return 0, false, nil
		}
		if _, err := d.step(wire.FieldTag); err != nil {
			return 0, false, err
		}
		t, err := d.r.ReadTag()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, false, err
		}
		pending, pendingSet = t, true
		return t, true, nil
	}
	// consume accepts the pending tag and reads the item's type.
	consume := func() (wire.Type, error) {
		pendingSet = false
		if _, err := d.step(wire.FieldType); err != nil {
			return 0, err
		}
		return d.r.ReadType()
	}

	for i := range fields {
		f := &fields[i]
		if f.repeated {
			n := 0
			var sl reflect.Value
			for {
				t, ok, err := next()
				if err != nil {
					return err
				}
				if !ok || !f.matches(t) {
					break
				}
				typ, err := consume()
				if err != nil {
					return d.fail(err, t, 0)
				}
				ev := reflect.New(f.elem).Elem()
				if err := d.decodeBody(ev, t, typ); err != nil {
					return err
				}
				if n == 0 {
					sl = reflect.MakeSlice(f.value.Type(), 0, 4)
				}
				sl = reflect.Append(sl, ev)
				n++
			}
			if n > 0 {
				f.value.Set(sl)
			}
			continue
		}

		t, ok, err := next()
		if err != nil {
			return err
		}
		if !ok || !f.matches(t) {
			if f.optional {
				continue
			}
			if !ok {
				return &MissingFieldError{Tag: f.tag}
			}
			if f.desc != nil && f.desc.union && !f.desc.ruleMode {
				return &NoVariantError{Tag: t}
			}
			return &UnexpectedTagError{Expected: f.tag, Actual: t}
		}
		typ, err := consume()
		if err != nil {
			return d.fail(err, t, 0)
		}
		if err := d.decodeBody(f.value, t, typ); err != nil {
			return err
		}
	}

	switch off := d.r.InputOffset(); {
	case off > end:
		return &StructureLengthError{Declared: length, Consumed: off - (end - int64(length))}
	case pendingSet:
		return &UnexpectedTagError{Actual: pending}
	case off < end:
		// Whatever follows did not match any field. Report its tag.
		if _, err := d.step(wire.FieldTag); err != nil {
			return err
		}
		t, err := d.r.ReadTag()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		return &UnexpectedTagError{Actual: t}
	}
	return nil
}
