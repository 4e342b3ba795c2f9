// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ttlv

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"reflect"
	"slices"
	"time"

	"github.com/NLnetLabs/kmip-ttlv/internal"
	"github.com/NLnetLabs/kmip-ttlv/wire"
)

//region type Encoder

// Encoder writes TTLV-encoded messages to an output stream. It is the
// counterpart to the [Decoder] type.
//
// To create a new Encoder, use the [NewEncoder] function.
type Encoder struct {
	w io.Writer
}

// NewEncoder creates a new [Encoder] writing to w. Messages are buffered in
// full and reach w in a single Write call, so a failed encode writes
// nothing.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes the TTLV encoding of val to its underlying writer.
func (e *Encoder) Encode(val any) error {
	return e.EncodeWithParams(val, "")
}

// EncodeWithParams writes the TTLV encoding of val to its underlying
// writer. params can declare the tag of the top-level item in the form
// "0xNNNNNN", overriding the intrinsic tag of val's type.
func (e *Encoder) EncodeWithParams(val any, params string) error {
	data, err := MarshalWithParams(val, params)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(data); err != nil {
		return &Error{Err: err, Location: Location{Offset: -1}}
	}
	return nil
}

//endregion

// Marshal returns the TTLV encoding of val. The mapping between Go values
// and TTLV items is described in the package documentation. All errors
// returned by Marshal are of type [*Error].
func Marshal(val any) ([]byte, error) {
	return MarshalWithParams(val, "")
}

// MarshalWithParams returns the TTLV encoding of val. params can declare the
// tag of the top-level item in the form "0xNNNNNN", overriding the intrinsic
// tag of val's type.
func MarshalWithParams(val any, params string) ([]byte, error) {
	tag, err := paramsTag(params)
	if err != nil {
		return nil, asError(err)
	}
	e := &encodeState{}
	e.w = wire.NewWriter(&e.buf)
	e.sms = append(e.sms, wire.NewStateMachine(wire.Encoding))
	if err := e.encodeItem(reflect.ValueOf(val), tag); err != nil {
		return nil, asError(err)
	}
	return e.buf.Bytes(), nil
}

// paramsTag parses the optional top-level tag params.
func paramsTag(params string) (wire.Tag, error) {
	if params == "" {
		return 0, nil
	}
	tag, err := wire.ParseTag(params)
	if err != nil {
		return 0, &TagParseError{Text: params}
	}
	return tag, nil
}

// encodeState holds the state of a single Marshal call. The entire message
// is built in buf so that Structure lengths, which are not known until the
// children are written, can be patched in place.
type encodeState struct {
	buf     bytes.Buffer
	w       *wire.Writer
	sms     []wire.StateMachine // one per nesting level
	parents []wire.Tag          // enclosing Structure tags, outermost first
}

func (e *encodeState) sm() *wire.StateMachine {
	return &e.sms[len(e.sms)-1]
}

// step reports a field to the state machine of the current nesting level.
func (e *encodeState) step(kind wire.FieldKind) (bool, error) {
	return e.sm().Advance(kind)
}

// tagStep reports and writes the tag of the next item. The write is skipped
// if the state machine absorbed the tag because an enclosing wrapper already
// wrote it.
func (e *encodeState) tagStep(tag wire.Tag) error {
	emit, err := e.step(wire.FieldTag)
	if err != nil {
		return err
	}
	if !emit {
		return nil
	}
	return e.w.WriteTag(tag)
}

// encodeItem encodes a single item, attaching the encode location to any
// error raised beneath it.
func (e *encodeState) encodeItem(v reflect.Value, tag wire.Tag) error {
	return e.locate(e.encode(v, tag), tag)
}

func (e *encodeState) encode(v reflect.Value, tag wire.Tag) error {
	if !v.IsValid() {
		return errors.New("ttlv: cannot encode nil value")
	}
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return errors.New("ttlv: cannot encode nil value")
		}
		v = v.Elem()
	}
	t := v.Type()
	if t.Kind() == reflect.Struct && t != timeType && t != bigIntType {
		d, err := descOf(t)
		if err != nil {
			return err
		}
		switch {
		case d.transparent:
			return e.encodeTransparent(v, d, tag)
		case d.union:
			return e.encodeUnion(v, d, tag)
		}
		if tag == 0 {
			return &MissingTagError{Type: t}
		}
		return e.encodeStruct(v, tag)
	}
	if tag == 0 {
		return &MissingTagError{Type: t}
	}
	switch t {
	case timeType:
		return e.primitive(tag, func(w *wire.Writer) error {
			return w.WriteDateTime(v.Interface().(time.Time).Unix())
		})
	case bigIntType:
		n := v.Interface().(big.Int)
		return e.primitive(tag, func(w *wire.Writer) error {
			return w.WriteBigInteger(&n)
		})
	}
	switch t.Kind() {
	case reflect.Bool:
		return e.primitive(tag, func(w *wire.Writer) error {
			return w.WriteBoolean(v.Bool())
		})
	case reflect.Int, reflect.Int32:
		n := v.Int()
		if n < math.MinInt32 || n > math.MaxInt32 {
			return fmt.Errorf("ttlv: value %d overflows Integer", n)
		}
		return e.primitive(tag, func(w *wire.Writer) error {
			return w.WriteInteger(int32(n))
		})
	case reflect.Int64:
		return e.primitive(tag, func(w *wire.Writer) error {
			return w.WriteLongInteger(v.Int())
		})
	case reflect.Uint32:
		return e.primitive(tag, func(w *wire.Writer) error {
			return w.WriteEnumeration(uint32(v.Uint()))
		})
	case reflect.String:
		return e.primitive(tag, func(w *wire.Writer) error {
			return w.WriteTextString(v.String())
		})
	case reflect.Slice:
		if t.Elem().Kind() != reflect.Uint8 {
			return unsupportedType(t, "sequences are only valid as struct fields")
		}
		return e.primitive(tag, func(w *wire.Writer) error {
			return w.WriteByteString(v.Bytes())
		})
	}
	return unsupportedType(t, "")
}

// primitive writes a complete primitive item: its tag, then the type,
// length, value and padding as a single combined field.
func (e *encodeState) primitive(tag wire.Tag, write func(*wire.Writer) error) error {
	if err := e.tagStep(tag); err != nil {
		return err
	}
	if _, err := e.step(wire.FieldTypeLengthValue); err != nil {
		return err
	}
	return write(e.w)
}

// encodeTransparent encodes a transparent wrapper. The wrapper writes the
// item's tag and arms the state machine to absorb the tag the wrapped value
// reports, collapsing both into a single wire item.
func (e *encodeState) encodeTransparent(v reflect.Value, d *typeDesc, tag wire.Tag) error {
	outer := cmp.Or(tag, d.tag)
	if outer == 0 {
		return &MissingTagError{Type: v.Type()}
	}
	if err := e.tagStep(outer); err != nil {
		return err
	}
	if err := e.sm().IgnoreNextTag(); err != nil {
		return err
	}
	return e.encode(v.Field(d.valueIndex), outer)
}

// encodeUnion encodes the single set variant of a union, using the same
// tag absorption mechanism as transparent wrappers.
func (e *encodeState) encodeUnion(v reflect.Value, d *typeDesc, tag wire.Tag) error {
	set := -1
	for i, va := range d.variants {
		if v.Field(va.index).IsNil() {
			continue
		}
		if set >= 0 {
			return fmt.Errorf("ttlv: multiple variants of union %s are set", v.Type())
		}
		set = i
	}
	if set < 0 {
		return fmt.Errorf("ttlv: no variant of union %s is set", v.Type())
	}
	va := d.variants[set]
	if !d.ruleMode && va.tag != 0 {
		tag = va.tag
	} else {
		tag = cmp.Or(tag, d.tag)
	}
	if tag == 0 {
		return &MissingTagError{Type: v.Type()}
	}
	if err := e.tagStep(tag); err != nil {
		return err
	}
	if err := e.sm().IgnoreNextTag(); err != nil {
		return err
	}
	return e.encode(v.Field(va.index), tag)
}

func (e *encodeState) encodeStruct(v reflect.Value, tag wire.Tag) error {
	if err := e.tagStep(tag); err != nil {
		return err
	}
	if _, err := e.step(wire.FieldType); err != nil {
		return err
	}
	if err := e.w.WriteType(wire.TypeStructure); err != nil {
		return err
	}
	if _, err := e.step(wire.FieldLength); err != nil {
		return err
	}
	if err := e.w.WriteLength(0); err != nil {
		return err
	}
	pos := e.buf.Len()

	e.sms = append(e.sms, wire.NewStateMachine(wire.Encoding))
	e.parents = append(e.parents, tag)
	err := e.encodeFields(v)
	e.parents = e.parents[:len(e.parents)-1]
	e.sms = e.sms[:len(e.sms)-1]
	if err != nil {
		return err
	}

	// Patch the placeholder length now that the children are written. The
	// length includes the children's padding.
	binary.BigEndian.PutUint32(e.buf.Bytes()[pos-wire.LengthLength:pos], uint32(e.buf.Len()-pos))
	_, err = e.step(wire.FieldValue)
	return err
}

func (e *encodeState) encodeFields(v reflect.Value) error {
	for fv, sf := range internal.StructFields(v) {
		p, err := internal.ParseFieldParameters(sf.Tag.Get("ttlv"))
		if err != nil {
			return &TagParseError{Text: sf.Tag.Get("ttlv")}
		}
		if p.Skip {
			continue
		}
		if p.Rule != "" {
			return &MatcherSyntaxError{Rule: p.Rule, Reason: "selection rules are only valid on union variant fields"}
		}
		switch fv.Kind() {
		case reflect.Pointer, reflect.Interface:
			if fv.IsNil() {
				// Absent optional field.
				continue
			}
		case reflect.Slice:
			if fv.Type().Elem().Kind() != reflect.Uint8 {
				for i := range fv.Len() {
					if err := e.encodeItem(fv.Index(i), p.Tag); err != nil {
						return err
					}
				}
				continue
			}
		}
		if err := e.encodeItem(fv, p.Tag); err != nil {
			return err
		}
	}
	return nil
}

// locate attaches the current encode location to err. Errors that already
// carry a location keep it, with unset parts filled in by outer frames.
func (e *encodeState) locate(err error, tag wire.Tag) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		te.Location.setTag(tag)
		return te
	}
	return &Error{Err: err, Location: Location{
		Offset:  -1,
		Tag:     tag,
		Parents: slices.Clone(e.parents),
	}}
}
