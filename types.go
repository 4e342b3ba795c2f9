// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ttlv

import (
	"math/big"
	"reflect"
	"sync"
	"time"

	"github.com/NLnetLabs/kmip-ttlv/internal"
	"github.com/NLnetLabs/kmip-ttlv/wire"
)

var (
	timeType        = reflect.TypeFor[time.Time]()
	bigIntType      = reflect.TypeFor[big.Int]()
	transparentType = reflect.TypeFor[Transparent]()
	unionType       = reflect.TypeFor[Union]()
)

// typeDesc describes how a struct type maps to TTLV beyond the plain
// field-per-item Structure mapping: whether it is a transparent wrapper or a
// union, its intrinsic tag, and its variants.
type typeDesc struct {
	transparent bool
	union       bool
	ruleMode    bool     // union variants are selected by rules, not tags
	tag         wire.Tag // intrinsic tag declared on the marker, zero if none
	valueIndex  int      // field index of a transparent wrapper's value field
	variants    []variantDesc
}

// variantDesc describes one variant field of a union.
type variantDesc struct {
	index int
	name  string
	tag   wire.Tag
	rule  *rule
}

type descEntry struct {
	desc *typeDesc
	err  error
}

var typeDescs sync.Map // reflect.Type → *descEntry

// descOf returns the type description for the struct type t, building and
// caching it on first use. Errors are cached as well so that a malformed
// type fails the same way every time.
func descOf(t reflect.Type) (*typeDesc, error) {
	if e, ok := typeDescs.Load(t); ok {
		en := e.(*descEntry)
		return en.desc, en.err
	}
	desc, err := buildDesc(t)
	en := &descEntry{desc: desc, err: err}
	if prev, loaded := typeDescs.LoadOrStore(t, en); loaded {
		en = prev.(*descEntry)
	}
	return en.desc, en.err
}

func buildDesc(t reflect.Type) (*typeDesc, error) {
	d := &typeDesc{valueIndex: -1}
	var dataFields []int
	for i := range t.NumField() {
		f := t.Field(i)
		if f.Anonymous && (f.Type == transparentType || f.Type == unionType) {
			p, err := internal.ParseFieldParameters(f.Tag.Get("ttlv"))
			if err != nil {
				return nil, &TagParseError{Text: f.Tag.Get("ttlv")}
			}
			if p.Rule != "" {
				return nil, &MatcherSyntaxError{Rule: p.Rule, Reason: "selection rules are only valid on union variant fields"}
			}
			if f.Type == transparentType {
				d.transparent = true
			} else {
				d.union = true
			}
			d.tag = p.Tag
			continue
		}
		if f.Anonymous && f.Type.Kind() == reflect.Struct {
			if f.Tag.Get("ttlv") != "" {
				return nil, unsupportedType(t, "embedded struct fields cannot carry a tag")
			}
			// Flattened into the containing struct by internal.StructFields.
			continue
		}
		if !f.IsExported() {
			continue
		}
		dataFields = append(dataFields, i)
	}
	switch {
	case d.transparent && d.union:
		return nil, unsupportedType(t, "cannot be both transparent and a union")
	case d.transparent:
		if err := buildTransparent(d, t, dataFields); err != nil {
			return nil, err
		}
	case d.union:
		if err := buildUnion(d, t, dataFields); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func buildTransparent(d *typeDesc, t reflect.Type, dataFields []int) error {
	for _, i := range dataFields {
		f := t.Field(i)
		p, err := internal.ParseFieldParameters(f.Tag.Get("ttlv"))
		if err != nil {
			return &TagParseError{Text: f.Tag.Get("ttlv")}
		}
		switch {
		case p.Skip:
			continue
		case p.Rule != "":
			return &MatcherSyntaxError{Rule: p.Rule, Reason: "selection rules are only valid on union variant fields"}
		case p.Tag != 0:
			// The wire form carries a single tag, the wrapper's.
			return unsupportedType(t, "the value field of a transparent wrapper cannot carry a tag")
		case d.valueIndex >= 0:
			return unsupportedType(t, "transparent wrappers need exactly one value field")
		}
		d.valueIndex = i
	}
	if d.valueIndex < 0 {
		return unsupportedType(t, "transparent wrappers need exactly one value field")
	}
	return nil
}

func buildUnion(d *typeDesc, t reflect.Type, dataFields []int) error {
	var withRule, withTag int
	for _, i := range dataFields {
		f := t.Field(i)
		p, err := internal.ParseFieldParameters(f.Tag.Get("ttlv"))
		if err != nil {
			return &TagParseError{Text: f.Tag.Get("ttlv")}
		}
		if p.Skip {
			continue
		}
		if f.Type.Kind() != reflect.Pointer {
			return unsupportedType(t, "union variants must be pointer fields")
		}
		va := variantDesc{index: i, name: f.Name, tag: p.Tag}
		switch {
		case p.Rule != "":
			if va.rule, err = parseRule(p.Rule); err != nil {
				return err
			}
			withRule++
		case p.Tag != 0:
			withTag++
		default:
			return unsupportedType(t, "union variants need a tag or a selection rule")
		}
		d.variants = append(d.variants, va)
	}
	if len(d.variants) == 0 {
		return unsupportedType(t, "unions need at least one variant")
	}
	if withRule > 0 && withTag > 0 {
		return unsupportedType(t, "unions cannot mix tags and selection rules")
	}
	if withTag > 0 && d.tag != 0 {
		return unsupportedType(t, "unions selected by variant tags cannot declare an intrinsic tag")
	}
	d.ruleMode = withRule > 0
	return nil
}
