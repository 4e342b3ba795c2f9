// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package internal contains helpers shared by the ttlv package for working
// with struct types.
package internal

import (
	"iter"
	"reflect"
	"strings"

	"github.com/NLnetLabs/kmip-ttlv/wire"
)

// FieldParameters is the parsed representation of the ttlv tag string from a
// struct field.
type FieldParameters struct {
	Skip bool     // true iff this field is not part of the wire form
	Tag  wire.Tag // the item tag of the field, zero if none is declared
	Rule string   // the verbatim selection rule of a union variant field
}

// ParseFieldParameters parses a given tag string into a FieldParameters
// structure. The string must be formatted according to the package
// documentation of the ttlv package. Anything following the first comma is
// reserved and currently ignored.
func ParseFieldParameters(str string) (FieldParameters, error) {
	switch {
	case str == "":
		return FieldParameters{}, nil
	case str == "-":
		return FieldParameters{Skip: true}, nil
	case strings.HasPrefix(str, "if "):
		// Selection rules may contain commas, so the whole string is kept.
		return FieldParameters{Rule: str}, nil
	}
	head, _, _ := strings.Cut(str, ",")
	tag, err := wire.ParseTag(head)
	if err != nil {
		return FieldParameters{}, err
	}
	return FieldParameters{Tag: tag}, nil
}

// StructFields returns a sequence that iterates over the fields of the
// struct identified by v. Non-exported struct fields are ignored. Fields of
// anonymous embedded structs are returned as if they were fields of the
// containing struct; embedded empty structs consequently contribute nothing.
func StructFields(v reflect.Value) iter.Seq2[reflect.Value, reflect.StructField] {
	return func(yield func(reflect.Value, reflect.StructField) bool) {
		structFields(v, yield)
	}
}

func structFields(v reflect.Value, yield func(reflect.Value, reflect.StructField) bool) bool {
	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			if !structFields(v.Field(i), yield) {
				return false
			}
			continue
		}
		if !field.IsExported() {
			continue
		}
		if !yield(v.Field(i), field) {
			return false
		}
	}
	return true
}
