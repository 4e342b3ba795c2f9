// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package internal

import (
	"reflect"
	"testing"
)

func TestParseFieldParameters(t *testing.T) {
	tests := map[string]struct {
		str     string
		want    FieldParameters
		wantErr bool
	}{
		"Empty":   {"", FieldParameters{}, false},
		"Skip":    {"-", FieldParameters{Skip: true}, false},
		"Tag":     {"0x42006A", FieldParameters{Tag: 0x42006A}, false},
		"Options": {"0x42006A,future", FieldParameters{Tag: 0x42006A}, false},

		// Selection rules are kept verbatim, including any commas.
		"Rule":          {"if 0x420057==0x00000002", FieldParameters{Rule: "if 0x420057==0x00000002"}, false},
		"RuleWithComma": {"if 0x420057 in [0x00000001, 0x00000002]", FieldParameters{Rule: "if 0x420057 in [0x00000001, 0x00000002]"}, false},

		"BadTag":    {"0x42", FieldParameters{}, true},
		"NoPrefix":  {"42006A", FieldParameters{}, true},
		"Garbage":   {"tag:5", FieldParameters{}, true},
		"SkipExtra": {"--", FieldParameters{}, true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseFieldParameters(tt.str)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFieldParameters(%q) error = %v, wantErr %t", tt.str, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFieldParameters(%q) = %+v, want %+v", tt.str, got, tt.want)
			}
		})
	}
}

func Test_structFields(t *testing.T) {
	type Marker struct{}
	type Embedded struct{ A, B int }
	type Inner struct {
		Embedded
		C int
	}
	tests := map[string]struct {
		value any
		want  []string
	}{
		"Simple": {struct{ A, B int }{}, []string{"A", "B"}},
		// Tag strings do not affect iteration; skipping is the caller's job.
		"Tagged": {struct {
			A int
			B int `ttlv:"-"`
			C string
		}{}, []string{"A", "B", "C"}},
		"Embedded": {
			struct {
				X string
				Embedded
			}{}, []string{"X", "A", "B"},
		},
		"EmbeddedFirst": {
			struct {
				Embedded
				Z string
			}{}, []string{"A", "B", "Z"},
		},
		"DeepEmbedded": {
			struct {
				Inner
				D int
			}{}, []string{"A", "B", "C", "D"},
		},
		"EmbeddedMarker": {
			struct {
				Marker
				A int
			}{}, []string{"A"},
		},
		"EmbeddedPointer": {
			struct {
				*Embedded
				A int
			}{}, []string{"Embedded", "A"},
		},
		"NonExported": {
			struct {
				a int
				B int
			}{}, []string{"B"},
		},
		"Empty": {struct{}{}, nil},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var got []string
			for _, sf := range StructFields(reflect.ValueOf(tt.value)) {
				got = append(got, sf.Name)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("structFields() = %v, want %v", got, tt.want)
			}
		})
	}
}
