// Copyright 2025 Kim Wittenburg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ttlv

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/NLnetLabs/kmip-ttlv/wire"
)

// A PrettyPrinter renders raw TTLV bytes as an indented, human-readable
// tree. It works on the syntactic layer alone and does not need the Go
// types a message maps to, which makes it usable on any captured exchange.
//
// The zero value indents nested items by two spaces and annotates no tags.
type PrettyPrinter struct {
	// Indent is prepended once per nesting level. An empty Indent means
	// two spaces.
	Indent string

	// TagNames annotates known tags with a human-readable name.
	TagNames map[wire.Tag]string
}

// ToString renders data as an indented tree including all decoded values.
func (p PrettyPrinter) ToString(data []byte) string {
	return p.print(data, false)
}

// ToDiagString renders data as an indented tree with primitive values
// replaced by their byte lengths. Enumerations keep their value: they
// select among well-known constants and identify operations, which is what
// a diagnostic dump is for. The result is safe to log even when the input
// carries key material.
func (p PrettyPrinter) ToDiagString(data []byte) string {
	return p.print(data, true)
}

// print renders all top-level items in data. Rendering is best-effort: on
// malformed input it stops after the last well-formed item and appends the
// error.
func (p PrettyPrinter) print(data []byte, redact bool) string {
	st := &printState{p: p, r: wire.NewReader(bytes.NewReader(data)), redact: redact}
	for {
		err := st.item(0)
		if err == io.EOF {
			return st.b.String()
		}
		if err != nil {
			fmt.Fprintf(&st.b, "!! %v\n", err)
			return st.b.String()
		}
	}
}

type printState struct {
	p      PrettyPrinter
	r      *wire.Reader
	b      strings.Builder
	redact bool
}

func (st *printState) indent(depth int) {
	in := st.p.Indent
	if in == "" {
		in = "  "
	}
	for range depth {
		st.b.WriteString(in)
	}
}

func (st *printState) item(depth int) error {
	tag, err := st.r.ReadTag()
	if err != nil {
		// io.EOF at a clean item boundary ends the walk.
		return err
	}
	st.indent(depth)
	fmt.Fprintf(&st.b, "Tag: %v", tag)
	if name, ok := st.p.TagNames[tag]; ok {
		fmt.Fprintf(&st.b, " (%s)", name)
	}
	typ, err := st.r.ReadType()
	if err != nil {
		st.b.WriteByte('\n')
		return err
	}
	fmt.Fprintf(&st.b, ", Type: %v, Data:", typ)
	if typ == wire.TypeStructure {
		st.b.WriteByte('\n')
		return st.structure(depth + 1)
	}
	s, err := st.value(typ)
	if err != nil {
		st.b.WriteByte('\n')
		return err
	}
	fmt.Fprintf(&st.b, " %s\n", s)
	return nil
}

func (st *printState) structure(depth int) error {
	length, err := st.r.ReadLength()
	if err != nil {
		return err
	}
	end := st.r.InputOffset() + int64(length)
	for st.r.InputOffset() < end {
		if err := st.item(depth); err != nil {
			if err == io.EOF {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	if off := st.r.InputOffset(); off > end {
		return &StructureLengthError{Declared: length, Consumed: off - (end - int64(length))}
	}
	return nil
}

func (st *printState) value(typ wire.Type) (string, error) {
	if st.redact && typ != wire.TypeEnumeration {
		return st.redacted()
	}
	switch typ {
	case wire.TypeInteger:
		n, err := st.r.ReadInteger()
		if err != nil {
			return "", err
		}
		return strconv.Itoa(int(n)), nil
	case wire.TypeLongInteger:
		n, err := st.r.ReadLongInteger()
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil
	case wire.TypeBigInteger:
		n, err := st.r.ReadBigInteger()
		if err != nil {
			return "", err
		}
		return n.String(), nil
	case wire.TypeEnumeration:
		n, err := st.r.ReadEnumeration()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("0x%08X", n), nil
	case wire.TypeBoolean:
		b, err := st.r.ReadBoolean()
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	case wire.TypeTextString:
		s, err := st.r.ReadTextString()
		if err != nil {
			return "", err
		}
		return strconv.Quote(s), nil
	case wire.TypeByteString:
		b, err := st.r.ReadByteString()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%X", b), nil
	case wire.TypeDateTime:
		secs, err := st.r.ReadDateTime()
		if err != nil {
			return "", err
		}
		return time.Unix(secs, 0).UTC().Format(time.RFC3339), nil
	}
	// ReadType only produces the types above.
	return "", &wire.InvalidTypeError{Code: byte(typ)}
}

// redacted consumes a primitive value and renders only its length.
func (st *printState) redacted() (string, error) {
	length, err := st.r.ReadLength()
	if err != nil {
		return "", err
	}
	total := int64(length) + int64(wire.PadLength(int(length)))
	if _, err := io.CopyN(io.Discard, st.r, total); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	if length == 1 {
		return "(1 byte)", nil
	}
	return fmt.Sprintf("(%d bytes)", length), nil
}
