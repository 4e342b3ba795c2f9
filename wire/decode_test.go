package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/big"
	"reflect"
	"testing"
)

// testDataReader implements an [io.Reader] for testing the [Reader] type. It
// reads data from a slice. The slice can contain values of types byte, int,
// and error. The Read method produces the provided bytes (or ints converted
// to bytes) and errors in the provided order.
type testDataReader struct {
	data []any
}

// Read implements [io.Reader] by producing bytes and errors from r.data.
func (r *testDataReader) Read(p []byte) (n int, err error) {
	for n < len(p) && len(r.data) > 0 && err == nil {
		switch v := r.data[0].(type) {
		case byte:
			p[n] = v
			n++
		case int:
			p[n] = byte(v)
			n++
		case error:
			err = v
		default:
			panic(fmt.Sprintf("invalid data value: %v", v))
		}
		r.data = r.data[1:]
	}
	if len(r.data) == 0 && err == nil {
		err = io.EOF
	}
	return n, err
}

// readTest describes a single call to one of the Reader's value methods. The
// data begins at the length field of an item; the preceding tag and type
// fields are consumed separately. Reading should produce want, or an error
// matching wantErr.
type readTest[T any] struct {
	data    []byte
	want    T
	wantErr error
}

// testRead runs each test case against read. Successful reads must consume
// the input completely, including padding.
func testRead[T any](t *testing.T, read func(*Reader) (T, error), tests map[string]readTest[T]) {
	t.Helper()
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := NewReader(bytes.NewReader(tc.data))
			got, err := read(r)
			if tc.wantErr != nil {
				if errors.Is(err, tc.wantErr) {
					return
				}
				errTarget := reflect.New(reflect.TypeOf(tc.wantErr))
				//goland:noinspection GoErrorsAs
				if !errors.As(err, errTarget.Interface()) {
					t.Fatalf("Read error = %v, wantErr = %v", err, tc.wantErr)
				}
				if !reflect.DeepEqual(errTarget.Elem().Interface(), tc.wantErr) {
					t.Errorf("Read error = %v, wantErr = %v", err, tc.wantErr)
				}
				return
			} else if err != nil {
				t.Fatalf("Read error = %q, wantErr = nil", err)
			}
			// special case for *big.Int because reflect.DeepEqual reports false negatives
			if i1, ok := any(tc.want).(*big.Int); ok {
				if i2, ok := any(got).(*big.Int); !ok || i1.Cmp(i2) != 0 {
					t.Errorf("Read = %v, want %v", got, tc.want)
				}
			} else if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Read = %v, want %v", got, tc.want)
			}
			if off := r.InputOffset(); off != int64(len(tc.data)) {
				t.Errorf("InputOffset() = %d, want %d", off, len(tc.data))
			}
		})
	}
}

func TestReader_ReadTag(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x42, 0x00, 0x7B, 0x54, 0x00, 0x35}))
	for i, want := range []Tag{0x42007B, 0x540035} {
		got, err := r.ReadTag()
		if err != nil {
			t.Fatalf("ReadTag() [%d] returned an unexpected error: %q", i, err)
		}
		if got != want {
			t.Errorf("ReadTag() [%d] = %v, want %v", i, got, want)
		}
	}
	// A clean end of input must surface as a bare io.EOF.
	//goland:noinspection GoDirectComparisonOfErrors
	if _, err := r.ReadTag(); err != io.EOF {
		t.Errorf("ReadTag() at end of input = %v, want io.EOF", err)
	}

	t.Run("Truncated", func(t *testing.T) {
		r := NewReader(bytes.NewReader([]byte{0x42}))
		_, err := r.ReadTag()
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("ReadTag() = %v, want io.ErrUnexpectedEOF", err)
		}
		//goland:noinspection GoDirectComparisonOfErrors
		if err == io.ErrUnexpectedEOF {
			t.Errorf("ReadTag() returned an unwrapped io.ErrUnexpectedEOF")
		}
	})
}

func TestReader_ReadType(t *testing.T) {
	tests := map[string]struct {
		code    byte
		want    Type
		wantErr error
	}{
		"Structure":   {0x01, TypeStructure, nil},
		"Integer":     {0x02, TypeInteger, nil},
		"LongInteger": {0x03, TypeLongInteger, nil},
		"BigInteger":  {0x04, TypeBigInteger, nil},
		"Enumeration": {0x05, TypeEnumeration, nil},
		"Boolean":     {0x06, TypeBoolean, nil},
		"TextString":  {0x07, TypeTextString, nil},
		"ByteString":  {0x08, TypeByteString, nil},
		"DateTime":    {0x09, TypeDateTime, nil},

		"Interval": {0x0A, 0, &UnsupportedTypeError{Code: 0x0A}},
		"Unknown":  {0x0B, 0, &InvalidTypeError{Code: 0x0B}},
		"Zero":     {0x00, 0, &InvalidTypeError{Code: 0x00}},
		"High":     {0xFF, 0, &InvalidTypeError{Code: 0xFF}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := NewReader(bytes.NewReader([]byte{tc.code}))
			got, err := r.ReadType()
			if tc.wantErr != nil {
				errTarget := reflect.New(reflect.TypeOf(tc.wantErr))
				//goland:noinspection GoErrorsAs
				if !errors.As(err, errTarget.Interface()) {
					t.Fatalf("ReadType() error = %v, wantErr = %v", err, tc.wantErr)
				}
				if !reflect.DeepEqual(errTarget.Elem().Interface(), tc.wantErr) {
					t.Errorf("ReadType() error = %v, wantErr = %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadType() returned an unexpected error: %q", err)
			}
			if got != tc.want {
				t.Errorf("ReadType() = %v, want %v", got, tc.want)
			}
		})
	}

	t.Run("Truncated", func(t *testing.T) {
		r := NewReader(bytes.NewReader(nil))
		if _, err := r.ReadType(); !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("ReadType() = %v, want io.ErrUnexpectedEOF", err)
		}
	})
}

func TestReader_ReadLength(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0x00, 0x00, 0x00, 0x20, 0xFF, 0xFF, 0xFF, 0xFF}))
	for i, want := range []uint32{0x20, math.MaxUint32} {
		got, err := r.ReadLength()
		if err != nil {
			t.Fatalf("ReadLength() [%d] returned an unexpected error: %q", i, err)
		}
		if got != want {
			t.Errorf("ReadLength() [%d] = %d, want %d", i, got, want)
		}
	}

	t.Run("Truncated", func(t *testing.T) {
		r := NewReader(bytes.NewReader([]byte{0x00, 0x00}))
		if _, err := r.ReadLength(); !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("ReadLength() = %v, want io.ErrUnexpectedEOF", err)
		}
	})
}

func TestReader_ReadInteger(t *testing.T) {
	testRead(t, (*Reader).ReadInteger, map[string]readTest[int32]{
		"Positive": {[]byte{0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00}, 8, nil},
		"Negative": {[]byte{0x00, 0x00, 0x00, 0x04, 0xFF, 0xFF, 0xFF, 0xF8, 0x00, 0x00, 0x00, 0x00}, -8, nil},
		"Min":      {[]byte{0x00, 0x00, 0x00, 0x04, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, math.MinInt32, nil},
		"Max":      {[]byte{0x00, 0x00, 0x00, 0x04, 0x7F, 0xFF, 0xFF, 0xFF, 0x00, 0x00, 0x00, 0x00}, math.MaxInt32, nil},

		"BadLength":      {[]byte{0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00}, 0, &LengthError{Type: TypeInteger, Expected: 4, Actual: 8}},
		"Truncated":      {[]byte{0x00, 0x00, 0x00, 0x04, 0x00, 0x00}, 0, io.ErrUnexpectedEOF},
		"MissingPadding": {[]byte{0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x08}, 0, io.ErrUnexpectedEOF},
		"Empty":          {[]byte{}, 0, io.ErrUnexpectedEOF},
	})
}

func TestReader_ReadLongInteger(t *testing.T) {
	testRead(t, (*Reader).ReadLongInteger, map[string]readTest[int64]{
		"Positive": {[]byte{0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00}, 256, nil},
		"Negative": {[]byte{0x00, 0x00, 0x00, 0x08, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}, -256, nil},
		"Max":      {[]byte{0x00, 0x00, 0x00, 0x08, 0x7F, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, math.MaxInt64, nil},

		"BadLength": {[]byte{0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, 0, &LengthError{Type: TypeLongInteger, Expected: 8, Actual: 4}},
		"Truncated": {[]byte{0x00, 0x00, 0x00, 0x08, 0x01, 0x02}, 0, io.ErrUnexpectedEOF},
	})
}

func TestReader_ReadBigInteger(t *testing.T) {
	testRead(t, (*Reader).ReadBigInteger, map[string]readTest[*big.Int]{
		"Positive": {[]byte{0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x04, 0xD2}, big.NewInt(1234), nil},
		"Negative": {[]byte{0x00, 0x00, 0x00, 0x08, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFB, 0x2E}, big.NewInt(-1234), nil},
		"MinusOne": {[]byte{0x00, 0x00, 0x00, 0x08, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, big.NewInt(-1), nil},
		"MinByte":  {[]byte{0x00, 0x00, 0x00, 0x08, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x80}, big.NewInt(-128), nil},
		"Zero":     {[]byte{0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, big.NewInt(0), nil},
		"Wide": {[]byte{
			0x00, 0x00, 0x00, 0x10,
			0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01,
			0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		}, new(big.Int).Lsh(big.NewInt(1), 64), nil},

		"Empty":     {[]byte{0x00, 0x00, 0x00, 0x00}, nil, &ValueError{Type: TypeBigInteger, Reason: "empty value"}},
		"Truncated": {[]byte{0x00, 0x00, 0x00, 0x08, 0x01, 0x02, 0x03, 0x04}, nil, io.ErrUnexpectedEOF},
	})
}

func TestReader_ReadEnumeration(t *testing.T) {
	testRead(t, (*Reader).ReadEnumeration, map[string]readTest[uint32]{
		"Simple":  {[]byte{0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0xFF, 0x00, 0x00, 0x00, 0x00}, 0xFF, nil},
		"HighBit": {[]byte{0x00, 0x00, 0x00, 0x04, 0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x00, 0x00, 0x00}, 0xDEADBEEF, nil},

		"BadLength": {[]byte{0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, 0, &LengthError{Type: TypeEnumeration, Expected: 4, Actual: 8}},
	})
}

func TestReader_ReadBoolean(t *testing.T) {
	testRead(t, (*Reader).ReadBoolean, map[string]readTest[bool]{
		"True":  {[]byte{0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01}, true, nil},
		"False": {[]byte{0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, false, nil},

		"BadTrailing": {[]byte{0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02}, false, &ValueError{Type: TypeBoolean, Reason: "not a canonical boolean"}},
		"BadLeading":  {[]byte{0x00, 0x00, 0x00, 0x08, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01}, false, &ValueError{Type: TypeBoolean, Reason: "not a canonical boolean"}},
		"AllOnes":     {[]byte{0x00, 0x00, 0x00, 0x08, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, false, &ValueError{Type: TypeBoolean, Reason: "not a canonical boolean"}},
		"BadLength":   {[]byte{0x00, 0x00, 0x00, 0x01, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, false, &LengthError{Type: TypeBoolean, Expected: 8, Actual: 1}},
	})
}

func TestReader_ReadTextString(t *testing.T) {
	testRead(t, (*Reader).ReadTextString, map[string]readTest[string]{
		"HelloWorld": {[]byte{
			0x00, 0x00, 0x00, 0x0B,
			0x48, 0x65, 0x6C, 0x6C, 0x6F, 0x20, 0x57, 0x6F, 0x72, 0x6C, 0x64,
			0x00, 0x00, 0x00, 0x00, 0x00,
		}, "Hello World", nil},
		"Empty":   {[]byte{0x00, 0x00, 0x00, 0x00}, "", nil},
		"Aligned": {[]byte{0x00, 0x00, 0x00, 0x08, 0x31, 0x32, 0x33, 0x34, 0x35, 0x36, 0x37, 0x38}, "12345678", nil},
		"Unicode": {[]byte{0x00, 0x00, 0x00, 0x06, 0x68, 0xC3, 0xA9, 0x6C, 0x6C, 0x6F, 0x00, 0x00}, "héllo", nil},

		"InvalidUTF8":    {[]byte{0x00, 0x00, 0x00, 0x02, 0xFF, 0xFE, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, "", &ValueError{Type: TypeTextString, Reason: "invalid UTF-8"}},
		"MissingPadding": {[]byte{0x00, 0x00, 0x00, 0x02, 0x68, 0x69}, "", io.ErrUnexpectedEOF},
	})
}

func TestReader_ReadByteString(t *testing.T) {
	testRead(t, (*Reader).ReadByteString, map[string]readTest[[]byte]{
		"Simple":  {[]byte{0x00, 0x00, 0x00, 0x03, 0x01, 0xFF, 0xFE, 0x00, 0x00, 0x00, 0x00, 0x00}, []byte{0x01, 0xFF, 0xFE}, nil},
		"Empty":   {[]byte{0x00, 0x00, 0x00, 0x00}, []byte{}, nil},
		"Aligned": {[]byte{0x00, 0x00, 0x00, 0x08, 1, 2, 3, 4, 5, 6, 7, 8}, []byte{1, 2, 3, 4, 5, 6, 7, 8}, nil},

		"Truncated": {[]byte{0x00, 0x00, 0x00, 0x03, 0x01, 0x02}, nil, io.ErrUnexpectedEOF},
	})
}

func TestReader_ReadDateTime(t *testing.T) {
	testRead(t, (*Reader).ReadDateTime, map[string]readTest[int64]{
		"Epoch":    {[]byte{0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, 0, nil},
		"Example":  {[]byte{0x00, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00, 0x47, 0xDA, 0x67, 0xF8}, 0x47DA67F8, nil},
		"PreEpoch": {[]byte{0x00, 0x00, 0x00, 0x08, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, -1, nil},

		"BadLength": {[]byte{0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, 0, &LengthError{Type: TypeDateTime, Expected: 8, Actual: 4}},
	})
}

// TestReader_Structure walks a complete Structure item field by field. The
// message is the example from the KMIP 1.0 specification, section 9.1.2: a
// Structure containing an Enumeration and an Integer.
func TestReader_Structure(t *testing.T) {
	data := []byte{
		0x42, 0x00, 0x20, 0x01, 0x00, 0x00, 0x00, 0x20,
		0x42, 0x00, 0x04, 0x05, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0xFF, 0x00, 0x00, 0x00, 0x00,
		0x42, 0x00, 0x05, 0x02, 0x00, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0xFF, 0x00, 0x00, 0x00, 0x00,
	}
	r := NewReader(bytes.NewReader(data))

	expectHeader := func(wantTag Tag, wantType Type) {
		t.Helper()
		tag, err := r.ReadTag()
		if err != nil {
			t.Fatalf("ReadTag() returned an unexpected error: %q", err)
		}
		if tag != wantTag {
			t.Errorf("ReadTag() = %v, want %v", tag, wantTag)
		}
		typ, err := r.ReadType()
		if err != nil {
			t.Fatalf("ReadType() returned an unexpected error: %q", err)
		}
		if typ != wantType {
			t.Errorf("ReadType() = %v, want %v", typ, wantType)
		}
	}

	expectHeader(0x420020, TypeStructure)
	length, err := r.ReadLength()
	if err != nil {
		t.Fatalf("ReadLength() returned an unexpected error: %q", err)
	}
	if length != 0x20 {
		t.Errorf("ReadLength() = %d, want %d", length, 0x20)
	}
	end := r.InputOffset() + int64(length)

	expectHeader(0x420004, TypeEnumeration)
	if v, err := r.ReadEnumeration(); err != nil || v != 0xFF {
		t.Errorf("ReadEnumeration() = %d, %v, want 255, nil", v, err)
	}
	expectHeader(0x420005, TypeInteger)
	if v, err := r.ReadInteger(); err != nil || v != 0xFF {
		t.Errorf("ReadInteger() = %d, %v, want 255, nil", v, err)
	}

	if r.InputOffset() != end {
		t.Errorf("InputOffset() = %d, want %d", r.InputOffset(), end)
	}
	//goland:noinspection GoDirectComparisonOfErrors
	if _, err := r.ReadTag(); err != io.EOF {
		t.Errorf("ReadTag() at end of input = %v, want io.EOF", err)
	}
}

func TestReader_SetLimit(t *testing.T) {
	t.Run("RejectsBeforeBuffering", func(t *testing.T) {
		// The length field announces 2 GiB but only the length bytes exist.
		// The limit must trip before value bytes are buffered; reaching for
		// the value would fail with an unexpected EOF instead.
		r := NewReader(bytes.NewReader([]byte{0x7F, 0xFF, 0xFF, 0xFF}))
		r.SetLimit(1024)
		_, err := r.ReadByteString()
		var limitErr *LimitError
		if !errors.As(err, &limitErr) {
			t.Fatalf("ReadByteString() error = %v, want a LimitError", err)
		}
		if limitErr.Limit != 1024 {
			t.Errorf("LimitError.Limit = %d, want 1024", limitErr.Limit)
		}
	})

	t.Run("CountsFromOffset", func(t *testing.T) {
		data := []byte{
			0x42, 0x00, 0x28, 0x02, 0x00, 0x00, 0x00, 0x04,
			0x00, 0x00, 0x00, 0x07, 0x00, 0x00, 0x00, 0x00,
		}
		r := NewReader(bytes.NewReader(data))
		if _, err := r.ReadTag(); err != nil {
			t.Fatalf("ReadTag() returned an unexpected error: %q", err)
		}
		r.SetLimit(13) // exactly the remainder of the item
		if got := r.Limit(); got != 13 {
			t.Errorf("Limit() = %d, want 13", got)
		}
		if _, err := r.ReadType(); err != nil {
			t.Fatalf("ReadType() returned an unexpected error: %q", err)
		}
		if got := r.Limit(); got != 12 {
			t.Errorf("Limit() = %d, want 12", got)
		}
		if v, err := r.ReadInteger(); err != nil || v != 7 {
			t.Fatalf("ReadInteger() = %d, %v, want 7, nil", v, err)
		}
		// The next read crosses the limit, even before touching the input.
		var limitErr *LimitError
		if _, err := r.Read(make([]byte, 1)); !errors.As(err, &limitErr) {
			t.Fatalf("Read() error = %v, want a LimitError", err)
		}
		if limitErr.Limit != 13 {
			t.Errorf("LimitError.Limit = %d, want 13", limitErr.Limit)
		}
	})

	t.Run("Unlimited", func(t *testing.T) {
		r := NewReader(bytes.NewReader(make([]byte, 16)))
		if got := r.Limit(); got != -1 {
			t.Errorf("Limit() = %d, want -1", got)
		}
		r.SetLimit(5)
		if got := r.Limit(); got != 5 {
			t.Errorf("Limit() = %d, want 5", got)
		}
		r.SetLimit(0)
		if got := r.Limit(); got != -1 {
			t.Errorf("Limit() = %d, want -1", got)
		}
		if _, err := r.ReadTag(); err != nil {
			t.Errorf("ReadTag() after removing the limit = %v, want nil", err)
		}
	})
}

func TestReader_Read(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{1, 2, 3}))
	p := make([]byte, 2)
	n, err := r.Read(p)
	if n != 2 || err != nil {
		t.Fatalf("Read() = %d, %v, want 2, nil", n, err)
	}
	if !bytes.Equal(p, []byte{1, 2}) {
		t.Errorf("Read() read %# x, want %# x", p, []byte{1, 2})
	}
	if off := r.InputOffset(); off != 2 {
		t.Errorf("InputOffset() = %d, want 2", off)
	}
}

func TestNewReader(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	if r2 := NewReader(r); r2 != r {
		t.Errorf("NewReader(r) = %p, want the same reader %p", r2, r)
	}
}

func TestReader_Errors(t *testing.T) {
	errTransient := errors.New("transient error")
	r := NewReader(&testDataReader{[]any{0x42, 0x00, errTransient}})
	_, err := r.ReadTag()
	if !errors.Is(err, errTransient) {
		t.Fatalf("ReadTag() = %v, want the underlying reader error", err)
	}
	if got, want := err.Error(), "read error: transient error"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
