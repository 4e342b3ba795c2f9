package wire

import (
	"encoding/binary"
	"io"
	"math/big"
	"unicode/utf8"
)

var bigOne = big.NewInt(1)

// A Reader reads TTLV fields from an underlying [io.Reader]. The Reader
// tracks its input offset and can enforce a read limit, allowing callers to
// bound the amount of data a single message may consume. Reads never buffer
// more than the requested field, so a Reader can be used on a network stream
// without consuming bytes beyond the current item.
//
// Methods reading a complete value consume the length field, the value bytes
// and the padding that aligns the next item. The contents of padding bytes
// are not verified.
type Reader struct {
	r      io.Reader
	off    int64
	lim    int64 // absolute offset that reads must not cross, 0 if unlimited
	budget int64 // the configured limit, for error reporting
}

// NewReader returns a Reader reading from r. If r is already a Reader it is
// returned unchanged.
func NewReader(r io.Reader) *Reader {
	if rr, ok := r.(*Reader); ok {
		return rr
	}
	return &Reader{r: r}
}

// SetLimit restricts the number of bytes that may be read to n, counted from
// the current input offset. A non-positive n removes the limit. Exceeding the
// limit results in a [LimitError]. The limit is checked before value bytes
// are buffered so that an adversarial length field cannot trigger large
// allocations.
func (r *Reader) SetLimit(n int64) {
	if n <= 0 {
		r.lim, r.budget = 0, 0
		return
	}
	r.lim, r.budget = r.off+n, n
}

// Limit returns the number of bytes that remain before the read limit is
// reached, or -1 if no limit is set.
func (r *Reader) Limit() int64 {
	if r.lim == 0 {
		return -1
	}
	return r.lim - r.off
}

// InputOffset returns the number of bytes read so far.
func (r *Reader) InputOffset() int64 {
	return r.off
}

// reserve checks that n more bytes can be read without exceeding the limit.
func (r *Reader) reserve(n int64) error {
	if r.lim > 0 && r.off+n > r.lim {
		return &LimitError{Limit: r.budget}
	}
	return nil
}

// Read implements [io.Reader]. Read returns a [LimitError] if reading
// len(p) bytes would exceed the read limit.
func (r *Reader) Read(p []byte) (int, error) {
	if err := r.reserve(int64(len(p))); err != nil {
		return 0, err
	}
	n, err := r.r.Read(p)
	r.off += int64(n)
	return n, err
}

// full reads exactly len(p) bytes, accounting them against the limit and the
// input offset. The returned error is not wrapped.
func (r *Reader) full(p []byte) error {
	if err := r.reserve(int64(len(p))); err != nil {
		return err
	}
	n, err := io.ReadFull(r.r, p)
	r.off += int64(n)
	return err
}

// wrap converts an error from the underlying reader into an ioError. Limit
// errors pass through unchanged. io.EOF becomes io.ErrUnexpectedEOF because
// wrap is only used where an item has already been partially read.
func (r *Reader) wrap(err error) error {
	if _, ok := err.(*LimitError); ok {
		return err
	}
	return &ioError{action: "read", err: noEOF(err)}
}

// ReadTag reads the 3-byte tag field that starts an item. If the input ends
// cleanly before the first tag byte, ReadTag returns [io.EOF].
func (r *Reader) ReadTag() (Tag, error) {
	var buf [TagLength]byte
	if err := r.full(buf[:]); err != nil {
		if err == io.EOF {
			return 0, io.EOF
		}
		return 0, r.wrap(err)
	}
	return Tag(uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2])), nil
}

// ReadType reads the type byte of an item. A type byte that does not
// identify any KMIP type results in an [InvalidTypeError]. The Interval type
// (0x0A) is defined by KMIP but has no representation in this module and
// results in an [UnsupportedTypeError].
func (r *Reader) ReadType() (Type, error) {
	var buf [1]byte
	if err := r.full(buf[:]); err != nil {
		return 0, r.wrap(err)
	}
	t := Type(buf[0])
	switch {
	case t >= TypeStructure && t <= TypeDateTime:
		return t, nil
	case buf[0] == 0x0A:
		return 0, &UnsupportedTypeError{Code: buf[0]}
	default:
		return 0, &InvalidTypeError{Code: buf[0]}
	}
}

// ReadLength reads the 4-byte big-endian length field of an item.
func (r *Reader) ReadLength() (uint32, error) {
	var buf [LengthLength]byte
	if err := r.full(buf[:]); err != nil {
		return 0, r.wrap(err)
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// fixed consumes the length and value fields of a fixed-size primitive
// including its padding. buf must hold size plus padding bytes.
func (r *Reader) fixed(typ Type, size uint32, buf []byte) error {
	l, err := r.ReadLength()
	if err != nil {
		return err
	}
	if l != size {
		return &LengthError{Type: typ, Expected: size, Actual: l}
	}
	if err := r.full(buf); err != nil {
		return r.wrap(err)
	}
	return nil
}

// bytes consumes l value bytes plus padding, returning the value bytes.
func (r *Reader) bytes(l uint32) ([]byte, error) {
	total := int64(l) + int64(PadLength(int(l)))
	if err := r.reserve(total); err != nil {
		return nil, err
	}
	buf := make([]byte, total)
	if err := r.full(buf); err != nil {
		return nil, r.wrap(err)
	}
	return buf[:l:l], nil
}

// ReadInteger reads the length and value of an Integer item.
func (r *Reader) ReadInteger() (int32, error) {
	var buf [8]byte
	if err := r.fixed(TypeInteger, 4, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:4])), nil
}

// ReadLongInteger reads the length and value of a LongInteger item.
func (r *Reader) ReadLongInteger() (int64, error) {
	var buf [8]byte
	if err := r.fixed(TypeLongInteger, 8, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

// ReadBigInteger reads the length and value of a BigInteger item. The value
// is a big-endian two's-complement integer whose length is a multiple of 8.
func (r *Reader) ReadBigInteger() (*big.Int, error) {
	l, err := r.ReadLength()
	if err != nil {
		return nil, err
	}
	if l == 0 {
		return nil, &ValueError{Type: TypeBigInteger, Reason: "empty value"}
	}
	b, err := r.bytes(l)
	if err != nil {
		return nil, err
	}
	n := new(big.Int)
	if b[0]&0x80 != 0 {
		// A negative number is in two's-complement form. Undo the complement
		// by inverting and adding 1, then negate.
		for i := range b {
			b[i] = ^b[i]
		}
		n.SetBytes(b)
		n.Add(n, bigOne)
		n.Neg(n)
	} else {
		n.SetBytes(b)
	}
	return n, nil
}

// ReadEnumeration reads the length and value of an Enumeration item.
func (r *Reader) ReadEnumeration() (uint32, error) {
	var buf [8]byte
	if err := r.fixed(TypeEnumeration, 4, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:4]), nil
}

// ReadBoolean reads the length and value of a Boolean item. Only the two
// canonical encodings are accepted: eight zero bytes for false and seven
// zero bytes followed by 0x01 for true.
func (r *Reader) ReadBoolean() (bool, error) {
	var buf [8]byte
	if err := r.fixed(TypeBoolean, 8, buf[:]); err != nil {
		return false, err
	}
	for _, b := range buf[:7] {
		if b != 0 {
			return false, &ValueError{Type: TypeBoolean, Reason: "not a canonical boolean"}
		}
	}
	switch buf[7] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, &ValueError{Type: TypeBoolean, Reason: "not a canonical boolean"}
}

// ReadTextString reads the length and value of a TextString item. The value
// must be valid UTF-8.
func (r *Reader) ReadTextString() (string, error) {
	l, err := r.ReadLength()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(l)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", &ValueError{Type: TypeTextString, Reason: "invalid UTF-8"}
	}
	return string(b), nil
}

// ReadByteString reads the length and value of a ByteString item.
func (r *Reader) ReadByteString() ([]byte, error) {
	l, err := r.ReadLength()
	if err != nil {
		return nil, err
	}
	return r.bytes(l)
}

// ReadDateTime reads the length and value of a DateTime item. The value is
// the number of seconds since the POSIX epoch.
func (r *Reader) ReadDateTime() (int64, error) {
	var buf [8]byte
	if err := r.fixed(TypeDateTime, 8, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}
