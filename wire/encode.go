package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"unicode/utf8"
)

// A Writer writes TTLV fields to an underlying [io.Writer]. Methods writing
// a complete value emit the type, length, value and padding fields in a
// single write; the caller writes the preceding tag via [Writer.WriteTag].
//
// The length of a Structure item is not known until its children have been
// written. Callers encode a Structure by writing its header with a
// placeholder length into a seekable buffer and patching the length
// afterwards.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) write(p []byte) error {
	if _, err := w.w.Write(p); err != nil {
		return &ioError{action: "write", err: err}
	}
	return nil
}

// WriteTag writes the 3-byte tag field that starts an item. Tags exceeding
// [MaxTag] cannot be represented on the wire and result in an error.
func (w *Writer) WriteTag(t Tag) error {
	if t > MaxTag {
		return fmt.Errorf("ttlv: tag %#x does not fit into %d bytes", uint32(t), TagLength)
	}
	return w.write([]byte{byte(t >> 16), byte(t >> 8), byte(t)})
}

// WriteType writes the type byte of an item.
func (w *Writer) WriteType(t Type) error {
	return w.write([]byte{byte(t)})
}

// WriteLength writes the 4-byte big-endian length field of an item.
func (w *Writer) WriteLength(n uint32) error {
	var buf [LengthLength]byte
	binary.BigEndian.PutUint32(buf[:], n)
	return w.write(buf[:])
}

// value writes the type, length, value and padding fields of a primitive
// item in a single write.
func (w *Writer) value(typ Type, val []byte) error {
	buf := make([]byte, 0, HeaderLength-TagLength+len(val)+7)
	buf = append(buf, byte(typ))
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(val)))
	buf = append(buf, val...)
	for range PadLength(len(val)) {
		buf = append(buf, 0)
	}
	return w.write(buf)
}

// WriteInteger writes the type, length and value of an Integer item.
func (w *Writer) WriteInteger(v int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	return w.value(TypeInteger, buf[:])
}

// WriteLongInteger writes the type, length and value of a LongInteger item.
func (w *Writer) WriteLongInteger(v int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return w.value(TypeLongInteger, buf[:])
}

// WriteBigInteger writes the type, length and value of a BigInteger item.
// The value is sign extended to a multiple of 8 bytes, so BigInteger items
// carry no padding beyond their value.
func (w *Writer) WriteBigInteger(v *big.Int) error {
	return w.value(TypeBigInteger, bigIntBytes(v))
}

// bigIntBytes returns the big-endian two's-complement form of v, sign
// extended to a multiple of 8 bytes. A nil v is treated as zero.
func bigIntBytes(v *big.Int) []byte {
	var b []byte
	fill := byte(0x00)
	switch {
	case v == nil || v.Sign() == 0:
		b = []byte{0}
	case v.Sign() < 0:
		// A negative number has to be converted to two's-complement form:
		// invert and subtract 1. If the most significant bit is not set, a
		// leading 0xFF keeps the number negative.
		n := new(big.Int).Neg(v)
		n.Sub(n, bigOne)
		b = n.Bytes()
		for i := range b {
			b[i] ^= 0xFF
		}
		if len(b) == 0 || b[0]&0x80 == 0 {
			b = append([]byte{0xFF}, b...)
		}
		fill = 0xFF
	default:
		b = v.Bytes()
		if b[0]&0x80 != 0 {
			// A leading zero byte keeps the number positive.
			b = append([]byte{0x00}, b...)
		}
	}
	if pad := PadLength(len(b)); pad > 0 {
		ext := make([]byte, pad, pad+len(b))
		for i := range ext {
			ext[i] = fill
		}
		b = append(ext, b...)
	}
	return b
}

// WriteEnumeration writes the type, length and value of an Enumeration item.
func (w *Writer) WriteEnumeration(v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return w.value(TypeEnumeration, buf[:])
}

// WriteBoolean writes the type, length and value of a Boolean item using the
// canonical 8-byte encoding.
func (w *Writer) WriteBoolean(v bool) error {
	var buf [8]byte
	if v {
		buf[7] = 1
	}
	return w.value(TypeBoolean, buf[:])
}

// WriteTextString writes the type, length and value of a TextString item.
// The value must be valid UTF-8.
func (w *Writer) WriteTextString(s string) error {
	if !utf8.ValidString(s) {
		return &ValueError{Type: TypeTextString, Reason: "invalid UTF-8"}
	}
	return w.value(TypeTextString, []byte(s))
}

// WriteByteString writes the type, length and value of a ByteString item.
func (w *Writer) WriteByteString(b []byte) error {
	return w.value(TypeByteString, b)
}

// WriteDateTime writes the type, length and value of a DateTime item. The
// value is the number of seconds since the POSIX epoch.
func (w *Writer) WriteDateTime(secs int64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(secs))
	return w.value(TypeDateTime, buf[:])
}
