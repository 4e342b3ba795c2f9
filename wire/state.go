package wire

//go:generate stringer -type=Mode
//go:generate stringer -type=FieldKind -trimprefix=Field

// Mode selects the direction a [StateMachine] validates.
type Mode int

const (
	Decoding Mode = iota
	Encoding
)

// FieldKind identifies a TTLV field, or a combination of consecutive fields,
// observed during a traversal.
type FieldKind int

const (
	FieldTag FieldKind = iota
	FieldType
	FieldLength
	FieldValue
	// FieldLengthValue is a combined length and value field. It is only valid
	// when decoding, where primitive values are consumed in a single read.
	FieldLengthValue
	// FieldTypeLengthValue is a combined type, length and value field. It is
	// only valid when encoding, where primitive values are written in a single
	// buffer.
	FieldTypeLengthValue
)

// A StateMachine validates the field order of a single TTLV traversal. Fields
// are reported to the state machine via [StateMachine.Advance] as they are
// read or written. The state machine tracks which field must come next and
// rejects out-of-order sequences.
//
// A StateMachine covers one nesting level. Callers descending into a
// Structure value use a fresh StateMachine for the children and resume the
// outer one afterwards.
//
// The zero StateMachine is valid and behaves like NewStateMachine(Decoding).
type StateMachine struct {
	mode      Mode
	expect    FieldKind
	ignoreTag bool
}

// NewStateMachine returns a StateMachine validating a traversal in the given
// mode, expecting a tag field first.
func NewStateMachine(mode Mode) StateMachine {
	return StateMachine{mode: mode}
}

// Advance reports the next observed field to the state machine. It returns an
// [UnexpectedFieldError] if observed is not valid in the current state.
//
// The returned boolean reports whether the caller should emit the observed
// field. It is always true when decoding. When encoding it is false if the
// field was absorbed by a pending [StateMachine.IgnoreNextTag], in which case
// the tag must not be written again.
func (m *StateMachine) Advance(observed FieldKind) (bool, error) {
	prev := m.expect
	switch {
	case m.expect == FieldTag && observed == FieldTag:
		m.expect = FieldType
	case m.expect == FieldType && observed == FieldType:
		m.expect = FieldLength
	case m.expect == FieldType && observed == FieldTypeLengthValue && m.mode == Encoding:
		m.expect = FieldTag
	case m.expect == FieldType && observed == FieldTag && m.mode == Encoding && m.ignoreTag:
		// A tag was already written for this item. Absorb the duplicate.
		m.ignoreTag = false
	case m.expect == FieldLength && observed == FieldLength:
		m.expect = FieldValue
	case m.expect == FieldLength && observed == FieldLengthValue && m.mode == Decoding:
		m.expect = FieldTag
	case m.expect == FieldValue && observed == FieldValue:
		m.expect = FieldTag
	case m.expect == FieldValue && observed == FieldTag:
		m.expect = FieldType
	default:
		return false, &UnexpectedFieldError{Expected: m.expect, Actual: observed}
	}
	return m.mode == Decoding || m.expect != prev, nil
}

// IgnoreNextTag arms the state machine to absorb the next tag field without
// advancing, provided a tag field has already been reported for the current
// item. This supports encoding wrapper values that resolve to a single wire
// item: the wrapper writes the tag, the wrapped value reports it again.
//
// IgnoreNextTag returns [ErrNotEncoding] if m is not in [Encoding] mode.
func (m *StateMachine) IgnoreNextTag() error {
	if m.mode != Encoding {
		return ErrNotEncoding
	}
	m.ignoreTag = true
	return nil
}

// Reset returns the state machine to its initial state, expecting a tag
// field. The mode is retained.
func (m *StateMachine) Reset() {
	m.expect = FieldTag
	m.ignoreTag = false
}
