// Package portproto is the wire codec for spec.md §1's noted future
// extension: multi-island concurrency, where a Vo program spans more
// than one process/heap and fibers exchange values across the boundary
// through "ports" that deep-copy rather than share memory. This package
// implements the codec only — the value representation an island sends
// and the other decodes — not a scheduler or transport; per DESIGN.md's
// Open Question 2, internal/fiber remains single-heap and nothing in
// this module currently calls Marshal/Unmarshal outside its own tests.
//
// Grounded on the teacher's vm/dist/wire.go: a package-level canonical
// CBOR EncMode built once in init, and one Marshal/Unmarshal pair per
// wire type, via github.com/fxamacker/cbor/v2.
package portproto

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/vo/internal/slot"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("portproto: failed to build CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Value is one deep-copied slot crossing a port. Primitive kinds carry
// their bit pattern directly in Word; KindString carries its bytes
// inline (a string is immutable, so a copy is a value copy, unlike
// every other reference kind). Reference kinds beyond string (slice,
// map, struct, ...) are not representable by this codec yet — sending
// one is a caller error, not a silent truncation, since no multi-heap
// scheduler exists in this module to define what "the same struct on
// the other island" would even mean.
type Value struct {
	Kind slot.ValueKind `cbor:"k"`
	MetaID slot.MetaID  `cbor:"m,omitempty"`
	Word   uint64        `cbor:"w,omitempty"`
	Bytes  []byte        `cbor:"b,omitempty"`
}

// FromSlot captures a single (kind, value) pair as a portable Value.
// meta is the value's MetaID when kind needs one (KindString does not).
func FromSlot(kind slot.ValueKind, meta slot.MetaID, s slot.Slot, str []byte) (Value, error) {
	switch {
	case kind == slot.KindString:
		return Value{Kind: kind, Bytes: append([]byte(nil), str...)}, nil
	case slot.NeedsGC(kind):
		return Value{}, fmt.Errorf("portproto: kind %s cannot be deep-copied by this codec", kind)
	default:
		return Value{Kind: kind, MetaID: meta, Word: uint64(s)}, nil
	}
}

// ToSlot reconstructs the Slot half of a scalar Value. Callers holding a
// KindString Value must instead allocate the string on the receiving
// island's own heap from Bytes (this codec has no heap of its own to
// allocate into).
func (v Value) ToSlot() (slot.Slot, error) {
	if v.Kind == slot.KindString {
		return 0, fmt.Errorf("portproto: KindString has no scalar slot representation, use Bytes")
	}
	if slot.NeedsGC(v.Kind) {
		return 0, fmt.Errorf("portproto: kind %s cannot be decoded by this codec", v.Kind)
	}
	return slot.Slot(v.Word), nil
}

// Message is one port send: an ordered tuple of Values, mirroring a Vo
// function call's argument or return-value window.
type Message struct {
	Values []Value `cbor:"v"`
}

// Marshal serializes m to canonical CBOR bytes.
func Marshal(m *Message) ([]byte, error) {
	b, err := cborEncMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("portproto: marshal message: %w", err)
	}
	return b, nil
}

// Unmarshal deserializes a Message from CBOR bytes produced by Marshal.
func Unmarshal(data []byte) (*Message, error) {
	var m Message
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("portproto: unmarshal message: %w", err)
	}
	return &m, nil
}
