package portproto

import (
	"testing"

	"github.com/chazu/vo/internal/slot"
)

func TestScalarRoundTrip(t *testing.T) {
	v, err := FromSlot(slot.KindInt64, 0, slot.Slot(42), nil)
	if err != nil {
		t.Fatalf("FromSlot: %v", err)
	}
	msg := &Message{Values: []Value{v}}

	data, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(got.Values) != 1 {
		t.Fatalf("expected 1 value, got %d", len(got.Values))
	}
	s, err := got.Values[0].ToSlot()
	if err != nil {
		t.Fatalf("ToSlot: %v", err)
	}
	if s != 42 {
		t.Errorf("round-tripped slot = %d, want 42", s)
	}
}

func TestStringRoundTrip(t *testing.T) {
	v, err := FromSlot(slot.KindString, 0, 0, []byte("hello island"))
	if err != nil {
		t.Fatalf("FromSlot: %v", err)
	}
	data, err := Marshal(&Message{Values: []Value{v}})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if string(got.Values[0].Bytes) != "hello island" {
		t.Errorf("Bytes = %q, want %q", got.Values[0].Bytes, "hello island")
	}
	if _, err := got.Values[0].ToSlot(); err == nil {
		t.Error("expected ToSlot to reject a KindString value")
	}
}

func TestFromSlotRejectsUnrepresentableRefKind(t *testing.T) {
	if _, err := FromSlot(slot.KindStruct, 1, 0, nil); err == nil {
		t.Error("expected FromSlot to reject KindStruct")
	}
}
