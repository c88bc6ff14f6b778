package objmodel

import (
	"testing"

	"github.com/chazu/vo/internal/slot"
)

func TestNewStructZeroInitialized(t *testing.T) {
	h := NewHeap()
	h.Types = &fakeTypes{widths: map[slot.MetaID][]slot.SlotType{
		slot.FirstUserStruct: {slot.TypeValue, slot.TypeValue, slot.TypeGcRef},
	}}
	ref, err := h.NewStruct(slot.FirstUserStruct)
	if err != nil {
		t.Fatal(err)
	}
	st, _ := h.Struct(ref)
	if len(st.Slots) != 3 {
		t.Errorf("len(Slots) = %d, want 3", len(st.Slots))
	}
	for i, s := range st.Slots {
		if s != 0 {
			t.Errorf("Slots[%d] = %v, want zero", i, s)
		}
	}
}

func TestNewStructUnknownMetaID(t *testing.T) {
	h := NewHeap()
	h.Types = &fakeTypes{widths: map[slot.MetaID][]slot.SlotType{}}
	if _, err := h.NewStruct(slot.FirstUserStruct); err == nil {
		t.Error("expected error for unregistered meta_id")
	}
}

func TestFieldSlotGetSet(t *testing.T) {
	h := NewHeap()
	h.Types = &fakeTypes{widths: map[slot.MetaID][]slot.SlotType{
		slot.FirstUserStruct: {slot.TypeValue, slot.TypeValue},
	}}
	ref, _ := h.NewStruct(slot.FirstUserStruct)
	if err := h.SetFieldSlot(ref, 1, slot.Slot(5)); err != nil {
		t.Fatal(err)
	}
	v, err := h.FieldSlot(ref, 1)
	if err != nil || v != 5 {
		t.Errorf("FieldSlot(1) = %v, %v, want 5, nil", v, err)
	}
}

func TestFieldSlotsMultiWidth(t *testing.T) {
	h := NewHeap()
	h.Types = &fakeTypes{widths: map[slot.MetaID][]slot.SlotType{
		slot.FirstUserStruct: {slot.TypeValue, slot.TypeInterface0, slot.TypeInterface1},
	}}
	ref, _ := h.NewStruct(slot.FirstUserStruct)
	if err := h.SetFieldSlots(ref, 1, []slot.Slot{11, 22}); err != nil {
		t.Fatal(err)
	}
	got, err := h.FieldSlots(ref, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 11 || got[1] != 22 {
		t.Errorf("FieldSlots = %v, want [11 22]", got)
	}
}

func TestCloneStructCopiesNotAliases(t *testing.T) {
	h := NewHeap()
	h.Types = &fakeTypes{widths: map[slot.MetaID][]slot.SlotType{
		slot.FirstUserStruct: {slot.TypeValue},
	}}
	orig, _ := h.NewStruct(slot.FirstUserStruct)
	h.SetFieldSlot(orig, 0, slot.Slot(1))

	clone, err := h.CloneStruct(orig)
	if err != nil {
		t.Fatal(err)
	}
	h.SetFieldSlot(clone, 0, slot.Slot(2))

	origVal, _ := h.FieldSlot(orig, 0)
	cloneVal, _ := h.FieldSlot(clone, 0)
	if origVal != 1 || cloneVal != 2 {
		t.Errorf("orig=%v clone=%v, want 1, 2 (clone must not alias orig)", origVal, cloneVal)
	}
}
