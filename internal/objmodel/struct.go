package objmodel

import (
	"fmt"

	"github.com/chazu/vo/internal/slot"
)

// StructData is a heap-escaped user struct: the struct's meta_id plus its
// slot vector, laid out per the struct's own field order (the same layout
// a stack-local instance of the struct would use). Escaping happens when
// a struct is boxed behind a pointer, stored in a slice/array/map, or
// captured by a closure; a struct that never escapes lives purely as
// contiguous stack slots and never reaches objmodel at all.
type StructData struct {
	MetaID slot.MetaID
	Slots  []slot.Slot
}

// NewStruct allocates a heap struct of the given meta_id, zero-initialized
// to the slot count Types reports for it.
func (h *Heap) NewStruct(metaID slot.MetaID) (slot.Ref, error) {
	if h.Types == nil {
		return 0, fmt.Errorf("objmodel: NewStruct(%d) called before Types was set", metaID)
	}
	st := h.Types.SlotTypes(metaID)
	if st == nil {
		return 0, fmt.Errorf("objmodel: unknown struct meta_id %d", metaID)
	}
	ref, obj := h.alloc(slot.PackValueMeta(metaID, slot.KindStruct), ColorWhite0)
	obj.St = &StructData{MetaID: metaID, Slots: make([]slot.Slot, len(st))}
	h.mu.Lock()
	h.addBytes(int64(len(st)) * 8)
	h.mu.Unlock()
	return ref, nil
}

// Struct returns the StructData for ref.
func (h *Heap) Struct(ref slot.Ref) (*StructData, error) {
	obj := h.resolve(ref)
	if obj == nil || obj.St == nil {
		return nil, fmt.Errorf("objmodel: ref %d is not a struct", ref)
	}
	return obj.St, nil
}

// FieldSlot reads a single field slot. For multi-slot fields (a nested
// struct passed by value, or an interface field) callers use FieldSlots
// with the field's own width instead.
func (h *Heap) FieldSlot(ref slot.Ref, slotIndex int) (slot.Slot, error) {
	st, err := h.Struct(ref)
	if err != nil {
		return 0, err
	}
	if slotIndex < 0 || slotIndex >= len(st.Slots) {
		return 0, fmt.Errorf("objmodel: field slot %d out of range [0:%d)", slotIndex, len(st.Slots))
	}
	return st.Slots[slotIndex], nil
}

// SetFieldSlot writes a single field slot.
func (h *Heap) SetFieldSlot(ref slot.Ref, slotIndex int, val slot.Slot) error {
	st, err := h.Struct(ref)
	if err != nil {
		return err
	}
	if slotIndex < 0 || slotIndex >= len(st.Slots) {
		return fmt.Errorf("objmodel: field slot %d out of range [0:%d)", slotIndex, len(st.Slots))
	}
	st.Slots[slotIndex] = val
	return nil
}

// FieldSlots reads a contiguous run of width slots starting at slotIndex,
// for a multi-slot field.
func (h *Heap) FieldSlots(ref slot.Ref, slotIndex, width int) ([]slot.Slot, error) {
	st, err := h.Struct(ref)
	if err != nil {
		return nil, err
	}
	if slotIndex < 0 || slotIndex+width > len(st.Slots) {
		return nil, fmt.Errorf("objmodel: field slots [%d:%d] out of range [0:%d)", slotIndex, slotIndex+width, len(st.Slots))
	}
	out := make([]slot.Slot, width)
	copy(out, st.Slots[slotIndex:slotIndex+width])
	return out, nil
}

// SetFieldSlots writes a contiguous run of slots starting at slotIndex.
func (h *Heap) SetFieldSlots(ref slot.Ref, slotIndex int, vals []slot.Slot) error {
	st, err := h.Struct(ref)
	if err != nil {
		return err
	}
	if slotIndex < 0 || slotIndex+len(vals) > len(st.Slots) {
		return fmt.Errorf("objmodel: field slots [%d:%d] out of range [0:%d)", slotIndex, slotIndex+len(vals), len(st.Slots))
	}
	copy(st.Slots[slotIndex:], vals)
	return nil
}

// CloneStruct allocates a fresh StructData with a copy of src's slots,
// used when assigning a heap-escaped struct by value (Vo structs have
// copy, not reference, assignment semantics per spec.md §4.2).
func (h *Heap) CloneStruct(src slot.Ref) (slot.Ref, error) {
	st, err := h.Struct(src)
	if err != nil {
		return 0, err
	}
	ref, obj := h.alloc(slot.PackValueMeta(st.MetaID, slot.KindStruct), ColorWhite0)
	slots := make([]slot.Slot, len(st.Slots))
	copy(slots, st.Slots)
	obj.St = &StructData{MetaID: st.MetaID, Slots: slots}
	h.mu.Lock()
	h.addBytes(int64(len(slots)) * 8)
	h.mu.Unlock()
	return ref, nil
}
