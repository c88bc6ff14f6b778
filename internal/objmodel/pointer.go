package objmodel

import (
	"fmt"

	"github.com/chazu/vo/internal/slot"
)

// PointerData is the heap cell backing an escaped local (one taken by &x
// where x outlives its frame) or a closure capture. Per spec.md §3.5 a
// captured variable's heap cell has the same SlotType sequence as its
// stack form, so a cell's width follows SlotWidth(PointeeMeta): one slot
// for primitives/Refs, two for an interface-typed local, or the struct's
// own slot count for a non-escaping-struct local that itself escaped.
type PointerData struct {
	PointeeMeta slot.ValueMeta
	Val         []slot.Slot
}

// NewPointer allocates a boxed cell of the width PointeeMeta implies,
// initialized to init (which must already be PointeeMeta's width).
func (h *Heap) NewPointer(pointeeMeta slot.ValueMeta, init []slot.Slot) slot.Ref {
	width := h.SlotWidth(pointeeMeta)
	val := make([]slot.Slot, width)
	copy(val, init)
	ref, obj := h.alloc(slot.PackValueMeta(0, slot.KindPointer), ColorWhite0)
	obj.Ptr = &PointerData{PointeeMeta: pointeeMeta, Val: val}
	h.mu.Lock()
	h.addBytes(int64(width) * 8)
	h.mu.Unlock()
	return ref
}

// Pointer returns the PointerData for ref.
func (h *Heap) Pointer(ref slot.Ref) (*PointerData, error) {
	obj := h.resolve(ref)
	if obj == nil || obj.Ptr == nil {
		return nil, fmt.Errorf("objmodel: ref %d is not a pointer", ref)
	}
	return obj.Ptr, nil
}

// Deref reads the pointee's slot(s). For a single-slot pointee (the
// common case) callers read index 0.
func (h *Heap) Deref(ref slot.Ref) ([]slot.Slot, error) {
	pd, err := h.Pointer(ref)
	if err != nil {
		return nil, err
	}
	return pd.Val, nil
}

// Store writes the pointee's slot(s), implementing *p = v.
func (h *Heap) Store(ref slot.Ref, val []slot.Slot) error {
	pd, err := h.Pointer(ref)
	if err != nil {
		return err
	}
	if len(val) != len(pd.Val) {
		return fmt.Errorf("objmodel: Store width %d does not match pointee width %d", len(val), len(pd.Val))
	}
	copy(pd.Val, val)
	return nil
}
