package objmodel

import (
	"fmt"

	"github.com/chazu/vo/internal/slot"
)

// SliceData is [array_ref, start, len, cap] per spec.md §3.7/§4.2. start
// is an element index into the backing array, not a byte offset. Two
// slices sharing an ArrayRef alias the same storage within their
// overlapping range — this is spec.md §8 property 5, and is automatic
// here because both read/write through the same ArrayData.
type SliceData struct {
	ArrayRef slot.Ref
	Start    int
	Len      int
	Cap      int
}

const initialSliceCap = 4

// NewSlice allocates a backing array of capacity initialSliceCap (or more,
// if n exceeds it) and returns an empty-or-n-length slice over it.
func (h *Heap) NewSlice(elemMeta slot.ValueMeta, n int) slot.Ref {
	cap0 := initialSliceCap
	for cap0 < n {
		cap0 *= 2
	}
	arrRef := h.NewArray(elemMeta, cap0)
	ref, obj := h.alloc(slot.PackValueMeta(0, slot.KindSlice), ColorWhite0)
	obj.Sl = &SliceData{ArrayRef: arrRef, Start: 0, Len: n, Cap: cap0}
	h.mu.Lock()
	h.addBytes(4 * 8)
	h.mu.Unlock()
	return ref
}

// Slice returns the SliceData for ref.
func (h *Heap) Slice(ref slot.Ref) (*SliceData, error) {
	obj := h.resolve(ref)
	if obj == nil || obj.Sl == nil {
		return nil, fmt.Errorf("objmodel: ref %d is not a slice", ref)
	}
	return obj.Sl, nil
}

// Reslice returns a new slice header aliasing the same backing array as s,
// covering element range [lo, hi). This implements s[lo:hi]; the result
// shares ArrayRef with s, satisfying spec.md §8 property 5.
func (h *Heap) Reslice(sref slot.Ref, lo, hi int) (slot.Ref, error) {
	sd, err := h.Slice(sref)
	if err != nil {
		return 0, err
	}
	if lo < 0 || hi < lo || hi > sd.Cap {
		return 0, fmt.Errorf("objmodel: slice bounds out of range [%d:%d] with cap %d", lo, hi, sd.Cap)
	}
	ref, obj := h.alloc(slot.PackValueMeta(0, slot.KindSlice), ColorWhite0)
	obj.Sl = &SliceData{ArrayRef: sd.ArrayRef, Start: sd.Start + lo, Len: hi - lo, Cap: sd.Cap - lo}
	h.mu.Lock()
	h.addBytes(4 * 8)
	h.mu.Unlock()
	return ref, nil
}

// AppendSlot appends one slot-based element to s, growing the backing
// array by doubling from capacity 4 if needed, per spec.md §4.2.
// Returns the (possibly new) slice header ref; the caller must treat the
// slice variable as reassigned, matching Go's own append semantics.
func (h *Heap) AppendSlot(sref slot.Ref, elemMeta slot.ValueMeta, val slot.Slot) (slot.Ref, error) {
	return h.AppendSlots(sref, elemMeta, []slot.Slot{val})
}

// AppendSlots appends one element (elemMeta's full width, possibly more
// than one slot for a struct or interface element) to s, growing the
// backing array by doubling from capacity 4 if needed. AppendSlot is the
// width-1 special case of this, kept as its own name because it's the
// common int/ref/string element path through the interpreter.
func (h *Heap) AppendSlots(sref slot.Ref, elemMeta slot.ValueMeta, vals []slot.Slot) (slot.Ref, error) {
	sd, err := h.Slice(sref)
	if err != nil {
		return 0, err
	}
	spe := h.SlotWidth(elemMeta)
	if sd.Len >= sd.Cap {
		return h.growAndAppendSlots(sd, elemMeta, spe, vals)
	}
	arr, err := h.Array(sd.ArrayRef)
	if err != nil {
		return 0, err
	}
	idx := sd.Start + sd.Len
	copy(arr.GetSlots(idx, spe), vals)
	sd.Len++
	return sref, nil
}

func (h *Heap) growAndAppendSlots(sd *SliceData, elemMeta slot.ValueMeta, spe int, vals []slot.Slot) (slot.Ref, error) {
	newCap := sd.Cap * 2
	if newCap == 0 {
		newCap = initialSliceCap
	}
	newArrRef := h.NewArray(elemMeta, newCap)
	newArr, _ := h.Array(newArrRef)
	oldArr, err := h.Array(sd.ArrayRef)
	if err != nil {
		return 0, err
	}
	copy(newArr.Slots, oldArr.Slots[sd.Start*spe:(sd.Start+sd.Len)*spe])
	copy(newArr.GetSlots(sd.Len, spe), vals)

	ref, obj := h.alloc(slot.PackValueMeta(0, slot.KindSlice), ColorWhite0)
	obj.Sl = &SliceData{ArrayRef: newArrRef, Start: 0, Len: sd.Len + 1, Cap: newCap}
	h.mu.Lock()
	h.addBytes(4 * 8)
	h.mu.Unlock()
	return ref, nil
}

// AppendPacked appends one packed (byte-width) element, given as its raw
// bytes (len(b) == PackedWidth(elemMeta.Kind())), to a packed-storage
// slice such as []byte or []int32. Mirrors AppendSlots for the other half
// of spec.md §3.7's packed-vs-slot-based storage split.
func (h *Heap) AppendPacked(sref slot.Ref, elemMeta slot.ValueMeta, b []byte) (slot.Ref, error) {
	sd, err := h.Slice(sref)
	if err != nil {
		return 0, err
	}
	if sd.Len >= sd.Cap {
		return h.growAndAppendPacked(sd, elemMeta, b)
	}
	arr, err := h.Array(sd.ArrayRef)
	if err != nil {
		return 0, err
	}
	arr.SetPackedBytes(sd.Start+sd.Len, b)
	sd.Len++
	return sref, nil
}

func (h *Heap) growAndAppendPacked(sd *SliceData, elemMeta slot.ValueMeta, b []byte) (slot.Ref, error) {
	newCap := sd.Cap * 2
	if newCap == 0 {
		newCap = initialSliceCap
	}
	newArrRef := h.NewArray(elemMeta, newCap)
	newArr, _ := h.Array(newArrRef)
	oldArr, err := h.Array(sd.ArrayRef)
	if err != nil {
		return 0, err
	}
	w := oldArr.ElemBytes
	copy(newArr.Data, oldArr.Data[sd.Start*w:(sd.Start+sd.Len)*w])
	newArr.SetPackedBytes(sd.Len, b)

	ref, obj := h.alloc(slot.PackValueMeta(0, slot.KindSlice), ColorWhite0)
	obj.Sl = &SliceData{ArrayRef: newArrRef, Start: 0, Len: sd.Len + 1, Cap: newCap}
	h.mu.Lock()
	h.addBytes(4 * 8)
	h.mu.Unlock()
	return ref, nil
}

// GetElemSlot reads element i (0-based within the slice) as a single
// slot, for slot-based element kinds.
func (h *Heap) GetElemSlot(sref slot.Ref, elemMeta slot.ValueMeta, i int) (slot.Slot, error) {
	sd, err := h.Slice(sref)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= sd.Len {
		return 0, fmt.Errorf("objmodel: index %d out of range [0:%d)", i, sd.Len)
	}
	arr, err := h.Array(sd.ArrayRef)
	if err != nil {
		return 0, err
	}
	spe := h.SlotWidth(elemMeta)
	s := arr.GetSlots(sd.Start+i, spe)
	return s[0], nil
}

// SetElemSlot writes element i as a single slot.
func (h *Heap) SetElemSlot(sref slot.Ref, elemMeta slot.ValueMeta, i int, val slot.Slot) error {
	sd, err := h.Slice(sref)
	if err != nil {
		return err
	}
	if i < 0 || i >= sd.Len {
		return fmt.Errorf("objmodel: index %d out of range [0:%d)", i, sd.Len)
	}
	arr, err := h.Array(sd.ArrayRef)
	if err != nil {
		return err
	}
	spe := h.SlotWidth(elemMeta)
	copy(arr.GetSlots(sd.Start+i, spe), []slot.Slot{val})
	return nil
}

// GetElemSlots reads a multi-slot element (struct/interface-kind
// element), corresponding to the interpreter's GetN opcode.
func (h *Heap) GetElemSlots(sref slot.Ref, elemMeta slot.ValueMeta, i int) ([]slot.Slot, error) {
	sd, err := h.Slice(sref)
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= sd.Len {
		return nil, fmt.Errorf("objmodel: index %d out of range [0:%d)", i, sd.Len)
	}
	arr, err := h.Array(sd.ArrayRef)
	if err != nil {
		return nil, err
	}
	spe := h.SlotWidth(elemMeta)
	out := make([]slot.Slot, spe)
	copy(out, arr.GetSlots(sd.Start+i, spe))
	return out, nil
}

// SetElemSlots writes a multi-slot element, corresponding to SetN.
func (h *Heap) SetElemSlots(sref slot.Ref, elemMeta slot.ValueMeta, i int, vals []slot.Slot) error {
	sd, err := h.Slice(sref)
	if err != nil {
		return err
	}
	if i < 0 || i >= sd.Len {
		return fmt.Errorf("objmodel: index %d out of range [0:%d)", i, sd.Len)
	}
	arr, err := h.Array(sd.ArrayRef)
	if err != nil {
		return err
	}
	spe := h.SlotWidth(elemMeta)
	copy(arr.GetSlots(sd.Start+i, spe), vals)
	return nil
}
