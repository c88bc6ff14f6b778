package objmodel

import (
	"fmt"

	"github.com/chazu/vo/internal/slot"
)

// ArrayData is the backing store for both arrays and the string/slice
// objects that alias into it. Per spec.md §3.7, elements are stored
// packed (actual byte width, for bool/int8/uint8/int16/uint16/int32/
// uint32/float32) or slot-based (everything else, width = slot_count*8).
type ArrayData struct {
	ElemMeta  slot.ValueMeta
	ElemBytes int // packed width (1/2/4), or 0 if slot-based
	Len       int

	// Exactly one of Data/Slots is populated, matching ElemBytes.
	Data  []byte      // packed storage, len == Len*ElemBytes
	Slots []slot.Slot // slot-based storage, len == Len*SlotWidth(ElemMeta)
}

// PackedWidth returns the packed byte width for kind, or 0 if the kind
// must be stored slot-based.
func PackedWidth(kind slot.ValueKind) int {
	switch kind {
	case slot.KindBool, slot.KindInt8, slot.KindUint8:
		return 1
	case slot.KindInt16, slot.KindUint16:
		return 2
	case slot.KindInt32, slot.KindUint32, slot.KindFloat32:
		return 4
	default:
		return 0
	}
}

// SlotWidth returns how many 8-byte slots a single value of the given
// kind/meta occupies when stored inline (as an array/slice element, a
// pointer's pointee, or a map value). For user structs this consults
// Types; interfaces are always the Interface0/Interface1 pair; everything
// else slot-based is a single slot (int64/float64/pointers/strings are
// always one slot — they hold a value or a Ref, never an inline payload).
func (h *Heap) SlotWidth(meta slot.ValueMeta) int {
	if meta.Kind() == slot.KindStruct && meta.MetaID() >= slot.FirstUserStruct {
		if h.Types != nil {
			if st := h.Types.SlotTypes(meta.MetaID()); st != nil {
				n := len(st)
				if n == 0 {
					return 1
				}
				return n
			}
		}
	}
	if meta.Kind() == slot.KindInterface {
		return 2 // Interface0 + Interface1
	}
	return 1
}

// NewArray allocates an array of length n holding elements of elemMeta.
// Elements are zero-initialized.
func (h *Heap) NewArray(elemMeta slot.ValueMeta, n int) slot.Ref {
	width := PackedWidth(elemMeta.Kind())
	ad := &ArrayData{ElemMeta: elemMeta, ElemBytes: width, Len: n}
	if width > 0 {
		ad.Data = make([]byte, n*width)
	} else {
		ad.Slots = make([]slot.Slot, n*h.SlotWidth(elemMeta))
	}
	ref, _ := h.alloc(slot.PackValueMeta(0, slot.KindArray), ColorWhite0)
	obj := h.resolve(ref)
	obj.Arr = ad
	h.mu.Lock()
	h.addBytes(ad.byteLen())
	h.mu.Unlock()
	return ref
}

func (ad *ArrayData) byteLen() int64 {
	if ad.Data != nil {
		return int64(len(ad.Data))
	}
	return int64(len(ad.Slots)) * 8
}

// Array returns the ArrayData for ref, or an error if ref is not an array.
func (h *Heap) Array(ref slot.Ref) (*ArrayData, error) {
	obj := h.resolve(ref)
	if obj == nil || obj.Arr == nil {
		return nil, fmt.Errorf("objmodel: ref %d is not an array", ref)
	}
	return obj.Arr, nil
}

// ArrayLen returns an array's length.
func (h *Heap) ArrayLen(ref slot.Ref) int {
	ad, err := h.Array(ref)
	if err != nil {
		return 0
	}
	return ad.Len
}

// ArrayGetPacked reads a packed element as raw bytes (caller interprets
// per ElemBytes/ElemMeta). Bounds are unchecked at this layer, matching
// spec.md §4.6 ("unchecked within the current frame"); bounds checks that
// must trap live in the interpreter, not here.
func (ad *ArrayData) GetPackedBytes(i int) []byte {
	w := ad.ElemBytes
	return ad.Data[i*w : i*w+w]
}

// SetPackedBytes writes a packed element's raw bytes.
func (ad *ArrayData) SetPackedBytes(i int, b []byte) {
	w := ad.ElemBytes
	copy(ad.Data[i*w:i*w+w], b)
}

// GetSlots returns the slot-based storage for element i.
func (ad *ArrayData) GetSlots(i int, slotsPerElem int) []slot.Slot {
	return ad.Slots[i*slotsPerElem : (i+1)*slotsPerElem]
}
