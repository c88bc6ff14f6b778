package objmodel

import (
	"fmt"

	"github.com/chazu/vo/internal/slot"
)

// StringData is [array_ref, start, len] per spec.md §4.2: an immutable
// view into a byte array. Equality is content-equality; ordering is
// byte-lex, both implemented here rather than by the interpreter so every
// caller (map keys, comparisons, native string ops) agrees.
type StringData struct {
	ArrayRef slot.Ref
	Start    int
	Len      int
}

var byteValueMeta = slot.PackValueMeta(0, slot.KindUint8)

// NewString allocates a fresh backing array for data and wraps it in a
// String object. Vo string literals and string-producing ops (concat,
// slicing materialization, conversion) all go through this.
func (h *Heap) NewString(data []byte) slot.Ref {
	arrRef := h.NewArray(byteValueMeta, len(data))
	arr, _ := h.Array(arrRef)
	copy(arr.Data, data)

	ref, obj := h.alloc(slot.PackValueMeta(0, slot.KindString), ColorWhite0)
	obj.Str = &StringData{ArrayRef: arrRef, Start: 0, Len: len(data)}
	h.mu.Lock()
	h.addBytes(3 * 8)
	h.mu.Unlock()
	return ref
}

// String returns the StringData for ref.
func (h *Heap) String(ref slot.Ref) (*StringData, error) {
	obj := h.resolve(ref)
	if obj == nil || obj.Str == nil {
		return nil, fmt.Errorf("objmodel: ref %d is not a string", ref)
	}
	return obj.Str, nil
}

// StringBytes returns the content of a string as a byte slice. The slice
// aliases the backing array's storage; callers must not mutate it
// (strings are immutable per spec.md §4.2).
func (h *Heap) StringBytes(ref slot.Ref) ([]byte, error) {
	sd, err := h.String(ref)
	if err != nil {
		return nil, err
	}
	arr, err := h.Array(sd.ArrayRef)
	if err != nil {
		return nil, err
	}
	return arr.Data[sd.Start : sd.Start+sd.Len], nil
}

// StringEqual reports content-equality of two strings, per spec.md §4.2.
func (h *Heap) StringEqual(a, b slot.Ref) bool {
	ba, err1 := h.StringBytes(a)
	bb, err2 := h.StringBytes(b)
	if err1 != nil || err2 != nil {
		return err1 == err2 && a == b
	}
	if len(ba) != len(bb) {
		return false
	}
	for i := range ba {
		if ba[i] != bb[i] {
			return false
		}
	}
	return true
}

// StringCompare returns -1, 0, or 1 per byte-lex ordering, per spec.md §4.2.
func (h *Heap) StringCompare(a, b slot.Ref) int {
	ba, _ := h.StringBytes(a)
	bb, _ := h.StringBytes(b)
	n := len(ba)
	if len(bb) < n {
		n = len(bb)
	}
	for i := 0; i < n; i++ {
		if ba[i] != bb[i] {
			if ba[i] < bb[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ba) < len(bb):
		return -1
	case len(ba) > len(bb):
		return 1
	default:
		return 0
	}
}

// ConcatStrings allocates a new string holding the content of a followed by b.
func (h *Heap) ConcatStrings(a, b slot.Ref) slot.Ref {
	ba, _ := h.StringBytes(a)
	bb, _ := h.StringBytes(b)
	out := make([]byte, 0, len(ba)+len(bb))
	out = append(out, ba...)
	out = append(out, bb...)
	return h.NewString(out)
}
