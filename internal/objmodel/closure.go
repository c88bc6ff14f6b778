package objmodel

import (
	"fmt"

	"github.com/chazu/vo/internal/slot"
)

// ClosureData is [func_id, captures...] per spec.md §4.2. FuncID indexes
// the owning module's function table (resolved by internal/interp, which
// is the only component that knows what a function table is); Captures
// holds one Ref per captured variable, each pointing at a boxed
// single-slot cell (a PointerData) so writes through a closure are visible
// to the enclosing frame and vice versa.
type ClosureData struct {
	FuncID   uint32
	Captures []slot.Ref
}

// NewClosure allocates a closure over funcID capturing the given cells.
func (h *Heap) NewClosure(funcID uint32, captures []slot.Ref) slot.Ref {
	cs := make([]slot.Ref, len(captures))
	copy(cs, captures)
	ref, obj := h.alloc(slot.PackValueMeta(0, slot.KindClosure), ColorWhite0)
	obj.Cl = &ClosureData{FuncID: funcID, Captures: cs}
	h.mu.Lock()
	h.addBytes(int64((2 + len(cs)) * 8))
	h.mu.Unlock()
	return ref
}

// Closure returns the ClosureData for ref.
func (h *Heap) Closure(ref slot.Ref) (*ClosureData, error) {
	obj := h.resolve(ref)
	if obj == nil || obj.Cl == nil {
		return nil, fmt.Errorf("objmodel: ref %d is not a closure", ref)
	}
	return obj.Cl, nil
}

// CaptureSlot returns the boxed cell for capture index i.
func (h *Heap) CaptureSlot(ref slot.Ref, i int) (slot.Ref, error) {
	cl, err := h.Closure(ref)
	if err != nil {
		return 0, err
	}
	if i < 0 || i >= len(cl.Captures) {
		return 0, fmt.Errorf("objmodel: capture index %d out of range [0:%d)", i, len(cl.Captures))
	}
	return cl.Captures[i], nil
}
