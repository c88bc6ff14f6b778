package gc

import (
	"github.com/chazu/vo/internal/objmodel"
	"github.com/chazu/vo/internal/slot"
)

// allocsPerStep bounds how often a safepoint allocation auto-triggers a
// Step, independent of the mutator's own function-call-boundary
// safepoints. Matches the "every N allocations" half of spec.md §4.3.
const allocsPerStep = 256

// allocColor returns the color a freshly created object should receive.
// Outside an active cycle (Pause/Sweep) new objects are colored the
// current white — they'll be picked up as roots or children in the next
// cycle like any other live object. During Propagate/Atomic they are
// colored black: the strong tri-color invariant only needs to hold for
// objects that existed when the cycle's root scan ran, and a
// freshly-allocated object's fields are always written after allocation,
// so the write barrier handles anything it comes to point at.
func (g *GC) allocColor() objmodel.Color {
	if g.state == StatePropagate || g.state == StateAtomic {
		return objmodel.ColorBlack
	}
	return g.currentWhite
}

// afterAlloc recolors a just-created object and runs the allocation-count
// half of the safepoint trigger. Call with g.mu held.
func (g *GC) afterAlloc(ref slot.Ref) {
	g.heap.SetColor(ref, g.allocColor())
	g.stats.Allocs++
	if g.stats.Allocs%allocsPerStep == 0 && g.pauseCount == 0 {
		g.step(g.tuning.StepMul)
	}
}

// The New* methods below wrap the corresponding internal/objmodel
// constructor so every allocation in the interpreter goes through GC
// bookkeeping, matching spec.md's data-flow note that "allocation...
// operations call into the GC (C3) and object model (C2)" — the
// interpreter never calls objmodel's New* functions directly.

func (g *GC) NewString(data []byte) slot.Ref {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := g.heap.NewString(data)
	g.afterAlloc(ref)
	return ref
}

func (g *GC) NewArray(elemMeta slot.ValueMeta, n int) slot.Ref {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := g.heap.NewArray(elemMeta, n)
	g.afterAlloc(ref)
	return ref
}

func (g *GC) NewSlice(elemMeta slot.ValueMeta, n int) slot.Ref {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := g.heap.NewSlice(elemMeta, n)
	g.afterAlloc(ref)
	return ref
}

func (g *GC) NewMap(keyMeta, valMeta slot.ValueMeta) slot.Ref {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := g.heap.NewMap(keyMeta, valMeta)
	g.afterAlloc(ref)
	return ref
}

func (g *GC) NewChannel(elemMeta slot.ValueMeta, capacity int) slot.Ref {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := g.heap.NewChannel(elemMeta, capacity)
	g.afterAlloc(ref)
	return ref
}

func (g *GC) NewClosure(funcID uint32, captures []slot.Ref) slot.Ref {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := g.heap.NewClosure(funcID, captures)
	g.afterAlloc(ref)
	return ref
}

func (g *GC) NewStruct(metaID slot.MetaID) (slot.Ref, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref, err := g.heap.NewStruct(metaID)
	if err != nil {
		return 0, err
	}
	g.afterAlloc(ref)
	return ref, nil
}

func (g *GC) NewPointer(pointeeMeta slot.ValueMeta, init []slot.Slot) slot.Ref {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref := g.heap.NewPointer(pointeeMeta, init)
	g.afterAlloc(ref)
	return ref
}

// Reslice, AppendSlot, and CloneStruct each allocate a fresh slice/struct
// header (and, for AppendSlot on a full slice, a fresh backing array), so
// like the New* constructors above they need GC's color bookkeeping — the
// interpreter calls these instead of the objmodel.Heap methods directly.

func (g *GC) Reslice(sref slot.Ref, lo, hi int) (slot.Ref, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref, err := g.heap.Reslice(sref, lo, hi)
	if err != nil {
		return 0, err
	}
	g.afterAlloc(ref)
	return ref, nil
}

func (g *GC) AppendSlot(sref slot.Ref, elemMeta slot.ValueMeta, val slot.Slot) (slot.Ref, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	before, _ := g.heap.Slice(sref)
	grew := before != nil && before.Len >= before.Cap

	ref, err := g.heap.AppendSlot(sref, elemMeta, val)
	if err != nil {
		return 0, err
	}
	if grew {
		// AppendSlot allocated a fresh header (and backing array) rather
		// than reusing sref in place; it needs the same coloring a New*
		// call gets. No write barrier is needed for the value just
		// copied in — a freshly allocated object can't already be black.
		g.afterAlloc(ref)
	}
	return ref, nil
}

func (g *GC) AppendSlots(sref slot.Ref, elemMeta slot.ValueMeta, vals []slot.Slot) (slot.Ref, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	before, _ := g.heap.Slice(sref)
	grew := before != nil && before.Len >= before.Cap

	ref, err := g.heap.AppendSlots(sref, elemMeta, vals)
	if err != nil {
		return 0, err
	}
	if grew {
		g.afterAlloc(ref)
	}
	return ref, nil
}

func (g *GC) AppendPacked(sref slot.Ref, elemMeta slot.ValueMeta, b []byte) (slot.Ref, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	before, _ := g.heap.Slice(sref)
	grew := before != nil && before.Len >= before.Cap

	ref, err := g.heap.AppendPacked(sref, elemMeta, b)
	if err != nil {
		return 0, err
	}
	if grew {
		g.afterAlloc(ref)
	}
	return ref, nil
}

func (g *GC) CloneStruct(src slot.Ref) (slot.Ref, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ref, err := g.heap.CloneStruct(src)
	if err != nil {
		return 0, err
	}
	g.afterAlloc(ref)
	return ref, nil
}

// Heap exposes the underlying heap for read-only accessor calls
// (h.String, h.Slice, h.FieldSlot, etc.) that don't themselves allocate or
// need barrier/color bookkeeping.
func (g *GC) Heap() *objmodel.Heap { return g.heap }
