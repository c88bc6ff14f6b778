package gc

import (
	"github.com/chazu/vo/internal/objmodel"
	"github.com/chazu/vo/internal/slot"
)

// WriteBarrier must be called by every heap pointer store parent.slot[i]
// = child — objmodel's setters never call it themselves, since objmodel
// has no notion of color; internal/interp and internal/fiber call this
// immediately after any SetFieldSlot(s)/SetElemSlot(s)/MapSet/Store/etc.
// whose written value is itself a GcRef (directly, or as the data half of
// an interface pair).
//
// Per spec.md §4.3's forward/SATB hybrid: during Propagate, if parent is
// black and child is white, re-gray child so the no-black-to-white-
// pointer invariant holds going into Atomic. Outside Propagate this is a
// no-op — Pause/Atomic/Sweep mutators either haven't started marking yet
// or have already finished it for this cycle.
func (g *GC) WriteBarrier(parent, child slot.Ref) {
	if child.IsNil() {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StatePropagate {
		return
	}
	if g.heap.Header(parent).Color != objmodel.ColorBlack {
		return
	}
	if g.heap.Header(child).Color == objmodel.ColorBlack || g.heap.Header(child).Color == objmodel.ColorGray {
		return
	}
	g.heap.SetColor(child, objmodel.ColorGray)
	g.gray = append(g.gray, child)
}

// WriteBarrierIface is WriteBarrier's counterpart for a store into an
// Interface0/Interface1 pair: iface0 carries the dynamic ValueMeta that
// decides whether iface1 is actually a pointer.
func (g *GC) WriteBarrierIface(parent slot.Ref, iface0 slot.Slot, iface1 slot.Slot) {
	_, valueMeta := slot.UnpackIface(iface0)
	if !slot.NeedsGC(valueMeta.Kind()) {
		return
	}
	g.WriteBarrier(parent, iface1.AsRef())
}
