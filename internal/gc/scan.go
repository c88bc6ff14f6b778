package gc

import (
	"github.com/chazu/vo/internal/objmodel"
	"github.com/chazu/vo/internal/slot"
)

// scanObject implements spec.md §4.3's scan_object dispatch: given an
// object's kind, call mark for every child slot that is (or, for an
// interface pair, dynamically is) a heap reference. It never mutates
// color itself — the caller (GC.propagate/atomic) does that — so this
// function has no knowledge of tri-color state and can be tested in
// isolation against a plain heap.
func scanObject(h *objmodel.Heap, ref slot.Ref, mark func(slot.Ref)) {
	hdr := h.Header(ref)

	if hdr.Kind() == slot.KindStruct && hdr.Meta.MetaID() >= slot.FirstUserStruct {
		scanUserStruct(h, ref, hdr.Meta.MetaID(), mark)
		return
	}

	switch hdr.Kind() {
	case slot.KindString:
		if sd, err := h.String(ref); err == nil {
			mark(sd.ArrayRef)
		}
	case slot.KindSlice:
		if sl, err := h.Slice(ref); err == nil {
			mark(sl.ArrayRef)
		}
	case slot.KindArray:
		scanArray(h, ref, mark)
	case slot.KindMap:
		scanMap(h, ref, mark)
	case slot.KindChannel:
		scanChannel(h, ref, mark)
	case slot.KindClosure:
		if cl, err := h.Closure(ref); err == nil {
			for _, c := range cl.Captures {
				mark(c)
			}
		}
	case slot.KindPointer:
		scanPointer(h, ref, mark)
	}
	// KindNil, Kind{Bool,Int*,Uint*,Float*} never reach the heap as an
	// object kind (they are inline values); KindInterface likewise never
	// names a heap object's own kind — it only appears as an element/
	// field/value shape, handled by the slot-pair helper below.
}

// scanSlotPair marks the data half of an Interface0/Interface1 pair iff
// the dynamic kind recorded in Interface0 needs GC, per spec.md §4.3's
// "for each Interface1 slot, read the adjacent Interface0 to dynamically
// decide". iface0/iface1 are the two slots in order.
func scanSlotPair(iface0, iface1 slot.Slot, mark func(slot.Ref)) {
	_, valueMeta := slot.UnpackIface(iface0)
	if slot.NeedsGC(valueMeta.Kind()) {
		mark(iface1.AsRef())
	}
}

// scanValueSlots marks the reference slot(s) of one value of kind meta,
// given its slot-tuple vals (width SlotWidth(meta)). Shared by array
// elements, map values, and struct fields whose width is determined by a
// ValueMeta rather than a pre-resolved SlotType vector.
func scanValueSlots(h *objmodel.Heap, meta slot.ValueMeta, vals []slot.Slot, mark func(slot.Ref)) {
	switch {
	case meta.Kind() == slot.KindInterface:
		if len(vals) >= 2 {
			scanSlotPair(vals[0], vals[1], mark)
		}
	case meta.Kind() == slot.KindStruct && meta.MetaID() >= slot.FirstUserStruct:
		scanStructSlots(h, meta.MetaID(), vals, mark)
	case slot.NeedsGC(meta.Kind()):
		if len(vals) >= 1 {
			mark(vals[0].AsRef())
		}
	}
}

func scanArray(h *objmodel.Heap, ref slot.Ref, mark func(slot.Ref)) {
	ad, err := h.Array(ref)
	if err != nil || ad.Slots == nil {
		return // packed arrays hold no references
	}
	width := h.SlotWidth(ad.ElemMeta)
	if width == 0 {
		width = 1
	}
	for i := 0; i < ad.Len; i++ {
		scanValueSlots(h, ad.ElemMeta, ad.GetSlots(i, width), mark)
	}
}

func scanMap(h *objmodel.Heap, ref slot.Ref, mark func(slot.Ref)) {
	md, err := h.Map(ref)
	if err != nil {
		return
	}
	if !slot.NeedsGC(md.ValMeta.Kind()) && md.ValMeta.Kind() != slot.KindInterface {
		return
	}
	h.MapIterate(ref, func(keySlots, val []slot.Slot) {
		scanValueSlots(h, md.ValMeta, val, mark)
	})
}

func scanChannel(h *objmodel.Heap, ref slot.Ref, mark func(slot.Ref)) {
	cd, err := h.Channel(ref)
	if err != nil {
		return
	}
	if !slot.NeedsGC(cd.ElemMeta.Kind()) && cd.ElemMeta.Kind() != slot.KindInterface {
		return
	}
	width := h.SlotWidth(cd.ElemMeta)
	if width == 0 {
		width = 1
	}
	for i := 0; i+width <= len(cd.Buffer); i += width {
		scanValueSlots(h, cd.ElemMeta, cd.Buffer[i:i+width], mark)
	}
}

func scanPointer(h *objmodel.Heap, ref slot.Ref, mark func(slot.Ref)) {
	pd, err := h.Pointer(ref)
	if err != nil {
		return
	}
	scanValueSlots(h, pd.PointeeMeta, pd.Val, mark)
}

func scanUserStruct(h *objmodel.Heap, ref slot.Ref, metaID slot.MetaID, mark func(slot.Ref)) {
	st, err := h.Struct(ref)
	if err != nil {
		return
	}
	scanStructSlots(h, metaID, st.Slots, mark)
}

// scanStructSlots marks a user struct's reference-holding slots per its
// slot_types vector, handling the Interface0/Interface1 pair rule when a
// field is interface-typed.
func scanStructSlots(h *objmodel.Heap, metaID slot.MetaID, slots []slot.Slot, mark func(slot.Ref)) {
	if h.Types == nil {
		return
	}
	types := h.Types.SlotTypes(metaID)
	for i := 0; i < len(types) && i < len(slots); i++ {
		switch types[i] {
		case slot.TypeGcRef:
			mark(slots[i].AsRef())
		case slot.TypeInterface1:
			if i > 0 && types[i-1] == slot.TypeInterface0 {
				scanSlotPair(slots[i-1], slots[i], mark)
			}
		}
	}
}
