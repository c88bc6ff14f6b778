package objmodel

import (
	"testing"

	"github.com/chazu/vo/internal/slot"
)

func TestClosureCapturesSharedCell(t *testing.T) {
	h := NewHeap()
	cell := h.NewPointer(slot.PackValueMeta(0, slot.KindInt64), []slot.Slot{1})
	clRef := h.NewClosure(7, []slot.Ref{cell})

	cl, err := h.Closure(clRef)
	if err != nil {
		t.Fatal(err)
	}
	if cl.FuncID != 7 {
		t.Errorf("FuncID = %d, want 7", cl.FuncID)
	}

	got, err := h.CaptureSlot(clRef, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != cell {
		t.Error("CaptureSlot should return the same cell ref")
	}

	// Mutating through the cell is visible from both the closure's view
	// and a direct reference, since closures capture by reference.
	h.Store(cell, []slot.Slot{42})
	v, _ := h.Deref(cell)
	if v[0] != 42 {
		t.Errorf("Deref after Store = %v, want [42]", v)
	}
}

func TestCaptureSlotOutOfRange(t *testing.T) {
	h := NewHeap()
	clRef := h.NewClosure(1, nil)
	if _, err := h.CaptureSlot(clRef, 0); err == nil {
		t.Error("expected error for out-of-range capture index")
	}
}
