package fiber

import (
	"testing"

	"github.com/chazu/vo/internal/slot"
)

func TestPushPopFrameAddressesStack(t *testing.T) {
	f := New("f1")
	fr := f.PushFrame(0, 3, 0, 1, []slot.SlotType{slot.TypeValue, slot.TypeGcRef, slot.TypeValue})
	if fr.BP != 0 || len(f.Stack) != 3 {
		t.Fatalf("unexpected frame/stack after push: bp=%d stack=%d", fr.BP, len(f.Stack))
	}

	f.SetReg(1, slot.Slot(42))
	if got := f.Reg(1); got != 42 {
		t.Errorf("Reg(1) = %d, want 42", got)
	}

	fr2 := f.PushFrame(1, 2, 0, 1, nil)
	if fr2.BP != 3 {
		t.Errorf("second frame BP = %d, want 3", fr2.BP)
	}

	popped, ok := f.PopFrame()
	if !ok || popped.FuncID != 1 {
		t.Fatalf("PopFrame = %+v, %v, want func 1 frame", popped, ok)
	}
	if len(f.Stack) != 3 {
		t.Errorf("stack after pop = %d, want 3 (truncated to first frame)", len(f.Stack))
	}
	if f.CurrentFrame().FuncID != 0 {
		t.Errorf("current frame after pop = func %d, want 0", f.CurrentFrame().FuncID)
	}
}

func TestScanRootsMarksGcRefAndLiveInterfacePair(t *testing.T) {
	f := New("f1")
	f.PushFrame(0, 4, 0, 1, []slot.SlotType{
		slot.TypeValue, slot.TypeGcRef, slot.TypeInterface0, slot.TypeInterface1,
	})
	f.SetReg(0, slot.Slot(99)) // plain value, never marked
	f.SetReg(1, slot.Slot(7))  // gc ref
	f.SetReg(2, slot.PackIface(slot.FirstIface, slot.PackValueMeta(0, slot.KindString)))
	f.SetReg(3, slot.Slot(11)) // the string ref carried by the interface pair

	var marked []slot.Ref
	f.ScanRoots(func(r slot.Ref) { marked = append(marked, r) })

	if len(marked) != 2 {
		t.Fatalf("marked %d roots, want 2: %v", len(marked), marked)
	}
	want := map[slot.Ref]bool{7: true, 11: true}
	for _, r := range marked {
		if !want[r] {
			t.Errorf("unexpected marked ref %d", r)
		}
	}
}

func TestScanRootsSkipsNilInterfacePair(t *testing.T) {
	f := New("f1")
	f.PushFrame(0, 2, 0, 1, []slot.SlotType{slot.TypeInterface0, slot.TypeInterface1})
	// zero-valued iface0 packs KindNil, which NeedsGC reports false for.
	f.SetReg(1, slot.Slot(123))

	var marked []slot.Ref
	f.ScanRoots(func(r slot.Ref) { marked = append(marked, r) })
	if len(marked) != 0 {
		t.Errorf("marked %v, want none for a nil interface pair", marked)
	}
}

func TestDeferLIFOWithinFrameDepth(t *testing.T) {
	f := New("f1")
	f.PushDefer(DeferEntry{FrameDepth: 0, FuncID: 20})
	f.PushDefer(DeferEntry{FrameDepth: 1, FuncID: 10})
	f.PushDefer(DeferEntry{FrameDepth: 1, FuncID: 11})

	if !f.HasDeferAt(1) {
		t.Fatal("expected a pending defer at depth 1")
	}
	d, ok := f.PopDeferAt(1)
	if !ok || d.FuncID != 11 {
		t.Fatalf("PopDeferAt(1) = %+v, %v, want FuncID 11", d, ok)
	}
	d, ok = f.PopDeferAt(1)
	if !ok || d.FuncID != 10 {
		t.Fatalf("PopDeferAt(1) = %+v, %v, want FuncID 10", d, ok)
	}
	if f.HasDeferAt(1) {
		t.Error("depth 1 should have no defers left")
	}
	if _, ok := f.PopDeferAt(1); ok {
		t.Error("PopDeferAt(1) should fail once exhausted, even though depth 0 has an entry")
	}
	d, ok = f.PopDeferAt(0)
	if !ok || d.FuncID != 20 {
		t.Fatalf("PopDeferAt(0) = %+v, %v, want FuncID 20", d, ok)
	}
}

func TestIterEntryIntRangeAdvanceAndDone(t *testing.T) {
	it := IterEntry{Kind: IterIntRange, Idx: 0, End: 3, Step: 1}
	var seen []int
	for !it.Done() {
		seen = append(seen, it.Idx)
		it.Advance()
	}
	if len(seen) != 3 || seen[0] != 0 || seen[2] != 2 {
		t.Errorf("int-range iteration = %v, want [0 1 2]", seen)
	}
}

func TestIterEntryContainerScanRootsOnlyWhenRefPresent(t *testing.T) {
	container := IterEntry{Kind: IterSlice, Ref: slot.Ref(5)}
	intRange := IterEntry{Kind: IterIntRange}

	var marked []slot.Ref
	container.scanRoots(func(r slot.Ref) { marked = append(marked, r) })
	intRange.scanRoots(func(r slot.Ref) { marked = append(marked, r) })

	if len(marked) != 1 || marked[0] != 5 {
		t.Errorf("marked = %v, want [5] (int-range iterator holds no ref)", marked)
	}
}
