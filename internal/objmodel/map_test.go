package objmodel

import (
	"testing"

	"github.com/chazu/vo/internal/slot"
)

func strKey(h *Heap, s string) []slot.Slot {
	return []slot.Slot{h.NewString([]byte(s)).Slot()}
}

// TestMapIterationOrderMatchesScenarioS3 inserts keys out of sorted order
// and checks iteration replays insertion order, not sorted or hash order.
func TestMapIterationOrderMatchesScenarioS3(t *testing.T) {
	h := NewHeap()
	keyMeta := slot.PackValueMeta(0, slot.KindString)
	valMeta := slot.PackValueMeta(0, slot.KindInt64)
	ref := h.NewMap(keyMeta, valMeta)

	order := []string{"charlie", "alpha", "bravo"}
	for i, k := range order {
		if err := h.MapSet(ref, strKey(h, k), []slot.Slot{slot.Slot(i)}); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	h.MapIterate(ref, func(keySlots, val []slot.Slot) {
		b, _ := h.StringBytes(keySlots[0].AsRef())
		got = append(got, string(b))
	})
	for i, k := range order {
		if got[i] != k {
			t.Errorf("iteration order[%d] = %q, want %q (got %v)", i, got[i], k, got)
		}
	}
}

func TestMapGetSetDelete(t *testing.T) {
	h := NewHeap()
	keyMeta := slot.PackValueMeta(0, slot.KindString)
	valMeta := slot.PackValueMeta(0, slot.KindInt64)
	ref := h.NewMap(keyMeta, valMeta)

	k := strKey(h, "x")
	if _, ok, _ := h.MapGet(ref, k); ok {
		t.Error("fresh map should not contain key")
	}
	h.MapSet(ref, k, []slot.Slot{42})
	v, ok, err := h.MapGet(ref, k)
	if err != nil || !ok || v[0] != 42 {
		t.Fatalf("MapGet after set = %v, %v, %v", v, ok, err)
	}
	h.MapDelete(ref, k)
	if _, ok, _ := h.MapGet(ref, k); ok {
		t.Error("key should be absent after delete")
	}
	if n := h.MapLen(ref); n != 0 {
		t.Errorf("MapLen after delete = %d, want 0", n)
	}
}

func TestMapUpdateKeepsPosition(t *testing.T) {
	h := NewHeap()
	keyMeta := slot.PackValueMeta(0, slot.KindString)
	valMeta := slot.PackValueMeta(0, slot.KindInt64)
	ref := h.NewMap(keyMeta, valMeta)

	h.MapSet(ref, strKey(h, "a"), []slot.Slot{1})
	h.MapSet(ref, strKey(h, "b"), []slot.Slot{2})
	h.MapSet(ref, strKey(h, "a"), []slot.Slot{99})

	var order []string
	h.MapIterate(ref, func(keySlots, val []slot.Slot) {
		b, _ := h.StringBytes(keySlots[0].AsRef())
		order = append(order, string(b))
	})
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("order after update = %v, want [a b]", order)
	}
}

func TestMapContentEqualStringKeysCollide(t *testing.T) {
	h := NewHeap()
	keyMeta := slot.PackValueMeta(0, slot.KindString)
	valMeta := slot.PackValueMeta(0, slot.KindInt64)
	ref := h.NewMap(keyMeta, valMeta)

	h.MapSet(ref, strKey(h, "dup"), []slot.Slot{1})
	h.MapSet(ref, strKey(h, "dup"), []slot.Slot{2})
	if n := h.MapLen(ref); n != 1 {
		t.Errorf("MapLen = %d, want 1 (content-equal string keys should collide)", n)
	}
}
