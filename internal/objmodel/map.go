package objmodel

import (
	"fmt"

	"github.com/chazu/vo/internal/slot"
)

// mapEntry is one key/value pair in insertion order. tombstone marks a
// deleted entry; it stays in order (so re-insertion after delete does not
// resurrect the original position) but is skipped on iteration.
type mapEntry struct {
	key       string // canonical encoding, see encodeKey
	keySlots  []slot.Slot
	val       []slot.Slot
	tombstone bool
}

// MapData is [key_meta, val_meta, index, order] per spec.md §4.2: Vo maps
// preserve insertion order on iteration, unlike Go maps. index gives O(1)
// lookup by canonical key encoding; order is the authoritative iteration
// sequence scenario S3 depends on.
type MapData struct {
	KeyMeta slot.ValueMeta
	ValMeta slot.ValueMeta

	index map[string]int // canonical key -> position in order
	order []mapEntry
}

// NewMap allocates an empty map over the given key/value element kinds.
func (h *Heap) NewMap(keyMeta, valMeta slot.ValueMeta) slot.Ref {
	md := &MapData{KeyMeta: keyMeta, ValMeta: valMeta, index: make(map[string]int)}
	ref, obj := h.alloc(slot.PackValueMeta(0, slot.KindMap), ColorWhite0)
	obj.Mp = md
	h.mu.Lock()
	h.addBytes(24)
	h.mu.Unlock()
	return ref
}

// Map returns the MapData for ref.
func (h *Heap) Map(ref slot.Ref) (*MapData, error) {
	obj := h.resolve(ref)
	if obj == nil || obj.Mp == nil {
		return nil, fmt.Errorf("objmodel: ref %d is not a map", ref)
	}
	return obj.Mp, nil
}

// MapLen returns the number of live (non-tombstoned) entries.
func (h *Heap) MapLen(ref slot.Ref) int {
	md, err := h.Map(ref)
	if err != nil {
		return 0
	}
	return len(md.index)
}

// encodeKey produces a canonical comparable encoding for a key. String
// keys are dereferenced through the heap so two distinct String objects
// with equal content collide, matching spec.md "comparable value types"
// content semantics; every other key kind is encoded from its raw slot
// bits, which is exact for the fixed-width primitive kinds the spec
// allows as map keys.
func (h *Heap) encodeKey(keyMeta slot.ValueMeta, keySlots []slot.Slot) (string, error) {
	if keyMeta.Kind() == slot.KindString && len(keySlots) > 0 {
		b, err := h.StringBytes(keySlots[0].AsRef())
		if err != nil {
			return "", err
		}
		return "s:" + string(b), nil
	}
	buf := make([]byte, 0, 1+8*len(keySlots))
	buf = append(buf, 'r')
	for _, s := range keySlots {
		v := uint64(s)
		buf = append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24), byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
	}
	return string(buf), nil
}

// MapGet looks up key, returning (value, found). keySlots holds the key's
// slot representation (1 slot for primitives/strings/refs, 2 for an
// interface-kind key).
func (h *Heap) MapGet(ref slot.Ref, keySlots []slot.Slot) ([]slot.Slot, bool, error) {
	md, err := h.Map(ref)
	if err != nil {
		return nil, false, err
	}
	k, err := h.encodeKey(md.KeyMeta, keySlots)
	if err != nil {
		return nil, false, err
	}
	pos, ok := md.index[k]
	if !ok {
		return nil, false, nil
	}
	return md.order[pos].val, true, nil
}

// MapSet inserts or updates key -> val. A fresh key is appended at the end
// of order, preserving insertion order for iteration; updating an existing
// key keeps its original position, matching Go map semantics for
// re-assignment (only delete-then-reinsert moves a key to the end).
func (h *Heap) MapSet(ref slot.Ref, keySlots, val []slot.Slot) error {
	md, err := h.Map(ref)
	if err != nil {
		return err
	}
	k, err := h.encodeKey(md.KeyMeta, keySlots)
	if err != nil {
		return err
	}
	if pos, ok := md.index[k]; ok {
		md.order[pos].val = val
		md.order[pos].tombstone = false
		return nil
	}
	md.index[k] = len(md.order)
	md.order = append(md.order, mapEntry{key: k, keySlots: keySlots, val: val})
	return nil
}

// MapDelete removes key if present. It is a no-op otherwise, matching
// Go's delete(m, k).
func (h *Heap) MapDelete(ref slot.Ref, keySlots []slot.Slot) error {
	md, err := h.Map(ref)
	if err != nil {
		return err
	}
	k, err := h.encodeKey(md.KeyMeta, keySlots)
	if err != nil {
		return err
	}
	pos, ok := md.index[k]
	if !ok {
		return nil
	}
	md.order[pos].tombstone = true
	delete(md.index, k)
	return nil
}

// MapOrderLen returns the length of the map's insertion-order slice,
// including tombstoned entries — the upper bound a cursor-based iterator
// (internal/fiber's IterEntry, which holds a plain integer position rather
// than a snapshot) must scan up to.
func (h *Heap) MapOrderLen(ref slot.Ref) int {
	md, err := h.Map(ref)
	if err != nil {
		return 0
	}
	return len(md.order)
}

// MapEntryAt returns the entry at position pos in insertion order, for
// OpIterNext's map cursor. live is false for a tombstoned slot, which the
// caller skips without stopping iteration (the position still counts
// against MapOrderLen so the cursor keeps advancing).
func (h *Heap) MapEntryAt(ref slot.Ref, pos int) (keySlots, val []slot.Slot, live bool, err error) {
	md, err := h.Map(ref)
	if err != nil {
		return nil, nil, false, err
	}
	if pos < 0 || pos >= len(md.order) {
		return nil, nil, false, fmt.Errorf("objmodel: map order position %d out of range [0:%d)", pos, len(md.order))
	}
	e := md.order[pos]
	return e.keySlots, e.val, !e.tombstone, nil
}

// MapIterate calls fn for each live entry in insertion order. fn must not
// mutate the map; the interpreter's range-over-map opcode snapshots
// nothing beyond what this single pass gives it, matching spec.md's
// deterministic-iteration-order guarantee for scenario S3.
func (h *Heap) MapIterate(ref slot.Ref, fn func(keySlots, val []slot.Slot)) error {
	md, err := h.Map(ref)
	if err != nil {
		return err
	}
	for _, e := range md.order {
		if e.tombstone {
			continue
		}
		fn(e.keySlots, e.val)
	}
	return nil
}
