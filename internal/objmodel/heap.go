// Package objmodel defines the heap object model: the fixed GcHeader every
// heap object carries, the typed layouts for strings, arrays, slices,
// maps, channels, closures and user structs, and the pure-function
// accessors over them. It owns the allocation arena (Heap) but has no
// knowledge of tri-color marking, sweeping, or write barriers — that is
// internal/gc, layered on top.
package objmodel

import (
	"fmt"
	"sync"

	"github.com/chazu/vo/internal/slot"
)

// Color is the tri-color marking state stored in an object's header. The
// collector interprets these; objmodel only stores and returns the byte.
type Color uint8

const (
	ColorWhite0 Color = iota
	ColorWhite1
	ColorGray
	ColorBlack
)

// Generation is reserved for future use (spec.md §3.4); objmodel stores it
// but no component currently reads it besides round-tripping through
// allocation.
type Generation uint8

const (
	GenYoung Generation = iota
	GenOld
	GenTouched
)

// Flags holds finalization/pinning bits from the GcHeader.
type Flags uint8

const (
	FlagFinalizer Flags = 1 << 0
	FlagPinned    Flags = 1 << 1
)

// Header is the fixed 8-byte header every heap object begins with,
// per spec.md §3.4: mark(1) gen(1) flags(1) _pad(1) meta(4).
type Header struct {
	Color Color
	Gen   Generation
	Flags Flags
	Meta  slot.ValueMeta
}

// Kind is shorthand for Header.Meta.Kind().
func (h Header) Kind() slot.ValueKind { return h.Meta.Kind() }

// object is the internal representation of one heap allocation. Exactly
// one of the typed payload pointers is non-nil, selected by Header.Kind().
// Struct is kept separate from the specific built-in kinds so the
// generic struct path (ptr_bitmap driven) and the built-in fixed-layout
// paths never need to consult each other.
type object struct {
	Header Header

	Str *StringData
	Arr *ArrayData
	Sl  *SliceData
	Mp  *MapData
	Ch  *ChannelData
	Cl  *ClosureData
	St  *StructData
	Ptr *PointerData
}

// StructTypeInfo resolves struct/interface type metadata needed to scan
// and lay out user-defined struct objects. pkg/bytecode.Module implements
// this over its struct-meta table; it is the seam between the module
// format and the heap so objmodel never imports pkg/bytecode.
type StructTypeInfo interface {
	// SlotTypes returns the per-slot SlotType vector for the struct type
	// named by metaID, or nil if metaID does not name a known struct.
	SlotTypes(metaID slot.MetaID) []slot.SlotType
}

// Heap is the allocation arena for one fiber group's (process-wide) Vo
// heap. References are opaque nonzero handles indexing into objects,
// rather than literal memory addresses — any nonzero/zero-for-nil scheme
// satisfies spec.md §3.1's "address... or 0 for nil" at this level of
// abstraction, and a handle table avoids unsafe pointer-to-uintptr casts
// entirely. Handles are recycled after sweep via freelist, exactly as a
// real allocator would reuse freed memory: a Vo program holding a stale
// Ref to a collected object is a program bug, not a safety hole, since
// Ref is never dereferenced without going through Heap.
type Heap struct {
	mu      sync.Mutex
	objects []*object // index i holds the object for Ref(i+1); nil if freed
	free    []uint32  // recycled indices, 0-based, ready for reuse

	Types StructTypeInfo // set once at module load by the interpreter

	allocCount  uint64
	bytesLive   int64
}

// NewHeap creates an empty heap. Types may be nil until a module is
// loaded; it must be set before any struct-kind object is allocated.
func NewHeap() *Heap {
	return &Heap{objects: make([]*object, 0, 1024)}
}

// AllocCount returns the number of allocations performed since creation
// (monotonic; not decremented by sweep). Used by gc.Stats.
func (h *Heap) AllocCount() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocCount
}

// alloc reserves a new object slot and returns its handle. Internal: the
// caller must populate the appropriate typed payload before releasing
// the heap lock's implicit visibility (objmodel methods always populate
// synchronously before returning a Ref to callers).
func (h *Heap) alloc(meta slot.ValueMeta, color Color) (slot.Ref, *object) {
	h.mu.Lock()
	defer h.mu.Unlock()

	obj := &object{Header: Header{Color: color, Meta: meta}}
	h.allocCount++

	if n := len(h.free); n > 0 {
		idx := h.free[n-1]
		h.free = h.free[:n-1]
		h.objects[idx] = obj
		return slot.Ref(idx + 1), obj
	}
	h.objects = append(h.objects, obj)
	return slot.Ref(len(h.objects)), obj
}

// resolve returns the object for ref, or nil if ref is nil or stale.
func (h *Heap) resolve(ref slot.Ref) *object {
	if ref.IsNil() {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := int(ref) - 1
	if idx < 0 || idx >= len(h.objects) {
		return nil
	}
	return h.objects[idx]
}

// Header returns the header for ref. Panics on a stale/nil ref: callers
// are expected to have already checked Ref.IsNil() at the point they
// decided to dereference, matching spec.md's "programmer error" failure
// mode for C1/C2 (§4.1, §4.2).
func (h *Heap) Header(ref slot.Ref) Header {
	obj := h.resolve(ref)
	if obj == nil {
		panic(fmt.Sprintf("objmodel: dereference of invalid ref %d", ref))
	}
	return obj.Header
}

// SetColor updates an object's mark color. Exported for internal/gc.
func (h *Heap) SetColor(ref slot.Ref, c Color) {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := int(ref) - 1
	if idx < 0 || idx >= len(h.objects) || h.objects[idx] == nil {
		return
	}
	h.objects[idx].Header.Color = c
}

// ForEach calls fn for every live object handle currently allocated, in
// index order. Used by the sweep phase. fn must not allocate.
func (h *Heap) ForEach(fn func(ref slot.Ref, hdr Header)) {
	h.mu.Lock()
	objs := make([]*object, len(h.objects))
	copy(objs, h.objects)
	h.mu.Unlock()

	for i, obj := range objs {
		if obj != nil {
			fn(slot.Ref(i+1), obj.Header)
		}
	}
}

// Free releases ref's slot for reuse by a future allocation. Called only
// by the collector's sweep phase.
func (h *Heap) Free(ref slot.Ref) {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := int(ref) - 1
	if idx < 0 || idx >= len(h.objects) || h.objects[idx] == nil {
		return
	}
	h.bytesLive -= h.objects[idx].byteSize()
	h.objects[idx] = nil
	h.free = append(h.free, uint32(idx))
}

// BytesLive is an approximate count of bytes held by currently-allocated
// objects. The collector reports it in its cycle-complete log line; no
// component uses it to decide when to collect.
func (h *Heap) BytesLive() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bytesLive
}

func (h *Heap) addBytes(n int64) {
	h.bytesLive += n
}

// byteSize estimates the slot footprint of an object for accounting.
func (o *object) byteSize() int64 {
	const slotBytes = 8
	switch {
	case o.Str != nil:
		return 3 * slotBytes
	case o.Sl != nil:
		return 4 * slotBytes
	case o.Arr != nil:
		return o.Arr.byteLen()
	case o.Mp != nil:
		return 24
	case o.Ch != nil:
		return 32
	case o.Cl != nil:
		return int64((2 + len(o.Cl.Captures)) * slotBytes)
	case o.St != nil:
		return int64(len(o.St.Slots)) * slotBytes
	case o.Ptr != nil:
		return int64(len(o.Ptr.Val)) * slotBytes
	default:
		return slotBytes
	}
}
