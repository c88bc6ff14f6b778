// Package slot defines the universal 64-bit storage unit shared by fiber
// stacks, heap objects, and the global table, along with the small set of
// tags the garbage collector and interpreter use to interpret it.
package slot

// Slot is the universal 64-bit storage unit. It holds a primitive value,
// a Ref (possibly nil), or one half of an interface pair, depending on the
// SlotType of the position it occupies.
type Slot uint64

// Ref is a heap pointer: a nonzero, aligned address of a heap object, or
// 0 to denote nil. It is kept as a distinct type from Slot so that the
// compiler catches code that forgets to unbox/box between "this position
// holds a Ref" and "this position holds an arbitrary Slot".
type Ref uint64

// IsNil reports whether r is the nil reference.
func (r Ref) IsNil() bool { return r == 0 }

// Slot converts a Ref back to its Slot representation for storage in a
// stack or object that doesn't statically know it holds a Ref.
func (r Ref) Slot() Slot { return Slot(r) }

// AsRef reinterprets s as a Ref. Callers must already know, via SlotType,
// that s's position holds a pointer.
func (s Slot) AsRef() Ref { return Ref(s) }

// ValueKind is a small closed tag identifying the intrinsic shape of a
// value. Ordering matters: needs_gc is defined as "kind >= String", so
// reference kinds must sort after all primitive kinds.
type ValueKind uint8

const (
	KindNil ValueKind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64

	// Reference kinds: needs_gc is true for every kind at or after this
	// point. Do not reorder without updating NeedsGC.
	KindString
	KindSlice
	KindMap
	KindPointer
	KindInterface
	KindArray
	KindChannel
	KindClosure
	KindStruct
)

// firstRefKind is the first ValueKind for which NeedsGC is true.
const firstRefKind = KindString

// NeedsGC reports whether a value of this kind is (or contains as its
// first slot) a heap reference the collector must trace.
func NeedsGC(k ValueKind) bool { return k >= firstRefKind }

// String returns a human-readable name for k, used by disassembly and
// diagnostics.
func (k ValueKind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindInt8:
		return "int8"
	case KindInt16:
		return "int16"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindUint8:
		return "uint8"
	case KindUint16:
		return "uint16"
	case KindUint32:
		return "uint32"
	case KindUint64:
		return "uint64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindSlice:
		return "slice"
	case KindMap:
		return "map"
	case KindPointer:
		return "pointer"
	case KindInterface:
		return "interface"
	case KindArray:
		return "array"
	case KindChannel:
		return "channel"
	case KindClosure:
		return "closure"
	case KindStruct:
		return "struct"
	default:
		return "ValueKind(?)"
	}
}

// MetaID indexes into a module's struct or interface metadata table.
// User struct types are assigned IDs starting at FirstUserStruct;
// interface types start at FirstIface so the two ID spaces never collide.
type MetaID uint32

const (
	// FirstUserStruct is the first meta_id assigned to a user struct type.
	// IDs below this value name no struct (built-in kinds carry their
	// shape in ValueKind alone and need no struct metadata).
	FirstUserStruct MetaID = 1

	// FirstIface is the first meta_id assigned to a user interface type.
	// Chosen far above any plausible struct count so the two ID spaces
	// are trivially disjoint without a runtime check.
	FirstIface MetaID = 1 << 20
)

// ValueMeta packs (meta_id: 24 bits, value_kind: 8 bits) into a 32-bit
// word, as specified by spec.md §3.2.
type ValueMeta uint32

const (
	metaIDMask  = 0x00FFFFFF
	metaIDShift = 8
	kindMask    = 0xFF
)

// PackValueMeta packs a meta_id (must fit in 24 bits) and a ValueKind into
// a ValueMeta word.
func PackValueMeta(metaID MetaID, kind ValueKind) ValueMeta {
	return ValueMeta((uint32(metaID)&metaIDMask)<<metaIDShift | uint32(kind)&kindMask)
}

// MetaID extracts the 24-bit meta_id from a packed ValueMeta.
func (vm ValueMeta) MetaID() MetaID { return MetaID(uint32(vm) >> metaIDShift) }

// Kind extracts the ValueKind from a packed ValueMeta.
func (vm ValueMeta) Kind() ValueKind { return ValueKind(uint32(vm) & kindMask) }

// SlotType drives GC scanning of a single stack or object slot.
type SlotType uint8

const (
	// TypeValue marks a slot that is never a pointer; the scanner skips it.
	TypeValue SlotType = iota

	// TypeGcRef marks a slot that unconditionally holds a heap pointer
	// (or nil); the scanner marks it if nonzero.
	TypeGcRef

	// TypeInterface0 marks the upper half of an interface pair: a packed
	// (iface_meta_id, value_meta). Never itself a pointer.
	TypeInterface0

	// TypeInterface1 marks the lower half of an interface pair. Whether
	// this slot is a pointer depends on the ValueKind encoded in the
	// adjacent TypeInterface0 slot.
	TypeInterface1
)

// String names a SlotType for disassembly.
func (t SlotType) String() string {
	switch t {
	case TypeValue:
		return "Value"
	case TypeGcRef:
		return "GcRef"
	case TypeInterface0:
		return "Interface0"
	case TypeInterface1:
		return "Interface1"
	default:
		return "SlotType(?)"
	}
}

// PackIface packs the upper half of an interface pair: the interface
// type's meta_id together with the dynamic value's ValueMeta.
func PackIface(ifaceMetaID MetaID, valueMeta ValueMeta) Slot {
	return Slot(uint64(ifaceMetaID)<<32 | uint64(valueMeta))
}

// UnpackIface inverts PackIface.
func UnpackIface(s Slot) (ifaceMetaID MetaID, valueMeta ValueMeta) {
	return MetaID(uint64(s) >> 32), ValueMeta(uint64(s) & 0xFFFFFFFF)
}

// IfaceIsNil reports whether an interface pair (given its Interface0 slot)
// is the true nil interface, as opposed to a non-nil interface whose
// dynamic data happens to be a nil pointer (a "typed nil"). Per spec.md
// §3.5/§4.6, nilness is determined by ValueKind, never by meta_id.
func IfaceIsNil(iface0 Slot) bool {
	_, vm := UnpackIface(iface0)
	return vm.Kind() == KindNil
}
