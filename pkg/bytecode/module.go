package bytecode

import (
	"fmt"

	"github.com/chazu/vo/internal/slot"
)

// ConstKind tags the one value carried by a Constant.
type ConstKind uint8

const (
	ConstNil ConstKind = iota
	ConstBool
	ConstInt
	ConstFloat
	ConstString
)

// Constant is one entry of a module's constant pool (spec.md §4.4:
// "constant pool (nil/bool/int/float/string)"). Exactly one of the value
// fields is meaningful, selected by Kind.
type Constant struct {
	Kind ConstKind
	I    int64
	F    float64
	S    string
}

// StructMeta describes one user struct type: its per-slot SlotType
// vector (what objmodel/gc's scanner needs) plus field names and the
// starting slot of each field (what OpStructGet/OpStructSet and
// disassembly need). FieldSlots[i] gives field i's slot width so
// multi-slot fields (nested structs, interfaces) are addressable.
type StructMeta struct {
	Name       string
	FieldNames []string
	SlotTypes  []slot.SlotType // len == total slot width of the struct
	FieldStart []int           // len(FieldNames); starting slot index of each field
	FieldSlots []int           // len(FieldNames); slot width of each field
}

// IfaceMeta describes one interface type: its name and method set, used
// for dispatch-table lookups and diagnostics. The method set is ordered;
// a concrete type's dispatch entry is a same-length slice of function IDs
// in this order.
type IfaceMeta struct {
	Name    string
	Methods []string
}

// Global describes one module-level variable slot.
type Global struct {
	Name      string
	Slots     int
	ValueKind slot.ValueKind
	MetaID    slot.MetaID
}

// Function is one compiled function body.
type Function struct {
	Name        string
	ParamCount  int
	ParamSlots  int // total slot width consumed by parameters (r0..)
	LocalSlots  int // total frame slot width, including params
	RetSlots    int
	Code        Code
	SlotTypes   []slot.SlotType // per-local-slot GC scan vector, for internal/fiber's stack scan
}

// Extern names one native function callable via OpCallExtern. Signature
// is a human-readable description only — the ABI itself is untyped
// slot-in/slot-out (spec.md §4.8); Signature exists for disassembly and
// for internal/extload's manifest validation, not for the dispatcher.
type Extern struct {
	Name      string
	Signature string
}

// DispatchKey is the lookup key into a Module's interface dispatch table:
// "which concrete type, satisfying which interface".
type DispatchKey struct {
	ConcreteMeta slot.MetaID
	IfaceMeta    slot.MetaID
}

// Module is a fully-loaded Vo program: every table named by spec.md
// §4.4's "A Module contains..." sentence, plus the entry function index.
type Module struct {
	Structs    []StructMeta
	Interfaces []IfaceMeta
	Constants  []Constant
	Globals    []Global
	Functions  []Function
	Externs    []Extern
	Dispatch   map[DispatchKey][]uint32
	EntryFunc  uint32

	// ErrorStructID/ErrorIfaceID name the struct/interface implementing
	// spec.md §6's builtin `error` interface (one method, `Error() string`),
	// if this module declares one. Zero means the module declares none —
	// internal/abi's error helper then carries a fatal runtime error as a
	// bare message with no Vo-visible interface value, since boxing one
	// requires knowing which struct/interface/method/dispatch-entry
	// quadruple the module assigned to the role (spec.md leaves the
	// concrete struct and interface layout implementing `error` up to
	// each module, not to a globally reserved meta_id).
	ErrorStructID slot.MetaID
	ErrorIfaceID  slot.MetaID

	// Debug is the optional CBOR-encoded (func_id, pc) -> source location
	// side table (SPEC_FULL.md §4, supplemented feature 2). Nil if the
	// module was built with -strip.
	Debug *DebugInfo
}

// NewModule returns an empty Module ready to be populated by a builder or
// a deserializer.
func NewModule() *Module {
	return &Module{Dispatch: make(map[DispatchKey][]uint32)}
}

// SlotTypes implements objmodel.StructTypeInfo: it resolves a struct
// meta_id (spec.md §3.2's 24-bit meta_id space, starting at
// slot.FirstUserStruct) to its per-slot scan vector. Returns nil for any
// meta_id outside the module's struct table, matching the interface's
// documented "nil if metaID does not name a known struct" contract.
func (m *Module) SlotTypes(metaID slot.MetaID) []slot.SlotType {
	idx := int(metaID) - int(slot.FirstUserStruct)
	if idx < 0 || idx >= len(m.Structs) {
		return nil
	}
	return m.Structs[idx].SlotTypes
}

// Struct returns the StructMeta for metaID, or an error if metaID is out
// of range. Unlike SlotTypes (which implements a lenient interface
// contract), this is used by the interpreter and disassembler where an
// unknown meta_id is a hard module-consistency bug worth surfacing.
func (m *Module) Struct(metaID slot.MetaID) (*StructMeta, error) {
	idx := int(metaID) - int(slot.FirstUserStruct)
	if idx < 0 || idx >= len(m.Structs) {
		return nil, fmt.Errorf("bytecode: struct meta_id %d out of range (have %d structs)", metaID, len(m.Structs))
	}
	return &m.Structs[idx], nil
}

// Interface returns the IfaceMeta for metaID, or an error if out of range.
func (m *Module) Interface(metaID slot.MetaID) (*IfaceMeta, error) {
	idx := int(metaID) - int(slot.FirstIface)
	if idx < 0 || idx >= len(m.Interfaces) {
		return nil, fmt.Errorf("bytecode: interface meta_id %d out of range (have %d interfaces)", metaID, len(m.Interfaces))
	}
	return &m.Interfaces[idx], nil
}

// Method resolves the function ID implementing one of iface's methods
// (by index into IfaceMeta.Methods) for concreteMeta, per spec.md §4.6's
// "Interface calls look up the concrete type's method table via the
// module's dispatch table using (concrete_meta_id, iface_meta_id)."
func (m *Module) Method(concreteMeta, ifaceMeta slot.MetaID, methodIdx int) (uint32, error) {
	entries, ok := m.Dispatch[DispatchKey{ConcreteMeta: concreteMeta, IfaceMeta: ifaceMeta}]
	if !ok {
		return 0, fmt.Errorf("bytecode: no dispatch entry for concrete_meta=%d iface_meta=%d", concreteMeta, ifaceMeta)
	}
	if methodIdx < 0 || methodIdx >= len(entries) {
		return 0, fmt.Errorf("bytecode: method index %d out of range for concrete_meta=%d iface_meta=%d", methodIdx, concreteMeta, ifaceMeta)
	}
	return entries[methodIdx], nil
}
