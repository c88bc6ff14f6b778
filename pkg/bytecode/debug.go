package bytecode

import "github.com/fxamacker/cbor/v2"

// SourceLoc names one source position: file, 1-based line and column.
// Named the way the teacher's own SourceLocation is (BytecodeOffset,
// Line, Column), minus the bytecode-offset field since DebugInfo keys by
// (func_id, pc) directly rather than a flat byte offset.
type SourceLoc struct {
	File   string `cbor:"file"`
	Line   uint32 `cbor:"line"`
	Column uint16 `cbor:"col"`
}

// debugEntry is the composite lookup key for one instruction's source
// location. CBOR has no native map-key-struct support as clean as Go's,
// so DebugInfo stores a flat slice of entries instead of a map and
// resolves lookups linearly — debug info is read rarely (on a panic or
// by a disassembler), never on a hot path, so this trades lookup speed
// for a serialization format with no gaps.
type debugEntry struct {
	FuncID uint32    `cbor:"func"`
	PC     uint32    `cbor:"pc"`
	Loc    SourceLoc `cbor:"loc"`
}

// DebugInfo is the optional side table associating (func_id, pc) with a
// source location, per spec.md §6 ("a companion debug-info blob...
// optional and may be stripped") and SPEC_FULL.md §4 item 2. It is
// attached to a Module only when the compiler that produced the module
// kept it, and is dropped entirely by cmd/vo's -strip flag.
type DebugInfo struct {
	entries []debugEntry
}

// NewDebugInfo returns an empty DebugInfo ready for Add calls.
func NewDebugInfo() *DebugInfo {
	return &DebugInfo{}
}

// Add records the source location of one (funcID, pc) instruction.
func (d *DebugInfo) Add(funcID uint32, pc uint32, loc SourceLoc) {
	d.entries = append(d.entries, debugEntry{FuncID: funcID, PC: pc, Loc: loc})
}

// Lookup returns the source location recorded for (funcID, pc), if any.
func (d *DebugInfo) Lookup(funcID uint32, pc uint32) (SourceLoc, bool) {
	for _, e := range d.entries {
		if e.FuncID == funcID && e.PC == pc {
			return e.Loc, true
		}
	}
	return SourceLoc{}, false
}

// encode serializes the debug table to canonical CBOR, grounded in the
// teacher's wire.go use of fxamacker/cbor for a compact, self-describing
// side channel rather than another hand-rolled binary.AppendUintN format.
func (d *DebugInfo) encode() ([]byte, error) {
	opts := cbor.CanonicalEncOptions()
	mode, err := opts.EncMode()
	if err != nil {
		return nil, err
	}
	return mode.Marshal(d.entries)
}

func decodeDebugInfo(data []byte) (*DebugInfo, error) {
	var entries []debugEntry
	if err := cbor.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return &DebugInfo{entries: entries}, nil
}
