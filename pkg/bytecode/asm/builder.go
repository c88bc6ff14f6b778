// Package asm is a hand-assembly API for building bytecode.Module values
// directly, standing in for the parser/compiler this spec scopes out
// (SPEC_FULL.md §5 Non-goals). Tests and fixtures construct modules by
// calling FuncBuilder methods one instruction at a time, the same
// Emit/EmitWithOperand/PatchJump shape as the teacher's Chunk builder
// methods (pkg/bytecode/chunk.go), adapted from variable-length stack-
// machine opcodes to this format's fixed 8-byte register instructions.
package asm

import (
	"fmt"

	"github.com/chazu/vo/internal/slot"
	"github.com/chazu/vo/pkg/bytecode"
)

// ModuleBuilder accumulates a bytecode.Module's tables incrementally.
type ModuleBuilder struct {
	m *bytecode.Module
}

// NewModuleBuilder returns a builder wrapping an empty module.
func NewModuleBuilder() *ModuleBuilder {
	return &ModuleBuilder{m: bytecode.NewModule()}
}

// AddConstant appends a constant and returns its index in the pool.
func (b *ModuleBuilder) AddConstant(c bytecode.Constant) uint16 {
	b.m.Constants = append(b.m.Constants, c)
	return uint16(len(b.m.Constants) - 1)
}

// AddGlobal appends a global slot descriptor and returns its index.
func (b *ModuleBuilder) AddGlobal(g bytecode.Global) uint16 {
	b.m.Globals = append(b.m.Globals, g)
	return uint16(len(b.m.Globals) - 1)
}

// AddStruct appends a struct meta entry. The returned slot.MetaID is
// what OpStructNew/OpIfaceAssign instructions should embed.
func (b *ModuleBuilder) AddStruct(s bytecode.StructMeta) slot.MetaID {
	b.m.Structs = append(b.m.Structs, s)
	return slot.FirstUserStruct + slot.MetaID(len(b.m.Structs)-1)
}

// AddInterface appends an interface meta entry, returning its meta_id.
func (b *ModuleBuilder) AddInterface(iface bytecode.IfaceMeta) slot.MetaID {
	b.m.Interfaces = append(b.m.Interfaces, iface)
	return slot.FirstIface + slot.MetaID(len(b.m.Interfaces)-1)
}

// AddExtern appends an extern descriptor, returning its extern_id (the
// value OpCallExtern's A operand names).
func (b *ModuleBuilder) AddExtern(e bytecode.Extern) uint16 {
	b.m.Externs = append(b.m.Externs, e)
	return uint16(len(b.m.Externs) - 1)
}

// SetDispatch registers the method table for (concreteMeta, ifaceMeta).
func (b *ModuleBuilder) SetDispatch(concreteMeta, ifaceMeta slot.MetaID, funcIDs []uint32) {
	b.m.Dispatch[bytecode.DispatchKey{ConcreteMeta: concreteMeta, IfaceMeta: ifaceMeta}] = funcIDs
}

// SetEntry sets the module's entry function index.
func (b *ModuleBuilder) SetEntry(funcID uint32) { b.m.EntryFunc = funcID }

// SetErrorType records which struct/interface pair implements the
// builtin error interface for this module, for internal/abi's error
// boxing helper.
func (b *ModuleBuilder) SetErrorType(structID, ifaceID slot.MetaID) {
	b.m.ErrorStructID = structID
	b.m.ErrorIfaceID = ifaceID
}

// Func starts a new function and returns a FuncBuilder for its body. The
// function's index (for Call instructions and SetEntry) is len(Functions)
// at the time Func is called.
func (b *ModuleBuilder) Func(name string, paramCount, paramSlots, localSlots, retSlots int) *FuncBuilder {
	idx := uint32(len(b.m.Functions))
	b.m.Functions = append(b.m.Functions, bytecode.Function{
		Name:       name,
		ParamCount: paramCount,
		ParamSlots: paramSlots,
		LocalSlots: localSlots,
		RetSlots:   retSlots,
	})
	return &FuncBuilder{b: b, idx: idx}
}

// Module finalizes and returns the built module.
func (b *ModuleBuilder) Module() *bytecode.Module { return b.m }

// FuncBuilder accumulates one function's instruction stream, resolving
// forward jumps via labels the way the teacher's EmitJump/PatchJump pair
// does for its variable-length bytecode.
type FuncBuilder struct {
	b    *ModuleBuilder
	idx  uint32
	code bytecode.Code
}

// Index returns this function's index in the module's function table.
func (f *FuncBuilder) Index() uint32 { return f.idx }

// SetSlotTypes records the per-local-slot GC scan vector for the frame
// this function builds on, used by internal/fiber's stack scan.
func (f *FuncBuilder) SetSlotTypes(types []slot.SlotType) {
	f.b.m.Functions[f.idx].SlotTypes = types
}

// Emit appends one instruction and returns its pc, mirroring the
// teacher's Chunk.Emit return-the-offset convention so callers can save
// a jump site for later patching.
func (f *FuncBuilder) Emit(ins bytecode.Instruction) int {
	pc := len(f.code)
	f.code = append(f.code, ins)
	f.b.m.Functions[f.idx].Code = f.code
	return pc
}

// Op is a convenience wrapper over Emit for the common {op, flags, a, b, c}
// shape, avoiding a literal bytecode.Instruction at every call site.
func (f *FuncBuilder) Op(op bytecode.Opcode, flags uint8, a, b, c uint16) int {
	return f.Emit(bytecode.Instruction{Op: op, Flags: flags, A: a, B: b, C: c})
}

// PC returns the current end-of-stream program counter — the pc the next
// Emit call will occupy.
func (f *FuncBuilder) PC() int { return len(f.code) }

// EmitJump emits a jump-family instruction with a placeholder offset and
// returns its pc, to be resolved later by PatchJump.
func (f *FuncBuilder) EmitJump(op bytecode.Opcode, condReg uint16) int {
	return f.Op(op, 0, condReg, 0, 0)
}

// PatchJump rewrites the jump instruction at pc so its offset (B,
// interpreted as a signed 16-bit relative displacement added to pc+1)
// lands on the current end of the instruction stream — the fixed-width
// analogue of the teacher's PatchJump, which back-patches a placeholder
// byte pair once the jump target is known.
func (f *FuncBuilder) PatchJump(pc int) {
	f.PatchJumpTo(pc, f.PC())
}

// PatchJumpTo rewrites the jump instruction at pc to target the given
// absolute pc.
func (f *FuncBuilder) PatchJumpTo(pc int, target int) {
	delta := target - (pc + 1)
	if delta < -32768 || delta > 32767 {
		panic(fmt.Sprintf("asm: jump offset %d out of int16 range", delta))
	}
	f.code[pc].B = uint16(int16(delta))
	f.b.m.Functions[f.idx].Code = f.code
}

// EmitLoop emits an unconditional backward jump to loopStart, the
// fixed-width analogue of the teacher's EmitLoop.
func (f *FuncBuilder) EmitLoop(loopStart int) int {
	pc := f.Op(bytecode.OpJump, 0, 0, 0, 0)
	delta := loopStart - (pc + 1)
	if delta < -32768 || delta > 32767 {
		panic(fmt.Sprintf("asm: loop offset %d out of int16 range", delta))
	}
	f.code[pc].B = uint16(int16(delta))
	f.b.m.Functions[f.idx].Code = f.code
	return pc
}
