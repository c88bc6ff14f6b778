package interp

import (
	"fmt"

	"github.com/chazu/vo/internal/fiber"
	"github.com/chazu/vo/internal/slot"
	"github.com/chazu/vo/pkg/bytecode"
)

// execIface handles the interface group (0xB0-0xB2): OpIfaceAssign,
// OpIfaceAssert, OpIfaceUnbox.
func (ip *Interp) execIface(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	switch ins.Op {
	case bytecode.OpIfaceAssign:
		return ip.execIfaceAssign(f, ins)
	case bytecode.OpIfaceAssert:
		return ip.execIfaceAssert(f, ins)
	case bytecode.OpIfaceUnbox:
		return ip.execIfaceUnbox(f, ins)
	default:
		return outcomeDead, fmt.Errorf("interp: execIface: unreachable opcode %s", ins.Op)
	}
}

// execIfaceAssign handles OpIfaceAssign (0xB0): r[a..a+2) = box(r[b]) as
// an interface of type c. Flags carries r[b]'s own ValueKind; for a
// heap-allocated kind the concrete MetaID is never re-encoded in the
// instruction — it's read straight off the value's own heap header, the
// same one OpStructNew etc. already populated, rather than spending a
// second operand on information the object already carries. A primitive
// (non-heap) kind has no such header, so its MetaID is always 0.
func (ip *Interp) execIfaceAssign(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	kind := slot.ValueKind(ins.Flags)
	payload := f.Reg(ins.B)

	var concreteMeta slot.MetaID
	if slot.NeedsGC(kind) && !payload.AsRef().IsNil() {
		concreteMeta = ip.GC.Heap().Header(payload.AsRef()).Meta.MetaID()
	}
	valueMeta := slot.PackValueMeta(concreteMeta, kind)
	iface0 := slot.PackIface(slot.MetaID(ins.C), valueMeta)

	f.SetReg(ins.A, iface0)
	f.SetReg(ins.A+1, payload)
	return outcomeContinue, nil
}

// execIfaceAssert handles OpIfaceAssert (0xB1): r[a] = r[b].(T), where
// r[b..b+2) holds the interface pair being asserted. Flags bits [0:5)
// carry T's ValueKind and bit 5 the comma-ok flag (ValueKind needs 5
// bits, 0-20, leaving bits 5-7 free); C carries T's MetaID, consulted
// only when T is a struct kind (every other kind's identity is fully
// described by ValueKind alone). Without comma-ok, a failed assertion
// panics instead of writing r[a+1].
func (ip *Interp) execIfaceAssert(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	targetKind := slot.ValueKind(ins.Flags & 0x1F)
	commaOk := ins.Flags&0x20 != 0
	targetMeta := slot.MetaID(ins.C)

	iface0 := f.Reg(ins.B)
	payload := f.Reg(ins.B + 1)
	_, valueMeta := slot.UnpackIface(iface0)

	match := valueMeta.Kind() == targetKind
	if match && targetKind == slot.KindStruct {
		match = valueMeta.MetaID() == targetMeta
	}

	if match {
		f.SetReg(ins.A, payload)
	} else {
		f.SetReg(ins.A, 0)
	}
	if commaOk {
		f.SetReg(ins.A+1, boolSlot(match))
		return outcomeContinue, nil
	}
	if !match {
		return ip.execPanicValue(f, vmError(ip, fmt.Sprintf(
			"interp: interface conversion: unexpected type (want kind %d, have kind %d)",
			targetKind, valueMeta.Kind())))
	}
	return outcomeContinue, nil
}

// execIfaceUnbox handles OpIfaceUnbox (0xB2): r[a] = r[b..b+2)'s payload
// slot. The caller is responsible for having already checked the
// dynamic type (via a preceding OpIfaceAssert or a statically known
// concrete type), matching the opcode's own doc comment.
func (ip *Interp) execIfaceUnbox(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	f.SetReg(ins.A, f.Reg(ins.B+1))
	return outcomeContinue, nil
}
