package interp

import (
	"fmt"

	"github.com/chazu/vo/internal/fiber"
	"github.com/chazu/vo/internal/slot"
	"github.com/chazu/vo/pkg/bytecode"
)

// execStructPointer handles the struct/pointer group (0x80-0x85):
// OpStructNew, OpStructGet, OpStructSet, OpPointerNew, OpPointerDeref,
// OpPointerStore.
func (ip *Interp) execStructPointer(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	switch ins.Op {
	case bytecode.OpStructNew:
		return ip.execStructNew(f, ins)
	case bytecode.OpStructGet:
		return ip.execStructGet(f, ins)
	case bytecode.OpStructSet:
		return ip.execStructSet(f, ins)
	case bytecode.OpPointerNew:
		return ip.execPointerNew(f, ins)
	case bytecode.OpPointerDeref:
		return ip.execPointerDeref(f, ins)
	case bytecode.OpPointerStore:
		return ip.execPointerStore(f, ins)
	default:
		return outcomeDead, fmt.Errorf("interp: execStructPointer: unreachable opcode %s", ins.Op)
	}
}

// execStructNew handles OpStructNew (0x80): r[a] = new struct of meta_id
// b. A struct's meta_id alone describes its layout (no element kind
// needed, unlike the array/slice/map/pointer creation opcodes), so b is
// used directly rather than packed through Flags/C.
func (ip *Interp) execStructNew(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	ref, err := ip.GC.NewStruct(slot.MetaID(ins.B))
	if err != nil {
		return outcomeDead, err
	}
	f.SetReg(ins.A, ref.Slot())
	return outcomeContinue, nil
}

// execStructGet handles OpStructGet (0x81): r[a] = r[b].field[c]. Field c
// may be multi-slot (a nested struct or interface field), so this reads
// the struct's own StructMeta to learn the field's starting slot and
// width rather than assuming width 1 — there is no separate
// OpStructGetN, this opcode covers both shapes.
func (ip *Interp) execStructGet(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	ref := f.Reg(ins.B).AsRef()
	sd, err := ip.GC.Heap().Struct(ref)
	if err != nil {
		return outcomeDead, err
	}
	sm, err := ip.Mod.Struct(sd.MetaID)
	if err != nil {
		return outcomeDead, err
	}
	fieldIdx := int(ins.C)
	if fieldIdx < 0 || fieldIdx >= len(sm.FieldStart) {
		return outcomeDead, fmt.Errorf("interp: struct %q has no field %d", sm.Name, fieldIdx)
	}
	vals, err := ip.GC.Heap().FieldSlots(ref, sm.FieldStart[fieldIdx], sm.FieldSlots[fieldIdx])
	if err != nil {
		return outcomeDead, err
	}
	for i, v := range vals {
		f.SetReg(ins.A+uint16(i), v)
	}
	return outcomeContinue, nil
}

// execStructSet handles OpStructSet (0x82): r[a].field[b] = r[c..c+width),
// width taken from the struct's own field table the same way
// execStructGet does.
func (ip *Interp) execStructSet(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	ref := f.Reg(ins.A).AsRef()
	sd, err := ip.GC.Heap().Struct(ref)
	if err != nil {
		return outcomeDead, err
	}
	sm, err := ip.Mod.Struct(sd.MetaID)
	if err != nil {
		return outcomeDead, err
	}
	fieldIdx := int(ins.B)
	if fieldIdx < 0 || fieldIdx >= len(sm.FieldStart) {
		return outcomeDead, fmt.Errorf("interp: struct %q has no field %d", sm.Name, fieldIdx)
	}
	start, width := sm.FieldStart[fieldIdx], sm.FieldSlots[fieldIdx]
	vals := f.RegN(ins.C, width)
	if err := ip.GC.Heap().SetFieldSlots(ref, start, vals); err != nil {
		return outcomeDead, err
	}
	ip.barrierFieldWrite(ref, sm.SlotTypes, start, vals)
	return outcomeContinue, nil
}

// execPointerNew handles OpPointerNew (0x83): r[a] = new pointer to
// r[b], the pointee's ValueKind/MetaID packed into Flags/C per the
// general creation-opcode convention this package's own doc comment
// documents for OpArrayNew et al.
func (ip *Interp) execPointerNew(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	pointeeMeta := slot.PackValueMeta(slot.MetaID(ins.C), slot.ValueKind(ins.Flags))
	width := ip.GC.Heap().SlotWidth(pointeeMeta)
	init := f.RegN(ins.B, width)
	ref := ip.GC.NewPointer(pointeeMeta, init)
	ip.applyWriteBarrier(ref, pointeeMeta, init)
	f.SetReg(ins.A, ref.Slot())
	return outcomeContinue, nil
}

// execPointerDeref handles OpPointerDeref (0x84): r[a] = *r[b]. The
// pointee's width is never re-encoded; it's exactly len(PointerData.Val),
// fixed at OpPointerNew time.
func (ip *Interp) execPointerDeref(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	ref := f.Reg(ins.B).AsRef()
	vals, err := ip.GC.Heap().Deref(ref)
	if err != nil {
		return outcomeDead, err
	}
	for i, v := range vals {
		f.SetReg(ins.A+uint16(i), v)
	}
	return outcomeContinue, nil
}

// execPointerStore handles OpPointerStore (0x85): *r[a] = r[b..b+width),
// width read off the pointer's own PointeeMeta.
func (ip *Interp) execPointerStore(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	ref := f.Reg(ins.A).AsRef()
	pd, err := ip.GC.Heap().Pointer(ref)
	if err != nil {
		return outcomeDead, err
	}
	width := len(pd.Val)
	vals := f.RegN(ins.B, width)
	if err := ip.GC.Heap().Store(ref, vals); err != nil {
		return outcomeDead, err
	}
	ip.applyWriteBarrier(ref, pd.PointeeMeta, vals)
	return outcomeContinue, nil
}

// applyWriteBarrier fires gc.WriteBarrier/WriteBarrierIface for whichever
// slots within vals (described by meta, a single value's shape) are
// themselves refs, mirroring internal/gc/scan.go's scanValueSlots — the
// same dispatch the collector's own scanner uses to find refs inside an
// array element, map value, or pointer pointee, here driving the barrier
// instead of a mark.
func (ip *Interp) applyWriteBarrier(parent slot.Ref, meta slot.ValueMeta, vals []slot.Slot) {
	if len(vals) == 0 {
		return
	}
	switch {
	case meta.Kind() == slot.KindInterface:
		if len(vals) >= 2 {
			ip.GC.WriteBarrierIface(parent, vals[0], vals[1])
		}
	case meta.Kind() == slot.KindStruct && meta.MetaID() >= slot.FirstUserStruct:
		sm, err := ip.Mod.Struct(meta.MetaID())
		if err != nil {
			return
		}
		ip.barrierFieldWrite(parent, sm.SlotTypes, 0, vals)
	case slot.NeedsGC(meta.Kind()):
		ip.GC.WriteBarrier(parent, vals[0].AsRef())
	}
}

// barrierFieldWrite applies the write barrier to a run of slots just
// written at [start:start+len(vals)) of a struct (or struct-shaped
// window) whose full scan vector is types, per-slot switch mirroring
// internal/gc/scan.go's scanStructSlots.
func (ip *Interp) barrierFieldWrite(parent slot.Ref, types []slot.SlotType, start int, vals []slot.Slot) {
	for i, v := range vals {
		idx := start + i
		if idx < 0 || idx >= len(types) {
			continue
		}
		switch types[idx] {
		case slot.TypeGcRef:
			ip.GC.WriteBarrier(parent, v.AsRef())
		case slot.TypeInterface1:
			if idx > 0 && types[idx-1] == slot.TypeInterface0 {
				ip.GC.WriteBarrierIface(parent, vals[i-1], v)
			}
		}
	}
}
