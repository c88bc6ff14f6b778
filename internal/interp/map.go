package interp

import (
	"fmt"

	"github.com/chazu/vo/internal/fiber"
	"github.com/chazu/vo/internal/slot"
	"github.com/chazu/vo/pkg/bytecode"
)

// execMap handles the map group (0xA0-0xA4): OpMapNew, OpMapGet,
// OpMapSet, OpMapDelete, OpMapLen.
func (ip *Interp) execMap(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	switch ins.Op {
	case bytecode.OpMapNew:
		return ip.execMapNew(f, ins)
	case bytecode.OpMapGet:
		return ip.execMapGet(f, ins)
	case bytecode.OpMapSet:
		return ip.execMapSet(f, ins)
	case bytecode.OpMapDelete:
		return ip.execMapDelete(f, ins)
	case bytecode.OpMapLen:
		return ip.execMapLen(f, ins)
	default:
		return outcomeDead, fmt.Errorf("interp: execMap: unreachable opcode %s", ins.Op)
	}
}

// execMapNew handles OpMapNew (0xA0): Flags = key kind, low byte of B =
// val kind, C = val meta_id. The key's own meta_id is dropped — map keys
// are always primitive, string, or ref-identity values, never an inline
// multi-slot struct, so KindX alone is enough to encode/compare one.
func (ip *Interp) execMapNew(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	keyMeta := slot.PackValueMeta(0, slot.ValueKind(ins.Flags))
	valMeta := slot.PackValueMeta(slot.MetaID(ins.C), slot.ValueKind(ins.B&0xFF))
	ref := ip.GC.NewMap(keyMeta, valMeta)
	f.SetReg(ins.A, ref.Slot())
	return outcomeContinue, nil
}

// keyWidth reports how many slots a map's key occupies given its KeyMeta
// — 1 for every kind this implementation allows as a map key (primitive,
// string, or ref-identity); map keys are never interface- or
// struct-typed, so this never needs the general SlotWidth dispatch.
func keyWidth(keyMeta slot.ValueMeta) int { return 1 }

// execMapGet handles OpMapGet (0xA1): r[a..a+width), r[a+width] (ok) =
// map r[b][r[c]]. width is the map's own ValMeta width (1 for a
// primitive/string/ref value, 2 for an interface value), read off the
// live MapData rather than re-encoded in the instruction.
func (ip *Interp) execMapGet(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	ref := f.Reg(ins.B).AsRef()
	md, err := ip.GC.Heap().Map(ref)
	if err != nil {
		return outcomeDead, err
	}
	keySlots := f.RegN(ins.C, keyWidth(md.KeyMeta))
	vals, ok, err := ip.GC.Heap().MapGet(ref, keySlots)
	if err != nil {
		return outcomeDead, err
	}
	width := ip.GC.Heap().SlotWidth(md.ValMeta)
	if ok {
		for i, v := range vals {
			f.SetReg(ins.A+uint16(i), v)
		}
	} else {
		for i := 0; i < width; i++ {
			f.SetReg(ins.A+uint16(i), 0)
		}
	}
	f.SetReg(ins.A+uint16(width), boolSlot(ok))
	return outcomeContinue, nil
}

// execMapSet handles OpMapSet (0xA2): map r[a][r[b]] = r[c..c+width),
// width = the map's own ValMeta width.
func (ip *Interp) execMapSet(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	ref := f.Reg(ins.A).AsRef()
	md, err := ip.GC.Heap().Map(ref)
	if err != nil {
		return outcomeDead, err
	}
	keySlots := make([]slot.Slot, keyWidth(md.KeyMeta))
	copy(keySlots, f.RegN(ins.B, len(keySlots)))
	width := ip.GC.Heap().SlotWidth(md.ValMeta)
	vals := make([]slot.Slot, width)
	copy(vals, f.RegN(ins.C, width))
	if err := ip.GC.Heap().MapSet(ref, keySlots, vals); err != nil {
		return outcomeDead, err
	}
	if md.KeyMeta.Kind() == slot.KindString || slot.NeedsGC(md.KeyMeta.Kind()) {
		ip.GC.WriteBarrier(ref, keySlots[0].AsRef())
	}
	ip.applyWriteBarrier(ref, md.ValMeta, vals)
	return outcomeContinue, nil
}

// execMapDelete handles OpMapDelete (0xA3): delete(r[a], r[b]).
func (ip *Interp) execMapDelete(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	ref := f.Reg(ins.A).AsRef()
	md, err := ip.GC.Heap().Map(ref)
	if err != nil {
		return outcomeDead, err
	}
	keySlots := f.RegN(ins.B, keyWidth(md.KeyMeta))
	if err := ip.GC.Heap().MapDelete(ref, keySlots); err != nil {
		return outcomeDead, err
	}
	return outcomeContinue, nil
}

// execMapLen handles OpMapLen (0xA4): r[a] = len(r[b]).
func (ip *Interp) execMapLen(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	ref := f.Reg(ins.B).AsRef()
	n := ip.GC.Heap().MapLen(ref)
	f.SetReg(ins.A, i64Slot(int64(n)))
	return outcomeContinue, nil
}
