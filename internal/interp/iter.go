package interp

import (
	"fmt"
	"unicode/utf8"

	"github.com/chazu/vo/internal/fiber"
	"github.com/chazu/vo/pkg/bytecode"
)

// execIter handles the range-for group (0xF0-0xF1): OpIterNew,
// OpIterNext.
func (ip *Interp) execIter(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	switch ins.Op {
	case bytecode.OpIterNew:
		return ip.execIterNew(f, ins)
	case bytecode.OpIterNext:
		return ip.execIterNext(f, ins)
	default:
		return outcomeDead, fmt.Errorf("interp: execIter: unreachable opcode %s", ins.Op)
	}
}

// execIterNew handles OpIterNew (0xF0): r[a] = new iterator over r[b];
// Flags names the fiber.IterKind. For IterIntRange there is no
// container — B and C instead hold the range's start and end registers
// directly (Step is hardcoded to 1; a custom step has no operand room
// here, a deliberate simplification). For every other kind B is the
// container ref and C is unused. r[a] receives the pushed iterator's
// stack index, matching the opcode's own "r[a] = new iterator" comment,
// though OpIterNext always addresses the topmost iterator rather than
// reading it back.
func (ip *Interp) execIterNew(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	kind := fiber.IterKind(ins.Flags)
	var it fiber.IterEntry
	it.Kind = kind

	switch kind {
	case fiber.IterIntRange:
		it.Idx = int(asI64(f.Reg(ins.B)))
		it.End = int(asI64(f.Reg(ins.C)))
		it.Step = 1
	case fiber.IterSlice, fiber.IterArray:
		ref := f.Reg(ins.B).AsRef()
		iv, err := ip.resolveIndexable(ref)
		if err != nil {
			return outcomeDead, err
		}
		it.Ref = ref
		it.End = iv.length
		it.ElemMeta = iv.arr.ElemMeta
	case fiber.IterMap:
		ref := f.Reg(ins.B).AsRef()
		md, err := ip.GC.Heap().Map(ref)
		if err != nil {
			return outcomeDead, err
		}
		it.Ref = ref
		it.End = ip.GC.Heap().MapOrderLen(ref)
		it.ElemMeta = md.ValMeta // reused to mean "value meta" for a map iterator
	case fiber.IterString:
		ref := f.Reg(ins.B).AsRef()
		b, err := ip.GC.Heap().StringBytes(ref)
		if err != nil {
			return outcomeDead, err
		}
		it.Ref = ref
		it.End = len(b)
	default:
		return outcomeDead, fmt.Errorf("interp: execIterNew: unknown iterator kind %d", kind)
	}

	idx := f.PushIter(it)
	f.SetReg(ins.A, i64Slot(int64(idx)))
	return outcomeContinue, nil
}

// execIterNext handles OpIterNext (0xF1): r[a..a+1+width) = (key/idx,
// value), r[a+1+width] (ok) = more. width is 0 for an IterIntRange loop
// (no per-iteration value, only the running integer), 1 for a string
// loop's decoded rune, and the element's own SlotWidth for a
// slice/array/map loop. The topmost iterator self-pops once exhausted —
// a loop that instead exits via break relies on fiber.Fiber.PopFrame's
// own IterBase cleanup, not this.
func (ip *Interp) execIterNext(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	it := f.CurrentIter()
	if it == nil {
		return outcomeDead, fmt.Errorf("interp: OpIterNext with no active iterator")
	}

	if it.Kind == fiber.IterMap {
		for !it.Done() {
			_, _, live, err := ip.GC.Heap().MapEntryAt(it.Ref, it.Idx)
			if err != nil {
				return outcomeDead, err
			}
			if live {
				break
			}
			it.Idx++
		}
	}

	if it.Done() {
		width := iterValueWidth(ip, it)
		f.PopIter()
		for i := 0; i < 1+width; i++ {
			f.SetReg(ins.A+uint16(i), 0)
		}
		f.SetReg(ins.A+uint16(1+width), boolSlot(false))
		return outcomeContinue, nil
	}

	switch it.Kind {
	case fiber.IterIntRange:
		f.SetReg(ins.A, i64Slot(int64(it.Idx)))
		f.SetReg(ins.A+1, boolSlot(true))
		it.Advance()

	case fiber.IterSlice, fiber.IterArray:
		iv, err := ip.resolveIndexable(it.Ref)
		if err != nil {
			return outcomeDead, err
		}
		spe := ip.GC.Heap().SlotWidth(it.ElemMeta)
		vals := iv.arr.GetSlots(iv.base+it.Idx, spe)
		f.SetReg(ins.A, i64Slot(int64(it.Idx)))
		for i, v := range vals {
			f.SetReg(ins.A+1+uint16(i), v)
		}
		f.SetReg(ins.A+1+uint16(spe), boolSlot(true))
		it.Advance()

	case fiber.IterMap:
		keySlots, vals, _, err := ip.GC.Heap().MapEntryAt(it.Ref, it.Idx)
		if err != nil {
			return outcomeDead, err
		}
		spe := ip.GC.Heap().SlotWidth(it.ElemMeta)
		if len(keySlots) > 0 {
			f.SetReg(ins.A, keySlots[0])
		} else {
			f.SetReg(ins.A, 0)
		}
		for i := 0; i < spe; i++ {
			if i < len(vals) {
				f.SetReg(ins.A+1+uint16(i), vals[i])
			} else {
				f.SetReg(ins.A+1+uint16(i), 0)
			}
		}
		f.SetReg(ins.A+1+uint16(spe), boolSlot(true))
		it.Advance()

	case fiber.IterString:
		b, err := ip.GC.Heap().StringBytes(it.Ref)
		if err != nil {
			return outcomeDead, err
		}
		r, size := utf8.DecodeRune(b[it.Idx:])
		f.SetReg(ins.A, i64Slot(int64(it.Idx)))
		f.SetReg(ins.A+1, i64Slot(int64(r)))
		f.SetReg(ins.A+2, boolSlot(true))
		it.Idx += size

	default:
		return outcomeDead, fmt.Errorf("interp: execIterNext: unknown iterator kind %d", it.Kind)
	}

	return outcomeContinue, nil
}

// iterValueWidth reports how many value slots (beyond the key/idx slot)
// a fully-exhausted OpIterNext write must still zero out, matching the
// width the live case for it.Kind would have used.
func iterValueWidth(ip *Interp, it *fiber.IterEntry) int {
	switch it.Kind {
	case fiber.IterIntRange:
		return 0
	case fiber.IterString:
		return 1
	default:
		return ip.GC.Heap().SlotWidth(it.ElemMeta)
	}
}
