package interp

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/chazu/vo/internal/fiber"
	"github.com/chazu/vo/internal/objmodel"
	"github.com/chazu/vo/internal/slot"
	"github.com/chazu/vo/pkg/bytecode"
)

// execContainer handles the array/slice/string group (0x90-0x9A):
// OpArrayNew, OpSliceNew, OpGet, OpSet, OpGetN, OpSetN, OpLen, OpAppend,
// OpReslice, OpStrConcat, OpStrIndex.
func (ip *Interp) execContainer(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	switch ins.Op {
	case bytecode.OpArrayNew:
		return ip.execArrayNew(f, ins)
	case bytecode.OpSliceNew:
		return ip.execSliceNew(f, ins)
	case bytecode.OpGet:
		return ip.execGet(f, ins)
	case bytecode.OpSet:
		return ip.execSet(f, ins)
	case bytecode.OpGetN:
		return ip.execGetN(f, ins)
	case bytecode.OpSetN:
		return ip.execSetN(f, ins)
	case bytecode.OpLen:
		return ip.execLen(f, ins)
	case bytecode.OpAppend:
		return ip.execAppend(f, ins)
	case bytecode.OpReslice:
		return ip.execReslice(f, ins)
	case bytecode.OpStrConcat:
		return ip.execStrConcat(f, ins)
	case bytecode.OpStrIndex:
		return ip.execStrIndex(f, ins)
	default:
		return outcomeDead, fmt.Errorf("interp: execContainer: unreachable opcode %s", ins.Op)
	}
}

// execArrayNew handles OpArrayNew (0x90): r[a] = new array of length b,
// element kind/meta_id packed into Flags/C per the package's general
// creation-opcode convention.
func (ip *Interp) execArrayNew(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	elemMeta := slot.PackValueMeta(slot.MetaID(ins.C), slot.ValueKind(ins.Flags))
	ref := ip.GC.NewArray(elemMeta, int(ins.B))
	f.SetReg(ins.A, ref.Slot())
	return outcomeContinue, nil
}

// execSliceNew handles OpSliceNew (0x91): r[a] = new slice of length b,
// same element encoding as OpArrayNew.
func (ip *Interp) execSliceNew(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	elemMeta := slot.PackValueMeta(slot.MetaID(ins.C), slot.ValueKind(ins.Flags))
	ref := ip.GC.NewSlice(elemMeta, int(ins.B))
	f.SetReg(ins.A, ref.Slot())
	return outcomeContinue, nil
}

// indexable is either a bare array or the array backing a slice, reduced
// to what every element-access opcode needs: the backing ArrayData, the
// element index's base offset (0 for an array, the slice's Start for a
// slice), and the live length for bounds checking.
type indexable struct {
	arr    *objmodel.ArrayData
	base   int
	length int
}

// resolveIndexable dispatches on the container's own heap kind so
// OpGet/OpSet/OpGetN/OpSetN/OpLen work identically whether ref names an
// array or a slice — mirroring internal/gc/scan.go's own Header().Kind()
// dispatch rather than trying each accessor in turn.
func (ip *Interp) resolveIndexable(ref slot.Ref) (indexable, error) {
	switch ip.GC.Heap().Header(ref).Kind() {
	case slot.KindSlice:
		sd, err := ip.GC.Heap().Slice(ref)
		if err != nil {
			return indexable{}, err
		}
		arr, err := ip.GC.Heap().Array(sd.ArrayRef)
		if err != nil {
			return indexable{}, err
		}
		return indexable{arr: arr, base: sd.Start, length: sd.Len}, nil
	case slot.KindArray:
		arr, err := ip.GC.Heap().Array(ref)
		if err != nil {
			return indexable{}, err
		}
		return indexable{arr: arr, base: 0, length: arr.Len}, nil
	default:
		return indexable{}, fmt.Errorf("interp: ref %d is not an array or slice", ref)
	}
}

func boundsCheck(idx, length int) error {
	if idx < 0 || idx >= length {
		return fmt.Errorf("interp: index %d out of range [0:%d)", idx, length)
	}
	return nil
}

// execGet handles OpGet (0x92): r[a] = r[b][r[c]] for a packed or
// single-slot element; OpGetN covers the multi-slot (struct/interface
// element) case. The element kind is never re-encoded in the
// instruction — it's read back off the container's own ArrayData.
func (ip *Interp) execGet(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	ref := f.Reg(ins.B).AsRef()
	iv, err := ip.resolveIndexable(ref)
	if err != nil {
		return outcomeDead, err
	}
	idx := int(asI64(f.Reg(ins.C)))
	if err := boundsCheck(idx, iv.length); err != nil {
		return ip.execPanicValue(f, vmError(ip, err.Error()))
	}
	pos := iv.base + idx
	if iv.arr.ElemBytes > 0 {
		f.SetReg(ins.A, decodePacked(iv.arr.ElemMeta.Kind(), iv.arr.GetPackedBytes(pos)))
		return outcomeContinue, nil
	}
	spe := ip.GC.Heap().SlotWidth(iv.arr.ElemMeta)
	vals := iv.arr.GetSlots(pos, spe)
	f.SetReg(ins.A, vals[0])
	return outcomeContinue, nil
}

// execSet handles OpSet (0x93): r[a][r[b]] = r[c], packed or single-slot
// element.
func (ip *Interp) execSet(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	ref := f.Reg(ins.A).AsRef()
	iv, err := ip.resolveIndexable(ref)
	if err != nil {
		return outcomeDead, err
	}
	idx := int(asI64(f.Reg(ins.B)))
	if err := boundsCheck(idx, iv.length); err != nil {
		return ip.execPanicValue(f, vmError(ip, err.Error()))
	}
	pos := iv.base + idx
	val := f.Reg(ins.C)
	if iv.arr.ElemBytes > 0 {
		b := make([]byte, iv.arr.ElemBytes)
		encodePacked(iv.arr.ElemMeta.Kind(), val, b)
		iv.arr.SetPackedBytes(pos, b)
		return outcomeContinue, nil
	}
	spe := ip.GC.Heap().SlotWidth(iv.arr.ElemMeta)
	copy(iv.arr.GetSlots(pos, spe), []slot.Slot{val})
	ip.applyWriteBarrier(ref, iv.arr.ElemMeta, []slot.Slot{val})
	return outcomeContinue, nil
}

// execGetN handles OpGetN (0x94): r[a..a+width) = r[b][r[c]] for a
// multi-slot element, width read off the element's own ValueMeta.
func (ip *Interp) execGetN(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	ref := f.Reg(ins.B).AsRef()
	iv, err := ip.resolveIndexable(ref)
	if err != nil {
		return outcomeDead, err
	}
	idx := int(asI64(f.Reg(ins.C)))
	if err := boundsCheck(idx, iv.length); err != nil {
		return ip.execPanicValue(f, vmError(ip, err.Error()))
	}
	spe := ip.GC.Heap().SlotWidth(iv.arr.ElemMeta)
	vals := iv.arr.GetSlots(iv.base+idx, spe)
	for i, v := range vals {
		f.SetReg(ins.A+uint16(i), v)
	}
	return outcomeContinue, nil
}

// execSetN handles OpSetN (0x95): r[a][r[b]] = r[c..c+width) for a
// multi-slot element.
func (ip *Interp) execSetN(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	ref := f.Reg(ins.A).AsRef()
	iv, err := ip.resolveIndexable(ref)
	if err != nil {
		return outcomeDead, err
	}
	idx := int(asI64(f.Reg(ins.B)))
	if err := boundsCheck(idx, iv.length); err != nil {
		return ip.execPanicValue(f, vmError(ip, err.Error()))
	}
	spe := ip.GC.Heap().SlotWidth(iv.arr.ElemMeta)
	vals := f.RegN(ins.C, spe)
	copy(iv.arr.GetSlots(iv.base+idx, spe), vals)
	ip.applyWriteBarrier(ref, iv.arr.ElemMeta, vals)
	return outcomeContinue, nil
}

// execLen handles OpLen (0x96): r[a] = len(r[b]) for an array, slice, or
// string — the three kinds sharing this opcode, dispatched the same way
// resolveIndexable dispatches OpGet/OpSet.
func (ip *Interp) execLen(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	ref := f.Reg(ins.B).AsRef()
	var n int
	switch ip.GC.Heap().Header(ref).Kind() {
	case slot.KindString:
		sd, err := ip.GC.Heap().String(ref)
		if err != nil {
			return outcomeDead, err
		}
		n = sd.Len
	case slot.KindSlice:
		sd, err := ip.GC.Heap().Slice(ref)
		if err != nil {
			return outcomeDead, err
		}
		n = sd.Len
	case slot.KindArray:
		n = ip.GC.Heap().ArrayLen(ref)
	default:
		return outcomeDead, fmt.Errorf("interp: ref %d has no len", ref)
	}
	f.SetReg(ins.A, i64Slot(int64(n)))
	return outcomeContinue, nil
}

// execAppend handles OpAppend (0x97): r[a] = append(r[b], r[c..c+width)),
// width read off the slice's own backing-array ElemMeta. Dispatches to
// AppendPacked or AppendSlots depending on the backing array's storage
// kind, same split objmodel/slice.go itself makes.
func (ip *Interp) execAppend(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	sref := f.Reg(ins.B).AsRef()
	sd, err := ip.GC.Heap().Slice(sref)
	if err != nil {
		return outcomeDead, err
	}
	arr, err := ip.GC.Heap().Array(sd.ArrayRef)
	if err != nil {
		return outcomeDead, err
	}
	elemMeta := arr.ElemMeta

	var newRef slot.Ref
	if arr.ElemBytes > 0 {
		b := make([]byte, arr.ElemBytes)
		encodePacked(elemMeta.Kind(), f.Reg(ins.C), b)
		newRef, err = ip.GC.AppendPacked(sref, elemMeta, b)
	} else {
		spe := ip.GC.Heap().SlotWidth(elemMeta)
		vals := f.RegN(ins.C, spe)
		newRef, err = ip.GC.AppendSlots(sref, elemMeta, vals)
		if err == nil {
			if nsd, serr := ip.GC.Heap().Slice(newRef); serr == nil {
				ip.applyWriteBarrier(nsd.ArrayRef, elemMeta, vals)
			}
		}
	}
	if err != nil {
		return outcomeDead, err
	}
	f.SetReg(ins.A, newRef.Slot())
	return outcomeContinue, nil
}

// execReslice handles OpReslice (0x98): r[a] = r[a][r[b]:r[c]]. A is
// reused as both the input slice header and the output, matching a
// compiler that lowers `s = s[lo:hi]` without a second register.
func (ip *Interp) execReslice(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	sref := f.Reg(ins.A).AsRef()
	lo := int(asI64(f.Reg(ins.B)))
	hi := int(asI64(f.Reg(ins.C)))
	ref, err := ip.GC.Reslice(sref, lo, hi)
	if err != nil {
		return ip.execPanicValue(f, vmError(ip, err.Error()))
	}
	f.SetReg(ins.A, ref.Slot())
	return outcomeContinue, nil
}

// execStrConcat handles OpStrConcat (0x99): r[a] = r[b] + r[c]. Reads
// both operands' bytes and allocates the result through ip.GC.NewString
// itself rather than objmodel.Heap.ConcatStrings, which calls h.NewString
// internally and so bypasses GC's color bookkeeping for the result.
func (ip *Interp) execStrConcat(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	a := f.Reg(ins.B).AsRef()
	b := f.Reg(ins.C).AsRef()
	ba, err := ip.GC.Heap().StringBytes(a)
	if err != nil {
		return outcomeDead, err
	}
	bb, err := ip.GC.Heap().StringBytes(b)
	if err != nil {
		return outcomeDead, err
	}
	out := make([]byte, 0, len(ba)+len(bb))
	out = append(out, ba...)
	out = append(out, bb...)
	ref := ip.GC.NewString(out)
	f.SetReg(ins.A, ref.Slot())
	return outcomeContinue, nil
}

// execStrIndex handles OpStrIndex (0x9A): r[a] = rune at byte offset r[c]
// of r[b], decoded as UTF-8 (Vo strings are UTF-8 byte sequences, per
// spec.md §4.2's string semantics) and widened to the same int64
// representation every integer register value uses.
func (ip *Interp) execStrIndex(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	ref := f.Reg(ins.B).AsRef()
	b, err := ip.GC.Heap().StringBytes(ref)
	if err != nil {
		return outcomeDead, err
	}
	off := int(asI64(f.Reg(ins.C)))
	if off < 0 || off >= len(b) {
		return ip.execPanicValue(f, vmError(ip, fmt.Sprintf("interp: byte offset %d out of range [0:%d)", off, len(b))))
	}
	r, _ := utf8.DecodeRune(b[off:])
	f.SetReg(ins.A, i64Slot(int64(r)))
	return outcomeContinue, nil
}

// decodePacked interprets a packed element's raw bytes as the register
// representation OpConvert/arithmetic expect: every integer kind
// sign/zero-extended to i64Slot, float32 promoted to the float64 bit
// pattern f64Slot always carries (see numeric.go), bool as boolSlot.
func decodePacked(kind slot.ValueKind, b []byte) slot.Slot {
	switch kind {
	case slot.KindBool:
		return boolSlot(b[0] != 0)
	case slot.KindInt8:
		return i64Slot(int64(int8(b[0])))
	case slot.KindUint8:
		return i64Slot(int64(b[0]))
	case slot.KindInt16:
		return i64Slot(int64(int16(binary.LittleEndian.Uint16(b))))
	case slot.KindUint16:
		return i64Slot(int64(binary.LittleEndian.Uint16(b)))
	case slot.KindInt32:
		return i64Slot(int64(int32(binary.LittleEndian.Uint32(b))))
	case slot.KindUint32:
		return i64Slot(int64(binary.LittleEndian.Uint32(b)))
	case slot.KindFloat32:
		return f64Slot(float64(math.Float32frombits(binary.LittleEndian.Uint32(b))))
	default:
		return 0
	}
}

// encodePacked is decodePacked's inverse, narrowing a register value back
// to its packed byte width for storage in an array/slice backing store.
func encodePacked(kind slot.ValueKind, s slot.Slot, b []byte) {
	switch kind {
	case slot.KindBool:
		b[0] = boolSlotByte(asBool(s))
	case slot.KindInt8, slot.KindUint8:
		b[0] = byte(asI64(s))
	case slot.KindInt16, slot.KindUint16:
		binary.LittleEndian.PutUint16(b, uint16(asI64(s)))
	case slot.KindInt32, slot.KindUint32:
		binary.LittleEndian.PutUint32(b, uint32(asI64(s)))
	case slot.KindFloat32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(asF64(s))))
	}
}

func boolSlotByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
