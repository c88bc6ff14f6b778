package interp

import (
	"fmt"

	"github.com/chazu/vo/internal/fiber"
	"github.com/chazu/vo/internal/slot"
	"github.com/chazu/vo/pkg/bytecode"
)

// execClosure handles the closure group (0xC0-0xC2): OpClosureNew,
// OpClosureGetUp, OpClosureSetUp.
func (ip *Interp) execClosure(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	switch ins.Op {
	case bytecode.OpClosureNew:
		return ip.execClosureNew(f, ins)
	case bytecode.OpClosureGetUp:
		return ip.execClosureGetUp(f, ins)
	case bytecode.OpClosureSetUp:
		return ip.execClosureSetUp(f, ins)
	default:
		return outcomeDead, fmt.Errorf("interp: execClosure: unreachable opcode %s", ins.Op)
	}
}

// execClosureNew handles OpClosureNew (0xC0): r[a] = new closure over
// function b, captures at r[c..c+flags) — B names the function directly
// (mirroring OpCall's "functions[a]" convention), Flags carries the
// capture count so C is free to be a register window start rather than a
// second direct operand. Each capture register already holds the Ref to
// a boxed cell (created by an earlier OpPointerNew in the enclosing
// function), so no boxing happens here.
func (ip *Interp) execClosureNew(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	n := int(ins.Flags)
	captures := make([]slot.Ref, n)
	window := f.RegN(ins.C, n)
	for i, s := range window {
		captures[i] = s.AsRef()
	}
	ref := ip.GC.NewClosure(uint32(ins.B), captures)
	for _, c := range captures {
		ip.GC.WriteBarrier(ref, c)
	}
	f.SetReg(ins.A, ref.Slot())
	return outcomeContinue, nil
}

// execClosureGetUp handles OpClosureGetUp (0xC1): r[a] = r0.captures[b].
// r0 holds the running closure's own ref (set by OpCallClosure at call
// time); the capture cell's width is read off its own PointeeMeta rather
// than assumed to be one, the same convention OpPointerDeref follows.
func (ip *Interp) execClosureGetUp(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	closureRef := f.Reg(0).AsRef()
	cellRef, err := ip.GC.Heap().CaptureSlot(closureRef, int(ins.B))
	if err != nil {
		return outcomeDead, err
	}
	vals, err := ip.GC.Heap().Deref(cellRef)
	if err != nil {
		return outcomeDead, err
	}
	for i, v := range vals {
		f.SetReg(ins.A+uint16(i), v)
	}
	return outcomeContinue, nil
}

// execClosureSetUp handles OpClosureSetUp (0xC2): r0.captures[a] = r[b].
func (ip *Interp) execClosureSetUp(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	closureRef := f.Reg(0).AsRef()
	cellRef, err := ip.GC.Heap().CaptureSlot(closureRef, int(ins.A))
	if err != nil {
		return outcomeDead, err
	}
	pd, err := ip.GC.Heap().Pointer(cellRef)
	if err != nil {
		return outcomeDead, err
	}
	width := len(pd.Val)
	vals := f.RegN(ins.B, width)
	if err := ip.GC.Heap().Store(cellRef, vals); err != nil {
		return outcomeDead, err
	}
	ip.applyWriteBarrier(cellRef, pd.PointeeMeta, vals)
	return outcomeContinue, nil
}
