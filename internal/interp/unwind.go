package interp

import (
	"fmt"

	"github.com/chazu/vo/internal/abi"
	"github.com/chazu/vo/internal/fiber"
	"github.com/chazu/vo/internal/slot"
	"github.com/chazu/vo/internal/unwind"
	"github.com/chazu/vo/pkg/bytecode"
)

// vmError boxes a runtime-raised failure (divide by zero, index out of
// range, nil dereference, failed interface assertion) into a
// *unwind.PanicValue the same way a program's own panic() statement would
// produce one, per spec.md §7.3. If the module declares no error type,
// abi.BoxError falls back to a message-only PanicValue, which this
// function returns as is.
func vmError(ip *Interp, msg string) *unwind.PanicValue {
	i0, i1, fallback := abi.BoxError(ip.GC, ip.Mod, "runtime", msg)
	if fallback != nil {
		return fallback
	}
	return &unwind.PanicValue{Iface0: i0, Iface1: i1}
}

// execPanic handles OpPanic (0xE1): r[a], r[a+1] holds the interface pair
// being panicked with.
func (ip *Interp) execPanic(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	pv := &unwind.PanicValue{Iface0: f.Reg(ins.A), Iface1: f.Reg(ins.A + 1)}
	return ip.execPanicValue(f, pv)
}

// execPanicValue begins (or replaces) Panic-mode unwinding on f with pv,
// per spec.md §4.7's third driving event: if no unwind is active, this is
// a fresh panic rooted one frame below the current one; if an unwind is
// already draining (this panic was raised from inside a running defer),
// pv replaces it and unwinding resumes from the new, shallower depth.
func (ip *Interp) execPanicValue(f *fiber.Fiber, pv *unwind.PanicValue) (outcome, error) {
	depth := f.Depth()
	if f.Unwind != nil {
		f.Unwind.Repanic(depth-1, pv)
	} else {
		f.Unwind = unwind.NewPanicState(depth-1, pv)
	}
	if f.HasDeferAt(depth) {
		return ip.runNextDefer(f, depth)
	}
	return ip.continuePanicUnwind(f)
}

// execRecover handles OpRecover (0xE2). It only actually recovers when
// called from a direct defer of the panicking function — fiber depth must
// be exactly the active unwind's TargetDepth+2 (one frame above the
// still-present panicking frame) — per spec.md §4.7's locality rule. A
// bare recover() anywhere else is a documented no-op, not an error.
func (ip *Interp) execRecover(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	var pv *unwind.PanicValue
	ok := false
	if f.Unwind != nil && f.Unwind.Mode == unwind.ModePanic && f.Depth() == f.Unwind.TargetDepth+2 {
		pv = f.Unwind.Recover()
		ok = pv != nil
	}
	iface0, iface1 := ip.panicValueToIface(pv)
	f.SetReg(ins.A, iface0)
	f.SetReg(ins.A+1, iface1)
	if ins.Flags&0x01 != 0 {
		f.SetReg(ins.A+2, boolSlot(ok))
	}
	return outcomeContinue, nil
}

// panicValueToIface resolves a recovered panic (or lack of one) to the
// interface pair OpRecover writes back. A runtime-raised panic carrying
// only a Msg is boxed lazily here, the one place recover() actually
// inspects it — most panics unwind all the way to an unrecovered fiber
// death and never pay for this.
func (ip *Interp) panicValueToIface(pv *unwind.PanicValue) (iface0, iface1 slot.Slot) {
	nilIface0 := slot.PackIface(0, slot.PackValueMeta(0, slot.KindNil))
	if pv == nil {
		return nilIface0, 0
	}
	if pv.Msg != "" {
		i0, i1, fallback := abi.BoxError(ip.GC, ip.Mod, "runtime", pv.Msg)
		if fallback != nil {
			return nilIface0, 0
		}
		return i0, i1
	}
	return pv.Iface0, pv.Iface1
}

// execDeferPush handles OpDeferPush (0xE0). r[a] always holds a closure
// ref — a bare top-level function used as a defer is assumed to have been
// wrapped by the compiler as a zero-capture closure, the same convention
// OpCallClosure uses, so defer dispatch never needs a second flag
// distinguishing "closure vs plain function".
func (ip *Interp) execDeferPush(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	closureRef := f.Reg(ins.A).AsRef()
	cl, err := ip.GC.Heap().Closure(closureRef)
	if err != nil {
		return outcomeDead, err
	}
	argCount := int(ins.C)
	if argCount > fiber.MaxDeferArgs {
		return outcomeDead, fmt.Errorf("interp: defer: %d arguments exceeds MaxDeferArgs %d", argCount, fiber.MaxDeferArgs)
	}
	fn, err := ip.function(cl.FuncID)
	if err != nil {
		return outcomeDead, err
	}
	d := fiber.DeferEntry{
		FrameDepth: f.Depth(),
		FuncID:     cl.FuncID,
		Closure:    closureRef,
		ArgCount:   argCount,
		IsErrdefer: ins.Flags&0x01 != 0,
	}
	if argCount > 0 {
		copy(d.Args[:argCount], f.RegN(ins.B, argCount))
		copy(d.ArgTypes[:argCount], fn.SlotTypes[:argCount])
	}
	f.PushDefer(d)
	return outcomeContinue, nil
}

// completePop is the single funnel every frame pop (ordinary return, a
// defer's own return, an unwind's internal pops) routes through: once
// poppedFr is off the stack, either this pop is the one an active unwind
// was waiting on (DeferReturned) or it's an ordinary return the caller's
// registers are waiting for. Keeping this one decision in one place is
// what lets defer/panic/recover avoid special-casing every call site.
func (ip *Interp) completePop(f *fiber.Fiber, poppedFr fiber.Frame, vals []slot.Slot) (outcome, error) {
	if f.Unwind != nil && f.Unwind.DeferReturned(f.Depth()) {
		return ip.advanceUnwind(f)
	}
	return ip.writeReturnValues(f, poppedFr, vals)
}

// advanceUnwind is spec.md §4.7's second driving event: a defer's own
// frame has just been popped, landing the fiber one frame above the
// unwinding function's frame. If that function has more pending defers,
// run the next one; otherwise the unwind itself is done draining and
// either delivers its stashed return values (ModeReturn) or keeps
// propagating the panic upward (ModePanic).
func (ip *Interp) advanceUnwind(f *fiber.Fiber) (outcome, error) {
	st := f.Unwind
	depth := f.Depth()
	if f.HasDeferAt(depth) {
		return ip.runNextDefer(f, depth)
	}
	if st.Mode == unwind.ModeReturn {
		return ip.finishReturnUnwind(f)
	}
	return ip.continuePanicUnwind(f)
}

// finishReturnUnwind pops the unwinding function's own (now defer-free)
// frame and delivers the return values it stashed before its first defer
// ran.
func (ip *Interp) finishReturnUnwind(f *fiber.Fiber) (outcome, error) {
	st := f.Unwind
	f.Unwind = nil
	poppedFr, ok := f.PopFrame()
	if !ok {
		return outcomeDead, nil
	}
	return ip.writeReturnValues(f, poppedFr, st.RetVals)
}

// continuePanicUnwind pops frames one at a time looking for the next one
// with a pending defer to run (which might call recover()). Reaching the
// bottom of the stack with the panic still live means it was never
// recovered — fatal to the fiber, matching Go's own runtime behavior for
// an unrecovered panic.
func (ip *Interp) continuePanicUnwind(f *fiber.Fiber) (outcome, error) {
	st := f.Unwind
	_, ok := f.PopFrame()
	if !ok {
		f.Unwind = nil
		msg := st.Panic.Msg
		if msg == "" {
			msg = "unrecovered panic"
		}
		return outcomeDead, fmt.Errorf("interp: unrecovered panic: %s", msg)
	}
	newDepth := f.Depth()
	st.TargetDepth = newDepth - 1
	if f.HasDeferAt(newDepth) {
		return ip.runNextDefer(f, newDepth)
	}
	return ip.continuePanicUnwind(f)
}

// runNextDefer pops defers registered at depth until it finds one that
// actually fires, pushing a frame to run it. An errdefer only fires when
// the active unwind is error-worthy (spec.md §7 item 1); one that isn't
// is discarded without running, matching the original's
// collect_pending_defers filtering ordinary defers and errdefers exactly
// the same way except for that one check.
func (ip *Interp) runNextDefer(f *fiber.Fiber, depth int) (outcome, error) {
	for {
		d, ok := f.PopDeferAt(depth)
		if !ok {
			// Nothing left to run at this depth after all — fall through to
			// whatever advanceUnwind would otherwise decide.
			return ip.advanceUnwind(f)
		}
		if d.IsErrdefer && !ip.isErrorUnwind(f) {
			continue
		}
		return ip.invokeDefer(f, d)
	}
}

// isErrorUnwind reports whether f's active unwind is one an errdefer is
// allowed to fire for: any panic, or a return whose OpReturn carried the
// compiler's error-return flag.
func (ip *Interp) isErrorUnwind(f *fiber.Fiber) bool {
	return f.Unwind != nil && f.Unwind.IsErrorReturn
}

// invokeDefer pushes a frame for d exactly as OpCallClosure would: the
// closure ref in the callee's own r0, explicit args starting at r1.
func (ip *Interp) invokeDefer(f *fiber.Fiber, d fiber.DeferEntry) (outcome, error) {
	fn, err := ip.function(d.FuncID)
	if err != nil {
		return outcomeDead, err
	}
	f.PushFrame(d.FuncID, fn.LocalSlots, 0, 0, fn.SlotTypes)
	f.SetReg(0, d.Closure.Slot())
	if d.ArgCount > 0 {
		copy(f.RegN(1, d.ArgCount), d.Args[:d.ArgCount])
	}
	return outcomeContinue, nil
}
