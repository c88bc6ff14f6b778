package interp

import (
	"fmt"

	"github.com/chazu/vo/internal/abi"
	"github.com/chazu/vo/internal/fiber"
	"github.com/chazu/vo/internal/slot"
	"github.com/chazu/vo/internal/unwind"
	"github.com/chazu/vo/pkg/bytecode"
)

// execCallFamily dispatches the calls/returns group (0x70-0x74): OpCall,
// OpCallExtern, OpCallClosure, OpCallInterface, OpReturn.
func (ip *Interp) execCallFamily(f *fiber.Fiber, fr *fiber.Frame, ins bytecode.Instruction) (outcome, error) {
	switch ins.Op {
	case bytecode.OpCall:
		return ip.execCall(f, ins)
	case bytecode.OpCallExtern:
		return ip.execCallExtern(f, ins)
	case bytecode.OpCallClosure:
		return ip.execCallClosure(f, ins)
	case bytecode.OpCallInterface:
		return ip.execCallInterface(f, ins)
	case bytecode.OpReturn:
		return ip.execReturn(f, ins)
	default:
		return outcomeDead, fmt.Errorf("interp: execCallFamily: unreachable opcode %s", ins.Op)
	}
}

// execCall handles OpCall (0x70): A names the callee directly
// (functions[a], not a register), args live at r[b..b+c), and Flags
// carries the return count.
func (ip *Interp) execCall(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	callee, err := ip.function(uint32(ins.A))
	if err != nil {
		return outcomeDead, err
	}
	ip.recordCallIfJIT(uint32(ins.A))
	argCount := int(ins.C)
	args := make([]slot.Slot, argCount)
	copy(args, f.RegN(ins.B, argCount))

	f.PushFrame(uint32(ins.A), callee.LocalSlots, ins.B, uint16(ins.Flags), callee.SlotTypes)
	if argCount > 0 {
		copy(f.RegN(0, argCount), args)
	}
	return outcomeContinue, nil
}

// execCallExtern handles OpCallExtern (0x71): A names the extern
// directly (module-local Extern index, resolved at load time to a
// registry id via ip.externIDs), args at r[b..b+c), Flags = ret count.
// Unlike a Vo call, an extern never pushes a fiber frame — the native
// function runs synchronously on the Go stack via ip.Externs.Call.
func (ip *Interp) execCallExtern(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	if int(ins.A) >= len(ip.externIDs) {
		return outcomeDead, fmt.Errorf("interp: extern index %d out of range (have %d)", ins.A, len(ip.externIDs))
	}
	id := ip.externIDs[ins.A]
	argCount := int(ins.C)
	args := make([]slot.Slot, argCount)
	copy(args, f.RegN(ins.B, argCount))

	ctx := abi.NewExternCallContext(ip.GC, args)
	ctx.CallClosure = func(closureRef slot.Ref, cargs []slot.Slot) ([]slot.Slot, error) {
		return ip.callClosureSync(f, closureRef, cargs)
	}

	res, err := ip.Externs.Call(id, ctx)
	if err != nil {
		return outcomeDead, err
	}
	if !res.Ok {
		i0, i1, fallback := abi.BoxExternError(ip.GC, ip.Mod, res.Err)
		if fallback != nil {
			return ip.execPanicValue(f, fallback)
		}
		return ip.execPanicValue(f, &unwind.PanicValue{Iface0: i0, Iface1: i1})
	}

	rets := ctx.Rets()
	n := int(ins.Flags)
	if n > len(rets) {
		n = len(rets)
	}
	if n > 0 {
		copy(f.RegN(ins.B, n), rets[:n])
	}
	return outcomeContinue, nil
}

// execCallClosure handles OpCallClosure (0x72): r[a] holds the closure
// ref, args at r[b..b+c), Flags = ret count. The callee's own r0 receives
// the closure ref (the register OpClosureGetUp/OpClosureSetUp address as
// "r0.captures[i]"); explicit args are copied starting at r1.
func (ip *Interp) execCallClosure(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	closureRef := f.Reg(ins.A).AsRef()
	cl, err := ip.GC.Heap().Closure(closureRef)
	if err != nil {
		return outcomeDead, err
	}
	callee, err := ip.function(cl.FuncID)
	if err != nil {
		return outcomeDead, err
	}
	ip.recordCallIfJIT(cl.FuncID)
	argCount := int(ins.C)
	args := make([]slot.Slot, argCount)
	copy(args, f.RegN(ins.B, argCount))

	f.PushFrame(cl.FuncID, callee.LocalSlots, ins.B, uint16(ins.Flags), callee.SlotTypes)
	f.SetReg(0, closureRef.Slot())
	if argCount > 0 {
		copy(f.RegN(1, argCount), args)
	}
	return outcomeContinue, nil
}

// execCallInterface handles OpCallInterface (0x73): the interface pair at
// r[a], r[a+1] gives (iface_meta_id, concrete_meta_id via r[a]'s
// ValueMeta) plus the concrete receiver value in r[a+1]; C packs
// (methodIdx<<8 | argCount) since this opcode needs one more small
// operand than the others; Flags = ret count; args at r[b..b+argCount).
// The callee frame's r0 is set to the concrete receiver (struct ref, or
// an inline primitive value), mirroring OpCallClosure's r0 convention, so
// a method body addresses its receiver the same way a closure body
// addresses its captures.
func (ip *Interp) execCallInterface(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	ifaceMeta, valueMeta := slot.UnpackIface(f.Reg(ins.A))
	receiver := f.Reg(ins.A + 1)

	methodIdx := int(ins.C >> 8)
	argCount := int(ins.C & 0xFF)

	funcID, err := ip.Mod.Method(valueMeta.MetaID(), ifaceMeta, methodIdx)
	if err != nil {
		return outcomeDead, err
	}
	callee, err := ip.function(funcID)
	if err != nil {
		return outcomeDead, err
	}
	ip.recordCallIfJIT(funcID)
	args := make([]slot.Slot, argCount)
	copy(args, f.RegN(ins.B, argCount))

	f.PushFrame(funcID, callee.LocalSlots, ins.B, uint16(ins.Flags), callee.SlotTypes)
	f.SetReg(0, receiver)
	if argCount > 0 {
		copy(f.RegN(1, argCount), args)
	}
	return outcomeContinue, nil
}

// execReturn handles OpReturn (0x74): the returned value window is
// r[a..a+c) — C is the authoritative return count here. Flags bit 0 is
// set by the compiler at codegen time on returns that carry a non-nil
// error (a `fail`-desugared return, per spec.md §7 item 1), and is the
// only signal execReturn has for whether a queued errdefer is allowed to
// fire. If the returning function has its own pending defers, they must
// run first (spec.md §4.7's first driving event) before control can
// actually go back to the caller.
func (ip *Interp) execReturn(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	fr := f.CurrentFrame()
	fn, err := ip.function(fr.FuncID)
	if err != nil {
		return outcomeDead, err
	}
	n := int(ins.C)
	vals := make([]slot.Slot, n)
	copy(vals, f.RegN(ins.A, n))

	depth := f.Depth()
	if f.HasDeferAt(depth) {
		if f.Unwind == nil {
			isErrorReturn := ins.Flags&0x01 != 0
			f.Unwind = unwind.NewReturnState(depth-1, fr.RetReg, fr.RetCount, isErrorReturn)
		}
		types := make([]slot.SlotType, n)
		start := int(ins.A)
		if start+n <= len(fn.SlotTypes) {
			copy(types, fn.SlotTypes[start:start+n])
		}
		f.Unwind.SetRetVals(vals, types)
		return ip.runNextDefer(f, depth)
	}
	poppedFr, _ := f.PopFrame()
	return ip.completePop(f, poppedFr, vals)
}

// callClosureSync runs closureRef(args...) to completion on fiber f's own
// stack, synchronously, for a native extern that needs to call back into
// Vo (spec.md §4.8's CallClosure hook). A zero-code "harness" frame is
// pushed first so the closure's return values land somewhere stable to
// read even after the closure's own frame (and everything it called) has
// been popped: PopFrame truncates the stack back to a frame's base
// pointer, so reading the harness's registers must happen before the
// harness itself is popped.
//
// The harness's SlotTypes is nil, so a GcRef/interface value sitting
// briefly in its registers between the closure's return and this
// function's own read is not a scan root. This is safe only because no
// GC-triggering allocation runs in that narrow window — step() never
// allocates between writing a frame's return values and the caller
// reading them back out.
func (ip *Interp) callClosureSync(f *fiber.Fiber, closureRef slot.Ref, args []slot.Slot) ([]slot.Slot, error) {
	cl, err := ip.GC.Heap().Closure(closureRef)
	if err != nil {
		return nil, err
	}
	callee, err := ip.function(cl.FuncID)
	if err != nil {
		return nil, err
	}

	f.PushFrame(^uint32(0), callee.RetSlots, 0, 0, nil)
	baseDepth := f.Depth()

	f.PushFrame(cl.FuncID, callee.LocalSlots, 0, uint16(callee.RetSlots), callee.SlotTypes)
	f.SetReg(0, closureRef.Slot())
	if len(args) > 0 {
		copy(f.RegN(1, len(args)), args)
	}

	for f.Depth() > baseDepth {
		out, err := ip.step(f)
		if err != nil {
			return nil, err
		}
		if out == outcomeDead {
			break
		}
		if out != outcomeContinue {
			return nil, fmt.Errorf("interp: concurrency inside an extern callback is not supported")
		}
	}

	ret := make([]slot.Slot, callee.RetSlots)
	if f.CurrentFrame() != nil {
		copy(ret, f.RegN(0, callee.RetSlots))
	}
	f.PopFrame()
	return ret, nil
}
