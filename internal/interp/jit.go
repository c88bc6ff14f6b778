package interp

import (
	"fmt"
	"unsafe"

	"github.com/chazu/vo/internal/fiber"
	"github.com/chazu/vo/internal/jit"
	"github.com/chazu/vo/internal/slot"
	"github.com/chazu/vo/pkg/bytecode"
)

// SetJIT installs bridge b as this Interp's C9 compilation tier. Once
// installed, step notices when a freshly pushed frame's function has
// already been compiled and runs it as one atomic stepCompiled call
// instead of one bytecode instruction at a time — every call opcode
// (OpCall/OpCallClosure/OpCallInterface, and the extern-callback harness
// in call.go) benefits automatically without needing its own JIT-aware
// branch, since all of them ultimately go through fiber.PushFrame and
// this package's own step loop.
func (ip *Interp) SetJIT(b *jit.Bridge) { ip.JIT = b }

// slotsToWords reinterprets a []slot.Slot as a []uint64 sharing the exact
// same backing array — slot.Slot's underlying type is uint64, so this is
// a legal, zero-copy reinterpretation, not a conversion. It is how a
// compiled function's locals/args/ret parameters alias the fiber's own
// register file and this Interp's own global table instead of being
// copied in and back out on every call.
func slotsToWords(s []slot.Slot) []uint64 {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&s[0])), len(s))
}

// recordCallIfJIT is the one call every call-opcode handler in call.go
// makes right after resolving its callee's funcID, feeding spec.md
// §4.9's call-count profiling. Compilation itself is synchronous
// (internal/jit.Bridge.RecordCall may run go build before returning), so
// a function crossing threshold on this very call is already compiled by
// the time step() looks at the frame this call is about to push.
func (ip *Interp) recordCallIfJIT(funcID uint32) {
	if ip.JIT != nil {
		ip.JIT.RecordCall(ip.Mod, funcID)
	}
}

// stepCompiled runs fr's function to completion through its JIT-compiled
// form cf, in place of stepping fn's bytecode one instruction at a time.
// It plays exactly the role step's per-instruction dispatch plays for an
// interpreted frame: it either completes fr's activation normally
// (completePop, the same funnel an OpReturn would use) or begins Panic-
// mode unwinding rooted at fr's own depth (execPanicValue, the same
// funnel OpDivI64's divide-by-zero check would use) — from the rest of
// the interpreter's perspective a compiled frame's single stepCompiled
// call is indistinguishable from however many step calls the equivalent
// interpreted execution would have taken.
func (ip *Interp) stepCompiled(f *fiber.Fiber, fr *fiber.Frame, fn *bytecode.Function, cf jit.CompiledFunc) (outcome, error) {
	locals := slotsToWords(f.RegN(0, fn.LocalSlots))
	ret := make([]uint64, fn.RetSlots)

	ctx := &jit.Context{
		Globals: slotsToWords(ip.globals),
		CallFunc: func(funcID uint32, callArgs []uint64) ([]uint64, error) {
			return ip.jitCallFunc(f, funcID, callArgs)
		},
	}

	res := cf(ctx, locals, nil, ret)
	if res == jit.ResultPanic || ctx.Panic {
		msg := ctx.PanicMsg
		if msg == "" {
			msg = "jit: compiled function panicked"
		}
		return ip.execPanicValue(f, vmError(ip, msg))
	}

	vals := make([]slot.Slot, len(ret))
	for i, w := range ret {
		vals[i] = slot.Slot(w)
	}
	poppedFr, _ := f.PopFrame()
	return ip.completePop(f, poppedFr, vals)
}

// jitCallFunc implements the Context.CallFunc trampoline: a compiled
// function calling funcID(args...), whether funcID is itself compiled or
// still interpreted, and whether or not it recurses back into the same
// compiled function (S1's Fibonacci shape). It pushes a harness frame
// exactly as callClosureSync does for an extern's CallClosure hook, then
// drives f's own step loop — which already knows how to dispatch either
// an interpreted or a compiled frame — until control returns to this
// call's own depth.
func (ip *Interp) jitCallFunc(f *fiber.Fiber, funcID uint32, argWords []uint64) ([]uint64, error) {
	callee, err := ip.function(funcID)
	if err != nil {
		return nil, err
	}
	ip.recordCallIfJIT(funcID)

	args := make([]slot.Slot, len(argWords))
	for i, w := range argWords {
		args[i] = slot.Slot(w)
	}

	f.PushFrame(^uint32(0), callee.RetSlots, 0, 0, nil)
	baseDepth := f.Depth()

	f.PushFrame(funcID, callee.LocalSlots, 0, uint16(callee.RetSlots), callee.SlotTypes)
	if len(args) > 0 {
		copy(f.RegN(0, len(args)), args)
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
			return nil, fmt.Errorf("interp: concurrency inside a JIT-compiled call is not supported")
		}
	}

	ret := make([]uint64, callee.RetSlots)
	if f.CurrentFrame() != nil {
		vals := f.RegN(0, callee.RetSlots)
		for i, v := range vals {
			ret[i] = uint64(v)
		}
	}
	f.PopFrame()
	return ret, nil
}
