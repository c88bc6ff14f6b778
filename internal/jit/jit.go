// Package jit is C9: the synchronous, method-based compilation bridge
// that lowers a hot bytecode function to a native Go function and
// installs it in place of the interpreter's dispatch loop for that
// function id, per spec.md §4.9.
//
// Grounded directly on the teacher's vm/jit.go (JITCompiler, hot-code
// queueing), vm/aot.go (AOTCompiler, bytecode-to-Go-source transpilation
// with label/goto control flow), and vm/jit_persistence.go
// (go build -buildmode=plugin + plugin.Open loading, persisted across
// runs). The teacher compiles Smalltalk bytecode methods to Go source
// text calling back into *VM; this package compiles Vo bytecode
// functions to Go source text calling back into a Context, generalized
// from a stack machine to spec.md's register machine.
//
// SPEC_FULL.md §3 fixes the generated function's signature as
// func(ctx *jit.Context, locals []uint64, args []uint64, ret []uint64) jit.Result,
// mirroring the Rust original's
// extern "C" fn(ctx: *JitContext, locals: *mut u64, args: *const u64, ret: *mut u64) -> JitResult.
// locals aliases the callee's base on the interpreter's own value stack
// (see internal/interp's slotsToWords, which reinterprets the fiber's
// []slot.Slot registers as []uint64) so a
// GcRef-typed local is never cached anywhere the GC can't find it — the
// same root discipline spec.md §4.9 requires of a real native backend.
package jit

// Result is what a compiled function reports back to its caller, mirroring
// the Rust original's JitResult enum.
type Result uint8

const (
	// ResultOk means ret holds the function's return values.
	ResultOk Result = iota
	// ResultPanic means the compiled function (or a callee it invoked
	// through Context.CallFunc) raised a runtime panic; Context.PanicMsg
	// names it and the caller must resume unwinding through the
	// interpreter, exactly as spec.md §4.9's "Panic propagation" describes.
	ResultPanic
)

func (r Result) String() string {
	switch r {
	case ResultOk:
		return "ok"
	case ResultPanic:
		return "panic"
	default:
		return "Result(?)"
	}
}

// Context is what a compiled function receives, the Go analogue of
// spec.md §4.9's JitContext. It carries the one thing a compiled
// function cannot see through its locals/args/ret slices: a way to call
// back into the interpreter for anything the JIT itself doesn't lower
// (spec.md's "trampoline"), and a place to report a panic without
// needing to know how internal/unwind's state machine works.
type Context struct {
	// Globals aliases the interpreter's own global slot table (uint64
	// view over internal/slot.Slot, same layout trick as locals/args/ret)
	// so OpGetGlobal/OpSetGlobal never need a trampoline round trip.
	Globals []uint64

	// CallFunc invokes function id funcID with the given raw argument
	// words and returns its raw return words, running it however the
	// interpreter sees fit — interpreted, or itself JIT-compiled. This is
	// the trampoline spec.md §4.9 describes: JIT code calls back into the
	// VM for anything it doesn't inline, most commonly OpCall to a callee
	// that may recurse back into JIT-compiled code (S1 Fibonacci is
	// exactly this shape).
	CallFunc func(funcID uint32, args []uint64) ([]uint64, error)

	// Panic and PanicMsg record a fatal runtime condition (integer
	// divide by zero, or an error propagated up through CallFunc) that
	// the compiled function cannot itself unwind — spec.md §7.3 kind 3.
	// The interpreter's call site checks these after a ResultPanic return
	// and raises the equivalent unwind.PanicValue.
	Panic    bool
	PanicMsg string
}

// Fail marks ctx as carrying a fatal runtime panic and returns
// ResultPanic, the one-line idiom every generated call site uses for a
// division-by-zero or a propagated callee error.
func (ctx *Context) Fail(msg string) Result {
	ctx.Panic = true
	ctx.PanicMsg = msg
	return ResultPanic
}

// CompiledFunc is the signature every JIT-generated plugin symbol named
// "Run" must have, and the type Bridge stores its compiled functions as
// once plugin.Open + Lookup has type-asserted them.
type CompiledFunc func(ctx *Context, locals []uint64, args []uint64, ret []uint64) Result
