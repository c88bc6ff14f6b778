// Package abi is C8: the boundary native Go code crosses to call into, and
// be called from, a running Vo program. It is grounded on the teacher's
// "*_primitives.go" family (vm/file_primitives.go, vm/http_primitives.go,
// vm/grpc_primitives.go): a per-call context object exposing typed
// argument readers and return writers to a native Go closure, registered
// ahead of time under a stable name. spec.md §4.8 calls that context
// ExternCallContext and the registration table a process-wide registry
// keyed by extern_id; this package keeps the teacher's name-keyed
// Register/lookup shape and lets internal/interp resolve a module's
// Extern.Name to an extern_id once at load time.
package abi

import (
	"fmt"
	"math"

	"github.com/chazu/vo/internal/gc"
	"github.com/chazu/vo/internal/slot"
)

// ExternCallContext is what a native function receives. Arguments and
// return slots are untyped — spec.md §4.8's "untyped slot-in/slot-out"
// ABI — so every accessor below takes the caller's word for the slot's
// shape, the same trust boundary the teacher's primitives place on
// Value-to-Go conversions like valueToString.
type ExternCallContext struct {
	GC   *gc.GC
	Args []slot.Slot

	// rets accumulates the values SetX writes, in call order; Rets
	// returns them so the interpreter knows how many result registers to
	// copy back.
	rets []slot.Slot

	// CallClosure invokes a Vo closure from native code with proper GC
	// pause/resume bracketing around the Go-side work, and lets native
	// code call back into Vo (e.g. a "sort.Slice with a Vo comparator"
	// extern). internal/interp supplies this when it constructs a
	// context, since only it knows how to run a frame; abi itself never
	// imports internal/interp to avoid a cycle (interp is abi's caller).
	CallClosure func(closureRef slot.Ref, args []slot.Slot) ([]slot.Slot, error)
}

// NewExternCallContext wraps args for one extern call.
func NewExternCallContext(g *gc.GC, args []slot.Slot) *ExternCallContext {
	return &ExternCallContext{GC: g, Args: args}
}

func (c *ExternCallContext) checkArg(i int) error {
	if i < 0 || i >= len(c.Args) {
		return fmt.Errorf("abi: argument index %d out of range [0:%d)", i, len(c.Args))
	}
	return nil
}

// ArgI64 reads argument i as a signed 64-bit integer.
func (c *ExternCallContext) ArgI64(i int) (int64, error) {
	if err := c.checkArg(i); err != nil {
		return 0, err
	}
	return int64(c.Args[i]), nil
}

// ArgF64 reads argument i as a float64, reinterpreting the slot's bit
// pattern the way the interpreter's own arithmetic ops must (no helper for
// this exists in internal/slot, which stays free of any notion of "this
// word is really a float").
func (c *ExternCallContext) ArgF64(i int) (float64, error) {
	if err := c.checkArg(i); err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(c.Args[i])), nil
}

// ArgBool reads argument i as a boolean (nonzero is true).
func (c *ExternCallContext) ArgBool(i int) (bool, error) {
	if err := c.checkArg(i); err != nil {
		return false, err
	}
	return c.Args[i] != 0, nil
}

// ArgRef reads argument i as a heap reference without dereferencing it.
func (c *ExternCallContext) ArgRef(i int) (slot.Ref, error) {
	if err := c.checkArg(i); err != nil {
		return 0, err
	}
	return c.Args[i].AsRef(), nil
}

// ArgAny reads argument i as a raw, uninterpreted slot.
func (c *ExternCallContext) ArgAny(i int) (slot.Slot, error) {
	if err := c.checkArg(i); err != nil {
		return 0, err
	}
	return c.Args[i], nil
}

// ArgStr reads argument i as a Vo string, copying its bytes out as a Go
// string. The copy is deliberate: strings are immutable on the Vo side,
// but handing native code a slice that aliases heap storage the GC may
// move or reclaim between extern calls would be unsafe.
func (c *ExternCallContext) ArgStr(i int) (string, error) {
	ref, err := c.ArgRef(i)
	if err != nil {
		return "", err
	}
	b, err := c.GC.Heap().StringBytes(ref)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SetRetI64 appends a signed 64-bit return value.
func (c *ExternCallContext) SetRetI64(v int64) { c.rets = append(c.rets, slot.Slot(v)) }

// SetRetF64 appends a float64 return value.
func (c *ExternCallContext) SetRetF64(v float64) {
	c.rets = append(c.rets, slot.Slot(math.Float64bits(v)))
}

// SetRetBool appends a boolean return value.
func (c *ExternCallContext) SetRetBool(v bool) {
	if v {
		c.rets = append(c.rets, 1)
	} else {
		c.rets = append(c.rets, 0)
	}
}

// SetRetRef appends a heap reference return value.
func (c *ExternCallContext) SetRetRef(r slot.Ref) { c.rets = append(c.rets, r.Slot()) }

// SetRetAny appends a raw return slot, for a native function that already
// has a slot value in hand (e.g. relaying another extern's result).
func (c *ExternCallContext) SetRetAny(v slot.Slot) { c.rets = append(c.rets, v) }

// SetRetStr allocates a Vo string on the heap and appends its ref as a
// return value.
func (c *ExternCallContext) SetRetStr(s string) {
	ref := c.GC.NewString([]byte(s))
	c.SetRetRef(ref)
}

// Rets returns the accumulated return slots, in the order SetX was called.
func (c *ExternCallContext) Rets() []slot.Slot { return c.rets }

// ExternFunc is the Go shape a registered native function implements:
// spec.md §4.8's `extern "C" fn(ctx: *ExternCallContext) -> ExternResult`,
// minus the C calling convention (this is Go calling Go, not Go calling a
// dynamically loaded shared object — the teacher's primitives are in-
// process Go closures too).
type ExternFunc func(ctx *ExternCallContext) ExternResult

// ExternResult is what a native function hands back: success with the
// number of return slots written, or a structured error the caller's
// error helper (errors.go) boxes into a Vo `error` interface value.
// spec.md §4.8: "Ok with a written return count, or a structured error
// kind that the VM wraps into a Vo error interface via a single
// error-helper routine."
type ExternResult struct {
	Ok       bool
	RetCount int
	Err      *ExternError
}

// ExternError is a native failure before it has been boxed into a Vo
// value. Kind is a short machine-readable tag ("io", "os", "range", ...)
// that a module's error helper may switch on; Message is the human-
// readable text stored in the boxed error's field.
type ExternError struct {
	Kind    string
	Message string
}

// Ok builds a successful ExternResult reporting n return slots written.
func Ok(n int) ExternResult { return ExternResult{Ok: true, RetCount: n} }

// Fail builds a failed ExternResult carrying a structured error.
func Fail(kind, message string) ExternResult {
	return ExternResult{Ok: false, Err: &ExternError{Kind: kind, Message: message}}
}

// FailErr is a convenience wrapper turning a Go error into a Fail result,
// the common case in natives/ where a stdlib call already returns one.
func FailErr(kind string, err error) ExternResult {
	return Fail(kind, err.Error())
}

// Registry is the process-wide extern_id -> ExternFunc table spec.md
// §4.8 describes ("External dispatch is by extern_id through a process-
// wide registry populated before program start"). Lookup is by name at
// registration and link time; internal/interp resolves a module's
// Extern.Name to a numeric extern_id once, at load, and calls by index
// thereafter exactly as the bytecode's OpCallExtern operand expects.
type Registry struct {
	byName map[string]ExternFunc
	byID   []ExternFunc
	ids    map[string]int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]ExternFunc), ids: make(map[string]int)}
}

// Register adds fn under name. Calling Register twice with the same name
// replaces the prior registration and leaves any already-assigned id
// pointing at the new function — native extensions loaded later are
// expected to be able to override a stdlib native this way.
func (r *Registry) Register(name string, fn ExternFunc) {
	r.byName[name] = fn
	if id, ok := r.ids[name]; ok {
		r.byID[id] = fn
	}
}

// Resolve assigns (or returns the existing) extern_id for name, the step
// internal/interp performs once per module load for each of the module's
// Externs, matching names against what Register calls have populated.
func (r *Registry) Resolve(name string) (int, error) {
	if id, ok := r.ids[name]; ok {
		return id, nil
	}
	fn, ok := r.byName[name]
	if !ok {
		return 0, fmt.Errorf("abi: no extern registered for %q", name)
	}
	id := len(r.byID)
	r.byID = append(r.byID, fn)
	r.ids[name] = id
	return id, nil
}

// Call invokes the function at extern_id id with args already packed into
// a context, bracketing it with gc.Pause()/Resume() per spec.md §5:
// "Any extern function brackets its execution with gc.pause()/resume() so
// that long-running or OS-blocking native code does not starve the
// mutator of safepoints while still preventing spurious collection
// cycles."
func (r *Registry) Call(id int, ctx *ExternCallContext) (ExternResult, error) {
	if id < 0 || id >= len(r.byID) || r.byID[id] == nil {
		return ExternResult{}, fmt.Errorf("abi: no extern registered for id %d", id)
	}
	ctx.GC.Pause()
	defer ctx.GC.Resume()
	return r.byID[id](ctx), nil
}
