package jit

import (
	"sync"

	"github.com/chazu/vo/pkg/bytecode"
)

// Default thresholds, per spec.md §4.9 ("e.g., 100" call count,
// "e.g., 50" loop-backedge count) and SPEC_FULL.md §1.4's [jit] table.
const (
	DefaultCallThreshold     = 100
	DefaultBackedgeThreshold = 50
)

// Profiler counts calls and loop backedges per function id, the same
// role as the teacher's Profiler (vm/profiler.go) driving OnHot, adapted
// from per-CompiledMethod pointer identity to a flat funcID index since
// this VM's functions live in one module-owned slice rather than being
// individually heap-allocated CompiledMethod objects.
type Profiler struct {
	CallThreshold     int
	BackedgeThreshold int

	mu        sync.Mutex
	calls     map[uint32]int
	backedges map[uint32]int
	hot       map[uint32]bool
}

// NewProfiler returns a Profiler using the given thresholds, or the
// package defaults if either is zero.
func NewProfiler(callThreshold, backedgeThreshold int) *Profiler {
	if callThreshold <= 0 {
		callThreshold = DefaultCallThreshold
	}
	if backedgeThreshold <= 0 {
		backedgeThreshold = DefaultBackedgeThreshold
	}
	return &Profiler{
		CallThreshold:     callThreshold,
		BackedgeThreshold: backedgeThreshold,
		calls:             make(map[uint32]int),
		backedges:         make(map[uint32]int),
		hot:               make(map[uint32]bool),
	}
}

// RecordCall notes one more invocation of funcID and reports true the
// first time its call count crosses CallThreshold.
func (p *Profiler) RecordCall(funcID uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hot[funcID] {
		return false
	}
	p.calls[funcID]++
	if p.calls[funcID] >= p.CallThreshold {
		p.hot[funcID] = true
		return true
	}
	return false
}

// RecordBackedge notes one more loop backedge taken inside funcID and
// reports true the first time its backedge count crosses
// BackedgeThreshold — a tight loop that never accumulates enough whole-
// function calls to trip RecordCall still gets compiled this way.
func (p *Profiler) RecordBackedge(funcID uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hot[funcID] {
		return false
	}
	p.backedges[funcID]++
	if p.backedges[funcID] >= p.BackedgeThreshold {
		p.hot[funcID] = true
		return true
	}
	return false
}

// Reset clears all counters and hot-marks, used when a module reload
// invalidates every compiled function (spec.md §4.9's "Invalidation").
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = make(map[uint32]int)
	p.backedges = make(map[uint32]int)
	p.hot = make(map[uint32]bool)
}

// Eligible reports whether fn can be lowered by this package's
// transpiler at all. spec.md §4.9's "Exclusions" names defer, recover,
// go, channel ops, and select; this implementation additionally bails
// out (leaving the function to the interpreter) on anything that needs
// heap allocation, container/map/interface/closure access, or iteration,
// since lowering those would mean re-deriving the GC's own scanning and
// allocation-coloring rules inside generated Go source instead of
// reusing internal/gc and internal/objmodel's own entry points — a real
// tiering JIT routinely leaves "complex" methods on the baseline
// interpreter for exactly this reason. What remains — locals, globals,
// arithmetic, comparison, bitwise, control flow, and calls/returns — is
// exactly the subset spec.md's own S1 Fibonacci scenario exercises.
func Eligible(mod *bytecode.Module, fn *bytecode.Function) bool {
	for _, ins := range fn.Code {
		op := ins.Op
		switch {
		case op.IsConcurrency(), op.IsUnwindOp():
			return false
		case op.IsArithmetic(), op.IsComparison():
			// always eligible: single-slot scalar ops only.
		case op == bytecode.OpNop, op == bytecode.OpMove, op == bytecode.OpLoadNil:
		case op == bytecode.OpLoadConst:
			if int(ins.B) >= len(mod.Constants) {
				return false
			}
			c := mod.Constants[ins.B]
			if c.Kind == bytecode.ConstString {
				// string constants need GC.NewString — a heap allocation
				// the generated code has no safepoint-safe way to trigger.
				return false
			}
		case op == bytecode.OpGetGlobal, op == bytecode.OpSetGlobal:
		case op == bytecode.OpJump, op == bytecode.OpJumpIf, op == bytecode.OpJumpIfNot:
		case op == bytecode.OpCall, op == bytecode.OpReturn:
		case op == bytecode.OpHalt:
		default:
			return false
		}
	}
	return true
}
