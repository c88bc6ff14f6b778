package interp

import (
	"strings"
	"testing"

	"github.com/chazu/vo/internal/abi"
	"github.com/chazu/vo/internal/fiber"
	"github.com/chazu/vo/internal/gc"
	"github.com/chazu/vo/internal/jit"
	"github.com/chazu/vo/internal/objmodel"
	"github.com/chazu/vo/internal/slot"
	"github.com/chazu/vo/pkg/bytecode"
)

// buildAddCallModule wires a two-function module: main loads two
// constants, calls add, and stores the result in a global. It exercises
// OpLoadConst, OpCall/OpReturn, OpAddI64 and OpGetGlobal/OpSetGlobal
// together, the same call-and-return shape every other test in this file
// starts from.
func buildAddCallModule() *bytecode.Module {
	m := bytecode.NewModule()
	m.Constants = []bytecode.Constant{
		{Kind: bytecode.ConstInt, I: 2},
		{Kind: bytecode.ConstInt, I: 3},
	}
	m.Globals = []bytecode.Global{
		{Name: "result", Slots: 1, ValueKind: slot.KindInt64},
	}
	m.Functions = []bytecode.Function{
		{
			Name:       "main",
			LocalSlots: 2,
			RetSlots:   0,
			Code: bytecode.Code{
				{Op: bytecode.OpLoadConst, A: 0, B: 0},
				{Op: bytecode.OpLoadConst, A: 1, B: 1},
				{Op: bytecode.OpCall, A: 1, B: 0, C: 2, Flags: 1},
				{Op: bytecode.OpSetGlobal, A: 0, B: 0},
				{Op: bytecode.OpReturn, A: 0, C: 0},
			},
		},
		{
			Name:       "add",
			ParamCount: 2,
			ParamSlots: 2,
			LocalSlots: 2,
			RetSlots:   1,
			Code: bytecode.Code{
				{Op: bytecode.OpAddI64, A: 0, B: 0, C: 1},
				{Op: bytecode.OpReturn, A: 0, C: 1},
			},
		},
	}
	m.EntryFunc = 0
	m.ErrorStructID = slot.FirstUserStruct
	m.ErrorIfaceID = slot.FirstIface
	return m
}

// newTestInterp assembles the same heap/scheduler/GC/registry stack
// cmd/vo wires in production, minus config and JIT, for a module built
// by one of this file's helpers.
func newTestInterp(t *testing.T, mod *bytecode.Module) *Interp {
	t.Helper()
	heap := objmodel.NewHeap()
	heap.Types = mod
	sched := fiber.NewScheduler()
	g := gc.New(heap, sched, gc.DefaultTuning())
	registry := abi.NewRegistry()

	ip, err := New(mod, g, sched, registry)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ip
}

func TestCallAndReturnComputesGlobal(t *testing.T) {
	mod := buildAddCallModule()
	ip := newTestInterp(t, mod)

	if _, err := ip.StartMain(); err != nil {
		t.Fatalf("StartMain: %v", err)
	}
	if err := ip.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := ip.globals[0]; got != 5 {
		t.Errorf("globals[0] = %d, want 5", got)
	}
}

func TestScanRootsSkipsNonRefGlobals(t *testing.T) {
	mod := buildAddCallModule()
	ip := newTestInterp(t, mod)
	ip.globals[0] = 5

	visited := 0
	ip.ScanRoots(func(slot.Ref) { visited++ })
	if visited != 0 {
		t.Errorf("ScanRoots visited %d refs for an all-int64 global table, want 0", visited)
	}
}

// stubCompiledFunc returns a jit.CompiledFunc that always overwrites
// locals[0] with a fixed value and returns it, distinguishable from
// whatever the interpreted bytecode would compute so a test can tell
// which path actually ran.
func stubCompiledFunc(retVal uint64) jit.CompiledFunc {
	return func(ctx *jit.Context, locals []uint64, args []uint64, ret []uint64) jit.Result {
		if len(ret) > 0 {
			ret[0] = retVal
		}
		return jit.ResultOk
	}
}

func TestStepDispatchesToCompiledFunction(t *testing.T) {
	mod := buildAddCallModule()
	ip := newTestInterp(t, mod)

	bridge, err := jit.New(t.TempDir(), 0, 0)
	if err != nil {
		t.Fatalf("jit.New: %v", err)
	}
	defer bridge.Close()
	// funcID 1 is "add" (2 + 3 == 5 interpreted); install a stub that
	// returns 99 instead, so the observed global tells us stepCompiled
	// ran in place of the interpreted OpAddI64/OpReturn pair.
	bridge.Install(1, stubCompiledFunc(99))
	ip.SetJIT(bridge)

	if _, err := ip.StartMain(); err != nil {
		t.Fatalf("StartMain: %v", err)
	}
	if err := ip.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := ip.globals[0]; got != 99 {
		t.Errorf("globals[0] = %d, want 99 (from the compiled stub, not the interpreted add)", got)
	}
}

// buildDeferModule wires a main/cleanup pair shaped like buildAddCallModule,
// covering the defer/errdefer/panic/recover group (spec.md §8 properties
// 3-4, scenario S5): main registers a single defer over cleanup (ordinary
// or errdefer per isErrdefer) and returns with flagsOnReturn on its own
// OpReturn; cleanup unconditionally sets global 0 to 42 so whether it ran
// is directly observable.
func buildDeferModule(isErrdefer bool, flagsOnReturn uint8) *bytecode.Module {
	m := bytecode.NewModule()
	m.Constants = []bytecode.Constant{
		{Kind: bytecode.ConstInt, I: 42},
	}
	m.Globals = []bytecode.Global{
		{Name: "ran", Slots: 1, ValueKind: slot.KindInt64},
	}
	deferFlags := uint8(0)
	if isErrdefer {
		deferFlags = 1
	}
	m.Functions = []bytecode.Function{
		{
			Name:       "main",
			LocalSlots: 1,
			Code: bytecode.Code{
				{Op: bytecode.OpClosureNew, A: 0, B: 1, Flags: 0, C: 0},
				{Op: bytecode.OpDeferPush, A: 0, B: 0, C: 0, Flags: deferFlags},
				{Op: bytecode.OpReturn, A: 0, C: 0, Flags: flagsOnReturn},
			},
		},
		{
			Name:       "cleanup",
			LocalSlots: 1,
			Code: bytecode.Code{
				{Op: bytecode.OpLoadConst, A: 0, B: 0},
				{Op: bytecode.OpSetGlobal, A: 0, B: 0},
				{Op: bytecode.OpReturn, A: 0, C: 0},
			},
		},
	}
	m.EntryFunc = 0
	return m
}

func TestDeferErrdeferGating(t *testing.T) {
	tests := []struct {
		name           string
		isErrdefer     bool
		flagsOnReturn  uint8
		wantGlobalZero bool
	}{
		{"ordinary defer always fires", false, 0, false},
		{"errdefer skipped on non-error return", true, 0, true},
		{"errdefer fires on error return", true, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mod := buildDeferModule(tt.isErrdefer, tt.flagsOnReturn)
			ip := newTestInterp(t, mod)

			if _, err := ip.StartMain(); err != nil {
				t.Fatalf("StartMain: %v", err)
			}
			if err := ip.Run(); err != nil {
				t.Fatalf("Run: %v", err)
			}

			got := ip.globals[0]
			if tt.wantGlobalZero && got != 0 {
				t.Errorf("globals[0] = %d, want 0 (cleanup should not have run)", got)
			}
			if !tt.wantGlobalZero && got != 42 {
				t.Errorf("globals[0] = %d, want 42 (cleanup should have run)", got)
			}
		})
	}
}

// buildPanicRecoverModule wires willPanic (called from main), which
// defers recoverer before panicking with a boxed int64 payload. recoverer
// calls OpRecover, unboxes the payload, and stores it to global 0 --
// exercising OpDeferPush/OpPanic/OpRecover/OpIfaceAssign/OpIfaceUnbox
// together through the real unwind path (spec.md §4.7).
func buildPanicRecoverModule() *bytecode.Module {
	m := bytecode.NewModule()
	m.Constants = []bytecode.Constant{
		{Kind: bytecode.ConstInt, I: 999},
	}
	m.Globals = []bytecode.Global{
		{Name: "recovered", Slots: 1, ValueKind: slot.KindInt64},
	}
	m.Functions = []bytecode.Function{
		{
			Name:       "main",
			LocalSlots: 1,
			Code: bytecode.Code{
				{Op: bytecode.OpCall, A: 1, B: 0, C: 0, Flags: 0},
				{Op: bytecode.OpReturn, A: 0, C: 0},
			},
		},
		{
			Name:       "willPanic",
			LocalSlots: 4,
			Code: bytecode.Code{
				{Op: bytecode.OpClosureNew, A: 0, B: 2, Flags: 0, C: 0},
				{Op: bytecode.OpDeferPush, A: 0, B: 0, C: 0, Flags: 0},
				{Op: bytecode.OpLoadConst, A: 1, B: 0},
				{Op: bytecode.OpIfaceAssign, A: 2, B: 1, C: 0, Flags: uint8(slot.KindInt64)},
				{Op: bytecode.OpPanic, A: 2},
			},
		},
		{
			Name:       "recoverer",
			LocalSlots: 3,
			Code: bytecode.Code{
				{Op: bytecode.OpRecover, A: 0, Flags: 0},
				{Op: bytecode.OpIfaceUnbox, A: 2, B: 0},
				{Op: bytecode.OpSetGlobal, A: 2, B: 0},
				{Op: bytecode.OpReturn, A: 0, C: 0},
			},
		},
	}
	m.EntryFunc = 0
	return m
}

func TestPanicRecoverThroughDefer(t *testing.T) {
	mod := buildPanicRecoverModule()
	ip := newTestInterp(t, mod)

	if _, err := ip.StartMain(); err != nil {
		t.Fatalf("StartMain: %v", err)
	}
	if err := ip.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := ip.globals[0]; got != 999 {
		t.Errorf("globals[0] = %d, want 999 (recovered panic payload)", got)
	}
}

// buildUnrecoveredPanicModule panics from willPanic with no defer
// anywhere on the stack, so the panic must unwind every frame and come
// back out of Run() as an error.
func buildUnrecoveredPanicModule() *bytecode.Module {
	m := bytecode.NewModule()
	m.Constants = []bytecode.Constant{
		{Kind: bytecode.ConstInt, I: 7},
	}
	m.Functions = []bytecode.Function{
		{
			Name:       "main",
			LocalSlots: 1,
			Code: bytecode.Code{
				{Op: bytecode.OpCall, A: 1, B: 0, C: 0, Flags: 0},
				{Op: bytecode.OpReturn, A: 0, C: 0},
			},
		},
		{
			Name:       "willPanic",
			LocalSlots: 3,
			Code: bytecode.Code{
				{Op: bytecode.OpLoadConst, A: 0, B: 0},
				{Op: bytecode.OpIfaceAssign, A: 1, B: 0, C: 0, Flags: uint8(slot.KindInt64)},
				{Op: bytecode.OpPanic, A: 1},
			},
		},
	}
	m.EntryFunc = 0
	return m
}

func TestUnrecoveredPanicPropagatesAsError(t *testing.T) {
	mod := buildUnrecoveredPanicModule()
	ip := newTestInterp(t, mod)

	if _, err := ip.StartMain(); err != nil {
		t.Fatalf("StartMain: %v", err)
	}
	err := ip.Run()
	if err == nil {
		t.Fatal("expected Run to report the unrecovered panic as an error")
	}
	if !strings.Contains(err.Error(), "unrecovered panic") {
		t.Errorf("Run error = %v, want it to mention an unrecovered panic", err)
	}
}

// buildContainerOpsModule drives OpSliceNew/OpAppend/OpGet/OpSet/OpLen/
// OpReslice on an int64-element slice through the real dispatch loop.
// int64 elements are slot-based (objmodel.PackedWidth returns 0 for
// KindInt64), so this exercises AppendSlots/execGet/execSet's slot path,
// not the packed-byte-encoding path OpAppend/OpGet/OpSet also support.
func buildContainerOpsModule() *bytecode.Module {
	m := bytecode.NewModule()
	m.Constants = []bytecode.Constant{
		{Kind: bytecode.ConstInt, I: 10},
		{Kind: bytecode.ConstInt, I: 20},
		{Kind: bytecode.ConstInt, I: 0},
		{Kind: bytecode.ConstInt, I: 1},
		{Kind: bytecode.ConstInt, I: 99},
	}
	m.Globals = []bytecode.Global{
		{Name: "firstBeforeSet", Slots: 1, ValueKind: slot.KindInt64},
		{Name: "secondAfterSet", Slots: 1, ValueKind: slot.KindInt64},
		{Name: "lenBeforeReslice", Slots: 1, ValueKind: slot.KindInt64},
		{Name: "lenAfterReslice", Slots: 1, ValueKind: slot.KindInt64},
		{Name: "firstAfterReslice", Slots: 1, ValueKind: slot.KindInt64},
	}
	m.Functions = []bytecode.Function{
		{
			Name:       "main",
			LocalSlots: 10,
			Code: bytecode.Code{
				{Op: bytecode.OpSliceNew, A: 0, B: 0, Flags: uint8(slot.KindInt64), C: 0},
				{Op: bytecode.OpLoadConst, A: 1, B: 0},
				{Op: bytecode.OpAppend, A: 0, B: 0, C: 1},
				{Op: bytecode.OpLoadConst, A: 1, B: 1},
				{Op: bytecode.OpAppend, A: 0, B: 0, C: 1},
				{Op: bytecode.OpLoadConst, A: 2, B: 2},
				{Op: bytecode.OpGet, A: 3, B: 0, C: 2},
				{Op: bytecode.OpLoadConst, A: 4, B: 3},
				{Op: bytecode.OpLoadConst, A: 5, B: 4},
				{Op: bytecode.OpSet, A: 0, B: 4, C: 5},
				{Op: bytecode.OpGet, A: 6, B: 0, C: 4},
				{Op: bytecode.OpLen, A: 7, B: 0},
				{Op: bytecode.OpReslice, A: 0, B: 2, C: 4},
				{Op: bytecode.OpLen, A: 8, B: 0},
				{Op: bytecode.OpGet, A: 9, B: 0, C: 2},
				{Op: bytecode.OpSetGlobal, A: 3, B: 0},
				{Op: bytecode.OpSetGlobal, A: 6, B: 1},
				{Op: bytecode.OpSetGlobal, A: 7, B: 2},
				{Op: bytecode.OpSetGlobal, A: 8, B: 3},
				{Op: bytecode.OpSetGlobal, A: 9, B: 4},
				{Op: bytecode.OpReturn, A: 0, C: 0},
			},
		},
	}
	m.EntryFunc = 0
	return m
}

func TestContainerOpsThroughDispatch(t *testing.T) {
	mod := buildContainerOpsModule()
	ip := newTestInterp(t, mod)

	if _, err := ip.StartMain(); err != nil {
		t.Fatalf("StartMain: %v", err)
	}
	if err := ip.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []int64{10, 99, 2, 1, 10}
	for i, w := range want {
		if got := int64(ip.globals[i]); got != w {
			t.Errorf("globals[%d] = %d, want %d", i, got, w)
		}
	}
}

// buildIfaceModule boxes an int64 into an interface and asserts it back
// out both ways: a comma-ok match (recording payload and ok), then a
// mismatched assertion with no comma-ok, which must panic.
func buildIfaceModule() *bytecode.Module {
	m := bytecode.NewModule()
	m.Constants = []bytecode.Constant{
		{Kind: bytecode.ConstInt, I: 7},
	}
	m.Globals = []bytecode.Global{
		{Name: "payload", Slots: 1, ValueKind: slot.KindInt64},
		{Name: "ok", Slots: 1, ValueKind: slot.KindBool},
	}
	const commaOk = 0x20
	m.Functions = []bytecode.Function{
		{
			Name:       "main",
			LocalSlots: 6,
			Code: bytecode.Code{
				{Op: bytecode.OpLoadConst, A: 0, B: 0},
				{Op: bytecode.OpIfaceAssign, A: 1, B: 0, C: 0, Flags: uint8(slot.KindInt64)},
				{Op: bytecode.OpIfaceAssert, A: 3, B: 1, C: 0, Flags: uint8(slot.KindInt64) | commaOk},
				{Op: bytecode.OpSetGlobal, A: 3, B: 0},
				{Op: bytecode.OpSetGlobal, A: 4, B: 1},
				{Op: bytecode.OpIfaceAssert, A: 5, B: 1, C: 0, Flags: uint8(slot.KindBool)},
				{Op: bytecode.OpReturn, A: 0, C: 0},
			},
		},
	}
	m.EntryFunc = 0
	return m
}

func TestIfaceAssignAssertThroughDispatch(t *testing.T) {
	mod := buildIfaceModule()
	ip := newTestInterp(t, mod)

	if _, err := ip.StartMain(); err != nil {
		t.Fatalf("StartMain: %v", err)
	}
	err := ip.Run()
	if err == nil {
		t.Fatal("expected Run to report the mismatched assertion as an error")
	}
	if !strings.Contains(err.Error(), "interface conversion") {
		t.Errorf("Run error = %v, want it to mention a failed interface conversion", err)
	}
	if got := ip.globals[0]; got != 7 {
		t.Errorf("globals[0] = %d, want 7 (matching assertion's payload)", got)
	}
	if got := ip.globals[1]; got != 1 {
		t.Errorf("globals[1] = %d, want 1 (matching assertion's comma-ok true)", got)
	}
}

// buildClosureModule captures a pointer cell holding 5 into "adder",
// calls it with 10, and checks both adder's return value (the pre-call
// captured value, read via OpClosureGetUp) and the cell's new value after
// the call (mutated via OpClosureSetUp and visible through the same
// pointer outside the closure), proving captures alias a shared cell.
func buildClosureModule() *bytecode.Module {
	m := bytecode.NewModule()
	m.Constants = []bytecode.Constant{
		{Kind: bytecode.ConstInt, I: 5},
		{Kind: bytecode.ConstInt, I: 10},
	}
	m.Globals = []bytecode.Global{
		{Name: "oldValue", Slots: 1, ValueKind: slot.KindInt64},
		{Name: "newValue", Slots: 1, ValueKind: slot.KindInt64},
	}
	m.Functions = []bytecode.Function{
		{
			Name:       "main",
			LocalSlots: 7,
			Code: bytecode.Code{
				{Op: bytecode.OpLoadConst, A: 1, B: 0},
				{Op: bytecode.OpPointerNew, A: 0, B: 1, C: 0, Flags: uint8(slot.KindInt64)},
				{Op: bytecode.OpClosureNew, A: 2, B: 1, Flags: 1, C: 0},
				{Op: bytecode.OpLoadConst, A: 4, B: 1},
				{Op: bytecode.OpCallClosure, A: 2, B: 4, C: 1, Flags: 1},
				{Op: bytecode.OpSetGlobal, A: 4, B: 0},
				{Op: bytecode.OpPointerDeref, A: 6, B: 0},
				{Op: bytecode.OpSetGlobal, A: 6, B: 1},
				{Op: bytecode.OpReturn, A: 0, C: 0},
			},
		},
		{
			Name:       "adder",
			ParamCount: 1,
			ParamSlots: 1,
			LocalSlots: 4,
			RetSlots:   1,
			Code: bytecode.Code{
				{Op: bytecode.OpClosureGetUp, A: 2, B: 0},
				{Op: bytecode.OpAddI64, A: 3, B: 2, C: 1},
				{Op: bytecode.OpClosureSetUp, A: 0, B: 3},
				{Op: bytecode.OpReturn, A: 2, C: 1},
			},
		},
	}
	m.EntryFunc = 0
	return m
}

func TestClosureCaptureThroughDispatch(t *testing.T) {
	mod := buildClosureModule()
	ip := newTestInterp(t, mod)

	if _, err := ip.StartMain(); err != nil {
		t.Fatalf("StartMain: %v", err)
	}
	if err := ip.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := ip.globals[0]; got != 5 {
		t.Errorf("globals[0] (old value) = %d, want 5", got)
	}
	if got := ip.globals[1]; got != 15 {
		t.Errorf("globals[1] (new value) = %d, want 15 (5+10 written through OpClosureSetUp)", got)
	}
}

// buildGoChanModule spawns a fiber over sender, which sends 77 on a
// capacity-1 channel main receives from. main's OpChanRecv blocks first
// (sender hasn't run yet), so this also exercises the scheduler's
// suspend/wake path (internal/fiber's wait queues), not just the
// non-blocking fast path.
func buildGoChanModule() *bytecode.Module {
	m := bytecode.NewModule()
	m.Constants = []bytecode.Constant{
		{Kind: bytecode.ConstInt, I: 77},
	}
	m.Globals = []bytecode.Global{
		{Name: "received", Slots: 1, ValueKind: slot.KindInt64},
		{Name: "ok", Slots: 1, ValueKind: slot.KindBool},
	}
	m.Functions = []bytecode.Function{
		{
			Name:       "main",
			LocalSlots: 4,
			Code: bytecode.Code{
				{Op: bytecode.OpChanNew, A: 0, B: 1, Flags: uint8(slot.KindInt64), C: 0},
				{Op: bytecode.OpClosureNew, A: 1, B: 1, Flags: 0, C: 0},
				{Op: bytecode.OpGo, A: 1, B: 0, C: 1},
				{Op: bytecode.OpChanRecv, A: 2, B: 0},
				{Op: bytecode.OpSetGlobal, A: 2, B: 0},
				{Op: bytecode.OpSetGlobal, A: 3, B: 1},
				{Op: bytecode.OpReturn, A: 0, C: 0},
			},
		},
		{
			Name:       "sender",
			ParamCount: 1,
			ParamSlots: 1,
			LocalSlots: 3,
			Code: bytecode.Code{
				{Op: bytecode.OpLoadConst, A: 2, B: 0},
				{Op: bytecode.OpChanSend, A: 1, B: 2, C: 0},
				{Op: bytecode.OpReturn, A: 0, C: 0},
			},
		},
	}
	m.EntryFunc = 0
	return m
}

func TestGoChanSendRecvThroughDispatch(t *testing.T) {
	mod := buildGoChanModule()
	ip := newTestInterp(t, mod)

	if _, err := ip.StartMain(); err != nil {
		t.Fatalf("StartMain: %v", err)
	}
	if err := ip.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := ip.globals[0]; got != 77 {
		t.Errorf("globals[0] (received) = %d, want 77", got)
	}
	if got := ip.globals[1]; got != 1 {
		t.Errorf("globals[1] (ok) = %d, want 1 (true)", got)
	}
}

// buildSelectModule pre-fills a capacity-1 channel then runs a
// single-case OpSelect recv against it, so the case is ready immediately
// and no parking is needed. The case descriptor block immediately
// following OpSelect in fn.Code is this package's own encoding (see
// concurrency.go's execSelect doc comment): Op is never dispatched, only
// A/B/C/Flags are read.
func buildSelectModule() *bytecode.Module {
	m := bytecode.NewModule()
	m.Constants = []bytecode.Constant{
		{Kind: bytecode.ConstInt, I: 55},
	}
	m.Globals = []bytecode.Global{
		{Name: "received", Slots: 1, ValueKind: slot.KindInt64},
		{Name: "ok", Slots: 1, ValueKind: slot.KindBool},
	}
	m.Functions = []bytecode.Function{
		{
			Name:       "main",
			LocalSlots: 4,
			Code: bytecode.Code{
				{Op: bytecode.OpChanNew, A: 0, B: 1, Flags: uint8(slot.KindInt64), C: 0},
				{Op: bytecode.OpLoadConst, A: 1, B: 0},
				{Op: bytecode.OpChanSend, A: 0, B: 1, C: 0},
				{Op: bytecode.OpSelect, A: 0, Flags: 1},
				{Op: bytecode.OpNop, A: 0, B: 2, C: 0, Flags: uint8(fiber.SelectRecv)},
				{Op: bytecode.OpSetGlobal, A: 2, B: 0},
				{Op: bytecode.OpSetGlobal, A: 3, B: 1},
				{Op: bytecode.OpReturn, A: 0, C: 0},
			},
		},
	}
	m.EntryFunc = 0
	return m
}

func TestSelectRecvThroughDispatch(t *testing.T) {
	mod := buildSelectModule()
	ip := newTestInterp(t, mod)

	if _, err := ip.StartMain(); err != nil {
		t.Fatalf("StartMain: %v", err)
	}
	if err := ip.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := ip.globals[0]; got != 55 {
		t.Errorf("globals[0] (received) = %d, want 55", got)
	}
	if got := ip.globals[1]; got != 1 {
		t.Errorf("globals[1] (ok) = %d, want 1 (true)", got)
	}
}

// buildIterRangeModule drives OpIterNew/OpIterNext over an int range
// [0,3), summing the three yielded indices and recording the final
// exhausted call's ok flag, which must come back false.
func buildIterRangeModule() *bytecode.Module {
	m := bytecode.NewModule()
	m.Constants = []bytecode.Constant{
		{Kind: bytecode.ConstInt, I: 0},
		{Kind: bytecode.ConstInt, I: 3},
	}
	m.Globals = []bytecode.Global{
		{Name: "sum", Slots: 1, ValueKind: slot.KindInt64},
		{Name: "exhaustedOk", Slots: 1, ValueKind: slot.KindBool},
	}
	m.Functions = []bytecode.Function{
		{
			Name:       "main",
			LocalSlots: 12,
			Code: bytecode.Code{
				{Op: bytecode.OpLoadConst, A: 0, B: 0},
				{Op: bytecode.OpLoadConst, A: 1, B: 1},
				{Op: bytecode.OpIterNew, A: 2, B: 0, C: 1, Flags: uint8(fiber.IterIntRange)},
				{Op: bytecode.OpIterNext, A: 3},
				{Op: bytecode.OpIterNext, A: 5},
				{Op: bytecode.OpIterNext, A: 7},
				{Op: bytecode.OpIterNext, A: 9},
				{Op: bytecode.OpAddI64, A: 11, B: 3, C: 5},
				{Op: bytecode.OpAddI64, A: 11, B: 11, C: 7},
				{Op: bytecode.OpSetGlobal, A: 11, B: 0},
				{Op: bytecode.OpSetGlobal, A: 10, B: 1},
				{Op: bytecode.OpReturn, A: 0, C: 0},
			},
		},
	}
	m.EntryFunc = 0
	return m
}

func TestIterIntRangeThroughDispatch(t *testing.T) {
	mod := buildIterRangeModule()
	ip := newTestInterp(t, mod)

	if _, err := ip.StartMain(); err != nil {
		t.Fatalf("StartMain: %v", err)
	}
	if err := ip.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := ip.globals[0]; got != 3 {
		t.Errorf("globals[0] (sum of 0+1+2) = %d, want 3", got)
	}
	if got := ip.globals[1]; got != 0 {
		t.Errorf("globals[1] (exhausted ok) = %d, want 0 (false)", got)
	}
}

func TestStepCompiledPanicPropagatesAsUnrecoveredError(t *testing.T) {
	mod := buildAddCallModule()
	ip := newTestInterp(t, mod)

	bridge, err := jit.New(t.TempDir(), 0, 0)
	if err != nil {
		t.Fatalf("jit.New: %v", err)
	}
	defer bridge.Close()
	panicking := func(ctx *jit.Context, locals []uint64, args []uint64, ret []uint64) jit.Result {
		return ctx.Fail("boom from compiled code")
	}
	bridge.Install(1, jit.CompiledFunc(panicking))
	ip.SetJIT(bridge)

	if _, err := ip.StartMain(); err != nil {
		t.Fatalf("StartMain: %v", err)
	}
	err = ip.Run()
	if err == nil {
		t.Fatal("expected Run to report the compiled function's panic as an unrecovered error")
	}
	if !strings.Contains(err.Error(), "boom from compiled code") {
		t.Errorf("Run error = %v, want it to mention the compiled panic message", err)
	}
}
