package abi

import (
	"testing"

	"github.com/chazu/vo/internal/gc"
	"github.com/chazu/vo/internal/objmodel"
	"github.com/chazu/vo/internal/slot"
)

// fixedRoots is a no-op RootSource, mirroring the pattern internal/gc's
// own tests and internal/fiber's scheduler_test.go use for a GC that
// never needs to find real roots.
type fixedRoots struct{}

func (fixedRoots) ScanRoots(func(slot.Ref)) {}

func newTestGC() *gc.GC {
	return gc.New(objmodel.NewHeap(), fixedRoots{}, gc.DefaultTuning())
}

func TestArgReadersRoundTripPrimitives(t *testing.T) {
	g := newTestGC()
	strRef := g.NewString([]byte("hello"))
	ctx := NewExternCallContext(g, []slot.Slot{
		slot.Slot(42),
		slot.Slot(0x4059000000000000), // float64(100) bit pattern
		1,
		strRef.Slot(),
	})

	i, err := ctx.ArgI64(0)
	if err != nil || i != 42 {
		t.Fatalf("ArgI64 = %d, %v, want 42, nil", i, err)
	}
	f, err := ctx.ArgF64(1)
	if err != nil || f != 100 {
		t.Fatalf("ArgF64 = %v, %v, want 100, nil", f, err)
	}
	b, err := ctx.ArgBool(2)
	if err != nil || !b {
		t.Fatalf("ArgBool = %v, %v, want true, nil", b, err)
	}
	s, err := ctx.ArgStr(3)
	if err != nil || s != "hello" {
		t.Fatalf("ArgStr = %q, %v, want hello, nil", s, err)
	}

	if _, err := ctx.ArgI64(99); err == nil {
		t.Error("expected an error for an out-of-range argument index")
	}
}

func TestSetRetAccumulatesInCallOrder(t *testing.T) {
	g := newTestGC()
	ctx := NewExternCallContext(g, nil)
	ctx.SetRetI64(7)
	ctx.SetRetBool(true)
	ctx.SetRetStr("x")

	rets := ctx.Rets()
	if len(rets) != 3 || int64(rets[0]) != 7 || rets[1] != 1 {
		t.Fatalf("Rets() = %v, want [7 1 <ref>]", rets)
	}
	got, err := g.Heap().StringBytes(rets[2].AsRef())
	if err != nil || string(got) != "x" {
		t.Fatalf("third return slot = %q, %v, want x, nil", got, err)
	}
}

func TestRegistryResolveRegisterAndCall(t *testing.T) {
	r := NewRegistry()
	r.Register("double", func(ctx *ExternCallContext) ExternResult {
		v, err := ctx.ArgI64(0)
		if err != nil {
			return FailErr("arg", err)
		}
		ctx.SetRetI64(v * 2)
		return Ok(1)
	})

	id, err := r.Resolve("double")
	if err != nil {
		t.Fatal(err)
	}

	g := newTestGC()
	ctx := NewExternCallContext(g, []slot.Slot{21})
	res, err := r.Call(id, ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Ok || res.RetCount != 1 {
		t.Fatalf("Call result = %+v, want Ok with 1 return", res)
	}
	if got := int64(ctx.Rets()[0]); got != 42 {
		t.Errorf("doubled value = %d, want 42", got)
	}
}

func TestRegistryResolveUnknownNameErrors(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Resolve("nope"); err == nil {
		t.Error("expected an error resolving an unregistered extern name")
	}
}

func TestRegistryCallReportsFailResult(t *testing.T) {
	r := NewRegistry()
	r.Register("alwaysFails", func(ctx *ExternCallContext) ExternResult {
		return Fail("io", "disk on fire")
	})
	id, err := r.Resolve("alwaysFails")
	if err != nil {
		t.Fatal(err)
	}

	g := newTestGC()
	res, err := r.Call(id, NewExternCallContext(g, nil))
	if err != nil {
		t.Fatal(err)
	}
	if res.Ok || res.Err == nil || res.Err.Kind != "io" {
		t.Fatalf("Call result = %+v, want a failed io result", res)
	}
}
