package jit

import (
	"testing"

	"github.com/chazu/vo/pkg/bytecode"
)

func TestProfilerRecordCallHotOnce(t *testing.T) {
	p := NewProfiler(3, 100)
	var hotAt int
	for i := 1; i <= 5; i++ {
		if p.RecordCall(1) {
			hotAt = i
		}
	}
	if hotAt != 3 {
		t.Fatalf("expected funcID 1 to go hot on the 3rd call, went hot on call %d", hotAt)
	}
}

func TestProfilerRecordCallIndependentPerFunction(t *testing.T) {
	p := NewProfiler(2, 100)
	if p.RecordCall(1) {
		t.Fatal("funcID 1 should not be hot after one call")
	}
	if p.RecordCall(2) {
		t.Fatal("funcID 2 should not be hot after one call")
	}
	if !p.RecordCall(1) {
		t.Fatal("funcID 1 should go hot on its second call")
	}
	if !p.RecordCall(2) {
		t.Fatal("funcID 2 should go hot on its own second call, independent of funcID 1")
	}
}

func TestProfilerRecordBackedge(t *testing.T) {
	p := NewProfiler(1000, 2)
	if p.RecordBackedge(7) {
		t.Fatal("should not be hot after one backedge")
	}
	if !p.RecordBackedge(7) {
		t.Fatal("should go hot after crossing BackedgeThreshold")
	}
	if p.RecordBackedge(7) {
		t.Fatal("should report hot only once")
	}
}

func TestProfilerReset(t *testing.T) {
	p := NewProfiler(1, 1)
	p.RecordCall(9)
	p.Reset()
	if !p.RecordCall(9) {
		t.Fatal("expected funcID 9 to go hot again on the first call after Reset")
	}
}

func TestProfilerDefaultThresholds(t *testing.T) {
	p := NewProfiler(0, 0)
	if p.CallThreshold != DefaultCallThreshold {
		t.Errorf("CallThreshold = %d, want default %d", p.CallThreshold, DefaultCallThreshold)
	}
	if p.BackedgeThreshold != DefaultBackedgeThreshold {
		t.Errorf("BackedgeThreshold = %d, want default %d", p.BackedgeThreshold, DefaultBackedgeThreshold)
	}
}

func ins(op bytecode.Opcode, a, b, c uint16) bytecode.Instruction {
	return bytecode.Instruction{Op: op, A: a, B: b, C: c}
}

func TestEligible(t *testing.T) {
	mod := &bytecode.Module{
		Constants: []bytecode.Constant{
			{Kind: bytecode.ConstInt, I: 1},
			{Kind: bytecode.ConstString, S: "hi"},
		},
	}

	tests := []struct {
		name string
		code bytecode.Code
		want bool
	}{
		{
			name: "arith and return",
			code: bytecode.Code{
				ins(bytecode.OpLoadConst, 0, 0, 0),
				ins(bytecode.OpAddI64, 1, 0, 0),
				ins(bytecode.OpReturn, 1, 0, 1),
			},
			want: true,
		},
		{
			name: "call and jump",
			code: bytecode.Code{
				ins(bytecode.OpJumpIfNot, 0, 2, 0),
				ins(bytecode.OpCall, 3, 0, 1),
				ins(bytecode.OpReturn, 0, 0, 1),
			},
			want: true,
		},
		{
			name: "string constant excluded",
			code: bytecode.Code{
				ins(bytecode.OpLoadConst, 0, 1, 0),
				ins(bytecode.OpReturn, 0, 0, 1),
			},
			want: false,
		},
		{
			name: "goroutine spawn excluded",
			code: bytecode.Code{
				ins(bytecode.OpGo, 0, 0, 0),
			},
			want: false,
		},
		{
			name: "defer excluded",
			code: bytecode.Code{
				ins(bytecode.OpDeferPush, 0, 0, 0),
			},
			want: false,
		},
		{
			name: "struct alloc excluded",
			code: bytecode.Code{
				ins(bytecode.OpStructNew, 0, 0, 0),
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn := &bytecode.Function{Code: tt.code}
			if got := Eligible(mod, fn); got != tt.want {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}
