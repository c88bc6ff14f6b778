package asm

import (
	"testing"

	"github.com/chazu/vo/internal/slot"
	"github.com/chazu/vo/pkg/bytecode"
)

// TestBuildFibonacciLikeLoop assembles a tiny loop with a backward jump
// and checks the patched offsets land on the instructions they're meant
// to reach — the scenario-style check for this package (no parser exists
// to drive this from source text, so the builder API itself is the unit
// under test).
func TestBuildFibonacciLikeLoop(t *testing.T) {
	mb := NewModuleBuilder()
	fb := mb.Func("countdown", 1, 1, 2, 1)

	loopStart := fb.PC()
	jz := fb.EmitJump(bytecode.OpJumpIfNot, 0) // if r0 == 0, fall through to exit
	fb.Op(bytecode.OpSubI64, 0, 0, 0, 1)       // r0 -= r1 (r1 assumed preloaded with 1)
	fb.EmitLoop(loopStart)
	exit := fb.PC()
	fb.PatchJump(jz)
	fb.Op(bytecode.OpReturn, 0, 0, 0, 1)

	mb.SetEntry(fb.Index())
	m := mb.Module()

	code := m.Functions[0].Code
	if len(code) != exit+1 {
		t.Fatalf("unexpected code length %d, want %d", len(code), exit+1)
	}

	jumpIns := code[jz]
	target := jz + 1 + int(int16(jumpIns.B))
	if target != exit {
		t.Errorf("JUMP_IF_NOT target = %d, want %d", target, exit)
	}

	loopIns := code[exit-1]
	if loopIns.Op != bytecode.OpJump {
		t.Fatalf("expected a trailing unconditional jump, got %v", loopIns.Op)
	}
	loopTarget := (exit - 1) + 1 + int(int16(loopIns.B))
	if loopTarget != loopStart {
		t.Errorf("loop jump target = %d, want %d", loopTarget, loopStart)
	}
}

func TestModuleBuilderRoundTripsThroughSerialize(t *testing.T) {
	mb := NewModuleBuilder()
	structID := mb.AddStruct(bytecode.StructMeta{
		Name:       "Pair",
		SlotTypes:  []slot.SlotType{slot.TypeValue, slot.TypeValue},
		FieldNames: []string{"a", "b"},
		FieldStart: []int{0, 1},
		FieldSlots: []int{1, 1},
	})
	if structID != slot.FirstUserStruct {
		t.Fatalf("first struct meta_id = %d, want %d", structID, slot.FirstUserStruct)
	}

	fb := mb.Func("main", 0, 0, 1, 1)
	fb.Op(bytecode.OpStructNew, 0, 0, uint16(structID), 0)
	fb.Op(bytecode.OpReturn, 0, 0, 0, 1)
	mb.SetEntry(fb.Index())

	m := mb.Module()
	data, err := m.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	got, err := bytecode.Deserialize(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Functions) != 1 || len(got.Functions[0].Code) != 2 {
		t.Fatalf("unexpected functions after round trip: %+v", got.Functions)
	}
}
