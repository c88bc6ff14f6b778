package unwind

import "testing"

func TestReturnStateDeferReturned(t *testing.T) {
	s := NewReturnState(3, 0, 1, false)
	if s.DeferReturned(3) {
		t.Error("DeferReturned(3) should be false before TargetDepth+1 is reached")
	}
	if got := s.DeferReturned(4); !got {
		t.Errorf("DeferReturned(%d) = %v, want true at TargetDepth+1", 4, got)
	}
}

func TestRecoverSwitchesToReturnMode(t *testing.T) {
	pv := &PanicValue{Msg: "boom"}
	s := NewPanicState(2, pv)

	got := s.Recover()
	if got != pv {
		t.Fatalf("Recover() = %v, want %v", got, pv)
	}
	if s.Mode != ModeReturn {
		t.Errorf("Mode after Recover = %v, want ModeReturn", s.Mode)
	}
	if s.Panic != nil {
		t.Error("Panic should be cleared after Recover")
	}

	if s.Recover() != nil {
		t.Error("Recover on an already-Return-mode state should be a no-op")
	}
}

func TestRepanicReplacesActiveUnwind(t *testing.T) {
	s := NewReturnState(5, 0, 1, false)
	pv := &PanicValue{Msg: "nested"}
	s.Repanic(2, pv)

	if s.Mode != ModePanic {
		t.Errorf("Mode after Repanic = %v, want ModePanic", s.Mode)
	}
	if s.Panic != pv {
		t.Errorf("Panic after Repanic = %v, want %v", s.Panic, pv)
	}
	if s.TargetDepth != 2 {
		t.Errorf("TargetDepth after Repanic = %d, want 2", s.TargetDepth)
	}
}

func TestModeString(t *testing.T) {
	if ModeReturn.String() != "return" || ModePanic.String() != "panic" {
		t.Errorf("unexpected Mode.String() values: %q, %q", ModeReturn.String(), ModePanic.String())
	}
}
