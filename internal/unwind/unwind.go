// Package unwind holds the small state machine that drives Vo's
// return/panic/recover/defer semantics, independent of any particular
// fiber or interpreter — internal/fiber owns the defer LIFO queue and
// internal/interp drives frame pop/defer-execution; this package only
// tracks which of the two unwinding regimes is active and what it takes
// to finish.
package unwind

import "github.com/chazu/vo/internal/slot"

// Mode is which of the two unwinding regimes a fiber's active unwind is
// in, per spec.md §4.7.
type Mode uint8

const (
	// ModeReturn is a normal return draining pending defers before it
	// can actually hand control back to the caller.
	ModeReturn Mode = iota
	// ModePanic is an in-flight panic draining defers looking for one
	// that calls recover().
	ModePanic
)

func (m Mode) String() string {
	switch m {
	case ModeReturn:
		return "return"
	case ModePanic:
		return "panic"
	default:
		return "unwind(?)"
	}
}

// PanicValue is the boxed interface-pair payload carried by panic() and
// surfaced to recover(), plus an optional message for panics the runtime
// itself raises (nil dereference, index out of range, failed interface
// assertion) rather than ones a program's own panic() call constructed.
type PanicValue struct {
	Iface0 slot.Slot
	Iface1 slot.Slot
	// Msg, when non-empty, names a runtime-raised panic that has no
	// natural Vo interface value (spec.md §7.3); interp boxes it into a
	// runtime error value lazily only if a recover() actually inspects it.
	Msg string
}

// State is the single active unwind for one fiber. Exactly one is active
// at a time: a fresh panic raised while one is already draining replaces
// it via Repanic rather than stacking a second State.
type State struct {
	Mode  Mode
	Panic *PanicValue

	// IsErrorReturn gates errdefer (spec.md §7 item 1: "errdefer runs a
	// cleanup callback only on error returns"). A ModeReturn unwind
	// carries whatever the compiler set on the triggering OpReturn's
	// Flags bit 0; a ModePanic unwind is always treated as error-worthy,
	// since an in-flight panic is itself an error condition — this
	// survives a Recover() back into ModeReturn, so an errdefer still
	// fires for the frame that panicked even after its own recover()
	// clears the panic.
	IsErrorReturn bool

	// TargetDepth is the fiber's frame count once the function that
	// started this unwind has been popped. A defer "just returned" (event
	// 2 of spec.md §4.7) once len(frames) == TargetDepth+1: the defer's
	// own frame is gone but the unwinding function's frame is still there.
	TargetDepth int

	// CallerRetReg/CallerRetCount record where a successful drain should
	// eventually write its return values, captured once when unwinding
	// begins in ModeReturn.
	CallerRetReg   uint16
	CallerRetCount uint16

	// RetVals holds the unwinding function's own return values, copied
	// out by interp's execReturn before the frame that held them in its
	// register window is popped. A defer draining after it runs in a
	// popped-down frame that no longer has those registers, so they must
	// be stashed here rather than re-read off the stack. RetTypes is the
	// parallel GC scan vector (fiber.Fiber.ScanRoots needs it the same
	// way fiber.DeferEntry needs ArgTypes alongside Args).
	RetVals  []slot.Slot
	RetTypes []slot.SlotType
}

// SetRetVals stashes vals (interp's own copy, not aliased to any fiber
// register window) as the return values a draining Return-mode unwind
// will eventually deliver to the caller, alongside their GC scan vector.
func (s *State) SetRetVals(vals []slot.Slot, types []slot.SlotType) {
	s.RetVals = vals
	s.RetTypes = types
}

// NewReturnState begins Return-mode unwinding for a function that has
// pending defers to run before it can actually return, per spec.md
// §4.7's first event.
func NewReturnState(targetDepth int, retReg, retCount uint16, isErrorReturn bool) *State {
	return &State{Mode: ModeReturn, TargetDepth: targetDepth, CallerRetReg: retReg, CallerRetCount: retCount, IsErrorReturn: isErrorReturn}
}

// NewPanicState begins Panic-mode unwinding for a freshly raised panic,
// per spec.md §4.7's third event ("no active unwind: start one").
func NewPanicState(targetDepth int, pv *PanicValue) *State {
	return &State{Mode: ModePanic, Panic: pv, TargetDepth: targetDepth, IsErrorReturn: true}
}

// DeferReturned reports whether popping a just-finished defer's frame
// lands the fiber at the depth spec.md §4.7's second event fires at.
func (s *State) DeferReturned(framesLen int) bool {
	return framesLen == s.TargetDepth+1
}

// Recover clears s's panic and switches it back to Return mode, per
// spec.md §4.7: "recover() called from a direct defer of the panicking
// function clears the panic value; unwinding continues in Return mode."
// Returns the recovered value, or nil if s was not panicking (a bare
// recover() outside an active panic is a no-op at the call site, not here).
func (s *State) Recover() *PanicValue {
	if s == nil || s.Mode != ModePanic {
		return nil
	}
	pv := s.Panic
	s.Panic = nil
	s.Mode = ModeReturn
	return pv
}

// Repanic begins a new Panic-mode unwind nested inside the one already
// draining, per spec.md §4.7's third event ("already unwinding: the new
// panic replaces it, resuming with the remaining defers at the new
// depth"). newTargetDepth is the frame depth at the point of the new panic.
func (s *State) Repanic(newTargetDepth int, pv *PanicValue) {
	s.Mode = ModePanic
	s.Panic = pv
	s.TargetDepth = newTargetDepth
}
