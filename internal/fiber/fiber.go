// Package fiber implements Vo's cooperatively-scheduled fibers: per-fiber
// value stacks, call frames, defer queues, and range-for iterator state,
// plus the single-threaded Scheduler that runs them and the blocking
// channel rendezvous layered over objmodel's plain ChannelData.
//
// Grounded on original_source/crates/vo-vm/src/fiber.rs for the data
// shapes (Fiber, CallFrame, DeferEntry, iterator state) and on the
// teacher's vm/concurrency.go and vm/registry_gc.go for the Go
// concurrency idiom — adapted from real per-process goroutines to a
// single logical thread of control per spec.md §5.
package fiber

import (
	"github.com/google/uuid"

	"github.com/chazu/vo/internal/slot"
	"github.com/chazu/vo/internal/unwind"
)

// Status is a fiber's scheduling state.
type Status uint8

const (
	// StatusSuspended fibers are not on the ready queue: blocked on a
	// channel, blocked on select with no ready case, or not yet started.
	StatusSuspended Status = iota
	// StatusRunning is set on the one fiber currently executing.
	StatusRunning
	// StatusDead fibers have returned from their entry function (or
	// panicked all the way out of it) and hold no more live roots.
	StatusDead
)

func (s Status) String() string {
	switch s {
	case StatusSuspended:
		return "suspended"
	case StatusRunning:
		return "running"
	case StatusDead:
		return "dead"
	default:
		return "status(?)"
	}
}

// Frame is one activation record on a fiber's call stack, per spec.md
// §4.5. BP is an offset into the owning Fiber's Stack; SlotTypes is the
// scan vector for Stack[BP : BP+len(SlotTypes)], copied from the callee
// Function's own SlotTypes at push time so root scanning never needs to
// look functions up by ID mid-collection.
type Frame struct {
	FuncID    uint32
	PC        int
	BP        int
	RetReg    uint16
	RetCount  uint16
	SlotTypes []slot.SlotType

	// IterBase is len(Fiber.Iters) at push time, so PopFrame can drop any
	// range-for iterator this frame pushed but never explicitly exhausted
	// (a `break` out of the loop) instead of leaking it onto whatever
	// frame runs next.
	IterBase int
}

// Fiber is one cooperative thread of Vo execution: a value stack shared
// by all of its frames, the frames themselves, a LIFO defer queue, a
// stack of active range-for iterators, and at most one active unwind.
type Fiber struct {
	ID     string
	Status Status
	IsMain bool

	Stack  []slot.Slot
	Frames []Frame
	Defers []DeferEntry
	Iters  []IterEntry

	Unwind *unwind.State

	// BlockedOn names the channel ref this fiber is parked on, for
	// diagnostics (e.g. deadlock reporting) only — the scheduler's own
	// wait queues are the source of truth for who gets woken.
	BlockedOn slot.Ref
}

// NewID generates a fiber identifier, grounded on the teacher's
// uuid.New()-per-process idiom in vm/concurrency.go.
func NewID() string {
	return uuid.New().String()
}

// New creates a suspended fiber with the given id.
func New(id string) *Fiber {
	return &Fiber{ID: id, Status: StatusSuspended}
}

// PushFrame grows the fiber's value stack by localSlots and pushes a new
// Frame pointing at it.
func (f *Fiber) PushFrame(funcID uint32, localSlots int, retReg, retCount uint16, slotTypes []slot.SlotType) *Frame {
	bp := len(f.Stack)
	f.Stack = append(f.Stack, make([]slot.Slot, localSlots)...)
	f.Frames = append(f.Frames, Frame{
		FuncID:    funcID,
		BP:        bp,
		RetReg:    retReg,
		RetCount:  retCount,
		SlotTypes: slotTypes,
		IterBase:  len(f.Iters),
	})
	return &f.Frames[len(f.Frames)-1]
}

// PopFrame removes the topmost frame, truncates the value stack back to
// its base pointer, and drops any iterator the frame leaked past a break.
func (f *Fiber) PopFrame() (Frame, bool) {
	if len(f.Frames) == 0 {
		return Frame{}, false
	}
	fr := f.Frames[len(f.Frames)-1]
	f.Frames = f.Frames[:len(f.Frames)-1]
	f.Stack = f.Stack[:fr.BP]
	if fr.IterBase < len(f.Iters) {
		f.Iters = f.Iters[:fr.IterBase]
	}
	return fr, true
}

// CurrentFrame returns the topmost frame, or nil if the fiber has none
// (not yet started, or just returned from its entry function).
func (f *Fiber) CurrentFrame() *Frame {
	if len(f.Frames) == 0 {
		return nil
	}
	return &f.Frames[len(f.Frames)-1]
}

// Depth is the number of live frames, used as the unwind machine's
// TargetDepth bookkeeping.
func (f *Fiber) Depth() int {
	return len(f.Frames)
}

// Reg reads register reg of the current frame.
func (f *Fiber) Reg(reg uint16) slot.Slot {
	fr := f.CurrentFrame()
	return f.Stack[fr.BP+int(reg)]
}

// SetReg writes register reg of the current frame.
func (f *Fiber) SetReg(reg uint16, v slot.Slot) {
	fr := f.CurrentFrame()
	f.Stack[fr.BP+int(reg)] = v
}

// RegN returns a mutable window over n consecutive registers starting at
// reg in the current frame, used for multi-slot values and multi-value
// returns/calls.
func (f *Fiber) RegN(reg uint16, n int) []slot.Slot {
	fr := f.CurrentFrame()
	start := fr.BP + int(reg)
	return f.Stack[start : start+n]
}

// RegAt and SetRegAt address a register in an arbitrary (not necessarily
// current) frame, needed when a defer or the unwinder writes a return
// value into a caller frame that is no longer on top.
func (f *Fiber) RegAt(fr *Frame, reg uint16) slot.Slot {
	return f.Stack[fr.BP+int(reg)]
}

func (f *Fiber) SetRegAt(fr *Frame, reg uint16, v slot.Slot) {
	f.Stack[fr.BP+int(reg)] = v
}

// ScanRoots implements gc.RootSource for a single fiber: every live
// frame's local slots that its SlotTypes vector marks as references,
// every pending defer's captured closure and typed args, and every
// active iterator's underlying container ref.
func (f *Fiber) ScanRoots(mark func(slot.Ref)) {
	for _, fr := range f.Frames {
		end := fr.BP + len(fr.SlotTypes)
		if end > len(f.Stack) {
			end = len(f.Stack)
		}
		scanSlots(f.Stack[fr.BP:end], fr.SlotTypes, mark)
	}
	for i := range f.Defers {
		d := &f.Defers[i]
		if !d.Closure.IsNil() {
			mark(d.Closure)
		}
		scanSlots(d.Args[:d.ArgCount], d.ArgTypes[:d.ArgCount], mark)
	}
	for i := range f.Iters {
		f.Iters[i].scanRoots(mark)
	}
	if f.Unwind != nil {
		if f.Unwind.Panic != nil {
			scanSlots([]slot.Slot{f.Unwind.Panic.Iface0, f.Unwind.Panic.Iface1}, []slot.SlotType{slot.TypeInterface0, slot.TypeInterface1}, mark)
		}
		scanSlots(f.Unwind.RetVals, f.Unwind.RetTypes, mark)
	}
}

// scanSlots marks every reference held in vals per the parallel types
// vector, mirroring internal/gc/scan.go's scanStructSlots — duplicated
// rather than shared because gc's version is unexported and looks its
// SlotType vector up by struct meta ID instead of taking one as an
// argument, and the logic is a handful of lines.
func scanSlots(vals []slot.Slot, types []slot.SlotType, mark func(slot.Ref)) {
	n := len(types)
	if len(vals) < n {
		n = len(vals)
	}
	for i := 0; i < n; i++ {
		switch types[i] {
		case slot.TypeGcRef:
			mark(vals[i].AsRef())
		case slot.TypeInterface1:
			if i > 0 && types[i-1] == slot.TypeInterface0 {
				_, vm := slot.UnpackIface(vals[i-1])
				if slot.NeedsGC(vm.Kind()) {
					mark(vals[i].AsRef())
				}
			}
		}
	}
}
