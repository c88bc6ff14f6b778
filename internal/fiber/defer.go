package fiber

import "github.com/chazu/vo/internal/slot"

// MaxDeferArgs bounds how many argument slots a single defer call can
// capture inline, per spec.md §4.5's defer entry layout.
const MaxDeferArgs = 8

// DeferEntry is one pending deferred call, captured at the OpDeferPush
// site with its arguments already evaluated (Go's defer-evaluates-args-
// immediately rule). Grounded on vo-vm/src/fiber.rs's DeferEntry, with
// ArgTypes added beyond the original's bare [u64;8]: inline args with no
// per-slot scan vector would be an unscanned root, a GC hazard the
// original's single-threaded reference semantics didn't need to avoid
// but this tri-color collector does (a GC cycle can run between any two
// instructions, including while a defer sits queued).
type DeferEntry struct {
	// FrameDepth is len(fiber.Frames) at the moment this defer was
	// pushed — it runs when that frame is the one being popped.
	FrameDepth int

	// FuncID is used when Closure is nil (deferring a call to a plain
	// top-level function with no captured upvalues).
	FuncID uint32
	// Closure, if non-nil, is the closure value to invoke instead of FuncID.
	Closure slot.Ref

	ArgCount int
	Args     [MaxDeferArgs]slot.Slot
	ArgTypes [MaxDeferArgs]slot.SlotType

	// IsErrdefer marks a defer that only runs when its frame is
	// returning via an error-typed return value or an in-flight panic,
	// adapted from vo-vm/src/fiber.rs's DeferEntry.is_errdefer.
	IsErrdefer bool
}

// PushDefer queues d, which runs LIFO relative to every other defer
// pushed at the same FrameDepth.
func (f *Fiber) PushDefer(d DeferEntry) {
	f.Defers = append(f.Defers, d)
}

// PopDeferAt pops the most recently pushed defer if it belongs to
// frameDepth, reporting ok=false if the queue is empty or its top
// belongs to a shallower frame (nothing left to run for frameDepth).
func (f *Fiber) PopDeferAt(frameDepth int) (DeferEntry, bool) {
	if len(f.Defers) == 0 {
		return DeferEntry{}, false
	}
	top := f.Defers[len(f.Defers)-1]
	if top.FrameDepth != frameDepth {
		return DeferEntry{}, false
	}
	f.Defers = f.Defers[:len(f.Defers)-1]
	return top, true
}

// HasDeferAt reports whether any pending defer still belongs to
// frameDepth, used to decide whether a Return/Panic must start or
// continue unwinding rather than completing immediately.
func (f *Fiber) HasDeferAt(frameDepth int) bool {
	for i := len(f.Defers) - 1; i >= 0; i-- {
		if f.Defers[i].FrameDepth == frameDepth {
			return true
		}
		if f.Defers[i].FrameDepth < frameDepth {
			return false
		}
	}
	return false
}
