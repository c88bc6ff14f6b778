package fiber

import "github.com/chazu/vo/internal/slot"

// IterKind distinguishes the shapes of range-for loops spec.md's
// container model needs to support.
type IterKind uint8

const (
	IterSlice IterKind = iota
	IterArray
	IterMap
	IterString
	IterIntRange
)

// IterEntry is one active range-for loop's cursor, pushed by OpIterNew
// and advanced by OpIterNext. Grounded on vo-vm/src/fiber.rs's iterator
// stack, generalized from its container-only form to also cover the
// bounds-only int-range loop (`for i := range n`), which holds no heap
// ref at all.
type IterEntry struct {
	Kind IterKind

	// Ref is the container being iterated; zero/nil for IterIntRange.
	Ref slot.Ref

	// Idx is the current cursor: element index for slice/array/string,
	// insertion-order index for map, or the current integer for IterIntRange.
	Idx int
	// End is the exclusive upper bound: len(container) for containers,
	// or the range's bound for IterIntRange.
	End int
	// Step is IterIntRange's increment (usually 1); unused otherwise.
	Step int

	// ElemMeta describes the element shape for slice/array iteration, so
	// OpIterNext knows how many slots to read per step.
	ElemMeta slot.ValueMeta
}

// Done reports whether the iterator has no more elements.
func (it *IterEntry) Done() bool {
	if it.Kind == IterIntRange && it.Step < 0 {
		return it.Idx <= it.End
	}
	return it.Idx >= it.End
}

// Advance moves the cursor one step.
func (it *IterEntry) Advance() {
	if it.Kind == IterIntRange {
		it.Idx += it.Step
		return
	}
	it.Idx++
}

func (it *IterEntry) scanRoots(mark func(slot.Ref)) {
	if it.Kind != IterIntRange && !it.Ref.IsNil() {
		mark(it.Ref)
	}
}

// PushIter pushes a new active iterator, returning its stack index for
// OpIterNext to address.
func (f *Fiber) PushIter(it IterEntry) int {
	f.Iters = append(f.Iters, it)
	return len(f.Iters) - 1
}

// PopIter removes the topmost iterator, called when a range-for loop
// exits (normally or via break).
func (f *Fiber) PopIter() {
	if len(f.Iters) == 0 {
		return
	}
	f.Iters = f.Iters[:len(f.Iters)-1]
}

// CurrentIter returns the topmost active iterator.
func (f *Fiber) CurrentIter() *IterEntry {
	if len(f.Iters) == 0 {
		return nil
	}
	return &f.Iters[len(f.Iters)-1]
}
