// Package gc implements the tri-color incremental mark-sweep collector
// over internal/objmodel's heap: allocation coloring, the Pause/Propagate/
// Atomic/Sweep state machine driven by mutator safepoints, the SATB-style
// write barrier, and pause/stepmul tuning. It knows the shapes of heap
// objects (via objmodel's accessors) but nothing about bytecode, fibers,
// or the interpreter loop — those call in through RootSource and the
// Alloc*/WriteBarrier entry points.
package gc

import (
	"log"
	"sync"

	"github.com/chazu/vo/internal/objmodel"
	"github.com/chazu/vo/internal/slot"
)

// State is one phase of the Pause -> Propagate -> Atomic -> Sweep -> Pause
// cycle, per spec.md §4.3.
type State int

const (
	StatePause State = iota
	StatePropagate
	StateAtomic
	StateSweep
)

func (s State) String() string {
	switch s {
	case StatePause:
		return "pause"
	case StatePropagate:
		return "propagate"
	case StateAtomic:
		return "atomic"
	case StateSweep:
		return "sweep"
	default:
		return "State(?)"
	}
}

// RootSource is implemented by whatever owns the mutator's root set —
// internal/fiber, scanning every live fiber's value stack, defer stack,
// and iterator stack, plus the interpreter's global table. gc never
// imports fiber; this interface is the seam.
type RootSource interface {
	// ScanRoots calls mark once for every currently-live GcRef-typed root
	// slot. It must be safe to call at any safepoint (no fiber may be
	// mid-mutation of its own root set when this runs, which the
	// cooperative scheduler guarantees by only calling step() between
	// instructions).
	ScanRoots(mark func(slot.Ref))
}

// GC drives one heap's collection cycle. It does not allocate memory
// itself — internal/objmodel's Heap does — but it decides what color new
// allocations get and owns the state machine that eventually frees them.
type GC struct {
	mu sync.Mutex

	heap  *objmodel.Heap
	roots RootSource

	state        State
	currentWhite objmodel.Color // the white color live objects are colored between cycles
	gray         []slot.Ref     // work queue: objects marked gray, awaiting scan

	sweepQueue []sweepEntry // snapshot taken at Atomic->Sweep transition
	sweepIdx   int

	pauseCount int // >0 suppresses step()/Collect() per spec.md §4.3

	tuning Tuning
	stats  Stats

	log *log.Logger
}

type sweepEntry struct {
	ref slot.Ref
	hdr objmodel.Header
}

// New creates a GC over heap, driving roots via rs. Call SetLogger to
// attach the CLI's verbosity-controlled logger; otherwise a default
// "gc: " prefixed logger matching the teacher's JIT log style is used.
func New(heap *objmodel.Heap, rs RootSource, tuning Tuning) *GC {
	return &GC{
		heap:         heap,
		roots:        rs,
		currentWhite: objmodel.ColorWhite0,
		tuning:       tuning,
		log:          log.New(log.Writer(), "gc: ", log.LstdFlags),
	}
}

// SetLogger overrides the default logger, matching cmd/vo's -v flag
// swapping in a log.Lshortfile logger across components.
func (g *GC) SetLogger(l *log.Logger) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.log = l
}

// State reports the current cycle phase.
func (g *GC) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// otherWhite is the next cycle's white: sweep recolors survivors to it
// and makes it the current white once the cycle completes, so the two
// whites flip every cycle.
func (g *GC) otherWhite() objmodel.Color {
	if g.currentWhite == objmodel.ColorWhite0 {
		return objmodel.ColorWhite1
	}
	return objmodel.ColorWhite0
}

// Pause increments the pause count, suppressing step()/Collect() for the
// duration of opaque foreign work (extern calls, per spec.md §4.3). Must
// be paired with Resume.
func (g *GC) Pause() {
	g.mu.Lock()
	g.pauseCount++
	g.mu.Unlock()
}

// Resume decrements the pause count.
func (g *GC) Resume() {
	g.mu.Lock()
	if g.pauseCount > 0 {
		g.pauseCount--
	}
	g.mu.Unlock()
}

// Step processes up to the configured stepmul's worth of gray objects (or
// sweep entries), advancing the state machine as queues drain. The
// mutator calls this at safepoints: every N allocations or at function-call
// boundaries, per spec.md §4.3. A no-op while paused.
func (g *GC) Step() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pauseCount > 0 {
		return
	}
	g.step(g.tuning.StepMul)
}

// step does the work of Step without the pause check, so Collect (which
// must run even while logically "between" safepoints) can drive it
// directly. Callers must hold g.mu.
func (g *GC) step(budget int) {
	switch g.state {
	case StatePause:
		g.beginCycle()
	case StatePropagate:
		g.propagate(budget)
	case StateAtomic:
		g.atomic()
	case StateSweep:
		g.sweep(budget)
	}
}

// beginCycle snapshots roots into the gray queue and moves to Propagate.
// Allocation during Propagate/Atomic colors new objects black (see
// allocColor), so nothing allocated after this point needs marking this
// cycle — the strong tri-color invariant holds from the moment the cycle
// starts.
func (g *GC) beginCycle() {
	g.gray = g.gray[:0]
	if g.roots != nil {
		g.roots.ScanRoots(func(r slot.Ref) { g.markGray(r) })
	}
	g.state = StatePropagate
	g.stats.CyclesStarted++
}

// propagate scans up to budget gray objects, blackening each and
// enqueuing any white children it finds. When the queue drains it moves
// to Atomic.
func (g *GC) propagate(budget int) {
	n := 0
	for n < budget && len(g.gray) > 0 {
		last := len(g.gray) - 1
		ref := g.gray[last]
		g.gray = g.gray[:last]

		scanObject(g.heap, ref, func(child slot.Ref) { g.markGray(child) })
		g.heap.SetColor(ref, objmodel.ColorBlack)
		n++
	}
	if len(g.gray) == 0 {
		g.state = StateAtomic
	}
}

// atomic performs a final root rescan (cheap and non-preemptible here
// since the cooperative scheduler never mutates roots concurrently with a
// step() call) and then snapshots the heap for sweep.
func (g *GC) atomic() {
	if g.roots != nil {
		g.roots.ScanRoots(func(r slot.Ref) { g.markGray(r) })
	}
	for len(g.gray) > 0 {
		last := len(g.gray) - 1
		ref := g.gray[last]
		g.gray = g.gray[:last]
		scanObject(g.heap, ref, func(child slot.Ref) { g.markGray(child) })
		g.heap.SetColor(ref, objmodel.ColorBlack)
	}

	g.sweepQueue = g.sweepQueue[:0]
	g.heap.ForEach(func(ref slot.Ref, hdr objmodel.Header) {
		g.sweepQueue = append(g.sweepQueue, sweepEntry{ref: ref, hdr: hdr})
	})
	g.sweepIdx = 0
	g.state = StateSweep
}

// sweep frees up to budget white objects from the snapshot and recolors
// survivors to the next cycle's white. When the snapshot is exhausted the
// white colors flip and the cycle completes.
func (g *GC) sweep(budget int) {
	other := g.otherWhite()
	n := 0
	for n < budget && g.sweepIdx < len(g.sweepQueue) {
		e := g.sweepQueue[g.sweepIdx]
		g.sweepIdx++
		n++

		hdr := g.heap.Header(e.ref)
		switch hdr.Color {
		case g.currentWhite:
			g.heap.Free(e.ref)
			g.stats.ObjectsSwept++
		case objmodel.ColorBlack, objmodel.ColorGray:
			g.heap.SetColor(e.ref, other)
		}
	}
	if g.sweepIdx >= len(g.sweepQueue) {
		g.currentWhite = other
		g.sweepQueue = nil
		g.state = StatePause
		g.stats.CyclesCompleted++
		g.log.Printf("cycle complete: swept=%d live_bytes=%d", g.stats.ObjectsSwept, g.heap.BytesLive())
	}
}

// markGray colors ref gray and enqueues it for scanning, unless it is
// nil, already gray/black (already on the queue or already scanned this
// cycle), in which case it is a no-op.
func (g *GC) markGray(ref slot.Ref) {
	if ref.IsNil() {
		return
	}
	hdr := g.heap.Header(ref)
	if hdr.Color == objmodel.ColorGray || hdr.Color == objmodel.ColorBlack {
		return
	}
	g.heap.SetColor(ref, objmodel.ColorGray)
	g.gray = append(g.gray, ref)
}

// Collect runs a full cycle to completion synchronously, ignoring
// stepmul: it finishes whatever phase is in progress, then drives exactly
// one more Pause->...->Pause lap. Used by the CLI's explicit -gc flag and
// tests; never called automatically by the mutator, which always goes
// through Step.
func (g *GC) Collect() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pauseCount > 0 {
		return
	}
	for g.state != StatePause {
		g.step(1 << 30)
	}
	for g.state == StatePause {
		g.step(1 << 30)
	}
	for g.state != StatePause {
		g.step(1 << 30)
	}
}
