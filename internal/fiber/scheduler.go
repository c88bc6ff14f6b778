package fiber

import (
	"log"
	"time"

	deadlock "github.com/sasha-s/go-deadlock"

	"github.com/chazu/vo/internal/slot"
)

// Scheduler runs every fiber in the program cooperatively on a single
// logical thread of control, per spec.md §5: ready fibers wait in a FIFO
// queue, and the only suspension points are a blocking channel
// send/receive, Yield, and a select with no ready case. Adapted from the
// teacher's vm/concurrency.go, which instead spawns a real goroutine per
// process — here the registry bookkeeping survives but the concurrency
// itself is baton-passed single-threaded execution, since spec.md never
// calls for OS-level parallelism.
type Scheduler struct {
	mu     deadlock.Mutex
	fibers map[string]*Fiber
	ready  []string
	main   string

	chans map[slot.Ref]*waitQueue

	sweepInterval time.Duration
	log           *log.Logger
}

// waitQueue holds the fiber IDs parked on one channel, split by
// direction: an unbuffered channel needs a waiting sender and a waiting
// receiver present at the same time to complete a rendezvous.
type waitQueue struct {
	senders   []string
	receivers []string
}

// NewScheduler returns an empty scheduler with the spec's default
// registry-sweep cadence.
func NewScheduler() *Scheduler {
	return &Scheduler{
		fibers:        make(map[string]*Fiber),
		chans:         make(map[slot.Ref]*waitQueue),
		sweepInterval: 30 * time.Second,
		log:           log.New(log.Writer(), "fiber: ", log.LstdFlags),
	}
}

// SetLogger overrides the default logger, e.g. to route through
// internal/diag's channel instead of the standard one.
func (s *Scheduler) SetLogger(l *log.Logger) { s.log = l }

// SetSweepInterval overrides the default registry-sweep cadence.
func (s *Scheduler) SetSweepInterval(d time.Duration) { s.sweepInterval = d }

// Spawn creates a new suspended fiber and enqueues it as ready. The
// first fiber spawned by a program should pass isMain=true so SweepDead
// never reclaims it even once it dies (the scheduler's own shutdown
// check looks at the main fiber's status directly).
func (s *Scheduler) Spawn(isMain bool) *Fiber {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := NewID()
	f := New(id)
	f.IsMain = isMain
	s.fibers[id] = f
	if isMain {
		s.main = id
	}
	s.ready = append(s.ready, id)
	return f
}

// Enqueue marks a suspended fiber ready again — called once a channel
// it was parked on becomes sendable/receivable, or after Yield.
func (s *Scheduler) Enqueue(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = append(s.ready, id)
}

// Next pops the next ready fiber ID. ok is false once the ready queue is
// empty — every remaining fiber is then either dead or parked on a
// channel that will never become ready, a deadlock the caller (interp's
// run loop) should report rather than silently exit on.
func (s *Scheduler) Next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ready) == 0 {
		return "", false
	}
	id := s.ready[0]
	s.ready = s.ready[1:]
	return id, true
}

// Fiber looks a fiber up by ID.
func (s *Scheduler) Fiber(id string) *Fiber {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fibers[id]
}

// MainID returns the main fiber's ID.
func (s *Scheduler) MainID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.main
}

// Live reports whether any fiber is not yet Dead.
func (s *Scheduler) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.fibers {
		if f.Status != StatusDead {
			return true
		}
	}
	return false
}

// ScanRoots implements gc.RootSource by scanning every non-dead fiber's
// stack. Safe to call between fiber switches only — the cooperative
// scheduler never preempts mid-instruction, so every fiber's root set is
// consistent at every point this can run (spec.md §5's safepoint rule).
func (s *Scheduler) ScanRoots(mark func(slot.Ref)) {
	s.mu.Lock()
	fibers := make([]*Fiber, 0, len(s.fibers))
	for _, f := range s.fibers {
		fibers = append(fibers, f)
	}
	s.mu.Unlock()

	for _, f := range fibers {
		if f.Status != StatusDead {
			f.ScanRoots(mark)
		}
	}
}

// FiberSnapshot is a point-in-time, lock-free view of one fiber's
// scheduling state, safe to hold onto and serialize after Snapshot
// returns (unlike *Fiber itself, whose Stack/Frames keep mutating).
type FiberSnapshot struct {
	ID     string
	Status Status
	IsMain bool
	Depth  int
}

// Snapshot returns a stable view of every registered fiber, for
// internal/debugserver's live-inspection endpoint — the one reader of
// scheduler state that isn't the interpreter's own run loop and so must
// not touch a *Fiber's mutable fields directly while that loop is
// running concurrently on another goroutine.
func (s *Scheduler) Snapshot() []FiberSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FiberSnapshot, 0, len(s.fibers))
	for id, f := range s.fibers {
		out = append(out, FiberSnapshot{ID: id, Status: f.Status, IsMain: f.IsMain, Depth: f.Depth()})
	}
	return out
}

// SweepDead discards every Dead, non-main fiber's record, the periodic
// bookkeeping pass grounded in the teacher's RegistryGC (vm/registry_gc.go's
// ticker-driven loop/sweep shape), adapted here from "sweep closed
// channel/process registries" to "sweep terminated fiber records" — a
// channel itself needs no such sweep since it is just a heap object the
// real GC reclaims once unreachable.
func (s *Scheduler) SweepDead() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	swept := 0
	for id, f := range s.fibers {
		if f.Status == StatusDead && id != s.main {
			delete(s.fibers, id)
			swept++
		}
	}
	if swept > 0 && s.log != nil {
		s.log.Printf("swept %d dead fiber record(s)", swept)
	}
	return swept
}

// RunPeriodicSweep blocks, calling SweepDead every sweepInterval, until
// stop is closed. Intended to run in its own goroutine alongside (not
// instead of) the single-threaded fiber execution loop — it only ever
// touches the registry map under s.mu, never a fiber's own stack.
func (s *Scheduler) RunPeriodicSweep(stop <-chan struct{}) {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.SweepDead()
		}
	}
}
