package gc

// Stats accumulates collector counters across the process lifetime,
// queryable by the debug server and cmd/vo's -stats flag — the
// supplemented feature named in SPEC_FULL.md §4.1, grounded in the
// teacher's RegistryGCStats (vm/registry_gc.go) even though the fields
// themselves differ (that struct counts swept registry entries; this one
// counts heap allocations and mark-sweep cycles).
type Stats struct {
	Allocs          uint64
	CyclesStarted   uint64
	CyclesCompleted uint64
	ObjectsSwept    uint64
}

// Stats returns a snapshot of the collector's running counters.
func (g *GC) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}
