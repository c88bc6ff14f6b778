// vo runs a compiled `.vob` module: the register VM, the incremental
// collector, and (once a function goes hot) the synchronous JIT bridge.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/chazu/vo/internal/abi"
	"github.com/chazu/vo/internal/abi/natives"
	"github.com/chazu/vo/internal/config"
	"github.com/chazu/vo/internal/debugserver"
	"github.com/chazu/vo/internal/diag"
	"github.com/chazu/vo/internal/extload"
	"github.com/chazu/vo/internal/fiber"
	"github.com/chazu/vo/internal/gc"
	"github.com/chazu/vo/internal/interp"
	"github.com/chazu/vo/internal/jit"
	"github.com/chazu/vo/internal/objmodel"
	"github.com/chazu/vo/internal/slot"
	"github.com/chazu/vo/pkg/bytecode"
)

var (
	verbose     = flag.Bool("v", false, "verbose logging across the GC, scheduler and interpreter")
	forceGC     = flag.Bool("gc", false, "run a full collection after the program finishes")
	printStats  = flag.Bool("stats", false, "print GC statistics after the program finishes")
	strip       = flag.Bool("strip", false, "discard the module's embedded debug info before running")
	extDir      = flag.String("ext", "", "directory containing a vo.ext.toml native extension manifest")
	debugAddr   = flag.String("debug-addr", "", "address to serve live GC/fiber inspection on (e.g. :6070); empty disables it")
	jitFlag     = flag.String("jit", "auto", "JIT mode: auto (use vo.toml), on, or off")
	jitCalls    = flag.Int("jit-calls", 0, "override the JIT call-count threshold (0 keeps vo.toml's value)")
	jitBackedge = flag.Int("jit-backedges", 0, "override the JIT backedge-count threshold (0 keeps vo.toml's value)")
	jitDir      = flag.String("jit-dir", "", "directory for generated JIT plugins and the compilation cache (default: a temp dir)")
)

// compositeRoots fans a single gc.RootSource out to every owner of a
// mutator root: the fiber scheduler's per-fiber value/defer/iterator
// stacks, and the interpreter's global table. ip is filled in after
// interp.New returns, since interp.New itself needs the GC this root
// source feeds — the two are constructed in this order deliberately.
type compositeRoots struct {
	sched *fiber.Scheduler
	ip    *interp.Interp
}

func (r *compositeRoots) ScanRoots(mark func(slot.Ref)) {
	r.sched.ScanRoots(mark)
	if r.ip != nil {
		r.ip.ScanRoots(mark)
	}
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "vo - run a compiled .vob module\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n  vo [options] module.vob\n\nOptions:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(flag.Arg(0)); err != nil {
		diag.Stderr.Emit(diag.Diagnostic{Kind: diag.Panic, Msg: err.Error()})
		os.Exit(1)
	}
}

func run(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("vo: reading %s: %w", path, err)
	}
	mod, err := bytecode.Deserialize(data)
	if err != nil {
		return fmt.Errorf("vo: loading %s: %w", path, err)
	}
	if *strip {
		mod.Debug = nil
	}

	cfg, err := config.FindAndLoad(filepath.Dir(path))
	if err != nil {
		return fmt.Errorf("vo: loading vo.toml: %w", err)
	}

	sink := diag.MultiSink{diag.Stderr}

	heap := objmodel.NewHeap()
	heap.Types = mod

	sched := fiber.NewScheduler()
	roots := &compositeRoots{sched: sched}
	collector := gc.New(heap, roots, cfg.Tuning())

	registry := abi.NewRegistry()
	natives.RegisterAll(registry)
	if *extDir != "" {
		manifest, err := extload.Load(*extDir)
		if err != nil {
			return fmt.Errorf("vo: loading extension manifest: %w", err)
		}
		if err := extload.LoadAndRegister(manifest, registry); err != nil {
			return fmt.Errorf("vo: registering extension %q: %w", manifest.Extension.Name, err)
		}
	}

	ip, err := interp.New(mod, collector, sched, registry)
	if err != nil {
		return fmt.Errorf("vo: %w", err)
	}
	roots.ip = ip

	if *verbose {
		logger := log.New(os.Stderr, "", log.Lshortfile|log.Ltime)
		collector.SetLogger(logger)
		sched.SetLogger(logger)
		ip.SetLogger(logger)
	}

	jitEnabled := cfg.JIT.Enabled
	switch *jitFlag {
	case "on":
		jitEnabled = true
	case "off":
		jitEnabled = false
	}
	if jitEnabled {
		callThreshold := cfg.JIT.CallThreshold
		if *jitCalls > 0 {
			callThreshold = *jitCalls
		}
		backedgeThreshold := cfg.JIT.BackedgeThreshold
		if *jitBackedge > 0 {
			backedgeThreshold = *jitBackedge
		}
		dir := *jitDir
		if dir == "" {
			dir = filepath.Join(os.TempDir(), "vojit")
		}
		bridge, err := jit.New(dir, callThreshold, backedgeThreshold)
		if err != nil {
			return fmt.Errorf("vo: starting JIT bridge: %w", err)
		}
		bridge.LogCompilation = *verbose
		defer bridge.Close()
		ip.SetJIT(bridge)
	}

	debugAddrVal := *debugAddr
	if debugAddrVal == "" {
		debugAddrVal = cfg.Debug.Listen
	}
	if debugAddrVal != "" {
		srv := debugserver.New(ip)
		sink = append(sink, srv)
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			if err := srv.ListenAndServe(debugAddrVal, time.Second, stop); err != nil {
				sink.Emit(diag.Diagnostic{Kind: diag.IO, Msg: fmt.Sprintf("debug server on %s: %v", debugAddrVal, err)})
			}
		}()
	}

	if _, err := ip.StartMain(); err != nil {
		return fmt.Errorf("vo: %w", err)
	}
	if err := ip.Run(); err != nil {
		sink.Emit(diag.Diagnostic{Kind: diag.Panic, Msg: err.Error()})
		return fmt.Errorf("vo: program aborted")
	}

	if *forceGC {
		collector.Collect()
	}
	if *printStats {
		st := collector.Stats()
		fmt.Fprintf(os.Stdout, "gc: allocs=%d cycles_started=%d cycles_completed=%d objects_swept=%d\n",
			st.Allocs, st.CyclesStarted, st.CyclesCompleted, st.ObjectsSwept)
	}
	return nil
}
