package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/vo/internal/slot"
	"github.com/chazu/vo/pkg/bytecode"
)

// buildHaltModule returns a module whose entry function returns
// immediately, giving run() the smallest program that still exercises
// the whole load -> heap -> scheduler -> interpreter -> GC path.
func buildHaltModule() *bytecode.Module {
	m := bytecode.NewModule()
	m.Functions = []bytecode.Function{
		{
			Name:       "main",
			LocalSlots: 0,
			RetSlots:   0,
			Code: bytecode.Code{
				{Op: bytecode.OpReturn, A: 0, C: 0},
			},
		},
	}
	m.EntryFunc = 0
	m.ErrorStructID = slot.FirstUserStruct
	m.ErrorIfaceID = slot.FirstIface
	return m
}

func writeModule(t *testing.T, dir string, m *bytecode.Module) string {
	t.Helper()
	data, err := m.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	path := filepath.Join(dir, "test.vob")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRunExecutesEntryFunctionAndReturns(t *testing.T) {
	dir := t.TempDir()
	path := writeModule(t, dir, buildHaltModule())

	prevJIT := *jitFlag
	*jitFlag = "off"
	defer func() { *jitFlag = prevJIT }()

	if err := run(path); err != nil {
		t.Fatalf("run() = %v, want nil", err)
	}
}

func TestRunRejectsMissingFile(t *testing.T) {
	if err := run(filepath.Join(t.TempDir(), "does-not-exist.vob")); err == nil {
		t.Fatal("expected an error for a missing module file")
	}
}

func TestRunRejectsCorruptModule(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.vob")
	if err := os.WriteFile(path, []byte("not a module"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := run(path); err == nil {
		t.Fatal("expected an error for a corrupt module")
	}
}
