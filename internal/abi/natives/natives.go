// Package natives is a small standard library of extern functions built
// on internal/abi, the "natives/" component SPEC_FULL.md §1.1 names to
// exercise the ABI end to end. Each registration mirrors the teacher's
// vm/*_primitives.go shape (a Register call per native, a Go closure
// reading typed arguments and writing typed returns) adapted from the
// teacher's Value-based accessors to abi.ExternCallContext's slot-based
// ones.
package natives

import "github.com/chazu/vo/internal/abi"

// RegisterAll registers every native in this package into r, the call
// cmd/vo makes once at startup before loading a module, matching the
// teacher's registerXPrimitives() calls all running from one VM
// constructor.
func RegisterAll(r *abi.Registry) {
	registerStringNatives(r)
	registerMathNatives(r)
	registerTimeNatives(r)
	registerOSNatives(r)
}
