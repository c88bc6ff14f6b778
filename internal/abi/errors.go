package abi

import (
	"github.com/chazu/vo/internal/gc"
	"github.com/chazu/vo/internal/slot"
	"github.com/chazu/vo/internal/unwind"
	"github.com/chazu/vo/pkg/bytecode"
)

// BoxError is the "single error-helper routine" spec.md §4.8 requires:
// the one place that turns a native-side failure into a Vo `error`
// interface value. It reads the module's declared error type
// (bytecode.Module.ErrorStructID/ErrorIfaceID, see module.go's doc
// comment) and, if one is declared, allocates an instance of it on g's
// heap with field 0 holding the message string — the convention this
// repo adopts for "the struct backing the builtin error interface always
// exposes its message as its first field" (spec.md leaves the concrete
// struct layout to each module; a caller relying on richer error structs
// built on top of this can still allocate its own instance and skip
// BoxError).
//
// If the module declares no error type, BoxError returns the nil
// interface pair plus a non-nil *unwind.PanicValue carrying the same
// message, so a caller can still report a fatal runtime error (spec.md
// §7 kind 3) without a Vo-visible error value to point at.
func BoxError(g *gc.GC, mod *bytecode.Module, kind, message string) (iface0, iface1 slot.Slot, fallback *unwind.PanicValue) {
	if mod.ErrorStructID == 0 || mod.ErrorIfaceID == 0 {
		nilIface0 := slot.PackIface(0, slot.PackValueMeta(0, slot.KindNil))
		return nilIface0, 0, &unwind.PanicValue{Msg: message}
	}

	structRef, err := g.NewStruct(mod.ErrorStructID)
	if err != nil {
		nilIface0 := slot.PackIface(0, slot.PackValueMeta(0, slot.KindNil))
		return nilIface0, 0, &unwind.PanicValue{Msg: message}
	}
	msgRef := g.NewString([]byte(message))
	if err := g.Heap().SetFieldSlot(structRef, 0, msgRef.Slot()); err == nil {
		g.WriteBarrier(structRef, msgRef)
	}

	iface0 = slot.PackIface(mod.ErrorIfaceID, slot.PackValueMeta(mod.ErrorStructID, slot.KindStruct))
	iface1 = structRef.Slot()
	return iface0, iface1, nil
}

// BoxExternError is BoxError specialized for an *ExternError, the shape
// natives/ returns on failure.
func BoxExternError(g *gc.GC, mod *bytecode.Module, e *ExternError) (iface0, iface1 slot.Slot, fallback *unwind.PanicValue) {
	return BoxError(g, mod, e.Kind, e.Message)
}
