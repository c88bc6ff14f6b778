package interp

import (
	"math"

	"github.com/chazu/vo/internal/slot"
)

// The register file holds every scalar as a raw 64-bit pattern; float
// arithmetic opcodes reinterpret it via math.Float64{bits,frombits}, the
// same local-helper pattern internal/abi's ExternCallContext and
// pkg/bytecode's serialize.go already use for the same reason: keeping
// internal/slot itself agnostic to "this word is really a float".

func asF64(s slot.Slot) float64 { return math.Float64frombits(uint64(s)) }
func f64Slot(f float64) slot.Slot { return slot.Slot(math.Float64bits(f)) }

func asI64(s slot.Slot) int64 { return int64(s) }
func i64Slot(v int64) slot.Slot { return slot.Slot(uint64(v)) }

func asU64(s slot.Slot) uint64 { return uint64(s) }
func u64Slot(v uint64) slot.Slot { return slot.Slot(v) }

func asBool(s slot.Slot) bool { return s != 0 }
func boolSlot(b bool) slot.Slot {
	if b {
		return 1
	}
	return 0
}
