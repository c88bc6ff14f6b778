package gc

// Tuning holds the two knobs spec.md §4.3 names: pause (percent heap
// growth tolerated before the next cycle is worth starting) and stepmul
// (gray objects processed per Step call). Only stepmul is used: it bounds
// each Step call directly. Pause is stored but no component reads it, so
// heap growth does not gate the start of a cycle; a Step taken in the
// Pause state always begins a new one.
type Tuning struct {
	Pause   int // percent; default 200
	StepMul int // default 200
}

// DefaultTuning matches spec.md §4.3's stated defaults and internal/config's
// [gc] table defaults.
func DefaultTuning() Tuning {
	return Tuning{Pause: 200, StepMul: 200}
}
