package natives

import (
	"time"

	"github.com/chazu/vo/internal/abi"
)

// registerTimeNatives gives Vo programs a monotonic-adjacent wall clock
// and a sleep primitive. Sleep runs for its full duration with the GC
// already paused/resumed around the whole extern call (internal/abi's
// Registry.Call does this for every native, not just this one) exactly
// per spec.md §5's rule for OS-blocking native code.
func registerTimeNatives(r *abi.Registry) {
	r.Register("time.nowUnixNano", func(ctx *abi.ExternCallContext) abi.ExternResult {
		ctx.SetRetI64(time.Now().UnixNano())
		return abi.Ok(1)
	})

	r.Register("time.sleepMillis", func(ctx *abi.ExternCallContext) abi.ExternResult {
		ms, err := ctx.ArgI64(0)
		if err != nil {
			return abi.FailErr("arg", err)
		}
		time.Sleep(time.Duration(ms) * time.Millisecond)
		return abi.Ok(0)
	})
}
