package natives

import (
	"fmt"
	"os"

	"github.com/chazu/vo/internal/abi"
)

// registerOSNatives covers the read/write/exists trio vm/file_primitives.go
// exposes, adapted to return a structured abi.Fail on error instead of the
// teacher's sentinel Failure object — callers box that into a Vo error
// value via internal/abi's BoxError rather than a VM-specific result type.
func registerOSNatives(r *abi.Registry) {
	r.Register("os.readFile", func(ctx *abi.ExternCallContext) abi.ExternResult {
		path, err := ctx.ArgStr(0)
		if err != nil {
			return abi.FailErr("arg", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return abi.FailErr("io", err)
		}
		ctx.SetRetStr(string(data))
		return abi.Ok(1)
	})

	r.Register("os.writeFile", func(ctx *abi.ExternCallContext) abi.ExternResult {
		path, err := ctx.ArgStr(0)
		if err != nil {
			return abi.FailErr("arg", err)
		}
		contents, err := ctx.ArgStr(1)
		if err != nil {
			return abi.FailErr("arg", err)
		}
		if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
			return abi.FailErr("io", err)
		}
		return abi.Ok(0)
	})

	r.Register("os.exists", func(ctx *abi.ExternCallContext) abi.ExternResult {
		path, err := ctx.ArgStr(0)
		if err != nil {
			return abi.FailErr("arg", err)
		}
		_, statErr := os.Stat(path)
		ctx.SetRetBool(statErr == nil)
		return abi.Ok(1)
	})

	r.Register("os.print", func(ctx *abi.ExternCallContext) abi.ExternResult {
		s, err := ctx.ArgStr(0)
		if err != nil {
			return abi.FailErr("arg", err)
		}
		fmt.Println(s)
		return abi.Ok(0)
	})
}
