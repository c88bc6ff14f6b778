package natives

import (
	"strings"

	"github.com/chazu/vo/internal/abi"
)

// registerStringNatives mirrors vm/string_primitives.go's coverage (case
// conversion, trimming, splitting joins) at the much smaller surface this
// spec's untyped slot ABI can carry without a string-builder/collection
// bridge: single-string-in, single-string-out operations, plus the two
// substring/index queries every Vo stdlib "strings" package needs.
func registerStringNatives(r *abi.Registry) {
	r.Register("strings.toUpper", func(ctx *abi.ExternCallContext) abi.ExternResult {
		s, err := ctx.ArgStr(0)
		if err != nil {
			return abi.FailErr("arg", err)
		}
		ctx.SetRetStr(strings.ToUpper(s))
		return abi.Ok(1)
	})

	r.Register("strings.toLower", func(ctx *abi.ExternCallContext) abi.ExternResult {
		s, err := ctx.ArgStr(0)
		if err != nil {
			return abi.FailErr("arg", err)
		}
		ctx.SetRetStr(strings.ToLower(s))
		return abi.Ok(1)
	})

	r.Register("strings.trimSpace", func(ctx *abi.ExternCallContext) abi.ExternResult {
		s, err := ctx.ArgStr(0)
		if err != nil {
			return abi.FailErr("arg", err)
		}
		ctx.SetRetStr(strings.TrimSpace(s))
		return abi.Ok(1)
	})

	r.Register("strings.contains", func(ctx *abi.ExternCallContext) abi.ExternResult {
		s, err := ctx.ArgStr(0)
		if err != nil {
			return abi.FailErr("arg", err)
		}
		sub, err := ctx.ArgStr(1)
		if err != nil {
			return abi.FailErr("arg", err)
		}
		ctx.SetRetBool(strings.Contains(s, sub))
		return abi.Ok(1)
	})

	r.Register("strings.indexByte", func(ctx *abi.ExternCallContext) abi.ExternResult {
		s, err := ctx.ArgStr(0)
		if err != nil {
			return abi.FailErr("arg", err)
		}
		c, err := ctx.ArgI64(1)
		if err != nil {
			return abi.FailErr("arg", err)
		}
		ctx.SetRetI64(int64(strings.IndexByte(s, byte(c))))
		return abi.Ok(1)
	})
}
