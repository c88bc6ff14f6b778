package natives

import (
	"math"

	"github.com/chazu/vo/internal/abi"
)

// registerMathNatives follows vm/float_primitives.go's one-native-per-op
// shape for the handful of transcendental functions Vo arithmetic cannot
// express as a bytecode op.
func registerMathNatives(r *abi.Registry) {
	unary := map[string]func(float64) float64{
		"math.sqrt": math.Sqrt,
		"math.sin":  math.Sin,
		"math.cos":  math.Cos,
		"math.floor": math.Floor,
		"math.ceil":  math.Ceil,
	}
	for name, fn := range unary {
		fn := fn
		r.Register(name, func(ctx *abi.ExternCallContext) abi.ExternResult {
			x, err := ctx.ArgF64(0)
			if err != nil {
				return abi.FailErr("arg", err)
			}
			ctx.SetRetF64(fn(x))
			return abi.Ok(1)
		})
	}

	r.Register("math.pow", func(ctx *abi.ExternCallContext) abi.ExternResult {
		x, err := ctx.ArgF64(0)
		if err != nil {
			return abi.FailErr("arg", err)
		}
		y, err := ctx.ArgF64(1)
		if err != nil {
			return abi.FailErr("arg", err)
		}
		ctx.SetRetF64(math.Pow(x, y))
		return abi.Ok(1)
	})
}
