package jit

import (
	"fmt"
	"strings"

	"github.com/chazu/vo/pkg/bytecode"
)

// generateFuncName follows the teacher's
// sanitizeName + funcName convention (vm/aot.go), simplified since a
// funcID is already a unique, filesystem-safe identifier.
func generateFuncName(funcID uint32) string {
	return fmt.Sprintf("vofunc%d", funcID)
}

// Compile transpiles fn (function funcID of mod) into a standalone Go
// source file implementing the CompiledFunc signature under symbol "Run",
// grounded on the teacher's AOTCompiler.CompileMethod (vm/aot.go): a
// label-per-jump-target, straight-line translation of each bytecode
// instruction into the equivalent Go statement, falling back to
// ctx.CallFunc for anything the transpiler itself doesn't inline.
//
// Compile assumes Eligible(mod, fn) has already been checked; it panics
// (a programmer error, not a Vo runtime one) if it encounters an opcode
// Eligible would have rejected, so a change to one without the other is
// caught immediately rather than silently generating wrong code.
func Compile(mod *bytecode.Module, funcID uint32, fn *bytecode.Function) string {
	c := &compiler{mod: mod, funcID: funcID, fn: fn}
	return c.compile()
}

type compiler struct {
	mod    *bytecode.Module
	funcID uint32
	fn     *bytecode.Function
	sb     strings.Builder
}

func (c *compiler) writeLine(format string, args ...interface{}) {
	c.sb.WriteString(fmt.Sprintf(format, args...))
	c.sb.WriteByte('\n')
}

// reg renders locals[i] for register i, all of this transpiler's
// eligible opcodes being single-slot per spec.md §3.7 (scalars only).
func reg(i uint16) string { return fmt.Sprintf("locals[%d]", i) }

func (c *compiler) jumpTargets() map[int]bool {
	targets := make(map[int]bool)
	for pc, ins := range c.fn.Code {
		switch ins.Op {
		case bytecode.OpJump, bytecode.OpJumpIf, bytecode.OpJumpIfNot:
			targets[pc+1+int(int16(ins.B))] = true
		}
	}
	return targets
}

func (c *compiler) compile() string {
	c.writeLine("// Code generated by internal/jit. DO NOT EDIT.")
	c.writeLine("// Compiled function id %d (%s)", c.funcID, c.fn.Name)
	c.writeLine("package main")
	c.writeLine("")
	c.writeLine("import (")
	c.writeLine("\t\"math\"")
	c.writeLine("")
	c.writeLine("\t\"github.com/chazu/vo/internal/jit\"")
	c.writeLine(")")
	c.writeLine("")
	c.writeLine("var _ = math.Float64frombits")
	c.writeLine("")
	c.writeLine("func boolWord(b bool) uint64 {")
	c.writeLine("\tif b {")
	c.writeLine("\t\treturn 1")
	c.writeLine("\t}")
	c.writeLine("\treturn 0")
	c.writeLine("}")
	c.writeLine("")
	c.writeLine("// Run implements jit.CompiledFunc for %s.", c.fn.Name)
	c.writeLine("func Run(ctx *jit.Context, locals []uint64, args []uint64, ret []uint64) jit.Result {")
	c.writeLine("\t_ = args")

	targets := c.jumpTargets()
	for pc, ins := range c.fn.Code {
		if targets[pc] {
			c.writeLine("L%d:", pc)
		}
		c.emit(pc, ins)
	}

	c.writeLine("\treturn jit.ResultOk")
	c.writeLine("}")
	return c.sb.String()
}

func (c *compiler) emit(pc int, ins bytecode.Instruction) {
	a, b, cc := ins.A, ins.B, ins.C
	switch ins.Op {
	case bytecode.OpNop:
	case bytecode.OpMove:
		c.writeLine("\t%s = %s", reg(a), reg(b))
	case bytecode.OpLoadNil:
		c.writeLine("\t%s = 0", reg(a))
	case bytecode.OpLoadConst:
		con := c.mod.Constants[b]
		switch con.Kind {
		case bytecode.ConstNil:
			c.writeLine("\t%s = 0", reg(a))
		case bytecode.ConstBool:
			c.writeLine("\t%s = %d", reg(a), constBoolWord(con.I != 0))
		case bytecode.ConstInt:
			c.writeLine("\t%s = uint64(int64(%d))", reg(a), con.I)
		case bytecode.ConstFloat:
			c.writeLine("\t%s = math.Float64bits(%g)", reg(a), con.F)
		default:
			panic("jit: Compile: ineligible OpLoadConst reached codegen")
		}

	case bytecode.OpGetGlobal:
		c.writeLine("\t%s = ctx.Globals[%d]", reg(a), b)
	case bytecode.OpSetGlobal:
		c.writeLine("\tctx.Globals[%d] = %s", b, reg(a))

	case bytecode.OpAddI64:
		c.writeLine("\t%s = uint64(int64(%s) + int64(%s))", reg(a), reg(b), reg(cc))
	case bytecode.OpSubI64:
		c.writeLine("\t%s = uint64(int64(%s) - int64(%s))", reg(a), reg(b), reg(cc))
	case bytecode.OpMulI64:
		c.writeLine("\t%s = uint64(int64(%s) * int64(%s))", reg(a), reg(b), reg(cc))
	case bytecode.OpDivI64:
		c.writeLine("\tif int64(%s) == 0 { return ctx.Fail(\"integer divide by zero\") }", reg(cc))
		c.writeLine("\t%s = uint64(int64(%s) / int64(%s))", reg(a), reg(b), reg(cc))
	case bytecode.OpModI64:
		c.writeLine("\tif int64(%s) == 0 { return ctx.Fail(\"integer divide by zero\") }", reg(cc))
		c.writeLine("\t%s = uint64(int64(%s) %% int64(%s))", reg(a), reg(b), reg(cc))
	case bytecode.OpNegI64:
		c.writeLine("\t%s = uint64(-int64(%s))", reg(a), reg(b))
	case bytecode.OpDivU64:
		c.writeLine("\tif %s == 0 { return ctx.Fail(\"integer divide by zero\") }", reg(cc))
		c.writeLine("\t%s = %s / %s", reg(a), reg(b), reg(cc))
	case bytecode.OpModU64:
		c.writeLine("\tif %s == 0 { return ctx.Fail(\"integer divide by zero\") }", reg(cc))
		c.writeLine("\t%s = %s %% %s", reg(a), reg(b), reg(cc))

	case bytecode.OpAddF64:
		c.writeLine("\t%s = math.Float64bits(math.Float64frombits(%s) + math.Float64frombits(%s))", reg(a), reg(b), reg(cc))
	case bytecode.OpSubF64:
		c.writeLine("\t%s = math.Float64bits(math.Float64frombits(%s) - math.Float64frombits(%s))", reg(a), reg(b), reg(cc))
	case bytecode.OpMulF64:
		c.writeLine("\t%s = math.Float64bits(math.Float64frombits(%s) * math.Float64frombits(%s))", reg(a), reg(b), reg(cc))
	case bytecode.OpDivF64:
		c.writeLine("\t%s = math.Float64bits(math.Float64frombits(%s) / math.Float64frombits(%s))", reg(a), reg(b), reg(cc))
	case bytecode.OpNegF64:
		c.writeLine("\t%s = math.Float64bits(-math.Float64frombits(%s))", reg(a), reg(b))

	case bytecode.OpAnd:
		c.writeLine("\t%s = %s & %s", reg(a), reg(b), reg(cc))
	case bytecode.OpOr:
		c.writeLine("\t%s = %s | %s", reg(a), reg(b), reg(cc))
	case bytecode.OpXor:
		c.writeLine("\t%s = %s ^ %s", reg(a), reg(b), reg(cc))
	case bytecode.OpNot:
		c.writeLine("\t%s = ^%s", reg(a), reg(b))
	case bytecode.OpShl:
		c.writeLine("\t%s = %s << uint(%s)", reg(a), reg(b), reg(cc))
	case bytecode.OpShrS:
		c.writeLine("\t%s = uint64(int64(%s) >> uint(%s))", reg(a), reg(b), reg(cc))
	case bytecode.OpShrU:
		c.writeLine("\t%s = %s >> uint(%s)", reg(a), reg(b), reg(cc))

	case bytecode.OpEqI64:
		c.writeLine("\t%s = boolWord(int64(%s) == int64(%s))", reg(a), reg(b), reg(cc))
	case bytecode.OpLtI64:
		c.writeLine("\t%s = boolWord(int64(%s) < int64(%s))", reg(a), reg(b), reg(cc))
	case bytecode.OpLeI64:
		c.writeLine("\t%s = boolWord(int64(%s) <= int64(%s))", reg(a), reg(b), reg(cc))
	case bytecode.OpEqF64:
		c.writeLine("\t%s = boolWord(math.Float64frombits(%s) == math.Float64frombits(%s))", reg(a), reg(b), reg(cc))
	case bytecode.OpLtF64:
		c.writeLine("\t%s = boolWord(math.Float64frombits(%s) < math.Float64frombits(%s))", reg(a), reg(b), reg(cc))
	case bytecode.OpLeF64:
		c.writeLine("\t%s = boolWord(math.Float64frombits(%s) <= math.Float64frombits(%s))", reg(a), reg(b), reg(cc))
	case bytecode.OpEqRef:
		c.writeLine("\t%s = boolWord(%s == %s)", reg(a), reg(b), reg(cc))

	case bytecode.OpJump:
		c.writeLine("\tgoto L%d", pc+1+int(int16(b)))
	case bytecode.OpJumpIf:
		c.writeLine("\tif %s != 0 { goto L%d }", reg(a), pc+1+int(int16(b)))
	case bytecode.OpJumpIfNot:
		c.writeLine("\tif %s == 0 { goto L%d }", reg(a), pc+1+int(int16(b)))

	case bytecode.OpCall:
		argCount := int(cc)
		c.writeLine("\t{")
		c.writeLine("\t\tcallArgs := make([]uint64, %d)", argCount)
		if argCount > 0 {
			c.writeLine("\t\tcopy(callArgs, locals[%d:%d])", b, int(b)+argCount)
		}
		c.writeLine("\t\tcallRet, err := ctx.CallFunc(%d, callArgs)", a)
		c.writeLine("\t\tif err != nil { return ctx.Fail(err.Error()) }")
		c.writeLine("\t\tif ctx.Panic { return jit.ResultPanic }")
		retCount := int(ins.Flags)
		if retCount > 0 {
			c.writeLine("\t\tn := %d", retCount)
			c.writeLine("\t\tif n > len(callRet) { n = len(callRet) }")
			c.writeLine("\t\tcopy(locals[%d:%d], callRet[:n])", b, int(b)+retCount)
		}
		c.writeLine("\t}")

	case bytecode.OpReturn:
		n := int(cc)
		if n > 0 {
			c.writeLine("\tcopy(ret, locals[%d:%d])", a, int(a)+n)
		}
		c.writeLine("\treturn jit.ResultOk")

	case bytecode.OpHalt:
		c.writeLine("\treturn jit.ResultOk")

	default:
		panic(fmt.Sprintf("jit: Compile: ineligible opcode %s reached codegen", ins.Op))
	}
}

func constBoolWord(b bool) int {
	if b {
		return 1
	}
	return 0
}
