package interp

import (
	"fmt"

	"github.com/chazu/vo/internal/fiber"
	"github.com/chazu/vo/pkg/bytecode"
)

// execArith handles every typed numeric opcode (0x20-0x4F): Int64,
// Float64, bitwise, and shift groups, all r[a] = op(r[b], r[c]) or
// r[a] = op(r[b]) shaped per pkg/bytecode/opcodes.go's comments.
func (ip *Interp) execArith(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	switch ins.Op {
	case bytecode.OpAddI64:
		f.SetReg(ins.A, i64Slot(asI64(f.Reg(ins.B))+asI64(f.Reg(ins.C))))
	case bytecode.OpSubI64:
		f.SetReg(ins.A, i64Slot(asI64(f.Reg(ins.B))-asI64(f.Reg(ins.C))))
	case bytecode.OpMulI64:
		f.SetReg(ins.A, i64Slot(asI64(f.Reg(ins.B))*asI64(f.Reg(ins.C))))
	case bytecode.OpDivI64:
		divisor := asI64(f.Reg(ins.C))
		if divisor == 0 {
			return ip.execPanicValue(f, vmError(ip, "integer divide by zero"))
		}
		f.SetReg(ins.A, i64Slot(asI64(f.Reg(ins.B))/divisor))
	case bytecode.OpModI64:
		divisor := asI64(f.Reg(ins.C))
		if divisor == 0 {
			return ip.execPanicValue(f, vmError(ip, "integer divide by zero"))
		}
		f.SetReg(ins.A, i64Slot(asI64(f.Reg(ins.B))%divisor))
	case bytecode.OpNegI64:
		f.SetReg(ins.A, i64Slot(-asI64(f.Reg(ins.B))))
	case bytecode.OpDivU64:
		divisor := asU64(f.Reg(ins.C))
		if divisor == 0 {
			return ip.execPanicValue(f, vmError(ip, "integer divide by zero"))
		}
		f.SetReg(ins.A, u64Slot(asU64(f.Reg(ins.B))/divisor))
	case bytecode.OpModU64:
		divisor := asU64(f.Reg(ins.C))
		if divisor == 0 {
			return ip.execPanicValue(f, vmError(ip, "integer divide by zero"))
		}
		f.SetReg(ins.A, u64Slot(asU64(f.Reg(ins.B))%divisor))

	case bytecode.OpAddF64:
		f.SetReg(ins.A, f64Slot(asF64(f.Reg(ins.B))+asF64(f.Reg(ins.C))))
	case bytecode.OpSubF64:
		f.SetReg(ins.A, f64Slot(asF64(f.Reg(ins.B))-asF64(f.Reg(ins.C))))
	case bytecode.OpMulF64:
		f.SetReg(ins.A, f64Slot(asF64(f.Reg(ins.B))*asF64(f.Reg(ins.C))))
	case bytecode.OpDivF64:
		f.SetReg(ins.A, f64Slot(asF64(f.Reg(ins.B))/asF64(f.Reg(ins.C))))
	case bytecode.OpNegF64:
		f.SetReg(ins.A, f64Slot(-asF64(f.Reg(ins.B))))

	case bytecode.OpAnd:
		f.SetReg(ins.A, u64Slot(asU64(f.Reg(ins.B))&asU64(f.Reg(ins.C))))
	case bytecode.OpOr:
		f.SetReg(ins.A, u64Slot(asU64(f.Reg(ins.B))|asU64(f.Reg(ins.C))))
	case bytecode.OpXor:
		f.SetReg(ins.A, u64Slot(asU64(f.Reg(ins.B))^asU64(f.Reg(ins.C))))
	case bytecode.OpNot:
		f.SetReg(ins.A, u64Slot(^asU64(f.Reg(ins.B))))
	case bytecode.OpShl:
		f.SetReg(ins.A, u64Slot(asU64(f.Reg(ins.B))<<uint(asU64(f.Reg(ins.C)))))
	case bytecode.OpShrS:
		f.SetReg(ins.A, i64Slot(asI64(f.Reg(ins.B))>>uint(asU64(f.Reg(ins.C)))))
	case bytecode.OpShrU:
		f.SetReg(ins.A, u64Slot(asU64(f.Reg(ins.B))>>uint(asU64(f.Reg(ins.C)))))

	default:
		return outcomeDead, fmt.Errorf("interp: execArith: unreachable opcode %s", ins.Op)
	}
	return outcomeContinue, nil
}

// execCompare handles the typed comparison group (0x50-0x56); every
// variant writes a bool into r[a].
func (ip *Interp) execCompare(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	switch ins.Op {
	case bytecode.OpEqI64:
		f.SetReg(ins.A, boolSlot(asI64(f.Reg(ins.B)) == asI64(f.Reg(ins.C))))
	case bytecode.OpLtI64:
		f.SetReg(ins.A, boolSlot(asI64(f.Reg(ins.B)) < asI64(f.Reg(ins.C))))
	case bytecode.OpLeI64:
		f.SetReg(ins.A, boolSlot(asI64(f.Reg(ins.B)) <= asI64(f.Reg(ins.C))))
	case bytecode.OpEqF64:
		f.SetReg(ins.A, boolSlot(asF64(f.Reg(ins.B)) == asF64(f.Reg(ins.C))))
	case bytecode.OpLtF64:
		f.SetReg(ins.A, boolSlot(asF64(f.Reg(ins.B)) < asF64(f.Reg(ins.C))))
	case bytecode.OpLeF64:
		f.SetReg(ins.A, boolSlot(asF64(f.Reg(ins.B)) <= asF64(f.Reg(ins.C))))
	case bytecode.OpEqRef:
		f.SetReg(ins.A, boolSlot(f.Reg(ins.B) == f.Reg(ins.C)))
	default:
		return outcomeDead, fmt.Errorf("interp: execCompare: unreachable opcode %s", ins.Op)
	}
	return outcomeContinue, nil
}

// execJump handles OpJump/OpJumpIf/OpJumpIfNot (0x60-0x62). B is a
// signed 16-bit displacement relative to the instruction immediately
// after the jump (fr.PC has already been advanced past it by step),
// matching the doc comment's "relative to pc+1".
func (ip *Interp) execJump(f *fiber.Fiber, fr *fiber.Frame, ins bytecode.Instruction) (outcome, error) {
	disp := int(int16(ins.B))
	taken := false
	switch ins.Op {
	case bytecode.OpJump:
		fr.PC += disp
		taken = true
	case bytecode.OpJumpIf:
		if asBool(f.Reg(ins.A)) {
			fr.PC += disp
			taken = true
		}
	case bytecode.OpJumpIfNot:
		if !asBool(f.Reg(ins.A)) {
			fr.PC += disp
			taken = true
		}
	default:
		return outcomeDead, fmt.Errorf("interp: execJump: unreachable opcode %s", ins.Op)
	}
	// A negative displacement is a loop backedge — spec.md §4.9's other
	// route to JIT eligibility, for a tight loop that never racks up
	// enough whole-function calls to trip recordCallIfJIT on its own.
	if taken && disp < 0 && ip.JIT != nil {
		ip.JIT.RecordBackedge(ip.Mod, fr.FuncID)
	}
	return outcomeContinue, nil
}

// execConvert handles OpConvert (0xF2). Flags packs two 4-bit kind
// nibbles (source in the low nibble, destination in the high nibble);
// restricted to the primitive kinds (ordinals 0-11) that fit a nibble —
// converting to/from a ref kind goes through OpIfaceAssign/Assert
// instead, which is where a ref kind's full ValueMeta actually lives.
func (ip *Interp) execConvert(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	from := ins.Flags & 0x0F
	to := (ins.Flags >> 4) & 0x0F
	v := f.Reg(ins.B)

	// Widen/narrow through a common representation: every integer kind
	// (signed or unsigned, any width) round-trips via int64/uint64
	// reinterpretation plus a truncating mask; float kinds go through
	// asF64/f64Slot; bool is its own case.
	const (
		kNil = iota
		kBool
		kInt8
		kInt16
		kInt32
		kInt64
		kUint8
		kUint16
		kUint32
		kUint64
		kFloat32
		kFloat64
	)

	isFloat := func(k uint8) bool { return k == kFloat32 || k == kFloat64 }

	var asF float64
	if isFloat(from) {
		asF = asF64(v)
	} else if from == kBool {
		asF = 0
		if asBool(v) {
			asF = 1
		}
	} else {
		asF = float64(asI64(v))
	}

	if isFloat(to) {
		if isFloat(from) {
			f.SetReg(ins.A, f64Slot(asF64(v)))
		} else {
			f.SetReg(ins.A, f64Slot(asF))
		}
		return outcomeContinue, nil
	}

	var iv int64
	if isFloat(from) {
		iv = int64(asF64(v))
	} else {
		iv = asI64(v)
	}
	switch to {
	case kBool:
		f.SetReg(ins.A, boolSlot(iv != 0))
	case kInt8:
		f.SetReg(ins.A, i64Slot(int64(int8(iv))))
	case kInt16:
		f.SetReg(ins.A, i64Slot(int64(int16(iv))))
	case kInt32:
		f.SetReg(ins.A, i64Slot(int64(int32(iv))))
	case kInt64:
		f.SetReg(ins.A, i64Slot(iv))
	case kUint8:
		f.SetReg(ins.A, u64Slot(uint64(uint8(iv))))
	case kUint16:
		f.SetReg(ins.A, u64Slot(uint64(uint16(iv))))
	case kUint32:
		f.SetReg(ins.A, u64Slot(uint64(uint32(iv))))
	case kUint64:
		f.SetReg(ins.A, u64Slot(uint64(iv)))
	case kNil:
		f.SetReg(ins.A, 0)
	default:
		return outcomeDead, fmt.Errorf("interp: execConvert: unsupported destination kind %d", to)
	}
	return outcomeContinue, nil
}
