// Package bytecode defines the wire format and in-memory representation of
// a Vo module: the fixed-width instruction stream, opcode table, struct and
// interface metadata, constant pool, globals, functions, externs, and
// interface dispatch table, plus serialization to and from the `.vob` file
// format (magic "GOXB", little-endian).
//
// This package is exported, matching the teacher's own pkg/bytecode: an
// eventual compiler or standalone disassembler needs these types without
// reaching into internal/.
package bytecode

import (
	"encoding/binary"
	"fmt"
)

// Instruction is one fixed 8-byte bytecode instruction: a single opcode
// byte, a flags byte carrying per-opcode immediates (elem_bytes,
// elem_slots, ret_count, an embedded meta_id high byte, etc.), and three
// 16-bit register/immediate operands. Every Vo instruction is this one
// shape — there is no variable-length operand encoding, unlike the
// teacher's stack-machine bytecode.
type Instruction struct {
	Op    Opcode
	Flags uint8
	A     uint16
	B     uint16
	C     uint16
}

// InstructionSize is the fixed width of every instruction on the wire and
// in a decoded Function's Code slice.
const InstructionSize = 8

// Encode packs i into its 8-byte wire representation, little-endian for
// the two-byte operands.
func (i Instruction) Encode() [InstructionSize]byte {
	var buf [InstructionSize]byte
	buf[0] = byte(i.Op)
	buf[1] = i.Flags
	binary.LittleEndian.PutUint16(buf[2:4], i.A)
	binary.LittleEndian.PutUint16(buf[4:6], i.B)
	binary.LittleEndian.PutUint16(buf[6:8], i.C)
	return buf
}

// DecodeInstruction unpacks an 8-byte slice into an Instruction. The
// caller must ensure len(b) >= InstructionSize.
func DecodeInstruction(b []byte) Instruction {
	return Instruction{
		Op:    Opcode(b[0]),
		Flags: b[1],
		A:     binary.LittleEndian.Uint16(b[2:4]),
		B:     binary.LittleEndian.Uint16(b[4:6]),
		C:     binary.LittleEndian.Uint16(b[6:8]),
	}
}

// Code is a decoded function body: one Instruction per program-counter
// value, rather than the raw byte stream. pc indexes this slice directly;
// there is no separate "instruction length" bookkeeping because every
// instruction is the same width.
type Code []Instruction

// EncodeCode packs a decoded Code slice back into its wire byte stream.
func EncodeCode(code Code) []byte {
	buf := make([]byte, 0, len(code)*InstructionSize)
	for _, ins := range code {
		enc := ins.Encode()
		buf = append(buf, enc[:]...)
	}
	return buf
}

// DecodeCode unpacks a wire byte stream into a Code slice. Returns an
// error if the stream length is not a multiple of InstructionSize.
func DecodeCode(b []byte) (Code, error) {
	if len(b)%InstructionSize != 0 {
		return nil, fmt.Errorf("bytecode: code section length %d is not a multiple of %d", len(b), InstructionSize)
	}
	code := make(Code, len(b)/InstructionSize)
	for i := range code {
		code[i] = DecodeInstruction(b[i*InstructionSize : (i+1)*InstructionSize])
	}
	return code, nil
}
