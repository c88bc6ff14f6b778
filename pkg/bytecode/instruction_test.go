package bytecode

import "testing"

func TestInstructionEncodeDecodeRoundTrip(t *testing.T) {
	negFive := int16(-5)
	cases := []Instruction{
		{Op: OpAddI64, Flags: 0, A: 1, B: 2, C: 3},
		{Op: OpCall, Flags: 0xFF, A: 0, B: 65535, C: 8},
		{Op: OpJump, Flags: 0, A: 0, B: uint16(negFive), C: 0},
	}
	for _, c := range cases {
		enc := c.Encode()
		got := DecodeInstruction(enc[:])
		if got != c {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, c)
		}
	}
}

func TestEncodeDecodeCodeRoundTrip(t *testing.T) {
	code := Code{
		{Op: OpLoadConst, A: 0, B: 0},
		{Op: OpAddI64, A: 0, B: 0, C: 1},
		{Op: OpReturn, A: 0, C: 1},
	}
	enc := EncodeCode(code)
	if len(enc) != len(code)*InstructionSize {
		t.Fatalf("encoded length = %d, want %d", len(enc), len(code)*InstructionSize)
	}
	dec, err := DecodeCode(enc)
	if err != nil {
		t.Fatal(err)
	}
	if len(dec) != len(code) {
		t.Fatalf("decoded %d instructions, want %d", len(dec), len(code))
	}
	for i := range code {
		if dec[i] != code[i] {
			t.Errorf("instruction %d: got %+v, want %+v", i, dec[i], code[i])
		}
	}
}

func TestDecodeCodeRejectsMisalignedStream(t *testing.T) {
	_, err := DecodeCode(make([]byte, InstructionSize+1))
	if err == nil {
		t.Error("expected an error for a stream not a multiple of InstructionSize")
	}
}
