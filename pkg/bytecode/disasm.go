package bytecode

import (
	"fmt"
	"strings"
)

// Disassemble returns a human-readable listing of every function in m,
// in the same header-then-body shape as the teacher's Chunk.Disassemble.
func (m *Module) Disassemble() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; Vo module, format v%d\n", ModuleVersion)
	fmt.Fprintf(&sb, "; %d structs, %d interfaces, %d constants, %d globals, %d functions, %d externs\n",
		len(m.Structs), len(m.Interfaces), len(m.Constants), len(m.Globals), len(m.Functions), len(m.Externs))
	fmt.Fprintf(&sb, "; entry: func[%d]\n\n", m.EntryFunc)

	if len(m.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, c := range m.Constants {
			fmt.Fprintf(&sb, ";   [%3d] %s\n", i, c.disasm())
		}
		sb.WriteString("\n")
	}

	for i, f := range m.Functions {
		sb.WriteString(f.DisassembleWithName(fmt.Sprintf("func[%d] %s", i, f.Name)))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (c Constant) disasm() string {
	switch c.Kind {
	case ConstNil:
		return "nil"
	case ConstBool:
		return fmt.Sprintf("bool %v", c.I != 0)
	case ConstInt:
		return fmt.Sprintf("int %d", c.I)
	case ConstFloat:
		return fmt.Sprintf("float %g", c.F)
	case ConstString:
		display := c.S
		if len(display) > 40 {
			display = display[:37] + "..."
		}
		return fmt.Sprintf("string %q", display)
	default:
		return "?"
	}
}

// DisassembleWithName returns a human-readable listing of one function's
// body, named, matching the teacher's "; === name ===" header convention.
func (f Function) DisassembleWithName(name string) string {
	var sb strings.Builder
	if name != "" {
		fmt.Fprintf(&sb, "; === %s ===\n", name)
	}
	fmt.Fprintf(&sb, "; params=%d (%d slots), locals=%d slots, rets=%d slots\n",
		f.ParamCount, f.ParamSlots, f.LocalSlots, f.RetSlots)

	for pc, ins := range f.Code {
		fmt.Fprintf(&sb, "%6d  %s\n", pc, ins.disasm())
	}
	return sb.String()
}

func (i Instruction) disasm() string {
	name := i.Op.String()
	switch {
	case i.Op == OpJump || i.Op == OpJumpIf || i.Op == OpJumpIfNot:
		return fmt.Sprintf("%-16s r%d, %+d", name, i.A, int16(i.B))
	case i.Op == OpLoadConst:
		return fmt.Sprintf("%-16s r%d, const[%d]", name, i.A, i.B)
	case i.Op.IsCall():
		return fmt.Sprintf("%-16s a=%d b=%d c=%d flags=0x%02X", name, i.A, i.B, i.C, i.Flags)
	default:
		return fmt.Sprintf("%-16s r%d, r%d, r%d  (flags=0x%02X)", name, i.A, i.B, i.C, i.Flags)
	}
}
