package bytecode

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/chazu/vo/internal/slot"
)

// ModuleVersion is the current `.vob` format version (spec.md §4.4: "the
// wire format is not required to be stable across minor versions").
const ModuleVersion uint32 = 1

// ModuleMagic is the 4-byte file signature spec.md §6 names: "GOXB".
var ModuleMagic = [4]byte{'G', 'O', 'X', 'B'}

// moduleFlag bits stored in the header word following the version.
const (
	flagHasDebug uint32 = 1 << 0
)

// Serialize encodes m into its `.vob` wire representation: magic,
// version, flags, then each table in turn, little-endian throughout, per
// spec.md §4.4/§6. This mirrors the teacher's Chunk.Serialize in shape
// (grow-a-buffer-with-AppendUintN, one section after another) but little-
// endian and with this format's own section set.
func (m *Module) Serialize() ([]byte, error) {
	buf := make([]byte, 0, 4096)
	buf = append(buf, ModuleMagic[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, ModuleVersion)

	flags := uint32(0)
	if m.Debug != nil {
		flags |= flagHasDebug
	}
	buf = binary.LittleEndian.AppendUint32(buf, flags)

	buf = appendStructs(buf, m.Structs)
	buf = appendInterfaces(buf, m.Interfaces)
	buf = appendConstants(buf, m.Constants)
	buf = appendGlobals(buf, m.Globals)
	buf = appendFunctions(buf, m.Functions)
	buf = appendExterns(buf, m.Externs)
	buf = appendDispatch(buf, m.Dispatch)
	buf = binary.LittleEndian.AppendUint32(buf, m.EntryFunc)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.ErrorStructID))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(m.ErrorIfaceID))

	if m.Debug != nil {
		debugBytes, err := m.Debug.encode()
		if err != nil {
			return nil, fmt.Errorf("bytecode: encoding debug info: %w", err)
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(debugBytes)))
		buf = append(buf, debugBytes...)
	}

	return buf, nil
}

// Deserialize decodes a `.vob` byte stream produced by Serialize.
func Deserialize(data []byte) (*Module, error) {
	r := &reader{buf: data}

	var magic [4]byte
	if err := r.bytes(magic[:]); err != nil {
		return nil, fmt.Errorf("bytecode: reading magic: %w", err)
	}
	if magic != ModuleMagic {
		return nil, fmt.Errorf("bytecode: bad magic %q, want %q", magic, ModuleMagic)
	}

	version, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("bytecode: reading version: %w", err)
	}
	if version != ModuleVersion {
		return nil, fmt.Errorf("bytecode: unsupported module version %d, want %d", version, ModuleVersion)
	}

	flags, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("bytecode: reading flags: %w", err)
	}

	m := NewModule()
	if m.Structs, err = readStructs(r); err != nil {
		return nil, fmt.Errorf("bytecode: reading struct table: %w", err)
	}
	if m.Interfaces, err = readInterfaces(r); err != nil {
		return nil, fmt.Errorf("bytecode: reading interface table: %w", err)
	}
	if m.Constants, err = readConstants(r); err != nil {
		return nil, fmt.Errorf("bytecode: reading constant pool: %w", err)
	}
	if m.Globals, err = readGlobals(r); err != nil {
		return nil, fmt.Errorf("bytecode: reading globals: %w", err)
	}
	if m.Functions, err = readFunctions(r); err != nil {
		return nil, fmt.Errorf("bytecode: reading functions: %w", err)
	}
	if m.Externs, err = readExterns(r); err != nil {
		return nil, fmt.Errorf("bytecode: reading externs: %w", err)
	}
	if m.Dispatch, err = readDispatch(r); err != nil {
		return nil, fmt.Errorf("bytecode: reading dispatch table: %w", err)
	}
	if m.EntryFunc, err = r.u32(); err != nil {
		return nil, fmt.Errorf("bytecode: reading entry function index: %w", err)
	}
	errStructID, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("bytecode: reading error struct id: %w", err)
	}
	m.ErrorStructID = slot.MetaID(errStructID)
	errIfaceID, err := r.u32()
	if err != nil {
		return nil, fmt.Errorf("bytecode: reading error iface id: %w", err)
	}
	m.ErrorIfaceID = slot.MetaID(errIfaceID)

	if flags&flagHasDebug != 0 {
		debugLen, err := r.u32()
		if err != nil {
			return nil, fmt.Errorf("bytecode: reading debug info length: %w", err)
		}
		debugBytes, err := r.take(int(debugLen))
		if err != nil {
			return nil, fmt.Errorf("bytecode: reading debug info: %w", err)
		}
		if m.Debug, err = decodeDebugInfo(debugBytes); err != nil {
			return nil, fmt.Errorf("bytecode: decoding debug info: %w", err)
		}
	}

	return m, nil
}

// reader is a small cursor over a byte slice shared by every section
// decoder below, so each readX function stays a flat sequence of
// "read a field, check the error" lines instead of threading a position
// integer through every call by hand.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) bytes(dst []byte) error {
	if len(r.buf)-r.pos < len(dst) {
		return fmt.Errorf("unexpected end of buffer")
	}
	copy(dst, r.buf[r.pos:])
	r.pos += len(dst)
	return nil
}

func (r *reader) take(n int) ([]byte, error) {
	if n < 0 || len(r.buf)-r.pos < n {
		return nil, fmt.Errorf("unexpected end of buffer")
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

// checkCount rejects a decoded element count that could not possibly be
// satisfied by the bytes remaining in the buffer, so a corrupt or
// adversarial length field fails fast instead of driving a multi-gigabyte
// make([]T, n) allocation before the first per-element read error fires.
func (r *reader) checkCount(n uint32) error {
	if uint64(n) > uint64(len(r.buf)-r.pos) {
		return fmt.Errorf("element count %d exceeds remaining buffer length %d", n, len(r.buf)-r.pos)
	}
	return nil
}

func (r *reader) u8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) u32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) u64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) str() (string, error) {
	n, err := r.u16()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func appendStr(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

// --- struct table ---

func appendStructs(buf []byte, structs []StructMeta) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(structs)))
	for _, s := range structs {
		buf = appendStr(buf, s.Name)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s.SlotTypes)))
		for _, st := range s.SlotTypes {
			buf = append(buf, byte(st))
		}
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s.FieldNames)))
		for i, name := range s.FieldNames {
			buf = appendStr(buf, name)
			buf = binary.LittleEndian.AppendUint16(buf, uint16(s.FieldStart[i]))
			buf = binary.LittleEndian.AppendUint16(buf, uint16(s.FieldSlots[i]))
		}
	}
	return buf
}

func readStructs(r *reader) ([]StructMeta, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if err := r.checkCount(n); err != nil {
		return nil, err
	}
	out := make([]StructMeta, n)
	for i := range out {
		if out[i].Name, err = r.str(); err != nil {
			return nil, err
		}
		stCount, err := r.u16()
		if err != nil {
			return nil, err
		}
		out[i].SlotTypes = make([]slot.SlotType, stCount)
		for j := range out[i].SlotTypes {
			b, err := r.u8()
			if err != nil {
				return nil, err
			}
			out[i].SlotTypes[j] = slot.SlotType(b)
		}
		fieldCount, err := r.u16()
		if err != nil {
			return nil, err
		}
		out[i].FieldNames = make([]string, fieldCount)
		out[i].FieldStart = make([]int, fieldCount)
		out[i].FieldSlots = make([]int, fieldCount)
		for j := range out[i].FieldNames {
			if out[i].FieldNames[j], err = r.str(); err != nil {
				return nil, err
			}
			start, err := r.u16()
			if err != nil {
				return nil, err
			}
			width, err := r.u16()
			if err != nil {
				return nil, err
			}
			out[i].FieldStart[j] = int(start)
			out[i].FieldSlots[j] = int(width)
		}
	}
	return out, nil
}

// --- interface table ---

func appendInterfaces(buf []byte, ifaces []IfaceMeta) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ifaces)))
	for _, iface := range ifaces {
		buf = appendStr(buf, iface.Name)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(iface.Methods)))
		for _, meth := range iface.Methods {
			buf = appendStr(buf, meth)
		}
	}
	return buf
}

func readInterfaces(r *reader) ([]IfaceMeta, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if err := r.checkCount(n); err != nil {
		return nil, err
	}
	out := make([]IfaceMeta, n)
	for i := range out {
		if out[i].Name, err = r.str(); err != nil {
			return nil, err
		}
		methCount, err := r.u16()
		if err != nil {
			return nil, err
		}
		out[i].Methods = make([]string, methCount)
		for j := range out[i].Methods {
			if out[i].Methods[j], err = r.str(); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// --- constant pool ---

func appendConstants(buf []byte, consts []Constant) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(consts)))
	for _, c := range consts {
		buf = append(buf, byte(c.Kind))
		switch c.Kind {
		case ConstBool:
			v := byte(0)
			if c.I != 0 {
				v = 1
			}
			buf = append(buf, v)
		case ConstInt:
			buf = binary.LittleEndian.AppendUint64(buf, uint64(c.I))
		case ConstFloat:
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(c.F))
		case ConstString:
			buf = appendStr(buf, c.S)
		}
	}
	return buf
}

func readConstants(r *reader) ([]Constant, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if err := r.checkCount(n); err != nil {
		return nil, err
	}
	out := make([]Constant, n)
	for i := range out {
		kind, err := r.u8()
		if err != nil {
			return nil, err
		}
		out[i].Kind = ConstKind(kind)
		switch out[i].Kind {
		case ConstBool:
			b, err := r.u8()
			if err != nil {
				return nil, err
			}
			if b != 0 {
				out[i].I = 1
			}
		case ConstInt:
			v, err := r.u64()
			if err != nil {
				return nil, err
			}
			out[i].I = int64(v)
		case ConstFloat:
			v, err := r.u64()
			if err != nil {
				return nil, err
			}
			out[i].F = math.Float64frombits(v)
		case ConstString:
			if out[i].S, err = r.str(); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// --- globals ---

func appendGlobals(buf []byte, globals []Global) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(globals)))
	for _, g := range globals {
		buf = appendStr(buf, g.Name)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(g.Slots))
		buf = append(buf, byte(g.ValueKind))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(g.MetaID))
	}
	return buf
}

func readGlobals(r *reader) ([]Global, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if err := r.checkCount(n); err != nil {
		return nil, err
	}
	out := make([]Global, n)
	for i := range out {
		if out[i].Name, err = r.str(); err != nil {
			return nil, err
		}
		slots, err := r.u16()
		if err != nil {
			return nil, err
		}
		out[i].Slots = int(slots)
		kind, err := r.u8()
		if err != nil {
			return nil, err
		}
		out[i].ValueKind = slot.ValueKind(kind)
		metaID, err := r.u32()
		if err != nil {
			return nil, err
		}
		out[i].MetaID = slot.MetaID(metaID)
	}
	return out, nil
}

// --- functions ---

func appendFunctions(buf []byte, funcs []Function) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(funcs)))
	for _, f := range funcs {
		buf = appendStr(buf, f.Name)
		buf = binary.LittleEndian.AppendUint16(buf, uint16(f.ParamCount))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(f.ParamSlots))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(f.LocalSlots))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(f.RetSlots))

		code := EncodeCode(f.Code)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(code)))
		buf = append(buf, code...)

		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(f.SlotTypes)))
		for _, st := range f.SlotTypes {
			buf = append(buf, byte(st))
		}
	}
	return buf
}

func readFunctions(r *reader) ([]Function, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if err := r.checkCount(n); err != nil {
		return nil, err
	}
	out := make([]Function, n)
	for i := range out {
		if out[i].Name, err = r.str(); err != nil {
			return nil, err
		}
		paramCount, err := r.u16()
		if err != nil {
			return nil, err
		}
		out[i].ParamCount = int(paramCount)
		paramSlots, err := r.u16()
		if err != nil {
			return nil, err
		}
		out[i].ParamSlots = int(paramSlots)
		localSlots, err := r.u16()
		if err != nil {
			return nil, err
		}
		out[i].LocalSlots = int(localSlots)
		retSlots, err := r.u16()
		if err != nil {
			return nil, err
		}
		out[i].RetSlots = int(retSlots)

		codeLen, err := r.u32()
		if err != nil {
			return nil, err
		}
		codeBytes, err := r.take(int(codeLen))
		if err != nil {
			return nil, err
		}
		if out[i].Code, err = DecodeCode(codeBytes); err != nil {
			return nil, err
		}

		stCount, err := r.u16()
		if err != nil {
			return nil, err
		}
		out[i].SlotTypes = make([]slot.SlotType, stCount)
		for j := range out[i].SlotTypes {
			b, err := r.u8()
			if err != nil {
				return nil, err
			}
			out[i].SlotTypes[j] = slot.SlotType(b)
		}
	}
	return out, nil
}

// --- externs ---

func appendExterns(buf []byte, externs []Extern) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(externs)))
	for _, e := range externs {
		buf = appendStr(buf, e.Name)
		buf = appendStr(buf, e.Signature)
	}
	return buf
}

func readExterns(r *reader) ([]Extern, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if err := r.checkCount(n); err != nil {
		return nil, err
	}
	out := make([]Extern, n)
	for i := range out {
		if out[i].Name, err = r.str(); err != nil {
			return nil, err
		}
		if out[i].Signature, err = r.str(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// --- interface dispatch table ---

func appendDispatch(buf []byte, dispatch map[DispatchKey][]uint32) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(dispatch)))
	for key, funcIDs := range dispatch {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(key.ConcreteMeta))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(key.IfaceMeta))
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(funcIDs)))
		for _, id := range funcIDs {
			buf = binary.LittleEndian.AppendUint32(buf, id)
		}
	}
	return buf
}

func readDispatch(r *reader) (map[DispatchKey][]uint32, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make(map[DispatchKey][]uint32, n)
	for i := uint32(0); i < n; i++ {
		concrete, err := r.u32()
		if err != nil {
			return nil, err
		}
		iface, err := r.u32()
		if err != nil {
			return nil, err
		}
		count, err := r.u16()
		if err != nil {
			return nil, err
		}
		ids := make([]uint32, count)
		for j := range ids {
			if ids[j], err = r.u32(); err != nil {
				return nil, err
			}
		}
		out[DispatchKey{ConcreteMeta: slot.MetaID(concrete), IfaceMeta: slot.MetaID(iface)}] = ids
	}
	return out, nil
}
