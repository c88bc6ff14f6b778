package bytecode

import (
	"testing"

	"github.com/chazu/vo/internal/slot"
)

func buildSampleModule() *Module {
	m := NewModule()
	m.Structs = []StructMeta{
		{
			Name:       "Point",
			SlotTypes:  []slot.SlotType{slot.TypeValue, slot.TypeValue},
			FieldNames: []string{"x", "y"},
			FieldStart: []int{0, 1},
			FieldSlots: []int{1, 1},
		},
	}
	m.Interfaces = []IfaceMeta{
		{Name: "Stringer", Methods: []string{"String"}},
	}
	m.Constants = []Constant{
		{Kind: ConstNil},
		{Kind: ConstBool, I: 1},
		{Kind: ConstInt, I: -42},
		{Kind: ConstFloat, F: 3.25},
		{Kind: ConstString, S: "hello"},
	}
	m.Globals = []Global{
		{Name: "counter", Slots: 1, ValueKind: slot.KindInt64},
	}
	m.Functions = []Function{
		{
			Name:       "main",
			ParamCount: 0,
			LocalSlots: 2,
			RetSlots:   1,
			Code: Code{
				{Op: OpLoadConst, A: 0, B: 2},
				{Op: OpReturn, A: 0, C: 1},
			},
			SlotTypes: []slot.SlotType{slot.TypeValue, slot.TypeValue},
		},
	}
	m.Externs = []Extern{
		{Name: "print", Signature: "func(string)"},
	}
	m.Dispatch[DispatchKey{ConcreteMeta: slot.FirstUserStruct, IfaceMeta: slot.FirstIface}] = []uint32{0}
	m.EntryFunc = 0
	m.ErrorStructID = slot.FirstUserStruct
	m.ErrorIfaceID = slot.FirstIface
	return m
}

func TestModuleSlotTypesImplementsStructTypeInfo(t *testing.T) {
	m := buildSampleModule()
	st := m.SlotTypes(slot.FirstUserStruct)
	if len(st) != 2 {
		t.Fatalf("SlotTypes returned %d entries, want 2", len(st))
	}
	if m.SlotTypes(slot.FirstUserStruct+99) != nil {
		t.Error("SlotTypes should return nil for an unknown meta_id")
	}
}

func TestModuleMethodResolvesDispatchEntry(t *testing.T) {
	m := buildSampleModule()
	fn, err := m.Method(slot.FirstUserStruct, slot.FirstIface, 0)
	if err != nil {
		t.Fatal(err)
	}
	if fn != 0 {
		t.Errorf("Method() = %d, want 0", fn)
	}
	if _, err := m.Method(slot.FirstUserStruct, slot.FirstIface, 5); err == nil {
		t.Error("expected an error for an out-of-range method index")
	}
	if _, err := m.Method(slot.FirstUserStruct+1, slot.FirstIface, 0); err == nil {
		t.Error("expected an error for a concrete type with no dispatch entry")
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	m := buildSampleModule()
	data, err := m.Serialize()
	if err != nil {
		t.Fatal(err)
	}

	got, err := Deserialize(data)
	if err != nil {
		t.Fatal(err)
	}

	if len(got.Structs) != 1 || got.Structs[0].Name != "Point" {
		t.Errorf("Structs mismatch: %+v", got.Structs)
	}
	if len(got.Constants) != 5 || got.Constants[4].S != "hello" || got.Constants[3].F != 3.25 {
		t.Errorf("Constants mismatch: %+v", got.Constants)
	}
	if len(got.Functions) != 1 || len(got.Functions[0].Code) != 2 {
		t.Fatalf("Functions mismatch: %+v", got.Functions)
	}
	if got.Functions[0].Code[1].Op != OpReturn {
		t.Errorf("decoded instruction mismatch: %+v", got.Functions[0].Code[1])
	}
	if got.EntryFunc != 0 {
		t.Errorf("EntryFunc = %d, want 0", got.EntryFunc)
	}
	if got.ErrorStructID != slot.FirstUserStruct || got.ErrorIfaceID != slot.FirstIface {
		t.Errorf("ErrorStructID/ErrorIfaceID = %d/%d, want %d/%d", got.ErrorStructID, got.ErrorIfaceID, slot.FirstUserStruct, slot.FirstIface)
	}
	fn, err := got.Method(slot.FirstUserStruct, slot.FirstIface, 0)
	if err != nil || fn != 0 {
		t.Errorf("round-tripped dispatch table lookup failed: fn=%d err=%v", fn, err)
	}
}

func TestSerializeWithDebugInfoRoundTrip(t *testing.T) {
	m := buildSampleModule()
	m.Debug = NewDebugInfo()
	m.Debug.Add(0, 0, SourceLoc{File: "main.vo", Line: 1, Column: 1})
	m.Debug.Add(0, 1, SourceLoc{File: "main.vo", Line: 2, Column: 5})

	data, err := m.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	got, err := Deserialize(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Debug == nil {
		t.Fatal("expected debug info to survive round trip")
	}
	loc, ok := got.Debug.Lookup(0, 1)
	if !ok || loc.Line != 2 || loc.Column != 5 {
		t.Errorf("Lookup(0, 1) = %+v, %v", loc, ok)
	}
}

func TestDeserializeRejectsBadMagic(t *testing.T) {
	data := []byte{'X', 'X', 'X', 'X', 1, 0, 0, 0, 0, 0, 0, 0}
	if _, err := Deserialize(data); err == nil {
		t.Error("expected an error for bad magic")
	}
}

func TestDeserializeRejectsTruncatedStream(t *testing.T) {
	m := buildSampleModule()
	data, err := m.Serialize()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Deserialize(data[:len(data)/2]); err == nil {
		t.Error("expected an error for a truncated stream")
	}
}
