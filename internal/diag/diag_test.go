package diag

import (
	"bytes"
	"strings"
	"testing"
)

func TestDiagnosticStringFormat(t *testing.T) {
	d := Diagnostic{Kind: Panic, Loc: Loc{File: "main.vo", Line: 12, Column: 4}, Msg: "index out of range"}
	got := d.String()
	want := "[VO:PANIC:main.vo:12:4: index out of range]"
	if got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestDiagnosticStringNoLocation(t *testing.T) {
	d := Diagnostic{Kind: IO, Msg: "could not open module"}
	if got := d.String(); got != "[VO:IO:?: could not open module]" {
		t.Errorf("String() = %q", got)
	}
}

func TestLocStringLineOnly(t *testing.T) {
	loc := Loc{File: "a.vo", Line: 3}
	if got := loc.String(); got != "a.vo:3" {
		t.Errorf("Loc.String() = %q, want a.vo:3", got)
	}
}

func TestWriterSinkEmit(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriterSink(&buf)
	s.Emit(Diagnostic{Kind: Panic, Msg: "boom"})
	if !strings.Contains(buf.String(), "[VO:PANIC:?: boom]") {
		t.Errorf("unexpected sink output: %q", buf.String())
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	var a, b bytes.Buffer
	m := MultiSink{NewWriterSink(&a), NewWriterSink(&b)}
	m.Emit(Diagnostic{Kind: Check, Msg: "unused variable"})
	if a.String() == "" || b.String() == "" {
		t.Fatal("expected both sinks to receive the diagnostic")
	}
	if a.String() != b.String() {
		t.Errorf("sinks diverged: %q vs %q", a.String(), b.String())
	}
}

func TestKindStrings(t *testing.T) {
	cases := map[Kind]string{
		Parse:   "PARSE",
		Check:   "CHECK",
		Codegen: "CODEGEN",
		Panic:   "PANIC",
		IO:      "IO",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
