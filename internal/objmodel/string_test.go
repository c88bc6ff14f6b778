package objmodel

import "testing"

func TestStringBytesRoundTrip(t *testing.T) {
	h := NewHeap()
	ref := h.NewString([]byte("hello"))
	b, err := h.StringBytes(ref)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "hello" {
		t.Errorf("StringBytes = %q, want %q", b, "hello")
	}
}

func TestStringEqualIsContentEquality(t *testing.T) {
	h := NewHeap()
	a := h.NewString([]byte("abc"))
	b := h.NewString([]byte("abc"))
	if a == b {
		t.Fatal("test setup: expected distinct refs")
	}
	if !h.StringEqual(a, b) {
		t.Error("distinct String objects with equal content should be StringEqual")
	}
	c := h.NewString([]byte("abd"))
	if h.StringEqual(a, c) {
		t.Error("StringEqual(abc, abd) = true")
	}
}

func TestStringCompareByteLex(t *testing.T) {
	h := NewHeap()
	a := h.NewString([]byte("abc"))
	b := h.NewString([]byte("abd"))
	c := h.NewString([]byte("ab"))
	if h.StringCompare(a, b) >= 0 {
		t.Error("abc should compare < abd")
	}
	if h.StringCompare(a, c) <= 0 {
		t.Error("abc should compare > ab (prefix is shorter)")
	}
	if h.StringCompare(a, a) != 0 {
		t.Error("a string should compare equal to itself")
	}
}

func TestConcatStrings(t *testing.T) {
	h := NewHeap()
	a := h.NewString([]byte("foo"))
	b := h.NewString([]byte("bar"))
	cat := h.ConcatStrings(a, b)
	bytes, _ := h.StringBytes(cat)
	if string(bytes) != "foobar" {
		t.Errorf("ConcatStrings = %q, want %q", bytes, "foobar")
	}
}
