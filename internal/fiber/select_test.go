package fiber

import (
	"testing"

	"github.com/chazu/vo/internal/slot"
)

func TestTrySelectFiresReadyRecvCase(t *testing.T) {
	s := NewScheduler()
	g := newTestGC(s)
	ch := g.NewChannel(slot.PackValueMeta(0, slot.KindInt64), 1)
	if _, err := s.ChanSend(g, "other", ch, []slot.Slot{9}, 1); err != nil {
		t.Fatal(err)
	}

	cases := []SelectCase{
		{Kind: SelectRecv, Chan: ch, Width: 1},
		{Kind: SelectDefault},
	}
	idx, v, ok, fired, err := s.TrySelect(g, "f1", cases)
	if err != nil || !fired || idx != 0 || !ok || v[0] != 9 {
		t.Fatalf("TrySelect = idx=%d v=%v ok=%v fired=%v err=%v, want 0 [9] true true nil", idx, v, ok, fired, err)
	}
}

func TestTrySelectFallsBackToDefault(t *testing.T) {
	s := NewScheduler()
	g := newTestGC(s)
	ch := g.NewChannel(slot.PackValueMeta(0, slot.KindInt64), 0)

	cases := []SelectCase{
		{Kind: SelectRecv, Chan: ch, Width: 1},
		{Kind: SelectDefault},
	}
	idx, _, _, fired, err := s.TrySelect(g, "f1", cases)
	if err != nil || !fired || idx != 1 {
		t.Fatalf("TrySelect = idx=%d fired=%v err=%v, want 1 true nil (default)", idx, fired, err)
	}
}

func TestTrySelectWithNoDefaultParksAndRetries(t *testing.T) {
	s := NewScheduler()
	g := newTestGC(s)
	ch := g.NewChannel(slot.PackValueMeta(0, slot.KindInt64), 0)

	cases := []SelectCase{{Kind: SelectRecv, Chan: ch, Width: 1}}
	idx, _, _, fired, err := s.TrySelect(g, "f1", cases)
	if err != nil || fired || idx != -1 {
		t.Fatalf("TrySelect with nothing ready = idx=%d fired=%v err=%v, want -1 false nil", idx, fired, err)
	}

	s.ParkSelect("f1", cases)
	if _, err := s.ChanSend(g, "sender", ch, []slot.Slot{3}, 1); err != nil {
		t.Fatal(err)
	}

	idx, v, ok, fired, err := s.TrySelect(g, "f1", cases)
	if err != nil || !fired || idx != 0 || !ok || v[0] != 3 {
		t.Fatalf("retried TrySelect = idx=%d v=%v ok=%v fired=%v err=%v", idx, v, ok, fired, err)
	}
	s.UnparkSelect("f1", cases)
}
