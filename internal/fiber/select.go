package fiber

import (
	"github.com/chazu/vo/internal/gc"
	"github.com/chazu/vo/internal/slot"
)

// SelectCaseKind distinguishes a select statement's case shapes.
type SelectCaseKind uint8

const (
	SelectSend SelectCaseKind = iota
	SelectRecv
	SelectDefault
)

// SelectCase is one arm of a select statement, resolved to its channel
// ref and (for a send) the value to send before OpSelect runs — Vo, like
// Go, evaluates every case's channel and send operand exactly once up
// front regardless of which case fires.
type SelectCase struct {
	Kind     SelectCaseKind
	Chan     slot.Ref
	Val      []slot.Slot
	Width    int
	DestReg  uint16 // for SelectRecv: where to write the received value
	OKReg    uint16 // for SelectRecv: where to write the ok-flag (0/1)
	BodyPC   int    // instruction offset of this case's body, for OpSelect to jump to
}

// TrySelect attempts every case in order, completing the first one that
// can proceed immediately (Go's own select has no ordering guarantee
// across ready cases, but a fixed scan order is simplest and spec.md
// does not require randomized fairness). Returns the index of the case
// that fired, or ok=false if none could and there is no default case —
// the caller must then suspend the fiber on every non-default case's
// channel and retry once re-scheduled.
func (s *Scheduler) TrySelect(g *gc.GC, fiberID string, cases []SelectCase) (idx int, recvVal []slot.Slot, recvOK bool, ok bool, err error) {
	for i, c := range cases {
		switch c.Kind {
		case SelectDefault:
			return i, nil, false, true, nil
		case SelectSend:
			sent, serr := s.ChanSend(g, fiberID, c.Chan, c.Val, c.Width)
			if serr != nil {
				return i, nil, false, true, serr
			}
			if sent {
				return i, nil, false, true, nil
			}
		case SelectRecv:
			v, got, done, rerr := s.ChanRecv(g, fiberID, c.Chan, c.Width)
			if rerr != nil {
				return i, nil, false, true, rerr
			}
			if done {
				return i, v, got, true, nil
			}
		}
	}
	return -1, nil, false, false, nil
}

// ParkSelect registers fiberID as a parked receiver/sender on every
// non-default channel case, called once TrySelect finds nothing ready.
// A later wake on any one of them re-enqueues fiberID, which must then
// re-run TrySelect from scratch (some other case may now also be ready;
// the re-run picks whichever fires first, exactly as a fresh select would).
func (s *Scheduler) ParkSelect(fiberID string, cases []SelectCase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cases {
		switch c.Kind {
		case SelectSend:
			wq := s.queueFor(c.Chan)
			wq.senders = append(wq.senders, fiberID)
		case SelectRecv:
			wq := s.queueFor(c.Chan)
			wq.receivers = append(wq.receivers, fiberID)
		}
	}
}

// UnparkSelect removes fiberID from every case's wait queue, called once
// its select has actually fired, so it doesn't also get woken spuriously
// by one of the other cases later.
func (s *Scheduler) UnparkSelect(fiberID string, cases []SelectCase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range cases {
		var wq *waitQueue
		switch c.Kind {
		case SelectSend:
			wq = s.chans[c.Chan]
			if wq != nil {
				wq.senders = removeID(wq.senders, fiberID)
			}
		case SelectRecv:
			wq = s.chans[c.Chan]
			if wq != nil {
				wq.receivers = removeID(wq.receivers, fiberID)
			}
		}
	}
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
