package fiber

import (
	"errors"

	"github.com/chazu/vo/internal/gc"
	"github.com/chazu/vo/internal/slot"
)

// Errors ChanSend/ChanClose return for interp to box into Vo panic
// values (spec.md §4.6) rather than a bare Go panic, so the interpreter
// stays in control of where the panic's call stack is rooted.
var (
	ErrSendOnClosedChannel  = errors.New("fiber: send on closed channel")
	ErrCloseOfClosedChannel = errors.New("fiber: close of closed channel")
	ErrCloseOfNilChannel    = errors.New("fiber: close of nil channel")
)

func (s *Scheduler) queueFor(ch slot.Ref) *waitQueue {
	wq := s.chans[ch]
	if wq == nil {
		wq = &waitQueue{}
		s.chans[ch] = wq
	}
	return wq
}

// ChanSend attempts a send of val (width slots wide) on ch for fiberID.
// If it completes immediately (room in the buffer, or a receiver already
// parked on an unbuffered/full channel), sent is true. Otherwise the
// caller must suspend fiberID (Status = StatusSuspended) and retry the
// same send once the scheduler re-enqueues it — ChanSend itself never
// blocks, matching spec.md §4.5's model of suspension as an explicit
// interpreter action between instructions, not a goroutine park.
func (s *Scheduler) ChanSend(g *gc.GC, fiberID string, ch slot.Ref, val []slot.Slot, width int) (sent bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, rerr := g.Heap().Channel(ch)
	if rerr != nil {
		return false, rerr
	}
	if cd.Closed {
		return false, ErrSendOnClosedChannel
	}

	wq := s.queueFor(ch)

	if cd.TryBufferSend(val, width) {
		s.wakeLocked(wq, true)
		return true, nil
	}

	// Unbuffered or momentarily-full channel with a receiver already
	// parked: hand the value across by force-appending past Cap — safe
	// because a parked receiver is guaranteed to drain it on its very
	// next scheduling turn, and internal/gc's channel scan walks the
	// whole buffer by element width regardless of Cap, so it stays a
	// visible root for however briefly it sits there.
	if len(wq.receivers) > 0 {
		recvID := wq.receivers[0]
		wq.receivers = wq.receivers[1:]
		cd.Buffer = append(cd.Buffer, val...)
		s.ready = append(s.ready, recvID)
		return true, nil
	}

	wq.senders = append(wq.senders, fiberID)
	return false, nil
}

// ChanRecv mirrors ChanSend for the receive direction. On success, out
// holds the received value (width slots) and ok is true; a closed,
// drained channel reports ok=false with no blocking (the zero value,
// per spec.md §4.6's "receive from a closed channel yields the zero
// value immediately").
func (s *Scheduler) ChanRecv(g *gc.GC, fiberID string, ch slot.Ref, width int) (out []slot.Slot, ok, done bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cd, rerr := g.Heap().Channel(ch)
	if rerr != nil {
		return nil, false, true, rerr
	}

	if v, got := cd.TryBufferRecv(width); got {
		wq := s.queueFor(ch)
		s.wakeLocked(wq, true)
		return v, true, true, nil
	}

	if cd.Closed {
		return make([]slot.Slot, width), false, true, nil
	}

	wq := s.queueFor(ch)
	if len(wq.senders) > 0 {
		// An unbuffered sender is parked: there is no value sitting in
		// the buffer for it (it never got to buffer), so it must be woken
		// to actually perform the transfer on its next scheduling turn;
		// this receiver parks as a receiver in the interim.
		wq.receivers = append(wq.receivers, fiberID)
		sendID := wq.senders[0]
		wq.senders = wq.senders[1:]
		s.ready = append(s.ready, sendID)
		return nil, false, false, nil
	}

	wq.receivers = append(wq.receivers, fiberID)
	return nil, false, false, nil
}

// ChanClose closes ch, waking everyone parked on it so they can observe
// the closed state (receivers see the zero value per spec.md §4.6;
// senders that were blocked must re-run ChanSend and get
// ErrSendOnClosedChannel).
func (s *Scheduler) ChanClose(g *gc.GC, ch slot.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch.IsNil() {
		return ErrCloseOfNilChannel
	}
	cd, err := g.Heap().Channel(ch)
	if err != nil {
		return err
	}
	if cd.Closed {
		return ErrCloseOfClosedChannel
	}
	cd.Close()

	wq := s.queueFor(ch)
	s.wakeLocked(wq, true)
	s.wakeLocked(wq, false)
	return nil
}

// wakeLocked re-enqueues every fiber parked on wq in the given
// direction, called under s.mu.
func (s *Scheduler) wakeLocked(wq *waitQueue, receivers bool) {
	var ids []string
	if receivers {
		ids, wq.receivers = wq.receivers, nil
	} else {
		ids, wq.senders = wq.senders, nil
	}
	for _, id := range ids {
		s.ready = append(s.ready, id)
	}
}
