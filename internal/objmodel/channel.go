package objmodel

import (
	"fmt"

	"github.com/chazu/vo/internal/slot"
)

// ChannelData is the pure data half of a Vo channel: an element-kind tag,
// a ring-style buffer, and a closed flag. Blocking send/receive, waiter
// queues, and rendezvous semantics (scenario S4) are internal/fiber's job,
// layered on top of this struct; objmodel only holds the storage.
type ChannelData struct {
	ElemMeta slot.ValueMeta
	Cap      int
	Buffer   []slot.Slot // ring buffer, len(Buffer) <= Cap*element width (0 for an unbuffered channel)
	Closed   bool
}

// NewChannel allocates a channel with the given element kind and buffer
// capacity (0 for synchronous/unbuffered).
func (h *Heap) NewChannel(elemMeta slot.ValueMeta, capacity int) slot.Ref {
	cd := &ChannelData{ElemMeta: elemMeta, Cap: capacity}
	ref, obj := h.alloc(slot.PackValueMeta(0, slot.KindChannel), ColorWhite0)
	obj.Ch = cd
	h.mu.Lock()
	h.addBytes(32)
	h.mu.Unlock()
	return ref
}

// Channel returns the ChannelData for ref.
func (h *Heap) Channel(ref slot.Ref) (*ChannelData, error) {
	obj := h.resolve(ref)
	if obj == nil || obj.Ch == nil {
		return nil, fmt.Errorf("objmodel: ref %d is not a channel", ref)
	}
	return obj.Ch, nil
}

// TryBufferSend appends val (width slots wide, per Heap.SlotWidth(ElemMeta))
// to the buffer if there is room for another element, reporting whether it
// succeeded. Cap counts elements, not slots, so a multi-slot element type
// (e.g. a small struct) still gets Cap full element slots of buffering.
// The fiber scheduler calls this before deciding whether a sender must block.
func (cd *ChannelData) TryBufferSend(val []slot.Slot, width int) bool {
	if cd.Closed {
		panic("objmodel: send on closed channel")
	}
	if width <= 0 {
		width = 1
	}
	if len(cd.Buffer)/width >= cd.Cap {
		return false
	}
	cd.Buffer = append(cd.Buffer, val...)
	return true
}

// TryBufferRecv pops the oldest buffered element (width slots wide),
// reporting whether one was available.
func (cd *ChannelData) TryBufferRecv(width int) ([]slot.Slot, bool) {
	if width <= 0 {
		width = 1
	}
	if len(cd.Buffer) < width {
		return nil, false
	}
	v := append([]slot.Slot(nil), cd.Buffer[:width]...)
	cd.Buffer = cd.Buffer[width:]
	return v, true
}

// Close marks the channel closed. Idempotent at this layer; the
// already-closed-panic rule is enforced by internal/fiber, which knows
// about call sites and can produce a Vo-level panic value.
func (cd *ChannelData) Close() {
	cd.Closed = true
}
