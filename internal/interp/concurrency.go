package interp

import (
	"fmt"

	"github.com/chazu/vo/internal/fiber"
	"github.com/chazu/vo/internal/slot"
	"github.com/chazu/vo/pkg/bytecode"
)

// execConcurrency handles the goroutine/channel/select group (0xD0-0xD6):
// OpGo, OpYield, OpChanNew, OpChanSend, OpChanRecv, OpChanClose, OpSelect.
func (ip *Interp) execConcurrency(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	switch ins.Op {
	case bytecode.OpGo:
		return ip.execGo(f, ins)
	case bytecode.OpYield:
		return outcomeYield, nil
	case bytecode.OpChanNew:
		return ip.execChanNew(f, ins)
	case bytecode.OpChanSend:
		return ip.execChanSend(f, ins)
	case bytecode.OpChanRecv:
		return ip.execChanRecv(f, ins)
	case bytecode.OpChanClose:
		return ip.execChanClose(f, ins)
	case bytecode.OpSelect:
		return ip.execSelect(f, ins)
	default:
		return outcomeDead, fmt.Errorf("interp: execConcurrency: unreachable opcode %s", ins.Op)
	}
}

// execGo handles OpGo (0xD0): spawn a fiber running closure r[a] with
// args r[b..b+c). r[a] always names a closure ref, the same convention
// OpDeferPush uses for a deferred call — a bare top-level function is
// assumed compiled as a zero-capture closure.
func (ip *Interp) execGo(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	closureRef := f.Reg(ins.A).AsRef()
	cl, err := ip.GC.Heap().Closure(closureRef)
	if err != nil {
		return outcomeDead, err
	}
	callee, err := ip.function(cl.FuncID)
	if err != nil {
		return outcomeDead, err
	}
	argCount := int(ins.C)
	args := make([]slot.Slot, argCount)
	copy(args, f.RegN(ins.B, argCount))

	nf := ip.Sched.Spawn(false)
	nf.PushFrame(cl.FuncID, callee.LocalSlots, 0, 0, callee.SlotTypes)
	nf.SetReg(0, closureRef.Slot())
	if argCount > 0 {
		copy(nf.RegN(1, argCount), args)
	}
	return outcomeContinue, nil
}

// execChanNew handles OpChanNew (0xD2): r[a] = new channel of capacity b,
// element kind/meta_id packed into Flags/C per the package's general
// creation-opcode convention.
func (ip *Interp) execChanNew(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	elemMeta := slot.PackValueMeta(slot.MetaID(ins.C), slot.ValueKind(ins.Flags))
	ref := ip.GC.NewChannel(elemMeta, int(ins.B))
	f.SetReg(ins.A, ref.Slot())
	return outcomeContinue, nil
}

// execChanSend handles OpChanSend (0xD3): send r[b..b+width) on r[a].
// width is the channel's own ElemMeta width, read off the live object.
// If ChanSend cannot complete immediately, the instruction is rewound so
// the fiber retries it fresh once re-enqueued, per internal/fiber's
// documented "caller must suspend and retry the same send" contract.
func (ip *Interp) execChanSend(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	fr := f.CurrentFrame()
	ch := f.Reg(ins.A).AsRef()
	cd, err := ip.GC.Heap().Channel(ch)
	if err != nil {
		return outcomeDead, err
	}
	width := ip.GC.Heap().SlotWidth(cd.ElemMeta)
	val := make([]slot.Slot, width)
	copy(val, f.RegN(ins.B, width))

	sent, err := ip.Sched.ChanSend(ip.GC, f.ID, ch, val, width)
	if err != nil {
		return ip.execPanicValue(f, vmError(ip, err.Error()))
	}
	if !sent {
		fr.PC--
		f.BlockedOn = ch
		return outcomeBlocked, nil
	}
	ip.applyWriteBarrier(ch, cd.ElemMeta, val)
	return outcomeContinue, nil
}

// execChanRecv handles OpChanRecv (0xD4): r[a..a+width), r[a+width] (ok)
// = recv from r[b]. Generalizes the documented single-slot "r[a], r[a+1]
// (ok)" form to an arbitrary element width read off the channel's own
// ElemMeta, the same way OpMapGet generalizes past a single value slot.
func (ip *Interp) execChanRecv(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	fr := f.CurrentFrame()
	ch := f.Reg(ins.B).AsRef()
	cd, err := ip.GC.Heap().Channel(ch)
	if err != nil {
		return outcomeDead, err
	}
	width := ip.GC.Heap().SlotWidth(cd.ElemMeta)

	out, ok, done, err := ip.Sched.ChanRecv(ip.GC, f.ID, ch, width)
	if err != nil {
		return outcomeDead, err
	}
	if !done {
		fr.PC--
		f.BlockedOn = ch
		return outcomeBlocked, nil
	}
	if ok {
		for i, v := range out {
			f.SetReg(ins.A+uint16(i), v)
		}
	} else {
		for i := 0; i < width; i++ {
			f.SetReg(ins.A+uint16(i), 0)
		}
	}
	f.SetReg(ins.A+uint16(width), boolSlot(ok))
	return outcomeContinue, nil
}

// execChanClose handles OpChanClose (0xD5): close(r[a]).
func (ip *Interp) execChanClose(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	ch := f.Reg(ins.A).AsRef()
	if err := ip.Sched.ChanClose(ip.GC, ch); err != nil {
		return ip.execPanicValue(f, vmError(ip, err.Error()))
	}
	return outcomeContinue, nil
}

// execSelect handles OpSelect (0xD6). Flags = case count N; the N
// instructions immediately following OpSelect in the same function's
// Code are never dispatched as real opcodes — they are a descriptor
// block read directly off fn.Code, one bytecode.Instruction per case:
// A = channel register, B = value register (send) or dest register
// (recv, with the ok bool at dest+width), C = signed displacement to the
// case's body, relative to the instruction after the whole block (same
// convention as OpJump's displacement, just anchored past N extra
// instructions); Flags low 2 bits = SelectCaseKind. No compiler exists in
// this repository to ground this encoding against (parsing/codegen are
// out of scope here), so this contract is this package's own invention,
// documented in DESIGN.md.
func (ip *Interp) execSelect(f *fiber.Fiber, ins bytecode.Instruction) (outcome, error) {
	fr := f.CurrentFrame()
	fn, err := ip.function(fr.FuncID)
	if err != nil {
		return outcomeDead, err
	}
	selectPC := fr.PC - 1
	n := int(ins.Flags)
	blockEnd := fr.PC + n

	cases := make([]fiber.SelectCase, n)
	for i := 0; i < n; i++ {
		d := fn.Code[fr.PC+i]
		kind := fiber.SelectCaseKind(d.Flags & 0x03)
		disp := int(int16(d.C))
		c := fiber.SelectCase{Kind: kind, BodyPC: blockEnd + disp}
		if kind != fiber.SelectDefault {
			ch := f.Reg(d.A).AsRef()
			c.Chan = ch
			if cd, cerr := ip.GC.Heap().Channel(ch); cerr == nil {
				c.Width = ip.GC.Heap().SlotWidth(cd.ElemMeta)
			} else {
				c.Width = 1
			}
			if kind == fiber.SelectSend {
				c.Val = make([]slot.Slot, c.Width)
				copy(c.Val, f.RegN(d.B, c.Width))
			} else {
				c.DestReg = d.B
				c.OKReg = d.B + uint16(c.Width)
			}
		}
		cases[i] = c
	}

	idx, recvVal, recvOK, ok, err := ip.Sched.TrySelect(ip.GC, f.ID, cases)
	if err != nil {
		return ip.execPanicValue(f, vmError(ip, err.Error()))
	}
	if !ok {
		ip.Sched.ParkSelect(f.ID, cases)
		fr.PC = selectPC
		f.BlockedOn = 0
		return outcomeBlocked, nil
	}
	ip.Sched.UnparkSelect(f.ID, cases)

	fired := cases[idx]
	if fired.Kind == fiber.SelectRecv {
		if recvOK {
			for i, v := range recvVal {
				f.SetReg(fired.DestReg+uint16(i), v)
			}
		} else {
			for i := 0; i < fired.Width; i++ {
				f.SetReg(fired.DestReg+uint16(i), 0)
			}
		}
		f.SetReg(fired.OKReg, boolSlot(recvOK))
	}
	fr.PC = fired.BodyPC
	return outcomeContinue, nil
}
