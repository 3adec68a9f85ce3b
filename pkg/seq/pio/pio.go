//go:build rp2040

// Package pio runs shift bursts on an RP2040 PIO state machine.
package pio

// Command words, two per 32-bit slice of a burst:
//
//	word 0: bit count - 1
//	word 1: output bits, LSB first
//
// The state machine drives one bit per loop, drops the clock, samples the
// data-in pin, raises the clock and pushes the sampled word when done. The
// mode-select line stays a CPU GPIO because it is held for a whole burst.

import (
	"fmt"
	"machine"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/lines"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/seq"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// cyclesPerBit is the number of state machine cycles the bit loop takes.
const cyclesPerBit = 4

const shiftOrigin = 0

func buildShiftProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// .wrap_target
		asm.Pull(false, true).Encode(),           // 0: pull block (count-1)
		asm.Out(rp2pio.OutDestX, 32).Encode(),    // 1: out x, 32
		asm.Pull(false, true).Encode(),           // 2: pull block (data)
		asm.Out(rp2pio.OutDestPins, 1).Encode(),  // 3: bit: out pins, 1
		asm.Set(rp2pio.SetDestPins, 0).Encode(),  // 4: set pins, 0 (clock low)
		asm.In(rp2pio.InSrcPins, 1).Encode(),     // 5: in pins, 1
		asm.Set(rp2pio.SetDestPins, 1).Encode(),  // 6: set pins, 1 (clock high)
		asm.Jmp(3, rp2pio.JmpXNZeroDec).Encode(), // 7: jmp x--, bit
		asm.Push(false, true).Encode(),           // 8: push block
		// .wrap
	}
}

// Accelerator is a seq.Accelerator on one PIO state machine.
type Accelerator struct {
	seq.Ownership

	pio    *rp2pio.PIO
	sm     rp2pio.StateMachine
	gpio   func(lines.Pin) machine.Pin
	offset uint8
	loaded bool

	clock, dataOut, dataIn, modeSelect machine.Pin

	words   []uint32
	pending int
	// sizes holds the bit count of each queued slice.
	sizes [2]int
}

// New returns an accelerator on state machine smNum of PIO0 or PIO1. gpio
// maps connector signals to MCU pins, usually lines.MachineDriver.GPIO.
func New(pioNum, smNum uint8, gpio func(lines.Pin) machine.Pin) *Accelerator {
	hw := rp2pio.PIO0
	if pioNum != 0 {
		hw = rp2pio.PIO1
	}
	return &Accelerator{
		pio:   hw,
		sm:    hw.StateMachine(smNum),
		gpio:  gpio,
		words: make([]uint32, 0, 2),
	}
}

func (a *Accelerator) Claim(o seq.Owner) error {
	if err := a.Ownership.Claim(o); err != nil {
		return err
	}
	if !a.loaded {
		a.sm.TryClaim()
		offset, err := a.pio.AddProgram(buildShiftProgram(), shiftOrigin)
		if err != nil {
			a.Ownership.Release(o)
			return fmt.Errorf("load shift program: %w", err)
		}
		a.offset = offset
		a.loaded = true
	}
	return nil
}

func (a *Accelerator) Release(o seq.Owner) {
	if a.Owner() != o {
		return
	}
	a.sm.SetEnabled(false)
	a.sm.ClearFIFOs()
	a.Ownership.Release(o)
}

func (a *Accelerator) Configure(w seq.Wiring, t seq.ClockTiming) error {
	a.clock = a.gpio(w.Clock)
	a.dataOut = a.gpio(w.DataOut)
	a.dataIn = a.gpio(w.DataIn)
	a.modeSelect = machine.NoPin
	if w.ModeSelect != lines.PinNone {
		a.modeSelect = a.gpio(w.ModeSelect)
	}

	a.clock.Configure(machine.PinConfig{Mode: a.pio.PinMode()})
	a.dataOut.Configure(machine.PinConfig{Mode: a.pio.PinMode()})
	if a.dataIn != a.dataOut {
		a.dataIn.Configure(machine.PinConfig{Mode: a.pio.PinMode()})
	}

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(a.clock, 1)
	cfg.SetOutPins(a.dataOut, 1)
	cfg.SetInPins(a.dataIn)
	cfg.SetOutShift(true, false, 32)
	cfg.SetInShift(true, false, 32)
	cfg.SetWrap(a.offset+uint8(len(buildShiftProgram()))-1, a.offset)
	whole, frac := t.Divisor(cyclesPerBit)
	cfg.SetClkDivIntFrac(whole, frac)

	a.sm.SetEnabled(false)
	a.sm.Init(a.offset, cfg)
	a.sm.SetPindirsConsecutive(a.clock, 1, true)
	a.sm.SetPindirsConsecutive(a.dataOut, 1, true)
	if a.dataIn != a.dataOut {
		a.sm.SetPindirsConsecutive(a.dataIn, 1, false)
	}
	a.sm.SetPinsConsecutive(a.clock, 1, true)
	a.sm.SetPinsConsecutive(a.dataOut, 1, true)
	a.sm.SetEnabled(true)
	return nil
}

func (a *Accelerator) Start(b *seq.Burst) error {
	if b.Bits > seq.MaxHardwareBurst {
		return fmt.Errorf("pio: burst of %d bits", b.Bits)
	}
	if a.modeSelect != machine.NoPin {
		a.modeSelect.Set(b.ModeSelect)
	}
	a.words = a.words[:0]
	a.pending = 0
	for off := 0; off < b.Bits; off += 32 {
		n := b.Bits - off
		if n > 32 {
			n = 32
		}
		var data uint32
		for i := 0; i < n; i++ {
			if seq.GetBit(b.Out, off+i) {
				data |= 1 << uint(i)
			}
		}
		for a.sm.IsTxFIFOFull() {
		}
		a.sm.TxPut(uint32(n - 1))
		for a.sm.IsTxFIFOFull() {
		}
		a.sm.TxPut(data)
		a.sizes[a.pending] = n
		a.pending++
	}
	return nil
}

func (a *Accelerator) Ready() bool {
	for len(a.words) < a.pending && !a.sm.IsRxFIFOEmpty() {
		a.words = append(a.words, a.sm.RxGet())
	}
	return len(a.words) == a.pending
}

func (a *Accelerator) Finish(b *seq.Burst) error {
	if !b.Capture {
		return nil
	}
	off := 0
	for i, w := range a.words {
		n := a.sizes[i]
		// Samples shift in from the top of the ISR.
		w >>= uint(32 - n)
		for j := 0; j < n; j++ {
			seq.SetBit(b.In, off+j, w&(1<<uint(j)) != 0)
		}
		off += n
	}
	return nil
}

func (a *Accelerator) SetDataLevel(level bool) error {
	a.sm.SetPinsConsecutive(a.dataOut, 1, level)
	return nil
}

func (a *Accelerator) SetDataDirection(output bool) error {
	a.sm.SetPindirsConsecutive(a.dataOut, 1, output)
	return nil
}
