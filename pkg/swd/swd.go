// Package swd implements Serial Wire Debug packets on top of the sequence
// engine: raw sequences, SWJ mode-switch sequences and register transfers
// with parity and turnaround handling.
package swd

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/dp"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/seq"
)

// ErrConfig indicates an out-of-range SWD setting.
var ErrConfig = errors.New("swd: invalid configuration")

// Well-known SWJ sequences, LSB first.
const (
	// LineResetBits is the length of a line reset (at least 50 high bits).
	LineResetBits = 51
	// JTAGToSWD switches a SWJ-DP from JTAG to SWD.
	JTAGToSWD = 0xE79E
	// SWDToJTAG switches a SWJ-DP from SWD to JTAG.
	SWDToJTAG = 0xE73C
)

// maxIdleChunk bounds each idle-cycle sequence.
const maxIdleChunk = seq.MaxHardwareBurst

// Config is the SWD state the command processor shares with the engine.
type Config struct {
	// Turnaround is the number of turnaround cycles, 1 to 4.
	Turnaround int
	// DataPhase clocks a dummy data phase after WAIT and FAULT.
	DataPhase  bool
	IdleCycles int
	Timestamp  func() uint32
}

// DefaultConfig is the power-on SWD configuration.
var DefaultConfig = Config{Turnaround: 1}

// Validate checks the turnaround range.
func (c Config) Validate() error {
	if c.Turnaround < 1 || c.Turnaround > 4 {
		return fmt.Errorf("%w: turnaround %d", ErrConfig, c.Turnaround)
	}
	if c.IdleCycles < 0 {
		return fmt.Errorf("%w: idle cycles %d", ErrConfig, c.IdleCycles)
	}
	return nil
}

// SequenceInfo is the DAP_SWD_Sequence info byte.
type SequenceInfo uint8

const (
	SeqCountMask SequenceInfo = 0x3F // bits [5:0], 0 means 64
	SeqInput     SequenceInfo = 0x80
)

// NewSequenceInfo encodes a sequence of 1 to 64 cycles.
func NewSequenceInfo(count int, input bool) SequenceInfo {
	info := SequenceInfo(count) & SeqCountMask
	if input {
		info |= SeqInput
	}
	return info
}

// Count returns the number of SWCLK cycles.
func (i SequenceInfo) Count() int {
	if n := int(i & SeqCountMask); n != 0 {
		return n
	}
	return 64
}

// Input reports whether SWDIO is sampled rather than driven.
func (i SequenceInfo) Input() bool { return i&SeqInput != 0 }

// Parity returns the SWD parity bit for v: set when v has an odd number of
// ones.
func Parity(v uint32) bool {
	return bits.OnesCount32(v)&1 == 1
}

// Engine runs SWD operations on a sequence engine wired for SWD.
type Engine struct {
	eng *seq.Engine
	cfg *Config
	ts  uint32
}

// NewEngine returns an SWD engine. cfg is read on every call.
func NewEngine(eng *seq.Engine, cfg *Config) *Engine {
	if cfg == nil {
		c := DefaultConfig
		cfg = &c
	}
	return &Engine{eng: eng, cfg: cfg}
}

// Timestamp returns the timer value captured by the last transfer that
// requested one.
func (e *Engine) Timestamp() uint32 { return e.ts }

// Sequence runs one DAP_SWD_Sequence entry: count cycles driving swdo, or
// sampling into swdi when the info byte selects input. SWDIO is driven
// again afterwards.
func (e *Engine) Sequence(info SequenceInfo, swdo, swdi []byte) (err error) {
	if !info.Input() {
		return e.eng.Clock(info.Count(), false, false, swdo, nil)
	}
	if len(swdi)*8 < info.Count() {
		return fmt.Errorf("swd sequence %d bits into %d byte input: %w", info.Count(), len(swdi), seq.ErrShortBuffer)
	}
	defer e.reclaimOnError(&err)
	if err := e.eng.Release(); err != nil {
		return err
	}
	if err := e.eng.Clock(info.Count(), false, true, nil, swdi); err != nil {
		return err
	}
	return e.eng.Reclaim()
}

// reclaimOnError drives SWDIO again after a failure while it was released.
// The first error is kept.
func (e *Engine) reclaimOnError(err *error) {
	if *err == nil {
		return
	}
	if rerr := e.eng.Reclaim(); rerr == nil {
		_ = e.eng.Drive(true)
	}
}

// SWJSequence drives count bits of data on SWDIO/TMS, LSB first.
func (e *Engine) SWJSequence(count int, data []byte) error {
	return e.eng.Clock(count, false, false, data, nil)
}

// LineReset drives a line reset followed by two idle cycles.
func (e *Engine) LineReset() error {
	if err := e.eng.Clock(LineResetBits, false, false, []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, nil); err != nil {
		return err
	}
	return e.eng.Clock(2, false, false, []byte{0}, nil)
}

// Transfer performs one register access. For reads *data receives the
// value; for writes *data is sent. Only an OK acknowledge moves data. WAIT,
// FAULT and protocol errors are returned as acks, not errors; a read with
// bad parity returns dp.AckError.
func (e *Engine) Transfer(req dp.Request, data *uint32) (_ dp.Ack, err error) {
	cfg := *e.cfg
	if err := cfg.Validate(); err != nil {
		return 0, err
	}
	trn := cfg.Turnaround
	if data == nil {
		data = new(uint32)
	}

	// Request: start, APnDP, RnW, A2, A3, parity, stop, park.
	header := 0x81 | req.Header()<<1
	if bits.OnesCount8(req.Header())&1 == 1 {
		header |= 1 << 5
	}
	if err := e.eng.Clock(8, false, false, []byte{header}, nil); err != nil {
		return 0, err
	}

	defer e.reclaimOnError(&err)
	if err := e.eng.Release(); err != nil {
		return 0, err
	}
	if err := e.eng.Clock(trn, false, false, nil, nil); err != nil {
		return 0, err
	}
	var ackBits [1]byte
	if err := e.eng.Clock(3, false, true, nil, ackBits[:]); err != nil {
		return 0, err
	}
	ack := dp.Ack(ackBits[0] & 7)

	switch ack {
	case dp.AckOK:
		if req.IsRead() {
			var in [5]byte
			if err := e.eng.Clock(33, false, true, nil, in[:]); err != nil {
				return ack, err
			}
			v := uint32(seq.Uint(in[:], 32))
			if Parity(v) != seq.GetBit(in[:], 32) {
				ack = dp.AckError
			}
			*data = v
			if err := e.turnaroundOut(trn); err != nil {
				return ack, err
			}
		} else {
			if err := e.turnaroundOut(trn); err != nil {
				return ack, err
			}
			var out [5]byte
			seq.PutUint(out[:], uint64(*data), 32)
			seq.SetBit(out[:], 32, Parity(*data))
			if err := e.eng.Clock(33, false, false, out[:], nil); err != nil {
				return ack, err
			}
		}
		if req&dp.Timestamp != 0 && cfg.Timestamp != nil {
			e.ts = cfg.Timestamp()
		}
		if err := e.idle(cfg.IdleCycles); err != nil {
			return ack, err
		}
		return ack, e.eng.Drive(true)

	case dp.AckWait, dp.AckFault:
		if cfg.DataPhase && req.IsRead() {
			if err := e.eng.Clock(33, false, false, nil, nil); err != nil {
				return ack, err
			}
		}
		if err := e.turnaroundOut(trn); err != nil {
			return ack, err
		}
		if cfg.DataPhase && !req.IsRead() {
			if err := e.eng.Drive(false); err != nil {
				return ack, err
			}
			if err := e.eng.Clock(33, false, false, nil, nil); err != nil {
				return ack, err
			}
		}
		return ack, e.eng.Drive(true)

	default:
		// Protocol error: back off a whole data phase to resynchronise.
		if err := e.eng.Clock(trn+33, false, false, nil, nil); err != nil {
			return ack, err
		}
		if err := e.eng.Reclaim(); err != nil {
			return ack, err
		}
		return ack, e.eng.Drive(true)
	}
}

// turnaroundOut clocks the turnaround back to the host and drives SWDIO.
func (e *Engine) turnaroundOut(trn int) error {
	if err := e.eng.Clock(trn, false, false, nil, nil); err != nil {
		return err
	}
	return e.eng.Reclaim()
}

// idle clocks n low cycles in bounded chunks.
func (e *Engine) idle(n int) error {
	if n == 0 {
		return nil
	}
	if err := e.eng.Drive(false); err != nil {
		return err
	}
	for n > 0 {
		k := n
		if k > maxIdleChunk {
			k = maxIdleChunk
		}
		if err := e.eng.Clock(k, false, false, nil, nil); err != nil {
			return err
		}
		n -= k
	}
	return nil
}
