package sim

import (
	"errors"
	"fmt"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/lines"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/seq"
)

var errNotConfigured = errors.New("sim: accelerator not configured")

// Accelerator is a seq.Accelerator that runs bursts on a SimDriver. It
// enforces the hardware burst limit and reports completion after Latency
// polls, so callers exercise the same chunking and polling as on hardware.
type Accelerator struct {
	seq.Ownership

	d       *lines.SimDriver
	backend *seq.SoftwareBackend
	// Latency is the number of Ready polls before a burst completes.
	Latency int

	pending int
	in      []byte

	// Bursts counts completed bursts, LargestBurst is the longest seen.
	Bursts       int
	LargestBurst int
	Wiring       seq.Wiring
	Timing       seq.ClockTiming
}

// NewAccelerator returns an accelerator clocking d.
func NewAccelerator(d *lines.SimDriver) *Accelerator {
	return &Accelerator{d: d}
}

func (a *Accelerator) Configure(w seq.Wiring, t seq.ClockTiming) error {
	a.Wiring, a.Timing = w, t
	a.backend = seq.NewSoftwareBackend(a.d, w, t)
	return nil
}

func (a *Accelerator) Start(b *seq.Burst) error {
	if a.backend == nil {
		return errNotConfigured
	}
	if b.Bits > seq.MaxHardwareBurst {
		return fmt.Errorf("sim: burst of %d bits exceeds %d", b.Bits, seq.MaxHardwareBurst)
	}
	a.in = a.in[:0]
	if b.Capture {
		a.in = append(a.in, make([]byte, len(b.In))...)
	}
	shadow := *b
	shadow.In = a.in
	if err := a.backend.Shift(&shadow); err != nil {
		return err
	}
	a.pending = a.Latency
	a.Bursts++
	if b.Bits > a.LargestBurst {
		a.LargestBurst = b.Bits
	}
	return nil
}

func (a *Accelerator) Ready() bool {
	if a.pending > 0 {
		a.pending--
		return false
	}
	return true
}

func (a *Accelerator) Finish(b *seq.Burst) error {
	if b.Capture {
		copy(b.In, a.in)
	}
	return nil
}

func (a *Accelerator) SetDataLevel(level bool) error {
	if a.backend == nil {
		return errNotConfigured
	}
	return a.backend.SetDataLevel(level)
}

func (a *Accelerator) SetDataDirection(output bool) error {
	if a.backend == nil {
		return errNotConfigured
	}
	return a.backend.SetDataDirection(output)
}
