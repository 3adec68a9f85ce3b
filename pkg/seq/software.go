package seq

import "github.com/OpenTraceLab/OpenTraceProbe/pkg/lines"

// SoftwareBackend bit-bangs the wire through a line driver, one bit at a
// time. Each bit drives data, pulls the clock low, waits, samples, raises
// the clock and waits again, so the target samples on the rising edge.
type SoftwareBackend struct {
	d      lines.Driver
	w      Wiring
	timing ClockTiming
}

// NewSoftwareBackend returns a bit-banging backend on d.
func NewSoftwareBackend(d lines.Driver, w Wiring, t ClockTiming) *SoftwareBackend {
	return &SoftwareBackend{d: d, w: w, timing: t}
}

// SetTiming changes the clock rate for subsequent bursts.
func (s *SoftwareBackend) SetTiming(t ClockTiming) { s.timing = t }

// Timing returns the active clock timing.
func (s *SoftwareBackend) Timing() ClockTiming { return s.timing }

func (s *SoftwareBackend) MaxBurst() int { return 0 }

func (s *SoftwareBackend) Shift(b *Burst) error {
	if s.w.ModeSelect != lines.PinNone {
		s.d.Set(s.w.ModeSelect, b.ModeSelect)
	}
	for i := 0; i < b.Bits; i++ {
		s.d.Set(s.w.DataOut, GetBit(b.Out, i))
		s.d.Set(s.w.Clock, false)
		s.delay()
		if b.Capture {
			SetBit(b.In, i, s.d.Get(s.w.DataIn))
		}
		s.d.Set(s.w.Clock, true)
		s.delay()
	}
	return nil
}

func (s *SoftwareBackend) SetDataLevel(level bool) error {
	s.d.Set(s.w.DataOut, level)
	return nil
}

func (s *SoftwareBackend) SetDataDirection(output bool) error {
	s.d.SetOutput(s.w.DataOut, output)
	return nil
}

// spin keeps the delay loop from being optimised away.
var spin uint32

func (s *SoftwareBackend) delay() {
	if s.timing.Fast {
		return
	}
	for n := s.timing.DelayTicks; n > 0; n-- {
		spin++
	}
}
