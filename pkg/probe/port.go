// Package probe is the transport selector of a debug probe. A Port owns the
// physical lines, the optional hardware shift engine and the continuation
// state, configures them for JTAG or SWD, and exposes the operations a
// debug command processor calls.
package probe

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/dp"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/jtag"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/lines"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/seq"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/swd"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/tap"
)

var log = logrus.WithField("prefix", "probe")

// ErrNotActive indicates an operation for a transport the port is not
// configured for.
var ErrNotActive = errors.New("probe: transport not active")

// Mode is the active transport.
type Mode uint8

const (
	ModeDisabled Mode = iota
	ModeJTAG
	ModeSWD
)

func (m Mode) String() string {
	switch m {
	case ModeJTAG:
		return "jtag"
	case ModeSWD:
		return "swd"
	default:
		return "off"
	}
}

func (m Mode) owner() seq.Owner {
	switch m {
	case ModeJTAG:
		return seq.OwnerJTAG
	case ModeSWD:
		return seq.OwnerSWD
	default:
		return seq.OwnerNone
	}
}

// Hardware is what the port drives.
type Hardware struct {
	Lines lines.Driver
	// Accelerator is the hardware shift engine, nil to bit-bang.
	Accelerator seq.Accelerator
	// CPUHz sizes the software delay loop; 0 runs undelayed.
	CPUHz uint32
	// PollLimit bounds each wait for the accelerator; 0 selects
	// seq.DefaultPollLimit.
	PollLimit int
	// Timestamp samples a free-running timer for transfers that request it.
	Timestamp func() uint32
}

// Port is a debug port. It is not safe for concurrent use.
type Port struct {
	// Settings is read on every operation.
	Settings *Settings

	hw   Hardware
	pins lines.Pins
	mode Mode
	cont seq.Continuation

	wiring  seq.Wiring
	backend seq.Backend
	eng     *seq.Engine

	jcfg jtag.Config
	scfg swd.Config
	jtag *jtag.Controller
	swd  *swd.Engine
}

// NewPort returns a disabled port. A nil settings pointer uses the defaults.
func NewPort(hw Hardware, s *Settings) *Port {
	if s == nil {
		d := DefaultSettings()
		s = &d
	}
	if hw.PollLimit == 0 {
		hw.PollLimit = seq.DefaultPollLimit
	}
	p := &Port{Settings: s, hw: hw, pins: lines.NewPins(hw.Lines)}
	p.cont.Reset()
	return p
}

// Mode returns the active transport.
func (p *Port) Mode() Mode { return p.mode }

// Pins returns the pin-level accessors. They bypass the sequence engine.
func (p *Port) Pins() lines.Pins { return p.pins }

// Continuation returns the idle levels shared by both transports.
func (p *Port) Continuation() seq.Continuation { return p.cont }

// JTAG returns the active JTAG controller, or nil.
func (p *Port) JTAG() *jtag.Controller { return p.jtag }

// SWD returns the active SWD engine, or nil.
func (p *Port) SWD() *swd.Engine { return p.swd }

// JTAGSetup configures the port for JTAG. A hardware shift engine owned by
// another function makes setup fail with seq.ErrBusy and leaves the port
// off.
func (p *Port) JTAGSetup() error {
	if err := p.setup(ModeJTAG, seq.JTAGWiring); err != nil {
		return err
	}
	p.jtag = jtag.NewController(p.eng, &p.jcfg)
	return nil
}

// SWDSetup configures the port for SWD.
func (p *Port) SWDSetup() error {
	if err := p.setup(ModeSWD, seq.SWDWiring); err != nil {
		return err
	}
	p.swd = swd.NewEngine(p.eng, &p.scfg)
	return nil
}

func (p *Port) setup(mode Mode, w seq.Wiring) error {
	p.Off()
	p.cont.Reset()

	if mode == ModeJTAG {
		lines.ConfigureJTAG(p.hw.Lines)
	} else {
		lines.ConfigureSWD(p.hw.Lines)
	}

	timing := seq.NewClockTiming(p.Settings.ClockHz, p.hw.CPUHz)
	var backend seq.Backend
	if acc := p.hw.Accelerator; acc != nil {
		if err := acc.Claim(mode.owner()); err != nil {
			log.WithError(err).Warnf("%s setup: shift engine unavailable", mode)
			lines.Release(p.hw.Lines)
			return fmt.Errorf("probe: %s setup: %w", mode, err)
		}
		if err := acc.Configure(w, timing); err != nil {
			acc.Release(mode.owner())
			lines.Release(p.hw.Lines)
			return fmt.Errorf("probe: %s setup: %w", mode, err)
		}
		backend = seq.NewHardwareBackend(acc, p.hw.PollLimit)
	} else {
		backend = seq.NewSoftwareBackend(p.hw.Lines, w, timing)
	}

	p.mode = mode
	p.wiring = w
	p.backend = backend
	p.eng = seq.NewEngine(backend, &p.cont)
	p.apply()
	log.WithFields(logrus.Fields{
		"mode":  mode,
		"clock": timing.RequestedHz,
		"fast":  timing.Fast,
	}).Debug("port configured")
	return nil
}

// Off releases the shift engine and every line. It only touches directions
// and levels, so it is safe to call in any state and any number of times.
func (p *Port) Off() {
	if acc := p.hw.Accelerator; acc != nil && p.mode != ModeDisabled {
		acc.Release(p.mode.owner())
	}
	lines.Release(p.hw.Lines)
	if p.mode != ModeDisabled {
		log.WithField("mode", p.mode).Debug("port off")
	}
	p.mode = ModeDisabled
	p.backend, p.eng = nil, nil
	p.jtag, p.swd = nil, nil
}

// SetClock changes the clock rate, taking effect immediately on an active
// transport.
func (p *Port) SetClock(hz uint32) error {
	p.Settings.ClockHz = hz
	if p.mode == ModeDisabled {
		return nil
	}
	timing := seq.NewClockTiming(hz, p.hw.CPUHz)
	switch b := p.backend.(type) {
	case *seq.SoftwareBackend:
		b.SetTiming(timing)
	case *seq.HardwareBackend:
		if err := p.hw.Accelerator.Configure(p.wiring, timing); err != nil {
			return fmt.Errorf("probe: set clock %d Hz: %w", hz, err)
		}
	}
	return nil
}

// apply copies the shared settings into the transport configurations.
func (p *Port) apply() {
	s := p.Settings
	p.jcfg = jtag.Config{Chain: s.Chain, IdleCycles: s.IdleCycles, Timestamp: p.hw.Timestamp}
	p.scfg = swd.Config{
		Turnaround: s.Turnaround,
		DataPhase:  s.DataPhase,
		IdleCycles: s.IdleCycles,
		Timestamp:  p.hw.Timestamp,
	}
}

func (p *Port) activeJTAG() (*jtag.Controller, error) {
	if p.jtag == nil {
		return nil, fmt.Errorf("%w: jtag (port %s)", ErrNotActive, p.mode)
	}
	p.apply()
	return p.jtag, nil
}

func (p *Port) activeSWD() (*swd.Engine, error) {
	if p.swd == nil {
		return nil, fmt.Errorf("%w: swd (port %s)", ErrNotActive, p.mode)
	}
	p.apply()
	return p.swd, nil
}

// JTAGSequence runs one DAP_JTAG_Sequence entry.
func (p *Port) JTAGSequence(info jtag.SequenceInfo, tdi, tdo []byte) error {
	c, err := p.activeJTAG()
	if err != nil {
		return err
	}
	return c.Sequence(info, tdi, tdo)
}

// SWDSequence runs one DAP_SWD_Sequence entry.
func (p *Port) SWDSequence(info swd.SequenceInfo, swdo, swdi []byte) error {
	e, err := p.activeSWD()
	if err != nil {
		return err
	}
	return e.Sequence(info, swdo, swdi)
}

// SWJSequence drives count bits of data on SWDIO/TMS with the active
// transport. With the port off it falls back to bit-banging TCK and TMS
// directly, which is best effort only.
func (p *Port) SWJSequence(count int, data []byte) error {
	switch p.mode {
	case ModeJTAG:
		return p.jtag.TMSSequence(count, data)
	case ModeSWD:
		return p.swd.SWJSequence(count, data)
	}

	log.WithField("bits", count).Warn("swj sequence with port off, driving lines directly")
	d := p.hw.Lines
	for _, pin := range []lines.Pin{lines.PinTCK, lines.PinTMS} {
		d.SetOutput(pin, true)
	}
	w := seq.Wiring{
		Clock:      lines.PinTCK,
		DataOut:    lines.PinTMS,
		DataIn:     lines.PinTDO,
		ModeSelect: lines.PinNone,
	}
	b := seq.NewSoftwareBackend(d, w, seq.NewClockTiming(p.Settings.ClockHz, p.hw.CPUHz))
	return seq.NewEngine(b, &p.cont).Clock(count, false, false, data, nil)
}

// JTAGReset forces Test-Logic-Reset and settles in Run-Test/Idle.
func (p *Port) JTAGReset() error {
	c, err := p.activeJTAG()
	if err != nil {
		return err
	}
	return c.Reset()
}

// JTAGGoTo walks the TAP to s.
func (p *Port) JTAGGoTo(s tap.State) error {
	c, err := p.activeJTAG()
	if err != nil {
		return err
	}
	return c.GoTo(s)
}

// JTAGShiftDR scans count bits through the addressed device's data register.
func (p *Port) JTAGShiftDR(count int, data []byte) ([]byte, error) {
	c, err := p.activeJTAG()
	if err != nil {
		return nil, err
	}
	return c.ShiftDR(count, data)
}

// JTAGReadIDCode reads the IDCODE of the addressed device.
func (p *Port) JTAGReadIDCode() (uint32, error) {
	c, err := p.activeJTAG()
	if err != nil {
		return 0, err
	}
	return c.ReadIDCode()
}

// JTAGIR loads ir into the addressed device and BYPASS into the others. It
// returns the instruction captured from the addressed device.
func (p *Port) JTAGIR(ir uint32) (uint32, error) {
	c, err := p.activeJTAG()
	if err != nil {
		return 0, err
	}
	return c.IR(ir)
}

// JTAGTransfer performs one DPACC or APACC access.
func (p *Port) JTAGTransfer(req dp.Request, data *uint32) (dp.Ack, error) {
	c, err := p.activeJTAG()
	if err != nil {
		return 0, err
	}
	return c.Transfer(req, data, true)
}

// JTAGWriteAbort writes the ABORT register.
func (p *Port) JTAGWriteAbort(value uint32) error {
	c, err := p.activeJTAG()
	if err != nil {
		return err
	}
	return c.WriteAbort(value)
}

// SWDLineReset resets the SWD interface of the target.
func (p *Port) SWDLineReset() error {
	e, err := p.activeSWD()
	if err != nil {
		return err
	}
	return e.LineReset()
}

// SWDTransfer performs one SWD register access.
func (p *Port) SWDTransfer(req dp.Request, data *uint32) (dp.Ack, error) {
	e, err := p.activeSWD()
	if err != nil {
		return 0, err
	}
	return e.Transfer(req, data)
}

// Timestamp returns the timer value captured by the last transfer that
// requested one.
func (p *Port) Timestamp() uint32 {
	switch {
	case p.jtag != nil:
		return p.jtag.Timestamp()
	case p.swd != nil:
		return p.swd.Timestamp()
	}
	return 0
}
