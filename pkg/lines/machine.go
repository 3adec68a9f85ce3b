//go:build tinygo

package lines

import "machine"

// MachineDriver drives the debug connector from MCU GPIOs.
type MachineDriver struct {
	pins   [NumPins]machine.Pin
	output [NumPins]bool
	// buffer is the level shifter output enable, machine.NoPin if absent.
	buffer machine.Pin
}

// PinMap assigns a GPIO to every signal. Unused signals take machine.NoPin.
type PinMap struct {
	TCK, TMS, TDI, TDO, NTRST, NReset machine.Pin
	BufferEnable                      machine.Pin
}

// NewMachineDriver returns a driver with every line configured as input.
func NewMachineDriver(m PinMap) *MachineDriver {
	d := &MachineDriver{buffer: m.BufferEnable}
	d.pins[PinTCK] = m.TCK
	d.pins[PinTMS] = m.TMS
	d.pins[PinTDI] = m.TDI
	d.pins[PinTDO] = m.TDO
	d.pins[PinNTRST] = m.NTRST
	d.pins[PinNReset] = m.NReset
	for p := range d.pins {
		if d.pins[p] != machine.NoPin {
			d.pins[p].Configure(machine.PinConfig{Mode: machine.PinInputPullup})
		}
	}
	if d.buffer != machine.NoPin {
		d.buffer.Configure(machine.PinConfig{Mode: machine.PinOutput})
		d.buffer.Low()
	}
	return d
}

// GPIO returns the MCU pin behind p.
func (d *MachineDriver) GPIO(p Pin) machine.Pin {
	if !p.Valid() {
		return machine.NoPin
	}
	return d.pins[p]
}

func (d *MachineDriver) Enable() {
	if d.buffer != machine.NoPin {
		d.buffer.High()
	}
}

func (d *MachineDriver) Disable() {
	if d.buffer != machine.NoPin {
		d.buffer.Low()
	}
}

func (d *MachineDriver) Set(p Pin, level bool) {
	if !p.Valid() || d.pins[p] == machine.NoPin {
		return
	}
	d.pins[p].Set(level)
}

func (d *MachineDriver) Get(p Pin) bool {
	if !p.Valid() || d.pins[p] == machine.NoPin {
		return true
	}
	return d.pins[p].Get()
}

func (d *MachineDriver) SetOutput(p Pin, output bool) {
	if !p.Valid() || d.pins[p] == machine.NoPin || d.output[p] == output {
		return
	}
	d.output[p] = output
	if output {
		d.pins[p].Configure(machine.PinConfig{Mode: machine.PinOutput})
		return
	}
	d.pins[p].Configure(machine.PinConfig{Mode: machine.PinInputPullup})
}
