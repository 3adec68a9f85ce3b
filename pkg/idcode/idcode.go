// Package idcode decodes IEEE 1149.1 IDCODE values and the identical layout
// used by Arm debug port identification registers.
package idcode

import "fmt"

// IDCode is a parsed 32-bit identification value.
type IDCode struct {
	Raw              uint32
	Version          uint8  // [31:28]
	PartNumber       uint16 // [27:12]
	ManufacturerCode uint16 // [11:1] JEP106
	HasIDCode        bool   // bit 0 == 1
}

// Manufacturer is a JEP106 entry.
type Manufacturer struct {
	Code         uint16
	Name         string
	Abbreviation string
	Country      string
}

// Parse splits a raw IDCODE into its fields.
func Parse(raw uint32) IDCode {
	return IDCode{
		Raw:              raw,
		Version:          uint8((raw >> 28) & 0xF),
		PartNumber:       uint16((raw >> 12) & 0xFFFF),
		ManufacturerCode: uint16((raw >> 1) & 0x7FF),
		HasIDCode:        raw&1 == 1,
	}
}

// Valid reports whether the value looks like a real IDCODE rather than an
// open (all ones) or shorted (all zeros) scan path.
func (id IDCode) Valid() bool {
	return id.HasIDCode && id.Raw != 0xFFFFFFFF
}

// Manufacturer resolves the JEP106 designer.
func (id IDCode) Manufacturer() Manufacturer {
	m, _ := LookupManufacturer(id.ManufacturerCode)
	return m
}

func (id IDCode) String() string {
	s := fmt.Sprintf("0x%08X (mfg: %s, part: 0x%04X, ver: %d)",
		id.Raw, id.Manufacturer().Name, id.PartNumber, id.Version)
	if name, ok := DebugPort(id.Raw); ok {
		s += " " + name
	}
	return s
}

// debugPorts lists the identification values of common Arm debug ports,
// keyed with the version field masked off.
var debugPorts = map[uint32]string{
	0x0BA00477: "Arm JTAG-DP (Cortex-M3/M4)",
	0x0BA01477: "Arm SW-DP v1 (Cortex-M3/M4)",
	0x0BA02477: "Arm SW-DP v2 (Cortex-M7)",
	0x0BB11477: "Arm SW-DP (Cortex-M0)",
	0x0BC11477: "Arm SW-DP (Cortex-M0)",
	0x0BC12477: "Arm SW-DP v2 multidrop (Cortex-M0+)",
	0x0BA04477: "Arm SW-DP (Cortex-M33)",
	0x0BA05477: "Arm SW-DP (Cortex-M55)",
}

// DebugPort names a known Arm debug port identification value.
func DebugPort(raw uint32) (string, bool) {
	name, ok := debugPorts[raw&0x0FFFFFFF]
	return name, ok
}
