package idcode

import "fmt"

// vendor is one JEP106 entry: full name and short name.
type vendor struct{ name, abbr string }

// jep106 is indexed by continuation bank, then by the 7-bit identity code.
// Bank 0 holds the original single-byte assignments.
var jep106 = map[uint8]map[uint8]vendor{
	0: {
		0x01: {"AMD", "AMD"},
		0x04: {"Fujitsu", "Fujitsu"},
		0x07: {"Hitachi", "Hitachi"},
		0x09: {"Intel", "Intel"},
		0x0E: {"Freescale (Motorola)", "Freescale"},
		0x0F: {"National", "National"},
		0x10: {"NEC", "NEC"},
		0x15: {"NXP (Philips)", "NXP"},
		0x17: {"Texas Instruments", "TI"},
		0x18: {"Toshiba", "Toshiba"},
		0x1C: {"Mitsubishi", "Mitsubishi"},
		0x1F: {"Atmel", "Atmel"},
		0x20: {"STMicroelectronics", "STM"},
		0x25: {"Analog Devices", "ADI"},
		0x29: {"Microchip (SST)", "Microchip"},
		0x2E: {"Cypress", "Cypress"},
		0x31: {"Xilinx", "Xilinx"},
		0x3D: {"Altera", "Altera"},
		0x41: {"Lattice", "Lattice"},
		0x49: {"Infineon", "Infineon"},
		0x6E: {"Microchip", "Microchip"},
	},
	1: {
		0x15: {"Silicon Labs", "SiLabs"},
		0x37: {"Ambiq Micro", "Ambiq"},
		0x3B: {"Nordic Semiconductor", "Nordic"},
	},
	2: {
		0x0E: {"Renesas", "Renesas"},
	},
	4: {
		0x3B: {"Arm Ltd", "Arm"},
	},
	9: {
		0x13: {"Raspberry Pi", "RPi"},
	},
	12: {
		0x56: {"Espressif", "Espressif"},
	},
}

// LookupManufacturer resolves an 11-bit designer field: continuation count in
// bits 10:7, identity in bits 6:0. Unknown codes yield a placeholder and false.
func LookupManufacturer(code uint16) (Manufacturer, bool) {
	bank, id := uint8(code>>7)&0xF, uint8(code)&0x7F
	if v, ok := jep106[bank][id]; ok {
		return Manufacturer{Code: code, Name: v.name, Abbreviation: v.abbr}, true
	}
	return Manufacturer{
		Code:         code,
		Name:         fmt.Sprintf("Unknown (bank %d, 0x%02X)", bank, id),
		Abbreviation: "Unknown",
	}, false
}
