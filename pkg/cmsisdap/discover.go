package cmsisdap

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"
)

// InterfaceKind categorizes probe families.
type InterfaceKind string

const (
	KindCMSISDAP InterfaceKind = "cmsis-dap"
	KindSim      InterfaceKind = "simulator"
)

// InterfaceInfo describes a probe the CLI can open.
type InterfaceInfo struct {
	Kind        InterfaceKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Serial      string
}

// Label returns a user-facing description.
func (i InterfaceInfo) Label() string {
	if i.Description != "" {
		return i.Description
	}
	return fmt.Sprintf("%s (%04X:%04X)", i.Kind, i.VendorID, i.ProductID)
}

type knownProbe struct {
	vid, pid    uint16
	description string
}

var knownProbes = []knownProbe{
	{VendorIDRaspberryPi, ProductIDDebugProbe, "Raspberry Pi Debug Probe"},
	{0x0D28, 0x0204, "DAPLink CMSIS-DAP"},
	{0x1366, 0x0101, "SEGGER J-Link CMSIS-DAP"},
	{0x03EB, 0x2175, "Microchip EDBG CMSIS-DAP"},
}

func classify(desc *gousb.DeviceDesc) (InterfaceInfo, bool) {
	for _, k := range knownProbes {
		if uint16(desc.Vendor) == k.vid && uint16(desc.Product) == k.pid {
			return InterfaceInfo{
				Kind:        KindCMSISDAP,
				Description: k.description,
				VendorID:    k.vid,
				ProductID:   k.pid,
			}, true
		}
	}
	return InterfaceInfo{}, false
}

// DiscoverInterfaces lists attached CMSIS-DAP probes with known VID:PID
// pairs, followed by the simulator, which is always available.
func DiscoverInterfaces(ctx context.Context) ([]InterfaceInfo, error) {
	usb := gousb.NewContext()
	defer usb.Close()

	var found []InterfaceInfo
	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if ctx.Err() != nil {
			return false
		}
		_, ok := classify(desc)
		return ok
	})
	for _, dev := range devs {
		info, _ := classify(dev.Desc)
		if serial, serr := dev.SerialNumber(); serr == nil {
			info.Serial = serial
		}
		found = append(found, info)
		dev.Close()
	}
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		log.WithError(err).Debug("usb enumeration incomplete")
		return found, err
	}

	found = append(found, InterfaceInfo{
		Kind:        KindSim,
		Description: "Simulator (no hardware)",
	})
	return found, ctx.Err()
}
