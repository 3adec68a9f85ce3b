package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/cmsisdap"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/lines"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/probe"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/sim"
)

var log = logrus.WithField("prefix", "otprobe")

// Simulated target identities.
const (
	simDPIDR  = 0x2BA01477
	simIDCODE = 0x4BA00477
)

var (
	probeVID   uint16
	probePID   uint16
	simIDCodes []string // For simulator: IDCODEs of the chain, nearest TDO first
)

func init() {
	rootCmd.PersistentFlags().Uint16Var(&probeVID, "vid", cmsisdap.VendorIDRaspberryPi, "cmsisdap: probe USB vendor ID")
	rootCmd.PersistentFlags().Uint16Var(&probePID, "pid", cmsisdap.ProductIDDebugProbe, "cmsisdap: probe USB product ID")
	rootCmd.PersistentFlags().StringSliceVar(&simIDCodes, "sim-ids", nil,
		"simulator: JTAG-DP IDCODEs on the chain (hex, e.g., 0x4BA00477,0x4BA00477)")
}

// session is an open port and the probe behind it.
type session struct {
	port *probe.Port
	dev  *cmsisdap.Device
	ld   *cmsisdap.LineDriver
}

// Close turns the port off and releases the probe.
func (s *session) Close() {
	s.port.Off()
	if s.ld != nil && s.ld.Err() != nil {
		log.WithError(s.ld.Err()).Warn("probe line commands failed")
	}
	if s.dev != nil {
		if err := s.dev.Close(); err != nil {
			log.WithError(err).Debug("close probe")
		}
	}
}

func loadSettings(cmd *cobra.Command) (*probe.Settings, error) {
	s, err := probe.LoadSettings(configPath)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("clock") {
		s.ClockHz = clockHz
	}
	return s, nil
}

// openSession creates the port for the selected adapter type
func openSession(cmd *cobra.Command) (*session, error) {
	settings, err := loadSettings(cmd)
	if err != nil {
		return nil, err
	}

	switch adapter {
	case "simulator", "sim":
		ids := []uint32{simIDCODE}
		if len(simIDCodes) > 0 {
			if ids, err = parseIDCodes(simIDCodes); err != nil {
				return nil, fmt.Errorf("invalid --sim-ids: %w", err)
			}
			settings.Chain.IRLength = make([]int, len(ids))
			for i := range ids {
				settings.Chain.IRLength[i] = 4
			}
		}
		devs := make([]*sim.JTAGDevice, len(ids))
		for i, id := range ids {
			devs[i] = sim.NewJTAGDP(id)
		}

		d := lines.NewSimDriver()
		d.Attach(sim.NewJTAGChain(devs...))
		d.Attach(sim.NewSWDTarget(simDPIDR))
		log.WithField("devices", len(ids)).Debug("using simulator")

		hw := probe.Hardware{Lines: d, Accelerator: sim.NewAccelerator(d)}
		return &session{port: probe.NewPort(hw, settings)}, nil

	case "cmsisdap", "cmsis", "dap":
		dev, err := cmsisdap.OpenUSB(probeVID, probePID)
		if err != nil {
			return nil, fmt.Errorf("failed to open CMSIS-DAP probe: %w", err)
		}
		info := dev.Info()
		log.WithFields(logrus.Fields{
			"product":  info.Product,
			"serial":   info.Serial,
			"firmware": info.Firmware,
		}).Debug("connected to probe")

		ld := cmsisdap.NewLineDriver(dev)
		hw := probe.Hardware{Lines: ld, Accelerator: cmsisdap.NewAccelerator(dev)}
		return &session{port: probe.NewPort(hw, settings), dev: dev, ld: ld}, nil
	}
	return nil, fmt.Errorf("unknown adapter type: %s (supported: sim, cmsisdap)", adapter)
}

// parseIDCodes parses hex IDCODE strings into uint32 values
func parseIDCodes(codes []string) ([]uint32, error) {
	ids := make([]uint32, len(codes))
	for i, code := range codes {
		s := strings.TrimPrefix(strings.ToLower(code), "0x")
		id, err := strconv.ParseUint(s, 16, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid IDCODE format: %s (expected hex like 0x12345678)", code)
		}
		ids[i] = uint32(id)
	}
	return ids, nil
}
