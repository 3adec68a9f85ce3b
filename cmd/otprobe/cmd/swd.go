package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/dp"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/idcode"
	"github.com/OpenTraceLab/OpenTraceProbe/pkg/swd"
)

// Debug port registers read by the swd command.
const (
	regDPIDR    = 0x0
	regCtrlStat = 0x4
)

var swdPowerUp bool

var swdCmd = &cobra.Command{
	Use:   "swd",
	Short: "Connect over SWD and read the debug port ID",
	Long: `Switch the target from JTAG to SWD, reset the SWD line and read the DPIDR and
CTRL/STAT registers of the debug port.`,
	RunE: runSWD,
}

func init() {
	rootCmd.AddCommand(swdCmd)

	swdCmd.Flags().BoolVar(&swdPowerUp, "power-up", false, "request debug and system power-up")
}

func runSWD(cmd *cobra.Command, args []string) error {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	p := sess.port
	if err := p.SWDSetup(); err != nil {
		return err
	}
	if err := p.SWDLineReset(); err != nil {
		return err
	}
	if err := p.SWJSequence(16, []byte{swd.JTAGToSWD & 0xFF, swd.JTAGToSWD >> 8}); err != nil {
		return err
	}
	if err := p.SWDLineReset(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var id uint32
	if err := check(p.SWDTransfer(dp.NewRequest(false, true, regDPIDR), &id)); err != nil {
		return fmt.Errorf("read DPIDR: %w", err)
	}
	fmt.Fprintf(out, "DPIDR:     %s\n", idcode.Parse(id))

	if swdPowerUp {
		v := uint32(0x50000000)
		if err := check(p.SWDTransfer(dp.NewRequest(false, false, regCtrlStat), &v)); err != nil {
			return fmt.Errorf("write CTRL/STAT: %w", err)
		}
	}
	var stat uint32
	if err := check(p.SWDTransfer(dp.NewRequest(false, true, regCtrlStat), &stat)); err != nil {
		return fmt.Errorf("read CTRL/STAT: %w", err)
	}
	fmt.Fprintf(out, "CTRL/STAT: 0x%08X\n", stat)
	return nil
}

// check turns a non-OK acknowledge into an error.
func check(ack dp.Ack, err error) error {
	if err != nil {
		return err
	}
	if !ack.OK() {
		return fmt.Errorf("ack %s", ack)
	}
	return nil
}
