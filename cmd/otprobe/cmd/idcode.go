package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/idcode"
)

var irLengths []int

var idcodeCmd = &cobra.Command{
	Use:   "idcode",
	Short: "Read the IDCODE of every device on the JTAG chain",
	Long: `Reset the JTAG chain and read the IDCODE of each device, addressing one device
at a time with the others in BYPASS. The chain layout comes from the settings
file unless --ir is given.

Examples:
  otprobe idcode --adapter sim --sim-ids 0x4BA00477,0x4BA00477
  otprobe idcode --adapter cmsisdap --ir 4,5`,
	RunE: runIDCode,
}

func init() {
	rootCmd.AddCommand(idcodeCmd)

	idcodeCmd.Flags().IntSliceVar(&irLengths, "ir", nil,
		"IR length of every device, nearest TDO first")
}

func runIDCode(cmd *cobra.Command, args []string) error {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	p := sess.port
	if len(irLengths) > 0 {
		p.Settings.Chain.IRLength = append([]int(nil), irLengths...)
	}
	if err := p.Settings.Chain.Validate(); err != nil {
		return err
	}

	if err := p.JTAGSetup(); err != nil {
		return err
	}
	if err := p.JTAGReset(); err != nil {
		return fmt.Errorf("reset chain: %w", err)
	}

	out := cmd.OutOrStdout()
	n := p.Settings.Chain.Count()
	fmt.Fprintf(out, "JTAG chain: %d device(s)\n", n)
	for i := 0; i < n; i++ {
		p.Settings.Chain.Index = i
		raw, err := p.JTAGReadIDCode()
		if err != nil {
			return fmt.Errorf("device %d: %w", i, err)
		}
		fmt.Fprintf(out, "  Device %d: %s\n", i, idcode.Parse(raw))
	}
	return nil
}
