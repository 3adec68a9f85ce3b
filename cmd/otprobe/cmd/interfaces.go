package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/cmsisdap"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List available debug probes",
	Long: `Scan the host for CMSIS-DAP probes and print a summary of the detected
transports. The built-in simulator is always listed.`,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	infos, err := cmsisdap.DiscoverInterfaces(ctx)
	if err != nil {
		return fmt.Errorf("discover interfaces: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Detected debug probes:")
	for _, iface := range infos {
		fmt.Fprintf(out, "  - %s [%s] (VID:PID %04X:%04X)\n", iface.Label(), iface.Kind, iface.VendorID, iface.ProductID)
	}
	return nil
}
