package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var (
	// Global flags
	verbose    bool
	configPath string
	adapter    string
	clockHz    uint32
)

var rootCmd = &cobra.Command{
	Use:   "otprobe",
	Short: "JTAG/SWD debug port tool",
	Long: `Drive the JTAG and SWD debug ports of a target through a CMSIS-DAP probe or
the built-in simulator: list probes, read IDCODEs and debug port registers, and
run probe scripts.

Examples:
  otprobe interfaces                          # List attached probes
  otprobe idcode --adapter sim                # Read IDCODEs from the simulated chain
  otprobe swd --adapter cmsisdap              # Read the SW-DP ID register
  otprobe run bringup.ops --adapter cmsisdap  # Run a probe script`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default: user config dir)")
	rootCmd.PersistentFlags().StringVarP(&adapter, "adapter", "a", "sim", "probe type (sim, cmsisdap)")
	rootCmd.PersistentFlags().Uint32Var(&clockHz, "clock", 0, "SWCLK/TCK rate in Hz (default from settings)")
}

func setupLogging() {
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&prefixed.TextFormatter{
		FullTimestamp:   true,
		ForceFormatting: true,
	})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}
