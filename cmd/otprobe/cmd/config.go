package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/probe"
)

var saveConfig bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or save the effective settings",
	Long: `Print the settings the other commands use, after applying command line
overrides. With --save the result is written back to the settings file.`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.Flags().BoolVar(&saveConfig, "save", false, "write the settings file")
}

func runConfig(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	if !saveConfig {
		return nil
	}
	if err := probe.SaveSettings(configPath, s); err != nil {
		return err
	}
	log.WithField("path", configPath).Info("settings saved")
	return nil
}
