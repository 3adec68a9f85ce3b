package cmd

import (
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceProbe/pkg/script"
)

var runCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Run a probe script",
	Long: `Run a probe script, one statement per line:

  port swd
  swd linereset
  swj 16 0xE79E
  swd linereset
  swd read dp 0 expect 0x2BA01477

Reads print their result. A failing expect clause stops the script.`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runScript(cmd *cobra.Command, args []string) error {
	parser, err := script.NewParser()
	if err != nil {
		return err
	}
	s, err := parser.ParseFile(args[0])
	if err != nil {
		return err
	}

	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	return script.Run(sess.port, s, cmd.OutOrStdout())
}
