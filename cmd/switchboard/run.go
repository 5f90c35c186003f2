package main

import (
	"os"

	"github.com/aretw0/switchboard/internal/cli"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run the interactive session, or the cells of a file",
	Long: `Starts a session reading cells from the terminal. A cell ends at a blank line;
type exit or quit to leave, Ctrl+C to abort the running cell.

With a file argument, the cells of the file (separated by lines starting with
#%%) are executed in order and the command fails at the first failing cell.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.RunOptions{Options: commonOptions(cmd)}
		opts.JSON, _ = cmd.Flags().GetBool("json")
		opts.Headless, _ = cmd.Flags().GetBool("headless")
		opts.StopOnError, _ = cmd.Flags().GetBool("stop-on-error")
		if len(args) > 0 {
			opts.Script = args[0]
		}
		return cli.Run(cmd.Context(), opts, os.Stdin, os.Stdout, os.Stderr)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("headless", false, "Run in headless mode (no banner, prompts or markdown rendering)")
	runCmd.Flags().Bool("json", false, "Run in JSON mode (NDJSON input/output)")
	runCmd.Flags().Bool("stop-on-error", false, "Exit at the first cell that does not finish ok")

	rootCmd.RunE = runCmd.RunE
	rootCmd.Args = runCmd.Args
	rootCmd.Flags().AddFlagSet(runCmd.Flags())
}
