package main

import (
	"os"

	"github.com/aretw0/switchboard/internal/cli"
	"github.com/aretw0/switchboard/pkg/config"
	"github.com/spf13/cobra"
)

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List the configured engines and language adapters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(commonOptions(cmd).ConfigPath)
		if err != nil {
			return err
		}
		return cli.PrintEngines(os.Stdout, cfg)
	},
}

func init() {
	rootCmd.AddCommand(enginesCmd)
}
