package main

import (
	"fmt"
	"os"

	"github.com/aretw0/switchboard/internal/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "switchboard",
	Short: "Switchboard runs cells across many language engines in one session",
	Long: `Switchboard is a polyglot execution orchestrator. A session runs cells in a
native Host runtime or in language engines (processes, remote servers or
in-process engines) and moves variables between them with directives such as
%use, %get, %put and %with.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "Configuration file (default switchboard.yaml when present)")
	rootCmd.PersistentFlags().Bool("debug", false, "Write debug logs to stderr")
	rootCmd.PersistentFlags().String("log-format", "text", "Debug log format: text or json")
	rootCmd.PersistentFlags().String("session", "", "Persist the Host dictionary under this session id")
	rootCmd.PersistentFlags().String("store", "", "Session store: memory, file, bolt or redis (overrides the configuration)")
	rootCmd.PersistentFlags().Bool("fresh", false, "Discard the saved dictionary of --session before starting")
	rootCmd.PersistentFlags().String("context", "", "JSON object merged into the Host dictionary at start")
}

// commonOptions reads the persistent flags.
func commonOptions(cmd *cobra.Command) cli.Options {
	flags := cmd.Flags()
	var opts cli.Options
	opts.ConfigPath, _ = flags.GetString("config")
	opts.Debug, _ = flags.GetBool("debug")
	opts.LogFormat, _ = flags.GetString("log-format")
	opts.SessionID, _ = flags.GetString("session")
	opts.Store, _ = flags.GetString("store")
	opts.Fresh, _ = flags.GetBool("fresh")
	opts.Context, _ = flags.GetString("context")
	return opts
}
