package main

import (
	"os"

	"github.com/aretw0/switchboard/internal/cli"
	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage saved sessions",
	Long:  `List, inspect, and remove the Host dictionaries saved with --session.`,
}

var sessionLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all saved sessions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.ListSessions(cmd.Context(), commonOptions(cmd), os.Stdout)
	},
}

var sessionInspectCmd = &cobra.Command{
	Use:   "inspect <session-id>",
	Short: "Print the saved dictionary of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.InspectSession(cmd.Context(), commonOptions(cmd), args[0], os.Stdout)
	},
}

var sessionRmCmd = &cobra.Command{
	Use:   "rm <session-id>",
	Short: "Remove a saved session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.RemoveSession(cmd.Context(), commonOptions(cmd), args[0], os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionLsCmd, sessionInspectCmd, sessionRmCmd)
}
