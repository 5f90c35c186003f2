package main

import (
	"os"

	"github.com/aretw0/switchboard/internal/cli"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Exposes one session over a JSON HTTP API: POST /execute, GET /engines,
GET /dict, GET /metrics and GET /openapi.yaml.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")
		return cli.Serve(cmd.Context(), commonOptions(cmd), ":"+port, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
}
