package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/discover/internal/cli"
	"github.com/cloo-solutions/discover/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover CLI - search and export from the command line",
		Long: `Discover CLI runs live searches and CSV exports against a discoverd server.

Environment variables:
  DISCOVER_API_TOKEN   Bearer token, when the server requires one
  DISCOVER_API_URL     Server base URL (default: http://localhost:8080)`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("token", "", "API token (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.SearchCmd())
	rootCmd.AddCommand(client.ExportCmd())
	rootCmd.AddCommand(client.ExportsCmd())
	rootCmd.AddCommand(client.AuthCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
