package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/discover/internal/cli"
	"github.com/cloo-solutions/discover/internal/cli/admin"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "discoverd",
		Short:   "Discover export server",
		Long:    "Discover server for live segmented search and bounded CSV export over Elasticsearch",
		Version: version,
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.TokenCmd())
	rootCmd.AddCommand(admin.ExportsCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
