package admin

import (
	"encoding/json"
	"fmt"

	"github.com/cloo-solutions/discover/internal/service"
	"github.com/spf13/cobra"
)

func TokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate an API token",
		Long:  "Generate a random token to set as DISCOVER_API_TOKEN on the server and the client",
		RunE:  runToken,
	}

	cmd.Flags().StringP("output", "", "text", "Output format (text or json)")

	return cmd
}

func runToken(cmd *cobra.Command, args []string) error {
	outputFormat, _ := cmd.Flags().GetString("output")

	token, err := service.GenerateAPIToken()
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(map[string]string{"token": token}, "", "  ")
		fmt.Fprintln(cmd.OutOrStdout(), string(jsonBytes))
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Token: %s\n", token)
	fmt.Fprintln(cmd.OutOrStdout(), "\nSet it as DISCOVER_API_TOKEN on the server and the client.")
	return nil
}
