package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cloo-solutions/discover/internal/service"
	"github.com/spf13/cobra"
)

// AuthCmd creates the auth parent command
func AuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage server credentials",
		Long:  "Store, clear, and inspect the server URL and API token used by discover",
	}

	cmd.AddCommand(AuthLoginCmd())
	cmd.AddCommand(AuthLogoutCmd())
	cmd.AddCommand(AuthStatusCmd())

	return cmd
}

func AuthLoginCmd() *cobra.Command {
	var apiURL string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store server URL and token",
		Long:  "Store the server URL and the --token value in the user config directory (discover/config.json). The token is read from stdin when --token is omitted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, _ := cmd.Flags().GetString("token")
			return runAuthLogin(cmd, token, apiURL)
		},
	}

	cmd.Flags().StringVar(&apiURL, "url", defaultAPIURL, "API URL")

	return cmd
}

func AuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := DeleteGlobalConfig(); err != nil {
				return fmt.Errorf("failed to logout: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Credentials removed")
			return nil
		},
	}
}

func AuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which server and token discover will use",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runAuthStatus(cmd.OutOrStdout(), outputJSON)
		},
	}
}

func runAuthLogin(cmd *cobra.Command, token, apiURL string) error {
	if token == "" {
		fmt.Fprint(cmd.OutOrStdout(), "Enter API token: ")
		input, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("failed to read token: %w", err)
		}
		token = strings.TrimSpace(input)
	}

	if !service.IsValidAPIToken(token) {
		return fmt.Errorf("invalid token format (expected: dsc_ + 64 hex characters)")
	}

	if err := SaveGlobalConfig(&GlobalConfig{Token: token, APIURL: apiURL}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Credentials saved")
	return nil
}

func runAuthStatus(w io.Writer, outputJSON bool) error {
	creds, err := ResolveCredentials("", "")
	if err != nil {
		return err
	}

	if outputJSON {
		data, err := json.MarshalIndent(map[string]any{
			"api_url":   creds.APIURL,
			"source":    string(creds.Source),
			"has_token": creds.Token != "",
			"token":     maskToken(creds.Token),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	fmt.Fprintf(w, "API URL: %s (%s)\n", creds.APIURL, creds.Source)
	if creds.Token == "" {
		fmt.Fprintln(w, "Token: none")
		return nil
	}
	fmt.Fprintf(w, "Token: %s\n", maskToken(creds.Token))
	return nil
}

func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) < 12 {
		return "***"
	}
	return token[:7] + "..." + token[len(token)-4:]
}
