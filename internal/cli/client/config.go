package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	envAPIToken = "DISCOVER_API_TOKEN"
	envAPIURL   = "DISCOVER_API_URL"

	defaultAPIURL = "http://localhost:8080"
)

// GlobalConfig is the credential file written by `discover auth login`.
type GlobalConfig struct {
	Token  string `json:"token,omitempty"`
	APIURL string `json:"api_url"`
}

var getConfigPathFunc = defaultGetConfigPath

func defaultGetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "discover", "config.json"), nil
}

// GetConfigPath returns the full path to the config.json file
func GetConfigPath() (string, error) {
	return getConfigPathFunc()
}

// LoadGlobalConfig returns nil, not an error, when no file exists.
func LoadGlobalConfig() (*GlobalConfig, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config GlobalConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveGlobalConfig writes the config to config.json with 0600 permissions
func SaveGlobalConfig(config *GlobalConfig) error {
	if config == nil {
		return errors.New("config cannot be nil")
	}

	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DeleteGlobalConfig removes the config.json file
func DeleteGlobalConfig() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}

	if err := os.Remove(configPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete config file: %w", err)
	}

	return nil
}

// CredentialSource represents where credentials came from
type CredentialSource string

const (
	SourceFlag         CredentialSource = "flag"
	SourceEnv          CredentialSource = "env"
	SourceGlobalConfig CredentialSource = "global_config"
	SourceDefault      CredentialSource = "default"
)

// Credentials are the server URL and optional token a command talks to.
type Credentials struct {
	Token  string
	APIURL string
	Source CredentialSource
}

// ResolveCredentials picks each value from flag, then env, then the global
// config, then the default. Source names where the URL came from.
func ResolveCredentials(flagToken, flagURL string) (*Credentials, error) {
	creds := &Credentials{Token: flagToken, APIURL: flagURL, Source: SourceFlag}

	if creds.Token == "" {
		creds.Token = os.Getenv(envAPIToken)
	}
	if creds.APIURL == "" {
		creds.APIURL = os.Getenv(envAPIURL)
		creds.Source = SourceEnv
	}

	if creds.Token == "" || creds.APIURL == "" {
		global, err := LoadGlobalConfig()
		if err != nil {
			return nil, err
		}
		if global != nil {
			if creds.Token == "" {
				creds.Token = global.Token
			}
			if creds.APIURL == "" && global.APIURL != "" {
				creds.APIURL = global.APIURL
				creds.Source = SourceGlobalConfig
			}
		}
	}

	if creds.APIURL == "" {
		creds.APIURL = defaultAPIURL
		creds.Source = SourceDefault
	}

	return creds, nil
}
