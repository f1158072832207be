package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewAPIClientWithCmd builds a client from the --token and --api-url flags,
// falling back to env, the global config and the default URL.
func NewAPIClientWithCmd(cmd *cobra.Command) (*APIClient, error) {
	_ = godotenv.Load()

	var flagToken, flagURL string
	if cmd != nil {
		flagToken, _ = cmd.Flags().GetString("token")
		flagURL, _ = cmd.Flags().GetString("api-url")
	}

	creds, err := ResolveCredentials(flagToken, flagURL)
	if err != nil {
		return nil, err
	}
	return NewAPIClientWithConfig(creds.Token, creds.APIURL), nil
}

// NewAPIClientWithConfig creates an APIClient with explicit settings.
func NewAPIClientWithConfig(token, baseURL string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// APIResponse represents the standard API response format.
type APIResponse struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// RawResponse is a response that is not wrapped in the data envelope.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// APIError represents an error from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Get performs a GET request and unwraps the data envelope.
func (c *APIClient) Get(ctx context.Context, path string) (*APIResponse, error) {
	raw, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return decodeEnvelope(raw)
}

// Post performs a POST request with a JSON body and unwraps the data envelope.
func (c *APIClient) Post(ctx context.Context, path string, body any) (*APIResponse, error) {
	raw, err := c.Do(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	return decodeEnvelope(raw)
}

// Do sends a request and returns the body as-is. Status codes of 400 and
// above become an *APIError carrying the server's error message.
func (c *APIClient) Do(ctx context.Context, method, path string, body any) (*RawResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		message := strings.TrimSpace(string(respBody))
		var apiResp APIResponse
		if json.Unmarshal(respBody, &apiResp) == nil && apiResp.Error != "" {
			message = apiResp.Error
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	return &RawResponse{StatusCode: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

func decodeEnvelope(raw *RawResponse) (*APIResponse, error) {
	var apiResp APIResponse
	if err := json.Unmarshal(raw.Body, &apiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &apiResp, nil
}
