package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// GlobalOptions carries the flags shared by the API-backed commands.
type GlobalOptions struct {
	APIURL   string
	AdminKey string
	JSON     bool
}

func NewGlobalOptions(rootCmd *cobra.Command) *GlobalOptions {
	opts := &GlobalOptions{}
	rootCmd.PersistentFlags().StringVar(&opts.APIURL, "api-url", "http://localhost:8000", "gateway base URL")
	rootCmd.PersistentFlags().StringVar(&opts.AdminKey, "admin-key", "", "admin bearer token (defaults to AIGW_MASTER_KEY)")
	rootCmd.PersistentFlags().BoolVar(&opts.JSON, "json", false, "output in JSON format")
	return opts
}

func (o *GlobalOptions) adminKey() (string, error) {
	if o.AdminKey != "" {
		return o.AdminKey, nil
	}
	if key := os.Getenv("AIGW_MASTER_KEY"); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("no admin key: pass --admin-key or set AIGW_MASTER_KEY")
}

// call performs one admin API request and decodes the JSON response
// into out.
func (o *GlobalOptions) call(method, path string, body, out interface{}) error {
	key, err := o.adminKey()
	if err != nil {
		return err
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(data)
	}

	url := strings.TrimSuffix(o.APIURL, "/") + path
	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
