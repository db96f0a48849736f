package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultServerURL = "http://localhost:8080"
	clientTimeout    = 30 * time.Second
)

// apiClient talks to a running `uptimewatch serve`.
type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: clientTimeout},
	}
}

type apiEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error"`
}

func (c *apiClient) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contacting %s: %w", c.base, err)
	}
	return resp, nil
}

// call performs a JSON API request and decodes the envelope's data into v.
func (c *apiClient) call(ctx context.Context, method, path string, body, v interface{}) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || env.Error != "" {
		msg := env.Error
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
	}
	if v != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, v); err != nil {
			return fmt.Errorf("decoding data: %w", err)
		}
	}
	return nil
}

func (c *apiClient) dashboardText(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/dashboard.txt", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading dashboard: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return string(data), nil
}

func addServerFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serverURL, "server", defaultServerURL, "address of a running uptimewatch server")
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func dashboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Print the dashboard of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := newAPIClient(serverURL).dashboardText(commandContext(cmd))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), text)
			return nil
		},
	}
	addServerFlag(cmd)
	return cmd
}

type addedMonitor struct {
	Name               string  `json:"name"`
	URL                string  `json:"url"`
	Status             string  `json:"status"`
	AvgResponseMs      float64 `json:"avg_response_ms"`
	LastCheckSucceeded *bool   `json:"last_check_succeeded"`
}

func addCmd() *cobra.Command {
	var interval, timeout time.Duration
	cmd := &cobra.Command{
		Use:   "add <name> <url>",
		Short: "Add a monitor to a running server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := url.ParseRequestURI(args[1]); err != nil {
				return fmt.Errorf("invalid url %q: %w", args[1], err)
			}
			body := map[string]interface{}{
				"name":             args[0],
				"url":              args[1],
				"interval_seconds": int(interval / time.Second),
				"timeout_seconds":  int(timeout / time.Second),
			}
			var m addedMonitor
			if err := newAPIClient(serverURL).call(commandContext(cmd), http.MethodPost, "/api/monitors", body, &m); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Added %s (%s)\n", m.Name, m.URL)
			if m.LastCheckSucceeded != nil && *m.LastCheckSucceeded {
				fmt.Fprintf(out, "First check: up in %.0fms\n", m.AvgResponseMs)
			} else {
				fmt.Fprintln(out, "First check: failed")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "check interval (default 60s)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "probe timeout (default 10s)")
	addServerFlag(cmd)
	return cmd
}

func removeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a monitor from a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/monitors/" + url.PathEscape(args[0])
			if err := newAPIClient(serverURL).call(commandContext(cmd), http.MethodDelete, path, nil, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
	addServerFlag(cmd)
	return cmd
}
