package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var healthServerURL string

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the health of a running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runHealth(cmd)
	},
}

func init() {
	healthCmd.Flags().StringVar(&healthServerURL, "server", "http://localhost:9090", "base URL of the daemon")
}

func runHealth(cmd *cobra.Command) error {
	client := &http.Client{Timeout: 10 * time.Second}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, healthServerURL+"/healthz", nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("reaching daemon: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var body struct {
		Status string `json:"status"`
		Store  struct {
			Healthy   bool    `json:"healthy"`
			LatencyMS float64 `json:"latency_ms"`
			Error     string  `json:"error"`
		} `json:"store"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "status: %s\n", body.Status)
	fmt.Fprintf(cmd.OutOrStdout(), "store:  healthy=%t latency=%.1fms\n", body.Store.Healthy, body.Store.LatencyMS)
	if body.Store.Error != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "error:  %s\n", body.Store.Error)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon is %s", body.Status)
	}
	return nil
}
