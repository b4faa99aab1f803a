// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CodeWatch Contributors

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/codewatch/codewatch/internal/config"
)

// ProbeStatus holds the result of one health probe.
type ProbeStatus struct {
	Probe string `json:"probe"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health of a running CodeWatch server",
		Long:  `Query the liveness and readiness probes of a running server's metrics endpoint.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	appCfg, err := config.Load(resolveConfigFile(), nil)
	if err != nil {
		return err
	}
	if appCfg.Server.MetricsAddr == "" {
		return fmt.Errorf("server.metrics_addr is not configured; cannot probe")
	}

	client := &http.Client{Timeout: 2 * time.Second}
	statuses := []ProbeStatus{
		queryProbe(client, appCfg.Server.MetricsAddr, "liveness"),
		queryProbe(client, appCfg.Server.MetricsAddr, "readiness"),
	}

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Println(formatStatusTable(statuses))
	return nil
}

// queryProbe hits one health probe and reports the outcome.
func queryProbe(client *http.Client, addr, probe string) ProbeStatus {
	status := ProbeStatus{Probe: probe}

	resp, err := client.Get("http://" + addr + "/healthz/" + probe)
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		status.Error = fmt.Sprintf("probe returned %s", resp.Status)
		return status
	}

	status.OK = true
	return status
}

// formatStatusTable formats probe results as a human-readable table.
func formatStatusTable(statuses []ProbeStatus) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "PROBE\tSTATUS\tDETAIL")
	_, _ = fmt.Fprintln(w, "-----\t------\t------")

	for _, status := range statuses {
		if status.OK {
			_, _ = fmt.Fprintf(w, "%s\tok\t-\n", status.Probe)
		} else {
			_, _ = fmt.Fprintf(w, "%s\tfailing\t%s\n", status.Probe, status.Error)
		}
	}

	_ = w.Flush()
	return string(buf)
}

// byteWriter is a simple writer that appends to a byte slice.
type byteWriter []byte

func (w *byteWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}
