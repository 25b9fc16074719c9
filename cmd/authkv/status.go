// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/authkv/authkv/internal/config"
)

// ProbeStatus holds the result of one health probe.
type ProbeStatus struct {
	Probe  string `json:"probe"`
	OK     bool   `json:"ok"`
	Status int    `json:"status,omitempty"`
	Body   string `json:"body,omitempty"`
	Error  string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
	timeout    time.Duration
	client     *http.Client
}

// NewStatusCmd creates the status subcommand with all flags configured.
func NewStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show health of a running authkv instance",
		Long: `Query the liveness and readiness probes of a running instance on its
metrics address. Exits non-zero when the instance is not ready.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appCfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runStatus(cmd, appCfg.Metrics.Addr, cfg)
		},
	}

	cmd.Flags().String("metrics-addr", config.Default().Metrics.Addr, "metrics and health address of the instance")
	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", 5*time.Second, "timeout per probe")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, addr string, cfg *statusConfig) error {
	if addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("metrics address is disabled; set --metrics-addr")
	}

	client := cfg.client
	if client == nil {
		client = &http.Client{}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	statuses := []ProbeStatus{
		queryProbe(ctx, client, addr, "liveness", cfg.timeout),
		queryProbe(ctx, client, addr, "readiness", cfg.timeout),
	}

	if cfg.jsonOutput {
		out, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return oops.Code("STATUS_FORMAT_FAILED").Wrap(err)
		}
		cmd.Println(string(out))
	} else {
		for _, s := range statuses {
			cmd.Println(formatProbe(s))
		}
	}

	if !statuses[1].OK {
		return oops.Code("NOT_READY").With("addr", addr).Errorf("instance at %s is not ready", addr)
	}
	return nil
}

// queryProbe GETs one health endpoint.
func queryProbe(ctx context.Context, client *http.Client, addr, probe string, timeout time.Duration) ProbeStatus {
	status := ProbeStatus{Probe: probe}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/healthz/"+probe, http.NoBody)
	if err != nil {
		status.Error = err.Error()
		return status
	}

	resp, err := client.Do(req)
	if err != nil {
		status.Error = "failed to connect: " + err.Error()
		return status
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024)) //nolint:errcheck // body is informational
	status.Status = resp.StatusCode
	status.Body = strings.TrimSpace(string(body))
	status.OK = resp.StatusCode == http.StatusOK
	return status
}

func formatProbe(s ProbeStatus) string {
	switch {
	case s.Error != "":
		return s.Probe + ": error (" + s.Error + ")"
	case s.OK:
		return s.Probe + ": ok"
	default:
		return s.Probe + ": " + http.StatusText(s.Status) + " (" + s.Body + ")"
	}
}
