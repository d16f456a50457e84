// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/vtufest/festreg/internal/auth"
	"github.com/vtufest/festreg/internal/observability"
)

// ServerStatus is the health of a running festreg server as seen through
// its observability endpoints.
type ServerStatus struct {
	Addr    string `json:"addr"`
	Running bool   `json:"running"`
	Ready   bool   `json:"ready"`
	Detail  string `json:"detail,omitempty"`
	Error   string `json:"error,omitempty"`

	Checks map[string]string `json:"checks,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
	timeout    time.Duration
}

const defaultStatusTimeout = 2 * time.Second

// newStatusCmd creates the status subcommand with all flags configured.
func newStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show status of the running festreg server",
		Long: `Query the liveness and readiness endpoints of a running festreg
server. The address comes from --metrics-addr or observability.addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultStatusTimeout, "per-request timeout")

	return cmd
}

// runStatus executes the status command.
func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	conf, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if conf.Observability.Addr == "" {
		return oops.Code(auth.CodeConfig).
			With("field", "observability.addr").
			Errorf("observability server is disabled; nothing to query")
	}

	client := &http.Client{Timeout: cfg.timeout}
	status := queryServerStatus(cmd.Context(), client, conf.Observability.Addr)

	var output string
	if cfg.jsonOutput {
		output, err = formatStatusJSON(status)
		if err != nil {
			return oops.Code("STATUS_FORMAT_FAILED").Wrap(err)
		}
	} else {
		output = formatStatusTable(status)
	}

	cmd.Println(output)
	return nil
}

// healthURL turns a listen address into a URL reachable from this host.
func healthURL(addr, path string) string {
	host, port, err := net.SplitHostPort(addr)
	if err == nil && (host == "" || host == "0.0.0.0" || host == "::") {
		addr = net.JoinHostPort("127.0.0.1", port)
	}
	return "http://" + addr + path
}

// queryServerStatus checks liveness, then readiness.
func queryServerStatus(ctx context.Context, client *http.Client, addr string) ServerStatus {
	if ctx == nil {
		ctx = context.Background()
	}
	status := ServerStatus{Addr: addr}

	code, _, err := fetchHealth(ctx, client, healthURL(addr, "/healthz/liveness"))
	if err != nil {
		status.Error = fmt.Sprintf("failed to connect: %v", err)
		return status
	}
	if code != http.StatusOK {
		status.Error = fmt.Sprintf("liveness returned HTTP %d", code)
		return status
	}
	status.Running = true

	code, body, err := fetchHealth(ctx, client, healthURL(addr, "/healthz/readiness"))
	if err != nil {
		// Live but the readiness check failed; still running.
		status.Detail = fmt.Sprintf("readiness check failed: %v", err)
		return status
	}
	status.Ready = code == http.StatusOK
	status.Detail = body

	var report observability.ReadinessReport
	if json.Unmarshal([]byte(body), &report) == nil && report.Status != "" {
		status.Checks = report.Checks
		status.Detail = summarizeChecks(report)
	}
	return status
}

// summarizeChecks renders a readiness report as "name=result" pairs in name
// order.
func summarizeChecks(report observability.ReadinessReport) string {
	if len(report.Checks) == 0 {
		return report.Status
	}
	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+report.Checks[name])
	}
	return strings.Join(parts, " ")
}

func fetchHealth(ctx context.Context, client *http.Client, url string) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return 0, "", err
	}
	return resp.StatusCode, strings.TrimSpace(string(body)), nil
}

// formatStatusTable formats the status as a human-readable table.
func formatStatusTable(status ServerStatus) string {
	var buf []byte
	w := tabwriter.NewWriter((*byteWriter)(&buf), 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintln(w, "ADDRESS\tSTATUS\tREADY\tDETAIL")
	_, _ = fmt.Fprintln(w, "-------\t------\t-----\t------")

	if status.Running {
		ready := "no"
		if status.Ready {
			ready = "yes"
		}
		detail := status.Detail
		if detail == "" {
			detail = "-"
		}
		_, _ = fmt.Fprintf(w, "%s\trunning\t%s\t%s\n", status.Addr, ready, detail)
	} else {
		reason := "not running"
		if status.Error != "" {
			reason = status.Error
		}
		_, _ = fmt.Fprintf(w, "%s\tstopped\t-\t%s\n", status.Addr, reason)
	}

	_ = w.Flush()
	return string(buf)
}

// formatStatusJSON formats the status as JSON.
func formatStatusJSON(status ServerStatus) (string, error) {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return "", oops.Wrapf(err, "failed to marshal status")
	}
	return string(data), nil
}

// byteWriter is a simple writer that appends to a byte slice.
type byteWriter []byte

func (w *byteWriter) Write(p []byte) (int, error) {
	*w = append(*w, p...)
	return len(p), nil
}
