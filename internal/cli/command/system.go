package command

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/tabvault/tabvault-go/internal/cli/connection"
	"github.com/tabvault/tabvault-go/internal/cli/output"
	"github.com/tabvault/tabvault-go/internal/telemetry/metric"
)

// SystemCommand returns the system subcommand group.
func SystemCommand() *cli.Command {
	return &cli.Command{
		Name:    "system",
		Aliases: []string{"sys"},
		Usage:   "Server status and metrics",
		Subcommands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "Show the server status summary",
				Action: systemInfo,
			},
			{
				Name:   "stats",
				Usage:  "Show the server's TabVault metrics",
				Action: systemStats,
			},
		},
	}
}

type systemInfoResult struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	Time            string `json:"time"`
	Tier            string `json:"tier"`
	MaxSessions     int    `json:"max_sessions"`
	SessionCount    int    `json:"session_count"`
	ActiveSessionID string `json:"active_session_id,omitempty"`
}

func systemInfo(c *cli.Context) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqContext(c)
	defer cancel()

	resp, err := client.Get(ctx, "/admin/v1/status/summary")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	var info systemInfoResult
	if err := connection.ParseResponse(resp, &info); err != nil {
		return err
	}

	flags := ParseGlobalFlags(c)
	if output.Format(flags.Output) != output.FormatTable {
		return formatFor(c).Format(c.App.Writer, info)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Server:         %s\n", client.BaseURL())
	fmt.Fprintf(w, "Status:         %s\n", info.Status)
	fmt.Fprintf(w, "Version:        %s\n", info.Version)
	fmt.Fprintf(w, "Capacity tier:  %s\n", info.Tier)
	fmt.Fprintf(w, "Sessions:       %d of %d\n", info.SessionCount, info.MaxSessions)
	if info.ActiveSessionID != "" {
		fmt.Fprintf(w, "Active session: %s\n", info.ActiveSessionID)
	}
	return nil
}

func systemStats(c *cli.Context) error {
	client, err := newClient(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqContext(c)
	defer cancel()

	resp, err := client.Get(ctx, "/metrics")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("metrics endpoint returned status %d", resp.StatusCode)
	}

	stats, err := parseMetrics(resp.Body, metric.Namespace+"_")
	if err != nil {
		return fmt.Errorf("read metrics: %w", err)
	}

	flags := ParseGlobalFlags(c)
	if output.Format(flags.Output) != output.FormatTable {
		return formatFor(c).Format(c.App.Writer, stats)
	}

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	table := &output.Table{Headers: []string{"METRIC", "VALUE"}}
	for _, name := range names {
		table.AddRow(name, stats[name])
	}
	return table.Render(c.App.Writer)
}

// parseMetrics extracts the series under one namespace prefix from a
// Prometheus text exposition. Samples keep their label sets in the
// name; comment and type lines are dropped.
func parseMetrics(r io.Reader, prefix string) (map[string]string, error) {
	stats := make(map[string]string)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || !strings.HasPrefix(line, prefix) {
			continue
		}
		idx := strings.LastIndexByte(line, ' ')
		if idx <= 0 {
			continue
		}
		stats[line[:idx]] = line[idx+1:]
	}
	return stats, sc.Err()
}
