// Package cmd provides command-line interface commands for logwarden.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"logwarden/config"
	"logwarden/core"
	"logwarden/service"
	"logwarden/storage"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// CLI output formatters
var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags for logs commands
var (
	outputJSON bool
	configFile string
	noColor    bool
)

const defaultTimeout = 2 * time.Minute

// NewLogsCmd creates the root logs command with all subcommands.
func NewLogsCmd() *cobra.Command {
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Inspect the audit log store",
		Long: `Inspect the audit log store directly, without going through the HTTP API.

Reads open the same SQLite database the server uses; WAL mode allows this
while the server is running.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	logsCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	logsCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path")
	logsCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	logsCmd.AddCommand(newTailCmd())
	logsCmd.AddCommand(newStatsCmd())
	logsCmd.AddCommand(newExportCmd())
	logsCmd.AddCommand(newCorrelateCmd())

	return logsCmd
}

// initStores opens the configured database read-only for CLI use.
func initStores() (*storage.LogStorage, *storage.EventStorage, func(), error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := zap.NewNop().Sugar()
	sqlite, err := storage.NewSQLite(cfg.Storage.SQLitePath, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	cleanup := func() { sqlite.Close() }
	return storage.NewLogStorage(sqlite, logger), storage.NewEventStorage(sqlite, logger), cleanup, nil
}

func severityColor(severity string) *color.Color {
	switch severity {
	case core.SeverityCritical:
		return errorColor
	case core.SeverityHigh:
		return errorColor
	case core.SeverityWarning:
		return warningColor
	default:
		return infoColor
	}
}

func outputAsJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTailCmd creates the 'tail' subcommand
func newTailCmd() *cobra.Command {
	var limit int
	var severity string

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the newest log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			logs, _, cleanup, err := initStores()
			if err != nil {
				return err
			}
			defer cleanup()

			entries, _, err := logs.ListLogEntries(ctx, core.LogFilters{
				Severity: severity,
				Limit:    limit,
			})
			if err != nil {
				return fmt.Errorf("failed to list entries: %w", err)
			}

			if outputJSON {
				return outputAsJSON(entries)
			}

			for i := range entries {
				e := &entries[i]
				severityColor(e.Severity).Printf("%-8s ", e.Severity)
				fmt.Printf("%s  %-30s  actor=%s", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Action, e.ActorID)
				if e.IPAddress != "" {
					fmt.Printf("  ip=%s", e.IPAddress)
				}
				fmt.Println()
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "Number of entries to show")
	cmd.Flags().StringVar(&severity, "severity", "", "Filter by severity")
	return cmd
}

// newStatsCmd creates the 'stats' subcommand
func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize log activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			logs, _, cleanup, err := initStores()
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := logs.GetStats(ctx, core.LogFilters{})
			if err != nil {
				return fmt.Errorf("failed to compute stats: %w", err)
			}

			if outputJSON {
				return outputAsJSON(stats)
			}

			headerColor.Println("Log activity")
			fmt.Printf("  total entries: %d\n", stats.Total)
			fmt.Printf("  unique actors: %d\n", stats.UniqueActors)
			fmt.Printf("  unique IPs:    %d\n", stats.UniqueIPs)
			headerColor.Println("By severity")
			for severity, count := range stats.BySeverity {
				severityColor(severity).Printf("  %-10s", severity)
				fmt.Printf(" %d\n", count)
			}
			headerColor.Println("By category")
			for category, count := range stats.ByCategory {
				fmt.Printf("  %-10s %d\n", category, count)
			}
			return nil
		},
	}
}

// newExportCmd creates the 'export' subcommand
func newExportCmd() *cobra.Command {
	var limit int
	var format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the newest log entries to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			logs, events, cleanup, err := initStores()
			if err != nil {
				return err
			}
			defer cleanup()

			svc := service.NewLogService(logs, events, noopEvaluator{}, nil, zap.NewNop().Sugar())
			switch format {
			case "csv":
				return svc.ExportCSV(ctx, limit, os.Stdout)
			case "json":
				return svc.ExportJSON(ctx, limit, os.Stdout)
			default:
				return fmt.Errorf("unknown format %q, expected csv or json", format)
			}
		},
	}

	cmd.Flags().IntVar(&limit, "limit", service.DefaultExportRows, "Number of entries to export")
	cmd.Flags().StringVar(&format, "format", "csv", "Export format: csv or json")
	return cmd
}

// noopEvaluator satisfies the service's evaluator dependency for read-only
// CLI use; nothing is ingested from here.
type noopEvaluator struct{}

func (noopEvaluator) Enqueue(*core.LogEntry) {}

// newCorrelateCmd creates the 'correlate' subcommand
func newCorrelateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "correlate <correlation-id>",
		Short: "Show the merged timeline for a correlation id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
			defer cancel()

			logs, events, cleanup, err := initStores()
			if err != nil {
				return err
			}
			defer cleanup()

			svc := service.NewLogService(logs, events, noopEvaluator{}, nil, zap.NewNop().Sugar())
			items, err := svc.Timeline(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to build timeline: %w", err)
			}

			if outputJSON {
				return outputAsJSON(items)
			}

			for _, item := range items {
				fmt.Printf("%s  ", item.Timestamp.Format("2006-01-02 15:04:05"))
				if item.Kind == core.TimelineKindLog {
					infoColor.Printf("%-6s", "log")
				} else {
					warningColor.Printf("%-6s", "event")
				}
				fmt.Printf("  %s\n", item.Summary())
			}
			return nil
		},
	}
}
