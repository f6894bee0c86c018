package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/aqualogic/internal/discovery"
	"github.com/muurk/aqualogic/internal/ui"
)

// Discover command flags
var (
	discoverTimeout time.Duration
	discoverJSON    bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find aqualogic bridges advertised on the local network",
	Long: `Browse mDNS for instances of 'aqualogic listen --advertise' and print
their state API and websocket URLs.`,
	Args: cobra.NoArgs,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", discovery.DefaultScanTimeout, "How long to browse")
	discoverCmd.Flags().BoolVar(&discoverJSON, "json", false, "Print results as JSON")

	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if err := initLogging(nil, ""); err != nil {
		return err
	}

	scanner := discovery.NewScanner()
	scanner.Timeout = discoverTimeout

	bridges, err := scanner.Scan(context.Background())
	if err != nil {
		return err
	}

	if discoverJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(bridges)
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	if len(bridges) == 0 {
		p.PrintWarning("No bridges found",
			ui.Detail{Key: "Timeout", Value: discoverTimeout.String()},
			ui.Detail{Key: "Hint", Value: "Start one with 'aqualogic listen --api :8080 --advertise'"},
		)
		return nil
	}
	for _, b := range bridges {
		p.PrintSuccess(b.Instance,
			ui.Detail{Key: "Host", Value: b.Hostname},
			ui.Detail{Key: "API", Value: b.BaseURL()},
			ui.Detail{Key: "Websocket", Value: b.WebsocketURL()},
			ui.Detail{Key: "Source", Value: b.GetMetadata("source")},
			ui.Detail{Key: "Version", Value: b.GetMetadata("version")},
		)
	}
	return nil
}
