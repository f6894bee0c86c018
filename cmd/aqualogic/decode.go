package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muurk/aqualogic/internal/capture"
	"github.com/muurk/aqualogic/internal/controller"
	"github.com/muurk/aqualogic/internal/protocol"
	"github.com/muurk/aqualogic/internal/state"
	"github.com/muurk/aqualogic/internal/ui"
)

// Decode command flags
var (
	decodeFrames bool
	decodeJSON   bool
)

var decodeCmd = &cobra.Command{
	Use:   "decode <file>",
	Short: "Decode a recorded byte stream or frame capture",
	Long: `Decode a file offline and print the resulting pool state.

Raw byte dumps are decoded as-is. Files ending in .jsonl are read as frame
captures written by 'listen --capture'; their frames are re-encoded and
decoded again, so a capture replays to the same state it recorded.`,
	Example: `  aqualogic decode bus.bin
  aqualogic decode captures/capture-20260101-120000.jsonl --frames
  aqualogic decode bus.bin --json | jq .state`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func init() {
	decodeCmd.Flags().BoolVar(&decodeFrames, "frames", false, "Print every frame as it is decoded")
	decodeCmd.Flags().BoolVar(&decodeJSON, "json", false, "Print state and counters as JSON")

	rootCmd.AddCommand(decodeCmd)
}

func runDecode(cmd *cobra.Command, args []string) error {
	if err := initLogging(nil, ""); err != nil {
		return err
	}

	stream, err := readStream(args[0])
	if err != nil {
		return err
	}

	ctrlCfg := controller.Config{Source: args[0]}
	if decodeFrames {
		ctrlCfg.Recorder = &framePrinter{w: cmd.OutOrStdout()}
	}
	ctrl := controller.New(ctrlCfg)
	if err := ctrl.Run(context.Background(), bytes.NewReader(stream)); err != nil {
		return err
	}

	snap, stats := ctrl.Store().Snapshot(), ctrl.Stats()
	if decodeJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			State   state.State      `json:"state"`
			Stats   controller.Stats `json:"stats"`
			Display string           `json:"display"`
		}{snap, stats, ctrl.LastDisplay()})
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	p.PrintHeader("AquaLogic Decode", "decode", ui.Detail{Key: "File", Value: args[0]})
	p.PrintSuccess("Decoded state", stateDetails(snap, ctrl.LastDisplay())...)
	if stats.Dropped() > 0 || stats.EscapeAnomalies > 0 {
		p.PrintWarning("Stream had errors", statsDetails(stats)...)
	} else {
		p.PrintSuccess("Frames", statsDetails(stats)...)
	}
	return nil
}

// readStream returns the bytes to decode from path
func readStream(path string) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(path), ".jsonl") {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		records, err := capture.ReadRecords(f)
		if err != nil {
			return nil, err
		}
		return capture.RebuildStream(records)
	}
	return os.ReadFile(path)
}

func stateDetails(s state.State, display string) []ui.Detail {
	unit := s.TemperatureUnit.String()
	details := []ui.Detail{
		{Key: "Pool", Value: s.PoolTemperature.String() + "°" + unit},
		{Key: "Air", Value: s.AirTemperature.String() + "°" + unit},
		{Key: "Chlorinator", Value: s.ChlorinatorPercent.String() + "%"},
		{Key: "Indicators", Value: s.Indicators.String()},
		{Key: "Version", Value: strconv.FormatUint(s.Version, 10)},
	}
	if display != "" {
		details = append(details, ui.Detail{Key: "Display", Value: display})
	}
	return details
}

func statsDetails(s controller.Stats) []ui.Detail {
	u := func(v uint64) string { return strconv.FormatUint(v, 10) }
	return []ui.Detail{
		{Key: "Frames", Value: u(s.Frames)},
		{Key: "Checksum errors", Value: u(s.ChecksumErrors)},
		{Key: "Decode errors", Value: u(s.DecodeErrors)},
		{Key: "Unknown", Value: u(s.UnknownFrames)},
		{Key: "Escape anomalies", Value: u(s.EscapeAnomalies)},
		{Key: "Skipped bytes", Value: u(s.SkippedBytes)},
		{Key: "State changes", Value: u(s.StateChanges)},
	}
}

// framePrinter writes one line per frame
type framePrinter struct {
	w io.Writer
}

func (fp *framePrinter) RecordFrame(num uint64, raw, _ []byte, msg protocol.Message, err error) error {
	switch {
	case err != nil:
		_, werr := fmt.Fprintf(fp.w, "%6d  DROP  %v  [% x]\n", num, err, raw)
		return werr
	case msg != nil:
		_, werr := fmt.Fprintf(fp.w, "%6d  %s\n", num, msg)
		return werr
	default:
		_, werr := fmt.Fprintf(fp.w, "%6d  %s\n", num, hex.EncodeToString(raw))
		return werr
	}
}
