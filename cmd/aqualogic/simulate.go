package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/aqualogic/internal/server"
	"github.com/muurk/aqualogic/internal/state"
	"github.com/muurk/aqualogic/internal/ui"
)

// Simulate command flags
var (
	simHost         string
	simPort         int
	simInterval     time.Duration
	simCorruptEvery int
	simOutput       string
	simCycles       int
	simKeyCode      string
	simPool         int
	simAir          int
	simChlorinator  int
	simCelsius      bool
	simIndicators   []string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate a controller bus for testing without hardware",
	Long: `Generate the frames an AquaLogic controller puts on its RS-485 bus.

By default the bus is streamed to every TCP client, like a serial-to-network
bridge. With --output the frames are written to a file instead, which
'aqualogic decode' can read back.`,
	Example: `  # Bridge on :8899, one corrupted frame in 25
  aqualogic simulate --corrupt-every 25

  # Celsius pool with the heater on
  aqualogic simulate --celsius --pool 26 --air 18 --indicators POOL,FILTER,HEATER_1

  # Ten cycles to a file
  aqualogic simulate --output bus.bin --cycles 10`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.StringVar(&simHost, "host", "0.0.0.0", "Host to listen on")
	f.IntVar(&simPort, "port", 8899, "Port to listen on")
	f.DurationVar(&simInterval, "interval", 100*time.Millisecond, "Pause between frames")
	f.IntVar(&simCorruptEvery, "corrupt-every", 0, "Send a bad checksum on every Nth frame (0 disables)")
	f.StringVar(&simOutput, "output", "", "Write frames to this file instead of serving them")
	f.IntVar(&simCycles, "cycles", 1, "Cycles to write with --output")
	f.StringVar(&simKeyCode, "key-code", "", "Hex key code to send once per cycle (e.g. 00040000)")

	d := server.DefaultScenario()
	f.IntVar(&simPool, "pool", d.PoolTemperature, "Pool temperature")
	f.IntVar(&simAir, "air", d.AirTemperature, "Air temperature")
	f.IntVar(&simChlorinator, "chlorinator", d.ChlorinatorPercent, "Chlorinator output percent")
	f.BoolVar(&simCelsius, "celsius", false, "Report temperatures in Celsius")
	f.StringSliceVar(&simIndicators, "indicators", nil, "Lit indicators (default POOL,FILTER,LIGHTS)")

	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if err := initLogging(nil, "info"); err != nil {
		return err
	}

	sc, err := buildScenario()
	if err != nil {
		return err
	}

	if simOutput != "" {
		return writeSimulation(cmd, sc)
	}

	srv, err := server.New(server.Config{
		Host:         simHost,
		Port:         simPort,
		Interval:     simInterval,
		CorruptEvery: simCorruptEvery,
		Scenario:     sc,
	})
	if err != nil {
		return err
	}

	p := ui.NewPrinter(cmd.OutOrStdout())
	p.PrintHeader("AquaLogic Simulator", "simulate",
		ui.Detail{Key: "Listen", Value: fmt.Sprintf("%s:%d", simHost, simPort)},
		ui.Detail{Key: "Interval", Value: simInterval.String()},
		ui.Detail{Key: "Indicators", Value: sc.Indicators.String()},
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Start(ctx, nil)
}

func buildScenario() (server.Scenario, error) {
	sc := server.DefaultScenario()
	sc.PoolTemperature = simPool
	sc.AirTemperature = simAir
	sc.ChlorinatorPercent = simChlorinator
	if simCelsius {
		sc.Unit = state.Celsius
	}

	if len(simIndicators) > 0 {
		var set state.IndicatorSet
		for _, name := range simIndicators {
			ind, err := state.ParseIndicator(name)
			if err != nil {
				return sc, err
			}
			set = set.With(ind)
		}
		sc.Indicators = set
	}

	if simKeyCode != "" {
		code, err := hex.DecodeString(simKeyCode)
		if err != nil {
			return sc, fmt.Errorf("invalid --key-code: %w", err)
		}
		sc.KeyCode = code
	}
	return sc, nil
}

func writeSimulation(cmd *cobra.Command, sc server.Scenario) error {
	gen, err := server.NewGenerator(sc, simCorruptEvery)
	if err != nil {
		return err
	}

	f, err := os.Create(simOutput)
	if err != nil {
		return err
	}
	if err := gen.WriteCycles(f, simCycles); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Simulation written",
		ui.Detail{Key: "File", Value: simOutput},
		ui.Detail{Key: "Frames", Value: strconv.Itoa(simCycles * gen.CycleLen())},
	)
	return nil
}
