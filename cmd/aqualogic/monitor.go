package main

import (
	"context"
	"encoding/hex"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/muurk/aqualogic/internal/config"
	"github.com/muurk/aqualogic/internal/controller"
	"github.com/muurk/aqualogic/internal/protocol"
	"github.com/muurk/aqualogic/internal/transport"
	"github.com/muurk/aqualogic/internal/ui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [source]",
	Short: "Show the decoded pool state in a live terminal dashboard",
	Long: `Decode a byte source and show readings, panel indicators, the LCD text
and key events in a full-screen dashboard.

Logging is off unless --log-level is given, since log lines would draw over
the screen.`,
	Example: `  aqualogic monitor 192.168.1.50:8899
  aqualogic monitor /dev/ttyUSB0`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// Only an explicit flag turns logging on here
	if logLevel != "" {
		if err := initLogging(nil, ""); err != nil {
			return err
		}
	}
	if err := applySource(cfg, args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	opts := cfg.SourceOptions()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var p *tea.Program
	ctrl := controller.New(controller.Config{
		Source: opts.String(),
		OnDisplay: func(text string) {
			p.Send(ui.DisplayMsg(text))
		},
		OnKeyEvent: func(m *protocol.KeyEventMessage) {
			p.Send(ui.PanelKeyMsg{Code: hex.EncodeToString(m.Code), At: time.Now()})
		},
	})
	p = ui.NewProgram(ctx, ui.NewDashboard(opts.String(), ctrl.Stats))

	updates, unsubscribe := ctrl.Store().Subscribe()
	defer unsubscribe()
	go ui.Forward(ctx, p, updates)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		err := runSource(runCtx, ctrl, opts, cfg.Source.ReconnectDelay)
		p.Send(ui.DoneMsg{Err: err})
	}()

	_, err = p.Run()
	cancel()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// applySource overrides the configured source with a positional argument
func applySource(cfg *config.Config, args []string) error {
	if len(args) == 1 {
		opts, err := transport.ParseTarget(args[0])
		if err != nil {
			return err
		}
		cfg.Source.Type = string(opts.Kind)
		cfg.Source.Address = opts.Address
	}
	if cfg.Source.Address == "" {
		return errors.New("no source given: pass one as an argument or set source.address in the config")
	}
	return nil
}
