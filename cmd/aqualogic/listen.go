package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/muurk/aqualogic/internal/api"
	"github.com/muurk/aqualogic/internal/capture"
	"github.com/muurk/aqualogic/internal/config"
	"github.com/muurk/aqualogic/internal/controller"
	"github.com/muurk/aqualogic/internal/discovery"
	"github.com/muurk/aqualogic/internal/logging"
	"github.com/muurk/aqualogic/internal/publish"
	"github.com/muurk/aqualogic/internal/transport"
	"github.com/muurk/aqualogic/internal/ui"
	"github.com/muurk/aqualogic/internal/version"
)

// Listen command flags
var (
	listenAPI       string
	listenAdvertise bool
	listenCapture   string
	listenNATS      string
	listenRedis     string
)

var listenCmd = &cobra.Command{
	Use:   "listen [source]",
	Short: "Decode a controller bus and serve its state",
	Long: `Connect to a byte source and decode it until interrupted.

The source is taken from the argument when given, otherwise from the config
file. Network and serial sources are reopened after a failure, waiting
source.reconnect_delay between attempts.

Optional outputs, each enabled by config or flag:
  - HTTP state API with a websocket stream (--api)
  - mDNS advertisement of the API (--advertise)
  - JSONL frame capture (--capture)
  - NATS snapshot publishing (--nats)
  - Redis state shadow (--redis)`,
	Example: `  # Decode a serial-to-TCP bridge
  aqualogic listen 192.168.1.50:8899

  # Local RS-485 adapter with the state API on :8080
  aqualogic listen /dev/ttyUSB0 --api :8080 --advertise

  # Everything from the config file
  aqualogic listen --config /etc/aqualogic.yaml

  # Record every frame for later analysis
  aqualogic listen telnet://10.0.0.9:23 --capture ./captures`,
	Args: cobra.MaximumNArgs(1),
	RunE: runListen,
}

func init() {
	listenCmd.Flags().StringVar(&listenAPI, "api", "", "Serve the state API on this address (e.g. :8080)")
	listenCmd.Flags().BoolVar(&listenAdvertise, "advertise", false, "Advertise the state API over mDNS")
	listenCmd.Flags().StringVar(&listenCapture, "capture", "", "Directory for JSONL frame captures")
	listenCmd.Flags().StringVar(&listenNATS, "nats", "", "NATS server URL for snapshot publishing")
	listenCmd.Flags().StringVar(&listenRedis, "redis", "", "Redis address for the state shadow")

	rootCmd.AddCommand(listenCmd)
}

func runListen(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogging(cfg, "info"); err != nil {
		return err
	}
	if err := applyListenFlags(cfg, args); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	opts := cfg.SourceOptions()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctrlCfg := controller.Config{Source: opts.String()}
	if cfg.Capture.Dir != "" {
		rec, err := capture.NewRecorder(cfg.Capture.Dir, opts.String())
		if err != nil {
			return err
		}
		defer rec.Close()
		ctrlCfg.Recorder = rec
		fmt.Fprintf(cmd.ErrOrStderr(), "Capturing frames to %s\n", rec.Path())
	}
	ctrl := controller.New(ctrlCfg)

	sinks, err := openSinks(ctx, cfg, opts.String())
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if len(sinks) > 0 {
		updates, unsubscribe := ctrl.Store().Subscribe()
		g.Go(func() error {
			defer unsubscribe()
			if err := publish.Run(gctx, updates, sinks...); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if cfg.API.Enabled {
		srv := api.New(gctx, ctrl)
		ready := make(chan net.Addr, 1)
		g.Go(func() error {
			return srv.ListenAndServe(gctx, cfg.API.Listen, ready)
		})
		if cfg.API.Advertise {
			g.Go(func() error {
				select {
				case addr := <-ready:
					return advertise(gctx, cfg, addr, opts.String())
				case <-gctx.Done():
					return nil
				}
			})
		}
	}

	g.Go(func() error {
		err := runSource(gctx, ctrl, opts, cfg.Source.ReconnectDelay)
		// The decoder ending stops every output
		stop()
		return err
	})

	err = g.Wait()
	printSummary(cmd, ctrl.Stats())
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// applyListenFlags overlays the positional source and flags on cfg
func applyListenFlags(cfg *config.Config, args []string) error {
	if listenAPI != "" {
		cfg.API.Enabled = true
		cfg.API.Listen = listenAPI
	}
	if listenAdvertise {
		cfg.API.Advertise = true
	}
	if listenCapture != "" {
		cfg.Capture.Dir = listenCapture
	}
	if listenNATS != "" {
		cfg.NATS.URL = listenNATS
	}
	if listenRedis != "" {
		cfg.Redis.Addr = listenRedis
	}
	return applySource(cfg, args)
}

func openSinks(ctx context.Context, cfg *config.Config, source string) ([]publish.Sink, error) {
	var sinks []publish.Sink
	if cfg.NATS.URL != "" {
		p, err := publish.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.Subject, source)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, p)
	}
	if cfg.Redis.Addr != "" {
		r, err := publish.NewRedisShadow(ctx, publish.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			for _, s := range sinks {
				_ = s.Close()
			}
			return nil, err
		}
		sinks = append(sinks, r)
	}
	return sinks, nil
}

func advertise(ctx context.Context, cfg *config.Config, addr net.Addr, source string) error {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return fmt.Errorf("cannot advertise non-TCP address %s", addr)
	}
	ad, err := discovery.Advertise(ctx, cfg.API.ServiceName, tcpAddr.Port, map[string]string{
		"version": version.Version,
		"source":  source,
		"ws":      "/ws",
	})
	if err != nil {
		// The API still works without mDNS
		logging.Warn("mDNS advertisement failed", zap.Error(err))
		return nil
	}
	<-ctx.Done()
	ad.Shutdown()
	return nil
}

// runSource opens the source and decodes it, reopening after failures
// while reconnect is positive. Files are decoded once.
func runSource(ctx context.Context, ctrl *controller.Controller, opts transport.Options, reconnect time.Duration) error {
	if opts.Kind == transport.KindFile {
		reconnect = 0
	}

	for attempt := 1; ; attempt++ {
		src, err := transport.Open(ctx, opts)
		if err == nil {
			attempt = 0
			err = ctrl.Run(ctx, src)
			_ = src.Close()
			if err == nil && opts.Kind == transport.KindFile {
				return nil
			}
			if err == nil {
				err = fmt.Errorf("%s closed the connection", opts)
			}
		}

		if ctx.Err() != nil {
			return nil
		}
		if src == nil && !transport.IsRetryable(err) {
			return err
		}
		if reconnect <= 0 {
			return err
		}

		logging.Warn("Byte source unavailable, reconnecting",
			zap.String("source", opts.String()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", reconnect),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(reconnect):
		}
	}
}

func printSummary(cmd *cobra.Command, s controller.Stats) {
	p := ui.NewPrinter(cmd.ErrOrStderr())
	p.PrintSuccess("Decoder stopped",
		ui.Detail{Key: "Frames", Value: strconv.FormatUint(s.Frames, 10)},
		ui.Detail{Key: "Dropped", Value: strconv.FormatUint(s.Dropped(), 10)},
		ui.Detail{Key: "Unknown", Value: strconv.FormatUint(s.UnknownFrames, 10)},
		ui.Detail{Key: "State changes", Value: strconv.FormatUint(s.StateChanges, 10)},
	)
}
