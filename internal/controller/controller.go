package controller

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/muurk/aqualogic/internal/logging"
	"github.com/muurk/aqualogic/internal/protocol"
	"github.com/muurk/aqualogic/internal/state"
	"go.uber.org/zap"
)

// FrameRecorder receives every frame the controller reads, including the
// ones it drops. payload and msg are nil when verification failed; msg is
// nil when decoding failed. err carries the reason for a drop.
type FrameRecorder interface {
	RecordFrame(num uint64, raw, payload []byte, msg protocol.Message, err error) error
}

// Config holds the controller configuration
type Config struct {
	// Store receives decoded state. A new store is created when nil.
	Store *state.Store

	// Source labels log lines (address, port name or file path)
	Source string

	// OnKeyEvent is called for every key event frame
	OnKeyEvent func(*protocol.KeyEventMessage)

	// OnDisplay is called with the text of every display update
	OnDisplay func(text string)

	// Recorder captures frames for offline analysis (optional)
	Recorder FrameRecorder
}

// Controller runs the decode pipeline and is the only writer of its store
type Controller struct {
	cfg   Config
	store *state.Store

	reader atomic.Pointer[protocol.Reader]
	stats  counters

	mu          sync.RWMutex
	lastDisplay string
}

// New creates a controller
func New(cfg Config) *Controller {
	store := cfg.Store
	if store == nil {
		store = state.NewStore()
	}
	return &Controller{cfg: cfg, store: store}
}

// Store returns the state store this controller writes to
func (c *Controller) Store() *state.Store {
	return c.store
}

// LastDisplay returns the most recent display line, whitespace-collapsed
func (c *Controller) LastDisplay() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastDisplay
}

// Run decodes frames from src until the stream ends or ctx is cancelled.
//
// It returns nil on a clean end of stream and ctx.Err() on cancellation. If
// src is an io.Closer it is closed on cancellation so a blocked read returns.
// Malformed frames are counted and logged but never end the run; only a
// read error from src does.
func (c *Controller) Run(ctx context.Context, src io.Reader) error {
	if closer, ok := src.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stop()
	}

	fr := protocol.NewReader(src)
	c.reader.Store(fr)

	logging.LogConnection(c.cfg.Source, "decoding_started")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		anomalies, overflows := fr.EscapeAnomalies(), fr.Overflows()
		raw, err := fr.ReadFrame()
		c.logReaderFaults(fr, anomalies, overflows)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				logging.LogConnection(c.cfg.Source, "decoding_cancelled")
				return ctxErr
			}
			if errors.Is(err, io.EOF) {
				logging.LogConnection(c.cfg.Source, "end_of_stream")
				return nil
			}
			logging.Error("Byte source failed",
				zap.String("source", c.cfg.Source),
				zap.Error(err),
			)
			return fmt.Errorf("read frame: %w", err)
		}

		c.handleFrame(raw)
	}
}

// logReaderFaults reports escape anomalies and overflows the last
// ReadFrame call counted. frame_num is the frame they were found in.
func (c *Controller) logReaderFaults(fr *protocol.Reader, anomalies, overflows uint64) {
	num := c.stats.frames.Load() + 1
	if n := fr.EscapeAnomalies() - anomalies; n > 0 {
		logging.Debug("Unknown escape sequence in frame",
			zap.Uint64("frame_num", num),
			zap.Uint64("count", n),
		)
	}
	if n := fr.Overflows() - overflows; n > 0 {
		logging.Debug("Abandoned oversized frame",
			zap.Uint64("frame_num", num),
			zap.Uint64("count", n),
			zap.Int("max_size", protocol.MaxFrameSize),
		)
	}
}

// handleFrame verifies, decodes and dispatches one raw frame
func (c *Controller) handleFrame(raw []byte) {
	num := c.stats.frames.Add(1)

	payload, err := protocol.Verify(raw)
	if err != nil {
		c.stats.checksumErrors.Add(1)
		logging.Warn("Dropping frame",
			zap.Uint64("frame_num", num),
			zap.String("raw_hex", logging.HexDump(raw)),
			zap.Error(err),
		)
		c.record(num, raw, nil, nil, err)
		return
	}

	msg, err := protocol.ParseMessage(payload)
	if err != nil {
		c.stats.decodeErrors.Add(1)
		logging.Warn("Failed to decode frame",
			zap.Uint64("frame_num", num),
			zap.String("payload_hex", logging.HexDump(payload)),
			zap.Error(err),
		)
		c.record(num, raw, payload, nil, err)
		return
	}

	logging.LogFrame(num, msg.Type().String(), payload)
	c.record(num, raw, payload, msg, nil)
	c.dispatch(msg)
}

func (c *Controller) dispatch(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.KeepAliveMessage:
		c.stats.keepAlives.Add(1)

	case *protocol.KeyEventMessage:
		c.stats.keyEvents.Add(1)
		logging.Info("Key event",
			zap.String("code", hex.EncodeToString(m.Code)),
		)
		if c.cfg.OnKeyEvent != nil {
			c.cfg.OnKeyEvent(m)
		}

	case *protocol.IndicatorMessage:
		c.stats.indicatorFrames.Add(1)
		c.apply("indicators", func(s *state.State) {
			s.Indicators = m.Indicators
		})

	case *protocol.DisplayMessage:
		c.stats.displayFrames.Add(1)
		text := protocol.TrimDisplay(m.Text)
		c.mu.Lock()
		c.lastDisplay = text
		c.mu.Unlock()
		if c.cfg.OnDisplay != nil {
			c.cfg.OnDisplay(text)
		}

		reading, ok := protocol.ParseDisplayLine(m.Text)
		if !ok {
			logging.Debug("Display update", zap.String("text", text))
			return
		}
		c.stats.readings.Add(1)
		c.apply(reading.Kind.String(), reading.Apply)

	case *protocol.UnknownMessage:
		c.stats.unknownFrames.Add(1)
		logging.Debug("Ignoring unknown frame type",
			zap.String("type", m.String()),
			zap.String("data_hex", logging.HexDump(m.Data)),
		)
	}
}

// apply updates the store and logs when something changed
func (c *Controller) apply(field string, fn func(*state.State)) {
	if !c.store.Update(fn) {
		return
	}
	c.stats.stateChanges.Add(1)

	snap := c.store.Snapshot()
	logging.Info("State changed",
		zap.String("field", field),
		zap.Uint64("version", snap.Version),
		zap.String("pool_temp", snap.PoolTemperature.String()),
		zap.String("air_temp", snap.AirTemperature.String()),
		zap.String("chlorinator", snap.ChlorinatorPercent.String()),
		zap.Stringer("indicators", snap.Indicators),
	)
}

func (c *Controller) record(num uint64, raw, payload []byte, msg protocol.Message, cause error) {
	if c.cfg.Recorder == nil {
		return
	}
	if err := c.cfg.Recorder.RecordFrame(num, raw, payload, msg, cause); err != nil {
		c.stats.recordErrors.Add(1)
		logging.Error("Failed to record frame",
			zap.Uint64("frame_num", num),
			zap.Error(err),
		)
	}
}
