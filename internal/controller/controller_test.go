package controller

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/muurk/aqualogic/internal/logging"
	"github.com/muurk/aqualogic/internal/protocol"
	"github.com/muurk/aqualogic/internal/state"
)

func frame(tag protocol.FrameType, body ...byte) []byte {
	return protocol.EncodeFrame(append(tag.Bytes(), body...))
}

func display(text string) []byte {
	// Latin-1: one byte per character, '°' is 0xB0
	raw, err := protocol.EncodeText(text)
	if err != nil {
		panic(err)
	}
	return frame(protocol.FrameTypeDisplayUpdate, raw...)
}

func stream(frames ...[]byte) *bytes.Reader {
	return bytes.NewReader(bytes.Join(frames, nil))
}

// countObserver counts change notifications
type countObserver struct {
	mu       sync.Mutex
	n        int
	versions []uint64
	store    *state.Store
}

func (o *countObserver) StateChanged() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.n++
	o.versions = append(o.versions, o.store.Snapshot().Version)
}

func newTestController(t *testing.T, cfg Config) (*Controller, *countObserver) {
	t.Helper()
	c := New(cfg)
	obs := &countObserver{store: c.Store()}
	c.Store().AddObserver(obs)
	return c, obs
}

func TestRunDecodesStream(t *testing.T) {
	tests := []struct {
		name   string
		input  *bytes.Reader
		verify func(t *testing.T, c *Controller, obs *countObserver)
	}{
		{
			name: "display readings",
			input: stream(
				display("Pool Temp 85°F"),
				display("Air Temp 72°F"),
				display("Pool Chlorinator 45%"),
			),
			verify: func(t *testing.T, c *Controller, obs *countObserver) {
				s := c.Store().Snapshot()
				if s.PoolTemperature != state.Known(85) || s.AirTemperature != state.Known(72) || s.ChlorinatorPercent != state.Known(45) {
					t.Errorf("state = %+v", s)
				}
				if s.TemperatureUnit != state.Fahrenheit {
					t.Errorf("unit = %v, want F", s.TemperatureUnit)
				}
				if obs.n != 3 {
					t.Errorf("notifications = %d, want 3", obs.n)
				}
			},
		},
		{
			name:  "pool temp leaves other fields unknown",
			input: stream(display("Pool Temp 85°F")),
			verify: func(t *testing.T, c *Controller, obs *countObserver) {
				s := c.Store().Snapshot()
				if s.AirTemperature.Valid || s.ChlorinatorPercent.Valid {
					t.Errorf("untouched fields changed: %+v", s)
				}
			},
		},
		{
			name: "non-numeric value keeps previous reading",
			input: stream(
				display("Pool Temp 85°F"),
				display("Pool Temp --°F"),
			),
			verify: func(t *testing.T, c *Controller, obs *countObserver) {
				if got := c.Store().Snapshot().PoolTemperature; got != state.Known(85) {
					t.Errorf("pool = %v, want 85", got)
				}
				if obs.n != 1 {
					t.Errorf("notifications = %d, want 1", obs.n)
				}
				if c.Stats().Readings != 1 || c.Stats().DisplayFrames != 2 {
					t.Errorf("stats = %+v", c.Stats())
				}
			},
		},
		{
			name:  "keep-alive changes nothing",
			input: stream(frame(protocol.FrameTypeKeepAlive), frame(protocol.FrameTypeKeepAlive)),
			verify: func(t *testing.T, c *Controller, obs *countObserver) {
				if obs.n != 0 {
					t.Errorf("notifications = %d, want 0", obs.n)
				}
				if c.Store().Version() != 0 {
					t.Errorf("version = %d, want 0", c.Store().Version())
				}
				if c.Stats().KeepAlives != 2 {
					t.Errorf("keep-alives = %d, want 2", c.Stats().KeepAlives)
				}
			},
		},
		{
			name: "indicators",
			input: stream(
				frame(protocol.FrameTypeIndicators, 0x28, 0x00, 0x00, 0x00),
				frame(protocol.FrameTypeIndicators, 0x28, 0x00, 0x00, 0x00),
				frame(protocol.FrameTypeIndicators, 0x00, 0x00, 0x00, 0x00),
			),
			verify: func(t *testing.T, c *Controller, obs *countObserver) {
				// Identical bitmask does not notify; clearing does
				if obs.n != 2 {
					t.Errorf("notifications = %d, want 2", obs.n)
				}
				if !c.Store().Snapshot().Indicators.Empty() {
					t.Errorf("indicators = %v, want none", c.Store().Snapshot().Indicators)
				}
			},
		},
		{
			name: "bad checksum is dropped and the next frame decodes",
			input: func() *bytes.Reader {
				bad := frame(protocol.FrameTypeIndicators, 0x20, 0x00, 0x00, 0x00)
				bad[len(bad)-3] ^= 0x01
				return stream(bad, frame(protocol.FrameTypeIndicators, 0x40, 0x00, 0x00, 0x00))
			}(),
			verify: func(t *testing.T, c *Controller, obs *countObserver) {
				s := c.Store().Snapshot()
				if s.IsIndicatorActive(state.IndicatorFilter) || !s.IsIndicatorActive(state.IndicatorLights) {
					t.Errorf("indicators = %v, want [LIGHTS]", s.Indicators)
				}
				st := c.Stats()
				if st.ChecksumErrors != 1 || st.Frames != 2 || st.Dropped() != 1 {
					t.Errorf("stats = %+v", st)
				}
			},
		},
		{
			name: "unknown and short frames are counted",
			input: stream(
				frame(protocol.FrameType(0x0205), 0x01),
				frame(protocol.FrameTypeIndicators, 0x01),
				protocol.EncodeFrame([]byte{0x01}),
			),
			verify: func(t *testing.T, c *Controller, obs *countObserver) {
				st := c.Stats()
				if st.UnknownFrames != 1 || st.DecodeErrors != 2 {
					t.Errorf("stats = %+v", st)
				}
				if obs.n != 0 {
					t.Errorf("notifications = %d, want 0", obs.n)
				}
			},
		},
		{
			name: "end of stream mid-frame",
			input: func() *bytes.Reader {
				partial := display("Air Temp 60°F")
				return stream(display("Air Temp 70°F"), partial[:len(partial)-3])
			}(),
			verify: func(t *testing.T, c *Controller, obs *countObserver) {
				if got := c.Store().Snapshot().AirTemperature; got != state.Known(70) {
					t.Errorf("air = %v, want 70", got)
				}
				if obs.n != 1 || c.Stats().Frames != 1 {
					t.Errorf("notifications = %d, frames = %d", obs.n, c.Stats().Frames)
				}
			},
		},
		{
			name:  "empty stream",
			input: stream(),
			verify: func(t *testing.T, c *Controller, obs *countObserver) {
				if c.Stats().Frames != 0 || obs.n != 0 {
					t.Errorf("stats = %+v", c.Stats())
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, obs := newTestController(t, Config{Source: "test"})
			if err := c.Run(context.Background(), tt.input); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			tt.verify(t, c, obs)
		})
	}
}

func TestObserverSeesTriggeringVersion(t *testing.T) {
	c, obs := newTestController(t, Config{})
	input := stream(
		display("Pool Temp 80°F"),
		display("Pool Temp 81°F"),
		display("Pool Temp 82°F"),
	)
	if err := c.Run(context.Background(), input); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for i, v := range obs.versions {
		if v < uint64(i+1) {
			t.Errorf("notification %d read version %d", i, v)
		}
	}
}

func TestHooks(t *testing.T) {
	var keys [][]byte
	var lines []string
	c := New(Config{
		OnKeyEvent: func(m *protocol.KeyEventMessage) { keys = append(keys, m.Code) },
		OnDisplay:  func(text string) { lines = append(lines, text) },
	})

	input := stream(
		frame(protocol.FrameTypeKeyEvent, 0x02, 0x00, 0x00, 0x00),
		display("  Filter Speed   100%  "),
	)
	if err := c.Run(context.Background(), input); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(keys) != 1 || !bytes.Equal(keys[0], []byte{0x02, 0x00, 0x00, 0x00}) {
		t.Errorf("keys = %x", keys)
	}
	if len(lines) != 1 || lines[0] != "Filter Speed 100%" {
		t.Errorf("lines = %q", lines)
	}
	if c.LastDisplay() != "Filter Speed 100%" {
		t.Errorf("LastDisplay() = %q", c.LastDisplay())
	}
	if c.Store().Version() != 0 {
		t.Errorf("hooks must not change state, version = %d", c.Store().Version())
	}
}

type fakeRecorder struct {
	frames []uint64
	errs   []error
	fail   error
}

func (f *fakeRecorder) RecordFrame(num uint64, raw, payload []byte, msg protocol.Message, err error) error {
	f.frames = append(f.frames, num)
	f.errs = append(f.errs, err)
	return f.fail
}

func TestRecorderSeesDroppedFrames(t *testing.T) {
	rec := &fakeRecorder{fail: errors.New("disk full")}
	c := New(Config{Recorder: rec})

	bad := frame(protocol.FrameTypeKeepAlive)
	bad[len(bad)-3] ^= 0x01
	if err := c.Run(context.Background(), stream(frame(protocol.FrameTypeKeepAlive), bad)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(rec.frames) != 2 || rec.frames[0] != 1 || rec.frames[1] != 2 {
		t.Fatalf("recorded frames = %v", rec.frames)
	}
	if rec.errs[0] != nil || !errors.Is(rec.errs[1], protocol.ErrChecksum) {
		t.Errorf("recorded errors = %v", rec.errs)
	}
	if c.Stats().RecordErrors != 2 {
		t.Errorf("RecordErrors = %d, want 2", c.Stats().RecordErrors)
	}
}

func TestRunReadError(t *testing.T) {
	boom := errors.New("link down")
	c := New(Config{})
	err := c.Run(context.Background(), iotest.ErrReader(boom))
	if !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want %v", err, boom)
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := New(Config{})
	if err := c.Run(ctx, stream(frame(protocol.FrameTypeKeepAlive))); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if c.Stats().Frames != 0 {
		t.Errorf("frames = %d, want 0", c.Stats().Frames)
	}
}

func TestRunCancelUnblocksRead(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	c := New(Config{})
	updates, unsubscribe := c.Store().Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, server) }()

	go func() {
		_, _ = client.Write(frame(protocol.FrameTypeIndicators, 0x20, 0x00, 0x00, 0x00))
	}()

	select {
	case snap := <-updates:
		if !snap.IsIndicatorActive(state.IndicatorFilter) {
			t.Errorf("indicators = %v, want [FILTER]", snap.Indicators)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for state update")
	}

	// Run is now blocked reading the idle pipe
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestStatsIncludeSynchronizerCounters(t *testing.T) {
	c := New(Config{})
	noise := []byte{0xAA, 0xBB, protocol.DLE, 0x41}
	if err := c.Run(context.Background(), stream(noise, frame(protocol.FrameTypeKeepAlive))); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := c.Stats().SkippedBytes; got != 4 {
		t.Errorf("SkippedBytes = %d, want 4", got)
	}
}

func TestReaderFaultsAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging.SetLogger(zap.New(core))
	defer logging.SetLogger(nil)

	// DLE 0x41 inside a frame is an unknown escape
	bad := []byte{protocol.DLE, protocol.STX, 0x01, 0x01, protocol.DLE, 0x41, 0x00, 0x24, protocol.DLE, protocol.ETX}
	oversized := append([]byte{protocol.DLE, protocol.STX}, bytes.Repeat([]byte{0x55}, protocol.MaxFrameSize+1)...)

	c := New(Config{})
	if err := c.Run(context.Background(), stream(bad, oversized, frame(protocol.FrameTypeKeepAlive))); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	tests := []struct {
		msg    string
		verify func(t *testing.T, entries []observer.LoggedEntry)
	}{
		{
			msg: "Unknown escape sequence in frame",
			verify: func(t *testing.T, entries []observer.LoggedEntry) {
				if len(entries) != 1 {
					t.Fatalf("entries = %d, want 1", len(entries))
				}
				if num := entries[0].ContextMap()["frame_num"]; num != uint64(1) {
					t.Errorf("frame_num = %v, want 1", num)
				}
			},
		},
		{
			msg: "Abandoned oversized frame",
			verify: func(t *testing.T, entries []observer.LoggedEntry) {
				if len(entries) != 1 {
					t.Fatalf("entries = %d, want 1", len(entries))
				}
				if entries[0].Level != zapcore.DebugLevel {
					t.Errorf("level = %v, want debug", entries[0].Level)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			tt.verify(t, logs.FilterMessage(tt.msg).All())
		})
	}

	if s := c.Stats(); s.EscapeAnomalies != 1 || s.Overflows != 1 {
		t.Errorf("stats = %+v, want 1 anomaly and 1 overflow", s)
	}
}
