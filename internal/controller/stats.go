package controller

import "sync/atomic"

// Stats is a point-in-time copy of the pipeline counters
type Stats struct {
	Frames          uint64 `json:"frames"`
	ChecksumErrors  uint64 `json:"checksum_errors"`
	DecodeErrors    uint64 `json:"decode_errors"`
	KeepAlives      uint64 `json:"keep_alives"`
	KeyEvents       uint64 `json:"key_events"`
	IndicatorFrames uint64 `json:"indicator_frames"`
	DisplayFrames   uint64 `json:"display_frames"`
	Readings        uint64 `json:"readings"`
	UnknownFrames   uint64 `json:"unknown_frames"`
	StateChanges    uint64 `json:"state_changes"`
	RecordErrors    uint64 `json:"record_errors"`

	// Synchronizer counters
	EscapeAnomalies uint64 `json:"escape_anomalies"`
	SkippedBytes    uint64 `json:"skipped_bytes"`
	Overflows       uint64 `json:"overflows"`
}

type counters struct {
	frames          atomic.Uint64
	checksumErrors  atomic.Uint64
	decodeErrors    atomic.Uint64
	keepAlives      atomic.Uint64
	keyEvents       atomic.Uint64
	indicatorFrames atomic.Uint64
	displayFrames   atomic.Uint64
	readings        atomic.Uint64
	unknownFrames   atomic.Uint64
	stateChanges    atomic.Uint64
	recordErrors    atomic.Uint64
}

// Stats returns the current counters. Safe to call while Run is active.
func (c *Controller) Stats() Stats {
	s := Stats{
		Frames:          c.stats.frames.Load(),
		ChecksumErrors:  c.stats.checksumErrors.Load(),
		DecodeErrors:    c.stats.decodeErrors.Load(),
		KeepAlives:      c.stats.keepAlives.Load(),
		KeyEvents:       c.stats.keyEvents.Load(),
		IndicatorFrames: c.stats.indicatorFrames.Load(),
		DisplayFrames:   c.stats.displayFrames.Load(),
		Readings:        c.stats.readings.Load(),
		UnknownFrames:   c.stats.unknownFrames.Load(),
		StateChanges:    c.stats.stateChanges.Load(),
		RecordErrors:    c.stats.recordErrors.Load(),
	}
	if fr := c.reader.Load(); fr != nil {
		s.EscapeAnomalies = fr.EscapeAnomalies()
		s.SkippedBytes = fr.SkippedBytes()
		s.Overflows = fr.Overflows()
	}
	return s
}

// Dropped returns the number of frames discarded before dispatch
func (s Stats) Dropped() uint64 {
	return s.ChecksumErrors + s.DecodeErrors
}
