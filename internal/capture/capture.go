// Package capture writes decoded frames to JSON Lines files for protocol
// analysis and reads them back.
package capture

import (
	"bufio"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/muurk/aqualogic/internal/logging"
	"github.com/muurk/aqualogic/internal/protocol"
	"go.uber.org/zap"
)

// Frame status values
const (
	StatusOK       = "ok"
	StatusChecksum = "checksum"
	StatusDecode   = "decode"
)

// FrameRecord represents a captured frame for analysis
type FrameRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	FrameNum     uint64    `json:"frame_num"`
	Source       string    `json:"source"`
	Status       string    `json:"status"`
	FrameType    string    `json:"frame_type,omitempty"`
	Tag          uint16    `json:"tag,omitempty"`
	Decoded      string    `json:"decoded,omitempty"`
	Error        string    `json:"error,omitempty"`
	PayloadLen   int       `json:"payload_length"`
	PayloadHex   string    `json:"payload_hex"`
	PayloadASCII string    `json:"payload_ascii"`
	RawFrameHex  string    `json:"raw_frame_hex"`
}

// Payload decodes PayloadHex
func (r FrameRecord) Payload() ([]byte, error) {
	return hex.DecodeString(r.PayloadHex)
}

// Recorder appends FrameRecords to one capture file
type Recorder struct {
	mu     sync.Mutex
	source string
	path   string
	file   *os.File
	w      *bufio.Writer
	count  uint64
	now    func() time.Time
}

// NewRecorder creates dir if needed and opens a new
// capture-YYYYMMDD-HHMMSS.jsonl file inside it
func NewRecorder(dir, source string) (*Recorder, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}

	now := time.Now()
	path := filepath.Join(dir, fmt.Sprintf("capture-%s.jsonl", now.Format("20060102-150405")))

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}

	logging.Info("Capturing frames",
		zap.String("filename", path),
		zap.String("source", source),
	)

	return &Recorder{
		source: source,
		path:   path,
		file:   f,
		w:      bufio.NewWriter(f),
		now:    time.Now,
	}, nil
}

// Path returns the capture file path
func (r *Recorder) Path() string {
	return r.path
}

// Count returns the number of records written
func (r *Recorder) Count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// RecordFrame builds a FrameRecord from a pipeline frame and writes it
func (r *Recorder) RecordFrame(num uint64, raw, payload []byte, msg protocol.Message, cause error) error {
	rec := NewFrameRecord(num, raw, payload, msg, cause)
	rec.Source = r.source
	return r.Write(rec)
}

// Write appends rec as one JSON line. The line is flushed immediately so a
// capture survives the process being killed.
func (r *Recorder) Write(rec FrameRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return os.ErrClosed
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal frame record: %w", err)
	}
	if _, err := r.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write capture file: %w", err)
	}
	if err := r.w.Flush(); err != nil {
		return fmt.Errorf("failed to write capture file: %w", err)
	}
	r.count++
	return nil
}

// Close flushes and closes the capture file
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	flushErr := r.w.Flush()
	closeErr := r.file.Close()
	r.file = nil

	logging.Debug("Closed capture file",
		zap.String("filename", r.path),
		zap.Uint64("records", r.count),
	)

	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// NewFrameRecord describes one frame. Status is derived from which stage
// produced cause.
func NewFrameRecord(num uint64, raw, payload []byte, msg protocol.Message, cause error) FrameRecord {
	rec := FrameRecord{
		FrameNum:     num,
		Status:       StatusOK,
		PayloadLen:   len(payload),
		PayloadHex:   hex.EncodeToString(payload),
		PayloadASCII: logging.ASCIIDump(payload),
		RawFrameHex:  hex.EncodeToString(raw),
	}

	switch {
	case cause != nil && payload == nil:
		rec.Status = StatusChecksum
	case cause != nil:
		rec.Status = StatusDecode
	}
	if cause != nil {
		rec.Error = cause.Error()
	}

	if msg != nil {
		rec.FrameType = protocol.GetMessageTypeName(msg.Type())
		rec.Tag = uint16(msg.Type())
		rec.Decoded = msg.String()
	}
	return rec
}

// ReadRecords parses a capture file. Blank lines are skipped; a malformed
// line fails with its line number.
func ReadRecords(r io.Reader) ([]FrameRecord, error) {
	var records []FrameRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec FrameRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// RebuildStream re-encodes the raw frames of records into a wire byte
// stream, so a capture can be fed back through the decoder. Records whose
// raw frame is too short to hold a checksum are skipped.
func RebuildStream(records []FrameRecord) ([]byte, error) {
	var out []byte
	for _, rec := range records {
		raw, err := hex.DecodeString(rec.RawFrameHex)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", rec.FrameNum, err)
		}
		if len(raw) < 2 {
			continue
		}
		n := len(raw) - 2
		sum := uint16(raw[n])<<8 | uint16(raw[n+1])
		out = append(out, protocol.EncodeFrameWithChecksum(raw[:n], sum)...)
	}
	return out, nil
}
