// Package logging provides structured logging for the AquaLogic bridge.
//
// This package wraps a global zap logger with convenience functions for the
// patterns used throughout the decoder: connection events, decoded frames and
// raw byte dumps.
//
// # Log Levels
//
//   - Debug: Per-frame detail (hex dumps, display lines, unknown frame tags)
//   - Info: Connection events, key events, state changes
//   - Warn: Dropped frames (bad checksum, short payload)
//   - Error: Byte source failures that stop the pipeline
//
// # Structured Logging
//
//	logging.Info("State changed",
//	    zap.Uint64("version", snap.Version),
//	    zap.String("pool_temp", snap.PoolTemperature.String()),
//	)
//
// # Configuration
//
// Initialize logging at startup:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// An empty level falls back to the AQUALOGIC_LOG_LEVEL environment variable;
// if that is also empty the logger is a no-op. Output goes to stderr so that
// the monitor dashboard and decode tables on stdout stay clean.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
