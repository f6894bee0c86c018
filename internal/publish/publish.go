// Package publish forwards state snapshots to external systems: a NATS
// subject for event consumers and a Redis hash holding the latest state.
package publish

import (
	"context"
	"errors"
	"time"

	"github.com/muurk/aqualogic/internal/logging"
	"github.com/muurk/aqualogic/internal/state"
	"go.uber.org/zap"
)

// DefaultPublishTimeout bounds a single sink call
const DefaultPublishTimeout = 5 * time.Second

// Sink receives state snapshots
type Sink interface {
	Name() string
	Publish(ctx context.Context, snap state.State) error
	Close() error
}

// Run hands every snapshot received on updates to each sink until ctx is
// cancelled or updates is closed. Sink errors are logged and do not stop the
// loop. Sinks are closed on return.
func Run(ctx context.Context, updates <-chan state.State, sinks ...Sink) error {
	defer func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				logging.Warn("Failed to close publisher", zap.String("sink", s.Name()), zap.Error(err))
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-updates:
			if !ok {
				return nil
			}
			publishAll(ctx, snap, sinks)
		}
	}
}

func publishAll(ctx context.Context, snap state.State, sinks []Sink) {
	for _, s := range sinks {
		callCtx, cancel := context.WithTimeout(ctx, DefaultPublishTimeout)
		err := s.Publish(callCtx, snap)
		cancel()
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Warn("Failed to publish state",
				zap.String("sink", s.Name()),
				zap.Uint64("version", snap.Version),
				zap.Error(err),
			)
			continue
		}
		logging.Debug("Published state", zap.String("sink", s.Name()), zap.Uint64("version", snap.Version))
	}
}
