// Package server simulates an AquaLogic controller bus for testing without
// hardware.
//
// A Scenario describes the readings, unit and lit indicators to play back.
// A Generator turns it into the frames the controller would put on the RS-485
// bus: a keep-alive, the LED bitmask, one display update per LCD line and an
// optional key event, repeated forever. Every Nth frame can be sent with a
// bad checksum to exercise resynchronisation.
//
// The Server streams that bus to every TCP client, the same way a
// serial-to-network bridge does, so `aqualogic listen tcp://localhost:8899`
// works against `aqualogic simulate`.
//
// # Usage Example
//
//	srv, err := server.New(server.Config{
//	    Port:         8899,
//	    Interval:     100 * time.Millisecond,
//	    CorruptEvery: 25,
//	    Scenario:     server.DefaultScenario(),
//	})
//	if err != nil {
//	    return err
//	}
//	return srv.Start(ctx, nil)
//
// # Graceful Shutdown
//
// Cancelling the context passed to Start closes the listener, closes every
// client connection and waits for their goroutines.
package server
