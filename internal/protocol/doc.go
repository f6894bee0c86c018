// Package protocol implements the AquaLogic serial wire protocol.
//
// This package handles frame synchronization, checksum verification,
// classification and payload decoding for the byte stream produced by a
// Hayward/Goldline AquaLogic pool controller on its RS-485 bus. The controller
// broadcasts continuously; this package is passive and never needs to answer.
//
// # Frame Format
//
// Frames have no length prefix. They are delimited by two-byte markers:
//   - Start: DLE STX (0x10 0x02)
//   - Payload: Variable length, any 0x10 byte stuffed as 0x10 0x00
//   - Checksum: 2 bytes, big-endian
//   - End: DLE ETX (0x10 0x03)
//
// The checksum is the sum of DLE, STX and every payload byte, modulo 2^16.
//
// # Frame Types
//
// The first two payload bytes are the frame type tag:
//   - Keep-alive (0x01 0x01): no data
//   - Key event (0x00 0x03): key code of a panel button press
//   - Indicators (0x01 0x02): 4-byte little-endian bitmask of panel LEDs
//   - Display update (0x01 0x03): ISO-8859-1 text shown on the panel LCD
//
// Tags outside this set are returned as UnknownMessage, never as an error.
//
// # Usage Example - Decoding
//
//	r := protocol.NewReader(conn)
//	for {
//	    raw, err := r.ReadFrame()
//	    if err != nil {
//	        return err // io.EOF on a clean end of stream
//	    }
//	    payload, err := protocol.Verify(raw)
//	    if err != nil {
//	        continue // corrupted frame, resync on the next DLE STX
//	    }
//	    msg, err := protocol.ParseMessage(payload)
//	    if err != nil {
//	        continue
//	    }
//	    fmt.Println(msg.String())
//	}
//
// # Usage Example - Encoding
//
//	payload := append([]byte{0x01, 0x03}, "Pool Temp 80\xb0F"...)
//	wire := protocol.EncodeFrame(payload)
//
// # Display Lines
//
// ParseDisplayLine extracts the readings the controller shows in rotation:
//
//	Pool Temp 85°F
//	Air Temp 72°F
//	Pool Chlorinator 45%
//
// Any other line (menus, prompts, diagnostics) yields ok == false.
//
// # Thread Safety
//
// A Reader must be used from a single goroutine. Its counters may be read
// concurrently. All other functions are stateless and safe for concurrent use.
package protocol
