package streammux

import (
	"io"
	"time"
)

// StreamPorter is the minimal surface the mux needs from a transport: a
// readable, writable, closable byte stream. Serial ports, BLE-to-serial
// bridges, and in-memory test ports all satisfy it.
type StreamPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutStreamPorter is implemented by ports whose reads can time out
// instead of blocking indefinitely. Monitor configures a timeout when the
// port offers one, so a quiet device yields empty reads rather than pinning
// the read goroutine until Close.
type TimeoutStreamPorter interface {
	StreamPorter
	SetReadTimeout(timeout time.Duration) error
}
