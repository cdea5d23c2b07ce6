package transport

import "net"

// ConnID identifies a connection for as long as it stays open. It's the only key used
// for storing per-connection parsing state.
type ConnID uint64

// Conn is the connection layer as seen by the request assembly machinery. Implementations
// must be safe for concurrent use, as responses may be written from handler goroutines
// while the event loop keeps delivering inbound data.
type Conn interface {
	// ID returns an identifier stable for the connection's lifetime.
	ID() ConnID
	// Write queues the data for sending. The slice is not retained after the call returns.
	Write([]byte) error
	// Close closes the connection once all previously queued writes are flushed.
	Close() error
	// Remote returns the remote address. May be nil.
	Remote() net.Addr
}
