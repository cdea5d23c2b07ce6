package dummy

import (
	"net"
	"sync"

	"github.com/indigo-web/stitch/transport"
)

var _ transport.Conn = new(Conn)

// Conn records everything written into it and whether it was closed, making it a
// universal connection mock.
type Conn struct {
	mu      sync.Mutex
	id      transport.ConnID
	written []byte
	writes  int
	closed  bool
	remote  net.Addr
}

func NewConn(id transport.ConnID) *Conn {
	return &Conn{id: id}
}

// WithRemote sets the address returned by Remote.
func (c *Conn) WithRemote(addr net.Addr) *Conn {
	c.remote = addr
	return c
}

func (c *Conn) ID() transport.ConnID {
	return c.id
}

func (c *Conn) Write(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return net.ErrClosed
	}

	c.written = append(c.written, b...)
	c.writes++
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *Conn) Remote() net.Addr {
	return c.remote
}

// Written returns a copy of all the data written so far.
func (c *Conn) Written() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]byte(nil), c.written...)
}

// Writes returns the number of Write calls that went through.
func (c *Conn) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.writes
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}
