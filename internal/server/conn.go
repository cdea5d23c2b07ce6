package server

import (
	"net"

	"github.com/indigo-web/stitch/transport"
	gnet "github.com/panjf2000/gnet/v2"
	"github.com/valyala/bytebufferpool"
)

var _ transport.Conn = new(conn)

// conn adapts gnet.Conn. All the writes are asynchronous, therefore they're safe to be done
// from both the event-loop and handler goroutines. The written data is copied into a pooled
// buffer, which is released as soon as gnet is done with it.
type conn struct {
	gc      gnet.Conn
	id      transport.ConnID
	buffers *bytebufferpool.Pool
}

func newConn(gc gnet.Conn, id transport.ConnID, buffers *bytebufferpool.Pool) *conn {
	return &conn{
		gc:      gc,
		id:      id,
		buffers: buffers,
	}
}

func (c *conn) ID() transport.ConnID {
	return c.id
}

func (c *conn) Write(b []byte) error {
	buf := c.buffers.Get()
	buf.Reset()
	_, _ = buf.Write(b)

	return c.send(buf)
}

// send transfers the ownership of the buffer to gnet.
func (c *conn) send(buf *bytebufferpool.ByteBuffer) error {
	err := c.gc.AsyncWrite(buf.B, func(gnet.Conn, error) error {
		c.buffers.Put(buf)
		return nil
	})
	if err != nil {
		c.buffers.Put(buf)
	}

	return err
}

func (c *conn) Close() error {
	return c.gc.Close()
}

func (c *conn) Remote() net.Addr {
	return c.gc.RemoteAddr()
}
