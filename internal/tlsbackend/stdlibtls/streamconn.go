package stdlibtls

import (
	"net"
	"time"
)

// streamConn adapts a model.RawStream to the net.Conn interface that
// crypto/tls expects. Deadlines are not supported: the driving client
// imposes deadlines by dropping the pending operation instead.
type streamConn struct {
	raw interface {
		Read(b []byte) (int, error)
		Write(b []byte) (int, error)
		Close() error
	}
}

func (c *streamConn) Read(b []byte) (int, error) {
	return c.raw.Read(b)
}

func (c *streamConn) Write(b []byte) (int, error) {
	return c.raw.Write(b)
}

func (c *streamConn) Close() error {
	return c.raw.Close()
}

func (c *streamConn) LocalAddr() net.Addr {
	return streamAddr{}
}

func (c *streamConn) RemoteAddr() net.Addr {
	return streamAddr{}
}

func (c *streamConn) SetDeadline(t time.Time) error {
	return nil
}

func (c *streamConn) SetReadDeadline(t time.Time) error {
	return nil
}

func (c *streamConn) SetWriteDeadline(t time.Time) error {
	return nil
}

type streamAddr struct{}

func (streamAddr) Network() string {
	return "stream"
}

func (streamAddr) String() string {
	return "stream"
}
