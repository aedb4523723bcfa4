package httpx

import (
	"net"
	"time"

	httpsx "github.com/ooni/httpsx"
	"github.com/ooni/httpsx/model"
)

// streamConn adapts a httpsx.Stream to the net.Conn interface for the
// HTTP client. Deadlines are not supported.
type streamConn struct {
	info   model.ConnInfo
	stream *httpsx.Stream
}

func (c *streamConn) Read(b []byte) (int, error) {
	return c.stream.Read(b)
}

func (c *streamConn) Write(b []byte) (int, error) {
	return c.stream.Write(b)
}

func (c *streamConn) Close() error {
	return c.stream.Close()
}

func (c *streamConn) LocalAddr() net.Addr {
	return streamAddr{network: c.info.Network, address: c.info.LocalAddress}
}

func (c *streamConn) RemoteAddr() net.Addr {
	return streamAddr{network: c.info.Network, address: c.info.RemoteAddress}
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

type streamAddr struct {
	network string
	address string
}

func (a streamAddr) Network() string {
	return a.network
}

func (a streamAddr) String() string {
	return a.address
}
