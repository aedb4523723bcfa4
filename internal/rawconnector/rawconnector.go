// Package rawconnector contains the default raw connector. It dials
// plaintext TCP connections using the standard library and adapts
// them to the non-blocking model.PendingConn surface. Dialing, and
// any DNS resolution it implies, happens on worker goroutines owned
// by this package: the connector core itself never blocks.
package rawconnector

import (
	"net"
	"strconv"
	"sync"

	"github.com/ooni/httpsx/errorsx"
	"github.com/ooni/httpsx/model"
)

// Connector is the default model.RawConnector. It always attempts a
// plaintext connect: scheme policy lives in the httpsx connector.
type Connector struct {
	dialer  *net.Dialer
	workers chan struct{}
}

// New creates a new Connector. The workers argument bounds the number
// of concurrent connect attempts; zero or negative means a small
// default.
func New(workers int) *Connector {
	if workers <= 0 {
		workers = 4
	}
	return &Connector{
		dialer:  new(net.Dialer),
		workers: make(chan struct{}, workers),
	}
}

// Connect starts a connect attempt towards host and port.
func (c *Connector) Connect(host string, port uint16) model.PendingConn {
	p := &pendingConn{done: make(chan struct{})}
	go func() {
		c.workers <- struct{}{}
		defer func() { <-c.workers }()
		address := net.JoinHostPort(host, strconv.Itoa(int(port)))
		conn, err := c.dialer.Dial("tcp", address)
		p.mu.Lock()
		if p.abandoned {
			p.mu.Unlock()
			if conn != nil {
				conn.Close()
			}
			return
		}
		// store and signal under the same lock, so Close observes
		// either abandoned-before-store or done-closed-with-conn-set
		p.conn, p.err = conn, err
		close(p.done)
		p.mu.Unlock()
	}()
	return p
}

type pendingConn struct {
	abandoned bool
	conn      net.Conn
	done      chan struct{}
	err       error
	mu        sync.Mutex
	resolved  bool
}

// Poll implements model.PendingConn.Poll.
func (p *pendingConn) Poll() (model.RawStream, model.ConnInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved {
		panic(&errorsx.ContractViolation{
			Op: "rawconnector: poll after connect resolved",
		})
	}
	select {
	case <-p.done:
	default:
		return nil, model.ConnInfo{}, model.ErrWouldBlock
	}
	p.resolved = true
	if p.err != nil {
		return nil, model.ConnInfo{}, p.err
	}
	info := model.ConnInfo{
		Network:       p.conn.RemoteAddr().Network(),
		LocalAddress:  p.conn.LocalAddr().String(),
		RemoteAddress: p.conn.RemoteAddr().String(),
	}
	return NewStream(p.conn), info, nil
}

// Ready implements model.PendingConn.Ready.
func (p *pendingConn) Ready() <-chan struct{} {
	return p.done
}

// Close implements model.PendingConn.Close. It abandons the attempt
// and ensures the socket is released, even when the dial lands after
// Close has returned.
func (p *pendingConn) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resolved || p.abandoned {
		return nil
	}
	p.abandoned = true
	p.resolved = true
	select {
	case <-p.done:
		if p.conn != nil {
			return p.conn.Close()
		}
	default:
		// the dial goroutine sees abandoned and closes the socket
	}
	return nil
}

// Stream adapts a net.Conn to the model.RawStream interface.
type Stream struct {
	conn net.Conn
}

// NewStream creates a new Stream wrapping the given conn.
func NewStream(conn net.Conn) *Stream {
	return &Stream{conn: conn}
}

// Read implements model.RawStream.Read.
func (s *Stream) Read(b []byte) (int, error) {
	return s.conn.Read(b)
}

// Write implements model.RawStream.Write.
func (s *Stream) Write(b []byte) (int, error) {
	return s.conn.Write(b)
}

// Flush implements model.RawStream.Flush. The conn is unbuffered, so
// there is nothing to do.
func (s *Stream) Flush() error {
	return nil
}

// Shutdown implements model.RawStream.Shutdown. On TCP streams it
// half-closes the sending direction; otherwise it closes the conn.
func (s *Stream) Shutdown() error {
	if tc, ok := s.conn.(*net.TCPConn); ok {
		return tc.CloseWrite()
	}
	type closeWriter interface {
		CloseWrite() error
	}
	if cw, ok := s.conn.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return s.conn.Close()
}

// Close implements model.RawStream.Close.
func (s *Stream) Close() error {
	return s.conn.Close()
}

// NetConn returns the underlying net.Conn. Code integrating with
// net/http uses this to hand the real connection to the HTTP client.
func (s *Stream) NetConn() net.Conn {
	return s.conn
}
