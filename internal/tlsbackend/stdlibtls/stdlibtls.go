// Package stdlibtls adapts crypto/tls to the model.TLSBackend
// capability. The handshake runs on a goroutine owned by this
// adapter, so that BeginHandshake and ResumeHandshake never block:
// while the handshake is in flight they return an interrupted partial
// session whose Ready channel fires when the outcome is available.
//
// The adapter is not hardwired to the standard library: the NewConn
// hook accepts any TLS implementation compatible with oohttp.TLSConn,
// e.g. a uTLS connection.
package stdlibtls

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"

	"github.com/ooni/httpsx/model"
	oohttp "github.com/ooni/oohttp"
)

// Backend is the crypto/tls implementation of model.TLSBackend. The
// zero value is not valid: use New or Default. A Backend holds only
// immutable configuration and is safe for concurrent use by many
// in-flight connections.
type Backend struct {
	// NewConn is the OPTIONAL factory for creating the client side
	// TLS connection. When unset, we use the stdlib.
	NewConn func(conn net.Conn, config *tls.Config) oohttp.TLSConn

	config *tls.Config
}

// Default creates a Backend using the system trust store.
func Default() (*Backend, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, err
	}
	return New(&tls.Config{RootCAs: pool}), nil
}

// New creates a Backend using the given config. The config is cloned
// on each handshake and never mutated afterwards.
func New(config *tls.Config) *Backend {
	return &Backend{config: config}
}

// BeginHandshake implements model.TLSBackend.BeginHandshake.
func (b *Backend) BeginHandshake(opts model.HandshakeOptions,
	raw model.RawStream) (model.TLSSession, model.TLSPartialSession, error) {
	config := b.config.Clone() // avoid polluting the shared config
	if config.ServerName == "" {
		config.ServerName = opts.ServerName
	}
	if opts.SkipVerification {
		config.InsecureSkipVerify = true
	}
	if len(config.NextProtos) <= 0 {
		config.NextProtos = opts.NextProtos
	}
	tlsconn := b.newConn(asNetConn(raw), config)
	p := &partialSession{
		done: make(chan struct{}),
		conn: tlsconn,
		raw:  raw,
	}
	go func() {
		p.err = tlsconn.HandshakeContext(context.Background())
		close(p.done)
	}()
	return nil, p, nil
}

func (b *Backend) newConn(conn net.Conn, config *tls.Config) oohttp.TLSConn {
	if b.NewConn != nil {
		return b.NewConn(conn, config)
	}
	return tls.Client(conn, config)
}

type partialSession struct {
	conn oohttp.TLSConn
	done chan struct{}
	err  error
	raw  model.RawStream
}

// ResumeHandshake implements model.TLSPartialSession.ResumeHandshake.
func (p *partialSession) ResumeHandshake() (model.TLSSession, model.TLSPartialSession, error) {
	select {
	case <-p.done:
	default:
		return nil, p, nil
	}
	if p.err != nil {
		return nil, nil, p.err
	}
	return &Session{conn: p.conn}, nil, nil
}

// Ready implements model.TLSPartialSession.Ready.
func (p *partialSession) Ready() <-chan struct{} {
	return p.done
}

// Close implements model.TLSPartialSession.Close. Closing the raw
// transport makes the in-flight handshake fail, which terminates the
// handshake goroutine.
func (p *partialSession) Close() error {
	return p.raw.Close()
}

// Session is an established crypto/tls session.
type Session struct {
	conn oohttp.TLSConn
}

// Read implements model.TLSSession.Read.
func (s *Session) Read(b []byte) (int, error) {
	return s.conn.Read(b)
}

// Write implements model.TLSSession.Write.
func (s *Session) Write(b []byte) (int, error) {
	return s.conn.Write(b)
}

// Flush implements model.TLSSession.Flush. The record layer writes
// through, so there is nothing to do.
func (s *Session) Flush() error {
	return nil
}

// Shutdown implements model.TLSSession.Shutdown by sending the
// close_notify alert to the peer.
func (s *Session) Shutdown() error {
	type closeWriter interface {
		CloseWrite() error
	}
	if cw, ok := s.conn.(closeWriter); ok {
		return cw.CloseWrite()
	}
	return s.conn.Close()
}

// Close implements model.TLSSession.Close. This also closes the raw
// transport beneath the session.
func (s *Session) Close() error {
	return s.conn.Close()
}

// ConnectionState implements model.TLSSession.ConnectionState.
func (s *Session) ConnectionState() model.TLSConnectionState {
	return model.NewTLSConnectionState(s.conn.ConnectionState())
}

// NetConn returns the session as a net.Conn. Code integrating with
// net/http uses this to hand the real TLS connection to the HTTP
// client, which needs it for ALPN.
func (s *Session) NetConn() net.Conn {
	return s.conn
}

// asNetConn unwraps the net.Conn carried by the raw stream, or wraps
// the stream into a minimal net.Conn when there is none.
func asNetConn(raw model.RawStream) net.Conn {
	type netConner interface {
		NetConn() net.Conn
	}
	if nc, ok := raw.(netConner); ok {
		return nc.NetConn()
	}
	return &streamConn{raw: raw}
}
