// Package httpsx contains an async-capable, TLS-pluggable HTTPS
// connector. Given a destination scheme, host, and port, the
// Connector produces a byte stream that is either plaintext or TLS
// protected, behind a uniform non-blocking connect operation meant to
// be driven by an HTTP client's connection pool.
//
// The Connector composes two asynchronous phases, the raw transport
// connect and the optional TLS handshake, into a single cancellable
// operation. Poll the returned Connecting until it resolves; drop it
// with Close to cancel. The TLS engine is pluggable through the
// model.TLSBackend capability, with crypto/tls as the default.
package httpsx

import (
	"time"

	"github.com/ooni/httpsx/errorsx"
	"github.com/ooni/httpsx/handlers"
	"github.com/ooni/httpsx/internal/handshaker"
	"github.com/ooni/httpsx/internal/rawconnector"
	"github.com/ooni/httpsx/internal/tlsbackend/stdlibtls"
	"github.com/ooni/httpsx/model"
)

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"
)

// Connector establishes plaintext or TLS protected connections. The
// configuration is immutable after construction: call the setters
// only during setup, before the Connector is shared across concurrent
// use. The TLS backend is a shared read-only handle, safe for many
// simultaneous connections.
type Connector struct {
	// Beginning is the zero time for Measurement events.
	Beginning time.Time

	// Handler receives Measurement events. Defaults to a handler
	// that discards them.
	Handler model.Handler

	// NextProtos is the list of protocols to advertise via ALPN.
	NextProtos []string

	backend              model.TLSBackend
	forceHTTPS           bool
	hostnameVerification bool
	raw                  model.RawConnector
}

// New creates a Connector with a default raw connector, bounded to
// the given number of concurrent connect workers, and a default TLS
// backend using the system trust store. The raw connector always
// attempts a plaintext connect: scheme enforcement happens here, not
// at the raw layer.
func New(workers int) (*Connector, error) {
	backend, err := stdlibtls.Default()
	if err != nil {
		return nil, err
	}
	return FromParts(rawconnector.New(workers), backend), nil
}

// FromParts creates a Connector from a raw connector and a TLS
// backend. Hostname verification is enabled and force-HTTPS is
// disabled by default.
func FromParts(raw model.RawConnector, backend model.TLSBackend) *Connector {
	return &Connector{
		Beginning:            time.Now(),
		Handler:              handlers.NoHandler,
		backend:              backend,
		hostnameVerification: true,
		raw:                  raw,
	}
}

// Clone returns a copy of the Connector that shares the raw connector
// and the TLS backend and copies the flags. Cloning is cheap.
func (c *Connector) Clone() *Connector {
	clone := *c
	return &clone
}

// DangerDisableHostnameVerification disables hostname verification
// when connecting: the handshake will succeed against a certificate
// whose name does not match the destination host. This removes a core
// security guarantee of TLS. Think twice before setting this.
func (c *Connector) DangerDisableHostnameVerification(disable bool) {
	c.hostnameVerification = !disable
}

// ForceHTTPS forces the use of HTTPS. Connecting to a destination
// whose scheme is not TLS secured fails before any network I/O.
func (c *Connector) ForceHTTPS(enable bool) {
	c.forceHTTPS = enable
}

// Connect starts connecting to the given destination. It returns a
// pending operation to be polled until it resolves. Exactly one poll
// may be in flight at a time: the returned Connecting is not safe for
// concurrent use.
func (c *Connector) Connect(dst model.Destination) *Connecting {
	cn := &Connecting{
		backend:   c.backend,
		beginning: c.Beginning,
		handler:   c.Handler,
		start:     time.Now(),
		tls:       dst.Scheme == schemeHTTPS,
		opts: model.HandshakeOptions{
			NextProtos:       c.NextProtos,
			ServerName:       dst.Host,
			SkipVerification: !c.hostnameVerification,
		},
	}
	if c.forceHTTPS && !cn.tls {
		cn.err = &errorsx.PolicyError{Scheme: dst.Scheme}
		return cn
	}
	cn.pending = c.raw.Connect(dst.Host, effectivePort(dst))
	return cn
}

func effectivePort(dst model.Destination) uint16 {
	if dst.Port != 0 {
		return dst.Port
	}
	if dst.Scheme == schemeHTTPS {
		return 443
	}
	return 80
}

// Connected is the successful outcome of a connect operation.
type Connected struct {
	// Stream is the established transport.
	Stream *Stream

	// Info contains the connection metadata.
	Info model.ConnInfo
}

// Connecting is a single pending connect operation. It resolves
// exactly once: polling it again after it resolved is a contract
// violation. Dropping a pending Connecting with Close is the only
// cancellation mechanism; there are no internal timeouts.
type Connecting struct {
	backend   model.TLSBackend
	beginning time.Time
	err       error
	handler   model.Handler
	info      model.ConnInfo
	machine   *handshaker.Machine
	opts      model.HandshakeOptions
	pending   model.PendingConn
	raw       model.RawStream
	resolved  bool
	start     time.Time
	tls       bool
}

// Poll advances the operation. It returns the established transport
// with its metadata, the failure that resolved the operation, or
// model.ErrWouldBlock when the operation is still pending and should
// be re-polled after Ready fires. Raw connect errors are propagated
// verbatim; handshake failures are wrapped as *errorsx.HandshakeError.
// Polling after the operation resolved panics with a
// *errorsx.ContractViolation.
func (cn *Connecting) Poll() (*Connected, error) {
	if cn.resolved {
		panic(&errorsx.ContractViolation{
			Op: "httpsx: poll after connect resolved",
		})
	}
	if cn.err != nil {
		cn.resolved = true
		return nil, cn.err
	}
	if cn.raw == nil {
		raw, info, err := cn.pending.Poll()
		if err == model.ErrWouldBlock {
			return nil, err
		}
		cn.emitConnect(info, err)
		if err != nil {
			cn.resolved = true
			return nil, err
		}
		cn.raw, cn.info = raw, info
		if !cn.tls {
			cn.resolved = true
			return cn.connected(newPlainStream(raw)), nil
		}
		cn.machine = handshaker.Start(cn.backend, cn.opts, raw)
		cn.start = time.Now()
		cn.emitHandshakeStart()
	}
	session, err := cn.machine.Poll()
	if err == model.ErrWouldBlock {
		return nil, err
	}
	cn.resolved = true
	cn.emitHandshakeDone(session, err)
	if err != nil {
		cn.raw.Close()
		return nil, err
	}
	cn.info.NegotiatedProtocol = session.ConnectionState().NegotiatedProtocol
	return cn.connected(newTLSStream(session, cn.raw)), nil
}

// Ready returns a channel that is closed when re-polling the
// operation may make progress. The readiness of the underlying
// transport, not this operation, determines when to re-poll.
func (cn *Connecting) Ready() <-chan struct{} {
	if cn.machine != nil {
		return cn.machine.Ready()
	}
	if cn.pending != nil {
		return cn.pending.Ready()
	}
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Close abandons the operation and releases the partially established
// raw transport and any partial handshake session. Closing a resolved
// operation is a no-op.
func (cn *Connecting) Close() error {
	if cn.resolved {
		return nil
	}
	cn.resolved = true
	if cn.machine != nil {
		err := cn.machine.Close()
		cn.raw.Close() // the partial session may have closed it already
		return err
	}
	if cn.pending != nil {
		return cn.pending.Close()
	}
	return nil
}

func (cn *Connecting) connected(s *Stream) *Connected {
	s.beginning, s.handler = cn.beginning, cn.handler
	return &Connected{Stream: s, Info: cn.info}
}

func (cn *Connecting) emitConnect(info model.ConnInfo, err error) {
	now := time.Now()
	cn.handler.OnMeasurement(model.Measurement{
		Connect: &model.ConnectEvent{
			Duration:      now.Sub(cn.start),
			Error:         err,
			LocalAddress:  info.LocalAddress,
			Network:       info.Network,
			RemoteAddress: info.RemoteAddress,
			Time:          now.Sub(cn.beginning),
		},
	})
}

func (cn *Connecting) emitHandshakeStart() {
	cn.handler.OnMeasurement(model.Measurement{
		TLSHandshakeStart: &model.TLSHandshakeStartEvent{
			NextProtos: cn.opts.NextProtos,
			ServerName: cn.opts.ServerName,
			Time:       time.Since(cn.beginning),
		},
	})
}

func (cn *Connecting) emitHandshakeDone(session model.TLSSession, err error) {
	now := time.Now()
	event := &model.TLSHandshakeDoneEvent{
		Duration: now.Sub(cn.start),
		Error:    err,
		Time:     now.Sub(cn.beginning),
	}
	if session != nil {
		event.ConnectionState = session.ConnectionState()
	}
	cn.handler.OnMeasurement(model.Measurement{TLSHandshakeDone: event})
}
