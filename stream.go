package httpsx

import (
	"net"
	"time"

	"github.com/ooni/httpsx/model"
)

// streamMode tags which variant a Stream holds.
type streamMode int

const (
	modePlain = streamMode(iota)
	modeTLS
)

// Stream is the transport handed to the HTTP client. It is a tagged
// union holding exactly one of a plaintext raw stream or a TLS
// protected stream, and forwards I/O to whichever variant it holds.
// The caller owns the Stream and must Close it to release the
// underlying transport resources.
type Stream struct {
	beginning time.Time
	handler   model.Handler
	mode      streamMode
	plain     model.RawStream
	tls       *TLSStream
}

func newPlainStream(raw model.RawStream) *Stream {
	return &Stream{mode: modePlain, plain: raw}
}

func newTLSStream(session model.TLSSession, raw model.RawStream) *Stream {
	return &Stream{mode: modeTLS, tls: &TLSStream{session: session, raw: raw}}
}

// TLS returns the TLS protected stream, or nil when the Stream holds
// the plaintext variant.
func (s *Stream) TLS() *TLSStream {
	if s.mode == modeTLS {
		return s.tls
	}
	return nil
}

// NetConn returns the underlying net.Conn when the held variant
// carries one, and nil otherwise. For the TLS variant that is the TLS
// connection itself, which HTTP clients need for ALPN.
func (s *Stream) NetConn() net.Conn {
	type netConner interface {
		NetConn() net.Conn
	}
	var inner interface{}
	switch s.mode {
	case modePlain:
		inner = s.plain
	default:
		inner = s.tls.session
	}
	if nc, ok := inner.(netConner); ok {
		return nc.NetConn()
	}
	return nil
}

// Read reads data from the held variant.
func (s *Stream) Read(b []byte) (int, error) {
	switch s.mode {
	case modePlain:
		return s.plain.Read(b)
	default:
		return s.tls.Read(b)
	}
}

// Write writes data to the held variant.
func (s *Stream) Write(b []byte) (int, error) {
	switch s.mode {
	case modePlain:
		return s.plain.Write(b)
	default:
		return s.tls.Write(b)
	}
}

// Flush flushes the held variant.
func (s *Stream) Flush() error {
	switch s.mode {
	case modePlain:
		return s.plain.Flush()
	default:
		return s.tls.Flush()
	}
}

// Shutdown performs an orderly termination of the stream. On the
// plaintext variant this forwards to the raw transport. On the TLS
// variant the encryption layer is shut down first and the raw
// transport second; see TLSStream.Shutdown. A model.ErrWouldBlock
// return means the shutdown is still in progress and Shutdown must be
// called again.
func (s *Stream) Shutdown() error {
	var err error
	switch s.mode {
	case modePlain:
		err = s.plain.Shutdown()
	default:
		err = s.tls.Shutdown()
	}
	if err != model.ErrWouldBlock && s.handler != nil {
		s.handler.OnMeasurement(model.Measurement{
			Shutdown: &model.ShutdownEvent{
				Error: err,
				TLS:   s.mode == modeTLS,
				Time:  time.Since(s.beginning),
			},
		})
	}
	return err
}

// Close releases the resources owned by the held variant.
func (s *Stream) Close() error {
	switch s.mode {
	case modePlain:
		return s.plain.Close()
	default:
		return s.tls.Close()
	}
}

// TLSStream wraps the backend encrypted session and owns, by transfer
// from the connect operation, the raw transport beneath it. All byte
// I/O forwards to the session's encrypt/decrypt path.
type TLSStream struct {
	closeNotifySent bool
	raw             model.RawStream
	session         model.TLSSession
}

// Session returns the backend session for certificate inspection,
// ALPN, and similar queries. The raw transport beneath the session is
// not exposed.
func (s *TLSStream) Session() model.TLSSession {
	return s.session
}

// ConnectionState returns a snapshot of the session state.
func (s *TLSStream) ConnectionState() model.TLSConnectionState {
	return s.session.ConnectionState()
}

// Read reads decrypted data from the session.
func (s *TLSStream) Read(b []byte) (int, error) {
	return s.session.Read(b)
}

// Write encrypts and writes data through the session.
func (s *TLSStream) Write(b []byte) (int, error) {
	return s.session.Write(b)
}

// Flush flushes the session.
func (s *TLSStream) Flush() error {
	return s.session.Flush()
}

// Shutdown terminates the stream in two phases: first the encryption
// layer sends its clean-closure signal to the peer, then the raw
// transport is shut down. The first phase must fully succeed before
// the second begins: a model.ErrWouldBlock re-enters phase one on the
// next call, and any other phase-one error aborts the shutdown
// without touching the raw transport.
func (s *TLSStream) Shutdown() error {
	if !s.closeNotifySent {
		if err := s.session.Shutdown(); err != nil {
			return err
		}
		s.closeNotifySent = true
	}
	return s.raw.Shutdown()
}

// Close releases the session and the raw transport beneath it.
func (s *TLSStream) Close() error {
	return s.session.Close()
}
