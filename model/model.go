// Package model contains the data model. It defines the Destination
// that a Connector connects to, the interfaces of the collaborators
// the Connector depends upon (the raw connector and the TLS backend),
// and the events emitted while establishing connections.
//
// All non-blocking operations in this module use ErrWouldBlock as the
// uniform "not ready yet" signal. An operation returning ErrWouldBlock
// made no progress and should be re-polled once its Ready channel
// indicates that more progress is possible.
//
// All events have a Time. This is always the time in which an event
// has been emitted, relative to a predefined zero in time. Duration,
// where present, indicates for how long the code has been waiting
// for the event to happen.
package model

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"time"
)

// ErrWouldBlock indicates that a non-blocking operation cannot make
// progress right now and should be retried later. It is never wrapped
// by other errors emitted by this module.
var ErrWouldBlock = errors.New("operation would block")

// Destination identifies what to connect to.
type Destination struct {
	// Scheme is the URL scheme, e.g. "http" or "https".
	Scheme string

	// Host is the domain name or IP address to connect to.
	Host string

	// Port is the port to connect to. Zero means the
	// default port for the Scheme.
	Port uint16
}

// ConnInfo contains metadata about an established connection.
type ConnInfo struct {
	// Network is the underlying network, e.g. "tcp".
	Network string

	// LocalAddress is the connection's local address.
	LocalAddress string

	// RemoteAddress is the connection's remote address.
	RemoteAddress string

	// NegotiatedProtocol is the ALPN-negotiated protocol. It is
	// empty for plaintext connections.
	NegotiatedProtocol string
}

// RawStream is an established byte stream prior to any TLS. A
// non-blocking implementation returns ErrWouldBlock from Read, Write,
// Flush, and Shutdown without losing partial progress; implementations
// backed by a net.Conn simply block instead.
type RawStream interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)

	// Flush writes out any buffered data.
	Flush() error

	// Shutdown performs an orderly termination of the sending
	// direction of the stream.
	Shutdown() error

	// Close releases the resources owned by the stream.
	Close() error
}

// PendingConn is a single in-flight raw connect attempt.
type PendingConn interface {
	// Poll returns the established stream and its metadata, the
	// connect error, or ErrWouldBlock while the attempt is still
	// pending. A successful Poll transfers stream ownership to the
	// caller. Polling again after the attempt resolved is a caller
	// bug and causes a contract-violation panic.
	Poll() (RawStream, ConnInfo, error)

	// Ready returns a channel that is closed when re-polling is
	// worthwhile.
	Ready() <-chan struct{}

	// Close abandons the attempt and releases the underlying
	// socket, even when the connect lands later.
	Close() error
}

// RawConnector establishes raw transports. It always attempts a
// plaintext connect regardless of the destination scheme: scheme
// policy belongs to the Connector, not to this layer.
type RawConnector interface {
	Connect(host string, port uint16) PendingConn
}

// HandshakeOptions contains the per-connect options that the
// Connector passes down to the TLS backend.
type HandshakeOptions struct {
	// ServerName is the name to verify the peer certificate
	// against, and the SNI to send.
	ServerName string

	// SkipVerification disables certificate verification,
	// including hostname verification.
	SkipVerification bool

	// NextProtos is the list of protocols to advertise via ALPN.
	NextProtos []string
}

// TLSSession is an established encrypted session. All byte I/O goes
// through the session's encrypt/decrypt path.
type TLSSession interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Flush() error

	// Shutdown sends the clean-closure signal (close_notify) to the
	// peer. It may return ErrWouldBlock, in which case it must be
	// called again until it succeeds or fails.
	Shutdown() error

	// Close releases the session and the raw transport beneath it.
	Close() error

	// ConnectionState returns a snapshot of the session state for
	// certificate and ALPN inspection.
	ConnectionState() TLSConnectionState
}

// TLSPartialSession is an interrupted handshake awaiting more I/O.
type TLSPartialSession interface {
	// ResumeHandshake attempts exactly one more non-blocking
	// handshake step. Exactly one of the return values is set: the
	// session on success, a partial session when interrupted again,
	// the error on fatal failure.
	ResumeHandshake() (TLSSession, TLSPartialSession, error)

	// Ready returns a channel that is closed when another
	// ResumeHandshake call may make progress.
	Ready() <-chan struct{}

	// Close abandons the handshake and releases the raw transport.
	Close() error
}

// TLSBackend is the capability set of a pluggable TLS engine. A
// backend holds no per-connection mutable state: a single instance is
// safe for concurrent use by many in-flight connections.
type TLSBackend interface {
	// BeginHandshake starts a handshake over the given raw stream,
	// performing as much of it as possible without blocking. The
	// three-way result follows the ResumeHandshake convention.
	BeginHandshake(opts HandshakeOptions, raw RawStream) (TLSSession, TLSPartialSession, error)
}

// X509Certificate is an x.509 certificate.
type X509Certificate struct {
	// Data contains the certificate bytes in DER format.
	Data []byte
}

// TLSConnectionState contains the TLS connection state.
type TLSConnectionState struct {
	CipherSuite        uint16
	NegotiatedProtocol string
	PeerCertificates   []X509Certificate
	Version            uint16
}

// NewTLSConnectionState creates a new TLSConnectionState from the
// stdlib's connection state.
func NewTLSConnectionState(s tls.ConnectionState) TLSConnectionState {
	return TLSConnectionState{
		CipherSuite:        s.CipherSuite,
		NegotiatedProtocol: s.NegotiatedProtocol,
		PeerCertificates:   simplifyCerts(s.PeerCertificates),
		Version:            s.Version,
	}
}

func simplifyCerts(in []*x509.Certificate) (out []X509Certificate) {
	for _, cert := range in {
		out = append(out, X509Certificate{
			Data: cert.Raw,
		})
	}
	return
}

// ConnectEvent is emitted when the raw connect resolves.
type ConnectEvent struct {
	Duration      time.Duration
	Error         error
	LocalAddress  string
	Network       string
	RemoteAddress string
	Time          time.Duration
}

// TLSHandshakeStartEvent is emitted when we start a TLS handshake.
type TLSHandshakeStartEvent struct {
	NextProtos []string
	ServerName string
	Time       time.Duration
}

// TLSHandshakeDoneEvent is emitted when the handshake resolves.
type TLSHandshakeDoneEvent struct {
	ConnectionState TLSConnectionState
	Duration        time.Duration
	Error           error
	Time            time.Duration
}

// ShutdownEvent is emitted when a stream shutdown resolves.
type ShutdownEvent struct {
	Error error
	TLS   bool
	Time  time.Duration
}

// Measurement contains zero or more events. Do not assume that at any
// time a Measurement will only contain a single event. When a
// Measurement contains an event, the corresponding pointer is non nil.
type Measurement struct {
	Connect           *ConnectEvent           `json:",omitempty"`
	TLSHandshakeStart *TLSHandshakeStartEvent `json:",omitempty"`
	TLSHandshakeDone  *TLSHandshakeDoneEvent  `json:",omitempty"`
	Shutdown          *ShutdownEvent          `json:",omitempty"`
}

// Handler handles measurement events.
type Handler interface {
	// OnMeasurement is called when an event occurs. OnMeasurement
	// may be called by background goroutines and OnMeasurement
	// calls may happen concurrently.
	OnMeasurement(Measurement)
}
