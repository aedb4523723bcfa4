// Package testingx contains testing extensions: self signed
// certificates for loopback TLS tests, and instrumented fakes for the
// raw connector and TLS backend collaborators.
package testingx

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-lab/go/rtx"
	"github.com/ooni/httpsx/model"
)

// NewSelfSignedCert generates a certificate for the given hosts along
// with a pool trusting it. Any failure here is a programming error.
func NewSelfSignedCert(hosts ...string) (tls.Certificate, *x509.CertPool) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	rtx.PanicOnError(err, "ecdsa.GenerateKey failed")
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"httpsx testing"},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
			continue
		}
		template.DNSNames = append(template.DNSNames, host)
	}
	der, err := x509.CreateCertificate(
		rand.Reader, &template, &template, &key.PublicKey, key)
	rtx.PanicOnError(err, "x509.CreateCertificate failed")
	leaf, err := x509.ParseCertificate(der)
	rtx.PanicOnError(err, "x509.ParseCertificate failed")
	pool := x509.NewCertPool()
	pool.AddCert(leaf)
	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        leaf,
	}, pool
}

// CallLog records the order in which instrumented fakes are invoked.
// Share one CallLog across fakes to verify cross-object ordering.
type CallLog struct {
	calls []string
	mu    sync.Mutex
}

// Append appends a call name to the log.
func (l *CallLog) Append(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

// Calls returns a copy of the recorded call names.
func (l *CallLog) Calls() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// RecorderStream is a model.RawStream recording the operations
// performed on it.
type RecorderStream struct {
	// Log is where operations are recorded. Mandatory.
	Log *CallLog

	// Name prefixes the recorded operation names.
	Name string

	// ShutdownErr is the scripted Shutdown result.
	ShutdownErr error
}

// Read implements model.RawStream.Read.
func (s *RecorderStream) Read(b []byte) (int, error) {
	s.Log.Append(s.Name + ".read")
	return 0, net.ErrClosed
}

// Write implements model.RawStream.Write.
func (s *RecorderStream) Write(b []byte) (int, error) {
	s.Log.Append(s.Name + ".write")
	return len(b), nil
}

// Flush implements model.RawStream.Flush.
func (s *RecorderStream) Flush() error {
	s.Log.Append(s.Name + ".flush")
	return nil
}

// Shutdown implements model.RawStream.Shutdown.
func (s *RecorderStream) Shutdown() error {
	s.Log.Append(s.Name + ".shutdown")
	return s.ShutdownErr
}

// Close implements model.RawStream.Close.
func (s *RecorderStream) Close() error {
	s.Log.Append(s.Name + ".close")
	return nil
}

// RecorderSession is a model.TLSSession recording the operations
// performed on it. Its Shutdown returns the scripted ShutdownErrs in
// order, then nil forever.
type RecorderSession struct {
	// Log is where operations are recorded. Mandatory.
	Log *CallLog

	// Name prefixes the recorded operation names.
	Name string

	// ShutdownErrs contains the scripted Shutdown results.
	ShutdownErrs []error

	// State is the scripted connection state.
	State model.TLSConnectionState

	shutdownCalls int
}

// Read implements model.TLSSession.Read.
func (s *RecorderSession) Read(b []byte) (int, error) {
	s.Log.Append(s.Name + ".read")
	return 0, net.ErrClosed
}

// Write implements model.TLSSession.Write.
func (s *RecorderSession) Write(b []byte) (int, error) {
	s.Log.Append(s.Name + ".write")
	return len(b), nil
}

// Flush implements model.TLSSession.Flush.
func (s *RecorderSession) Flush() error {
	s.Log.Append(s.Name + ".flush")
	return nil
}

// Shutdown implements model.TLSSession.Shutdown.
func (s *RecorderSession) Shutdown() error {
	s.Log.Append(s.Name + ".shutdown")
	if s.shutdownCalls < len(s.ShutdownErrs) {
		err := s.ShutdownErrs[s.shutdownCalls]
		s.shutdownCalls++
		return err
	}
	return nil
}

// Close implements model.TLSSession.Close.
func (s *RecorderSession) Close() error {
	s.Log.Append(s.Name + ".close")
	return nil
}

// ConnectionState implements model.TLSSession.ConnectionState.
func (s *RecorderSession) ConnectionState() model.TLSConnectionState {
	return s.State
}

// ScriptedBackend is a model.TLSBackend whose handshake is
// interrupted a scripted number of times before resolving with either
// the configured session or the configured error.
type ScriptedBackend struct {
	// Interruptions is how many times the handshake reports
	// "interrupted" before resolving. Zero makes the outcome
	// available at BeginHandshake time.
	Interruptions int

	// Err makes the handshake resolve with a failure.
	Err error

	// Session is the session yielded on success. When nil and Err
	// is nil too, a RecorderSession with an empty log is used.
	Session model.TLSSession

	begins int32
}

// BeginHandshake implements model.TLSBackend.BeginHandshake.
func (b *ScriptedBackend) BeginHandshake(opts model.HandshakeOptions,
	raw model.RawStream) (model.TLSSession, model.TLSPartialSession, error) {
	atomic.AddInt32(&b.begins, 1)
	partial := &scriptedPartial{
		backend:   b,
		remaining: b.Interruptions,
	}
	return partial.step()
}

// Begins returns the number of BeginHandshake invocations.
func (b *ScriptedBackend) Begins() int {
	return int(atomic.LoadInt32(&b.begins))
}

func (b *ScriptedBackend) session() model.TLSSession {
	if b.Session != nil {
		return b.Session
	}
	return &RecorderSession{Log: new(CallLog), Name: "session"}
}

type scriptedPartial struct {
	backend   *ScriptedBackend
	remaining int
}

func (p *scriptedPartial) step() (model.TLSSession, model.TLSPartialSession, error) {
	if p.remaining > 0 {
		p.remaining--
		return nil, p, nil
	}
	if p.backend.Err != nil {
		return nil, nil, p.backend.Err
	}
	return p.backend.session(), nil, nil
}

// ResumeHandshake implements model.TLSPartialSession.ResumeHandshake.
func (p *scriptedPartial) ResumeHandshake() (model.TLSSession, model.TLSPartialSession, error) {
	return p.step()
}

// Ready implements model.TLSPartialSession.Ready.
func (p *scriptedPartial) Ready() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Close implements model.TLSPartialSession.Close.
func (p *scriptedPartial) Close() error {
	return nil
}

// FuncConnector adapts a dial function to the model.RawConnector
// interface and counts invocations.
type FuncConnector struct {
	// Dial produces the stream handed out by Connect.
	Dial func(host string, port uint16) (model.RawStream, model.ConnInfo, error)

	connects int32
}

// Connect implements model.RawConnector.Connect. The returned pending
// conn is immediately ready.
func (c *FuncConnector) Connect(host string, port uint16) model.PendingConn {
	atomic.AddInt32(&c.connects, 1)
	stream, info, err := c.Dial(host, port)
	return &readyPending{stream: stream, info: info, err: err}
}

// Connects returns the number of Connect invocations.
func (c *FuncConnector) Connects() int {
	return int(atomic.LoadInt32(&c.connects))
}

type readyPending struct {
	err    error
	info   model.ConnInfo
	stream model.RawStream
}

// Poll implements model.PendingConn.Poll.
func (p *readyPending) Poll() (model.RawStream, model.ConnInfo, error) {
	return p.stream, p.info, p.err
}

// Ready implements model.PendingConn.Ready.
func (p *readyPending) Ready() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// Close implements model.PendingConn.Close.
func (p *readyPending) Close() error {
	if p.stream != nil {
		return p.stream.Close()
	}
	return nil
}
