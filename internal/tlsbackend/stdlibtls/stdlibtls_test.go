package stdlibtls_test

import (
	"bytes"
	"crypto/tls"
	"io"
	"net"
	"testing"
	"time"

	"github.com/ooni/httpsx/internal/rawconnector"
	"github.com/ooni/httpsx/internal/testingx"
	"github.com/ooni/httpsx/internal/tlsbackend/stdlibtls"
	"github.com/ooni/httpsx/model"
)

// handshake establishes a loopback TLS session: the client side goes
// through the backend under test, the server side is a goroutine
// running the stdlib server handshake.
func handshake(t *testing.T, backend *stdlibtls.Backend,
	opts model.HandshakeOptions, cert tls.Certificate) (model.TLSSession, *tls.Conn, error) {
	t.Helper()
	clientconn, serverconn := net.Pipe()
	server := tls.Server(serverconn, &tls.Config{
		Certificates: []tls.Certificate{cert},
	})
	go server.Handshake()
	raw := rawconnector.NewStream(clientconn)
	session, partial, err := backend.BeginHandshake(opts, raw)
	for session == nil && err == nil {
		select {
		case <-partial.Ready():
		case <-time.After(10 * time.Second):
			t.Fatal("timed out waiting for the handshake to resolve")
		}
		session, partial, err = partial.ResumeHandshake()
	}
	return session, server, err
}

func TestHandshakeSuccess(t *testing.T) {
	cert, pool := testingx.NewSelfSignedCert("example.com")
	backend := stdlibtls.New(&tls.Config{RootCAs: pool})
	session, server, err := handshake(t, backend, model.HandshakeOptions{
		ServerName: "example.com",
	}, cert)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()
	defer server.Close()
	state := session.ConnectionState()
	if state.Version == 0 {
		t.Fatal("expected a TLS version in the connection state")
	}
	if len(state.PeerCertificates) <= 0 {
		t.Fatal("expected peer certificates in the connection state")
	}
}

func TestHandshakeHostnameMismatch(t *testing.T) {
	cert, pool := testingx.NewSelfSignedCert("example.com")
	backend := stdlibtls.New(&tls.Config{RootCAs: pool})
	session, _, err := handshake(t, backend, model.HandshakeOptions{
		ServerName: "wrong.example.org",
	}, cert)
	if err == nil {
		t.Fatal("expected an error here")
	}
	if session != nil {
		t.Fatal("expected nil session here")
	}
}

func TestHandshakeSkipVerification(t *testing.T) {
	cert, _ := testingx.NewSelfSignedCert("example.com")
	backend := stdlibtls.New(new(tls.Config)) // empty trust store
	session, server, err := handshake(t, backend, model.HandshakeOptions{
		ServerName:       "wrong.example.org",
		SkipVerification: true,
	}, cert)
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()
	session.Close()
}

func TestSessionRoundTrip(t *testing.T) {
	cert, pool := testingx.NewSelfSignedCert("example.com")
	backend := stdlibtls.New(&tls.Config{RootCAs: pool})
	session, server, err := handshake(t, backend, model.HandshakeOptions{
		ServerName: "example.com",
	}, cert)
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()
	defer server.Close()
	done := make(chan error, 1)
	go func() {
		buffer := make([]byte, 6)
		if _, err := io.ReadFull(server, buffer); err != nil {
			done <- err
			return
		}
		if !bytes.Equal(buffer, []byte("antani")) {
			done <- io.ErrUnexpectedEOF
			return
		}
		_, err := server.Write(buffer)
		done <- err
	}()
	if _, err := session.Write([]byte("antani")); err != nil {
		t.Fatal(err)
	}
	buffer := make([]byte, 6)
	if _, err := io.ReadFull(session, buffer); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buffer, []byte("antani")) {
		t.Fatal("we received different bytes")
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestSessionShutdownSendsCloseNotify(t *testing.T) {
	cert, pool := testingx.NewSelfSignedCert("example.com")
	backend := stdlibtls.New(&tls.Config{RootCAs: pool})
	session, server, err := handshake(t, backend, model.HandshakeOptions{
		ServerName: "example.com",
	}, cert)
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()
	observed := make(chan error, 1)
	go func() {
		_, err := server.Read(make([]byte, 1))
		observed <- err
	}()
	if err := session.Shutdown(); err != nil {
		t.Fatal(err)
	}
	// close_notify must surface as a clean EOF on the peer
	if err := <-observed; err != io.EOF {
		t.Fatal("not the error we expected:", err)
	}
	session.Close()
}

func TestPartialSessionClose(t *testing.T) {
	clientconn, serverconn := net.Pipe()
	defer serverconn.Close()
	backend := stdlibtls.New(new(tls.Config))
	raw := rawconnector.NewStream(clientconn)
	session, partial, err := backend.BeginHandshake(model.HandshakeOptions{
		ServerName: "example.com",
	}, raw)
	if session != nil || err != nil {
		t.Fatal("expected an interrupted handshake here")
	}
	// closing the partial session must terminate the in-flight
	// handshake rather than leaking it
	if err := partial.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-partial.Ready():
	case <-time.After(10 * time.Second):
		t.Fatal("the handshake goroutine did not terminate")
	}
	if _, _, err := partial.ResumeHandshake(); err == nil {
		t.Fatal("expected an error here")
	}
}

func TestDefault(t *testing.T) {
	backend, err := stdlibtls.Default()
	if err != nil {
		t.Skip("no system cert pool on this platform:", err)
	}
	if backend == nil {
		t.Fatal("expected a backend here")
	}
}
