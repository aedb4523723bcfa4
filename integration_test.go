package httpsx_test

import (
	"crypto/tls"
	"crypto/x509"
	"net"

	httpsx "github.com/ooni/httpsx"
	"github.com/ooni/httpsx/internal/tlsbackend/stdlibtls"
)

// newTLSEchoServer returns a server function for pipeConnector that
// terminates TLS with the given certificate and echoes bytes back.
func newTLSEchoServer(cert tls.Certificate) func(conn net.Conn) {
	return func(conn net.Conn) {
		tlsconn := tls.Server(conn, &tls.Config{
			Certificates: []tls.Certificate{cert},
		})
		defer tlsconn.Close()
		if err := tlsconn.Handshake(); err != nil {
			return
		}
		buffer := make([]byte, 1<<10)
		for {
			n, err := tlsconn.Read(buffer)
			if err != nil {
				return
			}
			if _, err := tlsconn.Write(buffer[:n]); err != nil {
				return
			}
		}
	}
}

// newLoopbackDialer creates a connector whose raw connects resolve to
// in-memory pipes served by the given server function and whose TLS
// backend trusts the given pool.
func newLoopbackDialer(server func(conn net.Conn), pool *x509.CertPool) *httpsx.Connector {
	return httpsx.FromParts(
		pipeConnector(server),
		stdlibtls.New(&tls.Config{RootCAs: pool}),
	)
}
