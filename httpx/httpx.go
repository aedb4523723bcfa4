// Package httpx integrates the connector with net/http. The Transport
// defined here acts as the driving executor of the connector's
// non-blocking operations: it polls a pending connect when its Ready
// channel fires, and it imposes deadlines by dropping the pending
// operation when the request context expires.
package httpx

import (
	"context"
	"net"
	"net/http"
	"strconv"

	httpsx "github.com/ooni/httpsx"
	"github.com/ooni/httpsx/model"
	"golang.org/x/net/http2"
)

// Transport is a replacement for http.Transport that establishes
// connections through a httpsx.Connector.
type Transport struct {
	connector *httpsx.Connector
	transport *http.Transport
}

// NewTransport creates a new Transport using the given connector. The
// connector is cloned, with ALPN configured for HTTP/2 and HTTP/1.1.
func NewTransport(connector *httpsx.Connector) (*Transport, error) {
	t := &Transport{connector: connector.Clone()}
	t.connector.NextProtos = []string{"h2", "http/1.1"}
	t.transport = &http.Transport{
		DialContext:    t.dialContext,
		DialTLSContext: t.dialTLSContext,
	}
	if err := http2.ConfigureTransport(t.transport); err != nil {
		return nil, err
	}
	return t, nil
}

// RoundTrip executes a single HTTP transaction, returning
// a Response for the provided Request.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.transport.RoundTrip(req)
}

// CloseIdleConnections closes any connections which were previously
// connected from previous requests but are now sitting idle in a
// "keep-alive" state. It does not interrupt any connections currently
// in use.
func (t *Transport) CloseIdleConnections() {
	t.transport.CloseIdleConnections()
}

func (t *Transport) dialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return t.dial(ctx, "http", address)
}

func (t *Transport) dialTLSContext(ctx context.Context, network, address string) (net.Conn, error) {
	return t.dial(ctx, "https", address)
}

func (t *Transport) dial(ctx context.Context, scheme, address string) (net.Conn, error) {
	host, portstr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, err
	}
	port, err := strconv.ParseUint(portstr, 10, 16)
	if err != nil {
		return nil, err
	}
	connected, err := Await(ctx, t.connector.Connect(model.Destination{
		Scheme: scheme,
		Host:   host,
		Port:   uint16(port),
	}))
	if err != nil {
		return nil, err
	}
	return asNetConn(connected), nil
}

// Await drives a pending connect operation to completion, waiting on
// its Ready channel between polls. When the context expires, the
// pending operation is dropped, which releases any partially
// established transport.
func Await(ctx context.Context, cn *httpsx.Connecting) (*httpsx.Connected, error) {
	for {
		connected, err := cn.Poll()
		if err == nil {
			return connected, nil
		}
		if err != model.ErrWouldBlock {
			return nil, err
		}
		select {
		case <-ctx.Done():
			cn.Close()
			return nil, ctx.Err()
		case <-cn.Ready():
		}
	}
}

// asNetConn extracts the most specific net.Conn view of the stream.
// The HTTP code requires the real TLS connection for ALPN, hence we
// unwrap it when the backend provides one; otherwise we fall back to
// a wrapper conn.
func asNetConn(connected *httpsx.Connected) net.Conn {
	if conn := connected.Stream.NetConn(); conn != nil {
		return conn
	}
	return &streamConn{stream: connected.Stream, info: connected.Info}
}

// Client is a replacement for http.Client.
type Client struct {
	// HTTPClient is the underlying client. Pass this client to
	// existing code that expects an *http.Client. For this reason
	// we can't embed it.
	HTTPClient *http.Client

	// Transport is the transport being used.
	Transport *Transport
}

// NewClient creates a new Client using the given connector.
func NewClient(connector *httpsx.Connector) (*Client, error) {
	transport, err := NewTransport(connector)
	if err != nil {
		return nil, err
	}
	return &Client{
		HTTPClient: &http.Client{Transport: transport},
		Transport:  transport,
	}, nil
}
