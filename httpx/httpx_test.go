package httpx_test

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httpsx "github.com/ooni/httpsx"
	"github.com/ooni/httpsx/httpx"
	"github.com/ooni/httpsx/internal/rawconnector"
	"github.com/ooni/httpsx/internal/tlsbackend/stdlibtls"
	"github.com/ooni/httpsx/model"
)

func TestIntegrationPlainGET(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("antani"))
		},
	))
	defer server.Close()
	connector, err := httpsx.New(4)
	if err != nil {
		t.Fatal(err)
	}
	client, err := httpx.NewClient(connector)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Transport.CloseIdleConnections()
	resp, err := client.HTTPClient.Get(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "antani" {
		t.Fatal("unexpected body:", string(body))
	}
}

func TestIntegrationTLSGET(t *testing.T) {
	server := httptest.NewTLSServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("mascetti"))
		},
	))
	defer server.Close()
	pool := x509.NewCertPool()
	pool.AddCert(server.Certificate())
	connector := httpsx.FromParts(
		rawconnector.New(4),
		stdlibtls.New(&tls.Config{RootCAs: pool}),
	)
	client, err := httpx.NewClient(connector)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Transport.CloseIdleConnections()
	resp, err := client.HTTPClient.Get(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "mascetti" {
		t.Fatal("unexpected body:", string(body))
	}
}

func TestIntegrationForceHTTPSRejectsPlainURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("unreachable"))
		},
	))
	defer server.Close()
	connector, err := httpsx.New(4)
	if err != nil {
		t.Fatal(err)
	}
	connector.ForceHTTPS(true)
	client, err := httpx.NewClient(connector)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Transport.CloseIdleConnections()
	resp, err := client.HTTPClient.Get(server.URL)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected an error here")
	}
}

func TestAwaitContextCancellation(t *testing.T) {
	connector, err := httpsx.New(4)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	// 10.0.0.0/8 is not routable from the test environment, so the
	// connect stays pending until the context expires.
	connected, err := httpx.Await(ctx, connector.Connect(model.Destination{
		Scheme: "http",
		Host:   "10.255.255.1",
		Port:   80,
	}))
	if err == nil {
		t.Fatal("expected an error here")
	}
	if connected != nil {
		t.Fatal("expected nil connected here")
	}
}
