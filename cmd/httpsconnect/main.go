// httpsconnect fetches an URL through the httpsx connector.
package main

import (
	"crypto/tls"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/m-lab/go/rtx"
	httpsx "github.com/ooni/httpsx"
	"github.com/ooni/httpsx/handlers/logger"
	"github.com/ooni/httpsx/httpx"
	"github.com/ooni/httpsx/internal/rawconnector"
	"github.com/ooni/httpsx/internal/tlsbackend/stdlibtls"
	"github.com/ooni/httpsx/internal/tlsconf"
)

func main() {
	var (
		flagCABundle   = flag.String("httpsconnect-ca-bundle", "", "Path to the CA bundle to use")
		flagForce      = flag.Bool("httpsconnect-force-https", false, "Reject non-HTTPS URLs")
		flagInsecure   = flag.Bool("httpsconnect-insecure", false, "Disable hostname verification")
		flagSNI        = flag.String("httpsconnect-sni", "", "Force a specific SNI")
		flagURL        = flag.String("httpsconnect-url", "https://www.google.com/", "URL to fetch")
		flagWorkers    = flag.Int("httpsconnect-workers", 4, "Number of connect workers")
	)
	flag.Parse()
	log.SetHandler(cli.Default)
	log.SetLevel(log.DebugLevel)
	connector := newConnector(*flagWorkers, *flagCABundle, *flagSNI)
	connector.Handler = logger.NewHandler(log.Log)
	connector.DangerDisableHostnameVerification(*flagInsecure)
	connector.ForceHTTPS(*flagForce)
	client, err := httpx.NewClient(connector)
	rtx.Must(err, "httpx.NewClient failed")
	resp, err := client.HTTPClient.Get(*flagURL)
	rtx.Must(err, "GET failed")
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	rtx.Must(err, "reading body failed")
	data, err := json.MarshalIndent(summary(resp, len(body)), "", "  ")
	rtx.Must(err, "json.Marshal failed")
	fmt.Printf("%s\n", string(data))
}

func newConnector(workers int, cabundle, sni string) *httpsx.Connector {
	if cabundle == "" && sni == "" {
		connector, err := httpsx.New(workers)
		rtx.Must(err, "httpsx.New failed")
		return connector
	}
	config := new(tls.Config)
	if cabundle != "" {
		err := tlsconf.SetCABundle(config, cabundle)
		rtx.Must(err, "cannot load the CA bundle")
	}
	if sni != "" {
		err := tlsconf.ForceSpecificSNI(config, sni)
		rtx.Must(err, "cannot set the SNI")
	}
	return httpsx.FromParts(rawconnector.New(workers), stdlibtls.New(config))
}

func summary(resp *http.Response, bodyLength int) map[string]interface{} {
	out := map[string]interface{}{
		"bodyLength": bodyLength,
		"proto":      resp.Proto,
		"statusCode": resp.StatusCode,
	}
	if resp.TLS != nil {
		out["alpn"] = resp.TLS.NegotiatedProtocol
	}
	return out
}
