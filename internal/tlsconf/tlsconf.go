// Package tlsconf helps with configuring TLS
package tlsconf

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"
)

// SetCABundle configures conf to use a specific CA bundle.
func SetCABundle(conf *tls.Config, path string) error {
	cert, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(cert) {
		return errors.New("tlsconf: no certificate could be parsed")
	}
	conf.RootCAs = pool
	return nil
}

// ForceSpecificSNI sets a specific SNI in conf.
func ForceSpecificSNI(conf *tls.Config, sni string) error {
	conf.ServerName = sni
	return nil
}
