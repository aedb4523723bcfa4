package tlsconf

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
)

const pemSnippet = `-----BEGIN CERTIFICATE-----
MIIBhTCCASugAwIBAgIQIRi6zePL6mKjOipn+dNuaTAKBggqhkjOPQQDAjASMRAw
DgYDVQQKEwdBY21lIENvMB4XDTE3MTAyMDE5NDMwNloXDTE4MTAyMDE5NDMwNlow
EjEQMA4GA1UEChMHQWNtZSBDbzBZMBMGByqGSM49AgEGCCqGSM49AwEHA0IABD0d
7VNhbWvZLWPuj/RtHFjvtJBEwOkhbN/BnnE8rnZR8+sbwnc/KhCk3FhnpHZnQz7B
5aETbbIgmuvewdjvSBSjYzBhMA4GA1UdDwEB/wQEAwICpDATBgNVHSUEDDAKBggr
BgEFBQcDATAPBgNVHRMBAf8EBTADAQH/MCkGA1UdEQQiMCCCDmxvY2FsaG9zdDo1
NDUzgg4xMjcuMC4wLjE6NTQ1MzAKBggqhkjOPQQDAgNIADBFAiEA2zpJEPQyz6/l
Wf86aX6PepsntZv2GYlA5UpabfT2EZICICpJ5h/iI+i341gBmLiAFQOyTDT+/wQc
6MF9+Yw1Yy0t
-----END CERTIFICATE-----`

func TestSetCABundleNonexistent(t *testing.T) {
	conf := new(tls.Config)
	if err := SetCABundle(conf, "/nonexistent"); err == nil {
		t.Fatal("expected an error here")
	}
	if conf.RootCAs != nil {
		t.Fatal("RootCAs should not be set")
	}
}

func TestSetCABundleNotPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.pem")
	if err := os.WriteFile(path, []byte("not a bundle"), 0600); err != nil {
		t.Fatal(err)
	}
	conf := new(tls.Config)
	if err := SetCABundle(conf, path); err == nil {
		t.Fatal("expected an error here")
	}
}

func TestSetCABundleSuccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bundle.pem")
	if err := os.WriteFile(path, []byte(pemSnippet), 0600); err != nil {
		t.Fatal(err)
	}
	conf := new(tls.Config)
	if err := SetCABundle(conf, path); err != nil {
		t.Fatal(err)
	}
	if conf.RootCAs == nil {
		t.Fatal("RootCAs should be set")
	}
}

func TestForceSpecificSNI(t *testing.T) {
	conf := new(tls.Config)
	if err := ForceSpecificSNI(conf, "www.example.com"); err != nil {
		t.Fatal(err)
	}
	if conf.ServerName != "www.example.com" {
		t.Fatal("ServerName was not set")
	}
}
