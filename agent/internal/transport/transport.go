package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sleeperqc/sleeperqc/agent/internal/config"
)

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.EffectiveHeader(), t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req = req.Clone(req.Context())
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// NewClient builds an http.Client that authenticates with auth and dials
// with the given TLS options. mTLS client certificates are loaded once here.
func NewClient(auth config.AuthConfig, tlsOpts config.TLSConfig, timeout time.Duration) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: tlsOpts.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("transport: load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}

		if auth.CAFile != "" {
			caPEM, err := os.ReadFile(auth.CAFile)
			if err != nil {
				return nil, fmt.Errorf("transport: read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("transport: no valid certs found in ca file %q", auth.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = tlsCfg
	return &http.Client{
		Transport: &authRoundTripper{base: base, auth: auth},
		Timeout:   timeout,
	}, nil
}
