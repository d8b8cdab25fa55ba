package globals

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/aceeric/shellcache/impl/config"
)

// ParseTls builds the TLS configuration the gateway serves browsers and other clients
// with. Supports:
//   - 1-way: the gateway presents its cert and does not request client certs
//   - mTls: the gateway presents its cert, and requires and verifies client certs
//
// Client certs are verified against the OS trust store unless a CA is configured. With no
// TLS configuration a nil tls.Config is returned and the gateway serves plain HTTP.
func ParseTls() (*tls.Config, error) {
	tlsCfg := config.GetServerTlsCfg()
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	hasCfg := false
	if tlsCfg.Cert != "" && tlsCfg.Key != "" {
		cert, err := tls.LoadX509KeyPair(tlsCfg.Cert, tlsCfg.Key)
		if err != nil {
			return nil, fmt.Errorf("unable to load server cert and key: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
		hasCfg = true
	}
	cliAuth := strings.ToLower(tlsCfg.ClientAuth)
	if !slices.Contains([]string{"", "none", "verify"}, cliAuth) {
		return nil, fmt.Errorf("unsupported client auth value: %s", tlsCfg.ClientAuth)
	}
	if cliAuth == "verify" {
		if !hasCfg {
			return nil, fmt.Errorf("client auth 'verify' requires a server cert and key")
		}
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
		if tlsCfg.CA != "" {
			cp, err := certPool(tlsCfg.CA)
			if err != nil {
				return nil, err
			}
			cfg.ClientCAs = cp
		}
	}
	if hasCfg {
		return cfg, nil
	}
	return nil, nil
}

// TlsMsg formats the server TLS configuration for the startup banner
func TlsMsg() string {
	tlsCfg := config.GetServerTlsCfg()
	if tlsCfg.Cert == "" || tlsCfg.Key == "" {
		return "none"
	}
	msg := fmt.Sprintf("cert=%s, key=%s", tlsCfg.Cert, tlsCfg.Key)
	if tlsCfg.CA != "" {
		msg = fmt.Sprintf("%s, ca=%s", msg, tlsCfg.CA)
	}
	return fmt.Sprintf("%s, client verify=%s", msg, tlsCfg.ClientAuth)
}

func certPool(caFile string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, err
	}
	cp := x509.NewCertPool()
	if !cp.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("no certificates found in CA file: %s", caFile)
	}
	return cp, nil
}
