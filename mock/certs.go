package mock

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// CertSetup holds a test CA and a server and client certificate signed by it, all
// in PEM form as well as parsed.
type CertSetup struct {
	CaPEM                *bytes.Buffer
	ServerCert           tls.Certificate
	ServerCertPEM        *bytes.Buffer
	ServerCertPrivKeyPEM *bytes.Buffer
	ClientCert           tls.Certificate
	ClientCertPEM        *bytes.Buffer
	ClientCertPrivKeyPEM *bytes.Buffer
}

// CaToFile writes the CA cert to 'path/fileName' and returns the full path
func (cs CertSetup) CaToFile(path, fileName string) string {
	return toFile(path, fileName, cs.CaPEM)
}

// ServerCertToFile writes the server cert to 'path/fileName' and returns the full path
func (cs CertSetup) ServerCertToFile(path, fileName string) string {
	return toFile(path, fileName, cs.ServerCertPEM)
}

// ServerCertPrivKeyToFile writes the server key to 'path/fileName' and returns the full path
func (cs CertSetup) ServerCertPrivKeyToFile(path, fileName string) string {
	return toFile(path, fileName, cs.ServerCertPrivKeyPEM)
}

// ClientCertToFile writes the client cert to 'path/fileName' and returns the full path
func (cs CertSetup) ClientCertToFile(path, fileName string) string {
	return toFile(path, fileName, cs.ClientCertPEM)
}

// ClientCertPrivKeyToFile writes the client key to 'path/fileName' and returns the full path
func (cs CertSetup) ClientCertPrivKeyToFile(path, fileName string) string {
	return toFile(path, fileName, cs.ClientCertPrivKeyPEM)
}

// toFile writes the passed PEM buffer unless the file already exists
func toFile(path, fileName string, pemBytes *bytes.Buffer) string {
	p := filepath.Join(path, fileName)
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		if err := os.WriteFile(p, pemBytes.Bytes(), 0644); err != nil {
			panic(err)
		}
	}
	return p
}

// NewCertSetup creates a CA and a server and client cert signed by the CA
func NewCertSetup() (CertSetup, error) {
	cs := CertSetup{}
	caCert, caKey, caPEM, err := createCACert()
	if err != nil {
		return CertSetup{}, err
	}
	cs.CaPEM = caPEM
	cs.ServerCert, cs.ServerCertPEM, cs.ServerCertPrivKeyPEM, err = createCertItems(newX509("server", false, 2), caCert, caKey)
	if err != nil {
		return CertSetup{}, err
	}
	cs.ClientCert, cs.ClientCertPEM, cs.ClientCertPrivKeyPEM, err = createCertItems(newX509("client", false, 3), caCert, caKey)
	if err != nil {
		return CertSetup{}, err
	}
	return cs, nil
}

// createCertItems signs 'cert' with the CA and returns the parsed key pair along with
// the PEM-encoded cert and key.
func createCertItems(cert *x509.Certificate, caCert *x509.Certificate, caKey *ecdsa.PrivateKey) (tls.Certificate, *bytes.Buffer, *bytes.Buffer, error) {
	pk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, nil, nil, err
	}
	certBytes, err := x509.CreateCertificate(rand.Reader, cert, caCert, &pk.PublicKey, caKey)
	if err != nil {
		return tls.Certificate{}, nil, nil, err
	}
	keyBytes, err := x509.MarshalECPrivateKey(pk)
	if err != nil {
		return tls.Certificate{}, nil, nil, err
	}
	certPEM := new(bytes.Buffer)
	pem.Encode(certPEM, &pem.Block{Type: "CERTIFICATE", Bytes: certBytes})
	keyPEM := new(bytes.Buffer)
	pem.Encode(keyPEM, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})
	certificate, err := tls.X509KeyPair(certPEM.Bytes(), keyPEM.Bytes())
	if err != nil {
		return tls.Certificate{}, nil, nil, err
	}
	return certificate, certPEM, keyPEM, nil
}

// createCACert creates a self-signed CA with common name "root"
func createCACert() (*x509.Certificate, *ecdsa.PrivateKey, *bytes.Buffer, error) {
	ca := newX509("root", true, 1)
	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, nil, err
	}
	caBytes, err := x509.CreateCertificate(rand.Reader, ca, ca, &caKey.PublicKey, caKey)
	if err != nil {
		return nil, nil, nil, err
	}
	caPEM := new(bytes.Buffer)
	pem.Encode(caPEM, &pem.Block{Type: "CERTIFICATE", Bytes: caBytes})
	return ca, caKey, caPEM, nil
}

func newX509(cn string, isCA bool, serial int64) *x509.Certificate {
	keyUsage := x509.KeyUsageDigitalSignature
	if isCA {
		keyUsage |= x509.KeyUsageCertSign
	}
	return &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: cn},
		IsCA:                  isCA,
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().AddDate(1, 0, 0),
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		KeyUsage:              keyUsage,
	}
}
