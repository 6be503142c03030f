package utils

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"time"
)

// KeyFormat selects the PEM encoding of a generated key.
type KeyFormat int

const (
	// KeyFormatPKCS8 emits an ECDSA P-256 key as "PRIVATE KEY".
	KeyFormatPKCS8 KeyFormat = iota
	// KeyFormatPKCS1 emits an RSA-2048 key as "RSA PRIVATE KEY".
	KeyFormatPKCS1
)

// CertOptions controls GenerateCert.
type CertOptions struct {
	CommonName string
	Hosts      []string
	NotBefore  time.Time
	ValidFor   time.Duration
	KeyFormat  KeyFormat
}

// GenerateSelfSignedCert creates a localhost certificate valid for one year.
func GenerateSelfSignedCert() (certPEM, keyPEM []byte, err error) {
	return GenerateCert(CertOptions{})
}

// GenerateCert creates a self-signed server certificate and its key, both PEM encoded.
func GenerateCert(opts CertOptions) (certPEM, keyPEM []byte, err error) {
	if opts.CommonName == "" {
		opts.CommonName = "xtls-server"
	}
	if len(opts.Hosts) == 0 {
		opts.Hosts = []string{"localhost", "127.0.0.1", "::1"}
	}
	if opts.NotBefore.IsZero() {
		opts.NotBefore = time.Now().Add(-time.Minute)
	}
	if opts.ValidFor == 0 {
		opts.ValidFor = 365 * 24 * time.Hour
	}

	var (
		signer   crypto.Signer
		keyBlock *pem.Block
	)
	switch opts.KeyFormat {
	case KeyFormatPKCS1:
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate rsa key: %w", err)
		}
		signer = key
		keyBlock = &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	default:
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to generate ecdsa key: %w", err)
		}
		der, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal private key: %w", err)
		}
		signer = key
		keyBlock = &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: opts.CommonName, Organization: []string{"xtls-server"}},
		NotBefore:             opts.NotBefore,
		NotAfter:              opts.NotBefore.Add(opts.ValidFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range opts.Hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, signer.Public(), signer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(keyBlock)
	return certPEM, keyPEM, nil
}
