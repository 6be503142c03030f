package credentials

import (
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
)

var (
	// ErrNoCertificates is returned when input holds no CERTIFICATE blocks.
	ErrNoCertificates = errors.New("no certificates found")
	// ErrNoPrivateKey is returned when no decoder yields a key.
	ErrNoPrivateKey = errors.New("no private key found")
)

// CertificateChain is the DER encoding of each certificate in file order,
// leaf first. The records are opaque at this layer.
type CertificateChain [][]byte

// Leaf parses the first certificate of the chain.
func (c CertificateChain) Leaf() (*x509.Certificate, error) {
	if len(c) == 0 {
		return nil, ErrNoCertificates
	}
	return x509.ParseCertificate(c[0])
}

// KeyFamily identifies the encoding a private key was read from.
type KeyFamily int

const (
	KeyFamilyPKCS8 KeyFamily = iota + 1
	KeyFamilyPKCS1
)

func (f KeyFamily) String() string {
	switch f {
	case KeyFamilyPKCS8:
		return "pkcs8"
	case KeyFamilyPKCS1:
		return "pkcs1"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// PrivateKey is the single key selected for the process.
type PrivateKey struct {
	Family KeyFamily
	DER    []byte
	Key    crypto.PrivateKey
}

// Credentials is the material a credential source hands to the TLS context builder.
type Credentials struct {
	Chain CertificateChain
	Key   PrivateKey
}

// CertificateLoadError reports a certificate source that could not be read or held no certificates.
type CertificateLoadError struct {
	Path string
	Err  error
}

func (e *CertificateLoadError) Error() string {
	return fmt.Sprintf("failed to load certificates from %s: %v", e.Path, e.Err)
}

func (e *CertificateLoadError) Unwrap() error { return e.Err }

// PrivateKeyLoadError reports a key source that could not be read or held no usable key.
type PrivateKeyLoadError struct {
	Path string
	Err  error
}

func (e *PrivateKeyLoadError) Error() string {
	return fmt.Sprintf("failed to load private key from %s: %v", e.Path, e.Err)
}

func (e *PrivateKeyLoadError) Unwrap() error { return e.Err }
