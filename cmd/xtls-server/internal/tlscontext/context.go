// Package tlscontext builds the server-side TLS parameters shared by every
// connection. A Context is built once and is read-only afterwards.
package tlscontext

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/credentials"
)

// TLSConfigError reports a certificate/key pairing that cannot serve TLS.
type TLSConfigError struct {
	Err error
}

func (e *TLSConfigError) Error() string {
	return fmt.Sprintf("failed to build TLS server context: %v", e.Err)
}

func (e *TLSConfigError) Unwrap() error { return e.Err }

// Options tune the built context. The zero value means TLS 1.2 minimum.
type Options struct {
	MinVersion uint16
}

// Context is the immutable TLS server context. Its fields are unexported so
// nothing outside this package can change it after Build returns.
type Context struct {
	config *tls.Config
	leaf   *x509.Certificate
}

// Build validates that key belongs to the chain's leaf and assembles the context.
// Client certificates are neither requested nor verified.
func Build(chain credentials.CertificateChain, key credentials.PrivateKey, opts Options) (*Context, error) {
	if len(chain) == 0 {
		return nil, &TLSConfigError{Err: credentials.ErrNoCertificates}
	}

	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return nil, &TLSConfigError{Err: fmt.Errorf("failed to parse leaf certificate: %w", err)}
	}

	signer, ok := key.Key.(crypto.Signer)
	if !ok {
		return nil, &TLSConfigError{Err: fmt.Errorf("unsupported %s private key type %T", key.Family, key.Key)}
	}

	pub, ok := leaf.PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	if !ok {
		return nil, &TLSConfigError{Err: fmt.Errorf("unsupported leaf public key type %T", leaf.PublicKey)}
	}
	if !pub.Equal(signer.Public()) {
		return nil, &TLSConfigError{Err: errors.New("private key does not match leaf certificate")}
	}

	minVersion := opts.MinVersion
	if minVersion == 0 {
		minVersion = tls.VersionTLS12
	}

	certs := make([][]byte, len(chain))
	copy(certs, chain)

	return &Context{
		config: &tls.Config{
			Certificates: []tls.Certificate{{
				Certificate: certs,
				PrivateKey:  signer,
				Leaf:        leaf,
			}},
			ClientAuth: tls.NoClientCert,
			MinVersion: minVersion,
		},
		leaf: leaf,
	}, nil
}

// BuildFromCredentials is Build for a loaded Credentials value.
func BuildFromCredentials(creds *credentials.Credentials, opts Options) (*Context, error) {
	if creds == nil {
		return nil, &TLSConfigError{Err: errors.New("no credentials")}
	}
	return Build(creds.Chain, creds.Key, opts)
}

// Server wraps conn as the server side of a TLS session. The handshake runs
// on first I/O or an explicit Handshake call.
func (c *Context) Server(conn net.Conn) *tls.Conn {
	return tls.Server(conn, c.config)
}

// Config returns a copy of the underlying configuration.
func (c *Context) Config() *tls.Config {
	cfg := c.config.Clone()
	// Clone shares slices with the original.
	cfg.Certificates = append([]tls.Certificate(nil), cfg.Certificates...)
	return cfg
}

// Subject is the leaf certificate's subject.
func (c *Context) Subject() string {
	return c.leaf.Subject.String()
}

// NotAfter is the leaf certificate's expiry.
func (c *Context) NotAfter() time.Time {
	return c.leaf.NotAfter
}
