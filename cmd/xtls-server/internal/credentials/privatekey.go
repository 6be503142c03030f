package credentials

import (
	"crypto/x509"
	"encoding/pem"
	"os"
)

// KeyDecoder extracts the first key of one encoding family from PEM data.
// Decode must not modify data.
type KeyDecoder interface {
	Family() KeyFamily
	Decode(data []byte) (PrivateKey, bool)
}

// DefaultKeyDecoders is the fixed attempt order: PKCS#8 first, then PKCS#1.
var DefaultKeyDecoders = []KeyDecoder{PKCS8Decoder{}, PKCS1Decoder{}}

// PKCS8Decoder reads "PRIVATE KEY" blocks.
type PKCS8Decoder struct{}

func (PKCS8Decoder) Family() KeyFamily { return KeyFamilyPKCS8 }

func (d PKCS8Decoder) Decode(data []byte) (PrivateKey, bool) {
	return decodeFirst(data, "PRIVATE KEY", d.Family(), func(der []byte) (any, error) {
		return x509.ParsePKCS8PrivateKey(der)
	})
}

// PKCS1Decoder reads "RSA PRIVATE KEY" blocks.
type PKCS1Decoder struct{}

func (PKCS1Decoder) Family() KeyFamily { return KeyFamilyPKCS1 }

func (d PKCS1Decoder) Decode(data []byte) (PrivateKey, bool) {
	return decodeFirst(data, "RSA PRIVATE KEY", d.Family(), func(der []byte) (any, error) {
		return x509.ParsePKCS1PrivateKey(der)
	})
}

func decodeFirst(data []byte, blockType string, family KeyFamily, parse func([]byte) (any, error)) (PrivateKey, bool) {
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return PrivateKey{}, false
		}
		if block.Type != blockType {
			continue
		}
		key, err := parse(block.Bytes)
		if err != nil {
			continue
		}
		return PrivateKey{Family: family, DER: block.Bytes, Key: key}, true
	}
}

// ParsePrivateKey runs decoders in order over the same bytes; the first key
// found wins and any later keys are ignored. With no decoders given the
// DefaultKeyDecoders order is used.
func ParsePrivateKey(data []byte, decoders ...KeyDecoder) (PrivateKey, error) {
	if len(decoders) == 0 {
		decoders = DefaultKeyDecoders
	}
	for _, d := range decoders {
		if key, ok := d.Decode(data); ok {
			return key, nil
		}
	}
	return PrivateKey{}, ErrNoPrivateKey
}

// LoadPrivateKey reads a PEM key file once and parses it with ParsePrivateKey.
func LoadPrivateKey(path string, decoders ...KeyDecoder) (PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PrivateKey{}, &PrivateKeyLoadError{Path: path, Err: err}
	}

	key, err := ParsePrivateKey(data, decoders...)
	if err != nil {
		return PrivateKey{}, &PrivateKeyLoadError{Path: path, Err: err}
	}
	return key, nil
}

// Parse builds Credentials from in-memory PEM data. source names the origin in errors.
func Parse(source string, certPEM, keyPEM []byte) (*Credentials, error) {
	chain, err := ParseCertificates(certPEM)
	if err != nil {
		return nil, &CertificateLoadError{Path: source, Err: err}
	}
	key, err := ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, &PrivateKeyLoadError{Path: source, Err: err}
	}
	return &Credentials{Chain: chain, Key: key}, nil
}

// Load reads a certificate chain file and a key file.
func Load(certFile, keyFile string) (*Credentials, error) {
	chain, err := LoadCertificates(certFile)
	if err != nil {
		return nil, err
	}
	key, err := LoadPrivateKey(keyFile)
	if err != nil {
		return nil, err
	}
	return &Credentials{Chain: chain, Key: key}, nil
}
