package credentials

import (
	"encoding/pem"
	"os"
)

const pemTypeCertificate = "CERTIFICATE"

// ParseCertificates collects every CERTIFICATE block in data, in order.
// Blocks of other types are skipped.
func ParseCertificates(data []byte) (CertificateChain, error) {
	var chain CertificateChain
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == pemTypeCertificate {
			chain = append(chain, block.Bytes)
		}
	}

	if len(chain) == 0 {
		return nil, ErrNoCertificates
	}
	return chain, nil
}

// LoadCertificates reads a PEM certificate chain file.
func LoadCertificates(path string) (CertificateChain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &CertificateLoadError{Path: path, Err: err}
	}

	chain, err := ParseCertificates(data)
	if err != nil {
		return nil, &CertificateLoadError{Path: path, Err: err}
	}
	return chain, nil
}
