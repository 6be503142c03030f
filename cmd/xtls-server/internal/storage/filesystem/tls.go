package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/credentials"
)

type FileTLSProvider struct {
	CertFile string
	KeyFile  string
}

func NewFileTLSProvider(certFile, keyFile string) *FileTLSProvider {
	return &FileTLSProvider{
		CertFile: certFile,
		KeyFile:  keyFile,
	}
}

// GetCredentials reads the chain file and then the key file. Errors are
// *credentials.CertificateLoadError or *credentials.PrivateKeyLoadError.
func (p *FileTLSProvider) GetCredentials(ctx context.Context) (*credentials.Credentials, error) {
	return credentials.Load(p.CertFile, p.KeyFile)
}

func (p *FileTLSProvider) Store(ctx context.Context, certPEM, keyPEM []byte) error {
	for _, dir := range []string{filepath.Dir(p.CertFile), filepath.Dir(p.KeyFile)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(p.CertFile, certPEM, 0o644); err != nil {
		return fmt.Errorf("failed to write cert file: %w", err)
	}
	if err := os.WriteFile(p.KeyFile, keyPEM, 0o600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}
