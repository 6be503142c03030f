package memory

import (
	"context"
	"fmt"
	"io/fs"
	"sync"

	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/credentials"
)

// MemoryTLSProvider is a simple in-memory implementation for development
type MemoryTLSProvider struct {
	certPEM []byte
	keyPEM  []byte
	mu      sync.RWMutex
}

func NewMemoryTLSProvider() *MemoryTLSProvider {
	return &MemoryTLSProvider{}
}

func (p *MemoryTLSProvider) GetCredentials(ctx context.Context) (*credentials.Credentials, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.certPEM == nil {
		return nil, &credentials.CertificateLoadError{Path: "memory", Err: fs.ErrNotExist}
	}
	return credentials.Parse("memory", p.certPEM, p.keyPEM)
}

// Store validates the pair before keeping it.
func (p *MemoryTLSProvider) Store(ctx context.Context, certPEM, keyPEM []byte) error {
	if _, err := credentials.Parse("memory", certPEM, keyPEM); err != nil {
		return fmt.Errorf("refusing to store invalid credentials: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.certPEM = append([]byte(nil), certPEM...)
	p.keyPEM = append([]byte(nil), keyPEM...)
	return nil
}
