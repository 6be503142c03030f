package factory

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	k8s "k8s.io/client-go/kubernetes"

	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/config"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/core"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/credentials"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/logger"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/storage/filesystem"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/storage/kubernetes"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/storage/memory"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/utils"
)

// TLSFactory creates TLS providers based on configuration
type TLSFactory struct {
	cfg *config.Config

	// generate is swapped in tests.
	generate func() (certPEM, keyPEM []byte, err error)
}

// NewTLSFactory creates a new TLS factory
func NewTLSFactory(cfg *config.Config) *TLSFactory {
	return &TLSFactory{cfg: cfg, generate: utils.GenerateSelfSignedCert}
}

// Create creates a TLS provider based on configuration. clientset is only
// used in kubernetes mode and may be nil otherwise.
func (f *TLSFactory) Create(ctx context.Context, clientset k8s.Interface) (core.TLSProvider, error) {
	switch f.cfg.TLSMode {
	case config.TLSModeFile:
		return f.createFileProvider()
	case config.TLSModeKubernetes:
		return f.createKubernetesProvider(clientset)
	case config.TLSModeMemory:
		return f.createMemoryProvider()
	default:
		return nil, fmt.Errorf("unknown TLS mode: %s", f.cfg.TLSMode)
	}
}

func (f *TLSFactory) createFileProvider() (core.TLSProvider, error) {
	logger.Info("Creating File-based TLS Provider",
		"cert", f.cfg.TLSCertFile,
		"key", f.cfg.TLSKeyFile)
	return filesystem.NewFileTLSProvider(f.cfg.TLSCertFile, f.cfg.TLSKeyFile), nil
}

func (f *TLSFactory) createKubernetesProvider(clientset k8s.Interface) (core.TLSProvider, error) {
	if clientset == nil {
		return nil, fmt.Errorf("kubernetes TLS mode requires a kubernetes client (provide KUBECONFIG or run in-cluster)")
	}

	logger.Info("Creating Kubernetes TLS Provider",
		"namespace", f.cfg.Namespace,
		"secret", f.cfg.TLSSecretName)

	return kubernetes.NewK8sTLSProvider(clientset, f.cfg.Namespace, f.cfg.TLSSecretName), nil
}

func (f *TLSFactory) createMemoryProvider() (core.TLSProvider, error) {
	logger.Info("Creating Memory TLS Provider")
	return memory.NewMemoryTLSProvider(), nil
}

// EnsureCredentials loads credentials from provider. When the source does
// not exist a self-signed pair is generated if TLS_AUTO_GENERATE is set
// (always in memory mode). Any other load error is returned as is. A leaf expiring within the renewal threshold is logged and,
// with TLS_AUTO_RENEW, replaced.
func (f *TLSFactory) EnsureCredentials(ctx context.Context, provider core.TLSProvider) (*credentials.Credentials, error) {
	creds, err := provider.GetCredentials(ctx)

	if err != nil {
		// Only an absent source is replaced; unreadable or corrupt material is fatal.
		if !errors.Is(err, fs.ErrNotExist) || !f.autoGenerate() {
			return nil, err
		}
		logger.Info("Certificate not found. Generating new self-signed certificate...", "reason", err)
		return f.generateAndStore(ctx, provider)
	}

	expiring, notAfter, err := certificateExpiring(creds.Chain, f.cfg.TLSRenewalThresholdDays)
	if err != nil {
		// The context builder reports this with more detail.
		return creds, nil
	}
	if !expiring {
		logger.Info("Certificate loaded", "not_after", notAfter, "key_encoding", creds.Key.Family)
		return creds, nil
	}

	logger.Warn("Certificate is expiring soon",
		"not_after", notAfter,
		"threshold_days", f.cfg.TLSRenewalThresholdDays)

	if !f.cfg.TLSAutoRenew {
		return creds, nil
	}

	logger.Info("Renewing certificate (TLS_AUTO_RENEW=true)")
	return f.generateAndStore(ctx, provider)
}

func (f *TLSFactory) autoGenerate() bool {
	return f.cfg.TLSAutoGenerate || f.cfg.TLSMode == config.TLSModeMemory
}

func (f *TLSFactory) generateAndStore(ctx context.Context, provider core.TLSProvider) (*credentials.Credentials, error) {
	certPEM, keyPEM, err := f.generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}

	// Store the certificate (handles race condition for Kubernetes secrets)
	if err := provider.Store(ctx, certPEM, keyPEM); err != nil {
		// If store fails (possibly due to race condition), try to load again
		logger.Warn("Failed to store certificate, attempting to load existing cert", "error", err)
		creds, loadErr := provider.GetCredentials(ctx)
		if loadErr != nil {
			return nil, fmt.Errorf("failed to load certificate after store failure: %w", loadErr)
		}
		logger.Info("Successfully loaded certificate created by another instance")
		return creds, nil
	}

	logger.Info("Successfully generated and stored self-signed certificate")
	return provider.GetCredentials(ctx)
}

// certificateExpiring reports whether the chain's leaf expires within thresholdDays.
func certificateExpiring(chain credentials.CertificateChain, thresholdDays int) (bool, time.Time, error) {
	leaf, err := chain.Leaf()
	if err != nil {
		return false, time.Time{}, fmt.Errorf("failed to parse certificate: %w", err)
	}

	threshold := time.Now().AddDate(0, 0, thresholdDays)
	return leaf.NotAfter.Before(threshold), leaf.NotAfter, nil
}
