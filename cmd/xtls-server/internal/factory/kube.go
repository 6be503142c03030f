package factory

import (
	"fmt"
	"os"

	k8s "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/config"
	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/logger"
)

// NewKubeClient builds a clientset from kubeconfig when available and falls
// back to in-cluster configuration.
func NewKubeClient(cfg *config.Config) (*k8s.Clientset, error) {
	logger.Info("Creating Kubernetes client",
		"runtime", cfg.Runtime,
		"kubeconfig", cfg.KubeConfigPath,
		"context", cfg.KubeContext)

	kubeconfig := cfg.KubeConfigPath

	// For non-Kubernetes runtime, kubeconfig is required
	if cfg.Runtime != config.RuntimeKubernetes && kubeconfig == "" {
		if home := os.Getenv("HOME"); home != "" {
			kubeconfig = home + "/.kube/config"
		}
	}

	configOverrides := &clientcmd.ConfigOverrides{}
	if cfg.KubeContext != "" {
		configOverrides.CurrentContext = cfg.KubeContext
		logger.Info("Using specific Kubernetes context", "context", cfg.KubeContext)
	}

	var restConfig *rest.Config
	var err error

	// Try kubeconfig first (for VM/Container runtime or explicit config)
	if kubeconfig != "" {
		restConfig, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfig},
			configOverrides,
		).ClientConfig()

		if err != nil {
			logger.Warn("Failed to load kubeconfig, will try in-cluster config", "error", err)
		}
	}

	// Fallback to in-cluster config (for Kubernetes runtime)
	if restConfig == nil {
		logger.Info("Attempting in-cluster Kubernetes configuration")
		restConfig, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to build kubernetes config (tried kubeconfig and in-cluster): %w", err)
		}
	}

	clientset, err := k8s.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes client: %w", err)
	}
	return clientset, nil
}
