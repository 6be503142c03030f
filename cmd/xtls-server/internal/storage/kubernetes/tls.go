package kubernetes

import (
	"context"
	"fmt"
	"io/fs"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/hasirciogluhq/xtls-server/cmd/xtls-server/internal/credentials"
)

// K8sTLSProvider reads credentials from a kubernetes.io/tls Secret.
type K8sTLSProvider struct {
	clientset  kubernetes.Interface
	namespace  string
	secretName string
}

func NewK8sTLSProvider(clientset kubernetes.Interface, namespace, secretName string) *K8sTLSProvider {
	return &K8sTLSProvider{
		clientset:  clientset,
		namespace:  namespace,
		secretName: secretName,
	}
}

func (p *K8sTLSProvider) source() string {
	return fmt.Sprintf("secret %s/%s", p.namespace, p.secretName)
}

// GetCredentials reads tls.crt and tls.key. A missing Secret is reported
// with fs.ErrNotExist in the error chain.
func (p *K8sTLSProvider) GetCredentials(ctx context.Context) (*credentials.Credentials, error) {
	secret, err := p.clientset.CoreV1().Secrets(p.namespace).Get(ctx, p.secretName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, &credentials.CertificateLoadError{
			Path: p.source(),
			Err:  fmt.Errorf("failed to get secret: %w: %w", err, fs.ErrNotExist),
		}
	}
	if err != nil {
		return nil, &credentials.CertificateLoadError{
			Path: p.source(),
			Err:  fmt.Errorf("failed to get secret: %w", err),
		}
	}

	certBytes, ok := secret.Data[corev1.TLSCertKey]
	if !ok {
		return nil, &credentials.CertificateLoadError{
			Path: p.source(),
			Err:  fmt.Errorf("secret missing %s", corev1.TLSCertKey),
		}
	}
	keyBytes, ok := secret.Data[corev1.TLSPrivateKeyKey]
	if !ok {
		return nil, &credentials.PrivateKeyLoadError{
			Path: p.source(),
			Err:  fmt.Errorf("secret missing %s", corev1.TLSPrivateKeyKey),
		}
	}

	return credentials.Parse(p.source(), certBytes, keyBytes)
}

func (p *K8sTLSProvider) Store(ctx context.Context, certPEM, keyPEM []byte) error {
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      p.secretName,
			Namespace: p.namespace,
			Labels: map[string]string{
				"app.kubernetes.io/managed-by": "xtls-server",
			},
		},
		Type: corev1.SecretTypeTLS,
		Data: map[string][]byte{
			corev1.TLSCertKey:       certPEM,
			corev1.TLSPrivateKeyKey: keyPEM,
		},
	}

	secrets := p.clientset.CoreV1().Secrets(p.namespace)
	_, err := secrets.Create(ctx, secret, metav1.CreateOptions{})
	if err == nil {
		return nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create secret %s: %w", p.source(), err)
	}

	// If it already exists, update it
	if _, err := secrets.Update(ctx, secret, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update secret %s: %w", p.source(), err)
	}
	return nil
}
