package config

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "DEBUG", "RUNTIME", "NAMESPACE", "POD_NAMESPACE",
		"BIND_ADDRESS", "HEALTH_SERVER_PORT", "MAX_CONNECTIONS",
		"HANDSHAKE_TIMEOUT", "IDLE_TIMEOUT", "WRITE_TIMEOUT", "SHUTDOWN_TIMEOUT",
		"KUBECONFIG", "KUBE_CONTEXT", "TLS_MODE", "TLS_CERT_FILE", "TLS_KEY_FILE",
		"TLS_SECRET_NAME", "TLS_MIN_VERSION", "TLS_AUTO_GENERATE", "TLS_AUTO_RENEW",
		"TLS_RENEWAL_THRESHOLD_DAYS", "TEMPLATES_DIR", "PUBLIC_DIR",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("RUNTIME", "vm")
}

func TestLoadFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "localhost:8443", cfg.BindAddress)
	assert.Equal(t, TLSModeMemory, cfg.TLSMode)
	assert.Equal(t, 1024, cfg.MaxConnections)
	assert.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 120*time.Second, cfg.IdleTimeout)
	assert.False(t, cfg.TLSAutoGenerate)
	assert.Equal(t, RuntimeVM, cfg.Runtime)
}

func TestLoadFromEnvFileMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("TLS_CERT_FILE", "/etc/tls/cert.pem")
	t.Setenv("TLS_KEY_FILE", "/etc/tls/key.pem")
	t.Setenv("BIND_ADDRESS", "0.0.0.0:443")
	t.Setenv("MAX_CONNECTIONS", "0")
	t.Setenv("IDLE_TIMEOUT", "5s")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, TLSModeFile, cfg.TLSMode)
	assert.Equal(t, "0.0.0.0:443", cfg.BindAddress)
	assert.Equal(t, 0, cfg.MaxConnections)
	assert.Equal(t, 5*time.Second, cfg.IdleTimeout)
}

func TestLoadFromEnvValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"file mode without key", map[string]string{"TLS_MODE": "file", "TLS_CERT_FILE": "c.pem"}},
		{"kubernetes mode without secret", map[string]string{"TLS_MODE": "kubernetes"}},
		{"unknown mode", map[string]string{"TLS_MODE": "vault"}},
		{"negative connections", map[string]string{"MAX_CONNECTIONS": "-1"}},
		{"negative timeout", map[string]string{"HANDSHAKE_TIMEOUT": "-1s"}},
		{"bad tls version", map[string]string{"TLS_MIN_VERSION": "2.0"}},
		{"non-numeric connections", map[string]string{"MAX_CONNECTIONS": "abc"}},
		{"unparseable timeout", map[string]string{"IDLE_TIMEOUT": "forever"}},
		{"unparseable bool", map[string]string{"TLS_AUTO_GENERATE": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoadFromEnvConfigFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `bind_address: 127.0.0.1:9443
tls_mode: file
tls_cert_file: /srv/cert.pem
tls_key_file: /srv/key.pem
handshake_timeout: 3s
max_connections: 16
debug: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("MAX_CONNECTIONS", "32")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9443", cfg.BindAddress)
	assert.Equal(t, TLSModeFile, cfg.TLSMode)
	assert.Equal(t, "/srv/cert.pem", cfg.TLSCertFile)
	assert.Equal(t, 3*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 32, cfg.MaxConnections, "environment overrides the file")
	assert.True(t, cfg.Debug)
}

func TestLoadFromEnvReportsEveryMalformedValue(t *testing.T) {
	clearEnv(t)
	t.Setenv("MAX_CONNECTIONS", "abc")
	t.Setenv("WRITE_TIMEOUT", "30")

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.ErrorContains(t, err, `MAX_CONNECTIONS="abc"`)
	assert.ErrorContains(t, err, `WRITE_TIMEOUT="30"`)
}

func TestLoadFromEnvDebugFlag(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEBUG", "1")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
}

func TestMinTLSVersion(t *testing.T) {
	tests := map[string]uint16{
		"1.0":    tls.VersionTLS10,
		"1.2":    tls.VersionTLS12,
		"TLS1.3": tls.VersionTLS13,
		"":       tls.VersionTLS12,
	}
	for in, want := range tests {
		cfg := &Config{TLSMinVersion: in}
		got, err := cfg.MinTLSVersion()
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
