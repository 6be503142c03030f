package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// RuntimeEnvironment represents the execution environment
type RuntimeEnvironment string

const (
	RuntimeKubernetes RuntimeEnvironment = "kubernetes"
	RuntimeContainer  RuntimeEnvironment = "container"
	RuntimeVM         RuntimeEnvironment = "vm"
)

// TLSMode represents TLS certificate source
type TLSMode string

const (
	TLSModeFile       TLSMode = "file"
	TLSModeKubernetes TLSMode = "kubernetes"
	TLSModeMemory     TLSMode = "memory"
)

// Config holds all application configuration
type Config struct {
	// Core
	Debug bool `yaml:"debug"`

	// Runtime
	Runtime   RuntimeEnvironment `yaml:"-"`
	Namespace string             `yaml:"namespace"` // Only for kubernetes TLS mode

	// Server
	BindAddress      string        `yaml:"bind_address"`
	HealthServerPort string        `yaml:"health_server_port"`
	MaxConnections   int           `yaml:"max_connections"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`

	// Kubernetes client
	KubeConfigPath string `yaml:"kubeconfig"`
	KubeContext    string `yaml:"kube_context"`

	// TLS Configuration
	TLSMode                 TLSMode `yaml:"tls_mode"`
	TLSCertFile             string  `yaml:"tls_cert_file"`
	TLSKeyFile              string  `yaml:"tls_key_file"`
	TLSSecretName           string  `yaml:"tls_secret_name"`
	TLSMinVersion           string  `yaml:"tls_min_version"`
	TLSAutoGenerate         bool    `yaml:"tls_auto_generate"` // Generate self-signed if cert doesn't exist
	TLSAutoRenew            bool    `yaml:"tls_auto_renew"`    // Regenerate if cert is invalid/expired
	TLSRenewalThresholdDays int     `yaml:"tls_renewal_threshold_days"`

	// Request handler assets
	TemplatesDir string `yaml:"templates_dir"`
	PublicDir    string `yaml:"public_dir"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Runtime:                 RuntimeVM,
		Namespace:               "default",
		BindAddress:             "localhost:8443",
		MaxConnections:          1024,
		HandshakeTimeout:        10 * time.Second,
		IdleTimeout:             120 * time.Second,
		WriteTimeout:            30 * time.Second,
		ShutdownTimeout:         15 * time.Second,
		TLSMode:                 TLSModeMemory,
		TLSMinVersion:           "1.2",
		TLSRenewalThresholdDays: 30,
		TemplatesDir:            "web/templates",
		PublicDir:               "web/public",
	}
}

// LoadFromEnv loads configuration from an optional CONFIG_FILE and then
// environment variables. Environment variables take precedence.
func LoadFromEnv() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	env := &envReader{}

	// Core
	cfg.Debug = env.Bool("DEBUG", cfg.Debug)

	// Runtime - Auto-detect or explicit
	cfg.Runtime = determineRuntime()
	cfg.Namespace = determineNamespace(cfg.Namespace)

	// Server
	cfg.BindAddress = getEnv("BIND_ADDRESS", cfg.BindAddress)
	cfg.HealthServerPort = getEnv("HEALTH_SERVER_PORT", cfg.HealthServerPort)
	cfg.MaxConnections = env.Int("MAX_CONNECTIONS", cfg.MaxConnections)
	cfg.HandshakeTimeout = env.Duration("HANDSHAKE_TIMEOUT", cfg.HandshakeTimeout)
	cfg.IdleTimeout = env.Duration("IDLE_TIMEOUT", cfg.IdleTimeout)
	cfg.WriteTimeout = env.Duration("WRITE_TIMEOUT", cfg.WriteTimeout)
	cfg.ShutdownTimeout = env.Duration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)

	cfg.KubeConfigPath = getEnv("KUBECONFIG", cfg.KubeConfigPath)
	cfg.KubeContext = getEnv("KUBE_CONTEXT", cfg.KubeContext)

	// TLS
	cfg.TLSCertFile = getEnv("TLS_CERT_FILE", cfg.TLSCertFile)
	cfg.TLSKeyFile = getEnv("TLS_KEY_FILE", cfg.TLSKeyFile)
	cfg.TLSSecretName = getEnv("TLS_SECRET_NAME", cfg.TLSSecretName)
	cfg.TLSMode = determineTLSMode(cfg)
	cfg.TLSMinVersion = getEnv("TLS_MIN_VERSION", cfg.TLSMinVersion)
	cfg.TLSAutoGenerate = env.Bool("TLS_AUTO_GENERATE", cfg.TLSAutoGenerate)
	cfg.TLSAutoRenew = env.Bool("TLS_AUTO_RENEW", cfg.TLSAutoRenew)
	cfg.TLSRenewalThresholdDays = env.Int("TLS_RENEWAL_THRESHOLD_DAYS", cfg.TLSRenewalThresholdDays)

	cfg.TemplatesDir = getEnv("TEMPLATES_DIR", cfg.TemplatesDir)
	cfg.PublicDir = getEnv("PUBLIC_DIR", cfg.PublicDir)

	if err := env.Err(); err != nil {
		return nil, err
	}

	// Validation
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// validate ensures configuration is coherent
func (c *Config) validate() error {
	if c.BindAddress == "" {
		return fmt.Errorf("BIND_ADDRESS must not be empty")
	}

	switch c.TLSMode {
	case TLSModeFile:
		if c.TLSCertFile == "" || c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set when using file-based TLS")
		}
	case TLSModeKubernetes:
		if c.TLSSecretName == "" {
			return fmt.Errorf("TLS_SECRET_NAME must be set when using kubernetes TLS mode")
		}
		if c.Runtime == RuntimeContainer && c.KubeConfigPath == "" {
			return fmt.Errorf("kubernetes TLS mode in container runtime requires KUBECONFIG path")
		}
	case TLSModeMemory:
	default:
		return fmt.Errorf("unsupported TLS_MODE: %s", c.TLSMode)
	}

	if _, err := c.MinTLSVersion(); err != nil {
		return err
	}

	if c.MaxConnections < 0 {
		return fmt.Errorf("MAX_CONNECTIONS must not be negative: %d", c.MaxConnections)
	}
	for name, d := range map[string]time.Duration{
		"HANDSHAKE_TIMEOUT": c.HandshakeTimeout,
		"IDLE_TIMEOUT":      c.IdleTimeout,
		"WRITE_TIMEOUT":     c.WriteTimeout,
		"SHUTDOWN_TIMEOUT":  c.ShutdownTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative: %s", name, d)
		}
	}

	return nil
}

// MinTLSVersion maps TLSMinVersion onto the crypto/tls constant.
func (c *Config) MinTLSVersion() (uint16, error) {
	switch strings.TrimPrefix(strings.ToLower(c.TLSMinVersion), "tls") {
	case "1.0", "10":
		return tls.VersionTLS10, nil
	case "1.1", "11":
		return tls.VersionTLS11, nil
	case "1.2", "12", "":
		return tls.VersionTLS12, nil
	case "1.3", "13":
		return tls.VersionTLS13, nil
	}
	return 0, fmt.Errorf("unsupported TLS_MIN_VERSION: %s (supported: 1.0, 1.1, 1.2, 1.3)", c.TLSMinVersion)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed variables and collects every malformed value.
type envReader struct {
	errs []error
}

func (r *envReader) invalid(key, value string, err error) {
	r.errs = append(r.errs, fmt.Errorf("invalid %s=%q: %w", key, value, err))
}

// Err reports all malformed variables seen so far.
func (r *envReader) Err() error {
	return errors.Join(r.errs...)
}

func (r *envReader) Bool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		r.invalid(key, value, err)
		return defaultValue
	}
	return boolValue
}

func (r *envReader) Int(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		r.invalid(key, value, err)
		return defaultValue
	}
	return intValue
}

func (r *envReader) Duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.invalid(key, value, err)
		return defaultValue
	}
	return d
}

func determineRuntime() RuntimeEnvironment {
	// Explicit runtime setting
	if runtime := os.Getenv("RUNTIME"); runtime != "" {
		switch strings.ToLower(runtime) {
		case "kubernetes", "k8s":
			return RuntimeKubernetes
		case "container", "docker":
			return RuntimeContainer
		case "vm", "virtual-machine", "bare-metal":
			return RuntimeVM
		}
	}

	// Auto-detect: Check if running in Kubernetes
	if _, err := os.Stat("/var/run/secrets/kubernetes.io/serviceaccount"); err == nil {
		return RuntimeKubernetes
	}

	// Auto-detect: Check if running in container
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return RuntimeContainer
	}

	return RuntimeVM
}

func determineNamespace(fallback string) string {
	if ns := os.Getenv("NAMESPACE"); ns != "" {
		return ns
	}

	// Kubernetes downward API
	if ns := os.Getenv("POD_NAMESPACE"); ns != "" {
		return ns
	}

	// Read from service account (in-cluster)
	if data, err := os.ReadFile("/var/run/secrets/kubernetes.io/serviceaccount/namespace"); err == nil {
		return strings.TrimSpace(string(data))
	}

	if fallback == "" {
		return "default"
	}
	return fallback
}

func determineTLSMode(c *Config) TLSMode {
	// Explicit mode
	if mode := os.Getenv("TLS_MODE"); mode != "" {
		switch strings.ToLower(mode) {
		case "file", "filesystem":
			return TLSModeFile
		case "kubernetes", "k8s", "secret":
			return TLSModeKubernetes
		case "memory", "in-memory":
			return TLSModeMemory
		default:
			return TLSMode(mode)
		}
	}

	// Auto-detect based on configuration
	if c.TLSCertFile != "" {
		return TLSModeFile
	}

	if c.TLSSecretName != "" {
		return TLSModeKubernetes
	}

	return c.TLSMode
}
