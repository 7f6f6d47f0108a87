package configloader

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds server-specific configurations.
type ServerConfig struct {
	Port         string `yaml:"port"`
	ReadTimeout  int    `yaml:"readTimeout"`
	WriteTimeout int    `yaml:"writeTimeout"`
	IdleTimeout  int    `yaml:"idleTimeout"`
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level string `yaml:"level"` // e.g., "debug", "info", "warn", "error"
}

// RegistryConfig selects where the network registry lives.
type RegistryConfig struct {
	Path          string `yaml:"path"`
	Backend       string `yaml:"backend"` // "json" or "pebble"
	PebbleDir     string `yaml:"pebbleDir"`
	LockTimeoutMs int64  `yaml:"lockTimeoutMs"`
}

// SignerConfig names the environment variable holding the signing key.
type SignerConfig struct {
	EnvVar string `yaml:"envVar"`
}

// RpcClientConfig holds configuration for RPC clients.
type RpcClientConfig struct {
	ConnectionTimeoutMs   int64 `yaml:"connectionTimeoutMs"`
	CallTimeoutMs         int64 `yaml:"callTimeoutMs"`
	ReceiptPollIntervalMs int64 `yaml:"receiptPollIntervalMs"`
	InclusionTimeoutMs    int64 `yaml:"inclusionTimeoutMs"`
}

// AttestationConfig holds configuration for the attestation service client and poller.
type AttestationConfig struct {
	InitialDelayMs     int64   `yaml:"initialDelayMs"`
	PollIntervalMs     int64   `yaml:"pollIntervalMs"`
	MaxIntervalMs      int64   `yaml:"maxIntervalMs"`
	MaxWaitMs          int64   `yaml:"maxWaitMs"`
	RequestTimeoutMs   int64   `yaml:"requestTimeoutMs"`
	CacheTTLMinutes    int     `yaml:"cacheTTLMinutes"`
	RateLimitPerSecond float64 `yaml:"rateLimitPerSecond"`
	Burst              int     `yaml:"burst"`
}

// ContractsConfig optionally points at hardhat artifacts for the governance contracts.
type ContractsConfig struct {
	MainArtifact string `yaml:"mainArtifact"`
	SideArtifact string `yaml:"sideArtifact"`
}

// RelayConfig names the networks the HTTP relay bounces between.
type RelayConfig struct {
	MainNetwork string `yaml:"mainNetwork"`
	SideNetwork string `yaml:"sideNetwork"`
}

// MetricsConfig holds configuration for the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// SwaggerConfig holds configuration for Swagger UI.
type SwaggerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	SpecPath string `yaml:"specPath"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
	Registry    RegistryConfig    `yaml:"registry"`
	Signer      SignerConfig      `yaml:"signer"`
	RpcClient   RpcClientConfig   `yaml:"rpcClient"`
	Attestation AttestationConfig `yaml:"attestation"`
	Contracts   ContractsConfig   `yaml:"contracts"`
	Relay       RelayConfig       `yaml:"relay"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Swagger     SwaggerConfig     `yaml:"swagger"`
}

// Load reads the YAML configuration file from the given path and unmarshals it.
// A missing file is not an error: every field has a default.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config data from %s: %w", path, err)
		}
		logrus.Debugf("Loaded configuration from %s", path)
	case os.IsNotExist(err):
		logrus.Infof("Config file %s not found, using defaults", path)
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills every zero value with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Server.ReadTimeout <= 0 {
		cfg.Server.ReadTimeout = 15
	}
	if cfg.Server.WriteTimeout <= 0 {
		// end-of-voting relay waits for inclusion and a second attestation
		cfg.Server.WriteTimeout = 300
	}
	if cfg.Server.IdleTimeout <= 0 {
		cfg.Server.IdleTimeout = 60
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	if cfg.Registry.Path == "" {
		cfg.Registry.Path = "xdapp.config.json"
	}
	if cfg.Registry.Backend == "" {
		cfg.Registry.Backend = BackendJSON
	}
	if cfg.Registry.PebbleDir == "" {
		cfg.Registry.PebbleDir = "data/registry"
	}
	if cfg.Registry.LockTimeoutMs <= 0 {
		cfg.Registry.LockTimeoutMs = 10000
	}
	if cfg.Signer.EnvVar == "" {
		cfg.Signer.EnvVar = "WALLET_PRIVATE_KEY"
	}

	if cfg.RpcClient.ConnectionTimeoutMs <= 0 {
		cfg.RpcClient.ConnectionTimeoutMs = 10000
	}
	if cfg.RpcClient.CallTimeoutMs <= 0 {
		cfg.RpcClient.CallTimeoutMs = 30000
	}
	if cfg.RpcClient.ReceiptPollIntervalMs <= 0 {
		cfg.RpcClient.ReceiptPollIntervalMs = 1000
	}
	if cfg.RpcClient.InclusionTimeoutMs <= 0 {
		cfg.RpcClient.InclusionTimeoutMs = 120000
	}

	// 5s floor before the first lookup, as the deployment scripts always waited
	if cfg.Attestation.InitialDelayMs <= 0 {
		cfg.Attestation.InitialDelayMs = 5000
	}
	if cfg.Attestation.PollIntervalMs <= 0 {
		cfg.Attestation.PollIntervalMs = 1000
	}
	if cfg.Attestation.MaxIntervalMs <= 0 {
		cfg.Attestation.MaxIntervalMs = 15000
	}
	if cfg.Attestation.MaxWaitMs <= 0 {
		cfg.Attestation.MaxWaitMs = 300000
	}
	if cfg.Attestation.RequestTimeoutMs <= 0 {
		cfg.Attestation.RequestTimeoutMs = 10000
	}
	if cfg.Attestation.CacheTTLMinutes <= 0 {
		cfg.Attestation.CacheTTLMinutes = 60
	}
	if cfg.Attestation.RateLimitPerSecond <= 0 {
		cfg.Attestation.RateLimitPerSecond = 5
	}
	if cfg.Attestation.Burst <= 0 {
		cfg.Attestation.Burst = 1
	}

	if cfg.Relay.MainNetwork == "" {
		cfg.Relay.MainNetwork = "main"
	}
	if cfg.Relay.SideNetwork == "" {
		cfg.Relay.SideNetwork = "side"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Swagger.SpecPath == "" {
		cfg.Swagger.SpecPath = "./docs/swagger.yaml"
	}
}

// Registry backends.
const (
	BackendJSON   = "json"
	BackendPebble = "pebble"
)

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	c.Registry.Backend = strings.ToLower(c.Registry.Backend)
	switch c.Registry.Backend {
	case BackendJSON, BackendPebble:
	default:
		return fmt.Errorf("unknown registry backend %q", c.Registry.Backend)
	}
	if c.Attestation.MaxIntervalMs < c.Attestation.PollIntervalMs {
		logrus.Warnf("attestation.maxIntervalMs (%d) below pollIntervalMs (%d), raising it",
			c.Attestation.MaxIntervalMs, c.Attestation.PollIntervalMs)
		c.Attestation.MaxIntervalMs = c.Attestation.PollIntervalMs
	}
	if c.Relay.MainNetwork == c.Relay.SideNetwork {
		return fmt.Errorf("relay.mainNetwork and relay.sideNetwork must differ, both are %q", c.Relay.MainNetwork)
	}
	return nil
}

// Millis converts a millisecond config value to a duration.
func Millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
