// config.go - Configuration management for the medproof daemon.
//
// Configuration is a YAML file. A missing file is created with DefaultConfig so a first run
// leaves an editable template behind.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"medproof/internal/disclosure"
	"medproof/internal/store"
)

// EnvConfigPath overrides the default config location.
const EnvConfigPath = "MEDPROOF_CONFIG"

// DefaultPath is used when neither a flag nor EnvConfigPath is set.
const DefaultPath = "configs/medproof.yaml"

// Proving backends.
const (
	BackendPlaceholder = "placeholder"
	BackendGroth16     = "groth16"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Proof   ProofConfig   `yaml:"proof"`
	Storage store.Config  `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Peers   PeerConfig    `yaml:"peers"`
}

// ServerConfig controls the HTTP API listener.
type ServerConfig struct {
	Address      string        `yaml:"address"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// RateLimit is the sustained proof requests per second allowed per client; 0 disables it.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// ProofConfig selects the proving backend and the default policy.
type ProofConfig struct {
	Backend    string                `yaml:"backend"`
	KeyDir     string                `yaml:"key_dir"`
	StudyType  string                `yaml:"study_type"`
	StrictArms bool                  `yaml:"strict_arms"`
	Thresholds disclosure.Thresholds `yaml:"thresholds"`
}

// LoggingConfig configures the application and audit loggers.
type LoggingConfig struct {
	Level  string   `yaml:"level"`
	Format string   `yaml:"format"`
	Output []string `yaml:"output"`
	// Gnark routes the prover's internal logs through the application logger when true.
	Gnark bool        `yaml:"gnark"`
	Audit AuditConfig `yaml:"audit"`
}

// AuditConfig configures the rotating audit log.
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// PeerConfig configures the commitment exchange node.
type PeerConfig struct {
	Enabled bool   `yaml:"enabled"`
	NodeID  string `yaml:"node_id"`
	Address string `yaml:"address"`
	// Directory maps peer ids to their base URLs.
	Directory map[string]string `yaml:"directory"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 2 * time.Minute,
			RateLimit:    2,
			RateBurst:    5,
		},
		Proof: ProofConfig{
			Backend:    BackendPlaceholder,
			KeyDir:     "keys",
			StudyType:  disclosure.DefaultStudyType,
			Thresholds: disclosure.DefaultThresholds(),
		},
		Storage: store.Config{
			Driver: store.DriverLedger,
			Path:   "data/ledger.json",
			Redis:  store.RedisConfig{Address: "127.0.0.1:6379", Prefix: "medproof:"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: []string{"stdout"},
			Audit: AuditConfig{
				Enabled:    true,
				Path:       "logs/audit.log",
				MaxSizeMB:  50,
				MaxBackups: 10,
				MaxAgeDays: 90,
				Compress:   true,
			},
		},
		Peers: PeerConfig{
			NodeID:  "hospital-1",
			Address: ":8090",
		},
	}
}

// ResolvePath picks the flag value, then EnvConfigPath, then DefaultPath.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	return DefaultPath
}

// Load loads configuration from path, or writes and returns the defaults if the file does
// not exist. Fields absent from the file keep their default values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := Save(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Address) == "" {
		return fmt.Errorf("server.address must be set")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server timeouts must be positive")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit cannot be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		return fmt.Errorf("server.rate_burst must be positive when rate limiting is enabled")
	}

	switch c.Proof.Backend {
	case BackendPlaceholder:
	case BackendGroth16:
		if c.Proof.KeyDir == "" {
			return fmt.Errorf("proof.key_dir is required for the groth16 backend")
		}
	default:
		return fmt.Errorf("proof.backend must be %q or %q", BackendPlaceholder, BackendGroth16)
	}
	if err := c.Proof.Thresholds.Validate(); err != nil {
		return fmt.Errorf("proof.thresholds: %w", err)
	}

	switch strings.ToLower(c.Storage.Driver) {
	case store.DriverMemory:
	case store.DriverLedger, store.DriverLevelDB:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s driver", c.Storage.Driver)
		}
	case store.DriverRedis:
		if c.Storage.Redis.Address == "" {
			return fmt.Errorf("storage.redis.address is required")
		}
	case store.DriverMySQL:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the mysql driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console")
	}
	if c.Logging.Audit.Enabled && c.Logging.Audit.Path == "" {
		return fmt.Errorf("logging.audit.path is required when auditing is enabled")
	}

	if c.Peers.Enabled {
		if c.Peers.NodeID == "" || c.Peers.Address == "" {
			return fmt.Errorf("peers.node_id and peers.address are required when peers are enabled")
		}
	}
	return nil
}
