// Package config loads the tool configuration: which keyrings to use, the
// active algorithm suite, caching bounds and the monitoring endpoint.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/guided-traffic/envelope-keyring/pkg/keyring"
	"github.com/guided-traffic/envelope-keyring/pkg/suite"
)

// KeyringConfig describes one configured keyring.
type KeyringConfig struct {
	Alias      string `mapstructure:"alias"`       // unique name within the config
	Type       string `mapstructure:"type"`        // "raw-rsa", "raw-aes" or "tink"
	ProviderID string `mapstructure:"provider_id"` // namespace stamped on wrapped keys

	// raw-rsa settings
	KeyName        string `mapstructure:"key_name"`
	Padding        string `mapstructure:"padding"` // "pkcs1", "oaep-sha1" or "oaep-sha256"
	PublicKeyPEM   string `mapstructure:"public_key_pem"`
	PrivateKeyPEM  string `mapstructure:"private_key_pem"`
	PublicKeyFile  string `mapstructure:"public_key_file"`
	PrivateKeyFile string `mapstructure:"private_key_file"`

	// raw-aes settings
	KEK string `mapstructure:"kek"` // base64-encoded 32-byte key

	// tink settings
	KeysetURI string `mapstructure:"keyset_uri"`
}

// CachingConfig enables the caching materials manager.
type CachingConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	MaxEntries int           `mapstructure:"max_entries"`
	MaxAge     time.Duration `mapstructure:"max_age"`
	MaxUses    int           `mapstructure:"max_uses"`
}

// ServerConfig holds the wrap/unwrap HTTP endpoint settings.
type ServerConfig struct {
	BindAddress  string        `mapstructure:"bind_address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// MonitoringConfig holds the metrics endpoint settings.
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	BindAddress string `mapstructure:"bind_address"`
	MetricsPath string `mapstructure:"metrics_path"`
}

// Config holds the application configuration.
type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // "text" (default) or "json"

	// Active algorithm suite by canonical name.
	Algorithm string `mapstructure:"algorithm"`

	Keyrings   []KeyringConfig  `mapstructure:"keyrings"`
	Caching    CachingConfig    `mapstructure:"caching"`
	Server     ServerConfig     `mapstructure:"server"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
}

// InitConfig initializes the configuration system.
func InitConfig(cfgFile string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".envelope-keyring")
	}

	viper.SetEnvPrefix("EVK")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// Load unmarshals and validates the configuration from viper.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for consistency.
func Validate(cfg *Config) error {
	if _, err := suite.ForName(cfg.Algorithm); err != nil {
		return err
	}
	if len(cfg.Keyrings) == 0 {
		return fmt.Errorf("at least one keyring must be configured")
	}

	seen := make(map[string]bool)
	for _, kc := range cfg.Keyrings {
		if kc.Alias == "" {
			return fmt.Errorf("keyring alias must not be empty")
		}
		if seen[kc.Alias] {
			return fmt.Errorf("duplicate keyring alias %q", kc.Alias)
		}
		seen[kc.Alias] = true

		switch kc.Type {
		case "raw-rsa", "raw-aes", "tink":
		default:
			return fmt.Errorf("keyring %q: unsupported type %q", kc.Alias, kc.Type)
		}
		if kc.ProviderID == "" {
			return fmt.Errorf("keyring %q: provider_id is required", kc.Alias)
		}
	}

	if cfg.Caching.Enabled {
		if cfg.Caching.MaxEntries <= 0 || cfg.Caching.MaxAge <= 0 || cfg.Caching.MaxUses <= 0 {
			return fmt.Errorf("caching requires positive max_entries, max_age and max_uses")
		}
	}

	return nil
}

// AlgorithmID resolves the configured suite name.
func (c *Config) AlgorithmID() (suite.AlgorithmID, error) {
	props, err := suite.ForName(c.Algorithm)
	if err != nil {
		return 0, err
	}
	return props.ID, nil
}

// BuildKeyring constructs the keyring described by one entry.
func BuildKeyring(kc KeyringConfig) (keyring.Keyring, error) {
	switch kc.Type {
	case "raw-rsa":
		padding, err := parsePadding(kc.Padding)
		if err != nil {
			return nil, fmt.Errorf("keyring %q: %w", kc.Alias, err)
		}
		publicPEM, err := resolvePEM(kc.PublicKeyPEM, kc.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("keyring %q: public key: %w", kc.Alias, err)
		}
		privatePEM, err := resolvePEM(kc.PrivateKeyPEM, kc.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("keyring %q: private key: %w", kc.Alias, err)
		}
		return keyring.NewRawRSAKeyringFromPEM(kc.ProviderID, kc.KeyName, publicPEM, privatePEM, padding)

	case "raw-aes":
		kek, err := base64.StdEncoding.DecodeString(kc.KEK)
		if err != nil {
			return nil, fmt.Errorf("keyring %q: kek must be base64: %w", kc.Alias, err)
		}
		return keyring.NewRawAESKeyring(kc.ProviderID, kc.KeyName, kek)

	case "tink":
		return keyring.NewLocalTinkKeyring(kc.ProviderID, kc.KeysetURI)

	default:
		return nil, fmt.Errorf("unsupported keyring type %q", kc.Type)
	}
}

// BuildMultiKeyring constructs the full keyring tree: the first entry
// generates, the rest wrap the same data key.
func BuildMultiKeyring(cfg *Config) (keyring.Keyring, error) {
	keyrings := make([]keyring.Keyring, 0, len(cfg.Keyrings))
	for _, kc := range cfg.Keyrings {
		kr, err := BuildKeyring(kc)
		if err != nil {
			return nil, err
		}
		keyrings = append(keyrings, kr)
	}

	if len(keyrings) == 1 {
		return keyrings[0], nil
	}
	return keyring.NewMultiKeyring(keyrings[0], keyrings[1:]...), nil
}

func parsePadding(name string) (keyring.RSAPaddingMode, error) {
	switch name {
	case "pkcs1":
		return keyring.RSAPKCS1v15, nil
	case "oaep-sha1":
		return keyring.RSAOAEPSHA1, nil
	case "", "oaep-sha256":
		return keyring.RSAOAEPSHA256, nil
	default:
		return 0, fmt.Errorf("unsupported padding mode %q", name)
	}
}

// resolvePEM prefers inline PEM, falling back to a file path.
func resolvePEM(inline, file string) (string, error) {
	if inline != "" {
		return inline, nil
	}
	if file == "" {
		return "", nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	return string(data), nil
}

func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("algorithm", "AES_256_GCM_IV12_TAG16_HKDF_SHA256")
	viper.SetDefault("caching.enabled", false)
	viper.SetDefault("caching.max_entries", 16)
	viper.SetDefault("caching.max_age", "5m")
	viper.SetDefault("caching.max_uses", 100)
	viper.SetDefault("server.bind_address", ":8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("monitoring.enabled", false)
	viper.SetDefault("monitoring.bind_address", ":9090")
	viper.SetDefault("monitoring.metrics_path", "/metrics")
}
