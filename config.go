package eero

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/lexfrei/go-eero/apierror"
	"github.com/lexfrei/go-eero/credential"
)

// EnvPrefix prefixes the environment variables read by LoadConfig.
const EnvPrefix = "EERO"

// Config is the file and environment form of ClientConfig.
//
// Keys map to environment variables with the EERO_ prefix and dots replaced
// by underscores, so storage.backend is read from EERO_STORAGE_BACKEND.
type Config struct {
	BaseURL            string        `mapstructure:"base_url"`
	Timeout            int           `mapstructure:"timeout"`
	Token              string        `mapstructure:"token"`
	UserAgent          string        `mapstructure:"user_agent"`
	Storage            StorageValues `mapstructure:"storage"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute"`
	MaxReadRetries     int           `mapstructure:"max_read_retries"`
	LogLevel           string        `mapstructure:"log_level"`
}

// StorageValues is the storage section of Config.
type StorageValues struct {
	Backend        string `mapstructure:"backend"`
	Path           string `mapstructure:"path"`
	KeyringService string `mapstructure:"keyring_service"`
	KeyringKey     string `mapstructure:"keyring_key"`
}

// LoadConfig reads configuration from a .env file in the working directory,
// from configFile (or eero.yaml in the working directory and the user config
// directory when configFile is empty) and from EERO_ environment variables.
// Environment variables win over the file.
func LoadConfig(configFile string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, apierror.Wrap(err, apierror.KindValidation, "failed to load .env file")
	}

	v := viper.New()
	v.SetConfigName("eero")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "eero"))
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, apierror.Wrap(err, apierror.KindValidation, "failed to read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apierror.Wrap(err, apierror.KindValidation, "failed to decode config")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ClientConfig converts the loaded values into a ClientConfig. Logger and
// Metrics are left for the caller to set.
func (c *Config) ClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:   c.BaseURL,
		Token:     c.Token,
		Timeout:   time.Duration(c.Timeout) * time.Second,
		UserAgent: c.UserAgent,
		Storage: StorageConfig{
			Backend:        credential.Backend(c.Storage.Backend),
			Path:           c.Storage.Path,
			KeyringService: c.Storage.KeyringService,
			KeyringKey:     c.Storage.KeyringKey,
		},
		RateLimitPerMinute: c.RateLimitPerMinute,
		MaxReadRetries:     c.MaxReadRetries,
	}
}

func (c *Config) validate() error {
	switch credential.Backend(c.Storage.Backend) {
	case credential.BackendAuto, credential.BackendKeyring, credential.BackendFile, credential.BackendMemory:
	default:
		return apierror.Newf(apierror.KindValidation, "unknown storage backend %q", c.Storage.Backend)
	}

	if c.Timeout < 0 {
		return apierror.New(apierror.KindValidation, "timeout must not be negative")
	}
	if c.MaxReadRetries < 0 {
		return apierror.New(apierror.KindValidation, "max_read_retries must not be negative")
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("base_url", DefaultBaseURL)
	v.SetDefault("timeout", int(DefaultTimeout/time.Second))
	v.SetDefault("token", "")
	v.SetDefault("user_agent", "")
	v.SetDefault("storage.backend", string(credential.BackendAuto))
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.keyring_service", credential.DefaultService)
	v.SetDefault("storage.keyring_key", credential.DefaultKey)
	v.SetDefault("rate_limit_per_minute", DefaultRateLimit)
	v.SetDefault("max_read_retries", 0)
	v.SetDefault("log_level", "info")
}
