package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/killallgit/dataset-importer/pkg/errors"
)

// DefaultConfigPath is read when present
const DefaultConfigPath = "./config/settings.yaml"

var (
	once    sync.Once
	initErr error
)

// Init initializes the configuration system
// This should be called once at application startup
func Init() error {
	once.Do(func() {
		initErr = Load(DefaultConfigPath)
	})
	return initErr
}

// Load applies defaults, environment overrides and the config file at
// configPath. A missing file is not an error.
func Load(configPath string) error {
	setDefaults()

	viper.SetEnvPrefix("IMPORTER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	configPath = filepath.Clean(configPath)
	viper.SetConfigFile(configPath)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !os.IsNotExist(err) && !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file %s: %w", configPath, err)
		}
	}

	if err := validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// GetConfig returns the current configuration as a struct
// Init() must be called before using this
func GetConfig() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// Get returns a config value by key using Viper directly
func Get(key string) any {
	return viper.Get(key)
}

// GetString returns a string config value
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a time.Duration config value
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

// validate checks the values viper resolved, correcting what can be corrected
func validate() error {
	port := viper.GetInt("server.port")
	if port <= 0 || port > 65535 {
		return apperrors.ConfigError("server.port", fmt.Sprintf("out of range: %d", port))
	}

	switch viper.GetString("database.driver") {
	case "sqlite":
		if viper.GetString("database.path") == "" {
			return apperrors.ConfigError("database.path", "required for the sqlite driver")
		}
	case "mysql":
		if viper.GetString("database.dsn") == "" {
			return apperrors.ConfigError("database.dsn", "required for the mysql driver")
		}
	default:
		return apperrors.ConfigError("database.driver", fmt.Sprintf("unknown driver %q", viper.GetString("database.driver")))
	}

	switch viper.GetString("storage.backend") {
	case "local":
		if viper.GetString("storage.local.signing_key") == "" {
			fmt.Println("Warning: storage.local.signing_key is empty, signed links use an ephemeral key")
		}
	case "s3":
		if viper.GetString("storage.s3.bucket") == "" {
			return apperrors.ConfigError("storage.s3.bucket", "required for the s3 backend")
		}
	default:
		return apperrors.ConfigError("storage.backend", fmt.Sprintf("unknown backend %q", viper.GetString("storage.backend")))
	}

	if err := validatePolicies(viper.GetString("ingestion.empty_split_policy"), viper.GetString("ingestion.invalid_label_policy")); err != nil {
		return err
	}

	// Auto-correct invalid counts
	autoCorrect("processing.workers", 2)
	autoCorrect("ingestion.label_workers", 8)
	autoCorrect("ingestion.upload_workers", 8)
	autoCorrect("query.display_limit", 10)
	autoCorrect("query.page_limit", 100)

	return nil
}

func autoCorrect(key string, fallback int) {
	if viper.GetInt(key) <= 0 {
		viper.Set(key, fallback)
	}
}

func validatePolicies(emptySplit, invalidLabel string) error {
	switch emptySplit {
	case "warn", "fail":
	default:
		return apperrors.ConfigError("ingestion.empty_split_policy", fmt.Sprintf("unknown policy %q", emptySplit))
	}
	switch invalidLabel {
	case "drop_annotation", "reject_image":
	default:
		return apperrors.ConfigError("ingestion.invalid_label_policy", fmt.Sprintf("unknown policy %q", invalidLabel))
	}
	return nil
}

// Validate validates a Config struct (for testing)
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return apperrors.ConfigError("server.port", fmt.Sprintf("out of range: %d", c.Server.Port))
	}

	if c.Storage.Backend != "" && c.Storage.Backend != "local" && c.Storage.Backend != "s3" {
		return apperrors.ConfigError("storage.backend", fmt.Sprintf("unknown backend %q", c.Storage.Backend))
	}

	if c.Ingestion.EmptySplitPolicy == "" {
		c.Ingestion.EmptySplitPolicy = "warn"
	}
	if c.Ingestion.InvalidLabelPolicy == "" {
		c.Ingestion.InvalidLabelPolicy = "drop_annotation"
	}
	if err := validatePolicies(c.Ingestion.EmptySplitPolicy, c.Ingestion.InvalidLabelPolicy); err != nil {
		return err
	}

	if c.Processing.Workers <= 0 {
		c.Processing.Workers = 2
	}
	if c.Query.DisplayLimit <= 0 {
		c.Query.DisplayLimit = 10
	}
	if c.Query.PageLimit <= 0 {
		c.Query.PageLimit = 100
	}

	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("environment", "development")

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)
	viper.SetDefault("server.shutdown_timeout", 10*time.Second)
	viper.SetDefault("server.max_header_bytes", 1048576)
	viper.SetDefault("server.public_url", "http://localhost:8080")

	// Database defaults
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "./data/importer.db")
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("database.max_idle_connections", 5)
	viper.SetDefault("database.connection_max_lifetime", 30*time.Minute)
	viper.SetDefault("database.log_queries", false)

	// Processing defaults
	viper.SetDefault("processing.workers", 2)
	viper.SetDefault("processing.poll_interval", 2*time.Second)
	viper.SetDefault("processing.job_timeout", 6*time.Hour)
	viper.SetDefault("processing.retry_attempts", 1)
	viper.SetDefault("processing.retry_delay", 5*time.Second)
	viper.SetDefault("processing.job_retention", 7*24*time.Hour)

	// Storage defaults
	viper.SetDefault("storage.backend", "local")
	viper.SetDefault("storage.local.base_path", "./data/objects")
	viper.SetDefault("storage.local.signing_key", "")
	viper.SetDefault("storage.s3.endpoint", "s3.amazonaws.com")
	viper.SetDefault("storage.s3.region", "us-east-1")
	viper.SetDefault("storage.s3.bucket", "")
	viper.SetDefault("storage.s3.access_key_id", "")
	viper.SetDefault("storage.s3.secret_access_key", "")
	viper.SetDefault("storage.s3.secure", true)
	viper.SetDefault("storage.temp_dir", "./tmp")
	viper.SetDefault("storage.max_temp_age", 24*time.Hour)
	viper.SetDefault("storage.cleanup_interval", 1*time.Hour)
	viper.SetDefault("storage.min_free_ratio", 1.2)

	// STS defaults
	viper.SetDefault("sts.endpoint", "")
	viper.SetDefault("sts.role_arn", "")
	viper.SetDefault("sts.access_key_id", "")
	viper.SetDefault("sts.secret_access_key", "")
	viper.SetDefault("sts.duration", 1*time.Hour)
	viper.SetDefault("sts.upload_prefix", "uploads")
	viper.SetDefault("sts.max_upload_size", int64(100)<<30)

	// Ingestion defaults
	viper.SetDefault("ingestion.label_workers", 8)
	viper.SetDefault("ingestion.upload_workers", 8)
	viper.SetDefault("ingestion.upload_images", true)
	viper.SetDefault("ingestion.empty_split_policy", "warn")
	viper.SetDefault("ingestion.invalid_label_policy", "drop_annotation")
	viper.SetDefault("ingestion.diagnostic_samples", 50)
	viper.SetDefault("ingestion.resume_interrupted", true)
	viper.SetDefault("ingestion.store_retry_attempts", 4)
	viper.SetDefault("ingestion.store_retry_initial", 500*time.Millisecond)
	viper.SetDefault("ingestion.store_retry_max", 10*time.Second)

	// Query defaults
	viper.SetDefault("query.display_limit", 10)
	viper.SetDefault("query.signed_url_ttl", 1*time.Hour)
	viper.SetDefault("query.page_limit", 100)
	viper.SetDefault("query.dimension_cache_ttl", 10*time.Minute)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.file_path", "./logs/importer.log")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 10)
	viper.SetDefault("logging.max_age", 30)
	viper.SetDefault("logging.compress", true)

	// Monitoring defaults
	viper.SetDefault("monitoring.enabled", true)
	viper.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	viper.SetDefault("security.cors_origins", []string{"*"})
	viper.SetDefault("security.cors_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	viper.SetDefault("security.cors_headers", []string{"Content-Type", "Authorization", "Range"})
	viper.SetDefault("security.rate_limit", 10.0)
	viper.SetDefault("security.rate_burst", 20)
}
