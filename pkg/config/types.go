package config

import "time"

// Config represents the complete application configuration
type Config struct {
	Environment string           `mapstructure:"environment"`
	Server      ServerConfig     `mapstructure:"server"`
	Database    DatabaseConfig   `mapstructure:"database"`
	Processing  ProcessingConfig `mapstructure:"processing"`
	Storage     StorageConfig    `mapstructure:"storage"`
	STS         STSConfig        `mapstructure:"sts"`
	Ingestion   IngestionConfig  `mapstructure:"ingestion"`
	Query       QueryConfig      `mapstructure:"query"`
	Logging     LoggingConfig    `mapstructure:"logging"`
	Monitoring  MonitoringConfig `mapstructure:"monitoring"`
	Security    SecurityConfig   `mapstructure:"security"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxHeaderBytes  int           `mapstructure:"max_header_bytes"`
	// PublicURL is the externally reachable base URL, used for local signed links
	PublicURL string `mapstructure:"public_url"`
}

// DatabaseConfig contains metadata store settings
type DatabaseConfig struct {
	// Driver is sqlite or mysql
	Driver                string        `mapstructure:"driver"`
	Path                  string        `mapstructure:"path"`
	DSN                   string        `mapstructure:"dsn"`
	MaxConnections        int           `mapstructure:"max_connections"`
	MaxIdleConnections    int           `mapstructure:"max_idle_connections"`
	ConnectionMaxLifetime time.Duration `mapstructure:"connection_max_lifetime"`
	LogQueries            bool          `mapstructure:"log_queries"`
}

// ProcessingConfig contains worker pool settings
type ProcessingConfig struct {
	Workers       int           `mapstructure:"workers"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	JobTimeout    time.Duration `mapstructure:"job_timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	// JobRetention is how long finished queue jobs are kept
	JobRetention time.Duration `mapstructure:"job_retention"`
}

// StorageConfig contains object store and scratch space settings
type StorageConfig struct {
	// Backend is local or s3
	Backend         string        `mapstructure:"backend"`
	Local           LocalStorage  `mapstructure:"local"`
	S3              S3Storage     `mapstructure:"s3"`
	TempDir         string        `mapstructure:"temp_dir"`
	MaxTempAge      time.Duration `mapstructure:"max_temp_age"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	// MinFreeRatio is the free space required on the scratch volume, as a
	// multiple of the archive size
	MinFreeRatio float64 `mapstructure:"min_free_ratio"`
}

// LocalStorage configures the filesystem object store
type LocalStorage struct {
	BasePath   string `mapstructure:"base_path"`
	SigningKey string `mapstructure:"signing_key"`
}

// S3Storage configures an S3 compatible object store
type S3Storage struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Secure          bool   `mapstructure:"secure"`
}

// STSConfig contains temporary upload credential settings
type STSConfig struct {
	Endpoint        string        `mapstructure:"endpoint"`
	RoleARN         string        `mapstructure:"role_arn"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	Duration        time.Duration `mapstructure:"duration"`
	UploadPrefix    string        `mapstructure:"upload_prefix"`
	// MaxUploadSize bounds the declared archive size, 0 disables the check
	MaxUploadSize int64 `mapstructure:"max_upload_size"`
}

// IngestionConfig contains pipeline settings
type IngestionConfig struct {
	LabelWorkers       int           `mapstructure:"label_workers"`
	UploadWorkers      int           `mapstructure:"upload_workers"`
	UploadImages       bool          `mapstructure:"upload_images"`
	EmptySplitPolicy   string        `mapstructure:"empty_split_policy"`
	InvalidLabelPolicy string        `mapstructure:"invalid_label_policy"`
	DiagnosticSamples  int           `mapstructure:"diagnostic_samples"`
	ResumeInterrupted  bool          `mapstructure:"resume_interrupted"`
	StoreRetryAttempts int           `mapstructure:"store_retry_attempts"`
	StoreRetryInitial  time.Duration `mapstructure:"store_retry_initial"`
	StoreRetryMax      time.Duration `mapstructure:"store_retry_max"`
}

// QueryConfig contains read path settings
type QueryConfig struct {
	DisplayLimit      int           `mapstructure:"display_limit"`
	SignedURLTTL      time.Duration `mapstructure:"signed_url_ttl"`
	PageLimit         int           `mapstructure:"page_limit"`
	DimensionCacheTTL time.Duration `mapstructure:"dimension_cache_ttl"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MonitoringConfig contains metrics settings
type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

// SecurityConfig contains CORS and rate limit settings
type SecurityConfig struct {
	CORSOrigins []string `mapstructure:"cors_origins"`
	CORSMethods []string `mapstructure:"cors_methods"`
	CORSHeaders []string `mapstructure:"cors_headers"`
	// RateLimit is requests per second per client, 0 disables limiting
	RateLimit float64 `mapstructure:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst"`
}
