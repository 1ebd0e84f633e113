package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Storage targets accepted by search.storage
const (
	StorageFiles    = "files"
	StorageDatabase = "database"
	StorageStdout   = "stdout"
)

// Bucket sizes accepted by the counts endpoint
const (
	BucketMinute = "minute"
	BucketHour   = "hour"
	BucketDay    = "day"
)

// MaxResultsLimit is the largest page size the data endpoint accepts
const MaxResultsLimit = 500

// Config holds all configuration options for the search client
type Config struct {
	// Search API account and stream
	Account AccountConfig `yaml:"account" json:"account"`

	// Query and output settings
	Search SearchConfig `yaml:"search" json:"search"`

	// Throttling and retry
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// HTTP transport
	HTTP HTTPConfig `yaml:"http" json:"http"`

	// Database sink
	Database DatabaseConfig `yaml:"database" json:"database"`

	// Resumable runs
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// AccountConfig identifies the search endpoint and the basic auth credentials.
// SearchURL and CountsURL override the URLs derived from AccountName and Label.
type AccountConfig struct {
	AccountName     string `yaml:"account_name" json:"account_name"`
	UserName        string `yaml:"user_name" json:"user_name"`
	Password        string `yaml:"password" json:"password"`
	PasswordEncoded bool   `yaml:"password_encoded" json:"password_encoded"`
	Label           string `yaml:"label" json:"label"`
	SearchURL       string `yaml:"search_url,omitempty" json:"search_url,omitempty"`
	CountsURL       string `yaml:"counts_url,omitempty" json:"counts_url,omitempty"`
}

// SearchConfig holds request defaults and the output sink selection
type SearchConfig struct {
	Storage       string `yaml:"storage" json:"storage"`
	OutBox        string `yaml:"out_box" json:"out_box"`
	CompressFiles bool   `yaml:"compress_files" json:"compress_files"`
	Bucket        string `yaml:"bucket" json:"bucket"`
	MaxResults    int    `yaml:"max_results" json:"max_results"`
}

// RateLimitConfig holds throttling and retry configuration
type RateLimitConfig struct {
	MinInterval       time.Duration `yaml:"min_interval" json:"min_interval"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
	MaxAttempts       int           `yaml:"max_attempts" json:"max_attempts"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier" json:"backoff_multiplier"`
}

// HTTPConfig holds transport settings
type HTTPConfig struct {
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent string        `yaml:"user_agent" json:"user_agent"`
}

// DatabaseConfig holds the database sink connection. Driver is "sqlite3" or
// "pgx"; sqlite uses Path, postgres uses the host fields unless DSN is set.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" json:"driver"`
	DSN      string `yaml:"dsn,omitempty" json:"dsn,omitempty"`
	Path     string `yaml:"path" json:"path"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Schema   string `yaml:"schema" json:"schema"`
	UserName string `yaml:"user_name" json:"user_name"`
	Password string `yaml:"password" json:"password"`
	Table    string `yaml:"table" json:"table"`
}

// CheckpointConfig controls saving pagination progress between runs
type CheckpointConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Dir     string `yaml:"dir" json:"dir"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Search: SearchConfig{
			Storage:       StorageFiles,
			OutBox:        "./search_out",
			CompressFiles: false,
			Bucket:        BucketDay,
			MaxResults:    MaxResultsLimit,
		},
		RateLimit: RateLimitConfig{
			MinInterval:       time.Second,
			RequestsPerMinute: 0,
			RetryDelay:        5 * time.Second,
			MaxAttempts:       2,
			BackoffMultiplier: 1.0,
		},
		HTTP: HTTPConfig{
			Timeout:   120 * time.Second,
			UserAgent: "fasearch/1.0",
		},
		Database: DatabaseConfig{
			Driver: "sqlite3",
			Path:   "./search_out/activities.db",
			Port:   5432,
			Table:  "activities",
		},
		Checkpoint: CheckpointConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   false,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("FASEARCH_ACCOUNT_NAME", &c.Account.AccountName)
	setString("FASEARCH_USER_NAME", &c.Account.UserName)
	setString("FASEARCH_PASSWORD", &c.Account.Password)
	setString("FASEARCH_LABEL", &c.Account.Label)
	setString("FASEARCH_SEARCH_URL", &c.Account.SearchURL)
	setString("FASEARCH_STORAGE", &c.Search.Storage)
	setString("FASEARCH_OUT_BOX", &c.Search.OutBox)
	setString("FASEARCH_BUCKET", &c.Search.Bucket)
	setString("FASEARCH_DATABASE_DRIVER", &c.Database.Driver)
	setString("FASEARCH_DATABASE_DSN", &c.Database.DSN)
	setString("FASEARCH_DATABASE_PATH", &c.Database.Path)
	setString("FASEARCH_LOG_LEVEL", &c.Logging.Level)
	setString("FASEARCH_LOG_FILE", &c.Logging.File)

	if v := os.Getenv("FASEARCH_PASSWORD_ENCODED"); v != "" {
		c.Account.PasswordEncoded = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("FASEARCH_COMPRESS_FILES"); v != "" {
		c.Search.CompressFiles = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("FASEARCH_MAX_RESULTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("FASEARCH_MAX_RESULTS: %w", err))
		} else {
			c.Search.MaxResults = n
		}
	}
	if v := os.Getenv("FASEARCH_MIN_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("FASEARCH_MIN_INTERVAL: %w", err))
		} else {
			c.RateLimit.MinInterval = d
		}
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home, _ := homedir.Dir()
	locations := []string{
		".fasearch.yaml",
		".fasearch.yml",
		filepath.Join("config", "config.yaml"),
		filepath.Join(home, ".config", "fasearch", "config.yaml"),
		filepath.Join(home, ".fasearch.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// ExpandPaths resolves "~" in every path setting
func (c *Config) ExpandPaths() error {
	for _, p := range []*string{&c.Search.OutBox, &c.Database.Path, &c.Checkpoint.Dir, &c.Logging.File} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	switch c.Search.Storage {
	case StorageFiles:
		if c.Search.OutBox == "" {
			errs = append(errs, errors.New("out_box is required for file storage"))
		}
	case StorageDatabase:
		if c.Database.Driver != "sqlite3" && c.Database.Driver != "pgx" {
			errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
		}
		if c.Database.Table == "" {
			errs = append(errs, errors.New("database table is required"))
		}
	case StorageStdout:
	default:
		errs = append(errs, fmt.Errorf("invalid storage %q", c.Search.Storage))
	}

	if !ValidBucket(c.Search.Bucket) {
		errs = append(errs, fmt.Errorf("invalid bucket %q", c.Search.Bucket))
	}
	if c.Search.MaxResults < 10 || c.Search.MaxResults > MaxResultsLimit {
		errs = append(errs, fmt.Errorf("max_results must be between 10 and %d", MaxResultsLimit))
	}

	if c.RateLimit.MinInterval < 0 {
		errs = append(errs, errors.New("min interval cannot be negative"))
	}
	if c.RateLimit.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}
	if c.RateLimit.RetryDelay < 0 {
		errs = append(errs, errors.New("retry delay cannot be negative"))
	}
	if c.RateLimit.MaxAttempts < 1 {
		errs = append(errs, errors.New("max attempts must be at least 1"))
	}
	if c.RateLimit.BackoffMultiplier < 1 {
		errs = append(errs, errors.New("backoff multiplier must be at least 1"))
	}

	if c.HTTP.Timeout <= 0 {
		errs = append(errs, errors.New("http timeout must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// ValidateAccount checks that an endpoint can be derived and credentials are present
func (c *Config) ValidateAccount() error {
	var errs []error
	if c.Account.SearchURL == "" {
		if c.Account.AccountName == "" {
			errs = append(errs, errors.New("account name or search URL is required"))
		}
		if c.Account.Label == "" {
			errs = append(errs, errors.New("stream label is required"))
		}
	}
	if c.Account.UserName == "" {
		errs = append(errs, errors.New("user name is required"))
	}
	if c.Account.Password == "" {
		errs = append(errs, errors.New("password is required"))
	}
	return errors.Join(errs...)
}

// ValidBucket reports whether b is a bucket size the counts endpoint accepts
func ValidBucket(b string) bool {
	switch b {
	case BucketMinute, BucketHour, BucketDay:
		return true
	}
	return false
}

// DatabaseDSN returns the data source name for the configured driver
func (c *Config) DatabaseDSN() string {
	db := c.Database
	if db.DSN != "" {
		return db.DSN
	}
	if db.Driver == "sqlite3" {
		return db.Path
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   "/" + db.Schema,
	}
	if db.UserName != "" {
		u.User = url.UserPassword(db.UserName, db.Password)
	}
	return u.String()
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// An address containing "://" is taken as a full search URL, anything else
// as an account name.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if user, ok := flags["user"].(string); ok && user != "" {
		c.Account.UserName = user
	}
	if password, ok := flags["password"].(string); ok && password != "" {
		c.Account.Password = password
		c.Account.PasswordEncoded = false
	}
	if address, ok := flags["address"].(string); ok && address != "" {
		if strings.Contains(address, "://") {
			c.Account.SearchURL = address
		} else {
			c.Account.AccountName = address
		}
	}
	if label, ok := flags["label"].(string); ok && label != "" {
		c.Account.Label = label
	}
	if storage, ok := flags["storage"].(string); ok && storage != "" {
		c.Search.Storage = storage
	}
	if outBox, ok := flags["outbox"].(string); ok && outBox != "" {
		c.Search.OutBox = outBox
	}
	if compress, ok := flags["compress"].(bool); ok && compress {
		c.Search.CompressFiles = true
	}
	if bucket, ok := flags["bucket"].(string); ok && bucket != "" {
		c.Search.Bucket = bucket
	}
	if maxResults, ok := flags["max-results"].(int); ok && maxResults > 0 {
		c.Search.MaxResults = maxResults
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	if home, err := homedir.Dir(); err == nil {
		_ = godotenv.Load(filepath.Join(home, ".fasearch.env"))
	}

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.ExpandPaths(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
